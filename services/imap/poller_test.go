package imap

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/enum"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/services/parser"
)

var pollerNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestPoller(repo *memoryRepository) (*Poller, *Supervisor) {
	log := logger.NewNopLogger()
	sup := NewSupervisor(&fakeDialer{}, fastSupervisorConfig(), log)
	p := NewPoller(sup, parser.NewParser(log), repo, PollerConfig{
		Mailbox:     "INBOX",
		Interval:    time.Minute,
		Lookback:    30 * time.Minute,
		ChunkSize:   5,
		DedupWindow: time.Minute,
	}, log)
	p.now = func() time.Time { return pollerNow }
	return p, sup
}

func header(subject string) string {
	return fmt.Sprintf("From: Ann <ann@example.com>\r\nSubject: %s\r\nDate: Sat, 01 Jun 2024 11:50:00 +0000\r\n\r\n", subject)
}

func TestChunkIDs(t *testing.T) {
	ids := []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	chunks := chunkIDs(ids, 5)
	require.Len(t, chunks, 3)
	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, chunks[0])
	assert.Equal(t, []uint32{6, 7, 8, 9, 10}, chunks[1])
	assert.Equal(t, []uint32{11, 12}, chunks[2])

	assert.Empty(t, chunkIDs(nil, 5))
}

func TestRunCycle_NotConnected(t *testing.T) {
	p, _ := newTestPoller(&memoryRepository{})

	result := p.RunCycle(context.Background())
	assert.Equal(t, dto.CycleErrorNotConnected, result.Error)
	assert.NotEmpty(t, result.CycleID)

	status := p.Status()
	assert.False(t, status.Connected)
	require.NotNil(t, status.LastCycle)
	assert.Equal(t, result.CycleID, status.LastCycle.CycleID)
}

func TestRunCycle_FetchesSequentialChunks(t *testing.T) {
	repo := &memoryRepository{}
	p, sup := newTestPoller(repo)

	mb := newFakeMailbox()
	for i := uint32(1); i <= 7; i++ {
		mb.add(i, header(fmt.Sprintf("Message %d", i)), fmt.Sprintf("Body of message %d", i))
	}
	// same content as message 1
	mb.add(8, header("Message 1"), "Body of message 1")
	sup.attach(mb)

	result := p.RunCycle(context.Background())

	assert.Empty(t, result.Error)
	assert.Equal(t, 8, result.Found)
	assert.Equal(t, 7, result.Inserted)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, [][]uint32{{1, 2, 3, 4, 5}, {6, 7, 8}}, mb.fetchCalls)
	assert.Equal(t, "INBOX", mb.selected)
	assert.True(t, mb.since.Equal(pollerNow.Add(-30*time.Minute)))

	stored := repo.stored()
	require.Len(t, stored, 7)
	for i, rec := range stored {
		assert.Equal(t, fmt.Sprintf("Message %d", i+1), rec.Subject)
		assert.Equal(t, "Ann", rec.Sender)
		assert.Equal(t, "ann@example.com", rec.SenderAddress)
	}
	for _, w := range repo.windows {
		assert.Equal(t, time.Minute, w)
	}

	assert.Equal(t, enum.ConnectionIdle, sup.State())
}

func TestRunCycle_NoMessages(t *testing.T) {
	p, sup := newTestPoller(&memoryRepository{})
	mb := newFakeMailbox()
	sup.attach(mb)

	result := p.RunCycle(context.Background())
	assert.Empty(t, result.Error)
	assert.Zero(t, result.Found)
	assert.Empty(t, mb.fetchCalls)
}

func TestRunCycle_StoreFailureContinues(t *testing.T) {
	repo := &memoryRepository{failOn: "Message 2"}
	p, sup := newTestPoller(repo)

	mb := newFakeMailbox()
	for i := uint32(1); i <= 3; i++ {
		mb.add(i, header(fmt.Sprintf("Message %d", i)), "body")
	}
	sup.attach(mb)

	result := p.RunCycle(context.Background())
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Inserted)
}

func TestRunCycle_TransportErrorRequestsTeardown(t *testing.T) {
	tests := []struct {
		name  string
		setup func(mb *fakeMailbox)
	}{
		{name: "select", setup: func(mb *fakeMailbox) { mb.selectErr = errors.New("select failed") }},
		{name: "search", setup: func(mb *fakeMailbox) { mb.searchErr = errors.New("search failed") }},
		{name: "fetch", setup: func(mb *fakeMailbox) {
			mb.add(1, header("x"), "y")
			mb.fetchErr = errors.New("fetch failed")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, sup := newTestPoller(&memoryRepository{})
			mb := newFakeMailbox()
			tt.setup(mb)
			sup.attach(mb)

			result := p.RunCycle(context.Background())
			assert.Contains(t, result.Error, tt.name+" failed")

			select {
			case req := <-sup.teardown:
				assert.Equal(t, mb, req.mailbox)
			default:
				t.Fatal("expected a teardown request")
			}
		})
	}
}

func TestPoller_ReadyTriggersCycle(t *testing.T) {
	repo := &memoryRepository{}
	p, sup := newTestPoller(repo)
	p.cfg.SettleDelay = time.Millisecond

	mb := newFakeMailbox()
	mb.add(1, header("Hello"), "World")
	sup.attach(mb)
	sup.notifyReady(context.Background(), mb)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(repo.stored()) == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
