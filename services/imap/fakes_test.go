package imap

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/models"
)

type fakeMailbox struct {
	mu         sync.Mutex
	ids        []uint32
	messages   map[uint32]dto.RawMessage
	fetchCalls [][]uint32
	since      time.Time
	selected   string
	selectErr  error
	searchErr  error
	fetchErr   error
	noopErr    error
	noops      int
	closed     bool
	done       chan struct{}
	doneOnce   sync.Once
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages: map[uint32]dto.RawMessage{},
		done:     make(chan struct{}),
	}
}

func (f *fakeMailbox) add(seq uint32, header, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, seq)
	f.messages[seq] = dto.RawMessage{SeqNum: seq, UID: seq + 100, Header: []byte(header), Body: []byte(body)}
}

func (f *fakeMailbox) SelectReadOnly(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = name
	return f.selectErr
}

func (f *fakeMailbox) SearchSince(since time.Time) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = since
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]uint32(nil), f.ids...), nil
}

func (f *fakeMailbox) FetchChunk(seqNums []uint32) ([]dto.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls = append(f.fetchCalls, append([]uint32(nil), seqNums...))
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]dto.RawMessage, 0, len(seqNums))
	for _, id := range seqNums {
		out = append(out, f.messages[id])
	}
	return out, nil
}

func (f *fakeMailbox) Noop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noops++
	return f.noopErr
}

func (f *fakeMailbox) Done() <-chan struct{} {
	return f.done
}

func (f *fakeMailbox) terminate() {
	f.doneOnce.Do(func() { close(f.done) })
}

func (f *fakeMailbox) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.terminate()
	return nil
}

func (f *fakeMailbox) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeDialer fails the first failures dials, then hands out mailboxes from
// next, creating fresh ones when it runs out.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	next     []*fakeMailbox
	dialed   []*fakeMailbox
}

func (d *fakeDialer) Dial(ctx context.Context) (interfaces.Mailbox, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("connection refused")
	}
	var mb *fakeMailbox
	if len(d.next) > 0 {
		mb = d.next[0]
		d.next = d.next[1:]
	} else {
		mb = newFakeMailbox()
	}
	d.dialed = append(d.dialed, mb)
	return mb, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) mailboxes() []*fakeMailbox {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeMailbox(nil), d.dialed...)
}

// memoryRepository keeps inserted records in memory and treats equal
// subject, sender and body as a duplicate.
type memoryRepository struct {
	interfaces.MailRecordRepository

	mu      sync.Mutex
	records []*models.MailRecord
	failOn  string
	windows []time.Duration
}

func (r *memoryRepository) InsertIfAbsent(_ context.Context, rec *models.MailRecord, window time.Duration) (*models.MailRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows = append(r.windows, window)
	if r.failOn != "" && rec.Subject == r.failOn {
		return nil, false, errors.New("database unavailable")
	}
	for _, existing := range r.records {
		if existing.Subject == rec.Subject && existing.Sender == rec.Sender && existing.Body == rec.Body {
			return existing, false, nil
		}
	}
	rec.ID = "mail_" + rec.Subject
	r.records = append(r.records, rec)
	return rec, true, nil
}

func (r *memoryRepository) stored() []*models.MailRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.MailRecord(nil), r.records...)
}
