package imap

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"go.uber.org/zap"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/enum"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/tracing"
	"github.com/customeros/mailpulse/services/parser"
)

type PollerConfig struct {
	Mailbox     string
	Interval    time.Duration
	Lookback    time.Duration
	ChunkSize   int
	SettleDelay time.Duration
	DedupWindow time.Duration
}

// Poller runs fetch cycles against the supervised connection. Cycles never
// overlap, whether started by the timer, a fresh connection or a caller.
type Poller struct {
	supervisor *Supervisor
	parser     *parser.Parser
	repo       interfaces.MailRecordRepository
	cfg        PollerConfig
	log        logger.Logger
	now        func() time.Time

	cycleMu sync.Mutex
	ready   chan struct{}

	statusMu    sync.RWMutex
	lastCycleAt *time.Time
	lastCycle   *dto.CycleResult
}

func NewPoller(supervisor *Supervisor, p *parser.Parser, repo interfaces.MailRecordRepository, cfg PollerConfig, log logger.Logger) *Poller {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 5
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	poller := &Poller{
		supervisor: supervisor,
		parser:     p,
		repo:       repo,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
		ready:      make(chan struct{}, 1),
	}
	supervisor.OnReady(func(context.Context, interfaces.Mailbox) {
		select {
		case poller.ready <- struct{}{}:
		default:
		}
	})
	return poller
}

// Run drives periodic cycles until ctx is cancelled. A newly authenticated
// connection gets an extra cycle after the settle delay.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.ready:
			if !sleep(ctx, p.cfg.SettleDelay) {
				return nil
			}
			p.safeRunCycle(ctx)
		case <-ticker.C:
			p.safeRunCycle(ctx)
		}
	}
}

func (p *Poller) safeRunCycle(ctx context.Context) {
	defer tracing.RecoverAndLogToJaeger(p.log)
	p.RunCycle(ctx)
}

func (p *Poller) RunCycle(ctx context.Context) dto.CycleResult {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	result := dto.CycleResult{CycleID: uuid.NewString()}

	span, ctx := opentracing.StartSpanFromContext(ctx, "Poller.RunCycle")
	defer span.Finish()
	tracing.TagComponentIngestion(span)
	tracing.TagCycle(span, result.CycleID)

	cycleLog := p.log.With(zap.String("cycleId", result.CycleID))
	defer func() {
		p.recordCycle(result)
		tracing.LogObjectAsJson(span, "result", result)
	}()

	mb := p.supervisor.Current()
	if mb == nil {
		cycleLog.Infof("IMAP not ready, skipping check. state: %s", p.supervisor.State())
		result.Error = dto.CycleErrorNotConnected
		return result
	}

	p.supervisor.markState(mb, enum.ConnectionFetching)
	defer p.supervisor.markState(mb, enum.ConnectionIdle)

	if err := mb.SelectReadOnly(p.cfg.Mailbox); err != nil {
		p.transportFailure(span, cycleLog, mb, err, &result)
		return result
	}

	since := p.now().Add(-p.cfg.Lookback)
	ids, err := mb.SearchSince(since)
	if err != nil {
		p.transportFailure(span, cycleLog, mb, err, &result)
		return result
	}
	result.Found = len(ids)
	span.LogFields(log.Int("found", len(ids)))

	if len(ids) == 0 {
		cycleLog.Info("No new messages found")
		return result
	}
	cycleLog.Infof("Found %d messages since %s", len(ids), since.Format(time.RFC3339))

	for _, chunk := range chunkIDs(ids, p.cfg.ChunkSize) {
		if ctx.Err() != nil {
			result.Error = ctx.Err().Error()
			return result
		}

		messages, err := mb.FetchChunk(chunk)
		for _, raw := range messages {
			p.store(ctx, cycleLog, raw, &result)
		}
		if err != nil {
			p.transportFailure(span, cycleLog, mb, err, &result)
			return result
		}
	}

	cycleLog.Infof("Cycle completed: %d inserted, %d duplicates, %d failed",
		result.Inserted, result.Duplicates, result.Failed)
	return result
}

func (p *Poller) store(ctx context.Context, cycleLog logger.Logger, raw dto.RawMessage, result *dto.CycleResult) {
	parsed := p.parser.Parse(ctx, raw)

	rec := &models.MailRecord{
		Subject:       parsed.Subject,
		Sender:        parsed.Sender,
		SenderAddress: parsed.SenderAddress,
		Body:          parsed.Body,
		ReceivedAt:    parsed.ReceivedAt,
		MessageID:     parsed.MessageID,
		ImapUID:       parsed.UID,
	}

	stored, inserted, err := p.repo.InsertIfAbsent(ctx, rec, p.cfg.DedupWindow)
	switch {
	case err != nil:
		result.Failed++
		cycleLog.Errorf("Failed to save email %q from %s: %v", parsed.Subject, parsed.Sender, err)
	case !inserted:
		result.Duplicates++
		cycleLog.Debugf("Email already exists: %s (%s)", parsed.Subject, stored.ID)
	default:
		result.Inserted++
		cycleLog.Infof("New email saved: %s (%s)", stored.Subject, stored.ID)
	}
}

func (p *Poller) transportFailure(span opentracing.Span, cycleLog logger.Logger, mb interfaces.Mailbox, err error, result *dto.CycleResult) {
	tracing.TraceErr(span, err)
	result.Error = err.Error()
	cycleLog.Errorf("IMAP command failed, forcing reconnect: %v", err)
	p.supervisor.Teardown(mb, err)
}

func (p *Poller) recordCycle(result dto.CycleResult) {
	now := p.now().UTC()
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.lastCycleAt = &now
	p.lastCycle = &result
}

func (p *Poller) Status() interfaces.IngestionStatus {
	status := p.supervisor.Status()
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	status.LastCycleAt = p.lastCycleAt
	status.LastCycle = p.lastCycle
	return status
}

func chunkIDs(ids []uint32, size int) [][]uint32 {
	if size <= 0 {
		size = len(ids)
	}
	chunks := make([][]uint32, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
