package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/tracing"
)

type WorkerConfig struct {
	BatchSize int
	Interval  time.Duration
}

type PassResult struct {
	PassID     string `json:"passId"`
	Candidates int    `json:"candidates"`
	Classified int    `json:"classified"`
	Propagated int64  `json:"propagated"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

// Worker classifies stored records in passes. Only one pass runs at a time;
// trigger signals arriving while a pass is queued collapse into it.
type Worker struct {
	classifier interfaces.Classifier
	repo       interfaces.MailRecordRepository
	cfg        WorkerConfig
	log        logger.Logger

	passMu  sync.Mutex
	trigger chan struct{}
}

func NewWorker(classifier interfaces.Classifier, repo interfaces.MailRecordRepository, cfg WorkerConfig, log logger.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Worker{
		classifier: classifier,
		repo:       repo,
		cfg:        cfg,
		log:        log,
		trigger:    make(chan struct{}, 1),
	}
}

// TriggerPass never blocks. It reports false when a pass is already pending.
func (w *Worker) TriggerPass() bool {
	select {
	case w.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (w *Worker) Run(ctx context.Context) error {
	w.log.Infof("Starting email analysis with %s classifier", w.classifier.Name())
	for {
		w.safeRunPass(ctx)

		timer := time.NewTimer(w.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-w.trigger:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (w *Worker) safeRunPass(ctx context.Context) {
	defer tracing.RecoverAndLogToJaeger(w.log)
	w.RunPass(ctx)
}

func (w *Worker) RunPass(ctx context.Context) PassResult {
	w.passMu.Lock()
	defer w.passMu.Unlock()

	result := PassResult{PassID: uuid.NewString()}

	span, ctx := opentracing.StartSpanFromContext(ctx, "Worker.RunPass")
	defer span.Finish()
	tracing.TagComponentAnalysis(span)
	tracing.TagCycle(span, result.PassID)
	defer func() {
		tracing.LogObjectAsJson(span, "result", result)
	}()

	passLog := w.log.With(zap.String("passId", result.PassID))

	records, err := w.repo.FindUnclassifiedUniqueBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		tracing.TraceErr(span, err)
		passLog.Errorf("Failed to load unclassified emails: %v", err)
		return result
	}
	result.Candidates = len(records)
	if len(records) == 0 {
		passLog.Debug("No new emails to analyze")
		return result
	}
	passLog.Infof("Found %d unanalyzed unique emails", len(records))

	for _, rec := range records {
		if ctx.Err() != nil {
			return result
		}
		w.classifyRecord(ctx, passLog, rec, &result)
	}

	passLog.Infof("Analysis pass completed: %d classified, %d propagated, %d skipped, %d failed",
		result.Classified, result.Propagated, result.Skipped, result.Failed)
	return result
}

func (w *Worker) classifyRecord(ctx context.Context, passLog logger.Logger, rec *models.MailRecord, result *PassResult) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Worker.classifyRecord")
	defer span.Finish()
	tracing.TagEntity(span, rec.ID)

	recLog := passLog.With(zap.String("recordId", rec.ID))

	// collected before the write so the primary record is not its own duplicate
	duplicates, err := w.repo.FindContentDuplicates(ctx, rec)
	if err != nil {
		tracing.TraceErr(span, err)
		recLog.Errorf("Failed to find duplicates of %q: %v", rec.Subject, err)
		result.Failed++
		return
	}

	classification, err := w.classifier.Classify(ctx, dto.ClassificationRequest{
		Subject: rec.Subject,
		Body:    rec.Body,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		recLog.Errorf("Error analyzing email %q: %v", rec.Subject, err)
		result.Failed++
		return
	}
	if err := classification.Validate(); err != nil {
		recLog.Warnf("Skipping email due to invalid analysis result: %q: %v", rec.Subject, err)
		result.Skipped++
		return
	}

	if err := w.repo.SaveClassification(ctx, rec.ID, classification); err != nil {
		tracing.TraceErr(span, err)
		recLog.Errorf("Failed to save analysis of %q: %v", rec.Subject, err)
		result.Failed++
		return
	}
	result.Classified++

	if len(duplicates) == 0 {
		recLog.Infof("Successfully analyzed email: %s", rec.Subject)
		return
	}

	ids := make([]string, 0, len(duplicates))
	for _, d := range duplicates {
		ids = append(ids, d.ID)
	}
	updated, err := w.repo.PropagateClassification(ctx, ids, classification)
	if err != nil {
		// the copies stay unclassified and are picked up by a later pass
		tracing.TraceErr(span, err)
		recLog.Errorf("Failed to update %d duplicates of %q: %v", len(ids), rec.Subject, err)
		return
	}
	result.Propagated += updated
	recLog.Infof("Successfully analyzed email and its %d duplicates: %s", updated, rec.Subject)
}
