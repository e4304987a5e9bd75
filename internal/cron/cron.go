package cron

import (
	"context"
	"os"
	"sync"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/customeros/mailpulse/interfaces"
	cron_config "github.com/customeros/mailpulse/internal/cron/config"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
)

const (
	JobHeartbeat       = "heartbeat"
	JobPurgeDuplicates = "purge_duplicates"
)

type CronManager struct {
	cfg      *cron_config.Config
	log      logger.Logger
	repo     interfaces.MailRecordRepository
	cron     *cronv3.Cron
	stopCh   chan struct{}
	stopOnce sync.Once
	jobIDs   map[string]cronv3.EntryID

	// maintenance jobs touching the store never overlap each other
	maintenance sync.Mutex
}

func NewCronManager(cfg *cron_config.Config, log logger.Logger, repo interfaces.MailRecordRepository) *CronManager {
	return &CronManager{
		cfg:    cfg,
		log:    log,
		repo:   repo,
		stopCh: make(chan struct{}),
		jobIDs: make(map[string]cronv3.EntryID),
	}
}

// Start registers the configured jobs and starts the scheduler.
func (cm *CronManager) Start() error {
	cm.log.Info("Starting cron manager")
	cronLog := &cronLogger{log: cm.log}
	c := cronv3.New(
		cronv3.WithSeconds(),
		cronv3.WithLogger(cronLog),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronLog),
			cronv3.Recover(cronLog),
		),
	)
	if err := cm.registerJobs(c); err != nil {
		return err
	}
	c.Start()
	cm.cron = c
	return nil
}

// Stop waits for running jobs to finish. Safe to call more than once.
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		if cm.cron != nil {
			cm.log.Info("Stopping cron manager")
			ctx := cm.cron.Stop()
			<-ctx.Done()
		}
		close(cm.stopCh)
	})
}

func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	if cm.cfg.CronScheduleHeartbeat != "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "local"
		}
		id, err := c.AddFunc(cm.cfg.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from host: %s", host)
		})
		if err != nil {
			cm.log.Errorf("Could not add heartbeat cron job: %v", err)
			return err
		}
		cm.jobIDs[JobHeartbeat] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cm.cfg.CronScheduleHeartbeat)
	}

	if cm.cfg.CronSchedulePurgeDuplicates != "" {
		id, err := c.AddFunc(cm.cfg.CronSchedulePurgeDuplicates, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			if _, err := cm.PurgeDuplicates(context.Background()); err != nil {
				cm.log.Errorf("Duplicate purge failed: %v", err)
			}
		})
		if err != nil {
			cm.log.Errorf("Could not add duplicate purge cron job: %v", err)
			return err
		}
		cm.jobIDs[JobPurgeDuplicates] = id
		cm.log.Infof("Registered duplicate purge job with schedule: %s", cm.cfg.CronSchedulePurgeDuplicates)
	}
	return nil
}

// PurgeDuplicates removes records sharing subject, sender and timestamp,
// keeping the oldest row of each group.
func (cm *CronManager) PurgeDuplicates(ctx context.Context) (int64, error) {
	cm.maintenance.Lock()
	defer cm.maintenance.Unlock()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.PurgeDuplicates")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	cm.log.Info("Running exact duplicate purge")
	removed, err := cm.repo.PurgeExactDuplicates(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	span.SetTag("removed", removed)
	cm.log.Infof("Duplicate purge removed %d records", removed)
	return removed, nil
}

// cronLogger routes scheduler output through the application logger.
type cronLogger struct {
	log logger.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Logger().Sugar().Debugw(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Logger().Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
