package services

import (
	"context"
	"io"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/repository"
	"github.com/customeros/mailpulse/services/analysis"
	"github.com/customeros/mailpulse/services/classifier"
	"github.com/customeros/mailpulse/services/imap"
	"github.com/customeros/mailpulse/services/parser"
	"github.com/customeros/mailpulse/services/smtp"
)

type Services struct {
	Supervisor *imap.Supervisor
	Poller     *imap.Poller
	Classifier interfaces.Classifier
	Worker     *analysis.Worker
	Mailer     interfaces.Mailer
}

func InitServices(ctx context.Context, cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	supervisor := imap.NewSupervisor(imap.NewDialer(cfg.ImapConfig, log), imap.SupervisorConfig{
		ReconnectDelay: cfg.IngestionConfig.ReconnectDelay,
		RetryMin:       cfg.IngestionConfig.ReconnectRetryMin,
		RetryMax:       cfg.IngestionConfig.ReconnectRetryMax,
		Keepalive:      cfg.ImapConfig.Keepalive,
	}, log)

	poller := imap.NewPoller(supervisor, parser.NewParser(log), repos.MailRecordRepository, imap.PollerConfig{
		Mailbox:     cfg.ImapConfig.Mailbox,
		Interval:    cfg.IngestionConfig.Interval,
		Lookback:    cfg.IngestionConfig.Lookback,
		ChunkSize:   cfg.IngestionConfig.ChunkSize,
		SettleDelay: cfg.IngestionConfig.SettleDelay,
		DedupWindow: cfg.IngestionConfig.DedupWindow,
	}, log)

	cls, err := classifier.New(ctx, cfg.ClassifierConfig, log)
	if err != nil {
		return nil, err
	}

	worker := analysis.NewWorker(cls, repos.MailRecordRepository, analysis.WorkerConfig{
		BatchSize: cfg.AnalysisConfig.BatchSize,
		Interval:  cfg.AnalysisConfig.Interval,
	}, log)

	return &Services{
		Supervisor: supervisor,
		Poller:     poller,
		Classifier: cls,
		Worker:     worker,
		Mailer:     smtp.NewSMTPClient(cfg.SmtpConfig, log),
	}, nil
}

// Close releases provider clients that hold connections.
func (s *Services) Close() error {
	if closer, ok := s.Classifier.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
