package handlers

import (
	"github.com/customeros/mailpulse/api/handlers/emails"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/logger"
)

type APIHandlers struct {
	Emails    *emails.EmailsHandler
	Ingestion *IngestionHandler
	Analysis  *AnalysisHandler
}

func InitHandlers(repo interfaces.MailRecordRepository, mailer interfaces.Mailer, ingestion interfaces.Ingestion, trigger interfaces.AnalysisTrigger, log logger.Logger) *APIHandlers {
	return &APIHandlers{
		Emails:    emails.NewEmailsHandler(repo, mailer, log),
		Ingestion: NewIngestionHandler(ingestion, repo, log),
		Analysis:  NewAnalysisHandler(trigger, log),
	}
}
