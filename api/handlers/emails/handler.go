package emails

import (
	"time"

	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/models"
)

const maxListLimit = 1000

type EmailsHandler struct {
	repo   interfaces.MailRecordRepository
	mailer interfaces.Mailer
	log    logger.Logger
}

func NewEmailsHandler(repo interfaces.MailRecordRepository, mailer interfaces.Mailer, log logger.Logger) *EmailsHandler {
	return &EmailsHandler{
		repo:   repo,
		mailer: mailer,
		log:    log,
	}
}

// EmailResponse is the dashboard view of a classified record.
type EmailResponse struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	From       string    `json:"from"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Labels     []string  `json:"labels"`
	IsAnswered bool      `json:"isAnswered"`
	Sentiment  string    `json:"sentiment,omitempty"`
	Category   string    `json:"category,omitempty"`
}

func toEmailResponse(rec *models.MailRecord) EmailResponse {
	resp := EmailResponse{
		ID:         rec.ID,
		Subject:    rec.Subject,
		From:       rec.Sender,
		Content:    rec.Body,
		Timestamp:  rec.ReceivedAt,
		Labels:     []string(rec.Labels),
		IsAnswered: rec.IsReplied,
	}
	if resp.Labels == nil {
		resp.Labels = []string{}
	}
	if rec.Sentiment != nil {
		resp.Sentiment = rec.Sentiment.String()
	}
	if rec.Category != nil {
		resp.Category = rec.Category.String()
	}
	return resp
}
