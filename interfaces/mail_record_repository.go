package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/models"
)

type MailRecordRepository interface {
	FindDuplicate(ctx context.Context, rec *models.MailRecord, window time.Duration) (*models.MailRecord, error)
	InsertIfAbsent(ctx context.Context, rec *models.MailRecord, window time.Duration) (*models.MailRecord, bool, error)

	FindUnclassifiedUniqueBatch(ctx context.Context, limit int) ([]*models.MailRecord, error)
	FindContentDuplicates(ctx context.Context, rec *models.MailRecord) ([]*models.MailRecord, error)
	SaveClassification(ctx context.Context, id string, result *dto.ClassificationResult) error
	PropagateClassification(ctx context.Context, ids []string, result *dto.ClassificationResult) (int64, error)

	ListClassified(ctx context.Context, filter dto.MailRecordFilter) ([]*models.MailRecord, error)
	GetByID(ctx context.Context, id string) (*models.MailRecord, error)
	MarkReplied(ctx context.Context, id string, replyID string) error

	PurgeExactDuplicates(ctx context.Context) (int64, error)
	CountByState(ctx context.Context) (*dto.RecordCounts, error)
}
