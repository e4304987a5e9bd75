package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/tracing"
)

const defaultListLimit = 500

type mailRecordRepository struct {
	db *gorm.DB
}

func NewMailRecordRepository(db *gorm.DB) interfaces.MailRecordRepository {
	return &mailRecordRepository{
		db: db,
	}
}

// FindDuplicate looks up a stored record with the same subject, sender and
// body. A zero window requires an identical received_at.
func (r *mailRecordRepository) FindDuplicate(ctx context.Context, rec *models.MailRecord, window time.Duration) (*models.MailRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailRecordRepository.FindDuplicate")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	if rec == nil {
		return nil, ErrInvalidInput
	}
	rec.Normalize()

	query := r.db.WithContext(ctx).
		Where("subject = ? AND sender = ? AND body_hash = ? AND body = ?", rec.Subject, rec.Sender, rec.BodyHash, rec.Body)
	if window > 0 {
		query = query.Where("received_at BETWEEN ? AND ?", rec.ReceivedAt.Add(-window), rec.ReceivedAt.Add(window))
	} else {
		query = query.Where("received_at = ?", rec.ReceivedAt)
	}

	var existing models.MailRecord
	if err := query.Order("received_at ASC").First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("duplicate", true)
	return &existing, nil
}

// InsertIfAbsent stores rec unless a duplicate exists. The returned record
// is the stored one, which is the existing row when inserted is false.
func (r *mailRecordRepository) InsertIfAbsent(ctx context.Context, rec *models.MailRecord, window time.Duration) (*models.MailRecord, bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailRecordRepository.InsertIfAbsent")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	if rec == nil {
		return nil, false, ErrInvalidInput
	}

	stored, inserted, err := r.insertOnce(ctx, rec, window)
	if errors.Is(err, models.ErrValidation) {
		span.LogFields(log.String("validation.retry", err.Error()))
		rec.ApplyDefaults()
		stored, inserted, err = r.insertOnce(ctx, rec, window)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, false, err
	}

	span.SetTag("inserted", inserted)
	tracing.TagEntity(span, stored.ID)
	return stored, inserted, nil
}

func (r *mailRecordRepository) insertOnce(ctx context.Context, rec *models.MailRecord, window time.Duration) (*models.MailRecord, bool, error) {
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, false, err
	}

	existing, err := r.FindDuplicate(ctx, rec, window)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected > 0 {
		return rec, true, nil
	}

	// lost the race on the identity index
	var winner models.MailRecord
	err = r.db.WithContext(ctx).
		Where("subject = ? AND sender = ? AND received_at = ?", rec.Subject, rec.Sender, rec.ReceivedAt).
		First(&winner).Error
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to load conflicting record")
	}
	return &winner, false, nil
}

// FindUnclassifiedUniqueBatch returns unclassified records with real
// content, one per distinct body, newest first.
func (r *mailRecordRepository) FindUnclassifiedUniqueBatch(ctx context.Context, limit int) ([]*models.MailRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailRecordRepository.FindUnclassifiedUniqueBatch")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	span.LogFields(log.Int("limit", limit))

	if limit <= 0 {
		return nil, ErrInvalidInput
	}

	ranked := r.db.Model(&models.MailRecord{}).
		Select("id, ROW_NUMBER() OVER (PARTITION BY body_hash ORDER BY received_at DESC, id DESC) AS rn").
		Where("is_classified = ?", false).
		Where("body <> ?", "").
		Where("body NOT IN ?", []string{models.DefaultBody, models.LegacyNoContent})
	newest := r.db.Table("(?) AS ranked", ranked).Select("id").Where("rn = 1")

	var records []*models.MailRecord
	err := r.db.WithContext(ctx).
		Where("id IN (?)", newest).
		Order("received_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(log.Int("found", len(records)))
	return records, nil
}

func (r *mailRecordRepository) FindContentDuplicates(ctx context.Context, rec *models.MailRecord) ([]*models.MailRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailRecordRepository.FindContentDuplicates")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	if rec == nil || rec.ID == "" {
		return nil, ErrInvalidInput
	}
	tracing.TagEntity(span, rec.ID)

	var records []*models.MailRecord
	err := r.db.WithContext(ctx).
		Where("body_hash = ? AND body = ?", models.HashBody(rec.Body), rec.Body).
		Where("is_classified = ?", false).
		Where("id <> ?", rec.ID).
		Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return records, nil
}

func (r *mailRecordRepository) SaveClassification(ctx context.Context, id string, result *dto.ClassificationResult) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailRecordRepository.SaveClassification")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	tracing.TagEntity(span, id)

	if id == "" || result == nil {
		return ErrInvalidInput
	}

	res := r.db.WithContext(ctx).
		Model(&models.MailRecord{}).
		Where("id = ?", id).
		Updates(classificationColumns(result))
	if res.Error != nil {
		tracing.TraceErr(span, res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMailRecordNotFound
	}
	return nil
}

// PropagateClassification copies one result onto several records. It is a
// single bulk update, there is no transaction spanning it and the primary
// save.
func (r *mailRecordRepository) PropagateClassification(ctx context.Context, ids []string, result *dto.ClassificationResult) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailRecordRepository.PropagateClassification")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	span.LogFields(log.Int("records", len(ids)))

	if len(ids) == 0 {
		return 0, nil
	}
	if result == nil {
		return 0, ErrInvalidInput
	}

	res := r.db.WithContext(ctx).
		Model(&models.MailRecord{}).
		Where("id IN ?", ids).
		Updates(classificationColumns(result))
	if res.Error != nil {
		tracing.TraceErr(span, res.Error)
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func classificationColumns(result *dto.ClassificationResult) map[string]interface{} {
	return map[string]interface{}{
		"sentiment":     result.SentimentValue(),
		"category":      result.CategoryValue(),
		"labels":        models.StringList(result.Labels),
		"is_classified": true,
		"classified_at": time.Now().UTC(),
	}
}

// ListClassified returns classified records, newest first. Labels are
// matched as a whole JSON array element.
func (r *mailRecordRepository) ListClassified(ctx context.Context, filter dto.MailRecordFilter) ([]*models.MailRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailRecordRepository.ListClassified")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	tracing.LogObjectAsJson(span, "filter", filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := r.db.WithContext(ctx).Where("is_classified = ?", true)
	if label := strings.TrimSpace(filter.Label); label != "" {
		query = query.Where(r.labelCondition(), encodeLabel(label))
	}
	if sentiment := strings.TrimSpace(filter.Sentiment); sentiment != "" {
		query = query.Where("sentiment = ?", strings.ToLower(sentiment))
	}

	var records []*models.MailRecord
	if err := query.Order("received_at DESC").Limit(limit).Find(&records).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return records, nil
}

// labelCondition matches the JSON encoded label, quotes included, so only a
// whole element with the same case matches. LIKE folds ASCII case on SQLite.
func (r *mailRecordRepository) labelCondition() string {
	if r.db.Dialector.Name() == "sqlite" {
		return "instr(labels, ?) > 0"
	}
	return "strpos(labels, ?) > 0"
}

func encodeLabel(label string) string {
	encoded, _ := json.Marshal(label)
	return string(encoded)
}

func (r *mailRecordRepository) GetByID(ctx context.Context, id string) (*models.MailRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailRecordRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	tracing.TagEntity(span, id)

	var record models.MailRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &record, nil
}

// MarkReplied flags the record as answered and appends replyID to its
// reply chain when one is given.
func (r *mailRecordRepository) MarkReplied(ctx context.Context, id string, replyID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailRecordRepository.MarkReplied")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.MailRecord
		if err := tx.Where("id = ?", id).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMailRecordNotFound
			}
			return err
		}

		chain := record.ReplyChain
		if replyID != "" && !chain.Contains(replyID) {
			chain = append(chain, replyID)
		}
		if chain == nil {
			chain = models.StringList{}
		}

		return tx.Model(&models.MailRecord{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"is_replied":  true,
				"replied_at":  time.Now().UTC(),
				"reply_chain": chain,
			}).Error
	})
	if err != nil && !errors.Is(err, ErrMailRecordNotFound) {
		tracing.TraceErr(span, err)
	}
	return err
}

// PurgeExactDuplicates removes rows sharing subject, sender and the exact
// received_at, keeping the oldest-created row of each group.
func (r *mailRecordRepository) PurgeExactDuplicates(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailRecordRepository.PurgeExactDuplicates")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	ranked := r.db.Model(&models.MailRecord{}).
		Select("id, ROW_NUMBER() OVER (PARTITION BY subject, sender, received_at ORDER BY created_at ASC, id ASC) AS rn")
	extra := r.db.Table("(?) AS ranked", ranked).Select("id").Where("rn > 1")

	res := r.db.WithContext(ctx).
		Where("id IN (?)", extra).
		Delete(&models.MailRecord{})
	if res.Error != nil {
		tracing.TraceErr(span, res.Error)
		return 0, res.Error
	}

	span.LogFields(log.Int64("deleted", res.RowsAffected))
	return res.RowsAffected, nil
}

func (r *mailRecordRepository) CountByState(ctx context.Context) (*dto.RecordCounts, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailRecordRepository.CountByState")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	counts := &dto.RecordCounts{}
	if err := r.db.WithContext(ctx).Model(&models.MailRecord{}).Count(&counts.Total).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&models.MailRecord{}).
		Where("is_classified = ?", true).
		Count(&counts.Classified).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	counts.Unclassified = counts.Total - counts.Classified
	return counts, nil
}
