package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailpulse/internal/enum"
)

const (
	DefaultSubject = "No Subject"
	DefaultSender  = "Unknown Sender"
	DefaultBody    = "content unavailable"

	// legacy placeholder written by older ingestion runs
	LegacyNoContent = "No Content"
)

var ErrValidation = errors.New("mail record validation failed")

// MailRecord is a normalized inbound email.
type MailRecord struct {
	ID            string `gorm:"column:id;type:varchar(50);primaryKey"`
	Subject       string `gorm:"column:subject;type:varchar(1000);not null;uniqueIndex:uq_mail_records_identity,priority:1"`
	Sender        string `gorm:"column:sender;type:varchar(255);not null;uniqueIndex:uq_mail_records_identity,priority:2"`
	SenderAddress string `gorm:"column:sender_address;type:varchar(255)"`
	Body          string `gorm:"column:body;type:text;not null"`
	BodyHash      string `gorm:"column:body_hash;type:varchar(64);index"`

	ReceivedAt time.Time `gorm:"column:received_at;type:timestamp;not null;uniqueIndex:uq_mail_records_identity,priority:3;index"`

	MessageID string `gorm:"column:message_id;type:varchar(255);index"`
	ImapUID   uint32 `gorm:"column:imap_uid"`

	// Classification
	Labels       StringList      `gorm:"column:labels;type:text"`
	Sentiment    *enum.Sentiment `gorm:"column:sentiment;type:varchar(20);index"`
	Category     *enum.Category  `gorm:"column:category;type:varchar(20)"`
	IsClassified bool            `gorm:"column:is_classified;default:false;index"`
	ClassifiedAt *time.Time      `gorm:"column:classified_at;type:timestamp"`

	// ReplyChain holds the Message-IDs of replies sent for this record.
	IsReplied  bool       `gorm:"column:is_replied;default:false"`
	RepliedAt  *time.Time `gorm:"column:replied_at;type:timestamp"`
	ReplyChain StringList `gorm:"column:reply_chain;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp"`
}

func (MailRecord) TableName() string {
	return "mail_records"
}

func (m *MailRecord) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		id, err := gonanoid.New(24)
		if err != nil {
			return errors.Wrap(err, "failed to generate id")
		}
		m.ID = "mail_" + id
	}
	m.Normalize()
	if err := m.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// Normalize trims identity fields, pins the timestamp to UTC seconds and
// refreshes the body hash. Dedup lookups must see the same values the
// insert writes, so callers run it before querying as well.
func (m *MailRecord) Normalize() {
	m.Subject = strings.TrimSpace(m.Subject)
	m.Sender = strings.TrimSpace(m.Sender)
	m.ReceivedAt = NormalizeTime(m.ReceivedAt)
	m.BodyHash = HashBody(m.Body)
	if m.Labels == nil {
		m.Labels = StringList{}
	}
	if m.ReplyChain == nil {
		m.ReplyChain = StringList{}
	}
}

func (m *MailRecord) Validate() error {
	var missing []string
	if m.Subject == "" {
		missing = append(missing, "subject")
	}
	if m.Sender == "" {
		missing = append(missing, "sender")
	}
	if strings.TrimSpace(m.Body) == "" {
		missing = append(missing, "body")
	}
	if m.ReceivedAt.IsZero() {
		missing = append(missing, "receivedAt")
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrValidation, "missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// ApplyDefaults fills every empty required field with its placeholder.
func (m *MailRecord) ApplyDefaults() {
	if strings.TrimSpace(m.Subject) == "" {
		m.Subject = DefaultSubject
	}
	if strings.TrimSpace(m.Sender) == "" {
		m.Sender = DefaultSender
	}
	if strings.TrimSpace(m.Body) == "" {
		m.Body = DefaultBody
	}
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = time.Now()
	}
}

func HashBody(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Second)
}

// IsPlaceholderBody reports bodies the classifier should never see.
func IsPlaceholderBody(body string) bool {
	switch strings.TrimSpace(body) {
	case "", DefaultBody, LegacyNoContent:
		return true
	}
	return false
}
