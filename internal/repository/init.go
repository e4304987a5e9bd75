package repository

import (
	"gorm.io/gorm"

	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/models"
)

type Repositories struct {
	MailRecordRepository interfaces.MailRecordRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		MailRecordRepository: NewMailRecordRepository(db),
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.MailRecord{},
	)
}
