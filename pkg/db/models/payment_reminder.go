package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/venuepay-backend/pkg/enums"
)

// PaymentReminder is the audit row written after a reminder email goes out.
type PaymentReminder struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	PaymentStageID uuid.UUID          `gorm:"column:payment_stage_id;type:uuid;not null"`
	Type           enums.ReminderType `gorm:"column:type;not null"`
	SentAt         time.Time          `gorm:"column:sent_at;not null"`
}
