package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReminderInitialDue = "initial_due"
	ReminderPendingDue = "pending_due"
	ReminderOverdue    = "overdue"
)

// PaymentReminder is a scheduled notice tied to an order's due date.
// Lifecycle is one-way: created, then seen, then acknowledged. Both flags
// are terminal once true.
type PaymentReminder struct {
	ID             int64           `gorm:"primaryKey;autoIncrement"`
	OrderID        int64           `gorm:"index;not null"`
	UserID         int64           `gorm:"index;not null"`
	ReminderType   string          `gorm:"type:varchar(16);index;not null"`
	DueDate        time.Time       `gorm:"not null"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	IsSeen         bool            `gorm:"not null;default:false"`
	SeenAt         *time.Time
	IsAcknowledged bool `gorm:"not null;default:false"`
	AcknowledgedAt *time.Time
	CreatedAt      time.Time
}
