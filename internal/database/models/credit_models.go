package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CreditTxAdd        = "add"
	CreditTxDeduct     = "deduct"
	CreditTxAdjustment = "adjustment"
)

// CreditAccount is a customer's store-credit balance, distinct from
// pending-order debt. The row is created implicitly on first mutation.
type CreditAccount struct {
	UserID        int64           `gorm:"primaryKey"`
	Balance       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	UsedCredit    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PendingCredit decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (CreditAccount) TableName() string { return "user_credits" }

// CreditTransaction is append-only. Amount is the signed effect on the
// balance, so replaying all transactions reproduces the current balance.
type CreditTransaction struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"`
	UserID      int64           `gorm:"index;not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Type        string          `gorm:"type:varchar(16);not null"`
	Description string          `gorm:"type:text"`
	PerformedBy int64           `gorm:"not null"`
	CreatedAt   time.Time
}
