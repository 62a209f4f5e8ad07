package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"

	InitialPaymentNotCollected = "not_collected"
	InitialPaymentCollected    = "collected"

	PaymentMethodCash         = "cash"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCard         = "card"
	PaymentMethodOnline       = "online"

	PaymentCompleted = "completed"
)

// Order carries the two-sided balance of a sale. PaidAmount and
// PendingAmount are mutated only through the balance tracker; the invariant
// paid + pending == total must hold after every committed transaction.
type Order struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	OrderNumber string `gorm:"uniqueIndex;not null"`
	CustomerID  int64  `gorm:"index;not null"`
	RecordedBy  *int64 `gorm:"index"` // staff who recorded the order, nil for self-service
	AssignedTo  *int64 `gorm:"index"` // staff responsible for collection

	TotalAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PaidAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PendingAmount decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PaymentStatus string          `gorm:"type:varchar(16);index;not null"`

	InitialPaymentRequired *decimal.Decimal `gorm:"type:decimal(18,2)"`
	InitialPaymentStatus   *string          `gorm:"type:varchar(16)"`
	InitialPaymentDueDate  *time.Time
	PendingPaymentDueDate  *time.Time

	Notes *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Payments []Payment `gorm:"foreignKey:OrderID"`
}

// Payment is an immutable record of money applied to one order.
// Corrections happen via compensating entries, never in-place edits.
type Payment struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	OrderID       int64           `gorm:"index;not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PaymentMethod string          `gorm:"type:varchar(16);not null"`
	RecordedBy    int64           `gorm:"not null"`
	Notes         *string         `gorm:"type:text"`
	ProofURL      *string         `gorm:"type:varchar(256)"`
	Status        string          `gorm:"type:varchar(16);not null;default:'completed'"`
	CreatedAt     time.Time
}
