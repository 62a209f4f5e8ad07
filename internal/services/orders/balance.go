package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"velora-system/internal/database/models"
	"velora-system/internal/fault"
)

// ErrStaleBalance means a concurrent writer updated the order between our
// read and our guarded write. Callers retry the enclosing transaction.
var ErrStaleBalance = errors.New("order balance changed concurrently")

// Service is the order balance tracker. It is the only writer of
// paid_amount, pending_amount and payment_status.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// DeriveStatus makes the status derivation explicit instead of hiding it in
// database triggers: paid when nothing is pending, unpaid when nothing has
// been paid, partial otherwise.
func DeriveStatus(paid, pending decimal.Decimal) string {
	switch {
	case pending.IsZero():
		return models.PaymentStatusPaid
	case paid.IsZero():
		return models.PaymentStatusUnpaid
	default:
		return models.PaymentStatusPartial
	}
}

func (s *Service) Get(ctx context.Context, orderID int64) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.ErrOrderNotFound
		}
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	return &order, nil
}

// ApplyPayment moves amount from pending to paid inside the caller's
// transaction. The update is guarded on the observed pending_amount so two
// concurrent writers cannot both apply against the same balance; the loser
// gets ErrStaleBalance. On success the passed order is updated in place.
func (s *Service) ApplyPayment(tx *gorm.DB, order *models.Order, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive: %w", fault.ErrInvalidAmount)
	}
	if amount.Cmp(order.PendingAmount) > 0 {
		return fmt.Errorf("amount exceeds pending balance: %w", fault.ErrInvalidAmount)
	}

	newPaid := order.PaidAmount.Add(amount)
	newPending := order.PendingAmount.Sub(amount)
	status := DeriveStatus(newPaid, newPending)

	res := tx.Model(&models.Order{}).
		Where("id = ? AND pending_amount = ?", order.ID, order.PendingAmount).
		Updates(map[string]interface{}{
			"paid_amount":    newPaid,
			"pending_amount": newPending,
			"payment_status": status,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("update order balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleBalance
	}

	order.PaidAmount = newPaid
	order.PendingAmount = newPending
	order.PaymentStatus = status
	return nil
}

// PendingTotal sums the open pending debt of one customer.
func (s *Service) PendingTotal(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := s.db.WithContext(ctx).Model(&models.Order{}).
		Select("COALESCE(SUM(pending_amount), 0) as total").
		Where("customer_id = ? AND payment_status <> ?", customerID, models.PaymentStatusPaid).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum pending amount: %w", err)
	}
	return row.Total, nil
}
