package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"velora-system/internal/auth"
	"velora-system/internal/database/models"
	"velora-system/internal/fault"
	"velora-system/internal/notify"
	"velora-system/internal/services/audit"
	"velora-system/internal/services/credits"
	"velora-system/internal/services/orders"
)

const maxTxAttempts = 3

const initialPaymentNote = "Initial payment collected on delivery"

// Auditor appends one audit entry per logical action.
type Auditor interface {
	Record(ctx context.Context, actorID int64, action, entityType string, entityID int64, changes map[string]interface{}) error
}

// Service is the sole entry point for turning money received into
// consistent state across the payment, order and audit tables.
type Service struct {
	db       *gorm.DB
	balances *orders.Service
	credits  *credits.Service
	auditor  Auditor
	events   notify.Publisher
}

func NewService(db *gorm.DB, balances *orders.Service, creditSvc *credits.Service, auditor Auditor, events notify.Publisher) *Service {
	return &Service{db: db, balances: balances, credits: creditSvc, auditor: auditor, events: events}
}

type RecordPaymentInput struct {
	OrderID     int64
	Amount      decimal.Decimal
	Method      string
	Notes       string
	ProofURL    string
	PerformedBy auth.Actor
}

type RecordPaymentResult struct {
	OrderID       int64           `json:"order_id"`
	PaymentID     int64           `json:"payment_id"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
	PaymentStatus string          `json:"payment_status"`
}

// RecordPayment inserts the payment row and applies it to the order balance
// in one transaction; either both writes commit or neither does. The audit
// append and the sink event run after commit: their failure is logged and
// flagged, never propagated, so financial correctness outranks audit
// completeness.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (*RecordPaymentResult, error) {
	if !validMethod(in.Method) {
		return nil, fmt.Errorf("payment method %q: %w", in.Method, fault.ErrInvalidMethod)
	}

	var (
		result   RecordPaymentResult
		customer int64
	)
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var order models.Order
			if err := tx.First(&order, in.OrderID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fault.ErrOrderNotFound
				}
				return err
			}
			if !auth.CanManageOrder(in.PerformedBy, &order) {
				return fault.ErrUnauthorized
			}

			payment := models.Payment{
				OrderID:       order.ID,
				Amount:        in.Amount,
				PaymentMethod: in.Method,
				RecordedBy:    in.PerformedBy.ID,
				Status:        models.PaymentCompleted,
				CreatedAt:     time.Now(),
			}
			if in.Notes != "" {
				payment.Notes = &in.Notes
			}
			if in.ProofURL != "" {
				payment.ProofURL = &in.ProofURL
			}
			if err := tx.Create(&payment).Error; err != nil {
				return err
			}

			if err := s.balances.ApplyPayment(tx, &order, in.Amount); err != nil {
				return err
			}

			customer = order.CustomerID
			result = RecordPaymentResult{
				OrderID:       order.ID,
				PaymentID:     payment.ID,
				PaidAmount:    order.PaidAmount,
				PendingAmount: order.PendingAmount,
				PaymentStatus: order.PaymentStatus,
			}
			return nil
		})
		if errors.Is(err, orders.ErrStaleBalance) {
			time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
			continue
		}
		if err != nil {
			return nil, classify(err, "record payment")
		}

		s.afterPayment(ctx, in.PerformedBy.ID, customer, &result, in.Amount, in.Method, audit.ActionPaymentRecorded)
		return &result, nil
	}
	return nil, fmt.Errorf("order %d balance contention: %w", in.OrderID, fault.ErrAtomicityFailure)
}

// CollectInitialPayment flips the order's initial payment to collected and
// applies a cash payment of the configured amount, all in one transaction.
func (s *Service) CollectInitialPayment(ctx context.Context, orderID int64, performedBy auth.Actor) (*RecordPaymentResult, error) {
	var (
		result    RecordPaymentResult
		customer  int64
		collected decimal.Decimal
	)
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var order models.Order
			if err := tx.First(&order, orderID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fault.ErrOrderNotFound
				}
				return err
			}
			if !auth.CanManageOrder(performedBy, &order) {
				return fault.ErrUnauthorized
			}
			if order.InitialPaymentRequired == nil || order.InitialPaymentRequired.Sign() <= 0 {
				return fault.ErrNotApplicable
			}
			if order.InitialPaymentStatus == nil || *order.InitialPaymentStatus != models.InitialPaymentNotCollected {
				return fault.ErrAlreadyCollected
			}

			// Guarded flip so two concurrent collectors cannot both apply.
			res := tx.Model(&models.Order{}).
				Where("id = ? AND initial_payment_status = ?", order.ID, models.InitialPaymentNotCollected).
				Update("initial_payment_status", models.InitialPaymentCollected)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fault.ErrAlreadyCollected
			}

			note := initialPaymentNote
			payment := models.Payment{
				OrderID:       order.ID,
				Amount:        *order.InitialPaymentRequired,
				PaymentMethod: models.PaymentMethodCash,
				RecordedBy:    performedBy.ID,
				Notes:         &note,
				Status:        models.PaymentCompleted,
				CreatedAt:     time.Now(),
			}
			if err := tx.Create(&payment).Error; err != nil {
				return err
			}

			if err := s.balances.ApplyPayment(tx, &order, *order.InitialPaymentRequired); err != nil {
				return err
			}

			customer = order.CustomerID
			collected = payment.Amount
			result = RecordPaymentResult{
				OrderID:       order.ID,
				PaymentID:     payment.ID,
				PaidAmount:    order.PaidAmount,
				PendingAmount: order.PendingAmount,
				PaymentStatus: order.PaymentStatus,
			}
			return nil
		})
		if errors.Is(err, orders.ErrStaleBalance) {
			time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
			continue
		}
		if err != nil {
			return nil, classify(err, "collect initial payment")
		}

		s.afterPayment(ctx, performedBy.ID, customer, &result, collected, models.PaymentMethodCash, audit.ActionInitialPaymentCollected)
		return &result, nil
	}
	return nil, fmt.Errorf("order %d balance contention: %w", orderID, fault.ErrAtomicityFailure)
}

// afterPayment runs the degraded-success side effects once the financial
// write has committed.
func (s *Service) afterPayment(ctx context.Context, actorID, customerID int64, result *RecordPaymentResult, amount decimal.Decimal, method, action string) {
	if err := s.auditor.Record(ctx, actorID, action, audit.EntityOrder, result.OrderID, map[string]interface{}{
		"amount":         amount.String(),
		"payment_method": method,
	}); err != nil {
		log.Printf("payment committed but audit entry missing: order=%d: %v", result.OrderID, err)
	}

	s.credits.InvalidatePendingLimit(ctx, customerID)

	if err := s.events.Publish(ctx, notify.EventPaymentReceived, map[string]interface{}{
		"order_id":       result.OrderID,
		"customer_id":    customerID,
		"payment_method": method,
		"pending_amount": result.PendingAmount.String(),
		"payment_status": result.PaymentStatus,
	}); err != nil {
		log.Printf("payment event publish failed: order=%d: %v", result.OrderID, err)
	}
}

func validMethod(method string) bool {
	switch method {
	case models.PaymentMethodCash, models.PaymentMethodBankTransfer, models.PaymentMethodCard, models.PaymentMethodOnline:
		return true
	}
	return false
}

// classify passes domain sentinels through untouched and folds everything
// else into AtomicityFailure: the transaction rolled back, retry is safe.
func classify(err error, op string) error {
	for _, sentinel := range []error{
		fault.ErrUnauthorized, fault.ErrInvalidAmount, fault.ErrInvalidMethod,
		fault.ErrOrderNotFound, fault.ErrNotApplicable, fault.ErrAlreadyCollected,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%s: %v: %w", op, err, fault.ErrAtomicityFailure)
}
