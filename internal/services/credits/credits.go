package credits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"velora-system/internal/database/models"
	"velora-system/internal/fault"
	"velora-system/internal/services/audit"
)

const (
	LimitWithin   = "within_limit"
	LimitNear     = "near_limit"
	LimitExceeded = "exceeded"

	pendingLimitCachePrefix = "credit:pending-limit:"
	pendingLimitCacheTTL    = 5 * time.Minute

	maxBalanceAttempts = 3
)

var nearLimitRatio = decimal.NewFromFloat(0.8)

// Auditor appends one audit entry per logical action.
type Auditor interface {
	Record(ctx context.Context, actorID int64, action, entityType string, entityID int64, changes map[string]interface{}) error
}

// Service is the credit account manager: the only writer of a customer's
// store-credit balance, and the read side of pending-limit gating.
type Service struct {
	db      *gorm.DB
	cache   *redis.Client // optional, nil disables caching
	auditor Auditor
}

func NewService(db *gorm.DB, cache *redis.Client, auditor Auditor) *Service {
	return &Service{db: db, cache: cache, auditor: auditor}
}

type Balance struct {
	Balance       decimal.Decimal `json:"balance"`
	UsedCredit    decimal.Decimal `json:"used_credit"`
	PendingCredit decimal.Decimal `json:"pending_credit"`
}

// GetBalance defaults to all-zero when no account row exists yet; the row
// is only created on first mutation.
func (s *Service) GetBalance(ctx context.Context, userID int64) (*Balance, error) {
	var account models.CreditAccount
	err := s.db.WithContext(ctx).First(&account, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Balance{Balance: decimal.Zero, UsedCredit: decimal.Zero, PendingCredit: decimal.Zero}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credit account %d: %w", userID, fault.ErrAccountUnavailable)
	}
	return &Balance{
		Balance:       account.Balance,
		UsedCredit:    account.UsedCredit,
		PendingCredit: account.PendingCredit,
	}, nil
}

// UpdateCredit applies add, deduct or adjustment to the balance and appends
// the matching CreditTransaction in the same transaction, so replaying all
// transactions always reproduces the balance. The balance write is a
// compare-and-swap on the observed value with bounded retry.
func (s *Service) UpdateCredit(ctx context.Context, userID int64, amount decimal.Decimal, txType, description string, performedBy int64) (decimal.Decimal, error) {
	switch txType {
	case models.CreditTxAdd, models.CreditTxDeduct:
		if amount.Sign() <= 0 {
			return decimal.Zero, fmt.Errorf("%s amount must be positive: %w", txType, fault.ErrInvalidAmount)
		}
	case models.CreditTxAdjustment:
		if amount.Sign() < 0 {
			return decimal.Zero, fmt.Errorf("adjusted balance cannot be negative: %w", fault.ErrInvalidAmount)
		}
	default:
		return decimal.Zero, fmt.Errorf("unknown credit transaction type %q: %w", txType, fault.ErrInvalidAmount)
	}

	var newBalance decimal.Decimal
	for attempt := 1; attempt <= maxBalanceAttempts; attempt++ {
		account, err := s.loadOrCreateAccount(ctx, userID)
		if err != nil {
			return decimal.Zero, err
		}

		var delta decimal.Decimal
		switch txType {
		case models.CreditTxAdd:
			newBalance = account.Balance.Add(amount)
			delta = amount
		case models.CreditTxDeduct:
			newBalance = account.Balance.Sub(amount)
			if newBalance.Sign() < 0 {
				return decimal.Zero, fmt.Errorf("deduction exceeds balance: %w", fault.ErrInvalidAmount)
			}
			delta = amount.Neg()
		case models.CreditTxAdjustment:
			// The transaction records the delta, not the target value,
			// so the ledger stays additive and replayable.
			newBalance = amount
			delta = amount.Sub(account.Balance)
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.CreditAccount{}).
				Where("user_id = ? AND balance = ?", userID, account.Balance).
				Updates(map[string]interface{}{
					"balance":    newBalance,
					"updated_at": time.Now(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errStaleCredit
			}
			return tx.Create(&models.CreditTransaction{
				UserID:      userID,
				Amount:      delta,
				Type:        txType,
				Description: description,
				PerformedBy: performedBy,
				CreatedAt:   time.Now(),
			}).Error
		})
		if errors.Is(err, errStaleCredit) {
			time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
			continue
		}
		if err != nil {
			return decimal.Zero, fmt.Errorf("update credit for user %d: %v: %w", userID, err, fault.ErrAtomicityFailure)
		}

		if err := s.auditor.Record(ctx, performedBy, audit.ActionCreditUpdated, audit.EntityCreditAccount, userID, map[string]interface{}{
			"type":        txType,
			"amount":      amount.String(),
			"new_balance": newBalance.String(),
		}); err != nil {
			log.Printf("credit update committed but audit entry missing: user=%d: %v", userID, err)
		}
		return newBalance, nil
	}
	return decimal.Zero, fmt.Errorf("credit balance contention for user %d: %w", userID, fault.ErrAtomicityFailure)
}

var errStaleCredit = errors.New("credit balance changed concurrently")

func (s *Service) loadOrCreateAccount(ctx context.Context, userID int64) (*models.CreditAccount, error) {
	var account models.CreditAccount
	err := s.db.WithContext(ctx).First(&account, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		account = models.CreditAccount{
			UserID:        userID,
			Balance:       decimal.Zero,
			UsedCredit:    decimal.Zero,
			PendingCredit: decimal.Zero,
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		}
		// A concurrent first mutation may win the insert; treat that as
		// having loaded the row it created.
		if createErr := s.db.WithContext(ctx).FirstOrCreate(&account, "user_id = ?", userID).Error; createErr != nil {
			return nil, fmt.Errorf("create credit account %d: %v: %w", userID, createErr, fault.ErrAccountUnavailable)
		}
		return &account, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credit account %d: %v: %w", userID, err, fault.ErrAccountUnavailable)
	}
	return &account, nil
}

type PendingLimitStatus struct {
	Status       string          `json:"status"`
	PendingTotal decimal.Decimal `json:"pending_total"`
	Limit        decimal.Decimal `json:"limit"`
}

// CheckPendingLimitStatus compares a customer's aggregate open-order debt
// against their pending_amount_limit. Pure read; results are cached briefly
// and invalidated whenever a payment changes the pending total.
func (s *Service) CheckPendingLimitStatus(ctx context.Context, userID int64) (*PendingLimitStatus, error) {
	cacheKey := fmt.Sprintf("%s%d", pendingLimitCachePrefix, userID)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var cached PendingLimitStatus
			if json.Unmarshal([]byte(raw), &cached) == nil {
				return &cached, nil
			}
		}
	}

	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "pending_amount_limit").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.ErrAccountNotFound
		}
		return nil, fmt.Errorf("load user %d: %w", userID, fault.ErrAccountUnavailable)
	}

	var row struct {
		Total decimal.Decimal
	}
	err := s.db.WithContext(ctx).Model(&models.Order{}).
		Select("COALESCE(SUM(pending_amount), 0) as total").
		Where("customer_id = ? AND payment_status <> ?", userID, models.PaymentStatusPaid).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("sum pending orders for user %d: %w", userID, fault.ErrAccountUnavailable)
	}

	status := &PendingLimitStatus{
		Status:       LimitWithin,
		PendingTotal: row.Total,
		Limit:        user.PendingAmountLimit,
	}
	if user.PendingAmountLimit.Sign() > 0 {
		switch {
		case row.Total.Cmp(user.PendingAmountLimit) >= 0:
			status.Status = LimitExceeded
		case row.Total.Cmp(user.PendingAmountLimit.Mul(nearLimitRatio)) >= 0:
			status.Status = LimitNear
		}
	}

	if s.cache != nil {
		if b, err := json.Marshal(status); err == nil {
			s.cache.Set(ctx, cacheKey, b, pendingLimitCacheTTL)
		}
	}
	return status, nil
}

// InvalidatePendingLimit drops the cached limit status after a payment
// changed the customer's pending total.
func (s *Service) InvalidatePendingLimit(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	s.cache.Del(ctx, fmt.Sprintf("%s%d", pendingLimitCachePrefix, userID))
}
