package reminders

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
)

const (
	PaymentTypeInitial = "initial"
	PaymentTypePending = "pending"

	UrgencyOverdue  = "overdue"
	UrgencyDueSoon  = "due_soon"
	UrgencyUpcoming = "upcoming"
	UrgencyNone     = ""

	dueSoonDays  = 3
	upcomingDays = 30
)

// Auditor appends one audit entry per logical action.
type Auditor interface {
	Record(ctx context.Context, actorID int64, action, entityType string, entityID int64, changes map[string]interface{}) error
}

// Service owns payment due dates, reminder rows and urgency classification.
type Service struct {
	db      *gorm.DB
	auditor Auditor
	events  notify.Publisher
}

func NewService(db *gorm.DB, auditor Auditor, events notify.Publisher) *Service {
	return &Service{db: db, auditor: auditor, events: events}
}

// SetPaymentDueDate writes the due-date column for the given payment type
// and creates the matching reminder. The reminder insert after the due-date
// write is degraded-success: its failure is flagged, not propagated.
func (s *Service) SetPaymentDueDate(ctx context.Context, orderID int64, dueDate, paymentType string, performedBy auth.Actor) (int64, error) {
	due, err := parseDueDate(dueDate)
	if err != nil {
		return 0, err
	}
	if startOfDay(due).Before(startOfDay(time.Now())) {
		return 0, fmt.Errorf("due date %s is in the past: %w", dueDate, fault.ErrInvalidDate)
	}

	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fault.ErrOrderNotFound
		}
		return 0, fmt.Errorf("load order %d: %w", orderID, err)
	}
	if !auth.CanManageOrder(performedBy, &order) {
		return 0, fault.ErrUnauthorized
	}

	var (
		column       string
		reminderType string
		amount       decimal.Decimal
	)
	switch paymentType {
	case PaymentTypeInitial:
		if order.InitialPaymentRequired == nil || order.InitialPaymentRequired.Sign() <= 0 {
			return 0, fault.ErrNotApplicable
		}
		column = "initial_payment_due_date"
		reminderType = models.ReminderInitialDue
		amount = *order.InitialPaymentRequired
	case PaymentTypePending:
		column = "pending_payment_due_date"
		reminderType = models.ReminderPendingDue
		amount = order.PendingAmount
	default:
		return 0, fmt.Errorf("unknown payment type %q: %w", paymentType, fault.ErrInvalidDate)
	}

	if err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{column: due, "updated_at": time.Now()}).Error; err != nil {
		return 0, fmt.Errorf("set due date on order %d: %w", orderID, err)
	}

	reminder := models.PaymentReminder{
		OrderID:      order.ID,
		UserID:       order.CustomerID,
		ReminderType: reminderType,
		DueDate:      due,
		Amount:       amount,
		CreatedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&reminder).Error; err != nil {
		log.Printf("due date set but reminder insert failed: order=%d: %v", order.ID, err)
		_ = s.events.Publish(ctx, notify.EventReconciliationFlag, map[string]interface{}{
			"reason":   "reminder_insert_failed",
			"order_id": order.ID,
			"type":     reminderType,
		})
		return 0, nil
	}

	if err := s.auditor.Record(ctx, performedBy.ID, audit.ActionDueDateSet, audit.EntityOrder, order.ID, map[string]interface{}{
		"payment_type": paymentType,
		"due_date":     due.Format(time.RFC3339),
		"amount":       amount.String(),
	}); err != nil {
		log.Printf("due date set but audit entry missing: order=%d: %v", order.ID, err)
	}
	if err := s.events.Publish(ctx, notify.EventReminderScheduled, map[string]interface{}{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"type":        reminderType,
		"due_date":    due.Format(time.RFC3339),
	}); err != nil {
		log.Printf("reminder event publish failed: order=%d: %v", order.ID, err)
	}
	return reminder.ID, nil
}

// Classify is the pure urgency function driving badges and notification
// severity. Only money still owed is surfaced: an uncollected initial
// payment counts against the initial due date, a pending balance against
// the pending due date; with both, the earlier date wins.
func Classify(order *models.Order, now time.Time) string {
	due, ok := nextDueDate(order)
	if !ok {
		return UrgencyNone
	}

	today := startOfDay(now)
	day := startOfDay(due)
	switch {
	case day.Before(today):
		return UrgencyOverdue
	case !day.After(today.AddDate(0, 0, dueSoonDays)):
		return UrgencyDueSoon
	case !day.After(today.AddDate(0, 0, upcomingDays)):
		return UrgencyUpcoming
	default:
		return UrgencyNone
	}
}

func nextDueDate(order *models.Order) (time.Time, bool) {
	var due time.Time
	found := false
	if order.InitialPaymentDueDate != nil && initialUncollected(order) {
		due = *order.InitialPaymentDueDate
		found = true
	}
	if order.PendingPaymentDueDate != nil && order.PendingAmount.Sign() > 0 {
		if !found || order.PendingPaymentDueDate.Before(due) {
			due = *order.PendingPaymentDueDate
			found = true
		}
	}
	return due, found
}

func initialUncollected(order *models.Order) bool {
	return order.InitialPaymentRequired != nil &&
		order.InitialPaymentRequired.Sign() > 0 &&
		order.InitialPaymentStatus != nil &&
		*order.InitialPaymentStatus == models.InitialPaymentNotCollected
}

// MarkSeen sets is_seen once; repeated calls are no-ops, the flag is never
// unset.
func (s *Service) MarkSeen(ctx context.Context, reminderID int64) error {
	return s.monotonicFlag(ctx, reminderID, "is_seen", "seen_at")
}

// Acknowledge is terminal and does not require the reminder to have been
// seen first.
func (s *Service) Acknowledge(ctx context.Context, reminderID int64) error {
	return s.monotonicFlag(ctx, reminderID, "is_acknowledged", "acknowledged_at")
}

func (s *Service) monotonicFlag(ctx context.Context, reminderID int64, flagCol, atCol string) error {
	res := s.db.WithContext(ctx).Model(&models.PaymentReminder{}).
		Where(fmt.Sprintf("id = ? AND %s = ?", flagCol), reminderID, false).
		Updates(map[string]interface{}{flagCol: true, atCol: time.Now()})
	if res.Error != nil {
		return fmt.Errorf("update reminder %d: %w", reminderID, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.PaymentReminder{}).
			Where("id = ?", reminderID).Count(&count).Error; err != nil {
			return fmt.Errorf("check reminder %d: %w", reminderID, err)
		}
		if count == 0 {
			return fault.ErrReminderNotFound
		}
		// Already set; the transition is one-way, so this is fine.
	}
	return nil
}

type OrderSummary struct {
	OrderID       int64           `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	CustomerID    int64           `json:"customer_id"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
	PaymentStatus string          `json:"payment_status"`
	DueDate       time.Time       `json:"due_date"`
	Urgency       string          `json:"urgency"`
}

// UpcomingPayments lists orders owed within the next 30 days, scoped to
// what the viewer may see.
func (s *Service) UpcomingPayments(ctx context.Context, viewer auth.Actor) ([]OrderSummary, error) {
	return s.listByUrgency(ctx, viewer, UrgencyDueSoon, UrgencyUpcoming)
}

// OverduePayments lists orders whose due date passed with money still owed.
func (s *Service) OverduePayments(ctx context.Context, viewer auth.Actor) ([]OrderSummary, error) {
	return s.listByUrgency(ctx, viewer, UrgencyOverdue)
}

func (s *Service) listByUrgency(ctx context.Context, viewer auth.Actor, wanted ...string) ([]OrderSummary, error) {
	var candidates []models.Order
	query := auth.ScopeOrders(s.db.WithContext(ctx).Model(&models.Order{}), viewer).
		Where("(pending_payment_due_date IS NOT NULL AND pending_amount > 0)" +
			" OR (initial_payment_due_date IS NOT NULL AND initial_payment_status = 'not_collected')").
		Order("id asc")
	if err := query.Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("query due orders: %w", err)
	}

	now := time.Now()
	summaries := make([]OrderSummary, 0, len(candidates))
	for i := range candidates {
		o := &candidates[i]
		urgency := Classify(o, now)
		if !contains(wanted, urgency) {
			continue
		}
		due, _ := nextDueDate(o)
		summaries = append(summaries, OrderSummary{
			OrderID:       o.ID,
			OrderNumber:   o.OrderNumber,
			CustomerID:    o.CustomerID,
			PendingAmount: o.PendingAmount,
			PaymentStatus: o.PaymentStatus,
			DueDate:       due,
			Urgency:       urgency,
		})
	}
	return summaries, nil
}

// UncollectedInitialPayments lists orders still waiting for their
// delivery-time payment, scoped like every other listing.
func (s *Service) UncollectedInitialPayments(ctx context.Context, viewer auth.Actor) ([]OrderSummary, error) {
	var candidates []models.Order
	query := auth.ScopeOrders(s.db.WithContext(ctx).Model(&models.Order{}), viewer).
		Where("initial_payment_required > 0 AND initial_payment_status = ?", models.InitialPaymentNotCollected).
		Order("id asc")
	if err := query.Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("query uncollected initial payments: %w", err)
	}

	now := time.Now()
	summaries := make([]OrderSummary, 0, len(candidates))
	for i := range candidates {
		o := &candidates[i]
		var due time.Time
		if o.InitialPaymentDueDate != nil {
			due = *o.InitialPaymentDueDate
		}
		summaries = append(summaries, OrderSummary{
			OrderID:       o.ID,
			OrderNumber:   o.OrderNumber,
			CustomerID:    o.CustomerID,
			PendingAmount: o.PendingAmount,
			PaymentStatus: o.PaymentStatus,
			DueDate:       due,
			Urgency:       Classify(o, now),
		})
	}
	return summaries, nil
}

// RaiseOverdueReminders creates one overdue reminder per order whose due
// date passed with money still owed, skipping orders that already have one.
// Called by the scheduled worker; returns the reminders it created.
func (s *Service) RaiseOverdueReminders(ctx context.Context) ([]models.PaymentReminder, error) {
	var candidates []models.Order
	err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("(pending_payment_due_date IS NOT NULL AND pending_amount > 0)"+
			" OR (initial_payment_due_date IS NOT NULL AND initial_payment_status = 'not_collected')").
		Where("NOT EXISTS (SELECT 1 FROM payment_reminders r WHERE r.order_id = orders.id AND r.reminder_type = ?)",
			models.ReminderOverdue).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("query overdue candidates: %w", err)
	}

	now := time.Now()
	var created []models.PaymentReminder
	for i := range candidates {
		o := &candidates[i]
		if Classify(o, now) != UrgencyOverdue {
			continue
		}
		due, _ := nextDueDate(o)
		amount := o.PendingAmount
		if initialUncollected(o) && o.InitialPaymentDueDate != nil && startOfDay(*o.InitialPaymentDueDate).Before(startOfDay(now)) {
			amount = *o.InitialPaymentRequired
		}
		reminder := models.PaymentReminder{
			OrderID:      o.ID,
			UserID:       o.CustomerID,
			ReminderType: models.ReminderOverdue,
			DueDate:      due,
			Amount:       amount,
			CreatedAt:    now,
		}
		if err := s.db.WithContext(ctx).Create(&reminder).Error; err != nil {
			log.Printf("overdue reminder insert failed: order=%d: %v", o.ID, err)
			continue
		}
		created = append(created, reminder)

		if err := s.events.Publish(ctx, notify.EventPaymentOverdue, map[string]interface{}{
			"order_id":    o.ID,
			"customer_id": o.CustomerID,
			"due_date":    due.Format(time.RFC3339),
			"amount":      amount.String(),
		}); err != nil {
			log.Printf("overdue event publish failed: order=%d: %v", o.ID, err)
		}
	}
	return created, nil
}

func parseDueDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as ISO-8601: %w", raw, fault.ErrInvalidDate)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
