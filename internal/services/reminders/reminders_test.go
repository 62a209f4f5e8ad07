package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"velora-system/internal/auth"
	"velora-system/internal/database/models"
	"velora-system/internal/fault"
	"velora-system/internal/notify"
	"velora-system/internal/services/audit"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Order{}, &models.PaymentReminder{}, &models.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	return NewService(db, audit.NewRecorder(db, notify.NewLogPublisher()), notify.NewLogPublisher())
}

type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) Publish(ctx context.Context, event string, payload map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

type orderSpec struct {
	number          string
	customerID      int64
	pending         int64
	recordedBy      *int64
	initialRequired *int64
	initialDue      *time.Time
	pendingDue      *time.Time
}

func seedOrder(t *testing.T, db *gorm.DB, spec orderSpec) *models.Order {
	t.Helper()
	pending := decimal.NewFromInt(spec.pending)
	paid := decimal.Zero
	total := pending
	status := models.PaymentStatusUnpaid
	if spec.pending == 0 {
		total = decimal.NewFromInt(1000)
		paid = total
		status = models.PaymentStatusPaid
	}
	order := models.Order{
		OrderNumber:           spec.number,
		CustomerID:            spec.customerID,
		RecordedBy:            spec.recordedBy,
		TotalAmount:           total,
		PaidAmount:            paid,
		PendingAmount:         pending,
		PaymentStatus:         status,
		InitialPaymentDueDate: spec.initialDue,
		PendingPaymentDueDate: spec.pendingDue,
		CreatedAt:             time.Now(),
		UpdatedAt:             time.Now(),
	}
	if spec.initialRequired != nil {
		required := decimal.NewFromInt(*spec.initialRequired)
		initialStatus := models.InitialPaymentNotCollected
		order.InitialPaymentRequired = &required
		order.InitialPaymentStatus = &initialStatus
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return &order
}

func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func daysFromNow(days int) time.Time {
	return time.Now().AddDate(0, 0, days)
}

var adminActor = auth.Actor{ID: 1, Role: auth.RoleAdmin}

func TestClassify(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		spec orderSpec
		want string
	}{
		{
			name: "pending due yesterday is overdue",
			spec: orderSpec{pending: 2000, pendingDue: timePtr(daysFromNow(-1))},
			want: UrgencyOverdue,
		},
		{
			name: "pending due in two days is due soon",
			spec: orderSpec{pending: 2000, pendingDue: timePtr(daysFromNow(2))},
			want: UrgencyDueSoon,
		},
		{
			name: "pending due in ten days is upcoming",
			spec: orderSpec{pending: 2000, pendingDue: timePtr(daysFromNow(10))},
			want: UrgencyUpcoming,
		},
		{
			name: "pending due in sixty days is not surfaced",
			spec: orderSpec{pending: 2000, pendingDue: timePtr(daysFromNow(60))},
			want: UrgencyNone,
		},
		{
			name: "paid order has no urgency even with a past date",
			spec: orderSpec{pending: 0, pendingDue: timePtr(daysFromNow(-5))},
			want: UrgencyNone,
		},
		{
			name: "no due date means no urgency",
			spec: orderSpec{pending: 2000},
			want: UrgencyNone,
		},
		{
			name: "uncollected initial payment overdue",
			spec: orderSpec{pending: 5000, initialRequired: int64Ptr(1000), initialDue: timePtr(daysFromNow(-2))},
			want: UrgencyOverdue,
		},
		{
			name: "earlier of two dates wins",
			spec: orderSpec{
				pending:         5000,
				initialRequired: int64Ptr(1000),
				initialDue:      timePtr(daysFromNow(1)),
				pendingDue:      timePtr(daysFromNow(20)),
			},
			want: UrgencyDueSoon,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := buildOrder(tc.spec)
			if got := Classify(order, now); got != tc.want {
				t.Errorf("Classify = %q, want %q", got, tc.want)
			}
		})
	}
}

// buildOrder mirrors seedOrder without touching the database, for the pure
// classification table.
func buildOrder(spec orderSpec) *models.Order {
	order := &models.Order{
		PendingAmount:         decimal.NewFromInt(spec.pending),
		InitialPaymentDueDate: spec.initialDue,
		PendingPaymentDueDate: spec.pendingDue,
	}
	if spec.initialRequired != nil {
		required := decimal.NewFromInt(*spec.initialRequired)
		status := models.InitialPaymentNotCollected
		order.InitialPaymentRequired = &required
		order.InitialPaymentStatus = &status
	}
	return order
}

func TestSetPaymentDueDate(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	order := seedOrder(t, db, orderSpec{number: "ORD-3001", customerID: 20, pending: 2000})

	due := daysFromNow(7).Format("2006-01-02")
	reminderID, err := svc.SetPaymentDueDate(context.Background(), order.ID, due, PaymentTypePending, adminActor)
	if err != nil {
		t.Fatalf("set due date: %v", err)
	}
	if reminderID == 0 {
		t.Fatal("reminder id = 0, want created reminder")
	}

	var got models.Order
	if err := db.First(&got, order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if got.PendingPaymentDueDate == nil {
		t.Fatal("pending due date not written")
	}

	var reminder models.PaymentReminder
	if err := db.First(&reminder, reminderID).Error; err != nil {
		t.Fatalf("load reminder: %v", err)
	}
	if reminder.ReminderType != models.ReminderPendingDue {
		t.Errorf("reminder type = %q, want pending_due", reminder.ReminderType)
	}
	if !reminder.Amount.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("reminder amount = %s, want 2000", reminder.Amount)
	}
	if reminder.UserID != 20 {
		t.Errorf("reminder user = %d, want 20", reminder.UserID)
	}

	var entry models.AuditLog
	if err := db.Where("action = ?", audit.ActionDueDateSet).First(&entry).Error; err != nil {
		t.Fatalf("load audit entry: %v", err)
	}
}

func TestSetPaymentDueDateSurvivesReminderFailure(t *testing.T) {
	db := setupTestDB(t)
	events := &eventRecorder{}
	svc := NewService(db, audit.NewRecorder(db, notify.NewLogPublisher()), events)
	order := seedOrder(t, db, orderSpec{number: "ORD-3012", customerID: 20, pending: 2000})

	// Break the reminder table so the insert after the due-date write fails.
	if err := db.Migrator().DropTable(&models.PaymentReminder{}); err != nil {
		t.Fatalf("drop reminder table: %v", err)
	}

	due := daysFromNow(7).Format("2006-01-02")
	reminderID, err := svc.SetPaymentDueDate(context.Background(), order.ID, due, PaymentTypePending, adminActor)
	if err != nil {
		t.Fatalf("due date must succeed despite reminder failure: %v", err)
	}
	if reminderID != 0 {
		t.Errorf("reminder id = %d, want 0 when the insert failed", reminderID)
	}

	var got models.Order
	if err := db.First(&got, order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if got.PendingPaymentDueDate == nil {
		t.Error("pending due date not written")
	}

	if !events.has(notify.EventReconciliationFlag) {
		t.Error("reconciliation.flag event not published")
	}
}

func TestSetPaymentDueDateRejectsPast(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	order := seedOrder(t, db, orderSpec{number: "ORD-3002", customerID: 20, pending: 2000})

	past := daysFromNow(-1).Format("2006-01-02")
	_, err := svc.SetPaymentDueDate(context.Background(), order.ID, past, PaymentTypePending, adminActor)
	if !errors.Is(err, fault.ErrInvalidDate) {
		t.Fatalf("err = %v, want ErrInvalidDate", err)
	}
}

func TestSetPaymentDueDateRejectsGarbage(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	order := seedOrder(t, db, orderSpec{number: "ORD-3003", customerID: 20, pending: 2000})

	_, err := svc.SetPaymentDueDate(context.Background(), order.ID, "next tuesday", PaymentTypePending, adminActor)
	if !errors.Is(err, fault.ErrInvalidDate) {
		t.Fatalf("err = %v, want ErrInvalidDate", err)
	}
}

func TestSetPaymentDueDateUnauthorized(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	order := seedOrder(t, db, orderSpec{
		number: "ORD-3004", customerID: 20, pending: 2000, recordedBy: int64Ptr(7),
	})

	due := daysFromNow(7).Format("2006-01-02")
	_, err := svc.SetPaymentDueDate(context.Background(), order.ID, due, PaymentTypePending,
		auth.Actor{ID: 99, Role: auth.RoleSalesman})
	if !errors.Is(err, fault.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestSetInitialDueDateWithoutConfig(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	order := seedOrder(t, db, orderSpec{number: "ORD-3005", customerID: 20, pending: 2000})

	due := daysFromNow(7).Format("2006-01-02")
	_, err := svc.SetPaymentDueDate(context.Background(), order.ID, due, PaymentTypeInitial, adminActor)
	if !errors.Is(err, fault.ErrNotApplicable) {
		t.Fatalf("err = %v, want ErrNotApplicable", err)
	}
}

func TestSetPaymentDueDateUnknownOrder(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)

	due := daysFromNow(7).Format("2006-01-02")
	_, err := svc.SetPaymentDueDate(context.Background(), 9999, due, PaymentTypePending, adminActor)
	if !errors.Is(err, fault.ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestMarkSeenIsMonotonic(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	reminder := models.PaymentReminder{
		OrderID: 1, UserID: 20, ReminderType: models.ReminderPendingDue,
		DueDate: daysFromNow(5), Amount: decimal.NewFromInt(1000), CreatedAt: time.Now(),
	}
	if err := db.Create(&reminder).Error; err != nil {
		t.Fatalf("seed reminder: %v", err)
	}
	ctx := context.Background()

	if err := svc.MarkSeen(ctx, reminder.ID); err != nil {
		t.Fatalf("first mark seen: %v", err)
	}
	var got models.PaymentReminder
	if err := db.First(&got, reminder.ID).Error; err != nil {
		t.Fatalf("reload reminder: %v", err)
	}
	if !got.IsSeen || got.SeenAt == nil {
		t.Fatalf("is_seen = %v, seen_at = %v, want set", got.IsSeen, got.SeenAt)
	}
	firstSeenAt := *got.SeenAt

	// Repeat must be a no-op and must not move the timestamp.
	if err := svc.MarkSeen(ctx, reminder.ID); err != nil {
		t.Fatalf("second mark seen: %v", err)
	}
	if err := db.First(&got, reminder.ID).Error; err != nil {
		t.Fatalf("reload reminder: %v", err)
	}
	if got.SeenAt == nil || !got.SeenAt.Equal(firstSeenAt) {
		t.Errorf("seen_at moved from %v to %v", firstSeenAt, got.SeenAt)
	}
}

func TestAcknowledgeWithoutSeen(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	reminder := models.PaymentReminder{
		OrderID: 1, UserID: 20, ReminderType: models.ReminderPendingDue,
		DueDate: daysFromNow(5), Amount: decimal.NewFromInt(1000), CreatedAt: time.Now(),
	}
	if err := db.Create(&reminder).Error; err != nil {
		t.Fatalf("seed reminder: %v", err)
	}

	if err := svc.Acknowledge(context.Background(), reminder.ID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	var got models.PaymentReminder
	if err := db.First(&got, reminder.ID).Error; err != nil {
		t.Fatalf("reload reminder: %v", err)
	}
	if !got.IsAcknowledged || got.AcknowledgedAt == nil {
		t.Errorf("acknowledged = %v, want true with timestamp", got.IsAcknowledged)
	}
	if got.IsSeen {
		t.Error("acknowledge must not imply seen")
	}
}

func TestFlagUnknownReminder(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)

	if err := svc.MarkSeen(context.Background(), 9999); !errors.Is(err, fault.ErrReminderNotFound) {
		t.Fatalf("mark seen err = %v, want ErrReminderNotFound", err)
	}
	if err := svc.Acknowledge(context.Background(), 9999); !errors.Is(err, fault.ErrReminderNotFound) {
		t.Fatalf("acknowledge err = %v, want ErrReminderNotFound", err)
	}
}

func TestListingScopes(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	// Customer 20's order, recorded by salesman 7, due soon.
	seedOrder(t, db, orderSpec{
		number: "ORD-3006", customerID: 20, pending: 2000,
		recordedBy: int64Ptr(7), pendingDue: timePtr(daysFromNow(2)),
	})
	// Customer 21's order, different salesman, overdue.
	seedOrder(t, db, orderSpec{
		number: "ORD-3007", customerID: 21, pending: 3000,
		recordedBy: int64Ptr(8), pendingDue: timePtr(daysFromNow(-2)),
	})

	admin, err := svc.UpcomingPayments(ctx, adminActor)
	if err != nil {
		t.Fatalf("admin upcoming: %v", err)
	}
	if len(admin) != 1 || admin[0].OrderNumber != "ORD-3006" {
		t.Errorf("admin upcoming = %+v, want just ORD-3006", admin)
	}

	adminOverdue, err := svc.OverduePayments(ctx, adminActor)
	if err != nil {
		t.Fatalf("admin overdue: %v", err)
	}
	if len(adminOverdue) != 1 || adminOverdue[0].OrderNumber != "ORD-3007" {
		t.Errorf("admin overdue = %+v, want just ORD-3007", adminOverdue)
	}

	salesman, err := svc.UpcomingPayments(ctx, auth.Actor{ID: 7, Role: auth.RoleSalesman})
	if err != nil {
		t.Fatalf("salesman upcoming: %v", err)
	}
	if len(salesman) != 1 || salesman[0].OrderNumber != "ORD-3006" {
		t.Errorf("salesman sees %+v, want only their recorded order", salesman)
	}

	otherSalesman, err := svc.UpcomingPayments(ctx, auth.Actor{ID: 8, Role: auth.RoleSalesman})
	if err != nil {
		t.Fatalf("other salesman upcoming: %v", err)
	}
	if len(otherSalesman) != 0 {
		t.Errorf("salesman 8 sees %+v, want nothing upcoming", otherSalesman)
	}

	customer, err := svc.OverduePayments(ctx, auth.Actor{ID: 21, Role: auth.RoleRetailer})
	if err != nil {
		t.Fatalf("customer overdue: %v", err)
	}
	if len(customer) != 1 || customer[0].CustomerID != 21 {
		t.Errorf("customer sees %+v, want only their own order", customer)
	}
}

func TestUncollectedInitialPayments(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)

	seedOrder(t, db, orderSpec{
		number: "ORD-3008", customerID: 20, pending: 5000, initialRequired: int64Ptr(1000),
	})
	seedOrder(t, db, orderSpec{number: "ORD-3009", customerID: 20, pending: 2000})

	got, err := svc.UncollectedInitialPayments(context.Background(), adminActor)
	if err != nil {
		t.Fatalf("uncollected: %v", err)
	}
	if len(got) != 1 || got[0].OrderNumber != "ORD-3008" {
		t.Errorf("uncollected = %+v, want just ORD-3008", got)
	}
}

func TestRaiseOverdueReminders(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	overdue := seedOrder(t, db, orderSpec{
		number: "ORD-3010", customerID: 20, pending: 3000, pendingDue: timePtr(daysFromNow(-2)),
	})
	seedOrder(t, db, orderSpec{
		number: "ORD-3011", customerID: 21, pending: 2000, pendingDue: timePtr(daysFromNow(10)),
	})

	created, err := svc.RaiseOverdueReminders(ctx)
	if err != nil {
		t.Fatalf("raise overdue: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created = %d reminders, want 1", len(created))
	}
	if created[0].OrderID != overdue.ID {
		t.Errorf("reminder order = %d, want %d", created[0].OrderID, overdue.ID)
	}
	if created[0].ReminderType != models.ReminderOverdue {
		t.Errorf("reminder type = %q, want overdue", created[0].ReminderType)
	}
	if !created[0].Amount.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("reminder amount = %s, want 3000", created[0].Amount)
	}

	// A second sweep must not duplicate the reminder.
	again, err := svc.RaiseOverdueReminders(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second sweep created %d reminders, want 0", len(again))
	}
	var count int64
	db.Model(&models.PaymentReminder{}).Where("reminder_type = ?", models.ReminderOverdue).Count(&count)
	if count != 1 {
		t.Errorf("overdue reminder rows = %d, want 1", count)
	}
}
