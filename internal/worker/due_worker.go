package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"velora-system/internal/notify"
	"velora-system/internal/services/credits"
	"velora-system/internal/services/reminders"
)

// DueDateWorker is the scheduled job that turns passed due dates into
// overdue reminders and re-checks pending limits for affected customers.
type DueDateWorker struct {
	reminderSvc *reminders.Service
	creditSvc   *credits.Service
	events      notify.Publisher
	interval    time.Duration
}

func NewDueDateWorker(reminderSvc *reminders.Service, creditSvc *credits.Service, events notify.Publisher, interval time.Duration) *DueDateWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &DueDateWorker{
		reminderSvc: reminderSvc,
		creditSvc:   creditSvc,
		events:      events,
		interval:    interval,
	}
}

func (w *DueDateWorker) Start(ctx context.Context) {
	log.Println("starting due-date worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("due-date worker stopped")
			return
		case <-ticker.C:
			if err := w.runOnce(ctx); err != nil {
				log.Printf("due-date sweep failed: %v", err)
			}
		}
	}
}

func (w *DueDateWorker) runOnce(ctx context.Context) error {
	created, err := w.reminderSvc.RaiseOverdueReminders(ctx)
	if err != nil {
		return fmt.Errorf("raise overdue reminders: %w", err)
	}
	if len(created) > 0 {
		log.Printf("raised %d overdue reminders", len(created))
	}

	seen := make(map[int64]bool)
	for _, reminder := range created {
		if seen[reminder.UserID] {
			continue
		}
		seen[reminder.UserID] = true

		status, err := w.creditSvc.CheckPendingLimitStatus(ctx, reminder.UserID)
		if err != nil {
			log.Printf("pending limit check failed: user=%d: %v", reminder.UserID, err)
			continue
		}

		var event string
		switch status.Status {
		case credits.LimitNear:
			event = notify.EventLimitWarning
		case credits.LimitExceeded:
			event = notify.EventLimitExceeded
		default:
			continue
		}
		if err := w.events.Publish(ctx, event, map[string]interface{}{
			"user_id":       reminder.UserID,
			"pending_total": status.PendingTotal.String(),
			"limit":         status.Limit.String(),
		}); err != nil {
			log.Printf("limit event publish failed: user=%d: %v", reminder.UserID, err)
		}
	}
	return nil
}
