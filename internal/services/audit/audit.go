package audit

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"velora-system/internal/database/models"
	"velora-system/internal/notify"
)

const (
	ActionPaymentRecorded         = "PAYMENT_RECORDED"
	ActionInitialPaymentCollected = "INITIAL_PAYMENT_COLLECTED"
	ActionCreditUpdated           = "CREDIT_UPDATED"
	ActionDueDateSet              = "PAYMENT_DUE_DATE_SET"
)

const (
	EntityOrder         = "order"
	EntityCreditAccount = "credit_account"
)

// Recorder appends one audit row per logical action. A failed append never
// rolls back the financial write it documents; it is logged and flagged to
// the notification sink for reconciliation instead.
type Recorder struct {
	db     *gorm.DB
	events notify.Publisher
}

func NewRecorder(db *gorm.DB, events notify.Publisher) *Recorder {
	return &Recorder{db: db, events: events}
}

func (r *Recorder) Record(ctx context.Context, actorID int64, action, entityType string, entityID int64, changes map[string]interface{}) error {
	entry := models.AuditLog{
		UserID:     actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    models.JSONMap(changes),
		CreatedAt:  time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		log.Printf("audit append failed: action=%s entity=%s/%d: %v", action, entityType, entityID, err)
		_ = r.events.Publish(ctx, notify.EventReconciliationFlag, map[string]interface{}{
			"reason":      "audit_append_failed",
			"action":      action,
			"entity_type": entityType,
			"entity_id":   entityID,
		})
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}

func (r *Recorder) ListByEntity(ctx context.Context, entityType string, entityID int64) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at desc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	return entries, nil
}
