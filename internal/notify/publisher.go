package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	EventPaymentReceived    = "payment.received"
	EventReminderScheduled  = "reminder.scheduled"
	EventPaymentOverdue     = "payment.overdue"
	EventLimitWarning       = "credit.limit_warning"
	EventLimitExceeded      = "credit.limit_exceeded"
	EventReconciliationFlag = "reconciliation.flag"
)

// Publisher is the notification sink the reconciliation core writes to.
// Delivery is owned by the consumer; the core never fails an operation on
// sink errors.
type Publisher interface {
	Publish(ctx context.Context, event string, payload map[string]interface{}) error
}

type envelope struct {
	Event     string                 `json:"event"`
	Payload   map[string]interface{} `json:"payload"`
	EmittedAt time.Time              `json:"emitted_at"`
}

type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event string, payload map[string]interface{}) error {
	b, err := json.Marshal(envelope{Event: event, Payload: payload, EmittedAt: time.Now()})
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// LogPublisher is the fallback sink when redis is not configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher { return &LogPublisher{} }

func (p *LogPublisher) Publish(_ context.Context, event string, payload map[string]interface{}) error {
	log.Printf("notify: %s %v", event, payload)
	return nil
}
