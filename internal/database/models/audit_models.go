package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONMap stores a structured changes payload in a text column.
type JSONMap map[string]interface{}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("failed to scan JSONMap: %v", value)
	}
}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// AuditLog rows are append-only: written once per logical action, queried
// by the export side, never mutated.
type AuditLog struct {
	ID         int64   `gorm:"primaryKey;autoIncrement"`
	UserID     int64   `gorm:"index;not null"` // actor
	Action     string  `gorm:"type:varchar(64);not null"`
	EntityType string  `gorm:"type:varchar(32);index;not null"`
	EntityID   int64   `gorm:"index;not null"`
	Changes    JSONMap `gorm:"type:text"`
	CreatedAt  time.Time
}
