package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"uniqueIndex;not null"`
	Email     string `gorm:"uniqueIndex;not null"`
	Password  string `gorm:"not null"`
	Firstname string `gorm:"not null"`
	Lastname  string `gorm:"not null"`
	RoleID    int32  `gorm:"not null"`
	Role      Role   `gorm:"foreignKey:RoleID"`
	IsActive  bool   `gorm:"default:false"`

	// Credit gating fields. PendingAmountLimit is the maximum aggregate
	// pending-order debt tolerated before new orders are blocked; zero
	// means no limit is configured.
	CreditLimit        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	CreditUsed         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	PendingAmountLimit decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`

	LastLogin *time.Time
	CreatedAt *time.Time `gorm:"autoCreateTime"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime"`
}

type Role struct {
	ID          int32      `gorm:"primaryKey;autoIncrement"`
	RoleName    string     `gorm:"uniqueIndex;not null"`
	AccessLevel int32      `gorm:"not null"`
	CreatedAt   *time.Time `gorm:"autoCreateTime"`
	UpdatedAt   *time.Time `gorm:"autoUpdateTime"`
}
