package auth

import (
	"gorm.io/gorm"

	"velora-system/internal/database/models"
)

// Staff and customer role names as stored in the roles table.
const (
	RoleAdmin         = "admin"
	RoleSubAdmin      = "sub_admin"
	RoleSalesman      = "salesman"
	RoleLocalCustomer = "local_customer"
	RoleRetailer      = "retailer"
	RoleBeautyParlor  = "beauty_parlor"
)

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	ID   int64
	Role string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSubAdmin
}

func (a Actor) IsStaff() bool {
	return a.IsAdmin() || a.Role == RoleSalesman
}

func (a Actor) IsCustomer() bool {
	switch a.Role {
	case RoleLocalCustomer, RoleRetailer, RoleBeautyParlor:
		return true
	}
	return false
}

// CanManageOrder is the single authorization check consumed by every
// balance-affecting operation: admins and sub-admins manage any order, a
// salesman only orders they recorded or are assigned to collect.
func CanManageOrder(actor Actor, order *models.Order) bool {
	if actor.IsAdmin() {
		return true
	}
	if actor.Role != RoleSalesman {
		return false
	}
	if order.RecordedBy != nil && *order.RecordedBy == actor.ID {
		return true
	}
	if order.AssignedTo != nil && *order.AssignedTo == actor.ID {
		return true
	}
	return false
}

// ScopeOrders narrows an orders query to what the viewer may see: staff
// admins see everything, a salesman sees orders they recorded or collect,
// everyone else sees their own orders. Applied identically across every
// listing query.
func ScopeOrders(db *gorm.DB, viewer Actor) *gorm.DB {
	switch {
	case viewer.IsAdmin():
		return db
	case viewer.Role == RoleSalesman:
		return db.Where("recorded_by = ? OR assigned_to = ?", viewer.ID, viewer.ID)
	default:
		return db.Where("customer_id = ?", viewer.ID)
	}
}
