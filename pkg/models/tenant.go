package models

import "time"

// TenantStatus is the lifecycle state of a tenant.
type TenantStatus string

const (
	// StatusActive tenants are resolvable and bindable per request.
	StatusActive TenantStatus = "active"
	// StatusInactive tenants keep their data but are never bound to requests.
	StatusInactive TenantStatus = "inactive"
	// StatusPending marks a tenant whose schema was re-provisioned by a repair
	// pass and awaits operator re-activation.
	StatusPending TenantStatus = "pending"
)

// IsValid reports whether s is a known status value.
func (s TenantStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusPending:
		return true
	}
	return false
}

// Assignable reports whether s may be set through the update API.
// Pending is reserved for the repair path.
func (s TenantStatus) Assignable() bool {
	return s == StatusActive || s == StatusInactive
}

// Tenant maps an external entity to its provisioned database schema.
type Tenant struct {
	ID         string       `db:"id"          json:"id"`
	EntityID   string       `db:"entity_id"   json:"entity_id"`
	EntityName string       `db:"entity_name" json:"entity_name"`
	SchemaName string       `db:"schema_name" json:"schema_name"`
	Status     TenantStatus `db:"status"      json:"status"`
	CreatedAt  time.Time    `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at"  json:"updated_at"`
}
