package models

import "time"

// AccessRequestStatus enumerates the access request lifecycle.
type AccessRequestStatus string

const (
	AccessRequestPending  AccessRequestStatus = "PENDING"
	AccessRequestApproved AccessRequestStatus = "APPROVED"
	AccessRequestRejected AccessRequestStatus = "REJECTED"
	AccessRequestExpired  AccessRequestStatus = "EXPIRED"
)

// Access request duration bounds, in hours.
const (
	MinAccessDurationHours = 1
	MaxAccessDurationHours = 168
)

// AccessRequest is a time-boxed elevation request. Approval creates a
// matching UserPermission grant; the expiry sweep revokes it once
// GrantedUntil elapses. At most one PENDING row may exist per
// (requester, code, entity) tuple, backed by a partial unique index
// installed in the migration layer.
type AccessRequest struct {
	BaseModel

	RequesterID string `gorm:"type:uuid;not null;index" json:"requester_id"`
	Requester   *User  `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`

	Code          string `gorm:"not null;index" json:"code"`
	Reason        string `gorm:"not null" json:"reason"`
	DurationHours int    `gorm:"not null" json:"duration_hours"`

	// Optional target narrowing the elevation to a single entity.
	EntityKind string `gorm:"index" json:"entity_kind,omitempty"`
	EntityID   string `gorm:"index" json:"entity_id,omitempty"`

	Status       AccessRequestStatus `gorm:"not null;index;default:PENDING" json:"status"`
	ReviewerID   *string             `gorm:"type:uuid" json:"reviewer_id,omitempty"`
	Reviewer     *User               `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
	DecidedAt    *time.Time          `json:"decided_at,omitempty"`
	GrantedUntil *time.Time          `gorm:"index" json:"granted_until,omitempty"`
}
