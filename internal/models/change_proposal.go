package models

import "time"

// EntityKind tags which governed record a proposal targets.
type EntityKind string

const (
	EntityKindRisk    EntityKind = "risk"
	EntityKindControl EntityKind = "control"
	EntityKindAction  EntityKind = "action"
)

// Valid reports whether the kind names a governed entity.
func (k EntityKind) Valid() bool {
	switch k {
	case EntityKindRisk, EntityKindControl, EntityKindAction:
		return true
	}
	return false
}

// ProposalStatus enumerates the change proposal lifecycle. PENDING is the
// only non-terminal state.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "PENDING"
	ProposalApproved ProposalStatus = "APPROVED"
	ProposalRejected ProposalStatus = "REJECTED"
)

// ChangeProposal records a single proposed field edit on a governed entity.
// Old and new values are stored as opaque text so one table serves every
// entity kind; typing is recovered at apply time through the field allow-list.
type ChangeProposal struct {
	BaseModel

	EntityKind EntityKind `gorm:"not null;index:idx_change_proposals_entity" json:"entity_kind"`
	EntityID   string     `gorm:"type:uuid;not null;index:idx_change_proposals_entity" json:"entity_id"`

	FieldChanged string  `gorm:"not null" json:"field_changed"`
	OldValue     *string `json:"old_value"`
	NewValue     *string `json:"new_value"`

	ProposerID string `gorm:"type:uuid;not null;index" json:"proposer_id"`
	Proposer   *User  `gorm:"foreignKey:ProposerID" json:"proposer,omitempty"`
	Rationale  string `json:"rationale,omitempty"`

	Status     ProposalStatus `gorm:"not null;index;default:PENDING" json:"status"`
	ReviewerID *string        `gorm:"type:uuid" json:"reviewer_id,omitempty"`
	Reviewer   *User          `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
	ReviewNote string         `json:"review_note,omitempty"`
	ReviewedAt *time.Time     `json:"reviewed_at,omitempty"`
}
