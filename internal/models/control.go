package models

import "time"

// ControlStatus enumerates the lifecycle of a control.
type ControlStatus string

const (
	ControlActive  ControlStatus = "ACTIVE"
	ControlLapsed  ControlStatus = "LAPSED"
	ControlRetired ControlStatus = "RETIRED"
)

// Control is a governed record describing a mitigating control. Field edits
// route through the change proposal engine.
type Control struct {
	BaseModel

	Reference   string        `gorm:"uniqueIndex;not null" json:"reference"`
	Title       string        `gorm:"not null" json:"title"`
	Description string        `json:"description"`
	Status      ControlStatus `gorm:"not null;index;default:ACTIVE" json:"status"`

	OwnerID      *string    `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	Owner        *User      `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	LastTestedAt *time.Time `json:"last_tested_at,omitempty"`
}
