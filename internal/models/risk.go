package models

import "time"

// RiskStatus enumerates the lifecycle of a registered risk.
type RiskStatus string

const (
	RiskOpen      RiskStatus = "OPEN"
	RiskMitigated RiskStatus = "MITIGATED"
	RiskClosed    RiskStatus = "CLOSED"
)

// RiskSeverity grades the impact of a risk.
type RiskSeverity string

const (
	SeverityLow      RiskSeverity = "LOW"
	SeverityMedium   RiskSeverity = "MEDIUM"
	SeverityHigh     RiskSeverity = "HIGH"
	SeverityCritical RiskSeverity = "CRITICAL"
)

// Risk is a governed record on the risk register. Field edits route through
// the change proposal engine rather than direct updates.
type Risk struct {
	BaseModel

	Reference   string       `gorm:"uniqueIndex;not null" json:"reference"`
	Title       string       `gorm:"not null" json:"title"`
	Description string       `json:"description"`
	Severity    RiskSeverity `gorm:"not null;default:MEDIUM" json:"severity"`
	Status      RiskStatus   `gorm:"not null;index;default:OPEN" json:"status"`

	OwnerID    *string    `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	Owner      *User      `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	ReviewDate *time.Time `json:"review_date,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`

	// Records falling under the senior managers & certification regime need
	// the manage:smcr permission for review decisions.
	SMCR bool `gorm:"default:false" json:"smcr"`
}
