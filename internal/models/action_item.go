package models

import "time"

// ActionStatus enumerates the lifecycle of a remedial action. COMPLETED is
// terminal and stamps CompletedAt when reached through an approved proposal.
type ActionStatus string

const (
	ActionOpen       ActionStatus = "OPEN"
	ActionInProgress ActionStatus = "IN_PROGRESS"
	ActionCompleted  ActionStatus = "COMPLETED"
)

// ActionItem is a governed record tracking remedial work arising from risks
// and control failures.
type ActionItem struct {
	BaseModel

	Reference   string       `gorm:"uniqueIndex;not null" json:"reference"`
	Title       string       `gorm:"not null" json:"title"`
	Description string       `json:"description"`
	Status      ActionStatus `gorm:"not null;index;default:OPEN" json:"status"`

	OwnerID     *string    `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	Owner       *User      `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
