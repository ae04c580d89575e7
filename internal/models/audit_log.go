package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	apperrors "github.com/veritrail/veritrail/pkg/errors"
)

// AuditLog is the append-only ledger of privileged actions. The actor's role
// is captured at write time so entries stay meaningful after role changes,
// and entries outlive the entities they describe.
//
// Immutability is enforced twice: storage-level triggers installed by the
// migration layer reject UPDATE/DELETE, and the GORM hooks below refuse the
// same operations before they reach the database.
type AuditLog struct {
	ID string `gorm:"primaryKey;type:uuid" json:"id"`

	ActorID   *string `gorm:"type:uuid;index" json:"actor_id"`
	Actor     *User   `gorm:"foreignKey:ActorID" json:"actor,omitempty"`
	ActorName string  `json:"actor_name"`
	ActorRole Role    `json:"actor_role"`

	Action     string `gorm:"not null;index" json:"action"`
	EntityKind string `gorm:"index" json:"entity_kind,omitempty"`
	EntityID   string `gorm:"index" json:"entity_id,omitempty"`

	Payload  datatypes.JSON `json:"payload,omitempty"`
	ReportID *string        `gorm:"type:uuid;index" json:"report_id,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate assigns an identifier. CreatedAt is left to GORM unless a
// trusted internal caller supplied an explicit timestamp.
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// BeforeUpdate refuses every update. The ledger is append-only.
func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error {
	return apperrors.ErrImmutableRecord
}

// BeforeDelete refuses every delete. The ledger is append-only.
func (a *AuditLog) BeforeDelete(tx *gorm.DB) error {
	return apperrors.ErrImmutableRecord
}
