package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ApprovalHistory is the append-only audit ledger for approval requests.
// Exactly one row is written per accepted transition; rows are never updated.
type ApprovalHistory struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RequestID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"requestId"`
	StepID      *uuid.UUID     `gorm:"type:uuid" json:"stepId,omitempty"`
	Action      string         `gorm:"type:varchar(30);not null" json:"action"`
	ActedBy     uuid.UUID      `gorm:"type:uuid;not null;index" json:"actedBy"`
	ActedAt     time.Time      `gorm:"not null" json:"actedAt"`
	Comment     string         `gorm:"type:text" json:"comment,omitempty"`
	DelegatedTo *uuid.UUID     `gorm:"type:uuid" json:"delegatedTo,omitempty"`
	DelegatedAt *time.Time     `json:"delegatedAt,omitempty"`
	Metadata    datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName returns the table name for ApprovalHistory
func (ApprovalHistory) TableName() string {
	return "approval_history"
}

// History action constants
const (
	ActionSubmit   = "submit"
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionReturn   = "return"
	ActionCancel   = "cancel"
	ActionDelegate = "delegate"
)
