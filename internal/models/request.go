package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// ApprovalRequest tracks one business object moving through an approval
// flow. Requests are mutated only through state machine transitions and are
// never deleted; terminal statuses close the lifecycle.
type ApprovalRequest struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID string    `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	FlowID   uuid.UUID `gorm:"type:uuid;not null;index" json:"flowId"`
	Version  int       `gorm:"not null;default:1" json:"version"` // Optimistic locking

	// Business object under approval (immutable after creation)
	RequestType string         `gorm:"type:varchar(100);not null" json:"requestType"`
	RequestID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"requestId"`
	RequestData datatypes.JSON `gorm:"type:jsonb" json:"requestData,omitempty"`

	Status      string `gorm:"type:varchar(30);not null;default:'pending';index" json:"status"`
	CurrentStep *int   `json:"currentStep,omitempty"`
	Priority    string `gorm:"type:varchar(20);default:'normal'" json:"priority"`
	Reason      string `gorm:"type:text" json:"reason,omitempty"`

	RequestedBy uuid.UUID `gorm:"type:uuid;not null;index" json:"requestedBy"`

	// Terminal actor stamps
	ApprovedBy  *uuid.UUID `gorm:"type:uuid" json:"approvedBy,omitempty"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
	RejectedBy  *uuid.UUID `gorm:"type:uuid" json:"rejectedBy,omitempty"`
	RejectedAt  *time.Time `json:"rejectedAt,omitempty"`
	ReturnedBy  *uuid.UUID `gorm:"type:uuid" json:"returnedBy,omitempty"`
	ReturnedAt  *time.Time `json:"returnedAt,omitempty"`
	CancelledBy *uuid.UUID `gorm:"type:uuid" json:"cancelledBy,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`

	// Step-scoped delegation: reassigned authority for the current step only.
	// Cleared whenever the current step changes.
	DelegatedTo *uuid.UUID `gorm:"type:uuid" json:"delegatedTo,omitempty"`
	DelegatedBy *uuid.UUID `gorm:"type:uuid" json:"delegatedBy,omitempty"`

	CompletedApprovers pq.StringArray `gorm:"type:uuid[]" json:"completedApprovers"`

	// Timing
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
	ExpiredNotifiedAt *time.Time `json:"expiredNotifiedAt,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`

	// Relations
	Flow    *ApprovalFlow     `gorm:"foreignKey:FlowID" json:"flow,omitempty"`
	History []ApprovalHistory `gorm:"foreignKey:RequestID" json:"history,omitempty"`
}

// TableName returns the table name for ApprovalRequest
func (ApprovalRequest) TableName() string {
	return "approval_requests"
}

// Status constants
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusReturned  = "returned"
	StatusCancelled = "cancelled"
)

// Priority constants
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// IsTerminal returns true if the status is a terminal state
func (r *ApprovalRequest) IsTerminal() bool {
	return r.Status == StatusApproved ||
		r.Status == StatusRejected ||
		r.Status == StatusReturned ||
		r.Status == StatusCancelled
}
