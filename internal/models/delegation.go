package models

import (
	"time"

	"github.com/google/uuid"
)

// StandingDelegation is a time-windowed transfer of approval authority: the
// delegate may act on any step the delegator is eligible for while the
// window is open. Step-level one-off delegation lives on the request itself.
type StandingDelegation struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID     string     `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	DelegatorID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"delegatorId"`
	DelegateID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"delegateId"`
	FlowID       *uuid.UUID `gorm:"type:uuid;index" json:"flowId,omitempty"` // nil = all flows
	Reason       string     `gorm:"type:text" json:"reason,omitempty"`
	StartDate    time.Time  `gorm:"not null" json:"startDate"`
	EndDate      time.Time  `gorm:"not null" json:"endDate"`
	IsActive     bool       `gorm:"default:true" json:"isActive"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
	RevokedBy    *uuid.UUID `gorm:"type:uuid" json:"revokedBy,omitempty"`
	RevokeReason string     `gorm:"type:text" json:"revokeReason,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table name for StandingDelegation
func (StandingDelegation) TableName() string {
	return "standing_delegations"
}

// IsValidAt checks if the delegation window covers the given instant.
func (d *StandingDelegation) IsValidAt(now time.Time) bool {
	return d.IsActive &&
		d.RevokedAt == nil &&
		now.After(d.StartDate) &&
		now.Before(d.EndDate)
}

// Delegation status constants
const (
	DelegationStatusActive    = "active"
	DelegationStatusExpired   = "expired"
	DelegationStatusRevoked   = "revoked"
	DelegationStatusScheduled = "scheduled"
)

// GetStatus returns the current status of the delegation
func (d *StandingDelegation) GetStatus(now time.Time) string {
	if d.RevokedAt != nil || !d.IsActive {
		return DelegationStatusRevoked
	}
	if now.Before(d.StartDate) {
		return DelegationStatusScheduled
	}
	if now.After(d.EndDate) {
		return DelegationStatusExpired
	}
	return DelegationStatusActive
}
