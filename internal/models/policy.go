package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Policy effect constants
const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
)

// Policy is an attribute-based access rule. Policies are authored by an
// administrative collaborator and read-only for the decision core; the
// condition tree is stored as JSONB and interpreted at evaluation time.
type Policy struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID     string         `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	Name         string         `gorm:"type:varchar(255);not null" json:"name"`
	BusinessCode string         `gorm:"type:varchar(100);not null;index" json:"businessCode"`
	Action       string         `gorm:"type:varchar(100);not null" json:"action"`
	ResourceType string         `gorm:"type:varchar(50)" json:"resourceType,omitempty"`
	Conditions   datatypes.JSON `gorm:"type:jsonb" json:"conditions,omitempty"`
	Effect       string         `gorm:"type:varchar(10);not null;default:'allow'" json:"effect"`
	Priority     int            `gorm:"default:0" json:"priority"`
	IsActive     bool           `gorm:"default:true" json:"isActive"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the table name for Policy
func (Policy) TableName() string {
	return "policies"
}

// ConditionTree parses the stored JSONB condition tree. A policy without
// conditions returns (nil, nil) and is treated as matching unconditionally.
func (p *Policy) ConditionTree() (*ConditionNode, error) {
	if len(p.Conditions) == 0 || string(p.Conditions) == "null" {
		return nil, nil
	}
	var node ConditionNode
	if err := json.Unmarshal(p.Conditions, &node); err != nil {
		return nil, err
	}
	return &node, nil
}
