package models

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Approver type constants
const (
	ApproverUser        = "user"
	ApproverRole        = "role"
	ApproverDepartment  = "department"
	ApproverSystemLevel = "system_level"
)

// ApprovalFlow defines an ordered multi-step approval template.
type ApprovalFlow struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID    string         `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	Name        string         `gorm:"type:varchar(100);not null" json:"name"`
	DisplayName string         `gorm:"type:varchar(255)" json:"displayName,omitempty"`
	Description string         `gorm:"type:text" json:"description,omitempty"`
	FlowType    string         `gorm:"type:varchar(50);not null" json:"flowType"`
	Priority    int            `gorm:"default:0" json:"priority"`
	IsActive    bool           `gorm:"default:true" json:"isActive"`
	IsSystem    bool           `gorm:"default:false" json:"isSystem"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Steps []ApprovalStep `gorm:"foreignKey:FlowID" json:"steps,omitempty"`
}

// TableName returns the table name for ApprovalFlow
func (ApprovalFlow) TableName() string {
	return "approval_flows"
}

// OrderedSteps returns the flow's active steps sorted by step order.
func (f *ApprovalFlow) OrderedSteps() []ApprovalStep {
	steps := make([]ApprovalStep, 0, len(f.Steps))
	for _, s := range f.Steps {
		if s.IsActive {
			steps = append(steps, s)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })
	return steps
}

// StepAt returns the active step with the given step order, or nil.
func (f *ApprovalFlow) StepAt(order int) *ApprovalStep {
	for i := range f.Steps {
		if f.Steps[i].IsActive && f.Steps[i].StepOrder == order {
			return &f.Steps[i]
		}
	}
	return nil
}

// ApprovalStep is one stage of an approval flow. Approver eligibility is a
// type plus target (a user, role, department or system level) optionally
// narrowed by a per-candidate condition tree.
type ApprovalStep struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	FlowID            uuid.UUID      `gorm:"type:uuid;not null;index" json:"flowId"`
	StepOrder         int            `gorm:"not null" json:"stepOrder"`
	Name              string         `gorm:"type:varchar(255)" json:"name,omitempty"`
	ApproverType      string         `gorm:"type:varchar(20);not null" json:"approverType"`
	ApproverID        *uuid.UUID     `gorm:"type:uuid" json:"approverId,omitempty"`
	SystemLevel       string         `gorm:"type:varchar(50)" json:"systemLevel,omitempty"`
	ApproverCondition datatypes.JSON `gorm:"type:jsonb" json:"approverCondition,omitempty"`
	IsRequired        bool           `gorm:"default:true" json:"isRequired"`
	CanDelegate       bool           `gorm:"default:false" json:"canDelegate"`
	TimeoutHours      *int           `json:"timeoutHours,omitempty"`
	IsActive          bool           `gorm:"default:true" json:"isActive"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table name for ApprovalStep
func (ApprovalStep) TableName() string {
	return "approval_steps"
}

// ConditionTree parses the step's approver condition. Steps without a
// condition return (nil, nil) and accept every type-level match.
func (s *ApprovalStep) ConditionTree() (*ConditionNode, error) {
	if len(s.ApproverCondition) == 0 || string(s.ApproverCondition) == "null" {
		return nil, nil
	}
	var node ConditionNode
	if err := json.Unmarshal(s.ApproverCondition, &node); err != nil {
		return nil, err
	}
	return &node, nil
}
