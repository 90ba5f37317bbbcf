package engine

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"

	"decision-service/internal/models"
)

var (
	managerRoleID = uuid.New()
	financeDeptID = uuid.New()
	siteDeptID    = uuid.New()

	aliceID = uuid.New() // manager, finance dept
	bobID   = uuid.New() // manager, site dept (child of finance)
	caraID  = uuid.New() // executive level, finance dept
	daveID  = uuid.New() // inactive manager
)

func testOrg() *models.OrgSnapshot {
	users := []models.OrgUser{
		{ID: aliceID, RoleIDs: pq.StringArray{managerRoleID.String()}, DepartmentID: &financeDeptID, SystemLevel: "accounting_manager", IsActive: true},
		{ID: bobID, RoleIDs: pq.StringArray{managerRoleID.String()}, DepartmentID: &siteDeptID, SystemLevel: "site_manager", IsActive: true},
		{ID: caraID, DepartmentID: &financeDeptID, SystemLevel: "executive", IsActive: true},
		{ID: daveID, RoleIDs: pq.StringArray{managerRoleID.String()}, DepartmentID: &financeDeptID, SystemLevel: "accounting_manager", IsActive: false},
	}
	departments := []models.Department{
		{ID: financeDeptID, Name: "Finance", Level: 1, IsActive: true},
		{ID: siteDeptID, Name: "Site Ops", ParentID: &financeDeptID, Level: 2, IsActive: true},
	}
	return models.NewOrgSnapshot(users, nil, departments, nil)
}

func conditionJSON(t *testing.T, node models.ConditionNode) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(node)
	assert.NoError(t, err)
	return datatypes.JSON(raw)
}

// ===========================================
// Approver Types
// ===========================================

func TestResolveApprovers_DirectUser(t *testing.T) {
	step := &models.ApprovalStep{ApproverType: models.ApproverUser, ApproverID: &aliceID, IsActive: true}

	approvers := ResolveApprovers(step, testOrg(), nil)

	assert.Len(t, approvers, 1)
	assert.Contains(t, approvers, aliceID)
}

func TestResolveApprovers_InactiveUserExcluded(t *testing.T) {
	step := &models.ApprovalStep{ApproverType: models.ApproverUser, ApproverID: &daveID, IsActive: true}

	approvers := ResolveApprovers(step, testOrg(), nil)

	assert.Empty(t, approvers)
}

func TestResolveApprovers_Role(t *testing.T) {
	step := &models.ApprovalStep{ApproverType: models.ApproverRole, ApproverID: &managerRoleID, IsActive: true}

	approvers := ResolveApprovers(step, testOrg(), nil)

	assert.Len(t, approvers, 2)
	assert.Contains(t, approvers, aliceID)
	assert.Contains(t, approvers, bobID)
	assert.NotContains(t, approvers, daveID)
}

func TestResolveApprovers_DepartmentIncludesDescendants(t *testing.T) {
	step := &models.ApprovalStep{ApproverType: models.ApproverDepartment, ApproverID: &financeDeptID, IsActive: true}

	approvers := ResolveApprovers(step, testOrg(), nil)

	// Finance members plus Site Ops (child department) members.
	assert.Contains(t, approvers, aliceID)
	assert.Contains(t, approvers, bobID)
	assert.Contains(t, approvers, caraID)
	assert.NotContains(t, approvers, daveID)
}

func TestResolveApprovers_SystemLevel(t *testing.T) {
	step := &models.ApprovalStep{ApproverType: models.ApproverSystemLevel, SystemLevel: "executive", IsActive: true}

	approvers := ResolveApprovers(step, testOrg(), nil)

	assert.Len(t, approvers, 1)
	assert.Contains(t, approvers, caraID)
}

func TestResolveApprovers_UnknownTypeIsEmpty(t *testing.T) {
	step := &models.ApprovalStep{ApproverType: "committee", IsActive: true}

	assert.Empty(t, ResolveApprovers(step, testOrg(), nil))
}

// ===========================================
// Condition Narrowing
// ===========================================

func TestResolveApprovers_RoleNarrowedBySystemLevel(t *testing.T) {
	step := &models.ApprovalStep{
		ApproverType: models.ApproverRole,
		ApproverID:   &managerRoleID,
		ApproverCondition: conditionJSON(t, models.ConditionNode{
			Field: "user.system_level", Operator: "eq", Value: "accounting_manager",
		}),
		IsActive: true,
	}

	approvers := ResolveApprovers(step, testOrg(), nil)

	assert.Len(t, approvers, 1)
	assert.Contains(t, approvers, aliceID)
}

func TestResolveApprovers_ConditionAgainstRequestData(t *testing.T) {
	step := &models.ApprovalStep{
		ApproverType: models.ApproverSystemLevel,
		SystemLevel:  "accounting_manager",
		ApproverCondition: conditionJSON(t, models.ConditionNode{
			Field: "data.amount", Operator: "lte", Value: float64(5000000),
		}),
		IsActive: true,
	}

	within := ResolveApprovers(step, testOrg(), map[string]interface{}{"amount": float64(4000000)})
	assert.Contains(t, within, aliceID)

	over := ResolveApprovers(step, testOrg(), map[string]interface{}{"amount": float64(9000000)})
	assert.Empty(t, over)
}

func TestResolveApprovers_MalformedConditionAuthorizesNobody(t *testing.T) {
	step := &models.ApprovalStep{
		ApproverType:      models.ApproverRole,
		ApproverID:        &managerRoleID,
		ApproverCondition: datatypes.JSON(`{"operator": "and", "rules": [`),
		IsActive:          true,
	}

	assert.Empty(t, ResolveApprovers(step, testOrg(), nil))
}

// ===========================================
// Determinism
// ===========================================

func TestResolveApprovers_DeterministicForSameSnapshot(t *testing.T) {
	org := testOrg()
	step := &models.ApprovalStep{ApproverType: models.ApproverRole, ApproverID: &managerRoleID, IsActive: true}

	first := ResolveApprovers(step, org, nil)
	second := ResolveApprovers(step, org, nil)

	assert.Equal(t, first, second)
}

func TestResolveApprovers_NilInputs(t *testing.T) {
	assert.Empty(t, ResolveApprovers(nil, testOrg(), nil))
	assert.Empty(t, ResolveApprovers(&models.ApprovalStep{ApproverType: models.ApproverUser}, nil, nil))
}
