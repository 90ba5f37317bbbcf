package engine

import (
	"github.com/google/uuid"

	"decision-service/internal/models"
)

// ResolveApprovers produces the set of principal ids authorized to act on a
// step, given a consistent org snapshot and the request's attribute payload
// (used when the step's approver condition references data.* fields).
// Resolution is deterministic for a given snapshot and never fails: when no
// active principal matches, the empty set is returned and the state machine
// reports it as a no-eligible-approver condition.
func ResolveApprovers(step *models.ApprovalStep, org *models.OrgSnapshot, data map[string]interface{}) map[uuid.UUID]struct{} {
	approvers := make(map[uuid.UUID]struct{})
	if step == nil || org == nil {
		return approvers
	}

	condition, err := step.ConditionTree()
	if err != nil {
		// A malformed approver condition authorizes nobody.
		return approvers
	}

	for _, user := range candidates(step, org) {
		if !user.IsActive {
			continue
		}
		if condition != nil && !Evaluate(condition, CandidateContext(org, &user, data)) {
			continue
		}
		approvers[user.ID] = struct{}{}
	}
	return approvers
}

// candidates returns the users matching the step's approver type before
// condition narrowing.
func candidates(step *models.ApprovalStep, org *models.OrgSnapshot) []models.OrgUser {
	switch step.ApproverType {
	case models.ApproverUser:
		if step.ApproverID == nil {
			return nil
		}
		if u := org.UserByID(*step.ApproverID); u != nil {
			return []models.OrgUser{*u}
		}
		return nil

	case models.ApproverRole:
		if step.ApproverID == nil {
			return nil
		}
		var out []models.OrgUser
		for _, u := range org.Users {
			if u.HasRole(*step.ApproverID) {
				out = append(out, u)
			}
		}
		return out

	case models.ApproverDepartment:
		if step.ApproverID == nil {
			return nil
		}
		// Membership covers the department and everything under it.
		members := map[uuid.UUID]bool{*step.ApproverID: true}
		for _, id := range org.DepartmentDescendants(*step.ApproverID) {
			members[id] = true
		}
		var out []models.OrgUser
		for _, u := range org.Users {
			if u.DepartmentID != nil && members[*u.DepartmentID] {
				out = append(out, u)
			}
		}
		return out

	case models.ApproverSystemLevel:
		if step.SystemLevel == "" {
			return nil
		}
		var out []models.OrgUser
		for _, u := range org.Users {
			if u.SystemLevel == step.SystemLevel {
				out = append(out, u)
			}
		}
		return out

	default:
		return nil
	}
}

// CandidateContext assembles the evaluation context for one candidate
// approver: the user's own attributes plus the request payload under data.
// A fresh context is built per candidate so evaluation can never leak state
// between candidates.
func CandidateContext(org *models.OrgSnapshot, user *models.OrgUser, data map[string]interface{}) models.Context {
	userAttrs := map[string]interface{}{
		"id":           user.ID.String(),
		"system_level": user.SystemLevel,
	}
	ctx := models.Context{"user": userAttrs}

	if user.DepartmentID != nil {
		userAttrs["department_id"] = user.DepartmentID.String()
		if dept := org.DepartmentByID(*user.DepartmentID); dept != nil {
			deptAttrs := map[string]interface{}{
				"id":    dept.ID.String(),
				"level": dept.Level,
			}
			if dept.ParentID != nil {
				deptAttrs["parent_id"] = dept.ParentID.String()
			}
			ctx["department"] = deptAttrs
		}
	}
	if user.PositionID != nil {
		userAttrs["position_id"] = user.PositionID.String()
		if pos := org.PositionByID(*user.PositionID); pos != nil {
			ctx["position"] = map[string]interface{}{
				"id":    pos.ID.String(),
				"level": pos.Level,
			}
		}
	}
	if data != nil {
		ctx["data"] = data
	}
	return ctx
}
