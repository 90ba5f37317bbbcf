package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"

	"decision-service/internal/models"
)

var clock = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// twoStepFlow returns the standard estimate flow: role approval by managers,
// then a system-level executive sign-off.
func twoStepFlow() *models.ApprovalFlow {
	flow := &models.ApprovalFlow{
		ID:       uuid.New(),
		TenantID: "tenant-1",
		Name:     "Estimate Approval",
		FlowType: "estimate",
		IsActive: true,
	}
	flow.Steps = []models.ApprovalStep{
		{
			ID:           uuid.New(),
			FlowID:       flow.ID,
			StepOrder:    1,
			ApproverType: models.ApproverRole,
			ApproverID:   &managerRoleID,
			IsRequired:   true,
			CanDelegate:  true,
			TimeoutHours: intPtr(48),
			IsActive:     true,
		},
		{
			ID:           uuid.New(),
			FlowID:       flow.ID,
			StepOrder:    2,
			ApproverType: models.ApproverSystemLevel,
			SystemLevel:  "executive",
			IsRequired:   true,
			IsActive:     true,
		},
	}
	return flow
}

func submitTestRequest(t *testing.T, flow *models.ApprovalFlow) *models.ApprovalRequest {
	t.Helper()
	request, entry, err := Submit(flow, SubmitMeta{
		TenantID:    "tenant-1",
		RequestType: "estimate",
		RequestID:   uuid.New(),
		RequestData: map[string]interface{}{"amount": float64(4000000)},
		Reason:      "Q2 site estimate",
		RequestedBy: bobID,
	}, clock)
	assert.NoError(t, err)
	assert.NotNil(t, entry)
	request.ID = uuid.New()
	return request
}

func approveEvent(stepID, actor uuid.UUID) Event {
	return Event{StepID: stepID, Actor: actor, Action: ActionApprove, Comment: "ok"}
}

// ===========================================
// Submit
// ===========================================

func TestSubmit_PositionsAtFirstStep(t *testing.T) {
	flow := twoStepFlow()

	request, entry, err := Submit(flow, SubmitMeta{
		TenantID:    "tenant-1",
		RequestType: "estimate",
		RequestID:   uuid.New(),
		RequestedBy: bobID,
	}, clock)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusPending, request.Status)
	assert.Equal(t, 1, *request.CurrentStep)
	assert.Equal(t, models.PriorityNormal, request.Priority)
	assert.Equal(t, 1, request.Version)
	assert.Equal(t, clock.Add(48*time.Hour), *request.ExpiresAt)
	assert.Equal(t, models.ActionSubmit, entry.Action)
	assert.Equal(t, bobID, entry.ActedBy)
}

func TestSubmit_FlowWithoutStepsFails(t *testing.T) {
	flow := &models.ApprovalFlow{ID: uuid.New(), IsActive: true}

	_, _, err := Submit(flow, SubmitMeta{RequestedBy: bobID}, clock)

	assert.ErrorIs(t, err, ErrFlowHasNoSteps)
}

// ===========================================
// Scenario: Full Approval Chain
// ===========================================

func TestApply_TwoStepApproval(t *testing.T) {
	flow := twoStepFlow()
	org := testOrg()
	request := submitTestRequest(t, flow)

	// Step 1: a manager approves and the request advances.
	afterFirst, entry, err := Apply(request, flow, org, approveEvent(flow.Steps[0].ID, aliceID), clock)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusPending, afterFirst.Status)
	assert.Equal(t, 2, *afterFirst.CurrentStep)
	assert.Nil(t, afterFirst.ExpiresAt) // second step has no timeout
	assert.Contains(t, afterFirst.CompletedApprovers, aliceID.String())
	assert.Equal(t, models.ActionApprove, entry.Action)
	assert.Equal(t, request.ID, entry.RequestID)

	// Step 2: the executive approves and the request completes.
	later := clock.Add(2 * time.Hour)
	final, entry, err := Apply(afterFirst, flow, org, approveEvent(flow.Steps[1].ID, caraID), later)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusApproved, final.Status)
	assert.Nil(t, final.CurrentStep)
	assert.Equal(t, caraID, *final.ApprovedBy)
	assert.Equal(t, later, *final.ApprovedAt)
	assert.Equal(t, models.ActionApprove, entry.Action)
	assert.Equal(t, caraID, entry.ActedBy)
}

func TestApply_RejectAtFirstStep(t *testing.T) {
	flow := twoStepFlow()
	request := submitTestRequest(t, flow)

	next, entry, err := Apply(request, flow, testOrg(), Event{
		StepID: flow.Steps[0].ID, Actor: aliceID, Action: ActionReject, Comment: "budget exceeded",
	}, clock)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusRejected, next.Status)
	assert.Equal(t, aliceID, *next.RejectedBy)
	assert.Equal(t, 1, *next.CurrentStep) // rejection records where it stopped
	assert.Equal(t, models.ActionReject, entry.Action)
	assert.Equal(t, "budget exceeded", entry.Comment)
}

func TestApply_ReturnToRequester(t *testing.T) {
	flow := twoStepFlow()
	request := submitTestRequest(t, flow)

	next, entry, err := Apply(request, flow, testOrg(), Event{
		StepID: flow.Steps[0].ID, Actor: aliceID, Action: ActionReturn, Comment: "missing line items",
	}, clock)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusReturned, next.Status)
	assert.Equal(t, aliceID, *next.ReturnedBy)
	assert.True(t, next.IsTerminal())
	assert.Equal(t, models.ActionReturn, entry.Action)
}

// ===========================================
// Guards
// ===========================================

func TestApply_WrongStepRejected(t *testing.T) {
	flow := twoStepFlow()
	request := submitTestRequest(t, flow)

	// Acting on step 2 while the request sits at step 1.
	_, _, err := Apply(request, flow, testOrg(), approveEvent(flow.Steps[1].ID, caraID), clock)

	assert.ErrorIs(t, err, ErrNotCurrentStep)
}

func TestApply_UnknownStepRejected(t *testing.T) {
	flow := twoStepFlow()
	request := submitTestRequest(t, flow)

	_, _, err := Apply(request, flow, testOrg(), approveEvent(uuid.New(), aliceID), clock)

	assert.ErrorIs(t, err, ErrStepNotInFlow)
}

func TestApply_UnauthorizedActorRejected(t *testing.T) {
	flow := twoStepFlow()
	request := submitTestRequest(t, flow)

	// Cara holds no manager role; step 1 is not hers to approve.
	_, _, err := Apply(request, flow, testOrg(), approveEvent(flow.Steps[0].ID, caraID), clock)

	assert.ErrorIs(t, err, ErrNotAuthorizedApprover)
}

func TestApply_EmptyApproverSetReported(t *testing.T) {
	flow := twoStepFlow()
	unknownRole := uuid.New()
	flow.Steps[0].ApproverID = &unknownRole
	request := submitTestRequest(t, flow)

	_, _, err := Apply(request, flow, testOrg(), approveEvent(flow.Steps[0].ID, aliceID), clock)

	assert.ErrorIs(t, err, ErrNoEligibleApprover)
}

func TestApply_TerminalRequestImmutable(t *testing.T) {
	flow := twoStepFlow()
	org := testOrg()
	request := submitTestRequest(t, flow)

	rejected, _, err := Apply(request, flow, org, Event{
		StepID: flow.Steps[0].ID, Actor: aliceID, Action: ActionReject,
	}, clock)
	assert.NoError(t, err)

	for _, action := range []string{ActionApprove, ActionReject, ActionReturn, ActionCancel, ActionDelegate} {
		_, _, err := Apply(rejected, flow, org, Event{
			StepID: flow.Steps[0].ID, Actor: aliceID, Action: action,
		}, clock)
		assert.ErrorIs(t, err, ErrRequestAlreadyTerminal, "action %s must not touch a terminal request", action)
	}
}

func TestApply_UnknownActionRejected(t *testing.T) {
	flow := twoStepFlow()
	request := submitTestRequest(t, flow)

	_, _, err := Apply(request, flow, testOrg(), Event{
		StepID: flow.Steps[0].ID, Actor: aliceID, Action: "escalate",
	}, clock)

	assert.ErrorIs(t, err, ErrUnknownAction)
}

// ===========================================
// Cancel
// ===========================================

func TestApply_RequesterCancels(t *testing.T) {
	flow := twoStepFlow()
	request := submitTestRequest(t, flow)

	next, entry, err := Apply(request, flow, testOrg(), Event{
		Actor: bobID, Action: ActionCancel, Comment: "re-estimating",
	}, clock)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, next.Status)
	assert.Equal(t, bobID, *next.CancelledBy)
	assert.Equal(t, models.ActionCancel, entry.Action)
}

func TestApply_OnlyRequesterOrAdminCancels(t *testing.T) {
	flow := twoStepFlow()
	request := submitTestRequest(t, flow)

	_, _, err := Apply(request, flow, testOrg(), Event{Actor: aliceID, Action: ActionCancel}, clock)
	assert.ErrorIs(t, err, ErrNotAuthorizedApprover)

	next, _, err := Apply(request, flow, testOrg(), Event{Actor: aliceID, Action: ActionCancel, ActorIsAdmin: true}, clock)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, next.Status)
}

// ===========================================
// Delegation
// ===========================================

func TestApply_DelegateThenDelegateApproves(t *testing.T) {
	flow := twoStepFlow()
	org := testOrg()
	request := submitTestRequest(t, flow)

	delegated, entry, err := Apply(request, flow, org, Event{
		StepID: flow.Steps[0].ID, Actor: aliceID, Action: ActionDelegate, DelegateTo: &caraID,
	}, clock)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusPending, delegated.Status)
	assert.Equal(t, caraID, *delegated.DelegatedTo)
	assert.Equal(t, aliceID, *delegated.DelegatedBy)
	assert.Equal(t, models.ActionDelegate, entry.Action)
	assert.Equal(t, caraID, *entry.DelegatedTo)

	// Cara is no manager, but the step-scoped delegation authorizes her.
	next, _, err := Apply(delegated, flow, org, approveEvent(flow.Steps[0].ID, caraID), clock)
	assert.NoError(t, err)
	assert.Equal(t, 2, *next.CurrentStep)
	// The delegation is consumed with its step.
	assert.Nil(t, next.DelegatedTo)
	assert.Nil(t, next.DelegatedBy)
}

func TestApply_DelegationForbiddenOnStep(t *testing.T) {
	flow := twoStepFlow()
	flow.Steps[0].CanDelegate = false
	request := submitTestRequest(t, flow)

	_, _, err := Apply(request, flow, testOrg(), Event{
		StepID: flow.Steps[0].ID, Actor: aliceID, Action: ActionDelegate, DelegateTo: &caraID,
	}, clock)

	assert.ErrorIs(t, err, ErrDelegationNotAllowed)
}

func TestApply_DelegateRequiresTarget(t *testing.T) {
	flow := twoStepFlow()
	request := submitTestRequest(t, flow)

	_, _, err := Apply(request, flow, testOrg(), Event{
		StepID: flow.Steps[0].ID, Actor: aliceID, Action: ActionDelegate,
	}, clock)

	assert.ErrorIs(t, err, ErrDelegationNotAllowed)
}

func TestApply_StandingDelegationViaOnBehalfOf(t *testing.T) {
	flow := twoStepFlow()
	request := submitTestRequest(t, flow)

	// Cara acts under Alice's standing delegation; Alice is eligible, so the
	// event is authorized even though Cara is not a manager.
	next, _, err := Apply(request, flow, testOrg(), Event{
		StepID: flow.Steps[0].ID, Actor: caraID, Action: ActionApprove, OnBehalfOf: &aliceID,
	}, clock)

	assert.NoError(t, err)
	assert.Equal(t, 2, *next.CurrentStep)
	assert.Contains(t, next.CompletedApprovers, caraID.String())
}

// ===========================================
// Optional Step Skipping
// ===========================================

func TestApply_OptionalStepWithoutApproversSkipped(t *testing.T) {
	flow := twoStepFlow()
	unknownRole := uuid.New()
	flow.Steps = append(flow.Steps, models.ApprovalStep{
		ID:           uuid.New(),
		FlowID:       flow.ID,
		StepOrder:    3,
		ApproverType: models.ApproverSystemLevel,
		SystemLevel:  "executive",
		IsRequired:   true,
		IsActive:     true,
	})
	// Step 2 becomes an optional review by a role nobody holds.
	flow.Steps[1] = models.ApprovalStep{
		ID:           flow.Steps[1].ID,
		FlowID:       flow.ID,
		StepOrder:    2,
		ApproverType: models.ApproverRole,
		ApproverID:   &unknownRole,
		IsRequired:   false,
		IsActive:     true,
	}
	request := submitTestRequest(t, flow)

	next, entry, err := Apply(request, flow, testOrg(), approveEvent(flow.Steps[0].ID, aliceID), clock)

	assert.NoError(t, err)
	assert.Equal(t, 3, *next.CurrentStep)
	assert.JSONEq(t, `{"skipped_steps": [2]}`, string(entry.Metadata))
}

func TestApply_SkipRunsToCompletion(t *testing.T) {
	flow := twoStepFlow()
	unknownRole := uuid.New()
	flow.Steps[1] = models.ApprovalStep{
		ID:           flow.Steps[1].ID,
		FlowID:       flow.ID,
		StepOrder:    2,
		ApproverType: models.ApproverRole,
		ApproverID:   &unknownRole,
		IsRequired:   false,
		IsActive:     true,
	}
	request := submitTestRequest(t, flow)

	next, _, err := Apply(request, flow, testOrg(), approveEvent(flow.Steps[0].ID, aliceID), clock)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusApproved, next.Status)
	assert.Nil(t, next.CurrentStep)
}

// ===========================================
// Purity
// ===========================================

func TestApply_DoesNotMutateInput(t *testing.T) {
	flow := twoStepFlow()
	request := submitTestRequest(t, flow)
	request.CompletedApprovers = append(request.CompletedApprovers, bobID.String())

	before := *request
	beforeApprovers := append([]string(nil), request.CompletedApprovers...)

	next, _, err := Apply(request, flow, testOrg(), approveEvent(flow.Steps[0].ID, aliceID), clock)
	assert.NoError(t, err)
	assert.NotSame(t, request, next)

	assert.Equal(t, before.Status, request.Status)
	assert.Equal(t, *before.CurrentStep, *request.CurrentStep)
	assert.Equal(t, beforeApprovers, []string(request.CompletedApprovers))
}

// ===========================================
// Expiry
// ===========================================

func TestIsExpired(t *testing.T) {
	deadline := clock.Add(48 * time.Hour)
	request := &models.ApprovalRequest{Status: models.StatusPending, ExpiresAt: &deadline}

	assert.False(t, IsExpired(request, clock))
	assert.False(t, IsExpired(request, deadline.Add(-time.Second)))
	assert.True(t, IsExpired(request, deadline))
	assert.True(t, IsExpired(request, deadline.Add(time.Hour)))

	// Expiry is a property of pending requests only.
	request.Status = models.StatusApproved
	assert.False(t, IsExpired(request, deadline.Add(time.Hour)))

	assert.False(t, IsExpired(&models.ApprovalRequest{Status: models.StatusPending}, clock))
}

func TestSubmit_RequestDataRoundTrips(t *testing.T) {
	flow := twoStepFlow()
	request := submitTestRequest(t, flow)

	assert.Equal(t, map[string]interface{}{"amount": float64(4000000)}, requestData(request))
	assert.Nil(t, requestData(&models.ApprovalRequest{}))
	assert.Nil(t, requestData(&models.ApprovalRequest{RequestData: datatypes.JSON(`{`)}))
}
