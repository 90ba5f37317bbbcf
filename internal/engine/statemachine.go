package engine

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"decision-service/internal/models"
)

// Action constants accepted by Apply.
const (
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionReturn   = "return"
	ActionCancel   = "cancel"
	ActionDelegate = "delegate"
)

// SubmitMeta carries the caller-supplied fields for a new approval request.
type SubmitMeta struct {
	TenantID    string
	RequestType string
	RequestID   uuid.UUID
	RequestData map[string]interface{}
	Priority    string
	Reason      string
	RequestedBy uuid.UUID
}

// Event is one attempted transition on a request. OnBehalfOf names a
// delegator when the actor holds standing delegated authority; the engine
// authorizes the event if the delegator is an eligible approver.
type Event struct {
	StepID       uuid.UUID
	Actor        uuid.UUID
	Action       string
	Comment      string
	DelegateTo   *uuid.UUID
	OnBehalfOf   *uuid.UUID
	ActorIsAdmin bool
}

// Submit creates a pending request positioned at the flow's first step. The
// request and its submit history row are returned for the caller to persist
// atomically; Submit itself touches no storage.
func Submit(flow *models.ApprovalFlow, meta SubmitMeta, now time.Time) (*models.ApprovalRequest, *models.ApprovalHistory, error) {
	steps := flow.OrderedSteps()
	if len(steps) == 0 {
		return nil, nil, ErrFlowHasNoSteps
	}
	first := steps[0]

	priority := meta.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	request := &models.ApprovalRequest{
		TenantID:    meta.TenantID,
		FlowID:      flow.ID,
		RequestType: meta.RequestType,
		RequestID:   meta.RequestID,
		Status:      models.StatusPending,
		CurrentStep: intPtr(first.StepOrder),
		Priority:    priority,
		Reason:      meta.Reason,
		RequestedBy: meta.RequestedBy,
		ExpiresAt:   stepDeadline(&first, now),
		Version:     1,
	}
	if meta.RequestData != nil {
		if raw, err := json.Marshal(meta.RequestData); err == nil {
			request.RequestData = datatypes.JSON(raw)
		}
	}

	entry := &models.ApprovalHistory{
		StepID:  idPtr(first.ID),
		Action:  models.ActionSubmit,
		ActedBy: meta.RequestedBy,
		ActedAt: now,
		Comment: meta.Reason,
	}
	return request, entry, nil
}

// Apply computes one transition as a pure function over the request, flow
// and org snapshot: the input request is never mutated, and the updated copy
// plus its single history row are returned for the caller to persist under
// its concurrency contract. Expected failures come back as the typed errors
// in errors.go.
func Apply(request *models.ApprovalRequest, flow *models.ApprovalFlow, org *models.OrgSnapshot, event Event, now time.Time) (*models.ApprovalRequest, *models.ApprovalHistory, error) {
	if request.IsTerminal() {
		return nil, nil, ErrRequestAlreadyTerminal
	}

	if event.Action == ActionCancel {
		return applyCancel(request, event, now)
	}

	if request.CurrentStep == nil {
		return nil, nil, ErrStepNotInFlow
	}
	step := stepByID(flow, event.StepID)
	if step == nil {
		return nil, nil, ErrStepNotInFlow
	}
	if step.StepOrder != *request.CurrentStep {
		return nil, nil, ErrNotCurrentStep
	}

	data := requestData(request)
	resolved := ResolveApprovers(step, org, data)

	switch event.Action {
	case ActionDelegate:
		return applyDelegate(request, step, resolved, event, now)
	case ActionApprove:
		return applyApprove(request, flow, org, step, resolved, event, now, data)
	case ActionReject, ActionReturn:
		return applyTerminalDecision(request, step, resolved, event, now)
	default:
		return nil, nil, ErrUnknownAction
	}
}

// IsExpired reports whether a pending request has passed its deadline. It is
// a derived, side-effect-free query: expiry never transitions status by
// itself.
func IsExpired(request *models.ApprovalRequest, now time.Time) bool {
	return request.Status == models.StatusPending &&
		request.ExpiresAt != nil &&
		!request.ExpiresAt.After(now)
}

// ── transition helpers ──

func applyCancel(request *models.ApprovalRequest, event Event, now time.Time) (*models.ApprovalRequest, *models.ApprovalHistory, error) {
	if event.Actor != request.RequestedBy && !event.ActorIsAdmin {
		return nil, nil, ErrNotAuthorizedApprover
	}
	next := clone(request)
	next.Status = models.StatusCancelled
	next.CancelledBy = idPtr(event.Actor)
	next.CancelledAt = timePtr(now)

	entry := &models.ApprovalHistory{
		RequestID: request.ID,
		Action:    models.ActionCancel,
		ActedBy:   event.Actor,
		ActedAt:   now,
		Comment:   event.Comment,
	}
	return next, entry, nil
}

func applyDelegate(request *models.ApprovalRequest, step *models.ApprovalStep, resolved map[uuid.UUID]struct{}, event Event, now time.Time) (*models.ApprovalRequest, *models.ApprovalHistory, error) {
	if !step.CanDelegate {
		return nil, nil, ErrDelegationNotAllowed
	}
	if event.DelegateTo == nil {
		return nil, nil, ErrDelegationNotAllowed
	}
	if !isAuthorized(request, resolved, event) {
		return nil, nil, authFailure(resolved)
	}

	next := clone(request)
	next.DelegatedTo = event.DelegateTo
	next.DelegatedBy = idPtr(event.Actor)

	entry := &models.ApprovalHistory{
		RequestID:   request.ID,
		StepID:      idPtr(step.ID),
		Action:      models.ActionDelegate,
		ActedBy:     event.Actor,
		ActedAt:     now,
		Comment:     event.Comment,
		DelegatedTo: event.DelegateTo,
		DelegatedAt: timePtr(now),
	}
	return next, entry, nil
}

func applyApprove(request *models.ApprovalRequest, flow *models.ApprovalFlow, org *models.OrgSnapshot, step *models.ApprovalStep, resolved map[uuid.UUID]struct{}, event Event, now time.Time, data map[string]interface{}) (*models.ApprovalRequest, *models.ApprovalHistory, error) {
	if !isAuthorized(request, resolved, event) {
		return nil, nil, authFailure(resolved)
	}

	next := clone(request)
	next.CompletedApprovers = append(next.CompletedApprovers, event.Actor.String())

	entry := &models.ApprovalHistory{
		RequestID: request.ID,
		StepID:    idPtr(step.ID),
		Action:    models.ActionApprove,
		ActedBy:   event.Actor,
		ActedAt:   now,
		Comment:   event.Comment,
	}

	nextStep, skipped := advance(flow, org, step.StepOrder, data)
	if nextStep == nil {
		next.Status = models.StatusApproved
		next.ApprovedBy = idPtr(event.Actor)
		next.ApprovedAt = timePtr(now)
		next.CurrentStep = nil
		next.ExpiresAt = nil
	} else {
		next.CurrentStep = intPtr(nextStep.StepOrder)
		next.ExpiresAt = stepDeadline(nextStep, now)
	}
	// Step-scoped delegation never outlives its step.
	next.DelegatedTo = nil
	next.DelegatedBy = nil

	if len(skipped) > 0 {
		meta, _ := json.Marshal(map[string]interface{}{"skipped_steps": skipped})
		entry.Metadata = datatypes.JSON(meta)
	}
	return next, entry, nil
}

func applyTerminalDecision(request *models.ApprovalRequest, step *models.ApprovalStep, resolved map[uuid.UUID]struct{}, event Event, now time.Time) (*models.ApprovalRequest, *models.ApprovalHistory, error) {
	if !isAuthorized(request, resolved, event) {
		return nil, nil, authFailure(resolved)
	}

	next := clone(request)
	action := models.ActionReject
	if event.Action == ActionReturn {
		action = models.ActionReturn
		next.Status = models.StatusReturned
		next.ReturnedBy = idPtr(event.Actor)
		next.ReturnedAt = timePtr(now)
	} else {
		next.Status = models.StatusRejected
		next.RejectedBy = idPtr(event.Actor)
		next.RejectedAt = timePtr(now)
	}

	entry := &models.ApprovalHistory{
		RequestID: request.ID,
		StepID:    idPtr(step.ID),
		Action:    action,
		ActedBy:   event.Actor,
		ActedAt:   now,
		Comment:   event.Comment,
	}
	return next, entry, nil
}

// advance finds the step after the given order. Optional steps with no
// eligible approver are auto-skipped; their orders are reported for the
// history row's metadata. A nil result means the flow is complete.
func advance(flow *models.ApprovalFlow, org *models.OrgSnapshot, afterOrder int, data map[string]interface{}) (*models.ApprovalStep, []int) {
	var skipped []int
	for _, step := range flow.OrderedSteps() {
		if step.StepOrder <= afterOrder {
			continue
		}
		s := step
		if !s.IsRequired && len(ResolveApprovers(&s, org, data)) == 0 {
			skipped = append(skipped, s.StepOrder)
			continue
		}
		return &s, skipped
	}
	return nil, skipped
}

// isAuthorized checks the acting principal against the resolved approver
// set, the request's step-scoped delegate, and standing delegated authority
// (OnBehalfOf must itself be eligible).
func isAuthorized(request *models.ApprovalRequest, resolved map[uuid.UUID]struct{}, event Event) bool {
	if _, ok := resolved[event.Actor]; ok {
		return true
	}
	if request.DelegatedTo != nil && *request.DelegatedTo == event.Actor {
		return true
	}
	if event.OnBehalfOf != nil {
		if _, ok := resolved[*event.OnBehalfOf]; ok {
			return true
		}
	}
	return false
}

func authFailure(resolved map[uuid.UUID]struct{}) error {
	if len(resolved) == 0 {
		return ErrNoEligibleApprover
	}
	return ErrNotAuthorizedApprover
}

func stepByID(flow *models.ApprovalFlow, id uuid.UUID) *models.ApprovalStep {
	for i := range flow.Steps {
		if flow.Steps[i].ID == id && flow.Steps[i].IsActive {
			return &flow.Steps[i]
		}
	}
	return nil
}

func stepDeadline(step *models.ApprovalStep, now time.Time) *time.Time {
	if step.TimeoutHours == nil || *step.TimeoutHours <= 0 {
		return nil
	}
	deadline := now.Add(time.Duration(*step.TimeoutHours) * time.Hour)
	return &deadline
}

func requestData(request *models.ApprovalRequest) map[string]interface{} {
	if len(request.RequestData) == 0 {
		return nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal(request.RequestData, &data); err != nil {
		return nil
	}
	return data
}

// clone copies the request so Apply stays pure; slices that transitions
// append to are copied, read-only relations are shared.
func clone(request *models.ApprovalRequest) *models.ApprovalRequest {
	next := *request
	next.CompletedApprovers = append(pq.StringArray(nil), request.CompletedApprovers...)
	return &next
}

func intPtr(v int) *int { return &v }

func idPtr(v uuid.UUID) *uuid.UUID { return &v }

func timePtr(v time.Time) *time.Time { return &v }
