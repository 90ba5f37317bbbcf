package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"decision-service/internal/cache"
	"decision-service/internal/engine"
	"decision-service/internal/events"
	"decision-service/internal/models"
	"decision-service/internal/repository"
)

var (
	ErrFlowNotFound    = errors.New("approval flow not found")
	ErrRequestNotFound = errors.New("approval request not found")
)

// maxTransitionRetries bounds the re-read/recompute loop on version
// conflicts. Typed engine failures are never retried; only losing the
// compare-and-swap race is.
const maxTransitionRetries = 3

// ApprovalService orchestrates the decision core: it loads consistent state,
// runs the pure engine functions, persists the computed transition under the
// optimistic-concurrency contract, and publishes lifecycle events.
type ApprovalService struct {
	repo      repository.ApprovalRepositoryInterface
	policies  repository.PolicyRepositoryInterface
	org       repository.OrgRepositoryInterface
	orgCache  *cache.OrgCache
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewApprovalService creates a new ApprovalService. orgCache and publisher
// may be nil; both degrade to no-ops.
func NewApprovalService(
	repo repository.ApprovalRepositoryInterface,
	policies repository.PolicyRepositoryInterface,
	org repository.OrgRepositoryInterface,
	orgCache *cache.OrgCache,
	publisher *events.Publisher,
	logger *logrus.Logger,
) *ApprovalService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ApprovalService{
		repo:      repo,
		policies:  policies,
		org:       org,
		orgCache:  orgCache,
		publisher: publisher,
		logger:    logger.WithField("component", "approval-service"),
	}
}

// SubmitInput represents input for submitting an approval request
type SubmitInput struct {
	RequestType string                 `json:"requestType" binding:"required"`
	RequestID   string                 `json:"requestId" binding:"required"` // String to allow JSON binding, parsed to UUID in service
	RequestData map[string]interface{} `json:"requestData,omitempty"`
	Priority    string                 `json:"priority,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
}

// TransitionInput represents input for acting on a pending request
type TransitionInput struct {
	StepID     uuid.UUID
	Actor      uuid.UUID
	Action     string
	Comment    string
	DelegateTo *uuid.UUID
	IsAdmin    bool
}

// SubmitRequest opens a new approval request positioned at the flow's first
// step. Submission is gated by the policy decision point: an explicit deny
// for (requestType, "submit") blocks it.
func (s *ApprovalService) SubmitRequest(ctx context.Context, tenantID string, requestedBy uuid.UUID, input SubmitInput) (*models.ApprovalRequest, error) {
	flow, err := s.repo.GetFlowByType(ctx, tenantID, input.RequestType)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrFlowNotFound
		}
		return nil, err
	}

	org, err := s.orgSnapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if err := s.checkPolicy(ctx, tenantID, input.RequestType, "submit", requestedBy, org, input.RequestData); err != nil {
		return nil, err
	}

	businessID, err := uuid.Parse(input.RequestID)
	if err != nil {
		return nil, fmt.Errorf("invalid request id: %w", err)
	}

	request, entry, err := engine.Submit(flow, engine.SubmitMeta{
		TenantID:    tenantID,
		RequestType: input.RequestType,
		RequestID:   businessID,
		RequestData: input.RequestData,
		Priority:    input.Priority,
		Reason:      input.Reason,
		RequestedBy: requestedBy,
	}, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateRequest(ctx, request, entry); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	request.Flow = flow

	s.logger.WithFields(logrus.Fields{
		"requestId":   request.ID,
		"tenantId":    tenantID,
		"requestType": input.RequestType,
	}).Info("Approval request submitted")

	if s.publisher != nil {
		s.publisher.PublishRequested(request)
	}
	return request, nil
}

// Transition applies one action to a pending request. The read-compute-write
// cycle retries on version conflicts: losing the compare-and-swap means
// another transition landed first, so state is re-read and the engine
// re-evaluates against it. Typed engine failures pass straight through.
func (s *ApprovalService) Transition(ctx context.Context, requestID uuid.UUID, input TransitionInput) (*models.ApprovalRequest, error) {
	var lastErr error
	for attempt := 0; attempt < maxTransitionRetries; attempt++ {
		request, err := s.repo.GetRequestByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrRequestNotFound
			}
			return nil, err
		}
		if request.Flow == nil {
			return nil, engine.ErrStepNotInFlow
		}

		org, err := s.orgSnapshot(ctx, request.TenantID)
		if err != nil {
			return nil, err
		}

		if err := s.checkPolicy(ctx, request.TenantID, request.RequestType, input.Action, input.Actor, org, decodeRequestData(request)); err != nil {
			return nil, err
		}

		next, entry, err := s.applyWithDelegations(ctx, request, org, input)
		if err != nil {
			return nil, err
		}

		if err := s.repo.ApplyTransition(ctx, next, entry); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				lastErr = err
				s.logger.WithFields(logrus.Fields{
					"requestId": requestID,
					"attempt":   attempt + 1,
				}).Warn("Transition lost version race, retrying")
				continue
			}
			return nil, err
		}

		next.Flow = request.Flow
		if s.publisher != nil {
			s.publisher.PublishTransition(next, entry)
		}
		return next, nil
	}
	return nil, lastErr
}

// applyWithDelegations runs the pure transition, and on an authorization
// failure retries it under each standing delegation the actor holds. The
// delegator must themselves be an eligible approver for the step.
func (s *ApprovalService) applyWithDelegations(ctx context.Context, request *models.ApprovalRequest, org *models.OrgSnapshot, input TransitionInput) (*models.ApprovalRequest, *models.ApprovalHistory, error) {
	event := engine.Event{
		StepID:       input.StepID,
		Actor:        input.Actor,
		Action:       input.Action,
		Comment:      input.Comment,
		DelegateTo:   input.DelegateTo,
		ActorIsAdmin: input.IsAdmin,
	}
	now := time.Now().UTC()

	next, entry, err := engine.Apply(request, request.Flow, org, event, now)
	if !errors.Is(err, engine.ErrNotAuthorizedApprover) {
		return next, entry, err
	}

	delegators, dErr := s.repo.GetDelegatorIDsForDelegate(ctx, request.TenantID, input.Actor, &request.FlowID)
	if dErr != nil || len(delegators) == 0 {
		return nil, nil, err
	}
	for i := range delegators {
		event.OnBehalfOf = &delegators[i]
		next, entry, dErr = engine.Apply(request, request.Flow, org, event, now)
		if dErr == nil {
			return next, entry, nil
		}
	}
	return nil, nil, err
}

// ApproveRequest approves the current step of a request
func (s *ApprovalService) ApproveRequest(ctx context.Context, requestID uuid.UUID, input TransitionInput) (*models.ApprovalRequest, error) {
	input.Action = engine.ActionApprove
	return s.Transition(ctx, requestID, input)
}

// RejectRequest rejects a request at its current step
func (s *ApprovalService) RejectRequest(ctx context.Context, requestID uuid.UUID, input TransitionInput) (*models.ApprovalRequest, error) {
	input.Action = engine.ActionReject
	return s.Transition(ctx, requestID, input)
}

// ReturnRequest returns a request to its requester for rework
func (s *ApprovalService) ReturnRequest(ctx context.Context, requestID uuid.UUID, input TransitionInput) (*models.ApprovalRequest, error) {
	input.Action = engine.ActionReturn
	return s.Transition(ctx, requestID, input)
}

// CancelRequest cancels a pending request. Only the requester or an admin
// may cancel.
func (s *ApprovalService) CancelRequest(ctx context.Context, requestID uuid.UUID, input TransitionInput) (*models.ApprovalRequest, error) {
	input.Action = engine.ActionCancel
	return s.Transition(ctx, requestID, input)
}

// DelegateRequest hands the current step's authority to another user
func (s *ApprovalService) DelegateRequest(ctx context.Context, requestID uuid.UUID, input TransitionInput) (*models.ApprovalRequest, error) {
	input.Action = engine.ActionDelegate
	return s.Transition(ctx, requestID, input)
}

// GetRequest retrieves a request by ID
func (s *ApprovalService) GetRequest(ctx context.Context, requestID uuid.UUID) (*models.ApprovalRequest, error) {
	request, err := s.repo.GetRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return request, nil
}

// ListRequests lists requests for a tenant with optional status filter
func (s *ApprovalService) ListRequests(ctx context.Context, tenantID, statusFilter string, limit, offset int) ([]models.ApprovalRequest, int64, error) {
	return s.repo.ListRequests(ctx, tenantID, statusFilter, limit, offset)
}

// ListMyRequests lists requests submitted by a user
func (s *ApprovalService) ListMyRequests(ctx context.Context, tenantID string, requestedBy uuid.UUID, limit, offset int) ([]models.ApprovalRequest, int64, error) {
	return s.repo.ListRequestsByRequester(ctx, tenantID, requestedBy, limit, offset)
}

// GetRequestHistory retrieves the audit trail for a request
func (s *ApprovalService) GetRequestHistory(ctx context.Context, requestID uuid.UUID) ([]models.ApprovalHistory, error) {
	return s.repo.GetRequestHistory(ctx, requestID)
}

// ListFlows lists active flows visible to a tenant
func (s *ApprovalService) ListFlows(ctx context.Context, tenantID string) ([]models.ApprovalFlow, error) {
	return s.repo.ListFlows(ctx, tenantID)
}

// GetFlow retrieves a flow by ID
func (s *ApprovalService) GetFlow(ctx context.Context, flowID uuid.UUID) (*models.ApprovalFlow, error) {
	flow, err := s.repo.GetFlowByID(ctx, flowID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrFlowNotFound
		}
		return nil, err
	}
	return flow, nil
}

// CreateFlow creates a new tenant flow
func (s *ApprovalService) CreateFlow(ctx context.Context, flow *models.ApprovalFlow) error {
	return s.repo.CreateFlow(ctx, flow)
}

// --- Helper Methods ---

// orgSnapshot returns the tenant's directory snapshot, cache-first
func (s *ApprovalService) orgSnapshot(ctx context.Context, tenantID string) (*models.OrgSnapshot, error) {
	if s.orgCache != nil {
		if snap, err := s.orgCache.Get(ctx, tenantID); err == nil && snap != nil {
			return snap, nil
		}
	}

	snap, err := s.org.LoadSnapshot(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load org snapshot: %w", err)
	}

	if s.orgCache != nil {
		if err := s.orgCache.Set(ctx, tenantID, snap); err != nil {
			s.logger.WithError(err).Warn("Failed to cache org snapshot")
		}
	}
	return snap, nil
}

// checkPolicy evaluates the decision point for one operation. An explicit
// deny blocks the action; allow and indeterminate both proceed, so a tenant
// with no policies keeps a working approval pipeline.
func (s *ApprovalService) checkPolicy(ctx context.Context, tenantID, businessCode, action string, actor uuid.UUID, org *models.OrgSnapshot, data map[string]interface{}) error {
	policies, err := s.policies.FindForOperation(ctx, tenantID, businessCode, action)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	if len(policies) == 0 {
		return nil
	}

	evalCtx := actorContext(org, actor, data)
	verdict := engine.Decide(policies, engine.Operation{BusinessCode: businessCode, Action: action}, evalCtx)
	if verdict == engine.VerdictDeny {
		s.logger.WithFields(logrus.Fields{
			"tenantId":     tenantID,
			"businessCode": businessCode,
			"action":       action,
			"actorId":      actor,
		}).Warn("Action denied by policy")
		return engine.ErrDeniedByPolicy
	}
	return nil
}

// decodeRequestData parses the request's stored attribute payload. Broken
// payloads evaluate as absent so policies about them fail closed.
func decodeRequestData(request *models.ApprovalRequest) map[string]interface{} {
	if len(request.RequestData) == 0 {
		return nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal(request.RequestData, &data); err != nil {
		return nil
	}
	return data
}

// actorContext builds the evaluation context for a policy check. Actors
// missing from the directory evaluate with just their id, so attribute
// rules about them fail closed.
func actorContext(org *models.OrgSnapshot, actor uuid.UUID, data map[string]interface{}) models.Context {
	if user := org.UserByID(actor); user != nil {
		return engine.CandidateContext(org, user, data)
	}
	ctx := models.Context{"user": map[string]interface{}{"id": actor.String()}}
	if data != nil {
		ctx["data"] = data
	}
	return ctx
}
