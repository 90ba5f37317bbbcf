package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"decision-service/internal/models"
)

// ApprovalRepositoryInterface defines the persistence contract for flows,
// requests, history and standing delegations. Services depend on this so
// tests can substitute mocks.
type ApprovalRepositoryInterface interface {
	// Flows
	GetFlowByType(ctx context.Context, tenantID, flowType string) (*models.ApprovalFlow, error)
	GetFlowByID(ctx context.Context, flowID uuid.UUID) (*models.ApprovalFlow, error)
	ListFlows(ctx context.Context, tenantID string) ([]models.ApprovalFlow, error)
	CreateFlow(ctx context.Context, flow *models.ApprovalFlow) error

	// Requests
	CreateRequest(ctx context.Context, request *models.ApprovalRequest, entry *models.ApprovalHistory) error
	GetRequestByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error)
	ListRequests(ctx context.Context, tenantID, statusFilter string, limit, offset int) ([]models.ApprovalRequest, int64, error)
	ListRequestsByRequester(ctx context.Context, tenantID string, requestedBy uuid.UUID, limit, offset int) ([]models.ApprovalRequest, int64, error)
	ApplyTransition(ctx context.Context, request *models.ApprovalRequest, entry *models.ApprovalHistory) error
	GetRequestHistory(ctx context.Context, requestID uuid.UUID) ([]models.ApprovalHistory, error)

	// Expiry
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.ApprovalRequest, error)
	MarkExpiryNotified(ctx context.Context, requestID uuid.UUID, now time.Time) (bool, error)

	// Standing delegations
	CreateDelegation(ctx context.Context, delegation *models.StandingDelegation) error
	GetDelegationByID(ctx context.Context, id uuid.UUID) (*models.StandingDelegation, error)
	ListDelegationsByDelegator(ctx context.Context, tenantID string, delegatorID uuid.UUID, includeExpired bool) ([]models.StandingDelegation, error)
	ListDelegationsByDelegate(ctx context.Context, tenantID string, delegateID uuid.UUID, includeExpired bool) ([]models.StandingDelegation, error)
	GetDelegatorIDsForDelegate(ctx context.Context, tenantID string, delegateID uuid.UUID, flowID *uuid.UUID) ([]uuid.UUID, error)
	RevokeDelegation(ctx context.Context, id uuid.UUID, revokedBy uuid.UUID, reason string) error
	CheckOverlappingDelegation(ctx context.Context, tenantID string, delegatorID, delegateID uuid.UUID, flowID *uuid.UUID, startDate, endDate time.Time) (bool, error)
}

// PolicyRepositoryInterface defines the persistence contract for policies
type PolicyRepositoryInterface interface {
	FindForOperation(ctx context.Context, tenantID, businessCode, action string) ([]models.Policy, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Policy, error)
	List(ctx context.Context, tenantID, businessCode string, limit, offset int) ([]models.Policy, int64, error)
	Create(ctx context.Context, policy *models.Policy) error
	Update(ctx context.Context, policy *models.Policy) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// OrgRepositoryInterface defines the directory snapshot loader contract
type OrgRepositoryInterface interface {
	LoadSnapshot(ctx context.Context, tenantID string) (*models.OrgSnapshot, error)
}

var (
	_ ApprovalRepositoryInterface = (*ApprovalRepository)(nil)
	_ PolicyRepositoryInterface   = (*PolicyRepository)(nil)
	_ OrgRepositoryInterface      = (*OrgRepository)(nil)
)
