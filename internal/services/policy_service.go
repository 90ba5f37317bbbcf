package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"decision-service/internal/engine"
	"decision-service/internal/models"
	"decision-service/internal/repository"
)

var ErrPolicyNotFound = errors.New("policy not found")

// PolicyService evaluates and administers access policies
type PolicyService struct {
	policies repository.PolicyRepositoryInterface
	org      repository.OrgRepositoryInterface
	logger   *logrus.Entry
}

// NewPolicyService creates a new PolicyService
func NewPolicyService(policies repository.PolicyRepositoryInterface, org repository.OrgRepositoryInterface, logger *logrus.Logger) *PolicyService {
	if logger == nil {
		logger = logrus.New()
	}
	return &PolicyService{
		policies: policies,
		org:      org,
		logger:   logger.WithField("component", "policy-service"),
	}
}

// DecisionInput represents a policy decision request
type DecisionInput struct {
	BusinessCode string                 `json:"businessCode" binding:"required"`
	Action       string                 `json:"action" binding:"required"`
	ResourceType string                 `json:"resourceType,omitempty"`
	UserID       uuid.UUID              `json:"-"`
	Data         map[string]interface{} `json:"data,omitempty"`
}

// Decision is the result of a policy evaluation, including the matching
// policies for audit purposes
type Decision struct {
	Verdict engine.Verdict       `json:"verdict"`
	Matches []engine.PolicyMatch `json:"matches,omitempty"`
}

// Decide evaluates the policies applicable to one operation and returns the
// verdict with its explanation
func (s *PolicyService) Decide(ctx context.Context, tenantID string, input DecisionInput) (*Decision, error) {
	policies, err := s.policies.FindForOperation(ctx, tenantID, input.BusinessCode, input.Action)
	if err != nil {
		return nil, err
	}

	org, err := s.org.LoadSnapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	op := engine.Operation{
		BusinessCode: input.BusinessCode,
		Action:       input.Action,
		ResourceType: input.ResourceType,
	}
	verdict, matches := engine.Explain(policies, op, actorContext(org, input.UserID, input.Data))

	s.logger.WithFields(logrus.Fields{
		"tenantId":     tenantID,
		"businessCode": input.BusinessCode,
		"action":       input.Action,
		"verdict":      verdict,
	}).Info("Policy decision evaluated")

	return &Decision{Verdict: verdict, Matches: matches}, nil
}

// GetPolicy retrieves a policy by ID
func (s *PolicyService) GetPolicy(ctx context.Context, id uuid.UUID) (*models.Policy, error) {
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return policy, nil
}

// ListPolicies lists policies visible to a tenant
func (s *PolicyService) ListPolicies(ctx context.Context, tenantID, businessCode string, limit, offset int) ([]models.Policy, int64, error) {
	return s.policies.List(ctx, tenantID, businessCode, limit, offset)
}

// CreatePolicy creates a new policy after validating its condition tree
func (s *PolicyService) CreatePolicy(ctx context.Context, policy *models.Policy) error {
	if _, err := policy.ConditionTree(); err != nil {
		return errors.New("invalid condition tree: " + err.Error())
	}
	if policy.Effect != models.EffectAllow && policy.Effect != models.EffectDeny {
		return errors.New("effect must be allow or deny")
	}
	return s.policies.Create(ctx, policy)
}

// UpdatePolicy updates a policy after validating its condition tree
func (s *PolicyService) UpdatePolicy(ctx context.Context, policy *models.Policy) error {
	if _, err := policy.ConditionTree(); err != nil {
		return errors.New("invalid condition tree: " + err.Error())
	}
	err := s.policies.Update(ctx, policy)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrPolicyNotFound
	}
	return err
}

// DeletePolicy soft-deletes a policy
func (s *PolicyService) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	err := s.policies.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrPolicyNotFound
	}
	return err
}
