package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"decision-service/internal/models"
)

// PolicyRepository handles database operations for access policies
type PolicyRepository struct {
	db *gorm.DB
}

// NewPolicyRepository creates a new PolicyRepository
func NewPolicyRepository(db *gorm.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// FindForOperation retrieves the active policies a decision considers for
// one operation: tenant-specific plus system policies matching the business
// code and action. Resource-type filtering stays in the decision point so a
// policy with an empty resource type can match any resource.
func (r *PolicyRepository) FindForOperation(ctx context.Context, tenantID, businessCode, action string) ([]models.Policy, error) {
	var policies []models.Policy
	orderClause := fmt.Sprintf("CASE WHEN tenant_id = '%s' THEN 0 ELSE 1 END, priority DESC", tenantID)
	err := r.db.WithContext(ctx).
		Where("(tenant_id = ? OR tenant_id = 'system') AND business_code = ? AND action = ? AND is_active = true",
			tenantID, businessCode, action).
		Order(orderClause).
		Find(&policies).Error
	return policies, err
}

// GetByID retrieves a policy by ID
func (r *PolicyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Policy, error) {
	var policy models.Policy
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &policy, nil
}

// List retrieves policies for a tenant with an optional business code filter
func (r *PolicyRepository) List(ctx context.Context, tenantID, businessCode string, limit, offset int) ([]models.Policy, int64, error) {
	var policies []models.Policy
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Policy{}).
		Where("tenant_id = ? OR tenant_id = 'system'", tenantID)

	if businessCode != "" {
		query = query.Where("business_code = ?", businessCode)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("priority DESC, created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&policies).Error

	return policies, total, err
}

// Create creates a new policy
func (r *PolicyRepository) Create(ctx context.Context, policy *models.Policy) error {
	return r.db.WithContext(ctx).Create(policy).Error
}

// Update updates a policy's editable fields
func (r *PolicyRepository) Update(ctx context.Context, policy *models.Policy) error {
	result := r.db.WithContext(ctx).
		Model(policy).
		Select("name", "business_code", "action", "resource_type", "conditions", "effect", "priority", "is_active", "updated_at").
		Updates(policy)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete soft-deletes a policy
func (r *PolicyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.Policy{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
