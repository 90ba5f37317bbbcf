package repository

import (
	"context"

	"gorm.io/gorm"

	"decision-service/internal/models"
)

// OrgRepository loads the organizational directory for a tenant. A decision
// works against one immutable snapshot so approver resolution cannot see a
// half-applied directory change.
type OrgRepository struct {
	db *gorm.DB
}

// NewOrgRepository creates a new OrgRepository
func NewOrgRepository(db *gorm.DB) *OrgRepository {
	return &OrgRepository{db: db}
}

// LoadSnapshot reads the tenant's users, roles, departments and positions
// in one transaction and builds an indexed snapshot.
func (r *OrgRepository) LoadSnapshot(ctx context.Context, tenantID string) (*models.OrgSnapshot, error) {
	var (
		users       []models.OrgUser
		roles       []models.OrgRole
		departments []models.Department
		positions   []models.Position
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", tenantID).Find(&users).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ?", tenantID).Find(&roles).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ? AND is_active = true", tenantID).Find(&departments).Error; err != nil {
			return err
		}
		return tx.Where("tenant_id = ? AND is_active = true", tenantID).Find(&positions).Error
	})
	if err != nil {
		return nil, err
	}

	return models.NewOrgSnapshot(users, roles, departments, positions), nil
}
