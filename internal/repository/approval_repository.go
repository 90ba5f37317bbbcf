package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"decision-service/internal/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict - record was modified by another request")
)

// ApprovalRepository handles database operations for approval flows,
// requests, history and standing delegations
type ApprovalRepository struct {
	db *gorm.DB
}

// NewApprovalRepository creates a new ApprovalRepository
func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// --- Flow Methods ---

// GetFlowByType retrieves the best matching flow for a tenant and flow type.
// Falls back to 'system' tenant if no tenant-specific flow is found.
func (r *ApprovalRepository) GetFlowByType(ctx context.Context, tenantID, flowType string) (*models.ApprovalFlow, error) {
	var flow models.ApprovalFlow
	// Try tenant-specific flows first, then fall back to system flows.
	// Use fmt.Sprintf for ORDER BY since GORM's Order() doesn't support parameters
	orderClause := fmt.Sprintf("CASE WHEN tenant_id = '%s' THEN 0 ELSE 1 END, priority DESC", tenantID)
	err := r.db.WithContext(ctx).
		Preload("Steps", "is_active = true").
		Where("(tenant_id = ? OR tenant_id = 'system') AND flow_type = ? AND is_active = true", tenantID, flowType).
		Order(orderClause). // Prefer tenant-specific
		First(&flow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &flow, nil
}

// GetFlowByID retrieves a flow with its steps by ID
func (r *ApprovalRepository) GetFlowByID(ctx context.Context, flowID uuid.UUID) (*models.ApprovalFlow, error) {
	var flow models.ApprovalFlow
	err := r.db.WithContext(ctx).
		Preload("Steps", "is_active = true").
		Where("id = ?", flowID).
		First(&flow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &flow, nil
}

// ListFlows retrieves all active flows visible to a tenant, including
// system flows
func (r *ApprovalRepository) ListFlows(ctx context.Context, tenantID string) ([]models.ApprovalFlow, error) {
	var flows []models.ApprovalFlow
	orderClause := fmt.Sprintf("CASE WHEN tenant_id = '%s' THEN 0 ELSE 1 END, created_at DESC", tenantID)
	err := r.db.WithContext(ctx).
		Preload("Steps", "is_active = true").
		Where("(tenant_id = ? OR tenant_id = 'system') AND is_active = true", tenantID).
		Order(orderClause). // Tenant-specific first
		Find(&flows).Error
	return flows, err
}

// CreateFlow creates a new flow with its steps
func (r *ApprovalRepository) CreateFlow(ctx context.Context, flow *models.ApprovalFlow) error {
	return r.db.WithContext(ctx).Create(flow).Error
}

// --- Request Methods ---

// CreateRequest persists a new approval request together with its submit
// history row in one transaction.
func (r *ApprovalRepository) CreateRequest(ctx context.Context, request *models.ApprovalRequest, entry *models.ApprovalHistory) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(request).Error; err != nil {
			return err
		}
		entry.RequestID = request.ID
		return tx.Create(entry).Error
	})
}

// GetRequestByID retrieves a request by ID with its flow and history
func (r *ApprovalRepository) GetRequestByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	var request models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Preload("Flow").
		Preload("Flow.Steps", "is_active = true").
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("acted_at ASC") }).
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &request, nil
}

// ListRequests retrieves requests for a tenant with optional status filter.
// If statusFilter is empty or "all", returns all statuses.
func (r *ApprovalRepository) ListRequests(ctx context.Context, tenantID, statusFilter string, limit, offset int) ([]models.ApprovalRequest, int64, error) {
	var requests []models.ApprovalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
		Where("tenant_id = ?", tenantID)

	if statusFilter != "" && statusFilter != "all" {
		query = query.Where("status = ?", statusFilter)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Flow").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&requests).Error

	return requests, total, err
}

// ListRequestsByRequester retrieves requests submitted by a specific user
func (r *ApprovalRepository) ListRequestsByRequester(ctx context.Context, tenantID string, requestedBy uuid.UUID, limit, offset int) ([]models.ApprovalRequest, int64, error) {
	var requests []models.ApprovalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
		Where("tenant_id = ? AND requested_by = ?", tenantID, requestedBy)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Flow").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&requests).Error

	return requests, total, err
}

// ApplyTransition persists one computed transition: the updated request is
// written with a version compare-and-swap and its history row is appended,
// both in one transaction. When another writer got there first the CAS
// matches zero rows and ErrVersionConflict is returned with nothing written;
// the caller re-reads and recomputes.
func (r *ApprovalRepository) ApplyTransition(ctx context.Context, request *models.ApprovalRequest, entry *models.ApprovalHistory) error {
	oldVersion := request.Version
	request.Version = oldVersion + 1
	request.UpdatedAt = time.Now()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Select(*) so cleared pointer fields (current_step, delegated_to)
		// are written as NULL rather than skipped as zero values.
		result := tx.Model(&models.ApprovalRequest{}).
			Select("*").
			Omit("id", "created_at").
			Where("id = ? AND version = ?", request.ID, oldVersion).
			Updates(request)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrVersionConflict
		}

		entry.RequestID = request.ID
		return tx.Create(entry).Error
	})
}

// GetRequestHistory retrieves the audit trail for a request, oldest first
func (r *ApprovalRepository) GetRequestHistory(ctx context.Context, requestID uuid.UUID) ([]models.ApprovalHistory, error) {
	var entries []models.ApprovalHistory
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("acted_at ASC").
		Find(&entries).Error
	return entries, err
}

// --- Expiry Methods ---

// FindExpiredPending finds pending requests past their deadline that have
// not yet been notified. Expiry never changes request status; the job layer
// publishes events and stamps the notification time.
func (r *ApprovalRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.ApprovalRequest, error) {
	var requests []models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Preload("Flow").
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.StatusPending, now).
		Where("expired_notified_at IS NULL").
		Order("expires_at ASC").
		Limit(limit).
		Find(&requests).Error
	return requests, err
}

// MarkExpiryNotified stamps the notification time on a request. Guarded on
// the stamp still being NULL so only one instance notifies.
func (r *ApprovalRepository) MarkExpiryNotified(ctx context.Context, requestID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
		Where("id = ? AND expired_notified_at IS NULL", requestID).
		Updates(map[string]interface{}{
			"expired_notified_at": now,
			"updated_at":          now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// --- Standing Delegation Methods ---

// CreateDelegation creates a new standing delegation record
func (r *ApprovalRepository) CreateDelegation(ctx context.Context, delegation *models.StandingDelegation) error {
	return r.db.WithContext(ctx).Create(delegation).Error
}

// GetDelegationByID retrieves a standing delegation by ID
func (r *ApprovalRepository) GetDelegationByID(ctx context.Context, id uuid.UUID) (*models.StandingDelegation, error) {
	var delegation models.StandingDelegation
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&delegation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &delegation, nil
}

// ListDelegationsByDelegator retrieves all delegations created by a user
func (r *ApprovalRepository) ListDelegationsByDelegator(ctx context.Context, tenantID string, delegatorID uuid.UUID, includeExpired bool) ([]models.StandingDelegation, error) {
	var delegations []models.StandingDelegation

	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND delegator_id = ?", tenantID, delegatorID)

	if !includeExpired {
		query = query.Where("is_active = ? AND end_date > ?", true, time.Now())
	}

	err := query.Order("created_at DESC").Find(&delegations).Error
	return delegations, err
}

// ListDelegationsByDelegate retrieves all delegations granted to a user
func (r *ApprovalRepository) ListDelegationsByDelegate(ctx context.Context, tenantID string, delegateID uuid.UUID, includeExpired bool) ([]models.StandingDelegation, error) {
	var delegations []models.StandingDelegation

	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND delegate_id = ?", tenantID, delegateID)

	if !includeExpired {
		query = query.Where("is_active = ? AND end_date > ?", true, time.Now())
	}

	err := query.Order("created_at DESC").Find(&delegations).Error
	return delegations, err
}

// GetDelegatorIDsForDelegate returns all delegator IDs with a live standing
// delegation to the given user, optionally scoped to one flow. Used to
// decide whether a user may act on behalf of someone else.
func (r *ApprovalRepository) GetDelegatorIDsForDelegate(ctx context.Context, tenantID string, delegateID uuid.UUID, flowID *uuid.UUID) ([]uuid.UUID, error) {
	var delegatorIDs []uuid.UUID
	now := time.Now()

	query := r.db.WithContext(ctx).Model(&models.StandingDelegation{}).
		Select("DISTINCT delegator_id").
		Where("tenant_id = ? AND delegate_id = ? AND is_active = ?", tenantID, delegateID, true).
		Where("start_date <= ? AND end_date > ?", now, now).
		Where("revoked_at IS NULL")

	if flowID != nil {
		// Include delegations scoped to this flow OR all flows (null flow_id)
		query = query.Where("flow_id = ? OR flow_id IS NULL", *flowID)
	}

	err := query.Pluck("delegator_id", &delegatorIDs).Error
	return delegatorIDs, err
}

// RevokeDelegation revokes an existing standing delegation
func (r *ApprovalRepository) RevokeDelegation(ctx context.Context, id uuid.UUID, revokedBy uuid.UUID, reason string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.StandingDelegation{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active":     false,
			"revoked_at":    now,
			"revoked_by":    revokedBy,
			"revoke_reason": reason,
			"updated_at":    now,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// CheckOverlappingDelegation checks for an overlapping live delegation for
// the same delegator/delegate/flow
func (r *ApprovalRepository) CheckOverlappingDelegation(ctx context.Context, tenantID string, delegatorID, delegateID uuid.UUID, flowID *uuid.UUID, startDate, endDate time.Time) (bool, error) {
	var count int64

	query := r.db.WithContext(ctx).Model(&models.StandingDelegation{}).
		Where("tenant_id = ? AND delegator_id = ? AND delegate_id = ? AND is_active = ?",
			tenantID, delegatorID, delegateID, true).
		Where("revoked_at IS NULL").
		Where("(start_date < ? AND end_date > ?)", endDate, startDate) // Overlapping date check

	if flowID != nil {
		query = query.Where("flow_id = ?", *flowID)
	} else {
		query = query.Where("flow_id IS NULL")
	}

	err := query.Count(&count).Error
	return count > 0, err
}
