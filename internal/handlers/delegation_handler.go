package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"decision-service/internal/models"
	"decision-service/internal/repository"
)

// DelegationHandler handles standing delegation endpoints
type DelegationHandler struct {
	repo   repository.ApprovalRepositoryInterface
	logger *logrus.Entry
}

// NewDelegationHandler creates a new delegation handler
func NewDelegationHandler(repo repository.ApprovalRepositoryInterface, logger *logrus.Logger) *DelegationHandler {
	return &DelegationHandler{
		repo:   repo,
		logger: logger.WithField("component", "delegation-handler"),
	}
}

// CreateDelegation godoc
// @Summary Create a standing delegation
// @Description Creates a time-boxed delegation of the current user's approval duties to another user
// @Tags delegations
// @Accept json
// @Produce json
// @Param delegation body object true "Delegation"
// @Success 201 {object} models.StandingDelegation
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/delegations [post]
func (h *DelegationHandler) CreateDelegation(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return
	}

	var body struct {
		DelegateID string  `json:"delegateId" binding:"required"`
		FlowID     *string `json:"flowId"`
		Reason     string  `json:"reason"`
		StartDate  string  `json:"startDate" binding:"required"`
		EndDate    string  `json:"endDate" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	delegateID, err := uuid.Parse(body.DelegateID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delegateId must be a valid UUID"})
		return
	}
	if delegateID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delegate to yourself"})
		return
	}

	var flowID *uuid.UUID
	if body.FlowID != nil && *body.FlowID != "" {
		parsed, err := uuid.Parse(*body.FlowID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "flowId must be a valid UUID"})
			return
		}
		flowID = &parsed
	}

	startDate, err := time.Parse(time.RFC3339, body.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startDate must be RFC3339"})
		return
	}
	endDate, err := time.Parse(time.RFC3339, body.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endDate must be RFC3339"})
		return
	}
	if !endDate.After(startDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endDate must be after startDate"})
		return
	}
	if endDate.Before(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endDate must be in the future"})
		return
	}

	overlapping, err := h.repo.CheckOverlappingDelegation(c.Request.Context(), tenantID, userID, delegateID, flowID, startDate, endDate)
	if err != nil {
		h.logger.WithError(err).Error("Failed to check overlapping delegations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create delegation"})
		return
	}
	if overlapping {
		c.JSON(http.StatusConflict, gin.H{"error": "an overlapping delegation to this user already exists"})
		return
	}

	delegation := &models.StandingDelegation{
		TenantID:    tenantID,
		DelegatorID: userID,
		DelegateID:  delegateID,
		FlowID:      flowID,
		Reason:      body.Reason,
		StartDate:   startDate,
		EndDate:     endDate,
		IsActive:    true,
	}
	if err := h.repo.CreateDelegation(c.Request.Context(), delegation); err != nil {
		h.logger.WithError(err).Error("Failed to create delegation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create delegation"})
		return
	}

	c.JSON(http.StatusCreated, delegation)
}

// ListMyDelegations godoc
// @Summary List delegations granted by me
// @Description Lists standing delegations where the current user is the delegator
// @Tags delegations
// @Produce json
// @Param includeExpired query bool false "Include expired and revoked delegations"
// @Success 200 {array} models.StandingDelegation
// @Router /api/v1/delegations [get]
func (h *DelegationHandler) ListMyDelegations(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return
	}
	includeExpired := c.Query("includeExpired") == "true"

	delegations, err := h.repo.ListDelegationsByDelegator(c.Request.Context(), tenantID, userID, includeExpired)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list delegations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list delegations"})
		return
	}

	c.JSON(http.StatusOK, delegations)
}

// ListDelegationsToMe godoc
// @Summary List delegations granted to me
// @Description Lists standing delegations where the current user is the delegate
// @Tags delegations
// @Produce json
// @Param includeExpired query bool false "Include expired and revoked delegations"
// @Success 200 {array} models.StandingDelegation
// @Router /api/v1/delegations/to-me [get]
func (h *DelegationHandler) ListDelegationsToMe(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return
	}
	includeExpired := c.Query("includeExpired") == "true"

	delegations, err := h.repo.ListDelegationsByDelegate(c.Request.Context(), tenantID, userID, includeExpired)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list delegations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list delegations"})
		return
	}

	c.JSON(http.StatusOK, delegations)
}

// RevokeDelegation godoc
// @Summary Revoke a standing delegation
// @Description Revokes a delegation before its end date. Only the delegator or an admin may revoke.
// @Tags delegations
// @Accept json
// @Produce json
// @Param id path string true "Delegation ID"
// @Success 200 {object} models.StandingDelegation
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/delegations/{id}/revoke [post]
func (h *DelegationHandler) RevokeDelegation(c *gin.Context) {
	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return
	}
	delegationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delegation ID"})
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	// Reason is optional, so a missing body is fine
	_ = c.ShouldBindJSON(&body)

	delegation, err := h.repo.GetDelegationByID(c.Request.Context(), delegationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "delegation not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to load delegation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke delegation"})
		return
	}
	if delegation.DelegatorID != userID && !c.GetBool("is_admin") {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the delegator may revoke this delegation"})
		return
	}
	if delegation.RevokedAt != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "delegation is already revoked"})
		return
	}

	if err := h.repo.RevokeDelegation(c.Request.Context(), delegationID, userID, body.Reason); err != nil {
		h.logger.WithError(err).Error("Failed to revoke delegation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke delegation"})
		return
	}

	delegation, err = h.repo.GetDelegationByID(c.Request.Context(), delegationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke delegation"})
		return
	}

	c.JSON(http.StatusOK, delegation)
}
