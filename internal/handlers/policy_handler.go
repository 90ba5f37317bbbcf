package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"decision-service/internal/models"
	"decision-service/internal/services"
)

// PolicyHandler handles policy decision and policy administration endpoints
type PolicyHandler struct {
	service *services.PolicyService
	logger  *logrus.Entry
}

// NewPolicyHandler creates a new policy handler
func NewPolicyHandler(service *services.PolicyService, logger *logrus.Logger) *PolicyHandler {
	return &PolicyHandler{
		service: service,
		logger:  logger.WithField("component", "policy-handler"),
	}
}

// CheckDecision godoc
// @Summary Evaluate a policy decision
// @Description Evaluates the tenant's policies for one operation and returns the verdict with matching policies
// @Tags policies
// @Accept json
// @Produce json
// @Param decision body services.DecisionInput true "Operation to evaluate"
// @Success 200 {object} services.Decision
// @Failure 400 {object} map[string]string
// @Router /api/v1/policies/check [post]
func (h *PolicyHandler) CheckDecision(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return
	}

	var input services.DecisionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input.UserID = userID

	decision, err := h.service.Decide(c.Request.Context(), tenantID, input)
	if err != nil {
		h.logger.WithError(err).Error("Failed to evaluate policy decision")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to evaluate policy decision"})
		return
	}

	c.JSON(http.StatusOK, decision)
}

// ListPolicies godoc
// @Summary List policies
// @Description Lists the tenant's policies, optionally filtered by business code
// @Tags policies
// @Produce json
// @Param businessCode query string false "Business code filter"
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/policies [get]
func (h *PolicyHandler) ListPolicies(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	limit, offset := pagination(c)

	policies, total, err := h.service.ListPolicies(c.Request.Context(), tenantID, c.Query("businessCode"), limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list policies")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list policies"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   policies,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetPolicy godoc
// @Summary Get a policy
// @Tags policies
// @Produce json
// @Param id path string true "Policy ID"
// @Success 200 {object} models.Policy
// @Failure 404 {object} map[string]string
// @Router /api/v1/policies/{id} [get]
func (h *PolicyHandler) GetPolicy(c *gin.Context) {
	policyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid policy ID"})
		return
	}

	policy, err := h.service.GetPolicy(c.Request.Context(), policyID)
	if err != nil {
		if errors.Is(err, services.ErrPolicyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get policy"})
		return
	}

	c.JSON(http.StatusOK, policy)
}

// CreatePolicy godoc
// @Summary Create a policy
// @Description Creates a tenant policy. Admin only.
// @Tags policies
// @Accept json
// @Produce json
// @Param policy body models.Policy true "Policy definition"
// @Success 201 {object} models.Policy
// @Failure 400 {object} map[string]string
// @Router /api/v1/policies [post]
func (h *PolicyHandler) CreatePolicy(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if !c.GetBool("is_admin") {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin privileges required"})
		return
	}

	var policy models.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	policy.ID = uuid.Nil
	policy.TenantID = tenantID

	if err := h.service.CreatePolicy(c.Request.Context(), &policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, policy)
}

// UpdatePolicy godoc
// @Summary Update a policy
// @Description Updates a tenant policy. Admin only.
// @Tags policies
// @Accept json
// @Produce json
// @Param id path string true "Policy ID"
// @Param policy body models.Policy true "Policy definition"
// @Success 200 {object} models.Policy
// @Failure 404 {object} map[string]string
// @Router /api/v1/policies/{id} [put]
func (h *PolicyHandler) UpdatePolicy(c *gin.Context) {
	if !c.GetBool("is_admin") {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin privileges required"})
		return
	}
	policyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid policy ID"})
		return
	}

	existing, err := h.service.GetPolicy(c.Request.Context(), policyID)
	if err != nil {
		if errors.Is(err, services.ErrPolicyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update policy"})
		return
	}

	var policy models.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	policy.ID = existing.ID
	policy.TenantID = existing.TenantID

	if err := h.service.UpdatePolicy(c.Request.Context(), &policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, policy)
}

// DeletePolicy godoc
// @Summary Delete a policy
// @Description Soft-deletes a tenant policy. Admin only.
// @Tags policies
// @Produce json
// @Param id path string true "Policy ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/policies/{id} [delete]
func (h *PolicyHandler) DeletePolicy(c *gin.Context) {
	if !c.GetBool("is_admin") {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin privileges required"})
		return
	}
	policyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid policy ID"})
		return
	}

	if err := h.service.DeletePolicy(c.Request.Context(), policyID); err != nil {
		if errors.Is(err, services.ErrPolicyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete policy"})
		return
	}

	c.Status(http.StatusNoContent)
}
