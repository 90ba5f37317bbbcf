package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"decision-service/internal/engine"
	"decision-service/internal/models"
	"decision-service/internal/repository"
	"decision-service/internal/services"
)

// ApprovalHandler handles approval flow and approval request endpoints
type ApprovalHandler struct {
	service *services.ApprovalService
	logger  *logrus.Entry
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(service *services.ApprovalService, logger *logrus.Logger) *ApprovalHandler {
	return &ApprovalHandler{
		service: service,
		logger:  logger.WithField("component", "approval-handler"),
	}
}

// transitionStatus maps service and engine errors to HTTP status codes.
func transitionStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrRequestNotFound), errors.Is(err, services.ErrFlowNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNotAuthorizedApprover), errors.Is(err, engine.ErrDeniedByPolicy):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrRequestAlreadyTerminal),
		errors.Is(err, engine.ErrNotCurrentStep),
		errors.Is(err, repository.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, engine.ErrDelegationNotAllowed),
		errors.Is(err, engine.ErrNoEligibleApprover),
		errors.Is(err, engine.ErrStepNotInFlow),
		errors.Is(err, engine.ErrUnknownAction),
		errors.Is(err, engine.ErrFlowHasNoSteps):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// SubmitRequest godoc
// @Summary Submit an approval request
// @Description Creates an approval request for a business object and positions it at the first step of the matching flow
// @Tags approval-requests
// @Accept json
// @Produce json
// @Param request body services.SubmitInput true "Submission"
// @Success 201 {object} models.ApprovalRequest
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/approval-requests [post]
func (h *ApprovalHandler) SubmitRequest(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return
	}

	var input services.SubmitInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := uuid.Parse(input.RequestID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "requestId must be a valid UUID"})
		return
	}

	request, err := h.service.SubmitRequest(c.Request.Context(), tenantID, userID, input)
	if err != nil {
		h.logger.WithError(err).WithField("request_type", input.RequestType).Error("Failed to submit approval request")
		c.JSON(transitionStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, request)
}

// GetRequest godoc
// @Summary Get an approval request
// @Description Returns an approval request with its flow and history
// @Tags approval-requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} models.ApprovalRequest
// @Failure 404 {object} map[string]string
// @Router /api/v1/approval-requests/{id} [get]
func (h *ApprovalHandler) GetRequest(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request ID"})
		return
	}

	request, err := h.service.GetRequest(c.Request.Context(), requestID)
	if err != nil {
		c.JSON(transitionStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, request)
}

// ListRequests godoc
// @Summary List approval requests
// @Description Lists the tenant's approval requests, optionally filtered by status
// @Tags approval-requests
// @Produce json
// @Param status query string false "Status filter (pending, approved, rejected, returned, cancelled)"
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/approval-requests [get]
func (h *ApprovalHandler) ListRequests(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	limit, offset := pagination(c)

	requests, total, err := h.service.ListRequests(c.Request.Context(), tenantID, c.Query("status"), limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list approval requests")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list approval requests"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   requests,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// ListMyRequests godoc
// @Summary List my approval requests
// @Description Lists approval requests submitted by the current user
// @Tags approval-requests
// @Produce json
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/approval-requests/my [get]
func (h *ApprovalHandler) ListMyRequests(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return
	}
	limit, offset := pagination(c)

	requests, total, err := h.service.ListMyRequests(c.Request.Context(), tenantID, userID, limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list user's approval requests")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list approval requests"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   requests,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetRequestHistory godoc
// @Summary Get approval history
// @Description Returns the ordered action history of an approval request
// @Tags approval-requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {array} models.ApprovalHistory
// @Failure 404 {object} map[string]string
// @Router /api/v1/approval-requests/{id}/history [get]
func (h *ApprovalHandler) GetRequestHistory(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request ID"})
		return
	}

	history, err := h.service.GetRequestHistory(c.Request.Context(), requestID)
	if err != nil {
		c.JSON(transitionStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, history)
}

// transitionInput binds the common body of step-level actions and resolves
// the acting user from the request context.
func (h *ApprovalHandler) transitionInput(c *gin.Context, stepRequired bool) (*services.TransitionInput, bool) {
	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return nil, false
	}

	var body struct {
		StepID     string  `json:"stepId"`
		Comment    string  `json:"comment"`
		DelegateTo *string `json:"delegateTo"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	input := &services.TransitionInput{
		Actor:   userID,
		Comment: body.Comment,
		IsAdmin: c.GetBool("is_admin"),
	}

	if body.StepID != "" {
		stepID, err := uuid.Parse(body.StepID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "stepId must be a valid UUID"})
			return nil, false
		}
		input.StepID = stepID
	} else if stepRequired {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stepId is required"})
		return nil, false
	}

	if body.DelegateTo != nil {
		delegateTo, err := uuid.Parse(*body.DelegateTo)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "delegateTo must be a valid UUID"})
			return nil, false
		}
		input.DelegateTo = &delegateTo
	}

	return input, true
}

// ApproveRequest godoc
// @Summary Approve the current step
// @Description Records an approval by the acting user on the request's current step
// @Tags approval-requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} models.ApprovalRequest
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/approval-requests/{id}/approve [post]
func (h *ApprovalHandler) ApproveRequest(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request ID"})
		return
	}

	input, ok := h.transitionInput(c, true)
	if !ok {
		return
	}

	request, err := h.service.ApproveRequest(c.Request.Context(), requestID, *input)
	if err != nil {
		h.logger.WithError(err).WithField("request_id", requestID).Warn("Approve failed")
		c.JSON(transitionStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, request)
}

// RejectRequest godoc
// @Summary Reject the request
// @Description Rejects the approval request at its current step. A comment is required.
// @Tags approval-requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} models.ApprovalRequest
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/approval-requests/{id}/reject [post]
func (h *ApprovalHandler) RejectRequest(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request ID"})
		return
	}

	input, ok := h.transitionInput(c, true)
	if !ok {
		return
	}
	if input.Comment == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment is required when rejecting"})
		return
	}

	request, err := h.service.RejectRequest(c.Request.Context(), requestID, *input)
	if err != nil {
		h.logger.WithError(err).WithField("request_id", requestID).Warn("Reject failed")
		c.JSON(transitionStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, request)
}

// ReturnRequest godoc
// @Summary Return the request for rework
// @Description Returns the approval request to its requester for modification and resubmission
// @Tags approval-requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} models.ApprovalRequest
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/approval-requests/{id}/return [post]
func (h *ApprovalHandler) ReturnRequest(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request ID"})
		return
	}

	input, ok := h.transitionInput(c, true)
	if !ok {
		return
	}

	request, err := h.service.ReturnRequest(c.Request.Context(), requestID, *input)
	if err != nil {
		h.logger.WithError(err).WithField("request_id", requestID).Warn("Return failed")
		c.JSON(transitionStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, request)
}

// CancelRequest godoc
// @Summary Cancel the request
// @Description Cancels a pending approval request. Only the requester or an admin may cancel.
// @Tags approval-requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} models.ApprovalRequest
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/approval-requests/{id}/cancel [post]
func (h *ApprovalHandler) CancelRequest(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request ID"})
		return
	}

	input, ok := h.transitionInput(c, false)
	if !ok {
		return
	}

	request, err := h.service.CancelRequest(c.Request.Context(), requestID, *input)
	if err != nil {
		h.logger.WithError(err).WithField("request_id", requestID).Warn("Cancel failed")
		c.JSON(transitionStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, request)
}

// DelegateRequest godoc
// @Summary Delegate the current step
// @Description Hands the acting user's approval duty on the current step to another user
// @Tags approval-requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} models.ApprovalRequest
// @Failure 403 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/approval-requests/{id}/delegate [post]
func (h *ApprovalHandler) DelegateRequest(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request ID"})
		return
	}

	input, ok := h.transitionInput(c, true)
	if !ok {
		return
	}
	if input.DelegateTo == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delegateTo is required"})
		return
	}

	request, err := h.service.DelegateRequest(c.Request.Context(), requestID, *input)
	if err != nil {
		h.logger.WithError(err).WithField("request_id", requestID).Warn("Delegate failed")
		c.JSON(transitionStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, request)
}

// ListFlows godoc
// @Summary List approval flows
// @Description Lists the tenant's approval flows, including system defaults
// @Tags approval-flows
// @Produce json
// @Success 200 {array} models.ApprovalFlow
// @Router /api/v1/approval-flows [get]
func (h *ApprovalHandler) ListFlows(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	flows, err := h.service.ListFlows(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list approval flows")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list approval flows"})
		return
	}

	c.JSON(http.StatusOK, flows)
}

// GetFlow godoc
// @Summary Get an approval flow
// @Description Returns an approval flow with its active steps
// @Tags approval-flows
// @Produce json
// @Param id path string true "Flow ID"
// @Success 200 {object} models.ApprovalFlow
// @Failure 404 {object} map[string]string
// @Router /api/v1/approval-flows/{id} [get]
func (h *ApprovalHandler) GetFlow(c *gin.Context) {
	flowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid flow ID"})
		return
	}

	flow, err := h.service.GetFlow(c.Request.Context(), flowID)
	if err != nil {
		c.JSON(transitionStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, flow)
}

// CreateFlow godoc
// @Summary Create an approval flow
// @Description Creates a tenant approval flow with its steps. Admin only.
// @Tags approval-flows
// @Accept json
// @Produce json
// @Param flow body models.ApprovalFlow true "Flow definition"
// @Success 201 {object} models.ApprovalFlow
// @Failure 400 {object} map[string]string
// @Router /api/v1/approval-flows [post]
func (h *ApprovalHandler) CreateFlow(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if !c.GetBool("is_admin") {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin privileges required"})
		return
	}

	var flow models.ApprovalFlow
	if err := c.ShouldBindJSON(&flow); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if flow.Name == "" || flow.FlowType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and flowType are required"})
		return
	}

	flow.ID = uuid.Nil
	flow.TenantID = tenantID
	flow.IsSystem = false
	for i := range flow.Steps {
		flow.Steps[i].ID = uuid.Nil
		if flow.Steps[i].StepOrder == 0 {
			flow.Steps[i].StepOrder = i + 1
		}
	}

	if err := h.service.CreateFlow(c.Request.Context(), &flow); err != nil {
		h.logger.WithError(err).Error("Failed to create approval flow")
		c.JSON(transitionStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, flow)
}
