package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/dto"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/response"
)

type approvalService interface {
	Escalate(ctx context.Context, actor *models.JWTClaims, printRequestID, justification string) (*models.ApprovalRequest, error)
	Justify(ctx context.Context, actor *models.JWTClaims, id, text string) (*models.ApprovalRequest, error)
	Submit(ctx context.Context, actor *models.JWTClaims, id, text string) (*models.ApprovalRequest, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.ApprovalRequest, error)
	ListMine(ctx context.Context, actor *models.JWTClaims) ([]models.ApprovalRequest, error)
	ListForDecider(ctx context.Context, actor *models.JWTClaims, query dto.ApprovalQuery) ([]models.ApprovalRequest, error)
	Decide(ctx context.Context, actor *models.JWTClaims, body dto.DecideApprovalRequest, approve bool) (*models.ApprovalRequest, error)
}

// ApprovalHandler serves escalation of blocked prints and their decisions.
type ApprovalHandler struct {
	service approvalService
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(service approvalService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// Escalate godoc
// @Summary Ask a senior approver to release a blocked print
// @Description An empty justification opens the request in the justifying state.
// @Tags Approvals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Print request ID"
// @Param payload body dto.EscalateRequest false "Justification"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /print/jobs/{id}/escalate [post]
func (h *ApprovalHandler) Escalate(c *gin.Context) {
	var req dto.EscalateRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid escalation payload") {
		return
	}
	approval, err := h.service.Escalate(c.Request.Context(), claimsFromContext(c), c.Param("id"), req.Justification)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, approval)
}

// Justify godoc
// @Summary Update the justification of an open request
// @Tags Approvals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Approval request ID"
// @Param payload body dto.JustificationRequest true "Justification"
// @Success 200 {object} response.Envelope
// @Router /approval-requests/{id}/justification [put]
func (h *ApprovalHandler) Justify(c *gin.Context) {
	var req dto.JustificationRequest
	if !bindJSON(c, &req, "invalid justification payload") {
		return
	}
	approval, err := h.service.Justify(c.Request.Context(), claimsFromContext(c), c.Param("id"), req.Justification)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// Submit godoc
// @Summary Submit a justified request for decision
// @Tags Approvals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Approval request ID"
// @Param payload body dto.JustificationRequest false "Final justification"
// @Success 200 {object} response.Envelope
// @Router /approval-requests/{id}/submit [post]
func (h *ApprovalHandler) Submit(c *gin.Context) {
	var req dto.JustificationRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid submit payload") {
		return
	}
	approval, err := h.service.Submit(c.Request.Context(), claimsFromContext(c), c.Param("id"), req.Justification)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// ListMine godoc
// @Summary List the caller's approval requests
// @Tags Approvals
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /approval-requests [get]
func (h *ApprovalHandler) ListMine(c *gin.Context) {
	items, err := h.service.ListMine(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get one approval request
// @Tags Approvals
// @Security BearerAuth
// @Produce json
// @Param id path string true "Approval request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /approval-requests/{id} [get]
func (h *ApprovalHandler) Get(c *gin.Context) {
	approval, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// ListForDecider godoc
// @Summary Approval queue for senior approvers
// @Tags Approvals
// @Security BearerAuth
// @Produce json
// @Param filter query string false "pending|approved|rejected|all"
// @Success 200 {object} response.Envelope
// @Router /vc/approval-requests [get]
func (h *ApprovalHandler) ListForDecider(c *gin.Context) {
	var query dto.ApprovalQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	items, err := h.service.ListForDecider(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Approve godoc
// @Summary Approve a pending request and release the print
// @Tags Approvals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.DecideApprovalRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /vc/approval-requests/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	h.decide(c, true)
}

// Reject godoc
// @Summary Reject a pending request
// @Tags Approvals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.DecideApprovalRequest true "Decision with reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /vc/approval-requests/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	h.decide(c, false)
}

func (h *ApprovalHandler) decide(c *gin.Context, approve bool) {
	var req dto.DecideApprovalRequest
	if !bindJSON(c, &req, "invalid decision payload") {
		return
	}
	if strings.TrimSpace(req.RequestID) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "requestId is required"))
		return
	}
	approval, err := h.service.Decide(c.Request.Context(), claimsFromContext(c), req, approve)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}
