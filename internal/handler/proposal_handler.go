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

type proposalService interface {
	ProposeSettings(ctx context.Context, actor *models.JWTClaims, req dto.ProposeSettingsRequest) (*models.PolicyProposal, error)
	ProposePolicy(ctx context.Context, actor *models.JWTClaims, req dto.ProposePolicyRequest) (*models.PolicyProposal, error)
	RequestRemoval(ctx context.Context, actor *models.JWTClaims, req dto.RemovalProposalRequest) (*models.PolicyProposal, error)
	RemoveSpecialPolicy(ctx context.Context, actor *models.JWTClaims, req dto.RemoveSpecialPolicyRequest) (*models.PolicyProposal, error)
	List(ctx context.Context, query dto.ProposalQuery) ([]models.PolicyProposal, error)
	Get(ctx context.Context, id string) (*models.PolicyProposal, error)
	Decide(ctx context.Context, actor *models.JWTClaims, req dto.DecideProposalRequest, approve bool) (*models.PolicyProposal, error)
}

type policyReader interface {
	GetGlobalPolicy(ctx context.Context) (*models.PolicyRule, error)
	CurrentPolicies(ctx context.Context) (*models.CurrentPolicies, error)
}

// ProposalHandler serves policy reads and the proposal workflow.
type ProposalHandler struct {
	proposals proposalService
	policies  policyReader
}

// NewProposalHandler constructs the handler.
func NewProposalHandler(proposals proposalService, policies policyReader) *ProposalHandler {
	return &ProposalHandler{proposals: proposals, policies: policies}
}

// SystemSettings godoc
// @Summary Current global print policy
// @Tags Policy
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /system-settings [get]
func (h *ProposalHandler) SystemSettings(c *gin.Context) {
	rule, err := h.policies.GetGlobalPolicy(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// CurrentPolicies godoc
// @Summary Global policy plus every special-user override
// @Tags Policy
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/current-policies [get]
func (h *ProposalHandler) CurrentPolicies(c *gin.Context) {
	current, err := h.policies.CurrentPolicies(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, current, nil)
}

// ProposeSettings godoc
// @Summary Propose new global limits
// @Tags Proposals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.ProposeSettingsRequest true "Proposed settings"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/propose-settings [post]
func (h *ProposalHandler) ProposeSettings(c *gin.Context) {
	var req dto.ProposeSettingsRequest
	if !bindJSON(c, &req, "invalid settings proposal") {
		return
	}
	proposal, err := h.proposals.ProposeSettings(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, proposal)
}

// ProposePolicy godoc
// @Summary Propose a global change, special-user override or removal
// @Tags Proposals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.ProposePolicyRequest true "Proposal"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/propose-policy [post]
func (h *ProposalHandler) ProposePolicy(c *gin.Context) {
	var req dto.ProposePolicyRequest
	if !bindJSON(c, &req, "invalid policy proposal") {
		return
	}
	proposal, err := h.proposals.ProposePolicy(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, proposal)
}

// RequestRemoval godoc
// @Summary Propose removing a user's special policy
// @Tags Proposals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.RemovalProposalRequest true "Removal request"
// @Success 201 {object} response.Envelope
// @Router /admin/request-removal-proposal [post]
func (h *ProposalHandler) RequestRemoval(c *gin.Context) {
	var req dto.RemovalProposalRequest
	if !bindJSON(c, &req, "invalid removal request") {
		return
	}
	proposal, err := h.proposals.RequestRemoval(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, proposal)
}

// RemoveSpecialPolicy godoc
// @Summary Remove a special policy immediately (senior approvers)
// @Tags Proposals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.RemoveSpecialPolicyRequest true "Target EPF"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/remove-special-policy [post]
func (h *ProposalHandler) RemoveSpecialPolicy(c *gin.Context) {
	var req dto.RemoveSpecialPolicyRequest
	if !bindJSON(c, &req, "invalid removal payload") {
		return
	}
	proposal, err := h.proposals.RemoveSpecialPolicy(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil)
}

// List godoc
// @Summary List policy proposals
// @Tags Proposals
// @Security BearerAuth
// @Produce json
// @Param type query string false "global|special_user|removal|all"
// @Param status query string false "pending|approved|rejected|all"
// @Success 200 {object} response.Envelope
// @Router /admin/policy-proposals [get]
func (h *ProposalHandler) List(c *gin.Context) {
	var query dto.ProposalQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	h.list(c, query)
}

// SettingsRequests godoc
// @Summary List settings proposals submitted by an admin
// @Tags Proposals
// @Security BearerAuth
// @Produce json
// @Param adminId query string false "Proposer EPF, defaults to the caller"
// @Success 200 {object} response.Envelope
// @Router /settings-requests [get]
func (h *ProposalHandler) SettingsRequests(c *gin.Context) {
	query := dto.ProposalQuery{Type: string(models.ProposalTypeGlobalChange), AdminID: strings.TrimSpace(c.Query("adminId"))}
	if query.AdminID == "" {
		if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleAdmin {
			query.AdminID = claims.UserID
		}
	}
	h.list(c, query)
}

func (h *ProposalHandler) list(c *gin.Context, query dto.ProposalQuery) {
	proposals, err := h.proposals.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposals, nil)
}

// Get godoc
// @Summary Get one proposal
// @Tags Proposals
// @Security BearerAuth
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/policy-proposals/{id} [get]
func (h *ProposalHandler) Get(c *gin.Context) {
	proposal, err := h.proposals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil)
}

// Approve godoc
// @Summary Approve a pending proposal
// @Tags Proposals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.DecideProposalRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /vc/policy-proposals/approve [post]
func (h *ProposalHandler) Approve(c *gin.Context) {
	h.decide(c, true)
}

// Reject godoc
// @Summary Reject a pending proposal
// @Tags Proposals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.DecideProposalRequest true "Decision with reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /vc/policy-proposals/reject [post]
func (h *ProposalHandler) Reject(c *gin.Context) {
	h.decide(c, false)
}

func (h *ProposalHandler) decide(c *gin.Context, approve bool) {
	var req dto.DecideProposalRequest
	if !bindJSON(c, &req, "invalid decision payload") {
		return
	}
	if strings.TrimSpace(req.ProposalID) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "proposalId is required"))
		return
	}
	proposal, err := h.proposals.Decide(c.Request.Context(), claimsFromContext(c), req, approve)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil)
}
