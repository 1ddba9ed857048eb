package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "budgetledger/internal/errors"
	"budgetledger/internal/models"
	"budgetledger/internal/services"
)

// ChangeRequestHandler handles the plan change approval workflow.
type ChangeRequestHandler struct {
	changeRequestService services.ChangeRequestServicer
	auditService         services.AuditServicer
}

// NewChangeRequestHandler creates a new ChangeRequestHandler.
func NewChangeRequestHandler(changeRequestService services.ChangeRequestServicer, auditService services.AuditServicer) *ChangeRequestHandler {
	return &ChangeRequestHandler{
		changeRequestService: changeRequestService,
		auditService:         auditService,
	}
}

// CreateChangeRequestRequest represents the request payload for proposing new plan values.
type CreateChangeRequestRequest struct {
	BudgetLineID string               `json:"budget_line_id" binding:"required,uuid"`
	Values       models.MonthlyValues `json:"values" binding:"required"`
	Comment      string               `json:"comment" binding:"max=1000"`
}

// RejectChangeRequestRequest represents the request payload for rejecting a change request.
type RejectChangeRequestRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

// ApproveMultipleRequest represents the request payload for approving several requests at once.
type ApproveMultipleRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,dive,uuid"`
}

// CreateChangeRequest proposes new plan values for a budget line.
// @Summary     Create a change request
// @Tags        change-requests
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateChangeRequestRequest true "Proposed values"
// @Success     201 {object} models.ChangeRequest
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Budget line not found"
// @Router      /change-requests [post]
func (h *ChangeRequestHandler) CreateChangeRequest(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateChangeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	cr, err := h.changeRequestService.CreateChangeRequest(userID, req.BudgetLineID, req.Values, req.Comment)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_CHANGE_REQUEST", "change_request", cr.ID, c.ClientIP(),
		map[string]interface{}{"budget_line_id": cr.BudgetLineID, "months": req.Values.Months()})

	c.JSON(http.StatusCreated, gin.H{"change_request": cr})
}

// GetPendingChangeRequests lists the pending requests the caller may approve.
// @Summary     List change requests awaiting my approval
// @Tags        change-requests
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} map[string]interface{}
// @Router      /change-requests/pending [get]
func (h *ChangeRequestHandler) GetPendingChangeRequests(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	page, err := bindPage(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.changeRequestService.ListPendingForApprover(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetMyChangeRequests lists the caller's own requests, newest first.
// @Summary     List my change requests
// @Tags        change-requests
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} map[string]interface{}
// @Router      /change-requests/mine [get]
func (h *ChangeRequestHandler) GetMyChangeRequests(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	page, err := bindPage(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.changeRequestService.ListByRequester(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetChangeRequest returns one change request with its budget line.
// @Summary     Get a change request
// @Tags        change-requests
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Change request ID"
// @Success     200 {object} models.ChangeRequest
// @Failure     404 {object} ErrorResponse "Change request not found"
// @Router      /change-requests/{id} [get]
func (h *ChangeRequestHandler) GetChangeRequest(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	cr, err := h.changeRequestService.GetChangeRequest(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"change_request": cr})
}

// ApproveChangeRequest applies the proposed values to the line.
// @Summary     Approve a change request
// @Tags        change-requests
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Change request ID"
// @Success     200 {object} models.ChangeRequest
// @Failure     403 {object} ErrorResponse "Outside the approver's technology directions"
// @Failure     404 {object} ErrorResponse "Change request not found"
// @Failure     409 {object} ErrorResponse "Already resolved"
// @Router      /change-requests/{id}/approve [post]
func (h *ChangeRequestHandler) ApproveChangeRequest(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.changeRequestService.AuthorizeApproval(userID, []string{id}); err != nil {
		respondWithError(c, err)
		return
	}
	cr, err := h.changeRequestService.Approve(id, userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "APPROVE_CHANGE_REQUEST", "change_request", cr.ID, c.ClientIP(),
		map[string]interface{}{"budget_line_id": cr.BudgetLineID})

	c.JSON(http.StatusOK, gin.H{"change_request": cr})
}

// RejectChangeRequest closes a change request without touching the line.
// @Summary     Reject a change request
// @Tags        change-requests
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                     true  "Change request ID"
// @Param       request body RejectChangeRequestRequest false "Rejection reason"
// @Success     200 {object} models.ChangeRequest
// @Failure     403 {object} ErrorResponse "Outside the approver's technology directions"
// @Failure     404 {object} ErrorResponse "Change request not found"
// @Failure     409 {object} ErrorResponse "Already resolved"
// @Router      /change-requests/{id}/reject [post]
func (h *ChangeRequestHandler) RejectChangeRequest(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RejectChangeRequestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
			return
		}
	}

	if err := h.changeRequestService.AuthorizeApproval(userID, []string{id}); err != nil {
		respondWithError(c, err)
		return
	}
	cr, err := h.changeRequestService.Reject(id, userID, req.Reason)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "REJECT_CHANGE_REQUEST", "change_request", cr.ID, c.ClientIP(),
		map[string]interface{}{"reason": req.Reason})

	c.JSON(http.StatusOK, gin.H{"change_request": cr})
}

// ApproveMultipleChangeRequests approves a batch atomically: either every
// request is approved or none is.
// @Summary     Approve several change requests
// @Tags        change-requests
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body ApproveMultipleRequest true "Change request IDs"
// @Success     200 {array} models.ChangeRequest
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     403 {object} ErrorResponse "Outside the approver's technology directions"
// @Failure     409 {object} ErrorResponse "A request is already resolved"
// @Router      /change-requests/approve [post]
func (h *ChangeRequestHandler) ApproveMultipleChangeRequests(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ApproveMultipleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	if err := h.changeRequestService.AuthorizeApproval(userID, req.IDs); err != nil {
		respondWithError(c, err)
		return
	}
	approved, err := h.changeRequestService.ApproveMultiple(req.IDs, userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ids := make([]string, 0, len(approved))
	for _, cr := range approved {
		ids = append(ids, cr.ID)
	}
	h.auditService.Log(userID, "APPROVE_CHANGE_REQUESTS", "change_request", "", c.ClientIP(),
		map[string]interface{}{"ids": ids})

	c.JSON(http.StatusOK, gin.H{"change_requests": approved})
}
