package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "budgetledger/internal/errors"
	"budgetledger/internal/models"
	"budgetledger/internal/services"
)

// SavingHandler handles savings planning requests.
type SavingHandler struct {
	savingService services.SavingServicer
	auditService  services.AuditServicer
}

// NewSavingHandler creates a new SavingHandler.
func NewSavingHandler(savingService services.SavingServicer, auditService services.AuditServicer) *SavingHandler {
	return &SavingHandler{savingService: savingService, auditService: auditService}
}

// CreateSavingRequest represents the request payload for planning a saving.
// Month is required by SINGLE_MONTH, schedule by CUSTOM.
type CreateSavingRequest struct {
	ExpenseID          string                `json:"expense_id" binding:"required,uuid"`
	FinancialCompanyID *string               `json:"financial_company_id" binding:"omitempty,uuid"`
	TotalAmount        decimal.Decimal       `json:"total_amount"`
	Strategy           models.SavingStrategy `json:"strategy" binding:"required,saving_strategy"`
	Month              int                   `json:"month"`
	Schedule           models.MonthlyValues  `json:"schedule"`
	Description        string                `json:"description" binding:"max=500"`
}

// CreateSaving plans a reduction of a budget's expense.
// @Summary     Create a saving
// @Tags        savings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string              true "Budget ID"
// @Param       request body CreateSavingRequest true "Saving details"
// @Success     201 {object} models.Saving
// @Failure     400 {object} ErrorResponse "Invalid distribution"
// @Failure     404 {object} ErrorResponse "Budget, expense or company not found"
// @Router      /budgets/{id}/savings [post]
func (h *SavingHandler) CreateSaving(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateSavingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	saving, err := h.savingService.CreateSaving(userID, services.CreateSavingInput{
		BudgetID:           budgetID,
		ExpenseID:          req.ExpenseID,
		FinancialCompanyID: req.FinancialCompanyID,
		TotalAmount:        req.TotalAmount,
		Strategy:           req.Strategy,
		Month:              req.Month,
		Schedule:           req.Schedule,
		Description:        req.Description,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_SAVING", "saving", saving.ID, c.ClientIP(),
		map[string]interface{}{"budget_id": budgetID, "total_amount": saving.TotalAmount.String(), "strategy": saving.Strategy})

	c.JSON(http.StatusCreated, gin.H{"saving": saving})
}

// GetSavings lists a budget's savings.
// @Summary     List savings
// @Tags        savings
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Budget ID"
// @Param       page      query int    false "Page number"
// @Param       page_size query int    false "Page size"
// @Success     200 {object} map[string]interface{}
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Router      /budgets/{id}/savings [get]
func (h *SavingHandler) GetSavings(c *gin.Context) {
	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	page, err := bindPage(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.savingService.ListSavings(budgetID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetSaving returns one saving.
// @Summary     Get a saving
// @Tags        savings
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Saving ID"
// @Success     200 {object} models.Saving
// @Failure     404 {object} ErrorResponse "Saving not found"
// @Router      /savings/{id} [get]
func (h *SavingHandler) GetSaving(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	saving, err := h.savingService.GetSaving(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saving": saving})
}

// ApproveSaving marks a pending saving as approved.
// @Summary     Approve a saving
// @Tags        savings
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Saving ID"
// @Success     200 {object} models.Saving
// @Failure     404 {object} ErrorResponse "Saving not found"
// @Failure     409 {object} ErrorResponse "Already approved"
// @Router      /savings/{id}/approve [post]
func (h *SavingHandler) ApproveSaving(c *gin.Context) {
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

	saving, err := h.savingService.ApproveSaving(id, userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "APPROVE_SAVING", "saving", saving.ID, c.ClientIP(), nil)
	c.JSON(http.StatusOK, gin.H{"saving": saving})
}

// ApplySavings creates the next budget version with every approved saving subtracted.
// @Summary     Apply approved savings
// @Tags        savings
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     201 {object} models.Budget "New budget version"
// @Failure     400 {object} ErrorResponse "A saving matches several lines"
// @Failure     404 {object} ErrorResponse "Budget or saving line not found"
// @Failure     409 {object} ErrorResponse "No approved savings to apply"
// @Router      /budgets/{id}/savings/apply [post]
func (h *SavingHandler) ApplySavings(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	budget, err := h.savingService.ApplySavings(budgetID, userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "APPLY_SAVINGS", "budget", budget.ID, c.ClientIP(),
		map[string]interface{}{"source_budget_id": budgetID, "version": budget.Version})

	c.JSON(http.StatusCreated, gin.H{"budget": budget})
}
