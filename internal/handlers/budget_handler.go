package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "budgetledger/internal/errors"
	"budgetledger/internal/models"
	"budgetledger/internal/services"
)

// BudgetHandler handles budget version and budget line requests.
type BudgetHandler struct {
	budgetService services.BudgetServicer
	auditService  services.AuditServicer
}

// NewBudgetHandler creates a new BudgetHandler.
func NewBudgetHandler(budgetService services.BudgetServicer, auditService services.AuditServicer) *BudgetHandler {
	return &BudgetHandler{budgetService: budgetService, auditService: auditService}
}

// CreateBudgetRequest represents the request payload for creating a budget.
type CreateBudgetRequest struct {
	Year           int     `json:"year" binding:"required,gte=1900,lte=9999"`
	Version        string  `json:"version" binding:"required,version_label"`
	SourceBudgetID *string `json:"source_budget_id" binding:"omitempty,uuid"`
}

// CreateVersionRequest represents the request payload for cloning a budget into its next version.
type CreateVersionRequest struct {
	Changes []services.PlanValueChange `json:"changes"`
}

// AddBudgetLineRequest represents the request payload for adding a budget line.
type AddBudgetLineRequest struct {
	ExpenseID          string               `json:"expense_id" binding:"required,uuid"`
	FinancialCompanyID string               `json:"financial_company_id" binding:"required,uuid"`
	Values             models.MonthlyValues `json:"values"`
}

// CreateBudget handles the creation of a budget version, optionally cloned from a source.
// @Summary     Create a budget
// @Description Create a budget for a year and version label, optionally copying the lines of a source budget
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateBudgetRequest true "Budget details"
// @Success     201 {object} models.Budget "Budget created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Source budget not found"
// @Failure     409 {object} ErrorResponse "Duplicate version"
// @Router      /budgets [post]
func (h *BudgetHandler) CreateBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	budget, err := h.budgetService.CreateBudget(userID, req.Year, req.Version, req.SourceBudgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_BUDGET", "budget", budget.ID, c.ClientIP(),
		map[string]interface{}{"year": req.Year, "version": req.Version, "source_budget_id": req.SourceBudgetID})

	c.JSON(http.StatusCreated, gin.H{"budget": budget})
}

// GetBudgets handles listing budgets.
// @Summary     List budgets
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       year      query int false "Filter by fiscal year"
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Budget] "Paginated budgets"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Router      /budgets [get]
func (h *BudgetHandler) GetBudgets(c *gin.Context) {
	page, err := bindPage(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var year *int
	if v := c.Query("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "year must be a number"))
			return
		}
		year = &y
	}

	result, err := h.budgetService.ListBudgets(page, year)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetBudget handles fetching a single budget.
// @Summary     Get a budget
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} models.Budget
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Router      /budgets/{id} [get]
func (h *BudgetHandler) GetBudget(c *gin.Context) {
	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	budget, err := h.budgetService.GetBudget(budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

// GetActiveBudget returns the budget flagged active, or the most recent one.
// @Summary     Get the active budget
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} models.Budget
// @Failure     404 {object} ErrorResponse "No budgets"
// @Router      /budgets/active [get]
func (h *BudgetHandler) GetActiveBudget(c *gin.Context) {
	budget, err := h.budgetService.GetActiveBudget()
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

// GetNextVersion reports the label the next version of a year would receive.
// @Summary     Next version label
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       year query int true "Fiscal year"
// @Success     200 {object} map[string]string
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Router      /budgets/versions/next [get]
func (h *BudgetHandler) GetNextVersion(c *gin.Context) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "year is required"))
		return
	}

	label, err := h.budgetService.NextVersionLabel(year)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "version": label})
}

// CreateVersion clones a budget into its next version, applying plan value overrides.
// @Summary     Create a new budget version
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string               true "Source budget ID"
// @Param       request body CreateVersionRequest true "Plan value overrides"
// @Success     201 {object} models.Budget "Version created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Budget or line not found"
// @Router      /budgets/{id}/versions [post]
func (h *BudgetHandler) CreateVersion(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	sourceID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateVersionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
			return
		}
	}

	budget, err := h.budgetService.CreateNewVersion(userID, sourceID, req.Changes)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_BUDGET_VERSION", "budget", budget.ID, c.ClientIP(),
		map[string]interface{}{"source_budget_id": sourceID, "version": budget.Version, "changes": len(req.Changes)})

	c.JSON(http.StatusCreated, gin.H{"budget": budget})
}

// ActivateBudget makes a budget the single active one.
// @Summary     Activate a budget
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} models.Budget
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Router      /budgets/{id}/activate [post]
func (h *BudgetHandler) ActivateBudget(c *gin.Context) {
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

	budget, err := h.budgetService.SetActiveBudget(budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "ACTIVATE_BUDGET", "budget", budget.ID, c.ClientIP(), nil)
	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

// SubmitForReview moves a budget into review.
// @Summary     Submit a budget for review
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} models.Budget
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     409 {object} ErrorResponse "Already in review"
// @Router      /budgets/{id}/review [post]
func (h *BudgetHandler) SubmitForReview(c *gin.Context) {
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

	budget, err := h.budgetService.SubmitForReview(budgetID, userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "SUBMIT_BUDGET_FOR_REVIEW", "budget", budget.ID, c.ClientIP(), nil)
	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

// DeleteBudget removes an inactive budget and everything planned under it.
// @Summary     Delete a budget
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} map[string]string
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     409 {object} ErrorResponse "Active or referenced by transactions"
// @Router      /budgets/{id} [delete]
func (h *BudgetHandler) DeleteBudget(c *gin.Context) {
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

	if err := h.budgetService.DeleteBudget(budgetID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DELETE_BUDGET", "budget", budgetID, c.ClientIP(), nil)
	c.JSON(http.StatusOK, gin.H{"message": "Budget deleted successfully"})
}

// GetValuation returns the budget's plan converted to the reporting currency.
// @Summary     Budget valuation
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} services.BudgetValuation
// @Failure     404 {object} ErrorResponse "Budget or rate not found"
// @Router      /budgets/{id}/valuation [get]
func (h *BudgetHandler) GetValuation(c *gin.Context) {
	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	valuation, err := h.budgetService.GetBudgetValuation(budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valuation": valuation})
}

// AddBudgetLine adds a line for an expense under a financial company.
// @Summary     Add a budget line
// @Tags        budget-lines
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string               true "Budget ID"
// @Param       request body AddBudgetLineRequest true "Line details"
// @Success     201 {object} models.BudgetLine
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Budget, expense or company not found"
// @Failure     409 {object} ErrorResponse "Duplicate line"
// @Router      /budgets/{id}/lines [post]
func (h *BudgetHandler) AddBudgetLine(c *gin.Context) {
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

	var req AddBudgetLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	line, err := h.budgetService.AddBudgetLine(budgetID, req.ExpenseID, req.FinancialCompanyID, req.Values)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "ADD_BUDGET_LINE", "budget_line", line.ID, c.ClientIP(),
		map[string]interface{}{"budget_id": budgetID, "expense_id": req.ExpenseID, "financial_company_id": req.FinancialCompanyID})

	c.JSON(http.StatusCreated, gin.H{"budget_line": line})
}

// GetBudgetLines lists a budget's lines.
// @Summary     List budget lines
// @Tags        budget-lines
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Budget ID"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.BudgetLine]
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Router      /budgets/{id}/lines [get]
func (h *BudgetHandler) GetBudgetLines(c *gin.Context) {
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

	result, err := h.budgetService.ListBudgetLines(budgetID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetBudgetLine fetches one line with its expense and company.
// @Summary     Get a budget line
// @Tags        budget-lines
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget line ID"
// @Success     200 {object} models.BudgetLine
// @Failure     404 {object} ErrorResponse "Line not found"
// @Router      /budget-lines/{id} [get]
func (h *BudgetHandler) GetBudgetLine(c *gin.Context) {
	lineID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	line, err := h.budgetService.GetBudgetLine(lineID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"budget_line": line})
}

// RemoveBudgetLine deletes a line that no transaction references.
// @Summary     Remove a budget line
// @Tags        budget-lines
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget line ID"
// @Success     200 {object} map[string]string
// @Failure     404 {object} ErrorResponse "Line not found"
// @Failure     409 {object} ErrorResponse "Line in use"
// @Router      /budget-lines/{id} [delete]
func (h *BudgetHandler) RemoveBudgetLine(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	lineID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.budgetService.RemoveBudgetLine(lineID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "REMOVE_BUDGET_LINE", "budget_line", lineID, c.ClientIP(), nil)
	c.JSON(http.StatusOK, gin.H{"message": "Budget line removed successfully"})
}
