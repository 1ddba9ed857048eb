package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "budgetledger/internal/errors"
	"budgetledger/internal/models"
	"budgetledger/internal/services"
	"budgetledger/internal/uuid"
)

// TransactionHandler handles ledger transaction requests.
type TransactionHandler struct {
	transactionService services.TransactionServicer
	auditService       services.AuditServicer
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(transactionService services.TransactionServicer, auditService services.AuditServicer) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		auditService:       auditService,
	}
}

// RecordTransactionRequest represents the request payload for recording a transaction.
type RecordTransactionRequest struct {
	Type               models.TransactionType `json:"type" binding:"required,transaction_type"`
	BudgetLineID       *string                `json:"budget_line_id" binding:"omitempty,uuid"`
	FinancialCompanyID string                 `json:"financial_company_id" binding:"omitempty,uuid"`
	ReferenceDocument  string                 `json:"reference_document" binding:"required,max=100"`
	PostingDate        time.Time              `json:"posting_date" binding:"required"`
	Value              decimal.Decimal        `json:"value"`
	Currency           string                 `json:"currency" binding:"omitempty,iso4217"`
	CompensatesID      *string                `json:"compensates_id" binding:"omitempty,uuid"`
	Description        string                 `json:"description" binding:"max=500"`
}

// UpdateTransactionRequest represents the request payload for editing a transaction.
// Type and compensates_id are bound only so that attempts to change them can be rejected.
type UpdateTransactionRequest struct {
	Type              *models.TransactionType `json:"type"`
	CompensatesID     *string                 `json:"compensates_id"`
	ReferenceDocument *string                 `json:"reference_document" binding:"omitempty,min=1,max=100"`
	PostingDate       *time.Time              `json:"posting_date"`
	Value             *decimal.Decimal        `json:"value"`
	Currency          *string                 `json:"currency" binding:"omitempty,iso4217"`
	Description       *string                 `json:"description" binding:"omitempty,max=500"`
}

// RecordTransaction handles recording a COMMITTED or REAL transaction.
// @Summary     Record a transaction
// @Description Record a commitment or an actual payment. A REAL transaction may compensate one COMMITTED transaction.
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body RecordTransactionRequest true "Transaction details"
// @Success     201 {object} models.Transaction "Transaction recorded"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Budget line, company, rate or compensated transaction not found"
// @Failure     409 {object} ErrorResponse "Duplicate reference or already compensated"
// @Router      /transactions [post]
func (h *TransactionHandler) RecordTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RecordTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	tx, err := h.transactionService.RecordTransaction(userID, services.RecordTransactionInput{
		Type:               req.Type,
		BudgetLineID:       req.BudgetLineID,
		FinancialCompanyID: req.FinancialCompanyID,
		ReferenceDocument:  req.ReferenceDocument,
		PostingDate:        req.PostingDate,
		Value:              req.Value,
		Currency:           req.Currency,
		CompensatesID:      req.CompensatesID,
		Description:        req.Description,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "RECORD_TRANSACTION", "transaction", tx.ID, c.ClientIP(),
		map[string]interface{}{
			"type":               tx.Type,
			"budget_line_id":     tx.BudgetLineID,
			"reference_document": tx.ReferenceDocument,
			"value":              tx.Value.String(),
			"currency":           tx.Currency,
			"compensates_id":     tx.CompensatesID,
		})

	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// GetTransactions lists transactions with optional filters.
// @Summary     List transactions
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       budget_line_id query string false "Filter by budget line"
// @Param       type           query string false "COMMITTED or REAL"
// @Param       month          query int    false "Posting month 1-12"
// @Param       compensated    query bool   false "Filter commitments by compensation"
// @Param       page           query int    false "Page number"
// @Param       page_size      query int    false "Page size"
// @Success     200 {object} map[string]interface{}
// @Failure     400 {object} ErrorResponse "Invalid filter"
// @Router      /transactions [get]
func (h *TransactionHandler) GetTransactions(c *gin.Context) {
	page, err := bindPage(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	filter, err := parseTransactionFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.transactionService.ListTransactions(page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// parseTransactionFilter extracts the list filters from query parameters.
func parseTransactionFilter(c *gin.Context) (services.TransactionFilter, error) {
	var filter services.TransactionFilter

	if raw := c.Query("budget_line_id"); raw != "" {
		if !uuid.IsValid(raw) {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid budget_line_id")
		}
		filter.BudgetLineID = &raw
	}
	if raw := c.Query("type"); raw != "" {
		t := models.TransactionType(raw)
		if !t.Valid() {
			return filter, apperrors.ErrInvalidTransactionType
		}
		filter.Type = &t
	}
	if raw := c.Query("month"); raw != "" {
		month, err := parseMonthParam(raw)
		if err != nil {
			return filter, err
		}
		filter.Month = &month
	}
	if raw := c.Query("compensated"); raw != "" {
		compensated, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "compensated must be true or false")
		}
		filter.Compensated = &compensated
	}
	return filter, nil
}

// GetTransactionByID returns one transaction.
// @Summary     Get a transaction
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} models.Transaction
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Router      /transactions/{id} [get]
func (h *TransactionHandler) GetTransactionByID(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	tx, err := h.transactionService.GetTransaction(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// UpdateTransaction edits the mutable fields of a transaction. A currency or value
// change revalues it with the rate of its posting month.
// @Summary     Update a transaction
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                   true "Transaction ID"
// @Param       request body UpdateTransactionRequest true "Fields to change"
// @Success     200 {object} models.Transaction
// @Failure     400 {object} ErrorResponse "Invalid input or immutable field"
// @Failure     404 {object} ErrorResponse "Transaction or rate not found"
// @Failure     409 {object} ErrorResponse "Duplicate reference"
// @Router      /transactions/{id} [patch]
func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
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

	var req UpdateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	tx, err := h.transactionService.UpdateTransaction(id, services.TransactionChanges{
		Type:              req.Type,
		CompensatesID:     req.CompensatesID,
		ReferenceDocument: req.ReferenceDocument,
		PostingDate:       req.PostingDate,
		Value:             req.Value,
		Currency:          req.Currency,
		Description:       req.Description,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_TRANSACTION", "transaction", tx.ID, c.ClientIP(),
		map[string]interface{}{"value": tx.Value.String(), "currency": tx.Currency, "reference_document": tx.ReferenceDocument})

	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// DeleteTransaction removes a transaction. Deleting a compensating payment
// reopens the commitment it settled.
// @Summary     Delete a transaction
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} map[string]string
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     409 {object} ErrorResponse "Transaction is compensated"
// @Router      /transactions/{id} [delete]
func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
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

	if err := h.transactionService.DeleteTransaction(id); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DELETE_TRANSACTION", "transaction", id, c.ClientIP(), nil)
	c.JSON(http.StatusOK, gin.H{"message": "Transaction deleted successfully"})
}
