package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "budgetledger/internal/errors"
	"budgetledger/internal/models"
	"budgetledger/internal/services"
)

// RateSyncer pulls market rates into a budget's conversion table.
type RateSyncer interface {
	SyncRates(ctx context.Context, budgetID string, month int, currencies []string) ([]models.ConversionRate, error)
}

// ConversionHandler handles conversion rate requests.
type ConversionHandler struct {
	conversionService services.ConversionServicer
	syncer            RateSyncer
	auditService      services.AuditServicer
}

// NewConversionHandler creates a new ConversionHandler.
func NewConversionHandler(conversionService services.ConversionServicer, syncer RateSyncer, auditService services.AuditServicer) *ConversionHandler {
	return &ConversionHandler{
		conversionService: conversionService,
		syncer:            syncer,
		auditService:      auditService,
	}
}

// SetRateRequest represents the request payload for storing a conversion rate.
type SetRateRequest struct {
	Currency string          `json:"currency" binding:"required,iso4217"`
	Month    int             `json:"month" binding:"required,month"`
	Rate     decimal.Decimal `json:"rate"`
}

// SyncRatesRequest represents the request payload for pulling market rates.
type SyncRatesRequest struct {
	Month      int      `json:"month" binding:"required,month"`
	Currencies []string `json:"currencies" binding:"required,min=1,dive,iso4217"`
}

// SetRate stores the multiplier for (budget, currency, month), replacing any existing one.
// @Summary     Set a conversion rate
// @Tags        rates
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string         true "Budget ID"
// @Param       request body SetRateRequest true "Rate details"
// @Success     200 {object} models.ConversionRate
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Router      /budgets/{id}/rates [put]
func (h *ConversionHandler) SetRate(c *gin.Context) {
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

	var req SetRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	rate, err := h.conversionService.SetRate(budgetID, req.Currency, req.Month, req.Rate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "SET_CONVERSION_RATE", "conversion_rate", rate.ID, c.ClientIP(),
		map[string]interface{}{"budget_id": budgetID, "currency": rate.Currency, "month": rate.Month, "rate": rate.Rate.String()})

	c.JSON(http.StatusOK, gin.H{"rate": rate})
}

// GetRates lists a budget's conversion rates.
// @Summary     List conversion rates
// @Tags        rates
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {array} models.ConversionRate
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Router      /budgets/{id}/rates [get]
func (h *ConversionHandler) GetRates(c *gin.Context) {
	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	rates, err := h.conversionService.ListRates(budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rates": rates, "reporting_currency": h.conversionService.ReportingCurrency()})
}

// GetRate fetches the rate for one currency and month.
// @Summary     Get a conversion rate
// @Tags        rates
// @Produce     json
// @Security    BearerAuth
// @Param       id       path string true "Budget ID"
// @Param       currency path string true "ISO 4217 code"
// @Param       month    path int    true "Month 1-12"
// @Success     200 {object} models.ConversionRate
// @Failure     404 {object} ErrorResponse "Rate not found"
// @Router      /budgets/{id}/rates/{currency}/{month} [get]
func (h *ConversionHandler) GetRate(c *gin.Context) {
	budgetID, currency, month, err := rateKey(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	rate, err := h.conversionService.GetRate(budgetID, currency, month)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rate": rate})
}

// DeleteRate removes the rate for one currency and month.
// @Summary     Delete a conversion rate
// @Tags        rates
// @Produce     json
// @Security    BearerAuth
// @Param       id       path string true "Budget ID"
// @Param       currency path string true "ISO 4217 code"
// @Param       month    path int    true "Month 1-12"
// @Success     200 {object} map[string]string
// @Failure     404 {object} ErrorResponse "Rate not found"
// @Router      /budgets/{id}/rates/{currency}/{month} [delete]
func (h *ConversionHandler) DeleteRate(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	budgetID, currency, month, err := rateKey(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.conversionService.DeleteRate(budgetID, currency, month); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DELETE_CONVERSION_RATE", "conversion_rate", budgetID, c.ClientIP(),
		map[string]interface{}{"currency": currency, "month": month})
	c.JSON(http.StatusOK, gin.H{"message": "Conversion rate deleted successfully"})
}

// Convert values an amount in the reporting currency.
// @Summary     Convert an amount
// @Tags        rates
// @Produce     json
// @Security    BearerAuth
// @Param       id       path  string true "Budget ID"
// @Param       amount   query string true "Native amount"
// @Param       currency query string true "ISO 4217 code"
// @Param       month    query int    true "Month 1-12"
// @Success     200 {object} services.Conversion
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Rate not found"
// @Router      /budgets/{id}/convert [get]
func (h *ConversionHandler) Convert(c *gin.Context) {
	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be a decimal number"))
		return
	}
	month, err := parseMonthParam(c.Query("month"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	conversion, err := h.conversionService.Convert(budgetID, amount, strings.ToUpper(c.Query("currency")), month)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversion": conversion, "reporting_currency": h.conversionService.ReportingCurrency()})
}

// SyncRates pulls market rates for the requested currencies into one month of a budget.
// @Summary     Sync conversion rates from the market feed
// @Tags        rates
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string           true "Budget ID"
// @Param       request body SyncRatesRequest true "Currencies to sync"
// @Success     200 {array} models.ConversionRate
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     502 {object} ErrorResponse "Rate feed unavailable"
// @Router      /budgets/{id}/rates/sync [post]
func (h *ConversionHandler) SyncRates(c *gin.Context) {
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

	var req SyncRatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	rates, err := h.syncer.SyncRates(c.Request.Context(), budgetID, req.Month, req.Currencies)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "SYNC_CONVERSION_RATES", "budget", budgetID, c.ClientIP(),
		map[string]interface{}{"month": req.Month, "currencies": req.Currencies})
	c.JSON(http.StatusOK, gin.H{"rates": rates})
}

func rateKey(c *gin.Context) (string, string, int, error) {
	budgetID, err := parsePathID(c, "id")
	if err != nil {
		return "", "", 0, err
	}
	month, err := parseMonthParam(c.Param("month"))
	if err != nil {
		return "", "", 0, err
	}
	return budgetID, strings.ToUpper(c.Param("currency")), month, nil
}
