package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "budgetledger/internal/errors"
	"budgetledger/internal/models"
	"budgetledger/internal/validator"
)

// conversionService resolves (budget, currency, month) rates.
type conversionService struct {
	db                *gorm.DB
	reportingCurrency string
}

// NewConversionService creates a new ConversionServicer converting into reportingCurrency.
func NewConversionService(db *gorm.DB, reportingCurrency string) ConversionServicer {
	return &conversionService{db: db, reportingCurrency: strings.ToUpper(reportingCurrency)}
}

// ReportingCurrency returns the currency every amount is converted into.
func (s *conversionService) ReportingCurrency() string {
	return s.reportingCurrency
}

// GetRate returns the stored rate for the triple.
func (s *conversionService) GetRate(budgetID, currency string, month int) (*models.ConversionRate, error) {
	return s.getRate(s.db, budgetID, strings.ToUpper(currency), month)
}

func (s *conversionService) getRate(db *gorm.DB, budgetID, currency string, month int) (*models.ConversionRate, error) {
	if !models.ValidMonth(month) {
		return nil, apperrors.ErrInvalidMonth
	}
	var rate models.ConversionRate
	err := db.Where("budget_id = ? AND currency = ? AND month = ?", budgetID, currency, month).First(&rate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WithMessage(apperrors.ErrConversionRateNotFound,
				fmt.Sprintf("No conversion rate for %s in month %d", currency, month))
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &rate, nil
}

// SetRate creates or replaces the rate for (budget, currency, month).
func (s *conversionService) SetRate(budgetID, currency string, month int, rate decimal.Decimal) (*models.ConversionRate, error) {
	stored, err := s.SetRates(budgetID, month, []RateUpdate{{Currency: currency, Rate: rate}})
	if err != nil {
		return nil, err
	}
	return &stored[0], nil
}

// SetRates upserts several rates for one month in a single transaction.
// Every update is validated before anything is written.
func (s *conversionService) SetRates(budgetID string, month int, updates []RateUpdate) ([]models.ConversionRate, error) {
	if !models.ValidMonth(month) {
		return nil, apperrors.ErrInvalidMonth
	}
	if len(updates) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "At least one rate is required")
	}
	clean := make([]RateUpdate, len(updates))
	for i, u := range updates {
		currency, rate, err := s.validateRate(u.Currency, u.Rate)
		if err != nil {
			return nil, err
		}
		clean[i] = RateUpdate{Currency: currency, Rate: rate}
	}

	stored := make([]models.ConversionRate, 0, len(clean))
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := ensureBudgetExists(tx, budgetID); err != nil {
			return err
		}
		for _, u := range clean {
			cr, err := upsertRate(tx, budgetID, u.Currency, month, u.Rate)
			if err != nil {
				return err
			}
			stored = append(stored, *cr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *conversionService) validateRate(currency string, rate decimal.Decimal) (string, decimal.Decimal, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	rate = rate.Round(8)
	if !rate.IsPositive() {
		return "", rate, apperrors.ErrInvalidRate
	}
	if !validator.IsCurrency(currency) {
		return "", rate, apperrors.WithMessage(apperrors.ErrInvalidInput, "Unknown currency code")
	}
	if currency == s.reportingCurrency {
		return "", rate, apperrors.WithMessage(apperrors.ErrInvalidInput, "The reporting currency needs no conversion rate")
	}
	return currency, rate, nil
}

func upsertRate(tx *gorm.DB, budgetID, currency string, month int, rate decimal.Decimal) (*models.ConversionRate, error) {
	var result models.ConversionRate
	err := tx.Where("budget_id = ? AND currency = ? AND month = ?", budgetID, currency, month).First(&result).Error
	switch {
	case err == nil:
		result.Rate = rate
		if err := tx.Save(&result).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		result = models.ConversionRate{BudgetID: budgetID, Currency: currency, Month: month, Rate: rate}
		if err := tx.Create(&result).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	default:
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &result, nil
}

// ListRates returns every rate of a budget ordered by currency and month.
func (s *conversionService) ListRates(budgetID string) ([]models.ConversionRate, error) {
	if err := ensureBudgetExists(s.db, budgetID); err != nil {
		return nil, err
	}
	var rates []models.ConversionRate
	if err := s.db.Where("budget_id = ?", budgetID).Order("currency asc, month asc").Find(&rates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return rates, nil
}

// DeleteRate removes a rate. Transactions keep the rate they captured at write time.
func (s *conversionService) DeleteRate(budgetID, currency string, month int) error {
	if !models.ValidMonth(month) {
		return apperrors.ErrInvalidMonth
	}
	result := s.db.Where("budget_id = ? AND currency = ? AND month = ?", budgetID, strings.ToUpper(currency), month).
		Delete(&models.ConversionRate{})
	if result.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrConversionRateNotFound
	}
	return nil
}

// Convert converts amount from currency into the reporting currency.
func (s *conversionService) Convert(budgetID string, amount decimal.Decimal, currency string, month int) (*Conversion, error) {
	return s.ConvertWithDB(s.db, budgetID, amount, currency, month)
}

// ConvertWithDB converts within an existing database transaction.
// A missing rate is an error; amounts are never stored with a guessed rate.
func (s *conversionService) ConvertWithDB(tx *gorm.DB, budgetID string, amount decimal.Decimal, currency string, month int) (*Conversion, error) {
	currency = strings.ToUpper(currency)
	if !models.ValidMonth(month) {
		return nil, apperrors.ErrInvalidMonth
	}
	if currency == s.reportingCurrency {
		return &Conversion{Rate: decimal.NewFromInt(1), Value: amount}, nil
	}

	rate, err := s.getRate(tx, budgetID, currency, month)
	if err != nil {
		return nil, err
	}
	return &Conversion{Rate: rate.Rate, Value: amount.Mul(rate.Rate).Round(2)}, nil
}

// ensureBudgetExists maps a missing budget to ErrBudgetNotFound.
func ensureBudgetExists(db *gorm.DB, budgetID string) error {
	var count int64
	if err := db.Model(&models.Budget{}).Where("id = ?", budgetID).Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count == 0 {
		return apperrors.ErrBudgetNotFound
	}
	return nil
}
