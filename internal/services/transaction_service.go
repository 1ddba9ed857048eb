package services

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "budgetledger/internal/errors"
	"budgetledger/internal/metrics"
	"budgetledger/internal/models"
	"budgetledger/internal/pagination"
	"budgetledger/internal/validator"
)

// transactionService records committed and real transactions and keeps the
// compensation link between them consistent.
type transactionService struct {
	db          *gorm.DB
	conversions ConversionServicer
}

// NewTransactionService creates a new TransactionServicer.
func NewTransactionService(db *gorm.DB, conversions ConversionServicer) TransactionServicer {
	return &transactionService{
		db:          db,
		conversions: conversions,
	}
}

// RecordTransaction validates and stores a transaction. A REAL transaction that
// compensates a COMMITTED one flips the target's flag in the same database transaction.
func (s *transactionService) RecordTransaction(userID string, in RecordTransactionInput) (*models.Transaction, error) {
	if !in.Type.Valid() {
		return nil, apperrors.ErrInvalidTransactionType
	}
	if in.CompensatesID != nil && in.Type != models.TransactionTypeReal {
		return nil, apperrors.ErrInvalidCompensation
	}
	reference := strings.TrimSpace(in.ReferenceDocument)
	if reference == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Reference document is required")
	}
	if in.PostingDate.IsZero() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Posting date is required")
	}
	if err := validateTransactionValue(in.Value); err != nil {
		return nil, err
	}

	var result *models.Transaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var line *models.BudgetLine
		companyID := in.FinancialCompanyID
		if in.BudgetLineID != nil {
			var err error
			line, err = findBudgetLine(tx, *in.BudgetLineID, false)
			if err != nil {
				return err
			}
			if companyID == "" {
				companyID = line.FinancialCompanyID
			} else if companyID != line.FinancialCompanyID {
				return apperrors.WithMessage(apperrors.ErrInvalidInput,
					"Financial company does not match the budget line")
			}
		}
		if companyID == "" {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "Financial company is required")
		}

		company, err := findCompany(tx, companyID)
		if err != nil {
			return err
		}

		currency := strings.ToUpper(strings.TrimSpace(in.Currency))
		if currency == "" {
			currency = company.Currency
		}
		if !validator.IsCurrency(currency) {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "Unknown currency code")
		}

		if line != nil {
			if err := ensureReferenceUnique(tx, line.ID, reference, ""); err != nil {
				return err
			}
		}

		t := &models.Transaction{
			Type:               in.Type,
			BudgetLineID:       in.BudgetLineID,
			FinancialCompanyID: companyID,
			ReferenceDocument:  reference,
			PostingDate:        in.PostingDate,
			Month:              int(in.PostingDate.Month()),
			Value:              in.Value,
			Currency:           currency,
			CompensatesID:      in.CompensatesID,
			Description:        in.Description,
			CreatedBy:          userID,
		}
		if err := s.resolveReportingValue(tx, t, line); err != nil {
			return err
		}

		if in.CompensatesID != nil {
			if err := compensate(tx, *in.CompensatesID); err != nil {
				return err
			}
		}

		if err := insertUnique(tx, t, apperrors.ErrDuplicateReferenceDocument); err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TransactionsRecorded.WithLabelValues(string(result.Type)).Inc()
	if result.CompensatesID != nil {
		metrics.CompensationsTotal.WithLabelValues("linked").Inc()
	}
	return result, nil
}

// resolveReportingValue captures the rate and reporting value at write time.
// Lines resolve through the budget's rates and fail when none exists.
// Without a line only reporting-currency amounts can be valued.
func (s *transactionService) resolveReportingValue(tx *gorm.DB, t *models.Transaction, line *models.BudgetLine) error {
	if line != nil {
		conv, err := s.conversions.ConvertWithDB(tx, line.BudgetID, t.Value, t.Currency, t.Month)
		if err != nil {
			return err
		}
		t.ConversionRate = decimal.NewNullDecimal(conv.Rate)
		t.ReportingValue = decimal.NewNullDecimal(conv.Value)
		return nil
	}

	if t.Currency == s.conversions.ReportingCurrency() {
		t.ConversionRate = decimal.NewNullDecimal(decimal.NewFromInt(1))
		t.ReportingValue = decimal.NewNullDecimal(t.Value)
		return nil
	}
	t.ConversionRate = decimal.NullDecimal{}
	t.ReportingValue = decimal.NullDecimal{}
	return nil
}

// compensate marks the COMMITTED target as compensated. The conditional
// update makes a concurrent second compensation observe ErrAlreadyCompensated.
func compensate(tx *gorm.DB, targetID string) error {
	var target models.Transaction
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&target, "id = ?", targetID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrCompensationTargetNotFound
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if target.Type != models.TransactionTypeCommitted {
		return apperrors.ErrInvalidCompensation
	}
	if target.IsCompensated {
		return apperrors.ErrAlreadyCompensated
	}

	result := tx.Model(&models.Transaction{}).
		Where("id = ? AND is_compensated = ?", targetID, false).
		Update("is_compensated", true)
	if result.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrAlreadyCompensated
	}
	return nil
}

func ensureReferenceUnique(tx *gorm.DB, lineID, reference, excludeID string) error {
	q := tx.Model(&models.Transaction{}).Where("budget_line_id = ? AND reference_document = ?", lineID, reference)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return apperrors.ErrDuplicateReferenceDocument
	}
	return nil
}

func validateTransactionValue(v decimal.Decimal) error {
	if v.IsZero() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "Value must not be zero")
	}
	if !v.Equal(v.Round(2)) {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "Value must have at most two decimal places")
	}
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (s *transactionService) GetTransaction(transactionID string) (*models.Transaction, error) {
	return findTransaction(s.db, transactionID)
}

func findTransaction(db *gorm.DB, transactionID string) (*models.Transaction, error) {
	var t models.Transaction
	if err := db.First(&t, "id = ?", transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &t, nil
}

// ListTransactions returns a page of transactions, newest posting first.
func (s *transactionService) ListTransactions(page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	base := applyTransactionFilters(s.db.Model(&models.Transaction{}), filter)
	result, err := pagination.Find[models.Transaction](base, page, "posting_date desc, created_at desc")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &result, nil
}

func applyTransactionFilters(q *gorm.DB, f TransactionFilter) *gorm.DB {
	if f.BudgetLineID != nil {
		q = q.Where("budget_line_id = ?", *f.BudgetLineID)
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	if f.Month != nil {
		q = q.Where("month = ?", *f.Month)
	}
	if f.Compensated != nil {
		q = q.Where("type = ? AND is_compensated = ?", models.TransactionTypeCommitted, *f.Compensated)
	}
	return q
}

// UpdateTransaction edits a transaction. Type and compensation link are fixed
// at creation; changing value, currency or posting date re-resolves the rate.
func (s *transactionService) UpdateTransaction(transactionID string, changes TransactionChanges) (*models.Transaction, error) {
	var result *models.Transaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		t, err := findTransaction(tx, transactionID)
		if err != nil {
			return err
		}

		if changes.Type != nil && *changes.Type != t.Type {
			return apperrors.ErrTransactionNotEditable
		}
		if changes.CompensatesID != nil && (t.CompensatesID == nil || *changes.CompensatesID != *t.CompensatesID) {
			return apperrors.ErrTransactionNotEditable
		}

		revalue := false
		if changes.Value != nil {
			if err := validateTransactionValue(*changes.Value); err != nil {
				return err
			}
			revalue = revalue || !changes.Value.Equal(t.Value)
			t.Value = *changes.Value
		}
		if changes.Currency != nil {
			currency := strings.ToUpper(strings.TrimSpace(*changes.Currency))
			if !validator.IsCurrency(currency) {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, "Unknown currency code")
			}
			revalue = revalue || currency != t.Currency
			t.Currency = currency
		}
		if changes.PostingDate != nil {
			if changes.PostingDate.IsZero() {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, "Posting date is required")
			}
			revalue = revalue || !changes.PostingDate.Equal(t.PostingDate)
			t.PostingDate = *changes.PostingDate
			t.Month = int(changes.PostingDate.Month())
		}
		if changes.ReferenceDocument != nil {
			reference := strings.TrimSpace(*changes.ReferenceDocument)
			if reference == "" {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, "Reference document is required")
			}
			if t.BudgetLineID != nil && reference != t.ReferenceDocument {
				if err := ensureReferenceUnique(tx, *t.BudgetLineID, reference, t.ID); err != nil {
					return err
				}
			}
			t.ReferenceDocument = reference
		}
		if changes.Description != nil {
			t.Description = *changes.Description
		}

		if revalue {
			var line *models.BudgetLine
			if t.BudgetLineID != nil {
				line, err = findBudgetLine(tx, *t.BudgetLineID, false)
				if err != nil {
					return err
				}
			}
			if err := s.resolveReportingValue(tx, t, line); err != nil {
				return err
			}
		}

		t.UpdatedAt = time.Now()
		if err := tx.Save(t).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.ErrDuplicateReferenceDocument
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteTransaction deletes a transaction. Deleting a compensating REAL
// transaction reopens its COMMITTED target; a compensated COMMITTED
// transaction cannot be deleted while its settlement exists.
func (s *transactionService) DeleteTransaction(transactionID string) error {
	released := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		t, err := findTransaction(tx, transactionID)
		if err != nil {
			return err
		}
		if t.Type == models.TransactionTypeCommitted && t.IsCompensated {
			return apperrors.ErrTransactionCompensated
		}

		if err := tx.Delete(&models.Transaction{}, "id = ?", t.ID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if t.Type == models.TransactionTypeReal && t.CompensatesID != nil {
			if err := tx.Model(&models.Transaction{}).
				Where("id = ?", *t.CompensatesID).
				Update("is_compensated", false).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			released = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if released {
		metrics.CompensationsTotal.WithLabelValues("released").Inc()
	}
	return nil
}
