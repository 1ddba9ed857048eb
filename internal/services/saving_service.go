package services

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "budgetledger/internal/errors"
	"budgetledger/internal/models"
	"budgetledger/internal/pagination"
	"budgetledger/internal/savings"
)

// savingService plans reductions against a budget and materializes approved
// ones into a new budget version.
type savingService struct {
	db      *gorm.DB
	budgets BudgetServicer
}

// NewSavingService creates a new SavingServicer.
func NewSavingService(db *gorm.DB, budgets BudgetServicer) SavingServicer {
	return &savingService{
		db:      db,
		budgets: budgets,
	}
}

// CreateSaving distributes the total over the year and stores it as PENDING.
// The target line is resolved only when the saving is applied.
func (s *savingService) CreateSaving(userID string, in CreateSavingInput) (*models.Saving, error) {
	distribution, err := savings.Distribute(in.TotalAmount, in.Strategy, savings.Params{
		Month:    in.Month,
		Schedule: in.Schedule,
	})
	if err != nil {
		return nil, err
	}

	var saving *models.Saving
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := findBudget(tx, in.BudgetID); err != nil {
			return err
		}
		var expense models.Expense
		if err := tx.First(&expense, "id = ?", in.ExpenseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrExpenseNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if in.FinancialCompanyID != nil {
			if _, err := findCompany(tx, *in.FinancialCompanyID); err != nil {
				return err
			}
		}

		saving = &models.Saving{
			BudgetID:           in.BudgetID,
			ExpenseID:          in.ExpenseID,
			FinancialCompanyID: in.FinancialCompanyID,
			TotalAmount:        in.TotalAmount,
			Strategy:           in.Strategy,
			Distribution:       distribution,
			Status:             models.SavingStatusPending,
			Description:        in.Description,
			CreatedBy:          userID,
		}
		if err := tx.Create(saving).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saving, nil
}

// ApproveSaving flips a PENDING saving to APPROVED. It does not touch any line.
func (s *savingService) ApproveSaving(savingID, approverID string) (*models.Saving, error) {
	var saving models.Saving
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&saving, "id = ?", savingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrSavingNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if saving.Status != models.SavingStatusPending {
			return apperrors.ErrSavingResolved
		}

		now := time.Now()
		result := tx.Model(&models.Saving{}).
			Where("id = ? AND status = ?", saving.ID, models.SavingStatusPending).
			Updates(map[string]interface{}{
				"status":      models.SavingStatusApproved,
				"approved_by": approverID,
				"approved_at": now,
			})
		if result.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrSavingResolved
		}
		saving.Status = models.SavingStatusApproved
		saving.ApprovedBy = &approverID
		saving.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saving, nil
}

// GetSaving retrieves a saving by ID.
func (s *savingService) GetSaving(savingID string) (*models.Saving, error) {
	var saving models.Saving
	if err := s.db.First(&saving, "id = ?", savingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSavingNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &saving, nil
}

// ListSavings returns a page of the budget's savings, newest first.
func (s *savingService) ListSavings(budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.Saving], error) {
	if _, err := findBudget(s.db, budgetID); err != nil {
		return nil, err
	}
	query := s.db.Model(&models.Saving{}).Where("budget_id = ?", budgetID)
	result, err := pagination.Find[models.Saving](query, page, "created_at desc, id desc")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &result, nil
}

// ApplySavings creates a new version of the budget in which every APPROVED,
// not yet applied saving is subtracted from its line, then marks those savings
// as applied to the new version. Both happen in one database transaction.
func (s *savingService) ApplySavings(budgetID, userID string) (*models.Budget, error) {
	var budget *models.Budget
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := findBudget(tx, budgetID); err != nil {
			return err
		}

		var pending []models.Saving
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("budget_id = ? AND status = ? AND applied_budget_id IS NULL", budgetID, models.SavingStatusApproved).
			Order("created_at asc, id asc").
			Find(&pending).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if len(pending) == 0 {
			return apperrors.ErrNoSavingsToApply
		}

		reduced := make(map[string]models.MonthlyValues)
		var order []string
		ids := make([]string, 0, len(pending))
		for i := range pending {
			line, err := savingLine(tx, &pending[i])
			if err != nil {
				return err
			}
			values, ok := reduced[line.ID]
			if !ok {
				values = make(models.MonthlyValues)
				reduced[line.ID] = values
				order = append(order, line.ID)
			}
			for month, amount := range pending[i].Distribution {
				if !models.ValidMonth(month) || amount.IsZero() {
					continue
				}
				current, ok := values[month]
				if !ok {
					current = line.PlanValue(month)
				}
				values[month] = current.Sub(amount)
			}
			ids = append(ids, pending[i].ID)
		}

		changes := make([]PlanValueChange, 0, len(order))
		for _, lineID := range order {
			changes = append(changes, PlanValueChange{SourceLineID: lineID, Values: reduced[lineID]})
		}

		var err error
		budget, err = s.budgets.CreateNewVersionWithDB(tx, userID, budgetID, changes)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.Saving{}).
			Where("id IN ?", ids).
			Update("applied_budget_id", budget.ID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return budget, nil
}

// savingLine finds the line of the saving's budget that the reduction targets:
// the one line for its expense, or the one matching its financial company.
func savingLine(tx *gorm.DB, saving *models.Saving) (*models.BudgetLine, error) {
	query := tx.Where("budget_id = ? AND expense_id = ?", saving.BudgetID, saving.ExpenseID)
	if saving.FinancialCompanyID != nil {
		query = query.Where("financial_company_id = ?", *saving.FinancialCompanyID)
	}

	var lines []models.BudgetLine
	if err := query.Limit(2).Find(&lines).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	switch len(lines) {
	case 0:
		return nil, apperrors.WithMessage(apperrors.ErrBudgetLineNotFound,
			"The budget has no line for this expense")
	case 1:
		return &lines[0], nil
	default:
		return nil, apperrors.ErrAmbiguousSavingsLine
	}
}
