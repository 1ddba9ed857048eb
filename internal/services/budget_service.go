package services

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "budgetledger/internal/errors"
	"budgetledger/internal/metrics"
	"budgetledger/internal/models"
	"budgetledger/internal/pagination"
)

var versionLabelPattern = regexp.MustCompile(`^v(\d+)$`)

// budgetService handles budget versioning and budget lines.
type budgetService struct {
	db          *gorm.DB
	conversions ConversionServicer
}

// NewBudgetService creates a new BudgetServicer.
func NewBudgetService(db *gorm.DB, conversions ConversionServicer) BudgetServicer {
	return &budgetService{db: db, conversions: conversions}
}

// CreateBudget creates a budget, cloning lines and rates from sourceBudgetID when given.
// The new budget always starts inactive.
func (s *budgetService) CreateBudget(userID string, year int, version string, sourceBudgetID *string) (*models.Budget, error) {
	version = strings.TrimSpace(version)
	if year < 1 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Year must be positive")
	}
	if version == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Version is required")
	}

	var budget *models.Budget
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Budget{}).Where("year = ? AND version = ?", year, version).Count(&count).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count > 0 {
			return apperrors.ErrDuplicateBudgetVersion
		}

		if sourceBudgetID != nil {
			if _, err := findBudget(tx, *sourceBudgetID); err != nil {
				return err
			}
		}

		budget = &models.Budget{
			Year:           year,
			Version:        version,
			ReviewStatus:   models.ReviewStatusNone,
			SourceBudgetID: sourceBudgetID,
			CreatedBy:      userID,
		}
		if err := insertUnique(tx, budget, apperrors.ErrDuplicateBudgetVersion); err != nil {
			return err
		}

		if sourceBudgetID != nil {
			return cloneBudgetContents(tx, *sourceBudgetID, budget.ID, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	origin := "standalone"
	if sourceBudgetID != nil {
		origin = "clone"
	}
	metrics.BudgetVersionsCreated.WithLabelValues(origin).Inc()
	return budget, nil
}

// CreateNewVersion clones the source into the next "vN" version of its year,
// applying the plan value overrides on top of the cloned lines.
func (s *budgetService) CreateNewVersion(userID, sourceBudgetID string, changes []PlanValueChange) (*models.Budget, error) {
	var budget *models.Budget
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		budget, err = s.CreateNewVersionWithDB(tx, userID, sourceBudgetID, changes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return budget, nil
}

// CreateNewVersionWithDB is CreateNewVersion inside a caller-owned transaction.
func (s *budgetService) CreateNewVersionWithDB(tx *gorm.DB, userID, sourceBudgetID string, changes []PlanValueChange) (*models.Budget, error) {
	overrides := make(map[string]models.MonthlyValues, len(changes))
	for _, change := range changes {
		merged, ok := overrides[change.SourceLineID]
		if !ok {
			merged = make(models.MonthlyValues)
			overrides[change.SourceLineID] = merged
		}
		for month, amount := range change.Values {
			if !models.ValidMonth(month) {
				return nil, apperrors.WithMessage(apperrors.ErrInvalidMonth,
					fmt.Sprintf("Month %d is outside 1-12", month))
			}
			merged[month] = amount.Round(2)
		}
	}

	source, err := findBudget(tx, sourceBudgetID)
	if err != nil {
		return nil, err
	}

	label, err := nextVersionLabel(tx, source.Year)
	if err != nil {
		return nil, err
	}

	budget := &models.Budget{
		Year:           source.Year,
		Version:        label,
		ReviewStatus:   models.ReviewStatusNone,
		SourceBudgetID: &source.ID,
		CreatedBy:      userID,
	}
	if err := insertUnique(tx, budget, apperrors.ErrDuplicateBudgetVersion); err != nil {
		return nil, err
	}

	if err := cloneBudgetContents(tx, source.ID, budget.ID, overrides); err != nil {
		return nil, err
	}

	metrics.BudgetVersionsCreated.WithLabelValues("version").Inc()
	return budget, nil
}

// NextVersionLabel returns the label CreateNewVersion would assign for year.
func (s *budgetService) NextVersionLabel(year int) (string, error) {
	return nextVersionLabel(s.db, year)
}

// nextVersionLabel returns "v{max numeric suffix + 1}", or "v1" when the year
// has no "vN" labels yet. Labels of other shapes are ignored.
func nextVersionLabel(db *gorm.DB, year int) (string, error) {
	var versions []string
	if err := db.Model(&models.Budget{}).Where("year = ?", year).Pluck("version", &versions).Error; err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	highest := 0
	for _, v := range versions {
		m := versionLabelPattern.FindStringSubmatch(v)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return "v" + strconv.Itoa(highest+1), nil
}

// cloneBudgetContents copies rates and lines from source into target.
// Every override key must name a line of the source budget.
func cloneBudgetContents(tx *gorm.DB, sourceID, targetID string, overrides map[string]models.MonthlyValues) error {
	var rates []models.ConversionRate
	if err := tx.Where("budget_id = ?", sourceID).Find(&rates).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(rates) > 0 {
		clones := make([]models.ConversionRate, 0, len(rates))
		for _, r := range rates {
			clones = append(clones, models.ConversionRate{
				BudgetID: targetID,
				Currency: r.Currency,
				Month:    r.Month,
				Rate:     r.Rate,
			})
		}
		if err := tx.Create(&clones).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	var lines []models.BudgetLine
	if err := tx.Where("budget_id = ?", sourceID).Find(&lines).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	applied := 0
	if len(lines) > 0 {
		clones := make([]models.BudgetLine, 0, len(lines))
		for _, l := range lines {
			clone := models.BudgetLine{
				BudgetID:           targetID,
				ExpenseID:          l.ExpenseID,
				FinancialCompanyID: l.FinancialCompanyID,
				Currency:           l.Currency,
			}
			clone.ApplyPlanValues(l.PlanValues())
			if values, ok := overrides[l.ID]; ok {
				clone.ApplyPlanValues(values)
				applied++
			}
			clones = append(clones, clone)
		}
		if err := tx.Create(&clones).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	if applied != len(overrides) {
		return apperrors.WithMessage(apperrors.ErrBudgetLineNotFound,
			"Plan value change references a line outside the source budget")
	}
	return nil
}

// SetActiveBudget makes budgetID the only active budget.
func (s *budgetService) SetActiveBudget(budgetID string) (*models.Budget, error) {
	var budget *models.Budget
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		budget, err = findBudget(tx, budgetID)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.Budget{}).Where("is_active = ?", true).Update("is_active", false).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Model(&models.Budget{}).Where("id = ?", budget.ID).Update("is_active", true).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		budget.IsActive = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return budget, nil
}

// GetActiveBudget returns the flagged budget, falling back to the most recent one.
func (s *budgetService) GetActiveBudget() (*models.Budget, error) {
	var budget models.Budget
	err := s.db.Where("is_active = ?", true).First(&budget).Error
	if err == nil {
		return &budget, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := s.db.Order("year desc, created_at desc, id desc").First(&budget).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &budget, nil
}

// SubmitForReview moves a budget from NONE to IN_REVIEW.
func (s *budgetService) SubmitForReview(budgetID, submitterID string) (*models.Budget, error) {
	var budget *models.Budget
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		budget, err = findBudget(tx, budgetID)
		if err != nil {
			return err
		}
		if budget.ReviewStatus == models.ReviewStatusInReview {
			return apperrors.ErrBudgetAlreadyInReview
		}

		now := time.Now()
		result := tx.Model(&models.Budget{}).
			Where("id = ? AND review_status = ?", budgetID, models.ReviewStatusNone).
			Updates(map[string]interface{}{
				"review_status": models.ReviewStatusInReview,
				"submitted_by":  submitterID,
				"submitted_at":  now,
			})
		if result.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrBudgetAlreadyInReview
		}

		budget.ReviewStatus = models.ReviewStatusInReview
		budget.SubmittedBy = &submitterID
		budget.SubmittedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return budget, nil
}

// DeleteBudget removes an inactive budget with its lines, rates, savings and
// change requests. Budgets whose lines carry transactions are kept.
func (s *budgetService) DeleteBudget(budgetID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		budget, err := findBudget(tx, budgetID)
		if err != nil {
			return err
		}
		if budget.IsActive {
			return apperrors.ErrActiveBudgetDelete
		}

		lineIDs := tx.Model(&models.BudgetLine{}).Select("id").Where("budget_id = ?", budgetID)

		var txCount int64
		if err := tx.Model(&models.Transaction{}).Where("budget_line_id IN (?)", lineIDs).Count(&txCount).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if txCount > 0 {
			return apperrors.ErrBudgetHasTransactions
		}

		steps := []func() error{
			func() error {
				return tx.Where("budget_line_id IN (?)", lineIDs).Delete(&models.ChangeRequest{}).Error
			},
			func() error { return tx.Where("budget_id = ?", budgetID).Delete(&models.Saving{}).Error },
			func() error {
				return tx.Model(&models.Saving{}).Where("applied_budget_id = ?", budgetID).Update("applied_budget_id", nil).Error
			},
			func() error {
				return tx.Model(&models.Budget{}).Where("source_budget_id = ?", budgetID).Update("source_budget_id", nil).Error
			},
			func() error { return tx.Where("budget_id = ?", budgetID).Delete(&models.ConversionRate{}).Error },
			func() error { return tx.Where("budget_id = ?", budgetID).Delete(&models.BudgetLine{}).Error },
			func() error { return tx.Delete(&models.Budget{}, "id = ?", budgetID).Error },
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		return nil
	})
}

// GetBudget returns a budget by ID.
func (s *budgetService) GetBudget(budgetID string) (*models.Budget, error) {
	return findBudget(s.db, budgetID)
}

// ListBudgets returns budgets, newest year first, optionally for one year.
func (s *budgetService) ListBudgets(page pagination.PageRequest, year *int) (*pagination.PageResponse[models.Budget], error) {
	base := s.db.Model(&models.Budget{})
	if year != nil {
		base = base.Where("year = ?", *year)
	}

	result, err := pagination.Find[models.Budget](base, page, "year desc, created_at desc")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &result, nil
}

// AddBudgetLine creates a line for (budget, expense, company) in the company's currency.
func (s *budgetService) AddBudgetLine(budgetID, expenseID, financialCompanyID string, values models.MonthlyValues) (*models.BudgetLine, error) {
	for month := range values {
		if !models.ValidMonth(month) {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidMonth, fmt.Sprintf("Month %d is outside 1-12", month))
		}
	}

	var line *models.BudgetLine
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := findBudget(tx, budgetID); err != nil {
			return err
		}

		var expense models.Expense
		if err := tx.First(&expense, "id = ?", expenseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrExpenseNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		company, err := findCompany(tx, financialCompanyID)
		if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.BudgetLine{}).
			Where("budget_id = ? AND expense_id = ? AND financial_company_id = ?", budgetID, expenseID, financialCompanyID).
			Count(&count).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count > 0 {
			return apperrors.ErrDuplicateBudgetLine
		}

		line = &models.BudgetLine{
			BudgetID:           budgetID,
			ExpenseID:          expenseID,
			FinancialCompanyID: financialCompanyID,
			Currency:           company.Currency,
		}
		rounded := make(models.MonthlyValues, len(values))
		for month, amount := range values {
			rounded[month] = amount.Round(2)
		}
		line.ApplyPlanValues(rounded)
		if err := insertUnique(tx, line, apperrors.ErrDuplicateBudgetLine); err != nil {
			return err
		}
		line.Expense = &expense
		line.FinancialCompany = company
		return nil
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// RemoveBudgetLine deletes a line and its change requests unless transactions reference it.
func (s *budgetService) RemoveBudgetLine(lineID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := findBudgetLine(tx, lineID, false); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.Transaction{}).Where("budget_line_id = ?", lineID).Count(&count).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count > 0 {
			return apperrors.ErrBudgetLineInUse
		}

		if err := tx.Where("budget_line_id = ?", lineID).Delete(&models.ChangeRequest{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Delete(&models.BudgetLine{}, "id = ?", lineID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// GetBudgetLine returns a line with its expense and company.
func (s *budgetService) GetBudgetLine(lineID string) (*models.BudgetLine, error) {
	var line models.BudgetLine
	if err := s.db.Preload("Expense").Preload("FinancialCompany").First(&line, "id = ?", lineID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetLineNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &line, nil
}

// ListBudgetLines returns a page of a budget's lines.
func (s *budgetService) ListBudgetLines(budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetLine], error) {
	if err := ensureBudgetExists(s.db, budgetID); err != nil {
		return nil, err
	}

	base := s.db.Model(&models.BudgetLine{}).Where("budget_id = ?", budgetID)
	result, err := pagination.Find[models.BudgetLine](base, page, "created_at asc, id asc", "Expense", "FinancialCompany")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &result, nil
}

// GetBudgetValuation converts every non-zero planned amount of the budget into
// the reporting currency. A missing rate fails the whole valuation.
func (s *budgetService) GetBudgetValuation(budgetID string) (*BudgetValuation, error) {
	if err := ensureBudgetExists(s.db, budgetID); err != nil {
		return nil, err
	}

	var lines []models.BudgetLine
	if err := s.db.Where("budget_id = ?", budgetID).Order("created_at asc, id asc").Find(&lines).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	valuation := &BudgetValuation{
		BudgetID:          budgetID,
		ReportingCurrency: s.conversions.ReportingCurrency(),
		Lines:             make([]LineValuation, 0, len(lines)),
	}
	for _, line := range lines {
		lv := LineValuation{
			BudgetLineID:       line.ID,
			ExpenseID:          line.ExpenseID,
			FinancialCompanyID: line.FinancialCompanyID,
			Currency:           line.Currency,
			Months:             make(models.MonthlyValues, models.MonthsPerYear),
		}
		for month, amount := range line.PlanValues() {
			lv.NativeTotal = lv.NativeTotal.Add(amount)
			if amount.IsZero() {
				lv.Months[month] = amount
				continue
			}
			conv, err := s.conversions.Convert(budgetID, amount, line.Currency, month)
			if err != nil {
				return nil, err
			}
			lv.Months[month] = conv.Value
		}
		lv.Total = lv.Months.Sum()
		valuation.Total = valuation.Total.Add(lv.Total)
		valuation.Lines = append(valuation.Lines, lv)
	}
	return valuation, nil
}

// insertUnique creates value, reporting a unique index violation as dup.
// The counts taken before inserting can race; the index cannot.
func insertUnique(tx *gorm.DB, value interface{}, dup *apperrors.AppError) error {
	if err := tx.Create(value).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dup
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

func findBudget(db *gorm.DB, budgetID string) (*models.Budget, error) {
	var budget models.Budget
	if err := db.First(&budget, "id = ?", budgetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &budget, nil
}

// findBudgetLine loads a line, optionally locking it for update.
func findBudgetLine(db *gorm.DB, lineID string, forUpdate bool) (*models.BudgetLine, error) {
	if forUpdate {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var line models.BudgetLine
	if err := db.First(&line, "id = ?", lineID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetLineNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &line, nil
}

func findCompany(db *gorm.DB, companyID string) (*models.FinancialCompany, error) {
	var company models.FinancialCompany
	if err := db.First(&company, "id = ?", companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrFinancialCompanyNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &company, nil
}
