package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReviewStatus represents the review state of a budget version
type ReviewStatus string

const (
	ReviewStatusNone     ReviewStatus = "NONE"
	ReviewStatusInReview ReviewStatus = "IN_REVIEW"
)

// Budget is one planning version of a fiscal year.
// At most one budget across the system carries IsActive.
type Budget struct {
	Base
	Year           int          `gorm:"not null;uniqueIndex:uq_budgets_year_version" json:"year"`
	Version        string       `gorm:"size:16;not null;uniqueIndex:uq_budgets_year_version" json:"version"`
	IsActive       bool         `gorm:"not null;default:false;index" json:"is_active"`
	ReviewStatus   ReviewStatus `gorm:"size:16;not null;default:'NONE'" json:"review_status"`
	SubmittedBy    *string      `json:"submitted_by,omitempty"`
	SubmittedAt    *time.Time   `json:"submitted_at,omitempty"`
	SourceBudgetID *string      `gorm:"type:uuid" json:"source_budget_id,omitempty"`
	CreatedBy      string       `json:"created_by"`
}

// BudgetLine holds the twelve monthly planned amounts of one expense under
// one financial company, in the company's currency.
type BudgetLine struct {
	Base
	BudgetID           string          `gorm:"type:uuid;not null;uniqueIndex:uq_budget_lines_budget_expense_company" json:"budget_id"`
	ExpenseID          string          `gorm:"type:uuid;not null;uniqueIndex:uq_budget_lines_budget_expense_company" json:"expense_id"`
	FinancialCompanyID string          `gorm:"type:uuid;not null;uniqueIndex:uq_budget_lines_budget_expense_company" json:"financial_company_id"`
	Currency           string          `gorm:"size:3;not null" json:"currency"`
	PlanM1             decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"plan_m1"`
	PlanM2             decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"plan_m2"`
	PlanM3             decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"plan_m3"`
	PlanM4             decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"plan_m4"`
	PlanM5             decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"plan_m5"`
	PlanM6             decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"plan_m6"`
	PlanM7             decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"plan_m7"`
	PlanM8             decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"plan_m8"`
	PlanM9             decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"plan_m9"`
	PlanM10            decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"plan_m10"`
	PlanM11            decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"plan_m11"`
	PlanM12            decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"plan_m12"`

	// Relationships
	Expense          *Expense          `gorm:"foreignKey:ExpenseID" json:"expense,omitempty"`
	FinancialCompany *FinancialCompany `gorm:"foreignKey:FinancialCompanyID" json:"financial_company,omitempty"`
}

func (l *BudgetLine) slots() [MonthsPerYear]*decimal.Decimal {
	return [MonthsPerYear]*decimal.Decimal{
		&l.PlanM1, &l.PlanM2, &l.PlanM3, &l.PlanM4, &l.PlanM5, &l.PlanM6,
		&l.PlanM7, &l.PlanM8, &l.PlanM9, &l.PlanM10, &l.PlanM11, &l.PlanM12,
	}
}

// PlanValue returns the planned amount for month (1-12).
func (l *BudgetLine) PlanValue(month int) decimal.Decimal {
	if !ValidMonth(month) {
		return decimal.Zero
	}
	return *l.slots()[month-1]
}

// PlanValues returns all twelve planned amounts.
func (l *BudgetLine) PlanValues() MonthlyValues {
	values := make(MonthlyValues, MonthsPerYear)
	for i, slot := range l.slots() {
		values[i+1] = *slot
	}
	return values
}

// ApplyPlanValues overwrites the months present in values; absent months are untouched.
// Months outside 1-12 are ignored.
func (l *BudgetLine) ApplyPlanValues(values MonthlyValues) {
	slots := l.slots()
	for month, amount := range values {
		if ValidMonth(month) {
			*slots[month-1] = amount
		}
	}
}

// PlanColumn returns the column name holding month's planned amount.
func PlanColumn(month int) string {
	return fmt.Sprintf("plan_m%d", month)
}

// ConversionRate converts native amounts in Currency to the reporting currency
// for one month of one budget.
type ConversionRate struct {
	Base
	BudgetID string          `gorm:"type:uuid;not null;uniqueIndex:uq_conversion_rates_budget_currency_month" json:"budget_id"`
	Currency string          `gorm:"size:3;not null;uniqueIndex:uq_conversion_rates_budget_currency_month" json:"currency"`
	Month    int             `gorm:"not null;uniqueIndex:uq_conversion_rates_budget_currency_month" json:"month"`
	Rate     decimal.Decimal `gorm:"type:decimal(18,8);not null" json:"rate"`
}
