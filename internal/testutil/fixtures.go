package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"budgetledger/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// Dec parses a decimal literal, panicking on malformed test input.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// CreateTestCompany creates a financial company booking in currency.
func CreateTestCompany(t *testing.T, db *gorm.DB, currency string) *models.FinancialCompany {
	t.Helper()

	n := nextID()
	company := &models.FinancialCompany{
		Code:     fmt.Sprintf("FC%03d", n),
		Name:     fmt.Sprintf("Test Company %d", n),
		Currency: currency,
	}
	if err := db.Create(company).Error; err != nil {
		t.Fatalf("failed to create test company: %v", err)
	}
	return company
}

// CreateTestDirection creates a technology direction.
func CreateTestDirection(t *testing.T, db *gorm.DB) *models.TechnologyDirection {
	t.Helper()

	direction := &models.TechnologyDirection{Name: fmt.Sprintf("Direction %d", nextID())}
	if err := db.Create(direction).Error; err != nil {
		t.Fatalf("failed to create test direction: %v", err)
	}
	return direction
}

// CreateTestExpense creates an expense, optionally assigned to a technology direction.
func CreateTestExpense(t *testing.T, db *gorm.DB, directionID *string) *models.Expense {
	t.Helper()

	expense := &models.Expense{
		Name:                  fmt.Sprintf("Expense %d", nextID()),
		TechnologyDirectionID: directionID,
	}
	if err := db.Create(expense).Error; err != nil {
		t.Fatalf("failed to create test expense: %v", err)
	}
	return expense
}

// CreateTestBudget creates an inactive budget with a unique version label.
func CreateTestBudget(t *testing.T, db *gorm.DB, year int) *models.Budget {
	t.Helper()
	return CreateTestBudgetWithVersion(t, db, year, fmt.Sprintf("draft-%d", nextID()))
}

// CreateTestBudgetWithVersion creates an inactive budget with the given label.
func CreateTestBudgetWithVersion(t *testing.T, db *gorm.DB, year int, version string) *models.Budget {
	t.Helper()

	budget := &models.Budget{
		Year:         year,
		Version:      version,
		ReviewStatus: models.ReviewStatusNone,
		CreatedBy:    "fixture",
	}
	if err := db.Create(budget).Error; err != nil {
		t.Fatalf("failed to create test budget: %v", err)
	}
	return budget
}

// CreateTestBudgetLine creates a line in the company's currency with the given plan values.
func CreateTestBudgetLine(t *testing.T, db *gorm.DB, budgetID, expenseID string, company *models.FinancialCompany, values models.MonthlyValues) *models.BudgetLine {
	t.Helper()

	line := &models.BudgetLine{
		BudgetID:           budgetID,
		ExpenseID:          expenseID,
		FinancialCompanyID: company.ID,
		Currency:           company.Currency,
	}
	line.ApplyPlanValues(values)
	if err := db.Create(line).Error; err != nil {
		t.Fatalf("failed to create test budget line: %v", err)
	}
	return line
}

// CreateTestRate stores a conversion rate.
func CreateTestRate(t *testing.T, db *gorm.DB, budgetID, currency string, month int, rate string) *models.ConversionRate {
	t.Helper()

	cr := &models.ConversionRate{BudgetID: budgetID, Currency: currency, Month: month, Rate: Dec(rate)}
	if err := db.Create(cr).Error; err != nil {
		t.Fatalf("failed to create test rate: %v", err)
	}
	return cr
}

// CreateTestTransaction inserts a transaction directly, bypassing ledger validation.
func CreateTestTransaction(t *testing.T, db *gorm.DB, txType models.TransactionType, lineID *string, companyID, value string) *models.Transaction {
	t.Helper()

	posting := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	tx := &models.Transaction{
		Type:               txType,
		BudgetLineID:       lineID,
		FinancialCompanyID: companyID,
		ReferenceDocument:  fmt.Sprintf("DOC-%d", nextID()),
		PostingDate:        posting,
		Month:              int(posting.Month()),
		Value:              Dec(value),
		Currency:           "USD",
		CreatedBy:          "fixture",
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}

// CreateTestChangeRequest creates a PENDING change request snapshotting the line.
func CreateTestChangeRequest(t *testing.T, db *gorm.DB, line *models.BudgetLine, requesterID string, proposed models.MonthlyValues) *models.ChangeRequest {
	t.Helper()

	cr := &models.ChangeRequest{
		BudgetLineID:   line.ID,
		RequesterID:    requesterID,
		Status:         models.ChangeRequestPending,
		CurrentValues:  line.PlanValues(),
		ProposedValues: proposed,
	}
	if err := db.Create(cr).Error; err != nil {
		t.Fatalf("failed to create test change request: %v", err)
	}
	return cr
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string {
	return &s
}
