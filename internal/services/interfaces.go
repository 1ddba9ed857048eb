package services

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"budgetledger/internal/models"
	"budgetledger/internal/pagination"
	"budgetledger/internal/rbac"
)

// Conversion is the outcome of converting a native amount to the reporting currency.
type Conversion struct {
	Rate  decimal.Decimal `json:"rate"`
	Value decimal.Decimal `json:"value"`
}

// ConversionServicer resolves conversion rates and converts native amounts.
type ConversionServicer interface {
	ReportingCurrency() string
	GetRate(budgetID, currency string, month int) (*models.ConversionRate, error)
	SetRate(budgetID, currency string, month int, rate decimal.Decimal) (*models.ConversionRate, error)
	SetRates(budgetID string, month int, updates []RateUpdate) ([]models.ConversionRate, error)
	ListRates(budgetID string) ([]models.ConversionRate, error)
	DeleteRate(budgetID, currency string, month int) error
	Convert(budgetID string, amount decimal.Decimal, currency string, month int) (*Conversion, error)
	ConvertWithDB(tx *gorm.DB, budgetID string, amount decimal.Decimal, currency string, month int) (*Conversion, error)
}

// RateUpdate is one currency's rate in a batch write.
type RateUpdate struct {
	Currency string
	Rate     decimal.Decimal
}

// PlanValueChange overrides months of one source line when a new version is cloned.
// Present months replace the cloned value; absent months keep it.
type PlanValueChange struct {
	SourceLineID string               `json:"source_line_id"`
	Values       models.MonthlyValues `json:"values"`
}

// LineValuation is one budget line's plan expressed in the reporting currency.
type LineValuation struct {
	BudgetLineID       string               `json:"budget_line_id"`
	ExpenseID          string               `json:"expense_id"`
	FinancialCompanyID string               `json:"financial_company_id"`
	Currency           string               `json:"currency"`
	NativeTotal        decimal.Decimal      `json:"native_total"`
	Months             models.MonthlyValues `json:"months"`
	Total              decimal.Decimal      `json:"total"`
}

// BudgetValuation aggregates a budget's lines in the reporting currency.
type BudgetValuation struct {
	BudgetID          string          `json:"budget_id"`
	ReportingCurrency string          `json:"reporting_currency"`
	Lines             []LineValuation `json:"lines"`
	Total             decimal.Decimal `json:"total"`
}

// BudgetServicer defines the contract for budget versioning and budget lines.
type BudgetServicer interface {
	CreateBudget(userID string, year int, version string, sourceBudgetID *string) (*models.Budget, error)
	CreateNewVersion(userID, sourceBudgetID string, changes []PlanValueChange) (*models.Budget, error)
	CreateNewVersionWithDB(tx *gorm.DB, userID, sourceBudgetID string, changes []PlanValueChange) (*models.Budget, error)
	NextVersionLabel(year int) (string, error)
	SetActiveBudget(budgetID string) (*models.Budget, error)
	GetActiveBudget() (*models.Budget, error)
	SubmitForReview(budgetID, submitterID string) (*models.Budget, error)
	DeleteBudget(budgetID string) error
	GetBudget(budgetID string) (*models.Budget, error)
	ListBudgets(page pagination.PageRequest, year *int) (*pagination.PageResponse[models.Budget], error)
	AddBudgetLine(budgetID, expenseID, financialCompanyID string, values models.MonthlyValues) (*models.BudgetLine, error)
	RemoveBudgetLine(lineID string) error
	GetBudgetLine(lineID string) (*models.BudgetLine, error)
	ListBudgetLines(budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetLine], error)
	GetBudgetValuation(budgetID string) (*BudgetValuation, error)
}

// RecordTransactionInput carries the fields of a new transaction.
// FinancialCompanyID may be empty when BudgetLineID is set; Currency defaults
// to the company currency.
type RecordTransactionInput struct {
	Type               models.TransactionType
	BudgetLineID       *string
	FinancialCompanyID string
	ReferenceDocument  string
	PostingDate        time.Time
	Value              decimal.Decimal
	Currency           string
	CompensatesID      *string
	Description        string
}

// TransactionChanges lists the editable fields of a transaction; nil means unchanged.
// Type and CompensatesID are accepted only to reject attempts to change them.
type TransactionChanges struct {
	Type              *models.TransactionType
	CompensatesID     *string
	ReferenceDocument *string
	PostingDate       *time.Time
	Value             *decimal.Decimal
	Currency          *string
	Description       *string
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	BudgetLineID *string
	Type         *models.TransactionType
	Month        *int
	Compensated  *bool
}

// TransactionServicer defines the contract for the compensation ledger.
type TransactionServicer interface {
	RecordTransaction(userID string, input RecordTransactionInput) (*models.Transaction, error)
	GetTransaction(transactionID string) (*models.Transaction, error)
	ListTransactions(page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	UpdateTransaction(transactionID string, changes TransactionChanges) (*models.Transaction, error)
	DeleteTransaction(transactionID string) error
}

// ApproverScopeResolver answers which technology directions a user may approve for.
type ApproverScopeResolver interface {
	ApproverScopeFor(userID string) rbac.Scope
}

// ChangeRequestServicer defines the contract for the change-request approval workflow.
type ChangeRequestServicer interface {
	CreateChangeRequest(requesterID, budgetLineID string, proposed models.MonthlyValues, comment string) (*models.ChangeRequest, error)
	GetChangeRequest(requestID string) (*models.ChangeRequest, error)
	ListPendingForApprover(approverID string, page pagination.PageRequest) (*pagination.PageResponse[models.ChangeRequest], error)
	ListByRequester(requesterID string, page pagination.PageRequest) (*pagination.PageResponse[models.ChangeRequest], error)
	AuthorizeApproval(approverID string, requestIDs []string) error
	Approve(requestID, approverID string) (*models.ChangeRequest, error)
	Reject(requestID, approverID, reason string) (*models.ChangeRequest, error)
	ApproveMultiple(requestIDs []string, approverID string) ([]models.ChangeRequest, error)
}

// CreateSavingInput carries the fields of a new saving.
// Month is used by SINGLE_MONTH, Schedule by CUSTOM.
type CreateSavingInput struct {
	BudgetID           string
	ExpenseID          string
	FinancialCompanyID *string
	TotalAmount        decimal.Decimal
	Strategy           models.SavingStrategy
	Month              int
	Schedule           models.MonthlyValues
	Description        string
}

// SavingServicer defines the contract for savings planning.
type SavingServicer interface {
	CreateSaving(userID string, input CreateSavingInput) (*models.Saving, error)
	ApproveSaving(savingID, approverID string) (*models.Saving, error)
	GetSaving(savingID string) (*models.Saving, error)
	ListSavings(budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.Saving], error)
	ApplySavings(budgetID, userID string) (*models.Budget, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]any)
}
