package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SavingStrategy selects how a savings total is spread over the year.
type SavingStrategy string

const (
	SavingStrategyEven        SavingStrategy = "EVEN"
	SavingStrategySingleMonth SavingStrategy = "SINGLE_MONTH"
	SavingStrategyCustom      SavingStrategy = "CUSTOM"
)

// SavingStatus is independent of change request status.
type SavingStatus string

const (
	SavingStatusPending  SavingStatus = "PENDING"
	SavingStatusApproved SavingStatus = "APPROVED"
)

// Saving is a planned reduction for one expense within one budget.
// Approval only flips Status; AppliedBudgetID is set once the reduction has
// been materialized into a new budget version.
type Saving struct {
	Base
	BudgetID           string          `gorm:"type:uuid;not null;index" json:"budget_id"`
	ExpenseID          string          `gorm:"type:uuid;not null;index" json:"expense_id"`
	FinancialCompanyID *string         `gorm:"type:uuid" json:"financial_company_id,omitempty"`
	TotalAmount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total_amount"`
	Strategy           SavingStrategy  `gorm:"size:16;not null" json:"strategy"`
	Distribution       MonthlyValues   `gorm:"serializer:json;type:text;not null" json:"distribution"`
	Status             SavingStatus    `gorm:"size:16;not null;default:'PENDING'" json:"status"`
	Description        string          `json:"description"`
	CreatedBy          string          `json:"created_by"`
	ApprovedBy         *string         `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time      `json:"approved_at,omitempty"`
	AppliedBudgetID    *string         `gorm:"type:uuid" json:"applied_budget_id,omitempty"`
}
