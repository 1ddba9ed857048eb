package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of transaction
type TransactionType string

const (
	TransactionTypeCommitted TransactionType = "COMMITTED"
	TransactionTypeReal      TransactionType = "REAL"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeCommitted || t == TransactionTypeReal
}

// Transaction is a committed obligation or a real payment booked against an
// optional budget line. ReportingValue and ConversionRate are captured at write
// time so later rate edits never change historical values.
type Transaction struct {
	Base
	Type               TransactionType     `gorm:"size:16;not null;index" json:"type"`
	BudgetLineID       *string             `gorm:"type:uuid;uniqueIndex:uq_transactions_line_reference" json:"budget_line_id,omitempty"`
	FinancialCompanyID string              `gorm:"type:uuid;not null;index" json:"financial_company_id"`
	ReferenceDocument  string              `gorm:"not null;uniqueIndex:uq_transactions_line_reference" json:"reference_document"`
	PostingDate        time.Time           `gorm:"not null" json:"posting_date"`
	Month              int                 `gorm:"not null" json:"month"`
	Value              decimal.Decimal     `gorm:"type:decimal(18,2);not null" json:"value"`
	Currency           string              `gorm:"size:3;not null" json:"currency"`
	ReportingValue     decimal.NullDecimal `gorm:"type:decimal(18,2)" json:"reporting_value"`
	ConversionRate     decimal.NullDecimal `gorm:"type:decimal(18,8)" json:"conversion_rate"`
	CompensatesID      *string             `gorm:"type:uuid;uniqueIndex" json:"compensates_id,omitempty"`
	IsCompensated      bool                `gorm:"not null;default:false" json:"is_compensated"`
	Description        string              `json:"description"`
	CreatedBy          string              `json:"created_by"`
}
