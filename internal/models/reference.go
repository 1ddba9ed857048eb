package models

// FinancialCompany is a legal entity that owns budget lines and books transactions.
// Its currency is the native currency of every line created under it.
type FinancialCompany struct {
	Base
	Code     string `gorm:"not null;uniqueIndex" json:"code"`
	Name     string `gorm:"not null" json:"name"`
	Currency string `gorm:"size:3;not null" json:"currency"`
}

// TechnologyDirection groups expenses for approval routing.
type TechnologyDirection struct {
	Base
	Name string `gorm:"not null;uniqueIndex" json:"name"`
}

// Expense is a plannable cost item.
type Expense struct {
	Base
	Name                  string  `gorm:"not null;uniqueIndex" json:"name"`
	Description           string  `json:"description"`
	TechnologyDirectionID *string `gorm:"type:uuid;index" json:"technology_direction_id,omitempty"`

	TechnologyDirection *TechnologyDirection `gorm:"foreignKey:TechnologyDirectionID" json:"technology_direction,omitempty"`
}
