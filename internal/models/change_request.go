package models

import "time"

// ChangeRequestStatus is the approval state of a change request.
// PENDING is the only non-terminal state.
type ChangeRequestStatus string

const (
	ChangeRequestPending  ChangeRequestStatus = "PENDING"
	ChangeRequestApproved ChangeRequestStatus = "APPROVED"
	ChangeRequestRejected ChangeRequestStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is allowed.
func (s ChangeRequestStatus) IsTerminal() bool {
	return s == ChangeRequestApproved || s == ChangeRequestRejected
}

// ChangeRequest proposes new monthly plan values for a budget line.
// CurrentValues snapshots all twelve months at creation; ProposedValues is sparse.
type ChangeRequest struct {
	Base
	BudgetLineID   string              `gorm:"type:uuid;not null;index" json:"budget_line_id"`
	RequesterID    string              `gorm:"not null;index" json:"requester_id"`
	Status         ChangeRequestStatus `gorm:"size:16;not null;default:'PENDING';index" json:"status"`
	CurrentValues  MonthlyValues       `gorm:"serializer:json;type:text;not null" json:"current_values"`
	ProposedValues MonthlyValues       `gorm:"serializer:json;type:text;not null" json:"proposed_values"`
	Comment        string              `json:"comment,omitempty"`
	ResolvedBy     *string             `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time          `json:"resolved_at,omitempty"`
	ResolutionNote string              `json:"resolution_note,omitempty"`

	BudgetLine *BudgetLine `gorm:"foreignKey:BudgetLineID" json:"budget_line,omitempty"`
}
