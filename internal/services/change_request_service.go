package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "budgetledger/internal/errors"
	"budgetledger/internal/metrics"
	"budgetledger/internal/models"
	"budgetledger/internal/pagination"
)

// changeRequestService runs the PENDING -> APPROVED | REJECTED workflow for
// proposed budget line values and routes pending requests to approvers.
type changeRequestService struct {
	db     *gorm.DB
	scopes ApproverScopeResolver
}

// NewChangeRequestService creates a new ChangeRequestServicer.
func NewChangeRequestService(db *gorm.DB, scopes ApproverScopeResolver) ChangeRequestServicer {
	return &changeRequestService{
		db:     db,
		scopes: scopes,
	}
}

// CreateChangeRequest snapshots the line's twelve values and stores the sparse proposal.
func (s *changeRequestService) CreateChangeRequest(requesterID, budgetLineID string, proposed models.MonthlyValues, comment string) (*models.ChangeRequest, error) {
	if len(proposed) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "At least one proposed month is required")
	}
	values := make(models.MonthlyValues, len(proposed))
	for month, amount := range proposed {
		if !models.ValidMonth(month) {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidMonth, fmt.Sprintf("Month %d is outside 1-12", month))
		}
		values[month] = amount.Round(2)
	}

	var cr *models.ChangeRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		line, err := findBudgetLine(tx, budgetLineID, false)
		if err != nil {
			return err
		}

		cr = &models.ChangeRequest{
			BudgetLineID:   line.ID,
			RequesterID:    requesterID,
			Status:         models.ChangeRequestPending,
			CurrentValues:  line.PlanValues(),
			ProposedValues: values,
			Comment:        comment,
		}
		if err := tx.Create(cr).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cr, nil
}

// GetChangeRequest retrieves a change request with its budget line.
func (s *changeRequestService) GetChangeRequest(requestID string) (*models.ChangeRequest, error) {
	var cr models.ChangeRequest
	if err := s.db.Preload("BudgetLine").First(&cr, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrChangeRequestNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &cr, nil
}

// ListPendingForApprover returns the PENDING requests routed to approverID.
// Users with the blanket capability see every request; everyone else sees
// requests on lines whose expense belongs to one of their technology directions.
func (s *changeRequestService) ListPendingForApprover(approverID string, page pagination.PageRequest) (*pagination.PageResponse[models.ChangeRequest], error) {
	page.Defaults()
	scope := s.scopes.ApproverScopeFor(approverID)
	if scope.Empty() {
		empty := pagination.NewPageResponse([]models.ChangeRequest{}, page.Page, page.PageSize, 0)
		return &empty, nil
	}

	query := s.db.Model(&models.ChangeRequest{}).Where("status = ?", models.ChangeRequestPending)
	if !scope.ApproveAllDirections {
		routed := s.db.Model(&models.BudgetLine{}).
			Select("budget_lines.id").
			Joins("JOIN expenses ON expenses.id = budget_lines.expense_id").
			Where("expenses.technology_direction_id IN ?", scope.TechnologyDirectionIDs)
		query = query.Where("budget_line_id IN (?)", routed)
	}

	result, err := pagination.Find[models.ChangeRequest](query, page, "created_at asc, id asc")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &result, nil
}

// ListByRequester returns the requests raised by requesterID, newest first.
func (s *changeRequestService) ListByRequester(requesterID string, page pagination.PageRequest) (*pagination.PageResponse[models.ChangeRequest], error) {
	query := s.db.Model(&models.ChangeRequest{}).Where("requester_id = ?", requesterID)
	result, err := pagination.Find[models.ChangeRequest](query, page, "created_at desc, id desc")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &result, nil
}

// AuthorizeApproval applies the routing rule to specific requests.
// Unknown IDs are left for Approve/Reject to report as not found.
func (s *changeRequestService) AuthorizeApproval(approverID string, requestIDs []string) error {
	scope := s.scopes.ApproverScopeFor(approverID)
	if scope.ApproveAllDirections {
		return nil
	}
	if scope.Empty() {
		return apperrors.ErrForbidden
	}

	var rows []struct {
		ID                    string
		TechnologyDirectionID *string
	}
	err := s.db.Table("change_requests").
		Select("change_requests.id, expenses.technology_direction_id").
		Joins("JOIN budget_lines ON budget_lines.id = change_requests.budget_line_id").
		Joins("JOIN expenses ON expenses.id = budget_lines.expense_id").
		Where("change_requests.id IN ?", requestIDs).
		Scan(&rows).Error
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for _, row := range rows {
		if !scope.Allows(row.TechnologyDirectionID) {
			return apperrors.WithMessage(apperrors.ErrForbidden,
				fmt.Sprintf("Change request %s is outside your approval scope", row.ID))
		}
	}
	return nil
}

// Approve applies the proposed months onto the live line and marks the request APPROVED.
func (s *changeRequestService) Approve(requestID, approverID string) (*models.ChangeRequest, error) {
	var cr *models.ChangeRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		cr, err = approveWithDB(tx, requestID, approverID)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.ChangeRequestsResolved.WithLabelValues("approved").Inc()
	return cr, nil
}

// Reject marks the request REJECTED without touching the budget line.
func (s *changeRequestService) Reject(requestID, approverID, reason string) (*models.ChangeRequest, error) {
	var cr *models.ChangeRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		cr, err = lockPending(tx, requestID)
		if err != nil {
			return err
		}
		return resolve(tx, cr, models.ChangeRequestRejected, approverID, reason)
	})
	if err != nil {
		return nil, err
	}
	metrics.ChangeRequestsResolved.WithLabelValues("rejected").Inc()
	return cr, nil
}

// ApproveMultiple approves a batch in one database transaction. Any missing or
// resolved request fails the whole batch and no line is changed.
func (s *changeRequestService) ApproveMultiple(requestIDs []string, approverID string) ([]models.ChangeRequest, error) {
	ids := make([]string, 0, len(requestIDs))
	seen := make(map[string]struct{}, len(requestIDs))
	for _, id := range requestIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "At least one change request is required")
	}

	approved := make([]models.ChangeRequest, 0, len(ids))
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			cr, err := approveWithDB(tx, id, approverID)
			if err != nil {
				return err
			}
			approved = append(approved, *cr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.ChangeRequestsResolved.WithLabelValues("approved").Add(float64(len(approved)))
	return approved, nil
}

func approveWithDB(tx *gorm.DB, requestID, approverID string) (*models.ChangeRequest, error) {
	cr, err := lockPending(tx, requestID)
	if err != nil {
		return nil, err
	}

	line, err := findBudgetLine(tx, cr.BudgetLineID, true)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{}, len(cr.ProposedValues))
	for _, month := range cr.ProposedValues.Months() {
		if models.ValidMonth(month) {
			updates[models.PlanColumn(month)] = cr.ProposedValues[month]
		}
	}
	if len(updates) > 0 {
		if err := tx.Model(&models.BudgetLine{}).Where("id = ?", line.ID).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	if err := resolve(tx, cr, models.ChangeRequestApproved, approverID, ""); err != nil {
		return nil, err
	}
	return cr, nil
}

func lockPending(tx *gorm.DB, requestID string) (*models.ChangeRequest, error) {
	var cr models.ChangeRequest
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cr, "id = ?", requestID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WithMessage(apperrors.ErrChangeRequestNotFound,
				fmt.Sprintf("Change request %s not found", requestID))
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if cr.Status.IsTerminal() {
		return nil, apperrors.ErrChangeRequestResolved
	}
	return &cr, nil
}

// resolve moves a PENDING request to status. The status guard in the WHERE
// clause makes a concurrent loser observe ErrChangeRequestResolved.
func resolve(tx *gorm.DB, cr *models.ChangeRequest, status models.ChangeRequestStatus, approverID, note string) error {
	now := time.Now()
	result := tx.Model(&models.ChangeRequest{}).
		Where("id = ? AND status = ?", cr.ID, models.ChangeRequestPending).
		Updates(map[string]interface{}{
			"status":          status,
			"resolved_by":     approverID,
			"resolved_at":     now,
			"resolution_note": note,
		})
	if result.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrChangeRequestResolved
	}

	cr.Status = status
	cr.ResolvedBy = &approverID
	cr.ResolvedAt = &now
	cr.ResolutionNote = note
	return nil
}
