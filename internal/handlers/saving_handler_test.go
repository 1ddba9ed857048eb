package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "budgetledger/internal/errors"
	"budgetledger/internal/models"
	"budgetledger/internal/pagination"
	"budgetledger/internal/services"
)

// --- mock saving service ---

type mockSavingService struct {
	createSavingFn  func(userID string, input services.CreateSavingInput) (*models.Saving, error)
	approveSavingFn func(savingID, approverID string) (*models.Saving, error)
	getSavingFn     func(savingID string) (*models.Saving, error)
	listSavingsFn   func(budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.Saving], error)
	applySavingsFn  func(budgetID, userID string) (*models.Budget, error)
}

func (m *mockSavingService) CreateSaving(userID string, input services.CreateSavingInput) (*models.Saving, error) {
	if m.createSavingFn != nil {
		return m.createSavingFn(userID, input)
	}
	return &models.Saving{}, nil
}

func (m *mockSavingService) ApproveSaving(savingID, approverID string) (*models.Saving, error) {
	if m.approveSavingFn != nil {
		return m.approveSavingFn(savingID, approverID)
	}
	return &models.Saving{}, nil
}

func (m *mockSavingService) GetSaving(savingID string) (*models.Saving, error) {
	if m.getSavingFn != nil {
		return m.getSavingFn(savingID)
	}
	return &models.Saving{}, nil
}

func (m *mockSavingService) ListSavings(budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.Saving], error) {
	if m.listSavingsFn != nil {
		return m.listSavingsFn(budgetID, page)
	}
	resp := pagination.NewPageResponse([]models.Saving{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockSavingService) ApplySavings(budgetID, userID string) (*models.Budget, error) {
	if m.applySavingsFn != nil {
		return m.applySavingsFn(budgetID, userID)
	}
	return &models.Budget{}, nil
}

var _ services.SavingServicer = (*mockSavingService)(nil)

func setupSavingRouter(handler *SavingHandler) *gin.Engine {
	r := newTestRouter()
	auth := r.Group("", injectUserID("controller"))
	auth.POST("/budgets/:id/savings", handler.CreateSaving)
	auth.GET("/budgets/:id/savings", handler.GetSavings)
	auth.POST("/budgets/:id/savings/apply", handler.ApplySavings)
	auth.GET("/savings/:id", handler.GetSaving)
	auth.POST("/savings/:id/approve", handler.ApproveSaving)
	return r
}

func TestSavingHandler_CreateSaving(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		var got services.CreateSavingInput
		svc := &mockSavingService{
			createSavingFn: func(userID string, in services.CreateSavingInput) (*models.Saving, error) {
				got = in
				return &models.Saving{
					Base:        models.Base{ID: testOtherID},
					BudgetID:    in.BudgetID,
					TotalAmount: in.TotalAmount,
					Strategy:    in.Strategy,
					Status:      models.SavingStatusPending,
				}, nil
			},
		}
		r := setupSavingRouter(NewSavingHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/budgets/"+testBudgetID+"/savings",
			`{"expense_id":"`+testLineID+`","total_amount":"200","strategy":"SINGLE_MONTH","month":12}`)

		assertStatus(t, rec, http.StatusCreated)
		if got.BudgetID != testBudgetID || got.Month != 12 || !got.TotalAmount.Equal(decimal.NewFromInt(200)) {
			t.Errorf("unexpected input %+v", got)
		}
		if got.FinancialCompanyID != nil {
			t.Errorf("expected no company, got %v", *got.FinancialCompanyID)
		}
		saving := parseJSON(t, rec)["saving"].(map[string]interface{})
		if saving["status"] != "PENDING" {
			t.Errorf("expected PENDING, got %v", saving["status"])
		}
	})

	t.Run("returns 400 on unknown strategy", func(t *testing.T) {
		r := setupSavingRouter(NewSavingHandler(&mockSavingService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/budgets/"+testBudgetID+"/savings",
			`{"expense_id":"`+testLineID+`","total_amount":"200","strategy":"FRONT_LOADED"}`)

		assertStatus(t, rec, http.StatusBadRequest)
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns 400 on bad distribution", func(t *testing.T) {
		svc := &mockSavingService{
			createSavingFn: func(string, services.CreateSavingInput) (*models.Saving, error) {
				return nil, apperrors.ErrInvalidDistribution
			},
		}
		r := setupSavingRouter(NewSavingHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/budgets/"+testBudgetID+"/savings",
			`{"expense_id":"`+testLineID+`","total_amount":"100","strategy":"CUSTOM","schedule":{"1":"40"}}`)

		assertStatus(t, rec, http.StatusBadRequest)
		assertErrorCode(t, parseJSON(t, rec), "INVALID_DISTRIBUTION")
	})
}

func TestSavingHandler_ApproveSaving(t *testing.T) {
	t.Run("returns 409 when already approved", func(t *testing.T) {
		svc := &mockSavingService{
			approveSavingFn: func(string, string) (*models.Saving, error) {
				return nil, apperrors.ErrSavingResolved
			},
		}
		r := setupSavingRouter(NewSavingHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/savings/"+testOtherID+"/approve", "")

		assertStatus(t, rec, http.StatusConflict)
		assertErrorCode(t, parseJSON(t, rec), "SAVING_RESOLVED")
	})

	t.Run("records the approver", func(t *testing.T) {
		var approver string
		svc := &mockSavingService{
			approveSavingFn: func(id, approverID string) (*models.Saving, error) {
				approver = approverID
				return &models.Saving{Base: models.Base{ID: id}, Status: models.SavingStatusApproved, ApprovedBy: &approverID}, nil
			},
		}
		r := setupSavingRouter(NewSavingHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/savings/"+testOtherID+"/approve", "")

		assertStatus(t, rec, http.StatusOK)
		if approver != "controller" {
			t.Errorf("expected controller, got %q", approver)
		}
	})
}

func TestSavingHandler_ApplySavings(t *testing.T) {
	t.Run("returns the new version", func(t *testing.T) {
		svc := &mockSavingService{
			applySavingsFn: func(budgetID, userID string) (*models.Budget, error) {
				return &models.Budget{Base: models.Base{ID: testOtherID}, Version: "v2", SourceBudgetID: &budgetID, CreatedBy: userID}, nil
			},
		}
		audit := &mockAuditService{}
		r := setupSavingRouter(NewSavingHandler(svc, audit))

		rec := doRequest(r, "POST", "/budgets/"+testBudgetID+"/savings/apply", "")

		assertStatus(t, rec, http.StatusCreated)
		budget := parseJSON(t, rec)["budget"].(map[string]interface{})
		if budget["version"] != "v2" || budget["source_budget_id"] != testBudgetID {
			t.Errorf("unexpected budget %v", budget)
		}
		if len(audit.actions) != 1 || audit.actions[0] != "APPLY_SAVINGS" {
			t.Errorf("expected APPLY_SAVINGS audit entry, got %v", audit.actions)
		}
	})

	t.Run("returns 409 with nothing to apply", func(t *testing.T) {
		svc := &mockSavingService{
			applySavingsFn: func(string, string) (*models.Budget, error) {
				return nil, apperrors.ErrNoSavingsToApply
			},
		}
		r := setupSavingRouter(NewSavingHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/budgets/"+testBudgetID+"/savings/apply", "")

		assertStatus(t, rec, http.StatusConflict)
		assertErrorCode(t, parseJSON(t, rec), "NO_SAVINGS_TO_APPLY")
	})
}

func TestSavingHandler_GetSaving(t *testing.T) {
	svc := &mockSavingService{
		getSavingFn: func(string) (*models.Saving, error) { return nil, apperrors.ErrSavingNotFound },
	}
	r := setupSavingRouter(NewSavingHandler(svc, &mockAuditService{}))

	rec := doRequest(r, "GET", "/savings/"+testOtherID, "")

	assertStatus(t, rec, http.StatusNotFound)
	assertErrorCode(t, parseJSON(t, rec), "SAVING_NOT_FOUND")

	rec = doRequest(r, "GET", "/budgets/"+testBudgetID+"/savings", "")
	assertStatus(t, rec, http.StatusOK)
}
