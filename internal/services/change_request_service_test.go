package services

import (
	"testing"

	"budgetledger/internal/models"
	"budgetledger/internal/pagination"
	"budgetledger/internal/rbac"
	"budgetledger/internal/testutil"

	"gorm.io/gorm"
)

// fakeScopes resolves approver scopes from a fixed table.
type fakeScopes map[string]rbac.Scope

func (f fakeScopes) ApproverScopeFor(userID string) rbac.Scope {
	return f[userID]
}

func reloadLine(t *testing.T, db *gorm.DB, id string) models.BudgetLine {
	t.Helper()
	var line models.BudgetLine
	if err := db.First(&line, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to reload line: %v", err)
	}
	return line
}

func TestCreateChangeRequest(t *testing.T) {
	t.Run("snapshots_current_values", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewChangeRequestService(db, fakeScopes{})
		f := newLedgerFixture(t, db)

		cr, err := svc.CreateChangeRequest("planner", f.eurLine.ID,
			models.MonthlyValues{2: testutil.Dec("250.004")}, "raise february")
		testutil.AssertNoError(t, err)

		if cr.Status != models.ChangeRequestPending {
			t.Errorf("expected PENDING, got %s", cr.Status)
		}
		if len(cr.CurrentValues) != models.MonthsPerYear {
			t.Errorf("expected full snapshot, got %d months", len(cr.CurrentValues))
		}
		if !cr.CurrentValues.Get(12).Equal(testutil.Dec("1200")) {
			t.Errorf("expected snapshot of december, got %s", cr.CurrentValues.Get(12))
		}
		if len(cr.ProposedValues) != 1 || !cr.ProposedValues.Get(2).Equal(testutil.Dec("250")) {
			t.Errorf("expected sparse rounded proposal, got %v", cr.ProposedValues)
		}
	})

	t.Run("validation", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewChangeRequestService(db, fakeScopes{})
		f := newLedgerFixture(t, db)

		_, err := svc.CreateChangeRequest("planner", f.eurLine.ID, models.MonthlyValues{}, "")
		testutil.AssertAppError(t, err, "INVALID_INPUT")

		_, err = svc.CreateChangeRequest("planner", f.eurLine.ID, models.MonthlyValues{13: testutil.Dec("1")}, "")
		testutil.AssertAppError(t, err, "INVALID_MONTH")

		_, err = svc.CreateChangeRequest("planner", missingID, models.MonthlyValues{1: testutil.Dec("1")}, "")
		testutil.AssertAppError(t, err, "BUDGET_LINE_NOT_FOUND")
	})
}

func TestApproveChangeRequest(t *testing.T) {
	t.Run("applies_present_months_only", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewChangeRequestService(db, fakeScopes{})
		f := newLedgerFixture(t, db)
		cr := testutil.CreateTestChangeRequest(t, db, f.eurLine, "planner",
			models.MonthlyValues{2: testutil.Dec("0"), 3: testutil.Dec("75.5")})

		approved, err := svc.Approve(cr.ID, "controller")
		testutil.AssertNoError(t, err)
		if approved.Status != models.ChangeRequestApproved {
			t.Errorf("expected APPROVED, got %s", approved.Status)
		}
		if approved.ResolvedBy == nil || *approved.ResolvedBy != "controller" || approved.ResolvedAt == nil {
			t.Error("expected approver and resolution time recorded")
		}

		line := reloadLine(t, db, f.eurLine.ID)
		if !line.PlanM1.Equal(testutil.Dec("100")) {
			t.Errorf("expected january untouched, got %s", line.PlanM1)
		}
		if !line.PlanM2.IsZero() {
			t.Errorf("expected february set to zero, got %s", line.PlanM2)
		}
		if !line.PlanM3.Equal(testutil.Dec("75.5")) {
			t.Errorf("expected march 75.5, got %s", line.PlanM3)
		}
		if !line.PlanM12.Equal(testutil.Dec("1200")) {
			t.Errorf("expected december untouched, got %s", line.PlanM12)
		}
	})

	t.Run("second_resolution_conflicts", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewChangeRequestService(db, fakeScopes{})
		f := newLedgerFixture(t, db)
		cr := testutil.CreateTestChangeRequest(t, db, f.eurLine, "planner",
			models.MonthlyValues{1: testutil.Dec("111")})

		_, err := svc.Approve(cr.ID, "controller")
		testutil.AssertNoError(t, err)

		// A later edit to the line must survive a repeated approval attempt.
		db.Model(&models.BudgetLine{}).Where("id = ?", f.eurLine.ID).Update("plan_m1", testutil.Dec("5"))

		_, err = svc.Approve(cr.ID, "controller")
		testutil.AssertAppError(t, err, "CHANGE_REQUEST_RESOLVED")
		_, err = svc.Reject(cr.ID, "controller", "late")
		testutil.AssertAppError(t, err, "CHANGE_REQUEST_RESOLVED")

		line := reloadLine(t, db, f.eurLine.ID)
		if !line.PlanM1.Equal(testutil.Dec("5")) {
			t.Errorf("expected no further mutation, got %s", line.PlanM1)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewChangeRequestService(db, fakeScopes{})

		_, err := svc.Approve(missingID, "controller")
		testutil.AssertAppError(t, err, "CHANGE_REQUEST_NOT_FOUND")
	})
}

func TestRejectChangeRequest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewChangeRequestService(db, fakeScopes{})
	f := newLedgerFixture(t, db)
	cr := testutil.CreateTestChangeRequest(t, db, f.eurLine, "planner",
		models.MonthlyValues{1: testutil.Dec("999")})

	rejected, err := svc.Reject(cr.ID, "controller", "not in plan")
	testutil.AssertNoError(t, err)
	if rejected.Status != models.ChangeRequestRejected || rejected.ResolutionNote != "not in plan" {
		t.Errorf("unexpected rejection %+v", rejected)
	}

	line := reloadLine(t, db, f.eurLine.ID)
	if !line.PlanM1.Equal(testutil.Dec("100")) {
		t.Errorf("expected line untouched, got %s", line.PlanM1)
	}

	_, err = svc.Approve(cr.ID, "controller")
	testutil.AssertAppError(t, err, "CHANGE_REQUEST_RESOLVED")
}

func TestApproveMultiple(t *testing.T) {
	t.Run("all_pending", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewChangeRequestService(db, fakeScopes{})
		f := newLedgerFixture(t, db)
		first := testutil.CreateTestChangeRequest(t, db, f.eurLine, "planner", models.MonthlyValues{1: testutil.Dec("10")})
		second := testutil.CreateTestChangeRequest(t, db, f.usdLine, "planner", models.MonthlyValues{6: testutil.Dec("20")})

		approved, err := svc.ApproveMultiple([]string{first.ID, second.ID, first.ID}, "controller")
		testutil.AssertNoError(t, err)
		if len(approved) != 2 {
			t.Fatalf("expected duplicates collapsed to 2 approvals, got %d", len(approved))
		}
		if !reloadLine(t, db, f.usdLine.ID).PlanM6.Equal(testutil.Dec("20")) {
			t.Error("expected usd line updated")
		}
	})

	t.Run("one_resolved_fails_whole_batch", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewChangeRequestService(db, fakeScopes{})
		f := newLedgerFixture(t, db)
		first := testutil.CreateTestChangeRequest(t, db, f.eurLine, "planner", models.MonthlyValues{1: testutil.Dec("10")})
		resolved := testutil.CreateTestChangeRequest(t, db, f.usdLine, "planner", models.MonthlyValues{6: testutil.Dec("20")})
		_, err := svc.Reject(resolved.ID, "controller", "")
		testutil.AssertNoError(t, err)

		_, err = svc.ApproveMultiple([]string{first.ID, resolved.ID}, "controller")
		testutil.AssertAppError(t, err, "CHANGE_REQUEST_RESOLVED")

		if !reloadLine(t, db, f.eurLine.ID).PlanM1.Equal(testutil.Dec("100")) {
			t.Error("expected eur line unchanged after failed batch")
		}
		var stored models.ChangeRequest
		db.First(&stored, "id = ?", first.ID)
		if stored.Status != models.ChangeRequestPending {
			t.Errorf("expected first request still PENDING, got %s", stored.Status)
		}
	})

	t.Run("missing_fails_whole_batch", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewChangeRequestService(db, fakeScopes{})
		f := newLedgerFixture(t, db)
		first := testutil.CreateTestChangeRequest(t, db, f.eurLine, "planner", models.MonthlyValues{1: testutil.Dec("10")})

		_, err := svc.ApproveMultiple([]string{first.ID, missingID}, "controller")
		testutil.AssertAppError(t, err, "CHANGE_REQUEST_NOT_FOUND")
		if !reloadLine(t, db, f.eurLine.ID).PlanM1.Equal(testutil.Dec("100")) {
			t.Error("expected eur line unchanged after failed batch")
		}
	})

	t.Run("empty", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewChangeRequestService(db, fakeScopes{})

		_, err := svc.ApproveMultiple(nil, "controller")
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

// routingFixture has one pending request per technology direction plus one on
// an expense without a direction.
type routingFixture struct {
	infra             *models.TechnologyDirection
	data              *models.TechnologyDirection
	infraCR           *models.ChangeRequest
	dataCR            *models.ChangeRequest
	unroutedCR        *models.ChangeRequest
	resolvedInfraCRID string
}

func newRoutingFixture(t *testing.T, db *gorm.DB) routingFixture {
	t.Helper()
	budget := testutil.CreateTestBudget(t, db, 2025)
	company := testutil.CreateTestCompany(t, db, "USD")

	f := routingFixture{
		infra: testutil.CreateTestDirection(t, db),
		data:  testutil.CreateTestDirection(t, db),
	}
	infraLine := testutil.CreateTestBudgetLine(t, db, budget.ID,
		testutil.CreateTestExpense(t, db, &f.infra.ID).ID, company, nil)
	dataLine := testutil.CreateTestBudgetLine(t, db, budget.ID,
		testutil.CreateTestExpense(t, db, &f.data.ID).ID, company, nil)
	unroutedLine := testutil.CreateTestBudgetLine(t, db, budget.ID,
		testutil.CreateTestExpense(t, db, nil).ID, company, nil)

	proposal := models.MonthlyValues{1: testutil.Dec("1")}
	f.infraCR = testutil.CreateTestChangeRequest(t, db, infraLine, "planner", proposal)
	f.dataCR = testutil.CreateTestChangeRequest(t, db, dataLine, "planner", proposal)
	f.unroutedCR = testutil.CreateTestChangeRequest(t, db, unroutedLine, "planner", proposal)

	resolved := testutil.CreateTestChangeRequest(t, db, infraLine, "planner", proposal)
	db.Model(resolved).Update("status", models.ChangeRequestRejected)
	f.resolvedInfraCRID = resolved.ID
	return f
}

func pendingIDs(page *pagination.PageResponse[models.ChangeRequest]) map[string]bool {
	ids := make(map[string]bool, len(page.Data))
	for _, cr := range page.Data {
		ids[cr.ID] = true
	}
	return ids
}

func TestListPendingForApprover(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	f := newRoutingFixture(t, db)

	svc := NewChangeRequestService(db, fakeScopes{
		"cfo":      {ApproveAllDirections: true},
		"infra":    {TechnologyDirectionIDs: []string{f.infra.ID}},
		"everyone": {TechnologyDirectionIDs: []string{f.infra.ID, f.data.ID}},
	})

	t.Run("blanket_capability_sees_all_pending", func(t *testing.T) {
		page, err := svc.ListPendingForApprover("cfo", pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		if page.TotalItems != 3 {
			t.Errorf("expected 3 pending, got %d", page.TotalItems)
		}
		if pendingIDs(page)[f.resolvedInfraCRID] {
			t.Error("expected resolved request to be excluded")
		}
	})

	t.Run("scoped_to_direction", func(t *testing.T) {
		page, err := svc.ListPendingForApprover("infra", pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		ids := pendingIDs(page)
		if page.TotalItems != 1 || !ids[f.infraCR.ID] {
			t.Errorf("expected only the infra request, got %v", ids)
		}
	})

	t.Run("union_of_directions", func(t *testing.T) {
		page, err := svc.ListPendingForApprover("everyone", pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		ids := pendingIDs(page)
		if page.TotalItems != 2 || !ids[f.infraCR.ID] || !ids[f.dataCR.ID] {
			t.Errorf("expected infra and data requests, got %v", ids)
		}
	})

	t.Run("no_scope_sees_nothing", func(t *testing.T) {
		page, err := svc.ListPendingForApprover("stranger", pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		if page.TotalItems != 0 || len(page.Data) != 0 {
			t.Errorf("expected empty page, got %d", page.TotalItems)
		}
	})
}

func TestAuthorizeApproval(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	f := newRoutingFixture(t, db)

	svc := NewChangeRequestService(db, fakeScopes{
		"cfo":   {ApproveAllDirections: true},
		"infra": {TechnologyDirectionIDs: []string{f.infra.ID}},
	})

	testutil.AssertNoError(t, svc.AuthorizeApproval("cfo", []string{f.infraCR.ID, f.unroutedCR.ID}))
	testutil.AssertNoError(t, svc.AuthorizeApproval("infra", []string{f.infraCR.ID}))
	testutil.AssertAppError(t, svc.AuthorizeApproval("infra", []string{f.infraCR.ID, f.dataCR.ID}), "FORBIDDEN")
	testutil.AssertAppError(t, svc.AuthorizeApproval("infra", []string{f.unroutedCR.ID}), "FORBIDDEN")
	testutil.AssertAppError(t, svc.AuthorizeApproval("stranger", []string{f.infraCR.ID}), "FORBIDDEN")
}

func TestListByRequester(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewChangeRequestService(db, fakeScopes{})
	f := newLedgerFixture(t, db)
	testutil.CreateTestChangeRequest(t, db, f.eurLine, "alice", models.MonthlyValues{1: testutil.Dec("1")})
	testutil.CreateTestChangeRequest(t, db, f.usdLine, "alice", models.MonthlyValues{6: testutil.Dec("1")})
	testutil.CreateTestChangeRequest(t, db, f.usdLine, "bob", models.MonthlyValues{6: testutil.Dec("2")})

	page, err := svc.ListByRequester("alice", pagination.PageRequest{})
	testutil.AssertNoError(t, err)
	if page.TotalItems != 2 {
		t.Errorf("expected 2 requests for alice, got %d", page.TotalItems)
	}

	got, err := svc.GetChangeRequest(page.Data[0].ID)
	testutil.AssertNoError(t, err)
	if got.BudgetLine == nil {
		t.Error("expected budget line preloaded")
	}

	_, err = svc.GetChangeRequest(missingID)
	testutil.AssertAppError(t, err, "CHANGE_REQUEST_NOT_FOUND")
}
