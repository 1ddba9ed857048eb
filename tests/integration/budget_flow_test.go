package integration

import (
	"net/http"
	"testing"
)

func TestBudgetVersioningFlow(t *testing.T) {
	app := setupApp(t, nil)
	seed := seedReferenceData(t, app)
	planner := tokenFor(t, "planner")
	controller := tokenFor(t, "controller")

	v1 := app.createBudget(t, planner, 2025, "v1")
	app.addLine(t, planner, v1, seed.expense.ID, seed.eurCo.ID, `{"1":"1000","2":"500"}`)
	app.addLine(t, planner, v1, seed.expense.ID, seed.usdCo.ID, `{"1":"300"}`)

	// Valuation needs a rate for every planned foreign-currency month.
	rec := app.request(http.MethodGet, "/api/v1/budgets/"+v1+"/valuation", "", planner)
	mustStatus(t, rec, http.StatusNotFound, "valuation without rates")
	if code := errorCode(t, rec); code != "CONVERSION_RATE_NOT_FOUND" {
		t.Errorf("error code = %q, want CONVERSION_RATE_NOT_FOUND", code)
	}

	for _, body := range []string{
		`{"currency":"EUR","month":1,"rate":"1.1"}`,
		`{"currency":"EUR","month":2,"rate":"1.2"}`,
	} {
		rec = app.request(http.MethodPut, "/api/v1/budgets/"+v1+"/rates", body, planner)
		mustStatus(t, rec, http.StatusOK, "set rate")
	}

	rec = app.request(http.MethodGet, "/api/v1/budgets/"+v1+"/valuation", "", planner)
	mustStatus(t, rec, http.StatusOK, "valuation")
	valuation := object(t, rec, "valuation")
	// 1000*1.1 + 500*1.2 + 300
	assertDecimal(t, valuation, "total", "2000")
	if valuation["reporting_currency"] != reportingCurrency {
		t.Errorf("reporting_currency = %v, want %s", valuation["reporting_currency"], reportingCurrency)
	}

	rec = app.request(http.MethodGet, "/api/v1/budgets/"+v1+"/convert?amount=100&currency=EUR&month=2", "", planner)
	mustStatus(t, rec, http.StatusOK, "convert")
	assertDecimal(t, object(t, rec, "conversion"), "value", "120")

	rec = app.request(http.MethodGet, "/api/v1/budgets/versions/next?year=2025", "", planner)
	mustStatus(t, rec, http.StatusOK, "next version")
	if got := parseJSON(t, rec)["version"]; got != "v2" {
		t.Errorf("next version = %v, want v2", got)
	}

	rec = app.request(http.MethodPost, "/api/v1/budgets/"+v1+"/versions", "", planner)
	mustStatus(t, rec, http.StatusCreated, "create version")
	v2 := object(t, rec, "budget")
	if v2["version"] != "v2" || v2["source_budget_id"] != v1 {
		t.Fatalf("unexpected version: %v", v2)
	}
	v2ID := v2["id"].(string)

	// Lines and rates travel with the clone.
	rec = app.request(http.MethodGet, "/api/v1/budgets/"+v2ID+"/valuation", "", planner)
	mustStatus(t, rec, http.StatusOK, "clone valuation")
	assertDecimal(t, object(t, rec, "valuation"), "total", "2000")

	rec = app.request(http.MethodPost, "/api/v1/budgets/"+v2ID+"/activate", "", planner)
	mustStatus(t, rec, http.StatusForbidden, "planner activate")

	rec = app.request(http.MethodPost, "/api/v1/budgets/"+v2ID+"/activate", "", controller)
	mustStatus(t, rec, http.StatusOK, "controller activate")

	rec = app.request(http.MethodGet, "/api/v1/budgets/active", "", planner)
	mustStatus(t, rec, http.StatusOK, "active budget")
	if got := object(t, rec, "budget")["id"]; got != v2ID {
		t.Errorf("active budget = %v, want %s", got, v2ID)
	}

	rec = app.request(http.MethodDelete, "/api/v1/budgets/"+v2ID, "", planner)
	mustStatus(t, rec, http.StatusConflict, "delete active budget")

	rec = app.request(http.MethodDelete, "/api/v1/budgets/"+v1, "", planner)
	mustStatus(t, rec, http.StatusOK, "delete superseded budget")

	rec = app.request(http.MethodGet, "/api/v1/budgets?year=2025", "", planner)
	mustStatus(t, rec, http.StatusOK, "list budgets")
	if total := parseJSON(t, rec)["total_items"]; total != float64(1) {
		t.Errorf("total_items = %v, want 1", total)
	}
}

func TestBudgetReviewAndDuplicateVersion(t *testing.T) {
	app := setupApp(t, nil)
	planner := tokenFor(t, "planner")

	id := app.createBudget(t, planner, 2026, "v1")

	rec := app.request(http.MethodPost, "/api/v1/budgets", `{"year":2026,"version":"v1"}`, planner)
	mustStatus(t, rec, http.StatusConflict, "duplicate version")

	rec = app.request(http.MethodPost, "/api/v1/budgets/"+id+"/review", "", planner)
	mustStatus(t, rec, http.StatusOK, "submit for review")
	if got := object(t, rec, "budget")["review_status"]; got != "IN_REVIEW" {
		t.Errorf("review_status = %v, want IN_REVIEW", got)
	}

	rec = app.request(http.MethodPost, "/api/v1/budgets/"+id+"/review", "", planner)
	mustStatus(t, rec, http.StatusConflict, "second review")
}
