package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"budgetledger/internal/logger"
	"budgetledger/internal/models"
	"budgetledger/internal/ratefeed"
	"budgetledger/internal/rbac"
	"budgetledger/internal/server"
	"budgetledger/internal/services"
	"budgetledger/internal/testutil"
	"budgetledger/internal/validator"
)

const (
	testJWTSecret      = "integration-secret"
	testPipelineAPIKey = "integration-pipeline-key"
	reportingCurrency  = "USD"
)

// testPolicy binds the users the flows act as. The infrastructure approver's
// directions are filled in once the fixtures exist.
const testPolicy = `
roles:
  - name: controller
    approve_all_directions: true
    permissions: ["*"]
  - name: planner
    permissions:
      - "budgets:read"
      - "budgets:write"
      - "rates:read"
      - "rates:write"
      - "transactions:*"
      - "change_requests:read"
      - "change_requests:write"
      - "savings:read"
      - "savings:write"
  - name: infra-approver
    permissions:
      - "change_requests:read"
      - "change_requests:approve"
  - name: viewer
    permissions: ["budgets:read"]
users:
  controller: [controller]
  planner: [planner]
  infra-approver: [infra-approver]
  viewer: [viewer]
`

// testApp holds the full application stack for integration tests.
type testApp struct {
	DB       *gorm.DB
	Router   *gin.Engine
	Registry *rbac.Registry
	Feed     *httptest.Server
}

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// setupApp creates a full application stack backed by an isolated in-memory
// SQLite database and a fake market feed quoting feedRates (ticker -> price).
func setupApp(t *testing.T, feedRates map[string]float64) *testApp {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	registry, err := rbac.Parse([]byte(testPolicy))
	if err != nil {
		t.Fatalf("failed to parse policy: %v", err)
	}

	feed := newFeedServer(feedRates)
	t.Cleanup(feed.Close)

	conversionService := services.NewConversionService(db, reportingCurrency)
	budgetService := services.NewBudgetService(db, conversionService)
	forex := ratefeed.NewForexClient(feed.Client(), feed.URL, reportingCurrency)

	router := server.NewRouter(server.Services{
		Budgets:        budgetService,
		Conversions:    conversionService,
		Transactions:   services.NewTransactionService(db, conversionService),
		ChangeRequests: services.NewChangeRequestService(db, registry),
		Savings:        services.NewSavingService(db, budgetService),
		Audit:          services.NewAuditService(db),
		RateSyncer:     ratefeed.NewSyncer(forex, conversionService),
	}, server.Options{
		JWTSecret:      testJWTSecret,
		PipelineAPIKey: testPipelineAPIKey,
		Permissions:    registry,
	})

	return &testApp{DB: db, Router: router, Registry: registry, Feed: feed}
}

// newFeedServer answers chart requests the way the market feed does.
func newFeedServer(rates map[string]float64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ticker := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		w.Header().Set("Content-Type", "application/json")
		price, ok := rates[ticker]
		if !ok {
			fmt.Fprintf(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data for %s"}}}`, ticker)
			return
		}
		fmt.Fprintf(w, `{"chart":{"result":[{"meta":{"symbol":%q,"regularMarketPrice":%v}}],"error":null}}`, ticker, price)
	}))
}

// tokenFor signs a bearer token whose subject is userID.
func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// mustStatus fails the test unless rec has the wanted status.
func mustStatus(t *testing.T, rec *httptest.ResponseRecorder, want int, step string) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("%s: expected %d, got %d: %s", step, want, rec.Code, rec.Body.String())
	}
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// object returns the named object of a response body.
func object(t *testing.T, rec *httptest.ResponseRecorder, key string) map[string]interface{} {
	t.Helper()
	obj, ok := parseJSON(t, rec)[key].(map[string]interface{})
	if !ok {
		t.Fatalf("expected %q object in %s", key, rec.Body.String())
	}
	return obj
}

// ledgerSeed is the reference data a flow starts from: an infrastructure
// expense booked by a EUR and a USD company.
type ledgerSeed struct {
	direction *models.TechnologyDirection
	expense   *models.Expense
	eurCo     *models.FinancialCompany
	usdCo     *models.FinancialCompany
}

func seedReferenceData(t *testing.T, app *testApp) ledgerSeed {
	t.Helper()
	direction := testutil.CreateTestDirection(t, app.DB)
	seed := ledgerSeed{
		direction: direction,
		expense:   testutil.CreateTestExpense(t, app.DB, &direction.ID),
		eurCo:     testutil.CreateTestCompany(t, app.DB, "EUR"),
		usdCo:     testutil.CreateTestCompany(t, app.DB, "USD"),
	}
	app.Registry.DefineRole(rbac.Role{
		Name:                   "infra-approver",
		TechnologyDirectionIDs: []string{direction.ID},
		Permissions:            []string{"change_requests:read", "change_requests:approve"},
	})
	return seed
}

// decimalAt reads a decimal rendered as a JSON string.
func decimalAt(t *testing.T, obj map[string]interface{}, key string) decimal.Decimal {
	t.Helper()
	raw, ok := obj[key].(string)
	if !ok {
		t.Fatalf("expected %q to be a decimal string, got %v", key, obj[key])
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("failed to parse %q=%q: %v", key, raw, err)
	}
	return d
}

// assertDecimal fails the test unless obj[key] equals want numerically.
func assertDecimal(t *testing.T, obj map[string]interface{}, key, want string) {
	t.Helper()
	if got := decimalAt(t, obj, key); !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s = %s, want %s", key, got, want)
	}
}

// errorCode extracts the error code of an error response.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := parseJSON(t, rec)["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in %s", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

// createBudget creates year/version as userID and returns its ID.
func (app *testApp) createBudget(t *testing.T, token string, year int, version string) string {
	t.Helper()
	rec := app.request(http.MethodPost, "/api/v1/budgets",
		fmt.Sprintf(`{"year":%d,"version":%q}`, year, version), token)
	mustStatus(t, rec, http.StatusCreated, "create budget")
	return object(t, rec, "budget")["id"].(string)
}

// addLine adds a line for expense booked by company and returns its ID.
func (app *testApp) addLine(t *testing.T, token, budgetID, expenseID, companyID, values string) string {
	t.Helper()
	body := fmt.Sprintf(`{"expense_id":%q,"financial_company_id":%q,"values":%s}`, expenseID, companyID, values)
	rec := app.request(http.MethodPost, "/api/v1/budgets/"+budgetID+"/lines", body, token)
	mustStatus(t, rec, http.StatusCreated, "add budget line")
	return object(t, rec, "budget_line")["id"].(string)
}
