package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func validClaims(subject string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func setupAuthRouter() *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware(testSecret))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(UserIDKey)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	expired := validClaims("user-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid_token", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("user-1")), http.StatusOK},
		{"missing_header", "", http.StatusUnauthorized},
		{"wrong_scheme", "Token abc", http.StatusUnauthorized},
		{"wrong_secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, "other", validClaims("user-1")), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, expired), http.StatusUnauthorized},
		{"missing_subject", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("")), http.StatusUnauthorized},
		{"garbage", "Bearer not.a.token", http.StatusUnauthorized},
	}

	router := setupAuthRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := parseBody(t, rec)
			if tt.wantStatus == http.StatusOK {
				if user, _ := body["user"].(string); user != "user-1" {
					t.Errorf("user = %q, want user-1", user)
				}
				return
			}
			errObj, ok := body["error"].(map[string]interface{})
			if !ok || errObj["code"] != "UNAUTHORIZED" {
				t.Errorf("expected UNAUTHORIZED error body, got %v", body)
			}
		})
	}
}

// allowList grants exactly the listed "user/resource:action" triples.
type allowList map[string]bool

func (a allowList) CanAct(userID, resource, action string) bool {
	return a[userID+"/"+resource+":"+action]
}

func TestRequirePermission(t *testing.T) {
	checker := allowList{"alice/budgets:write": true}

	newRouter := func(userID string) *gin.Engine {
		r := gin.New()
		r.Use(func(c *gin.Context) {
			if userID != "" {
				c.Set(UserIDKey, userID)
			}
			c.Next()
		})
		r.POST("/budgets", RequirePermission(checker, "budgets", "write"), func(c *gin.Context) {
			c.JSON(http.StatusCreated, gin.H{"status": "ok"})
		})
		return r
	}

	tests := []struct {
		name       string
		userID     string
		wantStatus int
	}{
		{"allowed", "alice", http.StatusCreated},
		{"denied", "bob", http.StatusForbidden},
		{"anonymous", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newRouter(tt.userID).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/budgets", http.NoBody))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
