package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "budgetledger/internal/errors"
)

// UserIDKey is the gin context key holding the authenticated caller identity.
const UserIDKey = "userID"

// PermissionChecker answers whether a user may perform action on resource.
type PermissionChecker interface {
	CanAct(userID, resource, action string) bool
}

// AuthMiddleware verifies an HS256 bearer token and stores its subject as the
// caller identity. Tokens are issued by the identity provider, never here.
func AuthMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWith(c, apperrors.WithMessage(apperrors.ErrUnauthorized, "Authorization header is required"))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortWith(c, apperrors.WithMessage(apperrors.ErrUnauthorized, "Invalid authorization header format"))
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		})
		if err != nil || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
			abortWith(c, apperrors.WithMessage(apperrors.ErrUnauthorized, "Invalid or expired token"))
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Next()
	}
}

// RequirePermission rejects callers the checker does not allow to perform
// action on resource. It must run after AuthMiddleware.
func RequirePermission(checker PermissionChecker, resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(UserIDKey)
		if userID == "" {
			abortWith(c, apperrors.ErrUnauthorized)
			return
		}
		if !checker.CanAct(userID, resource, action) {
			abortWith(c, apperrors.WithMessage(apperrors.ErrForbidden,
				fmt.Sprintf("Missing permission %s:%s", resource, action)))
			return
		}
		c.Next()
	}
}
