// Package middleware provides Gin HTTP middleware for authentication, rate
// limiting, image upload validation, database availability, security headers,
// request IDs and metrics.
//
// Middleware ordering matters and is enforced in router.go:
//
//	RequestID → Metrics → Logger → CORS → Security → RateLimit → Auth → ImageUpload → RequireDatabase → Audit → Handler
//
// Upload validation runs before RequireDatabase so an oversized or non-image
// upload is rejected without touching the database.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/doubleh-portfolio/portfolio-api/internal/api/respond"
	"github.com/doubleh-portfolio/portfolio-api/internal/auth"
)

// Context keys set by AuthMiddleware.
const (
	UserIDKey   = "user_id"
	UsernameKey = "username"
	ClaimsKey   = "claims"
)

// abortJSON stops the chain with the API's error envelope.
func abortJSON(c *gin.Context, status int, message string) {
	respond.Fail(c, status, message)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. ok is false when the header is missing or malformed.
func BearerToken(c *gin.Context) (token string, ok bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AuthMiddleware requires a valid admin JWT. Tokens are verified statelessly,
// so protected routes keep answering 401 (not 503) while the database is down.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			abortJSON(c, http.StatusUnauthorized, "No token provided, authorization denied")
			return
		}

		token, ok := BearerToken(c)
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "Authorization header must start with 'Bearer '")
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "Token is not valid")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, claims.Username)
		c.Next()
	}
}

// CurrentClaims returns the claims stored by AuthMiddleware.
func CurrentClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
