// auth.go implements HTTP handlers for dashboard login and token verification.
package admin

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/doubleh-portfolio/portfolio-api/internal/api/respond"
	"github.com/doubleh-portfolio/portfolio-api/internal/auth"
	"github.com/doubleh-portfolio/portfolio-api/internal/db/repositories"
	"github.com/doubleh-portfolio/portfolio-api/internal/middleware"
)

// AuthHandlers handles authentication-related endpoints
type AuthHandlers struct {
	userRepo *repositories.UserRepository
	tokenTTL time.Duration
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(userRepo *repositories.UserRepository, tokenTTL time.Duration) *AuthHandlers {
	return &AuthHandlers{userRepo: userRepo, tokenTTL: tokenTTL}
}

// LoginRequest is the body of POST /api/v1/auth/login
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=100"`
	Password string `json:"password" binding:"required,max=200"`
}

// dummyHash is compared against when the username is unknown so both
// failure paths spend the same bcrypt time.
var dummyHash = sync.OnceValue(func() string {
	hash, err := auth.HashPassword("portfolio-api-timing-placeholder")
	if err != nil {
		panic(err)
	}
	return hash
})

// @Summary      Log in
// @Description  Exchange the dashboard credentials for a JWT.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "Token and user"
// @Failure      400  {object}  respond.Envelope  "Missing username or password"
// @Failure      401  {object}  respond.Envelope  "Invalid credentials"
// @Failure      503  {object}  respond.Envelope  "Database unavailable"
// @Router       /api/v1/auth/login [post]
// LoginHandler verifies the credentials and issues a token
// POST /api/v1/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" {
			respond.Fail(c, http.StatusBadRequest, "Please provide username and password")
			return
		}
		ctx := c.Request.Context()

		user, err := h.userRepo.GetUserByUsername(ctx, strings.TrimSpace(req.Username))
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "Login failed", err)
			return
		}

		hash := dummyHash()
		if user != nil {
			hash = user.PasswordHash
		}
		match, err := auth.CheckPassword(hash, req.Password)
		if err != nil {
			slog.Error("stored password hash is malformed", "username", req.Username, "error", err)
		}
		if user == nil || !match {
			slog.Warn("failed login attempt", "username", req.Username, "ip", c.ClientIP())
			respond.Fail(c, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		token, err := auth.GenerateJWT(user.ID, user.Username, h.tokenTTL)
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "Login failed", err)
			return
		}

		if err := h.userRepo.RecordLogin(ctx, user.ID); err != nil {
			slog.Warn("failed to record login", "user_id", user.ID, "error", err)
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Login successful",
			"token":   token,
			"data": gin.H{
				"userId":   user.ID,
				"username": user.Username,
			},
		})
	}
}

// @Summary      Verify token
// @Description  Confirm the Bearer token is valid and return its user.
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      401  {object}  respond.Envelope
// @Router       /api/v1/auth/verify [get]
// VerifyHandler returns the user the token was issued to
// GET /api/v1/auth/verify
func (h *AuthHandlers) VerifyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := middleware.CurrentClaims(c)
		if !ok {
			respond.Fail(c, http.StatusUnauthorized, "Token is not valid")
			return
		}
		respond.OK(c, http.StatusOK, "", gin.H{
			"userId":   claims.UserID,
			"username": claims.Username,
		})
	}
}
