package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mveldkamp/accounthub/internal/auth"
	"github.com/mveldkamp/accounthub/internal/config"
	"github.com/mveldkamp/accounthub/internal/domain/user"
	"github.com/mveldkamp/accounthub/internal/http/middlewares"
	"github.com/mveldkamp/accounthub/internal/loginguard"
	"github.com/mveldkamp/accounthub/internal/observability"
	"github.com/mveldkamp/accounthub/internal/repo/postgres"
	"github.com/mveldkamp/accounthub/internal/security"
)

type UserReader interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

type UserWriter interface {
	Create(ctx context.Context, email, passwordHash, name, role string) (user.User, error)
}

// LoginGuard throttles repeated failed logins. Optional: a nil guard means
// no per-account throttling.
type LoginGuard interface {
	Allow(ctx context.Context, email, ip string) error
	RecordFailure(ctx context.Context, email, ip string) error
	RecordSuccess(ctx context.Context, email string) error
}

type AuthHandler struct {
	users      UserReader
	userWriter UserWriter
	jwt        *auth.Manager
	guard      LoginGuard
	metrics    *observability.Prom
	cfg        config.Config
}

func NewAuthHandler(users UserReader, userWriter UserWriter, jwtManager *auth.Manager, guard LoginGuard, metrics *observability.Prom, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		users:      users,
		userWriter: userWriter,
		jwt:        jwtManager,
		guard:      guard,
		metrics:    metrics,
		cfg:        cfg,
	}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required,oneof=ADMIN USER"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		h.countAuth("register", "rejected")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	hash, err := security.HashPassword(req.Password, h.cfg.BcryptCost)

	if err != nil {
		h.countAuth("register", "error")
		RespondInternal(ctx, "Could not register user.")
		return
	}

	// No prior existence check: the unique constraint on email is the
	// single source of truth for conflicts.
	_, err = h.userWriter.Create(cctx, req.Email, hash, req.Name, req.Role)

	if err != nil {
		if errors.Is(err, postgres.ErrEmailAlreadyUsed) {
			h.countAuth("register", "rejected")
			RespondConflict(ctx, "email_taken", "Email already in use.")
			return
		}

		h.countAuth("register", "error")
		RespondInternal(ctx, "Could not register user.")
		return
	}

	h.countAuth("register", "ok")

	ctx.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully.",
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		h.countAuth("login", "rejected")
		return
	}

	// short timeout for DB lookup
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	ip := ctx.ClientIP()

	if h.guard != nil {
		err := h.guard.Allow(cctx, req.Email, ip)

		if errors.Is(err, loginguard.ErrThrottled) {
			h.countAuth("login", "throttled")
			RespondTooManyRequests(ctx, "Too many failed attempts. Please try again later.")
			return
		}
		// A guard infrastructure error fails open: credentials still decide.
	}

	foundUser, err := h.users.GetByEmail(cctx, req.Email)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			h.recordFailure(cctx, req.Email, ip)
			h.countAuth("login", "rejected")
			RespondNotFound(ctx, "user_not_found", "User not found.")
			return
		}

		h.countAuth("login", "error")
		RespondInternal(ctx, "Could not log in.")
		return
	}

	err = security.CheckPassword(foundUser.PasswordHash, req.Password)

	if err != nil {
		h.recordFailure(cctx, req.Email, ip)
		h.countAuth("login", "rejected")
		RespondUnauthorized(ctx, "invalid_credentials", "Invalid credentials.")
		return
	}

	raw, expiresAt, err := h.jwt.GenerateSessionToken(foundUser.ID, foundUser.Role)

	if err != nil {
		h.countAuth("login", "error")
		RespondInternal(ctx, "Could not create session.")
		return
	}

	if h.guard != nil {
		_ = h.guard.RecordSuccess(cctx, req.Email)
	}

	h.setSessionCookie(ctx, raw, expiresAt)

	h.countAuth("login", "ok")

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Login successful.",
		"role":    foundUser.Role,
	})
}

// Logout clears the session cookie. Stateless tokens cannot be revoked, so
// a copy of the token held elsewhere stays valid until expiry.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	h.clearSessionCookie(ctx)

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Logged out successfully.",
	})
}

// Me resolves the current session. No session is not an error: the body
// carries user: null.
func (h *AuthHandler) Me(ctx *gin.Context) {
	u, ok := middlewares.CurrentUser(ctx)

	if !ok {
		ctx.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": u.Profile()})
}

// Helper functions

func (h *AuthHandler) recordFailure(ctx context.Context, email, ip string) {
	if h.guard != nil {
		_ = h.guard.RecordFailure(ctx, email, ip)
	}
}

func (h *AuthHandler) countAuth(op, result string) {
	if h.metrics != nil {
		h.metrics.AuthAttempts.WithLabelValues(op, result).Inc()
	}
}

func (h *AuthHandler) setSessionCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	secure := h.cfg.Env == "prod"

	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		auth.CookieName,
		raw,
		maxAge,
		"/",
		"",
		secure,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearSessionCookie(ctx *gin.Context) {
	secure := h.cfg.Env == "prod"
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(
		auth.CookieName,
		"",
		-1,
		"/",
		"",
		secure,
		true,
	)
}
