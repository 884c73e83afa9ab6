package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mveldkamp/accounthub/internal/config"
	"github.com/mveldkamp/accounthub/internal/domain/user"
	"github.com/mveldkamp/accounthub/internal/http/middlewares"
	"github.com/mveldkamp/accounthub/internal/repo/postgres"
)

type UserDirectory interface {
	List(ctx context.Context) ([]user.User, error)
	UpdateName(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
}

type UsersHandler struct {
	repo UserDirectory
}

func NewUsersHandler(repo UserDirectory) *UsersHandler {
	return &UsersHandler{repo: repo}
}

// directoryUser is the admin listing row. Unlike the domain type it
// serializes the password hash; the listing is intentionally unredacted.
type directoryUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type UpdateUserNameRequest struct {
	Name string `json:"name" binding:"required"`
}

// ListUsers returns every user row. Admin gating happens in the router via
// RequireAdmin.
func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	users, err := h.repo.List(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not list users.")
		return
	}

	items := make([]directoryUser, 0, len(users))

	for _, u := range users {
		items = append(items, directoryUser{
			ID:           u.ID,
			Email:        u.Email,
			PasswordHash: u.PasswordHash,
			Name:         u.Name,
			Role:         u.Role,
			CreatedAt:    u.CreatedAt,
			UpdatedAt:    u.UpdatedAt,
		})
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// UpdateUserName renames a user. A caller may rename themselves; renaming
// anyone else requires ADMIN.
func (h *UsersHandler) UpdateUserName(ctx *gin.Context) {
	current, ok := middlewares.CurrentUser(ctx)

	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Please log in.")
		return
	}

	targetID := ctx.Param("id")

	if current.ID != targetID && !current.IsAdmin() {
		RespondForbidden(ctx, "forbidden", "You can only update your own details.")
		return
	}

	var req UpdateUserNameRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	err := h.repo.UpdateName(cctx, targetID, req.Name)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			RespondNotFound(ctx, "user_not_found", "User not found.")
			return
		}

		RespondInternal(ctx, "Could not update user.")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "User updated successfully.",
	})
}

// DeleteUser removes a user row. Admin gating happens in the router.
func (h *UsersHandler) DeleteUser(ctx *gin.Context) {
	targetID := ctx.Param("id")

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	err := h.repo.Delete(cctx, targetID)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			RespondNotFound(ctx, "user_not_found", "User not found.")
			return
		}

		RespondInternal(ctx, "Could not delete user.")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "User deleted successfully.",
	})
}
