package middlewares

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mveldkamp/accounthub/internal/auth"
	"github.com/mveldkamp/accounthub/internal/config"
	"github.com/mveldkamp/accounthub/internal/domain/user"
)

// Small interfaces so tests can fake the collaborators easily.

type TokenVerifier interface {
	VerifySessionToken(token string) (*auth.Claims, error)
}

type UserGetter interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// SessionMiddleware resolves the current user from the session cookie and, if
// one exists, stashes the live user record on the gin context. It never
// aborts: an absent, expired, tampered or otherwise unverifiable token is
// the same as no session, and downstream gates decide what that means.
type SessionMiddleware struct {
	jwt   TokenVerifier
	users UserGetter
}

func NewSessionMiddleware(jwt TokenVerifier, users UserGetter) *SessionMiddleware {
	return &SessionMiddleware{jwt: jwt, users: users}
}

func (m *SessionMiddleware) ResolveSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(auth.CookieName)

		if err != nil || raw == "" {
			c.Next()
			return
		}

		claims, err := m.jwt.VerifySessionToken(raw)

		if err != nil {
			c.Next()
			return
		}

		cctx, cancel := config.WithTimeout(2 * time.Second)
		defer cancel()

		// Re-fetch the live record so role/name changes apply immediately
		// and tokens for deleted users stop resolving.
		u, err := m.users.GetByID(cctx, claims.UserID)

		if err != nil {
			c.Next()
			return
		}

		c.Set(ctxCurrentUser, u)

		c.Next()
	}
}

// CurrentUser returns the resolved session user, if any.
func CurrentUser(c *gin.Context) (user.User, bool) {
	v, ok := c.Get(ctxCurrentUser)

	if !ok {
		return user.User{}, false
	}

	u, ok := v.(user.User)

	return u, ok
}
