package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mveldkamp/accounthub/internal/auth"
	"github.com/mveldkamp/accounthub/internal/config"
	"github.com/mveldkamp/accounthub/internal/domain/user"
	"github.com/mveldkamp/accounthub/internal/http/handlers"
	"github.com/mveldkamp/accounthub/internal/http/middlewares"
	"github.com/mveldkamp/accounthub/internal/observability"
	"github.com/mveldkamp/accounthub/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// UserStore is everything the handlers need from a users repository. The
// postgres and memory repos both satisfy it.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash, name, role string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	List(ctx context.Context) ([]user.User, error)
	UpdateName(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
}

// Deps carries optional collaborators. Tests pass a memory store and leave
// the rest nil; main wires the full set.
type Deps struct {
	Store        UserStore
	Guard        handlers.LoginGuard
	Prom         *observability.Prom
	PromRegistry *prometheus.Registry
}

func NewRouter(log *slog.Logger, pool *pgxpool.Pool, cfg config.Config, deps Deps) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(1 << 20))
	r.Use(middlewares.RequireJSON())

	if cfg.OTELEndpoint != "" {
		r.Use(otelgin.Middleware("accounthub"))
	}

	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}

	if deps.PromRegistry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.PromRegistry, promhttp.HandlerOpts{})))
	}

	// health

	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	healthHandler := handlers.NewHealthHandler(ping)
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/readyz", healthHandler.Readyz)

	// wire up the store

	store := deps.Store

	if store == nil {
		repo := postgres.NewUsersRepo(pool)

		if deps.Prom != nil {
			repo = repo.WithMetrics(deps.Prom)
		}

		store = repo
	}

	jwtManager := auth.NewManager(cfg.SessionSecret, cfg.SessionTTL())

	session := middlewares.NewSessionMiddleware(jwtManager, store)
	r.Use(session.ResolveSession())

	authHandler := handlers.NewAuthHandler(store, store, jwtManager, deps.Guard, deps.Prom, cfg)
	usersHandler := handlers.NewUsersHandler(store)

	limiter := middlewares.NewRateLimiter(20, time.Minute)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", limiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Register)
		authGroup.POST("/login", limiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Login)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/me", authHandler.Me)
	}

	usersGroup := r.Group("/users")
	{
		usersGroup.GET("", middlewares.RequireAdmin(), usersHandler.ListUsers)
		// self-or-admin is decided inside the handler
		usersGroup.PUT("/:id", usersHandler.UpdateUserName)
		usersGroup.DELETE("/:id", middlewares.RequireAdmin(), usersHandler.DeleteUser)
	}

	return r
}
