package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mveldkamp/accounthub/internal/config"
	"github.com/mveldkamp/accounthub/internal/domain/user"
	"github.com/mveldkamp/accounthub/internal/repo/postgres"
	"github.com/mveldkamp/accounthub/internal/security"
)

// EnsureAdminUser seeds the bootstrap admin from config so a fresh deploy
// has at least one account allowed into the user directory. No-op when the
// admin env vars are unset or the account already exists.
func EnsureAdminUser(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	var dummy string

	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, cfg.AdminEmail).Scan(&dummy)

	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.HashPassword(cfg.AdminPassword, cfg.BcryptCost)

	if err != nil {
		return err
	}

	repo := postgres.NewUsersRepo(pool)

	_, err = repo.Create(ctx, cfg.AdminEmail, hash, cfg.AdminName, user.RoleAdmin)

	// A concurrent boot may have seeded it first.
	if errors.Is(err, postgres.ErrEmailAlreadyUsed) {
		return nil
	}

	return err
}
