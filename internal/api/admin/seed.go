package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/doubleh-portfolio/portfolio-api/internal/auth"
	"github.com/doubleh-portfolio/portfolio-api/internal/config"
	"github.com/doubleh-portfolio/portfolio-api/internal/db"
	"github.com/doubleh-portfolio/portfolio-api/internal/db/repositories"
)

// SeedHook returns a connector hook that makes sure the configured dashboard
// account exists with the configured password. Without a password or hash the
// hook only logs a warning: login stays impossible until one is set.
func SeedHook(cfg *config.AuthConfig) db.Hook {
	return func(ctx context.Context, conn *sqlx.DB) error {
		return SeedAdmin(ctx, repositories.NewUserRepository(db.Static(conn)), cfg)
	}
}

// SeedAdmin creates or updates the admin account from cfg.
func SeedAdmin(ctx context.Context, users *repositories.UserRepository, cfg *config.AuthConfig) error {
	if cfg.AdminUsername == "" {
		return fmt.Errorf("auth.admin_username is required")
	}

	switch {
	case cfg.AdminPasswordHash != "":
		if !auth.IsBcryptHash(cfg.AdminPasswordHash) {
			return fmt.Errorf("auth.admin_password_hash is not a bcrypt hash")
		}
		if _, err := users.UpsertUser(ctx, cfg.AdminUsername, cfg.AdminPasswordHash); err != nil {
			return fmt.Errorf("failed to seed admin user: %w", err)
		}

	case cfg.AdminPassword != "":
		existing, err := users.GetUserByUsername(ctx, cfg.AdminUsername)
		if err != nil {
			return fmt.Errorf("failed to look up admin user: %w", err)
		}
		if existing != nil {
			if ok, _ := auth.CheckPassword(existing.PasswordHash, cfg.AdminPassword); ok {
				return nil
			}
		}
		hash, err := auth.HashPassword(cfg.AdminPassword)
		if err != nil {
			return fmt.Errorf("invalid auth.admin_password: %w", err)
		}
		if _, err := users.UpsertUser(ctx, cfg.AdminUsername, hash); err != nil {
			return fmt.Errorf("failed to seed admin user: %w", err)
		}

	default:
		slog.Warn("no admin password configured; set auth.admin_password or auth.admin_password_hash to enable login",
			"username", cfg.AdminUsername)
		return nil
	}

	slog.Info("admin user seeded", "username", cfg.AdminUsername)
	return nil
}
