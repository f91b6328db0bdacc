// Package bootstrap guarantees that a minimum viable admin account exists.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"groundwork/internal/config"
	"groundwork/internal/database"
)

// EnsureInitialAdmin creates or resets the initial admin account from
// configuration. It is invoked at every server start and from the
// ensure-admin command, and is idempotent: once an admin exists and
// ResetExisting is off, repeated calls mutate nothing.
//
// Bootstrap is opt-in: without both email and password it is a no-op.
// Store errors (e.g. schema not migrated yet) are swallowed with a warning
// unless strict is set, so an incomplete deployment never crashes the server
// while an explicit operator invocation still surfaces the real error.
func EnsureInitialAdmin(ctx context.Context, db *database.Client, cfg *config.AdminConfig, strict bool) error {
	if cfg == nil || cfg.Email == "" || cfg.Password == "" {
		return nil
	}
	email := strings.ToLower(cfg.Email)

	adminExists, err := db.HasActiveStaff(ctx)
	if err != nil {
		if strict {
			return fmt.Errorf("failed to check for existing admin: %w", err)
		}
		log.Warn("skipping initial admin bootstrap, store not ready", "error", err)
		return nil
	}

	if !adminExists {
		user := database.User{
			Email:              email,
			Name:               cfg.Name,
			IsActive:           true,
			IsStaff:            true,
			MustChangePassword: cfg.ForcePasswordReset,
		}
		if err := user.SetPassword(cfg.Password); err != nil {
			return fmt.Errorf("failed to hash admin password: %w", err)
		}
		if err := db.CreateUser(ctx, &user); err != nil {
			return fmt.Errorf("failed to create initial admin: %w", err)
		}
		log.Info("created initial admin account", "email", email)
		return nil
	}

	if !cfg.ResetExisting {
		return nil
	}

	user, err := db.GetUserByEmail(ctx, email)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// Reset was requested for an account that does not exist.
			return nil
		}
		if strict {
			return fmt.Errorf("failed to look up admin account: %w", err)
		}
		log.Warn("skipping initial admin reset", "error", err)
		return nil
	}

	if err := user.SetPassword(cfg.Password); err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	if cfg.ForcePasswordReset {
		user.MustChangePassword = true
	}
	user.IsActive = true
	if err := db.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("failed to reset admin account: %w", err)
	}
	log.Info("reset initial admin account", "email", email)
	return nil
}
