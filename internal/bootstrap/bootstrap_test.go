package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundwork/internal/config"
	"groundwork/internal/database"
)

func newTestClient(t *testing.T) *database.Client {
	t.Helper()
	client, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, client.Close())
	})
	return client
}

func TestEnsureInitialAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("no-op without credentials", func(t *testing.T) {
		db := newTestClient(t)

		require.NoError(t, EnsureInitialAdmin(ctx, db, nil, true))
		require.NoError(t, EnsureInitialAdmin(ctx, db, &config.AdminConfig{Email: "a@b.test"}, true))
		require.NoError(t, EnsureInitialAdmin(ctx, db, &config.AdminConfig{Password: "secret"}, true))

		ok, err := db.HasActiveStaff(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("creates admin with forced password change", func(t *testing.T) {
		db := newTestClient(t)
		cfg := &config.AdminConfig{
			Email:              "Admin@Example.COM",
			Password:           "bootstrap-pass",
			Name:               "Admin",
			ForcePasswordReset: true,
		}

		require.NoError(t, EnsureInitialAdmin(ctx, db, cfg, true))

		user, err := db.GetUserByEmail(ctx, "admin@example.com")
		require.NoError(t, err)
		assert.Equal(t, "admin@example.com", user.Email)
		assert.True(t, user.IsStaff)
		assert.True(t, user.IsActive)
		assert.True(t, user.MustChangePassword)
		assert.True(t, user.CheckPassword("bootstrap-pass"))
	})

	t.Run("idempotent once an admin exists", func(t *testing.T) {
		db := newTestClient(t)
		cfg := &config.AdminConfig{Email: "admin@example.com", Password: "first-pass"}

		require.NoError(t, EnsureInitialAdmin(ctx, db, cfg, true))

		// A later run with a different password must not touch the account.
		cfg.Password = "second-pass"
		require.NoError(t, EnsureInitialAdmin(ctx, db, cfg, true))

		user, err := db.GetUserByEmail(ctx, "admin@example.com")
		require.NoError(t, err)
		assert.True(t, user.CheckPassword("first-pass"))
	})

	t.Run("does not create a second admin when one exists", func(t *testing.T) {
		db := newTestClient(t)
		existing := &database.User{Email: "other@example.com", IsStaff: true, IsActive: true}
		require.NoError(t, existing.SetPassword("pass"))
		require.NoError(t, db.CreateUser(ctx, existing))

		cfg := &config.AdminConfig{Email: "admin@example.com", Password: "pass"}
		require.NoError(t, EnsureInitialAdmin(ctx, db, cfg, true))

		_, err := db.GetUserByEmail(ctx, "admin@example.com")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("reset existing restores password and activates", func(t *testing.T) {
		db := newTestClient(t)

		locked := &database.User{Email: "admin@example.com", IsStaff: true, IsActive: true}
		require.NoError(t, locked.SetPassword("forgotten"))
		require.NoError(t, db.CreateUser(ctx, locked))
		// A second admin keeps HasActiveStaff true while the first is broken.
		other := &database.User{Email: "other@example.com", IsStaff: true, IsActive: true}
		require.NoError(t, other.SetPassword("pass"))
		require.NoError(t, db.CreateUser(ctx, other))

		locked.IsActive = false
		require.NoError(t, db.SaveUser(ctx, locked))

		cfg := &config.AdminConfig{
			Email:              "admin@example.com",
			Password:           "recovered-pass",
			ResetExisting:      true,
			ForcePasswordReset: true,
		}
		require.NoError(t, EnsureInitialAdmin(ctx, db, cfg, true))

		user, err := db.GetUserByEmail(ctx, "admin@example.com")
		require.NoError(t, err)
		assert.True(t, user.IsActive)
		assert.True(t, user.MustChangePassword)
		assert.True(t, user.CheckPassword("recovered-pass"))
	})

	t.Run("reset existing tolerates a missing account", func(t *testing.T) {
		db := newTestClient(t)
		other := &database.User{Email: "other@example.com", IsStaff: true, IsActive: true}
		require.NoError(t, other.SetPassword("pass"))
		require.NoError(t, db.CreateUser(ctx, other))

		cfg := &config.AdminConfig{Email: "ghost@example.com", Password: "pass", ResetExisting: true}
		require.NoError(t, EnsureInitialAdmin(ctx, db, cfg, true))
	})

	t.Run("strict surfaces store errors", func(t *testing.T) {
		db := newTestClient(t)
		require.NoError(t, db.Close())

		cfg := &config.AdminConfig{Email: "admin@example.com", Password: "pass"}
		assert.Error(t, EnsureInitialAdmin(ctx, db, cfg, true))
		assert.NoError(t, EnsureInitialAdmin(ctx, db, cfg, false))
	})
}
