package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, client.Close())
	})
	return client
}

func newTestUser(t *testing.T, c *Client, email string, staff, active bool) *User {
	t.Helper()
	user := &User{Email: email, IsStaff: staff, IsActive: active}
	require.NoError(t, user.SetPassword("initial-pass"))
	require.NoError(t, c.CreateUser(context.Background(), user))
	return user
}

func TestUserPassword(t *testing.T) {
	var user User
	require.NoError(t, user.SetPassword("hunter2hunter2"))
	assert.NotEqual(t, "hunter2hunter2", user.PasswordHash)
	assert.True(t, user.CheckPassword("hunter2hunter2"))
	assert.False(t, user.CheckPassword("wrong"))
}

func TestUserLookup(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	created := newTestUser(t, client, "alice@example.com", false, true)

	byID, err := client.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)

	// Lookup lowercases the input, matching how logins are normalized.
	byEmail, err := client.GetUserByEmail(ctx, "ALICE@Example.COM")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	_, err = client.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.GetUserByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	client := newTestClient(t)
	newTestUser(t, client, "dup@example.com", false, true)

	err := client.CreateUser(context.Background(), &User{Email: "dup@example.com"})
	assert.Error(t, err)
}

func TestListUsers(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	newTestUser(t, client, "carol@example.com", false, true)
	bob := newTestUser(t, client, "bob@example.com", false, true)
	bob.Name = "Bobby Tables"
	require.NoError(t, client.SaveUser(ctx, bob))
	newTestUser(t, client, "alice@example.com", true, true)

	users, total, err := client.ListUsers(ctx, "", 1, 25)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, users, 3)
	assert.Equal(t, "alice@example.com", users[0].Email)
	assert.Equal(t, "carol@example.com", users[2].Email)

	// Substring search matches email or name, case-insensitively.
	users, total, err = client.ListUsers(ctx, "BOBBY", 1, 25)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "bob@example.com", users[0].Email)

	// Paging keeps the full count while limiting the page.
	users, total, err = client.ListUsers(ctx, "", 2, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, users, 1)
	assert.Equal(t, "carol@example.com", users[0].Email)
}

func TestHasActiveStaff(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	ok, err := client.HasActiveStaff(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// An inactive staff user does not count.
	newTestUser(t, client, "retired@example.com", true, false)
	ok, err = client.HasActiveStaff(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	newTestUser(t, client, "admin@example.com", true, true)
	ok, err = client.HasActiveStaff(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateUserGuarded(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects demoting the last admin", func(t *testing.T) {
		client := newTestClient(t)
		admin := newTestUser(t, client, "admin@example.com", true, true)

		admin.IsStaff = false
		err := client.UpdateUserGuarded(ctx, admin, nil)
		assert.ErrorIs(t, err, ErrLastAdmin)

		stored, err := client.GetUserByID(ctx, admin.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsStaff)
	})

	t.Run("rejects deactivating the last admin", func(t *testing.T) {
		client := newTestClient(t)
		admin := newTestUser(t, client, "admin@example.com", true, true)

		admin.IsActive = false
		assert.ErrorIs(t, client.UpdateUserGuarded(ctx, admin, nil), ErrLastAdmin)
	})

	t.Run("allows demotion when another admin remains", func(t *testing.T) {
		client := newTestClient(t)
		admin := newTestUser(t, client, "admin@example.com", true, true)
		newTestUser(t, client, "second@example.com", true, true)

		admin.IsStaff = false
		require.NoError(t, client.UpdateUserGuarded(ctx, admin, nil))

		stored, err := client.GetUserByID(ctx, admin.ID)
		require.NoError(t, err)
		assert.False(t, stored.IsStaff)
	})

	t.Run("replaces group memberships", func(t *testing.T) {
		client := newTestClient(t)
		newTestUser(t, client, "admin@example.com", true, true)
		user := newTestUser(t, client, "user@example.com", false, true)

		editors := &Group{Name: "editors"}
		viewers := &Group{Name: "viewers"}
		require.NoError(t, client.SaveGroup(ctx, editors))
		require.NoError(t, client.SaveGroup(ctx, viewers))

		require.NoError(t, client.UpdateUserGuarded(ctx, user, []Group{*editors, *viewers}))
		require.NoError(t, client.UpdateUserGuarded(ctx, user, []Group{*viewers}))

		stored, err := client.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, stored.Groups, 1)
		assert.Equal(t, "viewers", stored.Groups[0].Name)
	})
}

func TestSiteSettingsSingleton(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	settings, err := client.SiteSettings(ctx)
	require.NoError(t, err)
	assert.False(t, settings.RegistrationEnabled)
	assert.Equal(t, 587, settings.EmailPort)
	assert.True(t, settings.EmailUseTLS)

	settings.RegistrationEnabled = true
	settings.EmailHost = "smtp.example.com"
	require.NoError(t, client.SaveSiteSettings(ctx, settings))

	again, err := client.SiteSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.ID, again.ID)
	assert.True(t, again.RegistrationEnabled)
	assert.Equal(t, "smtp.example.com", again.EmailHost)
}

func TestSiteSettingsConcurrentFirstReads(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	const readers = 8
	results := make([]*SiteSettings, readers)
	errs := make([]error, readers)

	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = client.SiteSettings(ctx)
		}(i)
	}
	wg.Wait()

	for i := 0; i < readers; i++ {
		require.NoError(t, errs[i])
		assert.EqualValues(t, 1, results[i].ID)
	}

	// The insert race must settle on a single row.
	var count int64
	require.NoError(t, client.db.Model(&SiteSettings{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestPasswordResetTokens(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	user := newTestUser(t, client, "alice@example.com", false, true)

	t.Run("valid token resolves with its user", func(t *testing.T) {
		token, err := client.CreatePasswordResetToken(ctx, user.ID, time.Hour)
		require.NoError(t, err)
		assert.NotEmpty(t, token.Token)

		record, err := client.GetValidResetToken(ctx, token.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, record.UserID)
		assert.Equal(t, "alice@example.com", record.User.Email)
	})

	t.Run("expired token is not found", func(t *testing.T) {
		token, err := client.CreatePasswordResetToken(ctx, user.ID, -time.Minute)
		require.NoError(t, err)

		_, err = client.GetValidResetToken(ctx, token.Token)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("consuming applies the password and spends the token together", func(t *testing.T) {
		token, err := client.CreatePasswordResetToken(ctx, user.ID, time.Hour)
		require.NoError(t, err)

		record, err := client.GetValidResetToken(ctx, token.Token)
		require.NoError(t, err)

		target := record.User
		require.NoError(t, target.SetPassword("after-reset-pass"))
		require.NoError(t, client.ConsumeResetToken(ctx, record, &target))
		assert.NotNil(t, record.UsedAt)

		stored, err := client.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, stored.CheckPassword("after-reset-pass"))

		_, err = client.GetValidResetToken(ctx, token.Token)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown token is not found", func(t *testing.T) {
		_, err := client.GetValidResetToken(ctx, "no-such-token")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGroups(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	editors := &Group{Name: "editors"}
	require.NoError(t, client.SaveGroup(ctx, editors))
	require.NoError(t, client.SaveGroup(ctx, &Group{Name: "viewers"}))

	groups, total, err := client.ListGroups(ctx, "edit", 1, 25)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, groups, 1)
	assert.Equal(t, "editors", groups[0].Name)

	all, err := client.ListAllGroups(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "editors", all[0].Name)

	byIDs, err := client.GetGroupsByIDs(ctx, []uint{editors.ID})
	require.NoError(t, err)
	require.Len(t, byIDs, 1)

	none, err := client.GetGroupsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	t.Run("delete clears memberships", func(t *testing.T) {
		user := newTestUser(t, client, "member@example.com", false, true)
		require.NoError(t, client.UpdateUserGuarded(ctx, user, []Group{*editors}))

		require.NoError(t, client.DeleteGroup(ctx, editors.ID))

		_, err := client.GetGroupByID(ctx, editors.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		stored, err := client.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.Groups)
	})
}
