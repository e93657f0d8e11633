package repository

import (
	"context"
	"database/sql"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/repository/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/migrate"

	_ "github.com/mattn/go-sqlite3"
)

func setupStore(t *testing.T) (*Store, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	ctx := context.Background()
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	return NewStore(db), db
}

func localIdentity(login, email string) *identity.Identity {
	hash := "digest-" + login
	return &identity.Identity{
		Login:        login,
		PasswordHash: &hash,
		Email:        email,
		Provider:     identity.ProviderLocal,
		Active:       true,
	}
}

func googleIdentity(login, email, googleID string) *identity.Identity {
	record := &identity.Identity{
		Login:    login,
		Email:    email,
		Provider: identity.ProviderGoogle,
		Active:   true,
	}
	record.SetExternalID(identity.ProviderGoogle, googleID)
	return record
}

func TestStore_CreateAndGetByLogin(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, localIdentity("alice", "alice@example.com")))

	found, err := store.GetByLogin(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", found.Email)
	assert.Equal(t, identity.ProviderLocal, found.Provider)
	assert.True(t, found.HasPassword())
	assert.False(t, found.CreatedAt.IsZero())

	_, err = store.GetByLogin(ctx, "nobody")
	require.Error(t, err)
	assert.True(t, identity.IsNotFound(err))
}

func TestStore_CreateConflicts(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, localIdentity("alice", "alice@example.com")))

	err := store.Create(ctx, localIdentity("alice", "other@example.com"))
	require.Error(t, err)
	assert.True(t, identity.IsAlreadyExists(err), "duplicate login")

	err = store.Create(ctx, localIdentity("alice2", "alice@example.com"))
	require.Error(t, err)
	assert.True(t, identity.IsAlreadyExists(err), "duplicate email for the same provider")

	require.NoError(t, store.Create(ctx, googleIdentity("alice-g", "alice@example.com", "g-1")),
		"same email under another provider is allowed")

	err = store.Create(ctx, googleIdentity("alice-g2", "alice2@example.com", "g-1"))
	require.Error(t, err)
	assert.True(t, identity.IsAlreadyExists(err), "duplicate google id")
}

func TestStore_LookupsByEmailAndExternalID(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, localIdentity("jane", "jane@example.com")))
	require.NoError(t, store.Create(ctx, googleIdentity("jane-g", "jane@example.com", "g-42")))

	matches, err := store.FindByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	found, err := store.GetByExternalID(ctx, identity.ProviderGoogle, "g-42")
	require.NoError(t, err)
	assert.Equal(t, "jane-g", found.Login)

	_, err = store.GetByExternalID(ctx, identity.ProviderGitHub, "g-42")
	assert.True(t, identity.IsNotFound(err))

	_, err = store.GetByExternalID(ctx, identity.ProviderLocal, "g-42")
	assert.Error(t, err)

	exists, err := store.ExistsEmailForProvider(ctx, "jane@example.com", identity.ProviderLocal)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ExistsEmailForProvider(ctx, "jane@example.com", identity.ProviderGitHub)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = store.ExistsLogin(ctx, "jane-g")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_Update(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	record := googleIdentity("bob", "bob@example.com", "g-7")
	require.NoError(t, store.Create(ctx, record))

	record.FullName = "Bob Builder"
	record.AvatarURL = "https://example.com/bob.png"
	require.NoError(t, store.Update(ctx, record))

	found, err := store.GetByLogin(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob Builder", found.FullName)
	assert.Equal(t, "https://example.com/bob.png", found.AvatarURL)

	err = store.Update(ctx, googleIdentity("ghost", "ghost@example.com", "g-8"))
	assert.True(t, identity.IsNotFound(err))
}

func TestStore_ReplaceAssignments(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, localIdentity("carol", "carol@example.com")))

	require.NoError(t, store.ReplaceAssignments(ctx, "carol", []identity.RoleType{identity.RoleAdmin, identity.RoleUser}))
	roles, err := store.AssignmentsOf(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, []identity.RoleType{identity.RoleUser, identity.RoleAdmin}, roles, "catalog order")

	require.NoError(t, store.ReplaceAssignments(ctx, "carol", []identity.RoleType{identity.RoleCreditUser}))
	roles, err = store.AssignmentsOf(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, []identity.RoleType{identity.RoleCreditUser}, roles, "full replace")

	roles, err = store.AssignmentsOf(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestStore_CatalogSeeded(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	for _, role := range identity.Catalog() {
		ok, err := store.CatalogContains(ctx, role)
		require.NoError(t, err)
		assert.True(t, ok, role)
	}

	ok, err := store.CatalogContains(ctx, identity.RoleType("JANITOR"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_RunInTxRollsBack(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	errBoom := assert.AnError
	err := store.RunInTx(ctx, func(ctx context.Context, tx identity.Store) error {
		if err := tx.Create(ctx, localIdentity("dave", "dave@example.com")); err != nil {
			return err
		}
		if err := tx.ReplaceAssignments(ctx, "dave", []identity.RoleType{identity.RoleUser}); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	exists, err := store.ExistsLogin(ctx, "dave")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_RunInTxNested(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	err := store.RunInTx(ctx, func(ctx context.Context, tx identity.Store) error {
		return tx.RunInTx(ctx, func(ctx context.Context, inner identity.Store) error {
			assert.Same(t, tx, inner)
			return inner.Create(ctx, localIdentity("erin", "erin@example.com"))
		})
	})
	require.NoError(t, err)

	exists, err := store.ExistsLogin(ctx, "erin")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_RunInTxCanceled(t *testing.T) {
	store, _ := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.RunInTx(ctx, func(context.Context, identity.Store) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestStore_AssignmentsCascadeOnDelete(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, localIdentity("frank", "frank@example.com")))
	require.NoError(t, store.ReplaceAssignments(ctx, "frank", []identity.RoleType{identity.RoleUser}))

	_, err := db.NewDelete().Model((*identity.Identity)(nil)).Where("login = ?", "frank").Exec(ctx)
	require.NoError(t, err)

	count, err := db.NewSelect().Model((*identity.RoleAssignment)(nil)).Where("user_login = ?", "frank").Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_AssignmentRequiresCatalogRole(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, localIdentity("gina", "gina@example.com")))
	err := store.ReplaceAssignments(ctx, "gina", []identity.RoleType{"JANITOR"})
	assert.Error(t, err)
}
