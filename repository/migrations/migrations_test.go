package migrations_test

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

func setupDB(t *testing.T) (*bun.DB, *migrate.Migrator) {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(context.Background()))
	return db, migrator
}

func tableExists(t *testing.T, db *bun.DB, name string) bool {
	t.Helper()
	var count int
	err := db.NewRaw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).
		Scan(context.Background(), &count)
	require.NoError(t, err)
	return count == 1
}

func TestMigrateCreatesSchemaAndSeedsCatalog(t *testing.T) {
	ctx := context.Background()
	db, migrator := setupDB(t)

	group, err := migrator.Migrate(ctx)
	require.NoError(t, err)
	require.Len(t, group.Migrations, 2)

	for _, table := range []string{"users", "roles", "user_roles"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	var roles []identity.RoleRecord
	require.NoError(t, db.NewSelect().Model(&roles).Scan(ctx))
	assert.Len(t, roles, len(identity.Catalog()))
}

func TestUserRolesForeignKeys(t *testing.T) {
	ctx := context.Background()
	db, migrator := setupDB(t)
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)

	_, err = db.NewInsert().Model(&identity.RoleAssignment{UserLogin: "ghost", RoleID: identity.RoleUser}).Exec(ctx)
	assert.Error(t, err, "assignment for an unknown login")

	digest := "digest"
	_, err = db.NewInsert().Model(&identity.Identity{
		Login:        "alice",
		PasswordHash: &digest,
		Email:        "alice@example.com",
		Provider:     identity.ProviderLocal,
		Active:       true,
	}).Exec(ctx)
	require.NoError(t, err)

	_, err = db.NewInsert().Model(&identity.RoleAssignment{UserLogin: "alice", RoleID: "JANITOR"}).Exec(ctx)
	assert.Error(t, err, "assignment of a role outside the catalog")

	_, err = db.NewInsert().Model(&identity.RoleAssignment{UserLogin: "alice", RoleID: identity.RoleUser}).Exec(ctx)
	assert.NoError(t, err)
}

func TestRollbackDropsSchema(t *testing.T) {
	ctx := context.Background()
	db, migrator := setupDB(t)
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)

	group, err := migrator.Rollback(ctx)
	require.NoError(t, err)
	require.Len(t, group.Migrations, 2)

	for _, table := range []string{"users", "roles", "user_roles"} {
		assert.False(t, tableExists(t, db, table), table)
	}
}
