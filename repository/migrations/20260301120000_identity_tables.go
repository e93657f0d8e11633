package migrations

import (
	"context"
	"fmt"

	identity "github.com/goliatone/go-identity"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260301120000, down_20260301120000)
}

// up_20260301120000 creates the users, roles and user_roles tables
func up_20260301120000(ctx context.Context, db *bun.DB) error {
	// 1. users
	fmt.Print(" [up] creating users table...")
	_, err := db.NewCreateTable().
		Model((*identity.Identity)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`)
	if err != nil {
		return fmt.Errorf("failed to create users email index: %w", err)
	}
	fmt.Println(" OK")

	// 2. roles
	fmt.Print(" [up] creating roles table...")
	_, err = db.NewCreateTable().
		Model((*identity.RoleRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create roles table: %w", err)
	}
	fmt.Println(" OK")

	// 3. user_roles, declared with its foreign keys so sqlite gets them too
	fmt.Print(" [up] creating user_roles table...")
	_, err = db.NewCreateTable().
		Model((*identity.RoleAssignment)(nil)).
		IfNotExists().
		ForeignKey(`("user_login") REFERENCES "users" ("login") ON DELETE CASCADE`).
		ForeignKey(`("role_id") REFERENCES "roles" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create user_roles table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_user_roles_role_id ON user_roles(role_id)`)
	if err != nil {
		return fmt.Errorf("failed to create user_roles role_id index: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

func down_20260301120000(ctx context.Context, db *bun.DB) error {
	tables := []struct {
		name  string
		model any
	}{
		{name: "user_roles", model: (*identity.RoleAssignment)(nil)},
		{name: "roles", model: (*identity.RoleRecord)(nil)},
		{name: "users", model: (*identity.Identity)(nil)},
	}

	for _, table := range tables {
		q := db.NewDropTable().Model(table.model).IfExists()
		if IsPostgreSQL(db) {
			q = q.Cascade()
		}

		fmt.Printf(" [down] dropping %s table...", table.name)
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table.name, err)
		}
		fmt.Println(" OK")
	}

	return nil
}
