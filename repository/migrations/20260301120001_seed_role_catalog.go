package migrations

import (
	"context"
	"fmt"

	identity "github.com/goliatone/go-identity"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260301120001, down_20260301120001)
}

// up_20260301120001 seeds the closed role catalog
func up_20260301120001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] seeding role catalog...")

	for _, role := range identity.CatalogRecords() {
		_, err := db.NewInsert().
			Model(&role).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed role %s: %w", role.ID, err)
		}
	}

	fmt.Println(" OK")
	return nil
}

func down_20260301120001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] removing role catalog...")

	_, err := db.NewDelete().
		Model((*identity.RoleRecord)(nil)).
		Where("id IN (?)", bun.In(identity.Catalog())).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove role catalog: %w", err)
	}

	fmt.Println(" OK")
	return nil
}
