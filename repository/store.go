package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/uptrace/bun"
)

// Store is the bun backed identity.Store. A Store returned to a RunInTx
// callback is bound to that transaction.
type Store struct {
	db   bun.IDB
	root *bun.DB
	inTx bool
	now  func() time.Time
}

var _ identity.Store = (*Store)(nil)

// NewStore builds a Store over db.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db, root: db, now: time.Now}
}

// DB returns the underlying connection, or the transaction when bound to one.
func (s *Store) DB() bun.IDB {
	return s.db
}

// RunInTx runs fn in a single transaction. Nested calls join the
// transaction already in flight.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx identity.Store) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if s.inTx {
		return fn(ctx, s)
	}

	return s.root.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Store{db: tx, root: s.root, inTx: true, now: s.now})
	})
}

func (s *Store) GetByLogin(ctx context.Context, login string) (*identity.Identity, error) {
	record := new(identity.Identity)
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.login = ?", login).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapLookupError(err, login)
	}
	return record, nil
}

// GetByExternalID finds the identity linked to a provider user id.
func (s *Store) GetByExternalID(ctx context.Context, provider identity.Provider, externalID string) (*identity.Identity, error) {
	column, err := externalIDColumn(provider)
	if err != nil {
		return nil, err
	}

	record := new(identity.Identity)
	err = s.db.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), externalID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrIdentityNotFound.Clone().WithMetadata(map[string]any{
				"provider":    string(provider),
				"external_id": externalID,
			})
		}
		return nil, mapLookupError(err, externalID)
	}
	return record, nil
}

// FindByEmail returns every identity registered with email across providers.
func (s *Store) FindByEmail(ctx context.Context, email string) ([]*identity.Identity, error) {
	var records []*identity.Identity
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.email = ?", email).
		Order("created_at ASC", "login ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "identity lookup failed")
	}
	return records, nil
}

func (s *Store) ExistsLogin(ctx context.Context, login string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*identity.Identity)(nil)).
		Where("?TableAlias.login = ?", login).
		Exists(ctx)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "identity lookup failed")
	}
	return exists, nil
}

func (s *Store) ExistsEmailForProvider(ctx context.Context, email string, provider identity.Provider) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*identity.Identity)(nil)).
		Where("?TableAlias.email = ?", email).
		Where("?TableAlias.provider_type = ?", provider).
		Exists(ctx)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "identity lookup failed")
	}
	return exists, nil
}

// Create inserts record. Key collisions surface as identity.ErrAlreadyExists.
func (s *Store) Create(ctx context.Context, record *identity.Identity) error {
	now := s.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err := s.db.NewInsert().
		Model(record).
		Exec(ctx)
	return mapIdentityError(err, record)
}

// Update writes the mutable profile columns of record.
func (s *Store) Update(ctx context.Context, record *identity.Identity) error {
	record.UpdatedAt = s.now().UTC()

	res, err := s.db.NewUpdate().
		Model(record).
		Column("password", "email", "active", "google_id", "github_id", "full_name", "profile_picture_url", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return mapIdentityError(err, record)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return identity.NewIdentityNotFound(record.Login)
	}
	return nil
}

// ReplaceAssignments swaps the full role set of login. Callers run it
// inside RunInTx so the delete and insert commit together.
func (s *Store) ReplaceAssignments(ctx context.Context, login string, roles []identity.RoleType) error {
	_, err := s.db.NewDelete().
		Model((*identity.RoleAssignment)(nil)).
		Where("user_login = ?", login).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to clear role assignments")
	}

	if len(roles) == 0 {
		return nil
	}

	rows := make([]identity.RoleAssignment, 0, len(roles))
	for _, role := range roles {
		rows = append(rows, identity.RoleAssignment{UserLogin: login, RoleID: role})
	}

	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to insert role assignments")
	}
	return nil
}

// AssignmentsOf lists the roles of login in catalog order.
func (s *Store) AssignmentsOf(ctx context.Context, login string) ([]identity.RoleType, error) {
	var rows []identity.RoleAssignment
	err := s.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.user_login = ?", login).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load role assignments")
	}

	assigned := make(map[identity.RoleType]bool, len(rows))
	for _, row := range rows {
		assigned[row.RoleID] = true
	}

	roles := make([]identity.RoleType, 0, len(rows))
	for _, role := range identity.Catalog() {
		if assigned[role] {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (s *Store) CatalogContains(ctx context.Context, role identity.RoleType) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*identity.RoleRecord)(nil)).
		Where("?TableAlias.id = ?", role).
		Exists(ctx)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "role catalog lookup failed")
	}
	return exists, nil
}

func externalIDColumn(provider identity.Provider) (string, error) {
	switch provider {
	case identity.ProviderGoogle:
		return "google_id", nil
	case identity.ProviderGitHub:
		return "github_id", nil
	default:
		return "", errors.New("provider has no external id column", errors.CategoryBadInput).
			WithMetadata(map[string]any{"provider": string(provider)})
	}
}
