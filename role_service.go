package identity

import (
	"context"
	"slices"
)

// RoleService assigns and reads catalog roles for identities.
type RoleService struct {
	store          Store
	logger         Logger
	loggerProvider LoggerProvider
	activitySink   ActivitySink
}

// NewRoleService returns a RoleService backed by store.
func NewRoleService(store Store) *RoleService {
	provider, logger := ResolveLogger("identity.roles", nil, nil)
	return &RoleService{
		store:          store,
		logger:         logger,
		loggerProvider: provider,
		activitySink:   noopActivitySink{},
	}
}

func (s *RoleService) WithLogger(logger Logger) *RoleService {
	s.loggerProvider, s.logger = ResolveLogger("identity.roles", nil, logger)
	return s
}

func (s *RoleService) WithLoggerProvider(provider LoggerProvider) *RoleService {
	s.loggerProvider, s.logger = ResolveLogger("identity.roles", provider, s.logger)
	return s
}

// WithActivitySink configures an ActivitySink for role replacement events.
func (s *RoleService) WithActivitySink(sink ActivitySink) *RoleService {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// Assign replaces every role of login with roles. The delete and the
// inserts run in one transaction.
func (s *RoleService) Assign(ctx context.Context, login string, roles []RoleType) error {
	set := dedupeRoles(roles)

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.GetByLogin(ctx, login); err != nil {
			return err
		}

		for _, role := range set {
			if err := ensureCatalogRole(ctx, tx, role); err != nil {
				return err
			}
		}

		return tx.ReplaceAssignments(ctx, login, set)
	})
	if err != nil {
		s.logger.Error("role assignment failed", "login", login, "error", err)
		return err
	}

	s.logger.Info("roles replaced", "login", login, "roles", set)
	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventRolesReplaced,
		Actor:     actorFromContext(ctx),
		Login:     login,
		Metadata:  map[string]any{"roles": Authorities(set)},
	})
	return nil
}

// RolesOf returns the current role set of login.
func (s *RoleService) RolesOf(ctx context.Context, login string) ([]RoleType, error) {
	if _, err := s.store.GetByLogin(ctx, login); err != nil {
		return nil, err
	}
	return s.store.AssignmentsOf(ctx, login)
}

// ViewRoles checks that requester may see target's roles before looking them up.
func (s *RoleService) ViewRoles(ctx context.Context, requester Principal, target string) ([]RoleType, error) {
	if err := AuthorizeViewRoles(requester, target); err != nil {
		s.logger.Warn("role view denied", "requester", requester.Login, "target", target)
		return nil, err
	}
	return s.RolesOf(ctx, target)
}

func ensureCatalogRole(ctx context.Context, store RoleStore, role RoleType) error {
	if !role.IsValid() {
		return raise(ErrRoleNotFound, nil, map[string]any{"role": string(role)})
	}
	ok, err := store.CatalogContains(ctx, role)
	if err != nil {
		return err
	}
	if !ok {
		return raise(ErrRoleNotFound, nil, map[string]any{"role": string(role)})
	}
	return nil
}

// ensureDefaultRole checks that the catalog holds the role given to new
// identities. A catalog without it is a configuration fault, not a user error.
func ensureDefaultRole(ctx context.Context, store RoleStore) error {
	ok, err := store.CatalogContains(ctx, DefaultRole)
	if err != nil {
		return err
	}
	if !ok {
		return raise(ErrConfigurationFault, nil, map[string]any{
			"reason": "default role missing from catalog",
			"role":   string(DefaultRole),
		})
	}
	return nil
}

func dedupeRoles(roles []RoleType) []RoleType {
	out := make([]RoleType, 0, len(roles))
	for _, r := range roles {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

func actorFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.Login
	}
	return "system"
}
