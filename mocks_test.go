package identity_test

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory identity.Store that enforces the same unique
// keys as the SQL schema. RunInTx restores a snapshot when fn fails.
type memStore struct {
	mu          sync.Mutex
	identities  map[string]*identity.Identity
	order       []string
	assignments map[string][]identity.RoleType
	catalog     map[identity.RoleType]bool

	failCreate  error
	failReplace error
}

var _ identity.Store = (*memStore)(nil)

func newMemStore() *memStore {
	s := &memStore{
		identities:  map[string]*identity.Identity{},
		assignments: map[string][]identity.RoleType{},
		catalog:     map[identity.RoleType]bool{},
	}
	for _, r := range identity.Catalog() {
		s.catalog[r] = true
	}
	return s
}

func (s *memStore) withoutRole(role identity.RoleType) *memStore {
	delete(s.catalog, role)
	return s
}

func cloneIdentity(i *identity.Identity) *identity.Identity {
	c := *i
	return &c
}

func (s *memStore) GetByLogin(_ context.Context, login string) (*identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.identities[login]
	if !ok {
		return nil, identity.NewIdentityNotFound(login)
	}
	return cloneIdentity(i), nil
}

func (s *memStore) GetByExternalID(_ context.Context, provider identity.Provider, externalID string) (*identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !provider.IsFederated() {
		return nil, errors.New("unsupported provider", errors.CategoryBadInput)
	}
	for _, login := range s.order {
		i := s.identities[login]
		if i.ExternalID(provider) == externalID {
			return cloneIdentity(i), nil
		}
	}
	return nil, identity.ErrIdentityNotFound.Clone().WithMetadata(map[string]any{
		"provider":    string(provider),
		"external_id": externalID,
	})
}

func (s *memStore) FindByEmail(_ context.Context, email string) ([]*identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*identity.Identity
	for _, login := range s.order {
		if i := s.identities[login]; i.Email == email {
			out = append(out, cloneIdentity(i))
		}
	}
	return out, nil
}

func (s *memStore) ExistsLogin(_ context.Context, login string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.identities[login]
	return ok, nil
}

func (s *memStore) ExistsEmailForProvider(_ context.Context, email string, provider identity.Provider) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.identities {
		if i.Email == email && i.Provider == provider {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) conflict(record *identity.Identity, skipLogin string) error {
	for login, i := range s.identities {
		if login == skipLogin {
			continue
		}
		switch {
		case i.Email == record.Email && i.Provider == record.Provider:
			return identity.NewAlreadyExists("email", record.Email, nil)
		case record.GoogleID != nil && i.ExternalID(identity.ProviderGoogle) == *record.GoogleID:
			return identity.NewAlreadyExists("google_id", *record.GoogleID, nil)
		case record.GitHubID != nil && i.ExternalID(identity.ProviderGitHub) == *record.GitHubID:
			return identity.NewAlreadyExists("github_id", *record.GitHubID, nil)
		}
	}
	return nil
}

func (s *memStore) Create(_ context.Context, record *identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	if _, ok := s.identities[record.Login]; ok {
		return identity.NewAlreadyExists("login", record.Login, nil)
	}
	if err := s.conflict(record, ""); err != nil {
		return err
	}
	s.identities[record.Login] = cloneIdentity(record)
	s.order = append(s.order, record.Login)
	return nil
}

func (s *memStore) Update(_ context.Context, record *identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[record.Login]; !ok {
		return identity.NewIdentityNotFound(record.Login)
	}
	if err := s.conflict(record, record.Login); err != nil {
		return err
	}
	s.identities[record.Login] = cloneIdentity(record)
	return nil
}

func (s *memStore) ReplaceAssignments(_ context.Context, login string, roles []identity.RoleType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReplace != nil {
		return s.failReplace
	}
	if _, ok := s.identities[login]; !ok {
		return identity.NewIdentityNotFound(login)
	}
	for _, r := range roles {
		if !s.catalog[r] {
			return identity.ErrRoleNotFound.Clone()
		}
	}
	s.assignments[login] = slices.Clone(roles)
	return nil
}

func (s *memStore) AssignmentsOf(_ context.Context, login string) ([]identity.RoleType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []identity.RoleType{}
	for _, r := range identity.Catalog() {
		if slices.Contains(s.assignments[login], r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) CatalogContains(_ context.Context, role identity.RoleType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog[role], nil
}

func (s *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx identity.Store) error) error {
	s.mu.Lock()
	identities := maps.Clone(s.identities)
	order := slices.Clone(s.order)
	assignments := maps.Clone(s.assignments)
	s.mu.Unlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.identities, s.order, s.assignments = identities, order, assignments
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.identities)
}

func (s *memStore) seed(records ...*identity.Identity) {
	for _, r := range records {
		_ = s.Create(context.Background(), r)
		s.assignments[r.Login] = []identity.RoleType{identity.RoleUser}
	}
}

// MockTokenIssuer implements identity.TokenIssuer
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) Issue(ctx context.Context, principal identity.Principal) (string, error) {
	args := m.Called(ctx, principal)
	return args.String(0), args.Error(1)
}

// activityRecorder collects activity events.
type activityRecorder struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (r *activityRecorder) Record(_ context.Context, event identity.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *activityRecorder) types() []identity.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]identity.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func strptr(s string) *string { return &s }

// textCode returns the text code of the outermost rich error in err.
func textCode(err error) string {
	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.TextCode
	}
	return ""
}

func localIdentity(hasher *identity.CredentialHasher, login, email, password string) *identity.Identity {
	digest := hasher.Hash(password, login, email)
	return &identity.Identity{
		Login:        login,
		Email:        email,
		PasswordHash: &digest,
		Provider:     identity.ProviderLocal,
		Active:       true,
	}
}
