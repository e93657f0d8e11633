package identity_test

import (
	"context"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
)

func TestPrincipalFromContext(t *testing.T) {
	tests := []struct {
		name   string
		ctx    func() context.Context
		want   identity.Principal
		wantOK bool
	}{
		{
			name: "principal present",
			ctx: func() context.Context {
				return identity.WithPrincipal(context.Background(), identity.Principal{
					Login:       "alice",
					Authorities: []string{"ROLE_USER"},
				})
			},
			want:   identity.Principal{Login: "alice", Authorities: []string{"ROLE_USER"}},
			wantOK: true,
		},
		{
			name:   "empty context",
			ctx:    context.Background,
			wantOK: false,
		},
		{
			name: "anonymous principal",
			ctx: func() context.Context {
				return identity.WithPrincipal(context.Background(), identity.Principal{})
			},
			wantOK: false,
		},
		{
			name: "unrelated value under a string key",
			ctx: func() context.Context {
				return context.WithValue(context.Background(), "principal", identity.Principal{Login: "mallory"})
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := identity.PrincipalFromContext(tt.ctx())
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrincipalFromContext_Nil(t *testing.T) {
	//nolint:staticcheck // nil context is tolerated
	_, ok := identity.PrincipalFromContext(nil)
	assert.False(t, ok)
}
