package bridge_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

func TestResolveMember(t *testing.T) {
	community := &bridge.Community{ID: testCommunityID}
	ctx := context.Background()

	t.Run("cache hit skips refresh", func(t *testing.T) {
		d := newFakeDirectory()
		m, err := bridge.ResolveMember(ctx, d, community, testMemberID)
		require.NoError(t, err)
		assert.Equal(t, testMemberID, m.ID)
		assert.Zero(t, d.refreshes)
	})

	t.Run("cache miss refreshes once", func(t *testing.T) {
		d := newFakeDirectory()
		d.cached = map[string]*bridge.Member{}
		d.remote["7"] = &bridge.Member{ID: "7"}

		m, err := bridge.ResolveMember(ctx, d, community, "7")
		require.NoError(t, err)
		assert.Equal(t, "7", m.ID)
		assert.Equal(t, 1, d.refreshes)
	})

	t.Run("absent after refresh", func(t *testing.T) {
		d := newFakeDirectory()
		_, err := bridge.ResolveMember(ctx, d, community, "99")
		assert.ErrorIs(t, err, bridge.ErrMemberNotFound)
		assert.Equal(t, 1, d.refreshes)
	})

	t.Run("other errors do not refresh", func(t *testing.T) {
		d := newFakeDirectory()
		d.findErr = errors.New("gateway closed")
		_, err := bridge.ResolveMember(ctx, d, community, testMemberID)
		assert.EqualError(t, err, "gateway closed")
		assert.Zero(t, d.refreshes)
	})
}

func TestCheckAuthority(t *testing.T) {
	tests := []struct {
		name    string
		auth    *bridge.Authority
		role    *bridge.Role
		allowed bool
	}{
		{"below agent", &bridge.Authority{CanManageRoles: true, HighestPosition: 5}, &bridge.Role{ID: "r", Position: 4}, true},
		{"equal to agent", &bridge.Authority{CanManageRoles: true, HighestPosition: 5}, &bridge.Role{ID: "r", Position: 5}, false},
		{"above agent", &bridge.Authority{CanManageRoles: true, HighestPosition: 5}, &bridge.Role{ID: "r", Position: 9}, false},
		{"no permission", &bridge.Authority{CanManageRoles: false, HighestPosition: 5}, &bridge.Role{ID: "r", Position: 1}, false},
		{"managed role", &bridge.Authority{CanManageRoles: true, HighestPosition: 5}, &bridge.Role{ID: "r", Position: 1, Managed: true}, false},
		{"nil authority", nil, &bridge.Role{ID: "r", Position: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bridge.CheckAuthority(tt.auth, tt.role)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, bridge.ErrAuthorityDenied)
		})
	}
}
