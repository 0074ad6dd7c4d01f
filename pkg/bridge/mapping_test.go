package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntitlementMapping_Validation(t *testing.T) {
	tests := []struct {
		name        string
		priceToRole map[string]string
		plans       []PlanPrice
		wantErr     bool
	}{
		{name: "empty table", priceToRole: nil, wantErr: true},
		{name: "blank price", priceToRole: map[string]string{"": "role_vip"}, wantErr: true},
		{name: "blank role", priceToRole: map[string]string{"price_abc": " "}, wantErr: true},
		{
			name:        "plan with unmapped price",
			priceToRole: map[string]string{"price_abc": "role_vip"},
			plans:       []PlanPrice{{Name: "vip", PriceID: "price_missing"}},
			wantErr:     true,
		},
		{
			name:        "plan without name",
			priceToRole: map[string]string{"price_abc": "role_vip"},
			plans:       []PlanPrice{{PriceID: "price_abc"}},
			wantErr:     true,
		},
		{
			name:        "duplicate plan name",
			priceToRole: map[string]string{"price_abc": "role_vip", "price_def": "role_pro"},
			plans:       []PlanPrice{{Name: "vip", PriceID: "price_abc"}, {Name: "vip", PriceID: "price_def"}},
			wantErr:     true,
		},
		{
			name:        "valid",
			priceToRole: map[string]string{"price_abc": "role_vip"},
			plans:       []PlanPrice{{Name: "vip", PriceID: "price_abc"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEntitlementMapping(tt.priceToRole, tt.plans)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEntitlementMapping_ResolveEntitlement(t *testing.T) {
	m, err := NewEntitlementMapping(map[string]string{
		"price_abc": "role_vip",
		"price_def": "role_pro",
	}, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		roleID, err := m.ResolveEntitlement("price_abc")
		require.NoError(t, err)
		assert.Equal(t, "role_vip", roleID)
	}

	// exact match only: no case folding, trimming or prefix matching
	for _, priceID := range []string{"PRICE_ABC", " price_abc", "price_ab", "price_abcd", ""} {
		_, err := m.ResolveEntitlement(priceID)
		assert.ErrorIs(t, err, ErrMappingNotFound, "price %q", priceID)
	}
}

func TestEntitlementMapping_Plans(t *testing.T) {
	m, err := NewEntitlementMapping(map[string]string{
		"price_abc": "role_vip",
		"price_def": "role_pro",
		"price_ghi": "role_vip",
	}, []PlanPrice{
		{Name: "pro", PriceID: "price_def"},
		{Name: "vip", PriceID: "price_abc"},
	})
	require.NoError(t, err)

	def, ok := m.DefaultPrice()
	require.True(t, ok)
	assert.Equal(t, "price_def", def)

	priceID, ok := m.PriceForName("vip")
	require.True(t, ok)
	assert.Equal(t, "price_abc", priceID)

	_, ok = m.PriceForName("gold")
	assert.False(t, ok)

	priceID, ok = m.PriceForRole("role_vip")
	require.True(t, ok)
	assert.Equal(t, "price_abc", priceID)

	assert.Equal(t, []Plan{
		{Name: "pro", PriceID: "price_def", RoleID: "role_pro"},
		{Name: "vip", PriceID: "price_abc", RoleID: "role_vip"},
	}, m.Plans())
}

func TestEntitlementMapping_NoPlans(t *testing.T) {
	m, err := NewEntitlementMapping(map[string]string{"price_abc": "role_vip"}, nil)
	require.NoError(t, err)

	_, ok := m.DefaultPrice()
	assert.False(t, ok)
	assert.Empty(t, m.Plans())
}
