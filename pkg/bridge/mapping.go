package bridge

import (
	"fmt"
	"strings"
)

// PlanPrice names a purchasable price for checkout initiation.
type PlanPrice struct {
	Name    string `json:"name"`
	PriceID string `json:"price_id"`
}

// EntitlementMapping is the static price -> role table loaded at startup.
// It is never mutated after construction and is safe for concurrent use.
type EntitlementMapping struct {
	priceToRole map[string]string
	plans       []PlanPrice
	nameToPrice map[string]string
}

// NewEntitlementMapping validates and freezes the mapping tables.
// Every plan must point at a mapped price; blank keys or values are rejected.
func NewEntitlementMapping(priceToRole map[string]string, plans []PlanPrice) (*EntitlementMapping, error) {
	if len(priceToRole) == 0 {
		return nil, fmt.Errorf("price to role mapping is empty")
	}

	m := &EntitlementMapping{
		priceToRole: make(map[string]string, len(priceToRole)),
		nameToPrice: make(map[string]string, len(plans)),
	}
	for priceID, roleID := range priceToRole {
		if strings.TrimSpace(priceID) == "" || strings.TrimSpace(roleID) == "" {
			return nil, fmt.Errorf("blank entry in price to role mapping (%q -> %q)", priceID, roleID)
		}
		m.priceToRole[priceID] = roleID
	}

	for _, p := range plans {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("plan with price %q has no name", p.PriceID)
		}
		if _, ok := m.priceToRole[p.PriceID]; !ok {
			return nil, fmt.Errorf("plan %q uses unmapped price %q", p.Name, p.PriceID)
		}
		if _, dup := m.nameToPrice[p.Name]; dup {
			return nil, fmt.Errorf("duplicate plan name %q", p.Name)
		}
		m.nameToPrice[p.Name] = p.PriceID
		m.plans = append(m.plans, p)
	}

	return m, nil
}

// ResolveEntitlement returns the role granted for priceID.
// Matching is exact; there is no default role.
func (m *EntitlementMapping) ResolveEntitlement(priceID string) (string, error) {
	roleID, ok := m.priceToRole[priceID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMappingNotFound, priceID)
	}
	return roleID, nil
}

// PriceForName returns the price id configured for a plan name.
func (m *EntitlementMapping) PriceForName(name string) (string, bool) {
	priceID, ok := m.nameToPrice[name]
	return priceID, ok
}

// PriceForRole is the reverse lookup used for display only.
// Only prices listed as plans are considered; with several plans per role
// the first in configuration order wins.
func (m *EntitlementMapping) PriceForRole(roleID string) (string, bool) {
	for _, p := range m.plans {
		if m.priceToRole[p.PriceID] == roleID {
			return p.PriceID, true
		}
	}
	return "", false
}

// DefaultPrice is the first configured plan's price.
func (m *EntitlementMapping) DefaultPrice() (string, bool) {
	if len(m.plans) == 0 {
		return "", false
	}
	return m.plans[0].PriceID, true
}

// Plans lists the purchasable plans in configuration order.
func (m *EntitlementMapping) Plans() []Plan {
	out := make([]Plan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, Plan{Name: p.Name, PriceID: p.PriceID, RoleID: m.priceToRole[p.PriceID]})
	}
	return out
}
