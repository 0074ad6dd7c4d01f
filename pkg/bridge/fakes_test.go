package bridge_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

const (
	testCommunityID = "guild_1"
	testMemberID    = "42"
	testRoleVIP     = "role_vip"
	testPriceABC    = "price_abc"
	testSessionID   = "sess_1"
	testSubID       = "sub_1"
	testCustomerID  = "cus_1"
)

// fakeDirectory is an in-memory Directory that records every mutating call.
type fakeDirectory struct {
	mu sync.Mutex

	communityMissing bool
	// cached members are visible to FindMember; remote ones only after a refresh
	cached  map[string]*bridge.Member
	remote  map[string]*bridge.Member
	roles   map[string]*bridge.Role
	auth    *bridge.Authority
	authErr error

	grantErr  error
	revokeErr error
	findErr   error

	grants    []string
	revokes   []string
	refreshes int
	calls     int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		cached: map[string]*bridge.Member{testMemberID: {ID: testMemberID}},
		remote: map[string]*bridge.Member{},
		roles: map[string]*bridge.Role{
			testRoleVIP: {ID: testRoleVIP, Name: "VIP", Position: 1},
		},
		auth: &bridge.Authority{CanManageRoles: true, HighestPosition: 5},
	}
}

func (d *fakeDirectory) FindCommunity(_ context.Context, communityID string) (*bridge.Community, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.communityMissing {
		return nil, fmt.Errorf("%w: %s", bridge.ErrCommunityNotFound, communityID)
	}
	return &bridge.Community{ID: communityID}, nil
}

func (d *fakeDirectory) FindMember(_ context.Context, _ *bridge.Community, memberID string) (*bridge.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.findErr != nil {
		return nil, d.findErr
	}
	if m, ok := d.cached[memberID]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, bridge.ErrMemberNotFound
}

func (d *fakeDirectory) FindMemberAfterRefresh(_ context.Context, _ *bridge.Community, memberID string) (*bridge.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.refreshes++
	if m, ok := d.remote[memberID]; ok {
		d.cached[memberID] = m
	}
	if m, ok := d.cached[memberID]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, bridge.ErrMemberNotFound
}

func (d *fakeDirectory) FindRole(_ context.Context, _ *bridge.Community, roleID string) (*bridge.Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if r, ok := d.roles[roleID]; ok {
		return r, nil
	}
	return nil, bridge.ErrRoleNotFound
}

func (d *fakeDirectory) AgentAuthority(_ context.Context, _ *bridge.Community) (*bridge.Authority, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.auth, d.authErr
}

func (d *fakeDirectory) GrantRole(_ context.Context, _ *bridge.Community, member *bridge.Member, roleID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.grantErr != nil {
		return d.grantErr
	}
	d.grants = append(d.grants, member.ID+":"+roleID)
	m := d.cached[member.ID]
	if !m.HasRole(roleID) {
		m.RoleIDs = append(m.RoleIDs, roleID)
	}
	return nil
}

func (d *fakeDirectory) RevokeRole(_ context.Context, _ *bridge.Community, member *bridge.Member, roleID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.revokeErr != nil {
		return d.revokeErr
	}
	d.revokes = append(d.revokes, member.ID+":"+roleID)
	m := d.cached[member.ID]
	kept := m.RoleIDs[:0]
	for _, id := range m.RoleIDs {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	m.RoleIDs = kept
	return nil
}

func (d *fakeDirectory) memberHasRole(memberID, roleID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.cached[memberID]
	return ok && m.HasRole(roleID)
}

// brokenLedger fails every call with a persistence error.
type brokenLedger struct {
	recordErr error
	deleteErr error
	rows      map[string]*bridge.LedgerRow
}

func (l *brokenLedger) Record(_ context.Context, row *bridge.LedgerRow) error {
	if l.recordErr != nil {
		return l.recordErr
	}
	l.rows[row.SubscriptionID] = row
	return nil
}

func (l *brokenLedger) FindBySubscriptionID(_ context.Context, id string) (*bridge.LedgerRow, error) {
	if row, ok := l.rows[id]; ok {
		return row, nil
	}
	return nil, bridge.ErrLedgerRowNotFound
}

func (l *brokenLedger) Delete(_ context.Context, id string) error {
	if l.deleteErr != nil {
		return l.deleteErr
	}
	delete(l.rows, id)
	return nil
}

// stubPrices answers line item lookups from a fixed table.
type stubPrices struct {
	mu        sync.Mutex
	bySession map[string][]string
	err       error
	calls     int
}

func (p *stubPrices) SessionPriceIDs(_ context.Context, sessionID string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.bySession[sessionID], nil
}

// recordingLogger keeps messages so tests can assert on distinct reasons.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

func (l *recordingLogger) add(level, msg string, fields []bridge.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: m})
}

func (l *recordingLogger) Debug(msg string, fields ...bridge.Field) { l.add("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...bridge.Field)  { l.add("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...bridge.Field)  { l.add("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...bridge.Field) { l.add("error", msg, fields) }

func (l *recordingLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

// countingMetrics counts inconsistencies, the only series the tests assert on.
type countingMetrics struct {
	bridge.NoopMetrics
	mu              sync.Mutex
	inconsistencies map[string]int
	events          map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{inconsistencies: map[string]int{}, events: map[string]int{}}
}

func (m *countingMetrics) RecordInconsistency(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inconsistencies[reason]++
}

func (m *countingMetrics) RecordWebhookEvent(kind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[kind+"/"+outcome]++
}

var errStoreDown = errors.New("connection refused")

func purchaseEvent() *bridge.Event {
	return &bridge.Event{
		ID:             "evt_purchase",
		Kind:           bridge.KindPurchaseCompleted,
		Type:           "checkout.session.completed",
		Created:        time.Unix(1700000000, 0),
		SessionID:      testSessionID,
		SubscriptionID: testSubID,
		CustomerID:     testCustomerID,
		Metadata:       map[string]string{bridge.MetadataMemberID: testMemberID},
	}
}

func endedEvent() *bridge.Event {
	return &bridge.Event{
		ID:             "evt_ended",
		Kind:           bridge.KindSubscriptionEnded,
		Type:           "customer.subscription.deleted",
		Created:        time.Unix(1700000100, 0),
		SubscriptionID: testSubID,
		CustomerID:     testCustomerID,
		PriceIDs:       []string{testPriceABC},
	}
}
