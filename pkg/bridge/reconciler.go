package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// MetadataMemberID is the checkout metadata key carrying the member id.
// It is set when the checkout session is created and passed through untouched.
const MetadataMemberID = "member_id"

// Stage is a step of the per-event reconciliation state machine.
type Stage string

const (
	StageReceived         Stage = "received"
	StageVerified         Stage = "verified"
	StageMapped           Stage = "mapped"
	StageMemberResolved   Stage = "member_resolved"
	StageAuthorityChecked Stage = "authority_checked"
	StageGranted          Stage = "granted"
	StageRevoked          Stage = "revoked"
	StagePersisted        Stage = "persisted"
	StageDone             Stage = "done"
)

// Status is the terminal status of one reconciliation.
type Status string

const (
	StatusDone    Status = "done"
	StatusAborted Status = "aborted"
	StatusIgnored Status = "ignored"
)

// Outcome describes how a single event was reconciled.
type Outcome struct {
	Status Status
	// Stage is the last stage reached
	Stage Stage
	// Reason is a short machine-readable cause for aborts and anomalies
	Reason string
	Err    error
}

// PriceResolver performs the secondary line item lookup for checkout sessions
// that arrive without inline prices.
type PriceResolver interface {
	SessionPriceIDs(ctx context.Context, sessionID string) ([]string, error)
}

// ReconcilerConfig wires the reconciler's collaborators.
type ReconcilerConfig struct {
	// CommunityID is the guild all entitlements live in (required)
	CommunityID string

	// Mapping is the price -> role table (required)
	Mapping *EntitlementMapping

	// Directory is the membership directory adapter (required)
	Directory Directory

	// Ledger is the subscription ledger (required)
	Ledger Ledger

	// Prices resolves checkout line items. If nil, purchases without inline
	// prices abort with ErrPriceNotFound.
	Prices PriceResolver

	// Logger is optional; defaults to NoopLogger
	Logger Logger

	// Metrics is optional; defaults to NoopMetrics
	Metrics Metrics

	// Now is optional; defaults to time.Now
	Now func() time.Time
}

// Reconciler brings directory roles and the ledger in line with payment events.
// It holds no per-event state and is safe for concurrent use.
type Reconciler struct {
	communityID string
	mapping     *EntitlementMapping
	directory   Directory
	ledger      Ledger
	prices      PriceResolver
	logger      Logger
	metrics     Metrics
	now         func() time.Time
}

// NewReconciler validates config and builds a Reconciler.
func NewReconciler(config ReconcilerConfig) (*Reconciler, error) {
	switch {
	case config.CommunityID == "":
		return nil, fmt.Errorf("community id is required")
	case config.Mapping == nil:
		return nil, fmt.Errorf("entitlement mapping is required")
	case config.Directory == nil:
		return nil, fmt.Errorf("directory is required")
	case config.Ledger == nil:
		return nil, fmt.Errorf("ledger is required")
	}

	r := &Reconciler{
		communityID: config.CommunityID,
		mapping:     config.Mapping,
		directory:   config.Directory,
		ledger:      config.Ledger,
		prices:      config.Prices,
		logger:      config.Logger,
		metrics:     config.Metrics,
		now:         config.Now,
	}
	if r.logger == nil {
		r.logger = &NoopLogger{}
	}
	if r.metrics == nil {
		r.metrics = &NoopMetrics{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Reconcile dispatches a verified event by kind. It never panics on bad
// input; every failure is reported through the returned Outcome.
func (r *Reconciler) Reconcile(ctx context.Context, ev *Event) Outcome {
	start := time.Now()
	kind := string(ev.Kind)

	var out Outcome
	switch ev.Kind {
	case KindPurchaseCompleted:
		out = r.reconcilePurchase(ctx, ev)
	case KindSubscriptionEnded:
		out = r.reconcileSubscriptionEnded(ctx, ev)
	case KindProductLifecycle:
		r.logger.Info("catalogue event ignored", F("event_id", ev.ID), F("type", ev.Type))
		out = Outcome{Status: StatusIgnored, Stage: StageVerified, Reason: "product_lifecycle"}
	default:
		r.logger.Debug("unhandled event type", F("event_id", ev.ID), F("type", ev.Type))
		out = Outcome{Status: StatusIgnored, Stage: StageVerified, Reason: "unhandled"}
	}

	r.metrics.RecordWebhookEvent(kind, string(out.Status))
	r.metrics.RecordProcessingDuration(kind, time.Since(start))
	return out
}

func (r *Reconciler) reconcilePurchase(ctx context.Context, ev *Event) Outcome {
	r.stage(ev, StageVerified)

	memberID := ev.Metadata[MetadataMemberID]
	if _, err := strconv.ParseUint(memberID, 10, 64); err != nil {
		return r.abort(ev, StageVerified, "member_id_missing",
			fmt.Errorf("%w: %q on session %s", ErrMemberIDMissing, memberID, ev.SessionID))
	}

	priceID, err := r.purchasedPrice(ctx, ev)
	if err != nil {
		return r.abort(ev, StageVerified, "price_not_found", err)
	}

	roleID, err := r.mapping.ResolveEntitlement(priceID)
	if err != nil {
		return r.abort(ev, StageVerified, "mapping_not_found", err)
	}
	r.stage(ev, StageMapped, F("price_id", priceID), F("role_id", roleID))

	community, err := r.findCommunity(ctx)
	if err != nil {
		return r.abort(ev, StageMapped, "community_not_found", err)
	}

	member, err := r.resolveMember(ctx, community, memberID)
	if err != nil {
		return r.abort(ev, StageMapped, "member_not_found", err)
	}
	r.stage(ev, StageMemberResolved, F("member_id", memberID))

	role, err := r.findRole(ctx, community, roleID)
	if err != nil {
		return r.abort(ev, StageMemberResolved, "role_not_found", err)
	}

	auth, err := r.directory.AgentAuthority(ctx, community)
	r.recordDirectory("authority", err)
	if err != nil {
		return r.abort(ev, StageMemberResolved, "authority_unavailable", err)
	}
	if err := CheckAuthority(auth, role); err != nil {
		return r.abort(ev, StageMemberResolved, "authority_denied", err)
	}
	r.stage(ev, StageAuthorityChecked)

	err = r.directory.GrantRole(ctx, community, member, roleID)
	r.recordDirectory("grant", err)
	if err != nil {
		return r.abort(ev, StageAuthorityChecked, "grant_failed", err)
	}
	r.stage(ev, StageGranted, F("member_id", memberID), F("role_id", roleID))

	row := &LedgerRow{
		SubscriptionID: ev.LedgerKey(),
		CustomerID:     ev.CustomerID,
		MemberID:       memberID,
		CreatedAt:      r.now().UTC(),
	}
	err = r.ledger.Record(ctx, row)
	r.recordLedger("record", ignoreExpected(err))
	switch {
	case err == nil:
	case errors.Is(err, ErrLedgerRowExists):
		return r.duplicatePurchase(ctx, ev, row)
	default:
		// The grant stays in place; there is no compensating revoke.
		r.metrics.RecordInconsistency("grant_without_ledger_row")
		r.logger.Error("reconciliation inconsistency: role granted but ledger write failed",
			F("event_id", ev.ID),
			F("subscription_id", row.SubscriptionID),
			F("customer_id", row.CustomerID),
			F("member_id", memberID),
			F("role_id", roleID),
			F("error", err.Error()))
		return Outcome{Status: StatusAborted, Stage: StageGranted, Reason: "ledger_write_failed", Err: err}
	}
	r.stage(ev, StagePersisted, F("subscription_id", row.SubscriptionID))

	r.logger.Info("entitlement granted",
		F("event_id", ev.ID),
		F("member_id", memberID),
		F("role_id", roleID),
		F("subscription_id", row.SubscriptionID))
	return Outcome{Status: StatusDone, Stage: StageDone}
}

// duplicatePurchase handles a redelivered purchase whose row already exists.
func (r *Reconciler) duplicatePurchase(ctx context.Context, ev *Event, row *LedgerRow) Outcome {
	existing, err := r.ledger.FindBySubscriptionID(ctx, row.SubscriptionID)
	if err == nil && existing.MemberID != row.MemberID {
		r.metrics.RecordInconsistency("ledger_member_mismatch")
		r.logger.Error("reconciliation inconsistency: subscription already recorded for another member",
			F("event_id", ev.ID),
			F("subscription_id", row.SubscriptionID),
			F("recorded_member_id", existing.MemberID),
			F("member_id", row.MemberID))
		return Outcome{Status: StatusAborted, Stage: StageGranted, Reason: "ledger_member_mismatch", Err: ErrLedgerRowExists}
	}

	r.logger.Info("duplicate purchase delivery, ledger row already present",
		F("event_id", ev.ID),
		F("subscription_id", row.SubscriptionID))
	return Outcome{Status: StatusDone, Stage: StageDone, Reason: "duplicate_delivery"}
}

func (r *Reconciler) reconcileSubscriptionEnded(ctx context.Context, ev *Event) Outcome {
	r.stage(ev, StageVerified)

	row, err := r.ledger.FindBySubscriptionID(ctx, ev.SubscriptionID)
	r.recordLedger("find", ignoreExpected(err))
	if errors.Is(err, ErrLedgerRowNotFound) {
		r.logger.Warn("subscription ended without a ledger row, nothing to revoke",
			F("event_id", ev.ID),
			F("subscription_id", ev.SubscriptionID),
			F("customer_id", ev.CustomerID))
		return Outcome{Status: StatusDone, Stage: StageDone, Reason: "no_ledger_row"}
	}
	if err != nil {
		return r.abort(ev, StageVerified, "ledger_lookup_failed", err)
	}

	if len(ev.PriceIDs) == 0 {
		return r.abort(ev, StageVerified, "price_not_found",
			fmt.Errorf("%w: subscription %s", ErrPriceNotFound, ev.SubscriptionID))
	}
	roleID, err := r.mapping.ResolveEntitlement(ev.PriceIDs[0])
	if err != nil {
		return r.abort(ev, StageVerified, "mapping_not_found", err)
	}
	r.stage(ev, StageMapped, F("price_id", ev.PriceIDs[0]), F("role_id", roleID))

	community, err := r.findCommunity(ctx)
	if err != nil {
		return r.abort(ev, StageMapped, "community_not_found", err)
	}

	member, err := r.resolveMember(ctx, community, row.MemberID)
	if err != nil && !errors.Is(err, ErrMemberNotFound) {
		return r.abort(ev, StageMapped, "member_lookup_failed", err)
	}
	role, roleErr := r.findRole(ctx, community, roleID)
	if roleErr != nil && !errors.Is(roleErr, ErrRoleNotFound) {
		return r.abort(ev, StageMapped, "role_lookup_failed", roleErr)
	}

	if member != nil && role != nil {
		r.stage(ev, StageMemberResolved, F("member_id", row.MemberID))

		// Aborts below keep the row so the revoke can be retried by hand.
		var auth *Authority
		auth, err = r.directory.AgentAuthority(ctx, community)
		r.recordDirectory("authority", err)
		if err != nil {
			return r.abort(ev, StageMemberResolved, "authority_unavailable", err)
		}
		if err := CheckAuthority(auth, role); err != nil {
			return r.abort(ev, StageMemberResolved, "authority_denied", err)
		}
		r.stage(ev, StageAuthorityChecked)

		err = r.directory.RevokeRole(ctx, community, member, role.ID)
		r.recordDirectory("revoke", err)
		if err != nil {
			return r.abort(ev, StageAuthorityChecked, "revoke_failed", err)
		}
		r.stage(ev, StageRevoked, F("member_id", row.MemberID), F("role_id", roleID))
	} else {
		r.logger.Warn("member or role gone, skipping revoke and cleaning up ledger",
			F("event_id", ev.ID),
			F("subscription_id", row.SubscriptionID),
			F("member_id", row.MemberID),
			F("role_id", roleID),
			F("member_found", member != nil),
			F("role_found", role != nil))
	}

	err = r.ledger.Delete(ctx, row.SubscriptionID)
	r.recordLedger("delete", err)
	if err != nil {
		r.metrics.RecordInconsistency("stale_ledger_row")
		r.logger.Error("reconciliation inconsistency: ledger row not deleted after subscription end",
			F("event_id", ev.ID),
			F("subscription_id", row.SubscriptionID),
			F("member_id", row.MemberID),
			F("error", err.Error()))
		return Outcome{Status: StatusAborted, Stage: StageRevoked, Reason: "ledger_delete_failed", Err: err}
	}
	r.stage(ev, StagePersisted, F("subscription_id", row.SubscriptionID))

	r.logger.Info("entitlement revoked",
		F("event_id", ev.ID),
		F("member_id", row.MemberID),
		F("role_id", roleID),
		F("subscription_id", row.SubscriptionID))
	return Outcome{Status: StatusDone, Stage: StageDone}
}

// purchasedPrice returns the first purchased price, looking up the session's
// line items when the event carries none.
func (r *Reconciler) purchasedPrice(ctx context.Context, ev *Event) (string, error) {
	prices := ev.PriceIDs
	if len(prices) == 0 && r.prices != nil && ev.SessionID != "" {
		var err error
		prices, err = r.prices.SessionPriceIDs(ctx, ev.SessionID)
		if err != nil {
			return "", fmt.Errorf("%w: line items for session %s: %w", ErrPriceNotFound, ev.SessionID, err)
		}
	}
	if len(prices) == 0 {
		return "", fmt.Errorf("%w: session %s", ErrPriceNotFound, ev.SessionID)
	}
	if len(prices) > 1 {
		r.logger.Warn("checkout has several line items, using the first",
			F("event_id", ev.ID), F("price_ids", prices))
	}
	return prices[0], nil
}

func (r *Reconciler) findCommunity(ctx context.Context) (*Community, error) {
	community, err := r.directory.FindCommunity(ctx, r.communityID)
	r.recordDirectory("find_community", err)
	return community, err
}

func (r *Reconciler) resolveMember(ctx context.Context, community *Community, memberID string) (*Member, error) {
	member, err := ResolveMember(ctx, r.directory, community, memberID)
	r.recordDirectory("resolve_member", ignoreExpected(err))
	return member, err
}

func (r *Reconciler) findRole(ctx context.Context, community *Community, roleID string) (*Role, error) {
	role, err := r.directory.FindRole(ctx, community, roleID)
	r.recordDirectory("find_role", ignoreExpected(err))
	return role, err
}

func (r *Reconciler) abort(ev *Event, stage Stage, reason string, err error) Outcome {
	r.logger.Warn("reconciliation aborted",
		F("event_id", ev.ID),
		F("type", ev.Type),
		F("stage", string(stage)),
		F("reason", reason),
		F("error", err.Error()))
	return Outcome{Status: StatusAborted, Stage: stage, Reason: reason, Err: err}
}

func (r *Reconciler) stage(ev *Event, stage Stage, fields ...Field) {
	r.logger.Debug("reconciliation stage",
		append([]Field{F("event_id", ev.ID), F("stage", string(stage))}, fields...)...)
}

func (r *Reconciler) recordDirectory(op string, err error) {
	r.metrics.RecordDirectoryCall(op, statusOf(err))
}

func (r *Reconciler) recordLedger(op string, err error) {
	r.metrics.RecordLedgerOperation(op, statusOf(err))
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ignoreExpected drops lookup misses and duplicate inserts so they are not
// counted as call errors.
func ignoreExpected(err error) error {
	if errors.Is(err, ErrMemberNotFound) || errors.Is(err, ErrRoleNotFound) ||
		errors.Is(err, ErrLedgerRowNotFound) || errors.Is(err, ErrLedgerRowExists) {
		return nil
	}
	return err
}
