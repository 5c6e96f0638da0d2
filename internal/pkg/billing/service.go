package billing

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ManuelReschke/LocalListings/app/models"
	"github.com/ManuelReschke/LocalListings/internal/pkg/apperr"
	"github.com/ManuelReschke/LocalListings/internal/pkg/entitlements"
	"github.com/ManuelReschke/LocalListings/internal/pkg/logger"
)

const (
	outcomeProcessed = models.WebhookOutcomeProcessed
	outcomeIgnored   = models.WebhookOutcomeIgnored
	outcomeDuplicate = models.WebhookOutcomeDuplicate
	outcomeFailed    = models.WebhookOutcomeFailed
)

// Reconciler applies provider subscription events to local state: the
// subscription record, the user's tier and the audit log.
type Reconciler struct {
	store      Store
	fetcher    SubscriptionFetcher
	plans      *PlanResolver
	dedup      Deduplicator
	publishers []TierPublisher
	provider   string
	log        *logger.Logger
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithDeduplicator sets the fast-path duplicate check.
func WithDeduplicator(d Deduplicator) Option {
	return func(r *Reconciler) {
		if d != nil {
			r.dedup = d
		}
	}
}

// WithTierPublisher adds a secondary system that receives tier changes.
func WithTierPublisher(p TierPublisher) Option {
	return func(r *Reconciler) {
		if p != nil {
			r.publishers = append(r.publishers, p)
		}
	}
}

// NewReconciler wires a reconciler for Stripe deliveries.
func NewReconciler(store Store, fetcher SubscriptionFetcher, plans *PlanResolver, log *logger.Logger, opts ...Option) *Reconciler {
	if log == nil {
		log = logger.NewNop()
	}
	r := &Reconciler{
		store:    store,
		fetcher:  fetcher,
		plans:    plans,
		dedup:    NoopDeduplicator{},
		provider: models.BillingProviderStripe,
		log:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one verified delivery. A nil error means the delivery may
// be acknowledged; an error marked apperr.ErrDownstream means the provider
// should retry it.
func (r *Reconciler) Handle(ctx context.Context, ev Event) (*Result, error) {
	meta := ev.Meta()
	res := &Result{EventID: meta.ID, EventType: meta.Type}
	log := r.log.With("event_id", meta.ID, "event_type", meta.Type)

	if r.isDuplicate(ctx, log, meta.ID) {
		log.Infow("duplicate webhook delivery acknowledged")
		res.Outcome = outcomeDuplicate
		r.audit(ctx, log, meta, res.Outcome, nil)
		return res, nil
	}

	var err error
	switch e := ev.(type) {
	case CheckoutCompleted:
		err = r.handleCheckoutCompleted(ctx, log, e, res)
	case SubscriptionUpdated:
		err = r.handleSubscriptionUpdated(ctx, log, e, res)
	case SubscriptionDeleted:
		err = r.handleSubscriptionDeleted(ctx, log, e, res)
	default:
		log.Debugw("webhook event type not handled")
		res.Outcome = outcomeIgnored
	}

	if err != nil {
		log.Errorw("webhook processing failed", "error", err)
		res.Outcome = outcomeFailed
		r.audit(ctx, log, meta, res.Outcome, err)
		return res, err
	}

	if res.Outcome == outcomeProcessed && meta.ID != "" {
		if rerr := r.dedup.Remember(ctx, meta.ID); rerr != nil {
			log.Warnw("failed to remember processed event", "error", rerr)
		}
	}
	r.audit(ctx, log, meta, res.Outcome, nil)
	return res, nil
}

func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, log *logger.Logger, e CheckoutCompleted, res *Result) error {
	if e.UserID == "" || e.SubscriptionID == "" {
		log.Warnw("checkout session without user or subscription reference, ignoring",
			"session_id", e.SessionID,
			"user_id", e.UserID,
			"subscription_id", e.SubscriptionID,
		)
		res.Outcome = outcomeIgnored
		return nil
	}

	snap, err := r.fetcher.FetchSubscription(ctx, e.SubscriptionID)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrDownstream, "checkout completed")
	}
	if snap.ID == "" {
		snap.ID = e.SubscriptionID
	}

	prev, err := r.previousOwner(ctx, snap.ID)
	if err != nil {
		return errors.Wrap(err, "checkout completed")
	}
	if err := r.store.UpsertByUserID(ctx, e.UserID, subscriptionRecord(snap, r.plans.Resolve(snap.PriceID))); err != nil {
		return errors.Wrap(err, "checkout completed")
	}

	tier, err := r.reconcileTiers(ctx, log, e.UserID, prev)
	if err != nil {
		return errors.Wrap(err, "checkout completed")
	}

	log.Infow("checkout reconciled",
		"user_id", e.UserID,
		"subscription_id", snap.ID,
		"status", snap.Status,
		"tier", tier,
	)
	res.Outcome = outcomeProcessed
	res.UserID = e.UserID
	res.Tier = tier
	return nil
}

func (r *Reconciler) handleSubscriptionUpdated(ctx context.Context, log *logger.Logger, e SubscriptionUpdated, res *Result) error {
	snap := e.Subscription
	if snap.UserID == "" || snap.ID == "" {
		log.Warnw("subscription update without user reference, ignoring", "subscription_id", snap.ID)
		res.Outcome = outcomeIgnored
		return nil
	}

	prev, err := r.previousOwner(ctx, snap.ID)
	if err != nil {
		return errors.Wrap(err, "subscription updated")
	}

	plan := r.plans.Resolve(snap.PriceID)
	found, err := r.store.UpdateBySubscriptionID(ctx, snap.ID, SubscriptionFields{
		UserID:             snap.UserID,
		Status:             snap.Status,
		PriceID:            snap.PriceID,
		Plan:               plan,
		CurrentPeriodStart: snap.CurrentPeriodStart,
		CurrentPeriodEnd:   snap.CurrentPeriodEnd,
		CancelAtPeriodEnd:  snap.CancelAtPeriodEnd,
	})
	if err != nil {
		return errors.Wrap(err, "subscription updated")
	}
	if !found {
		// The update overtook its checkout; create the record from the event.
		if err := r.store.UpsertByUserID(ctx, snap.UserID, subscriptionRecord(snap, plan)); err != nil {
			return errors.Wrap(err, "subscription updated")
		}
	}

	tier, err := r.reconcileTiers(ctx, log, snap.UserID, prev)
	if err != nil {
		return errors.Wrap(err, "subscription updated")
	}

	log.Infow("subscription update reconciled",
		"user_id", snap.UserID,
		"subscription_id", snap.ID,
		"status", snap.Status,
		"tier", tier,
	)
	res.Outcome = outcomeProcessed
	res.UserID = snap.UserID
	res.Tier = tier
	return nil
}

func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, log *logger.Logger, e SubscriptionDeleted, res *Result) error {
	snap := e.Subscription
	if snap.UserID == "" || snap.ID == "" {
		log.Warnw("subscription deletion without user reference, ignoring", "subscription_id", snap.ID)
		res.Outcome = outcomeIgnored
		return nil
	}

	prev, err := r.previousOwner(ctx, snap.ID)
	if err != nil {
		return errors.Wrap(err, "subscription deleted")
	}

	found, err := r.store.MarkCanceled(ctx, snap.ID)
	if err != nil {
		return errors.Wrap(err, "subscription deleted")
	}
	if !found {
		snap.Status = entitlements.StatusCanceled
		snap.CancelAtPeriodEnd = false
		if err := r.store.UpsertByUserID(ctx, snap.UserID, subscriptionRecord(snap, r.plans.Resolve(snap.PriceID))); err != nil {
			return errors.Wrap(err, "subscription deleted")
		}
	}

	tier, err := r.reconcileTiers(ctx, log, snap.UserID, prev)
	if err != nil {
		return errors.Wrap(err, "subscription deleted")
	}

	log.Infow("subscription deletion reconciled",
		"user_id", snap.UserID,
		"subscription_id", snap.ID,
		"tier", tier,
	)
	res.Outcome = outcomeProcessed
	res.UserID = snap.UserID
	res.Tier = tier
	return nil
}

// ResyncUser recomputes a user's tier from their stored subscriptions.
// Users without an active or trialing subscription are set to free.
func (r *Reconciler) ResyncUser(ctx context.Context, userID string) (entitlements.Plan, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", apperr.Newf(apperr.ErrValidation, "user id is required")
	}
	log := r.log.With("user_id", userID)

	tier, err := r.reconcileTier(ctx, log, userID)
	if err != nil {
		return "", errors.Wrap(err, "resync user")
	}
	log.Infow("user tier resynced", "tier", tier)
	return tier, nil
}

// reconcileTier sets the user's tier from their newest entitled subscription.
// A user holds a paid tier as long as any of their subscriptions is active or
// trialing, so a change to a stale subscription never demotes them.
func (r *Reconciler) reconcileTier(ctx context.Context, log *logger.Logger, userID string) (entitlements.Plan, error) {
	tier := entitlements.PlanFree
	sub, err := r.store.LatestEntitledByUserID(ctx, userID)
	switch {
	case err == nil:
		tier = TierFor(sub.Status, r.plans.Resolve(sub.PriceID))
	case apperr.Is(err, apperr.ErrNotFound):
	default:
		return "", err
	}
	if err := r.setTier(ctx, log, userID, tier); err != nil {
		return "", err
	}
	return tier, nil
}

// reconcileTiers recomputes the event user's tier and, when the record moved
// to them from another user, the previous owner's tier too.
func (r *Reconciler) reconcileTiers(ctx context.Context, log *logger.Logger, userID, prevOwner string) (entitlements.Plan, error) {
	tier, err := r.reconcileTier(ctx, log, userID)
	if err != nil {
		return "", err
	}
	if prevOwner != "" && prevOwner != userID {
		log.Infow("subscription moved to another user", "previous_user_id", prevOwner, "user_id", userID)
		if _, err := r.reconcileTier(ctx, log, prevOwner); err != nil {
			return "", err
		}
	}
	return tier, nil
}

// previousOwner returns the user the stored record belongs to, or "" when
// the subscription is not recorded yet.
func (r *Reconciler) previousOwner(ctx context.Context, subscriptionID string) (string, error) {
	sub, err := r.store.GetBySubscriptionID(ctx, subscriptionID)
	switch {
	case err == nil:
		return sub.UserID, nil
	case apperr.Is(err, apperr.ErrNotFound):
		return "", nil
	default:
		return "", err
	}
}

// Subscription returns the user's latest subscription record.
func (r *Reconciler) Subscription(ctx context.Context, userID string) (*models.Subscription, error) {
	return r.store.GetByUserID(ctx, strings.TrimSpace(userID))
}

func (r *Reconciler) setTier(ctx context.Context, log *logger.Logger, userID string, tier entitlements.Plan) error {
	if err := r.store.SetUserTier(ctx, userID, tier); err != nil {
		return err
	}
	for _, p := range r.publishers {
		if err := p.PublishTier(ctx, userID, tier); err != nil {
			log.Warnw("failed to publish tier", "user_id", userID, "tier", tier, "error", err)
		}
	}
	return nil
}

func (r *Reconciler) isDuplicate(ctx context.Context, log *logger.Logger, eventID string) bool {
	if eventID == "" {
		return false
	}
	seen, err := r.dedup.Seen(ctx, eventID)
	if err != nil {
		log.Warnw("dedup cache lookup failed", "error", err)
	}
	if seen {
		return true
	}
	processed, err := r.store.HasProcessedEvent(ctx, r.provider, eventID)
	if err != nil {
		log.Warnw("audit log lookup failed, processing delivery", "error", err)
		return false
	}
	return processed
}

func (r *Reconciler) audit(ctx context.Context, log *logger.Logger, meta EventMeta, outcome string, procErr error) {
	entry := &models.WebhookEvent{
		Provider:        r.provider,
		ProviderEventID: meta.ID,
		EventType:       meta.Type,
		Outcome:         outcome,
		PayloadJSON:     string(meta.Payload),
	}
	if procErr != nil {
		entry.ProcessingError = procErr.Error()
	}
	if err := r.store.AppendWebhookEvent(ctx, entry); err != nil {
		log.Errorw("failed to append webhook audit entry", "outcome", outcome, "error", err)
	}
}

func subscriptionRecord(snap SubscriptionSnapshot, plan entitlements.Plan) *models.Subscription {
	return &models.Subscription{
		SubscriptionID:     snap.ID,
		Provider:           models.BillingProviderStripe,
		Status:             snap.Status,
		PriceID:            snap.PriceID,
		Plan:               string(plan),
		CurrentPeriodStart: snap.CurrentPeriodStart,
		CurrentPeriodEnd:   snap.CurrentPeriodEnd,
		CancelAtPeriodEnd:  snap.CancelAtPeriodEnd,
	}
}
