package billing

import (
	"context"
	"time"

	"github.com/ManuelReschke/LocalListings/internal/pkg/entitlements"
)

// SubscriptionSnapshot is the provider-agnostic view of a subscription as
// reported by the provider, either in an event payload or a detail lookup.
type SubscriptionSnapshot struct {
	ID                 string
	UserID             string
	CustomerID         string
	Status             string
	PriceID            string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
}

// SubscriptionFields are the columns overwritten on every status or price change.
type SubscriptionFields struct {
	UserID             string
	Status             string
	PriceID            string
	Plan               entitlements.Plan
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
}

// SubscriptionFetcher retrieves subscription detail from the payment provider.
type SubscriptionFetcher interface {
	FetchSubscription(ctx context.Context, subscriptionID string) (SubscriptionSnapshot, error)
}

// TierPublisher mirrors a user's tier into a secondary system, e.g. auth
// token claims. Failures never block reconciliation.
type TierPublisher interface {
	PublishTier(ctx context.Context, userID string, tier entitlements.Plan) error
}

// Result describes what Handle did with a delivery.
type Result struct {
	EventID   string
	EventType string
	Outcome   string
	UserID    string
	// Tier is the tier written for UserID; empty when no tier was written.
	Tier entitlements.Plan
}

// Duplicate reports whether the delivery was recognized as already processed.
func (r *Result) Duplicate() bool {
	return r.Outcome == outcomeDuplicate
}

// Ignored reports whether the delivery was acknowledged without any state change.
func (r *Result) Ignored() bool {
	return r.Outcome == outcomeIgnored
}
