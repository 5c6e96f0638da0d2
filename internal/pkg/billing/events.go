package billing

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v76"

	"github.com/ManuelReschke/LocalListings/internal/pkg/apperr"
)

// Stripe event types the reconciler acts on.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
)

// metadataUserID is the metadata key the checkout flow stamps on sessions
// and subscriptions.
const metadataUserID = "user_id"

// EventMeta is carried by every event variant.
type EventMeta struct {
	ID       string
	Type     string
	Created  time.Time
	Livemode bool
	// Payload is the raw delivery body kept for the audit log.
	Payload []byte
}

// Meta returns the envelope fields.
func (m EventMeta) Meta() EventMeta { return m }

func (EventMeta) isEvent() {}

// Event is a decoded provider event. The concrete type is one of
// CheckoutCompleted, SubscriptionUpdated, SubscriptionDeleted or UnknownEvent.
type Event interface {
	Meta() EventMeta
	isEvent()
}

// CheckoutCompleted is a finished checkout session.
type CheckoutCompleted struct {
	EventMeta
	SessionID      string
	UserID         string
	SubscriptionID string
	CustomerID     string
}

// SubscriptionUpdated carries the subscription state after a change.
type SubscriptionUpdated struct {
	EventMeta
	Subscription SubscriptionSnapshot
}

// SubscriptionDeleted carries the final state of an ended subscription.
type SubscriptionDeleted struct {
	EventMeta
	Subscription SubscriptionSnapshot
}

// UnknownEvent is any event type the reconciler does not act on.
type UnknownEvent struct {
	EventMeta
}

// ParseStripeEvent decodes a verified Stripe event into its typed variant.
func ParseStripeEvent(ev stripe.Event) (Event, error) {
	var raw []byte
	if ev.Data != nil {
		raw = ev.Data.Raw
	}
	return parseStripeEvent(ev, raw)
}

func parseStripeEvent(ev stripe.Event, payload []byte) (Event, error) {
	meta := EventMeta{
		ID:       ev.ID,
		Type:     string(ev.Type),
		Livemode: ev.Livemode,
		Payload:  payload,
	}
	if ev.Created > 0 {
		meta.Created = time.Unix(ev.Created, 0).UTC()
	}

	// Unknown types are acknowledged without looking at the object.
	switch meta.Type {
	case EventCheckoutSessionCompleted, EventSubscriptionUpdated, EventSubscriptionDeleted:
	default:
		return UnknownEvent{EventMeta: meta}, nil
	}

	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, apperr.Newf(apperr.ErrMalformedPayload, "event %s has no data object", ev.ID)
	}

	switch meta.Type {
	case EventCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &session); err != nil {
			return nil, apperr.Wrap(err, apperr.ErrMalformedPayload, "decode checkout session")
		}
		out := CheckoutCompleted{
			EventMeta: meta,
			SessionID: session.ID,
			UserID:    session.Metadata[metadataUserID],
		}
		if out.UserID == "" {
			out.UserID = session.ClientReferenceID
		}
		if session.Subscription != nil {
			out.SubscriptionID = session.Subscription.ID
		}
		if session.Customer != nil {
			out.CustomerID = session.Customer.ID
		}
		return out, nil

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, apperr.Wrap(err, apperr.ErrMalformedPayload, "decode subscription")
		}
		snap := snapshotFromStripe(&sub)
		if meta.Type == EventSubscriptionDeleted {
			return SubscriptionDeleted{EventMeta: meta, Subscription: snap}, nil
		}
		return SubscriptionUpdated{EventMeta: meta, Subscription: snap}, nil
	}

	return UnknownEvent{EventMeta: meta}, nil
}

func snapshotFromStripe(sub *stripe.Subscription) SubscriptionSnapshot {
	snap := SubscriptionSnapshot{
		ID:                 sub.ID,
		UserID:             sub.Metadata[metadataUserID],
		Status:             string(sub.Status),
		CurrentPeriodStart: unixTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.Price != nil && item.Price.ID != "" {
				snap.PriceID = item.Price.ID
				break
			}
		}
	}
	return snap
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
