package billing

import (
	"context"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ManuelReschke/LocalListings/internal/pkg/apperr"
)

// DefaultSignatureTolerance is the accepted age of a signed delivery.
const DefaultSignatureTolerance = webhook.DefaultTolerance

// StripeFetcher retrieves subscription detail from the Stripe API.
type StripeFetcher struct {
	api *client.API
}

// NewStripeFetcher creates a fetcher using the default Stripe backends.
func NewStripeFetcher(secretKey string) *StripeFetcher {
	return NewStripeFetcherWithBackends(secretKey, nil)
}

// NewStripeFetcherWithBackends allows pointing the client at another API
// host, which tests use with an httptest server.
func NewStripeFetcherWithBackends(secretKey string, backends *stripe.Backends) *StripeFetcher {
	sc := &client.API{}
	sc.Init(secretKey, backends)
	return &StripeFetcher{api: sc}
}

// FetchSubscription loads a subscription. Failures are not retried here; a
// failed delivery is retried by Stripe.
func (f *StripeFetcher) FetchSubscription(ctx context.Context, subscriptionID string) (SubscriptionSnapshot, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := f.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return SubscriptionSnapshot{}, apperr.Wrap(err, apperr.ErrDownstream, "retrieve stripe subscription "+subscriptionID)
	}
	return snapshotFromStripe(sub), nil
}

// VerifyStripeWebhook checks the Stripe-Signature header against the raw body
// and decodes the typed event. Signature problems are marked
// apperr.ErrInvalidSignature; a signed body that cannot be decoded is marked
// apperr.ErrMalformedPayload.
func VerifyStripeWebhook(payload []byte, header, secret string, tolerance time.Duration) (Event, error) {
	if strings.TrimSpace(header) == "" {
		return nil, apperr.Newf(apperr.ErrInvalidSignature, "missing Stripe-Signature header")
	}
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}

	ev, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		switch err {
		case webhook.ErrNotSigned, webhook.ErrInvalidHeader, webhook.ErrNoValidSignature, webhook.ErrTooOld:
			return nil, apperr.Wrap(err, apperr.ErrInvalidSignature, "verify stripe signature")
		default:
			return nil, apperr.Wrap(err, apperr.ErrMalformedPayload, "decode stripe event")
		}
	}

	return parseStripeEvent(ev, payload)
}
