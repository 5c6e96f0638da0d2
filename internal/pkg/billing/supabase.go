package billing

import (
	"context"

	supabase "github.com/nedpals/supabase-go"

	"github.com/ManuelReschke/LocalListings/internal/pkg/apperr"
	"github.com/ManuelReschke/LocalListings/internal/pkg/entitlements"
)

// SupabaseTierPublisher copies the tier into the auth user's app_metadata so
// issued tokens carry it as a claim.
type SupabaseTierPublisher struct {
	client *supabase.Client
}

// NewSupabaseTierPublisher creates a publisher using the service role key.
func NewSupabaseTierPublisher(url, serviceKey string) *SupabaseTierPublisher {
	return &SupabaseTierPublisher{client: supabase.CreateClient(url, serviceKey)}
}

func (p *SupabaseTierPublisher) PublishTier(ctx context.Context, userID string, tier entitlements.Plan) error {
	_, err := p.client.Admin.UpdateUser(ctx, userID, supabase.AdminUserParams{
		AppMetadata: map[string]interface{}{
			"subscription_tier": string(tier),
		},
	})
	return apperr.Wrap(err, apperr.ErrDownstream, "publish tier to supabase")
}
