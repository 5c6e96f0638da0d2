package billing

import (
	"strings"

	"github.com/ManuelReschke/LocalListings/internal/pkg/apperr"
	"github.com/ManuelReschke/LocalListings/internal/pkg/entitlements"
)

// PlanResolver maps provider price ids onto plan tiers using a static table.
type PlanResolver struct {
	prices map[string]entitlements.Plan
}

// NewPlanResolver builds a resolver from tier -> price ids. A price id may
// belong to only one tier, and only paid tiers can be mapped.
func NewPlanResolver(mapping map[entitlements.Plan][]string) (*PlanResolver, error) {
	prices := make(map[string]entitlements.Plan)
	for plan, ids := range mapping {
		if !entitlements.IsPaid(plan) || entitlements.NormalizePlan(string(plan)) != plan {
			return nil, apperr.Newf(apperr.ErrValidation, "cannot map prices to plan %q", plan)
		}
		for _, raw := range ids {
			id := strings.TrimSpace(raw)
			if id == "" {
				continue
			}
			if existing, ok := prices[id]; ok && existing != plan {
				return nil, apperr.Newf(apperr.ErrValidation, "price %q mapped to both %q and %q", id, existing, plan)
			}
			prices[id] = plan
		}
	}
	return &PlanResolver{prices: prices}, nil
}

// Resolve returns the tier for a price id. Unknown or blank ids resolve to
// free; a configuration gap must never block reconciliation.
func (r *PlanResolver) Resolve(priceID string) entitlements.Plan {
	if r == nil {
		return entitlements.PlanFree
	}
	if plan, ok := r.prices[strings.TrimSpace(priceID)]; ok {
		return plan
	}
	return entitlements.PlanFree
}

// TierFor is the tier a user gets from a subscription in the given status.
func TierFor(status string, plan entitlements.Plan) entitlements.Plan {
	if entitlements.IsEntitledStatus(status) {
		return entitlements.NormalizePlan(string(plan))
	}
	return entitlements.PlanFree
}
