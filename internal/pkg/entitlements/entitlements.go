package entitlements

import "strings"

type Plan string

const (
	PlanFree     Plan = "free"
	PlanBusiness Plan = "business"
	PlanPremium  Plan = "premium"
)

// Provider lifecycle statuses, stored verbatim on subscription records.
const (
	StatusActive            = "active"
	StatusTrialing          = "trialing"
	StatusPastDue           = "past_due"
	StatusCanceled          = "canceled"
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
	StatusUnpaid            = "unpaid"
	StatusPaused            = "paused"
)

// NormalizePlan maps arbitrary input onto a known plan; anything unknown is free.
func NormalizePlan(plan string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(plan))) {
	case PlanPremium:
		return PlanPremium
	case PlanBusiness:
		return PlanBusiness
	default:
		return PlanFree
	}
}

// Rank orders plans so callers can pick the better of two tiers.
func Rank(plan Plan) int {
	switch NormalizePlan(string(plan)) {
	case PlanPremium:
		return 2
	case PlanBusiness:
		return 1
	default:
		return 0
	}
}

// IsPaid reports whether the plan grants anything beyond the free tier.
func IsPaid(plan Plan) bool {
	return Rank(plan) > 0
}

// IsEntitledStatus reports whether a subscription in this status grants its plan.
// Only active and trialing do; past_due and unpaid are dunning states.
func IsEntitledStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case StatusActive, StatusTrialing:
		return true
	default:
		return false
	}
}

// IsTerminalStatus reports whether the provider will never move the
// subscription out of this status again.
func IsTerminalStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case StatusCanceled, StatusIncompleteExpired:
		return true
	default:
		return false
	}
}
