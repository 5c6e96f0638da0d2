package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/LocalListings/app/models"
	"github.com/ManuelReschke/LocalListings/internal/pkg/billing"
	"github.com/ManuelReschke/LocalListings/internal/pkg/entitlements"
	"github.com/ManuelReschke/LocalListings/internal/pkg/logger"
)

const billingRequestTimeout = 15 * time.Second

// BillingController exposes the Stripe webhook and admin billing endpoints.
type BillingController struct {
	reconciler         *billing.Reconciler
	webhookSecret      string
	signatureTolerance time.Duration
	log                *logger.Logger
}

func NewBillingController(reconciler *billing.Reconciler, webhookSecret string, signatureTolerance time.Duration, log *logger.Logger) *BillingController {
	if log == nil {
		log = logger.NewNop()
	}
	return &BillingController{
		reconciler:         reconciler,
		webhookSecret:      webhookSecret,
		signatureTolerance: signatureTolerance,
		log:                log,
	}
}

// HandleStripeWebhook verifies and reconciles one Stripe delivery. Anything
// but a 2xx makes Stripe retry, so only verification and downstream failures
// return errors.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	log := bc.log.With("request_id", requestID(c), "ip", ClientIP(c))

	event, err := billing.VerifyStripeWebhook(rawBody, c.Get("Stripe-Signature"), bc.webhookSecret, bc.signatureTolerance)
	if err != nil {
		log.Warnw("stripe webhook rejected", "error", err)
		return errorResponse(c, err, "webhook rejected")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), billingRequestTimeout)
	defer cancel()

	res, err := bc.reconciler.Handle(ctx, event)
	if err != nil {
		log.Errorw("stripe webhook processing failed", "event_id", event.Meta().ID, "error", err)
		return errorResponse(c, err, "webhook processing failed")
	}

	body := fiber.Map{"received": true}
	if res.Duplicate() {
		body["duplicate"] = true
	}
	if res.Ignored() {
		body["ignored"] = true
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

// HandleGetUserSubscription returns the user's latest subscription record.
func (bc *BillingController) HandleGetUserSubscription(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), billingRequestTimeout)
	defer cancel()

	sub, err := bc.reconciler.Subscription(ctx, c.Params("id"))
	if err != nil {
		return errorResponse(c, err, "subscription lookup failed")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"subscription": subscriptionResponse(sub),
	})
}

// HandleUserBillingResync recomputes the user's tier from stored state.
func (bc *BillingController) HandleUserBillingResync(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), billingRequestTimeout)
	defer cancel()

	userID := c.Params("id")
	tier, err := bc.reconciler.ResyncUser(ctx, userID)
	if err != nil {
		bc.log.Errorw("billing resync failed", "user_id", userID, "error", err)
		return errorResponse(c, err, "billing resync failed")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"user_id":           userID,
		"subscription_tier": tier,
	})
}

func subscriptionResponse(sub *models.Subscription) fiber.Map {
	return fiber.Map{
		"subscription_id":      sub.SubscriptionID,
		"user_id":              sub.UserID,
		"provider":             sub.Provider,
		"status":               sub.Status,
		"price_id":             sub.PriceID,
		"plan":                 sub.Plan,
		"entitled_tier":        billing.TierFor(sub.Status, entitlements.NormalizePlan(sub.Plan)),
		"current_period_start": formatTimePtr(sub.CurrentPeriodStart),
		"current_period_end":   formatTimePtr(sub.CurrentPeriodEnd),
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
		"updated_at":           sub.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
