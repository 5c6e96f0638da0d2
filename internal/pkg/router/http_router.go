package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/LocalListings/internal/pkg/constants"
)

// HttpRouter serves the provider-facing endpoints outside the rate-limited API.
type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, h.deps.Health.HandleHealth)

	// Provider webhooks carry their own signature, so no API key applies.
	webhooks := app.Group(constants.WebhooksRoute)
	webhooks.Post(constants.StripeWebhookRoute, h.deps.Billing.HandleStripeWebhook)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
