package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/LocalListings/internal/pkg/constants"
	"github.com/ManuelReschke/LocalListings/internal/pkg/middleware"
)

const (
	apiRateLimit       = 60
	apiRateLimitWindow = time.Minute
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New(limiter.Config{
		Max:        apiRateLimit,
		Expiration: apiRateLimitWindow,
		Storage:    h.deps.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests",
			})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes, operator-only
	v1 := api.Group(constants.APIV1Route, middleware.AdminAPIKeyMiddleware(h.deps.AdminAPIKey))
	v1.Get("/users/:id/subscription", h.deps.Billing.HandleGetUserSubscription)
	v1.Post("/users/:id/subscription/resync", h.deps.Billing.HandleUserBillingResync)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
