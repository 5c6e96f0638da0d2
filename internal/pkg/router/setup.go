package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/LocalListings/app/controllers"
)

// Router registers one group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the controllers and settings the routers need.
type Dependencies struct {
	Billing     *controllers.BillingController
	Health      *controllers.HealthController
	AdminAPIKey string
	// LimiterStorage backs the API rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
