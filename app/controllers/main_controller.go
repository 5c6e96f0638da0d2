package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/LocalListings/internal/pkg/cache"
	"github.com/ManuelReschke/LocalListings/internal/pkg/database"
)

// HealthController reports whether the database and cache are reachable.
type HealthController struct {
	db    *gorm.DB
	cache *redis.Client
}

// NewHealthController creates the controller; cache may be nil when the
// service runs without Redis.
func NewHealthController(db *gorm.DB, cacheClient *redis.Client) *HealthController {
	return &HealthController{db: db, cache: cacheClient}
}

func (h *HealthController) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	status := fiber.StatusOK
	checks := fiber.Map{"database": "up", "cache": "disabled"}

	if err := database.Healthy(ctx, h.db); err != nil {
		checks["database"] = "down"
		status = fiber.StatusServiceUnavailable
	}
	// The cache only speeds up duplicate detection, so it never fails the check.
	if h.cache != nil {
		checks["cache"] = "up"
		if err := cache.Healthy(ctx, h.cache); err != nil {
			checks["cache"] = "down"
		}
	}

	state := "ok"
	if status != fiber.StatusOK {
		state = "unavailable"
	}
	return c.Status(status).JSON(fiber.Map{
		"status": state,
		"checks": checks,
	})
}
