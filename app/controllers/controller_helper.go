package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/LocalListings/internal/pkg/apperr"
)

// ClientIP returns the caller address, preferring proxy headers set by
// Cloudflare or the load balancer.
func ClientIP(c *fiber.Ctx) string {
	if ip := strings.TrimSpace(c.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	return strings.TrimPrefix(c.IP(), "::ffff:")
}

func requestID(c *fiber.Ctx) string {
	return c.GetRespHeader(fiber.HeaderXRequestID)
}

// errorResponse writes the JSON error body for a marked error. Internal
// failures get a generic message so driver or provider details never leak.
func errorResponse(c *fiber.Ctx, err error, internalMessage string) error {
	status := apperr.HTTPStatusFromErr(err)
	message := internalMessage
	if status < fiber.StatusInternalServerError {
		message = err.Error()
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   apperr.Code(err),
		"message": message,
	})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
