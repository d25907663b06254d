package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"docintake/internal/credential"
	"docintake/internal/model"
	"docintake/internal/storage"
)

const healthTimeout = 5 * time.Second

// Index lists the public endpoints.
func Index() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "docintake",
			"endpoints": []string{
				"GET /health",
				"GET /healthz",
				"GET /metrics",
				"GET /api/customer/:id",
				"POST /api/uploadDocument",
				"GET|POST|PUT|DELETE /api/proxy/*",
			},
		})
	}
}

// HealthCheck godoc
// @Summary Readiness probe
// @Description Acquires a banking API credential and checks the content store.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} errorPayload
// @Router /health [get]
func HealthCheck(creds credential.Source, store storage.Storage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		defer cancel()

		if _, err := creds.Get(ctx); err != nil {
			var auth *model.AuthenticationError
			if errors.As(err, &auth) {
				return writeError(c, fiber.StatusServiceUnavailable, "AUTHENTICATION_FAILED", "upstream authentication failed")
			}
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		if err := store.Ready(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe answers 200 while the process is up.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}
