package handler

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthCheck pings every dependency in checks.
// @Summary Dependency health
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} errorPayload
// @Router /health [get]
func HealthCheck(checks map[string]Check) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		results := make(map[string]string, len(checks))
		var failed []string
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed = append(failed, name)
				continue
			}
			results[name] = "ok"
		}

		if len(failed) > 0 {
			sort.Strings(failed)
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable", strings.Join(failed, ", "))
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok", "checks": results})
	}
}

// LivenessProbe answers 200 while the process is serving.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}
