package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"refdata/internal/service"
)

// PublishSnapshot exports a resource to object storage and returns a download link.
// @Summary Publish a resource snapshot
// @Tags admin
// @Produce json
// @Param resource path string true "Resource name"
// @Success 201 {object} service.Snapshot
// @Failure 401 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /admin/snapshots/{resource} [post]
func PublishSnapshot(svc service.SnapshotService, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := c.Params("resource")

		snap, err := svc.Publish(c.UserContext(), name)
		if err != nil {
			return writeServiceError(c, log, name, err)
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	}
}

// InvalidateCache drops the cached copy of a resource.
// @Summary Invalidate a cached resource
// @Tags admin
// @Param resource path string true "Resource name"
// @Success 204
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /admin/cache/{resource} [delete]
func InvalidateCache(svc service.ReferenceService, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := c.Params("resource")

		if err := svc.Invalidate(c.UserContext(), name); err != nil {
			return writeServiceError(c, log, name, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
