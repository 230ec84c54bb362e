package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"refdata/internal/auth"
	"refdata/internal/http/middleware"
	"refdata/internal/resource"
	"refdata/internal/service"
)

// Check probes one dependency for /health.
type Check func(ctx context.Context) error

// Deps carries everything RegisterRoutes wires into handlers.
type Deps struct {
	Catalog    *resource.Catalog
	References service.ReferenceService
	// Snapshots is optional; without it the admin route is not registered.
	Snapshots service.SnapshotService
	Keys      *auth.KeyStore
	// Checks are run by /health, keyed by dependency name.
	Checks   map[string]Check
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Every catalog resource gets the same five operations.
func RegisterRoutes(app *fiber.App, d Deps) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	app.Get("/health", HealthCheck(d.Checks))
	app.Get("/healthz", LivenessProbe())
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	authn := middleware.Auth(d.Keys)
	for _, def := range d.Catalog.All() {
		base := "/" + def.Name
		media := middleware.MediaType(def)

		app.Get(base, authn, media, ListItems(def, d.References, log))
		app.Get(base+"/:guid", authn, media, GetItem(def, d.References, log))
		app.Post(base, NotSupported())
		app.Put(base+"/:guid", NotSupported())
		app.Delete(base+"/:guid", NotSupported())
	}

	app.Delete("/admin/cache/:resource", authn, InvalidateCache(d.References, log))
	if d.Snapshots != nil {
		app.Post("/admin/snapshots/:resource", authn, PublishSnapshot(d.Snapshots, log))
	}
}
