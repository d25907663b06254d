package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docintake/internal/credential"
	"docintake/internal/customer"
	"docintake/internal/service"
	"docintake/internal/storage"
	"docintake/internal/upstream"
)

// Dependencies are the components the HTTP routes delegate to.
type Dependencies struct {
	Credentials credential.Source
	Storage     storage.Storage
	Proxy       upstream.Dispatcher
	Customers   customer.Service
	Dispatch    service.DispatchService
	// Gatherer backs /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, deps Dependencies) {
	app.Get("/", Index())
	app.Get("/health", HealthCheck(deps.Credentials, deps.Storage))
	app.Get("/healthz", LivenessProbe())
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	app.Post(uploadPath, UploadDocument(deps.Dispatch))

	api := app.Group("/api")
	api.Get("/customer/:id", GetCustomer(deps.Customers))
	api.All("/proxy/*", Proxy(deps.Proxy, deps.Credentials))
}
