package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"docintake/docs"
	"docintake/internal/cache"
	"docintake/internal/config"
	"docintake/internal/content"
	"docintake/internal/credential"
	"docintake/internal/customer"
	handlers "docintake/internal/http/handler"
	"docintake/internal/http/middleware"
	"docintake/internal/httpclient"
	"docintake/internal/metrics"
	"docintake/internal/notify"
	tracing "docintake/internal/otel"
	"docintake/internal/service"
	"docintake/internal/storage"
	"docintake/internal/upstream"
)

// multipart framing and form fields on top of the file itself
const formOverheadBytes = 1 << 20

// @title Document Intake Gateway
// @version 1.0
// @description Files customer documents with the content store and core banking, and proxies the banking API.
// @BasePath /
func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gateway, err := metrics.NewGateway(reg)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}
	promMiddleware, err := middleware.NewPrometheusMiddleware(reg, "/healthz")
	if err != nil {
		log.Fatalf("failed to register http metrics: %v", err)
	}

	client := httpclient.New(cfg.T24.Timeout)

	creds := credential.NewStore(credential.Config{
		AuthURL:      cfg.T24.AuthURL,
		ClientID:     cfg.T24.ClientID,
		ClientSecret: cfg.T24.ClientSecret,
		Scope:        cfg.T24.Scope,
		RefreshSkew:  cfg.T24.RefreshSkew,
		DefaultTTL:   cfg.T24.DefaultTokenTTL,
		Timeout:      cfg.T24.Timeout,
	}, client, logger.With("component", "credential"), gateway)

	// The generic proxy and the document calls authenticate with different header schemes.
	proxy, err := upstream.NewDispatcher(upstream.DispatcherConfig{
		BaseURL: cfg.T24.BaseURL,
		Header:  credential.HeaderScheme{Name: cfg.T24.ProxyHeader, Prefix: cfg.T24.ProxyHeaderPrefix},
		Timeout: cfg.T24.Timeout,
	}, creds, client, logger.With("component", "proxy"), gateway)
	if err != nil {
		log.Fatalf("failed to create proxy dispatcher: %v", err)
	}
	banking, err := upstream.NewDispatcher(upstream.DispatcherConfig{
		BaseURL: cfg.T24.BaseURL,
		Header:  credential.HeaderScheme{Name: cfg.T24.APIKeyHeader},
		Timeout: cfg.T24.Timeout,
	}, creds, client, logger.With("component", "banking"), gateway)
	if err != nil {
		log.Fatalf("failed to create banking dispatcher: %v", err)
	}

	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	adapter := content.NewObjectStoreAdapter(objStore, cfg.Upload.StoreTimeout, logger.With("component", "content"))
	notifier := notify.NewBankingNotifier(banking, creds, cfg.T24.NotifyPath, logger.With("component", "notify"))
	dispatchSvc := service.NewDispatchService(adapter, notifier, service.DispatchConfig{
		MaxBytes:     cfg.Upload.MaxBytes,
		AllowedTypes: cfg.Upload.AllowedTypes,
	}, logger.With("component", "dispatch"), gateway)

	var customerCache customer.Cache
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		customerCache = cache.NewCustomerCache(rdb, cfg.Redis.CustomerTTL)
	}
	customerSvc := customer.NewService(banking, creds, cfg.T24.CustomerPath, customerCache, logger.With("component", "customer"))

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    int(cfg.Upload.MaxBytes + formOverheadBytes),
	})

	app.Use(otelfiber.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + middleware.RequestIDHeader,
	}))
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())
	app.Use(promMiddleware.Handler())

	handlers.RegisterRoutes(app, handlers.Dependencies{
		Credentials: creds,
		Storage:     objStore,
		Proxy:       proxy,
		Customers:   customerSvc,
		Dispatch:    dispatchSvc,
		Gatherer:    reg,
	})

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "port", cfg.Port, "app_host", cfg.AppHost)
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server stopped", "error", err)
		}
	}

	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Error("tracing shutdown failed", "error", err)
	}
}
