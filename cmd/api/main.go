package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"securevault/docs"
	"securevault/internal/audit"
	"securevault/internal/config"
	handlers "securevault/internal/http/handler"
	"securevault/internal/http/middleware"
	"securevault/internal/logger"
	"securevault/internal/metrics"
	"securevault/internal/otel"
	"securevault/internal/service"
)

// multipart framing on top of the file itself
const bodyLimitSlack = 1 << 20

// @title Secure Vault API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	loc := logger.Location(cfg.Location)
	log := logger.New(os.Stdout, cfg.LogLevel, loc)

	if cfg.Auth.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	meta := openMetadata(ctx, cfg.Database, log)
	defer meta.Close()

	store, err := openObjectStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize object storage")
	}

	vaultMetrics, err := metrics.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register vault metrics")
	}
	httpMetrics, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register http metrics")
	}

	auditLog := audit.New(meta.audit, log, vaultMetrics, cfg.Audit.QueryLimit)
	vaultSvc := service.NewVaultService(meta.files, store, auditLog, service.Options{
		AllowedExtensions: cfg.Storage.AllowedExtensions,
		MaxFileSize:       cfg.Storage.MaxFileSizeBytes(),
		ListLimit:         cfg.Storage.ListLimit,
	}, log, vaultMetrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    int(cfg.Storage.MaxFileSizeBytes()) + bodyLimitSlack,
	})

	app.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(httpMetrics.Handler())

	health := handlers.Health{
		DB:              meta.db,
		MetadataBackend: meta.name(),
		ObjectStore:     store.Kind(),
	}
	auth := middleware.Auth([]byte(cfg.Auth.JWTSecret), time.Duration(cfg.Auth.LeewaySec)*time.Second)
	handlers.RegisterRoutes(app, health, vaultSvc, auth)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

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

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().
		Str("addr", ":"+cfg.Port).
		Str("metadata_backend", health.MetadataBackend).
		Str("object_store", health.ObjectStore).
		Msg("server starting")

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Error().Err(err).Msg("failed to start server")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
}
