package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/novelink/novelink/internal/admin"
	"github.com/novelink/novelink/internal/catalog"
	"github.com/novelink/novelink/internal/config"
	"github.com/novelink/novelink/internal/ledger"
	"github.com/novelink/novelink/internal/metrics"
	"github.com/novelink/novelink/internal/middleware"
	"github.com/novelink/novelink/internal/notification"
	"github.com/novelink/novelink/internal/provider"
	"github.com/novelink/novelink/internal/topup"
	"github.com/novelink/novelink/internal/transfer"
	"github.com/novelink/novelink/internal/user"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Registry *prometheus.Registry
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app, d.Registry)

	// Stores and repositories
	var store ledger.Store
	var users user.Repository
	var cat catalog.Repository
	var notifier notification.Notifier
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		users = user.NewPostgresRepository(d.DB)
		cat = catalog.NewPostgresRepository(d.DB)
		notifier = notification.NewStoreNotifier(d.DB)
	} else {
		store = ledger.NewInMemory()
		users = user.NewMemoryRepository()
		cat = catalog.NewMemoryRepository()
		notifier = notification.NewLogNotifier(d.Logger)
	}

	var m *metrics.Metrics
	if d.Registry != nil {
		m = metrics.New(d.Registry)
	}

	providers := buildProviders(d.Cfg)

	// Services and handlers
	topupSvc := topup.NewService(topup.Config{
		ExchangeRate: d.Cfg.ExchangeRate,
		MinCoins:     d.Cfg.MinCoins,
		MaxCoins:     d.Cfg.MaxCoins,
		StepCoins:    d.Cfg.StepCoins,
		ReturnURL:    d.Cfg.TopupReturnURL,
		CancelURL:    d.Cfg.TopupCancelURL,
	}, store, providers, notifier, m, d.Logger)
	transferSvc := transfer.NewService(transfer.Config{
		MinGiftCoins: d.Cfg.MinGiftCoins,
		MaxGiftCoins: d.Cfg.MaxGiftCoins,
	}, store, cat, notifier, m, d.Logger)
	adminSvc := admin.NewService(store, topupSvc)

	topupHandler := topup.NewHandler(topupSvc, d.Logger)
	transferHandler := transfer.NewHandler(transferSvc)
	adminHandler := admin.NewHandler(adminSvc)
	meHandler := user.NewHandler(users, store)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Provider callbacks are unauthenticated; signatures gate them instead.
	callbackLimit := middleware.CallbackRateLimit(d.Cache, d.Cfg.CallbackRatePerMin)
	RegisterCallbackRoutes(api, topupHandler, callbackLimit)

	// Protected routes
	jwtmw := middleware.JWTAuth(d.Cfg.JWTSecret, users)
	protected := api.Group("", jwtmw)
	RegisterTopupRoutes(protected, topupHandler)
	RegisterTransferRoutes(protected, transferHandler)
	RegisterMeRoutes(protected, meHandler)

	adminGroup := protected.Group("/admin", middleware.RequireRole(user.RoleAdmin))
	RegisterAdminRoutes(adminGroup, adminHandler)

	return nil
}

func buildProviders(cfg config.Config) *provider.Registry {
	var adapters []provider.Adapter
	if cfg.PayviaBaseURL != "" {
		adapters = append(adapters, provider.NewPayvia(provider.PayviaConfig{
			BaseURL:       cfg.PayviaBaseURL,
			APIKey:        cfg.PayviaAPIKey,
			WebhookSecret: cfg.PayviaWebhookSecret,
			Timeout:       cfg.ProviderTimeout,
		}))
	}
	if cfg.SeaPayPayURL != "" {
		adapters = append(adapters, provider.NewSeaPay(provider.SeaPayConfig{
			PayURL:       cfg.SeaPayPayURL,
			QueryURL:     cfg.SeaPayQueryURL,
			MerchantCode: cfg.SeaPayMerchantCode,
			HashSecret:   cfg.SeaPayHashSecret,
			Timeout:      cfg.ProviderTimeout,
		}))
	}
	return provider.NewRegistry(adapters...)
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
