package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/madina-market/madina_pay/internal/api"
	"github.com/madina-market/madina_pay/internal/auth"
	"github.com/madina-market/madina_pay/internal/config"
	"github.com/madina-market/madina_pay/internal/escrow"
	"github.com/madina-market/madina_pay/internal/funding"
	"github.com/madina-market/madina_pay/internal/identity"
	"github.com/madina-market/madina_pay/internal/ledger"
	"github.com/madina-market/madina_pay/internal/middleware"
	"github.com/madina-market/madina_pay/internal/transfer"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	// Ledger and Users override the storage backends; when nil they are
	// selected from DB (postgres when present, in-memory otherwise).
	Ledger ledger.Ledger
	Users  identity.Repository
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	if d.Logger != nil {
		app.Use(middleware.Audit(d.Logger))
	}

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Storage backends
	ledgerBackend := d.Ledger
	if ledgerBackend == nil {
		if d.DB != nil {
			ledgerBackend = ledger.NewPostgresLedger(d.DB)
		} else {
			ledgerBackend = ledger.NewInMemory()
		}
	}
	userRepo := d.Users
	if userRepo == nil {
		if d.DB != nil {
			userRepo = identity.NewPostgresRepository(d.DB)
		} else {
			userRepo = identity.NewMemoryRepository()
		}
	}

	// Services and handlers
	userSvc := identity.NewService(userRepo)
	resolver := identity.NewResolver(userRepo)
	tokenSvc := auth.NewService(d.Cfg)
	authHandler := auth.NewHandler(tokenSvc, userSvc)
	transferSvc := transfer.NewService(ledgerBackend, resolver)
	fundingSvc := funding.NewService(ledgerBackend)
	escrowSvc := escrow.NewService(ledgerBackend, d.Cfg.CommissionRate, d.Cfg.DefaultCurrency, d.Cfg.AutoReleaseDays)
	actionHandler := api.NewHandler(ledgerBackend, resolver, transferSvc, fundingSvc, escrowSvc, d.Logger)

	root := app.Group("/api/v1")
	root.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterAuthRoutes(root, authHandler, rateLimiter)

	// Protected routes
	protected := root.Group("", middleware.Auth(d.Cfg, userRepo))
	protected.Get("/wallet", actionHandler.Action)
	if d.Cache != nil {
		// Money-moving actions replay safely behind an Idempotency-Key.
		protected.Post("/wallet", middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger), actionHandler.Action)
	} else {
		protected.Post("/wallet", actionHandler.Action)
	}
	protected.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		user, err := userRepo.FindByID(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		return c.JSON(fiber.Map{
			"user_id":     user.ID,
			"phone":       user.Phone,
			"full_name":   user.FullName,
			"readable_id": user.ReadableID,
			"role":        user.Role,
			"created_at":  user.CreatedAt,
		})
	})

	return nil
}
