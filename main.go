package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"nestmail/config"
	"nestmail/conversation"
	"nestmail/handlers/api"
	"nestmail/middleware"
	"nestmail/storage"
	"nestmail/sync"
	"nestmail/utils"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("config.toml")
	if err != nil {
		utils.Log.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	utils.Log.SetLevel(utils.ParseLevel(cfg.Server.LogLevel))
	utils.Log.Info("Initializing nestmail...")

	// Open storage
	mailDB, err := storage.OpenMailDB(cfg.Database.MailDB)
	if err != nil {
		utils.Log.Error("Failed to open mail database: %v", err)
		os.Exit(1)
	}
	defer mailDB.Close()

	boltDB, err := storage.OpenBoltDB(cfg.Database.DataDir)
	if err != nil {
		utils.Log.Error("Failed to open data store: %v", err)
		os.Exit(1)
	}
	defer boltDB.Close()

	emailStore := storage.NewEmailStore(mailDB)
	userStore := storage.NewUserStore(boltDB)
	accountStore, err := storage.NewAccountStore(boltDB, []byte(cfg.Encryption.Key))
	if err != nil {
		utils.Log.Error("Failed to initialize account store: %v", err)
		os.Exit(1)
	}

	// Conversation service and handlers
	conversationSvc := conversation.NewService(emailStore, conversation.StrategyJWZ)
	cache := utils.NewMemoryCache()
	notifications := api.NewNotificationHandler()

	authHandler := api.NewAuthHandler(userStore, cfg.JWT.Secret, cfg.JWTExpiry())
	conversationHandler := api.NewConversationHandler(emailStore, conversationSvc, cache, cfg.CacheTTL(), notifications)
	accountHandler := api.NewAccountHandler(accountStore, cfg.IMAP)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError

			if appErr, ok := err.(*utils.AppError); ok {
				code = appErr.Code
				if code >= 500 {
					utils.Log.Error("Application error: %v", appErr)
				}
			} else if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Add global middleware
	app.Use(recover.New())  // Recover from panics
	app.Use(logger.New())   // Request logging
	app.Use(compress.New()) // Response compression
	app.Use(helmet.New(helmet.Config{ // Security headers
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		ReferrerPolicy:     "no-referrer",
	}))
	app.Use(middleware.RateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Public auth routes
	app.Post("/api/auth/register", authHandler.Register)
	app.Post("/api/auth/login", authHandler.Login)

	// Protected routes
	protected := app.Group("/api", api.RequireAuth(cfg.JWT.Secret))
	{
		protected.Get("/auth/me", authHandler.Me)

		// Conversation routes
		protected.Get("/conversations", conversationHandler.List)
		protected.Get("/conversations/search", conversationHandler.Search)
		protected.Get("/conversations/:key", conversationHandler.Get)
		protected.Post("/conversations/:key/action", conversationHandler.Mutate)

		// Account routes
		protected.Get("/accounts", accountHandler.List)
		protected.Post("/accounts", accountHandler.Create)
		protected.Delete("/accounts/:id", accountHandler.Delete)

		// Notification routes
		protected.Get("/notifications/sse", notifications.HandleSSE)
		protected.Get("/notifications/ws", websocket.New(notifications.HandleWebSocket))
	}

	// Background IMAP sync
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncer := sync.NewSyncer(emailStore, accountStore, cfg.SyncInterval(), cfg.Sync.FetchSize, notifications)
	go syncer.Run(ctx)

	go func() {
		<-ctx.Done()
		utils.Log.Info("Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			utils.Log.Error("Shutdown error: %v", err)
		}
	}()

	// Start server
	utils.Log.Info("Starting server on port %d...", cfg.Server.Port)
	if err := app.Listen(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		utils.Log.Error("Error starting server: %v", err)
	}
}
