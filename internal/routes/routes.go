package routes

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/example/campuspoints/internal/access"
	"github.com/example/campuspoints/internal/calendar"
	"github.com/example/campuspoints/internal/config"
	"github.com/example/campuspoints/internal/handlers"
	"github.com/example/campuspoints/internal/middleware"
	"github.com/example/campuspoints/internal/services"
)

const resetLimiterSize = 10000

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	var provider calendar.Provider = calendar.Disabled{}
	if cfg.Google.Enabled() {
		provider = calendar.NewGoogle(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
	}
	telegramService := services.NewTelegramService(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID)

	authService := services.NewAuthService(db, cfg.JWT.Secret, cfg.JWT.TTL)
	userService := services.NewUserService(db)
	promotionService := services.NewPromotionService(db)
	ledgerService := services.NewLedgerService(db, promotionService, telegramService)
	eventService := services.NewEventService(db, provider)
	reportService, err := services.NewReportService(db)
	if err != nil {
		log.Fatalf("failed to init reports: %v", err)
	}

	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService, ledgerService, cfg.Upload)
	transactionHandler := handlers.NewTransactionHandler(ledgerService)
	eventHandler := handlers.NewEventHandler(eventService, ledgerService)
	promotionHandler := handlers.NewPromotionHandler(promotionService)
	googleHandler := handlers.NewGoogleHandler(provider, userService)
	reportHandler := handlers.NewReportHandler(reportService)

	resetLimiter := middleware.NewAddressLimiter(time.Minute, resetLimiterSize)
	authRequired := middleware.AuthMiddleware(authService)
	require := middleware.Require

	app.Get("/health", handlers.Health(db))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Static("/uploads", cfg.Upload.Dir)

	// Auth routes
	auth := app.Group("/auth")
	auth.Post("/tokens", authHandler.Tokens)
	auth.Post("/resets", resetLimiter.Handler(), authHandler.Resets)
	auth.Post("/resets/:resetToken", authHandler.ResetWithToken)

	// Users; /me routes must precede /:userId
	users := app.Group("/users", authRequired)
	users.Post("/", require(access.Create, access.Users), userHandler.Register)
	users.Get("/", require(access.List, access.Users), userHandler.List)
	users.Get("/me", userHandler.Me)
	users.Patch("/me", userHandler.UpdateMe)
	users.Patch("/me/password", userHandler.ChangePassword)
	users.Post("/me/transactions", require(access.Create, access.Redemptions), userHandler.Redeem)
	users.Get("/me/transactions", userHandler.MyTransactions)
	users.Get("/:userId", require(access.Read, access.Users), userHandler.Get)
	users.Patch("/:userId", require(access.Update, access.Users), userHandler.Update)
	users.Post("/:userId/transactions", require(access.Create, access.Transfers), userHandler.Transfer)

	// Transactions
	transactions := app.Group("/transactions", authRequired)
	transactions.Post("/", transactionHandler.Create)
	transactions.Get("/", require(access.List, access.Transactions), transactionHandler.List)
	transactions.Get("/:transactionId", require(access.Read, access.Transactions), transactionHandler.Get)
	transactions.Patch("/:transactionId/suspicious", require(access.Flag, access.Transactions), transactionHandler.SetSuspicious)
	transactions.Patch("/:transactionId/processed", require(access.Process, access.Redemptions), transactionHandler.Process)

	// Events; organizer rights are checked per event in the service
	events := app.Group("/events", authRequired)
	events.Post("/", require(access.Create, access.Events), eventHandler.Create)
	events.Get("/", require(access.List, access.Events), eventHandler.List)
	events.Get("/:eventId", require(access.Read, access.Events), eventHandler.Get)
	events.Patch("/:eventId", eventHandler.Update)
	events.Delete("/:eventId", require(access.Delete, access.Events), eventHandler.Delete)
	events.Post("/:eventId/organizers", require(access.Manage, access.Organizers), eventHandler.AddOrganizer)
	events.Delete("/:eventId/organizers/:userId", require(access.Manage, access.Organizers), eventHandler.RemoveOrganizer)
	events.Post("/:eventId/guests/me", eventHandler.Join)
	events.Delete("/:eventId/guests/me", eventHandler.Leave)
	events.Post("/:eventId/guests", eventHandler.AddGuest)
	events.Delete("/:eventId/guests/:userId", require(access.Delete, access.Guests), eventHandler.RemoveGuest)
	events.Post("/:eventId/transactions", eventHandler.Award)

	// Promotions
	promotions := app.Group("/promotions", authRequired)
	promotions.Post("/", require(access.Create, access.Promotions), promotionHandler.Create)
	promotions.Get("/", require(access.List, access.Promotions), promotionHandler.List)
	promotions.Get("/:promotionId", require(access.Read, access.Promotions), promotionHandler.Get)
	promotions.Patch("/:promotionId", require(access.Update, access.Promotions), promotionHandler.Update)
	promotions.Delete("/:promotionId", require(access.Delete, access.Promotions), promotionHandler.Delete)

	// Reports
	reports := app.Group("/reports", authRequired)
	reports.Get("/summary", require(access.Read, access.Reports), reportHandler.Summary)

	// Google calendar
	google := app.Group("/api/google")
	google.Get("/", googleHandler.Consent)
	google.Get("/redirect", authRequired, googleHandler.Callback)
	google.Get("/calendars", authRequired, googleHandler.Calendars)
}
