package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/depix-gateway/internal/config"
	"github.com/example/depix-gateway/internal/handlers"
	"github.com/example/depix-gateway/internal/middleware"
	"github.com/example/depix-gateway/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)

	depixService := services.NewDepixService(func() services.DepixConfig {
		return services.DepixConfig{
			StoreCode:     cfg.StoreCode,
			Production:    cfg.Production,
			SiteBaseURL:   cfg.SiteBaseURL,
			SandboxURL:    cfg.SandboxAPIURL,
			ProductionURL: cfg.ProductionAPIURL,
		}
	})
	stateService := services.NewPaymentStateService(db, telegramService)

	authHandler := handlers.NewAuthHandler(cfg)
	orderHandler := handlers.NewOrderHandler(db)
	pixHandler := handlers.NewPixHandler(db, depixService, stateService)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/login", authHandler.Login)

	// Pix payment routes
	pix := api.Group("/pix")
	pix.Post("/checkout", pixHandler.Checkout)
	pix.Post("/update-status-order", middleware.WebhookAuthMiddleware(cfg.WebhookSecret), pixHandler.UpdateStatusOrder)
	pix.Get("/check-payment", pixHandler.CheckPayment)

	// Protected operator routes
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	protected.Get("/pix/payments", pixHandler.ListPayments)
	protected.Post("/orders", orderHandler.CreateOrder)
	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)
}
