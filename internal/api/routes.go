/**
 * @description
 * API Route definitions.
 * Sets up the router groups and assigns handlers.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/api/handlers
 * - backend/internal/api/middleware
 * - backend/internal/services
 */

package api

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/cityforge-project/backend/internal/api/handlers"
	"github.com/cityforge-project/backend/internal/api/middleware"
	"github.com/cityforge-project/backend/internal/config"
	"github.com/cityforge-project/backend/internal/services"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, city *services.CityService, wallets *services.WalletManager, hub *services.CityEventHub, cfg *config.Config) {
	// 1. Initialize Middleware
	if err := middleware.InitAuthMiddleware(cfg); err != nil {
		log.Printf("Failed to init auth middleware: %v", err)
		// We don't panic here to allow app to start in dev modes without valid keys,
		// but protected routes will fail.
	}

	// 2. Initialize Handlers
	walletHandler := handlers.NewWalletHandler(wallets)
	cityHandler := handlers.NewCityHandler(city, hub)

	// 3. Define Routes
	apiGroup := app.Group("/api")
	v1 := apiGroup.Group("/v1")

	// Public Routes
	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// City Reads (Public)
	v1.Get("/city/types", cityHandler.GetBuildingTypes)
	v1.Get("/city/stream", cityHandler.StreamEvents)
	v1.Get("/city/:owner", cityHandler.GetCityByOwner)

	// Wallet Routes (Protected)
	wallet := v1.Group("/wallet", middleware.Protected())
	wallet.Get("/", walletHandler.GetWallet)
	wallet.Get("/delegates", walletHandler.ListDelegates)
	wallet.Post("/delegates", walletHandler.CreateDelegate)
	wallet.Delete("/delegates/:address", walletHandler.RevokeDelegate)

	// City Actions (Protected)
	cityGroup := v1.Group("/city", middleware.Protected())
	cityGroup.Get("/", cityHandler.GetCity)
	cityGroup.Post("/buildings", cityHandler.PlaceBuilding)
	cityGroup.Post("/buildings/:id/harvest", cityHandler.HarvestBuilding)
	cityGroup.Delete("/buildings/:id", cityHandler.DemolishBuilding)
	cityGroup.Post("/execute", cityHandler.ExecuteCall)
}
