/**
 * @description
 * Main entry point for the CityForge Backend API.
 * Initializes the in-memory execution core (ledger, vault factory, yield
 * protocols, building adapters), the Fiber web server, and all routes.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: Web framework
 * - github.com/cityforge-project/backend/internal/config: Config loader
 * - github.com/cityforge-project/backend/internal/db: Database connections
 *
 * @notes
 * - Connects to Postgres and Redis on startup.
 * - Sets up basic middleware (CORS, Logger, Recover).
 */

package main

import (
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/cityforge-project/backend/internal/adapters"
	"github.com/cityforge-project/backend/internal/api"
	"github.com/cityforge-project/backend/internal/chain"
	"github.com/cityforge-project/backend/internal/config"
	"github.com/cityforge-project/backend/internal/db"
	"github.com/cityforge-project/backend/internal/ledger"
	"github.com/cityforge-project/backend/internal/models"
	"github.com/cityforge-project/backend/internal/protocols"
	"github.com/cityforge-project/backend/internal/services"
	"github.com/cityforge-project/backend/internal/vault"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Database Connections
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	if err := pgDB.AutoMigrate(&models.User{}, &models.BuildingEvent{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// 3. Initialize Execution Core
	env := chain.NewEnv()
	records := ledger.New(env.Timestamp)
	env.Register(ledger.ContractAddress, records)

	lendingPool, err := protocols.NewLendingPool()
	if err != nil {
		log.Fatalf("Failed to init lending pool: %v", err)
	}
	env.Register(protocols.LendingPoolAddress, lendingPool)

	swapRouter, err := protocols.NewSwapRouter()
	if err != nil {
		log.Fatalf("Failed to init swap router: %v", err)
	}
	env.Register(protocols.SwapRouterAddress, swapRouter)

	prizePool, err := protocols.NewPrizePool()
	if err != nil {
		log.Fatalf("Failed to init prize pool: %v", err)
	}
	env.Register(protocols.PrizePoolAddress, prizePool)

	if cfg.City.DefaultAssetHex != "" {
		token, err := protocols.NewToken(common.HexToAddress(cfg.City.DefaultAssetHex), "USDC")
		if err != nil {
			log.Fatalf("Failed to init settlement token: %v", err)
		}
		env.Register(token.Address(), token)
	}

	factory := vault.NewFactory(env, records)

	registry := adapters.NewRegistry()
	registry.Register(adapters.TypeLend, adapters.NewLendAdapter(lendingPool, records))
	registry.Register(adapters.TypeLiquidity, adapters.NewLiquidityAdapter(swapRouter, records))
	registry.Register(adapters.TypeLottery, adapters.NewLotteryAdapter(prizePool, records))
	registry.Register(adapters.TypeTownHall, adapters.NewTownHallAdapter(records))

	// 4. Initialize Services
	wallets := services.NewWalletManager(pgDB, factory, records)
	city := services.NewCityService(pgDB, redisClient, records, registry, wallets, cfg.City.EventChannel)
	hub := services.NewCityEventHub(redisClient, cfg.City.EventChannel)

	// 5. Initialize Fiber App
	app := fiber.New(fiber.Config{
		AppName:       "CityForge",
		StrictRouting: true,
		CaseSensitive: true,
	})

	// 6. Global Middleware
	app.Use(recover.New())     // Panic recovery
	app.Use(fiberlogger.New()) // Request logging
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*", // TODO: Lock this down in production
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	// 7. Routes
	api.SetupRoutes(app, city, wallets, hub, cfg)

	// 8. Start Server
	log.Printf("🚀 Starting CityForge Backend on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
