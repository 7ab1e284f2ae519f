package router

import (
	"database/sql"
	"net/http"
	"time"

	"lounge_backend/internal/events"
	"lounge_backend/internal/handlers"
	"lounge_backend/internal/locker"
	"lounge_backend/internal/metrics"
	"lounge_backend/internal/middleware"
	"lounge_backend/internal/policy"
	"lounge_backend/internal/repositories"
	"lounge_backend/internal/services"
	"lounge_backend/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	DB                 *sql.DB
	Publisher          events.Publisher            // nil drops completed-transaction events
	Idempotency        middleware.IdempotencyStore // nil disables Idempotency-Key handling
	DiscardWindow      time.Duration
	CORSAllowedOrigins []string
	Clock              services.Clock // nil uses the system clock
}

// Setup initializes the routing for the application.
func Setup(engine *gin.Engine, deps Dependencies) {
	clock := deps.Clock
	if clock == nil {
		clock = services.SystemClock
	}
	locks := locker.New()

	// Initialize Repositories
	ruleRepo := repositories.NewPricingRuleRepository(deps.DB)
	tableRepo := repositories.NewTableRepository(deps.DB)
	itemRepo := repositories.NewInventoryRepository(deps.DB)
	movementRepo := repositories.NewStockMovementRepository(deps.DB)
	txnRepo := repositories.NewTransactionRepository(deps.DB)
	reportRepo := repositories.NewReportRepository(deps.DB)

	// Initialize Services
	ruleService := services.NewPricingRuleService(ruleRepo, deps.DB, clock)
	tableService := services.NewTableService(tableRepo, ruleRepo, deps.DB, locks, clock, deps.DiscardWindow)
	inventoryService := services.NewInventoryService(itemRepo, movementRepo, deps.DB, locks, clock)
	ledgerService := services.NewStockLedgerService(itemRepo, movementRepo, deps.DB, locks, clock)
	txnService := services.NewTransactionService(txnRepo, tableRepo, ruleRepo, itemRepo, movementRepo, deps.DB, locks, deps.Publisher, clock)
	splitService := services.NewSplitService(txnRepo, deps.DB, locks, clock)
	reportService := services.NewReportService(reportRepo, clock)

	// Initialize Handlers
	ruleHandler := handlers.NewPricingRuleHandler(ruleService)
	tableHandler := handlers.NewTableHandler(tableService)
	inventoryHandler := handlers.NewInventoryHandler(inventoryService)
	stockHandler := handlers.NewStockHandler(ledgerService)
	txnHandler := handlers.NewTransactionHandler(txnService, splitService)
	reportHandler := handlers.NewReportHandler(reportService)

	engine.Use(middleware.RequestID())
	engine.Use(utils.GinLogger())
	engine.Use(metrics.GinMiddleware())
	engine.Use(corsMiddleware(deps.CORSAllowedOrigins))

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := engine.Group("/api/v1")
	authenticated := apiV1.Group("")
	authenticated.Use(middleware.AuthMiddleware())
	authenticated.Use(middleware.RoleAuthMiddleware(policy.RoleAdmin, policy.RoleManager, policy.RoleStaff))
	{
		idempotent := middleware.Idempotency(deps.Idempotency)

		SetupPricingRuleRoutes(authenticated, ruleHandler)
		SetupTableRoutes(authenticated, tableHandler, idempotent)
		SetupInventoryRoutes(authenticated, inventoryHandler)
		SetupStockRoutes(authenticated, stockHandler, idempotent)
		SetupTransactionRoutes(authenticated, txnHandler, idempotent)
		SetupReportRoutes(authenticated, reportHandler)
	}
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	config := cors.DefaultConfig()
	config.AllowOrigins = allowedOrigins
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization",
		middleware.HeaderRequestID, middleware.HeaderIdempotencyKey}
	config.ExposeHeaders = []string{middleware.HeaderRequestID}
	config.AllowCredentials = true
	return cors.New(config)
}
