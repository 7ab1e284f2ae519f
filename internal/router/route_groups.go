package router

import (
	"lounge_backend/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupPricingRuleRoutes sets up the pricing rule routes.
func SetupPricingRuleRoutes(authenticatedGroup *gin.RouterGroup, h *handlers.PricingRuleHandler) {
	ruleRoutes := authenticatedGroup.Group("/pricing-rules")
	{
		ruleRoutes.POST("", h.CreateRule)
		ruleRoutes.GET("", h.ListRules)
		ruleRoutes.GET("/:id", h.GetRule)
	}
}

// SetupTableRoutes sets up table management and session routes.
func SetupTableRoutes(authenticatedGroup *gin.RouterGroup, h *handlers.TableHandler, idempotent gin.HandlerFunc) {
	tableRoutes := authenticatedGroup.Group("/tables")
	{
		tableRoutes.POST("", h.CreateTable)
		tableRoutes.GET("", h.ListTables)
		tableRoutes.GET("/:id", h.GetTable)
		tableRoutes.PUT("/:id", h.UpdateTable)
		tableRoutes.DELETE("/:id", h.DeleteTable)

		tableRoutes.POST("/:id/start", h.StartSession)
		tableRoutes.GET("/:id/quote", h.Quote)
		tableRoutes.POST("/:id/extras", h.AddExtras)
		tableRoutes.POST("/:id/stop", idempotent, h.StopSession)
		tableRoutes.POST("/:id/discard", h.DiscardSession)
		tableRoutes.GET("/:id/discards", h.ListDiscards)
	}
}

// SetupInventoryRoutes sets up the inventory item routes.
func SetupInventoryRoutes(authenticatedGroup *gin.RouterGroup, h *handlers.InventoryHandler) {
	itemRoutes := authenticatedGroup.Group("/inventory-items")
	{
		itemRoutes.POST("", h.CreateItem)
		itemRoutes.GET("", h.ListItems)
		itemRoutes.GET("/:id", h.GetItem)
		itemRoutes.PUT("/:id", h.UpdateItem)
		itemRoutes.DELETE("/:id", h.DeleteItem)
	}
}

// SetupStockRoutes sets up the stock ledger routes.
func SetupStockRoutes(authenticatedGroup *gin.RouterGroup, h *handlers.StockHandler, idempotent gin.HandlerFunc) {
	stockRoutes := authenticatedGroup.Group("/stock-movements")
	{
		stockRoutes.POST("", idempotent, h.PostMovement)
		stockRoutes.GET("", h.History)
	}
}

// SetupTransactionRoutes sets up the transaction ledger and split routes.
func SetupTransactionRoutes(authenticatedGroup *gin.RouterGroup, h *handlers.TransactionHandler, idempotent gin.HandlerFunc) {
	txnRoutes := authenticatedGroup.Group("/transactions")
	{
		txnRoutes.POST("/from-session", idempotent, h.CreateFromSession)
		txnRoutes.POST("/walk-in", idempotent, h.CreateWalkInSale)
		txnRoutes.GET("", h.ListTransactions)
		txnRoutes.GET("/:id", h.GetTransaction)
		txnRoutes.PATCH("/:id/status", idempotent, h.SetStatus)
		txnRoutes.PUT("/:id/lines", h.EditLines)
		txnRoutes.POST("/:id/transfer", idempotent, h.TransferFull)
		txnRoutes.POST("/:id/transfer-partial", idempotent, h.TransferPartial)
		txnRoutes.POST("/:id/split-evenly", idempotent, h.SplitEvenly)
	}
}

// SetupReportRoutes sets up the read-only report routes.
func SetupReportRoutes(authenticatedGroup *gin.RouterGroup, h *handlers.ReportHandler) {
	reportRoutes := authenticatedGroup.Group("/reports")
	{
		reportRoutes.GET("/dashboard", h.GetDashboardSummary)
		reportRoutes.GET("/sales", h.GetSalesReport)
	}
}
