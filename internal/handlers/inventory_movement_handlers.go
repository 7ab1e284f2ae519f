package handlers

import (
	"net/http"

	"lounge_backend/internal/models"
	"lounge_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// StockHandler serves the stock ledger.
type StockHandler struct {
	ledgerService services.StockLedgerService
}

// NewStockHandler creates a new StockHandler.
func NewStockHandler(s services.StockLedgerService) *StockHandler {
	return &StockHandler{ledgerService: s}
}

// PostMovement records a manual in, out or adjustment movement.
func (h *StockHandler) PostMovement(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req services.PostStockRequest
	if !bindJSON(c, &req, "PostMovement") {
		return
	}
	movement, err := h.ledgerService.Post(c.Request.Context(), actor, req)
	if err != nil {
		respondServiceError(c, err, "PostMovement")
		return
	}
	if movement == nil {
		// item is not stock tracked
		c.JSON(http.StatusOK, gin.H{"message": "Item is not stock tracked; nothing was posted"})
		return
	}
	c.JSON(http.StatusCreated, movement)
}

// History lists movements newest first. Supports ?item_id=&kind=&page=&page_size=
func (h *StockHandler) History(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var filters models.MovementFilters
	if !bindQuery(c, &filters) {
		return
	}
	pageDefaults(&filters.Page, &filters.PageSize, 50)

	movements, total, err := h.ledgerService.History(c.Request.Context(), actor, filters)
	if err != nil {
		respondServiceError(c, err, "History")
		return
	}
	c.JSON(http.StatusOK, listResponse(movements, total, filters.Page, filters.PageSize))
}
