package handlers

import (
	"net/http"

	"lounge_backend/internal/models"
	"lounge_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// InventoryHandler serves sellable items. Stock levels are changed through the StockHandler.
type InventoryHandler struct {
	inventoryService services.InventoryService
}

// NewInventoryHandler creates a new InventoryHandler.
func NewInventoryHandler(s services.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventoryService: s}
}

func (h *InventoryHandler) CreateItem(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req services.CreateItemRequest
	if !bindJSON(c, &req, "CreateItem") {
		return
	}
	item, err := h.inventoryService.CreateItem(c.Request.Context(), actor, req)
	if err != nil {
		respondServiceError(c, err, "CreateItem")
		return
	}
	c.JSON(http.StatusCreated, item)
}

// ListItems supports ?low_stock=true&page=&page_size=
func (h *InventoryHandler) ListItems(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var filters models.InventoryItemFilters
	if !bindQuery(c, &filters) {
		return
	}
	pageDefaults(&filters.Page, &filters.PageSize, 50)

	items, total, err := h.inventoryService.ListItems(c.Request.Context(), actor, filters)
	if err != nil {
		respondServiceError(c, err, "ListItems")
		return
	}
	c.JSON(http.StatusOK, listResponse(items, total, filters.Page, filters.PageSize))
}

func (h *InventoryHandler) GetItem(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "item")
	if !ok {
		return
	}
	item, err := h.inventoryService.GetItem(c.Request.Context(), actor, id)
	if err != nil {
		respondServiceError(c, err, "GetItem")
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *InventoryHandler) UpdateItem(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "item")
	if !ok {
		return
	}
	var req services.UpdateItemRequest
	if !bindJSON(c, &req, "UpdateItem") {
		return
	}
	item, err := h.inventoryService.UpdateItem(c.Request.Context(), actor, id, req)
	if err != nil {
		respondServiceError(c, err, "UpdateItem")
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *InventoryHandler) DeleteItem(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "item")
	if !ok {
		return
	}
	if err := h.inventoryService.DeleteItem(c.Request.Context(), actor, id); err != nil {
		respondServiceError(c, err, "DeleteItem")
		return
	}
	c.Status(http.StatusNoContent)
}
