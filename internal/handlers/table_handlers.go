package handlers

import (
	"net/http"

	"lounge_backend/internal/models"
	"lounge_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// TableHandler serves table management and the session state machine.
type TableHandler struct {
	tableService services.TableService
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(s services.TableService) *TableHandler {
	return &TableHandler{tableService: s}
}

func (h *TableHandler) CreateTable(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req services.CreateTableRequest
	if !bindJSON(c, &req, "CreateTable") {
		return
	}
	table, err := h.tableService.CreateTable(c.Request.Context(), actor, req)
	if err != nil {
		respondServiceError(c, err, "CreateTable")
		return
	}
	c.JSON(http.StatusCreated, table)
}

// ListTables supports ?status=on|off&name=...&with_quote=true
func (h *TableHandler) ListTables(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var filters models.TableFilters
	if !bindQuery(c, &filters) {
		return
	}
	tables, err := h.tableService.ListTables(c.Request.Context(), actor, filters)
	if err != nil {
		respondServiceError(c, err, "ListTables")
		return
	}
	c.JSON(http.StatusOK, tables)
}

func (h *TableHandler) GetTable(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "table")
	if !ok {
		return
	}
	table, err := h.tableService.GetTable(c.Request.Context(), actor, id)
	if err != nil {
		respondServiceError(c, err, "GetTable")
		return
	}
	c.JSON(http.StatusOK, table)
}

func (h *TableHandler) UpdateTable(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "table")
	if !ok {
		return
	}
	var req services.UpdateTableRequest
	if !bindJSON(c, &req, "UpdateTable") {
		return
	}
	table, err := h.tableService.UpdateTable(c.Request.Context(), actor, id, req)
	if err != nil {
		respondServiceError(c, err, "UpdateTable")
		return
	}
	c.JSON(http.StatusOK, table)
}

func (h *TableHandler) DeleteTable(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "table")
	if !ok {
		return
	}
	if err := h.tableService.DeleteTable(c.Request.Context(), actor, id); err != nil {
		respondServiceError(c, err, "DeleteTable")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TableHandler) StartSession(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "table")
	if !ok {
		return
	}
	var req services.StartSessionRequest
	// an empty body starts a session without customer or extras
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "StartSession") {
		return
	}
	table, err := h.tableService.StartSession(c.Request.Context(), actor, id, req)
	if err != nil {
		respondServiceError(c, err, "StartSession")
		return
	}
	c.JSON(http.StatusOK, table)
}

func (h *TableHandler) Quote(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "table")
	if !ok {
		return
	}
	quote, err := h.tableService.Quote(c.Request.Context(), actor, id)
	if err != nil {
		respondServiceError(c, err, "Quote")
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *TableHandler) AddExtras(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "table")
	if !ok {
		return
	}
	var req services.AddExtrasRequest
	if !bindJSON(c, &req, "AddExtras") {
		return
	}
	table, err := h.tableService.AddExtras(c.Request.Context(), actor, id, req)
	if err != nil {
		respondServiceError(c, err, "AddExtras")
		return
	}
	c.JSON(http.StatusOK, table)
}

func (h *TableHandler) StopSession(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "table")
	if !ok {
		return
	}
	quote, err := h.tableService.StopSession(c.Request.Context(), actor, id)
	if err != nil {
		respondServiceError(c, err, "StopSession")
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *TableHandler) DiscardSession(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "table")
	if !ok {
		return
	}
	var req services.DiscardSessionRequest
	if !bindJSON(c, &req, "DiscardSession") {
		return
	}
	discard, err := h.tableService.DiscardSession(c.Request.Context(), actor, id, req)
	if err != nil {
		respondServiceError(c, err, "DiscardSession")
		return
	}
	c.JSON(http.StatusOK, discard)
}

func (h *TableHandler) ListDiscards(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "table")
	if !ok {
		return
	}
	discards, err := h.tableService.ListDiscards(c.Request.Context(), actor, id)
	if err != nil {
		respondServiceError(c, err, "ListDiscards")
		return
	}
	c.JSON(http.StatusOK, discards)
}
