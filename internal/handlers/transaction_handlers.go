package handlers

import (
	"net/http"

	"lounge_backend/internal/models"
	"lounge_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// TransactionHandler holds the transaction ledger and split services.
type TransactionHandler struct {
	transactionService services.TransactionService
	splitService       services.SplitService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(ts services.TransactionService, ss services.SplitService) *TransactionHandler {
	return &TransactionHandler{transactionService: ts, splitService: ss}
}

// CreateFromSession bills the closed session of a table.
func (h *TransactionHandler) CreateFromSession(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req services.CreateFromSessionRequest
	if !bindJSON(c, &req, "CreateFromSession") {
		return
	}
	txn, err := h.transactionService.CreateFromSession(c.Request.Context(), actor, req)
	if err != nil {
		respondServiceError(c, err, "CreateFromSession")
		return
	}
	c.JSON(http.StatusCreated, txn)
}

func (h *TransactionHandler) CreateWalkInSale(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req services.CreateWalkInSaleRequest
	if !bindJSON(c, &req, "CreateWalkInSale") {
		return
	}
	txn, err := h.transactionService.CreateWalkInSale(c.Request.Context(), actor, req)
	if err != nil {
		respondServiceError(c, err, "CreateWalkInSale")
		return
	}
	c.JSON(http.StatusCreated, txn)
}

// ListTransactions supports ?customer_id=&table_id=&status=&date=YYYY-MM-DD&page=&page_size=
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var filters models.TransactionFilters
	if !bindQuery(c, &filters) {
		return
	}
	pageDefaults(&filters.Page, &filters.PageSize, 20)

	txns, total, err := h.transactionService.ListTransactions(c.Request.Context(), actor, filters)
	if err != nil {
		respondServiceError(c, err, "ListTransactions")
		return
	}
	c.JSON(http.StatusOK, listResponse(txns, total, filters.Page, filters.PageSize))
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "transaction")
	if !ok {
		return
	}
	txn, err := h.transactionService.GetTransaction(c.Request.Context(), actor, id)
	if err != nil {
		respondServiceError(c, err, "GetTransaction")
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h *TransactionHandler) SetStatus(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "transaction")
	if !ok {
		return
	}
	var req services.SetStatusRequest
	if !bindJSON(c, &req, "SetStatus") {
		return
	}
	txn, err := h.transactionService.SetStatus(c.Request.Context(), actor, id, req)
	if err != nil {
		respondServiceError(c, err, "SetStatus")
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h *TransactionHandler) EditLines(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "transaction")
	if !ok {
		return
	}
	var req services.EditLinesRequest
	if !bindJSON(c, &req, "EditLines") {
		return
	}
	txn, err := h.transactionService.EditPendingLines(c.Request.Context(), actor, id, req)
	if err != nil {
		respondServiceError(c, err, "EditLines")
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h *TransactionHandler) TransferFull(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "transaction")
	if !ok {
		return
	}
	var req services.TransferFullRequest
	if !bindJSON(c, &req, "TransferFull") {
		return
	}
	result, err := h.splitService.TransferFull(c.Request.Context(), actor, id, req)
	if err != nil {
		respondServiceError(c, err, "TransferFull")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *TransactionHandler) TransferPartial(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "transaction")
	if !ok {
		return
	}
	var req services.TransferPartialRequest
	if !bindJSON(c, &req, "TransferPartial") {
		return
	}
	result, err := h.splitService.TransferPartial(c.Request.Context(), actor, id, req)
	if err != nil {
		respondServiceError(c, err, "TransferPartial")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *TransactionHandler) SplitEvenly(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "transaction")
	if !ok {
		return
	}
	var req services.SplitEvenlyRequest
	if !bindJSON(c, &req, "SplitEvenly") {
		return
	}
	result, err := h.splitService.SplitEvenly(c.Request.Context(), actor, id, req)
	if err != nil {
		respondServiceError(c, err, "SplitEvenly")
		return
	}
	c.JSON(http.StatusOK, result)
}
