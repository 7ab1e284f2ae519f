package handlers

import (
	"errors"
	"net/http"

	"lounge_backend/internal/middleware"
	"lounge_backend/internal/services"
	"lounge_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// actorOrAbort returns the authenticated caller, responding 401 when there is none.
func actorOrAbort(c *gin.Context) (services.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Operator not authenticated", ""))
	}
	return actor, ok
}

func idParam(c *gin.Context, what string) (int64, bool) {
	id, err := utils.StrToInt64(c.Param("id"))
	if err != nil || id <= 0 {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid "+what+" ID format", c.Param("id")))
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req interface{}, op string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.LogDebug(op+": Failed to bind JSON", map[string]interface{}{"error": err.Error()})
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload", err.Error()))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, filters interface{}) bool {
	if err := c.ShouldBindQuery(filters); err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid query parameters", err.Error()))
		return false
	}
	return true
}

// respondServiceError maps the service error taxonomy onto the API error envelope.
func respondServiceError(c *gin.Context, err error, op string) {
	var shortfall *services.InsufficientStockError
	switch {
	case errors.As(err, &shortfall):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeInsufficientStock, "Insufficient stock", err.Error()).
			WithData(gin.H{
				"item_id":   shortfall.ItemID,
				"item_name": shortfall.ItemName,
				"required":  shortfall.Required,
				"available": shortfall.Available,
			}))
	case errors.Is(err, services.ErrValidation):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Input validation failed", err.Error()))
	case errors.Is(err, services.ErrNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Resource not found", err.Error()))
	case errors.Is(err, services.ErrInvalidTransition):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeInvalidTransition, "Invalid status transition", err.Error()))
	case errors.Is(err, services.ErrConflict):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "Request conflicts with current state", err.Error()))
	case errors.Is(err, services.ErrForbidden):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "You do not have permission to perform this action", err.Error()))
	default:
		utils.LogError(err, op+": unexpected error")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Internal server error", ""))
	}
}

func pageDefaults(page, pageSize *int, size int) {
	if *page <= 0 {
		*page = 1
	}
	if *pageSize <= 0 {
		*pageSize = size
	}
}

func listResponse(data interface{}, total, page, pageSize int) gin.H {
	return gin.H{"data": data, "total": total, "page": page, "page_size": pageSize}
}
