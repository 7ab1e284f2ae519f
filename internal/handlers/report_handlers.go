package handlers

import (
	"net/http"

	"lounge_backend/internal/models"
	"lounge_backend/internal/services"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	reportService services.ReportService
}

func NewReportHandler(s services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: s}
}

// GetDashboardSummary provides a summary of key metrics for the dashboard.
func (h *ReportHandler) GetDashboardSummary(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	summary, err := h.reportService.Dashboard(c.Request.Context(), actor)
	if err != nil {
		respondServiceError(c, err, "GetDashboardSummary")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetSalesReport returns completed sales per day and item for start_date..end_date.
func (h *ReportHandler) GetSalesReport(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var params models.ReportRequestParams
	if !bindQuery(c, &params) {
		return
	}
	report, err := h.reportService.SalesReport(c.Request.Context(), actor, params)
	if err != nil {
		respondServiceError(c, err, "GetSalesReport")
		return
	}
	c.JSON(http.StatusOK, report)
}
