package models

import "time"

// SalesReportItem is the completed sales of one item on one day.
type SalesReportItem struct {
	Date          string  `json:"date"` // YYYY-MM-DD, UTC
	ItemID        int64   `json:"item_id"`
	ItemName      string  `json:"item_name"`
	TotalQuantity float64 `json:"total_quantity"`
	TotalSales    float64 `json:"total_sales"`
}

// SalesReport summarizes completed transactions created in [StartDate, EndDate].
// SessionCharges is whatever part of the totals is not item lines.
type SalesReport struct {
	StartDate         string            `json:"start_date"`
	EndDate           string            `json:"end_date"`
	TransactionsCount int               `json:"transactions_count"`
	ItemSales         float64           `json:"item_sales"`
	SessionCharges    float64           `json:"session_charges"`
	Total             float64           `json:"total"`
	Items             []SalesReportItem `json:"items"`
}

// SoldLine is a line of a completed transaction, as read for reporting.
type SoldLine struct {
	TransactionID int64
	CreatedAt     time.Time
	ItemID        int64
	ItemName      string
	Quantity      float64
	UnitPrice     float64
}

// DashboardSummary holds key metrics for the dashboard.
type DashboardSummary struct {
	TablesInUse         int     `json:"tables_in_use"`
	PendingTransactions int     `json:"pending_transactions"`
	PendingTotal        float64 `json:"pending_total"`
	CompletedToday      int     `json:"completed_today"`
	SalesToday          float64 `json:"sales_today"`
	LowStockItems       int     `json:"low_stock_items"`
}

// ReportRequestParams holds common parameters for requesting reports.
type ReportRequestParams struct {
	StartDate string `form:"start_date" binding:"required"` // YYYY-MM-DD
	EndDate   string `form:"end_date" binding:"required"`   // YYYY-MM-DD, inclusive
	ItemID    *int64 `form:"item_id"`
}
