// Package metrics holds the Prometheus collectors of the billing engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lounge_table_sessions_total",
			Help: "Table session state changes by outcome (started, stopped, discarded)",
		},
		[]string{"outcome"},
	)

	SessionChargeTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lounge_session_charge_total",
			Help: "Sum of table time charges of stopped sessions",
		},
	)

	StockPostingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lounge_stock_postings_total",
			Help: "Stock ledger movements written, by kind",
		},
		[]string{"kind"},
	)

	InsufficientStockTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lounge_insufficient_stock_total",
			Help: "Postings rejected because the item was short",
		},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lounge_transactions_total",
			Help: "Transactions created, by source and initial status",
		},
		[]string{"source", "status"},
	)

	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lounge_transaction_transitions_total",
			Help: "Transaction status transitions, by target status",
		},
		[]string{"to"},
	)

	SplitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lounge_transaction_splits_total",
			Help: "Transfers and splits of pending transactions, by kind",
		},
		[]string{"kind"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lounge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status_code"},
	)
)

func init() {
	prometheus.MustRegister(SessionsTotal)
	prometheus.MustRegister(SessionChargeTotal)
	prometheus.MustRegister(StockPostingsTotal)
	prometheus.MustRegister(InsufficientStockTotal)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(SplitsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}

// GinMiddleware observes request latency per route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
