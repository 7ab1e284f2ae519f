package models

import (
	"math"
	"time"
)

// TransactionStatus is the payment state of a POS transaction.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
)

// IsValidTransactionStatus checks if the provided string names a TransactionStatus.
func IsValidTransactionStatus(status string) bool {
	switch TransactionStatus(status) {
	case TransactionPending, TransactionCompleted:
		return true
	default:
		return false
	}
}

// TransactionLine is one item line of a sale. Quantity may be fractional after a split.
type TransactionLine struct {
	ID              int64   `json:"id" db:"id"`
	TransactionID   int64   `json:"transaction_id" db:"transaction_id"`
	ItemID          int64   `json:"item_id" db:"item_id"`
	Quantity        float64 `json:"quantity" db:"quantity"`
	UnitPriceAtSale float64 `json:"unit_price_at_sale" db:"unit_price_at_sale"`
	ItemName        string  `json:"item_name,omitempty"`
}

// LineTotal is quantity times the recorded unit price, in cents.
func (l TransactionLine) LineTotal() float64 {
	return math.Round(l.Quantity*l.UnitPriceAtSale*100) / 100
}

// Transaction is the POS sale record.
type Transaction struct {
	ID                     int64             `json:"id" db:"id"`
	Lines                  []TransactionLine `json:"lines"`
	TableID                *int64            `json:"table_id,omitempty" db:"table_id"`
	CustomerID             *int64            `json:"customer_id,omitempty" db:"customer_id"`
	Total                  float64           `json:"total" db:"total"`
	Status                 TransactionStatus `json:"status" db:"status"`
	CreatedByOperatorID    int64             `json:"created_by_operator_id" db:"created_by_operator_id"`
	SessionBillingSnapshot *BillingSnapshot  `json:"session_billing_snapshot,omitempty" db:"session_billing_snapshot"`
	CreatedAt              time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at" db:"updated_at"`
}

// LinesTotal sums the line totals.
func (t *Transaction) LinesTotal() float64 {
	var sum float64
	for _, l := range t.Lines {
		sum += l.LineTotal()
	}
	return math.Round(sum*100) / 100
}

// RecomputeTotal derives the total from the lines, adding the carried session charge when a
// snapshot is present.
func (t *Transaction) RecomputeTotal() {
	total := t.LinesTotal()
	if t.SessionBillingSnapshot != nil {
		t.SessionBillingSnapshot.ExtraLinesTotal = total
		total += t.SessionBillingSnapshot.SessionChargeShare
	}
	t.Total = math.Round(total*100) / 100
}

// BillingSnapshot is the typed replacement for an open-ended "extra data" blob. Quote is set
// for transactions billed from a table session; Split is set on both sides of a split.
type BillingSnapshot struct {
	Quote              *SessionQuote  `json:"quote,omitempty"`
	SessionChargeShare float64        `json:"session_charge_share"`
	ExtraLinesTotal    float64        `json:"extra_lines_total"`
	OriginalTotal      float64        `json:"original_total"`
	Split              *SplitMetadata `json:"split,omitempty"`
	LinkedOperatorID   *int64         `json:"linked_operator_id,omitempty"`
}

// SplitMetadata records how a transaction relates to the one it was split from or into.
type SplitMetadata struct {
	SourceTransactionID int64     `json:"source_transaction_id"`
	DerivedIDs          []int64   `json:"derived_transaction_ids,omitempty"`
	AmountMoved         float64   `json:"amount_moved"`
	FractionMoved       float64   `json:"fraction_moved"`
	SplitAt             time.Time `json:"split_at"`
}

// TransactionFilters defines the available filters for querying transactions.
type TransactionFilters struct {
	CustomerID *int64  `form:"customer_id"`
	TableID    *int64  `form:"table_id"`
	Status     *string `form:"status"`
	Date       *string `form:"date"` // Expected format YYYY-MM-DD
	Page       int     `form:"page"`
	PageSize   int     `form:"page_size"`
}
