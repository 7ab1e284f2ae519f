package models

import "time"

// InventoryItem is a sellable item. OnHandQuantity is a projection of the stock ledger and is only
// ever written as a side effect of a posting.
type InventoryItem struct {
	ID                int64     `json:"id" db:"id"`
	Name              string    `json:"name" db:"name"`
	UnitPrice         float64   `json:"unit_price" db:"unit_price"`
	IsStockTracked    bool      `json:"is_stock_tracked" db:"is_stock_tracked"`
	OnHandQuantity    float64   `json:"on_hand_quantity" db:"on_hand_quantity"`
	LowStockThreshold float64   `json:"low_stock_threshold" db:"low_stock_threshold"`
	Unit              string    `json:"unit" db:"unit"`
	IsLowStock        bool      `json:"is_low_stock"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// MovementKind classifies a stock movement.
type MovementKind string

const (
	MovementIn         MovementKind = "in"
	MovementOut        MovementKind = "out"
	MovementAdjustment MovementKind = "adjustment"
	MovementSale       MovementKind = "sale"
)

// IsValidMovementKind checks if the provided string names a MovementKind.
func IsValidMovementKind(kind string) bool {
	switch MovementKind(kind) {
	case MovementIn, MovementOut, MovementAdjustment, MovementSale:
		return true
	default:
		return false
	}
}

// StockMovement is an append-only ledger entry; BalanceAfter = BalanceBefore + Delta.
type StockMovement struct {
	ID                     int64        `json:"id" db:"id"`
	ItemID                 int64        `json:"item_id" db:"item_id"`
	Kind                   MovementKind `json:"kind" db:"kind"`
	Delta                  float64      `json:"delta" db:"delta"`
	BalanceBefore          float64      `json:"balance_before" db:"balance_before"`
	BalanceAfter           float64      `json:"balance_after" db:"balance_after"`
	Reason                 string       `json:"reason" db:"reason"`
	ReferenceTransactionID *int64       `json:"reference_transaction_id,omitempty" db:"reference_transaction_id"`
	OperatorID             int64        `json:"operator_id" db:"operator_id"`
	CreatedAt              time.Time    `json:"created_at" db:"created_at"`
	ItemName               string       `json:"item_name,omitempty"`
}

// InventoryItemFilters defines the available filters for listing items.
type InventoryItemFilters struct {
	LowStockOnly bool `form:"low_stock"`
	Page         int  `form:"page"`
	PageSize     int  `form:"page_size"`
}

// MovementFilters defines the available filters for the stock ledger history.
type MovementFilters struct {
	ItemID   *int64        `form:"item_id"`
	Kind     *MovementKind `form:"kind"`
	Page     int           `form:"page"`
	PageSize int           `form:"page_size"`
}
