package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"lounge_backend/internal/models"
)

// StockMovementRepository defines the database operations for the append-only stock ledger.
// There is deliberately no update or delete.
type StockMovementRepository interface {
	Create(ctx context.Context, executor SQLExecutor, movement *models.StockMovement) (int64, error)
	List(ctx context.Context, filters models.MovementFilters) ([]models.StockMovement, int, error)
	OutstandingSales(ctx context.Context, executor SQLExecutor, transactionID int64) (map[int64]float64, error)
}

type stockMovementRepository struct {
	db *sql.DB
}

// NewStockMovementRepository creates a new instance of StockMovementRepository.
func NewStockMovementRepository(db *sql.DB) StockMovementRepository {
	return &stockMovementRepository{db: db}
}

func (r *stockMovementRepository) Create(ctx context.Context, executor SQLExecutor, movement *models.StockMovement) (int64, error) {
	query := `INSERT INTO stock_movements
	          (item_id, kind, delta, balance_before, balance_after, reason, reference_transaction_id, operator_id, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          RETURNING id`
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	err := executor.QueryRowContext(ctx, query,
		movement.ItemID, string(movement.Kind), movement.Delta, movement.BalanceBefore, movement.BalanceAfter,
		movement.Reason, nullInt64(movement.ReferenceTransactionID), movement.OperatorID, movement.CreatedAt,
	).Scan(&movement.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: creating stock movement: %v", ErrDatabaseError, err)
	}
	return movement.ID, nil
}

// List returns movements newest first.
func (r *stockMovementRepository) List(ctx context.Context, filters models.MovementFilters) ([]models.StockMovement, int, error) {
	movements := []models.StockMovement{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT
	    sm.id, sm.item_id, sm.kind, sm.delta, sm.balance_before, sm.balance_after, sm.reason,
	    sm.reference_transaction_id, sm.operator_id, sm.created_at,
	    ii.name AS item_name,
	    COUNT(*) OVER() AS total_count
	  FROM stock_movements sm
	  JOIN inventory_items ii ON sm.item_id = ii.id`)

	where := &whereBuilder{}
	if filters.ItemID != nil {
		where.add("sm.item_id = %s", *filters.ItemID)
	}
	if filters.Kind != nil && *filters.Kind != "" {
		where.add("sm.kind = %s", string(*filters.Kind))
	}
	where.writeTo(&queryBuilder)
	queryBuilder.WriteString(" ORDER BY sm.id DESC")
	where.writePage(&queryBuilder, filters.Page, filters.PageSize)

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), where.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying stock movements: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.StockMovement
		var reference sql.NullInt64
		err := rows.Scan(
			&m.ID, &m.ItemID, &m.Kind, &m.Delta, &m.BalanceBefore, &m.BalanceAfter, &m.Reason,
			&reference, &m.OperatorID, &m.CreatedAt,
			&m.ItemName,
			&totalCount,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: scanning stock movement: %v", ErrDatabaseError, err)
		}
		if reference.Valid {
			m.ReferenceTransactionID = &reference.Int64
		}
		movements = append(movements, m)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating stock movements: %v", ErrDatabaseError, err)
	}
	return movements, totalCount, nil
}

// OutstandingSales returns, per item, the quantity the transaction's sale movements took out
// of stock that its return movements have not yet put back.
func (r *stockMovementRepository) OutstandingSales(ctx context.Context, executor SQLExecutor, transactionID int64) (map[int64]float64, error) {
	query := `SELECT item_id, -SUM(delta)
	          FROM stock_movements
	          WHERE reference_transaction_id = $1 AND kind IN ($2, $3)
	          GROUP BY item_id`
	rows, err := executor.QueryContext(ctx, query, transactionID, string(models.MovementSale), string(models.MovementIn))
	if err != nil {
		return nil, fmt.Errorf("%w: querying outstanding sales: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	outstanding := map[int64]float64{}
	for rows.Next() {
		var itemID int64
		var quantity float64
		if err := rows.Scan(&itemID, &quantity); err != nil {
			return nil, fmt.Errorf("%w: scanning outstanding sales: %v", ErrDatabaseError, err)
		}
		outstanding[itemID] = quantity
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating outstanding sales: %v", ErrDatabaseError, err)
	}
	return outstanding, nil
}
