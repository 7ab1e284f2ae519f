package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lounge_backend/internal/models"
)

// InventoryRepository defines the database operations for sellable items.
// on_hand_quantity is only written through SetOnHand, which the stock ledger calls.
type InventoryRepository interface {
	Create(ctx context.Context, executor SQLExecutor, item *models.InventoryItem) (int64, error)
	GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.InventoryItem, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.InventoryItem, error)
	List(ctx context.Context, filters models.InventoryItemFilters) ([]models.InventoryItem, int, error)
	Update(ctx context.Context, executor SQLExecutor, item *models.InventoryItem) error
	SetOnHand(ctx context.Context, executor SQLExecutor, id int64, quantity float64, at time.Time) error
	IsReferenced(ctx context.Context, executor SQLExecutor, id int64) (bool, error)
	Delete(ctx context.Context, executor SQLExecutor, id int64) error
}

type inventoryRepository struct {
	db *sql.DB
}

// NewInventoryRepository creates a new instance of InventoryRepository.
func NewInventoryRepository(db *sql.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

const inventoryColumns = `id, name, unit_price, is_stock_tracked, on_hand_quantity, low_stock_threshold, unit, created_at, updated_at`

func scanInventoryItem(row scanner, extra ...interface{}) (*models.InventoryItem, error) {
	item := &models.InventoryItem{}
	dest := []interface{}{
		&item.ID, &item.Name, &item.UnitPrice, &item.IsStockTracked, &item.OnHandQuantity,
		&item.LowStockThreshold, &item.Unit, &item.CreatedAt, &item.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	item.IsLowStock = item.IsStockTracked && item.OnHandQuantity <= item.LowStockThreshold
	return item, nil
}

func (r *inventoryRepository) Create(ctx context.Context, executor SQLExecutor, item *models.InventoryItem) (int64, error) {
	query := `INSERT INTO inventory_items
	            (name, unit_price, is_stock_tracked, on_hand_quantity, low_stock_threshold, unit, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          RETURNING id`
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.UpdatedAt = item.CreatedAt
	// stock always starts at zero; an opening balance is a ledger posting
	item.OnHandQuantity = 0

	err := executor.QueryRowContext(ctx, query,
		item.Name, item.UnitPrice, item.IsStockTracked, item.OnHandQuantity, item.LowStockThreshold, item.Unit,
		item.CreatedAt, item.UpdatedAt,
	).Scan(&item.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: inventory item '%s' already exists", ErrDuplicateKey, item.Name)
		}
		return 0, fmt.Errorf("%w: creating inventory item: %v", ErrDatabaseError, err)
	}
	return item.ID, nil
}

func (r *inventoryRepository) GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.InventoryItem, error) {
	if executor == nil {
		executor = r.db
	}
	return r.get(ctx, executor, id, "")
}

func (r *inventoryRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.InventoryItem, error) {
	return r.get(ctx, tx, id, rowLockClause(r.db))
}

func (r *inventoryRepository) get(ctx context.Context, executor SQLExecutor, id int64, lock string) (*models.InventoryItem, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory_items WHERE id = $1` + lock
	item, err := scanInventoryItem(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting inventory item by ID %d: %v", ErrDatabaseError, id, err)
	}
	return item, nil
}

func (r *inventoryRepository) List(ctx context.Context, filters models.InventoryItemFilters) ([]models.InventoryItem, int, error) {
	items := []models.InventoryItem{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + inventoryColumns + `, COUNT(*) OVER() AS total_count FROM inventory_items`)

	where := &whereBuilder{}
	if filters.LowStockOnly {
		where.add("is_stock_tracked = %s AND on_hand_quantity <= low_stock_threshold", true)
	}
	where.writeTo(&queryBuilder)
	queryBuilder.WriteString(" ORDER BY name, id")
	where.writePage(&queryBuilder, filters.Page, filters.PageSize)

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), where.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying inventory items: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanInventoryItem(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: scanning inventory item: %v", ErrDatabaseError, err)
		}
		items = append(items, *item)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating inventory items: %v", ErrDatabaseError, err)
	}
	return items, totalCount, nil
}

// Update changes the descriptive fields of an item. The stock level is left alone.
func (r *inventoryRepository) Update(ctx context.Context, executor SQLExecutor, item *models.InventoryItem) error {
	query := `UPDATE inventory_items
	          SET name = $1, unit_price = $2, is_stock_tracked = $3, low_stock_threshold = $4, unit = $5, updated_at = $6
	          WHERE id = $7`
	result, err := executor.ExecContext(ctx, query,
		item.Name, item.UnitPrice, item.IsStockTracked, item.LowStockThreshold, item.Unit, item.UpdatedAt, item.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: inventory item '%s' already exists", ErrDuplicateKey, item.Name)
		}
		return fmt.Errorf("%w: updating inventory item ID %d: %v", ErrDatabaseError, item.ID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *inventoryRepository) SetOnHand(ctx context.Context, executor SQLExecutor, id int64, quantity float64, at time.Time) error {
	query := `UPDATE inventory_items SET on_hand_quantity = $1, updated_at = $2 WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, quantity, at, id)
	if err != nil {
		return fmt.Errorf("%w: updating stock for item ID %d: %v", ErrDatabaseError, id, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsReferenced reports whether any movement or transaction line points at the item.
func (r *inventoryRepository) IsReferenced(ctx context.Context, executor SQLExecutor, id int64) (bool, error) {
	query := `SELECT
	            EXISTS (SELECT 1 FROM stock_movements WHERE item_id = $1)
	            OR EXISTS (SELECT 1 FROM pos_transaction_lines WHERE item_id = $1)`
	var referenced bool
	if err := executor.QueryRowContext(ctx, query, id).Scan(&referenced); err != nil {
		return false, fmt.Errorf("%w: checking references to item ID %d: %v", ErrDatabaseError, id, err)
	}
	return referenced, nil
}

func (r *inventoryRepository) Delete(ctx context.Context, executor SQLExecutor, id int64) error {
	result, err := executor.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: item ID %d is used by stock movements or transactions", ErrReferenced, id)
		}
		return fmt.Errorf("%w: deleting inventory item ID %d: %v", ErrDatabaseError, id, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
