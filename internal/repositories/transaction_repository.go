package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lounge_backend/internal/models"
)

// TransactionRepository defines the database operations for POS transactions and their lines.
type TransactionRepository interface {
	Create(ctx context.Context, executor SQLExecutor, txn *models.Transaction) (int64, error)
	GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Transaction, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Transaction, error)
	List(ctx context.Context, filters models.TransactionFilters) ([]models.Transaction, int, error)
	UpdateStatus(ctx context.Context, executor SQLExecutor, id int64, status models.TransactionStatus, at time.Time) error
	UpdateCustomer(ctx context.Context, executor SQLExecutor, id int64, customerID *int64, at time.Time) error
	UpdateTotals(ctx context.Context, executor SQLExecutor, txn *models.Transaction) error

	// Line methods
	InsertLines(ctx context.Context, executor SQLExecutor, transactionID int64, lines []models.TransactionLine) error
	ReplaceLines(ctx context.Context, executor SQLExecutor, transactionID int64, lines []models.TransactionLine) error
}

type transactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository creates a new instance of TransactionRepository.
func NewTransactionRepository(db *sql.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

const transactionColumns = `t.id, t.table_id, t.customer_id, t.total, t.status, t.created_by_operator_id,
	t.session_billing_snapshot, t.created_at, t.updated_at`

func encodeSnapshot(s *models.BillingSnapshot) (interface{}, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding billing snapshot: %w", err)
	}
	return string(b), nil
}

func scanTransaction(row scanner, extra ...interface{}) (*models.Transaction, error) {
	t := &models.Transaction{Lines: []models.TransactionLine{}}
	var tableID, customerID sql.NullInt64
	var snapshot []byte
	dest := []interface{}{
		&t.ID, &tableID, &customerID, &t.Total, &t.Status, &t.CreatedByOperatorID,
		&snapshot, &t.CreatedAt, &t.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if tableID.Valid {
		t.TableID = &tableID.Int64
	}
	if customerID.Valid {
		t.CustomerID = &customerID.Int64
	}
	if len(snapshot) > 0 {
		t.SessionBillingSnapshot = &models.BillingSnapshot{}
		if err := json.Unmarshal(snapshot, t.SessionBillingSnapshot); err != nil {
			return nil, fmt.Errorf("decoding billing snapshot of transaction %d: %w", t.ID, err)
		}
	}
	return t, nil
}

func (r *transactionRepository) Create(ctx context.Context, executor SQLExecutor, txn *models.Transaction) (int64, error) {
	query := `INSERT INTO pos_transactions
	            (table_id, customer_id, total, status, created_by_operator_id, session_billing_snapshot, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          RETURNING id`
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	if txn.UpdatedAt.IsZero() {
		txn.UpdatedAt = txn.CreatedAt
	}
	snapshot, err := encodeSnapshot(txn.SessionBillingSnapshot)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	err = executor.QueryRowContext(ctx, query,
		nullInt64(txn.TableID), nullInt64(txn.CustomerID), txn.Total, string(txn.Status), txn.CreatedByOperatorID,
		snapshot, txn.CreatedAt, txn.UpdatedAt,
	).Scan(&txn.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: creating transaction: %v", ErrDatabaseError, err)
	}
	return txn.ID, nil
}

func (r *transactionRepository) GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Transaction, error) {
	if executor == nil {
		executor = r.db
	}
	return r.get(ctx, executor, id, "")
}

func (r *transactionRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Transaction, error) {
	return r.get(ctx, tx, id, rowLockClause(r.db))
}

func (r *transactionRepository) get(ctx context.Context, executor SQLExecutor, id int64, lock string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM pos_transactions t WHERE t.id = $1` + lock
	txn, err := scanTransaction(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting transaction by ID %d: %v", ErrDatabaseError, id, err)
	}

	lines, err := r.linesFor(ctx, executor, []int64{id})
	if err != nil {
		return nil, err
	}
	txn.Lines = append(txn.Lines, lines[id]...)
	return txn, nil
}

func (r *transactionRepository) List(ctx context.Context, filters models.TransactionFilters) ([]models.Transaction, int, error) {
	transactions := []models.Transaction{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + transactionColumns + `, COUNT(*) OVER() AS total_count FROM pos_transactions t`)

	where := &whereBuilder{}
	if filters.CustomerID != nil {
		where.add("t.customer_id = %s", *filters.CustomerID)
	}
	if filters.TableID != nil {
		where.add("t.table_id = %s", *filters.TableID)
	}
	if filters.Status != nil && *filters.Status != "" {
		where.add("t.status = %s", *filters.Status)
	}
	if filters.Date != nil && *filters.Date != "" {
		parsedDate, err := time.Parse("2006-01-02", *filters.Date)
		if err == nil {
			startOfDay := time.Date(parsedDate.Year(), parsedDate.Month(), parsedDate.Day(), 0, 0, 0, 0, time.UTC)
			where.add("t.created_at >= %s AND t.created_at < %s", startOfDay, startOfDay.AddDate(0, 0, 1))
		}
	}
	where.writeTo(&queryBuilder)
	queryBuilder.WriteString(" ORDER BY t.created_at DESC, t.id DESC")
	where.writePage(&queryBuilder, filters.Page, filters.PageSize)

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), where.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying transactions: %v", ErrDatabaseError, err)
	}
	ids := []int64{}
	for rows.Next() {
		txn, err := scanTransaction(rows, &totalCount)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("%w: scanning transaction: %v", ErrDatabaseError, err)
		}
		transactions = append(transactions, *txn)
		ids = append(ids, txn.ID)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: iterating transactions: %v", ErrDatabaseError, err)
	}

	// lines are loaded after the cursor is closed; sqlite runs on a single connection
	lines, err := r.linesFor(ctx, r.db, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range transactions {
		transactions[i].Lines = append(transactions[i].Lines, lines[transactions[i].ID]...)
	}
	return transactions, totalCount, nil
}

func (r *transactionRepository) linesFor(ctx context.Context, executor SQLExecutor, ids []int64) (map[int64][]models.TransactionLine, error) {
	result := make(map[int64][]models.TransactionLine, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `SELECT l.id, l.transaction_id, l.item_id, l.quantity, l.unit_price_at_sale, ii.name
	          FROM pos_transaction_lines l
	          JOIN inventory_items ii ON ii.id = l.item_id
	          WHERE l.transaction_id IN (` + strings.Join(placeholders, ", ") + `)
	          ORDER BY l.transaction_id, l.id`

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying transaction lines: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var l models.TransactionLine
		if err := rows.Scan(&l.ID, &l.TransactionID, &l.ItemID, &l.Quantity, &l.UnitPriceAtSale, &l.ItemName); err != nil {
			return nil, fmt.Errorf("%w: scanning transaction line: %v", ErrDatabaseError, err)
		}
		result[l.TransactionID] = append(result[l.TransactionID], l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating transaction lines: %v", ErrDatabaseError, err)
	}
	return result, nil
}

func (r *transactionRepository) UpdateStatus(ctx context.Context, executor SQLExecutor, id int64, status models.TransactionStatus, at time.Time) error {
	query := `UPDATE pos_transactions SET status = $1, updated_at = $2 WHERE id = $3`
	return r.exec(ctx, executor, id, "updating status of", query, string(status), at, id)
}

func (r *transactionRepository) UpdateCustomer(ctx context.Context, executor SQLExecutor, id int64, customerID *int64, at time.Time) error {
	query := `UPDATE pos_transactions SET customer_id = $1, updated_at = $2 WHERE id = $3`
	return r.exec(ctx, executor, id, "reassigning", query, nullInt64(customerID), at, id)
}

// UpdateTotals writes the total and the billing snapshot.
func (r *transactionRepository) UpdateTotals(ctx context.Context, executor SQLExecutor, txn *models.Transaction) error {
	snapshot, err := encodeSnapshot(txn.SessionBillingSnapshot)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	query := `UPDATE pos_transactions SET total = $1, session_billing_snapshot = $2, updated_at = $3 WHERE id = $4`
	return r.exec(ctx, executor, txn.ID, "updating totals of", query, txn.Total, snapshot, txn.UpdatedAt, txn.ID)
}

func (r *transactionRepository) exec(ctx context.Context, executor SQLExecutor, id int64, action, query string, args ...interface{}) error {
	result, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %s transaction ID %d: %v", ErrDatabaseError, action, id, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertLines stores lines for a transaction and fills in their IDs.
func (r *transactionRepository) InsertLines(ctx context.Context, executor SQLExecutor, transactionID int64, lines []models.TransactionLine) error {
	query := `INSERT INTO pos_transaction_lines (transaction_id, item_id, quantity, unit_price_at_sale)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id`
	for i := range lines {
		lines[i].TransactionID = transactionID
		err := executor.QueryRowContext(ctx, query,
			transactionID, lines[i].ItemID, lines[i].Quantity, lines[i].UnitPriceAtSale,
		).Scan(&lines[i].ID)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: item ID %d does not exist", ErrNotFound, lines[i].ItemID)
			}
			return fmt.Errorf("%w: creating line for transaction ID %d: %v", ErrDatabaseError, transactionID, err)
		}
	}
	return nil
}

func (r *transactionRepository) ReplaceLines(ctx context.Context, executor SQLExecutor, transactionID int64, lines []models.TransactionLine) error {
	if _, err := executor.ExecContext(ctx, `DELETE FROM pos_transaction_lines WHERE transaction_id = $1`, transactionID); err != nil {
		return fmt.Errorf("%w: deleting lines of transaction ID %d: %v", ErrDatabaseError, transactionID, err)
	}
	return r.InsertLines(ctx, executor, transactionID, lines)
}
