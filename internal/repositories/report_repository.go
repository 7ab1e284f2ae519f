package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"lounge_backend/internal/models"
)

// ReportRepository reads aggregates over the ledgers. It never writes.
type ReportRepository interface {
	Dashboard(ctx context.Context, dayStart, dayEnd time.Time) (*models.DashboardSummary, error)
	CompletedTotals(ctx context.Context, from, to time.Time) (count int, total float64, err error)
	CompletedLines(ctx context.Context, from, to time.Time, itemID *int64) ([]models.SoldLine, error)
}

type reportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Dashboard(ctx context.Context, dayStart, dayEnd time.Time) (*models.DashboardSummary, error) {
	summary := &models.DashboardSummary{}

	// Tables in use
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM game_tables WHERE is_active = $1 AND status = $2`,
		true, string(models.TableStatusOn)).Scan(&summary.TablesInUse)
	if err != nil {
		return nil, fmt.Errorf("%w: counting tables in use: %v", ErrDatabaseError, err)
	}

	// Open bills
	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(total), 0) FROM pos_transactions WHERE status = $1`,
		string(models.TransactionPending)).Scan(&summary.PendingTransactions, &summary.PendingTotal)
	if err != nil {
		return nil, fmt.Errorf("%w: counting pending transactions: %v", ErrDatabaseError, err)
	}

	summary.CompletedToday, summary.SalesToday, err = r.CompletedTotals(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inventory_items
	                                 WHERE is_stock_tracked = $1 AND on_hand_quantity <= low_stock_threshold`,
		true).Scan(&summary.LowStockItems)
	if err != nil {
		return nil, fmt.Errorf("%w: counting low stock items: %v", ErrDatabaseError, err)
	}
	return summary, nil
}

func (r *reportRepository) CompletedTotals(ctx context.Context, from, to time.Time) (int, float64, error) {
	var count int
	var total float64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(total), 0) FROM pos_transactions
	                                  WHERE status = $1 AND created_at >= $2 AND created_at < $3`,
		string(models.TransactionCompleted), from, to).Scan(&count, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: summing completed transactions: %v", ErrDatabaseError, err)
	}
	return count, total, nil
}

func (r *reportRepository) CompletedLines(ctx context.Context, from, to time.Time, itemID *int64) ([]models.SoldLine, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT t.id, t.created_at, l.item_id, i.name, l.quantity, l.unit_price_at_sale
		FROM pos_transaction_lines l
		JOIN pos_transactions t ON t.id = l.transaction_id
		JOIN inventory_items i ON i.id = l.item_id`)

	where := &whereBuilder{}
	where.add("t.status = %s", string(models.TransactionCompleted))
	where.add("t.created_at >= %s AND t.created_at < %s", from, to)
	if itemID != nil {
		where.add("l.item_id = %s", *itemID)
	}
	where.writeTo(&queryBuilder)
	queryBuilder.WriteString(" ORDER BY t.created_at, l.id")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), where.args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying sold lines: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	lines := []models.SoldLine{}
	for rows.Next() {
		var l models.SoldLine
		if err := rows.Scan(&l.TransactionID, &l.CreatedAt, &l.ItemID, &l.ItemName, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("%w: scanning sold line: %v", ErrDatabaseError, err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating sold lines: %v", ErrDatabaseError, err)
	}
	return lines, nil
}
