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

// TableRepository defines the database operations for game tables and their live session.
type TableRepository interface {
	Create(ctx context.Context, executor SQLExecutor, table *models.GameTable) (int64, error)
	GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.GameTable, error)
	// GetForUpdate reads the row and, on Postgres, locks it until the transaction ends.
	GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.GameTable, error)
	List(ctx context.Context, filters models.TableFilters) ([]models.GameTable, error)
	FindOnByName(ctx context.Context, executor SQLExecutor, name string, excludeID int64) (*models.GameTable, error)
	UpdateDetails(ctx context.Context, executor SQLExecutor, table *models.GameTable) error
	SaveSession(ctx context.Context, executor SQLExecutor, table *models.GameTable) error
	Deactivate(ctx context.Context, executor SQLExecutor, id int64, at time.Time) error

	CreateDiscard(ctx context.Context, executor SQLExecutor, discard *models.SessionDiscard) (int64, error)
	ListDiscards(ctx context.Context, tableID int64) ([]models.SessionDiscard, error)
}

type tableRepository struct {
	db *sql.DB
}

// NewTableRepository creates a new instance of TableRepository.
func NewTableRepository(db *sql.DB) TableRepository {
	return &tableRepository{db: db}
}

const tableColumns = `id, name, pricing_rule_id, status, occupant_customer_id, started_at, ended_at,
	accrued_charge, extra_players, extra_controllers, opened_by_operator_id, is_active, created_at, updated_at`

func scanTable(row scanner) (*models.GameTable, error) {
	t := &models.GameTable{}
	var occupant, operator sql.NullInt64
	var startedAt, endedAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.Name, &t.PricingRuleID, &t.Status, &occupant, &startedAt, &endedAt,
		&t.AccruedCharge, &t.ExtraPlayers, &t.ExtraControllers, &operator, &t.IsActive,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if occupant.Valid {
		t.OccupantCustomerID = &occupant.Int64
	}
	if operator.Valid {
		t.OpenedByOperatorID = &operator.Int64
	}
	if startedAt.Valid {
		v := startedAt.Time.UTC()
		t.StartedAt = &v
	}
	if endedAt.Valid {
		v := endedAt.Time.UTC()
		t.EndedAt = &v
	}
	return t, nil
}

func (r *tableRepository) Create(ctx context.Context, executor SQLExecutor, table *models.GameTable) (int64, error) {
	query := `INSERT INTO game_tables (name, pricing_rule_id, status, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id`
	if table.CreatedAt.IsZero() {
		table.CreatedAt = time.Now().UTC()
	}
	table.UpdatedAt = table.CreatedAt
	table.Status = models.TableStatusOff
	table.IsActive = true

	err := executor.QueryRowContext(ctx, query,
		table.Name, table.PricingRuleID, string(table.Status), table.IsActive, table.CreatedAt, table.UpdatedAt,
	).Scan(&table.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: table '%s' already exists for pricing rule %d", ErrDuplicateKey, table.Name, table.PricingRuleID)
		}
		return 0, fmt.Errorf("%w: creating table: %v", ErrDatabaseError, err)
	}
	return table.ID, nil
}

func (r *tableRepository) GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.GameTable, error) {
	if executor == nil {
		executor = r.db
	}
	return r.get(ctx, executor, id, "")
}

func (r *tableRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.GameTable, error) {
	return r.get(ctx, tx, id, rowLockClause(r.db))
}

func (r *tableRepository) get(ctx context.Context, executor SQLExecutor, id int64, lock string) (*models.GameTable, error) {
	query := `SELECT ` + tableColumns + ` FROM game_tables WHERE id = $1 AND is_active = $2` + lock
	table, err := scanTable(executor.QueryRowContext(ctx, query, id, true))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting table by ID %d: %v", ErrDatabaseError, id, err)
	}
	return table, nil
}

func (r *tableRepository) List(ctx context.Context, filters models.TableFilters) ([]models.GameTable, error) {
	tables := []models.GameTable{}

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + tableColumns + ` FROM game_tables`)

	where := &whereBuilder{}
	where.add("is_active = %s", true)
	if filters.Status != nil && *filters.Status != "" {
		where.add("status = %s", string(*filters.Status))
	}
	if filters.Name != nil && *filters.Name != "" {
		where.add("name = %s", *filters.Name)
	}
	where.writeTo(&queryBuilder)
	queryBuilder.WriteString(" ORDER BY name, id")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), where.args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying tables: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		table, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning table: %v", ErrDatabaseError, err)
		}
		tables = append(tables, *table)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating tables: %v", ErrDatabaseError, err)
	}
	return tables, nil
}

// FindOnByName returns another active table with the same physical name that is currently On.
func (r *tableRepository) FindOnByName(ctx context.Context, executor SQLExecutor, name string, excludeID int64) (*models.GameTable, error) {
	query := `SELECT ` + tableColumns + ` FROM game_tables
	          WHERE name = $1 AND id <> $2 AND status = $3 AND is_active = $4
	          ORDER BY id LIMIT 1`
	table, err := scanTable(executor.QueryRowContext(ctx, query, name, excludeID, string(models.TableStatusOn), true))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: looking up running table named '%s': %v", ErrDatabaseError, name, err)
	}
	return table, nil
}

func (r *tableRepository) UpdateDetails(ctx context.Context, executor SQLExecutor, table *models.GameTable) error {
	query := `UPDATE game_tables SET name = $1, pricing_rule_id = $2, updated_at = $3
	          WHERE id = $4 AND is_active = $5`
	result, err := executor.ExecContext(ctx, query, table.Name, table.PricingRuleID, table.UpdatedAt, table.ID, true)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: table '%s' already exists for pricing rule %d", ErrDuplicateKey, table.Name, table.PricingRuleID)
		}
		return fmt.Errorf("%w: updating table ID %d: %v", ErrDatabaseError, table.ID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveSession writes the status and every session field of the table.
func (r *tableRepository) SaveSession(ctx context.Context, executor SQLExecutor, table *models.GameTable) error {
	query := `UPDATE game_tables
	          SET status = $1, occupant_customer_id = $2, started_at = $3, ended_at = $4,
	              accrued_charge = $5, extra_players = $6, extra_controllers = $7,
	              opened_by_operator_id = $8, updated_at = $9
	          WHERE id = $10 AND is_active = $11`
	result, err := executor.ExecContext(ctx, query,
		string(table.Status), nullInt64(table.OccupantCustomerID), nullTime(table.StartedAt), nullTime(table.EndedAt),
		table.AccruedCharge, table.ExtraPlayers, table.ExtraControllers,
		nullInt64(table.OpenedByOperatorID), table.UpdatedAt, table.ID, true,
	)
	if err != nil {
		return fmt.Errorf("%w: saving session for table ID %d: %v", ErrDatabaseError, table.ID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a table; transactions keep pointing at the row.
func (r *tableRepository) Deactivate(ctx context.Context, executor SQLExecutor, id int64, at time.Time) error {
	query := `UPDATE game_tables SET is_active = $1, updated_at = $2 WHERE id = $3 AND is_active = $4`
	result, err := executor.ExecContext(ctx, query, false, at, id, true)
	if err != nil {
		return fmt.Errorf("%w: deleting table ID %d: %v", ErrDatabaseError, id, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *tableRepository) CreateDiscard(ctx context.Context, executor SQLExecutor, discard *models.SessionDiscard) (int64, error) {
	query := `INSERT INTO table_session_discards
	            (table_id, occupant_customer_id, started_at, discarded_at, reason, note, operator_id)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING id`
	err := executor.QueryRowContext(ctx, query,
		discard.TableID, nullInt64(discard.OccupantCustomerID), discard.StartedAt, discard.DiscardedAt,
		discard.Reason, nullString(discard.Note), discard.OperatorID,
	).Scan(&discard.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: recording discarded session for table ID %d: %v", ErrDatabaseError, discard.TableID, err)
	}
	return discard.ID, nil
}

func (r *tableRepository) ListDiscards(ctx context.Context, tableID int64) ([]models.SessionDiscard, error) {
	discards := []models.SessionDiscard{}
	query := `SELECT id, table_id, occupant_customer_id, started_at, discarded_at, reason, note, operator_id
	          FROM table_session_discards
	          WHERE table_id = $1
	          ORDER BY discarded_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, tableID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying discarded sessions: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var d models.SessionDiscard
		var occupant sql.NullInt64
		var note sql.NullString
		if err := rows.Scan(&d.ID, &d.TableID, &occupant, &d.StartedAt, &d.DiscardedAt, &d.Reason, &note, &d.OperatorID); err != nil {
			return nil, fmt.Errorf("%w: scanning discarded session: %v", ErrDatabaseError, err)
		}
		if occupant.Valid {
			d.OccupantCustomerID = &occupant.Int64
		}
		if note.Valid {
			d.Note = &note.String
		}
		discards = append(discards, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating discarded sessions: %v", ErrDatabaseError, err)
	}
	return discards, nil
}
