package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lounge_backend/internal/models"
)

// PricingRuleRepository defines the database operations for pricing rules.
// Rules are immutable, so there is no update or delete.
type PricingRuleRepository interface {
	Create(ctx context.Context, executor SQLExecutor, rule *models.PricingRule) (int64, error)
	GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.PricingRule, error)
	List(ctx context.Context) ([]models.PricingRule, error)
}

type pricingRuleRepository struct {
	db *sql.DB
}

// NewPricingRuleRepository creates a new instance of PricingRuleRepository.
func NewPricingRuleRepository(db *sql.DB) PricingRuleRepository {
	return &pricingRuleRepository{db: db}
}

const pricingRuleColumns = `id, name, charge_mode, rate, half_hour_rate, hour_rate, threshold_minutes,
	included_players, included_controllers, extra_person_rate, extra_controller_rate, created_at`

func scanPricingRule(row scanner) (*models.PricingRule, error) {
	rule := &models.PricingRule{}
	var halfHourRate, hourRate sql.NullFloat64
	var threshold sql.NullInt64
	err := row.Scan(
		&rule.ID, &rule.Name, &rule.ChargeMode, &rule.Rate, &halfHourRate, &hourRate, &threshold,
		&rule.IncludedPlayers, &rule.IncludedControllers, &rule.ExtraPersonRate, &rule.ExtraControllerRate,
		&rule.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if rule.ChargeMode == models.ChargeFlexible {
		rule.Flexible = &models.FlexibleRate{
			HalfHourRate:     halfHourRate.Float64,
			HourRate:         hourRate.Float64,
			ThresholdMinutes: int(threshold.Int64),
		}
	}
	return rule, nil
}

func (r *pricingRuleRepository) Create(ctx context.Context, executor SQLExecutor, rule *models.PricingRule) (int64, error) {
	query := `INSERT INTO pricing_rules
	            (name, charge_mode, rate, half_hour_rate, hour_rate, threshold_minutes,
	             included_players, included_controllers, extra_person_rate, extra_controller_rate, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	          RETURNING id`
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	var rate, halfHourRate, hourRate sql.NullFloat64
	var threshold sql.NullInt64
	if rule.Rate != nil {
		rate = sql.NullFloat64{Float64: *rule.Rate, Valid: true}
	}
	if rule.Flexible != nil {
		halfHourRate = sql.NullFloat64{Float64: rule.Flexible.HalfHourRate, Valid: true}
		hourRate = sql.NullFloat64{Float64: rule.Flexible.HourRate, Valid: true}
		threshold = sql.NullInt64{Int64: int64(rule.Flexible.ThresholdMinutes), Valid: true}
	}

	err := executor.QueryRowContext(ctx, query,
		rule.Name, string(rule.ChargeMode), rate, halfHourRate, hourRate, threshold,
		rule.IncludedPlayers, rule.IncludedControllers, rule.ExtraPersonRate, rule.ExtraControllerRate,
		rule.CreatedAt,
	).Scan(&rule.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: creating pricing rule: %v", ErrDatabaseError, err)
	}
	return rule.ID, nil
}

func (r *pricingRuleRepository) GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.PricingRule, error) {
	if executor == nil {
		executor = r.db
	}
	query := `SELECT ` + pricingRuleColumns + ` FROM pricing_rules WHERE id = $1`
	rule, err := scanPricingRule(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting pricing rule by ID %d: %v", ErrDatabaseError, id, err)
	}
	return rule, nil
}

func (r *pricingRuleRepository) List(ctx context.Context) ([]models.PricingRule, error) {
	rules := []models.PricingRule{}
	rows, err := r.db.QueryContext(ctx, `SELECT `+pricingRuleColumns+` FROM pricing_rules ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying pricing rules: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		rule, err := scanPricingRule(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning pricing rule: %v", ErrDatabaseError, err)
		}
		rules = append(rules, *rule)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating pricing rules: %v", ErrDatabaseError, err)
	}
	return rules, nil
}
