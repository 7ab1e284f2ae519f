package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lounge_backend/internal/locker"
	"lounge_backend/internal/metrics"
	"lounge_backend/internal/models"
	"lounge_backend/internal/policy"
	"lounge_backend/internal/pricing"
	"lounge_backend/internal/repositories"
	"lounge_backend/pkg/utils"
)

const DefaultDiscardWindow = 10 * time.Minute

// --- Data Transfer Objects (DTOs) ---

type CreateTableRequest struct {
	Name          string `json:"name" binding:"required"`
	PricingRuleID int64  `json:"pricing_rule_id" binding:"required"`
}

type UpdateTableRequest struct {
	Name          string `json:"name" binding:"required"`
	PricingRuleID int64  `json:"pricing_rule_id" binding:"required"`
}

type StartSessionRequest struct {
	CustomerID       *int64 `json:"customer_id"`
	ExtraPlayers     int    `json:"extra_players" binding:"gte=0"`
	ExtraControllers int    `json:"extra_controllers" binding:"gte=0"`
}

// AddExtrasRequest carries signed deltas; the resulting totals are clamped at zero.
type AddExtrasRequest struct {
	DeltaPlayers     int `json:"delta_players"`
	DeltaControllers int `json:"delta_controllers"`
}

type DiscardSessionRequest struct {
	Reason string  `json:"reason" binding:"required"`
	Note   *string `json:"note"`
}

// TableService runs the table session state machine.
type TableService interface {
	CreateTable(ctx context.Context, actor Actor, req CreateTableRequest) (*models.GameTable, error)
	GetTable(ctx context.Context, actor Actor, id int64) (*models.GameTable, error)
	ListTables(ctx context.Context, actor Actor, filters models.TableFilters) ([]models.GameTable, error)
	UpdateTable(ctx context.Context, actor Actor, id int64, req UpdateTableRequest) (*models.GameTable, error)
	DeleteTable(ctx context.Context, actor Actor, id int64) error

	StartSession(ctx context.Context, actor Actor, id int64, req StartSessionRequest) (*models.GameTable, error)
	Quote(ctx context.Context, actor Actor, id int64) (*models.SessionQuote, error)
	AddExtras(ctx context.Context, actor Actor, id int64, req AddExtrasRequest) (*models.GameTable, error)
	StopSession(ctx context.Context, actor Actor, id int64) (*models.SessionQuote, error)
	DiscardSession(ctx context.Context, actor Actor, id int64, req DiscardSessionRequest) (*models.SessionDiscard, error)
	ListDiscards(ctx context.Context, actor Actor, id int64) ([]models.SessionDiscard, error)
}

type tableService struct {
	tablesRepo    repositories.TableRepository
	rulesRepo     repositories.PricingRuleRepository
	db            *sql.DB
	locks         *locker.Locker
	uow           *unitOfWork
	now           Clock
	discardWindow time.Duration
}

// NewTableService creates a new instance of TableService.
func NewTableService(
	tr repositories.TableRepository,
	prr repositories.PricingRuleRepository,
	db *sql.DB,
	locks *locker.Locker,
	clock Clock,
	discardWindow time.Duration,
) TableService {
	if discardWindow <= 0 {
		discardWindow = DefaultDiscardWindow
	}
	return &tableService{
		tablesRepo:    tr,
		rulesRepo:     prr,
		db:            db,
		locks:         locks,
		uow:           &unitOfWork{db: db, locks: locks},
		now:           clock,
		discardWindow: discardWindow,
	}
}

// quoteSession evaluates the running or closed session of table at the given instant.
func quoteSession(table *models.GameTable, rule *models.PricingRule, at time.Time) (*models.SessionQuote, error) {
	if table.StartedAt == nil {
		return nil, fmt.Errorf("%w: table %d has no session", ErrConflict, table.ID)
	}
	charges, err := pricing.Evaluate(rule, pricing.ElapsedMinutes(*table.StartedAt, at), table.ExtraPlayers, table.ExtraControllers)
	if err != nil {
		return nil, fmt.Errorf("evaluating pricing rule %d: %w", rule.ID, err)
	}
	return &models.SessionQuote{
		TableID:          table.ID,
		PricingRuleID:    rule.ID,
		StartedAt:        *table.StartedAt,
		QuotedAt:         at,
		ElapsedMinutes:   charges.BilledMinutes,
		ExtraPlayers:     table.ExtraPlayers,
		ExtraControllers: table.ExtraControllers,
		Charges:          charges,
	}, nil
}

func (s *tableService) loadRule(ctx context.Context, executor repositories.SQLExecutor, id int64) (*models.PricingRule, error) {
	rule, err := s.rulesRepo.GetByID(ctx, executor, id)
	if err != nil {
		return nil, fromRepo(err, fmt.Sprintf("pricing rule %d", id))
	}
	return rule, nil
}

func (s *tableService) CreateTable(ctx context.Context, actor Actor, req CreateTableRequest) (*models.GameTable, error) {
	if err := authorize(actor, policy.OpTableManage, policy.ResourceState{}); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}

	table := &models.GameTable{Name: name, PricingRuleID: req.PricingRuleID, CreatedAt: s.now()}
	err := s.uow.inTx(ctx, func(tx *sql.Tx) error {
		rule, err := s.loadRule(ctx, tx, req.PricingRuleID)
		if err != nil {
			return err
		}
		table.PricingRule = rule
		_, err = s.tablesRepo.Create(ctx, tx, table)
		return fromRepo(err, "table")
	})
	if err != nil {
		return nil, err
	}
	utils.LogInfo("Table created", map[string]interface{}{"table_id": table.ID, "name": table.Name, "operator_id": actor.OperatorID})
	return table, nil
}

func (s *tableService) GetTable(ctx context.Context, actor Actor, id int64) (*models.GameTable, error) {
	if err := authorize(actor, policy.OpTableView, policy.ResourceState{}); err != nil {
		return nil, err
	}
	table, err := s.tablesRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fromRepo(err, fmt.Sprintf("table %d", id))
	}
	rule, err := s.loadRule(ctx, nil, table.PricingRuleID)
	if err != nil {
		return nil, err
	}
	table.PricingRule = rule
	if table.Status == models.TableStatusOn {
		if table.LiveQuote, err = quoteSession(table, rule, s.now()); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func (s *tableService) ListTables(ctx context.Context, actor Actor, filters models.TableFilters) ([]models.GameTable, error) {
	if err := authorize(actor, policy.OpTableView, policy.ResourceState{}); err != nil {
		return nil, err
	}
	if filters.Status != nil && *filters.Status != "" &&
		*filters.Status != models.TableStatusOn && *filters.Status != models.TableStatusOff {
		return nil, fmt.Errorf("%w: unknown table status '%s'", ErrValidation, *filters.Status)
	}
	tables, err := s.tablesRepo.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	if !filters.WithQuote {
		return tables, nil
	}

	now := s.now()
	rules := map[int64]*models.PricingRule{}
	for i := range tables {
		if tables[i].Status != models.TableStatusOn {
			continue
		}
		rule, ok := rules[tables[i].PricingRuleID]
		if !ok {
			if rule, err = s.loadRule(ctx, nil, tables[i].PricingRuleID); err != nil {
				return nil, err
			}
			rules[rule.ID] = rule
		}
		if tables[i].LiveQuote, err = quoteSession(&tables[i], rule, now); err != nil {
			return nil, err
		}
	}
	return tables, nil
}

func (s *tableService) UpdateTable(ctx context.Context, actor Actor, id int64, req UpdateTableRequest) (*models.GameTable, error) {
	if err := authorize(actor, policy.OpTableManage, policy.ResourceState{}); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}

	var table *models.GameTable
	err := s.uow.run(ctx, []string{locker.TableKey(id)}, func(tx *sql.Tx) error {
		var err error
		table, err = s.tablesRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return fromRepo(err, fmt.Sprintf("table %d", id))
		}
		// the rule of a session is fixed until it is billed
		if table.Status == models.TableStatusOn {
			return fmt.Errorf("%w: table %d has a running session", ErrConflict, id)
		}
		if table.HasClosedSession() {
			return fmt.Errorf("%w: table %d has an unbilled session", ErrConflict, id)
		}
		rule, err := s.loadRule(ctx, tx, req.PricingRuleID)
		if err != nil {
			return err
		}
		table.Name = name
		table.PricingRuleID = rule.ID
		table.PricingRule = rule
		table.UpdatedAt = s.now()
		return fromRepo(s.tablesRepo.UpdateDetails(ctx, tx, table), fmt.Sprintf("table %d", id))
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

func (s *tableService) DeleteTable(ctx context.Context, actor Actor, id int64) error {
	if err := authorize(actor, policy.OpTableManage, policy.ResourceState{}); err != nil {
		return err
	}
	return s.uow.run(ctx, []string{locker.TableKey(id)}, func(tx *sql.Tx) error {
		table, err := s.tablesRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return fromRepo(err, fmt.Sprintf("table %d", id))
		}
		if table.Status == models.TableStatusOn {
			return fmt.Errorf("%w: table %d has a running session", ErrConflict, id)
		}
		if table.HasClosedSession() {
			return fmt.Errorf("%w: table %d has an unbilled session", ErrConflict, id)
		}
		if err := s.tablesRepo.Deactivate(ctx, tx, id, s.now()); err != nil {
			return fromRepo(err, fmt.Sprintf("table %d", id))
		}
		utils.LogInfo("Table deleted", map[string]interface{}{"table_id": id, "operator_id": actor.OperatorID})
		return nil
	})
}

func (s *tableService) StartSession(ctx context.Context, actor Actor, id int64, req StartSessionRequest) (*models.GameTable, error) {
	if err := authorize(actor, policy.OpSessionStart, policy.ResourceState{}); err != nil {
		return nil, err
	}
	if req.ExtraPlayers < 0 || req.ExtraControllers < 0 {
		return nil, fmt.Errorf("%w: extras cannot be negative", ErrValidation)
	}

	var table *models.GameTable
	err := s.locks.WithLock(ctx, []string{locker.TableKey(id)}, func() error {
		current, err := s.tablesRepo.GetByID(ctx, nil, id)
		if err != nil {
			return fromRepo(err, fmt.Sprintf("table %d", id))
		}
		// the name cannot change while the table lock is held
		return s.uow.run(ctx, []string{locker.TableNameKey(current.Name)}, func(tx *sql.Tx) error {
			table, err = s.tablesRepo.GetForUpdate(ctx, tx, id)
			if err != nil {
				return fromRepo(err, fmt.Sprintf("table %d", id))
			}
			if table.Status == models.TableStatusOn {
				return fmt.Errorf("%w: table %d is already on", ErrConflict, id)
			}
			other, err := s.tablesRepo.FindOnByName(ctx, tx, table.Name, table.ID)
			if err == nil {
				return fmt.Errorf("%w: '%s' is already running as table %d", ErrConflict, table.Name, other.ID)
			}
			if !errors.Is(err, repositories.ErrNotFound) {
				return err
			}
			rule, err := s.loadRule(ctx, tx, table.PricingRuleID)
			if err != nil {
				return err
			}
			table.PricingRule = rule

			if table.HasClosedSession() {
				utils.LogWarn("Unbilled closed session overwritten by a new start", map[string]interface{}{
					"table_id": table.ID, "started_at": table.StartedAt, "accrued_charge": table.AccruedCharge,
				})
			}

			now := s.now()
			operatorID := actor.OperatorID
			table.ClearSession()
			table.Status = models.TableStatusOn
			table.StartedAt = &now
			table.OccupantCustomerID = req.CustomerID
			table.ExtraPlayers = req.ExtraPlayers
			table.ExtraControllers = req.ExtraControllers
			table.OpenedByOperatorID = &operatorID
			table.UpdatedAt = now
			return fromRepo(s.tablesRepo.SaveSession(ctx, tx, table), fmt.Sprintf("table %d", id))
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionsTotal.WithLabelValues("started").Inc()
	utils.LogInfo("Table session started", map[string]interface{}{
		"table_id": table.ID, "customer_id": table.OccupantCustomerID, "operator_id": actor.OperatorID,
	})
	return table, nil
}

func (s *tableService) Quote(ctx context.Context, actor Actor, id int64) (*models.SessionQuote, error) {
	if err := authorize(actor, policy.OpSessionQuote, policy.ResourceState{}); err != nil {
		return nil, err
	}
	table, err := s.tablesRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fromRepo(err, fmt.Sprintf("table %d", id))
	}
	if table.Status != models.TableStatusOn {
		return nil, fmt.Errorf("%w: table %d is off", ErrConflict, id)
	}
	rule, err := s.loadRule(ctx, nil, table.PricingRuleID)
	if err != nil {
		return nil, err
	}
	return quoteSession(table, rule, s.now())
}

func (s *tableService) AddExtras(ctx context.Context, actor Actor, id int64, req AddExtrasRequest) (*models.GameTable, error) {
	if err := authorize(actor, policy.OpSessionAddExtras, policy.ResourceState{}); err != nil {
		return nil, err
	}

	var table *models.GameTable
	err := s.uow.run(ctx, []string{locker.TableKey(id)}, func(tx *sql.Tx) error {
		var err error
		table, err = s.tablesRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return fromRepo(err, fmt.Sprintf("table %d", id))
		}
		if table.Status != models.TableStatusOn {
			return fmt.Errorf("%w: table %d is off", ErrConflict, id)
		}
		table.ExtraPlayers = max(0, table.ExtraPlayers+req.DeltaPlayers)
		table.ExtraControllers = max(0, table.ExtraControllers+req.DeltaControllers)
		table.UpdatedAt = s.now()
		return fromRepo(s.tablesRepo.SaveSession(ctx, tx, table), fmt.Sprintf("table %d", id))
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// StopSession closes the session and returns its final quote. Billing is a separate step.
func (s *tableService) StopSession(ctx context.Context, actor Actor, id int64) (*models.SessionQuote, error) {
	if err := authorize(actor, policy.OpSessionStop, policy.ResourceState{}); err != nil {
		return nil, err
	}

	var quote *models.SessionQuote
	err := s.uow.run(ctx, []string{locker.TableKey(id)}, func(tx *sql.Tx) error {
		table, err := s.tablesRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return fromRepo(err, fmt.Sprintf("table %d", id))
		}
		if table.Status != models.TableStatusOn {
			return fmt.Errorf("%w: table %d is off", ErrConflict, id)
		}
		rule, err := s.loadRule(ctx, tx, table.PricingRuleID)
		if err != nil {
			return err
		}

		now := s.now()
		if quote, err = quoteSession(table, rule, now); err != nil {
			return err
		}
		table.Status = models.TableStatusOff
		table.EndedAt = &now
		table.AccruedCharge = quote.Charges.Total
		table.UpdatedAt = now
		return fromRepo(s.tablesRepo.SaveSession(ctx, tx, table), fmt.Sprintf("table %d", id))
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionsTotal.WithLabelValues("stopped").Inc()
	metrics.SessionChargeTotal.Add(quote.Charges.Total)
	utils.LogInfo("Table session stopped", map[string]interface{}{
		"table_id": id, "billed_minutes": quote.ElapsedMinutes, "total": quote.Charges.Total, "operator_id": actor.OperatorID,
	})
	return quote, nil
}

// DiscardSession voids a session started within the discard window. No transaction is created.
func (s *tableService) DiscardSession(ctx context.Context, actor Actor, id int64, req DiscardSessionRequest) (*models.SessionDiscard, error) {
	if err := authorize(actor, policy.OpSessionDiscard, policy.ResourceState{}); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: a reason is required to discard a session", ErrValidation)
	}

	var discard *models.SessionDiscard
	err := s.uow.run(ctx, []string{locker.TableKey(id)}, func(tx *sql.Tx) error {
		table, err := s.tablesRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return fromRepo(err, fmt.Sprintf("table %d", id))
		}
		if table.Status != models.TableStatusOn {
			return fmt.Errorf("%w: table %d is off", ErrConflict, id)
		}
		now := s.now()
		if elapsed := now.Sub(*table.StartedAt); elapsed >= s.discardWindow {
			return fmt.Errorf("%w: session has run %s, discard window of %s has passed",
				ErrConflict, elapsed.Truncate(time.Second), s.discardWindow)
		}

		discard = &models.SessionDiscard{
			TableID:            table.ID,
			OccupantCustomerID: table.OccupantCustomerID,
			StartedAt:          *table.StartedAt,
			DiscardedAt:        now,
			Reason:             reason,
			Note:               utils.TrimmedOrNil(req.Note),
			OperatorID:         actor.OperatorID,
		}
		if _, err := s.tablesRepo.CreateDiscard(ctx, tx, discard); err != nil {
			return err
		}
		table.ClearSession()
		table.UpdatedAt = now
		return fromRepo(s.tablesRepo.SaveSession(ctx, tx, table), fmt.Sprintf("table %d", id))
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionsTotal.WithLabelValues("discarded").Inc()
	utils.LogInfo("Table session discarded", map[string]interface{}{
		"table_id": id, "reason": discard.Reason, "operator_id": actor.OperatorID,
	})
	return discard, nil
}

func (s *tableService) ListDiscards(ctx context.Context, actor Actor, id int64) ([]models.SessionDiscard, error) {
	if err := authorize(actor, policy.OpTableView, policy.ResourceState{}); err != nil {
		return nil, err
	}
	if _, err := s.tablesRepo.GetByID(ctx, nil, id); err != nil {
		return nil, fromRepo(err, fmt.Sprintf("table %d", id))
	}
	return s.tablesRepo.ListDiscards(ctx, id)
}
