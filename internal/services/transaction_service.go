package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lounge_backend/internal/events"
	"lounge_backend/internal/locker"
	"lounge_backend/internal/metrics"
	"lounge_backend/internal/models"
	"lounge_backend/internal/policy"
	"lounge_backend/internal/repositories"
	"lounge_backend/pkg/utils"
)

// --- Data Transfer Objects (DTOs) ---

type LineRequest struct {
	ItemID   int64   `json:"item_id" binding:"required"`
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
}

// CreateFromSessionRequest bills the closed session of a table. Lines are the table's recorded
// orders; ExtraSaleLines are added at checkout. Both are stored as ordinary lines.
type CreateFromSessionRequest struct {
	TableID        int64         `json:"table_id" binding:"required"`
	Lines          []LineRequest `json:"lines" binding:"dive"`
	ExtraSaleLines []LineRequest `json:"extra_sale_lines" binding:"dive"`
	Status         string        `json:"status"`
}

type CreateWalkInSaleRequest struct {
	CustomerID *int64        `json:"customer_id"`
	Lines      []LineRequest `json:"lines" binding:"required,min=1,dive"`
	Status     string        `json:"status"`
}

// SetStatusRequest optionally replaces the lines of a pending transaction before the transition.
type SetStatusRequest struct {
	Status string        `json:"status" binding:"required"`
	Lines  []LineRequest `json:"lines" binding:"omitempty,dive"`
}

type EditLinesRequest struct {
	Lines []LineRequest `json:"lines" binding:"required,dive"`
}

// TransactionService is the ledger of POS sales. Every status change posts or reverses stock.
type TransactionService interface {
	CreateFromSession(ctx context.Context, actor Actor, req CreateFromSessionRequest) (*models.Transaction, error)
	CreateWalkInSale(ctx context.Context, actor Actor, req CreateWalkInSaleRequest) (*models.Transaction, error)
	GetTransaction(ctx context.Context, actor Actor, id int64) (*models.Transaction, error)
	ListTransactions(ctx context.Context, actor Actor, filters models.TransactionFilters) ([]models.Transaction, int, error)
	SetStatus(ctx context.Context, actor Actor, id int64, req SetStatusRequest) (*models.Transaction, error)
	EditPendingLines(ctx context.Context, actor Actor, id int64, req EditLinesRequest) (*models.Transaction, error)
}

type transactionService struct {
	txnRepo    repositories.TransactionRepository
	tablesRepo repositories.TableRepository
	rulesRepo  repositories.PricingRuleRepository
	itemsRepo  repositories.InventoryRepository
	ledger     *stockLedger
	locks      *locker.Locker
	uow        *unitOfWork
	publisher  events.Publisher
	now        Clock
}

// NewTransactionService creates a new instance of TransactionService.
func NewTransactionService(
	txr repositories.TransactionRepository,
	tr repositories.TableRepository,
	prr repositories.PricingRuleRepository,
	ir repositories.InventoryRepository,
	smr repositories.StockMovementRepository,
	db *sql.DB,
	locks *locker.Locker,
	publisher events.Publisher,
	clock Clock,
) TransactionService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &transactionService{
		txnRepo:    txr,
		tablesRepo: tr,
		rulesRepo:  prr,
		itemsRepo:  ir,
		ledger:     &stockLedger{itemsRepo: ir, movementsRepo: smr},
		locks:      locks,
		uow:        &unitOfWork{db: db, locks: locks},
		publisher:  publisher,
		now:        clock,
	}
}

func parseTransactionStatus(status string) (models.TransactionStatus, error) {
	if status == "" {
		return models.TransactionPending, nil
	}
	if !models.IsValidTransactionStatus(status) {
		return "", fmt.Errorf("%w: unknown transaction status '%s'", ErrValidation, status)
	}
	return models.TransactionStatus(status), nil
}

// itemKeys returns one lock key per distinct item referenced by the given lines.
func itemKeys(lines []models.TransactionLine, reqs ...[]LineRequest) []string {
	keys := []string{}
	for _, l := range lines {
		keys = append(keys, locker.ItemKey(l.ItemID))
	}
	for _, group := range reqs {
		for _, r := range group {
			keys = append(keys, locker.ItemKey(r.ItemID))
		}
	}
	return keys
}

// buildLines prices requested lines. Items already recorded on the transaction keep their
// recorded price; other items are priced at their current unit price.
func (s *transactionService) buildLines(ctx context.Context, tx *sql.Tx, reqs []LineRequest, recorded map[int64]float64) ([]models.TransactionLine, error) {
	lines := make([]models.TransactionLine, 0, len(reqs))
	for _, r := range reqs {
		quantity := utils.RoundQuantity(r.Quantity)
		if quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity of item %d must be positive", ErrValidation, r.ItemID)
		}
		item, err := s.itemsRepo.GetByID(ctx, tx, r.ItemID)
		if err != nil {
			return nil, fromRepo(err, fmt.Sprintf("inventory item %d", r.ItemID))
		}
		price, ok := recorded[item.ID]
		if !ok {
			price = item.UnitPrice
		}
		lines = append(lines, models.TransactionLine{
			ItemID:          item.ID,
			Quantity:        quantity,
			UnitPriceAtSale: price,
			ItemName:        item.Name,
		})
	}
	return lines, nil
}

func (s *transactionService) CreateFromSession(ctx context.Context, actor Actor, req CreateFromSessionRequest) (*models.Transaction, error) {
	status, err := parseTransactionStatus(req.Status)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, policy.OpTransactionCreate, policy.ResourceState{TargetStatus: status}); err != nil {
		return nil, err
	}

	var txn *models.Transaction
	var movements []*models.StockMovement
	keys := append([]string{locker.TableKey(req.TableID)}, itemKeys(nil, req.Lines, req.ExtraSaleLines)...)
	err = s.uow.run(ctx, keys, func(tx *sql.Tx) error {
		table, err := s.tablesRepo.GetForUpdate(ctx, tx, req.TableID)
		if err != nil {
			return fromRepo(err, fmt.Sprintf("table %d", req.TableID))
		}
		if table.Status == models.TableStatusOn {
			return fmt.Errorf("%w: table %d is still running; stop the session first", ErrConflict, table.ID)
		}
		if !table.HasClosedSession() {
			return fmt.Errorf("%w: table %d has no closed session to bill", ErrConflict, table.ID)
		}
		rule, err := s.rulesRepo.GetByID(ctx, tx, table.PricingRuleID)
		if err != nil {
			return fromRepo(err, fmt.Sprintf("pricing rule %d", table.PricingRuleID))
		}
		quote, err := quoteSession(table, rule, *table.EndedAt)
		if err != nil {
			return err
		}
		if utils.RoundMoney(quote.Charges.Total) != utils.RoundMoney(table.AccruedCharge) {
			return fmt.Errorf("%w: table %d session was stopped at %.2f but now quotes %.2f",
				ErrConflict, table.ID, table.AccruedCharge, quote.Charges.Total)
		}

		lines, err := s.buildLines(ctx, tx, append(append([]LineRequest{}, req.Lines...), req.ExtraSaleLines...), nil)
		if err != nil {
			return err
		}

		now := s.now()
		txn = &models.Transaction{
			Lines:               lines,
			TableID:             &table.ID,
			CustomerID:          table.OccupantCustomerID,
			Status:              status,
			CreatedByOperatorID: actor.OperatorID,
			SessionBillingSnapshot: &models.BillingSnapshot{
				Quote:              quote,
				SessionChargeShare: quote.Charges.Total,
				LinkedOperatorID:   table.OpenedByOperatorID,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		txn.RecomputeTotal()
		txn.SessionBillingSnapshot.OriginalTotal = txn.Total

		if movements, err = s.insert(ctx, tx, txn, actor.OperatorID); err != nil {
			return err
		}
		table.ClearSession()
		table.UpdatedAt = now
		return fromRepo(s.tablesRepo.SaveSession(ctx, tx, table), fmt.Sprintf("table %d", table.ID))
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, txn, movements, "session", actor)
	return txn, nil
}

func (s *transactionService) CreateWalkInSale(ctx context.Context, actor Actor, req CreateWalkInSaleRequest) (*models.Transaction, error) {
	status, err := parseTransactionStatus(req.Status)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, policy.OpTransactionCreate, policy.ResourceState{TargetStatus: status}); err != nil {
		return nil, err
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: a sale needs at least one line", ErrValidation)
	}

	var txn *models.Transaction
	var movements []*models.StockMovement
	err = s.uow.run(ctx, itemKeys(nil, req.Lines), func(tx *sql.Tx) error {
		lines, err := s.buildLines(ctx, tx, req.Lines, nil)
		if err != nil {
			return err
		}
		now := s.now()
		txn = &models.Transaction{
			Lines:               lines,
			CustomerID:          req.CustomerID,
			Status:              status,
			CreatedByOperatorID: actor.OperatorID,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		txn.RecomputeTotal()
		movements, err = s.insert(ctx, tx, txn, actor.OperatorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, txn, movements, "walk_in", actor)
	return txn, nil
}

// insert stores a new transaction with its lines and, when it is created completed, posts its sales.
func (s *transactionService) insert(ctx context.Context, tx *sql.Tx, txn *models.Transaction, operatorID int64) ([]*models.StockMovement, error) {
	if _, err := s.txnRepo.Create(ctx, tx, txn); err != nil {
		return nil, err
	}
	if err := s.txnRepo.InsertLines(ctx, tx, txn.ID, txn.Lines); err != nil {
		return nil, fromRepo(err, "transaction line item")
	}
	if txn.Status != models.TransactionCompleted {
		return nil, nil
	}
	return s.ledger.postLines(ctx, tx, txn, models.MovementSale, fmt.Sprintf("Sale #%d", txn.ID), operatorID, txn.CreatedAt)
}

// committed runs the side effects of a successful unit of work.
func (s *transactionService) committed(ctx context.Context, txn *models.Transaction, movements []*models.StockMovement, source string, actor Actor) {
	for _, m := range movements {
		s.ledger.recorded(m)
	}
	metrics.TransactionsTotal.WithLabelValues(source, string(txn.Status)).Inc()
	utils.LogInfo("Transaction created", map[string]interface{}{
		"transaction_id": txn.ID,
		"source":         source,
		"status":         txn.Status,
		"total":          txn.Total,
		"table_id":       txn.TableID,
		"customer_id":    txn.CustomerID,
		"operator_id":    actor.OperatorID,
	})
	if txn.Status == models.TransactionCompleted {
		s.publishCompleted(ctx, txn, actor.OperatorID)
	}
}

// publishCompleted hands a paid transaction to the receipt printer. The financial record is
// already committed, so failures are only logged.
func (s *transactionService) publishCompleted(ctx context.Context, txn *models.Transaction, operatorID int64) {
	event := events.NewTransactionCompletedEvent(txn, operatorID, s.now())
	if err := s.publisher.PublishTransactionCompleted(ctx, event); err != nil {
		utils.LogError(err, "Failed to publish completed transaction", map[string]interface{}{
			"transaction_id": txn.ID,
		})
	}
}

func (s *transactionService) GetTransaction(ctx context.Context, actor Actor, id int64) (*models.Transaction, error) {
	if err := authorize(actor, policy.OpTransactionView, policy.ResourceState{}); err != nil {
		return nil, err
	}
	txn, err := s.txnRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fromRepo(err, fmt.Sprintf("transaction %d", id))
	}
	return txn, nil
}

func (s *transactionService) ListTransactions(ctx context.Context, actor Actor, filters models.TransactionFilters) ([]models.Transaction, int, error) {
	if err := authorize(actor, policy.OpTransactionView, policy.ResourceState{}); err != nil {
		return nil, 0, err
	}
	if filters.Status != nil && *filters.Status != "" && !models.IsValidTransactionStatus(*filters.Status) {
		return nil, 0, fmt.Errorf("%w: unknown transaction status '%s'", ErrValidation, *filters.Status)
	}
	if filters.Date != nil && *filters.Date != "" {
		if _, err := time.Parse("2006-01-02", *filters.Date); err != nil {
			return nil, 0, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
		}
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 20
	}
	return s.txnRepo.List(ctx, filters)
}

// withTransactionLocks holds the transaction lock, then the locks of every item on the
// transaction or in extra, then runs fn in a database transaction.
func (s *transactionService) withTransactionLocks(ctx context.Context, id int64, extra []LineRequest, check func(current *models.Transaction) error, fn func(tx *sql.Tx) error) error {
	return s.locks.WithLock(ctx, []string{locker.TxnKey(id)}, func() error {
		current, err := s.txnRepo.GetByID(ctx, nil, id)
		if err != nil {
			return fromRepo(err, fmt.Sprintf("transaction %d", id))
		}
		if err := check(current); err != nil {
			return err
		}
		return s.uow.run(ctx, itemKeys(current.Lines, extra), fn)
	})
}

// replaceLines swaps the lines of a pending transaction and recomputes its total.
func (s *transactionService) replaceLines(ctx context.Context, tx *sql.Tx, txn *models.Transaction, reqs []LineRequest, at time.Time) error {
	recorded := make(map[int64]float64, len(txn.Lines))
	for _, l := range txn.Lines {
		recorded[l.ItemID] = l.UnitPriceAtSale
	}
	lines, err := s.buildLines(ctx, tx, reqs, recorded)
	if err != nil {
		return err
	}
	if len(lines) == 0 && txn.SessionBillingSnapshot == nil {
		return fmt.Errorf("%w: a sale needs at least one line", ErrValidation)
	}
	if err := s.txnRepo.ReplaceLines(ctx, tx, txn.ID, lines); err != nil {
		return fromRepo(err, "transaction line item")
	}
	txn.Lines = lines
	txn.RecomputeTotal()
	txn.UpdatedAt = at
	return fromRepo(s.txnRepo.UpdateTotals(ctx, tx, txn), fmt.Sprintf("transaction %d", txn.ID))
}

func (s *transactionService) SetStatus(ctx context.Context, actor Actor, id int64, req SetStatusRequest) (*models.Transaction, error) {
	if !models.IsValidTransactionStatus(req.Status) {
		return nil, fmt.Errorf("%w: unknown transaction status '%s'", ErrValidation, req.Status)
	}
	target := models.TransactionStatus(req.Status)

	var txn *models.Transaction
	var movements []*models.StockMovement
	var from models.TransactionStatus
	check := func(current *models.Transaction) error {
		state := policy.ResourceState{TransactionStatus: current.Status, TargetStatus: target}
		if err := authorize(actor, policy.OpTransactionSetStatus, state); err != nil {
			return err
		}
		if current.Status == models.TransactionCompleted && target == models.TransactionCompleted {
			return fmt.Errorf("%w: transaction %d is already completed", ErrInvalidTransition, id)
		}
		if req.Lines != nil && current.Status != models.TransactionPending {
			return fmt.Errorf("%w: lines of completed transaction %d cannot be edited", ErrConflict, id)
		}
		return nil
	}
	err := s.withTransactionLocks(ctx, id, req.Lines, check, func(tx *sql.Tx) error {
		var err error
		txn, err = s.txnRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return fromRepo(err, fmt.Sprintf("transaction %d", id))
		}
		from = txn.Status
		now := s.now()
		if req.Lines != nil {
			if err := s.replaceLines(ctx, tx, txn, req.Lines, now); err != nil {
				return err
			}
		}

		switch {
		case from == target:
			return nil
		case target == models.TransactionCompleted:
			movements, err = s.ledger.postLines(ctx, tx, txn, models.MovementSale, fmt.Sprintf("Sale #%d", txn.ID), actor.OperatorID, now)
		default:
			movements, err = s.ledger.returnSales(ctx, tx, txn, fmt.Sprintf("Return: transaction #%d reopened", txn.ID), actor.OperatorID, now)
		}
		if err != nil {
			return err
		}
		txn.Status = target
		txn.UpdatedAt = now
		return fromRepo(s.txnRepo.UpdateStatus(ctx, tx, id, target, now), fmt.Sprintf("transaction %d", id))
	})
	if err != nil {
		return nil, err
	}

	for _, m := range movements {
		s.ledger.recorded(m)
	}
	if from == target {
		return txn, nil
	}
	metrics.TransitionsTotal.WithLabelValues(string(target)).Inc()
	utils.LogInfo("Transaction status changed", map[string]interface{}{
		"transaction_id": txn.ID,
		"from":           from,
		"to":             target,
		"total":          txn.Total,
		"operator_id":    actor.OperatorID,
	})
	if target == models.TransactionCompleted {
		s.publishCompleted(ctx, txn, actor.OperatorID)
	}
	return txn, nil
}

func (s *transactionService) EditPendingLines(ctx context.Context, actor Actor, id int64, req EditLinesRequest) (*models.Transaction, error) {
	if err := authorize(actor, policy.OpTransactionEditLines, policy.ResourceState{TransactionStatus: models.TransactionPending}); err != nil {
		return nil, err
	}

	var txn *models.Transaction
	check := func(current *models.Transaction) error {
		if current.Status != models.TransactionPending {
			return fmt.Errorf("%w: lines of completed transaction %d cannot be edited", ErrConflict, id)
		}
		return nil
	}
	err := s.withTransactionLocks(ctx, id, req.Lines, check, func(tx *sql.Tx) error {
		var err error
		txn, err = s.txnRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return fromRepo(err, fmt.Sprintf("transaction %d", id))
		}
		return s.replaceLines(ctx, tx, txn, req.Lines, s.now())
	})
	if err != nil {
		return nil, err
	}
	utils.LogInfo("Transaction lines replaced", map[string]interface{}{
		"transaction_id": txn.ID, "lines": len(txn.Lines), "total": txn.Total, "operator_id": actor.OperatorID,
	})
	return txn, nil
}
