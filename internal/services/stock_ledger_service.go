package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"lounge_backend/internal/locker"
	"lounge_backend/internal/metrics"
	"lounge_backend/internal/models"
	"lounge_backend/internal/policy"
	"lounge_backend/internal/repositories"
	"lounge_backend/pkg/utils"
)

// PostStockRequest is a manual stock posting. For adjustments Quantity is the new absolute level.
type PostStockRequest struct {
	ItemID   int64   `json:"item_id" binding:"required"`
	Kind     string  `json:"kind" binding:"required"`
	Quantity float64 `json:"quantity"`
	Reason   string  `json:"reason" binding:"required"`
}

// StockLedgerService is the only writer of on-hand quantities.
type StockLedgerService interface {
	// Post returns a nil movement when the item is not stock tracked.
	Post(ctx context.Context, actor Actor, req PostStockRequest) (*models.StockMovement, error)
	History(ctx context.Context, actor Actor, filters models.MovementFilters) ([]models.StockMovement, int, error)
}

type stockLedgerService struct {
	ledger        *stockLedger
	movementsRepo repositories.StockMovementRepository
	uow           *unitOfWork
	now           Clock
}

// NewStockLedgerService creates a new instance of StockLedgerService.
func NewStockLedgerService(
	ir repositories.InventoryRepository,
	smr repositories.StockMovementRepository,
	db *sql.DB,
	locks *locker.Locker,
	clock Clock,
) StockLedgerService {
	return &stockLedgerService{
		ledger:        &stockLedger{itemsRepo: ir, movementsRepo: smr},
		movementsRepo: smr,
		uow:           &unitOfWork{db: db, locks: locks},
		now:           clock,
	}
}

func (s *stockLedgerService) Post(ctx context.Context, actor Actor, req PostStockRequest) (*models.StockMovement, error) {
	if !models.IsValidMovementKind(req.Kind) {
		return nil, fmt.Errorf("%w: unknown movement kind '%s'", ErrValidation, req.Kind)
	}
	kind := models.MovementKind(req.Kind)
	if kind == models.MovementSale {
		return nil, fmt.Errorf("%w: sale movements are posted by transactions", ErrValidation)
	}
	if err := authorize(actor, policy.OpStockPost, policy.ResourceState{MovementKind: kind}); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrValidation)
	}

	var movement *models.StockMovement
	err := s.uow.run(ctx, []string{locker.ItemKey(req.ItemID)}, func(tx *sql.Tx) error {
		var err error
		movement, err = s.ledger.post(ctx, tx, posting{
			ItemID:     req.ItemID,
			Kind:       kind,
			Quantity:   req.Quantity,
			Reason:     reason,
			OperatorID: actor.OperatorID,
			At:         s.now(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if movement != nil {
		s.ledger.recorded(movement)
	}
	return movement, nil
}

func (s *stockLedgerService) History(ctx context.Context, actor Actor, filters models.MovementFilters) ([]models.StockMovement, int, error) {
	if err := authorize(actor, policy.OpStockView, policy.ResourceState{}); err != nil {
		return nil, 0, err
	}
	if filters.Kind != nil && *filters.Kind != "" && !models.IsValidMovementKind(string(*filters.Kind)) {
		return nil, 0, fmt.Errorf("%w: unknown movement kind '%s'", ErrValidation, *filters.Kind)
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 50
	}
	return s.movementsRepo.List(ctx, filters)
}

// posting is one request to the ledger.
type posting struct {
	ItemID     int64
	Kind       models.MovementKind
	Quantity   float64
	Reason     string
	Reference  *int64
	OperatorID int64
	At         time.Time
}

// stockLedger writes a movement and the item's new on-hand level in the caller's transaction.
// The caller must hold the item lock.
type stockLedger struct {
	itemsRepo     repositories.InventoryRepository
	movementsRepo repositories.StockMovementRepository
}

func (l *stockLedger) post(ctx context.Context, tx *sql.Tx, p posting) (*models.StockMovement, error) {
	quantity := utils.RoundQuantity(p.Quantity)
	switch p.Kind {
	case models.MovementAdjustment:
		if quantity < 0 {
			return nil, fmt.Errorf("%w: adjusted quantity cannot be negative", ErrValidation)
		}
	default:
		if quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
	}

	item, err := l.itemsRepo.GetForUpdate(ctx, tx, p.ItemID)
	if err != nil {
		return nil, fromRepo(err, fmt.Sprintf("inventory item %d", p.ItemID))
	}
	if !item.IsStockTracked {
		return nil, nil
	}

	before := item.OnHandQuantity
	var delta float64
	switch p.Kind {
	case models.MovementIn:
		delta = quantity
	case models.MovementOut, models.MovementSale:
		if quantity > before {
			metrics.InsufficientStockTotal.Inc()
			return nil, &InsufficientStockError{
				ItemID:    item.ID,
				ItemName:  item.Name,
				Required:  quantity,
				Available: before,
			}
		}
		delta = -quantity
	case models.MovementAdjustment:
		delta = utils.RoundQuantity(quantity - before)
	default:
		return nil, fmt.Errorf("%w: unknown movement kind '%s'", ErrValidation, p.Kind)
	}

	movement := &models.StockMovement{
		ItemID:                 item.ID,
		Kind:                   p.Kind,
		Delta:                  delta,
		BalanceBefore:          before,
		BalanceAfter:           utils.RoundQuantity(before + delta),
		Reason:                 p.Reason,
		ReferenceTransactionID: p.Reference,
		OperatorID:             p.OperatorID,
		CreatedAt:              p.At,
		ItemName:               item.Name,
	}
	if _, err := l.movementsRepo.Create(ctx, tx, movement); err != nil {
		return nil, err
	}
	if err := l.itemsRepo.SetOnHand(ctx, tx, item.ID, movement.BalanceAfter, p.At); err != nil {
		return nil, fromRepo(err, fmt.Sprintf("inventory item %d", item.ID))
	}
	return movement, nil
}

// recorded logs and counts a committed movement.
func (l *stockLedger) recorded(m *models.StockMovement) {
	metrics.StockPostingsTotal.WithLabelValues(string(m.Kind)).Inc()
	utils.LogInfo("Stock movement posted", map[string]interface{}{
		"movement_id":    m.ID,
		"item_id":        m.ItemID,
		"kind":           m.Kind,
		"delta":          m.Delta,
		"balance_after":  m.BalanceAfter,
		"operator_id":    m.OperatorID,
		"transaction_id": m.ReferenceTransactionID,
	})
}

// postLines posts one movement per tracked line, in line order.
func (l *stockLedger) postLines(ctx context.Context, tx *sql.Tx, txn *models.Transaction, kind models.MovementKind, reason string, operatorID int64, at time.Time) ([]*models.StockMovement, error) {
	movements := []*models.StockMovement{}
	for _, line := range txn.Lines {
		ref := txn.ID
		m, err := l.post(ctx, tx, posting{
			ItemID:     line.ItemID,
			Kind:       kind,
			Quantity:   line.Quantity,
			Reason:     reason,
			Reference:  &ref,
			OperatorID: operatorID,
			At:         at,
		})
		if err != nil {
			return nil, err
		}
		if m != nil {
			movements = append(movements, m)
		}
	}
	return movements, nil
}

// returnSales puts back what the transaction's sale movements took out, net of earlier returns,
// so a reopen reverses exactly what its completion posted.
func (l *stockLedger) returnSales(ctx context.Context, tx *sql.Tx, txn *models.Transaction, reason string, operatorID int64, at time.Time) ([]*models.StockMovement, error) {
	outstanding, err := l.movementsRepo.OutstandingSales(ctx, tx, txn.ID)
	if err != nil {
		return nil, fromRepo(err, fmt.Sprintf("stock movements of transaction %d", txn.ID))
	}
	movements := []*models.StockMovement{}
	for _, line := range txn.Lines {
		quantity := utils.RoundQuantity(outstanding[line.ItemID])
		delete(outstanding, line.ItemID)
		if quantity <= 0 {
			continue
		}
		ref := txn.ID
		m, err := l.post(ctx, tx, posting{
			ItemID:     line.ItemID,
			Kind:       models.MovementIn,
			Quantity:   quantity,
			Reason:     reason,
			Reference:  &ref,
			OperatorID: operatorID,
			At:         at,
		})
		if err != nil {
			return nil, err
		}
		if m == nil {
			utils.LogWarn("Return skipped for an item no longer stock-tracked", map[string]interface{}{
				"transaction_id": txn.ID, "item_id": line.ItemID, "quantity": quantity,
			})
			continue
		}
		movements = append(movements, m)
	}
	return movements, nil
}
