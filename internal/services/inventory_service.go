package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"lounge_backend/internal/locker"
	"lounge_backend/internal/models"
	"lounge_backend/internal/policy"
	"lounge_backend/internal/repositories"
	"lounge_backend/pkg/utils"
)

const openingBalanceReason = "Opening balance"

// CreateItemRequest creates a sellable item. OpeningQuantity is posted to the ledger as stock in.
type CreateItemRequest struct {
	Name              string  `json:"name" binding:"required"`
	UnitPrice         float64 `json:"unit_price" binding:"gte=0"`
	IsStockTracked    bool    `json:"is_stock_tracked"`
	LowStockThreshold float64 `json:"low_stock_threshold" binding:"gte=0"`
	Unit              string  `json:"unit"`
	OpeningQuantity   float64 `json:"opening_quantity" binding:"gte=0"`
}

// UpdateItemRequest replaces the descriptive fields of an item. Stock levels change only through the ledger.
type UpdateItemRequest struct {
	Name              string  `json:"name" binding:"required"`
	UnitPrice         float64 `json:"unit_price" binding:"gte=0"`
	IsStockTracked    bool    `json:"is_stock_tracked"`
	LowStockThreshold float64 `json:"low_stock_threshold" binding:"gte=0"`
	Unit              string  `json:"unit"`
}

type InventoryService interface {
	CreateItem(ctx context.Context, actor Actor, req CreateItemRequest) (*models.InventoryItem, error)
	GetItem(ctx context.Context, actor Actor, id int64) (*models.InventoryItem, error)
	ListItems(ctx context.Context, actor Actor, filters models.InventoryItemFilters) ([]models.InventoryItem, int, error)
	UpdateItem(ctx context.Context, actor Actor, id int64, req UpdateItemRequest) (*models.InventoryItem, error)
	DeleteItem(ctx context.Context, actor Actor, id int64) error
}

type inventoryService struct {
	itemsRepo repositories.InventoryRepository
	ledger    *stockLedger
	uow       *unitOfWork
	now       Clock
}

// NewInventoryService creates a new instance of InventoryService.
func NewInventoryService(
	ir repositories.InventoryRepository,
	smr repositories.StockMovementRepository,
	db *sql.DB,
	locks *locker.Locker,
	clock Clock,
) InventoryService {
	return &inventoryService{
		itemsRepo: ir,
		ledger:    &stockLedger{itemsRepo: ir, movementsRepo: smr},
		uow:       &unitOfWork{db: db, locks: locks},
		now:       clock,
	}
}

func normalizeUnit(unit string) string {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return "pcs"
	}
	return unit
}

func (s *inventoryService) CreateItem(ctx context.Context, actor Actor, req CreateItemRequest) (*models.InventoryItem, error) {
	if err := authorize(actor, policy.OpItemManage, policy.ResourceState{}); err != nil {
		return nil, err
	}
	if utils.IsEmpty(req.Name) {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if req.UnitPrice < 0 || req.LowStockThreshold < 0 || req.OpeningQuantity < 0 {
		return nil, fmt.Errorf("%w: price, threshold and opening quantity cannot be negative", ErrValidation)
	}
	if req.OpeningQuantity > 0 && !req.IsStockTracked {
		return nil, fmt.Errorf("%w: opening quantity needs a stock tracked item", ErrValidation)
	}

	now := s.now()
	item := &models.InventoryItem{
		Name:              strings.TrimSpace(req.Name),
		UnitPrice:         utils.RoundMoney(req.UnitPrice),
		IsStockTracked:    req.IsStockTracked,
		LowStockThreshold: utils.RoundQuantity(req.LowStockThreshold),
		Unit:              normalizeUnit(req.Unit),
		CreatedAt:         now,
	}

	var opening *models.StockMovement
	err := s.uow.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.itemsRepo.Create(ctx, tx, item); err != nil {
			return fromRepo(err, "inventory item")
		}
		if req.OpeningQuantity > 0 {
			var err error
			opening, err = s.ledger.post(ctx, tx, posting{
				ItemID:     item.ID,
				Kind:       models.MovementIn,
				Quantity:   req.OpeningQuantity,
				Reason:     openingBalanceReason,
				OperatorID: actor.OperatorID,
				At:         now,
			})
			if err != nil {
				return err
			}
			item.OnHandQuantity = opening.BalanceAfter
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opening != nil {
		s.ledger.recorded(opening)
	}
	item.IsLowStock = item.IsStockTracked && item.OnHandQuantity <= item.LowStockThreshold

	utils.LogInfo("Inventory item created", map[string]interface{}{"item_id": item.ID, "operator_id": actor.OperatorID})
	return item, nil
}

func (s *inventoryService) GetItem(ctx context.Context, actor Actor, id int64) (*models.InventoryItem, error) {
	if err := authorize(actor, policy.OpItemView, policy.ResourceState{}); err != nil {
		return nil, err
	}
	item, err := s.itemsRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fromRepo(err, fmt.Sprintf("inventory item %d", id))
	}
	return item, nil
}

func (s *inventoryService) ListItems(ctx context.Context, actor Actor, filters models.InventoryItemFilters) ([]models.InventoryItem, int, error) {
	if err := authorize(actor, policy.OpItemView, policy.ResourceState{}); err != nil {
		return nil, 0, err
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 50
	}
	return s.itemsRepo.List(ctx, filters)
}

func (s *inventoryService) UpdateItem(ctx context.Context, actor Actor, id int64, req UpdateItemRequest) (*models.InventoryItem, error) {
	if err := authorize(actor, policy.OpItemManage, policy.ResourceState{}); err != nil {
		return nil, err
	}
	if utils.IsEmpty(req.Name) {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if req.UnitPrice < 0 || req.LowStockThreshold < 0 {
		return nil, fmt.Errorf("%w: price and threshold cannot be negative", ErrValidation)
	}

	var item *models.InventoryItem
	err := s.uow.run(ctx, []string{locker.ItemKey(id)}, func(tx *sql.Tx) error {
		var err error
		item, err = s.itemsRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return fromRepo(err, fmt.Sprintf("inventory item %d", id))
		}
		if item.IsStockTracked && !req.IsStockTracked && item.OnHandQuantity != 0 {
			return fmt.Errorf("%w: item still has %g %s on hand; adjust it to zero before disabling tracking",
				ErrConflict, item.OnHandQuantity, item.Unit)
		}
		item.Name = strings.TrimSpace(req.Name)
		item.UnitPrice = utils.RoundMoney(req.UnitPrice)
		item.IsStockTracked = req.IsStockTracked
		item.LowStockThreshold = utils.RoundQuantity(req.LowStockThreshold)
		item.Unit = normalizeUnit(req.Unit)
		item.UpdatedAt = s.now()
		return fromRepo(s.itemsRepo.Update(ctx, tx, item), fmt.Sprintf("inventory item %d", id))
	})
	if err != nil {
		return nil, err
	}
	item.IsLowStock = item.IsStockTracked && item.OnHandQuantity <= item.LowStockThreshold
	return item, nil
}

func (s *inventoryService) DeleteItem(ctx context.Context, actor Actor, id int64) error {
	if err := authorize(actor, policy.OpItemManage, policy.ResourceState{}); err != nil {
		return err
	}
	return s.uow.run(ctx, []string{locker.ItemKey(id)}, func(tx *sql.Tx) error {
		if _, err := s.itemsRepo.GetForUpdate(ctx, tx, id); err != nil {
			return fromRepo(err, fmt.Sprintf("inventory item %d", id))
		}
		referenced, err := s.itemsRepo.IsReferenced(ctx, tx, id)
		if err != nil {
			return err
		}
		if referenced {
			return fmt.Errorf("%w: inventory item %d has stock movements or sales", ErrConflict, id)
		}
		return fromRepo(s.itemsRepo.Delete(ctx, tx, id), fmt.Sprintf("inventory item %d", id))
	})
}
