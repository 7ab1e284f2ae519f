package services

import (
	"context"
	"testing"

	"lounge_backend/internal/models"
)

func TestCreateItemPostsOpeningBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := env.item(t, "Nachos", 4, 6)
	if item.OnHandQuantity != 6 || item.Unit != "pcs" {
		t.Fatalf("unexpected item %+v", item)
	}

	history, _, err := env.stock.History(ctx, staff, models.MovementFilters{ItemID: &item.ID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Kind != models.MovementIn || history[0].Reason != openingBalanceReason {
		t.Fatalf("expected one opening movement, got %+v", history)
	}

	_, err = env.items.CreateItem(ctx, manager, CreateItemRequest{Name: "Tea", UnitPrice: 1, OpeningQuantity: 3})
	expectErr(t, err, ErrValidation)
	_, err = env.items.CreateItem(ctx, staff, CreateItemRequest{Name: "Tea", UnitPrice: 1})
	expectErr(t, err, ErrForbidden)
}

func TestUpdateItemKeepsOnHand(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := env.item(t, "Lemonade", 2, 5)

	updated, err := env.items.UpdateItem(ctx, manager, item.ID, UpdateItemRequest{
		Name: "Lemonade XL", UnitPrice: 3, IsStockTracked: true, LowStockThreshold: 5, Unit: "bottle",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.OnHandQuantity != 5 || !updated.IsLowStock || updated.Unit != "bottle" {
		t.Fatalf("unexpected item after update %+v", updated)
	}

	_, err = env.items.UpdateItem(ctx, manager, item.ID, UpdateItemRequest{Name: "Lemonade XL", UnitPrice: 3})
	expectErr(t, err, ErrConflict)

	low, total, err := env.items.ListItems(ctx, staff, models.InventoryItemFilters{LowStockOnly: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(low) != 1 || low[0].ID != item.ID {
		t.Fatalf("expected the item in the low stock list, got %+v", low)
	}
}

func TestDeleteItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	used := env.item(t, "Peanuts", 1, 2)
	unused, err := env.items.CreateItem(ctx, manager, CreateItemRequest{Name: "Gum", UnitPrice: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	expectErr(t, env.items.DeleteItem(ctx, manager, used.ID), ErrConflict)
	if err := env.items.DeleteItem(ctx, manager, unused.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = env.items.GetItem(ctx, staff, unused.ID)
	expectErr(t, err, ErrNotFound)
}
