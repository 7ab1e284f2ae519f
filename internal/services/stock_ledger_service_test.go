package services

import (
	"context"
	"errors"
	"testing"

	"lounge_backend/internal/models"
	"lounge_backend/pkg/utils"
)

func TestPostOutRejectsShortfall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cola := env.item(t, "Cola", 3.5, 5)

	m, err := env.stock.Post(ctx, staff, PostStockRequest{ItemID: cola.ID, Kind: "out", Quantity: 3, Reason: "breakage"})
	if err != nil {
		t.Fatalf("post out: %v", err)
	}
	if m.Delta != -3 || m.BalanceBefore != 5 || m.BalanceAfter != 2 {
		t.Fatalf("unexpected movement %+v", m)
	}

	_, err = env.stock.Post(ctx, staff, PostStockRequest{ItemID: cola.ID, Kind: "out", Quantity: 3, Reason: "breakage"})
	var shortfall *InsufficientStockError
	if !errors.As(err, &shortfall) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if shortfall.Available != 2 || shortfall.Required != 3 || shortfall.ItemName != "Cola" {
		t.Fatalf("unexpected shortfall %+v", shortfall)
	}
	expectErr(t, err, ErrInsufficientStock)

	if got := env.onHand(t, cola.ID); got != 2 {
		t.Fatalf("rejected posting changed on-hand to %v", got)
	}
}

func TestStockConservation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chips := env.item(t, "Chips", 2, 10)

	postings := []PostStockRequest{
		{Kind: "in", Quantity: 4.25, Reason: "delivery"},
		{Kind: "out", Quantity: 1.5, Reason: "staff meal"},
		{Kind: "adjustment", Quantity: 11, Reason: "count"},
		{Kind: "out", Quantity: 0.333, Reason: "spoiled"},
		{Kind: "in", Quantity: 2, Reason: "delivery"},
		{Kind: "adjustment", Quantity: 0, Reason: "count"},
		{Kind: "in", Quantity: 7, Reason: "delivery"},
	}
	for i, p := range postings {
		p.ItemID = chips.ID
		if _, err := env.stock.Post(ctx, manager, p); err != nil {
			t.Fatalf("posting %d: %v", i, err)
		}
	}

	history, total, err := env.stock.History(ctx, staff, models.MovementFilters{ItemID: &chips.ID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if total != len(postings)+1 || len(history) != total {
		t.Fatalf("expected %d movements, got %d of %d", len(postings)+1, len(history), total)
	}

	// history is newest first
	var sum float64
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if utils.RoundQuantity(m.BalanceBefore+m.Delta) != m.BalanceAfter {
			t.Fatalf("movement %d breaks before+delta=after: %+v", m.ID, m)
		}
		if i < len(history)-1 && history[i+1].BalanceAfter != m.BalanceBefore {
			t.Fatalf("movement %d does not start from the previous balance", m.ID)
		}
		sum += m.Delta
	}
	onHand := env.onHand(t, chips.ID)
	if !approx(onHand, utils.RoundQuantity(sum), 1e-9) || onHand != history[0].BalanceAfter || onHand != 7 {
		t.Fatalf("on-hand %v, sum of deltas %v, latest balance %v", onHand, sum, history[0].BalanceAfter)
	}
}

func TestAdjustmentSetsAbsoluteLevel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	water := env.item(t, "Water", 1, 8)

	m, err := env.stock.Post(ctx, manager, PostStockRequest{ItemID: water.ID, Kind: "adjustment", Quantity: 3, Reason: "stocktake"})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if m.Delta != -5 || m.BalanceAfter != 3 {
		t.Fatalf("expected delta -5 to 3, got %+v", m)
	}

	_, err = env.stock.Post(ctx, manager, PostStockRequest{ItemID: water.ID, Kind: "adjustment", Quantity: -1, Reason: "stocktake"})
	expectErr(t, err, ErrValidation)
}

func TestPostValidationAndPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := env.item(t, "Juice", 2, 4)

	cases := map[string]struct {
		actor Actor
		req   PostStockRequest
		want  error
	}{
		"unknown kind":        {manager, PostStockRequest{ItemID: item.ID, Kind: "gift", Quantity: 1, Reason: "x"}, ErrValidation},
		"sale is ledger only": {admin, PostStockRequest{ItemID: item.ID, Kind: "sale", Quantity: 1, Reason: "x"}, ErrValidation},
		"zero quantity":       {manager, PostStockRequest{ItemID: item.ID, Kind: "in", Quantity: 0, Reason: "x"}, ErrValidation},
		"missing reason":      {manager, PostStockRequest{ItemID: item.ID, Kind: "in", Quantity: 1, Reason: " "}, ErrValidation},
		"unknown item":        {manager, PostStockRequest{ItemID: 999, Kind: "in", Quantity: 1, Reason: "x"}, ErrNotFound},
		"staff adjustment":    {staff, PostStockRequest{ItemID: item.ID, Kind: "adjustment", Quantity: 1, Reason: "x"}, ErrForbidden},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.stock.Post(ctx, tc.actor, tc.req)
			expectErr(t, err, tc.want)
		})
	}
	if got := env.onHand(t, item.ID); got != 4 {
		t.Fatalf("rejected postings changed on-hand to %v", got)
	}
}

func TestPostUntrackedItemIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	coffee, err := env.items.CreateItem(ctx, manager, CreateItemRequest{Name: "Coffee", UnitPrice: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	m, err := env.stock.Post(ctx, staff, PostStockRequest{ItemID: coffee.ID, Kind: "out", Quantity: 50, Reason: "x"})
	if err != nil || m != nil {
		t.Fatalf("expected a silent no-op, got %+v, %v", m, err)
	}
	history, _, err := env.stock.History(ctx, staff, models.MovementFilters{ItemID: &coffee.ID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("untracked items must not have movements, got %d", len(history))
	}
}
