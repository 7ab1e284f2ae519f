package services

import (
	"context"
	"testing"
	"time"

	"lounge_backend/internal/models"
)

func TestSessionBilledPerMinute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	table := env.table(t, "Snooker 1", env.perMinuteRule(t, 8).ID)

	if _, err := env.tables.StartSession(ctx, staff, table.ID, StartSessionRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Advance(12*time.Minute + 30*time.Second)

	quote, err := env.tables.StopSession(ctx, staff, table.ID)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if quote.Charges.BaseCharge != 104 || quote.ElapsedMinutes != 13 {
		t.Fatalf("expected 13 billed minutes for 104, got %d for %v", quote.ElapsedMinutes, quote.Charges.BaseCharge)
	}

	got, err := env.tables.GetTable(ctx, staff, table.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.TableStatusOff || !got.HasClosedSession() || got.AccruedCharge != 104 {
		t.Fatalf("expected a closed session worth 104, got %+v", got)
	}
	if got.LiveQuote != nil {
		t.Fatalf("off table must not carry a live quote")
	}
}

func TestSessionBilledFlexible(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rule := env.rule(t, CreatePricingRuleRequest{
		ChargeMode: string(models.ChargeFlexible),
		Flexible:   &models.FlexibleRate{HalfHourRate: 400, HourRate: 600, ThresholdMinutes: 40},
	})
	table := env.table(t, "PS5 A", rule.ID)

	if _, err := env.tables.StartSession(ctx, staff, table.ID, StartSessionRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Advance(40 * time.Minute)
	quote, err := env.tables.Quote(ctx, staff, table.ID)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Charges.BaseCharge != 400 {
		t.Fatalf("expected grace rate 400 at 40m, got %v", quote.Charges.BaseCharge)
	}

	env.clock.Advance(5 * time.Minute)
	quote, err = env.tables.StopSession(ctx, staff, table.ID)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if quote.Charges.BaseCharge != 600 {
		t.Fatalf("expected 600 at 45m, got %v", quote.Charges.BaseCharge)
	}
}

func TestStartRejectsDoubleBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.table(t, "Pool 3", env.perMinuteRule(t, 8).ID)
	b := env.table(t, "Pool 3", env.perMinuteRule(t, 10).ID)

	if _, err := env.tables.StartSession(ctx, staff, a.ID, StartSessionRequest{}); err != nil {
		t.Fatalf("start a: %v", err)
	}
	_, err := env.tables.StartSession(ctx, staff, b.ID, StartSessionRequest{})
	expectErr(t, err, ErrConflict)

	_, err = env.tables.StartSession(ctx, staff, a.ID, StartSessionRequest{})
	expectErr(t, err, ErrConflict)

	if _, err := env.tables.StopSession(ctx, staff, a.ID); err != nil {
		t.Fatalf("stop a: %v", err)
	}
	if _, err := env.tables.StartSession(ctx, staff, b.ID, StartSessionRequest{}); err != nil {
		t.Fatalf("start b after a stopped: %v", err)
	}
}

func TestCreateTableRejectsDuplicateNameAndRule(t *testing.T) {
	env := newTestEnv(t)
	rule := env.perMinuteRule(t, 8)
	env.table(t, "Pool 1", rule.ID)

	_, err := env.tables.CreateTable(context.Background(), manager, CreateTableRequest{Name: "Pool 1", PricingRuleID: rule.ID})
	expectErr(t, err, ErrConflict)

	_, err = env.tables.CreateTable(context.Background(), manager, CreateTableRequest{Name: "Pool 2", PricingRuleID: 999})
	expectErr(t, err, ErrNotFound)
}

func TestDiscardWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := int64(77)
	table := env.table(t, "Snooker 2", env.perMinuteRule(t, 8).ID)

	if _, err := env.tables.StartSession(ctx, staff, table.ID, StartSessionRequest{CustomerID: &customer}); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Advance(9*time.Minute + 59*time.Second)

	_, err := env.tables.DiscardSession(ctx, staff, table.ID, DiscardSessionRequest{Reason: "  "})
	expectErr(t, err, ErrValidation)

	discard, err := env.tables.DiscardSession(ctx, staff, table.ID, DiscardSessionRequest{Reason: "wrong table"})
	if err != nil {
		t.Fatalf("discard at 9m59s: %v", err)
	}
	if discard.OccupantCustomerID == nil || *discard.OccupantCustomerID != customer || discard.Note != nil {
		t.Fatalf("unexpected discard record %+v", discard)
	}

	got, err := env.tables.GetTable(ctx, staff, table.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.TableStatusOff || got.StartedAt != nil || got.OccupantCustomerID != nil {
		t.Fatalf("discard must reset the session, got %+v", got)
	}

	if _, err := env.tables.StartSession(ctx, staff, table.ID, StartSessionRequest{}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	env.clock.Advance(10 * time.Minute)
	_, err = env.tables.DiscardSession(ctx, staff, table.ID, DiscardSessionRequest{Reason: "too late"})
	expectErr(t, err, ErrConflict)

	discards, err := env.tables.ListDiscards(ctx, staff, table.ID)
	if err != nil {
		t.Fatalf("list discards: %v", err)
	}
	if len(discards) != 1 {
		t.Fatalf("expected 1 discard, got %d", len(discards))
	}

	txns, _, err := env.transactions.ListTransactions(ctx, staff, models.TransactionFilters{})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txns) != 0 {
		t.Fatalf("a discarded session must not produce a transaction")
	}
}

func TestAddExtrasClampsAtZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	table := env.table(t, "PS5 B", env.perMinuteRule(t, 8).ID)

	_, err := env.tables.AddExtras(ctx, staff, table.ID, AddExtrasRequest{DeltaPlayers: 1})
	expectErr(t, err, ErrConflict)

	if _, err := env.tables.StartSession(ctx, staff, table.ID, StartSessionRequest{ExtraPlayers: 1}); err != nil {
		t.Fatalf("start: %v", err)
	}
	got, err := env.tables.AddExtras(ctx, staff, table.ID, AddExtrasRequest{DeltaPlayers: -3, DeltaControllers: 2})
	if err != nil {
		t.Fatalf("add extras: %v", err)
	}
	if got.ExtraPlayers != 0 || got.ExtraControllers != 2 {
		t.Fatalf("expected 0 players and 2 controllers, got %d and %d", got.ExtraPlayers, got.ExtraControllers)
	}
}

func TestSessionOperationsOnOffTable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	table := env.table(t, "Pool 4", env.perMinuteRule(t, 8).ID)

	_, err := env.tables.Quote(ctx, staff, table.ID)
	expectErr(t, err, ErrConflict)
	_, err = env.tables.StopSession(ctx, staff, table.ID)
	expectErr(t, err, ErrConflict)
	_, err = env.tables.DiscardSession(ctx, staff, table.ID, DiscardSessionRequest{Reason: "test"})
	expectErr(t, err, ErrConflict)
	_, err = env.tables.StartSession(ctx, staff, 404, StartSessionRequest{})
	expectErr(t, err, ErrNotFound)
}

func TestTableManagementWhileOn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rule := env.perMinuteRule(t, 8)
	table := env.table(t, "Pool 5", rule.ID)

	_, err := env.tables.CreateTable(ctx, staff, CreateTableRequest{Name: "Pool 6", PricingRuleID: rule.ID})
	expectErr(t, err, ErrForbidden)

	if _, err := env.tables.StartSession(ctx, staff, table.ID, StartSessionRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err = env.tables.UpdateTable(ctx, manager, table.ID, UpdateTableRequest{Name: "Pool 5b", PricingRuleID: rule.ID})
	expectErr(t, err, ErrConflict)
	expectErr(t, env.tables.DeleteTable(ctx, manager, table.ID), ErrConflict)

	if _, err := env.tables.StopSession(ctx, staff, table.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := env.transactions.CreateFromSession(ctx, staff, CreateFromSessionRequest{TableID: table.ID}); err != nil {
		t.Fatalf("bill: %v", err)
	}
	if err := env.tables.DeleteTable(ctx, manager, table.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = env.tables.GetTable(ctx, staff, table.ID)
	expectErr(t, err, ErrNotFound)

	// the name is free again once the row is gone
	env.table(t, "Pool 5", rule.ID)
}

func TestListTablesWithQuote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rule := env.perMinuteRule(t, 2)
	on := env.table(t, "Pool 7", rule.ID)
	env.table(t, "Pool 8", rule.ID)

	if _, err := env.tables.StartSession(ctx, staff, on.ID, StartSessionRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Advance(5 * time.Minute)

	status := models.TableStatusOn
	tables, err := env.tables.ListTables(ctx, staff, models.TableFilters{Status: &status, WithQuote: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tables) != 1 || tables[0].ID != on.ID {
		t.Fatalf("expected only the running table, got %+v", tables)
	}
	if tables[0].LiveQuote == nil || tables[0].LiveQuote.Charges.Total != 10 {
		t.Fatalf("expected a live quote of 10, got %+v", tables[0].LiveQuote)
	}

	all, err := env.tables.ListTables(ctx, staff, models.TableFilters{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[0].LiveQuote != nil || all[1].LiveQuote != nil {
		t.Fatalf("expected two tables without quotes, got %+v", all)
	}
}

func TestUnbilledSessionPinsTheTable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rule := env.perMinuteRule(t, 8)
	pricey := env.perMinuteRule(t, 100)
	table := env.table(t, "Pool 9", rule.ID)

	if _, err := env.tables.StartSession(ctx, staff, table.ID, StartSessionRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Advance(12*time.Minute + 30*time.Second)
	quote, err := env.tables.StopSession(ctx, staff, table.ID)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if quote.Charges.Total != 104 {
		t.Fatalf("expected a stop quote of 104, got %v", quote.Charges.Total)
	}

	_, err = env.tables.UpdateTable(ctx, manager, table.ID, UpdateTableRequest{Name: "Pool 9", PricingRuleID: pricey.ID})
	expectErr(t, err, ErrConflict)
	expectErr(t, env.tables.DeleteTable(ctx, manager, table.ID), ErrConflict)

	txn, err := env.transactions.CreateFromSession(ctx, staff, CreateFromSessionRequest{TableID: table.ID})
	if err != nil {
		t.Fatalf("bill: %v", err)
	}
	if txn.Total != 104 {
		t.Fatalf("expected the stop quote to be billed, got %v", txn.Total)
	}

	// billed, so the table is free to change again
	if _, err := env.tables.UpdateTable(ctx, manager, table.ID, UpdateTableRequest{Name: "Pool 9", PricingRuleID: pricey.ID}); err != nil {
		t.Fatalf("update after billing: %v", err)
	}
	if err := env.tables.DeleteTable(ctx, manager, table.ID); err != nil {
		t.Fatalf("delete after billing: %v", err)
	}
}
