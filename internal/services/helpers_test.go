package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lounge_backend/internal/database"
	"lounge_backend/internal/events"
	"lounge_backend/internal/locker"
	"lounge_backend/internal/models"
	"lounge_backend/internal/policy"
	"lounge_backend/internal/repositories"
)

var (
	admin   = Actor{OperatorID: 1, Username: "admin", Role: policy.RoleAdmin}
	manager = Actor{OperatorID: 2, Username: "manager", Role: policy.RoleManager}
	staff   = Actor{OperatorID: 3, Username: "staff", Role: policy.RoleStaff}
)

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TransactionCompletedEvent
	err    error
}

func (p *recordingPublisher) PublishTransactionCompleted(_ context.Context, e events.TransactionCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []events.TransactionCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.TransactionCompletedEvent(nil), p.events...)
}

type testEnv struct {
	clock        *fakeClock
	publisher    *recordingPublisher
	rules        PricingRuleService
	tables       TableService
	items        InventoryService
	stock        StockLedgerService
	transactions TransactionService
	splits       SplitService
	reports      ReportService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "lounge.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.ApplySchema(db, database.DriverSQLite); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	clock := &fakeClock{now: t0}
	publisher := &recordingPublisher{}
	locks := locker.New()

	prr := repositories.NewPricingRuleRepository(db)
	tr := repositories.NewTableRepository(db)
	ir := repositories.NewInventoryRepository(db)
	smr := repositories.NewStockMovementRepository(db)
	txr := repositories.NewTransactionRepository(db)

	return &testEnv{
		clock:        clock,
		publisher:    publisher,
		rules:        NewPricingRuleService(prr, db, clock.Now),
		tables:       NewTableService(tr, prr, db, locks, clock.Now, DefaultDiscardWindow),
		items:        NewInventoryService(ir, smr, db, locks, clock.Now),
		stock:        NewStockLedgerService(ir, smr, db, locks, clock.Now),
		transactions: NewTransactionService(txr, tr, prr, ir, smr, db, locks, publisher, clock.Now),
		splits:       NewSplitService(txr, db, locks, clock.Now),
		reports:      NewReportService(repositories.NewReportRepository(db), clock.Now),
	}
}

func floatPtr(v float64) *float64 { return &v }

func int64Ptr(v int64) *int64 { return &v }

func (e *testEnv) rule(t *testing.T, req CreatePricingRuleRequest) *models.PricingRule {
	t.Helper()
	if req.Name == "" {
		req.Name = "rule " + req.ChargeMode
	}
	rule, err := e.rules.CreateRule(context.Background(), admin, req)
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	return rule
}

func (e *testEnv) perMinuteRule(t *testing.T, rate float64) *models.PricingRule {
	return e.rule(t, CreatePricingRuleRequest{ChargeMode: string(models.ChargePerMinute), Rate: floatPtr(rate)})
}

func (e *testEnv) table(t *testing.T, name string, ruleID int64) *models.GameTable {
	t.Helper()
	table, err := e.tables.CreateTable(context.Background(), manager, CreateTableRequest{Name: name, PricingRuleID: ruleID})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return table
}

func (e *testEnv) item(t *testing.T, name string, price, onHand float64) *models.InventoryItem {
	t.Helper()
	item, err := e.items.CreateItem(context.Background(), manager, CreateItemRequest{
		Name:            name,
		UnitPrice:       price,
		IsStockTracked:  true,
		OpeningQuantity: onHand,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	return item
}

func (e *testEnv) onHand(t *testing.T, id int64) float64 {
	t.Helper()
	item, err := e.items.GetItem(context.Background(), staff, id)
	if err != nil {
		t.Fatalf("get item %d: %v", id, err)
	}
	return item.OnHandQuantity
}

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func approx(a, b, tolerance float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}
