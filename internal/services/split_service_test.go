package services

import (
	"context"
	"testing"
	"time"

	"lounge_backend/internal/models"
	"lounge_backend/pkg/utils"
)

func pendingSale(t *testing.T, env *testEnv, customer int64, lines ...LineRequest) *models.Transaction {
	t.Helper()
	txn, err := env.transactions.CreateWalkInSale(context.Background(), staff, CreateWalkInSaleRequest{
		CustomerID: &customer,
		Lines:      lines,
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	return txn
}

func quantities(lines []models.TransactionLine) map[int64]float64 {
	q := map[int64]float64{}
	for _, l := range lines {
		q[l.ItemID] = utils.RoundQuantity(q[l.ItemID] + l.Quantity)
	}
	return q
}

func TestTransferPartialConservesValue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cola := env.item(t, "Cola", 3.33, 50)
	chips := env.item(t, "Chips", 1.7, 50)
	nuts := env.item(t, "Nuts", 2.15, 50)

	original := pendingSale(t, env, 1,
		LineRequest{ItemID: cola.ID, Quantity: 3},
		LineRequest{ItemID: chips.ID, Quantity: 7},
		LineRequest{ItemID: nuts.ID, Quantity: 1},
	)
	before := quantities(original.Lines)

	res, err := env.splits.TransferPartial(ctx, staff, original.ID, TransferPartialRequest{ToCustomerID: 2, Amount: 7.5})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(res.Derived) != 1 {
		t.Fatalf("expected one derived transaction, got %d", len(res.Derived))
	}
	derived := res.Derived[0]

	if derived.Total != 7.5 || derived.Status != models.TransactionPending || *derived.CustomerID != 2 {
		t.Fatalf("unexpected derived transaction %+v", derived)
	}
	tolerance := 0.01 * float64(len(original.Lines))
	if !approx(derived.Total+res.Original.Total, original.Total, tolerance) {
		t.Fatalf("split lost value: %v + %v != %v", derived.Total, res.Original.Total, original.Total)
	}

	moved, kept := quantities(derived.Lines), quantities(res.Original.Lines)
	for item, q := range before {
		if utils.RoundQuantity(moved[item]+kept[item]) != q {
			t.Fatalf("item %d: %v moved + %v kept != %v", item, moved[item], kept[item], q)
		}
	}

	split := derived.SessionBillingSnapshot.Split
	if split == nil || split.SourceTransactionID != original.ID || split.AmountMoved != 7.5 {
		t.Fatalf("unexpected derived split metadata %+v", split)
	}
	source, err := env.transactions.GetTransaction(ctx, staff, original.ID)
	if err != nil {
		t.Fatalf("get original: %v", err)
	}
	meta := source.SessionBillingSnapshot
	if meta == nil || meta.OriginalTotal != original.Total || len(meta.Split.DerivedIDs) != 1 || meta.Split.DerivedIDs[0] != derived.ID {
		t.Fatalf("unexpected source snapshot %+v", meta)
	}
	if source.Total != res.Original.Total || len(source.Lines) != len(res.Original.Lines) {
		t.Fatalf("persisted original differs from the returned one")
	}

	// a later edit keeps the carried share
	lines := []LineRequest{}
	for _, l := range source.Lines {
		lines = append(lines, LineRequest{ItemID: l.ItemID, Quantity: l.Quantity})
	}
	edited, err := env.transactions.EditPendingLines(ctx, staff, source.ID, EditLinesRequest{Lines: lines})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Total != source.Total {
		t.Fatalf("re-saving the same lines changed the total from %v to %v", source.Total, edited.Total)
	}
}

func TestTransferPartialRouting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cola := env.item(t, "Cola", 5, 50)
	txn := pendingSale(t, env, 1, LineRequest{ItemID: cola.ID, Quantity: 2})

	_, err := env.splits.TransferPartial(ctx, staff, txn.ID, TransferPartialRequest{ToCustomerID: 2, Amount: 10.01})
	expectErr(t, err, ErrValidation)
	_, err = env.splits.TransferPartial(ctx, staff, txn.ID, TransferPartialRequest{ToCustomerID: 2, Amount: 0.001})
	expectErr(t, err, ErrValidation)

	res, err := env.splits.TransferPartial(ctx, staff, txn.ID, TransferPartialRequest{ToCustomerID: 2, Amount: 10})
	if err != nil {
		t.Fatalf("transfer whole amount: %v", err)
	}
	if len(res.Derived) != 0 || *res.Original.CustomerID != 2 || res.Original.Total != 10 {
		t.Fatalf("a full amount must reassign the transaction, got %+v", res)
	}

	if _, err := env.transactions.SetStatus(ctx, staff, txn.ID, SetStatusRequest{Status: "completed"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err = env.splits.TransferFull(ctx, staff, txn.ID, TransferFullRequest{ToCustomerID: 3})
	expectErr(t, err, ErrConflict)
	_, err = env.splits.TransferPartial(ctx, staff, txn.ID, TransferPartialRequest{ToCustomerID: 3, Amount: 1})
	expectErr(t, err, ErrConflict)
	_, err = env.splits.TransferFull(ctx, staff, 999, TransferFullRequest{ToCustomerID: 3})
	expectErr(t, err, ErrNotFound)
}

func TestTransferFullKeepsLines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cola := env.item(t, "Cola", 5, 50)
	txn := pendingSale(t, env, 1, LineRequest{ItemID: cola.ID, Quantity: 2})

	res, err := env.splits.TransferFull(ctx, staff, txn.ID, TransferFullRequest{ToCustomerID: 9})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	got, err := env.transactions.GetTransaction(ctx, staff, txn.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *got.CustomerID != 9 || got.Total != txn.Total || len(got.Lines) != 1 || res.Original.ID != txn.ID {
		t.Fatalf("unexpected transfer result %+v", got)
	}
}

func TestSplitEvenly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	table := env.table(t, "PS5 A", env.perMinuteRule(t, 1).ID)
	cola := env.item(t, "Cola", 5, 50)

	if _, err := env.tables.StartSession(ctx, staff, table.ID, StartSessionRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.clock.Advance(90 * time.Minute)
	if _, err := env.tables.StopSession(ctx, staff, table.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	txn, err := env.transactions.CreateFromSession(ctx, staff, CreateFromSessionRequest{
		TableID: table.ID,
		Lines:   []LineRequest{{ItemID: cola.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("bill: %v", err)
	}
	if txn.Total != 100 {
		t.Fatalf("expected 90 + 10, got %v", txn.Total)
	}

	res, err := env.splits.SplitEvenly(ctx, staff, txn.ID, SplitEvenlyRequest{CustomerIDs: []int64{11, 12, 13}})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(res.Derived) != 2 {
		t.Fatalf("expected two derived transactions, got %d", len(res.Derived))
	}
	sum := res.Original.Total
	for i, d := range res.Derived {
		if d.Total != 33.33 || *d.CustomerID != int64(12+i) {
			t.Fatalf("derived %d: expected 33.33 for customer %d, got %v for %d", i, 12+i, d.Total, *d.CustomerID)
		}
		sum += d.Total
	}
	if res.Original.Total != 33.34 || *res.Original.CustomerID != 11 {
		t.Fatalf("expected the remainder 33.34 on customer 11, got %v for %d", res.Original.Total, *res.Original.CustomerID)
	}
	if !approx(sum, 100, 0.01*float64(len(txn.Lines))) {
		t.Fatalf("split lost value: %v", sum)
	}
	if res.Original.SessionBillingSnapshot.Quote == nil || res.Original.SessionBillingSnapshot.Split.AmountMoved != 66.66 {
		t.Fatalf("unexpected source snapshot %+v", res.Original.SessionBillingSnapshot)
	}

	_, err = env.splits.SplitEvenly(ctx, staff, txn.ID, SplitEvenlyRequest{CustomerIDs: []int64{11}})
	expectErr(t, err, ErrValidation)
}
