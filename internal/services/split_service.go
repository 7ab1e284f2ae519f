package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lounge_backend/internal/locker"
	"lounge_backend/internal/metrics"
	"lounge_backend/internal/models"
	"lounge_backend/internal/policy"
	"lounge_backend/internal/repositories"
	"lounge_backend/pkg/utils"
)

// --- Data Transfer Objects (DTOs) ---

type TransferFullRequest struct {
	ToCustomerID int64 `json:"to_customer_id" binding:"required"`
}

type TransferPartialRequest struct {
	ToCustomerID int64   `json:"to_customer_id" binding:"required"`
	Amount       float64 `json:"amount" binding:"required,gt=0"`
}

// SplitEvenlyRequest divides a bill between customers. The first customer keeps the
// original transaction and the remainder.
type SplitEvenlyRequest struct {
	CustomerIDs []int64 `json:"customer_ids" binding:"required,min=2"`
}

// SplitResult is the state of a split after it commits.
type SplitResult struct {
	Original *models.Transaction  `json:"original"`
	Derived  []models.Transaction `json:"derived"`
}

// SplitService moves value between pending transactions. It never touches stock.
type SplitService interface {
	TransferFull(ctx context.Context, actor Actor, id int64, req TransferFullRequest) (*SplitResult, error)
	TransferPartial(ctx context.Context, actor Actor, id int64, req TransferPartialRequest) (*SplitResult, error)
	SplitEvenly(ctx context.Context, actor Actor, id int64, req SplitEvenlyRequest) (*SplitResult, error)
}

type splitService struct {
	txnRepo repositories.TransactionRepository
	uow     *unitOfWork
	now     Clock
}

// NewSplitService creates a new instance of SplitService.
func NewSplitService(txr repositories.TransactionRepository, db *sql.DB, locks *locker.Locker, clock Clock) SplitService {
	return &splitService{
		txnRepo: txr,
		uow:     &unitOfWork{db: db, locks: locks},
		now:     clock,
	}
}

// pending loads a transaction for a split and rejects anything that is not pending.
func (s *splitService) pending(ctx context.Context, tx *sql.Tx, id int64) (*models.Transaction, error) {
	txn, err := s.txnRepo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, fromRepo(err, fmt.Sprintf("transaction %d", id))
	}
	if txn.Status != models.TransactionPending {
		return nil, fmt.Errorf("%w: transaction %d is completed and cannot be split or transferred", ErrConflict, id)
	}
	return txn, nil
}

func (s *splitService) TransferFull(ctx context.Context, actor Actor, id int64, req TransferFullRequest) (*SplitResult, error) {
	if err := authorize(actor, policy.OpTransactionTransfer, policy.ResourceState{TransactionStatus: models.TransactionPending}); err != nil {
		return nil, err
	}
	if req.ToCustomerID <= 0 {
		return nil, fmt.Errorf("%w: to_customer_id is required", ErrValidation)
	}

	var txn *models.Transaction
	err := s.uow.run(ctx, []string{locker.TxnKey(id)}, func(tx *sql.Tx) error {
		var err error
		if txn, err = s.pending(ctx, tx, id); err != nil {
			return err
		}
		return s.reassign(ctx, tx, txn, req.ToCustomerID)
	})
	if err != nil {
		return nil, err
	}

	metrics.SplitsTotal.WithLabelValues("transfer_full").Inc()
	utils.LogInfo("Transaction transferred", map[string]interface{}{
		"transaction_id": id, "to_customer_id": req.ToCustomerID, "operator_id": actor.OperatorID,
	})
	return &SplitResult{Original: txn, Derived: []models.Transaction{}}, nil
}

func (s *splitService) reassign(ctx context.Context, tx *sql.Tx, txn *models.Transaction, customerID int64) error {
	txn.CustomerID = &customerID
	txn.UpdatedAt = s.now()
	return fromRepo(s.txnRepo.UpdateCustomer(ctx, tx, txn.ID, txn.CustomerID, txn.UpdatedAt), fmt.Sprintf("transaction %d", txn.ID))
}

func (s *splitService) TransferPartial(ctx context.Context, actor Actor, id int64, req TransferPartialRequest) (*SplitResult, error) {
	if err := authorize(actor, policy.OpTransactionTransfer, policy.ResourceState{TransactionStatus: models.TransactionPending}); err != nil {
		return nil, err
	}
	if req.ToCustomerID <= 0 {
		return nil, fmt.Errorf("%w: to_customer_id is required", ErrValidation)
	}
	amount := utils.RoundMoney(req.Amount)
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	result := &SplitResult{Derived: []models.Transaction{}}
	kind := "transfer_partial"
	err := s.uow.run(ctx, []string{locker.TxnKey(id)}, func(tx *sql.Tx) error {
		txn, err := s.pending(ctx, tx, id)
		if err != nil {
			return err
		}
		result.Original = txn
		switch {
		case amount > txn.Total:
			return fmt.Errorf("%w: amount %.2f exceeds transaction total %.2f", ErrValidation, amount, txn.Total)
		case amount == txn.Total:
			kind = "transfer_full"
			return s.reassign(ctx, tx, txn, req.ToCustomerID)
		}
		derived, err := s.moveShare(ctx, tx, txn, req.ToCustomerID, amount, actor.OperatorID)
		if err != nil {
			return err
		}
		result.Derived = append(result.Derived, *derived)
		return s.saveSource(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}

	metrics.SplitsTotal.WithLabelValues(kind).Inc()
	utils.LogInfo("Transaction partially transferred", map[string]interface{}{
		"transaction_id": id, "to_customer_id": req.ToCustomerID, "amount": amount, "derived": len(result.Derived),
		"operator_id": actor.OperatorID,
	})
	return result, nil
}

func (s *splitService) SplitEvenly(ctx context.Context, actor Actor, id int64, req SplitEvenlyRequest) (*SplitResult, error) {
	if err := authorize(actor, policy.OpTransactionTransfer, policy.ResourceState{TransactionStatus: models.TransactionPending}); err != nil {
		return nil, err
	}
	if len(req.CustomerIDs) < 2 {
		return nil, fmt.Errorf("%w: at least two customers are required", ErrValidation)
	}
	for _, c := range req.CustomerIDs {
		if c <= 0 {
			return nil, fmt.Errorf("%w: invalid customer id %d", ErrValidation, c)
		}
	}

	result := &SplitResult{Derived: []models.Transaction{}}
	err := s.uow.run(ctx, []string{locker.TxnKey(id)}, func(tx *sql.Tx) error {
		txn, err := s.pending(ctx, tx, id)
		if err != nil {
			return err
		}
		result.Original = txn
		// one share for every customer; the original keeps whatever rounding leaves over
		share := utils.RoundMoney(txn.Total / float64(len(req.CustomerIDs)))
		if share <= 0 {
			return fmt.Errorf("%w: total %.2f is too small to split %d ways", ErrValidation, txn.Total, len(req.CustomerIDs))
		}
		for _, customerID := range req.CustomerIDs[1:] {
			derived, err := s.moveShare(ctx, tx, txn, customerID, share, actor.OperatorID)
			if err != nil {
				return err
			}
			result.Derived = append(result.Derived, *derived)
		}
		if err := s.saveSource(ctx, tx, txn); err != nil {
			return err
		}
		return s.reassign(ctx, tx, txn, req.CustomerIDs[0])
	})
	if err != nil {
		return nil, err
	}

	metrics.SplitsTotal.WithLabelValues("split_evenly").Inc()
	utils.LogInfo("Transaction split evenly", map[string]interface{}{
		"transaction_id": id, "ways": len(req.CustomerIDs), "remaining_total": result.Original.Total,
		"operator_id": actor.OperatorID,
	})
	return result, nil
}

// moveShare carves amount out of txn into a new pending transaction for customerID. Each line
// moves round(quantity * amount/total, 3dp); the complement stays on txn. txn is updated in
// memory only; saveSource persists it.
func (s *splitService) moveShare(ctx context.Context, tx *sql.Tx, txn *models.Transaction, customerID int64, amount float64, operatorID int64) (*models.Transaction, error) {
	if amount >= txn.Total {
		return nil, fmt.Errorf("%w: amount %.2f must be below the remaining total %.2f", ErrValidation, amount, txn.Total)
	}
	now := s.now()
	fraction := amount / txn.Total

	source := sourceSnapshot(txn, now)
	moved := []models.TransactionLine{}
	remaining := []models.TransactionLine{}
	for _, l := range txn.Lines {
		movedQty := utils.RoundQuantity(l.Quantity * fraction)
		keptQty := utils.RoundQuantity(l.Quantity - movedQty)
		if movedQty > 0 {
			m := l
			m.ID, m.TransactionID, m.Quantity = 0, 0, movedQty
			moved = append(moved, m)
		}
		if keptQty > 0 {
			k := l
			k.Quantity = keptQty
			remaining = append(remaining, k)
		}
	}

	derived := &models.Transaction{
		Lines:               moved,
		TableID:             txn.TableID,
		CustomerID:          &customerID,
		Total:               amount,
		Status:              models.TransactionPending,
		CreatedByOperatorID: operatorID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	derived.SessionBillingSnapshot = &models.BillingSnapshot{
		SessionChargeShare: utils.RoundMoney(amount - derived.LinesTotal()),
		ExtraLinesTotal:    derived.LinesTotal(),
		OriginalTotal:      amount,
		LinkedOperatorID:   source.LinkedOperatorID,
		Split: &models.SplitMetadata{
			SourceTransactionID: txn.ID,
			AmountMoved:         amount,
			FractionMoved:       utils.RoundTo(fraction, 6),
			SplitAt:             now,
		},
	}
	if _, err := s.txnRepo.Create(ctx, tx, derived); err != nil {
		return nil, err
	}
	if err := s.txnRepo.InsertLines(ctx, tx, derived.ID, derived.Lines); err != nil {
		return nil, fromRepo(err, "transaction line item")
	}

	txn.Lines = remaining
	txn.Total = utils.RoundMoney(txn.Total - amount)
	txn.UpdatedAt = now
	source.SessionChargeShare = utils.RoundMoney(txn.Total - txn.LinesTotal())
	source.ExtraLinesTotal = txn.LinesTotal()
	source.Split.DerivedIDs = append(source.Split.DerivedIDs, derived.ID)
	source.Split.AmountMoved = utils.RoundMoney(source.Split.AmountMoved + amount)
	source.Split.FractionMoved = utils.RoundTo(source.Split.AmountMoved/source.OriginalTotal, 6)
	source.Split.SplitAt = now
	return derived, nil
}

// sourceSnapshot returns the snapshot of a transaction about to give value away, creating it
// or starting a fresh split record when the transaction has not been split from before.
func sourceSnapshot(txn *models.Transaction, at time.Time) *models.BillingSnapshot {
	if txn.SessionBillingSnapshot == nil {
		txn.SessionBillingSnapshot = &models.BillingSnapshot{OriginalTotal: txn.Total}
	}
	snap := txn.SessionBillingSnapshot
	if snap.Split == nil || snap.Split.SourceTransactionID != txn.ID {
		snap.OriginalTotal = txn.Total
		snap.Split = &models.SplitMetadata{SourceTransactionID: txn.ID, SplitAt: at}
	}
	return snap
}

func (s *splitService) saveSource(ctx context.Context, tx *sql.Tx, txn *models.Transaction) error {
	if err := s.txnRepo.ReplaceLines(ctx, tx, txn.ID, txn.Lines); err != nil {
		return fromRepo(err, "transaction line item")
	}
	return fromRepo(s.txnRepo.UpdateTotals(ctx, tx, txn), fmt.Sprintf("transaction %d", txn.ID))
}
