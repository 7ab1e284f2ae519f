// Package events hands finalized transactions to downstream consumers such as the receipt printer.
package events

import (
	"context"
	"time"

	"lounge_backend/internal/models"
)

const EventTypeTransactionCompleted = "transaction.completed"

// TransactionCompletedEvent is the stable contract read by the printer.
type TransactionCompletedEvent struct {
	EventID       string                   `json:"event_id"`
	EventType     string                   `json:"event_type"`
	OccurredAt    time.Time                `json:"occurred_at"`
	TransactionID int64                    `json:"transaction_id"`
	TableID       *int64                   `json:"table_id,omitempty"`
	CustomerID    *int64                   `json:"customer_id,omitempty"`
	OperatorID    int64                    `json:"operator_id"`
	Total         float64                  `json:"total"`
	Lines         []models.TransactionLine `json:"lines"`
	Snapshot      *models.BillingSnapshot  `json:"session_billing_snapshot,omitempty"`
}

// NewTransactionCompletedEvent builds the event for a committed, completed transaction.
func NewTransactionCompletedEvent(txn *models.Transaction, operatorID int64, at time.Time) TransactionCompletedEvent {
	return TransactionCompletedEvent{
		EventType:     EventTypeTransactionCompleted,
		OccurredAt:    at,
		TransactionID: txn.ID,
		TableID:       txn.TableID,
		CustomerID:    txn.CustomerID,
		OperatorID:    operatorID,
		Total:         txn.Total,
		Lines:         txn.Lines,
		Snapshot:      txn.SessionBillingSnapshot,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishTransactionCompleted(ctx context.Context, event TransactionCompletedEvent) error
	Close() error
}

// NoopPublisher drops every event; used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishTransactionCompleted(context.Context, TransactionCompletedEvent) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
