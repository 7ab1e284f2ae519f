package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"lounge_backend/internal/models"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestKafkaPublisherSendsEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	var sent []byte
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "receipts" {
			t.Errorf("topic = %q", msg.Topic)
		}
		b, err := msg.Value.Encode()
		sent = b
		return err
	})

	pub := NewKafkaPublisherWithProducer(producer, "receipts")
	defer pub.Close()

	tableID := int64(3)
	txn := &models.Transaction{
		ID:      9,
		TableID: &tableID,
		Total:   604,
		Status:  models.TransactionCompleted,
		Lines:   []models.TransactionLine{{ItemID: 1, Quantity: 2, UnitPriceAtSale: 2}},
	}
	if err := pub.PublishTransactionCompleted(context.Background(), NewTransactionCompletedEvent(txn, 5, time.Now())); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var got TransactionCompletedEvent
	if err := json.Unmarshal(sent, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.TransactionID != 9 || got.Total != 604 || got.EventID == "" || got.EventType != EventTypeTransactionCompleted {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestKafkaPublisherReturnsSendError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(errors.New("broker down"))

	pub := NewKafkaPublisherWithProducer(producer, "receipts")
	defer pub.Close()

	err := pub.PublishTransactionCompleted(context.Background(), TransactionCompletedEvent{TransactionID: 1})
	if err == nil {
		t.Fatal("expected an error")
	}
}
