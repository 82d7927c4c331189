package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func newMockProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()

	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}
	return producer, mockProducer
}

func TestProducer_PublishEvent(t *testing.T) {
	producer, mockProducer := newMockProducer(t)

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var event OrderEvent
		return json.Unmarshal(value, &event)
	})

	event := NewOrderEvent(EventTypeOrderCreated, "order-123", "user-1", map[string]interface{}{
		"total_minor": 2500,
	})
	if err := producer.PublishEvent(TopicOrderEvents, "order-123", event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	producer, mockProducer := newMockProducer(t)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewOrderEvent(EventTypeOrderCreated, "order-123", "user-1", nil)
	if err := producer.PublishEvent(TopicOrderEvents, "order-123", event); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishRaw(t *testing.T) {
	producer, mockProducer := newMockProducer(t)

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		if string(value) != `{"order_id":"order-123"}` {
			t.Fatalf("unexpected raw value: %s", value)
		}
		return nil
	})

	err := producer.PublishRaw(TopicDeadLetterQueue, "order-123", []byte(`{"order_id":"order-123"}`), map[string]string{
		HeaderOriginalTopic: TopicOrderEvents,
		HeaderErrorMessage:  "handler failed",
	})
	if err != nil {
		t.Fatalf("publish raw failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewOrderEvent(t *testing.T) {
	event := NewOrderEvent(EventTypeCheckoutCompleted, "order-123", "user-1", map[string]interface{}{
		"number": "00001234-abcd1234",
	})

	if event.EventType != EventTypeCheckoutCompleted {
		t.Errorf("expected event type %s, got %s", EventTypeCheckoutCompleted, event.EventType)
	}
	if event.OrderID != "order-123" {
		t.Errorf("expected order id order-123, got %s", event.OrderID)
	}
	if event.UserID != "user-1" {
		t.Errorf("expected user id user-1, got %s", event.UserID)
	}
	if event.Metadata["number"] != "00001234-abcd1234" {
		t.Error("metadata not set correctly")
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
	if time.Since(event.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}
