package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orderflow/internal/messaging/kafka"
)

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" kafka-1:9092 ,, kafka-2:9092 ")
	if len(brokers) != 2 {
		t.Fatalf("expected 2 brokers, got %d", len(brokers))
	}
	if brokers[0] != "kafka-1:9092" || brokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", brokers)
	}

	if got := parseBrokers("  "); len(got) != 0 {
		t.Fatalf("expected no brokers, got %v", got)
	}
}

func TestExtractReplayMessage_ConsumerDLQ(t *testing.T) {
	value, err := json.Marshal(map[string]any{
		"original_topic": kafka.TopicStockCommands,
		"original_key":   "42",
		"original_value": `{"command":"stock.reserve","order_id":42}`,
		"error_message":  "boom",
	})
	if err != nil {
		t.Fatalf("marshal dlq message: %v", err)
	}

	replay, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: value})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected replayable message")
	}
	if replay.topic != kafka.TopicStockCommands {
		t.Fatalf("unexpected topic: %s", replay.topic)
	}
	if replay.key != "42" {
		t.Fatalf("unexpected key: %s", replay.key)
	}
	if string(replay.value) != `{"command":"stock.reserve","order_id":42}` {
		t.Fatalf("unexpected value: %s", replay.value)
	}
}

func TestExtractReplayMessage_RelayDLQ(t *testing.T) {
	original := json.RawMessage(`{"order_id":7,"status":"CONFIRMED"}`)
	wrapped, err := json.Marshal(map[string]any{
		"event_id":       101,
		"aggregate_type": "Order",
		"aggregate_id":   "7",
		"version":        3,
		"event_type":     "OrderConfirmed",
		"payload":        original,
		"publish_error":  "broker unavailable",
	})
	if err != nil {
		t.Fatalf("marshal relay payload: %v", err)
	}

	envelope, err := json.Marshal(kafka.EventEnvelope{
		EventType:     "OrderConfirmed",
		AggregateType: "Order",
		AggregateID:   "7",
		Version:       3,
		Payload:       wrapped,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	replay, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: envelope})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected replayable message")
	}
	if replay.topic != kafka.TopicOrderEvents {
		t.Fatalf("unexpected topic: %s", replay.topic)
	}
	if replay.key != "7" {
		t.Fatalf("unexpected key: %s", replay.key)
	}

	var restored kafka.EventEnvelope
	if err := json.Unmarshal(replay.value, &restored); err != nil {
		t.Fatalf("unmarshal replay envelope: %v", err)
	}
	if restored.EventType != "OrderConfirmed" {
		t.Fatalf("unexpected event type: %s", restored.EventType)
	}
	if restored.Version != 3 {
		t.Fatalf("unexpected version: %d", restored.Version)
	}
	if string(restored.Payload) != string(original) {
		t.Fatalf("unexpected payload: %s", restored.Payload)
	}
}

func TestExtractReplayMessage_UnknownFormatSkipped(t *testing.T) {
	_, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: []byte(`{"foo":"bar"}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected message to be skipped")
	}
}
