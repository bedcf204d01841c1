package events

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	p := NewLogPublisher(zap.New(core))

	if err := p.Publish(context.Background(), "ride-1", map[string]string{"to": "accepted"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	entries := logs.FilterMessage("ride event").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["key"] != "ride-1" {
		t.Errorf("key = %v", entries[0].ContextMap()["key"])
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestKafkaPublisherRejectsUnencodable(t *testing.T) {
	p := NewKafkaPublisher([]string{"127.0.0.1:1"}, "ride-events", nil)
	defer p.Close()
	if err := p.Publish(context.Background(), "k", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}
