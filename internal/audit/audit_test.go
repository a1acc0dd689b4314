package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []Event
	err    error
	done   chan struct{}
}

func (c *captureEmitter) Emit(ctx context.Context, e Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	if c.done != nil {
		close(c.done)
	}
	return c.err
}

func (c *captureEmitter) Close() error { return nil }

func TestNewEvent(t *testing.T) {
	at := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	e := NewEvent(ActionLogin, "id-1", at)
	if e.ID == "" {
		t.Error("event id should be set")
	}
	if e.Action != ActionLogin || e.Subject != "id-1" || !e.At.Equal(at) {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestEmitAsync_DeliversEvent(t *testing.T) {
	em := &captureEmitter{done: make(chan struct{})}
	EmitAsync(em, zap.NewNop(), NewEvent(ActionOtpRequested, "", time.Now()))

	select {
	case <-em.done:
	case <-time.After(2 * time.Second):
		t.Fatal("async emit did not run")
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	if len(em.events) != 1 {
		t.Fatalf("events = %d, want 1", len(em.events))
	}
	if em.events[0].Action != ActionOtpRequested {
		t.Errorf("action = %q", em.events[0].Action)
	}
}

func TestEmitAsync_NilEmitter(t *testing.T) {
	// must not panic
	EmitAsync(nil, zap.NewNop(), NewEvent(ActionLogin, "id", time.Now()))
}

func TestEmitAsync_ErrorDoesNotPropagate(t *testing.T) {
	em := &captureEmitter{err: errors.New("broker down"), done: make(chan struct{})}
	EmitAsync(em, zap.NewNop(), NewEvent(ActionLoginFailed, "id", time.Now()))
	select {
	case <-em.done:
	case <-time.After(2 * time.Second):
		t.Fatal("async emit did not run")
	}
}

func TestNewKafkaEmitter_Unconfigured(t *testing.T) {
	if NewKafkaEmitter(nil, "topic") != nil {
		t.Error("want nil emitter with no brokers")
	}
	if NewKafkaEmitter([]string{"localhost:9092"}, "") != nil {
		t.Error("want nil emitter with no topic")
	}
}

func TestNopEmitter(t *testing.T) {
	var e NopEmitter
	if err := e.Emit(context.Background(), Event{}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
