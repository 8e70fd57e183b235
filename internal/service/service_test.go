package service_test

import (
	"context"
	"testing"
	"time"

	"dynetl/internal/service"
)

// ─────────────────────────────────────────────────────────────
// sourceGuard tests
// ─────────────────────────────────────────────────────────────

func TestSourceGuard_TryLock(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("orders") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("orders") {
		t.Fatal("expected second TryLock for same source to fail")
	}
	if !g.TryLock("tickets") {
		t.Fatal("expected TryLock for different source to succeed")
	}
	if !g.Running("orders") {
		t.Fatal("expected orders to be reported running")
	}
	g.Unlock("orders")
	g.Unlock("tickets")

	if g.Running("orders") {
		t.Fatal("expected orders to be idle after unlock")
	}
	if !g.TryLock("orders") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("orders")
}

func TestSourceGuard_WaitAll(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("orders") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("orders")
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, service.EventJobCompleted, map[string]string{"job_id": "j1"})
	m.Emit(ctx, service.EventJobFailed, nil)

	if len(m.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(m.Events))
	}
	if m.Events[0].Event != service.EventJobCompleted {
		t.Errorf("expected %q, got %q", service.EventJobCompleted, m.Events[0].Event)
	}
	if m.Events[1].Data != nil {
		t.Errorf("expected nil data, got %v", m.Events[1].Data)
	}
}

func TestMockEmitter_Names(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "a", "first")
	m.Emit(ctx, "b", "second")

	names := m.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("unexpected names %v", names)
	}
}
