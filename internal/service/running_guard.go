package service

import (
	"context"
	"sync"
)

// ExportedRunningGuard is an exported alias so _test packages can test the guard.
type ExportedRunningGuard = sourceGuard

// ─────────────────────────────────────────────────────────────
// sourceGuard: one ingestion per source at a time
// ─────────────────────────────────────────────────────────────

// sourceGuard serialises ingestion passes per source id. Version allocation
// is read-then-write, so two passes for the same source must never overlap.
type sourceGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock marks sourceID as busy. It returns false when a pass for the
// source is already running.
func (g *sourceGuard) TryLock(sourceID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[sourceID]; ok {
		return false
	}
	g.running[sourceID] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock releases sourceID. Must be called after TryLock returns true.
func (g *sourceGuard) Unlock(sourceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, sourceID)
	g.wg.Done()
}

// Running reports whether a pass for sourceID is in flight.
func (g *sourceGuard) Running(sourceID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[sourceID]
	return ok
}

// WaitAll blocks until every running pass completes or ctx is cancelled.
func (g *sourceGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
