package aggregator

import "context"

// RefreshGate serializes refresh cycles: a cycle that cannot acquire the
// gate is dropped, never queued or blocked, which bounds resource usage
// when upstreams are slow.
type RefreshGate struct {
	ch chan struct{}
}

func NewRefreshGate() *RefreshGate {
	return &RefreshGate{ch: make(chan struct{}, 1)}
}

// TryAcquire reports whether the caller now owns the gate.
func (g *RefreshGate) TryAcquire() bool {
	if g == nil {
		return true
	}
	select {
	case g.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire blocks until the gate is free or ctx ends. Refresh cycles never
// use it; it exists for callers that must observe the result of a cycle
// already in flight.
func (g *RefreshGate) Acquire(ctx context.Context) error {
	if g == nil {
		return nil
	}
	select {
	case g.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *RefreshGate) Release() {
	if g == nil {
		return
	}
	select {
	case <-g.ch:
	default:
	}
}
