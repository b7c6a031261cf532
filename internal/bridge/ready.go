package bridge

import (
	"context"
	"sync"
)

// Gate is a one-shot readiness signal. It opens exactly once, optionally
// carrying the error that prevented readiness.
type Gate struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewGate returns a gate that has not opened yet.
func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Open releases every waiter. Only the first call has any effect.
func (g *Gate) Open(err error) {
	g.once.Do(func() {
		g.err = err
		close(g.done)
	})
}

// Done is closed once the gate opens.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// IsOpen reports whether the gate has opened.
func (g *Gate) IsOpen() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate opens or ctx is done. Callers that arrive after
// opening return immediately.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return g.err
	default:
	}

	select {
	case <-g.done:
		return g.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
