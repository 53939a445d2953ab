package dbpool

import (
	"context"
	"sync"
)

// Guard is exclusive access to one pooled connection. Release hands the
// connection back exactly once; later calls are no-ops.
type Guard[C any] struct {
	conn     C
	release  func()
	once     sync.Once
	released bool
}

// NewGuard wraps conn. release runs once, on the first Release call.
func NewGuard[C any](conn C, release func()) *Guard[C] {
	return &Guard[C]{conn: conn, release: release}
}

// Conn returns the guarded connection. It must not be used after Release.
func (g *Guard[C]) Conn() C {
	return g.conn
}

func (g *Guard[C]) Release() {
	g.once.Do(func() {
		g.released = true
		if g.release != nil {
			g.release()
		}
	})
}

// Released reports whether Release already ran. It is meant for the goroutine
// that owns the guard.
func (g *Guard[C]) Released() bool {
	return g.released
}

// Acquirer hands out guarded connections of type C.
type Acquirer[C any] interface {
	Acquire(ctx context.Context) (*Guard[C], error)
}

// WithConn acquires a connection, runs fn, and releases the connection on
// every path.
func WithConn[C any](ctx context.Context, a Acquirer[C], fn func(ctx context.Context, conn C) error) error {
	g, err := a.Acquire(ctx)
	if err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx, g.Conn())
}
