package pool

import (
	"context"
	"testing"
	"time"

	"github.com/usub/upq/internal/pgtest"
	"github.com/usub/upq/wire"
)

func newTestPool(t *testing.T, maxConns int64) (*Pool, func()) {
	t.Helper()
	srv, err := pgtest.Start("SELECT 1")
	if err != nil {
		t.Fatalf("pgtest.Start: %v", err)
	}
	host, port := srv.HostPort()
	p := New(Config{
		Endpoint:          wire.Endpoint{Host: host, Port: port, User: "u", Database: "d"},
		MaxConns:          maxConns,
		ConnectTimeout:    2 * time.Second,
		MaxConnectRetries: 3,
	})
	return p, func() { srv.Close(); p.Close() }
}

func TestPoolAcquireReleaseRoundTrip(t *testing.T) {
	p, cleanup := newTestPool(t, 2)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if p.LiveCount() != 1 {
		t.Errorf("LiveCount = %d, want 1", p.LiveCount())
	}
	p.Release(c)
	if p.LiveCount() != 1 {
		t.Errorf("LiveCount after release = %d, want 1 (still live, just idle)", p.LiveCount())
	}
}

func TestPoolLiveCountNeverExceedsMax(t *testing.T) {
	p, cleanup := newTestPool(t, 2)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var conns []interface{ Dead() bool }
	for i := 0; i < 2; i++ {
		c, err := p.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		conns = append(conns, c)
	}
	if p.LiveCount() > 2 {
		t.Errorf("LiveCount = %d, want <= 2", p.LiveCount())
	}

	acquireCtx, acquireCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer acquireCancel()
	if _, err := p.Acquire(acquireCtx); err == nil {
		t.Error("expected Acquire to block (and time out) once the pool is at cap")
	}
}

func TestPoolMarkDeadDecrementsLiveCount(t *testing.T) {
	p, cleanup := newTestPool(t, 2)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.MarkDead(c)
	if p.LiveCount() != 0 {
		t.Errorf("LiveCount after MarkDead = %d, want 0", p.LiveCount())
	}
}
