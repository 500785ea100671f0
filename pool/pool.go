// Package pool implements a bounded multi-producer/multi-consumer supply
// of live Connections: lazy growth up to a cap, dead-connection eviction,
// and async acquire with back-pressure.
package pool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/usub/upq/conn"
	"github.com/usub/upq/metrics"
	"github.com/usub/upq/wire"
)

// Config describes how a Pool connects and how aggressively it grows.
type Config struct {
	Name              string // metrics label; defaults to Endpoint.Host if empty
	Endpoint          wire.Endpoint
	MaxConns          int64
	ConnectTimeout    time.Duration
	MaxConnectRetries uint64 // default 20, per the source's retries_on_connection_failed_
	Logger            *zap.Logger
}

// DefaultMaxConnectRetries matches the source's default bounded-retry count.
const DefaultMaxConnectRetries = 20

// Pool hands out live Connections to concurrent callers, growing lazily up
// to Config.MaxConns and never shrinking live-count except via releasing a
// disconnected Connection or MarkDead.
type Pool struct {
	cfg    Config
	logger *zap.Logger

	idle       chan *conn.Conn
	liveCount  atomic.Int64
	connectSem *semaphore.Weighted // bounds concurrent in-flight connect attempts during growth

	stats HealthStats
}

// New constructs a Pool. No connections are created eagerly; they are
// grown lazily on first Acquire.
func New(cfg Config) *Pool {
	if cfg.MaxConnectRetries == 0 {
		cfg.MaxConnectRetries = DefaultMaxConnectRetries
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Endpoint.Host
	}
	return &Pool{
		cfg:        cfg,
		logger:     cfg.Logger,
		idle:       make(chan *conn.Conn, cfg.MaxConns),
		connectSem: semaphore.NewWeighted(cfg.MaxConns),
	}
}

// LiveCount is the total count of extant Connections known to the pool
// (idle + handed-out).
func (p *Pool) LiveCount() int64 { return p.liveCount.Load() }

// Stats exposes the pool's running connect/reconnect counters.
func (p *Pool) Stats() Snapshot { return p.stats.Snapshot() }

// Acquire dequeues an idle Connection if one is ready; otherwise, if under
// cap, grows the pool by connecting a new one; otherwise blocks until a
// release() signals an idle Connection or ctx ends.
func (p *Pool) Acquire(ctx context.Context) (*conn.Conn, error) {
	start := time.Now()
	c, err := p.acquire(ctx)
	metrics.PoolAcquireLatency.WithLabelValues(p.cfg.Name).Observe(time.Since(start).Seconds())
	metrics.PoolLiveConnections.WithLabelValues(p.cfg.Name).Set(float64(p.liveCount.Load()))
	return c, err
}

func (p *Pool) acquire(ctx context.Context) (*conn.Conn, error) {
	for {
		select {
		case c := <-p.idle:
			if c.Dead() {
				p.liveCount.Add(-1)
				continue
			}
			return c, nil
		default:
		}

		if p.tryReserveSlot() {
			c, err := p.connectWithRetry(ctx)
			if err != nil {
				p.liveCount.Add(-1)
				return nil, err
			}
			return c, nil
		}

		select {
		case c := <-p.idle:
			if c.Dead() {
				p.liveCount.Add(-1)
				continue
			}
			return c, nil
		case <-ctx.Done():
			return nil, wire.WrapOpError(wire.CodeAwaitCanceled, ctx.Err())
		}
	}
}

// tryReserveSlot atomically claims one unit of growth room, rolled back by
// the caller if the subsequent connect fails.
func (p *Pool) tryReserveSlot() bool {
	for {
		cur := p.liveCount.Load()
		if cur >= p.cfg.MaxConns {
			return false
		}
		if p.liveCount.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (p *Pool) connectWithRetry(ctx context.Context) (*conn.Conn, error) {
	backoff, err := retry.NewFibonacci(50 * time.Millisecond)
	if err != nil {
		return nil, err
	}
	backoff = retry.WithMaxRetries(p.cfg.MaxConnectRetries, backoff)

	var result *conn.Conn
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		connectCtx := ctx
		if p.cfg.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			connectCtx, cancel = context.WithTimeout(ctx, p.cfg.ConnectTimeout)
			defer cancel()
		}
		if err := p.connectSem.Acquire(connectCtx, 1); err != nil {
			return err
		}
		defer p.connectSem.Release(1)

		c, dialErr := conn.Dial(connectCtx, p.cfg.Endpoint, p.logger)
		if dialErr != nil {
			p.logger.Warn("pool connect attempt failed", zap.Error(dialErr))
			return retry.RetryableError(dialErr)
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.stats.Reconnected.Add(1)
	metrics.PoolReconnects.WithLabelValues(p.cfg.Name).Inc()
	return result, nil
}

// Release re-enqueues c iff it is still connected, else decrements
// live-count. Every successful idle-enqueue effectively wakes a blocked
// Acquire via the idle channel.
func (p *Pool) Release(c *conn.Conn) {
	if c.Dead() {
		p.liveCount.Add(-1)
		return
	}
	select {
	case p.idle <- c:
	default:
		// idle is full, which should not happen under live_count<=max;
		// fail safe by evicting rather than leaking past the cap.
		c.MarkDead()
		p.liveCount.Add(-1)
	}
}

// MarkDead always decrements live-count and never re-enqueues c.
func (p *Pool) MarkDead(c *conn.Conn) {
	c.MarkDead()
	p.liveCount.Add(-1)
}

// Close marks every idle Connection dead and drains the idle queue.
func (p *Pool) Close() {
	for {
		select {
		case c := <-p.idle:
			c.MarkDead()
			_ = c.Close()
			p.liveCount.Add(-1)
		default:
			return
		}
	}
}
