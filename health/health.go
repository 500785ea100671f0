// Package health implements the per-pool periodic liveness probe the
// spec calls out as its own component: a bounded-backoff SELECT 1 loop
// usable directly against a bare Pool. The router runs its own per-node
// probe for RTT and replication lag and does not use this package.
package health

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/usub/upq/pool"
)

// Result is one probe outcome.
type Result struct {
	Healthy bool
	RTT     time.Duration
	Err     error
}

// OnProbe is invoked after every probe tick with its outcome.
type OnProbe func(Result)

// Checker runs SELECT 1 against a Pool on interval when healthy; each
// consecutive failure doubles the delay before the next probe, capped at
// maxBackoff, and any success resets the delay back to interval.
type Checker struct {
	pool       *pool.Pool
	interval   time.Duration
	maxBackoff time.Duration
	probeSQL   string
	clock      clockwork.Clock
	logger     *zap.Logger
	onProbe    OnProbe
}

// defaultMaxBackoff mirrors the source's 15-second cap on the probe
// retry delay.
const defaultMaxBackoff = 15 * time.Second

// Config configures a Checker.
type Config struct {
	Interval   time.Duration
	MaxBackoff time.Duration // default 15s
	ProbeSQL   string        // default "SELECT 1"
	Clock      clockwork.Clock
	Logger     *zap.Logger
	OnProbe    OnProbe
}

// New constructs a Checker bound to p.
func New(p *pool.Pool, cfg Config) *Checker {
	if cfg.ProbeSQL == "" {
		cfg.ProbeSQL = "SELECT 1"
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Checker{
		pool:       p,
		interval:   cfg.Interval,
		maxBackoff: cfg.MaxBackoff,
		probeSQL:   cfg.ProbeSQL,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		onProbe:    cfg.OnProbe,
	}
}

// Run probes on interval while healthy; each consecutive failure doubles
// the wait before the next probe, capped at maxBackoff, and a success
// resets the wait back to interval.
func (c *Checker) Run(ctx context.Context) {
	delay := c.interval
	timer := c.clock.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
			res := c.Probe(ctx)
			if res.Healthy {
				delay = c.interval
			} else {
				delay *= 2
				if delay > c.maxBackoff {
					delay = c.maxBackoff
				}
			}
			timer.Reset(delay)
		}
	}
}

// Probe runs one SELECT 1 round trip and reports its outcome.
func (c *Checker) Probe(ctx context.Context) Result {
	start := c.clock.Now()
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		result := Result{Healthy: false, Err: err}
		c.report(result)
		return result
	}
	defer c.pool.Release(conn)

	res := conn.ExecSimple(ctx, c.probeSQL)
	rtt := c.clock.Now().Sub(start)
	result := Result{Healthy: res.OK, RTT: rtt}
	if !res.OK {
		result.Err = errors.New(res.Err)
	}
	c.report(result)
	return result
}

func (c *Checker) report(r Result) {
	if c.onProbe != nil {
		c.onProbe(r)
	}
}
