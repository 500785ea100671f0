package router

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// circuitState is the three-state breaker state, matching cb_state in the
// router's Node record.
type circuitState uint8

const (
	cbClosed circuitState = iota
	cbHalfOpen
	cbOpen
)

// circuitBreaker is the per-node failure filter: closed allows routing,
// half-open allows a trial probe, open excludes the node regardless of
// its other stats until cbUntil passes.
type circuitBreaker struct {
	state   circuitState
	until   time.Time
	cfg     HealthCfg
	clock   clockwork.Clock
}

func newCircuitBreaker(cfg HealthCfg, clock clockwork.Clock) *circuitBreaker {
	return &circuitBreaker{state: cbClosed, cfg: cfg, clock: clock}
}

// eligible reports whether the node may currently be routed to: an Open
// breaker excludes it regardless of stats until cbUntil passes.
func (cb *circuitBreaker) eligible() bool {
	if cb.state == cbOpen && cb.clock.Now().Before(cb.until) {
		return false
	}
	return true
}

// apply updates breaker state after one probe outcome.
func (cb *circuitBreaker) apply(ok bool) {
	now := cb.clock.Now()
	if ok {
		switch cb.state {
		case cbOpen:
			if !now.Before(cb.until) {
				cb.state = cbHalfOpen
			}
		case cbHalfOpen:
			cb.state = cbClosed
		}
		return
	}

	switch cb.state {
	case cbClosed:
		cb.state = cbOpen
		cb.until = now.Add(cb.cfg.CBQuiet)
	case cbHalfOpen:
		cb.state = cbOpen
		cb.until = now.Add(cb.cfg.CBBackoff)
	case cbOpen:
		cb.until = now.Add(cb.cfg.CBMax)
	}
}
