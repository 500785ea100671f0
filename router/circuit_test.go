package router

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func testHealthCfg() HealthCfg {
	return HealthCfg{
		CBQuiet:   500 * time.Millisecond,
		CBBackoff: 1000 * time.Millisecond,
		CBMax:     1500 * time.Millisecond,
	}
}

func TestCircuitBreakerOpensOnFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := newCircuitBreaker(testHealthCfg(), clock)

	if !cb.eligible() {
		t.Fatal("expected a fresh breaker to be eligible")
	}
	cb.apply(false)
	if cb.eligible() {
		t.Error("expected an open breaker to be ineligible immediately after opening")
	}
}

func TestCircuitBreakerHalfOpenAfterQuiet(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := newCircuitBreaker(testHealthCfg(), clock)

	cb.apply(false) // closed -> open, until = now+CBQuiet
	clock.Advance(501 * time.Millisecond)
	if !cb.eligible() {
		t.Fatal("expected the breaker to be eligible again once cb_quiet has elapsed")
	}
	cb.apply(true) // open (expired) -> half-open
	if cb.state != cbHalfOpen {
		t.Errorf("state = %v, want cbHalfOpen", cb.state)
	}
}

func TestCircuitBreakerClosesAfterHalfOpenSuccess(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := newCircuitBreaker(testHealthCfg(), clock)
	cb.apply(false)
	clock.Advance(501 * time.Millisecond)
	cb.apply(true) // -> half-open
	cb.apply(true) // -> closed
	if cb.state != cbClosed {
		t.Errorf("state = %v, want cbClosed", cb.state)
	}
}

func TestCircuitBreakerHalfOpenFailureReopensWithBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := newCircuitBreaker(testHealthCfg(), clock)
	cb.apply(false)
	clock.Advance(501 * time.Millisecond)
	cb.apply(true) // -> half-open
	cb.apply(false) // -> open again, with cb_backoff_ms
	if cb.state != cbOpen {
		t.Fatalf("state = %v, want cbOpen", cb.state)
	}
	if cb.eligible() {
		t.Error("expected the re-opened breaker to be ineligible")
	}
}

func TestCircuitBreakerOpenFailureExtendsWithMax(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := newCircuitBreaker(testHealthCfg(), clock)
	cb.apply(false)
	before := cb.until
	cb.apply(false) // still open: extend by cb_max_ms
	if !cb.until.After(before) {
		t.Error("expected a repeated failure while open to push cb_until further out")
	}
}
