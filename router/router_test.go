package router

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/usub/upq/internal/pgtest"
	"github.com/usub/upq/txn"
)

func startNode(t *testing.T, name string, role NodeRole, weight uint8) (Endpoint, func()) {
	t.Helper()
	srv, err := pgtest.Start("SELECT 1")
	if err != nil {
		t.Fatalf("pgtest.Start: %v", err)
	}
	host, port := srv.HostPort()
	ep := Endpoint{Name: name, Host: host, Port: port, User: "u", Database: "d", Role: role, Weight: weight}
	return ep, func() { srv.Close() }
}

func TestRouteWritesAlwaysGoToPrimary(t *testing.T) {
	primary, stopP := startNode(t, "primary", RolePrimary, 1)
	replica, stopR := startNode(t, "replica", RoleAsyncReplica, 1)
	defer stopP()
	defer stopR()

	cfg := Config{
		Nodes:    []Endpoint{primary, replica},
		Routing:  DefaultRoutingCfg(),
		Limits:   DefaultPoolLimits(),
		Timeouts: DefaultTimeoutsMs(),
		Health:   DefaultHealthCfg(),
	}
	c := New(cfg, nil, clockwork.NewRealClock())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.healthTick(ctx)

	p, err := c.Route(RouteHint{Kind: KindWrite})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if p == nil {
		t.Fatal("expected a non-nil pool for a write route")
	}
	if p != c.ensurePool(c.nodes[0]) {
		t.Error("expected a write route to go to the primary")
	}
}

func TestRoutePrefersHealthyReplicaForReads(t *testing.T) {
	primary, stopP := startNode(t, "primary", RolePrimary, 1)
	replica, stopR := startNode(t, "replica", RoleAsyncReplica, 1)
	defer stopP()
	defer stopR()

	cfg := Config{
		Nodes:    []Endpoint{primary, replica},
		Routing:  DefaultRoutingCfg(),
		Limits:   DefaultPoolLimits(),
		Timeouts: DefaultTimeoutsMs(),
		Health:   DefaultHealthCfg(),
	}
	c := New(cfg, nil, clockwork.NewRealClock())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.healthTick(ctx)

	p, err := c.Route(RouteHint{Kind: KindRead, Consistency: ConsistencyEventual})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if p == nil {
		t.Fatal("expected a non-nil pool for a read route")
	}
	if p != c.ensurePool(c.nodes[1]) {
		t.Error("expected an eventual-consistency read to go to the healthy replica")
	}
}

func TestRouteFallsBackToPrimaryWhenNoReplicaHealthy(t *testing.T) {
	primary, stopP := startNode(t, "primary", RolePrimary, 1)
	defer stopP()

	cfg := Config{
		Nodes:    []Endpoint{primary},
		Routing:  DefaultRoutingCfg(),
		Limits:   DefaultPoolLimits(),
		Timeouts: DefaultTimeoutsMs(),
		Health:   DefaultHealthCfg(),
	}
	c := New(cfg, nil, clockwork.NewRealClock())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.healthTick(ctx)

	p, err := c.Route(RouteHint{Kind: KindRead, Consistency: ConsistencyEventual})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if p == nil {
		t.Fatal("expected the route to fall back to the primary")
	}
}

func TestRouteErrorsWhenNothingIsHealthy(t *testing.T) {
	cfg := Config{
		Nodes:    nil,
		Routing:  DefaultRoutingCfg(),
		Limits:   DefaultPoolLimits(),
		Timeouts: DefaultTimeoutsMs(),
		Health:   DefaultHealthCfg(),
	}
	c := New(cfg, nil, clockwork.NewRealClock())
	if _, err := c.Route(RouteHint{Kind: KindRead}); err == nil {
		t.Error("expected an error when no nodes are configured")
	}
}

func TestRouteForTxSerializableForcesPrimary(t *testing.T) {
	primary, stopP := startNode(t, "primary", RolePrimary, 1)
	replica, stopR := startNode(t, "replica", RoleSyncReplica, 1)
	defer stopP()
	defer stopR()

	cfg := Config{
		Nodes:    []Endpoint{primary, replica},
		Routing:  DefaultRoutingCfg(),
		Limits:   DefaultPoolLimits(),
		Timeouts: DefaultTimeoutsMs(),
		Health:   DefaultHealthCfg(),
	}
	c := New(cfg, nil, clockwork.NewRealClock())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.healthTick(ctx)

	p, err := c.RouteForTx(txn.Config{Isolation: txn.Serializable})
	if err != nil {
		t.Fatalf("RouteForTx: %v", err)
	}
	primaryPool := c.ensurePool(c.nodes[0])
	if p != primaryPool {
		t.Error("expected a Serializable transaction to route to the primary")
	}
}

func TestRouteForTxSerializableErrorsWithoutPrimary(t *testing.T) {
	replica, stopR := startNode(t, "replica", RoleSyncReplica, 1)
	defer stopR()

	cfg := Config{
		Nodes:    []Endpoint{replica},
		Routing:  DefaultRoutingCfg(),
		Limits:   DefaultPoolLimits(),
		Timeouts: DefaultTimeoutsMs(),
		Health:   DefaultHealthCfg(),
	}
	c := New(cfg, nil, clockwork.NewRealClock())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.healthTick(ctx)

	if _, err := c.RouteForTx(txn.Config{Isolation: txn.Serializable}); err == nil {
		t.Error("expected an error when no primary is available for a Serializable transaction")
	}
}

func TestRouteForTxReadOnlyDeferrablePrefersSmallestLagSyncReplica(t *testing.T) {
	primary, stopP := startNode(t, "primary", RolePrimary, 1)
	replicaA, stopA := startNode(t, "replica-a", RoleSyncReplica, 1)
	replicaB, stopB := startNode(t, "replica-b", RoleSyncReplica, 1)
	defer stopP()
	defer stopA()
	defer stopB()

	cfg := Config{
		Nodes:    []Endpoint{primary, replicaA, replicaB},
		Routing:  DefaultRoutingCfg(),
		Limits:   DefaultPoolLimits(),
		Timeouts: DefaultTimeoutsMs(),
		Health:   DefaultHealthCfg(),
	}
	c := New(cfg, nil, clockwork.NewRealClock())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.healthTick(ctx)

	// Both sync replicas report the same (zero) lag from the fake server, so
	// either is an acceptable pick; what matters is that a sync replica is
	// chosen over the primary.
	p, err := c.RouteForTx(txn.Config{ReadOnly: true, Deferrable: true})
	if err != nil {
		t.Fatalf("RouteForTx: %v", err)
	}
	primaryPool := c.ensurePool(c.nodes[0])
	if p == primaryPool {
		t.Error("expected a read-only deferrable transaction to prefer a sync replica over the primary")
	}
}
