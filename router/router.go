package router

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/usub/upq/metrics"
	"github.com/usub/upq/pool"
	"github.com/usub/upq/txn"
)

// node is a router-internal record: endpoint, lazily constructed pool,
// live stats, and circuit-breaker state.
type node struct {
	mu    sync.Mutex
	ep    Endpoint
	pool  *pool.Pool
	stats NodeStats
	cb    *circuitBreaker
}

func isReplica(r NodeRole) bool {
	return r == RoleSyncReplica || r == RoleAsyncReplica || r == RoleAnalytics
}

func isUsable(r NodeRole) bool {
	return r != RoleArchive && r != RoleMaintenance
}

// Connector chooses a Pool per request using a RouteHint, and runs the
// background health probe loop that keeps node stats and breaker state
// current.
type Connector struct {
	cfg    Config
	nodes  []*node
	logger *zap.Logger
	clock  clockwork.Clock
}

// New constructs a Connector. Pools are not created eagerly; ensurePool
// lazily constructs one the first time a node is routed to or probed.
func New(cfg Config, logger *zap.Logger, clock clockwork.Clock) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Connector{cfg: cfg, logger: logger, clock: clock}
	for _, ep := range cfg.Nodes {
		c.nodes = append(c.nodes, &node{ep: ep, cb: newCircuitBreaker(cfg.Health, clock)})
	}
	return c
}

func (c *Connector) maxConnsFor(ep Endpoint) int64 {
	if ep.MaxPool > 0 {
		return ep.MaxPool
	}
	if ep.Role == RoleAnalytics {
		return c.cfg.Limits.AnalyticsMaxConns
	}
	return c.cfg.Limits.DefaultMaxConns
}

// ensurePool lazily constructs n's Pool; construction failure leaves the
// node without a pool and therefore ineligible for routing.
func (c *Connector) ensurePool(n *node) *pool.Pool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pool != nil {
		return n.pool
	}
	n.pool = pool.New(pool.Config{
		Name:              n.ep.Name,
		Endpoint:          n.ep.wireEndpoint(),
		MaxConns:          c.maxConnsFor(n.ep),
		ConnectTimeout:    time.Duration(c.cfg.Timeouts.Connect) * time.Millisecond,
		MaxConnectRetries: pool.DefaultMaxConnectRetries,
		Logger:            c.logger,
	})
	return n.pool
}

func (c *Connector) primaryNodes() []*node {
	var out []*node
	for _, n := range c.nodes {
		if n.ep.Role == RolePrimary {
			out = append(out, n)
		}
	}
	if len(c.cfg.PrimaryFailover) > 0 {
		ordered := make([]*node, 0, len(out))
		byName := map[string]*node{}
		for _, n := range out {
			byName[n.ep.Name] = n
		}
		for _, name := range c.cfg.PrimaryFailover {
			if n, ok := byName[name]; ok {
				ordered = append(ordered, n)
			}
		}
		return ordered
	}
	return out
}

func (c *Connector) pickPrimary() *node {
	for _, n := range c.primaryNodes() {
		n.mu.Lock()
		healthy, eligible := n.stats.Healthy, n.cb.eligible()
		n.mu.Unlock()
		if healthy && eligible {
			return n
		}
	}
	return nil
}

func (c *Connector) anyUsable() *node {
	for _, n := range c.nodes {
		if !isUsable(n.ep.Role) {
			continue
		}
		n.mu.Lock()
		healthy, eligible := n.stats.Healthy, n.cb.eligible()
		n.mu.Unlock()
		if healthy && eligible {
			return n
		}
	}
	return nil
}

// pickBestReplica filters replicas by usability/health/breaker state and,
// for BoundedStaleness, by lag budget; ties break on lower RTT, then
// higher weight.
func (c *Connector) pickBestReplica(hint RouteHint) *node {
	var candidates []*node
	for _, n := range c.nodes {
		if !isReplica(n.ep.Role) {
			continue
		}
		n.mu.Lock()
		stats, eligible, hasPool := n.stats, n.cb.eligible(), n.pool != nil
		n.mu.Unlock()
		if !hasPool || !eligible || !stats.Healthy {
			continue
		}
		if hint.Consistency == ConsistencyBoundedStaleness {
			if stats.ReplayLag > hint.Staleness.MaxStaleness {
				continue
			}
			if hint.Staleness.MaxLSNLag > 0 && stats.LSNLag > hint.Staleness.MaxLSNLag {
				continue
			}
		}
		candidates = append(candidates, n)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		si, sj := candidates[i].stats, candidates[j].stats
		if si.RTT != sj.RTT {
			return si.RTT < sj.RTT
		}
		return candidates[i].ep.Weight > candidates[j].ep.Weight
	})
	return candidates[0]
}

// Route chooses a Pool for hint, following the decision table: writes/DDL/
// strong-consistency/read-my-writes route to Primary (falling back to any
// usable Pool); reads with bounded/eventual consistency prefer the best
// replica, falling back to Primary then any usable Pool.
func (c *Connector) Route(hint RouteHint) (*pool.Pool, error) {
	wantsPrimary := hint.Kind == KindWrite || hint.Kind == KindDDL ||
		hint.Consistency == ConsistencyStrong || hint.ReadMyWrites

	if wantsPrimary {
		if n := c.pickPrimary(); n != nil {
			return c.ensurePool(n), nil
		}
		if n := c.anyUsable(); n != nil {
			return c.ensurePool(n), nil
		}
		return nil, fmt.Errorf("router: no usable node for primary-required route")
	}

	if n := c.pickBestReplica(hint); n != nil {
		return c.ensurePool(n), nil
	}
	if n := c.pickPrimary(); n != nil {
		return c.ensurePool(n), nil
	}
	if n := c.anyUsable(); n != nil {
		return c.ensurePool(n), nil
	}
	return nil, fmt.Errorf("router: no usable node for route %+v", hint)
}

// RouteForTx chooses a Pool for a transaction's configuration: Serializable
// forces Primary; read-only+deferrable prefers the SyncReplica with the
// smallest replay lag; otherwise it follows the default routing policy.
func (c *Connector) RouteForTx(cfg txn.Config) (*pool.Pool, error) {
	if cfg.Isolation == txn.Serializable {
		if n := c.pickPrimary(); n != nil {
			return c.ensurePool(n), nil
		}
		return nil, fmt.Errorf("router: no primary available for serializable transaction")
	}
	if cfg.ReadOnly && cfg.Deferrable {
		if n := c.pickSmallestLagSyncReplica(); n != nil {
			return c.ensurePool(n), nil
		}
	}
	return c.Route(RouteHint{Kind: KindRead, Consistency: c.cfg.Routing.DefaultConsistency})
}

func (c *Connector) pickSmallestLagSyncReplica() *node {
	var best *node
	for _, n := range c.nodes {
		if n.ep.Role != RoleSyncReplica {
			continue
		}
		n.mu.Lock()
		stats, eligible, hasPool := n.stats, n.cb.eligible(), n.pool != nil
		n.mu.Unlock()
		if !hasPool || !eligible || !stats.Healthy {
			continue
		}
		if best == nil {
			best = n
			continue
		}
		best.mu.Lock()
		bestLag := best.stats.ReplayLag
		best.mu.Unlock()
		if stats.ReplayLag < bestLag {
			best = n
		}
	}
	return best
}

// StartHealthLoop runs the background probe loop until ctx is cancelled.
func (c *Connector) StartHealthLoop(ctx context.Context) {
	ticker := c.clock.NewTicker(c.cfg.Health.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.healthTick(ctx)
		}
	}
}

// healthTick probes every usable node once: ensure its pool exists, run
// SELECT 1 for RTT, and on replicas measure replication lag. A replica
// lagging past the threshold is marked unhealthy; a primary reporting
// nonzero lag has been demoted and is marked unhealthy too.
func (c *Connector) healthTick(ctx context.Context) {
	for _, n := range c.nodes {
		if !isUsable(n.ep.Role) {
			continue
		}
		p := c.ensurePool(n)
		healthy, rtt := c.probeHealthy(ctx, p)

		var replayLag time.Duration
		var lsnLag uint64
		if healthy && isReplica(n.ep.Role) {
			var ok bool
			replayLag, lsnLag, ok = c.probeReplicationLag(ctx, p)
			if !ok {
				healthy = false
			} else if replayLag > c.cfg.Health.LagThreshold {
				// a replica lagging past the threshold is marked unhealthy.
				healthy = false
			}
		} else if healthy && n.ep.Role == RolePrimary {
			lag, _, ok := c.probeReplicationLag(ctx, p)
			if ok && lag > 0 {
				healthy = false // reporting lag means this node has become a replica
			}
		}

		n.mu.Lock()
		n.stats.Healthy = healthy
		n.stats.RTT = rtt
		n.stats.ReplayLag = replayLag
		n.stats.LSNLag = lsnLag
		n.cb.apply(healthy)
		cbState := n.cb.state
		n.mu.Unlock()

		healthyVal := 0.0
		if healthy {
			healthyVal = 1.0
		}
		metrics.RouterNodeHealthy.WithLabelValues(n.ep.Name).Set(healthyVal)
		metrics.RouterCircuitState.WithLabelValues(n.ep.Name).Set(float64(cbState))
		metrics.RouterReplicaLag.WithLabelValues(n.ep.Name).Set(replayLag.Seconds())
	}
}

func (c *Connector) probeHealthy(ctx context.Context, p *pool.Pool) (bool, time.Duration) {
	start := c.clock.Now()
	cn, err := p.Acquire(ctx)
	if err != nil {
		return false, 0
	}
	defer p.Release(cn)

	res := cn.ExecSimple(ctx, c.cfg.Health.RTTProbeSQL)
	rtt := c.clock.Now().Sub(start)
	return res.OK, rtt
}

const replicationLagQuery = `SELECT
	COALESCE(EXTRACT(EPOCH FROM (now() - pg_last_xact_replay_timestamp())) * 1000, 0)::bigint,
	COALESCE(pg_wal_lsn_diff(pg_last_wal_receive_lsn(), pg_last_wal_replay_lsn()), 0)::bigint`

// probeReplicationLag queries pg_last_xact_replay_timestamp()/
// pg_wal_lsn_diff() for the current replay and LSN lag. ok is false when
// the probe itself failed to run.
func (c *Connector) probeReplicationLag(ctx context.Context, p *pool.Pool) (lag time.Duration, lsnLag uint64, ok bool) {
	cn, err := p.Acquire(ctx)
	if err != nil {
		return 0, 0, false
	}
	defer p.Release(cn)

	res := cn.ExecSimple(ctx, replicationLagQuery)
	if !res.OK || len(res.Rows) == 0 {
		return 0, 0, false
	}
	lagMs := parseInt64Cell(res.Rows[0], 0)
	lsnLag = uint64(parseInt64Cell(res.Rows[0], 1))
	return time.Duration(lagMs) * time.Millisecond, lsnLag, true
}

func parseInt64Cell(row []*string, idx int) int64 {
	if idx >= len(row) || row[idx] == nil {
		return 0
	}
	var v int64
	_, err := fmt.Sscanf(*row[idx], "%d", &v)
	if err != nil {
		return 0
	}
	return v
}
