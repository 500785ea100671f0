// Package router implements the connector: it chooses a Pool per request
// using query kind, consistency hint, replica health, RTT, replication
// lag, and circuit-breaker state, and runs the background health probe
// loop that keeps that routing state current.
package router

import (
	"time"

	"github.com/usub/upq/wire"
)

// NodeRole classifies a configured endpoint's place in the topology.
// Archive and Maintenance nodes are never routed to automatically.
type NodeRole uint8

const (
	RolePrimary NodeRole = iota
	RoleSyncReplica
	RoleAsyncReplica
	RoleAnalytics
	RoleArchive
	RoleMaintenance
)

// Consistency is the staleness tolerance a caller is willing to accept.
type Consistency uint8

const (
	ConsistencyStrong Consistency = iota
	ConsistencyBoundedStaleness
	ConsistencyEventual
)

// QueryKind classifies the statement being routed.
type QueryKind uint8

const (
	KindRead QueryKind = iota
	KindWrite
	KindDDL
	KindLongRead
)

// BoundedStalenessCfg bounds how far behind a replica may be.
type BoundedStalenessCfg struct {
	MaxStaleness time.Duration
	MaxLSNLag    uint64
}

// RouteHint is the caller's routing request for one operation.
type RouteHint struct {
	Kind         QueryKind
	Consistency  Consistency
	Staleness    BoundedStalenessCfg
	ReadMyWrites bool
}

// Endpoint describes one configured backend node.
type Endpoint struct {
	Name     string
	Host     string
	Port     string
	User     string
	Database string
	Password string
	MaxPool  int64
	Role     NodeRole
	Weight   uint8
}

func (e Endpoint) wireEndpoint() wire.Endpoint {
	return wire.Endpoint{
		Host:     e.Host,
		Port:     e.Port,
		User:     e.User,
		Database: e.Database,
		Password: e.Password,
		SslMode:  wire.SslPrefer,
	}
}

// NodeStats is the router-maintained view of a node's current health.
type NodeStats struct {
	Healthy    bool
	RTT        time.Duration
	ReplayLag  time.Duration
	LSNLag     uint64
	OpenConns  int64
	BusyConns  int64
}

// PoolLimits bounds pool sizing by node kind.
type PoolLimits struct {
	DefaultMaxConns   int64
	AnalyticsMaxConns int64
}

// DefaultPoolLimits mirrors the source's defaults (64 / 16).
func DefaultPoolLimits() PoolLimits {
	return PoolLimits{DefaultMaxConns: 64, AnalyticsMaxConns: 16}
}

// TimeoutsMs bounds connect and query timeouts in milliseconds.
type TimeoutsMs struct {
	Connect    uint32
	QueryRead  uint32
	QueryWrite uint32
}

// DefaultTimeoutsMs mirrors the source's defaults.
func DefaultTimeoutsMs() TimeoutsMs {
	return TimeoutsMs{Connect: 1500, QueryRead: 3000, QueryWrite: 2000}
}

// HealthCfg tunes the health probe loop and circuit breaker durations.
type HealthCfg struct {
	Interval       time.Duration
	LagThreshold   time.Duration
	RTTProbeSQL    string
	CBQuiet        time.Duration
	CBBackoff      time.Duration
	CBMax          time.Duration
}

// DefaultHealthCfg mirrors the source's defaults (interval_ms=500,
// lag_threshold_ms=120, cb_quiet_ms=500, cb_backoff_ms=1000, cb_max_ms=1500).
func DefaultHealthCfg() HealthCfg {
	return HealthCfg{
		Interval:     500 * time.Millisecond,
		LagThreshold: 120 * time.Millisecond,
		RTTProbeSQL:  "SELECT 1",
		CBQuiet:      500 * time.Millisecond,
		CBBackoff:    1000 * time.Millisecond,
		CBMax:        1500 * time.Millisecond,
	}
}

// RoutingCfg holds routing defaults. RouteForTx uses DefaultConsistency for
// transactions it does not send to the primary or a sync replica; Route
// takes consistency and staleness only from its RouteHint. BoundedStaleness
// and ReadMyWritesTTL are not read by the Connector.
type RoutingCfg struct {
	DefaultConsistency Consistency
	BoundedStaleness   BoundedStalenessCfg
	ReadMyWritesTTL    time.Duration
}

// DefaultRoutingCfg mirrors the source's defaults.
func DefaultRoutingCfg() RoutingCfg {
	return RoutingCfg{
		DefaultConsistency: ConsistencyEventual,
		BoundedStaleness:   BoundedStalenessCfg{MaxStaleness: 150 * time.Millisecond},
		ReadMyWritesTTL:    500 * time.Millisecond,
	}
}

// Config is the Connector's full configuration.
type Config struct {
	Nodes           []Endpoint
	PrimaryFailover []string
	Routing         RoutingCfg
	Limits          PoolLimits
	Timeouts        TimeoutsMs
	Health          HealthCfg
}
