package pool

import "sync/atomic"

// HealthStats are the running counters a Pool keeps about its own
// connect/reconnect activity, mirroring the source's HealthStats. The Pool
// updates only Reconnected; Checked and Alive stay zero.
type HealthStats struct {
	Checked     atomic.Uint64
	Alive       atomic.Uint64
	Reconnected atomic.Uint64
}

// Snapshot is a point-in-time copy of HealthStats safe to hand to callers.
type Snapshot struct {
	Checked     uint64
	Alive       uint64
	Reconnected uint64
}

func (s *HealthStats) Snapshot() Snapshot {
	return Snapshot{
		Checked:     s.Checked.Load(),
		Alive:       s.Alive.Load(),
		Reconnected: s.Reconnected.Load(),
	}
}
