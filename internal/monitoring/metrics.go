// Package monitoring polls the consensus core's state on an interval and
// exposes it as both a metrics snapshot and a health check, the way the
// rest of this codebase's services separate "what is the raw number"
// from "is this number acceptable".
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/redbco/redb-open/services/raftcore/internal/consensus"
	"github.com/redbco/redb-open/services/raftcore/pkg/logger"
)

// ConsensusMetrics is a point-in-time snapshot of the fields worth
// exporting: role, term, leader, and commit progress. Per-peer
// replication cursors are not included.
type ConsensusMetrics struct {
	Role        string
	Term        uint64
	LeaderID    string
	CommitIndex uint64
	SampledAt   time.Time
}

// Collector polls a consensus.Core on an interval and keeps the latest
// snapshot available for readers without blocking on the core's mutex
// per read.
type Collector struct {
	core   *consensus.Core
	log    *logger.Logger
	period time.Duration

	mu      sync.RWMutex
	latest  ConsensusMetrics
	samples int64
}

// NewCollector creates a collector; call Start to begin polling.
func NewCollector(core *consensus.Core, log *logger.Logger, period time.Duration) *Collector {
	if period <= 0 {
		period = time.Second
	}
	return &Collector{core: core, log: log, period: period}
}

// Start polls until ctx is done.
func (c *Collector) Start(ctx context.Context) {
	c.sample()
	ticker := time.NewTicker(c.period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sample()
			}
		}
	}()
}

func (c *Collector) sample() {
	state := c.core.CheckState()

	c.mu.Lock()
	c.latest = ConsensusMetrics{
		Role:        state.Role.String(),
		Term:        state.Term,
		LeaderID:    state.LeaderID,
		CommitIndex: state.CommitIndex,
		SampledAt:   time.Now(),
	}
	c.samples++
	c.mu.Unlock()
}

// Latest returns the most recent snapshot.
func (c *Collector) Latest() ConsensusMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}
