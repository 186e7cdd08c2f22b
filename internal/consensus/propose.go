package consensus

import (
	"context"
	"errors"

	"github.com/redbco/redb-open/services/raftcore/internal/raftlog"
)

// ErrNotLeader is returned by Propose on any node that is not currently
// the leader; the caller should retry against the node named by the
// leader id in CheckState.
var ErrNotLeader = errors.New("consensus: not the leader")

// Propose appends payload to the leader's log under the current term and
// wakes the replication loops. It returns the index assigned to the
// entry; the entry is durable cluster-wide only once the commit index
// reaches it (see WaitCommitted).
func (c *Core) Propose(payload []byte) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.role != Leader {
		return 0, ErrNotLeader
	}

	index := c.raftLog.LastIndex() + 1
	c.raftLog.AppendMayTruncate([]raftlog.Entry{{Index: index, Term: c.term, Payload: payload}})
	c.cond.Broadcast()
	return index, nil
}

// WaitCommitted blocks until the commit index reaches index or ctx ends,
// reporting which happened. A step-down does not abort the wait: the
// entry may still be committed by the next leader, and callers bound the
// wait with ctx anyway.
func (c *Core) WaitCommitted(ctx context.Context, index uint64) bool {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		close(done)
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	for c.commitIndex < index {
		select {
		case <-done:
			return false
		default:
		}
		if ctx.Err() != nil {
			return false
		}
		c.cond.Wait()
	}
	return true
}
