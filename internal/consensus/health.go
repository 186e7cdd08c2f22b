package consensus

// Health is the check_state snapshot: a Leader is healthy only while it
// still commands a majority of connected peers; a Follower is healthy
// only while it knows of a current leader and hasn't yet timed out
// waiting for one; a Candidate is never considered healthy, so an
// in-flight election never short-circuits another peer's vote via the
// health-based vote denial in pre_request_vote/request_vote.
type Health struct {
	Role        Role
	Term        uint64
	LeaderID    string
	CommitIndex uint64
	Healthy     bool
}

// CheckState returns a point-in-time health snapshot.
func (c *Core) CheckState() Health {
	c.mu.Lock()
	defer c.mu.Unlock()

	var healthy bool
	switch c.role {
	case Leader:
		healthy = c.isHealthyLeaderLocked()
	case Follower:
		healthy = c.isHealthyFollowerLocked()
	case Candidate:
		healthy = false
	}

	return Health{
		Role:        c.role,
		Term:        c.term,
		LeaderID:    c.leaderID,
		CommitIndex: c.commitIndex,
		Healthy:     healthy,
	}
}

// SetConnected records the transport's view of whether peerID currently
// has a live link; the Replication Driver and health checks both consult
// this under mu.
func (c *Core) SetConnected(peerID string, connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected[peerID] = connected
	c.cond.Broadcast()
}
