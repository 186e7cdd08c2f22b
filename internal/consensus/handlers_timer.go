package consensus

// onElectionTimeout is the Follower-only election timer fire. A
// single-node cluster (no peers) has no one to ask, so it proceeds
// straight to Candidate; the one self-vote already constitutes a
// majority.
func (c *Core) onElectionTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.role != Follower {
		return
	}
	c.electionTimeoutFlag = true

	if len(c.peers) == 0 {
		c.becomeCandidateLocked()
		c.becomeLeaderLocked()
		return
	}

	c.leaderID = noLeader
	round := roundKey{term: c.term + 1, isPreVote: true}
	c.tally[round] = 1 // counts self implicitly; see handleVoteResponse for peer grants
	c.timers.Election.Restart(ElectionTimeout)

	args := requestVoteArgsLocked(c)
	args.Term = round.term
	c.broadcastVote(round, args)
}

// onVoteTimeout bounds how long a Candidate waits for a majority before
// giving up and falling back to Follower, unchanged in term.
func (c *Core) onVoteTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.role != Candidate {
		return
	}
	c.stepDownFollowerLocked(c.term)
}

// onHeartbeatTimeout is the Leader-only heartbeat tick: broadcast
// authority and commit progress to every peer, then reschedule.
func (c *Core) onHeartbeatTimeout() {
	c.mu.Lock()
	if c.role != Leader {
		c.mu.Unlock()
		return
	}
	term := c.term
	commit := c.commitIndex
	self := c.self
	peers := append([]string(nil), c.peers...)
	c.timers.Heartbeat.Restart(HeartbeatTimeout)
	c.mu.Unlock()

	for _, peer := range peers {
		go c.sendHeartbeat(peer, term, commit, self)
	}
}
