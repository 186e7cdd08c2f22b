package consensus

import (
	"github.com/redbco/redb-open/services/raftcore/internal/raftlog"
	"github.com/redbco/redb-open/services/raftcore/internal/rpc"
)

// handlePreRequestVote answers a non-binding pre-vote probe. It never
// mutates current_term or vote_for — a pre-vote's only effect is the
// granted/denied verdict it returns.
func (c *Core) handlePreRequestVote(args rpc.VoteArgs) rpc.VoteReply {
	c.mu.Lock()
	defer c.mu.Unlock()

	if args.Term < c.term {
		return rpc.VoteReply{Term: c.term, Granted: false}
	}
	if c.isHealthyLeaderLocked() || c.isHealthyFollowerLocked() {
		return rpc.VoteReply{Term: c.term, Granted: false}
	}
	return rpc.VoteReply{Term: c.term, Granted: c.logOkLocked(args)}
}

// handleRequestVote answers a binding vote request.
func (c *Core) handleRequestVote(args rpc.VoteArgs) rpc.VoteReply {
	c.mu.Lock()
	defer c.mu.Unlock()

	if args.Term < c.term {
		return rpc.VoteReply{Term: c.term, Granted: false}
	}
	if args.Term == 0 {
		return rpc.VoteReply{Term: c.term, Granted: false}
	}

	if args.Term > c.term {
		if c.isHealthyLeaderLocked() || c.isHealthyFollowerLocked() {
			return rpc.VoteReply{Term: c.term, Granted: false}
		}
		c.stepDownFollowerLocked(args.Term)
	}

	if c.voteFor != noVote && c.voteFor != args.From {
		return rpc.VoteReply{Term: c.term, Granted: false}
	}

	if !c.logOkLocked(args) {
		return rpc.VoteReply{Term: c.term, Granted: false}
	}

	c.voteFor = args.From
	c.stepDownFollowerLocked(c.term)
	return rpc.VoteReply{Term: c.term, Granted: true}
}

// handleHeartbeat accepts or rejects a leader's authority claim.
func (c *Core) handleHeartbeat(args rpc.HeartbeatArgs) rpc.HeartbeatReply {
	c.mu.Lock()
	defer c.mu.Unlock()

	if args.Term < c.term {
		return rpc.HeartbeatReply{From: c.self, Term: c.term}
	}

	c.stepDownFollowerLocked(args.Term)
	c.leaderID = args.From
	c.advanceCommitToLocked(args.LeaderCommitIndex)
	c.timers.Election.Restart(c.randomizedElectionTimeout())

	return rpc.HeartbeatReply{From: c.self, Term: c.term}
}

// handleAppendEntry replicates a batch of entries, or probes log position
// when Entries is empty.
func (c *Core) handleAppendEntry(args rpc.AppendEntryArgs) rpc.AppendEntryReply {
	c.mu.Lock()
	defer c.mu.Unlock()

	if args.Term < c.term {
		return rpc.AppendEntryReply{From: c.self, Term: c.term, Reject: true, RejectHint: c.raftLog.LastIndex()}
	}
	if args.Term > c.term {
		c.stepDownFollowerLocked(args.Term)
		c.leaderID = args.From
	}
	c.timers.Election.Restart(c.randomizedElectionTimeout())

	// Already-committed prefix: idempotent no-op, matches the leader's own
	// bookkeeping without re-applying anything.
	if args.PrevLogIndex < c.commitIndex {
		return rpc.AppendEntryReply{From: c.self, Term: c.term, LastLogIndex: c.commitIndex, Reject: false}
	}

	if args.PrevLogIndex > c.raftLog.LastIndex() || c.raftLog.TermAt(args.PrevLogIndex) != args.PrevLogTerm {
		// The probe position itself does not match; reject carries this
		// node's last index as the hint, which the leader folds into
		// match/next with max (neither moves backwards).
		return rpc.AppendEntryReply{From: c.self, Term: c.term, Reject: true, RejectHint: c.raftLog.LastIndex()}
	}

	conflict := c.raftLog.FindConflict(args.Entries)
	if conflict == 0 {
		// Every supplied entry already matches; nothing to apply, but the
		// reply still flows through the reject_hint path so the leader
		// advances next/match without a separate "already up to date" case.
		return rpc.AppendEntryReply{From: c.self, Term: c.term, Reject: true, RejectHint: c.raftLog.LastIndex()}
	}

	// Committed entries are never truncated; a conflict at or below the
	// commit index means the leader and this node disagree on committed
	// history, which the protocol rules out.
	if conflict <= c.commitIndex {
		panic("consensus: append_entry would truncate committed entries")
	}
	c.raftLog.AppendMayTruncate(sliceFrom(args.Entries, conflict))
	c.cond.Broadcast()

	c.advanceCommitToLocked(args.LeaderCommitIndex)

	return rpc.AppendEntryReply{From: c.self, Term: c.term, LastLogIndex: c.raftLog.LastIndex(), Reject: false}
}

// advanceCommitToLocked moves the commit index toward the leader's,
// capped at the local last index and never backwards.
func (c *Core) advanceCommitToLocked(leaderCommit uint64) {
	target := leaderCommit
	if last := c.raftLog.LastIndex(); last < target {
		target = last
	}
	if target > c.commitIndex {
		c.commitIndex = target
		c.cond.Broadcast()
	}
}

// sliceFrom returns the suffix of entries starting at the first one whose
// Index equals from; entries are contiguous and ascending by contract.
func sliceFrom(entries []raftlog.Entry, from uint64) []raftlog.Entry {
	for i, e := range entries {
		if e.Index == from {
			return entries[i:]
		}
	}
	return nil
}

func (c *Core) logOkLocked(args rpc.VoteArgs) bool {
	localLastTerm := c.raftLog.LastTerm()
	localLastIndex := c.raftLog.LastIndex()
	if args.LastLogTerm != localLastTerm {
		return args.LastLogTerm > localLastTerm
	}
	return args.LastLogIndex >= localLastIndex
}

func (c *Core) isHealthyLeaderLocked() bool {
	if c.role != Leader {
		return false
	}
	connected := 0
	for _, ok := range c.connected {
		if ok {
			connected++
		}
	}
	return connected+1 > c.majority()
}

func (c *Core) isHealthyFollowerLocked() bool {
	return c.role == Follower && c.leaderID != noLeader && !c.electionTimeoutFlag
}
