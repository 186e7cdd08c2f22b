package consensus

import (
	"context"

	"github.com/redbco/redb-open/services/raftcore/internal/eventbus"
	"github.com/redbco/redb-open/services/raftcore/internal/rpc"
)

// VoteResponseEvent carries a pre-vote or real-vote reply back to the core
// along with the context it was sent under, so a response belonging to a
// stale term or the wrong phase can be told apart from a current one.
type VoteResponseEvent struct {
	TermAtSend uint64
	IsPreVote  bool
	Reply      rpc.VoteReply
}

// handleVoteResponse implements handle_response_of_request_vote: it is
// the single handler for both the pre-vote and the real-vote phase,
// distinguished by IsPreVote.
func (c *Core) handleVoteResponse(ev VoteResponseEvent) eventbus.Void {
	c.mu.Lock()
	defer c.mu.Unlock()

	expectedRole := Follower
	expectedTerm := c.term + 1 // pre-vote is sent for the prospective next term
	if !ev.IsPreVote {
		expectedRole = Candidate
		expectedTerm = c.term
	}
	if c.role != expectedRole {
		return eventbus.Void{}
	}
	if expectedTerm != ev.TermAtSend {
		return eventbus.Void{}
	}

	if ev.Reply.Term > c.term {
		c.stepDownFollowerLocked(ev.Reply.Term)
		return eventbus.Void{}
	}

	if !ev.Reply.Granted {
		return eventbus.Void{}
	}

	round := roundKey{term: ev.TermAtSend, isPreVote: ev.IsPreVote}
	c.tally[round]++
	if c.tally[round] <= c.majority() {
		return eventbus.Void{}
	}

	if ev.IsPreVote {
		c.becomeCandidateLocked()
	} else {
		c.becomeLeaderLocked()
	}
	return eventbus.Void{}
}

// RoleChangedEvent is posted on the bus after every role transition, for
// observers such as the node's logging handler. Handlers run synchronously while the
// core mutex is held and must not call back into the core.
type RoleChangedEvent struct {
	From Role
	To   Role
	Term uint64
}

// becomeCandidateLocked is reached when a pre-vote round wins a majority.
// It performs the only term increment in the protocol, then broadcasts
// the binding request_vote for the new term.
func (c *Core) becomeCandidateLocked() {
	prev := c.role
	c.timers.Election.Cancel()
	c.term++
	c.voteFor = c.self
	c.role = Candidate
	c.timers.Vote.Restart(VoteTimeout)
	c.notifyRoleChangedLocked(prev)

	round := roundKey{term: c.term, isPreVote: false}
	c.tally[round] = 1

	args := requestVoteArgsLocked(c)
	args.Term = c.term
	c.broadcastVote(round, args)
}

// becomeLeaderLocked requires the caller hold mu and that role is
// already Candidate; the zero-peer shortcut in onElectionTimeout also
// reaches it through becomeCandidateLocked first.
func (c *Core) becomeLeaderLocked() {
	prev := c.role
	c.timers.Vote.Cancel()
	c.role = Leader
	c.leaderID = c.self
	clear(c.tally)

	c.progress = make(map[string]*Progress, len(c.peers))
	for _, p := range c.peers {
		c.progress[p] = &Progress{Next: c.raftLog.LastIndex() + 1, Match: 0, Paused: false}
	}

	c.timers.Heartbeat.Restart(HeartbeatTimeout)
	c.cond.Broadcast()
	c.notifyRoleChangedLocked(prev)
}

// stepDownFollowerLocked implements step_down_follower. term is the
// observed term that triggered the step-down; it only advances
// current_term (and clears vote_for) when strictly greater than it.
func (c *Core) stepDownFollowerLocked(term uint64) {
	prev := c.role
	switch c.role {
	case Candidate:
		c.timers.Vote.Cancel()
	case Leader:
		c.timers.Heartbeat.Cancel()
	}

	if term > c.term {
		c.voteFor = noVote
		c.term = term
	}
	c.role = Follower
	c.leaderID = noLeader
	c.electionTimeoutFlag = false
	clear(c.tally)
	c.timers.Election.Restart(c.randomizedElectionTimeout())
	c.cond.Broadcast()
	if prev != Follower {
		c.notifyRoleChangedLocked(prev)
	}
}

// notifyRoleChangedLocked posts the transition for observers; Post is a
// no-op when nothing subscribed, so the core never depends on a listener
// being wired.
func (c *Core) notifyRoleChangedLocked(from Role) {
	eventbus.Post(c.bus, eventbus.KeyRoleChanged, RoleChangedEvent{From: from, To: c.role, Term: c.term})
}

func requestVoteArgsLocked(c *Core) rpc.VoteArgs {
	return rpc.VoteArgs{
		From:         c.self,
		LastLogIndex: c.raftLog.LastIndex(),
		LastLogTerm:  c.raftLog.LastTerm(),
	}
}

// broadcastVote fans a pre-vote or real-vote request out to every peer in
// its own goroutine, feeding each reply back through the event bus as a
// VoteResponseEvent. A transport failure is silently dropped: votes are
// not retried individually, the owning timer governs retry of the whole
// phase.
func (c *Core) broadcastVote(round roundKey, args rpc.VoteArgs) {
	kind := rpc.KindRequestVote
	if round.isPreVote {
		kind = rpc.KindPreRequestVote
	}
	for _, peer := range c.peers {
		go func(peer string) {
			ctx, cancel := context.WithTimeout(context.Background(), VoteTimeout)
			defer cancel()
			reply, err := c.sender.Send(ctx, peer, kind, args)
			if err != nil {
				return
			}
			var vr rpc.VoteReply
			if err := reply.Decode(&vr); err != nil {
				return
			}
			c.dispatchVoteResponse(VoteResponseEvent{TermAtSend: round.term, IsPreVote: round.isPreVote, Reply: vr})
		}(peer)
	}
}

func (c *Core) sendHeartbeat(peer string, term, commit uint64, self string) {
	ctx, cancel := context.WithTimeout(context.Background(), HeartbeatTimeout)
	defer cancel()
	_, _ = c.sender.Send(ctx, peer, rpc.KindHeartbeat, rpc.HeartbeatArgs{From: self, Term: term, LeaderCommitIndex: commit})
}

// dispatchVoteResponse re-enters the core through the event bus rather
// than calling handleVoteResponse directly; every core input arrives as
// a bus event, responses included.
func (c *Core) dispatchVoteResponse(ev VoteResponseEvent) {
	eventbus.Dispatch[VoteResponseEvent, eventbus.Void](c.bus, eventbus.KeyVoteResponse, ev)
}
