package consensus

import (
	"context"
	"sort"

	"github.com/redbco/redb-open/services/raftcore/internal/eventbus"
	"github.com/redbco/redb-open/services/raftcore/internal/rpc"
)

// AppendEntryPlan is what the Replication Driver needs to issue one
// append_entry RPC to a specific peer.
type AppendEntryPlan struct {
	Peer string
	Args rpc.AppendEntryArgs
}

// AppendResponseEvent carries a completed (or failed) append_entry RPC
// from the replication driver back into the core via the event bus.
type AppendResponseEvent struct {
	Peer  string
	Reply *rpc.AppendEntryReply
	Err   error
}

func (c *Core) handleAppendResponse(ev AppendResponseEvent) eventbus.Void {
	c.ReportAppendResult(ev.Peer, ev.Reply, ev.Err)
	return eventbus.Void{}
}

// WaitForWork blocks until peerID is connected, this node is Leader, that
// peer has no append in flight (not Paused), and its match index trails
// the log — or until ctx is done. The
// condition is re-evaluated under mu every time the condition
// variable wakes, so a wakeup racing a role change never reports stale
// work. Returns false only when ctx ended first.
func (c *Core) WaitForWork(ctx context.Context, peerID string) bool {
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

	for {
		select {
		case <-done:
			return false
		default:
		}
		if ctx.Err() != nil {
			return false
		}

		progress, ok := c.progress[peerID]
		if c.role == Leader && ok && c.connected[peerID] && !progress.Paused && progress.Match < c.raftLog.LastIndex() {
			return true
		}
		c.cond.Wait()
	}
}

// BuildAppendEntry constructs the next append_entry RPC for peerID and
// marks its progress Paused so no second RPC overlaps it, or reports
// ok=false if the trigger condition no longer holds (e.g. a role change
// raced the driver between WaitForWork returning and this call).
func (c *Core) BuildAppendEntry(peerID string) (AppendEntryPlan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	progress, ok := c.progress[peerID]
	if !ok || c.role != Leader || progress.Paused || progress.Match >= c.raftLog.LastIndex() {
		return AppendEntryPlan{}, false
	}

	args := rpc.AppendEntryArgs{
		From:              c.self,
		Term:              c.term,
		PrevLogIndex:      progress.Match,
		PrevLogTerm:       c.raftLog.TermAt(progress.Match),
		Entries:           c.raftLog.EntriesFrom(progress.Next),
		LeaderCommitIndex: c.commitIndex,
	}
	progress.Paused = true
	return AppendEntryPlan{Peer: peerID, Args: args}, true
}

// ReportAppendResult folds a completed (or failed) append_entry RPC back
// into that peer's progress and, on acceptance, attempts to advance the
// commit index.
func (c *Core) ReportAppendResult(peerID string, reply *rpc.AppendEntryReply, sendErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	progress, ok := c.progress[peerID]
	if !ok {
		return
	}

	if sendErr != nil {
		progress.Paused = false
		c.cond.Broadcast()
		return
	}

	if reply.Term > c.term {
		c.stepDownFollowerLocked(reply.Term)
		return
	}

	if reply.Reject {
		if reply.RejectHint > progress.Match {
			progress.Match = reply.RejectHint
		}
		if reply.RejectHint+1 > progress.Next {
			progress.Next = reply.RejectHint + 1
		}
	} else {
		if reply.LastLogIndex > progress.Match {
			progress.Match = reply.LastLogIndex
		}
		if reply.LastLogIndex+1 > progress.Next {
			progress.Next = reply.LastLogIndex + 1
		}
		c.advanceCommitLocked()
	}

	progress.Paused = false
	c.cond.Broadcast()
}

// advanceCommitLocked moves commit_index to the followers' median match
// index, and only when the entry at that index was appended in the
// current term. Without the term check, a prior-term entry could reach a
// majority and be committed without the current leader ever having
// replicated anything of its own over it, and a later leader could then
// legally overwrite the "committed" entry.
func (c *Core) advanceCommitLocked() {
	if c.role != Leader || len(c.progress) == 0 {
		return
	}
	matches := make([]uint64, 0, len(c.progress))
	for _, p := range c.progress {
		matches = append(matches, p.Match)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })

	candidate := matches[(len(matches)-1)/2]
	// A follower holding stale extra entries can report a match beyond this
	// leader's own log; commit never passes the local last index.
	if last := c.raftLog.LastIndex(); candidate > last {
		candidate = last
	}
	if candidate <= c.commitIndex {
		return
	}
	if c.raftLog.TermAt(candidate) != c.term {
		return
	}
	c.commitIndex = candidate
	c.cond.Broadcast()
}
