// Package rpc defines the wire-level request/reply shapes for the four
// peer RPCs the consensus core issues and handles: pre_request_vote,
// request_vote, heartbeat, and append_entry — plus the envelope framing
// they travel in (see envelope.go).
package rpc

import "github.com/redbco/redb-open/services/raftcore/internal/raftlog"

// VoteArgs is the request shape shared by pre_request_vote and
// request_vote. A pre-vote is a non-binding probe using this same
// payload, distinguished only by which RPC name carries it.
type VoteArgs struct {
	From         string `json:"from"`
	Term         uint64 `json:"term"`
	LastLogIndex uint64 `json:"last_log_idx"`
	LastLogTerm  uint64 `json:"last_log_term"`
}

// VoteReply is the response shape shared by pre_request_vote and
// request_vote.
type VoteReply struct {
	Term    uint64 `json:"term"`
	Granted bool   `json:"granted"`
}

// HeartbeatArgs carries a leader's authority and commit progress; it never
// carries log entries (that's append_entry's job even when Entries is
// empty).
type HeartbeatArgs struct {
	From              string `json:"from"`
	Term              uint64 `json:"term"`
	LeaderCommitIndex uint64 `json:"leader_commit_index"`
}

// HeartbeatReply echoes the responder's identity and term. The leader's
// heartbeat broadcast discards the reply.
type HeartbeatReply struct {
	From string `json:"from"`
	Term uint64 `json:"term"`
}

// AppendEntryArgs replicates a batch of log entries (possibly empty, to
// probe/confirm log position) from leader to follower.
type AppendEntryArgs struct {
	From              string          `json:"from"`
	Term              uint64          `json:"term"`
	PrevLogIndex      uint64          `json:"prev_log_index"`
	PrevLogTerm       uint64          `json:"prev_log_term"`
	Entries           []raftlog.Entry `json:"entries"`
	LeaderCommitIndex uint64          `json:"leader_commit_index"`
}

// AppendEntryReply reports the follower's resulting log position, and on
// rejection a hint (the follower's last index) that the leader folds into
// match[] and next[] by taking the max with their current values.
type AppendEntryReply struct {
	From         string `json:"from"`
	Term         uint64 `json:"term"`
	LastLogIndex uint64 `json:"last_log_index"`
	Reject       bool   `json:"reject"`
	RejectHint   uint64 `json:"reject_hint"`
}
