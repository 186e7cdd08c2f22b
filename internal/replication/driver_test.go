package replication

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-open/services/raftcore/internal/consensus"
	"github.com/redbco/redb-open/services/raftcore/internal/eventbus"
	"github.com/redbco/redb-open/services/raftcore/internal/rpc"
	"github.com/redbco/redb-open/services/raftcore/internal/timer"
	"github.com/redbco/redb-open/services/raftcore/pkg/logger"
)

// ackingSender grants every vote and accepts every append, recording the
// append batches it saw per peer.
type ackingSender struct {
	mu      sync.Mutex
	appends map[string]int
}

func newAckingSender() *ackingSender {
	return &ackingSender{appends: make(map[string]int)}
}

func (s *ackingSender) Send(_ context.Context, peer string, kind rpc.Kind, body any) (rpc.Envelope, error) {
	var reply any
	switch kind {
	case rpc.KindPreRequestVote:
		reply = rpc.VoteReply{Term: 0, Granted: true}
	case rpc.KindRequestVote:
		args := body.(rpc.VoteArgs)
		reply = rpc.VoteReply{Term: args.Term, Granted: true}
	case rpc.KindHeartbeat:
		args := body.(rpc.HeartbeatArgs)
		reply = rpc.HeartbeatReply{From: peer, Term: args.Term}
	case rpc.KindAppendEntry:
		args := body.(rpc.AppendEntryArgs)
		s.mu.Lock()
		s.appends[peer]++
		s.mu.Unlock()
		last := args.PrevLogIndex + uint64(len(args.Entries))
		reply = rpc.AppendEntryReply{From: peer, Term: args.Term, LastLogIndex: last}
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		return rpc.Envelope{}, err
	}
	return rpc.Envelope{Kind: kind, From: peer, Reply: true, Payload: payload}, nil
}

func (s *ackingSender) appendCount(peer string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appends[peer]
}

func newLeaderFixture(t *testing.T, sender consensus.Sender, peers []string) (*consensus.Core, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	log := logger.New("replication-test", "test")

	timers := timer.NewService(func(f timer.Fired) {
		var key string
		switch f.Kind {
		case timer.Election:
			key = eventbus.KeyElectionTimeout
		case timer.Vote:
			key = eventbus.KeyVoteTimeout
		case timer.Heartbeat:
			key = eventbus.KeyHeartbeatTimeout
		}
		eventbus.Dispatch[eventbus.Void, eventbus.Void](bus, key, eventbus.Void{})
	})

	core := consensus.New(consensus.Config{Self: "n0", Peers: peers}, bus, timers, sender, log)
	for _, p := range peers {
		core.SetConnected(p, true)
	}

	eventbus.Dispatch[eventbus.Void, eventbus.Void](bus, eventbus.KeyElectionTimeout, eventbus.Void{})
	require.Eventually(t, func() bool {
		return core.CheckState().Role == consensus.Leader
	}, time.Second, 5*time.Millisecond)

	return core, bus
}

func TestDriverReplicatesProposalToCommit(t *testing.T) {
	sender := newAckingSender()
	peers := []string{"n1", "n2"}
	core, bus := newLeaderFixture(t, sender, peers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logger.New("replication-test", "test")
	d := New(core, bus, sender, log, peers)
	go d.Run(ctx)

	index, err := core.Propose([]byte("set x=1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return core.CheckState().CommitIndex == index
	}, 2*time.Second, 5*time.Millisecond)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	assert.True(t, core.WaitCommitted(waitCtx, index))

	assert.GreaterOrEqual(t, sender.appendCount("n1"), 1)
	assert.GreaterOrEqual(t, sender.appendCount("n2"), 1)
}

func TestDriverStopsWhenContextEnds(t *testing.T) {
	sender := newAckingSender()
	peers := []string{"n1"}
	core, bus := newLeaderFixture(t, sender, peers)

	ctx, cancel := context.WithCancel(context.Background())
	log := logger.New("replication-test", "test")
	d := New(core, bus, sender, log, peers)

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop after context cancellation")
	}
}
