package node

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-open/services/raftcore/internal/consensus"
	"github.com/redbco/redb-open/services/raftcore/internal/eventbus"
	"github.com/redbco/redb-open/services/raftcore/internal/rpc"
	"github.com/redbco/redb-open/services/raftcore/internal/timer"
	"github.com/redbco/redb-open/services/raftcore/pkg/logger"
)

type denySender struct{}

func (denySender) Send(_ context.Context, peer string, kind rpc.Kind, _ any) (rpc.Envelope, error) {
	payload, _ := json.Marshal(rpc.VoteReply{Granted: false})
	return rpc.Envelope{Kind: kind, From: peer, Reply: true, Payload: payload}, nil
}

func newInboundFixture(t *testing.T) *eventbus.Bus {
	t.Helper()
	bus := eventbus.New()
	log := logger.New("node-test", "test")
	timers := timer.NewService(func(timer.Fired) {})
	consensus.New(consensus.Config{Self: "n1", Peers: []string{"n0", "n2"}}, bus, timers, denySender{}, log)
	return bus
}

func TestDispatchInboundRequestVote(t *testing.T) {
	bus := newInboundFixture(t)
	framer := rpc.NewFramer("n0")

	req, err := framer.Request(rpc.KindRequestVote, "n1", rpc.VoteArgs{From: "n0", Term: 1})
	require.NoError(t, err)

	resp, err := dispatchInbound(bus, req)
	require.NoError(t, err)
	assert.Equal(t, req.ID, resp.ID)
	assert.True(t, resp.Reply)

	var reply rpc.VoteReply
	require.NoError(t, resp.Decode(&reply))
	assert.True(t, reply.Granted)
}

func TestDispatchInboundHeartbeat(t *testing.T) {
	bus := newInboundFixture(t)
	framer := rpc.NewFramer("n0")

	req, err := framer.Request(rpc.KindHeartbeat, "n1", rpc.HeartbeatArgs{From: "n0", Term: 2})
	require.NoError(t, err)

	resp, err := dispatchInbound(bus, req)
	require.NoError(t, err)

	var reply rpc.HeartbeatReply
	require.NoError(t, resp.Decode(&reply))
	assert.Equal(t, "n1", reply.From)
	assert.Equal(t, uint64(2), reply.Term)
}

func TestDispatchInboundUnknownKind(t *testing.T) {
	bus := newInboundFixture(t)

	_, err := dispatchInbound(bus, rpc.Envelope{Kind: rpc.Kind("install_snapshot")})
	assert.Error(t, err)
}
