package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramerRequestAndDecode(t *testing.T) {
	f := NewFramer("node-a")

	env, err := f.Request(KindRequestVote, "node-b", VoteArgs{From: "node-a", Term: 3, LastLogIndex: 7, LastLogTerm: 2})
	require.NoError(t, err)
	assert.Equal(t, "node-a", env.From)
	assert.Equal(t, "node-b", env.To)
	assert.Equal(t, KindRequestVote, env.Kind)
	assert.False(t, env.Reply)
	assert.NotEmpty(t, env.ID)

	var args VoteArgs
	require.NoError(t, env.Decode(&args))
	assert.Equal(t, uint64(3), args.Term)
	assert.Equal(t, uint64(7), args.LastLogIndex)
}

func TestFramerReplyPreservesID(t *testing.T) {
	f := NewFramer("node-a")
	req, err := f.Request(KindHeartbeat, "node-b", HeartbeatArgs{From: "node-a", Term: 1})
	require.NoError(t, err)

	reply := NewFramer("node-b")
	resp, err := reply.Reply(req, HeartbeatReply{From: "node-b", Term: 1})
	require.NoError(t, err)

	assert.Equal(t, req.ID, resp.ID)
	assert.True(t, resp.Reply)
	assert.Equal(t, "node-b", resp.From)
	assert.Equal(t, "node-a", resp.To)
}
