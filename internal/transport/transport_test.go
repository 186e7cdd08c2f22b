package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-open/services/raftcore/internal/rpc"
	"github.com/redbco/redb-open/services/raftcore/pkg/logger"
)

func TestSendReceivesReply(t *testing.T) {
	log := logger.New("raftcore-test", "test")

	serverHandler := func(req rpc.Envelope) (rpc.Envelope, error) {
		var args rpc.HeartbeatArgs
		require.NoError(t, req.Decode(&args))
		framer := rpc.NewFramer("node-b")
		return framer.Reply(req, rpc.HeartbeatReply{From: "node-b", Term: args.Term})
	}

	serverCfg := DefaultConfig()
	serverCfg.ListenAddr = "127.0.0.1:19081"
	server := New(serverCfg, "node-b", log, serverHandler)

	clientCfg := DefaultConfig()
	clientCfg.DialRetryDelay = 20 * time.Millisecond
	client := New(clientCfg, "node-a", log, func(rpc.Envelope) (rpc.Envelope, error) {
		t.Fatal("client should not receive inbound requests in this test")
		return rpc.Envelope{}, nil
	})
	client.AddPeer("node-b", "127.0.0.1:19081")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, server.Start(ctx))
	defer server.Stop()
	require.NoError(t, client.Start(ctx))
	defer client.Stop()

	require.Eventually(t, func() bool {
		_, err := client.Send(ctx, "node-b", rpc.KindHeartbeat, rpc.HeartbeatArgs{From: "node-a", Term: 1})
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	reqCtx, reqCancel := context.WithTimeout(context.Background(), time.Second)
	defer reqCancel()
	reply, err := client.Send(reqCtx, "node-b", rpc.KindHeartbeat, rpc.HeartbeatArgs{From: "node-a", Term: 5})
	require.NoError(t, err)

	var got rpc.HeartbeatReply
	require.NoError(t, reply.Decode(&got))
	assert.Equal(t, uint64(5), got.Term)
	assert.Equal(t, "node-b", got.From)
}
