// Package replication runs the leader-side per-peer replication loops.
// Each loop waits for its peer to need a new append_entry RPC, builds and
// sends one, and folds the result back into the consensus core's
// per-peer progress — advancing the commit index once the low median of
// the followers' match indices reaches a current-term entry.
package replication

import (
	"context"
	"sync"

	"github.com/redbco/redb-open/services/raftcore/internal/consensus"
	"github.com/redbco/redb-open/services/raftcore/internal/eventbus"
	"github.com/redbco/redb-open/services/raftcore/internal/rpc"
	"github.com/redbco/redb-open/services/raftcore/pkg/logger"
)

// Sender issues the append_entry RPC itself; it is the same interface the
// consensus core uses for vote and heartbeat broadcasts, kept separate
// here so the driver depends only on what it actually calls.
type Sender interface {
	Send(ctx context.Context, peerID string, kind rpc.Kind, body any) (rpc.Envelope, error)
}

// Driver owns one goroutine per peer, each looping for as long as the
// node remains Leader and that peer has unreplicated entries. Completed
// RPCs re-enter the core through the event bus, like every other core
// input.
type Driver struct {
	core   *consensus.Core
	bus    *eventbus.Bus
	sender Sender
	log    *logger.Logger
	peers  []string

	wg sync.WaitGroup
}

// New creates a driver for the given peer set. Peers must match the
// consensus.Config the core was constructed with.
func New(core *consensus.Core, bus *eventbus.Bus, sender Sender, log *logger.Logger, peers []string) *Driver {
	return &Driver{core: core, bus: bus, sender: sender, log: log, peers: peers}
}

// Run launches one loop per peer and blocks until ctx is done.
func (d *Driver) Run(ctx context.Context) {
	for _, peer := range d.peers {
		d.wg.Add(1)
		go d.loop(ctx, peer)
	}
	<-ctx.Done()
	d.wg.Wait()
}

func (d *Driver) loop(ctx context.Context, peer string) {
	defer d.wg.Done()
	for {
		if !d.core.WaitForWork(ctx, peer) {
			return
		}

		plan, ok := d.core.BuildAppendEntry(peer)
		if !ok {
			continue
		}

		reply, err := d.sender.Send(ctx, peer, rpc.KindAppendEntry, plan.Args)
		if err != nil {
			d.log.Debug("append_entry failed", "peer", peer, "error", err)
			d.report(consensus.AppendResponseEvent{Peer: peer, Err: err})
			continue
		}

		var ar rpc.AppendEntryReply
		if err := reply.Decode(&ar); err != nil {
			d.log.Error("append_entry reply decode failed", "peer", peer, "error", err)
			d.report(consensus.AppendResponseEvent{Peer: peer, Err: err})
			continue
		}
		d.report(consensus.AppendResponseEvent{Peer: peer, Reply: &ar})
	}
}

func (d *Driver) report(ev consensus.AppendResponseEvent) {
	eventbus.Dispatch[consensus.AppendResponseEvent, eventbus.Void](d.bus, eventbus.KeyAppendResponse, ev)
}
