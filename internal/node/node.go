// Package node wires the log store, timer service, peer transport, event
// bus, consensus core, replication driver, and monitoring into a single
// running process behind one entry point.
package node

import (
	"context"
	"fmt"
	"time"

	"github.com/redbco/redb-open/services/raftcore/internal/consensus"
	"github.com/redbco/redb-open/services/raftcore/internal/eventbus"
	"github.com/redbco/redb-open/services/raftcore/internal/monitoring"
	"github.com/redbco/redb-open/services/raftcore/internal/replication"
	"github.com/redbco/redb-open/services/raftcore/internal/rpc"
	"github.com/redbco/redb-open/services/raftcore/internal/timer"
	"github.com/redbco/redb-open/services/raftcore/internal/transport"
	"github.com/redbco/redb-open/services/raftcore/pkg/config"
	"github.com/redbco/redb-open/services/raftcore/pkg/health"
	"github.com/redbco/redb-open/services/raftcore/pkg/logger"
)

// Options configures a Node beyond the static peer set.
type Options struct {
	AdminAddr     string
	TransportCfg  transport.Config
	MonitorPeriod time.Duration
	HealthPeriod  time.Duration
}

// DefaultOptions returns the options a node runs with unless overridden.
func DefaultOptions() Options {
	return Options{
		AdminAddr:     ":8090",
		TransportCfg:  transport.DefaultConfig(),
		MonitorPeriod: time.Second,
		HealthPeriod:  5 * time.Second,
	}
}

// Node is one running cluster member: every internal package assembled
// and ready to Start.
type Node struct {
	self string
	log  *logger.Logger
	opts Options

	bus       *eventbus.Bus
	timers    *timer.Service
	core      *consensus.Core
	transport *transport.Transport
	driver    *replication.Driver
	collector *monitoring.Collector
	checker   *health.Checker
	admin     *adminServer

	cancel context.CancelFunc
}

// New assembles a Node from a cluster configuration. It does not start
// anything; call Start once constructed.
func New(cluster *config.ClusterConfig, opts Options, log *logger.Logger) *Node {
	self := cluster.Self()
	peerIDs := make([]string, 0, len(cluster.Others()))
	for _, p := range cluster.Others() {
		peerIDs = append(peerIDs, p.PeerID)
	}

	bus := eventbus.New()

	timers := timer.NewService(func(f timer.Fired) {
		var key string
		switch f.Kind {
		case timer.Election:
			key = eventbus.KeyElectionTimeout
		case timer.Vote:
			key = eventbus.KeyVoteTimeout
		case timer.Heartbeat:
			key = eventbus.KeyHeartbeatTimeout
		default:
			return
		}
		eventbus.Dispatch[eventbus.Void, eventbus.Void](bus, key, eventbus.Void{})
	})

	tp := transport.New(opts.TransportCfg, self.PeerID, log, func(req rpc.Envelope) (rpc.Envelope, error) {
		return dispatchInbound(bus, req)
	})

	core := consensus.New(consensus.Config{Self: self.PeerID, Peers: peerIDs}, bus, timers, tp, log)

	tp.OnPeerConnChange(core.SetConnected)
	for _, p := range cluster.Others() {
		tp.AddPeer(p.PeerID, p.Address())
	}

	eventbus.Handle(bus, eventbus.KeyRoleChanged, func(ev consensus.RoleChangedEvent) eventbus.Void {
		log.Info("role changed", "from", ev.From, "to", ev.To, "term", ev.Term)
		return eventbus.Void{}
	})

	driver := replication.New(core, bus, tp, log, peerIDs)
	collector := monitoring.NewCollector(core, log, opts.MonitorPeriod)
	checker := health.NewChecker()
	admin := newAdminServer(opts.AdminAddr, self.PeerID, core, collector, checker)

	return &Node{
		self:      self.PeerID,
		log:       log,
		opts:      opts,
		bus:       bus,
		timers:    timers,
		core:      core,
		transport: tp,
		driver:    driver,
		collector: collector,
		checker:   checker,
		admin:     admin,
	}
}

// dispatchInbound decodes an inbound request envelope's payload and
// re-enters the core through the event bus, matching the kind to its
// typed handler, then re-frames the typed reply back into an envelope.
func dispatchInbound(bus *eventbus.Bus, req rpc.Envelope) (rpc.Envelope, error) {
	framer := rpc.NewFramer(req.To)

	switch req.Kind {
	case rpc.KindPreRequestVote, rpc.KindRequestVote:
		var args rpc.VoteArgs
		if err := req.Decode(&args); err != nil {
			return rpc.Envelope{}, err
		}
		reply := eventbus.Dispatch[rpc.VoteArgs, rpc.VoteReply](bus, voteKey(req.Kind), args)
		return framer.Reply(req, reply)
	case rpc.KindHeartbeat:
		var args rpc.HeartbeatArgs
		if err := req.Decode(&args); err != nil {
			return rpc.Envelope{}, err
		}
		reply := eventbus.Dispatch[rpc.HeartbeatArgs, rpc.HeartbeatReply](bus, eventbus.KeyHeartbeat, args)
		return framer.Reply(req, reply)
	case rpc.KindAppendEntry:
		var args rpc.AppendEntryArgs
		if err := req.Decode(&args); err != nil {
			return rpc.Envelope{}, err
		}
		reply := eventbus.Dispatch[rpc.AppendEntryArgs, rpc.AppendEntryReply](bus, eventbus.KeyAppendEntry, args)
		return framer.Reply(req, reply)
	default:
		return rpc.Envelope{}, fmt.Errorf("node: unknown inbound kind %q", req.Kind)
	}
}

func voteKey(kind rpc.Kind) string {
	if kind == rpc.KindPreRequestVote {
		return eventbus.KeyPreRequestVote
	}
	return eventbus.KeyRequestVote
}

// Start brings the transport, consensus core, replication driver, and
// monitoring up, in the order each depends on the last. It returns once
// everything has been launched; every component runs in its own
// goroutines from here on.
func (n *Node) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	if err := n.transport.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("node: start transport: %w", err)
	}

	n.core.Start()
	go n.driver.Run(ctx)
	n.collector.Start(ctx)
	monitoring.RegisterConsensusCheck(ctx, n.checker, n.core, n.opts.HealthPeriod)
	n.admin.start()

	n.log.Info("node started", "self", n.self)
	return nil
}

// Stop tears the node down: admin surface, transport, and timers.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.admin.stop()
	n.transport.Stop()
	n.timers.StopAll()
	n.log.Info("node stopped", "self", n.self)
}

// Core exposes the consensus core for admin/debug callers (e.g. a future
// client-facing command submission path).
func (n *Node) Core() *consensus.Core {
	return n.core
}
