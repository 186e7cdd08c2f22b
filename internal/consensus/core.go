package consensus

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/redbco/redb-open/services/raftcore/internal/eventbus"
	"github.com/redbco/redb-open/services/raftcore/internal/raftlog"
	"github.com/redbco/redb-open/services/raftcore/internal/rpc"
	"github.com/redbco/redb-open/services/raftcore/internal/timer"
	"github.com/redbco/redb-open/services/raftcore/pkg/logger"
)

// ElectionTimeout is the base Follower election timeout; the effective
// Follower timeout is randomized in [ElectionTimeout, 2*ElectionTimeout)
// to avoid synchronized elections across the cluster. HeartbeatTimeout
// must stay strictly less than ElectionTimeout or a healthy Leader's own
// followers would start elections against it.
const (
	ElectionTimeout  = 150 * time.Millisecond
	VoteTimeout      = 150 * time.Millisecond
	HeartbeatTimeout = 50 * time.Millisecond
)

// Sender issues an RPC to peerID and returns its reply envelope, or an
// error on timeout/transport failure. The consensus core never calls this
// while holding mu; every broadcast runs in its own goroutine. Vote
// replies are fed back through the event bus; heartbeat replies are
// discarded.
type Sender interface {
	Send(ctx context.Context, peerID string, kind rpc.Kind, body any) (rpc.Envelope, error)
}

// Config describes a single node's place in a static peer set.
type Config struct {
	Self  string
	Peers []string
}

// Core is the consensus state machine. All fields below mu are
// mutated exclusively under it; Sender and Bus are themselves
// concurrency-safe and may be used without the lock held.
type Core struct {
	self  string
	peers []string

	bus    *eventbus.Bus
	timers *timer.Service
	sender Sender
	log    *logger.Logger

	mu sync.Mutex
	cond     *sync.Cond

	role                Role
	term                uint64
	voteFor             string
	leaderID            string
	commitIndex         uint64
	electionTimeoutFlag bool

	raftLog   *raftlog.Log
	progress  map[string]*Progress
	connected map[string]bool

	tally map[roundKey]int
}

// New wires a Core to its timer service and sender, registers its event
// handlers onto bus, and leaves the node as a
// freshly started Follower. Callers must still arm the election timer
// (via Start) once the transport is up and peers can be reached.
func New(cfg Config, bus *eventbus.Bus, timers *timer.Service, sender Sender, log *logger.Logger) *Core {
	c := &Core{
		self:      cfg.Self,
		peers:     cfg.Peers,
		bus:       bus,
		timers:    timers,
		sender:    sender,
		log:       log,
		role:      Follower,
		raftLog:   raftlog.New(),
		progress:  make(map[string]*Progress),
		connected: make(map[string]bool),
		tally:     make(map[roundKey]int),
	}
	c.cond = sync.NewCond(&c.mu)
	c.registerHandlers()
	return c
}

// Start arms the election timer, making the node eligible to begin
// campaigning once it times out.
func (c *Core) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers.Election.Restart(c.randomizedElectionTimeout())
}

func (c *Core) registerHandlers() {
	eventbus.Handle(c.bus, eventbus.KeyPreRequestVote, c.handlePreRequestVote)
	eventbus.Handle(c.bus, eventbus.KeyRequestVote, c.handleRequestVote)
	eventbus.Handle(c.bus, eventbus.KeyHeartbeat, c.handleHeartbeat)
	eventbus.Handle(c.bus, eventbus.KeyAppendEntry, c.handleAppendEntry)
	eventbus.Handle(c.bus, eventbus.KeyVoteResponse, c.handleVoteResponse)
	eventbus.Handle(c.bus, eventbus.KeyAppendResponse, c.handleAppendResponse)

	eventbus.Handle(c.bus, eventbus.KeyElectionTimeout, func(eventbus.Void) eventbus.Void {
		c.onElectionTimeout()
		return eventbus.Void{}
	})
	eventbus.Handle(c.bus, eventbus.KeyVoteTimeout, func(eventbus.Void) eventbus.Void {
		c.onVoteTimeout()
		return eventbus.Void{}
	})
	eventbus.Handle(c.bus, eventbus.KeyHeartbeatTimeout, func(eventbus.Void) eventbus.Void {
		c.onHeartbeatTimeout()
		return eventbus.Void{}
	})
}

func (c *Core) randomizedElectionTimeout() time.Duration {
	jitter := time.Duration(rand.Int63n(int64(ElectionTimeout)))
	return ElectionTimeout + jitter
}

// majority is the threshold a grant tally must strictly exceed: with n
// peers plus self, winning requires count > (n+1)/2.
func (c *Core) majority() int {
	return (len(c.peers) + 1) / 2
}
