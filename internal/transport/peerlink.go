package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/redbco/redb-open/services/raftcore/internal/rpc"
	"github.com/redbco/redb-open/services/raftcore/pkg/logger"
)

// peerLink is the single outbound connection this node keeps open to one
// peer. It redials on disconnect and correlates replies to outstanding
// requests by envelope ID so Send can be called concurrently by many
// goroutines (the replication driver's loop for this peer, plus the
// core's heartbeat and vote broadcasts).
type peerLink struct {
	self         string
	peerID       string
	addr         string
	cfg          Config
	log          *logger.Logger
	framer       *rpc.Framer
	onConnChange func(peerID string, connected bool)

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan rpc.Envelope

	// writeMu serializes frame writes; the websocket connection permits
	// only one concurrent writer, and send is called from the replication
	// driver, heartbeat broadcasts, and vote broadcasts at once.
	writeMu sync.Mutex
}

func newPeerLink(self, peerID, addr string, cfg Config, log *logger.Logger, onConnChange func(string, bool)) *peerLink {
	return &peerLink{
		self:         self,
		peerID:       peerID,
		addr:         addr,
		cfg:          cfg,
		log:          log,
		framer:       rpc.NewFramer(self),
		onConnChange: onConnChange,
		pending:      make(map[string]chan rpc.Envelope),
	}
}

func (l *peerLink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, fmt.Sprintf("ws://%s/raft", l.addr), nil)
		if err != nil {
			l.log.Debug("dial failed, retrying", "peer", l.peerID, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.cfg.DialRetryDelay):
			}
			continue
		}

		l.mu.Lock()
		l.conn = conn
		l.mu.Unlock()
		l.log.Info("connected to peer", "peer", l.peerID)
		if l.onConnChange != nil {
			l.onConnChange(l.peerID, true)
		}

		l.readLoop(conn)

		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
		if l.onConnChange != nil {
			l.onConnChange(l.peerID, false)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.cfg.DialRetryDelay):
		}
	}
}

func (l *peerLink) readLoop(conn *websocket.Conn) {
	for {
		var env rpc.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if !env.Reply {
			continue
		}
		l.mu.Lock()
		ch, ok := l.pending[env.ID]
		if ok {
			delete(l.pending, env.ID)
		}
		l.mu.Unlock()
		if ok {
			ch <- env
		}
	}
}

// send transmits a request and blocks until its reply arrives or ctx is
// done. A connection that drops while the request is outstanding does not
// end the wait; only ctx does.
func (l *peerLink) send(ctx context.Context, kind rpc.Kind, body any) (rpc.Envelope, error) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return rpc.Envelope{}, fmt.Errorf("transport: not connected to peer %q", l.peerID)
	}

	req, err := l.framer.Request(kind, l.peerID, body)
	if err != nil {
		return rpc.Envelope{}, err
	}

	ch := make(chan rpc.Envelope, 1)
	l.mu.Lock()
	l.pending[req.ID] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.pending, req.ID)
		l.mu.Unlock()
	}()

	l.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
	err = conn.WriteJSON(req)
	l.writeMu.Unlock()
	if err != nil {
		return rpc.Envelope{}, fmt.Errorf("transport: write to %q: %w", l.peerID, err)
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return rpc.Envelope{}, ctx.Err()
	}
}

func (l *peerLink) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		l.conn.Close()
	}
}
