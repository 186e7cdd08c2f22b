// Package transport implements the peer transport: one persistent
// outbound websocket connection per configured peer, and a server
// accepting the peers' own outbound connections. An inbound request is
// dispatched onto the event bus and the handler's reply is written back
// on the same connection; an outbound request is correlated to its reply
// by envelope ID and delivered to the caller without blocking anything
// else on that connection.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/redbco/redb-open/services/raftcore/internal/rpc"
	"github.com/redbco/redb-open/services/raftcore/pkg/logger"
)

// Config controls the listener and dial behavior of a Transport.
type Config struct {
	ListenAddr       string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	DialRetryDelay   time.Duration
	RequestTimeout   time.Duration
}

// DefaultConfig returns the defaults: a request without its own deadline
// times out after 2s, and a dead peer is redialed every second rather
// than given up on.
func DefaultConfig() Config {
	return Config{
		ListenAddr:       ":8080",
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     2 * time.Second,
		DialRetryDelay:   1 * time.Second,
		RequestTimeout:   2 * time.Second,
	}
}

// Handler answers an inbound request envelope with a reply envelope.
type Handler func(req rpc.Envelope) (rpc.Envelope, error)

// Transport owns the inbound server and the set of outbound links to
// every configured peer.
type Transport struct {
	cfg     Config
	self    string
	log     *logger.Logger
	handler Handler

	upgrader     websocket.Upgrader
	server       *http.Server
	onConnChange func(peerID string, connected bool)

	mu    sync.RWMutex
	links map[string]*peerLink
}

// New creates a transport for self, ready to Start once peers are added
// with AddPeer.
func New(cfg Config, self string, log *logger.Logger, handler Handler) *Transport {
	return &Transport{
		cfg:      cfg,
		self:     self,
		log:      log,
		handler:  handler,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		links:    make(map[string]*peerLink),
	}
}

// OnPeerConnChange registers fn to be called whenever an outbound link
// connects or drops. Must be set before AddPeer/Start; there is only one
// subscriber, matching the rest of this package's single-handler style.
func (t *Transport) OnPeerConnChange(fn func(peerID string, connected bool)) {
	t.onConnChange = fn
}

// AddPeer registers an outbound link to peerID at addr. The link dials
// lazily and keeps retrying on failure; it is safe to call before Start.
func (t *Transport) AddPeer(peerID, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.links[peerID]; exists {
		return
	}
	t.links[peerID] = newPeerLink(t.self, peerID, addr, t.cfg, t.log, t.onConnChange)
}

// Start launches the outbound dial loops and the inbound listener.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.RLock()
	for _, link := range t.links {
		go link.run(ctx)
	}
	t.mu.RUnlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/raft", t.handleInbound)
	t.server = &http.Server{
		Addr:         t.cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  t.cfg.HandshakeTimeout,
		WriteTimeout: t.cfg.WriteTimeout,
	}

	go func() {
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.log.Error("transport server stopped", "error", err)
		}
	}()
	t.log.Info("transport listening", "addr", t.cfg.ListenAddr)
	return nil
}

// Stop closes the inbound listener and every outbound link.
func (t *Transport) Stop() error {
	t.mu.RLock()
	for _, link := range t.links {
		link.close()
	}
	t.mu.RUnlock()

	if t.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.server.Shutdown(ctx)
}

// Send issues a request to peerID and waits for its matching reply or
// ctx's deadline, whichever comes first. A ctx without a deadline gets
// the configured RequestTimeout so an unresponsive peer can never park a
// caller forever.
func (t *Transport) Send(ctx context.Context, peerID string, kind rpc.Kind, body any) (rpc.Envelope, error) {
	t.mu.RLock()
	link, ok := t.links[peerID]
	t.mu.RUnlock()
	if !ok {
		return rpc.Envelope{}, fmt.Errorf("transport: unknown peer %q", peerID)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && t.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.RequestTimeout)
		defer cancel()
	}
	return link.send(ctx, kind, body)
}

func (t *Transport) handleInbound(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Error("inbound upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var env rpc.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Reply {
			// Replies only arrive on the link we dialed out on; an inbound
			// connection only ever carries requests from its peer.
			continue
		}
		reply, err := t.handler(env)
		if err != nil {
			t.log.Error("inbound handler failed", "kind", env.Kind, "from", env.From, "error", err)
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			t.log.Error("failed writing inbound reply", "kind", env.Kind, "error", err)
			return
		}
	}
}
