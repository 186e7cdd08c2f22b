package rpc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names the RPC an Envelope carries, used both as the event bus key
// suffix and as the wire-level message type.
type Kind string

const (
	KindPreRequestVote Kind = "pre_request_vote"
	KindRequestVote    Kind = "request_vote"
	KindHeartbeat      Kind = "heartbeat"
	KindAppendEntry    Kind = "append_entry"
)

// Envelope is the framing every RPC travels in over the peer transport: an
// identity, routing, and correlation header around an opaque JSON payload.
// The ID lets a response be matched back to the outstanding request that
// produced it; From/To are peer IDs as configured in the cluster config.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Timestamp int64           `json:"timestamp"`
	Reply     bool            `json:"reply"`
	Payload   json.RawMessage `json:"payload"`
}

// Framer stamps outgoing envelopes with a stable sender identity and a
// fresh correlation ID per message.
type Framer struct {
	self string
}

// NewFramer returns a framer that stamps envelopes as coming from self.
func NewFramer(self string) *Framer {
	return &Framer{self: self}
}

// Request builds a new envelope carrying body as an outbound request of
// the given kind, addressed to.
func (f *Framer) Request(kind Kind, to string, body any) (Envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("rpc: marshal %s payload: %w", kind, err)
	}
	return Envelope{
		ID:        uuid.NewString(),
		Kind:      kind,
		From:      f.self,
		To:        to,
		Timestamp: time.Now().UnixNano(),
		Payload:   payload,
	}, nil
}

// Reply builds the response envelope for an inbound request, preserving
// its ID so the original sender can correlate the reply.
func (f *Framer) Reply(req Envelope, body any) (Envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("rpc: marshal %s reply: %w", req.Kind, err)
	}
	return Envelope{
		ID:        req.ID,
		Kind:      req.Kind,
		From:      f.self,
		To:        req.From,
		Timestamp: time.Now().UnixNano(),
		Reply:     true,
		Payload:   payload,
	}, nil
}

// Decode unmarshals the envelope's payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("rpc: unmarshal %s payload: %w", e.Kind, err)
	}
	return nil
}
