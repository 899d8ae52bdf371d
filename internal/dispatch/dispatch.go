// Package dispatch owns the boundary to the broker core: decoded frames
// leave the transport layer through a Dispatcher.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Inbound is one decoded frame annotated with its connection context.
type Inbound struct {
	Protocol   string    `json:"protocol"`
	ConnID     int32     `json:"conn_id"`
	ClientID   string    `json:"client_id,omitempty"`
	Header     byte      `json:"header"`
	Payload    []byte    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// Dispatcher consumes decoded frames. Implementations must be safe for
// concurrent use by many sessions.
type Dispatcher interface {
	Dispatch(ctx context.Context, in Inbound) error
}

// LogDispatcher logs frames instead of forwarding them; the standalone
// daemon uses it when no broker endpoint is configured.
type LogDispatcher struct {
	Log zerolog.Logger
}

func (d LogDispatcher) Dispatch(_ context.Context, in Inbound) error {
	d.Log.Debug().
		Str("protocol", in.Protocol).
		Int32("conn_id", in.ConnID).
		Str("client_id", in.ClientID).
		Uint8("header", in.Header).
		Int("payload_len", len(in.Payload)).
		Msg("frame dispatched")
	return nil
}

// Recorder captures dispatched frames for tests.
type Recorder struct {
	mu     sync.Mutex
	frames []Inbound
}

func (r *Recorder) Dispatch(_ context.Context, in Inbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, in)
	return nil
}

func (r *Recorder) Frames() []Inbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Inbound, len(r.frames))
	copy(out, r.frames)
	return out
}
