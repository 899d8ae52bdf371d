package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/autowire/internal/dispatch"
	"github.com/danmuck/autowire/internal/observability"
	"github.com/danmuck/autowire/internal/registry"
	"github.com/danmuck/autowire/internal/wire"
	"github.com/danmuck/autowire/internal/wire/mqtt"
)

var (
	ErrLifecycleOrder   = errors.New("transport: invalid session transition")
	ErrHandshakeTimeout = errors.New("transport: no handshake frame before deadline")
	ErrSessionClosed    = errors.New("transport: session closed")
)

// State is one phase of the session lifecycle.
type State string

const (
	StateDetecting   State = "detecting"
	StateHandshaking State = "handshaking"
	StateEstablished State = "established"
	StateClosing     State = "closing"
	StateClosed      State = "closed"
)

var validTransitions = map[State]map[State]bool{
	StateDetecting:   {StateHandshaking: true, StateClosed: true},
	StateHandshaking: {StateEstablished: true, StateClosing: true},
	StateEstablished: {StateClosing: true},
	StateClosing:     {StateClosed: true},
}

// SessionConfig wires one accepted connection into a Session.
type SessionConfig struct {
	ID             int32
	Conn           net.Conn
	Entries        []registry.Entry
	Options        registry.Options
	ConnectTimeout time.Duration
	Dispatcher     dispatch.Dispatcher
	Log            zerolog.Logger

	// OnEstablished runs after a valid handshake frame and before the
	// session is established; an error rejects the connection. The server
	// applies the link policy and presence binding here.
	OnEstablished func(s *Session) error

	// OnTraffic runs after each dispatched frame.
	OnTraffic func(s *Session)

	// OnClosed runs exactly once when the session reaches closed.
	OnClosed func(s *Session)
}

// Session owns one accepted connection from detection to close. All decode
// and encode buffers are per-session; nothing here is shared across
// connections.
type Session struct {
	id             int32
	conn           net.Conn
	acceptedAt     time.Time
	entries        []registry.Entry
	opts           registry.Options
	connectTimeout time.Duration
	dispatcher     dispatch.Dispatcher
	log            zerolog.Logger

	onEstablished func(s *Session) error
	onTraffic     func(s *Session)
	onClosed      func(s *Session)

	mu       sync.Mutex
	state    State
	format   wire.Format
	protocol wire.Protocol
	clientID string
	reader   *bufio.Reader

	writeMu sync.Mutex
	writer  *bufio.Writer

	closeOnce   sync.Once
	closeReason string
}

func NewSession(cfg SessionConfig) *Session {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = mqtt.DefaultConnectAttemptTimeout
	}
	return &Session{
		id:             cfg.ID,
		conn:           cfg.Conn,
		acceptedAt:     time.Now(),
		entries:        cfg.Entries,
		opts:           cfg.Options,
		connectTimeout: timeout,
		dispatcher:     cfg.Dispatcher,
		log:            cfg.Log.With().Int32("conn_id", cfg.ID).Logger(),
		onEstablished:  cfg.OnEstablished,
		onTraffic:      cfg.OnTraffic,
		onClosed:       cfg.OnClosed,
		state:          StateDetecting,
	}
}

func (s *Session) ID() int32 { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Protocol() wire.Protocol {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocol
}

func (s *Session) ClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// Run drives the session to completion. The handshake deadline is measured
// from acceptance, covering both detection and the first frame.
func (s *Session) Run(ctx context.Context) error {
	// Shutdown wakes any blocked read at the next suspension point.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	deadline := s.acceptedAt.Add(s.connectTimeout)

	sniffed, err := Sniff(s.conn, s.entries, deadline)
	if err != nil {
		if ctx.Err() != nil {
			s.abandon("server shutdown")
			return ctx.Err()
		}
		observability.RecordDetectionFailure(detectFailureKind(err))
		s.log.Warn().Err(err).Msg("protocol detection failed")
		s.abandon("detection failed")
		return err
	}

	s.mu.Lock()
	s.protocol = sniffed.Entry.Protocol
	s.format = sniffed.Entry.NewFormat(s.opts)
	// Replay the sniffed prefix ahead of the live stream so the codec sees
	// every byte exactly once.
	s.reader = bufio.NewReader(io.MultiReader(bytes.NewReader(sniffed.Consumed), s.conn))
	s.mu.Unlock()
	s.writeMu.Lock()
	s.writer = bufio.NewWriter(s.conn)
	s.writeMu.Unlock()

	observability.RecordDetection(sniffed.Entry.Protocol.String())
	s.log.Debug().
		Str("protocol", sniffed.Entry.Protocol.String()).
		Int("sniffed_bytes", len(sniffed.Consumed)).
		Msg("protocol detected")

	if err := s.transition(StateHandshaking); err != nil {
		return err
	}

	first, err := s.awaitHandshake(deadline)
	if err != nil {
		s.beginClose("handshake failed")
		return err
	}

	if s.Protocol() == wire.MQTT {
		if id, idErr := mqtt.ClientID(first); idErr == nil {
			s.mu.Lock()
			s.clientID = id
			s.mu.Unlock()
		} else {
			s.log.Debug().Err(idErr).Msg("connect frame carried no usable client id")
		}
	}

	if s.onEstablished != nil {
		if err := s.onEstablished(s); err != nil {
			s.log.Warn().Err(err).Msg("connection rejected")
			s.beginClose("rejected")
			return err
		}
	}
	if err := s.transition(StateEstablished); err != nil {
		return err
	}
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		s.beginClose("deadline reset failed")
		return err
	}
	s.log.Info().
		Str("protocol", s.Protocol().String()).
		Str("client_id", s.ClientID()).
		Str("remote", s.RemoteAddr()).
		Msg("session established")

	// The handshake frame is a real frame; the broker sees it too.
	s.dispatchFrame(ctx, first)
	return s.readLoop(ctx)
}

func (s *Session) awaitHandshake(deadline time.Time) (wire.Frame, error) {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return wire.Frame{}, fmt.Errorf("transport: set handshake deadline: %w", err)
	}
	first, err := s.format.Decode(s.reader)
	if err != nil {
		if isTimeout(err) {
			observability.RecordHandshakeTimeout()
			return wire.Frame{}, fmt.Errorf("%w (%v)", ErrHandshakeTimeout, s.connectTimeout)
		}
		return wire.Frame{}, err
	}
	if err := s.format.Handshake(first); err != nil {
		return wire.Frame{}, err
	}
	return first, nil
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		frame, err := s.format.Decode(s.reader)
		if err != nil {
			return s.readFailed(ctx, err)
		}
		s.dispatchFrame(ctx, frame)
	}
}

func (s *Session) readFailed(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		s.log.Debug().Msg("session closing on shutdown")
		s.beginClose("server shutdown")
		return ctx.Err()
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.beginClose("remote closed")
		return nil
	case errors.Is(err, wire.ErrMalformedLength), errors.Is(err, wire.ErrFrameTooLarge):
		observability.RecordDecodeError(s.Protocol().String(), decodeErrorKind(err))
		s.log.Warn().Err(err).Msg("decode error, closing session")
		s.beginClose("decode error")
		return err
	default:
		if s.State() == StateClosed {
			// Force-closed from the outside while blocked in a read.
			return nil
		}
		s.beginClose("read failed")
		return err
	}
}

func (s *Session) dispatchFrame(ctx context.Context, frame wire.Frame) {
	observability.RecordFrameDecoded(s.Protocol().String())
	in := dispatch.Inbound{
		Protocol:   s.Protocol().String(),
		ConnID:     s.id,
		ClientID:   s.ClientID(),
		Header:     frame.Header,
		Payload:    frame.PayloadBytes(),
		ReceivedAt: time.Now(),
	}
	if err := s.dispatcher.Dispatch(ctx, in); err != nil {
		s.log.Error().Err(err).Msg("frame dispatch failed")
	}
	if s.onTraffic != nil {
		s.onTraffic(s)
	}
}

// Send encodes one outbound frame and flushes it to the connection.
func (s *Session) Send(frame wire.Frame) error {
	s.mu.Lock()
	state := s.state
	format := s.format
	s.mu.Unlock()
	if state != StateHandshaking && state != StateEstablished {
		return ErrSessionClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := format.Encode(s.writer, frame); err != nil {
		return err
	}
	observability.RecordFrameEncoded(format.Protocol().String())
	return s.writer.Flush()
}

// ForceClose terminates the session from outside its own goroutine, used
// when a new connection steals this session's client identity or the server
// shuts down.
func (s *Session) ForceClose(reason string) {
	s.log.Info().Str("reason", reason).Msg("session force closed")
	s.beginClose(reason)
}

// beginClose flushes pending outbound bytes best-effort, releases the
// connection, and lands in closed. Safe to call from any goroutine, any
// number of times.
func (s *Session) beginClose(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closeReason = reason
		s.state = StateClosing
		s.mu.Unlock()

		s.writeMu.Lock()
		if s.writer != nil {
			_ = s.writer.Flush()
		}
		s.writeMu.Unlock()
		_ = s.conn.Close()

		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		if s.onClosed != nil {
			s.onClosed(s)
		}
		s.log.Debug().Str("reason", reason).Msg("session closed")
	})
}

// abandon closes a session that never produced a usable frame: detection
// failures skip closing and land directly in closed with nothing dispatched.
func (s *Session) abandon(reason string) {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		s.mu.Lock()
		s.closeReason = reason
		s.state = StateClosed
		s.mu.Unlock()
		if s.onClosed != nil {
			s.onClosed(s)
		}
	})
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validTransitions[s.state][to] {
		return fmt.Errorf("%w: %s -> %s", ErrLifecycleOrder, s.state, to)
	}
	s.state = to
	return nil
}

func detectFailureKind(err error) string {
	switch {
	case errors.Is(err, ErrDetectTimeout):
		return "timeout"
	case errors.Is(err, ErrProtocolUnknown):
		return "unrecognized"
	default:
		return "io"
	}
}

func decodeErrorKind(err error) string {
	switch {
	case errors.Is(err, wire.ErrMalformedLength):
		return "malformed_length"
	case errors.Is(err, wire.ErrFrameTooLarge):
		return "frame_too_large"
	default:
		return "other"
	}
}
