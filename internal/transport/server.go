package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/autowire/internal/config"
	"github.com/danmuck/autowire/internal/dispatch"
	"github.com/danmuck/autowire/internal/observability"
	"github.com/danmuck/autowire/internal/presence"
	"github.com/danmuck/autowire/internal/registry"
	"github.com/danmuck/autowire/internal/sequence"
)

// Server accepts connections, runs one Session per connection, and applies
// the link policy through the presence registry. The protocol registry is
// built once at construction and read-only afterwards.
type Server struct {
	cfg        config.Config
	entries    []registry.Entry
	opts       registry.Options
	dispatcher dispatch.Dispatcher
	clients    *presence.Registry
	mirror     presence.Mirror
	log        zerolog.Logger

	seq           sequence.Generator
	listener      net.Listener
	wsServer      *http.Server
	metricsServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sessions sync.Map // conn id -> *Session
}

// NewServer builds a server from cfg. mirror may be nil when no shared
// presence store is configured.
func NewServer(cfg config.Config, dispatcher dispatch.Dispatcher, mirror presence.Mirror, logger zerolog.Logger) (*Server, error) {
	entries, err := registry.Build(cfg.EnabledProtocols())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		entries: entries,
		opts: registry.Options{
			MaxFrameSize:          cfg.MaxFrameSize,
			ConnectAttemptTimeout: cfg.ConnectAttemptTimeout(),
			Version:               cfg.WireVersion,
		},
		dispatcher: dispatcher,
		clients:    presence.NewRegistry(),
		mirror:     mirror,
		log:        logger,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = listener
	s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("tcp listener up")

	s.wg.Add(1)
	go s.acceptLoop()

	if s.cfg.WSAddr != "" {
		s.startWS()
	}
	if s.cfg.MetricsAddr != "" {
		s.startMetrics()
	}
	return nil
}

// Stop cancels every session (observed at its next read), closes the
// listeners, and waits for the connection goroutines to drain.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if s.wsServer != nil {
		_ = s.wsServer.Shutdown(shutdownCtx)
	}
	if s.metricsServer != nil {
		_ = s.metricsServer.Shutdown(shutdownCtx)
	}
	s.sessions.Range(func(_, value any) bool {
		if sess, ok := value.(*Session); ok {
			sess.ForceClose("server shutdown")
		}
		return true
	})
	s.wg.Wait()
}

// Addr reports the bound TCP listener address, useful when listening on :0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SessionCount reports currently tracked sessions.
func (s *Server) SessionCount() int {
	count := 0
	s.sessions.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.log.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		s.applyTransportOptions(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.HandleConn(conn, "tcp")
		}()
	}
}

func (s *Server) applyTransportOptions(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.SetNoDelay(s.cfg.Transport.NoDelay)
	if s.cfg.Transport.ReadBufferSize > 0 {
		_ = tc.SetReadBuffer(s.cfg.Transport.ReadBufferSize)
	}
	if s.cfg.Transport.WriteBufferSize > 0 {
		_ = tc.SetWriteBuffer(s.cfg.Transport.WriteBufferSize)
	}
}

// HandleConn runs the full session lifecycle for one accepted connection.
// Exported so alternative listeners (WebSocket) can feed the same pipeline.
func (s *Server) HandleConn(conn net.Conn, listener string) {
	id := s.seq.Next()
	observability.RecordConnectionOpened(listener)

	sess := NewSession(SessionConfig{
		ID:             id,
		Conn:           conn,
		Entries:        s.entries,
		Options:        s.opts,
		ConnectTimeout: s.cfg.ConnectAttemptTimeout(),
		Dispatcher:     s.dispatcher,
		Log:            s.log,
		OnEstablished:  s.establish,
		OnTraffic:      s.refresh,
		OnClosed:       s.closed,
	})
	s.sessions.Store(id, sess)
	defer s.sessions.Delete(id)

	if err := sess.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug().Err(err).Int32("conn_id", id).Msg("session ended with error")
	}
}

// establish applies the link policy once the handshake frame has named a
// client identity.
func (s *Server) establish(sess *Session) error {
	clientID := sess.ClientID()
	if clientID == "" {
		return nil
	}
	allow := AllowLinkStealing(sess.Protocol(), s.cfg.AllowLinkStealing)
	stole, err := s.clients.Bind(clientID, sess, allow)
	if err != nil {
		return fmt.Errorf("client %q: %w", clientID, err)
	}
	if stole {
		observability.RecordLinkStolen()
		s.log.Info().Str("client_id", clientID).Int32("conn_id", sess.ID()).Msg("link stolen")
	}
	if s.mirror != nil {
		info := fmt.Sprintf("%d:%s:%s", sess.ID(), sess.Protocol(), sess.RemoteAddr())
		if err := s.mirror.Register(s.ctx, clientID, info); err != nil {
			s.log.Warn().Err(err).Str("client_id", clientID).Msg("presence register failed")
		}
	}
	return nil
}

func (s *Server) refresh(sess *Session) {
	if s.mirror == nil {
		return
	}
	clientID := sess.ClientID()
	if clientID == "" {
		return
	}
	if err := s.mirror.Refresh(s.ctx, clientID); err != nil {
		s.log.Debug().Err(err).Str("client_id", clientID).Msg("presence refresh failed")
	}
}

func (s *Server) closed(sess *Session) {
	observability.RecordConnectionClosed()
	clientID := sess.ClientID()
	if clientID == "" {
		return
	}
	s.clients.Release(clientID, sess)
	if s.mirror != nil {
		// Only the current holder removes the shared record; a stolen
		// session must not erase its successor's registration.
		if _, held := s.clients.Lookup(clientID); !held {
			if err := s.mirror.Remove(context.Background(), clientID); err != nil {
				s.log.Debug().Err(err).Str("client_id", clientID).Msg("presence remove failed")
			}
		}
	}
}

func (s *Server) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	s.metricsServer = &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}
	s.log.Info().Str("addr", s.cfg.MetricsAddr).Msg("metrics listener up")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}
