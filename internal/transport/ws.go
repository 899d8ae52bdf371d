package transport

import (
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// The WebSocket listener feeds upgraded connections into the same detection
// and session pipeline as raw TCP: the codec sees a byte stream, carried in
// binary messages.

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	Subprotocols:    []string{"mqtt", "stomp", "amqp"},
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) startWS() {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	s.wsServer = &http.Server{Addr: s.cfg.WSAddr, Handler: mux}
	s.log.Info().Str("addr", s.cfg.WSAddr).Msg("websocket listener up")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("websocket server failed")
		}
	}()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.HandleConn(&wsConn{ws: ws}, "ws")
}

// wsConn adapts a websocket.Conn to net.Conn. Reads drain the current
// binary message and pull the next one on demand, so frame boundaries in
// the protocol stream are independent of message boundaries.
type wsConn struct {
	ws     *websocket.Conn
	reader io.Reader
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error { return c.ws.Close() }

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
