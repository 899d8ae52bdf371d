// Package stomp implements the NUL-terminated text framing used by STOMP.
// The common Frame header byte carries no meaning here; the whole text frame
// rides in the payload.
package stomp

import (
	"bytes"
	"fmt"
	"io"

	"github.com/danmuck/autowire/internal/wire"
)

// DefaultMaxFrameSize caps one text frame.
const DefaultMaxFrameSize = 1024 * 1024 * 100

var connectCommands = [][]byte{[]byte("CONNECT"), []byte("STOMP")}

type Format struct {
	maxFrameSize int
}

func NewFormat() *Format {
	return &Format{maxFrameSize: DefaultMaxFrameSize}
}

func (f *Format) Protocol() wire.Protocol { return wire.STOMP }

func (f *Format) MaxFrameSize() int     { return f.maxFrameSize }
func (f *Format) SetMaxFrameSize(n int) { f.maxFrameSize = n }

func (f *Format) Encode(w io.Writer, frame wire.Frame) error {
	if frame.PayloadLen() > f.maxFrameSize {
		return wire.ErrFrameTooLarge
	}
	for _, seg := range frame.Payload {
		if len(seg) == 0 {
			continue
		}
		if _, err := w.Write(seg); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte{0})
	return err
}

// Decode accumulates bytes until the NUL terminator. Reads are one byte at a
// time so no bytes past the terminator are consumed from r.
func (f *Format) Decode(r io.Reader) (wire.Frame, error) {
	var one [1]byte
	body := make([]byte, 0, 128)
	for {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			return wire.Frame{}, err
		}
		if one[0] == 0 {
			return wire.NewFrame(0, body), nil
		}
		body = append(body, one[0])
		if len(body) > f.maxFrameSize {
			return wire.Frame{}, wire.ErrFrameTooLarge
		}
	}
}

// Handshake requires the first frame command to be CONNECT or STOMP.
func (f *Format) Handshake(frame wire.Frame) error {
	body := frame.PayloadBytes()
	for _, cmd := range connectCommands {
		if bytes.HasPrefix(body, cmd) {
			return nil
		}
	}
	return fmt.Errorf("%w: stomp command", wire.ErrNotHandshake)
}

// Match looks for the CONNECT or STOMP command at the start of the stream.
func Match(buf []byte) bool {
	if len(buf) < MatchBytes {
		return false
	}
	for _, cmd := range connectCommands {
		if bytes.HasPrefix(buf, cmd) {
			return true
		}
	}
	return false
}

// MatchBytes is the detection window Match needs, len("CONNECT").
const MatchBytes = 7
