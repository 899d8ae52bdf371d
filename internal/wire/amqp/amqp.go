// Package amqp implements AMQP 1.0 framing: the 8-byte protocol header
// exchanged first, then size-prefixed frames.
package amqp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/danmuck/autowire/internal/wire"
)

const (
	// DefaultMaxFrameSize caps one frame body.
	DefaultMaxFrameSize = 1024 * 1024 * 100

	protoHeaderLen = 8

	// minFrameSize is the smallest legal size field: the size itself plus
	// doff, type, and channel.
	minFrameSize = 8
)

// protoPrefix opens the AMQP protocol header.
var protoPrefix = []byte("AMQP")

// Format is stateful per connection: the first decoded unit is the protocol
// header, every later one a sized frame.
type Format struct {
	maxFrameSize int
	headerRead   bool
}

func NewFormat() *Format {
	return &Format{maxFrameSize: DefaultMaxFrameSize}
}

func (f *Format) Protocol() wire.Protocol { return wire.AMQP }

func (f *Format) MaxFrameSize() int     { return f.maxFrameSize }
func (f *Format) SetMaxFrameSize(n int) { f.maxFrameSize = n }

func (f *Format) Encode(w io.Writer, frame wire.Frame) error {
	body := frame.PayloadBytes()
	if bytes.HasPrefix(body, protoPrefix) && len(body) == protoHeaderLen {
		_, err := w.Write(body)
		return err
	}
	if len(body) > f.maxFrameSize {
		return wire.ErrFrameTooLarge
	}
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(4+len(body)))
	if _, err := w.Write(size[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func (f *Format) Decode(r io.Reader) (wire.Frame, error) {
	if !f.headerRead {
		return f.decodeProtoHeader(r)
	}

	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return wire.Frame{}, err
	}
	size := int(binary.BigEndian.Uint32(head[:]))
	if size < minFrameSize {
		return wire.Frame{}, fmt.Errorf("%w: amqp frame size %d", wire.ErrMalformedLength, size)
	}
	if size-4 > f.maxFrameSize {
		return wire.Frame{}, wire.ErrFrameTooLarge
	}
	body := make([]byte, size-4)
	if _, err := io.ReadFull(r, body); err != nil {
		return wire.Frame{}, err
	}
	// body[1] is the frame type (0 = AMQP, 1 = SASL).
	return wire.NewFrame(body[1], body), nil
}

func (f *Format) decodeProtoHeader(r io.Reader) (wire.Frame, error) {
	head := make([]byte, protoHeaderLen)
	if _, err := io.ReadFull(r, head); err != nil {
		return wire.Frame{}, err
	}
	if !bytes.HasPrefix(head, protoPrefix) {
		return wire.Frame{}, fmt.Errorf("%w: amqp protocol header", wire.ErrMalformedLength)
	}
	f.headerRead = true
	// head[4] is the protocol id (0 = AMQP, 3 = SASL).
	return wire.NewFrame(head[4], head), nil
}

// Handshake requires the first unit to be the protocol header.
func (f *Format) Handshake(frame wire.Frame) error {
	if !bytes.HasPrefix(frame.PayloadBytes(), protoPrefix) {
		return fmt.Errorf("%w: amqp protocol header", wire.ErrNotHandshake)
	}
	return nil
}

// Match looks for the protocol header prefix.
func Match(buf []byte) bool {
	return len(buf) >= MatchBytes && bytes.HasPrefix(buf, protoPrefix)
}

// MatchBytes is the detection window Match needs, len("AMQP").
const MatchBytes = 4
