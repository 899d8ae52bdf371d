// Package openwire implements the length-prefixed OpenWire framing: a 4-byte
// big-endian size, a command data type byte, then the marshalled command.
package openwire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/danmuck/autowire/internal/wire"
)

const (
	// DefaultMaxFrameSize caps one command's marshalled size.
	DefaultMaxFrameSize = 1024 * 1024 * 100

	// wireFormatInfo is the data type of the mandatory first command.
	wireFormatInfo = 0x01
)

// Magic opens the marshalled WireFormatInfo body.
var Magic = []byte("ActiveMQ")

type Format struct {
	maxFrameSize int
}

func NewFormat() *Format {
	return &Format{maxFrameSize: DefaultMaxFrameSize}
}

func (f *Format) Protocol() wire.Protocol { return wire.OpenWire }

func (f *Format) MaxFrameSize() int     { return f.maxFrameSize }
func (f *Format) SetMaxFrameSize(n int) { f.maxFrameSize = n }

func (f *Format) Encode(w io.Writer, frame wire.Frame) error {
	size := 1 + frame.PayloadLen()
	if size-1 > f.maxFrameSize {
		return wire.ErrFrameTooLarge
	}
	var head [5]byte
	binary.BigEndian.PutUint32(head[:4], uint32(size))
	head[4] = frame.Header
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	for _, seg := range frame.Payload {
		if len(seg) == 0 {
			continue
		}
		if _, err := w.Write(seg); err != nil {
			return err
		}
	}
	return nil
}

func (f *Format) Decode(r io.Reader) (wire.Frame, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return wire.Frame{}, err
	}
	size := int(binary.BigEndian.Uint32(head[:]))
	if size < 1 {
		return wire.Frame{}, fmt.Errorf("%w: openwire size %d", wire.ErrMalformedLength, size)
	}
	if size-1 > f.maxFrameSize {
		return wire.Frame{}, wire.ErrFrameTooLarge
	}

	var one [1]byte
	if _, err := io.ReadFull(r, one[:]); err != nil {
		return wire.Frame{}, err
	}
	if size == 1 {
		return wire.NewFrame(one[0]), nil
	}
	body := make([]byte, size-1)
	if _, err := io.ReadFull(r, body); err != nil {
		return wire.Frame{}, err
	}
	return wire.NewFrame(one[0], body), nil
}

// Handshake requires the first command to be WireFormatInfo.
func (f *Format) Handshake(frame wire.Frame) error {
	if frame.Header != wireFormatInfo {
		return fmt.Errorf("%w: openwire data type 0x%02X", wire.ErrNotHandshake, frame.Header)
	}
	return nil
}

// Match inspects the size prefix, the WireFormatInfo data type, and the start
// of the marshalled magic.
func Match(buf []byte) bool {
	if len(buf) < MatchBytes {
		return false
	}
	size := binary.BigEndian.Uint32(buf[:4])
	return size > 0 && buf[4] == wireFormatInfo && buf[5] == Magic[0] && buf[6] == Magic[1] && buf[7] == Magic[2]
}

// MatchBytes is the detection window Match needs.
const MatchBytes = 8
