package wire

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrMalformedLength = errors.New("wire: malformed length field")
	ErrFrameTooLarge   = errors.New("wire: frame exceeds maximum size")
	ErrNotHandshake    = errors.New("wire: first frame is not a handshake")
)

// Protocol identifies one wire protocol from the closed supported set.
type Protocol uint8

const (
	OpenWire Protocol = iota
	MQTT
	STOMP
	AMQP
)

func (p Protocol) String() string {
	switch p {
	case OpenWire:
		return "openwire"
	case MQTT:
		return "mqtt"
	case STOMP:
		return "stomp"
	case AMQP:
		return "amqp"
	default:
		return fmt.Sprintf("protocol(%d)", uint8(p))
	}
}

// ParseProtocol resolves a configured protocol name.
func ParseProtocol(name string) (Protocol, error) {
	switch name {
	case "openwire":
		return OpenWire, nil
	case "mqtt":
		return MQTT, nil
	case "stomp":
		return STOMP, nil
	case "amqp":
		return AMQP, nil
	default:
		return 0, fmt.Errorf("wire: unknown protocol %q", name)
	}
}

// AllProtocols lists every supported protocol in default detection order.
func AllProtocols() []Protocol {
	return []Protocol{OpenWire, AMQP, STOMP, MQTT}
}

// Frame is one protocol message unit: a header byte plus ordered payload
// segments. A Frame is immutable once constructed; the payload buffers belong
// to the Frame until it is handed to the dispatch collaborator.
type Frame struct {
	Header  byte
	Payload [][]byte
}

// NewFrame builds a frame over the given payload segments without copying.
func NewFrame(header byte, segments ...[]byte) Frame {
	return Frame{Header: header, Payload: segments}
}

// PayloadLen sums the segment lengths.
func (f Frame) PayloadLen() int {
	total := 0
	for _, seg := range f.Payload {
		total += len(seg)
	}
	return total
}

// PayloadBytes flattens the segments into one contiguous copy.
func (f Frame) PayloadBytes() []byte {
	out := make([]byte, 0, f.PayloadLen())
	for _, seg := range f.Payload {
		out = append(out, seg...)
	}
	return out
}

// Format marshals and unmarshals one protocol's frames.
//
// Decode blocks until a full frame is available or the reader fails; fewer
// bytes than a declared length is not an error, the read simply waits.
// Malformed input surfaces as ErrMalformedLength / ErrFrameTooLarge or a
// protocol-specific error.
type Format interface {
	Protocol() Protocol

	// Encode writes f to w in the protocol's wire form.
	Encode(w io.Writer, f Frame) error

	// Decode reads exactly one frame from r.
	Decode(r io.Reader) (Frame, error)

	// Handshake reports whether f is a valid mandatory first frame.
	Handshake(f Frame) error
}
