// Package mqtt implements the MQTT frame codec: fixed header byte,
// remaining-length varint, payload.
package mqtt

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/autowire/internal/wire"
)

const (
	// MaxFrameSize is the protocol ceiling on a single frame's payload,
	// 256 MiB, matching the largest value the 4-byte remaining-length
	// encoding can represent rounded to the enforced limit.
	MaxFrameSize = 1024 * 1024 * 256

	// DefaultConnectAttemptTimeout bounds the wait for the CONNECT frame.
	DefaultConnectAttemptTimeout = 30000 * time.Millisecond

	// maxLengthBytes is the remaining-length encoding width limit.
	maxLengthBytes = 4

	continuationBit = 0x80

	packetTypeConnect = 0x10
)

// Format is the MQTT wire codec. Zero value is not usable; use NewFormat.
type Format struct {
	version        int
	maxFrameSize   int
	connectTimeout time.Duration
}

func NewFormat() *Format {
	return &Format{
		version:        1,
		maxFrameSize:   MaxFrameSize,
		connectTimeout: DefaultConnectAttemptTimeout,
	}
}

func (f *Format) Protocol() wire.Protocol { return wire.MQTT }

func (f *Format) Version() int      { return f.version }
func (f *Format) SetVersion(v int)  { f.version = v }
func (f *Format) MaxFrameSize() int { return f.maxFrameSize }

// SetMaxFrameSize caps the accepted frame size. Values above the protocol
// ceiling clamp to exactly MaxFrameSize; values at or below pass unchanged.
func (f *Format) SetMaxFrameSize(n int) {
	if n > MaxFrameSize {
		n = MaxFrameSize
	}
	f.maxFrameSize = n
}

func (f *Format) ConnectAttemptTimeout() time.Duration { return f.connectTimeout }

func (f *Format) SetConnectAttemptTimeout(d time.Duration) { f.connectTimeout = d }

// Encode writes the header byte, the summed payload length as a
// remaining-length varint, then every payload segment in order.
func (f *Format) Encode(w io.Writer, frame wire.Frame) error {
	remaining := frame.PayloadLen()
	if remaining > f.maxFrameSize {
		return wire.ErrFrameTooLarge
	}

	head := make([]byte, 1, 1+maxLengthBytes)
	head[0] = frame.Header
	head = appendLength(head, remaining)
	if _, err := w.Write(head); err != nil {
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

// Decode reads one frame: header byte, remaining-length varint, payload.
// The frame-size check runs before the payload buffer is allocated so a
// hostile length field cannot force a large allocation.
func (f *Format) Decode(r io.Reader) (wire.Frame, error) {
	var one [1]byte
	if _, err := io.ReadFull(r, one[:]); err != nil {
		return wire.Frame{}, err
	}
	header := one[0]

	length, err := readLength(r)
	if err != nil {
		return wire.Frame{}, err
	}
	if length > f.maxFrameSize {
		return wire.Frame{}, wire.ErrFrameTooLarge
	}
	if length == 0 {
		return wire.NewFrame(header), nil
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return wire.Frame{}, err
	}
	return wire.NewFrame(header, payload), nil
}

// Handshake requires the first frame to be CONNECT.
func (f *Format) Handshake(frame wire.Frame) error {
	if frame.Header&0xF0 != packetTypeConnect {
		return fmt.Errorf("%w: mqtt header 0x%02X", wire.ErrNotHandshake, frame.Header)
	}
	return nil
}

// Match reports whether buf opens an MQTT connection. One byte suffices:
// the first control packet must be CONNECT.
func Match(buf []byte) bool {
	return len(buf) >= 1 && buf[0]&0xF0 == packetTypeConnect
}

// MatchBytes is the detection window Match needs.
const MatchBytes = 1

// appendLength appends the remaining-length varint: low 7 bits per byte,
// continuation bit 0x80 while more bytes follow. Zero is a single 0x00.
func appendLength(dst []byte, length int) []byte {
	for {
		digit := byte(length & 0x7F)
		length >>= 7
		if length > 0 {
			digit |= continuationBit
		}
		dst = append(dst, digit)
		if length == 0 {
			return dst
		}
	}
}

// readLength decodes the remaining-length varint. Termination is decided
// strictly by the continuation bit, never by the byte's sign, and a fourth
// byte that still carries the continuation bit is a protocol violation.
func readLength(r io.Reader) (int, error) {
	var one [1]byte
	length := 0
	for i := 0; i < maxLengthBytes; i++ {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			return 0, err
		}
		digit := one[0]
		length |= int(digit&0x7F) << (7 * i)
		if digit&continuationBit == 0 {
			return length, nil
		}
	}
	return 0, wire.ErrMalformedLength
}

// ClientID extracts the client identifier from a CONNECT frame payload.
// Used to key link stealing on the logical client identity.
func ClientID(frame wire.Frame) (string, error) {
	if err := (&Format{}).Handshake(frame); err != nil {
		return "", err
	}
	body := frame.PayloadBytes()

	// Variable header: protocol name, level, connect flags, keep alive.
	name, rest, err := readString(body)
	if err != nil {
		return "", fmt.Errorf("mqtt: connect protocol name: %w", err)
	}
	if name != "MQTT" && name != "MQIsdp" {
		return "", fmt.Errorf("mqtt: unexpected protocol name %q", name)
	}
	if len(rest) < 4 {
		return "", fmt.Errorf("mqtt: connect variable header truncated")
	}
	rest = rest[4:]

	id, _, err := readString(rest)
	if err != nil {
		return "", fmt.Errorf("mqtt: connect client id: %w", err)
	}
	return id, nil
}

func readString(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, io.ErrUnexpectedEOF
	}
	n := int(binary.BigEndian.Uint16(buf[:2]))
	if len(buf) < 2+n {
		return "", nil, io.ErrUnexpectedEOF
	}
	return string(buf[2 : 2+n]), buf[2+n:], nil
}
