package mqtt

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/autowire/internal/testutil/testlog"
	"github.com/danmuck/autowire/internal/wire"
)

func TestRemainingLengthBoundaryValues(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		length int
		want   []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{16383, []byte{0xFF, 0x7F}},
		{16384, []byte{0x80, 0x80, 0x01}},
		{2097151, []byte{0xFF, 0xFF, 0x7F}},
		{268435455, []byte{0xFF, 0xFF, 0xFF, 0x7F}},
	}
	for _, tc := range cases {
		got := appendLength(nil, tc.length)
		if !bytes.Equal(got, tc.want) {
			t.Fatalf("encode %d: got=%X want=%X", tc.length, got, tc.want)
		}
		back, err := readLength(bytes.NewReader(tc.want))
		if err != nil {
			t.Fatalf("decode %X: %v", tc.want, err)
		}
		if back != tc.length {
			t.Fatalf("decode %X: got=%d want=%d", tc.want, back, tc.length)
		}
	}
}

func TestReadLengthMalformedFourthByte(t *testing.T) {
	testlog.Start(t)
	// Continuation bit still set on the 4th byte: protocol violation, never
	// a 5th read.
	in := bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F})
	if _, err := readLength(in); !errors.Is(err, wire.ErrMalformedLength) {
		t.Fatalf("expected ErrMalformedLength, got %v", err)
	}
	if in.Len() != 1 {
		t.Fatalf("decoder consumed past the 4th byte: %d left", in.Len())
	}
}

func TestDecodeRejectsOversizedFrameBeforePayloadRead(t *testing.T) {
	testlog.Start(t)
	f := NewFormat()
	// 2^28-1 declared, nothing behind it: a too-large error proves the
	// payload was never read or allocated, otherwise this would be an
	// unexpected EOF.
	in := bytes.NewReader([]byte{0x30, 0xFF, 0xFF, 0xFF, 0x7F})
	f.SetMaxFrameSize(1024)
	if _, err := f.Decode(in); !errors.Is(err, wire.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if in.Len() != 0 {
		t.Fatalf("length field not fully consumed: %d left", in.Len())
	}
}

func TestDecodeFrameTooLargeAtProtocolCeiling(t *testing.T) {
	testlog.Start(t)
	f := NewFormat()
	// 268435456 = 2^28, one past the representable maximum: the 4-byte
	// encoding of it is already malformed.
	in := bytes.NewReader([]byte{0x30, 0x80, 0x80, 0x80, 0x80, 0x01})
	if _, err := f.Decode(in); !errors.Is(err, wire.ErrMalformedLength) {
		t.Fatalf("expected ErrMalformedLength, got %v", err)
	}
}

func TestSetMaxFrameSizeClampsToCeiling(t *testing.T) {
	testlog.Start(t)
	f := NewFormat()
	f.SetMaxFrameSize(MaxFrameSize + 1)
	if got := f.MaxFrameSize(); got != MaxFrameSize {
		t.Fatalf("clamp failed: got=%d want=%d", got, MaxFrameSize)
	}
	f.SetMaxFrameSize(MaxFrameSize)
	if got := f.MaxFrameSize(); got != MaxFrameSize {
		t.Fatalf("ceiling value rejected: got=%d", got)
	}
	f.SetMaxFrameSize(4096)
	if got := f.MaxFrameSize(); got != 4096 {
		t.Fatalf("in-range value changed: got=%d", got)
	}
}

func TestRoundTripMultiSegmentPayload(t *testing.T) {
	testlog.Start(t)
	f := NewFormat()
	in := wire.NewFrame(0x32, []byte("topic"), []byte{0x00, 0x01}, []byte("payload bytes"))

	var buf bytes.Buffer
	if err := f.Encode(&buf, in); err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := f.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Header != in.Header {
		t.Fatalf("header mismatch: got=0x%02X want=0x%02X", out.Header, in.Header)
	}
	if !bytes.Equal(out.PayloadBytes(), in.PayloadBytes()) {
		t.Fatalf("payload mismatch")
	}
	if buf.Len() != 0 {
		t.Fatalf("decode left %d bytes behind", buf.Len())
	}
}

func TestRoundTripZeroLengthPayload(t *testing.T) {
	testlog.Start(t)
	f := NewFormat()
	in := wire.NewFrame(0xC0) // PINGREQ

	var buf bytes.Buffer
	if err := f.Encode(&buf, in); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := buf.Bytes(); !bytes.Equal(got, []byte{0xC0, 0x00}) {
		t.Fatalf("unexpected wire bytes: %X", got)
	}
	out, err := f.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Header != 0xC0 || out.PayloadLen() != 0 {
		t.Fatalf("unexpected frame: %+v", out)
	}
}

func TestDecodeAwaitsShortPayload(t *testing.T) {
	testlog.Start(t)
	f := NewFormat()
	// 5 bytes declared, 3 delivered: the blocked read surfaces as an
	// unexpected EOF from the closed reader, not as a truncated frame.
	in := bytes.NewReader([]byte{0x30, 0x05, 'a', 'b', 'c'})
	_, err := f.Decode(in)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestHandshakeRequiresConnect(t *testing.T) {
	testlog.Start(t)
	f := NewFormat()
	if err := f.Handshake(wire.NewFrame(0x10)); err != nil {
		t.Fatalf("connect rejected: %v", err)
	}
	if err := f.Handshake(wire.NewFrame(0x30)); !errors.Is(err, wire.ErrNotHandshake) {
		t.Fatalf("expected ErrNotHandshake, got %v", err)
	}
}

func TestClientIDFromConnect(t *testing.T) {
	testlog.Start(t)
	frame := connectFrame(t, "sensor-17")
	id, err := ClientID(frame)
	if err != nil {
		t.Fatalf("client id: %v", err)
	}
	if id != "sensor-17" {
		t.Fatalf("unexpected client id %q", id)
	}
}

func connectFrame(t *testing.T, clientID string) wire.Frame {
	t.Helper()
	var body bytes.Buffer
	body.Write([]byte{0x00, 0x04})
	body.WriteString("MQTT")
	body.Write([]byte{0x04, 0x02, 0x00, 0x3C})
	body.Write([]byte{byte(len(clientID) >> 8), byte(len(clientID))})
	body.WriteString(clientID)
	return wire.NewFrame(0x10, body.Bytes())
}
