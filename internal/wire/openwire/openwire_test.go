package openwire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/autowire/internal/testutil/testlog"
	"github.com/danmuck/autowire/internal/wire"
)

func TestRoundTrip(t *testing.T) {
	testlog.Start(t)
	f := NewFormat()
	in := wire.NewFrame(0x01, Magic, []byte{0x00, 0x00, 0x00, 0x0C})

	var buf bytes.Buffer
	if err := f.Encode(&buf, in); err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := f.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Header != 0x01 || !bytes.Equal(out.PayloadBytes(), in.PayloadBytes()) {
		t.Fatalf("mismatch: %+v", out)
	}
}

func TestDecodeRejectsOversizedCommand(t *testing.T) {
	testlog.Start(t)
	f := NewFormat()
	f.SetMaxFrameSize(16)
	in := wire.NewFrame(0x01, make([]byte, 64))
	var buf bytes.Buffer
	if err := f.Encode(&buf, in); !errors.Is(err, wire.ErrFrameTooLarge) {
		t.Fatalf("expected encode ErrFrameTooLarge, got %v", err)
	}
	// Hand-built oversized size prefix.
	raw := []byte{0x00, 0x00, 0x01, 0x00, 0x01}
	if _, err := f.Decode(bytes.NewReader(raw)); !errors.Is(err, wire.ErrFrameTooLarge) {
		t.Fatalf("expected decode ErrFrameTooLarge, got %v", err)
	}
}

func TestHandshakeRequiresWireFormatInfo(t *testing.T) {
	testlog.Start(t)
	f := NewFormat()
	if err := f.Handshake(wire.NewFrame(0x01, Magic)); err != nil {
		t.Fatalf("wireformat info rejected: %v", err)
	}
	if err := f.Handshake(wire.NewFrame(0x06)); !errors.Is(err, wire.ErrNotHandshake) {
		t.Fatalf("expected ErrNotHandshake, got %v", err)
	}
}

func TestMatchSignature(t *testing.T) {
	testlog.Start(t)
	f := NewFormat()
	var buf bytes.Buffer
	if err := f.Encode(&buf, wire.NewFrame(0x01, Magic)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !Match(buf.Bytes()[:MatchBytes]) {
		t.Fatalf("own handshake bytes not matched: %X", buf.Bytes())
	}
	if Match([]byte("AMQP\x00\x01\x00\x00")) {
		t.Fatalf("amqp header matched as openwire")
	}
}
