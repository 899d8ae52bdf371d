package wire

import "testing"

func TestParseProtocolRoundTrip(t *testing.T) {
	for _, p := range AllProtocols() {
		got, err := ParseProtocol(p.String())
		if err != nil {
			t.Fatalf("parse %q: %v", p.String(), err)
		}
		if got != p {
			t.Fatalf("parse %q got %v", p.String(), got)
		}
	}
	if _, err := ParseProtocol("http"); err == nil {
		t.Fatalf("unknown protocol accepted")
	}
}

func TestFramePayloadSegments(t *testing.T) {
	f := NewFrame(0x30, []byte{1, 2}, nil, []byte{3})
	if f.PayloadLen() != 3 {
		t.Fatalf("payload len got=%d", f.PayloadLen())
	}
	got := f.PayloadBytes()
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("payload bytes got=%v", got)
	}
	if empty := NewFrame(0xC0); empty.PayloadLen() != 0 || len(empty.PayloadBytes()) != 0 {
		t.Fatalf("empty frame has payload")
	}
}
