package bitflag

import (
	"bytes"
	"testing"
)

func TestSetGetAndOldValue(t *testing.T) {
	var s Set
	if old := s.Set(3, true); old {
		t.Fatalf("fresh bit reported set")
	}
	if !s.Get(3) || s.Get(2) {
		t.Fatalf("unexpected bits: %064b", s.Bits())
	}
	if s.Len() != 4 {
		t.Fatalf("length got=%d want=4", s.Len())
	}
	if old := s.Set(3, false); !old {
		t.Fatalf("clear did not report previous value")
	}
	if s.Len() != 4 {
		t.Fatalf("clear shrank length to %d", s.Len())
	}
}

func TestSerializedWidthFollowsLength(t *testing.T) {
	cases := []struct {
		highest   int
		wantBytes int // length byte + value bytes
	}{
		{7, 2},
		{8, 3},
		{15, 3},
		{16, 5},
		{31, 5},
		{32, 9},
		{63, 9},
	}
	for _, tc := range cases {
		var s Set
		s.Set(tc.highest, true)
		out := s.AppendTo(nil)
		if len(out) != tc.wantBytes {
			t.Fatalf("highest=%d serialized %d bytes, want %d", tc.highest, len(out), tc.wantBytes)
		}

		var back Set
		if err := back.ReadFrom(bytes.NewReader(out)); err != nil {
			t.Fatalf("highest=%d read back: %v", tc.highest, err)
		}
		if back.Len() != s.Len() || back.Bits() != s.Bits() {
			t.Fatalf("highest=%d round trip mismatch: len=%d bits=%X", tc.highest, back.Len(), back.Bits())
		}
	}
}

func TestResetKeepsLength(t *testing.T) {
	var s Set
	s.Set(10, true)
	s.Reset()
	if s.Bits() != 0 {
		t.Fatalf("reset left bits %X", s.Bits())
	}
	if s.Len() != 11 {
		t.Fatalf("reset changed length to %d", s.Len())
	}
	s.ResetTo(0xFF)
	if !s.Get(0) || !s.Get(7) {
		t.Fatalf("reset-to bits wrong: %X", s.Bits())
	}
}

func TestReadFromRejectsInvalidLength(t *testing.T) {
	var s Set
	if err := s.ReadFrom(bytes.NewReader([]byte{65, 0, 0, 0, 0, 0, 0, 0, 0})); err == nil {
		t.Fatalf("expected error for length 65")
	}
}
