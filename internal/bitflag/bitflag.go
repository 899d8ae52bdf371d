// Package bitflag owns the packed boolean vector used by frame header fields
// that serialize only as many flag bytes as their highest set index needs.
package bitflag

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	byteWidth  = 8
	shortWidth = 16
	intWidth   = 32
	longWidth  = 64
)

// Set is a packed vector of up to 64 booleans with an active length, the
// highest set index plus one. The length picks the serialized width: 1, 2, 4,
// or 8 value bytes.
type Set struct {
	bits   uint64
	length int
}

// Len returns the active length.
func (s *Set) Len() int { return s.length }

// Bits returns the raw packed value.
func (s *Set) Bits() uint64 { return s.bits }

// Set assigns the flag at index and returns the previous value. The active
// length grows to cover index but never shrinks on clear.
func (s *Set) Set(index int, flag bool) bool {
	if index < 0 || index >= longWidth {
		panic(fmt.Sprintf("bitflag: index %d out of range", index))
	}
	if index+1 > s.length {
		s.length = index + 1
	}
	mask := uint64(1) << index
	old := s.bits&mask != 0
	if flag {
		s.bits |= mask
	} else if old {
		s.bits &^= mask
	}
	return old
}

// Get reports the flag at index.
func (s *Set) Get(index int) bool {
	if index < 0 || index >= longWidth {
		panic(fmt.Sprintf("bitflag: index %d out of range", index))
	}
	return s.bits&(uint64(1)<<index) != 0
}

// Reset clears every flag; the active length is kept, matching the wire
// behavior of reusing a vector shape across frames.
func (s *Set) Reset() { s.bits = 0 }

// ResetTo replaces the packed value wholesale.
func (s *Set) ResetTo(bits uint64) { s.bits = bits }

// AppendTo serializes the length byte then the packed value at the width the
// length selects, big-endian.
func (s *Set) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(s.length))
	switch {
	case s.length <= byteWidth:
		return append(dst, byte(s.bits))
	case s.length <= shortWidth:
		return binary.BigEndian.AppendUint16(dst, uint16(s.bits))
	case s.length <= intWidth:
		return binary.BigEndian.AppendUint32(dst, uint32(s.bits))
	default:
		return binary.BigEndian.AppendUint64(dst, s.bits)
	}
}

// ReadFrom restores a vector serialized by AppendTo.
func (s *Set) ReadFrom(r io.Reader) error {
	var one [1]byte
	if _, err := io.ReadFull(r, one[:]); err != nil {
		return err
	}
	length := int(one[0])
	if length > longWidth {
		return fmt.Errorf("bitflag: invalid length %d", length)
	}

	var buf [8]byte
	switch {
	case length <= byteWidth:
		if _, err := io.ReadFull(r, buf[:1]); err != nil {
			return err
		}
		s.bits = uint64(buf[0])
	case length <= shortWidth:
		if _, err := io.ReadFull(r, buf[:2]); err != nil {
			return err
		}
		s.bits = uint64(binary.BigEndian.Uint16(buf[:2]))
	case length <= intWidth:
		if _, err := io.ReadFull(r, buf[:4]); err != nil {
			return err
		}
		s.bits = uint64(binary.BigEndian.Uint32(buf[:4]))
	default:
		if _, err := io.ReadFull(r, buf[:8]); err != nil {
			return err
		}
		s.bits = binary.BigEndian.Uint64(buf[:8])
	}
	s.length = length
	return nil
}
