package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/danmuck/autowire/internal/registry"
)

var (
	ErrProtocolUnknown = errors.New("transport: no enabled protocol matched")
	ErrDetectTimeout   = errors.New("transport: protocol detection timed out")
)

// Sniffed is a successful detection: the winning entry and the exact bytes
// consumed deciding it, which must be replayed into the codec's input.
type Sniffed struct {
	Entry    registry.Entry
	Consumed []byte
}

// Sniff reads the minimum prefix of conn needed to pick one of the enabled
// protocols. Bytes arrive one at a time and every still-viable signature is
// re-evaluated after each, in registration order, so the first entry whose
// window fills with a matching prefix wins and not a byte more is consumed.
// The read is bounded by deadline.
func Sniff(conn net.Conn, entries []registry.Entry, deadline time.Time) (Sniffed, error) {
	if len(entries) == 0 {
		return Sniffed{}, ErrProtocolUnknown
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return Sniffed{}, fmt.Errorf("transport: set detection deadline: %w", err)
	}

	window := registry.DetectWindow(entries)
	buf := make([]byte, 0, window)
	rejected := make([]bool, len(entries))
	var one [1]byte

	for len(buf) < window {
		if _, err := io.ReadFull(conn, one[:]); err != nil {
			if isTimeout(err) {
				return Sniffed{}, fmt.Errorf("%w after %d bytes", ErrDetectTimeout, len(buf))
			}
			return Sniffed{}, fmt.Errorf("transport: detection read: %w", err)
		}
		buf = append(buf, one[0])

		waiting := false
		for i, e := range entries {
			if rejected[i] {
				continue
			}
			if len(buf) < e.MinBytes {
				waiting = true
				continue
			}
			if e.Match(buf[:e.MinBytes]) {
				return Sniffed{Entry: e, Consumed: buf}, nil
			}
			rejected[i] = true
		}
		if !waiting {
			return Sniffed{}, fmt.Errorf("%w: %d header bytes rejected", ErrProtocolUnknown, len(buf))
		}
	}
	return Sniffed{}, fmt.Errorf("%w: detection window exhausted", ErrProtocolUnknown)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
