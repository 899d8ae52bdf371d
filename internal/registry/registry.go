// Package registry owns the enabled-protocol table used for detection.
//
// Ownership boundary:
// - ordered (matcher, codec factory) pairs
// - registration-order tie-break policy
// - detection window sizing
package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/autowire/internal/wire"
	"github.com/danmuck/autowire/internal/wire/amqp"
	"github.com/danmuck/autowire/internal/wire/mqtt"
	"github.com/danmuck/autowire/internal/wire/openwire"
	"github.com/danmuck/autowire/internal/wire/stomp"
)

// Options carries the wire-format configuration handed to each codec factory.
type Options struct {
	MaxFrameSize          int
	ConnectAttemptTimeout time.Duration
	Version               int
}

// Entry pairs one protocol's detection signature with its codec factory.
type Entry struct {
	Protocol wire.Protocol

	// MinBytes is how many leading bytes Match needs before it can decide.
	MinBytes int

	// Match evaluates the detection buffer; it is only called once at least
	// MinBytes are available.
	Match func(buf []byte) bool

	// NewFormat builds a fresh codec for one connection.
	NewFormat func(opts Options) wire.Format
}

// Build resolves enabled protocol names into ordered entries. Order is
// preserved and observable: detection tries entries first to last and the
// first matching signature wins, so registration order is the tie-break if
// signatures ever overlap. Duplicate names are ignored, unknown names error.
func Build(names []string) ([]Entry, error) {
	if len(names) == 0 {
		return defaults(), nil
	}

	entries := make([]Entry, 0, len(names))
	seen := make(map[wire.Protocol]bool, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if name == "all" {
			return defaults(), nil
		}
		proto, err := wire.ParseProtocol(name)
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		if seen[proto] {
			continue
		}
		seen[proto] = true
		entries = append(entries, entryFor(proto))
	}
	if len(entries) == 0 {
		return defaults(), nil
	}
	return entries, nil
}

// DetectWindow is the largest MinBytes over entries: the sniffer never needs
// to buffer more than this to evaluate every signature.
func DetectWindow(entries []Entry) int {
	window := 0
	for _, e := range entries {
		if e.MinBytes > window {
			window = e.MinBytes
		}
	}
	return window
}

func defaults() []Entry {
	all := wire.AllProtocols()
	entries := make([]Entry, 0, len(all))
	for _, proto := range all {
		entries = append(entries, entryFor(proto))
	}
	return entries
}

func entryFor(proto wire.Protocol) Entry {
	switch proto {
	case wire.OpenWire:
		return Entry{
			Protocol: wire.OpenWire,
			MinBytes: openwire.MatchBytes,
			Match:    openwire.Match,
			NewFormat: func(opts Options) wire.Format {
				f := openwire.NewFormat()
				if opts.MaxFrameSize > 0 {
					f.SetMaxFrameSize(opts.MaxFrameSize)
				}
				return f
			},
		}
	case wire.MQTT:
		return Entry{
			Protocol: wire.MQTT,
			MinBytes: mqtt.MatchBytes,
			Match:    mqtt.Match,
			NewFormat: func(opts Options) wire.Format {
				f := mqtt.NewFormat()
				if opts.MaxFrameSize > 0 {
					f.SetMaxFrameSize(opts.MaxFrameSize)
				}
				if opts.ConnectAttemptTimeout > 0 {
					f.SetConnectAttemptTimeout(opts.ConnectAttemptTimeout)
				}
				if opts.Version > 0 {
					f.SetVersion(opts.Version)
				}
				return f
			},
		}
	case wire.STOMP:
		return Entry{
			Protocol: wire.STOMP,
			MinBytes: stomp.MatchBytes,
			Match:    stomp.Match,
			NewFormat: func(opts Options) wire.Format {
				f := stomp.NewFormat()
				if opts.MaxFrameSize > 0 {
					f.SetMaxFrameSize(opts.MaxFrameSize)
				}
				return f
			},
		}
	case wire.AMQP:
		return Entry{
			Protocol: wire.AMQP,
			MinBytes: amqp.MatchBytes,
			Match:    amqp.Match,
			NewFormat: func(opts Options) wire.Format {
				f := amqp.NewFormat()
				if opts.MaxFrameSize > 0 {
					f.SetMaxFrameSize(opts.MaxFrameSize)
				}
				return f
			},
		}
	}
	panic(fmt.Sprintf("registry: no entry for protocol %v", proto))
}
