package transport

import (
	"testing"

	"github.com/danmuck/autowire/internal/testutil/testlog"
	"github.com/danmuck/autowire/internal/wire"
)

func boolPtr(v bool) *bool { return &v }

func TestLinkStealingDefaultsByProtocol(t *testing.T) {
	testlog.Start(t)
	if !AllowLinkStealing(wire.MQTT, nil) {
		t.Fatalf("mqtt must steal by default")
	}
	for _, p := range []wire.Protocol{wire.OpenWire, wire.STOMP, wire.AMQP} {
		if AllowLinkStealing(p, nil) {
			t.Fatalf("%v must not steal by default", p)
		}
	}
}

func TestOperatorOverrideWins(t *testing.T) {
	testlog.Start(t)
	if AllowLinkStealing(wire.MQTT, boolPtr(false)) {
		t.Fatalf("explicit false ignored for mqtt")
	}
	if !AllowLinkStealing(wire.STOMP, boolPtr(true)) {
		t.Fatalf("explicit true ignored for stomp")
	}
}
