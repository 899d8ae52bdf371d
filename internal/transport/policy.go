package transport

import "github.com/danmuck/autowire/internal/wire"

// AllowLinkStealing decides whether a new connection claiming an already
// bound client identity may displace the holder. An explicit operator
// setting always wins. With nothing configured the flag is enabled only for
// MQTT, whose specification mandates that a new connection with the same
// client identifier supersede the old one; no other protocol gets the
// override.
func AllowLinkStealing(p wire.Protocol, operator *bool) bool {
	if operator != nil {
		return *operator
	}
	return p == wire.MQTT
}
