package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSDispatcher publishes decoded frames to the broker core over NATS,
// one subject per protocol under the configured prefix.
type NATSDispatcher struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSDispatcher(conn *nats.Conn, prefix string) *NATSDispatcher {
	if prefix == "" {
		prefix = "autowire"
	}
	return &NATSDispatcher{conn: conn, prefix: prefix}
}

func (d *NATSDispatcher) Dispatch(_ context.Context, in Inbound) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("dispatch: marshal inbound: %w", err)
	}
	subject := fmt.Sprintf("%s.frames.%s", d.prefix, in.Protocol)
	if err := d.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("dispatch: publish %s: %w", subject, err)
	}
	return nil
}
