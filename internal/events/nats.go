package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// natsPublisher is the part of *nats.Conn the sink uses.
type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NatsSink publishes every event on "<subject>.<kind>".
type NatsSink struct {
	conn    natsPublisher
	subject string
}

// ConnectNATS dials url and keeps reconnecting in the background.
func ConnectNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("netmonitor"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

func NewNatsSink(conn natsPublisher, subject string) *NatsSink {
	if subject == "" {
		subject = "netmonitor"
	}
	return &NatsSink{conn: conn, subject: subject}
}

func (s *NatsSink) Send(_ context.Context, e Event) error {
	data, err := Marshal(e)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.subject+"."+string(e.Kind), data)
}

func (s *NatsSink) Name() string { return "nats" }
