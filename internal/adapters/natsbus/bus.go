// Package natsbus mirrors run events onto NATS subjects so other services can
// follow runs without holding a websocket open.
package natsbus

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"roastbot/internal/core/domain"
	"roastbot/internal/wire"
)

// SubjectPrefix is prepended to every run subject.
const SubjectPrefix = "roastbot.runs."

// Bus wraps a NATS connection and implements ports.EventSink.
type Bus struct {
	conn *nats.Conn
}

// New creates a Bus connected to the provided NATS endpoint.
func New(url string, opts ...nats.Option) (*Bus, error) {
	opts = append([]nats.Option{nats.Name("roastbot")}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &Bus{conn: nc}, nil
}

// Close drains and shuts down the underlying NATS connection.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Subject returns the subject events of runID are published on.
func Subject(runID string) string {
	return SubjectPrefix + runID + ".events"
}

// PublishEvent encodes ev in its websocket wire form and publishes it.
func (b *Bus) PublishEvent(ctx context.Context, ev domain.Event) error {
	if b == nil {
		return errors.New("nil bus")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := wire.Marshal(ev)
	if err != nil {
		return err
	}
	return b.conn.Publish(Subject(ev.Run()), data)
}
