package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/oraqon/dp-aero-L2/errors"
	"github.com/oraqon/dp-aero-L2/natsclient"
)

// Handler consumes one raw message payload.
type Handler func(payload []byte)

// Bus is the pub/sub surface the fusion manager depends on.
type Bus interface {
	// Publish sends one payload to a topic. Serialized internally; safe
	// for concurrent use.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe consumes a topic in arrival order, invoking handler on
	// the subscription goroutine, and blocks until ctx is cancelled or
	// the transport fails fatally.
	Subscribe(ctx context.Context, topic string, handler Handler) error
}

// NATSBus implements Bus over a managed NATS connection.
type NATSBus struct {
	client *natsclient.Client
	logger *slog.Logger

	// publishMu serializes publishes; the underlying connection is not
	// meant to interleave writers from this tier.
	publishMu sync.Mutex
}

// NewNATSBus wraps a connected client.
func NewNATSBus(client *natsclient.Client, logger *slog.Logger) *NATSBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSBus{client: client, logger: logger}
}

// Publish implements Bus.
func (b *NATSBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	if err := b.client.Publish(ctx, topic, payload); err != nil {
		return errors.WrapTransient(err, "NATSBus", "Publish", "publish to "+topic)
	}
	return nil
}

// Subscribe implements Bus. Messages are drained from a channel-backed
// subscription so delivery order matches arrival order; the loop returns
// nil on cancellation and the transport error on failure.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	conn := b.client.GetConnection()
	if conn == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "NATSBus", "Subscribe", "subscribe to "+topic)
	}

	ch := make(chan *nats.Msg, 256)
	sub, err := conn.ChanSubscribe(topic, ch)
	if err != nil {
		return errors.WrapTransient(err, "NATSBus", "Subscribe", "subscribe to "+topic)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Debug("unsubscribe failed", "component", "NATSBus", "topic", topic, "error", err)
		}
	}()

	b.logger.Debug("subscribed", "component", "NATSBus", "topic", topic)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				b.logger.Error("subscription channel closed",
					"component", "NATSBus", "topic", topic)
				return errors.WrapTransient(errors.ErrConnectionLost, "NATSBus", "Subscribe", "consume "+topic)
			}
			handler(msg.Data)
		}
	}
}
