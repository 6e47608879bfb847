package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bilgisen/anitory/internal/cache"
	"github.com/bilgisen/anitory/internal/metrics"
	"github.com/rs/zerolog"
)

// RedisNotifier relays events over a named Redis channel so every process
// (API server and realtime gateway) sees every write. Incoming messages are
// fanned out to local subscribers through a Hub.
type RedisNotifier struct {
	client  cache.RedisInterface
	channel string
	local   *Hub
	closeFn func() error
	done    chan struct{}
	log     zerolog.Logger
}

var _ Notifier = (*RedisNotifier)(nil)

// NewRedisNotifier subscribes to channel and starts relaying until Close.
func NewRedisNotifier(ctx context.Context, client cache.RedisInterface, channel string, log zerolog.Logger) (*RedisNotifier, error) {
	msgs, closeFn, err := client.Subscribe(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	n := &RedisNotifier{
		client:  client,
		channel: channel,
		local:   NewHub(log),
		closeFn: closeFn,
		done:    make(chan struct{}),
		log:     log,
	}
	go n.relay(msgs)
	return n, nil
}

func (n *RedisNotifier) relay(msgs <-chan []byte) {
	defer close(n.done)
	for msg := range msgs {
		var e Event
		if err := json.Unmarshal(msg, &e); err != nil || e.Type == "" {
			n.log.Warn().Err(err).Str("channel", n.channel).Msg("Ignoring malformed notification")
			continue
		}
		n.local.deliver(e)
	}
}

// Publish sends e to the channel. Local subscribers receive it back through
// the subscription like any other process.
func (n *RedisNotifier) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, data); err != nil {
		return err
	}
	metrics.Notification(string(e.Type), "out")
	return nil
}

func (n *RedisNotifier) Subscribe(handler func(Event)) func() {
	return n.local.Subscribe(handler)
}

// Close stops relaying and waits for the relay goroutine to exit.
func (n *RedisNotifier) Close() error {
	err := n.closeFn()
	<-n.done
	return err
}
