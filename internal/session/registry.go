package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amoylab/redsess/pkg/metrics"
)

const teardownTimeout = 5 * time.Second

// subscription is one registered handler. Payloads queue in its mailbox and are
// handed to the handler in arrival order by a drain goroutine that exits when idle.
type subscription struct {
	id      SubscriptionID
	channel string
	handler Handler
	once    bool

	cancelled atomic.Bool

	mu      sync.Mutex
	pending [][]byte
	running bool
}

// registry keeps local handlers per channel. A backend channel subscription is
// held exactly while its channel has at least one handler.
type registry struct {
	mu         sync.Mutex
	channels   map[string]map[SubscriptionID]*subscription
	subscriber channelSubscriber
	closed     bool

	codec   Codec
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newRegistry(subscriber channelSubscriber, codec Codec, logger *zap.Logger, m *metrics.Metrics) *registry {
	return &registry{
		channels:   make(map[string]map[SubscriptionID]*subscription),
		subscriber: subscriber,
		codec:      codec,
		logger:     logger.Named("registry"),
		metrics:    m,
	}
}

func (r *registry) add(ctx context.Context, channel string, handler Handler, once bool) (SubscriptionID, error) {
	if handler == nil {
		return "", ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", ErrStoreClosed
	}

	subs, ok := r.channels[channel]
	if !ok {
		if err := r.subscriber.Subscribe(ctx, channel); err != nil {
			// go-redis records the channel before writing SUBSCRIBE, undo that
			r.unsubscribeQuietly(channel)
			return "", fmt.Errorf("%w: subscribe %s: %w", ErrBackend, channel, err)
		}
		subs = make(map[SubscriptionID]*subscription)
		r.channels[channel] = subs
		r.metrics.SetChannels(len(r.channels))
		r.logger.Debug("channel subscribed", zap.String("channel", channel))
	}

	sub := &subscription{
		id:      SubscriptionID(uuid.NewString()),
		channel: channel,
		handler: handler,
		once:    once,
	}
	subs[sub.id] = sub
	return sub.id, nil
}

func (r *registry) remove(ctx context.Context, channel string, id SubscriptionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.channels[channel]
	if !ok {
		return nil
	}
	sub, ok := subs[id]
	if !ok {
		return nil
	}
	sub.cancelled.Store(true)
	delete(subs, id)

	if len(subs) > 0 {
		return nil
	}
	delete(r.channels, channel)
	r.metrics.SetChannels(len(r.channels))
	if err := r.subscriber.Unsubscribe(ctx, channel); err != nil {
		return fmt.Errorf("%w: unsubscribe %s: %w", ErrBackend, channel, err)
	}
	r.logger.Debug("channel unsubscribed", zap.String("channel", channel))
	return nil
}

// dispatch hands payload to every handler of channel. Once handlers are dropped
// before the registry lock is released.
func (r *registry) dispatch(channel string, payload []byte) {
	r.mu.Lock()
	subs := r.channels[channel]
	targets := make([]*subscription, 0, len(subs))
	for id, sub := range subs {
		targets = append(targets, sub)
		if sub.once {
			delete(subs, id)
		}
	}
	if subs != nil && len(subs) == 0 {
		delete(r.channels, channel)
		r.metrics.SetChannels(len(r.channels))
		r.unsubscribeQuietly(channel)
	}
	r.mu.Unlock()

	if len(targets) == 0 {
		r.logger.Debug("message without local handlers", zap.String("channel", channel))
		return
	}
	for _, sub := range targets {
		sub.enqueue(r, payload)
	}
}

// unsubscribeQuietly must be called with r.mu held
func (r *registry) unsubscribeQuietly(channel string) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := r.subscriber.Unsubscribe(ctx, channel); err != nil {
		r.logger.Warn("failed to unsubscribe channel", zap.String("channel", channel), zap.Error(err))
	}
}

// close drops every handler and closes all backend channel subscriptions
func (r *registry) close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	channels := make([]string, 0, len(r.channels))
	for channel, subs := range r.channels {
		channels = append(channels, channel)
		for _, sub := range subs {
			sub.cancelled.Store(true)
		}
	}
	r.channels = make(map[string]map[SubscriptionID]*subscription)
	r.metrics.SetChannels(0)

	// go-redis treats an empty list as every channel
	if len(channels) == 0 {
		return nil
	}
	if err := r.subscriber.Unsubscribe(ctx, channels...); err != nil {
		return fmt.Errorf("%w: unsubscribe: %w", ErrBackend, err)
	}
	return nil
}

// channelCount returns the number of channels with at least one handler
func (r *registry) channelCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

func (s *subscription) enqueue(r *registry, payload []byte) {
	s.mu.Lock()
	s.pending = append(s.pending, payload)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.drain(r)
}

func (s *subscription) drain(r *registry) {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		payload := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.mu.Unlock()

		if s.cancelled.Load() {
			continue
		}
		r.deliver(s, payload)
	}
}

func (r *registry) deliver(s *subscription, payload []byte) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("session handler panicked",
				zap.String("channel", s.channel),
				zap.String("subscription", string(s.id)),
				zap.Any("panic", p))
		}
	}()

	rec, err := r.codec.Decode(payload)
	if err != nil {
		r.metrics.Delivered(metrics.DeliveryDecodeError)
		r.logger.Warn("failed to decode published record",
			zap.String("channel", s.channel), zap.Error(err))
		s.handler(nil, fmt.Errorf("%w: channel %s: %w", ErrDecode, s.channel, err))
		return
	}
	r.metrics.Delivered(metrics.DeliveryOK)
	s.handler(rec, nil)
}
