package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/amoylab/redsess/pkg/metrics"
	"github.com/amoylab/redsess/pkg/trace"
)

const closeTimeout = 5 * time.Second

var tracer = trace.Tracer("github.com/amoylab/redsess/internal/session")

// sessionStore wires the entry store, publisher, registry and lifecycle together.
// Backend specific stores embed it and add their own Close.
type sessionStore struct {
	entries   *entryStore
	publisher *publisher
	registry  *registry
	events    *lifecycle

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newSessionStore(backend Backend, subscriber channelSubscriber, events *lifecycle,
	prefix string, ttl time.Duration, logger *zap.Logger, o *options) *sessionStore {
	return &sessionStore{
		entries: &entryStore{
			backend: backend,
			codec:   o.codec,
			prefix:  prefix,
			ttl:     ttl,
		},
		publisher: &publisher{
			backend: backend,
			codec:   o.codec,
			logger:  logger.Named("publisher"),
			metrics: o.metrics,
		},
		registry: newRegistry(subscriber, o.codec, logger, o.metrics),
		events:   events,
		logger:   logger,
		metrics:  o.metrics,
	}
}

// Get implements Store.Get
func (s *sessionStore) Get(ctx context.Context, sid string) (rec Record, err error) {
	start := time.Now()
	scope := tracer.Start(ctx, "session.get").WithAttrs(attribute.String("session.id", sid))
	defer func() {
		scope.Finish(err)
		s.metrics.OpDone("get", start, err)
	}()

	return s.entries.get(scope.Ctx, sid)
}

// Set implements Store.Set
func (s *sessionStore) Set(ctx context.Context, sid string, rec Record) error {
	return s.set(ctx, "set", sid, rec, 0)
}

// SetWithTTL implements Store.SetWithTTL
func (s *sessionStore) SetWithTTL(ctx context.Context, sid string, rec Record, ttl time.Duration) error {
	return s.set(ctx, "set_with_ttl", sid, rec, ttl)
}

func (s *sessionStore) set(ctx context.Context, op, sid string, rec Record, ttl time.Duration) (err error) {
	start := time.Now()
	scope := tracer.Start(ctx, "session."+op).WithAttrs(attribute.String("session.id", sid))
	defer func() {
		scope.Finish(err)
		s.metrics.OpDone(op, start, err)
	}()

	// nil is stored as an empty object so that it reads back
	if rec == nil {
		rec = Record{}
	}
	payload, err := s.entries.set(scope.Ctx, sid, rec, ttl)
	if err != nil {
		return err
	}
	s.logger.Debug("session stored", zap.String("sid", sid))
	return s.publisher.publish(scope.Ctx, s.entries.key(sid), rec, payload)
}

// Destroy implements Store.Destroy
func (s *sessionStore) Destroy(ctx context.Context, sid string) (err error) {
	start := time.Now()
	scope := tracer.Start(ctx, "session.destroy").WithAttrs(attribute.String("session.id", sid))
	defer func() {
		scope.Finish(err)
		s.metrics.OpDone("destroy", start, err)
	}()

	if err = s.entries.destroy(scope.Ctx, sid); err != nil {
		return err
	}
	s.logger.Debug("session destroyed", zap.String("sid", sid))
	return nil
}

// Subscribe implements Store.Subscribe
func (s *sessionStore) Subscribe(ctx context.Context, sid string, handler Handler) (SubscriptionID, error) {
	return s.subscribe(ctx, "subscribe", sid, handler, false)
}

// SubscribeOnce implements Store.SubscribeOnce
func (s *sessionStore) SubscribeOnce(ctx context.Context, sid string, handler Handler) (SubscriptionID, error) {
	return s.subscribe(ctx, "subscribe_once", sid, handler, true)
}

func (s *sessionStore) subscribe(ctx context.Context, op, sid string, handler Handler, once bool) (id SubscriptionID, err error) {
	start := time.Now()
	scope := tracer.Start(ctx, "session."+op).WithAttrs(attribute.String("session.id", sid))
	defer func() {
		scope.Finish(err)
		s.metrics.OpDone(op, start, err)
	}()

	return s.registry.add(scope.Ctx, s.entries.key(sid), handler, once)
}

// Unsubscribe implements Store.Unsubscribe
func (s *sessionStore) Unsubscribe(ctx context.Context, sid string, id SubscriptionID) (err error) {
	start := time.Now()
	scope := tracer.Start(ctx, "session.unsubscribe").WithAttrs(attribute.String("session.id", sid))
	defer func() {
		scope.Finish(err)
		s.metrics.OpDone("unsubscribe", start, err)
	}()

	return s.registry.remove(scope.Ctx, s.entries.key(sid), id)
}

// Events implements Store.Events
func (s *sessionStore) Events(ctx context.Context) <-chan LifecycleEvent {
	return s.events.watch(ctx)
}

// shutdown releases subscriptions and watchers, leaving the backend to the caller
func (s *sessionStore) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	err := s.registry.close(ctx)
	s.events.close()
	return err
}
