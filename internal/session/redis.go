package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/amoylab/redsess/internal/common/cnst"
	"github.com/amoylab/redsess/internal/common/config"
	"github.com/amoylab/redsess/pkg/utils"
)

// RedisStore implements Store on Redis. Records are plain keys with an expiration,
// changes travel over a pub/sub channel named after the record key.
type RedisStore struct {
	*sessionStore

	client     redis.UniversalClient
	ownsClient bool
	pubsub     *redis.PubSub
	wg         sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and starts the pub/sub listener. With WithClient
// the given client is used as is and cfg.Redis is ignored.
func NewRedisStore(ctx context.Context, logger *zap.Logger, cfg config.SessionConfig, opts ...Option) (*RedisStore, error) {
	o := newOptions(opts)
	logger = logger.Named("session.store.redis")
	events := newLifecycle(logger, o.metrics)

	client, owned := o.client, false
	if client == nil {
		var err error
		client, err = newRedisClient(cfg.Redis, func(context.Context, *redis.Conn) error {
			events.emit(EventConnect)
			return nil
		})
		if err != nil {
			return nil, err
		}
		owned = true
	}
	client.AddHook(lifecycleHook{events: events})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		if owned {
			_ = client.Close()
		}
		return nil, fmt.Errorf("%w: failed to connect to Redis: %w", ErrBackend, err)
	}
	if !owned {
		// the connection hook of a foreign client is out of reach
		events.emit(EventConnect)
	}

	prefix := cfg.KeyPrefix()

	pubsub := client.Subscribe(ctx)
	store := &RedisStore{
		sessionStore: newSessionStore(&redisBackend{client: client}, pubsub, events, prefix, cfg.TTL, logger, o),
		client:       client,
		ownsClient:   owned,
		pubsub:       pubsub,
	}

	store.wg.Add(1)
	go store.handleMessages(pubsub.Channel())

	logger.Info("redis session store ready",
		zap.String("cluster_type", cfg.Redis.ClusterType),
		zap.Bool("external_client", !owned),
		zap.String("prefix", prefix))
	return store, nil
}

// handleMessages feeds channel messages into the registry until the pubsub is closed
func (s *RedisStore) handleMessages(ch <-chan *redis.Message) {
	defer s.wg.Done()
	for msg := range ch {
		s.registry.dispatch(msg.Channel, []byte(msg.Payload))
	}
}

// Close implements Store.Close
func (s *RedisStore) Close() error {
	s.closeOnce.Do(func() {
		err := s.shutdown()
		if cerr := s.pubsub.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("%w: close pubsub: %w", ErrBackend, cerr))
		}
		s.wg.Wait()
		if !s.ownsClient {
			s.closeErr = err
			return
		}
		if cerr := s.client.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("%w: close client: %w", ErrBackend, cerr))
		}
		s.closeErr = err
	})
	return s.closeErr
}

func newRedisClient(cfg config.SessionRedisConfig, onConnect func(context.Context, *redis.Conn) error) (redis.UniversalClient, error) {
	opts := &redis.UniversalOptions{
		Addrs:      utils.SplitAddrs(cfg.Addr),
		MasterName: cfg.MasterName,
		Username:   cfg.Username,
		Password:   cfg.Password,
		DB:         cfg.DB,
		OnConnect:  onConnect,
	}

	switch cfg.ClusterType {
	case cnst.RedisClusterTypeSingle, "":
		simple := opts.Simple()
		if cfg.Socket != "" {
			simple.Network = "unix"
			simple.Addr = cfg.Socket
		}
		return redis.NewClient(simple), nil
	case cnst.RedisClusterTypeSentinel:
		return redis.NewFailoverClient(opts.Failover()), nil
	case cnst.RedisClusterTypeCluster:
		return redis.NewClusterClient(opts.Cluster()), nil
	default:
		return nil, fmt.Errorf("%w: %s", cnst.ErrUnsupportedClusterType, cfg.ClusterType)
	}
}

type redisBackend struct {
	client redis.UniversalClient
}

var _ Backend = (*redisBackend)(nil)

func (b *redisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *redisBackend) SetEX(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return b.client.SetEx(ctx, key, data, ttl).Err()
}

func (b *redisBackend) Del(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}

func (b *redisBackend) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

// lifecycleHook reports transport failures as disconnect events
type lifecycleHook struct {
	events *lifecycle
}

var _ redis.Hook = lifecycleHook{}

func (h lifecycleHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if isTransportError(err) {
			h.events.emit(EventDisconnect)
		}
		return conn, err
	}
}

func (h lifecycleHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if isTransportError(err) {
			h.events.emit(EventDisconnect)
		}
		return err
	}
}

func (h lifecycleHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

// isTransportError reports whether err came from the connection rather than from
// a Redis reply or the caller's context
func isTransportError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var reply redis.Error
	return !errors.As(err, &reply)
}
