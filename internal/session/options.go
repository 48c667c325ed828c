package session

import (
	"github.com/redis/go-redis/v9"

	"github.com/amoylab/redsess/pkg/metrics"
)

// Option customizes a store built by NewStore, NewRedisStore or NewMemoryStore
type Option func(*options)

type options struct {
	codec   Codec
	metrics *metrics.Metrics
	client  redis.UniversalClient
}

// WithCodec replaces the default JSON codec
func WithCodec(codec Codec) Option {
	return func(o *options) {
		if codec != nil {
			o.codec = codec
		}
	}
}

// WithMetrics records store operations on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClient makes NewRedisStore use client instead of dialing from the
// configuration. The store adds its lifecycle hook to client but never closes it.
func WithClient(client redis.UniversalClient) Option {
	return func(o *options) {
		o.client = client
	}
}

func newOptions(opts []Option) *options {
	o := &options{codec: JSONCodec{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
