package session

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/amoylab/redsess/internal/common/cnst"
	"github.com/amoylab/redsess/pkg/metrics"
)

// publisher announces record changes on the session key channel. A short lived
// shadow copy of the last published content, minus the cookie, suppresses
// announcements for writes that only touch the cookie or change nothing.
type publisher struct {
	backend Backend
	codec   Codec
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func shadowKey(key string) string {
	return cnst.ShadowKeyPrefix + key
}

// publish is called after the record at key was stored as payload
func (p *publisher) publish(ctx context.Context, key string, rec Record, payload []byte) error {
	content, err := p.codec.Encode(rec.withoutCookie())
	if err != nil {
		// payload itself encoded fine, so this can only be a codec quirk
		p.logger.Warn("failed to encode comparable content, publishing anyway",
			zap.String("key", key), zap.Error(err))
		content = nil
	}

	if content != nil {
		shadow, found, err := p.backend.Get(ctx, shadowKey(key))
		switch {
		case err != nil:
			p.logger.Warn("failed to read shadow record", zap.String("key", key), zap.Error(err))
		case found && bytes.Equal(shadow, content):
			p.logger.Debug("content unchanged, publish suppressed", zap.String("key", key))
			p.metrics.PublishDone(metrics.PublishSuppressed)
			return nil
		}
	}

	if err := p.backend.Publish(ctx, key, payload); err != nil {
		p.metrics.PublishDone(metrics.PublishFailed)
		return fmt.Errorf("%w: publish %s: %w", ErrBackend, key, err)
	}
	p.metrics.PublishDone(metrics.PublishSent)

	if content == nil {
		return nil
	}
	if err := p.backend.SetEX(ctx, shadowKey(key), content, cnst.ShadowTTL); err != nil {
		p.logger.Warn("failed to write shadow record", zap.String("key", key), zap.Error(err))
	}
	return nil
}
