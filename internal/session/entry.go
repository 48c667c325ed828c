package session

import (
	"context"
	"fmt"
	"time"

	"github.com/amoylab/redsess/internal/common/cnst"
)

// entryStore maps session ids onto backend keys and owns expiration rules
type entryStore struct {
	backend Backend
	codec   Codec
	prefix  string
	ttl     time.Duration
}

func (s *entryStore) key(sid string) string {
	return s.prefix + sid
}

func (s *entryStore) get(ctx context.Context, sid string) (Record, error) {
	data, found, err := s.backend.Get(ctx, s.key(sid))
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrBackend, sid, err)
	}
	if !found {
		return nil, nil
	}
	rec, err := s.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrDecode, sid, err)
	}
	return rec, nil
}

// set writes the record and returns its encoded form for the publisher
func (s *entryStore) set(ctx context.Context, sid string, rec Record, ttlOverride time.Duration) ([]byte, error) {
	data, err := s.codec.Encode(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: set %s: %w", ErrEncode, sid, err)
	}
	if err := s.backend.SetEX(ctx, s.key(sid), data, s.effectiveTTL(rec, ttlOverride)); err != nil {
		return nil, fmt.Errorf("%w: set %s: %w", ErrBackend, sid, err)
	}
	return data, nil
}

func (s *entryStore) destroy(ctx context.Context, sid string) error {
	if err := s.backend.Del(ctx, s.key(sid)); err != nil {
		return fmt.Errorf("%w: destroy %s: %w", ErrBackend, sid, err)
	}
	return nil
}

// effectiveTTL resolves the expiration in whole seconds, never below one second
func (s *entryStore) effectiveTTL(rec Record, override time.Duration) time.Duration {
	var ttl time.Duration
	switch {
	case override > 0:
		ttl = override
	case s.ttl > 0:
		ttl = s.ttl
	default:
		if maxAge, ok := rec.MaxAge(); ok {
			ttl = maxAge
		} else {
			ttl = cnst.DefaultSessionTTL
		}
	}
	ttl = ttl.Truncate(time.Second)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
