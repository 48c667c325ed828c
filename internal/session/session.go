package session

import (
	"context"
	"errors"
	"time"

	"github.com/amoylab/redsess/internal/common/cnst"
)

var (
	// ErrBackend wraps transport and connection failures of the key-value backend
	ErrBackend = errors.New("session backend error")
	// ErrEncode is returned when a record can not be serialized; the backend is not touched
	ErrEncode = errors.New("session encode error")
	// ErrDecode is returned when stored or received bytes are not a valid record
	ErrDecode = errors.New("session decode error")
	// ErrStoreClosed is returned by subscription calls made after Close
	ErrStoreClosed = errors.New("session store closed")
	// ErrNilHandler is returned when subscribing without a handler
	ErrNilHandler = errors.New("session handler is nil")
)

// Record is the application state kept for one session.
// A "cookie" object with a numeric "maxAge" (milliseconds) sets its default expiration.
type Record map[string]any

// MaxAge returns the cookie max age, if the record carries a numeric one
func (r Record) MaxAge() (time.Duration, bool) {
	var cookie map[string]any
	switch c := r[cnst.CookieField].(type) {
	case map[string]any:
		cookie = c
	case Record:
		cookie = c
	default:
		return 0, false
	}

	switch v := cookie["maxAge"].(type) {
	case float64:
		return time.Duration(v * float64(time.Millisecond)), true
	case float32:
		return time.Duration(float64(v) * float64(time.Millisecond)), true
	case int:
		return time.Duration(v) * time.Millisecond, true
	case int64:
		return time.Duration(v) * time.Millisecond, true
	case int32:
		return time.Duration(v) * time.Millisecond, true
	}
	return 0, false
}

// withoutCookie returns a shallow copy of the record minus its cookie
func (r Record) withoutCookie() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if k != cnst.CookieField {
			out[k] = v
		}
	}
	return out
}

// Handler receives a decoded record published for a session. When the payload can
// not be decoded, rec is nil and err matches ErrDecode.
type Handler func(rec Record, err error)

// SubscriptionID identifies one registration made by Subscribe or SubscribeOnce
type SubscriptionID string

// LifecycleEvent is an advisory connection state change of the backend
type LifecycleEvent string

const (
	// EventConnect is emitted whenever a backend connection is established
	EventConnect LifecycleEvent = "connect"
	// EventDisconnect is emitted on backend transport errors
	EventDisconnect LifecycleEvent = "disconnect"
)

// Store persists session records with an expiration and notifies subscribers,
// including ones in other processes sharing the backend, when they change.
type Store interface {
	// Get returns a fresh copy of the record, or nil without error when it does not exist.
	Get(ctx context.Context, sid string) (Record, error)

	// Set persists the record and publishes it when its non-cookie content changed.
	Set(ctx context.Context, sid string, rec Record) error

	// SetWithTTL is Set with an explicit expiration that takes precedence over everything else.
	SetWithTTL(ctx context.Context, sid string, rec Record, ttl time.Duration) error

	// Destroy removes the record. Removing a missing record is not an error.
	Destroy(ctx context.Context, sid string) error

	// Subscribe registers handler for every change published for sid.
	Subscribe(ctx context.Context, sid string, handler Handler) (SubscriptionID, error)

	// SubscribeOnce registers handler for the next change published for sid only.
	SubscribeOnce(ctx context.Context, sid string, handler Handler) (SubscriptionID, error)

	// Unsubscribe removes a registration. Unknown pairs are ignored.
	Unsubscribe(ctx context.Context, sid string, id SubscriptionID) error

	// Events streams lifecycle events until ctx is done or the store is closed.
	Events(ctx context.Context) <-chan LifecycleEvent

	// Close drops every subscription and releases the backend.
	Close() error
}
