package cnst

import "time"

// StoreType represents the backing implementation of a session store
type StoreType string

const (
	// StoreTypeRedis stores sessions in Redis and fans changes out over pub/sub
	StoreTypeRedis StoreType = "redis"
	// StoreTypeMemory keeps sessions in process memory
	StoreTypeMemory StoreType = "memory"
)

func (s StoreType) String() string {
	return string(s)
}

const (
	// DefaultSessionPrefix is prepended to every session id to form its key
	DefaultSessionPrefix = "sess:"
	// ShadowKeyPrefix is prepended to a session key to form its shadow key
	ShadowKeyPrefix = "temp:"
	// DefaultSessionTTL applies when neither the store nor the record set an expiration
	DefaultSessionTTL = 24 * time.Hour
	// ShadowTTL is the lifetime of the last-published snapshot used for dedup
	ShadowTTL = 3 * time.Second
	// CookieField is the record field holding cookie metadata
	CookieField = "cookie"
)
