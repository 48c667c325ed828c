package cnst

import "errors"

var (
	// ErrUnsupportedStoreType is returned when the configured store type is unknown
	ErrUnsupportedStoreType = errors.New("unsupported session store type")
	// ErrUnsupportedClusterType is returned when the configured redis cluster type is unknown
	ErrUnsupportedClusterType = errors.New("unsupported redis cluster type")
	// ErrEmptySessionID is returned when an operation receives an empty session id
	ErrEmptySessionID = errors.New("session id is empty")
)
