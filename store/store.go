package store

import (
	"context"
	"time"
)

// Master is one independent key-value replica taking part in quorum voting.
// Implementations must allow concurrent independent calls.
type Master interface {
	// Name identifies the master in errors and logs, usually its address.
	Name() string
	// Get returns ErrKeyNotFound if the key is absent.
	Get(ctx context.Context, key string) (string, error)
	// SetNX sets the key only if it does not exist. A positive ttl makes the key expire.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Del returns the number of deleted keys.
	Del(ctx context.Context, key string) (int64, error)
	// Eval runs the script atomically on the master, a nil reply is returned as (nil, nil).
	Eval(ctx context.Context, script *Script, keys []string, args ...interface{}) (interface{}, error)
	// Load registers the scripts so later calls can skip sending their source.
	Load(ctx context.Context, scripts ...*Script) error
	Close() error
}

// Names returns the names of the masters, in order.
func Names(masters []Master) []string {
	names := make([]string, len(masters))
	for i, m := range masters {
		names[i] = m.Name()
	}
	return names
}
