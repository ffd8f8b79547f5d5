package store

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Script is a named Lua script executed atomically on a master.
type Script struct {
	name   string
	script *redis.Script
}

func NewScript(name, src string) *Script {
	return &Script{
		name:   name,
		script: redis.NewScript(src),
	}
}

func (s *Script) Name() string {
	return s.name
}

// Hash returns the SHA1 digest the master knows the script by.
func (s *Script) Hash() string {
	return s.script.Hash()
}

// Int64 converts an integer script reply. A nil reply is zero.
func Int64(reply interface{}) (int64, error) {
	switch v := reply.(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnexpectedReply, reply)
	}
}
