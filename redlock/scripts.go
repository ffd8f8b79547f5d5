package redlock

import "github.com/git-hulk/go-quorum/store"

var (
	// KEYS[1] lock key, ARGV[1] token, ARGV[2] auto release time in ms
	extendScript = store.NewScript("redlock-extend", `
if redis.call('get', KEYS[1]) == ARGV[1] then
	return redis.call('pexpire', KEYS[1], ARGV[2])
else
	return 0
end`)

	// KEYS[1] lock key, ARGV[1] token
	releaseScript = store.NewScript("redlock-release", `
if redis.call('get', KEYS[1]) == ARGV[1] then
	return redis.call('del', KEYS[1])
else
	return 0
end`)

	// KEYS[1] lock key, ARGV[1] token
	acquiredScript = store.NewScript("redlock-acquired", `
if redis.call('get', KEYS[1]) == ARGV[1] then
	return redis.call('pttl', KEYS[1])
else
	return 0
end`)
)

func scripts() []*store.Script {
	return []*store.Script{extendScript, releaseScript, acquiredScript}
}
