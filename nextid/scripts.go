package nextid

import "github.com/git-hulk/go-quorum/store"

// KEYS[1] counter key, ARGV[1] candidate id. An absent counter counts as 0.
// Returns the candidate when it was written, 0 when the counter was already
// at or past it.
var setIDScript = store.NewScript("nextid-set", `
local curr = tonumber(redis.call('get', KEYS[1]) or '0')
local next = tonumber(ARGV[1])
if curr < next then
	redis.call('set', KEYS[1], ARGV[1])
	return next
end
return 0`)
