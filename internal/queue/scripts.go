package queue

import "github.com/redis/go-redis/v9"

// promoteScript moves due members of the scheduled set (KEYS[1]) onto the
// immediate list (KEYS[2]) in one server-side step.
// ARGV[1] = now in epoch ms, ARGV[2] = batch size, ARGV[3] = RPUSH or LPUSH.
// Returns the moved count.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], 0, ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, member in ipairs(due) do
    redis.call(ARGV[3], KEYS[2], member)
    redis.call('ZREM', KEYS[1], member)
end
return #due
`)
