package redisqueue

import "github.com/redis/go-redis/v9"

// Every state transition runs as a single script so that a job is always in
// exactly one of the status sets. Timestamps are milliseconds supplied by the
// caller; waiting scores are priority*1e9+seq so equal priorities stay FIFO.

// KEYS: waiting, delayed, seq, job
// ARGV: id, type, payload, max_attempts, timeout_ms, backoff_ms, priority, now, run_at
var enqueueScript = redis.NewScript(`
local status = 'waiting'
if tonumber(ARGV[9]) > tonumber(ARGV[8]) then
  status = 'delayed'
end
redis.call('HSET', KEYS[4],
  'id', ARGV[1], 'type', ARGV[2], 'payload', ARGV[3], 'status', status,
  'progress', '0', 'attempts', '0', 'max_attempts', ARGV[4],
  'timeout_ms', ARGV[5], 'backoff_ms', ARGV[6], 'priority', ARGV[7],
  'created_at', ARGV[8])
if status == 'delayed' then
  redis.call('HSET', KEYS[4], 'run_at', ARGV[9])
  redis.call('ZADD', KEYS[2], ARGV[9], ARGV[1])
else
  local seq = redis.call('INCR', KEYS[3])
  redis.call('ZADD', KEYS[1], tonumber(ARGV[7]) * 1e9 + seq, ARGV[1])
end
return status
`)

// KEYS: waiting, delayed, active, paused, seq
// ARGV: now, job key prefix, stall grace ms
var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[4]) == 1 then
  return false
end
local now = tonumber(ARGV[1])
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', now)
for _, id in ipairs(due) do
  local jk = ARGV[2] .. id
  local prio = tonumber(redis.call('HGET', jk, 'priority') or '0')
  local seq = redis.call('INCR', KEYS[5])
  redis.call('ZREM', KEYS[2], id)
  redis.call('ZADD', KEYS[1], prio * 1e9 + seq, id)
  redis.call('HSET', jk, 'status', 'waiting')
end
local head = redis.call('ZRANGE', KEYS[1], 0, 0)
if #head == 0 then
  return false
end
local id = head[1]
local jk = ARGV[2] .. id
redis.call('ZREM', KEYS[1], id)
redis.call('HINCRBY', jk, 'attempts', 1)
local timeout = tonumber(redis.call('HGET', jk, 'timeout_ms') or '0')
redis.call('ZADD', KEYS[3], now + timeout + tonumber(ARGV[3]), id)
redis.call('HSET', jk, 'status', 'active', 'progress', '0', 'processed_at', ARGV[1])
redis.call('HDEL', jk, 'run_at')
return redis.call('HGETALL', jk)
`)

// checkClaim is shared by the scripts a worker runs against its own claim.
// It returns -1 when the job is gone and -2 when the attempt is not current.
const checkClaim = `
local st = redis.call('HMGET', KEYS[1], 'status', 'attempts')
if not st[1] then
  return -1
end
if st[1] ~= 'active' or tonumber(st[2]) ~= tonumber(ARGV[2]) then
  return -2
end
`

// KEYS: job
// ARGV: id, attempt, progress
var progressScript = redis.NewScript(checkClaim + `
local cur = tonumber(redis.call('HGET', KEYS[1], 'progress') or '0')
if tonumber(ARGV[3]) > cur then
  redis.call('HSET', KEYS[1], 'progress', ARGV[3])
end
return 1
`)

// KEYS: job, active, completed
// ARGV: id, attempt, result, now
var completeScript = redis.NewScript(checkClaim + `
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[1])
redis.call('HSET', KEYS[1], 'status', 'completed', 'progress', '100',
  'result', ARGV[3], 'finished_at', ARGV[4])
redis.call('HDEL', KEYS[1], 'failed_reason')
return 1
`)

// KEYS: job, active, delayed
// ARGV: id, attempt, reason, run_at
var retryScript = redis.NewScript(checkClaim + `
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[1])
redis.call('HSET', KEYS[1], 'status', 'delayed', 'failed_reason', ARGV[3], 'run_at', ARGV[4])
return 1
`)

// KEYS: job, active, failed
// ARGV: id, attempt, reason, now
var failScript = redis.NewScript(checkClaim + `
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[1])
redis.call('HSET', KEYS[1], 'status', 'failed', 'failed_reason', ARGV[3], 'finished_at', ARGV[4])
return 1
`)

// KEYS: job, waiting, delayed, cancelled, abandoned
// ARGV: id, now
var cancelScript = redis.NewScript(`
local st = redis.call('HMGET', KEYS[1], 'status', 'attempts')
if not st[1] then
  return -1
end
if st[1] ~= 'waiting' and st[1] ~= 'delayed' then
  return 0
end
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZADD', KEYS[4], ARGV[2], ARGV[1])
redis.call('HSET', KEYS[1], 'status', 'cancelled', 'finished_at', ARGV[2])
redis.call('HDEL', KEYS[1], 'run_at')
if tonumber(st[2] or '0') > 0 then
  redis.call('RPUSH', KEYS[5], ARGV[1])
end
return 1
`)

// Cleared jobs that already ran an attempt keep their hash, marked cleared,
// until TakeAbandoned hands them out.
//
// KEYS: waiting, delayed, abandoned
// ARGV: job key prefix, now
var clearPendingScript = redis.NewScript(`
local n = 0
for i = 1, 2 do
  local ids = redis.call('ZRANGE', KEYS[i], 0, -1)
  for _, id in ipairs(ids) do
    local jk = ARGV[1] .. id
    if tonumber(redis.call('HGET', jk, 'attempts') or '0') > 0 then
      redis.call('HSET', jk, 'status', 'cancelled', 'cleared', '1', 'finished_at', ARGV[2])
      redis.call('HDEL', jk, 'run_at')
      redis.call('RPUSH', KEYS[3], id)
    else
      redis.call('DEL', jk)
    end
    n = n + 1
  end
  redis.call('DEL', KEYS[i])
end
return n
`)

// KEYS: abandoned
// ARGV: job key prefix, limit
var takeAbandonedScript = redis.NewScript(`
local out = {}
for i = 1, tonumber(ARGV[2]) do
  local id = redis.call('LPOP', KEYS[1])
  if not id then
    break
  end
  local jk = ARGV[1] .. id
  local fields = redis.call('HGETALL', jk)
  if #fields > 0 then
    table.insert(out, fields)
    if redis.call('HGET', jk, 'cleared') == '1' then
      redis.call('DEL', jk)
    end
  end
end
return out
`)

// KEYS: active, delayed, failed
// ARGV: now, job key prefix, reason
var recoverStalledScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local failed = {}
for _, id in ipairs(expired) do
  local jk = ARGV[2] .. id
  redis.call('ZREM', KEYS[1], id)
  local attempts = tonumber(redis.call('HGET', jk, 'attempts') or '0')
  local max = tonumber(redis.call('HGET', jk, 'max_attempts') or '1')
  if attempts >= max then
    redis.call('ZADD', KEYS[3], ARGV[1], id)
    redis.call('HSET', jk, 'status', 'failed', 'failed_reason', ARGV[3], 'finished_at', ARGV[1])
    table.insert(failed, id)
  else
    redis.call('ZADD', KEYS[2], ARGV[1], id)
    redis.call('HSET', jk, 'status', 'delayed', 'failed_reason', ARGV[3], 'run_at', ARGV[1])
  end
end
return failed
`)
