package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// RedisQueue is a Queue shared by every service instance.
//
// Keys under "<prefix>:<name>":
//
//	:messages     HASH  id -> message JSON (live messages)
//	:visible      ZSET  id scored by the unix millis at which it becomes visible
//	:attempts     HASH  id -> deliveries so far
//	:receipts     HASH  id -> receipt of the current delivery
//	:dlq          ZSET  id scored by the unix millis it was dead-lettered
//	:dlqmessages  HASH  id -> message JSON
//
// Every state transition is a single Lua script so a message is never in two places.
type RedisQueue struct {
	rdb   redis.UniversalClient
	name  string
	key   string
	cfg   QueueConfig
	clock func() time.Time
}

var redisSendScript = redis.NewScript(`
if redis.call("HSETNX", KEYS[1], ARGV[1], ARGV[2]) == 0 then
  return 0
end
redis.call("ZADD", KEYS[2], ARGV[3], ARGV[1])
redis.call("HSET", KEYS[3], ARGV[1], 0)
return 1
`)

// KEYS: messages, visible, attempts, receipts, dlq, dlqmessages
// ARGV: now, visibility ms, max attempts, receipt token
var redisReceiveScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local ids = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", now, "LIMIT", 0, 16)
for _, id in ipairs(ids) do
  local attempts = tonumber(redis.call("HGET", KEYS[3], id) or "0")
  if attempts >= tonumber(ARGV[3]) then
    redis.call("ZREM", KEYS[2], id)
    redis.call("HDEL", KEYS[4], id)
    redis.call("HSET", KEYS[6], id, redis.call("HGET", KEYS[1], id))
    redis.call("HDEL", KEYS[1], id)
    redis.call("ZADD", KEYS[5], now, id)
  else
    attempts = attempts + 1
    local receipt = id .. ":" .. ARGV[4]
    redis.call("HSET", KEYS[3], id, attempts)
    redis.call("HSET", KEYS[4], id, receipt)
    redis.call("ZADD", KEYS[2], now + tonumber(ARGV[2]), id)
    return {id, redis.call("HGET", KEYS[1], id), attempts, receipt}
  end
end
return false
`)

// KEYS: messages, visible, attempts, receipts
// ARGV: id, receipt, now
var redisAckScript = redis.NewScript(`
if redis.call("HGET", KEYS[4], ARGV[1]) ~= ARGV[2] then
  return 0
end
local visibleAt = tonumber(redis.call("ZSCORE", KEYS[2], ARGV[1]) or "0")
if visibleAt <= tonumber(ARGV[3]) then
  return 0
end
redis.call("HDEL", KEYS[1], ARGV[1])
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("HDEL", KEYS[3], ARGV[1])
redis.call("HDEL", KEYS[4], ARGV[1])
return 1
`)

// KEYS: messages, visible, attempts, receipts, dlq, dlqmessages
// ARGV: id, receipt, now, delay ms, max attempts
var redisNackScript = redis.NewScript(`
if redis.call("HGET", KEYS[4], ARGV[1]) ~= ARGV[2] then
  return 0
end
local now = tonumber(ARGV[3])
local visibleAt = tonumber(redis.call("ZSCORE", KEYS[2], ARGV[1]) or "0")
if visibleAt <= now then
  return 0
end
redis.call("HDEL", KEYS[4], ARGV[1])
local attempts = tonumber(redis.call("HGET", KEYS[3], ARGV[1]) or "0")
if attempts >= tonumber(ARGV[5]) then
  redis.call("ZREM", KEYS[2], ARGV[1])
  redis.call("HSET", KEYS[6], ARGV[1], redis.call("HGET", KEYS[1], ARGV[1]))
  redis.call("HDEL", KEYS[1], ARGV[1])
  redis.call("ZADD", KEYS[5], now, ARGV[1])
  return 2
end
redis.call("ZADD", KEYS[2], now + tonumber(ARGV[4]), ARGV[1])
return 1
`)

// KEYS: messages, visible, attempts, dlq, dlqmessages
// ARGV: limit, now
var redisRedriveScript = redis.NewScript(`
local ids = redis.call("ZRANGE", KEYS[4], 0, tonumber(ARGV[1]) - 1)
for _, id in ipairs(ids) do
  redis.call("HSET", KEYS[1], id, redis.call("HGET", KEYS[5], id))
  redis.call("HDEL", KEYS[5], id)
  redis.call("ZREM", KEYS[4], id)
  redis.call("HSET", KEYS[3], id, 0)
  redis.call("ZADD", KEYS[2], ARGV[2], id)
end
return #ids
`)

// NewRedisQueue creates a queue named name under keyPrefix. A nil clock uses time.Now.
func NewRedisQueue(rdb redis.UniversalClient, keyPrefix, name string, cfg QueueConfig, clock func() time.Time) (*RedisQueue, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if clock == nil {
		clock = time.Now
	}

	keyPrefix = strings.TrimSpace(keyPrefix)
	if keyPrefix == "" {
		keyPrefix = "nexus:queue"
	}

	return &RedisQueue{rdb: rdb, name: name, key: keyPrefix + ":" + name, cfg: cfg, clock: clock}, nil
}

func (q *RedisQueue) Name() string {
	return q.name
}

func (q *RedisQueue) keys(suffixes ...string) []string {
	keys := make([]string, 0, len(suffixes))
	for _, suffix := range suffixes {
		keys = append(keys, q.key+":"+suffix)
	}

	return keys
}

func (q *RedisQueue) nowMillis() int64 {
	return q.clock().UnixMilli()
}

func (q *RedisQueue) Send(ctx context.Context, msg Message) error {
	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}

	err = redisSendScript.Run(ctx, q.rdb, q.keys("messages", "visible", "attempts"), msg.ID, payload, q.nowMillis()).Err()
	if err != nil {
		return storageUnavailable(err)
	}

	return nil
}

func (q *RedisQueue) Receive(ctx context.Context) (Delivery, error) {
	res, err := redisReceiveScript.Run(ctx, q.rdb,
		q.keys("messages", "visible", "attempts", "receipts", "dlq", "dlqmessages"),
		q.nowMillis(), q.cfg.VisibilityTimeout.Milliseconds(), q.cfg.MaxAttempts, uuid.NewString(),
	).Slice()

	if errors.Is(err, redis.Nil) {
		return Delivery{}, ErrNoMessage
	}

	if err != nil {
		return Delivery{}, storageUnavailable(err)
	}

	if len(res) != 4 {
		return Delivery{}, fmt.Errorf("%w: unexpected receive result %v", ErrInvalidMessage, res)
	}

	payload, _ := res[1].(string)
	msg, err := decodeMessage([]byte(payload))
	if err != nil {
		return Delivery{}, err
	}

	attempts, err := toInt(res[2])
	if err != nil {
		return Delivery{}, err
	}

	receipt, _ := res[3].(string)

	return Delivery{Message: msg, Receipt: receipt, Attempt: attempts, ReceivedAt: q.clock()}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, receipt string) error {
	id, ok := idFromReceipt(receipt)
	if !ok {
		return ErrUnknownReceipt
	}

	settled, err := redisAckScript.Run(ctx, q.rdb, q.keys("messages", "visible", "attempts", "receipts"),
		id, receipt, q.nowMillis()).Int()
	if err != nil {
		return storageUnavailable(err)
	}

	if settled == 0 {
		return ErrUnknownReceipt
	}

	return nil
}

func (q *RedisQueue) Nack(ctx context.Context, receipt string, delay time.Duration) (bool, error) {
	id, ok := idFromReceipt(receipt)
	if !ok {
		return false, ErrUnknownReceipt
	}

	outcome, err := redisNackScript.Run(ctx, q.rdb,
		q.keys("messages", "visible", "attempts", "receipts", "dlq", "dlqmessages"),
		id, receipt, q.nowMillis(), delay.Milliseconds(), q.cfg.MaxAttempts,
	).Int()
	if err != nil {
		return false, storageUnavailable(err)
	}

	switch outcome {
	case 0:
		return false, ErrUnknownReceipt
	case 2:
		return true, nil
	default:
		return false, nil
	}
}

func (q *RedisQueue) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	keys := q.keys("dlq", "dlqmessages", "attempts")

	entries, err := q.rdb.ZRangeWithScores(ctx, keys[0], 0, stop).Result()
	if err != nil {
		return nil, storageUnavailable(err)
	}

	deadLetters := make([]DeadLetter, 0, len(entries))

	for _, entry := range entries {
		id, _ := entry.Member.(string)

		payload, err := q.rdb.HGet(ctx, keys[1], id).Result()
		if err != nil {
			return nil, storageUnavailable(err)
		}

		msg, err := decodeMessage([]byte(payload))
		if err != nil {
			return nil, err
		}

		attempts, err := q.rdb.HGet(ctx, keys[2], id).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, storageUnavailable(err)
		}

		deadLetters = append(deadLetters, DeadLetter{
			Message:        msg,
			Attempts:       attempts,
			DeadLetteredAt: time.UnixMilli(int64(entry.Score)).UTC(),
		})
	}

	return deadLetters, nil
}

func (q *RedisQueue) Redrive(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		count, err := q.rdb.ZCard(ctx, q.key+":dlq").Result()
		if err != nil {
			return 0, storageUnavailable(err)
		}

		limit = int(count)
	}

	if limit == 0 {
		return 0, nil
	}

	moved, err := redisRedriveScript.Run(ctx, q.rdb,
		q.keys("messages", "visible", "attempts", "dlq", "dlqmessages"),
		limit, q.nowMillis(),
	).Int()
	if err != nil {
		return 0, storageUnavailable(err)
	}

	return moved, nil
}

// Stats counts visibility from the visible ZSET. Messages whose attempts are used up are
// still counted as visible until the next Receive moves them.
func (q *RedisQueue) Stats(ctx context.Context) (QueueStats, error) {
	keys := q.keys("visible", "dlq")
	now := strconv.FormatInt(q.nowMillis(), 10)

	pipe := q.rdb.Pipeline()
	total := pipe.ZCard(ctx, keys[0])
	visible := pipe.ZCount(ctx, keys[0], "-inf", now)
	dlqDepth := pipe.ZCard(ctx, keys[1])
	oldest := pipe.ZRangeWithScores(ctx, keys[1], 0, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return QueueStats{}, storageUnavailable(err)
	}

	stats := QueueStats{
		Visible:  int(visible.Val()),
		InFlight: int(total.Val() - visible.Val()),
		DLQDepth: int(dlqDepth.Val()),
	}

	if entries := oldest.Val(); len(entries) > 0 {
		stats.DLQOldestAge = q.clock().Sub(time.UnixMilli(int64(entries[0].Score)))
	}

	return stats, nil
}

func idFromReceipt(receipt string) (string, bool) {
	index := strings.LastIndex(receipt, ":")
	if index <= 0 {
		return "", false
	}

	return receipt[:index], true
}

func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int64:
		return int(v), nil
	case int:
		return v, nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("%w: unexpected redis result type %T", ErrInvalidMessage, value)
	}
}

func storageUnavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return errors.Join(eventstore.ErrStorageUnavailable, err)
}

var _ Queue = (*RedisQueue)(nil)
