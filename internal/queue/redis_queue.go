package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobsKey is the single list key used as the job queue (spec.md §6).
const JobsKey = "jobs"

// RedisQueue pushes/pops JSON-encoded Messages on a Redis list, mirroring
// original_source's lpush/brpop adapter.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: JobsKey}
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg *Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.key, payload).Err()
}

// Dequeue uses BRPOP, which blocks server-side up to timeout and returns
// redis.Nil if nothing arrived in that window.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPop returns [key, value].
	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
