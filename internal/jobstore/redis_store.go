package jobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore stores each job as a Redis hash under key job:<jid>, and
// maintains a per-user running counter under running:<uid>, per the
// state-store key layout in spec.md §6.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func jobKey(jid string) string     { return "job:" + jid }
func runningKey(uid string) string { return "running:" + uid }

func (s *RedisStore) Create(ctx context.Context, jid, sid, uid string) error {
	key := jobKey(jid)
	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.rdb.HSet(ctx, key, map[string]interface{}{
		"job_id":        jid,
		"submission_id": sid,
		"user_id":       uid,
		"status":        string(Pending),
		"created_at":    now,
		"updated_at":    now,
	}).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, key, TTL).Err()
}

func (s *RedisStore) Update(ctx context.Context, jid string, status Status, runID, errMsg string) error {
	key := jobKey(jid)

	prev, err := s.rdb.HGet(ctx, key, "status").Result()
	if err != nil && err != redis.Nil {
		return err
	}
	prevStatus := Status(prev)

	fields := map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if runID != "" {
		fields["run_id"] = runID
	}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	if err := s.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return err
	}
	if err := s.rdb.Expire(ctx, key, TTL).Err(); err != nil {
		return err
	}

	uid, err := s.rdb.HGet(ctx, key, "user_id").Result()
	if err != nil && err != redis.Nil {
		return err
	}
	return s.adjustRunningCounter(ctx, uid, prevStatus, status)
}

// adjustRunningCounter implements the counter maintenance rule in
// spec.md §4.B: incr on transition into RUNNING, decr on transition out.
func (s *RedisStore) adjustRunningCounter(ctx context.Context, uid string, prev, next Status) error {
	if uid == "" {
		return nil
	}
	key := runningKey(uid)
	switch {
	case prev == Running && next != Running:
		if err := s.rdb.Decr(ctx, key).Err(); err != nil {
			return err
		}
	case prev != Running && next == Running:
		if err := s.rdb.Incr(ctx, key).Err(); err != nil {
			return err
		}
		return s.rdb.Expire(ctx, key, RunningCounterTTL).Err()
	default:
		return nil
	}
	return s.rdb.Expire(ctx, key, RunningCounterTTL).Err()
}

func (s *RedisStore) Get(ctx context.Context, jid string) (*Record, error) {
	raw, err := s.rdb.HGetAll(ctx, jobKey(jid)).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	createdAt, _ := time.Parse(time.RFC3339, raw["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339, raw["updated_at"])
	return &Record{
		JobID:        raw["job_id"],
		SubmissionID: raw["submission_id"],
		UserID:       raw["user_id"],
		Status:       Status(raw["status"]),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		RunID:        raw["run_id"],
		Error:        raw["error"],
	}, nil
}

// CountRunning returns the running counter if present, else rebuilds it
// by scanning job:* records owned by uid in RUNNING status and persists
// the rebuilt value with its own TTL (spec.md §4.B, §9).
func (s *RedisStore) CountRunning(ctx context.Context, uid string) (int, error) {
	key := runningKey(uid)
	val, err := s.rdb.Get(ctx, key).Int()
	if err == nil {
		return val, nil
	}
	if err != redis.Nil {
		return 0, err
	}

	count := 0
	iter := s.rdb.Scan(ctx, 0, "job:*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.rdb.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return 0, err
		}
		if raw["user_id"] == uid && Status(raw["status"]) == Running {
			count++
		}
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}

	if err := s.rdb.Set(ctx, key, count, RunningCounterTTL).Err(); err != nil {
		return 0, fmt.Errorf("persist rebuilt running counter: %w", err)
	}
	return count, nil
}
