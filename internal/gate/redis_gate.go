package gate

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// admitScript performs the two-counter check atomically so that two
// concurrent submissions from the same user cannot both observe a
// pre-increment rate count under the limit (spec.md §4.D's atomicity
// requirement). KEYS[1]=running:<uid>, KEYS[2]=rate:<uid>.
// ARGV[1]=maxConcurrency, ARGV[2]=maxRate, ARGV[3]=hourlyTTLSeconds.
//
// Returns 0 (admitted, rate counter incremented), 1 (rate exceeded,
// nothing changed), or 2 (concurrency exceeded, nothing changed). The
// rate limit is tested before the counter is mutated, so a rejected
// attempt never perturbs rate:<uid> (spec.md §8.1's counter-conservation
// invariant: rate_counter = admissions - rollbacks).
var admitScript = redis.NewScript(`
local running = tonumber(redis.call('GET', KEYS[1]) or '0')
local maxConcurrency = tonumber(ARGV[1])
if running >= maxConcurrency then
  return 2
end

local maxRate = tonumber(ARGV[2])
local rate = tonumber(redis.call('GET', KEYS[2]) or '0')
if rate >= maxRate then
  return 1
end

rate = redis.call('INCR', KEYS[2])
if rate == 1 then
  redis.call('EXPIRE', KEYS[2], ARGV[3])
end
return 0
`)

type RedisGate struct {
	rdb *redis.Client
}

func NewRedisGate(rdb *redis.Client) *RedisGate {
	return &RedisGate{rdb: rdb}
}

func runningKey(uid string) string { return "running:" + uid }
func rateKey(uid string) string    { return "rate:" + uid }

func (g *RedisGate) TryAdmit(ctx context.Context, uid string, maxConcurrency, maxRate int) (Decision, error) {
	res, err := admitScript.Run(ctx, g.rdb, []string{runningKey(uid), rateKey(uid)},
		maxConcurrency, maxRate, HourlyTTL).Int()
	if err != nil {
		return Admitted, err
	}
	switch res {
	case 0:
		return Admitted, nil
	case 1:
		return RateExceeded, nil
	default:
		return ConcurrencyExceeded, nil
	}
}

func (g *RedisGate) DecrHourly(ctx context.Context, uid string) error {
	return g.rdb.Decr(ctx, rateKey(uid)).Err()
}
