package xredis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLockMaster elects one watcher-service replica as Scheduler owner
// per §4.8's single-writer requirement: every replica shares one
// key-prefix's Redis instance, and only the holder of MasterLockKey may
// run the tick loop, so a second replica pointed at the same prefix never
// double-processes a Job.
type RedisLockMaster struct {
	rdb *redis.Client
	id  string // this replica's identity for the lock value (uuid + nanos)
}

func NewRedisLockMaster(rdb *redis.Client) *RedisLockMaster {
	uuid := uuid.New().String()
	timeUnix := time.Now().Nanosecond()
	id := fmt.Sprintf("%s%d", uuid, timeUnix)
	return &RedisLockMaster{
		rdb: rdb,
		id:  id,
	}

}

// TryAcquireMaster attempts to claim or renew MasterLockKey. It returns
// true if this replica now holds the lock, whether by winning it fresh or
// by renewing a lock it already held; a lost renewal race (another
// replica's TTL expired and it won first) returns false.
func (r *RedisLockMaster) TryAcquireMaster(
	ctx context.Context,
	MasterLockKey string,
	ttl time.Duration,
) bool {
	// SETNX: succeeds only if the key is absent. ttl bounds how long a
	// crashed master can hold the lock before another replica takes over.
	success, err := r.rdb.SetNX(ctx, MasterLockKey, r.id, ttl).Result()
	if err != nil {
		fmt.Printf("[%s] Redis error: %v\n", r.id, err)
		return false
	}

	if !success {
		// SETNX failed: check whether the existing lock is already ours
		// (a periodic renewal, not a fresh acquisition) and refresh its TTL.
		val, _ := r.rdb.Get(ctx, MasterLockKey).Result()
		if val == r.id {
			r.rdb.Expire(ctx, MasterLockKey, ttl)
			return true
		}
	}

	return success
}
