package config

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func init() {
	godotenv.Load()
}

// ConnectRedis is optional: when REDIS_ADDRESS is unset the ingest lock
// degrades to the DB unique constraint on (supplier_id, file_hash), which
// remains the source of truth for idempotency either way.
func ConnectRedis() {
	address := os.Getenv("REDIS_ADDRESS")
	if address == "" {
		log.Printf("REDIS_ADDRESS not set; ingest locking disabled")
		return
	}

	rdb = redis.NewClient(&redis.Options{
		Addr:     address,
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("redis ping failed (%v); ingest locking disabled", err)
		rdb = nil
		return
	}

	locker = redislock.New(rdb)
	log.Printf("connected to redis (%s)", address)
}

// AcquireIngestLock serializes settlement-file ingestion per supplier so two
// concurrent uploads of different files for the same supplier do not interleave
// ledger fetches. Returns a nil release func when locking is unavailable.
func AcquireIngestLock(ctx context.Context, supplierKey string) (release func(), err error) {
	if locker == nil {
		return nil, nil
	}

	lock, err := locker.Obtain(ctx, "recon:ingest:"+supplierKey, 10*time.Minute, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(500*time.Millisecond), 20),
	})
	if err != nil {
		return nil, err
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
