package memory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/autoguardian/autoguardian/internal/core"
)

const redisKeyPrefix = "autoguardian:memory:"

// RedisStore keeps fingerprint records in Redis so multiple scanner instances
// can share the community scope. One hash per record, one sorted set per
// bucket ordered by last-seen for pruning.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func bucketKey(bucket string) string {
	return redisKeyPrefix + bucket
}

func recordKey(bucket, signature string) string {
	return redisKeyPrefix + bucket + ":" + signature
}

func (s *RedisStore) Upsert(ctx context.Context, bucket, signature string, quarantined bool, now time.Time) error {
	key := recordKey(bucket, signature)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("checking memory record: %w", err)
	}

	pipe := s.client.TxPipeline()
	if exists == 0 {
		pipe.HSet(ctx, key,
			"signature", signature,
			"first_seen", now.UnixMilli(),
			"last_seen", now.UnixMilli(),
			"count", 1,
			"quarantined", boolField(quarantined))
	} else {
		pipe.HIncrBy(ctx, key, "count", 1)
		pipe.HSet(ctx, key, "last_seen", now.UnixMilli())
		if quarantined {
			pipe.HSet(ctx, key, "quarantined", "1")
		}
	}
	pipe.ZAdd(ctx, bucketKey(bucket), redis.Z{Score: float64(now.UnixMilli()), Member: signature})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upserting memory record: %w", err)
	}
	return nil
}

func (s *RedisStore) Entries(ctx context.Context, bucket string) ([]core.MemoryRecord, error) {
	sigs, err := s.client.ZRange(ctx, bucketKey(bucket), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing memory bucket: %w", err)
	}

	out := make([]core.MemoryRecord, 0, len(sigs))
	for _, sig := range sigs {
		fields, err := s.client.HGetAll(ctx, recordKey(bucket, sig)).Result()
		if err != nil {
			return nil, fmt.Errorf("reading memory record: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		out = append(out, recordFromFields(sig, fields))
	}
	return out, nil
}

func (s *RedisStore) Prune(ctx context.Context, bucket string, maxAge time.Duration, maxRecords int, now time.Time) (int, int, error) {
	bkey := bucketKey(bucket)
	cutoff := now.Add(-maxAge).UnixMilli()

	stale, err := s.client.ZRangeByScore(ctx, bkey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("finding stale records: %w", err)
	}
	if err := s.remove(ctx, bucket, stale); err != nil {
		return 0, 0, err
	}

	bySize := 0
	if maxRecords > 0 {
		total, err := s.client.ZCard(ctx, bkey).Result()
		if err != nil {
			return len(stale), 0, fmt.Errorf("sizing memory bucket: %w", err)
		}
		if int(total) > maxRecords {
			excess, err := s.client.ZRange(ctx, bkey, 0, total-int64(maxRecords)-1).Result()
			if err != nil {
				return len(stale), 0, fmt.Errorf("finding excess records: %w", err)
			}
			if err := s.remove(ctx, bucket, excess); err != nil {
				return len(stale), 0, err
			}
			bySize = len(excess)
		}
	}
	return len(stale), bySize, nil
}

func (s *RedisStore) remove(ctx context.Context, bucket string, sigs []string) error {
	if len(sigs) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	members := make([]interface{}, len(sigs))
	for i, sig := range sigs {
		members[i] = sig
		pipe.Del(ctx, recordKey(bucket, sig))
	}
	pipe.ZRem(ctx, bucketKey(bucket), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("removing memory records: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func recordFromFields(sig string, fields map[string]string) core.MemoryRecord {
	rec := core.MemoryRecord{Signature: sig, Count: 1}
	if v, err := strconv.ParseInt(fields["first_seen"], 10, 64); err == nil {
		rec.FirstSeen = time.UnixMilli(v).UTC()
	}
	if v, err := strconv.ParseInt(fields["last_seen"], 10, 64); err == nil {
		rec.LastSeen = time.UnixMilli(v).UTC()
	}
	if v, err := strconv.Atoi(fields["count"]); err == nil {
		rec.Count = v
	}
	rec.Quarantined = fields["quarantined"] == "1"
	return rec
}
