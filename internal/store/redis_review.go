package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tourbook/risk-gate/internal/domain"
)

//go:embed resolve_review.lua
var resolveReviewLua string

var resolveReviewScript = redis.NewScript(resolveReviewLua)

// Enqueue scores the pending order by a queue-wide sequence so entries queued
// in the same millisecond keep their enqueue order.
func (r *RedisStore) Enqueue(ctx context.Context, e *domain.ReviewEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal review entry: %w", err)
	}

	seq, err := r.rdb.Incr(ctx, keyReviewSeq).Result()
	if err != nil {
		return unavailable("enqueue review", err)
	}

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, keyReviewPending, e.ID, raw)
	pipe.ZAddNX(ctx, keyReviewPendingList, redis.Z{Score: float64(seq), Member: e.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("enqueue review", err)
	}
	return nil
}

func (r *RedisStore) Pending(ctx context.Context, limit int) ([]*domain.ReviewEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.rdb.ZRange(ctx, keyReviewPendingList, 0, stop).Result()
	if err != nil {
		return nil, unavailable("list pending reviews", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	vals, err := r.rdb.HMGet(ctx, keyReviewPending, ids...).Result()
	if err != nil {
		return nil, unavailable("load pending reviews", err)
	}

	result := make([]*domain.ReviewEntry, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // resolved between the two reads
		}
		var e domain.ReviewEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			continue
		}
		result = append(result, &e)
	}
	return result, nil
}

func (r *RedisStore) GetPending(ctx context.Context, id string) (*domain.ReviewEntry, error) {
	raw, err := r.rdb.HGet(ctx, keyReviewPending, id).Bytes()
	if err != nil {
		if isNil(err) {
			return nil, domain.ErrNotFound
		}
		return nil, unavailable("get pending review", err)
	}
	var e domain.ReviewEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode review entry: %w", err)
	}
	return &e, nil
}

// Resolve runs the remove-and-log script. Only one concurrent caller can see
// the entry in the pending hash, so only one decision is ever logged.
func (r *RedisStore) Resolve(ctx context.Context, decided *domain.ReviewEntry) error {
	if decided.ReviewedAt == nil {
		return fmt.Errorf("resolve review %s: reviewed_at is required", decided.ID)
	}
	raw, err := json.Marshal(decided)
	if err != nil {
		return fmt.Errorf("marshal review entry: %w", err)
	}

	keys := []string{keyReviewPending, keyReviewPendingList, keyReviewDecisions}
	res, err := resolveReviewScript.Run(ctx, r.rdb, keys, decided.ID, raw, decided.ReviewedAt.UnixMilli()).Int()
	if err != nil {
		return unavailable("resolve review", err)
	}
	if res == 0 {
		return domain.ErrReviewConflict
	}
	return nil
}

func (r *RedisStore) Decisions(ctx context.Context, limit int) ([]*domain.ReviewEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raws, err := r.rdb.ZRevRange(ctx, keyReviewDecisions, 0, stop).Result()
	if err != nil {
		return nil, unavailable("list review decisions", err)
	}
	result := make([]*domain.ReviewEntry, 0, len(raws))
	for _, raw := range raws {
		var e domain.ReviewEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		result = append(result, &e)
	}
	return result, nil
}

func (r *RedisStore) PurgeDecisions(ctx context.Context, reviewedBefore time.Time) (int, error) {
	n, err := r.rdb.ZRemRangeByScore(ctx, keyReviewDecisions, "-inf", "("+millis(reviewedBefore)).Result()
	if err != nil {
		return 0, unavailable("purge review decisions", err)
	}
	return int(n), nil
}

func (r *RedisStore) PendingCount(ctx context.Context) (int, error) {
	n, err := r.rdb.ZCard(ctx, keyReviewPendingList).Result()
	if err != nil {
		return 0, unavailable("count pending reviews", err)
	}
	return int(n), nil
}
