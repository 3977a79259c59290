package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tourbook/risk-gate/internal/domain"
)

// Key layout. Stable across deployments; the operator CLI and the gate read
// and write the same keys.
const (
	keyPrefix            = "risk:"
	keyBlacklistIndex    = keyPrefix + "blacklist:index"
	keyBlacklistAudit    = keyPrefix + "blacklist:audit"
	keyReviewPending     = keyPrefix + "review:pending"
	keyReviewPendingList = keyPrefix + "review:pending:order"
	keyReviewDecisions   = keyPrefix + "review:decisions"
	keyReviewSeq         = keyPrefix + "review:seq"
)

func historyKey(email string) string  { return keyPrefix + "history:" + email }
func failuresKey(email string) string { return keyPrefix + "failures:" + email }

func blacklistKey(typ domain.IdentifierType, identifier string) string {
	return keyPrefix + "blacklist:" + string(typ) + ":" + identifier
}

// RedisOptions carries the connection settings. Timeouts bound every
// round-trip so an evaluation can sit inline with checkout.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore implements every store interface on a shared Redis instance.
type RedisStore struct {
	rdb *redis.Client
}

var (
	_ History   = (*RedisStore)(nil)
	_ Failures  = (*RedisStore)(nil)
	_ Blacklist = (*RedisStore)(nil)
	_ Reviews   = (*RedisStore)(nil)
)

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Connect dials Redis and verifies the connection with a PING.
func Connect(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 50 * time.Millisecond
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 50 * time.Millisecond
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, unavailable("ping", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

// Ping is used by the health endpoint.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// ─── History ──────────────────────────────────────────────────────────────────

// Append stores the attempt in a sorted set scored by timestamp and trims the
// set in the same pipeline. The member is the encoded attempt, so appending
// the same attempt again leaves a single member.
func (r *RedisStore) Append(ctx context.Context, a domain.TransactionAttempt) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	key := historyKey(a.Email)

	pipe := r.rdb.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(a.Timestamp.UnixMilli()), Member: raw})
	trimSortedSet(ctx, pipe, key, a.Timestamp)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("append history", err)
	}
	return nil
}

func (r *RedisStore) Recent(ctx context.Context, email string, since, until time.Time) ([]domain.TransactionAttempt, error) {
	members, err := r.rdb.ZRangeByScore(ctx, historyKey(email), &redis.ZRangeBy{
		Min: millis(since),
		Max: millis(until),
	}).Result()
	if err != nil {
		return nil, unavailable("recent history", err)
	}

	result := make([]domain.TransactionAttempt, 0, len(members))
	for _, m := range members {
		var a domain.TransactionAttempt
		if err := json.Unmarshal([]byte(m), &a); err != nil {
			continue
		}
		result = append(result, a)
	}
	return result, nil
}

// trimSortedSet drops members older than HistoryRetention before ref, keeps
// the newest MaxEntriesPerIdentity and refreshes the key TTL.
func trimSortedSet(ctx context.Context, pipe redis.Pipeliner, key string, ref time.Time) {
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+millis(ref.Add(-HistoryRetention)))
	pipe.ZRemRangeByRank(ctx, key, 0, -int64(MaxEntriesPerIdentity+1))
	pipe.Expire(ctx, key, HistoryRetention)
}

// ─── Failures ─────────────────────────────────────────────────────────────────

func (r *RedisStore) RecordFailure(ctx context.Context, email string, at time.Time) error {
	key := failuresKey(email)
	member := millis(at) + ":" + uuid.NewString()

	pipe := r.rdb.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: member})
	trimSortedSet(ctx, pipe, key, at)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("record failure", err)
	}
	return nil
}

func (r *RedisStore) CountFailures(ctx context.Context, email string, since, until time.Time) (int, error) {
	n, err := r.rdb.ZCount(ctx, failuresKey(email), millis(since), millis(until)).Result()
	if err != nil {
		return 0, unavailable("count failures", err)
	}
	return int(n), nil
}

// isNil reports a missing key, which is not a store failure.
func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
