package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tourbook/risk-gate/internal/domain"
)

// IsBlacklisted reads the entry under its key and checks expiry in process.
// The key TTL set by Add is a storage optimisation only.
func (r *RedisStore) IsBlacklisted(ctx context.Context, identifier string, typ domain.IdentifierType) (bool, error) {
	e, err := r.getBlacklistEntry(ctx, typ, identifier)
	if err != nil {
		return false, err
	}
	return e != nil && e.LiveAt(time.Now()), nil
}

func (r *RedisStore) getBlacklistEntry(ctx context.Context, typ domain.IdentifierType, identifier string) (*domain.BlacklistEntry, error) {
	raw, err := r.rdb.Get(ctx, blacklistKey(typ, identifier)).Bytes()
	if err != nil {
		if isNil(err) {
			return nil, nil
		}
		return nil, unavailable("get blacklist entry", err)
	}
	var e domain.BlacklistEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode blacklist entry: %w", err)
	}
	return &e, nil
}

func (r *RedisStore) Add(ctx context.Context, e *domain.BlacklistEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal blacklist entry: %w", err)
	}
	event, err := json.Marshal(domain.BlacklistAuditEvent{
		Action:     domain.AuditAdd,
		Identifier: e.Identifier,
		Type:       e.Type,
		Reason:     e.Reason,
		Actor:      e.AddedBy,
		At:         e.AddedAt,
		ExpiresAt:  e.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	// Zero means no expiry. An entry added already expired is kept without a
	// TTL and is ignored by the lazy check until PurgeExpired removes it.
	var ttl time.Duration
	if e.ExpiresAt != nil {
		if d := time.Until(*e.ExpiresAt); d > 0 {
			ttl = d
		}
	}

	pipe := r.rdb.Pipeline()
	pipe.Set(ctx, blacklistKey(e.Type, e.Identifier), raw, ttl)
	pipe.SAdd(ctx, keyBlacklistIndex, blacklistID(e.Type, e.Identifier))
	pipe.LPush(ctx, keyBlacklistAudit, event)
	pipe.LTrim(ctx, keyBlacklistAudit, 0, MaxAuditEvents-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("add blacklist entry", err)
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, identifier string, typ domain.IdentifierType, removedBy string) error {
	n, err := r.rdb.Del(ctx, blacklistKey(typ, identifier)).Result()
	if err != nil {
		return unavailable("remove blacklist entry", err)
	}
	if n == 0 {
		_ = r.rdb.SRem(ctx, keyBlacklistIndex, blacklistID(typ, identifier)).Err()
		return domain.ErrNotFound
	}

	event, err := json.Marshal(domain.BlacklistAuditEvent{
		Action:     domain.AuditRemove,
		Identifier: identifier,
		Type:       typ,
		Actor:      removedBy,
		At:         time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	pipe := r.rdb.Pipeline()
	pipe.SRem(ctx, keyBlacklistIndex, blacklistID(typ, identifier))
	pipe.LPush(ctx, keyBlacklistAudit, event)
	pipe.LTrim(ctx, keyBlacklistAudit, 0, MaxAuditEvents-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("log blacklist removal", err)
	}
	return nil
}

// indexedEntries loads every entry referenced by the index. Missing keys are
// returned in the second slice so the caller can prune them.
func (r *RedisStore) indexedEntries(ctx context.Context) ([]*domain.BlacklistEntry, []string, error) {
	ids, err := r.rdb.SMembers(ctx, keyBlacklistIndex).Result()
	if err != nil {
		return nil, nil, unavailable("list blacklist index", err)
	}
	if len(ids) == 0 {
		return nil, nil, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		typ, identifier, _ := strings.Cut(id, ":")
		cmds[i] = pipe.Get(ctx, blacklistKey(domain.IdentifierType(typ), identifier))
	}
	if _, err := pipe.Exec(ctx); err != nil && !isNil(err) {
		return nil, nil, unavailable("load blacklist entries", err)
	}

	var entries []*domain.BlacklistEntry
	var missing []string
	for i, cmd := range cmds {
		raw, err := cmd.Bytes()
		if err != nil {
			missing = append(missing, ids[i])
			continue
		}
		var e domain.BlacklistEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		entries = append(entries, &e)
	}
	return entries, missing, nil
}

func (r *RedisStore) List(ctx context.Context) ([]*domain.BlacklistEntry, error) {
	entries, _, err := r.indexedEntries(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	live := entries[:0]
	for _, e := range entries {
		if e.LiveAt(now) {
			live = append(live, e)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].AddedAt.Before(live[j].AddedAt) })
	return live, nil
}

func (r *RedisStore) History(ctx context.Context, limit int) ([]domain.BlacklistAuditEvent, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raws, err := r.rdb.LRange(ctx, keyBlacklistAudit, 0, stop).Result()
	if err != nil {
		return nil, unavailable("blacklist history", err)
	}
	events := make([]domain.BlacklistAuditEvent, 0, len(raws))
	for _, raw := range raws {
		var ev domain.BlacklistAuditEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// PurgeExpired deletes expired entries and drops index members whose key has
// already been evicted by its TTL.
func (r *RedisStore) PurgeExpired(ctx context.Context) (int, error) {
	entries, missing, err := r.indexedEntries(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	pipe := r.rdb.Pipeline()
	n := 0
	for _, e := range entries {
		if e.LiveAt(now) {
			continue
		}
		pipe.Del(ctx, blacklistKey(e.Type, e.Identifier))
		pipe.SRem(ctx, keyBlacklistIndex, blacklistID(e.Type, e.Identifier))
		n++
	}
	for _, id := range missing {
		pipe.SRem(ctx, keyBlacklistIndex, id)
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, unavailable("purge blacklist", err)
	}
	return n, nil
}
