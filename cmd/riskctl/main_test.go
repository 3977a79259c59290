package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourbook/risk-gate/internal/blacklist"
	"tourbook/risk-gate/internal/domain"
	"tourbook/risk-gate/internal/review"
	"tourbook/risk-gate/internal/store"
)

func setup(t *testing.T) *store.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("ENV", "development")
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("LOG_LEVEL", "error")

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return store.NewRedis(rdb)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBlacklistCommands(t *testing.T) {
	setup(t)

	out, err := run(t, "blacklist", "add", "Fraud@X.com", "--reason", "chargeback", "--by", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Blacklisted email fraud@x.com (permanent)")

	out, err = run(t, "blacklist", "add", "198.51.100.9", "--days", "7", "--by", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Blacklisted ip 198.51.100.9 (until ")

	out, err = run(t, "blacklist", "list", "--json")
	require.NoError(t, err)
	var entries []domain.BlacklistEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Len(t, entries, 2)

	_, err = run(t, "blacklist", "remove", "fraud@x.com", "--by", "bob")
	require.NoError(t, err)
	_, err = run(t, "blacklist", "remove", "fraud@x.com", "--by", "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	out, err = run(t, "blacklist", "history", "--json", "--limit", "1")
	require.NoError(t, err)
	var events []domain.BlacklistAuditEvent
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)
	assert.Equal(t, domain.AuditRemove, events[0].Action)
	assert.Equal(t, "bob", events[0].Actor)

	out, err = run(t, "blacklist", "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 0 expired entries")
}

func TestBlacklistAdd_RejectsUnknownIdentifier(t *testing.T) {
	setup(t)
	_, err := run(t, "blacklist", "add", "not-an-identifier", "--by", "alice")
	assert.ErrorIs(t, err, blacklist.ErrUnknownIdentifier)
}

func TestBlacklistAdd_RequiresOperator(t *testing.T) {
	setup(t)
	_, err := run(t, "blacklist", "add", "fraud@x.com")
	assert.Error(t, err)
}

func TestReviewCommands(t *testing.T) {
	rs := setup(t)
	ctx := context.Background()

	at := time.Date(2026, 2, 25, 3, 0, 0, 0, time.UTC)
	f := domain.RiskFactors{UnusualAmount: true, UnusualTime: true, UnusualLocation: true}
	queued, err := review.New(rs, rs).Enqueue(ctx, domain.TransactionAttempt{
		ID: "att-1", Email: "a@x.com", Amount: 1, TourID: "night-tour", CountryCode: "RU", IP: "203.0.113.7", Timestamp: at,
	}, domain.NewRiskScore(f, false, "builtin-1", at))
	require.NoError(t, err)

	out, err := run(t, "review", "list")
	require.NoError(t, err)
	assert.Contains(t, out, queued.ID)
	assert.Contains(t, out, "unusual_amount,unusual_time,unusual_location")

	out, err = run(t, "review", "decide", queued.ID, "REJECT", "--notes", "stolen card", "--by", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "reject by bob")

	_, err = run(t, "review", "decide", queued.ID, "approve", "--by", "carol")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not pending")

	hit, err := rs.IsBlacklisted(ctx, "203.0.113.7", domain.IdentifierIP)
	require.NoError(t, err)
	assert.True(t, hit)

	out, err = run(t, "review", "history", "--json")
	require.NoError(t, err)
	var history []domain.ReviewEntry
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "stolen card", history[0].Notes)

	time.Sleep(5 * time.Millisecond)
	out, err = run(t, "review", "cleanup", "--older-than-days", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 1 decisions")
}

func TestRequiresRedisBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("ENV", "development")
	_, err := run(t, "blacklist", "list")
	assert.Error(t, err)
}
