package blacklist_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourbook/risk-gate/internal/blacklist"
	"tourbook/risk-gate/internal/domain"
	"tourbook/risk-gate/internal/store"
)

func TestDetectType(t *testing.T) {
	cases := []struct {
		in      string
		wantID  string
		wantTyp domain.IdentifierType
	}{
		{"Fraud@Example.com ", "fraud@example.com", domain.IdentifierEmail},
		{"203.0.113.9", "203.0.113.9", domain.IdentifierIP},
		{"2001:DB8::1", "2001:db8::1", domain.IdentifierIP},
	}
	for _, c := range cases {
		id, typ, err := blacklist.DetectType(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.wantID, id)
		assert.Equal(t, c.wantTyp, typ)
	}

	for _, bad := range []string{"", "not-an-id", "999.1.1.1"} {
		_, _, err := blacklist.DetectType(bad)
		assert.ErrorIs(t, err, blacklist.ErrUnknownIdentifier, bad)
	}
}

func TestAdd_PermanentAndExpiring(t *testing.T) {
	ctx := context.Background()
	s := store.New()
	svc := blacklist.New(s)

	perm, err := svc.Add(ctx, "bad@x.com", "chargeback", 0, "ops")
	require.NoError(t, err)
	assert.Nil(t, perm.ExpiresAt)

	tmp, err := svc.Add(ctx, "198.51.100.4", "card testing", 7, "ops")
	require.NoError(t, err)
	require.NotNil(t, tmp.ExpiresAt)
	assert.WithinDuration(t, tmp.AddedAt.AddDate(0, 0, 7), *tmp.ExpiresAt, time.Second)

	hit, err := svc.IsBlacklisted(ctx, "BAD@x.com")
	require.NoError(t, err)
	assert.True(t, hit)

	entries, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestAdd_RequiresActorAndKnownType(t *testing.T) {
	svc := blacklist.New(store.New())

	_, err := svc.Add(context.Background(), "bad@x.com", "r", 0, "")
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = svc.Add(context.Background(), "nope", "r", 0, "ops")
	assert.ErrorIs(t, err, blacklist.ErrUnknownIdentifier)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	svc := blacklist.New(store.New())

	_, err := svc.Add(ctx, "bad@x.com", "chargeback", 0, "ops")
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, "bad@x.com", "lead"))

	err = svc.Remove(ctx, "bad@x.com", "lead")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	events, err := svc.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.AuditRemove, events[0].Action)
	assert.Equal(t, "lead", events[0].Actor)
	assert.Equal(t, domain.AuditAdd, events[1].Action)
}

func TestCleanup_PurgesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	s := store.New()
	past := time.Now().Add(-48 * time.Hour)
	svc := blacklist.New(s).WithClock(func() time.Time { return past })

	_, err := svc.Add(ctx, "old@x.com", "stale", 1, "ops")
	require.NoError(t, err)
	_, err = svc.Add(ctx, "kept@x.com", "permanent", 0, "ops")
	require.NoError(t, err)

	n, err := svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept@x.com", entries[0].Identifier)
}
