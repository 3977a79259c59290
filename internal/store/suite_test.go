package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourbook/risk-gate/internal/domain"
	"tourbook/risk-gate/internal/store"
)

// backend is what both implementations provide.
type backend interface {
	store.History
	store.Failures
	store.Blacklist
	store.Reviews
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

var (
	base      = time.Date(2026, 2, 25, 14, 0, 0, 0, time.UTC)
	farFuture = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
)

func attempt(email string, ts time.Time) domain.TransactionAttempt {
	return domain.TransactionAttempt{
		ID:          uuid.NewString(),
		Email:       email,
		Amount:      9000,
		TourID:      "night-tour",
		CountryCode: "JP",
		IP:          "203.0.113.7",
		Timestamp:   ts,
	}
}

func reviewEntry(id string, queuedAt time.Time) *domain.ReviewEntry {
	return &domain.ReviewEntry{
		ID:       id,
		Attempt:  attempt("queued@x.com", queuedAt),
		Score:    domain.NewRiskScore(domain.RiskFactors{UnusualAmount: true, UnusualLocation: true, UnusualTime: true}, false, "v1", queuedAt),
		QueuedAt: queuedAt,
	}
}

func decide(e *domain.ReviewEntry, d domain.Decision, at time.Time) *domain.ReviewEntry {
	cp := *e
	cp.Decision = d
	cp.ReviewedBy = "ops@tourbook"
	cp.ReviewedAt = &at
	return &cp
}

// runSuite exercises the behaviour both backends must share.
func runSuite(t *testing.T, newBackend func(t *testing.T) backend) {
	ctx := context.Background()

	// ─── History ──────────────────────────────────────────────────────────────

	t.Run("history/window filtering", func(t *testing.T) {
		s := newBackend(t)
		require.NoError(t, s.Append(ctx, attempt("user@x.com", base.Add(-2*time.Hour))))
		require.NoError(t, s.Append(ctx, attempt("user@x.com", base.Add(-30*time.Minute))))
		require.NoError(t, s.Append(ctx, attempt("other@x.com", base.Add(-10*time.Minute))))

		got, err := s.Recent(ctx, "user@x.com", base.Add(-time.Hour), base)
		require.NoError(t, err)
		assert.Len(t, got, 1)

		got, err = s.Recent(ctx, "user@x.com", base.Add(-3*time.Hour), base)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[0].Timestamp.Before(got[1].Timestamp), "oldest first")
	})

	t.Run("history/window lower bound is inclusive", func(t *testing.T) {
		s := newBackend(t)
		require.NoError(t, s.Append(ctx, attempt("edge@x.com", base.Add(-time.Hour))))

		got, err := s.Recent(ctx, "edge@x.com", base.Add(-time.Hour), base)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("history/window upper bound excludes later entries", func(t *testing.T) {
		s := newBackend(t)
		require.NoError(t, s.Append(ctx, attempt("late@x.com", base)))
		require.NoError(t, s.Append(ctx, attempt("late@x.com", base.Add(time.Millisecond))))
		require.NoError(t, s.Append(ctx, attempt("late@x.com", base.Add(10*time.Hour))))

		got, err := s.Recent(ctx, "late@x.com", base.Add(-time.Hour), base)
		require.NoError(t, err)
		require.Len(t, got, 1, "upper bound is inclusive")
		assert.Equal(t, base.UnixMilli(), got[0].Timestamp.UnixMilli())
	})

	t.Run("history/append same attempt twice stores one", func(t *testing.T) {
		s := newBackend(t)
		a := attempt("again@x.com", base)
		for i := 0; i < 3; i++ {
			require.NoError(t, s.Append(ctx, a))
		}
		require.NoError(t, s.Append(ctx, attempt("again@x.com", base.Add(time.Minute))))

		got, err := s.Recent(ctx, "again@x.com", time.Time{}, farFuture)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("history/trims beyond retention", func(t *testing.T) {
		s := newBackend(t)
		require.NoError(t, s.Append(ctx, attempt("old@x.com", base)))
		require.NoError(t, s.Append(ctx, attempt("old@x.com", base.Add(store.HistoryRetention+time.Minute))))

		got, err := s.Recent(ctx, "old@x.com", time.Time{}, farFuture)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("history/caps per identity", func(t *testing.T) {
		s := newBackend(t)
		for i := 0; i < store.MaxEntriesPerIdentity+5; i++ {
			require.NoError(t, s.Append(ctx, attempt("abuser@x.com", base.Add(time.Duration(i)*time.Second))))
		}
		got, err := s.Recent(ctx, "abuser@x.com", time.Time{}, farFuture)
		require.NoError(t, err)
		require.Len(t, got, store.MaxEntriesPerIdentity)
		assert.Equal(t, base.Add(5*time.Second).UnixMilli(), got[0].Timestamp.UnixMilli(), "oldest entries are dropped first")
	})

	t.Run("history/unknown identity is empty", func(t *testing.T) {
		s := newBackend(t)
		got, err := s.Recent(ctx, "nobody@x.com", base.Add(-time.Hour), base)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	// ─── Failures ─────────────────────────────────────────────────────────────

	t.Run("failures/counted within window", func(t *testing.T) {
		s := newBackend(t)
		require.NoError(t, s.RecordFailure(ctx, "f@x.com", base.Add(-25*time.Hour)))
		for i := 0; i < 3; i++ {
			require.NoError(t, s.RecordFailure(ctx, "f@x.com", base.Add(-time.Duration(i+1)*time.Hour)))
		}
		// Same instant twice still counts twice.
		require.NoError(t, s.RecordFailure(ctx, "f@x.com", base))
		require.NoError(t, s.RecordFailure(ctx, "f@x.com", base))

		n, err := s.CountFailures(ctx, "f@x.com", base.Add(-24*time.Hour), base)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("failures/later than window end are not counted", func(t *testing.T) {
		s := newBackend(t)
		require.NoError(t, s.RecordFailure(ctx, "later@x.com", base.Add(-time.Hour)))
		for i := 1; i <= 3; i++ {
			require.NoError(t, s.RecordFailure(ctx, "later@x.com", base.Add(time.Duration(i)*time.Hour)))
		}

		n, err := s.CountFailures(ctx, "later@x.com", base.Add(-24*time.Hour), base)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	// ─── Blacklist ────────────────────────────────────────────────────────────

	t.Run("blacklist/add then lookup", func(t *testing.T) {
		s := newBackend(t)
		require.NoError(t, s.Add(ctx, &domain.BlacklistEntry{
			Identifier: "bad@x.com", Type: domain.IdentifierEmail,
			Reason: "chargeback", AddedBy: "ops", AddedAt: time.Now().UTC(),
		}))

		hit, err := s.IsBlacklisted(ctx, "bad@x.com", domain.IdentifierEmail)
		require.NoError(t, err)
		assert.True(t, hit)

		hit, err = s.IsBlacklisted(ctx, "bad@x.com", domain.IdentifierIP)
		require.NoError(t, err)
		assert.False(t, hit, "lookups are scoped by identifier type")
	})

	t.Run("blacklist/expired entry is never live", func(t *testing.T) {
		s := newBackend(t)
		past := time.Now().Add(-time.Minute)
		require.NoError(t, s.Add(ctx, &domain.BlacklistEntry{
			Identifier: "198.51.100.1", Type: domain.IdentifierIP,
			Reason: "temp", AddedBy: "ops", AddedAt: past.Add(-time.Hour), ExpiresAt: &past,
		}))

		hit, err := s.IsBlacklisted(ctx, "198.51.100.1", domain.IdentifierIP)
		require.NoError(t, err)
		assert.False(t, hit)

		live, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, live)

		n, err := s.PurgeExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("blacklist/future expiry is live", func(t *testing.T) {
		s := newBackend(t)
		future := time.Now().Add(time.Hour)
		require.NoError(t, s.Add(ctx, &domain.BlacklistEntry{
			Identifier: "198.51.100.2", Type: domain.IdentifierIP,
			AddedBy: "ops", AddedAt: time.Now().UTC(), ExpiresAt: &future,
		}))
		hit, err := s.IsBlacklisted(ctx, "198.51.100.2", domain.IdentifierIP)
		require.NoError(t, err)
		assert.True(t, hit)
	})

	t.Run("blacklist/add replaces existing key", func(t *testing.T) {
		s := newBackend(t)
		for _, reason := range []string{"first", "second"} {
			require.NoError(t, s.Add(ctx, &domain.BlacklistEntry{
				Identifier: "dup@x.com", Type: domain.IdentifierEmail,
				Reason: reason, AddedBy: "ops", AddedAt: time.Now().UTC(),
			}))
		}
		live, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, live, 1)
		assert.Equal(t, "second", live[0].Reason)
	})

	t.Run("blacklist/remove and audit history", func(t *testing.T) {
		s := newBackend(t)
		require.NoError(t, s.Add(ctx, &domain.BlacklistEntry{
			Identifier: "gone@x.com", Type: domain.IdentifierEmail,
			Reason: "fraud", AddedBy: "alice", AddedAt: time.Now().UTC(),
		}))
		require.NoError(t, s.Remove(ctx, "gone@x.com", domain.IdentifierEmail, "bob"))

		hit, err := s.IsBlacklisted(ctx, "gone@x.com", domain.IdentifierEmail)
		require.NoError(t, err)
		assert.False(t, hit)

		events, err := s.History(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, domain.AuditRemove, events[0].Action)
		assert.Equal(t, "bob", events[0].Actor)
		assert.Equal(t, domain.AuditAdd, events[1].Action)
		assert.Equal(t, "fraud", events[1].Reason)

		limited, err := s.History(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("blacklist/remove missing", func(t *testing.T) {
		s := newBackend(t)
		err := s.Remove(ctx, "ghost@x.com", domain.IdentifierEmail, "ops")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		events, err := s.History(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("blacklist/audit log is capped", func(t *testing.T) {
		s := newBackend(t)
		for i := 0; i < store.MaxAuditEvents+3; i++ {
			require.NoError(t, s.Add(ctx, &domain.BlacklistEntry{
				Identifier: fmt.Sprintf("u%d@x.com", i), Type: domain.IdentifierEmail,
				Reason: "bulk", AddedBy: "ops", AddedAt: base.Add(time.Duration(i) * time.Second),
			}))
		}

		events, err := s.History(ctx, 0)
		require.NoError(t, err)
		require.Len(t, events, store.MaxAuditEvents)
		assert.Equal(t, fmt.Sprintf("u%d@x.com", store.MaxAuditEvents+2), events[0].Identifier, "newest kept")
		assert.Equal(t, "u3@x.com", events[len(events)-1].Identifier, "oldest dropped")
	})

	// ─── Review queue ─────────────────────────────────────────────────────────

	t.Run("reviews/pending in queue order", func(t *testing.T) {
		s := newBackend(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, s.Enqueue(ctx, reviewEntry(fmt.Sprintf("r-%d", i), base.Add(time.Duration(i)*time.Minute))))
		}

		got, err := s.Pending(ctx, 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"r-0", "r-1", "r-2"}, []string{got[0].ID, got[1].ID, got[2].ID})

		got, err = s.Pending(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)

		n, err := s.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("reviews/same millisecond keeps enqueue order", func(t *testing.T) {
		s := newBackend(t)
		ids := []string{"r-c", "r-a", "r-b"}
		for _, id := range ids {
			require.NoError(t, s.Enqueue(ctx, reviewEntry(id, base)))
		}
		// Re-enqueueing a pending entry does not move it.
		require.NoError(t, s.Enqueue(ctx, reviewEntry("r-c", base)))

		got, err := s.Pending(ctx, 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, ids, []string{got[0].ID, got[1].ID, got[2].ID})
	})

	t.Run("reviews/resolve is single shot", func(t *testing.T) {
		s := newBackend(t)
		e := reviewEntry("r-once", base)
		require.NoError(t, s.Enqueue(ctx, e))

		require.NoError(t, s.Resolve(ctx, decide(e, domain.DecisionReject, base.Add(time.Hour))))
		err := s.Resolve(ctx, decide(e, domain.DecisionApprove, base.Add(2*time.Hour)))
		assert.ErrorIs(t, err, domain.ErrReviewConflict)

		_, err = s.GetPending(ctx, "r-once")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		decisions, err := s.Decisions(ctx, 0)
		require.NoError(t, err)
		require.Len(t, decisions, 1)
		assert.Equal(t, domain.DecisionReject, decisions[0].Decision)

		n, err := s.PendingCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("reviews/concurrent resolve logs one decision", func(t *testing.T) {
		s := newBackend(t)
		e := reviewEntry("r-race", base)
		require.NoError(t, s.Enqueue(ctx, e))

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Resolve(ctx, decide(e, domain.DecisionApprove, base.Add(time.Hour))); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)

		decisions, err := s.Decisions(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, decisions, 1)
	})

	t.Run("reviews/decisions newest first and purge", func(t *testing.T) {
		s := newBackend(t)
		old := reviewEntry("r-old", base)
		recent := reviewEntry("r-new", base.Add(time.Minute))
		require.NoError(t, s.Enqueue(ctx, old))
		require.NoError(t, s.Enqueue(ctx, recent))
		require.NoError(t, s.Resolve(ctx, decide(old, domain.DecisionApprove, base.Add(-40*24*time.Hour))))
		require.NoError(t, s.Resolve(ctx, decide(recent, domain.DecisionApprove, base)))

		decisions, err := s.Decisions(ctx, 0)
		require.NoError(t, err)
		require.Len(t, decisions, 2)
		assert.Equal(t, "r-new", decisions[0].ID)

		n, err := s.PurgeDecisions(ctx, base.Add(-30*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		decisions, err = s.Decisions(ctx, 0)
		require.NoError(t, err)
		require.Len(t, decisions, 1)
		assert.Equal(t, "r-new", decisions[0].ID)
	})
}
