// Package store provides the shared state behind the risk gate: per-identity
// attempt history, failed-payment records, the blacklist with its audit log,
// and the manual-review queue.
//
// Two implementations exist. Store keeps everything in process memory and is
// used by tests and local development. RedisStore is the production backend;
// every operation is atomic at the single-key level and the review decision
// runs as one server-side script.
package store

import (
	"context"
	"time"

	"tourbook/risk-gate/internal/domain"
)

// Retention policy shared by both backends. Trimming is relative to the
// timestamp of the record being appended.
const (
	HistoryRetention      = 24 * time.Hour
	MaxEntriesPerIdentity = 200

	// MaxAuditEvents bounds the blacklist audit log; the oldest events are
	// dropped first.
	MaxAuditEvents = 1000
)

// History is the append-only per-identity record of recent attempts. Appending
// an attempt whose ID is already stored for the identity is a no-op.
type History interface {
	Append(ctx context.Context, a domain.TransactionAttempt) error
	// Recent returns attempts for email with timestamp in [since, until],
	// oldest first.
	Recent(ctx context.Context, email string, since, until time.Time) ([]domain.TransactionAttempt, error)
}

// Failures records failed payment captures reported by checkout.
type Failures interface {
	RecordFailure(ctx context.Context, email string, at time.Time) error
	// CountFailures counts failures for email with timestamp in [since, until].
	CountFailures(ctx context.Context, email string, since, until time.Time) (int, error)
}

// Blacklist holds live bans keyed by (identifier, type) and their audit trail.
type Blacklist interface {
	// IsBlacklisted checks expiry lazily; an expired entry is never live.
	IsBlacklisted(ctx context.Context, identifier string, typ domain.IdentifierType) (bool, error)
	// Add replaces any existing entry for the same key and logs an audit event.
	Add(ctx context.Context, e *domain.BlacklistEntry) error
	// Remove returns domain.ErrNotFound when nothing is stored under the key.
	Remove(ctx context.Context, identifier string, typ domain.IdentifierType, removedBy string) error
	List(ctx context.Context) ([]*domain.BlacklistEntry, error)
	// History returns audit events newest first. limit <= 0 returns all.
	History(ctx context.Context, limit int) ([]domain.BlacklistAuditEvent, error)
	PurgeExpired(ctx context.Context) (int, error)
}

// Reviews is the pending queue plus the decision log.
type Reviews interface {
	Enqueue(ctx context.Context, e *domain.ReviewEntry) error
	// Pending returns undecided entries oldest first. limit <= 0 returns all.
	Pending(ctx context.Context, limit int) ([]*domain.ReviewEntry, error)
	// GetPending returns domain.ErrNotFound if id is not pending.
	GetPending(ctx context.Context, id string) (*domain.ReviewEntry, error)
	// Resolve atomically removes the entry from the pending set and appends
	// the decided copy to the decision log. It returns domain.ErrReviewConflict
	// if the entry is no longer pending.
	Resolve(ctx context.Context, decided *domain.ReviewEntry) error
	// Decisions returns decided entries newest first. limit <= 0 returns all.
	Decisions(ctx context.Context, limit int) ([]*domain.ReviewEntry, error)
	PurgeDecisions(ctx context.Context, reviewedBefore time.Time) (int, error)
	PendingCount(ctx context.Context) (int, error)
}
