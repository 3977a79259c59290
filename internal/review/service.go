// Package review is the manual-review queue for high-risk attempts.
//
// Decisions are keyed by entry ID and applied with the store's atomic
// remove-and-log primitive, so two reviewers racing on the same entry get
// exactly one success and one domain.ErrReviewConflict. Rejecting an entry
// blacklists the attempt's email and, when present, its IP.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tourbook/risk-gate/internal/domain"
	"tourbook/risk-gate/internal/logging"
	"tourbook/risk-gate/internal/metrics"
	"tourbook/risk-gate/internal/store"
)

// DefaultRejectReason is recorded on blacklist entries created by a reject
// decision that carries no notes.
const DefaultRejectReason = "rejected in manual review"

type Service struct {
	reviews   store.Reviews
	blacklist store.Blacklist
	now       func() time.Time
}

func New(reviews store.Reviews, blacklist store.Blacklist) *Service {
	return &Service{reviews: reviews, blacklist: blacklist, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Enqueue holds attempt for human adjudication.
func (s *Service) Enqueue(ctx context.Context, a domain.TransactionAttempt, score domain.RiskScore) (*domain.ReviewEntry, error) {
	e := &domain.ReviewEntry{
		ID:       uuid.NewString(),
		Attempt:  a,
		Score:    score,
		QueuedAt: s.now().UTC(),
	}
	if err := s.reviews.Enqueue(ctx, e); err != nil {
		return nil, fmt.Errorf("enqueue review for attempt %s: %w", a.ID, err)
	}
	metrics.ReviewQueuedTotal.Inc()
	return e, nil
}

// List returns pending entries oldest first. limit <= 0 returns all.
func (s *Service) List(ctx context.Context, limit int) ([]*domain.ReviewEntry, error) {
	return s.reviews.Pending(ctx, limit)
}

func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.reviews.PendingCount(ctx)
}

// Decide records a verdict on the pending entry id.
//
// The entry leaves the pending queue and enters the decision log in one step.
// Blacklist writes on reject happen after that step; a failure there is
// returned alongside the decided entry so the caller can retry the ban.
func (s *Service) Decide(ctx context.Context, id string, decision domain.Decision, notes, reviewedBy string) (*domain.ReviewEntry, error) {
	if !decision.Valid() {
		return nil, &domain.ValidationError{Field: "decision", Message: "must be approve or reject"}
	}
	if reviewedBy == "" {
		return nil, &domain.ValidationError{Field: "reviewed_by", Message: "is required"}
	}

	pending, err := s.reviews.GetPending(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("review %s: %w", id, domain.ErrReviewConflict)
		}
		return nil, fmt.Errorf("load review %s: %w", id, err)
	}

	at := s.now().UTC()
	decided := *pending
	decided.Decision = decision
	decided.ReviewedBy = reviewedBy
	decided.ReviewedAt = &at
	decided.Notes = notes

	if err := s.reviews.Resolve(ctx, &decided); err != nil {
		return nil, fmt.Errorf("resolve review %s: %w", id, err)
	}
	metrics.ReviewDecisionsTotal.WithLabelValues(string(decision)).Inc()

	log := logging.L(ctx)
	log.Info("review decided",
		"review_id", id,
		"attempt_id", decided.Attempt.ID,
		"decision", decision,
		"reviewed_by", reviewedBy,
	)

	if decision == domain.DecisionReject {
		if err := s.banAttempt(ctx, &decided); err != nil {
			log.Error("reject blacklist write failed", "review_id", id, "error", err)
			return &decided, err
		}
	}
	return &decided, nil
}

func (s *Service) banAttempt(ctx context.Context, e *domain.ReviewEntry) error {
	reason := e.Notes
	if reason == "" {
		reason = DefaultRejectReason
	}

	type target struct {
		id  string
		typ domain.IdentifierType
	}
	targets := []target{{e.Attempt.Email, domain.IdentifierEmail}}
	if e.Attempt.IP != "" {
		targets = append(targets, target{e.Attempt.IP, domain.IdentifierIP})
	}

	var errs []error
	for _, t := range targets {
		err := s.blacklist.Add(ctx, &domain.BlacklistEntry{
			Identifier: t.id,
			Type:       t.typ,
			Reason:     reason,
			AddedBy:    e.ReviewedBy,
			AddedAt:    *e.ReviewedAt,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("blacklist %s %s: %w", t.typ, t.id, err))
		}
	}
	return errors.Join(errs...)
}

// History returns decided entries newest first. limit <= 0 returns all.
func (s *Service) History(ctx context.Context, limit int) ([]*domain.ReviewEntry, error) {
	return s.reviews.Decisions(ctx, limit)
}

// Cleanup purges decisions reviewed more than olderThanDays days ago.
func (s *Service) Cleanup(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays < 0 {
		return 0, &domain.ValidationError{Field: "older_than_days", Message: "must not be negative"}
	}
	cutoff := s.now().UTC().AddDate(0, 0, -olderThanDays)
	n, err := s.reviews.PurgeDecisions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge review decisions: %w", err)
	}
	logging.L(ctx).Info("review decisions purged", "count", n, "cutoff", cutoff)
	return n, nil
}
