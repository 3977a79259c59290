// Package orchestrator is the synchronous risk gate that checkout calls before
// capturing a payment.
//
// For each attempt the gate validates, scores, and then acts on the level:
//
//	critical  → blocked with *domain.BlockedError; nothing is recorded
//	high      → recorded in history and queued for manual review
//	otherwise → recorded in history
//
// Store writes after scoring never fail the evaluation. A failed write marks
// the returned score as degraded and is logged.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"tourbook/risk-gate/internal/domain"
	"tourbook/risk-gate/internal/logging"
	"tourbook/risk-gate/internal/metrics"
	"tourbook/risk-gate/internal/store"
)

// Scorer produces a risk score without side effects.
type Scorer interface {
	Evaluate(ctx context.Context, a domain.TransactionAttempt) domain.RiskScore
}

// Queue holds high-risk attempts for human review.
type Queue interface {
	Enqueue(ctx context.Context, a domain.TransactionAttempt, score domain.RiskScore) (*domain.ReviewEntry, error)
}

// Notifier is told about every newly queued review entry. It must not block.
type Notifier interface {
	ReviewQueued(e *domain.ReviewEntry)
}

type Gate struct {
	scorer   Scorer
	history  store.History
	failures store.Failures
	queue    Queue
	notifier Notifier
	now      func() time.Time
}

func New(scorer Scorer, history store.History, failures store.Failures, queue Queue) *Gate {
	return &Gate{
		scorer:   scorer,
		history:  history,
		failures: failures,
		queue:    queue,
		now:      time.Now,
	}
}

// WithNotifier sets the review notifier. A nil notifier disables notification.
func (g *Gate) WithNotifier(n Notifier) *Gate {
	g.notifier = n
	return g
}

// WithClock overrides the time source used for missing timestamps.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// ─── Evaluate ─────────────────────────────────────────────────────────────────

// Evaluate gates one attempt. It returns a *domain.ValidationError for
// malformed input and a *domain.BlockedError for critical attempts.
func (g *Gate) Evaluate(ctx context.Context, a domain.TransactionAttempt) (domain.RiskScore, error) {
	start := time.Now()
	defer func() { metrics.EvaluationDuration.Observe(time.Since(start).Seconds()) }()

	a = a.Normalize(g.now().UTC())
	if err := a.Validate(); err != nil {
		return domain.RiskScore{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	log := logging.L(ctx).With("attempt_id", a.ID)
	score := g.scorer.Evaluate(ctx, a)

	if score.Level == domain.LevelCritical {
		log.Warn("attempt blocked",
			"score", score.Score,
			"factors", score.Factors.Triggered(),
			"degraded", score.Degraded,
		)
		metrics.BlockedTotal.Inc()
		record(score)
		return score, &domain.BlockedError{Score: score}
	}

	if err := g.history.Append(ctx, a); err != nil {
		score.Degraded = true
		log.Error("history append failed", "error", err)
	}

	if score.Level == domain.LevelHigh {
		entry, err := g.queue.Enqueue(ctx, a, score)
		if err != nil {
			score.Degraded = true
			log.Error("review enqueue failed", "error", err)
		} else {
			log.Info("attempt queued for review", "review_id", entry.ID, "score", score.Score)
			if g.notifier != nil {
				g.notifier.ReviewQueued(entry)
			}
		}
	}

	record(score)
	return score, nil
}

func record(score domain.RiskScore) {
	metrics.EvaluationsTotal.WithLabelValues(string(score.Level)).Inc()
	for _, f := range score.Factors.Triggered() {
		metrics.FactorsTotal.WithLabelValues(f).Inc()
	}
	if score.Degraded {
		metrics.DegradedTotal.Inc()
	}
}

// ─── Replay ───────────────────────────────────────────────────────────────────

// ReplaySummary counts the outcomes of a replayed batch.
type ReplaySummary struct {
	Recorded int `json:"recorded"`
	Queued   int `json:"queued"`
	Blocked  int `json:"blocked"`
	Invalid  int `json:"invalid"`
}

// Replay runs a batch of historical attempts through the gate in timestamp
// order, so the velocity factors fire as they would have live.
func (g *Gate) Replay(ctx context.Context, attempts []domain.TransactionAttempt) ReplaySummary {
	sorted := make([]domain.TransactionAttempt, len(attempts))
	copy(sorted, attempts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var sum ReplaySummary
	for _, a := range sorted {
		score, err := g.Evaluate(ctx, a)
		if err != nil {
			if _, blocked := domain.IsBlocked(err); blocked {
				sum.Blocked++
			} else {
				sum.Invalid++
			}
			continue
		}
		sum.Recorded++
		if score.Level == domain.LevelHigh {
			sum.Queued++
		}
	}
	return sum
}

// ─── Payment failures ─────────────────────────────────────────────────────────

// RecordPaymentFailure stores a failed capture for email. A zero at means now.
func (g *Gate) RecordPaymentFailure(ctx context.Context, email string, at time.Time) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return &domain.ValidationError{Field: "email", Message: "email is required"}
	}
	if at.IsZero() {
		at = g.now().UTC()
	}
	if err := g.failures.RecordFailure(ctx, email, at); err != nil {
		return fmt.Errorf("record payment failure: %w", err)
	}
	metrics.PaymentFailuresTotal.Inc()
	return nil
}
