package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"tourbook/risk-gate/internal/domain"
)

// Store is a thread-safe in-memory implementation of every store interface.
type Store struct {
	mu sync.RWMutex

	// email → attempts, ordered by timestamp.
	history map[string][]domain.TransactionAttempt
	// email → failure timestamps, ordered.
	failures map[string][]time.Time

	blacklist map[string]*domain.BlacklistEntry // "type:identifier" → entry
	audit     []domain.BlacklistAuditEvent      // oldest first

	pending      map[string]*domain.ReviewEntry
	pendingOrder []string              // ids in enqueue order
	decisions    []*domain.ReviewEntry // oldest first
}

var (
	_ History   = (*Store)(nil)
	_ Failures  = (*Store)(nil)
	_ Blacklist = (*Store)(nil)
	_ Reviews   = (*Store)(nil)
)

// New creates an empty, ready-to-use Store.
func New() *Store {
	return &Store{
		history:   make(map[string][]domain.TransactionAttempt),
		failures:  make(map[string][]time.Time),
		blacklist: make(map[string]*domain.BlacklistEntry),
		pending:   make(map[string]*domain.ReviewEntry),
	}
}

// ─── History ──────────────────────────────────────────────────────────────────

// Append inserts the attempt in timestamp order, then drops records older than
// HistoryRetention before it and caps the list at MaxEntriesPerIdentity.
func (s *Store) Append(_ context.Context, a domain.TransactionAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.history[a.Email] {
		if existing.ID == a.ID {
			return nil
		}
	}

	list := append(s.history[a.Email], a)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp.Before(list[j].Timestamp)
	})

	cutoff := a.Timestamp.Add(-HistoryRetention)
	start := 0
	for start < len(list) && list[start].Timestamp.Before(cutoff) {
		start++
	}
	if len(list)-start > MaxEntriesPerIdentity {
		start = len(list) - MaxEntriesPerIdentity
	}
	s.history[a.Email] = append([]domain.TransactionAttempt(nil), list[start:]...)
	return nil
}

// Recent returns copies of attempts in [since, until].
func (s *Store) Recent(_ context.Context, email string, since, until time.Time) ([]domain.TransactionAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.TransactionAttempt
	for _, a := range s.history[email] {
		if !a.Timestamp.Before(since) && !a.Timestamp.After(until) {
			result = append(result, a)
		}
	}
	return result, nil
}

// ─── Failures ─────────────────────────────────────────────────────────────────

func (s *Store) RecordFailure(_ context.Context, email string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.failures[email], at)
	sort.Slice(list, func(i, j int) bool { return list[i].Before(list[j]) })

	cutoff := at.Add(-HistoryRetention)
	start := 0
	for start < len(list) && list[start].Before(cutoff) {
		start++
	}
	if len(list)-start > MaxEntriesPerIdentity {
		start = len(list) - MaxEntriesPerIdentity
	}
	s.failures[email] = append([]time.Time(nil), list[start:]...)
	return nil
}

func (s *Store) CountFailures(_ context.Context, email string, since, until time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, at := range s.failures[email] {
		if !at.Before(since) && !at.After(until) {
			n++
		}
	}
	return n, nil
}

// ─── Blacklist ────────────────────────────────────────────────────────────────

func blacklistID(typ domain.IdentifierType, identifier string) string {
	return string(typ) + ":" + identifier
}

// IsBlacklisted reports whether a live entry exists. Expired entries are
// skipped but left in place until PurgeExpired runs.
func (s *Store) IsBlacklisted(_ context.Context, identifier string, typ domain.IdentifierType) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.blacklist[blacklistID(typ, identifier)]
	return ok && e.LiveAt(time.Now()), nil
}

func (s *Store) Add(_ context.Context, e *domain.BlacklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.blacklist[blacklistID(e.Type, e.Identifier)] = &cp
	s.audit = append(s.audit, domain.BlacklistAuditEvent{
		Action:     domain.AuditAdd,
		Identifier: e.Identifier,
		Type:       e.Type,
		Reason:     e.Reason,
		Actor:      e.AddedBy,
		At:         e.AddedAt,
		ExpiresAt:  e.ExpiresAt,
	})
	s.trimAudit()
	return nil
}

func (s *Store) Remove(_ context.Context, identifier string, typ domain.IdentifierType, removedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := blacklistID(typ, identifier)
	if _, exists := s.blacklist[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.blacklist, id)
	s.audit = append(s.audit, domain.BlacklistAuditEvent{
		Action:     domain.AuditRemove,
		Identifier: identifier,
		Type:       typ,
		Actor:      removedBy,
		At:         time.Now().UTC(),
	})
	s.trimAudit()
	return nil
}

func (s *Store) trimAudit() {
	if over := len(s.audit) - MaxAuditEvents; over > 0 {
		s.audit = append([]domain.BlacklistAuditEvent(nil), s.audit[over:]...)
	}
}

// List returns all live entries sorted by AddedAt.
func (s *Store) List(_ context.Context) ([]*domain.BlacklistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var result []*domain.BlacklistEntry
	for _, e := range s.blacklist {
		if e.LiveAt(now) {
			cp := *e
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AddedAt.Before(result[j].AddedAt) })
	return result, nil
}

func (s *Store) History(_ context.Context, limit int) ([]domain.BlacklistAuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.audit)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]domain.BlacklistAuditEvent, 0, n)
	for i := len(s.audit) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, s.audit[i])
	}
	return result, nil
}

func (s *Store) PurgeExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	n := 0
	for id, e := range s.blacklist {
		if !e.LiveAt(now) {
			delete(s.blacklist, id)
			n++
		}
	}
	return n, nil
}

// ─── Review queue ─────────────────────────────────────────────────────────────

func (s *Store) Enqueue(_ context.Context, e *domain.ReviewEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, queued := s.pending[e.ID]; !queued {
		s.pendingOrder = append(s.pendingOrder, e.ID)
	}
	cp := *e
	s.pending[e.ID] = &cp
	return nil
}

func (s *Store) Pending(_ context.Context, limit int) ([]*domain.ReviewEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ReviewEntry
	for _, id := range s.pendingOrder {
		if limit > 0 && len(result) >= limit {
			break
		}
		cp := *s.pending[id]
		result = append(result, &cp)
	}
	return result, nil
}

func (s *Store) GetPending(_ context.Context, id string) (*domain.ReviewEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.pending[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) Resolve(_ context.Context, decided *domain.ReviewEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[decided.ID]; !ok {
		return domain.ErrReviewConflict
	}
	delete(s.pending, decided.ID)
	for i, id := range s.pendingOrder {
		if id == decided.ID {
			s.pendingOrder = append(s.pendingOrder[:i:i], s.pendingOrder[i+1:]...)
			break
		}
	}
	cp := *decided
	s.decisions = append(s.decisions, &cp)
	return nil
}

func (s *Store) Decisions(_ context.Context, limit int) ([]*domain.ReviewEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ReviewEntry
	for i := len(s.decisions) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		cp := *s.decisions[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (s *Store) PurgeDecisions(_ context.Context, reviewedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.decisions[:0]
	n := 0
	for _, e := range s.decisions {
		if e.ReviewedAt != nil && e.ReviewedAt.Before(reviewedBefore) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.decisions = kept
	return n, nil
}

func (s *Store) PendingCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending), nil
}
