// Package blacklist is the operator-facing surface over the blacklist store.
// It resolves identifier types and turns day counts into expiry times.
package blacklist

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"tourbook/risk-gate/internal/domain"
	"tourbook/risk-gate/internal/logging"
	"tourbook/risk-gate/internal/store"
)

// ErrUnknownIdentifier is returned when an identifier is neither an email nor an IP.
var ErrUnknownIdentifier = errors.New("identifier is neither an email address nor an IP address")

// DetectType classifies identifier and returns it in canonical form.
// Anything containing "@" is an email; anything net.ParseIP accepts is an IP.
func DetectType(identifier string) (string, domain.IdentifierType, error) {
	id := strings.TrimSpace(identifier)
	if strings.Contains(id, "@") {
		return domain.NormalizeEmail(id), domain.IdentifierEmail, nil
	}
	if ip := net.ParseIP(id); ip != nil {
		return ip.String(), domain.IdentifierIP, nil
	}
	return "", "", fmt.Errorf("%q: %w", identifier, ErrUnknownIdentifier)
}

type Service struct {
	store store.Blacklist
	now   func() time.Time
}

func New(s store.Blacklist) *Service {
	return &Service{store: s, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Add bans identifier. expirationDays <= 0 makes the ban permanent.
// An existing entry for the same identifier is replaced.
func (s *Service) Add(ctx context.Context, identifier, reason string, expirationDays int, addedBy string) (*domain.BlacklistEntry, error) {
	id, typ, err := DetectType(identifier)
	if err != nil {
		return nil, err
	}
	if addedBy == "" {
		return nil, &domain.ValidationError{Field: "added_by", Message: "is required"}
	}

	now := s.now().UTC()
	entry := &domain.BlacklistEntry{
		Identifier: id,
		Type:       typ,
		Reason:     reason,
		AddedBy:    addedBy,
		AddedAt:    now,
	}
	if expirationDays > 0 {
		exp := now.AddDate(0, 0, expirationDays)
		entry.ExpiresAt = &exp
	}

	if err := s.store.Add(ctx, entry); err != nil {
		return nil, fmt.Errorf("blacklist %s: %w", id, err)
	}
	logging.L(ctx).Info("blacklist entry added",
		"identifier", id, "type", typ, "added_by", addedBy, "permanent", entry.ExpiresAt == nil)
	return entry, nil
}

// Remove lifts the ban on identifier. It returns domain.ErrNotFound when
// nothing is stored for it.
func (s *Service) Remove(ctx context.Context, identifier, removedBy string) error {
	id, typ, err := DetectType(identifier)
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, id, typ, removedBy); err != nil {
		return fmt.Errorf("unblacklist %s: %w", id, err)
	}
	logging.L(ctx).Info("blacklist entry removed", "identifier", id, "type", typ, "removed_by", removedBy)
	return nil
}

// IsBlacklisted reports whether identifier has a live ban.
func (s *Service) IsBlacklisted(ctx context.Context, identifier string) (bool, error) {
	id, typ, err := DetectType(identifier)
	if err != nil {
		return false, err
	}
	return s.store.IsBlacklisted(ctx, id, typ)
}

func (s *Service) List(ctx context.Context) ([]*domain.BlacklistEntry, error) {
	return s.store.List(ctx)
}

func (s *Service) History(ctx context.Context, limit int) ([]domain.BlacklistAuditEvent, error) {
	return s.store.History(ctx, limit)
}

// Cleanup deletes expired entries and returns how many were removed.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	n, err := s.store.PurgeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge expired blacklist entries: %w", err)
	}
	if n > 0 {
		logging.L(ctx).Info("expired blacklist entries purged", "count", n)
	}
	return n, nil
}
