// Package domain contains all core types used across the risk gate.
// Keeping domain types in one place makes the scoring rules easy to reason about.
package domain

import (
	"net"
	"strings"
	"time"
)

// ─── Risk levels ──────────────────────────────────────────────────────────────

// Level is the four-tier classification derived from a numeric score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Score thresholds. Each is the inclusive lower bound of its level.
const (
	ThresholdMedium   = 30
	ThresholdHigh     = 60
	ThresholdCritical = 90
)

// LevelFor maps a score onto its level, evaluated critical → high → medium → low.
func LevelFor(score int) Level {
	switch {
	case score >= ThresholdCritical:
		return LevelCritical
	case score >= ThresholdHigh:
		return LevelHigh
	case score >= ThresholdMedium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ─── Factor weights ───────────────────────────────────────────────────────────

const (
	WeightUnusualAmount    = 20
	WeightUnusualTime      = 15
	WeightUnusualLocation  = 25
	WeightUnusualDevice    = 20
	WeightMultipleBookings = 15
	WeightRecentFailures   = 25
	WeightKnownBadActor    = 50
)

// ─── Identifier types ─────────────────────────────────────────────────────────

// IdentifierType distinguishes the two kinds of blacklistable identifiers.
type IdentifierType string

const (
	IdentifierEmail IdentifierType = "email"
	IdentifierIP    IdentifierType = "ip"
)

// Valid reports whether t is one of the known identifier types.
func (t IdentifierType) Valid() bool {
	return t == IdentifierEmail || t == IdentifierIP
}

// ─── Transaction attempts ─────────────────────────────────────────────────────

// TransactionAttempt is the point-in-time payment attempt handed over by
// checkout. Amount is in minor currency units. IP is optional.
type TransactionAttempt struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Amount      int64     `json:"amount"`
	TourID      string    `json:"tour_id"`
	CountryCode string    `json:"country_code"`
	IP          string    `json:"ip,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NormalizeEmail is the canonical form used as identity key everywhere.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Normalize returns a copy with canonical email, country and IP. A zero
// timestamp is replaced by now.
func (a TransactionAttempt) Normalize(now time.Time) TransactionAttempt {
	a.Email = NormalizeEmail(a.Email)
	a.CountryCode = strings.ToUpper(strings.TrimSpace(a.CountryCode))
	a.TourID = strings.TrimSpace(a.TourID)
	a.IP = strings.TrimSpace(a.IP)
	if ip := net.ParseIP(a.IP); ip != nil {
		a.IP = ip.String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = now
	}
	return a
}

// Validate checks the fields the scorer cannot work without.
func (a TransactionAttempt) Validate() error {
	if strings.TrimSpace(a.Email) == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	if a.Amount <= 0 {
		return &ValidationError{Field: "amount", Message: "amount must be greater than 0"}
	}
	if strings.TrimSpace(a.TourID) == "" {
		return &ValidationError{Field: "tour_id", Message: "tour_id is required"}
	}
	return nil
}

// ─── Scores ───────────────────────────────────────────────────────────────────

// RiskFactors is the snapshot of which signals fired for an attempt.
type RiskFactors struct {
	UnusualAmount    bool `json:"unusual_amount"`
	UnusualTime      bool `json:"unusual_time"`
	UnusualLocation  bool `json:"unusual_location"`
	UnusualDevice    bool `json:"unusual_device"`
	MultipleBookings bool `json:"multiple_bookings"`
	RecentFailures   bool `json:"recent_failures"`
	KnownBadActor    bool `json:"known_bad_actor"`
}

// Score sums the weights of every triggered factor. There is no upper bound.
func (f RiskFactors) Score() int {
	total := 0
	add := func(on bool, w int) {
		if on {
			total += w
		}
	}
	add(f.UnusualAmount, WeightUnusualAmount)
	add(f.UnusualTime, WeightUnusualTime)
	add(f.UnusualLocation, WeightUnusualLocation)
	add(f.UnusualDevice, WeightUnusualDevice)
	add(f.MultipleBookings, WeightMultipleBookings)
	add(f.RecentFailures, WeightRecentFailures)
	add(f.KnownBadActor, WeightKnownBadActor)
	return total
}

// Triggered lists the names of the factors that fired, in table order.
func (f RiskFactors) Triggered() []string {
	var names []string
	for _, c := range []struct {
		on   bool
		name string
	}{
		{f.UnusualAmount, "unusual_amount"},
		{f.UnusualTime, "unusual_time"},
		{f.UnusualLocation, "unusual_location"},
		{f.UnusualDevice, "unusual_device"},
		{f.MultipleBookings, "multiple_bookings"},
		{f.RecentFailures, "recent_failures"},
		{f.KnownBadActor, "known_bad_actor"},
	} {
		if c.on {
			names = append(names, c.name)
		}
	}
	return names
}

// RiskScore is the result of evaluating one attempt.
// Degraded is set when a store lookup failed and the dependent factor was
// treated as not triggered, so a low score may be under-informed.
type RiskScore struct {
	Score        int         `json:"score"`
	Level        Level       `json:"level"`
	Factors      RiskFactors `json:"factors"`
	Degraded     bool        `json:"degraded"`
	RulesVersion string      `json:"rules_version,omitempty"`
	EvaluatedAt  time.Time   `json:"evaluated_at"`
}

// NewRiskScore derives score and level from the factor snapshot.
func NewRiskScore(f RiskFactors, degraded bool, rulesVersion string, at time.Time) RiskScore {
	s := f.Score()
	return RiskScore{
		Score:        s,
		Level:        LevelFor(s),
		Factors:      f,
		Degraded:     degraded,
		RulesVersion: rulesVersion,
		EvaluatedAt:  at,
	}
}

// ─── Blacklist ────────────────────────────────────────────────────────────────

// BlacklistEntry bans one identifier. ExpiresAt nil means permanent.
type BlacklistEntry struct {
	Identifier string         `json:"identifier"`
	Type       IdentifierType `json:"type"`
	Reason     string         `json:"reason"`
	AddedBy    string         `json:"added_by"`
	AddedAt    time.Time      `json:"added_at"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}

// LiveAt reports whether the entry is still in force at t.
func (e *BlacklistEntry) LiveAt(t time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(t)
}

// Blacklist audit actions.
const (
	AuditAdd    = "add"
	AuditRemove = "remove"
)

// BlacklistAuditEvent is one line of the append-only blacklist audit log.
type BlacklistAuditEvent struct {
	Action     string         `json:"action"`
	Identifier string         `json:"identifier"`
	Type       IdentifierType `json:"type"`
	Reason     string         `json:"reason,omitempty"`
	Actor      string         `json:"actor"`
	At         time.Time      `json:"at"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}

// ─── Review queue ─────────────────────────────────────────────────────────────

// Decision is a reviewer's verdict on a queued attempt.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Valid reports whether d is approve or reject.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// ReviewEntry is a high-risk attempt held for human adjudication.
// The decision fields are zero until the entry is decided.
type ReviewEntry struct {
	ID         string             `json:"id"`
	Attempt    TransactionAttempt `json:"attempt"`
	Score      RiskScore          `json:"score"`
	QueuedAt   time.Time          `json:"queued_at"`
	Decision   Decision           `json:"decision,omitempty"`
	ReviewedBy string             `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time         `json:"reviewed_at,omitempty"`
	Notes      string             `json:"notes,omitempty"`
}

// Decided reports whether a decision has been recorded.
func (e *ReviewEntry) Decided() bool {
	return e.Decision != ""
}
