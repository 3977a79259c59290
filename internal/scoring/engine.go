// Package scoring implements the tour-booking fraud risk scorer.
//
// Architecture:
//
//	The engine is read-only: it looks up history, failures and the blacklist
//	but never writes. The gate records the attempt after scoring, so the
//	current attempt is never counted against itself.
//
// Scoring:
//
//	Seven independent factors each add a fixed weight when triggered. The sum
//	is not clamped; the level is derived from fixed thresholds.
//
// Store failures:
//
//	A lookup that fails leaves its factor untriggered and marks the score as
//	degraded (fail-open per factor). Operators can tell an under-informed low
//	score from a genuine one.
package scoring

import (
	"context"
	"time"

	"tourbook/risk-gate/internal/domain"
	"tourbook/risk-gate/internal/logging"
	"tourbook/risk-gate/internal/rules"
	"tourbook/risk-gate/internal/store"
)

// Rate-factor windows and thresholds.
const (
	BookingsWindow    = time.Hour
	BookingsThreshold = 3
	FailuresWindow    = 24 * time.Hour
	FailuresThreshold = 3
)

// Off-hours band: local hour in [1, 5).
const (
	offHoursStart = 1
	offHoursEnd   = 5
)

// DeviceSignal is the extension point for device fingerprinting. No concrete
// signal exists yet.
type DeviceSignal interface {
	Suspicious(ctx context.Context, a domain.TransactionAttempt) (bool, error)
}

// NoDeviceSignal never flags a device.
type NoDeviceSignal struct{}

func (NoDeviceSignal) Suspicious(context.Context, domain.TransactionAttempt) (bool, error) {
	return false, nil
}

// Engine is the risk scorer.
type Engine struct {
	history   store.History
	failures  store.Failures
	blacklist store.Blacklist
	rules     *rules.Provider
	device    DeviceSignal
	now       func() time.Time
}

// New creates a scoring engine over the given stores and rule provider.
func New(h store.History, f store.Failures, b store.Blacklist, r *rules.Provider) *Engine {
	return &Engine{
		history:   h,
		failures:  f,
		blacklist: b,
		rules:     r,
		device:    NoDeviceSignal{},
		now:       time.Now,
	}
}

// WithDeviceSignal plugs in a device fingerprint check.
func (e *Engine) WithDeviceSignal(d DeviceSignal) *Engine {
	e.device = d
	return e
}

// WithClock overrides the clock used for EvaluatedAt.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// ─── Public API ───────────────────────────────────────────────────────────────

// Evaluate scores a normalised attempt. Windows are measured back from the
// attempt timestamp. It performs no writes.
func (e *Engine) Evaluate(ctx context.Context, a domain.TransactionAttempt) domain.RiskScore {
	rs := e.rules.Current()
	rc := &ruleContext{ctx: ctx, attempt: a, rules: rs}

	checks := []func(*Engine, *ruleContext){
		(*Engine).checkAmount,
		(*Engine).checkTime,
		(*Engine).checkLocation,
		(*Engine).checkDevice,
		(*Engine).checkBookings,
		(*Engine).checkFailures,
		(*Engine).checkBlacklist,
	}
	for _, check := range checks {
		check(e, rc)
	}

	return domain.NewRiskScore(rc.factors, rc.degraded, rs.Version, e.now().UTC())
}

// ─── Rule context ─────────────────────────────────────────────────────────────

type ruleContext struct {
	ctx      context.Context
	attempt  domain.TransactionAttempt
	rules    *rules.RuleSet
	factors  domain.RiskFactors
	degraded bool
}

// failOpen records a lookup failure; the factor stays untriggered.
func (rc *ruleContext) failOpen(factor string, err error) {
	rc.degraded = true
	logging.L(rc.ctx).Warn("risk factor lookup failed, treating as not triggered",
		"factor", factor,
		"attempt_id", rc.attempt.ID,
		"error", err,
	)
}

// ─── Rules ────────────────────────────────────────────────────────────────────

// Unknown tours are unusual.
func (e *Engine) checkAmount(rc *ruleContext) {
	rc.factors.UnusualAmount = !rc.rules.AmountUsual(rc.attempt.TourID, rc.attempt.Amount)
}

// The hour is read in the timestamp's own location, which checkout sets to
// the customer's local zone. Heuristic only.
func (e *Engine) checkTime(rc *ruleContext) {
	h := rc.attempt.Timestamp.Hour()
	rc.factors.UnusualTime = h >= offHoursStart && h < offHoursEnd
}

func (e *Engine) checkLocation(rc *ruleContext) {
	rc.factors.UnusualLocation = !rc.rules.CountryAllowed(rc.attempt.CountryCode)
}

func (e *Engine) checkDevice(rc *ruleContext) {
	hit, err := e.device.Suspicious(rc.ctx, rc.attempt)
	if err != nil {
		rc.failOpen("unusual_device", err)
		return
	}
	rc.factors.UnusualDevice = hit
}

func (e *Engine) checkBookings(rc *ruleContext) {
	ts := rc.attempt.Timestamp
	recent, err := e.history.Recent(rc.ctx, rc.attempt.Email, ts.Add(-BookingsWindow), ts)
	if err != nil {
		rc.failOpen("multiple_bookings", err)
		return
	}
	rc.factors.MultipleBookings = len(recent) >= BookingsThreshold
}

func (e *Engine) checkFailures(rc *ruleContext) {
	ts := rc.attempt.Timestamp
	n, err := e.failures.CountFailures(rc.ctx, rc.attempt.Email, ts.Add(-FailuresWindow), ts)
	if err != nil {
		rc.failOpen("recent_failures", err)
		return
	}
	rc.factors.RecentFailures = n >= FailuresThreshold
}

// Email or IP on the blacklist. A failed email lookup does not stop the IP
// lookup.
func (e *Engine) checkBlacklist(rc *ruleContext) {
	checks := []struct {
		typ domain.IdentifierType
		val string
	}{
		{domain.IdentifierEmail, rc.attempt.Email},
		{domain.IdentifierIP, rc.attempt.IP},
	}
	for _, c := range checks {
		if c.val == "" {
			continue
		}
		hit, err := e.blacklist.IsBlacklisted(rc.ctx, c.val, c.typ)
		if err != nil {
			rc.failOpen("known_bad_actor", err)
			continue
		}
		if hit {
			rc.factors.KnownBadActor = true
			return
		}
	}
}
