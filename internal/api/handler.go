package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tourbook/risk-gate/internal/blacklist"
	"tourbook/risk-gate/internal/domain"
	"tourbook/risk-gate/internal/logging"
	"tourbook/risk-gate/internal/orchestrator"
	"tourbook/risk-gate/internal/review"
	"tourbook/risk-gate/internal/rules"
)

// Pinger reports whether the shared store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	gate      *orchestrator.Gate
	reviews   *review.Service
	blacklist *blacklist.Service
	rules     *rules.Provider
	pinger    Pinger
}

// NewHandler creates a Handler wired to the given dependencies. pinger may be
// nil when the store lives in process.
func NewHandler(g *orchestrator.Gate, rv *review.Service, bl *blacklist.Service, rp *rules.Provider, pinger Pinger) *Handler {
	return &Handler{gate: g, reviews: rv, blacklist: bl, rules: rp, pinger: pinger}
}

// ─── GET /health ──────────────────────────────────────────────────────────────

// Health reports liveness and store reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{
		"status":        "ok",
		"service":       "risk-gate",
		"rules_version": h.rules.Current().Version,
	}
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			logging.L(r.Context()).Warn("health: store ping failed", "error", err)
			body["status"] = "degraded"
			body["store"] = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, envelope{Data: body})
			return
		}
		body["store"] = "ok"
	}
	ok(w, body)
}

// ─── POST /api/v1/evaluations ─────────────────────────────────────────────────

// Evaluate gates one checkout attempt. A blocked attempt gets a generic 402
// with no score or factors in the body.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var a domain.TransactionAttempt
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}

	score, err := h.gate.Evaluate(r.Context(), a)
	if err != nil {
		if _, blocked := domain.IsBlocked(err); blocked {
			declined(w)
			return
		}
		h.writeError(w, r, err)
		return
	}
	ok(w, score)
}

// ─── POST /api/v1/payment-failures ────────────────────────────────────────────

// RecordPaymentFailure accepts a failed capture report from checkout.
func (h *Handler) RecordPaymentFailure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string    `json:"email"`
		OccurredAt time.Time `json:"occurred_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}

	if err := h.gate.RecordPaymentFailure(r.Context(), req.Email, req.OccurredAt); err != nil {
		h.writeError(w, r, err)
		return
	}
	accepted(w, map[string]string{"status": "recorded"})
}

// ─── POST /api/v1/rules/refresh ───────────────────────────────────────────────

// RefreshRules reloads the rule set from its source. On failure the previous
// rule set stays active.
func (h *Handler) RefreshRules(w http.ResponseWriter, r *http.Request) {
	rs, err := h.rules.Refresh(r.Context())
	if err != nil {
		logging.L(r.Context()).Error("rules refresh failed", "error", err,
			"active_version", h.rules.Current().Version)
		writeJSON(w, http.StatusUnprocessableEntity, envelope{
			Error: &apiError{Code: "RULES_INVALID", Message: err.Error()},
		})
		return
	}
	logging.L(r.Context()).Info("rules refreshed", "version", rs.Version)
	ok(w, map[string]string{"version": rs.Version})
}

// ─── Blacklist ────────────────────────────────────────────────────────────────

// ListBlacklist returns all live blacklist entries.
func (h *Handler) ListBlacklist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.blacklist.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*domain.BlacklistEntry{}
	}
	ok(w, entries)
}

// AddBlacklistEntry bans an email or IP. expiration_days <= 0 is permanent.
func (h *Handler) AddBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier     string `json:"identifier"`
		Reason         string `json:"reason"`
		ExpirationDays int    `json:"expiration_days"`
		AddedBy        string `json:"added_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}

	entry, err := h.blacklist.Add(r.Context(), req.Identifier, req.Reason, req.ExpirationDays, req.AddedBy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	created(w, entry)
}

// DeleteBlacklistEntry lifts a ban. The actor is taken from ?removed_by.
func (h *Handler) DeleteBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	identifier, _ := url.PathUnescape(chi.URLParam(r, "identifier"))
	removedBy := r.URL.Query().Get("removed_by")
	if removedBy == "" {
		badRequest(w, "VALIDATION_ERROR", "removed_by is required")
		return
	}

	if err := h.blacklist.Remove(r.Context(), identifier, removedBy); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			notFound(w, fmt.Sprintf("blacklist entry '%s' not found", identifier))
			return
		}
		h.writeError(w, r, err)
		return
	}
	noContent(w)
}

// BlacklistHistory returns audit events newest first.
func (h *Handler) BlacklistHistory(w http.ResponseWriter, r *http.Request) {
	limit, valid := parseLimit(w, r)
	if !valid {
		return
	}
	events, err := h.blacklist.History(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []domain.BlacklistAuditEvent{}
	}
	ok(w, events)
}

// ─── Reviews ──────────────────────────────────────────────────────────────────

// ListReviews returns pending review entries oldest first.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	limit, valid := parseLimit(w, r)
	if !valid {
		return
	}
	entries, err := h.reviews.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*domain.ReviewEntry{}
	}
	ok(w, entries)
}

// DecideReview records a reviewer's verdict on a pending entry.
func (h *Handler) DecideReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Decision   domain.Decision `json:"decision"`
		Notes      string          `json:"notes"`
		ReviewedBy string          `json:"reviewed_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}

	id := chi.URLParam(r, "id")
	entry, err := h.reviews.Decide(r.Context(), id, req.Decision, req.Notes, req.ReviewedBy)
	if err != nil {
		if errors.Is(err, domain.ErrReviewConflict) {
			conflict(w, fmt.Sprintf("review '%s' is not pending", id))
			return
		}
		h.writeError(w, r, err)
		return
	}
	ok(w, entry)
}

// ReviewHistory returns decided entries newest first.
func (h *Handler) ReviewHistory(w http.ResponseWriter, r *http.Request) {
	limit, valid := parseLimit(w, r)
	if !valid {
		return
	}
	entries, err := h.reviews.History(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*domain.ReviewEntry{}
	}
	ok(w, entries)
}

// ─── Admin ────────────────────────────────────────────────────────────────────

// Replay runs a JSON array of attempts through the gate in timestamp order.
// Useful for populating history in demo environments.
func (h *Handler) Replay(w http.ResponseWriter, r *http.Request) {
	var attempts []domain.TransactionAttempt
	if err := json.NewDecoder(r.Body).Decode(&attempts); err != nil {
		badRequest(w, "INVALID_JSON", "body must be a JSON array of transaction attempts")
		return
	}
	ok(w, h.gate.Replay(r.Context(), attempts))
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// parseLimit reads ?limit. Missing means all.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		badRequest(w, "INVALID_PARAM", "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

// writeError maps service errors onto the response envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		badRequest(w, "VALIDATION_ERROR", ve.Error())
	case errors.Is(err, blacklist.ErrUnknownIdentifier):
		badRequest(w, "INVALID_IDENTIFIER", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		notFound(w, err.Error())
	case errors.Is(err, domain.ErrReviewConflict):
		conflict(w, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		logging.L(r.Context()).Error("store unavailable", "path", r.URL.Path, "error", err)
		unavailable(w)
	default:
		logging.L(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		internalError(w)
	}
}
