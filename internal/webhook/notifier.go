// Package webhook notifies an operations endpoint when an attempt is queued
// for manual review.
//
// Deliveries run in a goroutine so they never hold up the checkout response.
// Failed deliveries are logged and counted but not retried; the review queue
// itself is the durable record.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tourbook/risk-gate/internal/domain"
	"tourbook/risk-gate/internal/metrics"
)

// EventReviewQueued is sent in the payload and the X-Risk-Event header.
const EventReviewQueued = "review_queued"

// Payload is the JSON body posted to the endpoint.
type Payload struct {
	Event       string       `json:"event"`
	TriggeredAt time.Time    `json:"triggered_at"`
	ReviewID    string       `json:"review_id"`
	AttemptID   string       `json:"attempt_id"`
	TourID      string       `json:"tour_id"`
	Score       int          `json:"score"`
	Level       domain.Level `json:"level"`
	Factors     []string     `json:"factors"`
	Degraded    bool         `json:"degraded"`
}

// Notifier posts review events to a single configured URL.
type Notifier struct {
	url    string
	client *http.Client
}

// New creates a Notifier with a sensible default HTTP client timeout.
func New(url string) *Notifier {
	return &Notifier{
		url: url,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// ReviewQueued fires the delivery in the background.
func (n *Notifier) ReviewQueued(e *domain.ReviewEntry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = n.Send(ctx, e)
	}()
}

// Send delivers one event synchronously and logs the outcome.
func (n *Notifier) Send(ctx context.Context, e *domain.ReviewEntry) error {
	payload := Payload{
		Event:       EventReviewQueued,
		TriggeredAt: time.Now().UTC(),
		ReviewID:    e.ID,
		AttemptID:   e.Attempt.ID,
		TourID:      e.Attempt.TourID,
		Score:       e.Score.Score,
		Level:       e.Score.Level,
		Factors:     e.Score.Factors.Triggered(),
		Degraded:    e.Score.Degraded,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("webhook: failed to marshal payload", "review_id", e.ID, "error", err)
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		slog.Error("webhook: failed to build request", "review_id", e.ID, "error", err)
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Risk-Event", EventReviewQueued)

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Warn("webhook: delivery failed", "review_id", e.ID, "url", n.url, "error", err)
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Warn("webhook: endpoint rejected delivery", "review_id", e.ID, "url", n.url, "status", resp.StatusCode)
		metrics.WebhookDeliveriesTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("deliver webhook: endpoint returned %d", resp.StatusCode)
	}

	slog.Info("webhook: delivered",
		"review_id", e.ID,
		"url", n.url,
		"status", resp.StatusCode,
		"attempt_id", e.Attempt.ID,
		"risk_score", e.Score.Score,
	)
	metrics.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
	return nil
}
