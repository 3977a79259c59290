package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable wraps transport failures of the shared key-value store.
	ErrStoreUnavailable = errors.New("risk store unavailable")

	// ErrReviewConflict is returned when a review entry is no longer pending.
	ErrReviewConflict = errors.New("review entry already decided or removed")

	// ErrNotFound is returned when a blacklist entry or review entry does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a missing or malformed field on an incoming attempt.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// BlockedError is returned by the gate when an attempt scores critical.
// Error() stays generic; the score is for internal logging only and must not
// reach the customer.
type BlockedError struct {
	Score RiskScore
}

func (e *BlockedError) Error() string {
	return "transaction declined"
}

// IsBlocked reports whether err carries a BlockedError.
func IsBlocked(err error) (*BlockedError, bool) {
	var be *BlockedError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
