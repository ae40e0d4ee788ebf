// Package source holds the upstream clients the collection pipeline pulls
// raw keywords and pageview signal from, together with the error taxonomy
// shared by all of them.
package source

import (
	"context"
	"errors"
)

// Upstream failure taxonomy. Clients translate transport and protocol
// failures into exactly one of these so the orchestrator and retry policy
// can act on the class, not the concrete error.
var (
	// ErrUnavailable covers network errors, timeouts and 5xx responses.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrThrottled covers rate-limit and access-denied responses.
	ErrThrottled = errors.New("upstream throttled")
	// ErrMalformed covers responses whose shape could not be parsed.
	ErrMalformed = errors.New("upstream response malformed")
)

// Retryable reports whether a fetch error is worth retrying. Throttled
// upstreams get worse when hammered and malformed payloads do not fix
// themselves, so only availability failures qualify.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// RawKeyword is a single keyword-like item as an upstream produced it,
// before normalization. Position is the item's rank in its source list
// (0-based); the estimator uses it as a demand hint when no pageview
// signal exists.
type RawKeyword struct {
	Text     string
	Source   string
	Position int
}

// Source is a single upstream producing ranked keyword candidates.
// Fetch never fails for "no data": an empty slice is a valid success.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]RawKeyword, error)
}
