package geo

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy for position requests
var (
	// ErrPermissionDenied is terminal for the current session - never retried
	ErrPermissionDenied = errors.New("geo: location permission denied")

	// ErrPositionUnavailable means the provider could not produce a fix
	ErrPositionUnavailable = errors.New("geo: position unavailable")

	// ErrTimeout means the provider did not answer within the request timeout
	ErrTimeout = errors.New("geo: position request timed out")
)

// Options controls a single position request or watch subscription
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration // Cached fixes younger than this are acceptable
}

// SampleFunc receives position samples in chronological arrival order
type SampleFunc func(PositionSample)

// ErrorFunc receives provider errors for a watch subscription
type ErrorFunc func(error)

// Subscription is a handle to an active watch. Cancel is idempotent -
// callbacks arriving after Cancel must be dropped by the caller.
type Subscription interface {
	Cancel()
}

// Provider wraps the platform's positioning capability
type Provider interface {
	// CurrentPosition returns a single fix, honoring Options
	CurrentPosition(ctx context.Context, opts Options) (PositionSample, error)

	// WatchPosition streams fixes until the subscription is cancelled
	WatchPosition(opts Options, onSample SampleFunc, onError ErrorFunc) (Subscription, error)
}

// PermissionQuerier is an optional provider capability for reading the
// current permission state without prompting the user
type PermissionQuerier interface {
	QueryPermission(ctx context.Context) (PermissionState, error)
}
