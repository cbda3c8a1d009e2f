package geo

import (
	"context"
	"errors"
	"log"
	"time"

	"deliveryboy-agent/internal/retry"
)

// SamplerConfig holds the accuracy/timeout policy for position requests.
// High-accuracy fixes get a longer timeout but a tighter cache window.
type SamplerConfig struct {
	HighAccuracyTimeout time.Duration
	HighAccuracyMaxAge  time.Duration
	LowAccuracyTimeout  time.Duration
	LowAccuracyMaxAge   time.Duration

	// Fallback controls the degraded-accuracy retry for single-shot
	// requests: one high-accuracy attempt plus one low-accuracy attempt.
	Fallback retry.Policy
}

// DefaultSamplerConfig returns the production policy
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		HighAccuracyTimeout: 15 * time.Second,
		HighAccuracyMaxAge:  30 * time.Second,
		LowAccuracyTimeout:  10 * time.Second,
		LowAccuracyMaxAge:   60 * time.Second,
		Fallback: retry.Policy{
			MaxAttempts: 2,
			Backoff:     retry.Constant(0),
		},
	}
}

// Sampler wraps a positioning Provider with timeout policy and graceful
// accuracy degradation, and feeds permission discoveries into the gate
type Sampler struct {
	provider Provider
	gate     *PermissionGate
	cfg      SamplerConfig
}

// NewSampler creates a sampler over the given provider and gate
func NewSampler(provider Provider, gate *PermissionGate, cfg SamplerConfig) *Sampler {
	return &Sampler{
		provider: provider,
		gate:     gate,
		cfg:      cfg,
	}
}

func (s *Sampler) options(highAccuracy bool) Options {
	if highAccuracy {
		return Options{
			HighAccuracy: true,
			Timeout:      s.cfg.HighAccuracyTimeout,
			MaximumAge:   s.cfg.HighAccuracyMaxAge,
		}
	}
	return Options{
		HighAccuracy: false,
		Timeout:      s.cfg.LowAccuracyTimeout,
		MaximumAge:   s.cfg.LowAccuracyMaxAge,
	}
}

// GetOnce requests a single position fix. A high-accuracy request that fails
// with Timeout or PositionUnavailable is retried once at low accuracy before
// the failure is surfaced, so callers never implement the fallback
// themselves. PermissionDenied is surfaced immediately and never retried.
func (s *Sampler) GetOnce(ctx context.Context, highAccuracy bool) (PositionSample, error) {
	sample, err := s.attempt(ctx, highAccuracy)
	if err == nil {
		return sample, nil
	}
	if errors.Is(err, ErrPermissionDenied) {
		return PositionSample{}, err
	}

	if highAccuracy && !s.cfg.Fallback.Exhausted(1) {
		log.Printf("⚠️  High-accuracy fix failed (%v), retrying at low accuracy", err)
		if waitErr := s.cfg.Fallback.Wait(ctx, 1); waitErr != nil {
			return PositionSample{}, err
		}
		sample, lowErr := s.attempt(ctx, false)
		if lowErr == nil {
			log.Printf("✅ Low-accuracy fallback succeeded (accuracy: %.0fm)", sample.Accuracy)
			return sample, nil
		}
		return PositionSample{}, lowErr
	}

	return PositionSample{}, err
}

func (s *Sampler) attempt(ctx context.Context, highAccuracy bool) (PositionSample, error) {
	opts := s.options(highAccuracy)

	reqCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	sample, err := s.provider.CurrentPosition(reqCtx, opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrTimeout
		}
		if errors.Is(err, ErrPermissionDenied) {
			s.gate.ReportDenied()
		}
		return PositionSample{}, err
	}

	s.gate.ReportGranted()
	return sample, nil
}

// Watch starts a continuous position stream. Samples arrive in chronological
// order; permission discoveries are routed through the gate before the
// caller's callbacks run.
func (s *Sampler) Watch(highAccuracy bool, onSample SampleFunc, onError ErrorFunc) (Subscription, error) {
	sub, err := s.provider.WatchPosition(
		s.options(highAccuracy),
		func(sample PositionSample) {
			s.gate.ReportGranted()
			onSample(sample)
		},
		func(err error) {
			if errors.Is(err, ErrPermissionDenied) {
				s.gate.ReportDenied()
			}
			onError(err)
		},
	)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			s.gate.ReportDenied()
		}
		return nil, err
	}
	return sub, nil
}
