package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LicenseMetrics holds the OpenTelemetry instruments for license
// verification. All recording methods are nil-safe so the manager can
// run without observability wired (tests, the machinecode tool).
type LicenseMetrics struct {
	VerificationAttempts metric.Int64Counter
	VerificationDuration metric.Float64Histogram
	Evaluations          metric.Int64Counter
	ActivationAttempts   metric.Int64Counter
	CacheFallbacks       metric.Int64Counter
}

// NewLicenseMetrics creates the license instruments on the given meter.
func NewLicenseMetrics(meter metric.Meter) (*LicenseMetrics, error) {
	var m LicenseMetrics
	var err error

	m.VerificationAttempts, err = meter.Int64Counter(
		"license_verification_attempts_total",
		metric.WithDescription("Total number of license verification exchanges by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification attempts counter: %w", err)
	}

	m.VerificationDuration, err = meter.Float64Histogram(
		"license_verification_duration_seconds",
		metric.WithDescription("Duration of license verification exchanges"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification duration histogram: %w", err)
	}

	m.Evaluations, err = meter.Int64Counter(
		"license_evaluations_total",
		metric.WithDescription("Total number of license evaluations by resulting state"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluations counter: %w", err)
	}

	m.ActivationAttempts, err = meter.Int64Counter(
		"license_activation_attempts_total",
		metric.WithDescription("Total number of license activation attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation attempts counter: %w", err)
	}

	m.CacheFallbacks, err = meter.Int64Counter(
		"license_cache_fallbacks_total",
		metric.WithDescription("Total number of grace-period fallbacks to the cached baseline"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache fallbacks counter: %w", err)
	}

	return &m, nil
}

// RecordVerification records one completed verification exchange.
func (m *LicenseMetrics) RecordVerification(ctx context.Context, outcome VerificationOutcome, duration time.Duration) {
	if m == nil {
		return
	}

	result := "success"
	if !outcome.Success {
		result = outcome.ErrorCode
	}

	attrs := metric.WithAttributes(attribute.String("result", result))
	m.VerificationAttempts.Add(ctx, 1, attrs)
	m.VerificationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordEvaluation records the resulting state of one evaluation.
func (m *LicenseMetrics) RecordEvaluation(ctx context.Context, status Status) {
	if m == nil {
		return
	}

	m.Evaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", status.State.String()),
	))

	if status.State == StateGracePeriod {
		m.CacheFallbacks.Add(ctx, 1)
	}
}

// RecordActivation records one activation attempt.
func (m *LicenseMetrics) RecordActivation(ctx context.Context, success bool) {
	if m == nil {
		return
	}

	m.ActivationAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}
