package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "vitsdept.session"

// Validation outcomes recorded on session.validated.
const (
	OutcomeValid    = "valid"
	OutcomeDegraded = "degraded"
	OutcomeInvalid  = "invalid"
	OutcomeExpired  = "expired"
)

// SessionMetrics holds the session lifecycle counters. A nil *SessionMetrics records nothing.
type SessionMetrics struct {
	created   metric.Int64Counter
	validated metric.Int64Counter
	revoked   metric.Int64Counter
	reaped    metric.Int64Counter
}

// NewSessionMetrics creates the counters on provider, or on the global MeterProvider when provider is nil.
func NewSessionMetrics(provider metric.MeterProvider) (*SessionMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)
	m := &SessionMetrics{}
	var err error
	if m.created, err = meter.Int64Counter("session.created",
		metric.WithDescription("Sessions issued, by whether the durable write succeeded.")); err != nil {
		return nil, err
	}
	if m.validated, err = meter.Int64Counter("session.validated",
		metric.WithDescription("Validation calls, by outcome.")); err != nil {
		return nil, err
	}
	if m.revoked, err = meter.Int64Counter("session.revoked",
		metric.WithDescription("Sessions deactivated by logout.")); err != nil {
		return nil, err
	}
	if m.reaped, err = meter.Int64Counter("session.reaped",
		metric.WithDescription("Expired sessions deactivated by the reaper.")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SessionMetrics) Created(ctx context.Context, degraded bool) {
	if m == nil {
		return
	}
	m.created.Add(ctx, 1, metric.WithAttributes(attribute.Bool("degraded", degraded)))
}

func (m *SessionMetrics) Validated(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.validated.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *SessionMetrics) Revoked(ctx context.Context, n int64, scope string) {
	if m == nil || n <= 0 {
		return
	}
	m.revoked.Add(ctx, n, metric.WithAttributes(attribute.String("scope", scope)))
}

func (m *SessionMetrics) Reaped(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reaped.Add(ctx, n)
}
