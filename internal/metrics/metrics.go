// Package metrics records registry counters through OpenTelemetry.
//
// TWO HALVES:
// ───────────
//   - Setup builds an SDK meter provider with an exporter chosen in the
//     config and installs it as the global provider.
//
//   - New returns a Recorder whose instruments come from that global
//     provider. Services only see the Recorder interface, so tests can pass
//     Noop{} or a fake and never touch OTel.

package metrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Admission outcomes reported to RecordAdmission.
const (
	OutcomeAdmitted       = "admitted"
	OutcomeMissingFields  = "missing_fields"
	OutcomeInvalidEmail   = "invalid_email_domain"
	OutcomeDuplicateUSN   = "duplicate_usn"
	OutcomeDuplicateEmail = "duplicate_email"
	OutcomeInternalError  = "internal_error"
)

const meterName = "pace-registry"

// Recorder records registry metrics.
// Use New() for OTel metrics or Noop{} when disabled.
type Recorder interface {
	// RecordAdmission counts one registration attempt by outcome.
	RecordAdmission(ctx context.Context, outcome string)

	// RecordSearch counts one search and the number of matches it returned.
	RecordSearch(ctx context.Context, matches int)
}

type otelRecorder struct {
	admissions    metric.Int64Counter
	searches      metric.Int64Counter
	searchMatches metric.Int64Histogram
}

func newOtelRecorder() (*otelRecorder, error) {
	meter := otel.Meter(meterName)

	admissions, err := meter.Int64Counter("registry.admissions",
		metric.WithDescription("Number of registration attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	searches, err := meter.Int64Counter("registry.searches",
		metric.WithDescription("Number of search queries"),
	)
	if err != nil {
		return nil, err
	}

	searchMatches, err := meter.Int64Histogram("registry.search.matches",
		metric.WithDescription("Number of records returned per search"),
	)
	if err != nil {
		return nil, err
	}

	return &otelRecorder{
		admissions:    admissions,
		searches:      searches,
		searchMatches: searchMatches,
	}, nil
}

// New returns a Recorder backed by OpenTelemetry. If the instruments
// cannot be created it logs a warning and returns Noop{}.
func New() Recorder {
	r, err := newOtelRecorder()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return Noop{}
	}
	return r
}

func (r *otelRecorder) RecordAdmission(ctx context.Context, outcome string) {
	r.admissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (r *otelRecorder) RecordSearch(ctx context.Context, matches int) {
	r.searches.Add(ctx, 1)
	r.searchMatches.Record(ctx, int64(matches))
}

// Noop is a Recorder that does nothing.
type Noop struct{}

var _ Recorder = Noop{}

// RecordAdmission does nothing.
func (Noop) RecordAdmission(context.Context, string) {}

// RecordSearch does nothing.
func (Noop) RecordSearch(context.Context, int) {}

// Exporters accepted by Setup.
const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// ─────────────────────────────────────────────────────────────────────────────
// Setup installs the global meter provider the Recorder returned by New
// reports to, and returns the function that flushes and stops it.
//
//	"stdout" — a periodic reader exporting JSON to w every interval
//	"none"   — nothing is installed; OTel keeps its no-op meter
//
// Call Setup before New, and call the returned shutdown during graceful
// shutdown so the last interval is not lost.
// ─────────────────────────────────────────────────────────────────────────────
func Setup(exporter string, interval time.Duration, w io.Writer) (func(context.Context) error, error) {
	switch exporter {
	case ExporterNone:
		return func(context.Context) error { return nil }, nil
	case ExporterStdout:
	default:
		return nil, fmt.Errorf("metrics.Setup: unknown exporter %q", exporter)
	}

	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("metrics.Setup: stdout exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}
