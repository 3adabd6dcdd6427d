// Package observe provides application-wide observability primitives for
// Quaver: OpenTelemetry metrics with a Prometheus exporter bridge so the
// standard /metrics endpoint keeps working.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Quaver metrics.
const meterName = "github.com/quaverbot/quaver"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// PipelineOpenDuration tracks how long it takes from requesting playback
	// of a track until audio frames start flowing.
	PipelineOpenDuration metric.Float64Histogram

	// ResolveDuration tracks track/playlist resolution latency. Use with
	// attribute: attribute.String("source", ...)
	ResolveDuration metric.Float64Histogram

	// CommandDuration tracks slash-command handling time. Use with attributes:
	//   attribute.String("command", ...), attribute.String("status", ...)
	CommandDuration metric.Float64Histogram

	// HTTPRequestDuration tracks request latency on the health/metrics
	// sidecar. Use with attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// TracksPlayed counts tracks whose playback was started. Use with
	// attribute: attribute.String("source", ...)
	TracksPlayed metric.Int64Counter

	// CacheHits counts cache lookups satisfied from disk.
	CacheHits metric.Int64Counter

	// CacheMisses counts cache lookups that fell through to the origin.
	CacheMisses metric.Int64Counter

	// CacheEvictions counts files removed to enforce the cache budget.
	CacheEvictions metric.Int64Counter

	// ResolveErrors counts failed resolutions. Use with attribute:
	//   attribute.String("kind", ...)
	ResolveErrors metric.Int64Counter

	// --- Gauges ---

	// ActivePlayers tracks the number of live per-guild players.
	ActivePlayers metric.Int64UpDownCounter

	// ActiveVoiceConns tracks the number of open voice connections.
	ActiveVoiceConns metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// command handling and stream start latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.PipelineOpenDuration, err = m.Float64Histogram("quaver.pipeline.open.duration",
		metric.WithDescription("Time from playback request to first audio frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResolveDuration, err = m.Float64Histogram("quaver.resolve.duration",
		metric.WithDescription("Track and playlist resolution latency by source."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CommandDuration, err = m.Float64Histogram("quaver.command.duration",
		metric.WithDescription("Slash-command handling time by command and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("quaver.http.request.duration",
		metric.WithDescription("HTTP request latency on the sidecar by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TracksPlayed, err = m.Int64Counter("quaver.tracks.played",
		metric.WithDescription("Total tracks whose playback was started, by source."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("quaver.cache.hits",
		metric.WithDescription("Total cache lookups satisfied from disk."),
	); err != nil {
		return nil, err
	}
	if met.CacheMisses, err = m.Int64Counter("quaver.cache.misses",
		metric.WithDescription("Total cache lookups that fell through to the origin."),
	); err != nil {
		return nil, err
	}
	if met.CacheEvictions, err = m.Int64Counter("quaver.cache.evictions",
		metric.WithDescription("Total files evicted to enforce the cache budget."),
	); err != nil {
		return nil, err
	}
	if met.ResolveErrors, err = m.Int64Counter("quaver.resolve.errors",
		metric.WithDescription("Total failed resolutions by error kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActivePlayers, err = m.Int64UpDownCounter("quaver.active_players",
		metric.WithDescription("Number of live per-guild players."),
	); err != nil {
		return nil, err
	}
	if met.ActiveVoiceConns, err = m.Int64UpDownCounter("quaver.active_voice_connections",
		metric.WithDescription("Number of open voice connections."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTrackPlayed records a started track with its source attribute.
func (m *Metrics) RecordTrackPlayed(ctx context.Context, source string) {
	m.TracksPlayed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordResolveError records a failed resolution with its error kind.
func (m *Metrics) RecordResolveError(ctx context.Context, kind string) {
	m.ResolveErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordCommand records one handled slash command with its outcome.
func (m *Metrics) RecordCommand(ctx context.Context, command, status string, seconds float64) {
	m.CommandDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
}
