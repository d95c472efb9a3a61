package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/foundreg"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Registry allocation metrics
	AllocationsTotal       metric.Int64Counter
	AllocationErrorsTotal  metric.Int64Counter
	AllocationDuration     metric.Float64Histogram
	SequenceOverflowsTotal metric.Int64Counter
	CounterCreateRaces     metric.Int64Counter
	CountersCreatedTotal   metric.Int64Counter

	// Form metrics
	FormsSubmittedTotal metric.Int64Counter
	FormSubmitRetries   metric.Int64Counter
	FormsExportedTotal  metric.Int64Counter

	// Auth metrics
	LoginsTotal        metric.Int64Counter
	LoginFailuresTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Instruments are created from the global meter provider, so InitTelemetry must
// run first for them to be exported; otherwise they are no-ops.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Registry allocation metrics
	m.AllocationsTotal, _ = meter.Int64Counter(
		"foundreg.registry.allocations.total",
		metric.WithDescription("Total number of registry numbers allocated (before commit)"),
		metric.WithUnit("{allocation}"),
	)

	m.AllocationErrorsTotal, _ = meter.Int64Counter(
		"foundreg.registry.allocation_errors.total",
		metric.WithDescription("Total number of failed registry number allocations"),
		metric.WithUnit("{error}"),
	)

	m.AllocationDuration, _ = meter.Float64Histogram(
		"foundreg.registry.allocation.duration",
		metric.WithDescription("Duration of registry number allocation including lock waits"),
		metric.WithUnit("ms"),
	)

	m.SequenceOverflowsTotal, _ = meter.Int64Counter(
		"foundreg.registry.overflows.total",
		metric.WithDescription("Total number of allocations rejected because the sequence is exhausted"),
		metric.WithUnit("{error}"),
	)

	m.CounterCreateRaces, _ = meter.Int64Counter(
		"foundreg.registry.counter_create_races.total",
		metric.WithDescription("Total number of concurrent first allocations for a new office and year"),
		metric.WithUnit("{race}"),
	)

	m.CountersCreatedTotal, _ = meter.Int64Counter(
		"foundreg.registry.counters_created.total",
		metric.WithDescription("Total number of sequence counters created"),
		metric.WithUnit("{counter}"),
	)

	// Form metrics
	m.FormsSubmittedTotal, _ = meter.Int64Counter(
		"foundreg.forms.submitted.total",
		metric.WithDescription("Total number of found-item forms committed"),
		metric.WithUnit("{form}"),
	)

	m.FormSubmitRetries, _ = meter.Int64Counter(
		"foundreg.forms.submit_retries.total",
		metric.WithDescription("Total number of form submissions retried after a transient store error"),
		metric.WithUnit("{retry}"),
	)

	m.FormsExportedTotal, _ = meter.Int64Counter(
		"foundreg.forms.exported.total",
		metric.WithDescription("Total number of form exports"),
		metric.WithUnit("{export}"),
	)

	// Auth metrics
	m.LoginsTotal, _ = meter.Int64Counter(
		"foundreg.auth.logins.total",
		metric.WithDescription("Total number of successful logins"),
		metric.WithUnit("{login}"),
	)

	m.LoginFailuresTotal, _ = meter.Int64Counter(
		"foundreg.auth.login_failures.total",
		metric.WithDescription("Total number of failed logins"),
		metric.WithUnit("{login}"),
	)

	return m
}
