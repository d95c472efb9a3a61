package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/store"
	"github.com/wolfeidau/foundreg/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/wolfeidau/foundreg/internal/registry"

// DefaultCodeLength is the width of county office codes, e.g. "0403".
const DefaultCodeLength = 4

// Strategy selects how the counter row is read and incremented.
type Strategy string

const (
	// StrategyLock locks the row with FetchForUpdate, creating it on first use,
	// then increments it.
	StrategyLock Strategy = "lock"

	// StrategyUpsert uses a single INSERT ... ON CONFLICT DO UPDATE statement when
	// the sequence store supports it, falling back to StrategyLock otherwise.
	StrategyUpsert Strategy = "upsert"
)

// ParseStrategy parses a strategy name as used on the command line.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLock, StrategyUpsert:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown sequence strategy %q", s)
	}
}

// Allocator hands out registry numbers. It never opens or closes transactions:
// every call works through the transaction-scoped SequenceStore it is given,
// so the increment commits or rolls back together with the caller's record.
type Allocator struct {
	codeLength int
	location   *time.Location
	strategy   Strategy
	now        func() time.Time

	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithCodeLength sets the required office code width. Zero disables the width check.
func WithCodeLength(n int) Option {
	return func(a *Allocator) {
		a.codeLength = n
	}
}

// WithLocation sets the time zone used to determine the calendar year.
// A nil location keeps the default of UTC.
func WithLocation(loc *time.Location) Option {
	return func(a *Allocator) {
		if loc != nil {
			a.location = loc
		}
	}
}

// WithStrategy sets the counter access strategy.
func WithStrategy(s Strategy) Option {
	return func(a *Allocator) {
		a.strategy = s
	}
}

// WithClock overrides the clock used when Allocate is called with a zero time.
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) {
		a.now = now
	}
}

// NewAllocator creates an allocator with 4 character office codes, UTC years
// and the lock strategy unless overridden.
func NewAllocator(opts ...Option) *Allocator {
	a := &Allocator{
		codeLength: DefaultCodeLength,
		location:   time.UTC,
		strategy:   StrategyLock,
		now:        time.Now,
		tracer:     otel.Tracer(tracerName),
		metrics:    telemetry.GetMetrics(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Allocate returns the next registry number for office in the calendar year of at
// (the current time when at is zero).
//
// seqs must be bound to the caller's open transaction. If that transaction rolls
// back, the sequence value is released and handed out again by the next allocation.
// Store errors are returned unchanged in the error chain, so store.ErrTransient can
// be detected with errors.Is.
func (a *Allocator) Allocate(ctx context.Context, seqs store.SequenceStore, office *models.Office, at time.Time) (string, error) {
	if office == nil {
		return "", fmt.Errorf("%w: office is required", ErrConfiguration)
	}
	if at.IsZero() {
		at = a.now()
	}
	year := at.In(a.location).Year()

	ctx, span := a.tracer.Start(ctx, "registry.Allocate", trace.WithAttributes(
		attribute.String("office.id", office.OfficeID.String()),
		attribute.Int("registry.year", year),
		attribute.String("registry.strategy", string(a.strategy)),
	))
	defer span.End()

	started := time.Now()

	number, seq, err := a.allocate(ctx, seqs, office, year)

	a.metrics.AllocationDuration.Record(ctx, float64(time.Since(started).Milliseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.AllocationErrorsTotal.Add(ctx, 1)

		if errors.Is(err, ErrOverflow) {
			a.metrics.SequenceOverflowsTotal.Add(ctx, 1)
			log.Error().
				Err(err).
				Str("office_id", office.OfficeID.String()).
				Str("office_code", office.Code).
				Int("year", year).
				Msg("Registry sequence exhausted")
		}
		if errors.Is(err, ErrConfiguration) {
			log.Error().
				Err(err).
				Str("office_id", office.OfficeID.String()).
				Msg("Office cannot be used for registry numbers")
		}

		return "", err
	}

	span.SetAttributes(attribute.String("registry.number", number))
	a.metrics.AllocationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Int("year", year)))

	log.Debug().
		Str("office_id", office.OfficeID.String()).
		Int("year", year).
		Int64("sequence", seq).
		Str("registry_number", number).
		Msg("Allocated registry number")

	return number, nil
}

func (a *Allocator) allocate(ctx context.Context, seqs store.SequenceStore, office *models.Office, year int) (string, int64, error) {
	if err := ValidateCode(office.Code, a.codeLength); err != nil {
		return "", 0, err
	}

	var (
		seq int64
		err error
	)

	upserter, canUpsert := seqs.(store.SequenceUpserter)
	if a.strategy == StrategyUpsert && canUpsert {
		seq, err = upserter.NextValue(ctx, office.OfficeID, year)
	} else {
		seq, err = a.lockAndIncrement(ctx, seqs, office, year)
	}
	if err != nil {
		return "", 0, err
	}

	// With the upsert strategy the overflowing increment has already happened;
	// it is undone when the caller rolls back on this error.
	number, err := Format(year, office.Code, seq)
	if err != nil {
		return "", 0, err
	}

	return number, seq, nil
}

// lockAndIncrement locks the (office, year) counter, creating it at zero on the
// first allocation, and increments it.
func (a *Allocator) lockAndIncrement(ctx context.Context, seqs store.SequenceStore, office *models.Office, year int) (int64, error) {
	counter, err := seqs.FetchForUpdate(ctx, office.OfficeID, year)
	if errors.Is(err, store.ErrCounterNotFound) {
		_, err = seqs.Create(ctx, office.OfficeID, year, 0)
		switch {
		case err == nil:
			a.metrics.CountersCreatedTotal.Add(ctx, 1)
		case errors.Is(err, store.ErrCounterExists):
			// Another transaction created it first; the reload below waits for its lock
			a.metrics.CounterCreateRaces.Add(ctx, 1)
		default:
			return 0, err
		}

		// Reload under lock so this transaction holds the authoritative row
		counter, err = seqs.FetchForUpdate(ctx, office.OfficeID, year)
	}
	if err != nil {
		return 0, err
	}

	if counter.CurrentValue >= MaxSequence {
		return 0, fmt.Errorf("%w: office %s has issued %d numbers in %d",
			ErrOverflow, office.Code, counter.CurrentValue, year)
	}

	return seqs.Increment(ctx, counter)
}
