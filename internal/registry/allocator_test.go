package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/store"
	"github.com/wolfeidau/foundreg/internal/store/memory"
	"golang.org/x/sync/errgroup"
)

var (
	at2025      = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	errRollback = errors.New("rollback")
)

func testOffice(code string) *models.Office {
	return &models.Office{OfficeID: uuid.Must(uuid.NewV7()), Code: code, Name: "Office " + code}
}

func allocateInTx(ctx context.Context, tr store.Transactor, a *Allocator, office *models.Office, at time.Time) (string, error) {
	var number string
	err := tr.RunInTx(ctx, func(ctx context.Context, stores store.TxStores) error {
		var err error
		number, err = a.Allocate(ctx, stores.Sequences(), office, at)
		return err
	})
	return number, err
}

func TestAllocator_Sequential(t *testing.T) {
	ctx := context.Background()
	tr := memory.NewTransactor(memory.NewOfficeStore())
	office := testOffice("0403")

	for _, strategy := range []Strategy{StrategyLock, StrategyUpsert} {
		t.Run(string(strategy), func(t *testing.T) {
			a := NewAllocator(WithStrategy(strategy))
			office := testOffice("0403")

			for _, want := range []string{"RZ2504030001", "RZ2504030002", "RZ2504030003"} {
				got, err := allocateInTx(ctx, tr, a, office, at2025)
				require.NoError(t, err)
				require.Equal(t, want, got)
			}
		})
	}

	t.Run("zero time uses the clock", func(t *testing.T) {
		a := NewAllocator(WithClock(func() time.Time { return time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC) }))

		got, err := allocateInTx(ctx, tr, a, office, time.Time{})
		require.NoError(t, err)
		require.Equal(t, "RZ3104030001", got)
	})
}

func TestAllocator_YearInLocation(t *testing.T) {
	ctx := context.Background()
	tr := memory.NewTransactor(memory.NewOfficeStore())
	office := testOffice("0403")

	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)

	// 23:30 UTC on New Year's Eve is already the next year in Warsaw
	newYearsEve := time.Date(2025, 12, 31, 23, 30, 0, 0, time.UTC)

	got, err := allocateInTx(ctx, tr, NewAllocator(WithLocation(warsaw)), office, newYearsEve)
	require.NoError(t, err)
	require.Equal(t, "RZ2604030001", got)

	got, err = allocateInTx(ctx, tr, NewAllocator(), office, newYearsEve)
	require.NoError(t, err)
	require.Equal(t, "RZ2504030001", got)

	// a nil location keeps UTC
	got, err = allocateInTx(ctx, tr, NewAllocator(WithLocation(nil)), office, newYearsEve)
	require.NoError(t, err)
	require.Equal(t, "RZ2504030002", got)
}

func TestAllocator_ConcurrentUniqueNoGaps(t *testing.T) {
	const n = 50

	for _, strategy := range []Strategy{StrategyLock, StrategyUpsert} {
		t.Run(string(strategy), func(t *testing.T) {
			ctx := context.Background()
			tr := memory.NewTransactor(memory.NewOfficeStore())
			a := NewAllocator(WithStrategy(strategy))
			office := testOffice("0403")

			var (
				mu      sync.Mutex
				numbers = make(map[string]bool)
			)

			g, gctx := errgroup.WithContext(ctx)
			for range n {
				g.Go(func() error {
					number, err := allocateInTx(gctx, tr, a, office, at2025)
					if err != nil {
						return err
					}
					mu.Lock()
					defer mu.Unlock()
					if numbers[number] {
						return fmt.Errorf("duplicate registry number %s", number)
					}
					numbers[number] = true
					return nil
				})
			}
			require.NoError(t, g.Wait())

			for i := 1; i <= n; i++ {
				want, err := Format(2025, "0403", int64(i))
				require.NoError(t, err)
				require.True(t, numbers[want], "missing %s", want)
			}

			value, ok := tr.CounterValue(office.OfficeID, 2025)
			require.True(t, ok)
			require.Equal(t, int64(n), value)
		})
	}
}

func TestAllocator_IsolationAcrossKeys(t *testing.T) {
	ctx := context.Background()
	tr := memory.NewTransactor(memory.NewOfficeStore())
	a := NewAllocator()
	officeA := testOffice("0403")
	officeB := testOffice("0404")

	locked := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan error, 1)

	// Hold the (officeA, 2025) lock open while allocating for other keys
	go func() {
		done <- tr.RunInTx(ctx, func(ctx context.Context, stores store.TxStores) error {
			if _, err := a.Allocate(ctx, stores.Sequences(), officeA, at2025); err != nil {
				return err
			}
			close(locked)
			<-finish
			return nil
		})
	}()
	<-locked

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	got, err := allocateInTx(waitCtx, tr, a, officeB, at2025)
	require.NoError(t, err)
	require.Equal(t, "RZ2504040001", got)

	got, err = allocateInTx(waitCtx, tr, a, officeA, at2025.AddDate(1, 0, 0))
	require.NoError(t, err)
	require.Equal(t, "RZ2604030001", got)

	close(finish)
	require.NoError(t, <-done)

	got, err = allocateInTx(ctx, tr, a, officeA, at2025)
	require.NoError(t, err)
	require.Equal(t, "RZ2504030002", got)
}

func TestAllocator_RollbackReusesValue(t *testing.T) {
	ctx := context.Background()
	tr := memory.NewTransactor(memory.NewOfficeStore())
	a := NewAllocator()
	office := testOffice("0403")

	got, err := allocateInTx(ctx, tr, a, office, at2025)
	require.NoError(t, err)
	require.Equal(t, "RZ2504030001", got)

	err = tr.RunInTx(ctx, func(ctx context.Context, stores store.TxStores) error {
		number, err := a.Allocate(ctx, stores.Sequences(), office, at2025)
		require.NoError(t, err)
		require.Equal(t, "RZ2504030002", number)
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	got, err = allocateInTx(ctx, tr, a, office, at2025)
	require.NoError(t, err)
	require.Equal(t, "RZ2504030002", got)
}

// racingSequences makes two transactions both observe a missing counter
// before either of them creates it.
type racingSequences struct {
	store.SequenceStore
	barrier *sync.WaitGroup
	once    sync.Once
}

func (r *racingSequences) FetchForUpdate(ctx context.Context, officeID uuid.UUID, year int) (*models.SequenceCounter, error) {
	counter, err := r.SequenceStore.FetchForUpdate(ctx, officeID, year)
	if errors.Is(err, store.ErrCounterNotFound) {
		r.once.Do(func() {
			r.barrier.Done()
			r.barrier.Wait()
		})
	}
	return counter, err
}

func TestAllocator_CreationRace(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr := memory.NewTransactor(memory.NewOfficeStore())
	a := NewAllocator()
	office := testOffice("0403")

	var barrier sync.WaitGroup
	barrier.Add(2)

	results := make(chan string, 2)
	g, gctx := errgroup.WithContext(ctx)
	for range 2 {
		g.Go(func() error {
			return tr.RunInTx(gctx, func(ctx context.Context, stores store.TxStores) error {
				seqs := &racingSequences{SequenceStore: stores.Sequences(), barrier: &barrier}
				number, err := a.Allocate(ctx, seqs, office, at2025)
				if err != nil {
					return err
				}
				results <- number
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())
	close(results)

	var got []string
	for number := range results {
		got = append(got, number)
	}
	require.ElementsMatch(t, []string{"RZ2504030001", "RZ2504030002"}, got)
	require.Equal(t, 1, tr.CounterCount())
}

func TestAllocator_ConfigurationError(t *testing.T) {
	ctx := context.Background()
	tr := memory.NewTransactor(memory.NewOfficeStore())
	a := NewAllocator()

	for _, code := range []string{"", "04/3", "040"} {
		_, err := allocateInTx(ctx, tr, a, testOffice(code), at2025)
		require.ErrorIs(t, err, ErrConfiguration, "code %q", code)
	}

	// Nothing was allocated
	require.Equal(t, 0, tr.CounterCount())

	got, err := allocateInTx(ctx, tr, NewAllocator(WithCodeLength(0)), testOffice("ab"), at2025)
	require.NoError(t, err)
	require.Equal(t, "RZ25AB0001", got)
}

func TestAllocator_Overflow(t *testing.T) {
	ctx := context.Background()

	for _, strategy := range []Strategy{StrategyLock, StrategyUpsert} {
		t.Run(string(strategy), func(t *testing.T) {
			tr := memory.NewTransactor(memory.NewOfficeStore())
			a := NewAllocator(WithStrategy(strategy))
			office := testOffice("0403")

			err := tr.RunInTx(ctx, func(ctx context.Context, stores store.TxStores) error {
				_, err := stores.Sequences().Create(ctx, office.OfficeID, 2025, MaxSequence-1)
				return err
			})
			require.NoError(t, err)

			got, err := allocateInTx(ctx, tr, a, office, at2025)
			require.NoError(t, err)
			require.Equal(t, "RZ2504039999", got)

			_, err = allocateInTx(ctx, tr, a, office, at2025)
			require.ErrorIs(t, err, ErrOverflow)

			value, ok := tr.CounterValue(office.OfficeID, 2025)
			require.True(t, ok)
			require.Equal(t, int64(MaxSequence), value)

			// A new year starts over
			got, err = allocateInTx(ctx, tr, a, office, at2025.AddDate(1, 0, 0))
			require.NoError(t, err)
			require.Equal(t, "RZ2604030001", got)
		})
	}
}

// failingSequences fails every call with err.
type failingSequences struct {
	err error
}

func (f *failingSequences) FetchForUpdate(context.Context, uuid.UUID, int) (*models.SequenceCounter, error) {
	return nil, f.err
}

func (f *failingSequences) Create(context.Context, uuid.UUID, int, int64) (*models.SequenceCounter, error) {
	return nil, f.err
}

func (f *failingSequences) Increment(context.Context, *models.SequenceCounter) (int64, error) {
	return 0, f.err
}

func TestAllocator_PropagatesStoreErrors(t *testing.T) {
	ctx := context.Background()
	a := NewAllocator()
	office := testOffice("0403")

	transient := fmt.Errorf("%w: canceling statement due to lock timeout", store.ErrTransient)

	_, err := a.Allocate(ctx, &failingSequences{err: transient}, office, at2025)
	require.ErrorIs(t, err, store.ErrTransient)

	boom := errors.New("boom")
	_, err = a.Allocate(ctx, &failingSequences{err: boom}, office, at2025)
	require.ErrorIs(t, err, boom)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("lock")
	require.NoError(t, err)
	require.Equal(t, StrategyLock, s)

	s, err = ParseStrategy("upsert")
	require.NoError(t, err)
	require.Equal(t, StrategyUpsert, s)

	_, err = ParseStrategy("optimistic")
	require.Error(t, err)
}
