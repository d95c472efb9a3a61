package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/store"
)

type counterKey struct {
	officeID uuid.UUID
	year     int
}

// Transactor implements store.Transactor using in-memory storage for sequence
// counters and found items. It mirrors the row locking of the PostgreSQL store:
// a counter locked by one transaction blocks other transactions on the same
// (office, year) until it commits or rolls back, and writes only become visible
// on commit. This implementation is for testing only - data is lost on restart.
type Transactor struct {
	mu sync.Mutex

	counters        map[counterKey]*models.SequenceCounter
	locks           map[counterKey]chan struct{} // one slot per key, held by at most one tx
	items           map[uuid.UUID]*models.FoundItem
	registryNumbers map[string]uuid.UUID

	offices *OfficeStore
}

var _ store.Transactor = (*Transactor)(nil)

// NewTransactor creates a new in-memory transactor reading offices from offices.
func NewTransactor(offices *OfficeStore) *Transactor {
	return &Transactor{
		counters:        make(map[counterKey]*models.SequenceCounter),
		locks:           make(map[counterKey]chan struct{}),
		items:           make(map[uuid.UUID]*models.FoundItem),
		registryNumbers: make(map[string]uuid.UUID),
		offices:         offices,
	}
}

// RunInTx runs fn inside an in-memory transaction.
func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context, stores store.TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: transaction aborted: %w", store.ErrTransient, err)
	}

	tx := &memTx{
		t:        t,
		held:     make(map[counterKey]bool),
		counters: make(map[counterKey]*models.SequenceCounter),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	return tx.commit()
}

// FoundItems returns a store reading committed found items.
func (t *Transactor) FoundItems() store.FoundItemStore {
	return &committedItems{t: t}
}

// CounterValue returns the committed value of a counter.
func (t *Transactor) CounterValue(officeID uuid.UUID, year int) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.counters[counterKey{officeID: officeID, year: year}]
	if !ok {
		return 0, false
	}
	return c.CurrentValue, true
}

// CounterCount returns the number of committed counters.
func (t *Transactor) CounterCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.counters)
}

func (t *Transactor) lockFor(key counterKey) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[key] = ch
	}
	return ch
}

// memTx holds the locks and staged writes of one transaction.
type memTx struct {
	t *Transactor

	held     map[counterKey]bool
	counters map[counterKey]*models.SequenceCounter
	items    []*models.FoundItem
}

func (tx *memTx) Sequences() store.SequenceStore {
	return (*txSequences)(tx)
}

func (tx *memTx) FoundItems() store.FoundItemStore {
	return (*txItems)(tx)
}

func (tx *memTx) Offices() store.OfficeStore {
	return tx.t.offices
}

// acquire takes the row lock for key, waiting until the holder finishes or ctx is done.
func (tx *memTx) acquire(ctx context.Context, key counterKey) error {
	if tx.held[key] {
		return nil
	}

	select {
	case tx.t.lockFor(key) <- struct{}{}:
		tx.held[key] = true
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for sequence counter lock: %w", store.ErrTransient, ctx.Err())
	}
}

func (tx *memTx) release() {
	for key := range tx.held {
		<-tx.t.lockFor(key)
	}
	tx.held = nil
}

// current returns a copy of the counter as seen by this transaction.
func (tx *memTx) current(key counterKey) *models.SequenceCounter {
	if c, ok := tx.counters[key]; ok {
		clone := *c
		return &clone
	}

	tx.t.mu.Lock()
	defer tx.t.mu.Unlock()

	c, ok := tx.t.counters[key]
	if !ok {
		return nil
	}
	clone := *c
	return &clone
}

func (tx *memTx) commit() error {
	tx.t.mu.Lock()
	defer tx.t.mu.Unlock()

	for _, item := range tx.items {
		if _, exists := tx.t.registryNumbers[item.RegistryNumber]; exists {
			return fmt.Errorf("%w: %s", store.ErrRegistryNumberExists, item.RegistryNumber)
		}
	}

	for key, c := range tx.counters {
		tx.t.counters[key] = c
	}

	for _, item := range tx.items {
		tx.t.items[item.ItemID] = item
		tx.t.registryNumbers[item.RegistryNumber] = item.ItemID
	}

	return nil
}

// txSequences is the transaction-bound store.SequenceStore.
type txSequences memTx

var (
	_ store.SequenceStore    = (*txSequences)(nil)
	_ store.SequenceUpserter = (*txSequences)(nil)
)

func (s *txSequences) FetchForUpdate(ctx context.Context, officeID uuid.UUID, year int) (*models.SequenceCounter, error) {
	tx := (*memTx)(s)
	key := counterKey{officeID: officeID, year: year}

	// Like SELECT ... FOR UPDATE, a missing row locks nothing
	if tx.current(key) == nil {
		return nil, store.ErrCounterNotFound
	}

	if err := tx.acquire(ctx, key); err != nil {
		return nil, err
	}

	return tx.current(key), nil
}

func (s *txSequences) Create(ctx context.Context, officeID uuid.UUID, year int, initial int64) (*models.SequenceCounter, error) {
	tx := (*memTx)(s)
	key := counterKey{officeID: officeID, year: year}

	if initial < 0 {
		return nil, fmt.Errorf("initial sequence value must not be negative: %d", initial)
	}

	// A concurrent creator holds the key until it commits; once it does, the row exists
	if err := tx.acquire(ctx, key); err != nil {
		return nil, err
	}

	if tx.current(key) != nil {
		return nil, store.ErrCounterExists
	}

	now := time.Now()
	c := &models.SequenceCounter{
		OfficeID:     officeID,
		Year:         year,
		CurrentValue: initial,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx.counters[key] = c

	clone := *c
	return &clone, nil
}

func (s *txSequences) Increment(ctx context.Context, counter *models.SequenceCounter) (int64, error) {
	tx := (*memTx)(s)
	key := counterKey{officeID: counter.OfficeID, year: counter.Year}

	if !tx.held[key] {
		return 0, fmt.Errorf("sequence counter %s/%d is not locked by this transaction", counter.OfficeID, counter.Year)
	}

	c := tx.current(key)
	if c == nil {
		return 0, store.ErrCounterNotFound
	}

	c.CurrentValue++
	c.UpdatedAt = time.Now()
	tx.counters[key] = c

	counter.CurrentValue = c.CurrentValue

	return c.CurrentValue, nil
}

func (s *txSequences) NextValue(ctx context.Context, officeID uuid.UUID, year int) (int64, error) {
	tx := (*memTx)(s)
	key := counterKey{officeID: officeID, year: year}

	if err := tx.acquire(ctx, key); err != nil {
		return 0, err
	}

	now := time.Now()
	c := tx.current(key)
	if c == nil {
		c = &models.SequenceCounter{OfficeID: officeID, Year: year, CreatedAt: now}
	}

	c.CurrentValue++
	c.UpdatedAt = now
	tx.counters[key] = c

	return c.CurrentValue, nil
}

// txItems is the transaction-bound store.FoundItemStore. Reads see committed
// items plus the ones staged by this transaction.
type txItems memTx

var _ store.FoundItemStore = (*txItems)(nil)

func (s *txItems) Create(ctx context.Context, item *models.FoundItem) error {
	tx := (*memTx)(s)

	for _, staged := range tx.items {
		if staged.RegistryNumber == item.RegistryNumber {
			return fmt.Errorf("%w: %s", store.ErrRegistryNumberExists, item.RegistryNumber)
		}
	}

	tx.t.mu.Lock()
	_, exists := tx.t.registryNumbers[item.RegistryNumber]
	tx.t.mu.Unlock()
	if exists {
		return fmt.Errorf("%w: %s", store.ErrRegistryNumberExists, item.RegistryNumber)
	}

	clone := *item
	tx.items = append(tx.items, &clone)

	return nil
}

func (s *txItems) GetForUser(ctx context.Context, itemID uuid.UUID, userID int64) (*models.FoundItem, error) {
	tx := (*memTx)(s)

	for _, item := range tx.items {
		if item.ItemID == itemID && item.UserID == userID {
			clone := *item
			return &clone, nil
		}
	}

	return tx.t.FoundItems().GetForUser(ctx, itemID, userID)
}

func (s *txItems) ListByUser(ctx context.Context, userID int64) ([]*models.FoundItem, error) {
	tx := (*memTx)(s)

	result, err := tx.t.FoundItems().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, item := range tx.items {
		if item.UserID == userID {
			clone := *item
			result = append(result, &clone)
		}
	}

	sortNewestFirst(result)

	return result, nil
}

// committedItems reads committed found items.
type committedItems struct {
	t *Transactor
}

func (s *committedItems) Create(ctx context.Context, item *models.FoundItem) error {
	return s.t.RunInTx(ctx, func(ctx context.Context, stores store.TxStores) error {
		return stores.FoundItems().Create(ctx, item)
	})
}

func (s *committedItems) GetForUser(ctx context.Context, itemID uuid.UUID, userID int64) (*models.FoundItem, error) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	item, exists := s.t.items[itemID]
	if !exists || item.UserID != userID {
		return nil, store.ErrFoundItemNotFound
	}

	clone := *item
	return &clone, nil
}

func (s *committedItems) ListByUser(ctx context.Context, userID int64) ([]*models.FoundItem, error) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	var result []*models.FoundItem
	for _, item := range s.t.items {
		if item.UserID == userID {
			clone := *item
			result = append(result, &clone)
		}
	}

	sortNewestFirst(result)

	return result, nil
}

func sortNewestFirst(items []*models.FoundItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].RegistryNumber > items[j].RegistryNumber
	})
}
