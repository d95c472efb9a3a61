package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/store"
)

// OfficeStore implements store.OfficeStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type OfficeStore struct {
	mu sync.RWMutex

	offices       map[uuid.UUID]*models.Office // office_id -> Office
	officesByCode map[string]uuid.UUID         // upper(code) -> office_id
	members       map[int64]map[uuid.UUID]bool // user_id -> set of office_id
}

var _ store.OfficeStore = (*OfficeStore)(nil)

// NewOfficeStore creates a new in-memory office store.
func NewOfficeStore() *OfficeStore {
	return &OfficeStore{
		offices:       make(map[uuid.UUID]*models.Office),
		officesByCode: make(map[string]uuid.UUID),
		members:       make(map[int64]map[uuid.UUID]bool),
	}
}

// Create creates a new office in memory.
func (s *OfficeStore) Create(ctx context.Context, office *models.Office) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := strings.ToUpper(office.Code)
	if _, exists := s.offices[office.OfficeID]; exists {
		return store.ErrOfficeAlreadyExists
	}
	if _, exists := s.officesByCode[code]; exists {
		return store.ErrOfficeAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *office
	s.offices[office.OfficeID] = &clone
	s.officesByCode[code] = office.OfficeID

	return nil
}

// Get retrieves an office by ID.
func (s *OfficeStore) Get(ctx context.Context, officeID uuid.UUID) (*models.Office, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	office, exists := s.offices[officeID]
	if !exists {
		return nil, store.ErrOfficeNotFound
	}

	clone := *office
	return &clone, nil
}

// GetByCode retrieves an office by its registry code.
func (s *OfficeStore) GetByCode(ctx context.Context, code string) (*models.Office, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	officeID, exists := s.officesByCode[strings.ToUpper(code)]
	if !exists {
		return nil, store.ErrOfficeNotFound
	}

	clone := *s.offices[officeID]
	return &clone, nil
}

// Update updates the display metadata of an existing office. The code is kept.
func (s *OfficeStore) Update(ctx context.Context, office *models.Office) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.offices[office.OfficeID]
	if !exists {
		return store.ErrOfficeNotFound
	}

	office.UpdatedAt = time.Now()

	existing.Name = office.Name
	existing.VoivodeshipName = office.VoivodeshipName
	existing.VoivodeshipCode = office.VoivodeshipCode
	existing.CountyCode = office.CountyCode
	existing.UpdatedAt = office.UpdatedAt

	return nil
}

// List returns all offices ordered by code.
func (s *OfficeStore) List(ctx context.Context) ([]*models.Office, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Office, 0, len(s.offices))
	for _, office := range s.offices {
		clone := *office
		result = append(result, &clone)
	}

	sortByCode(result)

	return result, nil
}

// AddMember assigns a user to an office. The in-memory store does not track
// users, so only the office side is validated.
func (s *OfficeStore) AddMember(ctx context.Context, officeID uuid.UUID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.offices[officeID]; !exists {
		return store.ErrOfficeNotFound
	}

	if s.members[userID] == nil {
		s.members[userID] = make(map[uuid.UUID]bool)
	}
	s.members[userID][officeID] = true

	return nil
}

// ListByMember returns all offices the user belongs to, ordered by code.
func (s *OfficeStore) ListByMember(ctx context.Context, userID int64) ([]*models.Office, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Office
	for officeID := range s.members[userID] {
		clone := *s.offices[officeID]
		result = append(result, &clone)
	}

	sortByCode(result)

	return result, nil
}

func sortByCode(offices []*models.Office) {
	sort.Slice(offices, func(i, j int) bool {
		return offices[i].Code < offices[j].Code
	})
}
