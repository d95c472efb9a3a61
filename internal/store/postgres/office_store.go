package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/store"
)

const officeColumns = `
	office_id, code, name, voivodeship_name, voivodeship_code, county_code,
	created_at, updated_at
`

// OfficeStore implements store.OfficeStore using PostgreSQL.
type OfficeStore struct {
	db dbtx
}

var _ store.OfficeStore = (*OfficeStore)(nil)

// NewOfficeStore creates a new PostgreSQL-backed office store.
// It shares the connection pool with other stores.
func NewOfficeStore(pool *pgxpool.Pool) *OfficeStore {
	return newOfficeStore(pool)
}

func newOfficeStore(db dbtx) *OfficeStore {
	return &OfficeStore{db: db}
}

// Create creates a new office in the database.
func (s *OfficeStore) Create(ctx context.Context, office *models.Office) error {
	query := `
		INSERT INTO county_offices (` + officeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.Exec(ctx, query,
		office.OfficeID,
		office.Code,
		office.Name,
		office.VoivodeshipName,
		office.VoivodeshipCode,
		office.CountyCode,
		office.CreatedAt,
		office.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOfficeAlreadyExists
		}
		return fmt.Errorf("failed to create office: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("office_id", office.OfficeID.String()).
		Str("code", office.Code).
		Msg("Created office")

	return nil
}

// Get retrieves an office by ID.
func (s *OfficeStore) Get(ctx context.Context, officeID uuid.UUID) (*models.Office, error) {
	query := `SELECT ` + officeColumns + ` FROM county_offices WHERE office_id = $1`

	office, err := scanOffice(s.db.QueryRow(ctx, query, officeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOfficeNotFound
		}
		return nil, fmt.Errorf("failed to get office: %w", mapPostgresError(err))
	}

	return office, nil
}

// GetByCode retrieves an office by its registry code.
func (s *OfficeStore) GetByCode(ctx context.Context, code string) (*models.Office, error) {
	query := `SELECT ` + officeColumns + ` FROM county_offices WHERE upper(code) = $1`

	office, err := scanOffice(s.db.QueryRow(ctx, query, strings.ToUpper(code)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOfficeNotFound
		}
		return nil, fmt.Errorf("failed to get office by code: %w", mapPostgresError(err))
	}

	return office, nil
}

// Update updates the display metadata of an existing office.
func (s *OfficeStore) Update(ctx context.Context, office *models.Office) error {
	office.UpdatedAt = time.Now()

	query := `
		UPDATE county_offices SET
			name = $2,
			voivodeship_name = $3,
			voivodeship_code = $4,
			county_code = $5,
			updated_at = $6
		WHERE office_id = $1
	`

	result, err := s.db.Exec(ctx, query,
		office.OfficeID,
		office.Name,
		office.VoivodeshipName,
		office.VoivodeshipCode,
		office.CountyCode,
		office.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update office: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOfficeNotFound
	}

	log.Debug().
		Str("office_id", office.OfficeID.String()).
		Msg("Updated office")

	return nil
}

// List returns all offices ordered by code.
func (s *OfficeStore) List(ctx context.Context) ([]*models.Office, error) {
	query := `SELECT ` + officeColumns + ` FROM county_offices ORDER BY code`

	return s.queryOffices(ctx, query)
}

// AddMember assigns a user to an office.
func (s *OfficeStore) AddMember(ctx context.Context, officeID uuid.UUID, userID int64) error {
	query := `
		INSERT INTO office_users (office_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (office_id, user_id) DO NOTHING
	`

	_, err := s.db.Exec(ctx, query, officeID, userID)
	if err != nil {
		if isForeignKeyViolation(err) {
			// Distinguish which side is missing
			if _, getErr := s.Get(ctx, officeID); errors.Is(getErr, store.ErrOfficeNotFound) {
				return store.ErrOfficeNotFound
			}
			return store.ErrUserNotFound
		}
		return fmt.Errorf("failed to add office member: %w", mapPostgresError(err))
	}

	log.Info().
		Str("office_id", officeID.String()).
		Int64("user_id", userID).
		Msg("Assigned user to office")

	return nil
}

// ListByMember returns all offices the user belongs to.
func (s *OfficeStore) ListByMember(ctx context.Context, userID int64) ([]*models.Office, error) {
	query := `
		SELECT o.office_id, o.code, o.name, o.voivodeship_name, o.voivodeship_code, o.county_code,
			o.created_at, o.updated_at
		FROM county_offices o
		JOIN office_users ou ON ou.office_id = o.office_id
		WHERE ou.user_id = $1
		ORDER BY o.code
	`

	return s.queryOffices(ctx, query, userID)
}

func (s *OfficeStore) queryOffices(ctx context.Context, query string, args ...any) ([]*models.Office, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list offices: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var offices []*models.Office
	for rows.Next() {
		office, err := scanOffice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan office: %w", err)
		}
		offices = append(offices, office)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offices: %w", mapPostgresError(err))
	}

	return offices, nil
}

func scanOffice(row pgx.Row) (*models.Office, error) {
	var office models.Office
	err := row.Scan(
		&office.OfficeID,
		&office.Code,
		&office.Name,
		&office.VoivodeshipName,
		&office.VoivodeshipCode,
		&office.CountyCode,
		&office.CreatedAt,
		&office.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &office, nil
}
