package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/store"
)

const foundItemColumns = `
	item_id, registry_number, office_id, user_id,
	item_name, item_color, item_brand, found_location, found_at, found_time, circumstances,
	found_by_firstname, found_by_lastname, found_by_phonenumber,
	created_at
`

// FoundItemStore implements store.FoundItemStore using PostgreSQL.
type FoundItemStore struct {
	db dbtx
}

var _ store.FoundItemStore = (*FoundItemStore)(nil)

// NewFoundItemStore creates a new PostgreSQL-backed found item store for reads
// outside a submission transaction.
func NewFoundItemStore(pool *pgxpool.Pool) *FoundItemStore {
	return newFoundItemStore(pool)
}

func newFoundItemStore(db dbtx) *FoundItemStore {
	return &FoundItemStore{db: db}
}

// Create inserts a found item. Inside a submission transaction the row only
// becomes visible together with the sequence increment that numbered it.
func (s *FoundItemStore) Create(ctx context.Context, item *models.FoundItem) error {
	query := `
		INSERT INTO found_items (` + foundItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := s.db.Exec(ctx, query,
		item.ItemID,
		item.RegistryNumber,
		item.OfficeID,
		item.UserID,
		item.ItemName,
		item.ItemColor,
		item.ItemBrand,
		item.FoundLocation,
		item.FoundAt,
		item.FoundTime,
		item.Circumstances,
		item.FoundByFirstName,
		item.FoundByLastName,
		item.FoundByPhoneNumber,
		item.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err, "found_items_registry_number_key") {
			return fmt.Errorf("%w: %s", store.ErrRegistryNumberExists, item.RegistryNumber)
		}
		return fmt.Errorf("failed to create found item: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("item_id", item.ItemID.String()).
		Str("registry_number", item.RegistryNumber).
		Msg("Created found item")

	return nil
}

// GetForUser retrieves a found item owned by userID.
func (s *FoundItemStore) GetForUser(ctx context.Context, itemID uuid.UUID, userID int64) (*models.FoundItem, error) {
	query := `SELECT ` + foundItemColumns + ` FROM found_items WHERE item_id = $1 AND user_id = $2`

	item, err := scanFoundItem(s.db.QueryRow(ctx, query, itemID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrFoundItemNotFound
		}
		return nil, fmt.Errorf("failed to get found item: %w", mapPostgresError(err))
	}

	return item, nil
}

// ListByUser returns the user's found items, newest first.
func (s *FoundItemStore) ListByUser(ctx context.Context, userID int64) ([]*models.FoundItem, error) {
	query := `
		SELECT ` + foundItemColumns + `
		FROM found_items
		WHERE user_id = $1
		ORDER BY created_at DESC, registry_number DESC
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list found items: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var items []*models.FoundItem
	for rows.Next() {
		item, err := scanFoundItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan found item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating found items: %w", mapPostgresError(err))
	}

	return items, nil
}

func scanFoundItem(row pgx.Row) (*models.FoundItem, error) {
	var item models.FoundItem
	err := row.Scan(
		&item.ItemID,
		&item.RegistryNumber,
		&item.OfficeID,
		&item.UserID,
		&item.ItemName,
		&item.ItemColor,
		&item.ItemBrand,
		&item.FoundLocation,
		&item.FoundAt,
		&item.FoundTime,
		&item.Circumstances,
		&item.FoundByFirstName,
		&item.FoundByLastName,
		&item.FoundByPhoneNumber,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
