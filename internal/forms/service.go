package forms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/foundreg/internal/export"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/registry"
	"github.com/wolfeidau/foundreg/internal/store"
	"github.com/wolfeidau/foundreg/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Config controls retries of submissions that hit a transient store error.
type Config struct {
	// MaxAttempts bounds the number of times a submission runs, including the first.
	// Default: 3
	MaxAttempts uint

	// InitialInterval is the delay before the first retry.
	// Default: 100 milliseconds
	InitialInterval time.Duration

	// MaxInterval caps the delay between retries.
	// Default: 2 seconds
	MaxInterval time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.InitialInterval == 0 {
		c.InitialInterval = 100 * time.Millisecond
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = 2 * time.Second
	}
}

// Service implements found item form submission and retrieval.
type Service struct {
	tx        store.Transactor
	offices   store.OfficeStore
	items     store.FoundItemStore
	allocator *registry.Allocator
	cfg       Config
	now       func() time.Time
	metrics   *telemetry.Metrics
}

// NewService creates a form service. items is used for reads outside a
// submission transaction.
func NewService(tx store.Transactor, offices store.OfficeStore, items store.FoundItemStore, allocator *registry.Allocator, cfg Config) *Service {
	cfg.ApplyDefaults()

	return &Service{
		tx:        tx,
		offices:   offices,
		items:     items,
		allocator: allocator,
		cfg:       cfg,
		now:       time.Now,
		metrics:   telemetry.GetMetrics(),
	}
}

// Submit validates req, then allocates a registry number and stores the item in
// one transaction. The whole transaction is retried with exponential backoff
// while it fails with store.ErrTransient.
func (s *Service) Submit(ctx context.Context, user *models.User, req *SubmitRequest) (*models.FoundItem, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.InitialInterval
	eb.MaxInterval = s.cfg.MaxInterval

	attempt := 0
	item, err := backoff.Retry(ctx, func() (*models.FoundItem, error) {
		attempt++
		item, err := s.submit(ctx, user, req)
		if err != nil && !errors.Is(err, store.ErrTransient) {
			return nil, backoff.Permanent(err)
		}
		return item, err
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(s.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.metrics.FormSubmitRetries.Add(ctx, 1)
			log.Warn().
				Err(err).
				Int64("user_id", user.UserID).
				Int("attempt", attempt).
				Dur("retry_in", next).
				Msg("Retrying found item submission")
		}),
	)
	if err != nil {
		return nil, err
	}

	s.metrics.FormsSubmittedTotal.Add(ctx, 1)

	log.Info().
		Str("item_id", item.ItemID.String()).
		Str("registry_number", item.RegistryNumber).
		Str("office_id", item.OfficeID.String()).
		Int64("user_id", user.UserID).
		Msg("Found item submitted")

	return item, nil
}

func (s *Service) submit(ctx context.Context, user *models.User, req *SubmitRequest) (*models.FoundItem, error) {
	var item *models.FoundItem

	err := s.tx.RunInTx(ctx, func(ctx context.Context, stores store.TxStores) error {
		office, err := resolveOffice(ctx, stores.Offices(), user, req.OfficeID)
		if err != nil {
			return err
		}

		now := s.now()

		number, err := s.allocator.Allocate(ctx, stores.Sequences(), office, now)
		if err != nil {
			return err
		}

		itemID, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate item ID: %w", err)
		}

		candidate := &models.FoundItem{
			ItemID:             itemID,
			RegistryNumber:     number,
			OfficeID:           office.OfficeID,
			UserID:             user.UserID,
			ItemName:           req.ItemName,
			ItemColor:          req.ItemColor,
			ItemBrand:          req.ItemBrand,
			FoundLocation:      req.FoundLocation,
			FoundAt:            req.FoundAt(),
			FoundTime:          req.FoundTime,
			Circumstances:      req.Circumstances,
			FoundByFirstName:   req.FoundByFirstName,
			FoundByLastName:    req.FoundByLastName,
			FoundByPhoneNumber: req.FoundByPhoneNumber,
			CreatedAt:          now.UTC(),
		}

		if err := stores.FoundItems().Create(ctx, candidate); err != nil {
			return err
		}

		item = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// resolveOffice picks the office a submission is numbered under. An explicit
// office must be one of the user's; otherwise the user must belong to exactly one.
func resolveOffice(ctx context.Context, offices store.OfficeStore, user *models.User, officeID *uuid.UUID) (*models.Office, error) {
	member, err := offices.ListByMember(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list offices: %w", err)
	}

	if officeID != nil {
		for _, office := range member {
			if office.OfficeID == *officeID {
				return office, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrOfficeForbidden, officeID)
	}

	if len(member) != 1 {
		return nil, fmt.Errorf("%w: user belongs to %d offices", ErrOfficeRequired, len(member))
	}

	return member[0], nil
}

// Offices returns the offices the user may submit under.
func (s *Service) Offices(ctx context.Context, user *models.User) ([]*models.Office, error) {
	return s.offices.ListByMember(ctx, user.UserID)
}

// ListMine returns the user's found items, newest first.
func (s *Service) ListMine(ctx context.Context, user *models.User) ([]*models.FoundItem, error) {
	return s.items.ListByUser(ctx, user.UserID)
}

// Get returns one of the user's found items. Items of other users are reported
// as store.ErrFoundItemNotFound.
func (s *Service) Get(ctx context.Context, user *models.User, itemID uuid.UUID) (*models.FoundItem, error) {
	return s.items.GetForUser(ctx, itemID, user.UserID)
}

// Export writes all of the user's found items to w, newest first.
func (s *Service) Export(ctx context.Context, user *models.User, format export.Format, w io.Writer) error {
	items, err := s.items.ListByUser(ctx, user.UserID)
	if err != nil {
		return err
	}

	if err := export.Write(w, format, items); err != nil {
		return err
	}

	s.metrics.FormsExportedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("format", string(format))))

	log.Info().
		Int64("user_id", user.UserID).
		Str("format", string(format)).
		Int("items", len(items)).
		Msg("Found items exported")

	return nil
}
