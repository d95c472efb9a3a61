package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/foundreg/internal/logger"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/registry"
	"github.com/wolfeidau/foundreg/internal/store"
	postgresstore "github.com/wolfeidau/foundreg/internal/store/postgres"
	"gopkg.in/yaml.v3"
)

type OfficeCmd struct {
	Add    OfficeAddCmd    `cmd:"" help:"Add a county office"`
	Import OfficeImportCmd `cmd:"" help:"Create or update offices from a YAML file"`
	Assign OfficeAssignCmd `cmd:"" help:"Assign a user to an office"`
}

type OfficeAddCmd struct {
	Code            string `arg:"" help:"office code used in registry numbers, e.g. 0403"`
	Name            string `arg:"" help:"office display name"`
	VoivodeshipName string `help:"voivodeship name"`
	VoivodeshipCode string `help:"voivodeship TERYT code"`
	CountyCode      string `help:"county TERYT code"`
	CodeLength      int    `help:"required office code length, 0 accepts any" default:"4"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *OfficeAddCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	office := &officeEntry{
		Code:            c.Code,
		Name:            c.Name,
		VoivodeshipName: c.VoivodeshipName,
		VoivodeshipCode: c.VoivodeshipCode,
		CountyCode:      c.CountyCode,
	}
	if err := office.validate(c.CodeLength); err != nil {
		return err
	}

	pool, err := c.Postgres.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	model, err := office.model(time.Now())
	if err != nil {
		return err
	}

	if err := postgresstore.NewOfficeStore(pool).Create(ctx, model); err != nil {
		return fmt.Errorf("failed to add office %s: %w", office.Code, err)
	}

	log.Info().Str("office_id", model.OfficeID.String()).Str("code", model.Code).Msg("Office added")
	return nil
}

type OfficeImportCmd struct {
	File       string `arg:"" help:"YAML file with an offices list" type:"existingfile"`
	CodeLength int    `help:"required office code length, 0 accepts any" default:"4"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *OfficeImportCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	f, err := os.Open(c.File)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", c.File, err)
	}
	defer f.Close()

	entries, err := parseOfficeFile(f, c.CodeLength)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", c.File, err)
	}

	pool, err := c.Postgres.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	created, updated, err := importOffices(ctx, postgresstore.NewOfficeStore(pool), entries, time.Now())
	if err != nil {
		return err
	}

	log.Info().Int("created", created).Int("updated", updated).Msg("Offices imported")
	return nil
}

type OfficeAssignCmd struct {
	Code  string `arg:"" help:"office code"`
	Email string `arg:"" help:"email of a registered user"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *OfficeAssignCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	pool, err := c.Postgres.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	return assignOffice(ctx, postgresstore.NewOfficeStore(pool), postgresstore.NewUserStore(pool), c.Code, c.Email)
}

// officeFile is the YAML layout accepted by office import.
//
//	offices:
//	  - code: "0403"
//	    name: Starostwo Powiatowe w Bydgoszczy
//	    voivodeship_name: kujawsko-pomorskie
//	    voivodeship_code: "04"
//	    county_code: "0403"
type officeFile struct {
	Offices []*officeEntry `yaml:"offices"`
}

type officeEntry struct {
	Code            string `yaml:"code"`
	Name            string `yaml:"name"`
	VoivodeshipName string `yaml:"voivodeship_name"`
	VoivodeshipCode string `yaml:"voivodeship_code"`
	CountyCode      string `yaml:"county_code"`
}

func (e *officeEntry) validate(codeLength int) error {
	e.Code = strings.ToUpper(strings.TrimSpace(e.Code))
	e.Name = strings.TrimSpace(e.Name)

	if err := registry.ValidateCode(e.Code, codeLength); err != nil {
		return err
	}
	if e.Name == "" {
		return fmt.Errorf("office %s: name is required", e.Code)
	}
	return nil
}

func (e *officeEntry) model(now time.Time) (*models.Office, error) {
	officeID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate office ID: %w", err)
	}

	return &models.Office{
		OfficeID:        officeID,
		Code:            e.Code,
		Name:            e.Name,
		VoivodeshipName: e.VoivodeshipName,
		VoivodeshipCode: e.VoivodeshipCode,
		CountyCode:      e.CountyCode,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func parseOfficeFile(r io.Reader, codeLength int) ([]*officeEntry, error) {
	var file officeFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(file.Offices))
	for i, entry := range file.Offices {
		if err := entry.validate(codeLength); err != nil {
			return nil, fmt.Errorf("offices[%d]: %w", i, err)
		}
		if _, ok := seen[entry.Code]; ok {
			return nil, fmt.Errorf("offices[%d]: duplicate code %s", i, entry.Code)
		}
		seen[entry.Code] = struct{}{}
	}

	return file.Offices, nil
}

// importOffices creates unknown offices and updates the metadata of known ones,
// matched by code. Codes are never changed.
func importOffices(ctx context.Context, offices store.OfficeStore, entries []*officeEntry, now time.Time) (created, updated int, err error) {
	for _, entry := range entries {
		existing, err := offices.GetByCode(ctx, entry.Code)
		switch {
		case err == nil:
			existing.Name = entry.Name
			existing.VoivodeshipName = entry.VoivodeshipName
			existing.VoivodeshipCode = entry.VoivodeshipCode
			existing.CountyCode = entry.CountyCode
			existing.UpdatedAt = now
			if err := offices.Update(ctx, existing); err != nil {
				return created, updated, fmt.Errorf("failed to update office %s: %w", entry.Code, err)
			}
			updated++

		case errors.Is(err, store.ErrOfficeNotFound):
			model, err := entry.model(now)
			if err != nil {
				return created, updated, err
			}
			if err := offices.Create(ctx, model); err != nil {
				return created, updated, fmt.Errorf("failed to create office %s: %w", entry.Code, err)
			}
			created++

		default:
			return created, updated, fmt.Errorf("failed to look up office %s: %w", entry.Code, err)
		}
	}

	return created, updated, nil
}

func assignOffice(ctx context.Context, offices store.OfficeStore, users store.UserStore, code, email string) error {
	office, err := offices.GetByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("office %s: %w", code, err)
	}

	user, err := users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("user %s: %w", email, err)
	}

	if err := offices.AddMember(ctx, office.OfficeID, user.UserID); err != nil {
		return fmt.Errorf("failed to assign %s to office %s: %w", email, office.Code, err)
	}

	log.Info().
		Str("office_id", office.OfficeID.String()).
		Str("code", office.Code).
		Int64("user_id", user.UserID).
		Msg("User assigned to office")

	return nil
}
