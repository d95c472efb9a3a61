package forms

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/foundreg/internal/export"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/registry"
	"github.com/wolfeidau/foundreg/internal/store"
	"github.com/wolfeidau/foundreg/internal/store/memory"
)

func ptr(s string) *string { return &s }

type fixture struct {
	svc     *Service
	tr      *memory.Transactor
	offices *memory.OfficeStore
	user    *models.User
	office  *models.Office
}

func newFixture(t *testing.T, tx func(*memory.Transactor) store.Transactor) *fixture {
	t.Helper()
	ctx := context.Background()

	offices := memory.NewOfficeStore()
	tr := memory.NewTransactor(offices)

	office := &models.Office{OfficeID: uuid.Must(uuid.NewV7()), Code: "0403", Name: "Starostwo Powiatowe"}
	require.NoError(t, offices.Create(ctx, office))

	user := &models.User{UserID: 1, Email: "anna@example.com", Role: models.RoleUser}
	require.NoError(t, offices.AddMember(ctx, office.OfficeID, user.UserID))

	var transactor store.Transactor = tr
	if tx != nil {
		transactor = tx(tr)
	}

	svc := NewService(transactor, offices, tr.FoundItems(), registry.NewAllocator(), Config{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) }

	return &fixture{svc: svc, tr: tr, offices: offices, user: user, office: office}
}

func validRequest() *SubmitRequest {
	return &SubmitRequest{
		ItemName:      "  Parasol ",
		FoundLocation: "Przystanek Rynek",
		FoundDate:     "2025-06-14",
		FoundTime:     ptr("14:30"),
	}
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	item, err := f.svc.Submit(ctx, f.user, validRequest())
	require.NoError(t, err)
	require.Equal(t, "RZ2504030001", item.RegistryNumber)
	require.Equal(t, "Parasol", item.ItemName)
	require.Equal(t, f.office.OfficeID, item.OfficeID)
	require.Equal(t, time.Date(2025, 6, 14, 14, 30, 0, 0, time.UTC), item.FoundAt)

	second, err := f.svc.Submit(ctx, f.user, validRequest())
	require.NoError(t, err)
	require.Equal(t, "RZ2504030002", second.RegistryNumber)

	got, err := f.svc.Get(ctx, f.user, item.ItemID)
	require.NoError(t, err)
	require.Equal(t, item.RegistryNumber, got.RegistryNumber)

	_, err = f.svc.Get(ctx, &models.User{UserID: 2}, item.ItemID)
	require.ErrorIs(t, err, store.ErrFoundItemNotFound)

	mine, err := f.svc.ListMine(ctx, f.user)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, "RZ2504030002", mine[0].RegistryNumber)
}

func TestService_Submit_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		modify func(r *SubmitRequest)
		field  string
	}{
		{name: "blank item name", modify: func(r *SubmitRequest) { r.ItemName = "   " }, field: "item_name"},
		{name: "missing location", modify: func(r *SubmitRequest) { r.FoundLocation = "" }, field: "found_location"},
		{name: "missing date", modify: func(r *SubmitRequest) { r.FoundDate = "" }, field: "found_date"},
		{name: "bad date", modify: func(r *SubmitRequest) { r.FoundDate = "14.06.2025" }, field: "found_date"},
		{name: "long phone", modify: func(r *SubmitRequest) { r.FoundByPhoneNumber = ptr(strings.Repeat("1", 23)) }, field: "found_by_phonenumber"},
		{name: "long item name", modify: func(r *SubmitRequest) { r.ItemName = strings.Repeat("x", 501) }, field: "item_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.modify(req)

			_, err := f.svc.Submit(ctx, f.user, req)
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tt.field, verr.Field)
		})
	}

	// Rejected submissions never touch the counter
	require.Equal(t, 0, f.tr.CounterCount())
}

func TestSubmitRequest_FoundTime(t *testing.T) {
	t.Run("invalid time falls back to midnight and keeps text", func(t *testing.T) {
		req := validRequest()
		req.FoundTime = ptr(" 25:9 ")
		require.NoError(t, req.Validate())
		require.Equal(t, time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC), req.FoundAt())
		require.Equal(t, "25:9", *req.FoundTime)
	})

	t.Run("blank optional fields become nil", func(t *testing.T) {
		req := validRequest()
		req.FoundTime = ptr("  ")
		req.ItemColor = ptr(" ")
		req.FoundByPhoneNumber = ptr(" +48 600 100 200 ")
		require.NoError(t, req.Validate())
		require.Nil(t, req.FoundTime)
		require.Nil(t, req.ItemColor)
		require.Equal(t, "+48 600 100 200", *req.FoundByPhoneNumber)
		require.Equal(t, time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC), req.FoundAt())
	})
}

func TestService_Submit_OfficeResolution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	other := &models.Office{OfficeID: uuid.Must(uuid.NewV7()), Code: "0404", Name: "Other"}
	require.NoError(t, f.offices.Create(ctx, other))

	t.Run("office not assigned", func(t *testing.T) {
		req := validRequest()
		req.OfficeID = &other.OfficeID

		_, err := f.svc.Submit(ctx, f.user, req)
		require.ErrorIs(t, err, ErrOfficeForbidden)
	})

	t.Run("no office", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, &models.User{UserID: 99}, validRequest())
		require.ErrorIs(t, err, ErrOfficeRequired)
	})

	require.NoError(t, f.offices.AddMember(ctx, other.OfficeID, f.user.UserID))

	t.Run("several offices require a choice", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, f.user, validRequest())
		require.ErrorIs(t, err, ErrOfficeRequired)
	})

	t.Run("explicit office", func(t *testing.T) {
		req := validRequest()
		req.OfficeID = &other.OfficeID

		item, err := f.svc.Submit(ctx, f.user, req)
		require.NoError(t, err)
		require.Equal(t, "RZ2504040001", item.RegistryNumber)
	})
}

func TestService_Submit_ConfigurationError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	broken := &models.Office{OfficeID: uuid.Must(uuid.NewV7()), Code: "04-3", Name: "Broken"}
	require.NoError(t, f.offices.Create(ctx, broken))
	require.NoError(t, f.offices.AddMember(ctx, broken.OfficeID, 5))

	_, err := f.svc.Submit(ctx, &models.User{UserID: 5}, validRequest())
	require.ErrorIs(t, err, registry.ErrConfiguration)

	items, err := f.svc.ListMine(ctx, &models.User{UserID: 5})
	require.NoError(t, err)
	require.Empty(t, items)
}

// flakyTransactor fails the first failures transactions with a transient error
// after running fn, so the work done inside is rolled back.
type flakyTransactor struct {
	store.Transactor
	failures int
	calls    int
}

func (f *flakyTransactor) RunInTx(ctx context.Context, fn func(ctx context.Context, stores store.TxStores) error) error {
	f.calls++
	return f.Transactor.RunInTx(ctx, func(ctx context.Context, stores store.TxStores) error {
		if err := fn(ctx, stores); err != nil {
			return err
		}
		if f.calls <= f.failures {
			return fmt.Errorf("%w: connection reset", store.ErrTransient)
		}
		return nil
	})
}

func TestService_Submit_RetriesTransient(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after retries without gaps", func(t *testing.T) {
		flaky := &flakyTransactor{failures: 2}
		f := newFixture(t, func(tr *memory.Transactor) store.Transactor {
			flaky.Transactor = tr
			return flaky
		})

		item, err := f.svc.Submit(ctx, f.user, validRequest())
		require.NoError(t, err)
		require.Equal(t, 3, flaky.calls)
		require.Equal(t, "RZ2504030001", item.RegistryNumber)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		flaky := &flakyTransactor{failures: 10}
		f := newFixture(t, func(tr *memory.Transactor) store.Transactor {
			flaky.Transactor = tr
			return flaky
		})

		_, err := f.svc.Submit(ctx, f.user, validRequest())
		require.ErrorIs(t, err, store.ErrTransient)
		require.Equal(t, 3, flaky.calls)
		require.Equal(t, 0, f.tr.CounterCount())
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		flaky := &flakyTransactor{}
		f := newFixture(t, func(tr *memory.Transactor) store.Transactor {
			flaky.Transactor = tr
			return flaky
		})

		_, err := f.svc.Submit(ctx, &models.User{UserID: 42}, validRequest())
		require.ErrorIs(t, err, ErrOfficeRequired)
		require.Equal(t, 1, flaky.calls)
	})
}

func TestService_Export(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	for range 2 {
		_, err := f.svc.Submit(ctx, f.user, validRequest())
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(ctx, f.user, export.FormatCSV, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[1], "RZ2504030002,"))
}
