package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/store"
)

func newOffice(code, name string) *models.Office {
	return &models.Office{
		OfficeID: uuid.Must(uuid.NewV7()),
		Code:     code,
		Name:     name,
	}
}

func TestOfficeStore_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := NewOfficeStore()
		office := newOffice("0403", "Starostwo Powiatowe w Chełmie")

		require.NoError(t, s.Create(ctx, office))

		got, err := s.Get(ctx, office.OfficeID)
		require.NoError(t, err)
		require.Equal(t, "0403", got.Code)
		require.Equal(t, office.Name, got.Name)
	})

	t.Run("duplicate code is case-insensitive", func(t *testing.T) {
		s := NewOfficeStore()
		require.NoError(t, s.Create(ctx, newOffice("ab12", "A")))

		err := s.Create(ctx, newOffice("AB12", "B"))
		require.ErrorIs(t, err, store.ErrOfficeAlreadyExists)
	})

	t.Run("duplicate id", func(t *testing.T) {
		s := NewOfficeStore()
		office := newOffice("0403", "A")
		require.NoError(t, s.Create(ctx, office))

		dup := *office
		dup.Code = "0404"
		require.ErrorIs(t, s.Create(ctx, &dup), store.ErrOfficeAlreadyExists)
	})
}

func TestOfficeStore_GetByCode(t *testing.T) {
	ctx := context.Background()
	s := NewOfficeStore()
	office := newOffice("AB12", "A")
	require.NoError(t, s.Create(ctx, office))

	got, err := s.GetByCode(ctx, "ab12")
	require.NoError(t, err)
	require.Equal(t, office.OfficeID, got.OfficeID)

	_, err = s.GetByCode(ctx, "ZZ99")
	require.ErrorIs(t, err, store.ErrOfficeNotFound)
}

func TestOfficeStore_Update(t *testing.T) {
	ctx := context.Background()
	s := NewOfficeStore()
	office := newOffice("0403", "Old")
	require.NoError(t, s.Create(ctx, office))

	update := *office
	update.Name = "New"
	update.Code = "9999"
	require.NoError(t, s.Update(ctx, &update))

	got, err := s.Get(ctx, office.OfficeID)
	require.NoError(t, err)
	require.Equal(t, "New", got.Name)
	require.Equal(t, "0403", got.Code)

	missing := newOffice("0000", "X")
	require.ErrorIs(t, s.Update(ctx, missing), store.ErrOfficeNotFound)
}

func TestOfficeStore_Members(t *testing.T) {
	ctx := context.Background()
	s := NewOfficeStore()

	b := newOffice("0404", "B")
	a := newOffice("0403", "A")
	require.NoError(t, s.Create(ctx, b))
	require.NoError(t, s.Create(ctx, a))

	require.NoError(t, s.AddMember(ctx, b.OfficeID, 7))
	require.NoError(t, s.AddMember(ctx, a.OfficeID, 7))
	require.NoError(t, s.AddMember(ctx, a.OfficeID, 7))

	offices, err := s.ListByMember(ctx, 7)
	require.NoError(t, err)
	require.Len(t, offices, 2)
	require.Equal(t, "0403", offices[0].Code)
	require.Equal(t, "0404", offices[1].Code)

	offices, err = s.ListByMember(ctx, 8)
	require.NoError(t, err)
	require.Empty(t, offices)

	require.ErrorIs(t, s.AddMember(ctx, uuid.Must(uuid.NewV7()), 7), store.ErrOfficeNotFound)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "0403", all[0].Code)
}
