package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wealthywise/internal/core"
)

func TestSettingsStore_LoadAndSave(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		s := NewSettingsStore(f.store, f.opts)

		st, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "WealthyWise", st.SiteName)
		assert.Equal(t, core.DefaultCurrency, st.Currency)

		saved, err := s.Save(ctx, core.Settings{SiteName: " Household ", Currency: "usd", MaintenanceMode: true})
		require.NoError(t, err)
		assert.Equal(t, "Household", saved.SiteName)
		assert.Equal(t, "USD", saved.Currency)

		st, err = s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Household", st.SiteName)
		assert.Equal(t, "USD", st.Currency)
		assert.True(t, st.MaintenanceMode)
	})
}

func TestSettingsStore_Validation(t *testing.T) {
	f := newFixture(nil)
	s := NewSettingsStore(f.store, f.opts)

	_, err := s.Save(context.Background(), core.Settings{SiteName: " ", Currency: "NGN"})
	assert.ErrorIs(t, err, ErrEmptySiteName)

	_, err = s.Save(context.Background(), core.Settings{SiteName: "X", Currency: "NAIRA"})
	assert.True(t, core.IsValidation(err))
	assert.ErrorIs(t, err, core.ErrInvalidCurrency)
}
