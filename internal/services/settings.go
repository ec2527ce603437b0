package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wealthywise/internal/core"
	"wealthywise/internal/log"
	"wealthywise/internal/storage"
)

var ErrEmptySiteName = errors.New("site name is required")

// SettingsStore reads and writes the single application settings row.
type SettingsStore struct {
	store storage.Store
	opts  Options
}

func NewSettingsStore(store storage.Store, opts Options) *SettingsStore {
	return &SettingsStore{store: store, opts: opts.withDefaults()}
}

// Load returns the stored settings, or the defaults if the row is missing.
func (s *SettingsStore) Load(ctx context.Context) (core.Settings, error) {
	st, err := s.store.LoadSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return core.DefaultSettings(), nil
	}
	if err != nil {
		return core.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return st, nil
}

// Save validates and writes the settings row. The row key is fixed, so there
// is never more than one.
func (s *SettingsStore) Save(ctx context.Context, st core.Settings) (core.Settings, error) {
	st.SiteName = strings.TrimSpace(st.SiteName)
	st.Currency = strings.ToUpper(strings.TrimSpace(st.Currency))
	if st.SiteName == "" {
		return core.Settings{}, core.Invalid("site_name", ErrEmptySiteName)
	}
	if err := core.ValidateCurrency(st.Currency); err != nil {
		return core.Settings{}, core.Invalid("currency", err)
	}
	st.UpdatedAt = s.opts.now()

	err := runUnit(ctx, s.store, s.opts, log.OpUpdate, func(tx storage.Tx) error {
		return tx.SaveSettings(ctx, st)
	})
	if err != nil {
		return core.Settings{}, err
	}
	return st, nil
}
