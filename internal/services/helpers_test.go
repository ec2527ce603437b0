package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"wealthywise/internal/core"
	"wealthywise/internal/log"
	"wealthywise/internal/storage"
	"wealthywise/internal/storage/memory"
)

var fixedNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

var errInjected = errors.New("injected failure")

type fixture struct {
	store      storage.Store
	opts       Options
	registry   *Registry
	ledger     *Ledger
	reconciler *Reconciler
	budgets    *Budgets
	summaries  *Summaries
}

func newFixture(store storage.Store) *fixture {
	opts := Options{
		Logger: log.Discard(),
		Now:    func() time.Time { return fixedNow },
	}
	return &fixture{
		store:      store,
		opts:       opts,
		registry:   NewRegistry(store, opts),
		ledger:     NewLedger(store, opts),
		reconciler: NewReconciler(store, opts, 2),
		budgets:    NewBudgets(store, opts),
		summaries:  NewSummaries(store, opts),
	}
}

// eachStore runs fn against the SQLite store and the memory store.
func eachStore(t *testing.T, fn func(t *testing.T, f *fixture)) {
	t.Run("sqlite", func(t *testing.T) {
		repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		t.Cleanup(func() { repo.Close() })
		fn(t, newFixture(repo))
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, newFixture(memory.New()))
	})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y, m, d int) core.Date {
	return core.NewDate(y, m, d)
}

func (f *fixture) newAccount(t *testing.T, owner, name, balance string) core.Account {
	t.Helper()
	a, err := f.registry.Create(context.Background(), CreateAccountParams{
		OwnerID:        owner,
		Name:           name,
		Type:           core.AccountBank,
		InitialBalance: dec(balance),
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) commit(t *testing.T, req CommitRequest) core.Transaction {
	t.Helper()
	tr, err := f.ledger.Commit(context.Background(), req)
	require.NoError(t, err)
	return tr
}

func (f *fixture) balance(t *testing.T, id string) string {
	t.Helper()
	a, err := f.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a.Balance.String()
}

func (f *fixture) countTransactions(t *testing.T, filter storage.TransactionFilter) int {
	t.Helper()
	ts, err := f.store.ListTransactions(context.Background(), filter)
	require.NoError(t, err)
	return len(ts)
}

// faultyStore injects failures into units of work.
type faultyStore struct {
	storage.Store

	mu sync.Mutex
	// failUpdate makes UpdateAccount fail for this account id.
	failUpdate string
	// conflicts is how many units fail with ErrConflict before running; -1
	// means every unit.
	conflicts int
	units     int
}

func (s *faultyStore) WithTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	s.units++
	conflict := s.conflicts < 0 || s.units <= s.conflicts
	s.mu.Unlock()
	if conflict {
		return storage.ErrConflict
	}
	return s.Store.WithTx(ctx, func(tx storage.Tx) error {
		return fn(faultyTx{Tx: tx, failUpdate: s.failUpdate})
	})
}

type faultyTx struct {
	storage.Tx
	failUpdate string
}

func (t faultyTx) UpdateAccount(ctx context.Context, a core.Account) error {
	if a.ID == t.failUpdate {
		return errInjected
	}
	return t.Tx.UpdateAccount(ctx, a)
}

// brokenReader fails every aggregate query.
type brokenReader struct {
	storage.Reader
}

func (brokenReader) SumTransactions(context.Context, storage.TransactionFilter) (storage.Totals, error) {
	return storage.Totals{}, errInjected
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []core.Transaction
	err       error
}

func (p *recordingPublisher) PublishTransactionCommitted(_ context.Context, t core.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, t)
	return p.err
}
