// Package memory is an in-process ledger store. Units of work run on a copy
// of the state that replaces the live state only when the unit succeeds.
package memory

import (
	"context"
	"sort"
	"sync"

	"wealthywise/internal/core"
	"wealthywise/internal/storage"
)

type accountRow struct {
	core.Account
	seq int64
}

type transactionRow struct {
	core.Transaction
	seq int64
}

type state struct {
	accounts     map[string]accountRow
	transactions map[string]transactionRow
	budgets      map[string]core.Budget
	profiles     map[string]core.Profile
	settings     core.Settings
	seq          int64
}

func newState() *state {
	return &state{
		accounts:     make(map[string]accountRow),
		transactions: make(map[string]transactionRow),
		budgets:      make(map[string]core.Budget),
		profiles:     make(map[string]core.Profile),
		settings:     core.DefaultSettings(),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:     make(map[string]accountRow, len(s.accounts)),
		transactions: make(map[string]transactionRow, len(s.transactions)),
		budgets:      make(map[string]core.Budget, len(s.budgets)),
		profiles:     make(map[string]core.Profile, len(s.profiles)),
		settings:     s.settings,
		seq:          s.seq,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.budgets {
		c.budgets[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	return c
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

// Store is safe for concurrent use. Units of work are serialized.
type Store struct {
	mu sync.RWMutex
	st *state
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{view{work}}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) read() view {
	return view{s.st}
}

func (s *Store) GetAccount(ctx context.Context, id string) (core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetAccount(ctx, id)
}

func (s *Store) ListAccounts(ctx context.Context, ownerID string, includeInactive bool) ([]core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListAccounts(ctx, ownerID, includeInactive)
}

func (s *Store) ListAccountIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListAccountIDs(ctx)
}

func (s *Store) AccountNumberExists(ctx context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().AccountNumberExists(ctx, number)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetTransaction(ctx, id)
}

func (s *Store) ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListTransactions(ctx, f)
}

func (s *Store) SumTransactions(ctx context.Context, f storage.TransactionFilter) (storage.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().SumTransactions(ctx, f)
}

func (s *Store) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetBudget(ctx, id)
}

func (s *Store) FindBudget(ctx context.Context, ownerID string, category core.Category, month core.Date) (core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindBudget(ctx, ownerID, category, month)
}

func (s *Store) ListBudgets(ctx context.Context, ownerID string, month *core.Date) ([]core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListBudgets(ctx, ownerID, month)
}

func (s *Store) GetProfile(ctx context.Context, userID string) (core.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetProfile(ctx, userID)
}

func (s *Store) LoadSettings(ctx context.Context) (core.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().LoadSettings(ctx)
}

// view reads one state snapshot. Callers hold the store lock.
type view struct {
	st *state
}

func (v view) GetAccount(_ context.Context, id string) (core.Account, error) {
	a, ok := v.st.accounts[id]
	if !ok {
		return core.Account{}, storage.ErrNotFound
	}
	return a.Account, nil
}

func (v view) sortedAccounts() []accountRow {
	rows := make([]accountRow, 0, len(v.st.accounts))
	for _, a := range v.st.accounts {
		rows = append(rows, a)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].seq < rows[j].seq
	})
	return rows
}

func (v view) ListAccounts(_ context.Context, ownerID string, includeInactive bool) ([]core.Account, error) {
	var out []core.Account
	for _, a := range v.sortedAccounts() {
		if a.OwnerID != ownerID || (!includeInactive && !a.IsActive) {
			continue
		}
		out = append(out, a.Account)
	}
	return out, nil
}

func (v view) ListAccountIDs(_ context.Context) ([]string, error) {
	var ids []string
	for _, a := range v.sortedAccounts() {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (v view) AccountNumberExists(_ context.Context, number string) (bool, error) {
	for _, a := range v.st.accounts {
		if a.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (v view) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	t, ok := v.st.transactions[id]
	if !ok {
		return core.Transaction{}, storage.ErrNotFound
	}
	return t.Transaction, nil
}

func matches(t core.Transaction, f storage.TransactionFilter) bool {
	switch {
	case f.OwnerID != "" && t.OwnerID != f.OwnerID:
		return false
	case f.AccountID != "" && t.AccountID != f.AccountID:
		return false
	case f.ToAccountID != "" && t.ToAccountID != f.ToAccountID:
		return false
	case f.Touching != "" && t.AccountID != f.Touching && t.ToAccountID != f.Touching:
		return false
	case f.Type != "" && t.Type != f.Type:
		return false
	case f.Category != "" && t.Category != f.Category:
		return false
	case f.From != nil && t.Date.Before(f.From.Time):
		return false
	case f.Until != nil && !t.Date.Before(f.Until.Time):
		return false
	}
	return true
}

func (v view) ListTransactions(_ context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	var rows []transactionRow
	for _, t := range v.st.transactions {
		if matches(t.Transaction, f) {
			rows = append(rows, t)
		}
	}
	// Newest first, same as the SQL store.
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date.Time) {
			return rows[i].Date.After(rows[j].Date.Time)
		}
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	if f.Limit > 0 && len(rows) > f.Limit {
		rows = rows[:f.Limit]
	}
	out := make([]core.Transaction, len(rows))
	for i, r := range rows {
		out[i] = r.Transaction
	}
	return out, nil
}

func (v view) SumTransactions(_ context.Context, f storage.TransactionFilter) (storage.Totals, error) {
	var totals storage.Totals
	for _, t := range v.st.transactions {
		if matches(t.Transaction, f) {
			totals.Cents += t.Amount.Cents()
			totals.Count++
		}
	}
	return totals, nil
}

func (v view) GetBudget(_ context.Context, id string) (core.Budget, error) {
	b, ok := v.st.budgets[id]
	if !ok {
		return core.Budget{}, storage.ErrNotFound
	}
	return b, nil
}

func (v view) FindBudget(_ context.Context, ownerID string, category core.Category, month core.Date) (core.Budget, error) {
	start := month.MonthStart()
	for _, b := range v.st.budgets {
		if b.OwnerID == ownerID && b.Category == category && b.Month.Equal(start.Time) {
			return b, nil
		}
	}
	return core.Budget{}, storage.ErrNotFound
}

func (v view) ListBudgets(_ context.Context, ownerID string, month *core.Date) ([]core.Budget, error) {
	var out []core.Budget
	for _, b := range v.st.budgets {
		if b.OwnerID != ownerID {
			continue
		}
		if month != nil && !b.Month.Equal(month.MonthStart().Time) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Month.Equal(out[j].Month.Time) {
			return out[i].Month.After(out[j].Month.Time)
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (v view) GetProfile(_ context.Context, userID string) (core.Profile, error) {
	p, ok := v.st.profiles[userID]
	if !ok {
		return core.Profile{}, storage.ErrNotFound
	}
	return p, nil
}

func (v view) LoadSettings(_ context.Context) (core.Settings, error) {
	return v.st.settings, nil
}

// tx writes to the unit's private copy of the state.
type tx struct {
	view
}

func (t *tx) InsertAccount(_ context.Context, a core.Account) error {
	if _, ok := t.st.accounts[a.ID]; ok {
		return &storage.DuplicateError{Key: storage.KeyPrimary}
	}
	for _, other := range t.st.accounts {
		if other.Number == a.Number {
			return &storage.DuplicateError{Key: storage.KeyAccountNumber}
		}
		if other.OwnerID == a.OwnerID && other.Name == a.Name {
			return &storage.DuplicateError{Key: storage.KeyAccountName}
		}
	}
	t.st.accounts[a.ID] = accountRow{Account: a, seq: t.st.next()}
	return nil
}

func (t *tx) UpdateAccount(_ context.Context, a core.Account) error {
	cur, ok := t.st.accounts[a.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if cur.Version != a.Version {
		return storage.ErrConflict
	}
	for id, other := range t.st.accounts {
		if id != a.ID && other.OwnerID == cur.OwnerID && other.Name == a.Name {
			return &storage.DuplicateError{Key: storage.KeyAccountName}
		}
	}
	// Identity columns are immutable.
	a.OwnerID = cur.OwnerID
	a.Number = cur.Number
	a.OpeningBalance = cur.OpeningBalance
	a.CreatedAt = cur.CreatedAt
	a.Version = cur.Version + 1
	t.st.accounts[a.ID] = accountRow{Account: a, seq: cur.seq}
	return nil
}

func (t *tx) DeleteAccount(_ context.Context, id string) error {
	if _, ok := t.st.accounts[id]; !ok {
		return storage.ErrNotFound
	}
	for _, tr := range t.st.transactions {
		if tr.AccountID == id || tr.ToAccountID == id {
			return storage.ErrReferenced
		}
	}
	delete(t.st.accounts, id)
	return nil
}

func (t *tx) InsertTransaction(_ context.Context, tr core.Transaction) error {
	if _, ok := t.st.transactions[tr.ID]; ok {
		return &storage.DuplicateError{Key: storage.KeyPrimary}
	}
	if tr.AccountID != "" {
		if _, ok := t.st.accounts[tr.AccountID]; !ok {
			return storage.ErrReferenced
		}
	}
	if tr.ToAccountID != "" {
		if _, ok := t.st.accounts[tr.ToAccountID]; !ok {
			return storage.ErrReferenced
		}
	}
	t.st.transactions[tr.ID] = transactionRow{Transaction: tr, seq: t.st.next()}
	return nil
}

func (t *tx) DeleteTransaction(_ context.Context, id string) error {
	if _, ok := t.st.transactions[id]; !ok {
		return storage.ErrNotFound
	}
	delete(t.st.transactions, id)
	return nil
}

func (t *tx) DeleteTransactionsBySource(_ context.Context, accountID string) (int, error) {
	n := 0
	for id, tr := range t.st.transactions {
		if tr.AccountID == accountID && tr.Type != core.Transfer {
			delete(t.st.transactions, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) DetachOutgoingTransfers(_ context.Context, accountID string) (int, error) {
	n := 0
	for id, tr := range t.st.transactions {
		if tr.AccountID == accountID && tr.Type == core.Transfer {
			tr.AccountID = ""
			t.st.transactions[id] = tr
			n++
		}
	}
	return n, nil
}

func (t *tx) DetachIncomingTransfers(_ context.Context, accountID string) (int, error) {
	n := 0
	for id, tr := range t.st.transactions {
		if tr.ToAccountID == accountID {
			tr.ToAccountID = ""
			tr.ToBalanceAfter = nil
			t.st.transactions[id] = tr
			n++
		}
	}
	return n, nil
}

func (t *tx) PurgeDetachedTransfers(_ context.Context) (int, error) {
	n := 0
	for id, tr := range t.st.transactions {
		if tr.Type == core.Transfer && tr.AccountID == "" && tr.ToAccountID == "" {
			delete(t.st.transactions, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) InsertBudget(_ context.Context, b core.Budget) error {
	if _, ok := t.st.budgets[b.ID]; ok {
		return &storage.DuplicateError{Key: storage.KeyPrimary}
	}
	b.Month = b.Month.MonthStart()
	for _, other := range t.st.budgets {
		if other.OwnerID == b.OwnerID && other.Category == b.Category && other.Month.Equal(b.Month.Time) {
			return &storage.DuplicateError{Key: storage.KeyBudget}
		}
	}
	t.st.budgets[b.ID] = b
	return nil
}

func (t *tx) UpdateBudget(_ context.Context, b core.Budget) error {
	cur, ok := t.st.budgets[b.ID]
	if !ok {
		return storage.ErrNotFound
	}
	cur.Amount = b.Amount
	cur.UpdatedAt = b.UpdatedAt
	t.st.budgets[b.ID] = cur
	return nil
}

func (t *tx) DeleteBudget(_ context.Context, id string) error {
	if _, ok := t.st.budgets[id]; !ok {
		return storage.ErrNotFound
	}
	delete(t.st.budgets, id)
	return nil
}

func (t *tx) InsertProfile(_ context.Context, p core.Profile) error {
	if _, ok := t.st.profiles[p.UserID]; ok {
		return &storage.DuplicateError{Key: storage.KeyProfile}
	}
	t.st.profiles[p.UserID] = p
	return nil
}

func (t *tx) SaveSettings(_ context.Context, s core.Settings) error {
	t.st.settings = s
	return nil
}
