package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wealthywise/internal/core"
	"wealthywise/internal/storage"
	"wealthywise/internal/storage/memory"
)

func TestLedger_ExpenseUpdatesBalanceAndSnapshot(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		a := f.newAccount(t, "u1", "Main", "1000.00")

		tr := f.commit(t, CommitRequest{
			AccountID: a.ID,
			Type:      core.Expense,
			Amount:    dec("200.00"),
			Date:      day(2025, 3, 10),
			Category:  core.CategoryFood,
		})

		assert.Equal(t, "800.00", tr.BalanceAfter.String())
		assert.Equal(t, "800.00", f.balance(t, a.ID))
		assert.Equal(t, "u1", tr.OwnerID, "owner defaults to the account's")
		assert.Equal(t, "NGN", tr.Amount.Currency)
		assert.Nil(t, tr.ToBalanceAfter)

		stored, err := f.ledger.Get(context.Background(), "u1", tr.ID)
		require.NoError(t, err)
		assert.Equal(t, "800.00", stored.BalanceAfter.String())
		assert.Equal(t, day(2025, 3, 10).String(), stored.Date.String())

		acc, err := f.registry.Get(context.Background(), "u1", a.ID)
		require.NoError(t, err)
		require.NotNil(t, acc.LastTransactionDate)
		assert.True(t, acc.LastTransactionDate.Equal(fixedNow))
	})
}

func TestLedger_TransferMovesFundsInOneRow(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		a := f.newAccount(t, "u1", "A", "800.00")
		b := f.newAccount(t, "u1", "B", "500.00")

		tr := f.commit(t, CommitRequest{
			AccountID:   a.ID,
			ToAccountID: b.ID,
			Type:        core.Transfer,
			Amount:      dec("300.00"),
		})

		assert.Equal(t, "500.00", f.balance(t, a.ID))
		assert.Equal(t, "800.00", f.balance(t, b.ID))
		assert.Equal(t, "500.00", tr.BalanceAfter.String())
		require.NotNil(t, tr.ToBalanceAfter)
		assert.Equal(t, "800.00", tr.ToBalanceAfter.String())
		assert.Equal(t, 1, f.countTransactions(t, storage.TransactionFilter{OwnerID: "u1", Type: core.Transfer}))
	})
}

func TestLedger_SelfTransferRejected(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		a := f.newAccount(t, "u1", "A", "100.00")
		before := f.countTransactions(t, storage.TransactionFilter{OwnerID: "u1"})

		_, err := f.ledger.Commit(context.Background(), CommitRequest{
			AccountID:   a.ID,
			ToAccountID: a.ID,
			Type:        core.Transfer,
			Amount:      dec("10"),
		})

		require.Error(t, err)
		assert.True(t, core.IsValidation(err))
		assert.ErrorIs(t, err, core.ErrSelfTransfer)
		assert.Equal(t, "100.00", f.balance(t, a.ID))
		assert.Equal(t, before, f.countTransactions(t, storage.TransactionFilter{OwnerID: "u1"}))
	})
}

func TestLedger_RejectsInvalidRequests(t *testing.T) {
	f := newFixture(memory.New())
	a := f.newAccount(t, "u1", "A", "100.00")
	b := f.newAccount(t, "u1", "B", "0")

	tests := []struct {
		name string
		req  CommitRequest
		want error
	}{
		{"zero amount", CommitRequest{AccountID: a.ID, Type: core.Expense, Amount: dec("0")}, core.ErrInvalidAmount},
		{"negative amount", CommitRequest{AccountID: a.ID, Type: core.Income, Amount: dec("-5")}, core.ErrInvalidAmount},
		{"three decimals", CommitRequest{AccountID: a.ID, Type: core.Income, Amount: dec("1.234")}, core.ErrAmountPrecision},
		{"too many digits", CommitRequest{AccountID: a.ID, Type: core.Income, Amount: dec("100000000")}, core.ErrAmountTooLarge},
		{"missing account", CommitRequest{Type: core.Income, Amount: dec("1")}, core.ErrMissingAccount},
		{"bad type", CommitRequest{AccountID: a.ID, Type: "refund", Amount: dec("1")}, core.ErrInvalidType},
		{"transfer without destination", CommitRequest{AccountID: a.ID, Type: core.Transfer, Amount: dec("1")}, core.ErrMissingDestination},
		{"destination on expense", CommitRequest{AccountID: a.ID, ToAccountID: b.ID, Type: core.Expense, Amount: dec("1")}, core.ErrUnexpectedDest},
		{"bad category", CommitRequest{AccountID: a.ID, Type: core.Expense, Amount: dec("1"), Category: "pets"}, core.ErrInvalidCategory},
		{"bad frequency", CommitRequest{AccountID: a.ID, Type: core.Expense, Amount: dec("1"), RecurrenceFrequency: "hourly"}, core.ErrInvalidFrequency},
		{"overdraft", CommitRequest{AccountID: a.ID, Type: core.Expense, Amount: dec("100.01")}, core.ErrNegativeBalance},
		{"overdraft by transfer", CommitRequest{AccountID: a.ID, ToAccountID: b.ID, Type: core.Transfer, Amount: dec("150")}, core.ErrNegativeBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.Commit(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, core.IsValidation(err), "got %v", err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, "100.00", f.balance(t, a.ID))
			assert.Equal(t, "0.00", f.balance(t, b.ID))
		})
	}
}

func TestLedger_NotFound(t *testing.T) {
	f := newFixture(memory.New())
	a := f.newAccount(t, "u1", "A", "100.00")
	other := f.newAccount(t, "u2", "Other", "0")

	_, err := f.ledger.Commit(context.Background(), CommitRequest{AccountID: "missing", Type: core.Income, Amount: dec("1")})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.ledger.Commit(context.Background(), CommitRequest{OwnerID: "u2", AccountID: a.ID, Type: core.Income, Amount: dec("1")})
	assert.ErrorIs(t, err, core.ErrNotFound, "account of another user")

	_, err = f.ledger.Commit(context.Background(), CommitRequest{
		AccountID: a.ID, ToAccountID: other.ID, Type: core.Transfer, Amount: dec("1"),
	})
	assert.ErrorIs(t, err, core.ErrNotFound, "destination of another user")
	assert.Equal(t, "100.00", f.balance(t, a.ID))

	_, err = f.ledger.Get(context.Background(), "u1", "missing")
	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "transaction", nf.Entity)
}

func TestLedger_CurrencyMismatch(t *testing.T) {
	f := newFixture(memory.New())
	a := f.newAccount(t, "u1", "Naira", "100.00")
	usd, err := f.registry.Create(context.Background(), CreateAccountParams{OwnerID: "u1", Name: "Dollars", Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, "USD", usd.Currency)

	_, err = f.ledger.Commit(context.Background(), CommitRequest{
		AccountID: a.ID, ToAccountID: usd.ID, Type: core.Transfer, Amount: dec("10"),
	})
	assert.ErrorIs(t, err, core.ErrCurrencyMismatch)
	assert.Equal(t, "100.00", f.balance(t, a.ID))
}

func TestLedger_Defaults(t *testing.T) {
	f := newFixture(memory.New())
	a := f.newAccount(t, "u1", "A", "0")

	tr := f.commit(t, CommitRequest{AccountID: a.ID, Type: core.Income, Amount: dec("5"), Description: "  tip  "})

	assert.Equal(t, core.CategoryOther, tr.Category)
	assert.Equal(t, "2025-03-15", tr.Date.String())
	assert.Equal(t, "tip", tr.Description)
}

func TestLedger_TransferIsAtomicWhenDestinationWriteFails(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		a := f.newAccount(t, "u1", "A", "800.00")
		b := f.newAccount(t, "u1", "B", "500.00")

		faulty := &faultyStore{Store: f.store, failUpdate: b.ID}
		ledger := NewLedger(faulty, f.opts)

		_, err := ledger.Commit(context.Background(), CommitRequest{
			AccountID: a.ID, ToAccountID: b.ID, Type: core.Transfer, Amount: dec("300"),
		})

		require.Error(t, err)
		assert.True(t, core.IsIntegrity(err))
		assert.ErrorIs(t, err, errInjected)
		assert.Equal(t, "800.00", f.balance(t, a.ID))
		assert.Equal(t, "500.00", f.balance(t, b.ID))
		assert.Zero(t, f.countTransactions(t, storage.TransactionFilter{Type: core.Transfer}))
	})
}

func TestLedger_RetriesVersionConflicts(t *testing.T) {
	f := newFixture(memory.New())
	a := f.newAccount(t, "u1", "A", "10.00")

	faulty := &faultyStore{Store: f.store, conflicts: 2}
	tr, err := NewLedger(faulty, f.opts).Commit(context.Background(), CommitRequest{
		AccountID: a.ID, Type: core.Income, Amount: dec("5"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, faulty.units)
	assert.Equal(t, "15.00", tr.BalanceAfter.String())
	assert.Equal(t, "15.00", f.balance(t, a.ID))

	always := &faultyStore{Store: f.store, conflicts: -1}
	opts := f.opts
	opts.MaxRetries = 3
	_, err = NewLedger(always, opts).Commit(context.Background(), CommitRequest{
		AccountID: a.ID, Type: core.Income, Amount: dec("5"),
	})
	require.Error(t, err)
	assert.True(t, core.IsIntegrity(err))
	assert.ErrorIs(t, err, core.ErrConcurrentUpdate)
	assert.Equal(t, 4, always.units)
	assert.Equal(t, "15.00", f.balance(t, a.ID))
}

func TestLedger_ConcurrentCommitsLoseNoUpdates(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		a := f.newAccount(t, "u1", "A", "1000.00")
		b := f.newAccount(t, "u1", "B", "0")

		const workers = 20
		var wg sync.WaitGroup
		errs := make(chan error, workers*2)
		for i := 0; i < workers; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := f.ledger.Commit(context.Background(), CommitRequest{
					AccountID: a.ID, Type: core.Expense, Amount: dec("10"),
				})
				errs <- err
			}()
			go func() {
				defer wg.Done()
				_, err := f.ledger.Commit(context.Background(), CommitRequest{
					AccountID: a.ID, ToAccountID: b.ID, Type: core.Transfer, Amount: dec("5"),
				})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		assert.Equal(t, "700.00", f.balance(t, a.ID))
		assert.Equal(t, "100.00", f.balance(t, b.ID))

		for _, id := range []string{a.ID, b.ID} {
			d, err := f.reconciler.Check(context.Background(), id)
			require.NoError(t, err)
			assert.False(t, d.HasDrift(), "account %s drifted: %s", id, d.Difference())
		}
	})
}

func TestLedger_PublishesAfterCommit(t *testing.T) {
	f := newFixture(memory.New())
	pub := &recordingPublisher{err: errInjected}
	opts := f.opts
	opts.Publisher = pub
	ledger := NewLedger(f.store, opts)
	a := f.newAccount(t, "u1", "A", "0")

	tr, err := ledger.Commit(context.Background(), CommitRequest{AccountID: a.ID, Type: core.Income, Amount: dec("1")})
	require.NoError(t, err, "publish failures do not fail the commit")
	require.Len(t, pub.published, 1)
	assert.Equal(t, tr.ID, pub.published[0].ID)

	_, err = ledger.Commit(context.Background(), CommitRequest{AccountID: a.ID, Type: core.Expense, Amount: dec("5")})
	require.Error(t, err)
	assert.Len(t, pub.published, 1, "nothing is published for a rejected commit")
}

func TestLedger_DeleteReversesEffect(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		a := f.newAccount(t, "u1", "A", "1000.00")
		b := f.newAccount(t, "u1", "B", "0")

		exp := f.commit(t, CommitRequest{AccountID: a.ID, Type: core.Expense, Amount: dec("200")})
		tr := f.commit(t, CommitRequest{AccountID: a.ID, ToAccountID: b.ID, Type: core.Transfer, Amount: dec("300")})
		spend := f.commit(t, CommitRequest{AccountID: b.ID, Type: core.Expense, Amount: dec("250")})

		err := f.ledger.Delete(ctx, "u1", tr.ID)
		assert.ErrorIs(t, err, core.ErrNegativeBalance, "B has already spent the transfer")
		assert.Equal(t, "50.00", f.balance(t, b.ID))

		assert.ErrorIs(t, f.ledger.Delete(ctx, "u2", exp.ID), core.ErrNotFound)

		require.NoError(t, f.ledger.Delete(ctx, "u1", spend.ID))
		require.NoError(t, f.ledger.Delete(ctx, "u1", tr.ID))
		require.NoError(t, f.ledger.Delete(ctx, "u1", exp.ID))

		assert.Equal(t, "1000.00", f.balance(t, a.ID))
		assert.Equal(t, "0.00", f.balance(t, b.ID))
		_, err = f.ledger.Get(ctx, "u1", exp.ID)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestLedger_ListFilters(t *testing.T) {
	f := newFixture(memory.New())
	ctx := context.Background()
	a := f.newAccount(t, "u1", "A", "100.00")
	f.newAccount(t, "u2", "A", "100.00")
	f.commit(t, CommitRequest{AccountID: a.ID, Type: core.Expense, Amount: dec("1"), Category: core.CategoryFood, Date: day(2025, 2, 1)})
	f.commit(t, CommitRequest{AccountID: a.ID, Type: core.Expense, Amount: dec("2"), Category: core.CategoryRent, Date: day(2025, 3, 1)})

	all, err := f.ledger.List(ctx, "u1", storage.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	march := day(2025, 3, 1)
	food, err := f.ledger.List(ctx, "u1", storage.TransactionFilter{Type: core.Expense, Until: &march})
	require.NoError(t, err)
	require.Len(t, food, 1)
	assert.Equal(t, core.CategoryFood, food[0].Category)
}
