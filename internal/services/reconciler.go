package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"wealthywise/internal/core"
	"wealthywise/internal/log"
	"wealthywise/internal/storage"
)

// DefaultReconcileConcurrency bounds RecalculateMany.
const DefaultReconcileConcurrency = 4

// Reconciler recomputes balances from transaction history.
type Reconciler struct {
	store       storage.Store
	opts        Options
	log         *log.Logger
	concurrency int
}

func NewReconciler(store storage.Store, opts Options, concurrency int) *Reconciler {
	opts = opts.withDefaults()
	if concurrency <= 0 {
		concurrency = DefaultReconcileConcurrency
	}
	return &Reconciler{
		store:       store,
		opts:        opts,
		log:         opts.Logger.WithComponent(log.ComponentReconciler),
		concurrency: concurrency,
	}
}

// derivedBalance is opening balance + income - expense - outgoing transfers
// + incoming transfers.
func derivedBalance(ctx context.Context, r storage.Reader, a core.Account) (core.Money, error) {
	filters := []struct {
		sign int64
		f    storage.TransactionFilter
	}{
		{+1, storage.TransactionFilter{AccountID: a.ID, Type: core.Income}},
		{-1, storage.TransactionFilter{AccountID: a.ID, Type: core.Expense}},
		{-1, storage.TransactionFilter{AccountID: a.ID, Type: core.Transfer}},
		{+1, storage.TransactionFilter{ToAccountID: a.ID, Type: core.Transfer}},
	}
	cents := a.OpeningBalance.Cents()
	for _, x := range filters {
		c, err := sumCents(ctx, r, x.f)
		if err != nil {
			return core.Money{}, fmt.Errorf("sum %s transactions of %s: %w", x.f.Type, a.ID, err)
		}
		cents += x.sign * c
	}
	return core.FromCents(cents, a.Currency), nil
}

// Recalculate overwrites the account's stored balance with the one derived
// from its history and returns it. Running it twice in a row is a no-op.
func (r *Reconciler) Recalculate(ctx context.Context, accountID string) (core.Money, error) {
	rec, err := r.reconcile(ctx, accountID)
	if err != nil {
		return core.Money{}, err
	}
	return rec.Balance, nil
}

func (r *Reconciler) reconcile(ctx context.Context, accountID string) (core.Reconciliation, error) {
	var rec core.Reconciliation
	err := runUnit(ctx, r.store, r.opts, log.OpReconcile, func(tx storage.Tx) error {
		a, err := loadAccount(ctx, tx, accountID, "")
		if err != nil {
			return err
		}
		balance, err := derivedBalance(ctx, tx, a)
		if err != nil {
			return err
		}
		rec = core.Reconciliation{AccountID: a.ID, Previous: a.Balance, Balance: balance}
		if a.Balance.Equal(balance) {
			return nil
		}
		a.Balance = balance
		a.UpdatedAt = r.opts.now()
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return fmt.Errorf("update account %s: %w", a.ID, err)
		}
		return nil
	})
	if err != nil {
		return core.Reconciliation{AccountID: accountID, Err: err}, err
	}

	if rec.Corrected() {
		r.log.WarnContext(ctx, "Corrected balance drift",
			log.FieldAccountID, rec.AccountID,
			"previous", rec.Previous.String(),
			log.FieldBalance, rec.Balance.String())
	}
	if rec.Balance.IsNegative() {
		r.log.WarnContext(ctx, "Recalculated balance is negative",
			log.FieldAccountID, rec.AccountID,
			log.FieldBalance, rec.Balance.String())
	}
	return rec, nil
}

// Check compares the stored balance with the derived one without writing.
// The account and its sums are read in one unit so a concurrent commit is
// either fully visible or not at all.
func (r *Reconciler) Check(ctx context.Context, accountID string) (core.Drift, error) {
	var drift core.Drift
	err := r.store.WithTx(ctx, func(tx storage.Tx) error {
		a, err := loadAccount(ctx, tx, accountID, "")
		if err != nil {
			return err
		}
		derived, err := derivedBalance(ctx, tx, a)
		if err != nil {
			return err
		}
		drift = core.Drift{AccountID: a.ID, Stored: a.Balance, Recalculated: derived}
		return nil
	})
	if err != nil {
		return core.Drift{}, err
	}
	return drift, nil
}

// RecalculateMany reconciles each account independently. Per-account
// failures are reported in the results; the error is only set when ctx ends.
func (r *Reconciler) RecalculateMany(ctx context.Context, ids []string) ([]core.Reconciliation, error) {
	results := make([]core.Reconciliation, len(ids))
	err := r.each(ctx, ids, func(ctx context.Context, i int, id string) {
		results[i], _ = r.reconcile(ctx, id)
	})
	return results, err
}

// CheckMany is the read-only form of RecalculateMany.
func (r *Reconciler) CheckMany(ctx context.Context, ids []string) ([]core.Drift, []error, error) {
	drifts := make([]core.Drift, len(ids))
	errs := make([]error, len(ids))
	err := r.each(ctx, ids, func(ctx context.Context, i int, id string) {
		drifts[i], errs[i] = r.Check(ctx, id)
		drifts[i].AccountID = id
	})
	return drifts, errs, err
}

// AllAccountIDs lists every account in the store.
func (r *Reconciler) AllAccountIDs(ctx context.Context) ([]string, error) {
	ids, err := r.store.ListAccountIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list account ids: %w", err)
	}
	return ids, nil
}

func (r *Reconciler) each(ctx context.Context, ids []string, fn func(ctx context.Context, i int, id string)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(gctx, i, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
