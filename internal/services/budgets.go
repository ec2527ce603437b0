package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"wealthywise/internal/core"
	"wealthywise/internal/log"
	"wealthywise/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// Budgets stores monthly category budgets and reports spend against them.
// Reports only read the transaction history.
type Budgets struct {
	store storage.Store
	opts  Options
	log   *log.Logger
}

func NewBudgets(store storage.Store, opts Options) *Budgets {
	opts = opts.withDefaults()
	return &Budgets{
		store: store,
		opts:  opts,
		log:   opts.Logger.WithComponent(log.ComponentBudgets),
	}
}

// Upsert sets the budget for (owner, category, month). The month is
// normalised to its first day. created reports whether a row was inserted.
func (b *Budgets) Upsert(ctx context.Context, ownerID string, category core.Category, month core.Date, amount decimal.Decimal) (core.Budget, bool, error) {
	now := b.opts.now()
	budget := core.Budget{
		OwnerID:   ownerID,
		Category:  category,
		Amount:    core.NewMoney(amount, b.opts.Settings.Currency),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !month.IsZero() {
		budget.Month = month.MonthStart()
	}
	if err := budget.Validate(); err != nil {
		return core.Budget{}, false, err
	}

	var (
		out     core.Budget
		created bool
	)
	err := runUnit(ctx, b.store, b.opts, log.OpUpdate, func(tx storage.Tx) error {
		existing, err := tx.FindBudget(ctx, ownerID, category, budget.Month)
		switch {
		case err == nil:
			existing.Amount = core.NewMoney(amount, existing.Amount.Currency)
			existing.UpdatedAt = now
			if err := tx.UpdateBudget(ctx, existing); err != nil {
				return fmt.Errorf("update budget: %w", err)
			}
			out, created = existing, false
			return nil
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("find budget: %w", err)
		}

		budget.ID = b.opts.NewID()
		if err := tx.InsertBudget(ctx, budget); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				// Inserted concurrently: retry as an update.
				return storage.ErrConflict
			}
			return fmt.Errorf("insert budget: %w", err)
		}
		out, created = budget, true
		return nil
	})
	return out, created, err
}

// Delete removes one of ownerID's budgets.
func (b *Budgets) Delete(ctx context.Context, ownerID, id string) error {
	return runUnit(ctx, b.store, b.opts, log.OpDelete, func(tx storage.Tx) error {
		if _, err := loadBudget(ctx, tx, id, ownerID); err != nil {
			return err
		}
		if err := tx.DeleteBudget(ctx, id); err != nil {
			return fmt.Errorf("delete budget %s: %w", id, err)
		}
		return nil
	})
}

func loadBudget(ctx context.Context, r storage.Reader, id, owner string) (core.Budget, error) {
	bg, err := r.GetBudget(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Budget{}, &core.NotFoundError{Entity: "budget", ID: id}
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget %s: %w", id, err)
	}
	if owner != "" && bg.OwnerID != owner {
		return core.Budget{}, &core.NotFoundError{Entity: "budget", ID: id}
	}
	return bg, nil
}

// Get returns one of ownerID's budgets.
func (b *Budgets) Get(ctx context.Context, ownerID, id string) (core.Budget, error) {
	return loadBudget(ctx, b.store, id, ownerID)
}

// spent sums the owner's expenses in the budget's category and month.
func (b *Budgets) spent(ctx context.Context, bg core.Budget) (core.Money, error) {
	from, until := bg.Month, bg.Month.NextMonth()
	cents, err := sumCents(ctx, b.store, storage.TransactionFilter{
		OwnerID:  bg.OwnerID,
		Type:     core.Expense,
		Category: bg.Category,
		From:     &from,
		Until:    &until,
	})
	if err != nil {
		return core.Money{}, fmt.Errorf("sum spend for budget %s: %w", bg.ID, err)
	}
	return core.FromCents(cents, bg.Amount.Currency), nil
}

// percentageUsed is spent/amount*100 rounded to 2 places, 0 for a zero
// budget. It is not capped at 100.
func percentageUsed(spent, amount core.Money) decimal.Decimal {
	if amount.IsZero() {
		return decimal.Zero
	}
	return spent.Amount.Div(amount.Amount).Mul(hundred).Round(2)
}

func (b *Budgets) status(ctx context.Context, bg core.Budget) (core.BudgetStatus, error) {
	spent, err := b.spent(ctx, bg)
	if err != nil {
		return core.BudgetStatus{}, err
	}
	return core.BudgetStatus{
		Budget:         bg,
		Spent:          spent,
		Remaining:      bg.Amount.Sub(spent),
		PercentageUsed: percentageUsed(spent, bg.Amount),
		OverBudget:     spent.Cmp(bg.Amount) > 0,
	}, nil
}

// Status returns a budget with its spend figures.
func (b *Budgets) Status(ctx context.Context, ownerID, id string) (core.BudgetStatus, error) {
	bg, err := loadBudget(ctx, b.store, id, ownerID)
	if err != nil {
		return core.BudgetStatus{}, err
	}
	return b.status(ctx, bg)
}

func (b *Budgets) SpentAmount(ctx context.Context, ownerID, id string) (core.Money, error) {
	st, err := b.Status(ctx, ownerID, id)
	return st.Spent, err
}

func (b *Budgets) RemainingAmount(ctx context.Context, ownerID, id string) (core.Money, error) {
	st, err := b.Status(ctx, ownerID, id)
	return st.Remaining, err
}

func (b *Budgets) PercentageUsed(ctx context.Context, ownerID, id string) (decimal.Decimal, error) {
	st, err := b.Status(ctx, ownerID, id)
	return st.PercentageUsed, err
}

// List returns ownerID's budgets with spend, for one month or all months.
func (b *Budgets) List(ctx context.Context, ownerID string, month *core.Date) ([]core.BudgetStatus, error) {
	if month != nil {
		m := month.MonthStart()
		month = &m
	}
	bgs, err := b.store.ListBudgets(ctx, ownerID, month)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	out := make([]core.BudgetStatus, 0, len(bgs))
	for _, bg := range bgs {
		st, err := b.status(ctx, bg)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// MonthReport lists every budget of a month with totals.
func (b *Budgets) MonthReport(ctx context.Context, ownerID string, month core.Date) (core.MonthReport, error) {
	if month.IsZero() {
		month = b.opts.today()
	}
	month = month.MonthStart()
	sts, err := b.List(ctx, ownerID, &month)
	if err != nil {
		return core.MonthReport{}, err
	}

	cur := b.opts.Settings.Currency
	rep := core.MonthReport{
		Month:          month,
		Budgets:        sts,
		TotalBudget:    core.Zero(cur),
		TotalSpent:     core.Zero(cur),
		TotalRemaining: core.Zero(cur),
	}
	for _, st := range sts {
		rep.TotalBudget = rep.TotalBudget.Add(st.Budget.Amount)
		rep.TotalSpent = rep.TotalSpent.Add(st.Spent)
	}
	rep.TotalRemaining = rep.TotalBudget.Sub(rep.TotalSpent)
	return rep, nil
}

// History returns total budgeted against total expense, across all
// categories, for the last n months ending with the current one, oldest
// first.
func (b *Budgets) History(ctx context.Context, ownerID string, n int) ([]core.HistoryPoint, error) {
	if n <= 0 {
		return nil, nil
	}
	cur := b.opts.Settings.Currency
	thisMonth := b.opts.today().MonthStart()

	out := make([]core.HistoryPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		m := thisMonth.AddMonths(-i)
		next := m.NextMonth()

		bgs, err := b.store.ListBudgets(ctx, ownerID, &m)
		if err != nil {
			return nil, fmt.Errorf("list budgets for %s: %w", m, err)
		}
		total := core.Zero(cur)
		for _, bg := range bgs {
			total = total.Add(bg.Amount)
		}

		cents, err := sumCents(ctx, b.store, storage.TransactionFilter{
			OwnerID: ownerID, Type: core.Expense, From: &m, Until: &next,
		})
		if err != nil {
			return nil, fmt.Errorf("sum spend for %s: %w", m, err)
		}
		out = append(out, core.HistoryPoint{Month: m, TotalBudget: total, TotalSpent: core.FromCents(cents, cur)})
	}
	return out, nil
}
