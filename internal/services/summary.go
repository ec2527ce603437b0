package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"wealthywise/internal/core"
	"wealthywise/internal/log"
	"wealthywise/internal/storage"
)

// Expenditure ratings by expense/income ratio.
const (
	RatingNoIncome = "No income data"
	RatingStrong   = "Strong savings habits"
	RatingBalanced = "Balanced spending and saving"
	RatingHigh     = "High expenses compared to income"
)

// PatternMonths is how many months the spending pattern covers.
const PatternMonths = 6

const topCategoryCount = 5

// SummaryRange bounds a summary by transaction date. Both ends are inclusive
// and optional.
type SummaryRange struct {
	From *core.Date
	To   *core.Date
}

// IsZero reports whether the range is unbounded.
func (r SummaryRange) IsZero() bool {
	return r.From == nil && r.To == nil
}

// Summaries computes dashboard figures over accounts and transactions.
type Summaries struct {
	store storage.Reader
	opts  Options
	log   *log.Logger
}

func NewSummaries(store storage.Reader, opts Options) *Summaries {
	opts = opts.withDefaults()
	return &Summaries{
		store: store,
		opts:  opts,
		log:   opts.Logger.WithComponent(log.ComponentSummary),
	}
}

// TransactionSummary never fails. When the figures cannot be computed it
// logs the cause and returns a zeroed summary with Available unset.
func (s *Summaries) TransactionSummary(ctx context.Context, ownerID string, rng SummaryRange) core.Summary {
	sum, err := s.summarize(ctx, ownerID, rng)
	if err != nil {
		s.log.WarnContext(ctx, "Transaction summary unavailable", log.NewFields().
			WithUser(ownerID).
			WithError(err).
			ToSlice()...)
		return core.ZeroSummary(s.opts.Settings.Currency)
	}
	return sum
}

func (s *Summaries) summarize(ctx context.Context, ownerID string, rng SummaryRange) (core.Summary, error) {
	accounts, err := s.store.ListAccounts(ctx, ownerID, false)
	if err != nil {
		return core.Summary{}, fmt.Errorf("list accounts: %w", err)
	}
	cur := s.opts.Settings.Currency
	if len(accounts) > 0 {
		cur = accounts[0].Currency
	}

	sum := core.ZeroSummary(cur)
	sum.AccountCount = len(accounts)
	for _, a := range accounts {
		sum.TotalBalance = sum.TotalBalance.Add(a.Balance)
	}

	f := storage.TransactionFilter{OwnerID: ownerID, From: rng.From}
	if rng.To != nil {
		until := core.Date{Time: rng.To.AddDate(0, 0, 1)}
		f.Until = &until
	}
	totals := make(map[core.TransactionType]storage.Totals, len(core.TransactionTypes))
	for _, typ := range core.TransactionTypes {
		f.Type = typ
		t, err := s.store.SumTransactions(ctx, f)
		if err != nil {
			return core.Summary{}, fmt.Errorf("sum %s transactions: %w", typ, err)
		}
		totals[typ] = t
		sum.TransactionCount += t.Count
	}

	sum.IncomeTotal = core.FromCents(totals[core.Income].Cents, cur)
	sum.ExpenseTotal = core.FromCents(totals[core.Expense].Cents, cur)
	sum.TransferTotal = core.FromCents(totals[core.Transfer].Cents, cur)
	sum.NetFlow = sum.IncomeTotal.Sub(sum.ExpenseTotal)
	sum.Available = true
	return sum, nil
}

// Insights derives savings and spending figures for one month. A zero month
// means the current one.
func (s *Summaries) Insights(ctx context.Context, ownerID string, month core.Date) (core.Insights, error) {
	if month.IsZero() {
		month = s.opts.today()
	}
	month = month.MonthStart()

	accounts, err := s.store.ListAccounts(ctx, ownerID, false)
	if err != nil {
		return core.Insights{}, fmt.Errorf("list accounts: %w", err)
	}
	cur := s.opts.Settings.Currency
	if len(accounts) > 0 {
		cur = accounts[0].Currency
	}
	balance := core.Zero(cur)
	for _, a := range accounts {
		balance = balance.Add(a.Balance)
	}

	income, err := s.monthTotal(ctx, ownerID, core.Income, month, cur)
	if err != nil {
		return core.Insights{}, err
	}
	expenses, err := s.monthTotal(ctx, ownerID, core.Expense, month, cur)
	if err != nil {
		return core.Insights{}, err
	}
	prevExpenses, err := s.monthTotal(ctx, ownerID, core.Expense, month.AddMonths(-1), cur)
	if err != nil {
		return core.Insights{}, err
	}

	pattern := make([]core.MonthlySpend, 0, PatternMonths)
	for i := PatternMonths - 1; i >= 0; i-- {
		m := month.AddMonths(-i)
		total := expenses
		if i > 0 {
			if total, err = s.monthTotal(ctx, ownerID, core.Expense, m, cur); err != nil {
				return core.Insights{}, err
			}
		}
		pattern = append(pattern, core.MonthlySpend{Month: m, Total: total})
	}

	top, err := s.topCategories(ctx, ownerID, cur)
	if err != nil {
		return core.Insights{}, err
	}

	return core.Insights{
		Month:               month,
		MonthIncome:         income,
		MonthExpenses:       expenses,
		SavingsRate:         SavingsRate(income, expenses),
		EmergencyFundMonths: EmergencyFundMonths(expenses, balance),
		ExpenditureRating:   RateExpenditure(income, expenses),
		ExpenseTrend:        Trend(expenses, prevExpenses),
		SpendingPattern:     pattern,
		TopCategories:       top,
		GeneratedAt:         s.opts.now(),
	}, nil
}

// Chart buckets income and expenses up to today: seven days for a week, four
// seven-day weeks for a month and twelve calendar months for a year. The
// last bucket always ends today.
func (s *Summaries) Chart(ctx context.Context, ownerID string, period core.ChartPeriod) (core.Chart, error) {
	if !period.IsValid() {
		return core.Chart{}, core.Invalid("period", core.ErrInvalidPeriod)
	}
	cur, err := s.currency(ctx, ownerID)
	if err != nil {
		return core.Chart{}, err
	}

	today := s.opts.today()
	var points []core.ChartPoint
	switch period {
	case core.ChartWeek:
		for i := 6; i >= 0; i-- {
			d := core.Date{Time: today.AddDate(0, 0, -i)}
			points = append(points, core.ChartPoint{Label: d.Format("Mon"), From: d, To: d})
		}
	case core.ChartMonth:
		for i := 3; i >= 0; i-- {
			to := core.Date{Time: today.AddDate(0, 0, -7*i)}
			from := core.Date{Time: to.AddDate(0, 0, -6)}
			points = append(points, core.ChartPoint{Label: fmt.Sprintf("Week %d", 4-i), From: from, To: to})
		}
	case core.ChartYear:
		for i := 11; i >= 0; i-- {
			m := today.AddMonths(-i)
			to := core.Date{Time: m.NextMonth().AddDate(0, 0, -1)}
			if i == 0 {
				to = today
			}
			points = append(points, core.ChartPoint{Label: m.Format("Jan"), From: m, To: to})
		}
	}

	for i := range points {
		p := &points[i]
		if p.Income, err = s.rangeTotal(ctx, ownerID, core.Income, p.From, p.To, cur); err != nil {
			return core.Chart{}, err
		}
		if p.Expenses, err = s.rangeTotal(ctx, ownerID, core.Expense, p.From, p.To, cur); err != nil {
			return core.Chart{}, err
		}
	}
	return core.Chart{Period: period, Points: points}, nil
}

// currency is the first active account's currency, or the default.
func (s *Summaries) currency(ctx context.Context, ownerID string) (string, error) {
	accounts, err := s.store.ListAccounts(ctx, ownerID, false)
	if err != nil {
		return "", fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) > 0 {
		return accounts[0].Currency, nil
	}
	return s.opts.Settings.Currency, nil
}

// rangeTotal sums typ between from and to, both inclusive.
func (s *Summaries) rangeTotal(ctx context.Context, ownerID string, typ core.TransactionType, from, to core.Date, cur string) (core.Money, error) {
	until := core.Date{Time: to.AddDate(0, 0, 1)}
	cents, err := sumCents(ctx, s.store, storage.TransactionFilter{
		OwnerID: ownerID, Type: typ, From: &from, Until: &until,
	})
	if err != nil {
		return core.Money{}, fmt.Errorf("sum %s from %s to %s: %w", typ, from, to, err)
	}
	return core.FromCents(cents, cur), nil
}

func (s *Summaries) monthTotal(ctx context.Context, ownerID string, typ core.TransactionType, month core.Date, cur string) (core.Money, error) {
	next := month.NextMonth()
	cents, err := sumCents(ctx, s.store, storage.TransactionFilter{
		OwnerID: ownerID, Type: typ, From: &month, Until: &next,
	})
	if err != nil {
		return core.Money{}, fmt.Errorf("sum %s for %s: %w", typ, month, err)
	}
	return core.FromCents(cents, cur), nil
}

// topCategories returns the largest all-time expense categories.
func (s *Summaries) topCategories(ctx context.Context, ownerID, cur string) ([]core.CategorySpend, error) {
	var out []core.CategorySpend
	for _, c := range core.Categories {
		cents, err := sumCents(ctx, s.store, storage.TransactionFilter{
			OwnerID: ownerID, Type: core.Expense, Category: c,
		})
		if err != nil {
			return nil, fmt.Errorf("sum %s expenses: %w", c, err)
		}
		if cents == 0 {
			continue
		}
		out = append(out, core.CategorySpend{Category: c, Total: core.FromCents(cents, cur)})
	}
	// Insertion sort, descending; at most 16 entries.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Total.Cmp(out[j-1].Total) > 0; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if len(out) > topCategoryCount {
		out = out[:topCategoryCount]
	}
	return out, nil
}

// SavingsRate is the share of income not spent, in percent. It is 0 without
// income or when spending exceeds income.
func SavingsRate(income, expenses core.Money) decimal.Decimal {
	if !income.IsPositive() {
		return decimal.Zero
	}
	savings := income.Sub(expenses)
	if !savings.IsPositive() {
		return decimal.Zero
	}
	return savings.Amount.Div(income.Amount).Mul(hundred).Round(2)
}

// EmergencyFundMonths is how many months of expenses the balance covers.
func EmergencyFundMonths(monthlyExpenses, balance core.Money) decimal.Decimal {
	if !monthlyExpenses.IsPositive() {
		return decimal.Zero
	}
	return balance.Amount.Div(monthlyExpenses.Amount).Round(2)
}

// RateExpenditure labels the expense/income ratio.
func RateExpenditure(income, expenses core.Money) string {
	if income.IsZero() {
		return RatingNoIncome
	}
	ratio := expenses.Amount.Div(income.Amount)
	switch {
	case ratio.LessThan(decimal.NewFromFloat(0.5)):
		return RatingStrong
	case ratio.LessThan(decimal.NewFromFloat(0.8)):
		return RatingBalanced
	default:
		return RatingHigh
	}
}

// Trend is the percent change from previous to current: 100 when previous
// is zero and current is not, 0 when both are zero.
func Trend(current, previous core.Money) decimal.Decimal {
	if previous.IsZero() {
		if current.IsPositive() {
			return hundred
		}
		return decimal.Zero
	}
	return current.Amount.Sub(previous.Amount).Div(previous.Amount).Mul(hundred).Round(2)
}
