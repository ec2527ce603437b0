package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary aggregates a user's accounts and transactions for a dashboard.
// Available is false when the figures could not be computed and are zero.
type Summary struct {
	AccountCount     int
	TotalBalance     Money
	Currency         string
	IncomeTotal      Money
	ExpenseTotal     Money
	NetFlow          Money
	TransferTotal    Money
	TransactionCount int
	Available        bool
}

// ZeroSummary is returned when there is nothing to aggregate or when the
// aggregation failed.
func ZeroSummary(currency string) Summary {
	return Summary{
		Currency:      currency,
		TotalBalance:  Zero(currency),
		IncomeTotal:   Zero(currency),
		ExpenseTotal:  Zero(currency),
		NetFlow:       Zero(currency),
		TransferTotal: Zero(currency),
	}
}

// BudgetStatus is a budget with its derived figures.
type BudgetStatus struct {
	Budget         Budget
	Spent          Money
	Remaining      Money
	PercentageUsed decimal.Decimal
	OverBudget     bool
}

// MonthReport lists every budget of a month with totals.
type MonthReport struct {
	Month          Date
	Budgets        []BudgetStatus
	TotalBudget    Money
	TotalSpent     Money
	TotalRemaining Money
}

// HistoryPoint is one month of budgeted vs spent.
type HistoryPoint struct {
	Month       Date
	TotalBudget Money
	TotalSpent  Money
}

// Drift compares a stored balance against the one derived from history.
type Drift struct {
	AccountID    string
	Stored       Money
	Recalculated Money
}

func (d Drift) HasDrift() bool {
	return !d.Stored.Equal(d.Recalculated)
}

// Difference is stored minus recalculated.
func (d Drift) Difference() Money {
	return d.Stored.Sub(d.Recalculated)
}

// Reconciliation is the outcome of recalculating one account.
type Reconciliation struct {
	AccountID string
	Previous  Money
	Balance   Money
	Err       error
}

// Corrected reports whether the stored balance changed.
func (r Reconciliation) Corrected() bool {
	return r.Err == nil && !r.Previous.Equal(r.Balance)
}

// MonthlySpend is total expense for one month.
type MonthlySpend struct {
	Month Date
	Total Money
}

// Insights are dashboard figures derived from a month of activity.
type Insights struct {
	Month               Date
	MonthIncome         Money
	MonthExpenses       Money
	SavingsRate         decimal.Decimal
	EmergencyFundMonths decimal.Decimal
	ExpenditureRating   string
	ExpenseTrend        decimal.Decimal
	SpendingPattern     []MonthlySpend
	TopCategories       []CategorySpend
	GeneratedAt         time.Time
}

// CategorySpend is total expense for one category.
type CategorySpend struct {
	Category Category
	Total    Money
}

// ChartPeriod selects the window an income/expense chart covers.
type ChartPeriod string

const (
	ChartWeek  ChartPeriod = "week"
	ChartMonth ChartPeriod = "month"
	ChartYear  ChartPeriod = "year"
)

func (p ChartPeriod) IsValid() bool {
	switch p {
	case ChartWeek, ChartMonth, ChartYear:
		return true
	}
	return false
}

// ChartPoint is income and expenses over one inclusive date bucket.
type ChartPoint struct {
	Label    string
	From     Date
	To       Date
	Income   Money
	Expenses Money
}

// Chart is a series of buckets, oldest first, ending today.
type Chart struct {
	Period ChartPeriod
	Points []ChartPoint
}
