package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"wealthywise/internal/core"
	"wealthywise/internal/services"
)

func newBudgetCommand(g *globalFlags) *cobra.Command {
	budgetCmd := &cobra.Command{
		Use:   "budget",
		Short: "Monthly category budgets",
	}
	budgetCmd.AddCommand(
		newBudgetSetCommand(g),
		newBudgetReportCommand(g),
		newBudgetHistoryCommand(g),
	)
	return budgetCmd
}

func newBudgetSetCommand(g *globalFlags) *cobra.Command {
	var category, month, amount string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the budget for a category and month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount %q: %w", amount, err)
			}
			m, err := parseMonthFlag(month)
			if err != nil {
				return err
			}
			return g.owned(cmd, func(ctx context.Context, s *session) error {
				if m.IsZero() {
					m = core.DateOf(time.Now()).MonthStart()
				}
				b, created, err := services.NewBudgets(s.store, s.opts).Upsert(ctx, s.user, core.Category(category), m, amt)
				if err != nil {
					return err
				}
				verb := "Updated"
				if created {
					verb = "Created"
				}
				fmt.Fprintf(s.out, "%s budget %s: %s %s for %s\n",
					verb, b.ID, b.Category, b.Amount, b.Month.Format("2006-01"))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "budget category (required)")
	_ = cmd.MarkFlagRequired("category")
	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default current)")
	cmd.Flags().StringVar(&amount, "amount", "", "budgeted amount (required)")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func newBudgetReportCommand(g *globalFlags) *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show every budget of a month with spend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseMonthFlag(month)
			if err != nil {
				return err
			}
			return g.owned(cmd, func(ctx context.Context, s *session) error {
				rep, err := services.NewBudgets(s.store, s.opts).MonthReport(ctx, s.user, m)
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "Budgets for %s\n", rep.Month.Format("2006-01"))
				w := s.table("CATEGORY", "BUDGET", "SPENT", "REMAINING", "USED %", "OVER")
				for _, st := range rep.Budgets {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
						st.Budget.Category, st.Budget.Amount, st.Spent, st.Remaining,
						st.PercentageUsed.StringFixed(2), st.OverBudget)
				}
				fmt.Fprintf(w, "TOTAL\t%s\t%s\t%s\t\t\n", rep.TotalBudget, rep.TotalSpent, rep.TotalRemaining)
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default current)")

	return cmd
}

func newBudgetHistoryCommand(g *globalFlags) *cobra.Command {
	var months int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Budgeted against spent for recent months",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if months < 1 || months > 24 {
				return fmt.Errorf("--months must be between 1 and 24")
			}
			return g.owned(cmd, func(ctx context.Context, s *session) error {
				points, err := services.NewBudgets(s.store, s.opts).History(ctx, s.user, months)
				if err != nil {
					return err
				}
				w := s.table("MONTH", "BUDGET", "SPENT")
				for _, p := range points {
					fmt.Fprintf(w, "%s\t%s\t%s\n", p.Month.Format("2006-01"), p.TotalBudget, p.TotalSpent)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&months, "months", 6, "number of months, oldest first")

	return cmd
}

// parseMonthFlag returns the zero date for an empty flag.
func parseMonthFlag(v string) (core.Date, error) {
	if v == "" {
		return core.Date{}, nil
	}
	m, err := core.ParseMonth(v)
	if err != nil {
		return core.Date{}, fmt.Errorf("invalid --month %q: want YYYY-MM", v)
	}
	return m, nil
}
