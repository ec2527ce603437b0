package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"wealthywise/internal/core"
	"wealthywise/internal/services"
)

func newSummaryCommand(g *globalFlags) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show a user's balances and income against expenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDate, err := parseDateFlag("from", from)
			if err != nil {
				return err
			}
			toDate, err := parseDateFlag("to", to)
			if err != nil {
				return err
			}
			rng := services.SummaryRange{From: fromDate, To: toDate}

			return g.owned(cmd, func(ctx context.Context, s *session) error {
				sum := services.NewSummaries(s.store, s.opts).TransactionSummary(ctx, s.user, rng)
				if !sum.Available {
					fmt.Fprintln(s.out, "Summary unavailable, see the log for the cause")
				}
				w := s.table("FIELD", "VALUE")
				fmt.Fprintf(w, "accounts\t%d\n", sum.AccountCount)
				fmt.Fprintf(w, "total balance\t%s %s\n", sum.TotalBalance, sum.Currency)
				fmt.Fprintf(w, "income\t%s\n", sum.IncomeTotal)
				fmt.Fprintf(w, "expenses\t%s\n", sum.ExpenseTotal)
				fmt.Fprintf(w, "net flow\t%s\n", sum.NetFlow)
				fmt.Fprintf(w, "transfers\t%s\n", sum.TransferTotal)
				fmt.Fprintf(w, "transactions\t%d\n", sum.TransactionCount)
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last date, YYYY-MM-DD")

	return cmd
}

func newChartCommand(g *globalFlags) *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Show income against expenses over the last week, month or year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.owned(cmd, func(ctx context.Context, s *session) error {
				chart, err := services.NewSummaries(s.store, s.opts).Chart(ctx, s.user, core.ChartPeriod(period))
				if err != nil {
					return err
				}
				w := s.table("PERIOD", "FROM", "TO", "INCOME", "EXPENSES")
				for _, p := range chart.Points {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Label, p.From, p.To, p.Income, p.Expenses)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&period, "period", string(core.ChartWeek), "week, month or year")

	return cmd
}

func newProvisionCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create a user's profile and default account",
		Long:  "Create the profile and, for a user without accounts, the default Cash account. Repeating it is harmless.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.owned(cmd, func(ctx context.Context, s *session) error {
				registry := services.NewRegistry(s.store, s.opts)
				p, err := services.NewProvisioner(s.store, registry, s.opts).Provision(ctx, s.user)
				if err != nil {
					return err
				}
				if !p.Created {
					fmt.Fprintf(s.out, "User %s already provisioned\n", s.user)
					return nil
				}
				fmt.Fprintf(s.out, "Provisioned user %s (%s)\n", p.Profile.UserID, p.Profile.Currency)
				if p.Account != nil {
					fmt.Fprintf(s.out, "Created account %s (%s)\n", p.Account.ID, p.Account.Name)
				}
				return nil
			})
		},
	}
}

// parseDateFlag returns nil for an empty flag.
func parseDateFlag(name, v string) (*core.Date, error) {
	if v == "" {
		return nil, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return nil, core.Invalid(name, core.ErrInvalidDate)
	}
	return &d, nil
}
