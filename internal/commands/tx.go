package commands

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"wealthywise/internal/core"
	"wealthywise/internal/services"
	"wealthywise/internal/storage"
)

func newTxCommand(g *globalFlags) *cobra.Command {
	txCmd := &cobra.Command{
		Use:   "tx",
		Short: "Record and list transactions",
	}
	txCmd.AddCommand(newTxAddCommand(g), newTxListCommand(g))
	return txCmd
}

func newTxAddCommand(g *globalFlags) *cobra.Command {
	var (
		accountID, toAccountID string
		txType, amount, date   string
		category, description  string
		recurrence             string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Commit a transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount %q: %w", amount, err)
			}
			var day core.Date
			if date != "" {
				if day, err = core.ParseDate(date); err != nil {
					return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
				}
			}
			return g.owned(cmd, func(ctx context.Context, s *session) error {
				t, err := services.NewLedger(s.store, s.opts).Commit(ctx, services.CommitRequest{
					OwnerID:             s.user,
					AccountID:           accountID,
					ToAccountID:         toAccountID,
					Type:                core.TransactionType(txType),
					Amount:              amt,
					Date:                day,
					Category:            core.Category(category),
					Description:         description,
					IsRecurring:         recurrence != "",
					RecurrenceFrequency: core.Frequency(recurrence),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "Committed %s %s %s on %s, balance after %s\n",
					t.Type, t.ID, t.Amount, t.Date, t.BalanceAfter)
				if t.ToBalanceAfter != nil {
					fmt.Fprintf(s.out, "Destination %s balance after %s\n", t.ToAccountID, *t.ToBalanceAfter)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "source account id (required)")
	_ = cmd.MarkFlagRequired("account")
	cmd.Flags().StringVar(&toAccountID, "to", "", "destination account id, transfers only")
	cmd.Flags().StringVar(&txType, "type", "", "income, expense or transfer (required)")
	_ = cmd.MarkFlagRequired("type")
	cmd.Flags().StringVar(&amount, "amount", "", "amount, up to two decimals (required)")
	_ = cmd.MarkFlagRequired("amount")
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&category, "category", "", "category (default other)")
	cmd.Flags().StringVar(&description, "description", "", "free text")
	cmd.Flags().StringVar(&recurrence, "recurring", "", "mark as recurring: daily, weekly, monthly or yearly")

	return cmd
}

func newTxListCommand(g *globalFlags) *cobra.Command {
	var (
		accountID, txType, category string
		from, to                    string
		limit                       int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := storage.TransactionFilter{
				Touching: accountID,
				Type:     core.TransactionType(txType),
				Category: core.Category(category),
				Limit:    limit,
			}
			if f.Type != "" && !f.Type.IsValid() {
				return core.Invalid("type", core.ErrInvalidType)
			}
			if f.Category != "" && !f.Category.IsValid() {
				return core.Invalid("category", core.ErrInvalidCategory)
			}
			fromDate, err := parseDateFlag("from", from)
			if err != nil {
				return err
			}
			toDate, err := parseDateFlag("to", to)
			if err != nil {
				return err
			}
			f.From = fromDate
			if toDate != nil {
				until := core.Date{Time: toDate.AddDate(0, 0, 1)}
				f.Until = &until
			}

			return g.owned(cmd, func(ctx context.Context, s *session) error {
				ts, err := services.NewLedger(s.store, s.opts).List(ctx, s.user, f)
				if err != nil {
					return err
				}
				w := s.table("ID", "DATE", "TYPE", "ACCOUNT", "TO", "AMOUNT", "BALANCE AFTER", "CATEGORY", "DESCRIPTION")
				for _, t := range ts {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						t.ID, t.Date, t.Type, dash(t.AccountID), dash(t.ToAccountID),
						t.Amount, t.BalanceAfter, t.Category, t.Description)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "only transactions touching this account")
	cmd.Flags().StringVar(&txType, "type", "", "only this transaction type")
	cmd.Flags().StringVar(&category, "category", "", "only this category")
	cmd.Flags().StringVar(&from, "from", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last date, YYYY-MM-DD")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")

	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
