package commands

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"wealthywise/internal/core"
	"wealthywise/internal/services"
)

func newAccountCommand(g *globalFlags) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}
	accountCmd.AddCommand(
		newAccountCreateCommand(g),
		newAccountListCommand(g),
		newAccountActiveCommand(g, "activate", true),
		newAccountActiveCommand(g, "deactivate", false),
		newAccountDeleteCommand(g),
	)
	return accountCmd
}

func newAccountCreateCommand(g *globalFlags) *cobra.Command {
	var name, accountType, number, currency, balance string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			initial, err := decimal.NewFromString(balance)
			if err != nil {
				return fmt.Errorf("invalid --balance %q: %w", balance, err)
			}
			return g.owned(cmd, func(ctx context.Context, s *session) error {
				a, err := services.NewRegistry(s.store, s.opts).Create(ctx, services.CreateAccountParams{
					OwnerID:        s.user,
					Name:           name,
					Type:           core.AccountType(accountType),
					Number:         number,
					Currency:       currency,
					InitialBalance: initial,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "Created account %s (%s, %s) balance %s %s\n",
					a.ID, a.Name, a.Number, a.Balance, a.Currency)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "account name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&accountType, "type", string(core.AccountCash), "account type")
	cmd.Flags().StringVar(&number, "number", "", "account number (generated when empty)")
	cmd.Flags().StringVar(&currency, "currency", "", "currency code (default from settings)")
	cmd.Flags().StringVar(&balance, "balance", "0", "initial balance")

	return cmd
}

func newAccountListCommand(g *globalFlags) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.owned(cmd, func(ctx context.Context, s *session) error {
				accounts, err := services.NewRegistry(s.store, s.opts).List(ctx, s.user, all)
				if err != nil {
					return err
				}
				w := s.table("ID", "NAME", "TYPE", "NUMBER", "BALANCE", "CURRENCY", "ACTIVE")
				for _, a := range accounts {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
						a.ID, a.Name, a.Type, a.Number, a.Balance, a.Currency, a.IsActive)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include inactive accounts")

	return cmd
}

func newAccountActiveCommand(g *globalFlags, use string, active bool) *cobra.Command {
	short := "Mark an account inactive"
	if active {
		short = "Mark an account active"
	}
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.owned(cmd, func(ctx context.Context, s *session) error {
				registry := services.NewRegistry(s.store, s.opts)
				var err error
				if active {
					_, err = registry.Activate(ctx, s.user, args[0])
				} else {
					_, err = registry.Deactivate(ctx, s.user, args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "Account %s %sd\n", args[0], use)
				return nil
			})
		},
	}
}

func newAccountDeleteCommand(g *globalFlags) *cobra.Command {
	var cascade bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an account",
		Long: "Delete an account. Without --cascade the account must have no transactions; " +
			"with it, its own transactions are removed and its transfers detached.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := services.Restrict
			if cascade {
				policy = services.Cascade
			}
			return g.owned(cmd, func(ctx context.Context, s *session) error {
				res, err := services.NewRegistry(s.store, s.opts).Delete(ctx, s.user, args[0], policy)
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "Deleted account %s (%d transactions deleted, %d transfers detached)\n",
					args[0], res.DeletedTransactions, res.DetachedTransfers)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&cascade, "cascade", false, "delete the account's transactions too")

	return cmd
}
