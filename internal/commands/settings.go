package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"wealthywise/internal/core"
	"wealthywise/internal/services"
)

func newSettingsCommand(g *globalFlags) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Application settings",
	}
	settingsCmd.AddCommand(newSettingsShowCommand(g), newSettingsSetCommand(g))
	return settingsCmd
}

func newSettingsShowCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, s *session) error {
				st, err := services.NewSettingsStore(s.store, s.opts).Load(ctx)
				if err != nil {
					return err
				}
				printSettings(s, st)
				return nil
			})
		},
	}
}

func newSettingsSetCommand(g *globalFlags) *cobra.Command {
	var (
		siteName, currency string
		maintenance        bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change the given settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("site-name") && !flags.Changed("currency") && !flags.Changed("maintenance") {
				return fmt.Errorf("nothing to change: pass --site-name, --currency or --maintenance")
			}
			return g.run(cmd, func(ctx context.Context, s *session) error {
				store := services.NewSettingsStore(s.store, s.opts)
				st, err := store.Load(ctx)
				if err != nil {
					return err
				}
				if flags.Changed("site-name") {
					st.SiteName = siteName
				}
				if flags.Changed("currency") {
					st.Currency = currency
				}
				if flags.Changed("maintenance") {
					st.MaintenanceMode = maintenance
				}
				saved, err := store.Save(ctx, st)
				if err != nil {
					return err
				}
				printSettings(s, saved)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&siteName, "site-name", "", "site name")
	cmd.Flags().StringVar(&currency, "currency", "", "default currency for new accounts")
	cmd.Flags().BoolVar(&maintenance, "maintenance", false, "reject writes over HTTP while on")

	return cmd
}

func printSettings(s *session, st core.Settings) {
	fmt.Fprintf(s.out, "site name:    %s\n", st.SiteName)
	fmt.Fprintf(s.out, "currency:     %s\n", st.Currency)
	fmt.Fprintf(s.out, "maintenance:  %t\n", st.MaintenanceMode)
}
