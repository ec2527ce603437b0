// Package commands implements ledgerctl, the administration CLI that runs
// the ledger services directly against the SQLite store.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"wealthywise/internal/cli"
	"wealthywise/internal/config"
	"wealthywise/internal/log"
	"wealthywise/internal/services"
	"wealthywise/internal/storage"
)

var errUserRequired = errors.New("--user is required")

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	dbPath string
	userID string
}

// session is what a command runs against: an open store and the services
// built over it.
type session struct {
	cfg    *config.Config
	logger *log.Logger
	store  storage.Store
	opts   services.Options
	out    io.Writer
	user   string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Administer the WealthyWise ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.dbPath, "db", "", "SQLite database path (default $SQLITE_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&g.userID, "user", "", "owner user id")

	rootCmd.AddCommand(
		newAccountCommand(g),
		newTxCommand(g),
		newReconcileCommand(g),
		newBudgetCommand(g),
		newChartCommand(g),
		newSummaryCommand(g),
		newProvisionCommand(g),
		newSettingsCommand(g),
	)
	return rootCmd
}

// run opens the store, runs fn and closes the store again.
func (g *globalFlags) run(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.Load()
	logger := cli.SetupLogger(cfg, log.ComponentCLI)
	path := g.dbPath
	if path == "" {
		path = cfg.SQLiteDBPath
	}

	repo, err := storage.NewSQLiteRepository(path)
	if err != nil {
		return fmt.Errorf("opening ledger %s: %w", path, err)
	}
	defer repo.Close()

	settings, err := repo.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	opts := cli.ServiceOptions(cfg, logger, nil)
	opts.Settings = settings

	return fn(ctx, &session{
		cfg:    cfg,
		logger: logger,
		store:  repo,
		opts:   opts,
		out:    cmd.OutOrStdout(),
		user:   g.userID,
	})
}

// owned is run for commands scoped to one user.
func (g *globalFlags) owned(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	if g.userID == "" {
		return errUserRequired
	}
	return g.run(cmd, fn)
}

// table writes aligned columns; call Flush when done.
func (s *session) table(header ...string) *tabwriter.Writer {
	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	for i, h := range header {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, h)
	}
	fmt.Fprintln(w)
	return w
}
