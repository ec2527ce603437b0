package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"wealthywise/internal/amqp"
	"wealthywise/internal/services"
)

var errNoAccounts = errors.New("name account ids or pass --all")

func newReconcileCommand(g *globalFlags) *cobra.Command {
	var all, dryRun, async bool

	cmd := &cobra.Command{
		Use:   "reconcile [account-id...]",
		Short: "Recalculate stored balances from transaction history",
		Long: "Recalculate the stored balance of each account from its transactions and " +
			"write the result. With --dry-run only report drift. With --async queue the " +
			"request for the ledger worker instead of running it here.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return errNoAccounts
			}
			return g.run(cmd, func(ctx context.Context, s *session) error {
				if async {
					return queueReconcile(ctx, s, args, all, !dryRun)
				}
				reconciler := services.NewReconciler(s.store, s.opts, s.cfg.ReconcileConcurrency)
				ids := args
				if all {
					var err error
					if ids, err = reconciler.AllAccountIDs(ctx); err != nil {
						return err
					}
				}
				if dryRun {
					return checkDrift(ctx, s, reconciler, ids)
				}
				return recalculate(ctx, s, reconciler, ids)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "every account of every user")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report drift without changing balances")
	cmd.Flags().BoolVar(&async, "async", false, "queue for the ledger worker (needs AMQP_URL)")

	return cmd
}

func checkDrift(ctx context.Context, s *session, reconciler *services.Reconciler, ids []string) error {
	drifts, errs, err := reconciler.CheckMany(ctx, ids)
	if err != nil {
		return err
	}
	failed, drifted := 0, 0
	w := s.table("ACCOUNT", "STORED", "RECALCULATED", "DIFFERENCE", "STATUS")
	for i, d := range drifts {
		switch {
		case errs[i] != nil:
			failed++
			fmt.Fprintf(w, "%s\t-\t-\t-\terror: %v\n", ids[i], errs[i])
		case d.HasDrift():
			drifted++
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\tdrift\n", d.AccountID, d.Stored, d.Recalculated, d.Difference())
		default:
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\tok\n", d.AccountID, d.Stored, d.Recalculated, d.Difference())
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d checked, %d drifted, %d failed\n", len(ids), drifted, failed)
	if failed > 0 {
		return fmt.Errorf("%d accounts could not be checked", failed)
	}
	return nil
}

func recalculate(ctx context.Context, s *session, reconciler *services.Reconciler, ids []string) error {
	results, err := reconciler.RecalculateMany(ctx, ids)
	if err != nil {
		return err
	}
	failed, corrected := 0, 0
	w := s.table("ACCOUNT", "PREVIOUS", "BALANCE", "STATUS")
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(w, "%s\t-\t-\terror: %v\n", r.AccountID, r.Err)
		case r.Corrected():
			corrected++
			fmt.Fprintf(w, "%s\t%s\t%s\tcorrected\n", r.AccountID, r.Previous, r.Balance)
		default:
			fmt.Fprintf(w, "%s\t%s\t%s\tok\n", r.AccountID, r.Previous, r.Balance)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d recalculated, %d corrected, %d failed\n", len(ids), corrected, failed)
	if failed > 0 {
		return fmt.Errorf("%d accounts could not be recalculated", failed)
	}
	return nil
}

func queueReconcile(ctx context.Context, s *session, ids []string, all, correct bool) error {
	if s.cfg.AMQPURL == "" {
		return errors.New("--async needs AMQP_URL")
	}
	client, err := amqp.NewClient(s.cfg.AMQPURL, s.cfg.AMQPExchange, s.cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("connecting to AMQP: %w", err)
	}
	defer client.Close()

	if all {
		ids = nil
	}
	err = client.PublishReconcileRequested(ctx, amqp.ReconcileRequested{
		AccountIDs:  ids,
		Correct:     correct,
		RequestedBy: "ledgerctl",
	})
	if err != nil {
		return fmt.Errorf("queueing reconcile request: %w", err)
	}
	target := fmt.Sprintf("%d accounts", len(ids))
	if all {
		target = "all accounts"
	}
	fmt.Fprintf(s.out, "Queued reconciliation of %s (correct=%t)\n", target, correct)
	return nil
}
