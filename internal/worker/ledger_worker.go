package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"wealthywise/internal/amqp"
	"wealthywise/internal/core"
	"wealthywise/internal/log"
)

// Reconciler is the part of the balance reconciler the worker drives.
type Reconciler interface {
	Check(ctx context.Context, accountID string) (core.Drift, error)
	CheckMany(ctx context.Context, ids []string) ([]core.Drift, []error, error)
	RecalculateMany(ctx context.Context, ids []string) ([]core.Reconciliation, error)
	AllAccountIDs(ctx context.Context) ([]string, error)
}

// LedgerWorker handles messages from the ledger queue.
type LedgerWorker struct {
	reconciler Reconciler
}

func NewLedgerWorker(reconciler Reconciler) *LedgerWorker {
	return &LedgerWorker{reconciler: reconciler}
}

// Handle dispatches one envelope by kind. It returns an error only when the
// message should be redelivered.
func (w *LedgerWorker) Handle(ctx context.Context, env *amqp.Envelope) error {
	switch env.Kind {
	case amqp.KindTransactionCommitted:
		var ev amqp.TransactionCommitted
		if err := env.Decode(&ev); err != nil {
			slog.ErrorContext(ctx, "Dropping undecodable message", "message_id", env.ID, log.FieldError, err)
			return nil
		}
		return w.HandleCommitted(ctx, ev)
	case amqp.KindReconcileRequested:
		var req amqp.ReconcileRequested
		if err := env.Decode(&req); err != nil {
			slog.ErrorContext(ctx, "Dropping undecodable message", "message_id", env.ID, log.FieldError, err)
			return nil
		}
		_, err := w.HandleReconcile(ctx, req)
		return err
	default:
		slog.WarnContext(ctx, "Ignoring message of unknown kind", "message_id", env.ID, log.FieldMessageKind, env.Kind)
		return nil
	}
}

// HandleCommitted checks the accounts a committed transaction touched and
// reports drift. Accounts deleted since the commit are skipped.
func (w *LedgerWorker) HandleCommitted(ctx context.Context, ev amqp.TransactionCommitted) error {
	ids := []string{ev.AccountID}
	if ev.ToAccountID != "" {
		ids = append(ids, ev.ToAccountID)
	}

	for _, id := range ids {
		d, err := w.reconciler.Check(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			slog.InfoContext(ctx, "Account gone, skipping drift check",
				log.FieldAccountID, id,
				log.FieldTransactionID, ev.TransactionID)
			continue
		}
		if err != nil {
			return fmt.Errorf("check account %s: %w", id, err)
		}
		if d.HasDrift() {
			slog.WarnContext(ctx, "Balance drift after commit",
				log.FieldAccountID, id,
				log.FieldTransactionID, ev.TransactionID,
				"stored", d.Stored.String(),
				"recalculated", d.Recalculated.String())
		}
	}
	return nil
}

// ReconcileOutcome counts what one reconcile request did.
type ReconcileOutcome struct {
	Accounts  int
	Drifted   int
	Corrected int
	Failed    int
}

// HandleReconcile checks or recalculates the requested accounts, or every
// account when none are named.
func (w *LedgerWorker) HandleReconcile(ctx context.Context, req amqp.ReconcileRequested) (ReconcileOutcome, error) {
	ids := req.AccountIDs
	if len(ids) == 0 {
		all, err := w.reconciler.AllAccountIDs(ctx)
		if err != nil {
			return ReconcileOutcome{}, fmt.Errorf("list accounts: %w", err)
		}
		ids = all
	}
	out := ReconcileOutcome{Accounts: len(ids)}

	if req.Correct {
		results, err := w.reconciler.RecalculateMany(ctx, ids)
		if err != nil {
			return out, fmt.Errorf("recalculate: %w", err)
		}
		for _, r := range results {
			switch {
			case r.Err != nil:
				out.Failed++
				slog.ErrorContext(ctx, "Recalculation failed", log.FieldAccountID, r.AccountID, log.FieldError, r.Err)
			case r.Corrected():
				out.Drifted++
				out.Corrected++
			}
		}
	} else {
		drifts, errs, err := w.reconciler.CheckMany(ctx, ids)
		if err != nil {
			return out, fmt.Errorf("check: %w", err)
		}
		for i, d := range drifts {
			if errs[i] != nil {
				out.Failed++
				slog.ErrorContext(ctx, "Drift check failed", log.FieldAccountID, ids[i], log.FieldError, errs[i])
				continue
			}
			if d.HasDrift() {
				out.Drifted++
				slog.WarnContext(ctx, "Balance drift detected",
					log.FieldAccountID, d.AccountID,
					"stored", d.Stored.String(),
					"recalculated", d.Recalculated.String())
			}
		}
	}

	slog.InfoContext(ctx, "Reconcile request processed",
		"requested_by", req.RequestedBy,
		"correct", req.Correct,
		"accounts", out.Accounts,
		"drifted", out.Drifted,
		"corrected", out.Corrected,
		"failed", out.Failed)
	return out, nil
}
