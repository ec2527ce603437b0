package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wealthywise/internal/amqp"
	"wealthywise/internal/core"
	"wealthywise/internal/log"
	"wealthywise/internal/services"
	"wealthywise/internal/storage/memory"
)

type env struct {
	registry   *services.Registry
	reconciler *services.Reconciler
	worker     *LedgerWorker
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.New()
	opts := services.Options{Logger: log.Discard()}
	rec := services.NewReconciler(store, opts, 2)
	return &env{
		registry:   services.NewRegistry(store, opts),
		reconciler: rec,
		worker:     NewLedgerWorker(rec),
	}
}

func (e *env) account(t *testing.T, name, balance string) core.Account {
	t.Helper()
	a, err := e.registry.Create(context.Background(), services.CreateAccountParams{
		OwnerID:        "u1",
		Name:           name,
		InitialBalance: decimal.RequireFromString(balance),
	})
	require.NoError(t, err)
	return a
}

func envelope(t *testing.T, kind string, payload any) *amqp.Envelope {
	t.Helper()
	e, err := amqp.NewEnvelope(kind, payload)
	require.NoError(t, err)
	return e
}

func TestHandle_CommittedChecksBothSides(t *testing.T) {
	e := newEnv(t)
	a := e.account(t, "A", "10")
	msg := envelope(t, amqp.KindTransactionCommitted, amqp.TransactionCommitted{
		TransactionID: "t1", AccountID: a.ID, ToAccountID: "deleted-since",
	})

	assert.NoError(t, e.worker.Handle(context.Background(), msg), "missing accounts are skipped")
}

func TestHandle_CommittedRequeuesOnFailure(t *testing.T) {
	w := NewLedgerWorker(failingReconciler{})
	msg := envelope(t, amqp.KindTransactionCommitted, amqp.TransactionCommitted{AccountID: "a1"})

	err := w.Handle(context.Background(), msg)
	assert.ErrorIs(t, err, errUnavailable)
}

func TestHandle_DropsBadMessages(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	assert.NoError(t, e.worker.Handle(ctx, &amqp.Envelope{Kind: "budget.changed", Payload: json.RawMessage(`{}`)}))
	assert.NoError(t, e.worker.Handle(ctx, &amqp.Envelope{Kind: amqp.KindReconcileRequested, Payload: json.RawMessage(`{"account_ids":1}`)}))
	assert.NoError(t, e.worker.Handle(ctx, &amqp.Envelope{Kind: amqp.KindTransactionCommitted, Payload: json.RawMessage(`[]`)}))
}

func TestHandleReconcile_CheckOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.account(t, "A", "10")
	e.account(t, "B", "20")
	_, err := e.registry.SetBalance(ctx, "u1", a.ID, decimal.NewFromInt(99))
	require.NoError(t, err)

	out, err := e.worker.HandleReconcile(ctx, amqp.ReconcileRequested{RequestedBy: "test"})
	require.NoError(t, err)
	assert.Equal(t, ReconcileOutcome{Accounts: 2, Drifted: 1}, out)

	got, err := e.registry.Get(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "99.00", got.Balance.String(), "check-only leaves balances alone")
}

func TestHandleReconcile_Correct(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.account(t, "A", "10")
	_, err := e.registry.SetBalance(ctx, "u1", a.ID, decimal.NewFromInt(99))
	require.NoError(t, err)

	out, err := e.worker.HandleReconcile(ctx, amqp.ReconcileRequested{AccountIDs: []string{a.ID, "missing"}, Correct: true})
	require.NoError(t, err)
	assert.Equal(t, ReconcileOutcome{Accounts: 2, Drifted: 1, Corrected: 1, Failed: 1}, out)

	got, err := e.registry.Get(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", got.Balance.String())
}

var errUnavailable = errors.New("store unavailable")

type failingReconciler struct{}

func (failingReconciler) Check(context.Context, string) (core.Drift, error) {
	return core.Drift{}, errUnavailable
}

func (failingReconciler) CheckMany(context.Context, []string) ([]core.Drift, []error, error) {
	return nil, nil, errUnavailable
}

func (failingReconciler) RecalculateMany(context.Context, []string) ([]core.Reconciliation, error) {
	return nil, errUnavailable
}

func (failingReconciler) AllAccountIDs(context.Context) ([]string, error) {
	return nil, errUnavailable
}
