package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wealthywise/internal/core"
	"wealthywise/internal/log"
	"wealthywise/internal/storage"
)

// DefaultMaxRetries is how many times a unit is re-run after a version conflict.
const DefaultMaxRetries = 5

// EventPublisher receives committed transactions. Publishing is best effort:
// a failure is logged and never undoes the commit.
type EventPublisher interface {
	PublishTransactionCommitted(ctx context.Context, t core.Transaction) error
}

// Options are shared by every service.
type Options struct {
	// Settings is the application settings row, loaded once at start.
	Settings   core.Settings
	MaxRetries int
	Publisher  EventPublisher
	Logger     *log.Logger
	Now        func() time.Time
	NewID      func() string
}

func (o Options) withDefaults() Options {
	if o.Settings.Currency == "" {
		o.Settings = core.DefaultSettings()
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Logger == nil {
		o.Logger = log.FromContext(context.Background())
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

func (o Options) now() time.Time {
	return o.Now().UTC()
}

func (o Options) today() core.Date {
	return core.DateOf(o.Now())
}

// runUnit runs fn in one atomic unit and re-runs the whole unit when a
// versioned write lost a race. fn must only use the tx it is given.
func runUnit(ctx context.Context, store storage.Store, opts Options, op string, fn func(tx storage.Tx) error) error {
	var err error
	for attempt := 1; attempt <= opts.MaxRetries+1; attempt++ {
		err = store.WithTx(ctx, fn)
		if !errors.Is(err, storage.ErrConflict) {
			return classify(op, err)
		}
		opts.Logger.DebugContext(ctx, "Version conflict, retrying unit",
			log.FieldOperation, op,
			log.FieldAttempt, attempt)
	}
	return &core.IntegrityError{Op: op, Err: fmt.Errorf("%w: %v", core.ErrConcurrentUpdate, err)}
}

// classify passes caller-facing errors through and turns storage failures
// into IntegrityError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if core.IsValidation(err) || core.IsIntegrity(err) ||
		errors.Is(err, core.ErrNotFound) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &core.IntegrityError{Op: op, Err: err}
}

// loadAccount reads an account as seen by owner. An empty owner skips the
// ownership check.
func loadAccount(ctx context.Context, r storage.Reader, id, owner string) (core.Account, error) {
	a, err := r.GetAccount(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Account{}, &core.NotFoundError{Entity: "account", ID: id}
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account %s: %w", id, err)
	}
	if owner != "" && a.OwnerID != owner {
		return core.Account{}, &core.NotFoundError{Entity: "account", ID: id}
	}
	return a, nil
}

func sumCents(ctx context.Context, r storage.Reader, f storage.TransactionFilter) (int64, error) {
	t, err := r.SumTransactions(ctx, f)
	if err != nil {
		return 0, err
	}
	return t.Cents, nil
}
