package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"wealthywise/internal/core"
	"wealthywise/internal/log"
	"wealthywise/internal/storage"
)

// CommitRequest describes one transaction to record. The amount takes the
// currency of the source account.
type CommitRequest struct {
	// OwnerID restricts the accounts to one user. Empty means the source
	// account's owner.
	OwnerID             string
	AccountID           string
	ToAccountID         string
	Type                core.TransactionType
	Amount              decimal.Decimal
	Date                core.Date // zero means today
	Category            core.Category
	Description         string
	IsRecurring         bool
	RecurrenceFrequency core.Frequency
}

// Ledger is the only writer of account balances through transactions.
type Ledger struct {
	store storage.Store
	opts  Options
	log   *log.Logger
}

func NewLedger(store storage.Store, opts Options) *Ledger {
	opts = opts.withDefaults()
	return &Ledger{
		store: store,
		opts:  opts,
		log:   opts.Logger.WithComponent(log.ComponentLedger),
	}
}

func (r *CommitRequest) normalize() error {
	r.AccountID = strings.TrimSpace(r.AccountID)
	r.ToAccountID = strings.TrimSpace(r.ToAccountID)
	r.Description = strings.TrimSpace(r.Description)

	if r.AccountID == "" {
		return core.Invalid("account", core.ErrMissingAccount)
	}
	if !r.Type.IsValid() {
		return core.Invalid("transaction_type", core.ErrInvalidType)
	}
	if err := core.ValidateAmount(core.NewMoney(r.Amount, ""), core.TransactionAmountDigits, false); err != nil {
		return core.Invalid("amount", err)
	}
	switch {
	case r.Type == core.Transfer && r.ToAccountID == "":
		return core.Invalid("to_account", core.ErrMissingDestination)
	case r.Type == core.Transfer && r.ToAccountID == r.AccountID:
		return core.Invalid("to_account", core.ErrSelfTransfer)
	case r.Type != core.Transfer && r.ToAccountID != "":
		return core.Invalid("to_account", core.ErrUnexpectedDest)
	}
	if r.Category == "" {
		r.Category = core.CategoryOther
	}
	if !r.Category.IsValid() {
		return core.Invalid("category", core.ErrInvalidCategory)
	}
	if utf8.RuneCountInString(r.Description) > core.MaxDescriptionLength {
		return core.Invalid("description", core.ErrDescriptionTooLong)
	}
	if r.RecurrenceFrequency != "" && !r.RecurrenceFrequency.IsValid() {
		return core.Invalid("recurrence_frequency", core.ErrInvalidFrequency)
	}
	return nil
}

// Commit validates req, then records the transaction and applies its delta
// to the source account (and the destination, for transfers) in one unit.
func (l *Ledger) Commit(ctx context.Context, req CommitRequest) (core.Transaction, error) {
	if err := req.normalize(); err != nil {
		return core.Transaction{}, err
	}
	if req.Date.IsZero() {
		req.Date = l.opts.today()
	}

	var committed core.Transaction
	err := runUnit(ctx, l.store, l.opts, log.OpCommit, func(tx storage.Tx) error {
		t, err := l.apply(ctx, tx, req, l.opts.NewID())
		if err != nil {
			return err
		}
		committed = t
		return nil
	})
	if err != nil {
		if core.IsIntegrity(err) {
			fields := log.NewFields().
				WithTransaction("", string(req.Type), req.AccountID, req.ToAccountID, req.Amount.StringFixed(2), "").
				WithError(err)
			l.log.ErrorContext(ctx, "Commit rolled back", fields.ToSlice()...)
		}
		return core.Transaction{}, err
	}

	l.log.InfoContext(ctx, "Transaction committed", log.NewFields().
		WithTransaction(committed.ID, string(committed.Type), committed.AccountID, committed.ToAccountID,
			committed.Amount.String(), committed.BalanceAfter.String()).
		ToSlice()...)
	l.publish(ctx, committed)
	return committed, nil
}

// apply is the body of a commit unit. The balance_after snapshot and the
// account write use the same delta.
func (l *Ledger) apply(ctx context.Context, tx storage.Tx, req CommitRequest, id string) (core.Transaction, error) {
	now := l.opts.now()

	src, err := loadAccount(ctx, tx, req.AccountID, req.OwnerID)
	if err != nil {
		return core.Transaction{}, err
	}
	amount := core.NewMoney(req.Amount, src.Currency)

	t := core.Transaction{
		ID:                  id,
		OwnerID:             src.OwnerID,
		Type:                req.Type,
		AccountID:           src.ID,
		Amount:              amount,
		Date:                req.Date,
		Category:            req.Category,
		Description:         req.Description,
		IsRecurring:         req.IsRecurring,
		RecurrenceFrequency: req.RecurrenceFrequency,
		CreatedAt:           now,
	}

	after := src.Balance.Add(t.Delta())
	if err := core.ValidateBalance(after); err != nil {
		return core.Transaction{}, core.Invalid("amount", err)
	}
	t.BalanceAfter = after

	var dst core.Account
	if t.Type == core.Transfer {
		dst, err = loadAccount(ctx, tx, req.ToAccountID, src.OwnerID)
		if err != nil {
			return core.Transaction{}, err
		}
		if dst.Currency != src.Currency {
			return core.Transaction{}, core.Invalid("to_account", core.ErrCurrencyMismatch)
		}
		dstAfter := dst.Balance.Add(amount)
		if err := core.ValidateBalance(dstAfter); err != nil {
			return core.Transaction{}, core.Invalid("amount", err)
		}
		t.ToAccountID = dst.ID
		t.ToBalanceAfter = &dstAfter
	}

	if err := tx.InsertTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	src.Balance = after
	src.LastTransactionDate = &now
	src.UpdatedAt = now
	if err := tx.UpdateAccount(ctx, src); err != nil {
		return core.Transaction{}, fmt.Errorf("update source account %s: %w", src.ID, err)
	}

	if t.Type == core.Transfer {
		dst.Balance = *t.ToBalanceAfter
		dst.LastTransactionDate = &now
		dst.UpdatedAt = now
		if err := tx.UpdateAccount(ctx, dst); err != nil {
			return core.Transaction{}, fmt.Errorf("update destination account %s: %w", dst.ID, err)
		}
	}
	return t, nil
}

func (l *Ledger) publish(ctx context.Context, t core.Transaction) {
	if l.opts.Publisher == nil {
		return
	}
	if err := l.opts.Publisher.PublishTransactionCommitted(ctx, t); err != nil {
		l.log.WarnContext(ctx, "Failed to publish committed transaction",
			log.FieldTransactionID, t.ID,
			log.FieldError, err)
	}
}

// Delete removes a transaction and reverses its effect on the accounts it
// still references.
func (l *Ledger) Delete(ctx context.Context, ownerID, id string) error {
	return runUnit(ctx, l.store, l.opts, log.OpDelete, func(tx storage.Tx) error {
		t, err := loadTransaction(ctx, tx, id, ownerID)
		if err != nil {
			return err
		}
		now := l.opts.now()

		if t.AccountID != "" {
			if err := reverse(ctx, tx, t.AccountID, t.Delta(), now); err != nil {
				return err
			}
		}
		if t.Type == core.Transfer && t.ToAccountID != "" {
			if err := reverse(ctx, tx, t.ToAccountID, t.Amount, now); err != nil {
				return err
			}
		}
		if err := tx.DeleteTransaction(ctx, t.ID); err != nil {
			return fmt.Errorf("delete transaction %s: %w", t.ID, err)
		}
		return nil
	})
}

func reverse(ctx context.Context, tx storage.Tx, accountID string, delta core.Money, now time.Time) error {
	a, err := loadAccount(ctx, tx, accountID, "")
	if err != nil {
		return err
	}
	a.Balance = a.Balance.Sub(delta)
	if err := core.ValidateBalance(a.Balance); err != nil {
		return core.Invalid("transaction", err)
	}
	a.UpdatedAt = now
	if err := tx.UpdateAccount(ctx, a); err != nil {
		return fmt.Errorf("update account %s: %w", a.ID, err)
	}
	return nil
}

func loadTransaction(ctx context.Context, r storage.Reader, id, owner string) (core.Transaction, error) {
	t, err := r.GetTransaction(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Transaction{}, &core.NotFoundError{Entity: "transaction", ID: id}
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	if owner != "" && t.OwnerID != owner {
		return core.Transaction{}, &core.NotFoundError{Entity: "transaction", ID: id}
	}
	return t, nil
}

// Get returns one of ownerID's transactions.
func (l *Ledger) Get(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	return loadTransaction(ctx, l.store, id, ownerID)
}

// List returns ownerID's transactions, newest first.
func (l *Ledger) List(ctx context.Context, ownerID string, f storage.TransactionFilter) ([]core.Transaction, error) {
	f.OwnerID = ownerID
	ts, err := l.store.ListTransactions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return ts, nil
}
