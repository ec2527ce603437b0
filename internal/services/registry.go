package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"wealthywise/internal/core"
	"wealthywise/internal/log"
	"wealthywise/internal/storage"
)

// DeletePolicy decides what happens to the transactions of a deleted account.
type DeletePolicy string

const (
	// Restrict refuses to delete an account that any transaction references.
	Restrict DeletePolicy = "restrict"
	// Cascade removes the account's income and expense rows and detaches its
	// side of every transfer. Transfers left with neither side are removed.
	Cascade DeletePolicy = "cascade"
)

func (p DeletePolicy) IsValid() bool {
	return p == Restrict || p == Cascade
}


const maxNumberAttempts = 10

// CreateAccountParams are the inputs of Registry.Create. Number and
// Currency are optional.
type CreateAccountParams struct {
	OwnerID        string
	Name           string
	Type           core.AccountType
	Number         string
	Currency       string
	InitialBalance decimal.Decimal
}

// AccountUpdate changes the descriptive fields of an account. Nil fields are
// left alone.
type AccountUpdate struct {
	Name *string
	Type *core.AccountType
}

// DeleteResult counts the rows touched by a cascade.
type DeleteResult struct {
	DeletedTransactions int
	DetachedTransfers   int
}

// Registry owns accounts and their non-negative balance rule.
type Registry struct {
	store storage.Store
	opts  Options
	log   *log.Logger
}

func NewRegistry(store storage.Store, opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		store: store,
		opts:  opts,
		log:   opts.Logger.WithComponent(log.ComponentRegistry),
	}
}

// Create validates and stores a new account. The initial balance is kept as
// the account's opening balance and never appears as a transaction.
func (r *Registry) Create(ctx context.Context, p CreateAccountParams) (core.Account, error) {
	p.OwnerID = strings.TrimSpace(p.OwnerID)
	p.Name = strings.TrimSpace(p.Name)
	p.Number = strings.TrimSpace(p.Number)
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		p.Currency = r.opts.Settings.Currency
	}
	if p.Type == "" {
		p.Type = core.AccountCash
	}

	opening := core.NewMoney(p.InitialBalance, p.Currency)
	if !opening.HasValidScale() {
		return core.Account{}, core.Invalid("initial_balance", core.ErrAmountPrecision)
	}
	if err := core.ValidateBalance(opening); err != nil {
		return core.Account{}, core.Invalid("initial_balance", err)
	}

	// Validate with a placeholder number when one will be generated.
	candidate := core.Account{
		OwnerID: p.OwnerID, Name: p.Name, Type: p.Type, Currency: p.Currency,
		Number: p.Number, Balance: opening,
	}
	if candidate.Number == "" {
		candidate.Number = strings.Repeat("0", core.MinNumberLength)
	}
	if err := candidate.Validate(); err != nil {
		return core.Account{}, err
	}

	var created core.Account
	err := runUnit(ctx, r.store, r.opts, log.OpCreate, func(tx storage.Tx) error {
		a, err := r.insertAccount(ctx, tx, p, opening)
		if err != nil {
			return err
		}
		created = a
		return nil
	})
	if err != nil {
		return core.Account{}, err
	}

	r.log.InfoContext(ctx, "Account created", log.NewFields().
		WithUser(created.OwnerID).
		WithAccount(created.ID, created.Balance.String()).
		ToSlice()...)
	return created, nil
}

func (r *Registry) insertAccount(ctx context.Context, tx storage.Tx, p CreateAccountParams, opening core.Money) (core.Account, error) {
	now := r.opts.now()
	number := p.Number
	if number == "" {
		n, err := generateNumber(ctx, tx, p.OwnerID, now.Unix())
		if err != nil {
			return core.Account{}, err
		}
		number = n
	}

	a := core.Account{
		ID:             r.opts.NewID(),
		OwnerID:        p.OwnerID,
		Name:           p.Name,
		Number:         number,
		Type:           p.Type,
		Balance:        opening,
		OpeningBalance: opening,
		Currency:       p.Currency,
		IsActive:       true,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := tx.InsertAccount(ctx, a); err != nil {
		switch storage.DuplicateKey(err) {
		case storage.KeyAccountName:
			return core.Account{}, core.Invalid("name", core.ErrDuplicateName)
		case storage.KeyAccountNumber:
			if p.Number == "" {
				// Lost a race for a generated number: run the unit again.
				return core.Account{}, storage.ErrConflict
			}
			return core.Account{}, core.Invalid("account_number", core.ErrDuplicateNumber)
		}
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}

	return a, nil
}

// generateNumber derives an account number from the owner and the creation
// time, moving forward one second per collision.
func generateNumber(ctx context.Context, r storage.Reader, ownerID string, unix int64) (string, error) {
	tag := ownerTag(ownerID)
	for i := int64(0); i < maxNumberAttempts; i++ {
		n := fmt.Sprintf("ACC-%s-%d", tag, unix+i)
		exists, err := r.AccountNumberExists(ctx, n)
		if err != nil {
			return "", fmt.Errorf("check account number: %w", err)
		}
		if !exists {
			return n, nil
		}
	}
	return "", storage.ErrConflict
}

// ownerTag is up to five upper-case alphanumerics of the owner id.
func ownerTag(ownerID string) string {
	var b strings.Builder
	for _, c := range ownerID {
		if b.Len() == 5 {
			break
		}
		if c < unicode.MaxASCII && (unicode.IsLetter(c) || unicode.IsDigit(c)) {
			b.WriteRune(unicode.ToUpper(c))
		}
	}
	if b.Len() == 0 {
		return "X"
	}
	return b.String()
}

// Get returns one of ownerID's accounts.
func (r *Registry) Get(ctx context.Context, ownerID, id string) (core.Account, error) {
	return loadAccount(ctx, r.store, id, ownerID)
}

// List returns ownerID's accounts, active only unless includeInactive.
func (r *Registry) List(ctx context.Context, ownerID string, includeInactive bool) ([]core.Account, error) {
	as, err := r.store.ListAccounts(ctx, ownerID, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return as, nil
}

// SetBalance overwrites the stored balance. Negative balances are rejected.
func (r *Registry) SetBalance(ctx context.Context, ownerID, id string, balance decimal.Decimal) (core.Account, error) {
	m := core.NewMoney(balance, "")
	if !m.HasValidScale() {
		return core.Account{}, core.Invalid("balance", core.ErrAmountPrecision)
	}
	if err := core.ValidateBalance(m); err != nil {
		return core.Account{}, core.Invalid("balance", err)
	}
	return r.mutate(ctx, ownerID, id, log.OpUpdate, func(a *core.Account) error {
		a.Balance = core.NewMoney(balance, a.Currency)
		return nil
	})
}

// Activate marks the account active. Balance and history are untouched.
func (r *Registry) Activate(ctx context.Context, ownerID, id string) (core.Account, error) {
	return r.setActive(ctx, ownerID, id, true)
}

// Deactivate hides the account from active listings and totals.
func (r *Registry) Deactivate(ctx context.Context, ownerID, id string) (core.Account, error) {
	return r.setActive(ctx, ownerID, id, false)
}

func (r *Registry) setActive(ctx context.Context, ownerID, id string, active bool) (core.Account, error) {
	return r.mutate(ctx, ownerID, id, log.OpUpdate, func(a *core.Account) error {
		a.IsActive = active
		return nil
	})
}

// Update renames or retypes an account.
func (r *Registry) Update(ctx context.Context, ownerID, id string, u AccountUpdate) (core.Account, error) {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if err := core.ValidateName(name); err != nil {
			return core.Account{}, core.Invalid("name", err)
		}
		u.Name = &name
	}
	if u.Type != nil && !u.Type.IsValid() {
		return core.Account{}, core.Invalid("account_type", core.ErrInvalidAccountType)
	}
	return r.mutate(ctx, ownerID, id, log.OpUpdate, func(a *core.Account) error {
		if u.Name != nil {
			a.Name = *u.Name
		}
		if u.Type != nil {
			a.Type = *u.Type
		}
		return nil
	})
}

// mutate reads, changes and writes one account under its version.
func (r *Registry) mutate(ctx context.Context, ownerID, id, op string, change func(*core.Account) error) (core.Account, error) {
	var out core.Account
	err := runUnit(ctx, r.store, r.opts, op, func(tx storage.Tx) error {
		a, err := loadAccount(ctx, tx, id, ownerID)
		if err != nil {
			return err
		}
		if err := change(&a); err != nil {
			return err
		}
		a.UpdatedAt = r.opts.now()
		if err := tx.UpdateAccount(ctx, a); err != nil {
			if storage.DuplicateKey(err) == storage.KeyAccountName {
				return core.Invalid("name", core.ErrDuplicateName)
			}
			return fmt.Errorf("update account %s: %w", id, err)
		}
		a.Version++
		out = a
		return nil
	})
	return out, err
}

// Delete removes an account under the given policy.
func (r *Registry) Delete(ctx context.Context, ownerID, id string, policy DeletePolicy) (DeleteResult, error) {
	if policy == "" {
		policy = Restrict
	}
	if !policy.IsValid() {
		return DeleteResult{}, core.Invalid("policy", fmt.Errorf("unknown delete policy %q", policy))
	}

	var res DeleteResult
	err := runUnit(ctx, r.store, r.opts, log.OpDelete, func(tx storage.Tx) error {
		res = DeleteResult{}
		if _, err := loadAccount(ctx, tx, id, ownerID); err != nil {
			return err
		}

		if policy == Restrict {
			refs, err := tx.ListTransactions(ctx, storage.TransactionFilter{Touching: id, Limit: 1})
			if err != nil {
				return fmt.Errorf("check references: %w", err)
			}
			if len(refs) > 0 {
				return core.Invalid("account", core.ErrAccountInUse)
			}
		} else {
			n, err := tx.DeleteTransactionsBySource(ctx, id)
			if err != nil {
				return fmt.Errorf("delete account transactions: %w", err)
			}
			res.DeletedTransactions = n

			out, err := tx.DetachOutgoingTransfers(ctx, id)
			if err != nil {
				return fmt.Errorf("detach outgoing transfers: %w", err)
			}
			in, err := tx.DetachIncomingTransfers(ctx, id)
			if err != nil {
				return fmt.Errorf("detach incoming transfers: %w", err)
			}
			purged, err := tx.PurgeDetachedTransfers(ctx)
			if err != nil {
				return fmt.Errorf("purge detached transfers: %w", err)
			}
			res.DetachedTransfers = out + in - purged
			res.DeletedTransactions += purged
		}

		if err := tx.DeleteAccount(ctx, id); err != nil {
			if errors.Is(err, storage.ErrReferenced) {
				return core.Invalid("account", core.ErrAccountInUse)
			}
			return fmt.Errorf("delete account %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}

	r.log.InfoContext(ctx, "Account deleted",
		log.FieldAccountID, id,
		"policy", string(policy),
		"deleted_transactions", res.DeletedTransactions,
		"detached_transfers", res.DetachedTransfers)
	return res, nil
}
