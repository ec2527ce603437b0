package storage

import (
	"context"
	"errors"
	"fmt"

	"wealthywise/internal/core"
)

var (
	ErrNotFound  = errors.New("storage: not found")
	ErrDuplicate = errors.New("storage: duplicate key")
	// ErrConflict means a versioned update matched no row: another writer won.
	ErrConflict = errors.New("storage: version conflict")
	// ErrReferenced means a row is still referenced by another row.
	ErrReferenced = errors.New("storage: row is still referenced")
)

// Unique keys reported by DuplicateError.
const (
	KeyAccountName   = "account_name"
	KeyAccountNumber = "account_number"
	KeyBudget        = "budget"
	KeyProfile       = "profile"
	KeyPrimary       = "primary"
)

// DuplicateError names the unique key that was violated.
type DuplicateError struct {
	Key string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("storage: duplicate %s", e.Key)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// DuplicateKey returns the violated key, or "" if err is not a duplicate.
func DuplicateKey(err error) string {
	var de *DuplicateError
	if errors.As(err, &de) {
		return de.Key
	}
	return ""
}

// TransactionFilter selects transactions. Zero fields do not filter.
// From is inclusive, Until is exclusive.
type TransactionFilter struct {
	OwnerID     string
	AccountID   string // source account
	ToAccountID string // destination account
	// Touching matches either side of a transaction.
	Touching string
	Type     core.TransactionType
	Category core.Category
	From     *core.Date
	Until    *core.Date
	Limit    int
}

// Totals is the sum of amounts in minor units and the row count.
type Totals struct {
	Cents int64
	Count int
}

// Reader holds the read side shared by stores and open units of work.
type Reader interface {
	GetAccount(ctx context.Context, id string) (core.Account, error)
	ListAccounts(ctx context.Context, ownerID string, includeInactive bool) ([]core.Account, error)
	ListAccountIDs(ctx context.Context) ([]string, error)
	AccountNumberExists(ctx context.Context, number string) (bool, error)

	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
	SumTransactions(ctx context.Context, f TransactionFilter) (Totals, error)

	GetBudget(ctx context.Context, id string) (core.Budget, error)
	FindBudget(ctx context.Context, ownerID string, category core.Category, month core.Date) (core.Budget, error)
	ListBudgets(ctx context.Context, ownerID string, month *core.Date) ([]core.Budget, error)

	GetProfile(ctx context.Context, userID string) (core.Profile, error)
	LoadSettings(ctx context.Context) (core.Settings, error)
}

// Tx is an open unit of work. Everything written through it commits or
// rolls back together.
type Tx interface {
	Reader

	InsertAccount(ctx context.Context, a core.Account) error
	// UpdateAccount writes a if the stored version still equals a.Version,
	// and stores a.Version+1. Otherwise it returns ErrConflict.
	UpdateAccount(ctx context.Context, a core.Account) error
	DeleteAccount(ctx context.Context, id string) error

	InsertTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	// DeleteTransactionsBySource removes the income and expense rows of accountID.
	DeleteTransactionsBySource(ctx context.Context, accountID string) (int, error)
	// DetachOutgoingTransfers clears the source of transfers out of accountID.
	DetachOutgoingTransfers(ctx context.Context, accountID string) (int, error)
	// DetachIncomingTransfers clears the destination of transfers into accountID.
	DetachIncomingTransfers(ctx context.Context, accountID string) (int, error)
	// PurgeDetachedTransfers removes transfers that have lost both sides.
	PurgeDetachedTransfers(ctx context.Context) (int, error)

	InsertBudget(ctx context.Context, b core.Budget) error
	UpdateBudget(ctx context.Context, b core.Budget) error
	DeleteBudget(ctx context.Context, id string) error

	InsertProfile(ctx context.Context, p core.Profile) error
	SaveSettings(ctx context.Context, s core.Settings) error
}

// Store is a ledger backend.
type Store interface {
	Reader
	// WithTx runs fn in one atomic unit. A non-nil error from fn rolls back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
