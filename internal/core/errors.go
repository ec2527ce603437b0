package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrAmountPrecision    = errors.New("amount has more than two decimal places")
	ErrAmountTooLarge     = errors.New("amount exceeds allowed digits")
	ErrNegativeBalance    = errors.New("balance cannot be negative")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidFrequency   = errors.New("invalid recurrence frequency")
	ErrMissingDestination = errors.New("transfer requires a destination account")
	ErrUnexpectedDest     = errors.New("destination account is only allowed for transfers")
	ErrSelfTransfer       = errors.New("cannot transfer to the same account")
	ErrCurrencyMismatch   = errors.New("accounts use different currencies")
	ErrEmptyName          = errors.New("empty name")
	ErrNameTooLong        = errors.New("name too long (max 100 characters)")
	ErrInvalidNumber      = errors.New("account number must be 10 to 20 characters")
	ErrInvalidCurrency    = errors.New("currency must be a 3-letter code")
	ErrDescriptionTooLong = errors.New("description too long (max 255 characters)")
	ErrDuplicateName      = errors.New("an account with this name already exists")
	ErrDuplicateNumber    = errors.New("account number already in use")
	ErrDuplicateBudget    = errors.New("a budget for this category and month already exists")
	ErrAccountInUse       = errors.New("account has transactions")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidOwner       = errors.New("owner is required")
	ErrMissingAccount     = errors.New("account is required")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidPeriod      = errors.New("period must be week, month or year")

	// ErrNotFound matches every *NotFoundError via errors.Is.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentUpdate is returned when optimistic retries are exhausted.
	ErrConcurrentUpdate = errors.New("concurrent update, retries exhausted")
)

// ValidationError reports a rejected input. Nothing has been written when it
// is returned.
type ValidationError struct {
	Field string
	Err   error
}

// Invalid wraps err as a validation failure on field.
func Invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Err.Error()
	}
	return fmt.Sprintf("validation failed on %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports a missing entity, or one owned by another user.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// IntegrityError reports a storage failure inside an atomic unit. The unit
// has been rolled back.
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity failure during %s: %v", e.Op, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsIntegrity reports whether err carries an *IntegrityError.
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
