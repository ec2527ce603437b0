// Package core provides money handling for the ledger.
//
// Amounts are fixed-point decimals tagged with a three-letter currency code.
// Persistence uses integer minor units (cents) so that SQL aggregation is exact;
// conversion happens only at the storage boundary.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when neither the caller nor the settings supply one.
const DefaultCurrency = "NGN"

// Digit limits (total digits, two of them decimal) per stored quantity.
const (
	TransactionAmountDigits = 10
	BudgetAmountDigits      = 12
	BalanceDigits           = 15
)

var hundred = decimal.NewFromInt(100)

// Money is a fixed-point amount with a currency tag.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney builds a Money from a decimal amount.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// FromCents converts minor units into Money.
func FromCents(cents int64, currency string) Money {
	return Money{Amount: decimal.New(cents, -2), Currency: currency}
}

// ParseMoney parses a decimal string such as "12.34" or "12,34".
// Unlike ParseAmount it accepts zero and negative values.
func ParseMoney(s, currency string) (Money, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return Money{Amount: d, Currency: currency}, nil
}

// ParseAmount parses a strictly positive amount with at most two decimals.
//
// Examples:
//
//	ParseAmount("12.34", "NGN") -> 12.34 NGN, nil
//	ParseAmount("0", "NGN")     -> ErrInvalidAmount
//	ParseAmount("1.234", "NGN") -> ErrAmountPrecision
func ParseAmount(s, currency string) (Money, error) {
	m, err := ParseMoney(s, currency)
	if err != nil {
		return Money{}, err
	}
	if !m.IsPositive() {
		return Money{}, ErrInvalidAmount
	}
	if !m.HasValidScale() {
		return Money{}, ErrAmountPrecision
	}
	return m, nil
}

// Cents returns the amount in minor units, rounding half away from zero.
func (m Money) Cents() int64 {
	return m.Amount.Round(2).Shift(2).IntPart()
}

// Add returns m + o. The result keeps m's currency unless m has none.
func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.pick(o)}
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.pick(o)}
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

func (m Money) pick(o Money) string {
	if m.Currency != "" {
		return m.Currency
	}
	return o.Currency
}

func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Equal compares amounts only.
func (m Money) Equal(o Money) bool {
	return m.Amount.Equal(o.Amount)
}

// Cmp compares amounts only.
func (m Money) Cmp(o Money) int {
	return m.Amount.Cmp(o.Amount)
}

// SameCurrency reports whether both values carry the same currency tag.
func (m Money) SameCurrency(o Money) bool {
	return strings.EqualFold(m.Currency, o.Currency)
}

// HasValidScale reports whether the amount has at most two decimal places.
func (m Money) HasValidScale() bool {
	scaled := m.Amount.Mul(hundred)
	return scaled.Equal(scaled.Truncate(0))
}

// FitsDigits reports whether the amount fits a column with the given total
// digit count and two decimals.
func (m Money) FitsDigits(digits int) bool {
	limit := decimal.New(1, int32(digits-2))
	return m.Amount.Abs().LessThan(limit)
}

// String formats the amount with two decimals, without the currency.
func (m Money) String() string {
	return m.Amount.StringFixed(2)
}

// Display formats the amount followed by its currency.
func (m Money) Display() string {
	if m.Currency == "" {
		return m.String()
	}
	return m.String() + " " + m.Currency
}

// Float64 is for display only. Never accumulate or compare with it.
func (m Money) Float64() float64 {
	f, _ := m.Amount.Float64()
	return f
}

// ValidateAmount checks a transaction or budget amount: positive (or
// non-negative when allowZero), two decimals, and within digits.
func ValidateAmount(m Money, digits int, allowZero bool) error {
	switch {
	case m.IsNegative():
		return ErrInvalidAmount
	case m.IsZero() && !allowZero:
		return ErrInvalidAmount
	case !m.HasValidScale():
		return ErrAmountPrecision
	case !m.FitsDigits(digits):
		return ErrAmountTooLarge
	}
	return nil
}

// ValidateBalance checks a balance about to be committed.
func ValidateBalance(m Money) error {
	if m.IsNegative() {
		return ErrNegativeBalance
	}
	if !m.FitsDigits(BalanceDigits) {
		return ErrAmountTooLarge
	}
	return nil
}

// IsMoneyError reports whether err is one of the amount validation errors.
func IsMoneyError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrAmountPrecision) ||
		errors.Is(err, ErrAmountTooLarge) ||
		errors.Is(err, ErrNegativeBalance)
}
