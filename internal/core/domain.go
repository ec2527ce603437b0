package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

type (
	AccountType     string
	TransactionType string
	Category        string
	Frequency       string
)

const (
	AccountBank       AccountType = "Bank"
	AccountCash       AccountType = "Cash"
	AccountWallet     AccountType = "Wallet"
	AccountCredit     AccountType = "Credit"
	AccountInvestment AccountType = "Investment"
)

const (
	Income   TransactionType = "income"
	Expense  TransactionType = "expense"
	Transfer TransactionType = "transfer"
)

const (
	CategorySalary        Category = "salary"
	CategoryFreelance     Category = "freelance"
	CategoryInvestment    Category = "investment"
	CategoryDividend      Category = "dividend"
	CategoryFood          Category = "food"
	CategoryTransport     Category = "transport"
	CategoryShopping      Category = "shopping"
	CategoryUtilities     Category = "utilities"
	CategoryEntertainment Category = "entertainment"
	CategoryRent          Category = "rent"
	CategoryMortgage      Category = "mortgage"
	CategoryHealthcare    Category = "healthcare"
	CategoryEducation     Category = "education"
	CategoryInsurance     Category = "insurance"
	CategoryGift          Category = "gift"
	CategoryOther         Category = "other"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// Field limits.
const (
	MaxNameLength        = 100
	MaxDescriptionLength = 255
	MinNumberLength      = 10
	MaxNumberLength      = 20
)

var (
	AccountTypes     = []AccountType{AccountBank, AccountCash, AccountWallet, AccountCredit, AccountInvestment}
	TransactionTypes = []TransactionType{Income, Expense, Transfer}
	Categories       = []Category{
		CategorySalary, CategoryFreelance, CategoryInvestment, CategoryDividend,
		CategoryFood, CategoryTransport, CategoryShopping, CategoryUtilities,
		CategoryEntertainment, CategoryRent, CategoryMortgage, CategoryHealthcare,
		CategoryEducation, CategoryInsurance, CategoryGift, CategoryOther,
	}
	// BudgetCategories is the subset of Categories a budget can track.
	BudgetCategories = []Category{
		CategoryFood, CategoryTransport, CategoryUtilities, CategoryEntertainment,
		CategoryShopping, CategoryHealthcare, CategoryEducation, CategoryOther,
	}
	Frequencies = []Frequency{Daily, Weekly, Monthly, Yearly}
)

func (t AccountType) IsValid() bool {
	for _, v := range AccountTypes {
		if t == v {
			return true
		}
	}
	return false
}

func (t TransactionType) IsValid() bool {
	for _, v := range TransactionTypes {
		if t == v {
			return true
		}
	}
	return false
}

func (c Category) IsValid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// IsBudgetable reports whether a budget may be set for c.
func (c Category) IsBudgetable() bool {
	for _, v := range BudgetCategories {
		if c == v {
			return true
		}
	}
	return false
}

func (f Frequency) IsValid() bool {
	for _, v := range Frequencies {
		if f == v {
			return true
		}
	}
	return false
}

// Date is a calendar date in UTC.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// ParseMonth parses YYYY-MM and returns the first day of that month.
func ParseMonth(s string) (Date, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidMonth
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// MonthStart returns the first day of d's month.
func (d Date) MonthStart() Date {
	return NewDate(d.Year(), int(d.Month()), 1)
}

// NextMonth returns the first day of the month after d's.
func (d Date) NextMonth() Date {
	return Date{Time: d.MonthStart().AddDate(0, 1, 0)}
}

// AddMonths shifts the month start by n months.
func (d Date) AddMonths(n int) Date {
	return Date{Time: d.MonthStart().AddDate(0, n, 0)}
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	p, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = p
	return nil
}

// MarshalJSON shadows time.Time's so dates serialize as YYYY-MM-DD.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	return d.UnmarshalText([]byte(strings.Trim(string(b), `"`)))
}

// Account is a named store of funds owned by one user.
type Account struct {
	ID                  string
	OwnerID             string
	Name                string
	Number              string
	Type                AccountType
	Balance             Money
	// OpeningBalance is the balance the account was created with. It is not
	// part of the transaction history but counts toward the derived balance.
	OpeningBalance      Money
	Currency            string
	IsActive            bool
	LastTransactionDate *time.Time
	// Version increments on every write and guards balance updates.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is an immutable record of one balance change.
type Transaction struct {
	ID          string
	OwnerID     string
	Type        TransactionType
	AccountID   string
	ToAccountID string // transfers only; cleared when the destination is deleted
	Amount      Money
	// BalanceAfter is the source balance right after this transaction.
	BalanceAfter Money
	// ToBalanceAfter is the destination balance right after a transfer.
	ToBalanceAfter      *Money
	Date                Date
	Category            Category
	Description         string
	IsRecurring         bool
	RecurrenceFrequency Frequency
	CreatedAt           time.Time
}

// Budget is a monthly spending limit for one category.
type Budget struct {
	ID        string
	OwnerID   string
	Category  Category
	Amount    Money
	Month     Date // first of month
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is created by provisioning after registration.
type Profile struct {
	UserID    string
	Currency  string
	CreatedAt time.Time
}

// Settings is the application-wide configuration row.
type Settings struct {
	SiteName        string
	Currency        string
	MaintenanceMode bool
	UpdatedAt       time.Time
}

// DefaultSettings mirrors the row seeded by the initial migration.
func DefaultSettings() Settings {
	return Settings{SiteName: "WealthyWise", Currency: DefaultCurrency}
}

// Delta returns the signed effect of t on its source account.
func (t Transaction) Delta() Money {
	if t.Type == Income {
		return t.Amount
	}
	return t.Amount.Neg()
}

// ValidateName checks an account name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// ValidateCurrency checks a 3-letter code. Codes are not checked against ISO.
func ValidateCurrency(c string) error {
	if len(c) != 3 {
		return ErrInvalidCurrency
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return ErrInvalidCurrency
		}
	}
	return nil
}

// ValidateNumber checks an account number's length.
func ValidateNumber(n string) error {
	l := len(strings.TrimSpace(n))
	if l < MinNumberLength || l > MaxNumberLength {
		return ErrInvalidNumber
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.OwnerID) == "" {
		return Invalid("owner", ErrInvalidOwner)
	}
	if err := ValidateName(a.Name); err != nil {
		return Invalid("name", err)
	}
	if err := ValidateNumber(a.Number); err != nil {
		return Invalid("account_number", err)
	}
	if !a.Type.IsValid() {
		return Invalid("account_type", ErrInvalidAccountType)
	}
	if err := ValidateCurrency(a.Currency); err != nil {
		return Invalid("currency", err)
	}
	if err := ValidateBalance(a.Balance); err != nil {
		return Invalid("balance", err)
	}
	if err := ValidateBalance(a.OpeningBalance); err != nil {
		return Invalid("initial_balance", err)
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.OwnerID) == "" {
		return Invalid("owner", ErrInvalidOwner)
	}
	if !b.Category.IsBudgetable() {
		return Invalid("category", ErrInvalidCategory)
	}
	if b.Month.IsZero() {
		return Invalid("month", ErrInvalidMonth)
	}
	if err := ValidateAmount(b.Amount, BudgetAmountDigits, true); err != nil {
		return Invalid("amount", err)
	}
	return nil
}
