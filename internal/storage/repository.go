package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"wealthywise/internal/core"
)

// Fixed-width so that timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	q queryer
}

// SQLiteRepository is the relational ledger store.
type SQLiteRepository struct {
	conn
	db  *sql.DB
	dsn string
}

type sqliteTx struct {
	conn
}

var _ Store = (*SQLiteRepository)(nil)
var _ Tx = (*sqliteTx)(nil)

// DSN builds a modernc.org/sqlite data source with the pragmas the ledger
// relies on. Transactions begin IMMEDIATE so a unit holds the write lock from
// its first read.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; units of work serialize on the single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite ledger store ready", "path", dbPath)

	return &SQLiteRepository{conn: conn{q: db}, db: db, dsn: dsn}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// DSN returns the data source the repository was opened with.
func (r *SQLiteRepository) DSN() string { return r.dsn }

func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&sqliteTx{conn: conn{q: sqlTx}}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}
	return nil
}

// mapError translates driver constraint errors into storage errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		msg := se.Error()
		switch {
		case se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
			se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
			strings.Contains(msg, "UNIQUE constraint failed"):
			return &DuplicateError{Key: uniqueKey(msg)}
		case se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
			strings.Contains(msg, "FOREIGN KEY constraint failed"):
			return fmt.Errorf("%w: %v", ErrReferenced, se)
		}
	}
	return err
}

func uniqueKey(msg string) string {
	switch {
	case strings.Contains(msg, "accounts.account_number"):
		return KeyAccountNumber
	case strings.Contains(msg, "accounts.name"):
		return KeyAccountName
	case strings.Contains(msg, "budgets."):
		return KeyBudget
	case strings.Contains(msg, "profiles."):
		return KeyProfile
	}
	return KeyPrimary
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Accounts

const accountColumns = `id, owner_id, name, account_number, account_type, balance_cents,
	opening_balance_cents, currency, is_active, last_transaction_at, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(s rowScanner) (core.Account, error) {
	var (
		a                core.Account
		balance          int64
		opening          int64
		active           int
		lastTx           sql.NullString
		created, updated string
		accountType      string
	)
	err := s.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Number, &accountType, &balance, &opening, &a.Currency,
		&active, &lastTx, &a.Version, &created, &updated)
	if err != nil {
		return core.Account{}, err
	}
	a.Type = core.AccountType(accountType)
	a.Balance = core.FromCents(balance, a.Currency)
	a.OpeningBalance = core.FromCents(opening, a.Currency)
	a.IsActive = active == 1
	if lastTx.Valid {
		t := parseTime(lastTx.String)
		a.LastTransactionDate = &t
	}
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return a, nil
}

func (c conn) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		return core.Account{}, mapError(err)
	}
	return a, nil
}

func (c conn) ListAccounts(ctx context.Context, ownerID string, includeInactive bool) ([]core.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = ?`
	if !includeInactive {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY created_at, name`

	rows, err := c.q.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (c conn) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT id FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query account ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c conn) AccountNumberExists(ctx context.Context, number string) (bool, error) {
	var n int
	err := c.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM accounts WHERE account_number = ?`, number).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *sqliteTx) InsertAccount(ctx context.Context, a core.Account) error {
	var lastTx sql.NullString
	if a.LastTransactionDate != nil {
		lastTx = nullString(formatTime(*a.LastTransactionDate))
	}
	_, err := t.q.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OwnerID, a.Name, a.Number, string(a.Type), a.Balance.Cents(), a.OpeningBalance.Cents(), a.Currency,
		boolInt(a.IsActive), lastTx, a.Version, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	return mapError(err)
}

func (t *sqliteTx) UpdateAccount(ctx context.Context, a core.Account) error {
	var lastTx sql.NullString
	if a.LastTransactionDate != nil {
		lastTx = nullString(formatTime(*a.LastTransactionDate))
	}
	res, err := t.q.ExecContext(ctx, `UPDATE accounts SET
			name = ?, account_type = ?, balance_cents = ?, currency = ?, is_active = ?,
			last_transaction_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		a.Name, string(a.Type), a.Balance.Cents(), a.Currency, boolInt(a.IsActive),
		lastTx, formatTime(a.UpdatedAt), a.ID, a.Version)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := t.GetAccount(ctx, a.ID); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (t *sqliteTx) DeleteAccount(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Transactions

const transactionColumns = `id, owner_id, transaction_type, account_id, to_account_id, amount_cents,
	balance_after_cents, to_balance_after_cents, currency, date, category, description,
	is_recurring, recurrence_frequency, created_at`

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		tx               core.Transaction
		txType, category string
		accountID, toID  sql.NullString
		amount, after    int64
		toAfter          sql.NullInt64
		currency, date   string
		recurring        int
		frequency        sql.NullString
		created          string
	)
	err := s.Scan(&tx.ID, &tx.OwnerID, &txType, &accountID, &toID, &amount, &after, &toAfter,
		&currency, &date, &category, &tx.Description, &recurring, &frequency, &created)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.TransactionType(txType)
	tx.AccountID = accountID.String
	tx.ToAccountID = toID.String
	tx.Amount = core.FromCents(amount, currency)
	tx.BalanceAfter = core.FromCents(after, currency)
	if toAfter.Valid {
		m := core.FromCents(toAfter.Int64, currency)
		tx.ToBalanceAfter = &m
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	tx.Date = d
	tx.Category = core.Category(category)
	tx.IsRecurring = recurring == 1
	tx.RecurrenceFrequency = core.Frequency(frequency.String)
	tx.CreatedAt = parseTime(created)
	return tx, nil
}

func (c conn) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, mapError(err)
	}
	return tx, nil
}

func transactionWhere(f TransactionFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.AccountID != "" {
		clauses = append(clauses, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.ToAccountID != "" {
		clauses = append(clauses, "to_account_id = ?")
		args = append(args, f.ToAccountID)
	}
	if f.Touching != "" {
		clauses = append(clauses, "(account_id = ? OR to_account_id = ?)")
		args = append(args, f.Touching, f.Touching)
	}
	if f.Type != "" {
		clauses = append(clauses, "transaction_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.From != nil {
		clauses = append(clauses, "date >= ?")
		args = append(args, f.From.String())
	}
	if f.Until != nil {
		clauses = append(clauses, "date < ?")
		args = append(args, f.Until.String())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (c conn) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	where, args := transactionWhere(f)
	query := `SELECT ` + transactionColumns + ` FROM transactions` + where + ` ORDER BY date DESC, created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (c conn) SumTransactions(ctx context.Context, f TransactionFilter) (Totals, error) {
	where, args := transactionWhere(f)
	var totals Totals
	err := c.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0), COUNT(1) FROM transactions`+where, args...).
		Scan(&totals.Cents, &totals.Count)
	if err != nil {
		return Totals{}, fmt.Errorf("sum transactions: %w", err)
	}
	return totals, nil
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, tx core.Transaction) error {
	var toAfter sql.NullInt64
	if tx.ToBalanceAfter != nil {
		toAfter = sql.NullInt64{Int64: tx.ToBalanceAfter.Cents(), Valid: true}
	}
	_, err := t.q.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.OwnerID, string(tx.Type), nullString(tx.AccountID), nullString(tx.ToAccountID),
		tx.Amount.Cents(), tx.BalanceAfter.Cents(), toAfter, tx.Amount.Currency, tx.Date.String(),
		string(tx.Category), tx.Description, boolInt(tx.IsRecurring),
		nullString(string(tx.RecurrenceFrequency)), formatTime(tx.CreatedAt))
	return mapError(err)
}

func (t *sqliteTx) DeleteTransaction(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

func (t *sqliteTx) DeleteTransactionsBySource(ctx context.Context, accountID string) (int, error) {
	return t.execCount(ctx, `DELETE FROM transactions WHERE account_id = ? AND transaction_type <> 'transfer'`, accountID)
}

func (t *sqliteTx) DetachOutgoingTransfers(ctx context.Context, accountID string) (int, error) {
	return t.execCount(ctx,
		`UPDATE transactions SET account_id = NULL WHERE account_id = ? AND transaction_type = 'transfer'`, accountID)
}

func (t *sqliteTx) DetachIncomingTransfers(ctx context.Context, accountID string) (int, error) {
	return t.execCount(ctx,
		`UPDATE transactions SET to_account_id = NULL, to_balance_after_cents = NULL WHERE to_account_id = ?`, accountID)
}

func (t *sqliteTx) PurgeDetachedTransfers(ctx context.Context) (int, error) {
	return t.execCount(ctx,
		`DELETE FROM transactions WHERE transaction_type = 'transfer' AND account_id IS NULL AND to_account_id IS NULL`)
}

func (t *sqliteTx) execCount(ctx context.Context, query string, args ...any) (int, error) {
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Budgets

const budgetColumns = `id, owner_id, category, amount_cents, currency, month, created_at, updated_at`

func scanBudget(s rowScanner) (core.Budget, error) {
	var (
		b                         core.Budget
		category, currency, month string
		amount                    int64
		created, updated          string
	)
	if err := s.Scan(&b.ID, &b.OwnerID, &category, &amount, &currency, &month, &created, &updated); err != nil {
		return core.Budget{}, err
	}
	m, err := core.ParseDate(month)
	if err != nil {
		return core.Budget{}, fmt.Errorf("parse month %q: %w", month, err)
	}
	b.Category = core.Category(category)
	b.Amount = core.FromCents(amount, currency)
	b.Month = m
	b.CreatedAt = parseTime(created)
	b.UpdatedAt = parseTime(updated)
	return b, nil
}

func (c conn) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	b, err := scanBudget(c.q.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id))
	if err != nil {
		return core.Budget{}, mapError(err)
	}
	return b, nil
}

func (c conn) FindBudget(ctx context.Context, ownerID string, category core.Category, month core.Date) (core.Budget, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets
		WHERE owner_id = ? AND category = ? AND month = ?`, ownerID, string(category), month.MonthStart().String())
	b, err := scanBudget(row)
	if err != nil {
		return core.Budget{}, mapError(err)
	}
	return b, nil
}

func (c conn) ListBudgets(ctx context.Context, ownerID string, month *core.Date) ([]core.Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM budgets WHERE owner_id = ?`
	args := []any{ownerID}
	if month != nil {
		query += ` AND month = ?`
		args = append(args, month.MonthStart().String())
	}
	query += ` ORDER BY month DESC, category`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var budgets []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (t *sqliteTx) InsertBudget(ctx context.Context, b core.Budget) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO budgets (`+budgetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, string(b.Category), b.Amount.Cents(), b.Amount.Currency,
		b.Month.MonthStart().String(), formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	return mapError(err)
}

func (t *sqliteTx) UpdateBudget(ctx context.Context, b core.Budget) error {
	res, err := t.q.ExecContext(ctx, `UPDATE budgets SET amount_cents = ?, currency = ?, updated_at = ? WHERE id = ?`,
		b.Amount.Cents(), b.Amount.Currency, formatTime(b.UpdatedAt), b.ID)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

func (t *sqliteTx) DeleteBudget(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

// Profiles and settings

func (c conn) GetProfile(ctx context.Context, userID string) (core.Profile, error) {
	var (
		p       core.Profile
		created string
	)
	err := c.q.QueryRowContext(ctx, `SELECT user_id, currency, created_at FROM profiles WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.Currency, &created)
	if err != nil {
		return core.Profile{}, mapError(err)
	}
	p.CreatedAt = parseTime(created)
	return p, nil
}

func (t *sqliteTx) InsertProfile(ctx context.Context, p core.Profile) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO profiles (user_id, currency, created_at) VALUES (?, ?, ?)`,
		p.UserID, p.Currency, formatTime(p.CreatedAt))
	return mapError(err)
}

func (c conn) LoadSettings(ctx context.Context) (core.Settings, error) {
	var (
		s           core.Settings
		maintenance int
		updated     string
	)
	err := c.q.QueryRowContext(ctx,
		`SELECT site_name, currency, maintenance_mode, updated_at FROM app_settings WHERE id = 1`).
		Scan(&s.SiteName, &s.Currency, &maintenance, &updated)
	if err != nil {
		return core.Settings{}, mapError(err)
	}
	s.MaintenanceMode = maintenance == 1
	s.UpdatedAt = parseTime(updated)
	return s, nil
}

func (t *sqliteTx) SaveSettings(ctx context.Context, s core.Settings) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO app_settings (id, site_name, currency, maintenance_mode, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			site_name = excluded.site_name,
			currency = excluded.currency,
			maintenance_mode = excluded.maintenance_mode,
			updated_at = excluded.updated_at`,
		s.SiteName, s.Currency, boolInt(s.MaintenanceMode), formatTime(s.UpdatedAt))
	return mapError(err)
}
