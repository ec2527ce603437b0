package commands_test

import (
	"bytes"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wealthywise/internal/commands"
)

var createdAccount = regexp.MustCompile(`Created account (\S+)`)

func newDB(t *testing.T) string {
	t.Helper()
	t.Setenv("AMQP_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	return filepath.Join(t.TempDir(), "ledger.db")
}

func runLedgerctl(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	cmd := commands.NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func createAccount(t *testing.T, db, user, name, balance string) string {
	t.Helper()
	out, err := runLedgerctl(t, db, "--user", user, "account", "create", "--name", name, "--type", "Bank", "--balance", balance)
	require.NoError(t, err, out)
	m := createdAccount.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	return m[1]
}

func TestAccountCommands(t *testing.T) {
	db := newDB(t)
	id := createAccount(t, db, "alice", "Main", "120.50")

	out, err := runLedgerctl(t, db, "--user", "alice", "account", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "120.50")

	// Other users do not see it.
	out, err = runLedgerctl(t, db, "--user", "bob", "account", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, id)

	_, err = runLedgerctl(t, db, "--user", "alice", "account", "deactivate", id)
	require.NoError(t, err)
	out, err = runLedgerctl(t, db, "--user", "alice", "account", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, id)
	out, err = runLedgerctl(t, db, "--user", "alice", "account", "list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	_, err = runLedgerctl(t, db, "--user", "alice", "account", "activate", id)
	require.NoError(t, err)

	_, err = runLedgerctl(t, db, "--user", "alice", "tx", "add", "--account", id, "--type", "expense", "--amount", "0.50")
	require.NoError(t, err)

	// A plain delete is refused while transactions reference the account.
	_, err = runLedgerctl(t, db, "--user", "alice", "account", "delete", id)
	require.Error(t, err)

	out, err = runLedgerctl(t, db, "--user", "alice", "account", "delete", id, "--cascade")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 transactions deleted")
}

func TestAccountCreateLargeBalance(t *testing.T) {
	db := newDB(t)
	id := createAccount(t, db, "alice", "Treasury", "250000000.00")

	out, err := runLedgerctl(t, db, "--user", "alice", "tx", "list", "--account", id)
	require.NoError(t, err, out)
	assert.NotContains(t, out, "250000000.00", "the opening balance is not a transaction")

	out, err = runLedgerctl(t, db, "reconcile", id, "--dry-run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 checked, 0 drifted, 0 failed")
}

func TestUserIsRequired(t *testing.T) {
	db := newDB(t)
	_, err := runLedgerctl(t, db, "account", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--user")
}

func TestTxCommands(t *testing.T) {
	db := newDB(t)
	main := createAccount(t, db, "alice", "Main", "100")
	savings := createAccount(t, db, "alice", "Savings", "0")

	out, err := runLedgerctl(t, db, "--user", "alice", "tx", "add",
		"--account", main, "--type", "expense", "--amount", "25.50",
		"--date", "2025-03-02", "--category", "food", "--description", "market")
	require.NoError(t, err, out)
	assert.Contains(t, out, "balance after 74.50")

	out, err = runLedgerctl(t, db, "--user", "alice", "tx", "add",
		"--account", main, "--to", savings, "--type", "transfer", "--amount", "20", "--date", "2025-03-03")
	require.NoError(t, err, out)
	assert.Contains(t, out, "balance after 54.50")
	assert.Contains(t, out, "Destination "+savings+" balance after 20.00")

	// Overdraft is rejected and nothing changes.
	_, err = runLedgerctl(t, db, "--user", "alice", "tx", "add",
		"--account", main, "--type", "expense", "--amount", "1000")
	require.Error(t, err)

	out, err = runLedgerctl(t, db, "--user", "alice", "tx", "list", "--type", "expense")
	require.NoError(t, err)
	assert.Contains(t, out, "market")
	assert.NotContains(t, out, "transfer")

	out, err = runLedgerctl(t, db, "--user", "alice", "tx", "list", "--account", savings)
	require.NoError(t, err)
	assert.Contains(t, out, "transfer")
	assert.NotContains(t, out, "market")

	_, err = runLedgerctl(t, db, "--user", "alice", "tx", "list", "--type", "refund")
	require.Error(t, err)

	out, err = runLedgerctl(t, db, "--user", "alice", "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "74.50")
	assert.NotContains(t, out, "unavailable")
}

func TestChartCommand(t *testing.T) {
	db := newDB(t)
	id := createAccount(t, db, "alice", "Main", "10")
	_, err := runLedgerctl(t, db, "--user", "alice", "tx", "add", "--account", id, "--type", "expense", "--amount", "3")
	require.NoError(t, err)

	out, err := runLedgerctl(t, db, "--user", "alice", "chart", "--period", "month")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Week 1")
	assert.Contains(t, out, "Week 4")
	assert.Contains(t, out, "3.00")

	_, err = runLedgerctl(t, db, "--user", "alice", "chart", "--period", "decade")
	require.Error(t, err)
}

func TestReconcileCommand(t *testing.T) {
	db := newDB(t)
	id := createAccount(t, db, "alice", "Main", "50")

	_, err := runLedgerctl(t, db, "reconcile")
	require.Error(t, err)

	out, err := runLedgerctl(t, db, "reconcile", id, "--dry-run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 checked, 0 drifted, 0 failed")

	out, err = runLedgerctl(t, db, "reconcile", "--all")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 recalculated, 0 corrected, 0 failed")

	out, err = runLedgerctl(t, db, "reconcile", "missing-account", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, out, "1 failed")

	_, err = runLedgerctl(t, db, "reconcile", "--all", "--async")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AMQP_URL")
}

func TestBudgetCommands(t *testing.T) {
	db := newDB(t)
	id := createAccount(t, db, "alice", "Main", "500")

	out, err := runLedgerctl(t, db, "--user", "alice", "budget", "set", "--category", "food", "--month", "2025-03", "--amount", "100")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Created budget")

	out, err = runLedgerctl(t, db, "--user", "alice", "budget", "set", "--category", "food", "--month", "2025-03", "--amount", "80")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Updated budget")

	_, err = runLedgerctl(t, db, "--user", "alice", "tx", "add", "--account", id, "--type", "expense",
		"--amount", "90", "--date", "2025-03-09", "--category", "food")
	require.NoError(t, err)

	out, err = runLedgerctl(t, db, "--user", "alice", "budget", "report", "--month", "2025-03")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Budgets for 2025-03")
	assert.Contains(t, out, "-10.00")
	assert.Contains(t, out, "112.50")

	_, err = runLedgerctl(t, db, "--user", "alice", "budget", "set", "--category", "salary", "--amount", "1")
	require.Error(t, err)

	_, err = runLedgerctl(t, db, "--user", "alice", "budget", "report", "--month", "03-2025")
	require.Error(t, err)

	out, err = runLedgerctl(t, db, "--user", "alice", "budget", "history", "--months", "2")
	require.NoError(t, err, out)
	assert.Contains(t, out, "MONTH")

	_, err = runLedgerctl(t, db, "--user", "alice", "budget", "history", "--months", "30")
	require.Error(t, err)
}

func TestProvisionCommand(t *testing.T) {
	db := newDB(t)

	out, err := runLedgerctl(t, db, "--user", "carol", "provision")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Provisioned user carol")
	assert.Regexp(t, createdAccount, out)

	out, err = runLedgerctl(t, db, "--user", "carol", "provision")
	require.NoError(t, err, out)
	assert.Contains(t, out, "already provisioned")
}

func TestSettingsCommands(t *testing.T) {
	db := newDB(t)

	out, err := runLedgerctl(t, db, "settings", "show")
	require.NoError(t, err, out)
	assert.Contains(t, out, "maintenance:  false")

	_, err = runLedgerctl(t, db, "settings", "set")
	require.Error(t, err)

	out, err = runLedgerctl(t, db, "settings", "set", "--maintenance", "--currency", "usd")
	require.NoError(t, err, out)
	assert.Contains(t, out, "maintenance:  true")
	assert.Contains(t, out, "currency:     USD")

	_, err = runLedgerctl(t, db, "settings", "set", "--currency", "dollars")
	require.Error(t, err)

	out, err = runLedgerctl(t, db, "settings", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "currency:     USD")
}
