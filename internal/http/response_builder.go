// Package http is the JSON API over the ledger services.
//
// This file holds the response shapes and the mapping from service errors
// to status codes. Money is always rendered as a string with two decimals.

package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wealthywise/internal/core"
	"wealthywise/internal/log"
	"wealthywise/internal/services"
)

// Error codes carried in the "code" field of error bodies.
const (
	codeBadRequest    = "bad_request"
	codeSchemaInvalid = "schema_invalid"
	codeValidation    = "validation_failed"
	codeNotFound      = "not_found"
	codeConflict      = "conflict"
	codeUnauthorized  = "unauthorized"
	codeForbidden     = "forbidden"
	codeMaintenance   = "maintenance_mode"
	codeUnavailable   = "unavailable"
	codeInternal      = "internal_error"
)

func abortWithError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

// conflictErrors are validation failures caused by existing state rather
// than by the input itself.
var conflictErrors = []error{
	core.ErrDuplicateName,
	core.ErrDuplicateNumber,
	core.ErrDuplicateBudget,
	core.ErrAccountInUse,
}

// writeError maps a service error onto a status code and error body.
// Unexpected errors are logged and reported without detail.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		status, code := http.StatusUnprocessableEntity, codeValidation
		for _, target := range conflictErrors {
			if errors.Is(ve.Err, target) {
				status, code = http.StatusConflict, codeConflict
				break
			}
		}
		body := gin.H{"error": ve.Err.Error(), "code": code}
		if ve.Field != "" {
			body["field"] = ve.Field
		}
		c.AbortWithStatusJSON(status, body)
	case errors.Is(err, core.ErrNotFound):
		abortWithError(c, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, core.ErrConcurrentUpdate):
		abortWithError(c, http.StatusConflict, codeConflict, "the account changed concurrently, please retry")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		abortWithError(c, http.StatusServiceUnavailable, codeUnavailable, "request cancelled")
	default:
		ctx := c.Request.Context()
		log.FromContext(ctx).ErrorContext(ctx, "Request failed", log.FieldError, err)
		abortWithError(c, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

type accountResponse struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Number              string     `json:"account_number"`
	Type                string     `json:"account_type"`
	Balance             string     `json:"balance"`
	OpeningBalance      string     `json:"opening_balance"`
	Currency            string     `json:"currency"`
	IsActive            bool       `json:"is_active"`
	LastTransactionDate *time.Time `json:"last_transaction_date,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func newAccountResponse(a core.Account) accountResponse {
	return accountResponse{
		ID:                  a.ID,
		Name:                a.Name,
		Number:              a.Number,
		Type:                string(a.Type),
		Balance:             a.Balance.String(),
		OpeningBalance:      a.OpeningBalance.String(),
		Currency:            a.Currency,
		IsActive:            a.IsActive,
		LastTransactionDate: a.LastTransactionDate,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

type transactionResponse struct {
	ID                  string    `json:"id"`
	Type                string    `json:"transaction_type"`
	AccountID           string    `json:"account_id,omitempty"`
	ToAccountID         string    `json:"to_account_id,omitempty"`
	Amount              string    `json:"amount"`
	BalanceAfter        string    `json:"balance_after"`
	ToBalanceAfter      string    `json:"to_balance_after,omitempty"`
	Currency            string    `json:"currency"`
	Date                core.Date `json:"date"`
	Category            string    `json:"category,omitempty"`
	Description         string    `json:"description,omitempty"`
	IsRecurring         bool      `json:"is_recurring"`
	RecurrenceFrequency string    `json:"recurrence_frequency,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

func newTransactionResponse(t core.Transaction) transactionResponse {
	out := transactionResponse{
		ID:                  t.ID,
		Type:                string(t.Type),
		AccountID:           t.AccountID,
		ToAccountID:         t.ToAccountID,
		Amount:              t.Amount.String(),
		BalanceAfter:        t.BalanceAfter.String(),
		Currency:            t.Amount.Currency,
		Date:                t.Date,
		Category:            string(t.Category),
		Description:         t.Description,
		IsRecurring:         t.IsRecurring,
		RecurrenceFrequency: string(t.RecurrenceFrequency),
		CreatedAt:           t.CreatedAt,
	}
	if t.ToBalanceAfter != nil {
		out.ToBalanceAfter = t.ToBalanceAfter.String()
	}
	return out
}

type budgetResponse struct {
	ID             string `json:"id"`
	Category       string `json:"category"`
	Month          string `json:"month"`
	Amount         string `json:"amount"`
	Spent          string `json:"spent"`
	Remaining      string `json:"remaining"`
	PercentageUsed string `json:"percentage_used"`
	OverBudget     bool   `json:"over_budget"`
}

func newBudgetResponse(st core.BudgetStatus) budgetResponse {
	return budgetResponse{
		ID:             st.Budget.ID,
		Category:       string(st.Budget.Category),
		Month:          monthString(st.Budget.Month),
		Amount:         st.Budget.Amount.String(),
		Spent:          st.Spent.String(),
		Remaining:      st.Remaining.String(),
		PercentageUsed: st.PercentageUsed.StringFixed(2),
		OverBudget:     st.OverBudget,
	}
}

func newBudgetResponses(sts []core.BudgetStatus) []budgetResponse {
	out := make([]budgetResponse, 0, len(sts))
	for _, st := range sts {
		out = append(out, newBudgetResponse(st))
	}
	return out
}

type monthReportResponse struct {
	Month          string           `json:"month"`
	Budgets        []budgetResponse `json:"budgets"`
	TotalBudget    string           `json:"total_budget"`
	TotalSpent     string           `json:"total_spent"`
	TotalRemaining string           `json:"total_remaining"`
}

type historyPointResponse struct {
	Month       string `json:"month"`
	TotalBudget string `json:"total_budget"`
	TotalSpent  string `json:"total_spent"`
}

type summaryResponse struct {
	AccountCount     int    `json:"account_count"`
	TotalBalance     string `json:"total_balance"`
	Currency         string `json:"currency"`
	IncomeTotal      string `json:"income_total"`
	ExpenseTotal     string `json:"expense_total"`
	NetFlow          string `json:"net_flow"`
	TransferTotal    string `json:"transfer_total"`
	TransactionCount int    `json:"transaction_count"`
	Available        bool   `json:"available"`
}

func newSummaryResponse(s core.Summary) summaryResponse {
	return summaryResponse{
		AccountCount:     s.AccountCount,
		TotalBalance:     s.TotalBalance.String(),
		Currency:         s.Currency,
		IncomeTotal:      s.IncomeTotal.String(),
		ExpenseTotal:     s.ExpenseTotal.String(),
		NetFlow:          s.NetFlow.String(),
		TransferTotal:    s.TransferTotal.String(),
		TransactionCount: s.TransactionCount,
		Available:        s.Available,
	}
}

type amountByKey struct {
	Key   string `json:"key"`
	Total string `json:"total"`
}

type insightsResponse struct {
	Month               string        `json:"month"`
	MonthIncome         string        `json:"month_income"`
	MonthExpenses       string        `json:"month_expenses"`
	SavingsRate         string        `json:"savings_rate"`
	EmergencyFundMonths string        `json:"emergency_fund_months"`
	ExpenditureRating   string        `json:"expenditure_rating"`
	ExpenseTrend        string        `json:"expense_trend"`
	SpendingPattern     []amountByKey `json:"spending_pattern"`
	TopCategories       []amountByKey `json:"top_categories"`
	GeneratedAt         time.Time     `json:"generated_at"`
}

func newInsightsResponse(in core.Insights) insightsResponse {
	out := insightsResponse{
		Month:               monthString(in.Month),
		MonthIncome:         in.MonthIncome.String(),
		MonthExpenses:       in.MonthExpenses.String(),
		SavingsRate:         in.SavingsRate.StringFixed(2),
		EmergencyFundMonths: in.EmergencyFundMonths.StringFixed(2),
		ExpenditureRating:   in.ExpenditureRating,
		ExpenseTrend:        in.ExpenseTrend.StringFixed(2),
		SpendingPattern:     make([]amountByKey, 0, len(in.SpendingPattern)),
		TopCategories:       make([]amountByKey, 0, len(in.TopCategories)),
		GeneratedAt:         in.GeneratedAt,
	}
	for _, p := range in.SpendingPattern {
		out.SpendingPattern = append(out.SpendingPattern, amountByKey{Key: monthString(p.Month), Total: p.Total.String()})
	}
	for _, cs := range in.TopCategories {
		out.TopCategories = append(out.TopCategories, amountByKey{Key: string(cs.Category), Total: cs.Total.String()})
	}
	return out
}

type chartPointResponse struct {
	Label    string `json:"label"`
	From     string `json:"from"`
	To       string `json:"to"`
	Income   string `json:"income"`
	Expenses string `json:"expenses"`
}

type chartResponse struct {
	Period string               `json:"period"`
	Points []chartPointResponse `json:"points"`
}

func newChartResponse(ch core.Chart) chartResponse {
	out := chartResponse{Period: string(ch.Period), Points: make([]chartPointResponse, 0, len(ch.Points))}
	for _, p := range ch.Points {
		out.Points = append(out.Points, chartPointResponse{
			Label:    p.Label,
			From:     p.From.String(),
			To:       p.To.String(),
			Income:   p.Income.String(),
			Expenses: p.Expenses.String(),
		})
	}
	return out
}

type reconcileResult struct {
	AccountID    string `json:"account_id"`
	Stored       string `json:"stored,omitempty"`
	Recalculated string `json:"recalculated,omitempty"`
	Difference   string `json:"difference,omitempty"`
	Drift        bool   `json:"drift"`
	Corrected    bool   `json:"corrected"`
	Error        string `json:"error,omitempty"`
}

func driftResult(d core.Drift, err error) reconcileResult {
	out := reconcileResult{AccountID: d.AccountID}
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Stored = d.Stored.String()
	out.Recalculated = d.Recalculated.String()
	out.Difference = d.Difference().String()
	out.Drift = d.HasDrift()
	return out
}

func reconciliationResult(r core.Reconciliation) reconcileResult {
	out := reconcileResult{AccountID: r.AccountID}
	if r.Err != nil {
		out.Error = r.Err.Error()
		return out
	}
	out.Stored = r.Previous.String()
	out.Recalculated = r.Balance.String()
	out.Difference = r.Previous.Sub(r.Balance).String()
	out.Drift = !r.Previous.Equal(r.Balance)
	out.Corrected = r.Corrected()
	return out
}

type settingsResponse struct {
	SiteName        string    `json:"site_name"`
	Currency        string    `json:"currency"`
	MaintenanceMode bool      `json:"maintenance_mode"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func newSettingsResponse(s core.Settings) settingsResponse {
	return settingsResponse{
		SiteName:        s.SiteName,
		Currency:        s.Currency,
		MaintenanceMode: s.MaintenanceMode,
		UpdatedAt:       s.UpdatedAt,
	}
}

type provisionResponse struct {
	UserID   string           `json:"user_id"`
	Currency string           `json:"currency"`
	Created  bool             `json:"created"`
	Account  *accountResponse `json:"account,omitempty"`
}

func newProvisionResponse(p services.Provisioning) provisionResponse {
	out := provisionResponse{
		UserID:   p.Profile.UserID,
		Currency: p.Profile.Currency,
		Created:  p.Created,
	}
	if p.Account != nil {
		a := newAccountResponse(*p.Account)
		out.Account = &a
	}
	return out
}

func monthString(d core.Date) string {
	return d.Format("2006-01")
}
