package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"wealthywise/internal/core"
)

type budgetRequest struct {
	Category core.Category   `json:"category"`
	Month    string          `json:"month"`
	Amount   decimal.Decimal `json:"amount"`
}

// handleUpsertBudget answers 201 when the budget was created and 200 when
// an existing one was updated.
func (s *Server) handleUpsertBudget(c *gin.Context) {
	var req budgetRequest
	if !bindValidated(c, s.schemas.Budget, &req) {
		return
	}
	month, err := core.ParseMonth(req.Month)
	if err != nil {
		writeError(c, core.Invalid("month", core.ErrInvalidMonth))
		return
	}

	ctx := c.Request.Context()
	userID := currentUser(c)
	b, created, err := s.budgets.Upsert(ctx, userID, req.Category, month, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	st, err := s.budgets.Status(ctx, userID, b.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, newBudgetResponse(st))
}

// handleListBudgets lists every budget, or one month's with ?month=YYYY-MM.
func (s *Server) handleListBudgets(c *gin.Context) {
	month, err := queryMonth(c, "month")
	if err != nil {
		writeError(c, err)
		return
	}
	sts, err := s.budgets.List(c.Request.Context(), currentUser(c), month)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"budgets": newBudgetResponses(sts)})
}

func (s *Server) handleGetBudget(c *gin.Context) {
	st, err := s.budgets.Status(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBudgetResponse(st))
}

func (s *Server) handleDeleteBudget(c *gin.Context) {
	if err := s.budgets.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleBudgetReport reports ?month=YYYY-MM, defaulting to the current month.
func (s *Server) handleBudgetReport(c *gin.Context) {
	month, err := queryMonth(c, "month")
	if err != nil {
		writeError(c, err)
		return
	}
	var m core.Date
	if month != nil {
		m = *month
	}
	rep, err := s.budgets.MonthReport(c.Request.Context(), currentUser(c), m)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, monthReportResponse{
		Month:          monthString(rep.Month),
		Budgets:        newBudgetResponses(rep.Budgets),
		TotalBudget:    rep.TotalBudget.String(),
		TotalSpent:     rep.TotalSpent.String(),
		TotalRemaining: rep.TotalRemaining.String(),
	})
}

// handleBudgetHistory returns the last ?months=n months, oldest first.
func (s *Server) handleBudgetHistory(c *gin.Context) {
	n, err := queryInt(c, "months", 6, 1, maxHistoryMonths)
	if err != nil {
		writeError(c, err)
		return
	}
	points, err := s.budgets.History(c.Request.Context(), currentUser(c), n)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]historyPointResponse, 0, len(points))
	for _, p := range points {
		out = append(out, historyPointResponse{
			Month:       monthString(p.Month),
			TotalBudget: p.TotalBudget.String(),
			TotalSpent:  p.TotalSpent.String(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}
