package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"wealthywise/internal/core"
	"wealthywise/internal/services"
)

type commitRequest struct {
	Type                core.TransactionType `json:"transaction_type"`
	AccountID           string               `json:"account_id"`
	ToAccountID         string               `json:"to_account_id"`
	Amount              decimal.Decimal      `json:"amount"`
	Date                string               `json:"date"`
	Category            core.Category        `json:"category"`
	Description         string               `json:"description"`
	IsRecurring         bool                 `json:"is_recurring"`
	RecurrenceFrequency core.Frequency       `json:"recurrence_frequency"`
}

func (s *Server) handleCommitTransaction(c *gin.Context) {
	var req commitRequest
	if !bindValidated(c, s.schemas.Commit, &req) {
		return
	}

	var date core.Date
	if v := strings.TrimSpace(req.Date); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			writeError(c, core.Invalid("date", core.ErrInvalidDate))
			return
		}
		date = d
	}

	t, err := s.ledger.Commit(c.Request.Context(), services.CommitRequest{
		OwnerID:             currentUser(c),
		AccountID:           req.AccountID,
		ToAccountID:         req.ToAccountID,
		Type:                req.Type,
		Amount:              req.Amount,
		Date:                date,
		Category:            req.Category,
		Description:         sanitizeInput(req.Description),
		IsRecurring:         req.IsRecurring,
		RecurrenceFrequency: req.RecurrenceFrequency,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newTransactionResponse(t))
}

func (s *Server) handleListTransactions(c *gin.Context) {
	f, err := parseTransactionFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}
	ts, err := s.ledger.List(c.Request.Context(), currentUser(c), f)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]transactionResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, newTransactionResponse(t))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

func (s *Server) handleGetTransaction(c *gin.Context) {
	t, err := s.ledger.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTransactionResponse(t))
}

// handleDeleteTransaction removes a transaction and reverses its effect.
func (s *Server) handleDeleteTransaction(c *gin.Context) {
	if err := s.ledger.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
