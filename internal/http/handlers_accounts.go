package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"wealthywise/internal/core"
	"wealthywise/internal/services"
)

type createAccountRequest struct {
	Name           string          `json:"name"`
	Type           string          `json:"account_type"`
	Number         string          `json:"account_number"`
	Currency       string          `json:"currency"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type updateAccountRequest struct {
	Name *string           `json:"name"`
	Type *core.AccountType `json:"account_type"`
}

type setBalanceRequest struct {
	Balance *decimal.Decimal `json:"balance"`
}

func (s *Server) handleCreateAccount(c *gin.Context) {
	var req createAccountRequest
	if !bindValidated(c, s.schemas.Account, &req) {
		return
	}
	a, err := s.registry.Create(c.Request.Context(), services.CreateAccountParams{
		OwnerID:        currentUser(c),
		Name:           sanitizeInput(req.Name),
		Type:           core.AccountType(req.Type),
		Number:         sanitizeInput(req.Number),
		Currency:       strings.ToUpper(strings.TrimSpace(req.Currency)),
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newAccountResponse(a))
}

func (s *Server) handleListAccounts(c *gin.Context) {
	as, err := s.registry.List(c.Request.Context(), currentUser(c), queryBool(c, "include_inactive"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]accountResponse, 0, len(as))
	for _, a := range as {
		out = append(out, newAccountResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

func (s *Server) handleGetAccount(c *gin.Context) {
	a, err := s.registry.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAccountResponse(a))
}

func (s *Server) handleUpdateAccount(c *gin.Context) {
	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, codeBadRequest, "invalid JSON body")
		return
	}
	if req.Name != nil {
		name := sanitizeInput(*req.Name)
		req.Name = &name
	}
	a, err := s.registry.Update(c.Request.Context(), currentUser(c), c.Param("id"), services.AccountUpdate{
		Name: req.Name,
		Type: req.Type,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAccountResponse(a))
}

func (s *Server) handleSetBalance(c *gin.Context) {
	var req setBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Balance == nil {
		abortWithError(c, http.StatusBadRequest, codeBadRequest, "body must be {\"balance\": \"<amount>\"}")
		return
	}
	a, err := s.registry.SetBalance(c.Request.Context(), currentUser(c), c.Param("id"), *req.Balance)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAccountResponse(a))
}

func (s *Server) handleActivateAccount(c *gin.Context) {
	a, err := s.registry.Activate(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAccountResponse(a))
}

func (s *Server) handleDeactivateAccount(c *gin.Context) {
	a, err := s.registry.Deactivate(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAccountResponse(a))
}

// handleDeleteAccount deletes with ?policy=restrict (default) or cascade.
func (s *Server) handleDeleteAccount(c *gin.Context) {
	policy := services.DeletePolicy(c.DefaultQuery("policy", string(services.Restrict)))
	if !policy.IsValid() {
		abortWithError(c, http.StatusUnprocessableEntity, codeValidation, "policy must be restrict or cascade")
		return
	}
	res, err := s.registry.Delete(c.Request.Context(), currentUser(c), c.Param("id"), policy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deleted":              true,
		"policy":               policy,
		"deleted_transactions": res.DeletedTransactions,
		"detached_transfers":   res.DetachedTransfers,
	})
}
