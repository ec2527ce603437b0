package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wealthywise/internal/amqp"
	"wealthywise/internal/log"
)

type reconcileRequest struct {
	AccountIDs []string `json:"account_ids"`
	All        bool     `json:"all"`
	Correct    bool     `json:"correct"`
	Async      bool     `json:"async"`
}

type saveSettingsRequest struct {
	SiteName        *string `json:"site_name"`
	Currency        *string `json:"currency"`
	MaintenanceMode *bool   `json:"maintenance_mode"`
}

// handleReconcile checks or recalculates the given accounts, or every
// account with "all". With "async" the request is queued for the worker.
func (s *Server) handleReconcile(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, codeBadRequest, "invalid JSON body")
		return
	}
	ids := make([]string, 0, len(req.AccountIDs))
	for _, id := range req.AccountIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 && !req.All {
		abortWithError(c, http.StatusUnprocessableEntity, codeValidation, "give account_ids or set all")
		return
	}

	ctx := c.Request.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentReconciler)

	if req.Async {
		if s.events == nil {
			abortWithError(c, http.StatusServiceUnavailable, codeUnavailable, "event bus is not configured")
			return
		}
		// An empty list tells the worker to take every account.
		if req.All {
			ids = nil
		}
		err := s.events.PublishReconcileRequested(ctx, amqp.ReconcileRequested{
			AccountIDs:  ids,
			Correct:     req.Correct,
			RequestedBy: "admin-api",
		})
		if err != nil {
			logger.ErrorContext(ctx, "Failed to queue reconciliation", log.FieldError, err)
			abortWithError(c, http.StatusServiceUnavailable, codeUnavailable, "could not queue reconciliation")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": true, "accounts": len(ids), "correct": req.Correct})
		return
	}

	if req.All {
		all, err := s.reconciler.AllAccountIDs(ctx)
		if err != nil {
			writeError(c, err)
			return
		}
		ids = all
	}

	results := make([]reconcileResult, 0, len(ids))
	drifted := 0
	if req.Correct {
		recs, err := s.reconciler.RecalculateMany(ctx, ids)
		if err != nil {
			writeError(c, err)
			return
		}
		for _, r := range recs {
			res := reconciliationResult(r)
			if res.Drift {
				drifted++
			}
			results = append(results, res)
		}
		// Balances of any user may have changed.
		s.summaryCache.DeletePrefix("")
	} else {
		drifts, errs, err := s.reconciler.CheckMany(ctx, ids)
		if err != nil {
			writeError(c, err)
			return
		}
		for i, d := range drifts {
			res := driftResult(d, errs[i])
			if res.Drift {
				drifted++
			}
			results = append(results, res)
		}
	}

	logger.InfoContext(ctx, "Reconciliation finished",
		"accounts", len(ids),
		"drifted", drifted,
		"correct", req.Correct)
	c.JSON(http.StatusOK, gin.H{"results": results, "accounts": len(ids), "drifted": drifted})
}

// handleDrift compares one account's stored balance with its history.
func (s *Server) handleDrift(c *gin.Context) {
	id := c.Param("id")
	d, err := s.reconciler.Check(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	d.AccountID = id
	c.JSON(http.StatusOK, driftResult(d, nil))
}

func (s *Server) handleGetSettings(c *gin.Context) {
	st, err := s.settings.Load(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSettingsResponse(st))
}

// handleSaveSettings changes the given fields and leaves the rest.
func (s *Server) handleSaveSettings(c *gin.Context) {
	var req saveSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, codeBadRequest, "invalid JSON body")
		return
	}
	ctx := c.Request.Context()
	st, err := s.settings.Load(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	if req.SiteName != nil {
		st.SiteName = sanitizeInput(*req.SiteName)
	}
	if req.Currency != nil {
		st.Currency = *req.Currency
	}
	if req.MaintenanceMode != nil {
		st.MaintenanceMode = *req.MaintenanceMode
	}
	saved, err := s.settings.Save(ctx, st)
	if err != nil {
		writeError(c, err)
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Settings updated", "maintenance_mode", saved.MaintenanceMode)
	c.JSON(http.StatusOK, newSettingsResponse(saved))
}
