package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wealthywise/internal/core"
	"wealthywise/internal/log"
)

// handleSummary returns the dashboard summary. The unfiltered summary is
// served from cache; a degraded one (available=false) is never cached.
func (s *Server) handleSummary(c *gin.Context) {
	rng, err := parseSummaryRange(c)
	if err != nil {
		writeError(c, err)
		return
	}
	ctx := c.Request.Context()
	userID := currentUser(c)

	if !rng.IsZero() {
		c.JSON(http.StatusOK, newSummaryResponse(s.summaries.TransactionSummary(ctx, userID, rng)))
		return
	}

	key := summaryCacheKey(userID)
	if sum, ok := s.summaryCache.Get(key); ok {
		log.FromContext(ctx).DebugContext(ctx, "Summary cache hit")
		c.Header("X-Cache", "hit")
		c.JSON(http.StatusOK, newSummaryResponse(sum))
		return
	}

	sum := s.summaries.TransactionSummary(ctx, userID, rng)
	if sum.Available {
		s.summaryCache.Set(key, sum)
	}
	c.Header("X-Cache", "miss")
	c.JSON(http.StatusOK, newSummaryResponse(sum))
}

// handleInsights reports ?month=YYYY-MM, defaulting to the current month.
func (s *Server) handleInsights(c *gin.Context) {
	month, err := queryMonth(c, "month")
	if err != nil {
		writeError(c, err)
		return
	}
	var m core.Date
	if month != nil {
		m = *month
	}
	in, err := s.summaries.Insights(c.Request.Context(), currentUser(c), m)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newInsightsResponse(in))
}

// handleChart reports income against expenses for ?period=week|month|year,
// defaulting to week.
func (s *Server) handleChart(c *gin.Context) {
	period := core.ChartPeriod(strings.ToLower(c.DefaultQuery("period", string(core.ChartWeek))))
	chart, err := s.summaries.Chart(c.Request.Context(), currentUser(c), period)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newChartResponse(chart))
}

// handleProvision prepares the calling user. Repeating it is harmless.
func (s *Server) handleProvision(c *gin.Context) {
	p, err := s.provisioner.Provision(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if p.Created {
		status = http.StatusCreated
	}
	c.JSON(status, newProvisionResponse(p))
}
