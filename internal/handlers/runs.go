package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const errLimitInvalid = "invalid 'limit'; use a positive integer"

// parseLimit reads ?limit=N. Missing means 0, the store default.
func parseLimit(c *gin.Context) (int, bool) {
	qs := c.Query("limit")
	if qs == "" {
		return 0, true
	}
	n, err := strconv.Atoi(qs)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// @Summary      List runs
// @Description  Most recent finished runs first.
// @Tags         runs
// @Produce      json
// @Param        limit  query  int  false  "Maximum number of runs"  example(20)
// @Success      200  {object}  map[string]interface{}  "count, runs"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/runs [get]
// @Security     BearerAuth
func (h *Handler) listRuns(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": errLimitInvalid})
		return
	}
	runs, err := h.services.RunHistory.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load runs", "runs_list_failed", err, "limit", limit)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(runs),
		"runs":  runs,
	})
}

// @Summary      Get run
// @Tags         runs
// @Produce      json
// @Param        id   path  string  true  "Run ID"
// @Success      200  {object}  models.RunSummary
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/runs/{id} [get]
// @Security     BearerAuth
func (h *Handler) getRun(c *gin.Context) {
	id := c.Param("id")
	run, err := h.services.RunHistory.GetRun(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, "failed to load run", "runs_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, run)
}
