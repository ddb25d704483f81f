package handlers

import (
	"errors"
	"net/http"

	"reflow_oven/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK      = "ok"
	statusQueued  = "queued"
	statusResetOK = "reset"

	errStartRun  = "failed to start run"
	errAbortRun  = "failed to abort run"
	errResetCtl  = "failed to reset controller"
	errGetState  = "failed to load state"
	errBusyQueue = "controller is busy, retry shortly"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// respondServiceError maps domain refusals to 409, a full inbox to 503, an
// unknown run to 404 and everything else to 500.
func (h *Handler) respondServiceError(c *gin.Context, userMsg, logKey string, err error) {
	switch {
	case errors.Is(err, service.ErrRunInProgress),
		errors.Is(err, service.ErrResetRequired),
		errors.Is(err, service.ErrNotTerminal):
		if h.log != nil {
			h.log.Infow(logKey, "err", err)
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrControllerBusy):
		h.logAndJSONError(c, http.StatusServiceUnavailable, errBusyQueue, logKey, err)
	case errors.Is(err, service.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, userMsg, logKey, err)
	}
}

// Respond with a status and include current state if available (best-effort).
func (h *Handler) respondWithStatusAndState(c *gin.Context, status string, extra gin.H) {
	ctx := c.Request.Context()
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	st, err := h.services.Monitoring.GetState(ctx)
	if err == nil {
		resp["state"] = st
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Start a reflow run
// @Description  Queues START. The controller must be IDLE with no latched fault.
// @Tags         oven
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, event, state"
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/oven/start [post]
// @Security     BearerAuth
func (h *Handler) startRun(c *gin.Context) {
	if err := h.services.Oven.Start(c.Request.Context()); err != nil {
		h.respondServiceError(c, errStartRun, "oven_start_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusQueued, gin.H{"event": "START"})
}

// @Summary      Abort the active run
// @Description  Latches ABORT. It is never refused; any queued request is discarded and heaters go off with the door closed on the next tick. Ignored when no run is active.
// @Tags         oven
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/oven/abort [post]
// @Security     BearerAuth
func (h *Handler) abortRun(c *gin.Context) {
	if err := h.services.Oven.Abort(c.Request.Context()); err != nil {
		h.respondServiceError(c, errAbortRun, "oven_abort_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusQueued, gin.H{"event": "ABORT"})
}

// @Summary      Reset the controller
// @Description  Acknowledges DONE, ABORTED or FAULTED and clears the fault latch.
// @Tags         oven
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/oven/reset [post]
// @Security     BearerAuth
func (h *Handler) resetController(c *gin.Context) {
	if err := h.services.Oven.Reset(c.Request.Context()); err != nil {
		h.respondServiceError(c, errResetCtl, "oven_reset_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusQueued, gin.H{"event": "RESET"})
}

// @Summary      Get oven state
// @Tags         oven
// @Produce      json
// @Success      200  {object}  models.OvenState
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/oven/state [get]
// @Security     BearerAuth
func (h *Handler) getState(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.services.Monitoring.GetState(ctx)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "oven_get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}
