package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary      Calibration status
// @Description  Learned duty and time-to-target per heating stage, plus convergence progress.
// @Tags         calibration
// @Produce      json
// @Success      200  {object}  models.CalibrationStatus
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/calibration [get]
// @Security     BearerAuth
func (h *Handler) getCalibration(c *gin.Context) {
	st, err := h.services.Calibration.Status(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load calibration", "calibration_status_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Restart learning
// @Description  Discards learned duty. Refused while a run is active.
// @Tags         calibration
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, calibration"
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/calibration/reset [post]
// @Security     BearerAuth
func (h *Handler) resetCalibration(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Calibration.ResetLearning(ctx); err != nil {
		h.respondServiceError(c, "failed to reset calibration", "calibration_reset_failed", err)
		return
	}
	resp := gin.H{"status": statusResetOK}
	if st, err := h.services.Calibration.Status(ctx); err == nil {
		resp["calibration"] = st
	}
	c.JSON(http.StatusOK, resp)
}
