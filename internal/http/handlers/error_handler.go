// README: Client error reports.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"twende/internal/http/middleware"
	"twende/internal/modules/errorlog"
	"twende/internal/types"
)

type ErrorLogService interface {
	Report(ctx context.Context, cmd errorlog.ReportCommand) (*errorlog.Entry, error)
	Recent(ctx context.Context, limit int) ([]errorlog.Entry, error)
}

type ErrorHandler struct {
	errors ErrorLogService
}

func NewErrorHandler(svc ErrorLogService) *ErrorHandler {
	return &ErrorHandler{errors: svc}
}

type errorReportReq struct {
	RideID  string `json:"ride_id"`
	Token   string `json:"token"`
	Level   string `json:"level" binding:"required"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// Report records an error from the caller's app.
func (h *ErrorHandler) Report(c *gin.Context) {
	var req errorReportReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if req.RideID != "" && !isValidID(req.RideID) {
		writeError(c, http.StatusBadRequest, "invalid ride_id")
		return
	}
	e, err := h.errors.Report(c.Request.Context(), errorlog.ReportCommand{
		UserID:  types.ID(middleware.CallerUID(c)),
		RideID:  types.ID(req.RideID),
		Token:   req.Token,
		Level:   req.Level,
		Message: req.Message,
		Data:    req.Data,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, e)
}

func (h *ErrorHandler) Recent(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := h.errors.Recent(c.Request.Context(), limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if entries == nil {
		entries = []errorlog.Entry{}
	}
	writeJSON(c, http.StatusOK, gin.H{"errors": entries})
}
