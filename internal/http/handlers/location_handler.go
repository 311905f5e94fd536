// README: Location handlers: sample ingestion and the caller's recent trail.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"twende/internal/http/middleware"
	"twende/internal/modules/location"
	"twende/internal/types"
)

type LocationService interface {
	Record(ctx context.Context, cmd location.RecordCommand) (*location.Sample, error)
	Recent(ctx context.Context, userID types.ID, limit int) ([]location.Sample, error)
}

type LocationHandler struct {
	location LocationService
}

func NewLocationHandler(svc LocationService) *LocationHandler {
	return &LocationHandler{location: svc}
}

// Record stores a position sample for the caller. Callers can only report
// their own position.
func (h *LocationHandler) Record(c *gin.Context) {
	var req pointBody
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	smp, err := h.location.Record(c.Request.Context(), location.RecordCommand{
		UserID:   types.ID(middleware.CallerUID(c)),
		Position: *req.point(),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, smp)
}

func (h *LocationHandler) Recent(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	samples, err := h.location.Recent(c.Request.Context(), types.ID(middleware.CallerUID(c)), limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if samples == nil {
		samples = []location.Sample{}
	}
	writeJSON(c, http.StatusOK, gin.H{"samples": samples})
}
