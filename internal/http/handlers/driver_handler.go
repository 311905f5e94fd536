// README: Driver search handlers.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"twende/internal/modules/matching"
	"twende/internal/types"
)

type NearbyService interface {
	NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]matching.NearbyDriver, error)
}

type DriverHandler struct {
	matching NearbyService
}

func NewDriverHandler(svc NearbyService) *DriverHandler {
	return &DriverHandler{matching: svc}
}

// Nearby lists available drivers around ?lat=&lng=, closest first.
// radius_km is optional; zero lets the service use its configured radius.
func (h *DriverHandler) Nearby(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	var radius float64
	if v := c.Query("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
		radius = r
	}
	drivers, err := h.matching.NearbyDrivers(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radius)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if drivers == nil {
		drivers = []matching.NearbyDriver{}
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": drivers})
}
