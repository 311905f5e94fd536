// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"twende/internal/modules/assist"
	"twende/internal/modules/errorlog"
	"twende/internal/modules/location"
	"twende/internal/modules/matching"
	"twende/internal/modules/notify"
	"twende/internal/modules/payment"
	"twende/internal/modules/pricing"
	"twende/internal/modules/ride"
	"twende/internal/modules/user"
	"twende/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

type pointBody struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

func (p *pointBody) point() *types.Point {
	if p == nil || p.Lat == nil || p.Lng == nil {
		return nil
	}
	return &types.Point{Lat: *p.Lat, Lng: *p.Lng}
}

// isValidID accepts Firebase uids and uuids.
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

// pathID reads and validates an id path parameter, writing 400 on failure.
func pathID(c *gin.Context, name string) (types.ID, bool) {
	v := c.Param(name)
	if !isValidID(v) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return types.ID(v), true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeServiceError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		writeError(c, status, "internal error")
		return
	}
	writeError(c, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ride.ErrValidation),
		errors.Is(err, ride.ErrUnknownEvent),
		errors.Is(err, user.ErrBadRequest),
		errors.Is(err, user.ErrInvalidState),
		errors.Is(err, location.ErrInvalidPoint),
		errors.Is(err, matching.ErrBadRequest),
		errors.Is(err, pricing.ErrBadRequest),
		errors.Is(err, assist.ErrEmptyMessage),
		errors.Is(err, notify.ErrBadRequest),
		errors.Is(err, errorlog.ErrBadRequest),
		errors.Is(err, errorlog.ErrUnknownRide):
		return http.StatusBadRequest
	case errors.Is(err, ride.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ride.ErrNotFound),
		errors.Is(err, user.ErrNotFound),
		errors.Is(err, payment.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ride.ErrConflict),
		errors.Is(err, ride.ErrInvalidTransition),
		errors.Is(err, ride.ErrActiveRide),
		errors.Is(err, ride.ErrDriverRequired),
		errors.Is(err, user.ErrExists),
		errors.Is(err, payment.ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, payment.ErrNotPayable),
		errors.Is(err, payment.ErrNoRemoteID):
		return http.StatusUnprocessableEntity
	case errors.Is(err, assist.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, payment.ErrRejected):
		return http.StatusBadGateway
	case errors.Is(err, payment.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
