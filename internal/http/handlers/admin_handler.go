// README: Admin handlers: driver state override and the fare tariff.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"twende/internal/modules/pricing"
	"twende/internal/modules/user"
	"twende/internal/types"
)

type DriverStateService interface {
	SetState(ctx context.Context, id types.ID, state user.State) error
}

// DriverIndex drops drivers from nearby search.
type DriverIndex interface {
	Forget(ctx context.Context, id types.ID) error
}

type RateService interface {
	Rate(ctx context.Context) pricing.Rate
	SetRate(ctx context.Context, r pricing.Rate) (pricing.Rate, error)
}

type AdminHandler struct {
	users   DriverStateService
	index   DriverIndex
	pricing RateService
}

func NewAdminHandler(users DriverStateService, index DriverIndex, rates RateService) *AdminHandler {
	return &AdminHandler{users: users, index: index, pricing: rates}
}

type driverStateReq struct {
	State string `json:"state" binding:"required"`
}

type rateBody struct {
	BaseFare    int64     `json:"base_fare" binding:"gte=0"`
	PerKm       int64     `json:"per_km" binding:"gte=0"`
	MinimumFare int64     `json:"minimum_fare" binding:"gte=0"`
	Currency    string    `json:"currency" binding:"required,len=3"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toRateBody(r pricing.Rate) rateBody {
	return rateBody{
		BaseFare:    r.BaseFare,
		PerKm:       r.PerKm,
		MinimumFare: r.MinimumFare,
		Currency:    r.Currency,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (h *AdminHandler) SetDriverState(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req driverStateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	state := user.State(req.State)
	if err := h.users.SetState(c.Request.Context(), id, state); err != nil {
		writeServiceError(c, err)
		return
	}
	// Off-duty drivers leave the search index until their next location sample.
	if h.index != nil && (state == user.StateUnavailable || state == user.StateNotResponding) {
		if err := h.index.Forget(c.Request.Context(), id); err != nil {
			_ = c.Error(err)
		}
	}
	writeJSON(c, http.StatusOK, gin.H{"user_id": id, "state": req.State})
}

func (h *AdminHandler) GetRate(c *gin.Context) {
	writeJSON(c, http.StatusOK, toRateBody(h.pricing.Rate(c.Request.Context())))
}

func (h *AdminHandler) SetRate(c *gin.Context) {
	var req rateBody
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	r, err := h.pricing.SetRate(c.Request.Context(), pricing.Rate{
		BaseFare:    req.BaseFare,
		PerKm:       req.PerKm,
		MinimumFare: req.MinimumFare,
		Currency:    req.Currency,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRateBody(r))
}
