// README: Ride handlers: create, read, update, transitions, rating, and route.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"twende/internal/http/middleware"
	"twende/internal/modules/ride"
	"twende/internal/types"
)

type RideService interface {
	Create(ctx context.Context, cmd ride.CreateCommand) (*ride.Ride, error)
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
	Update(ctx context.Context, cmd ride.UpdateCommand) (*ride.Ride, error)
	Transition(ctx context.Context, cmd ride.TransitionCommand) (*ride.Ride, error)
	SubmitRating(ctx context.Context, cmd ride.RatingCommand) (*ride.Ride, error)
	Refresh(ctx context.Context, id types.ID) (*ride.Ride, error)
	RefreshActive(ctx context.Context, userID types.ID) (*ride.Ride, error)
	Active(ctx context.Context, userID types.ID) (*ride.Ride, error)
	Recent(ctx context.Context, userID types.ID) ([]*ride.Ride, error)
	Route(ctx context.Context, id types.ID) ([]types.Point, error)
}

type RideHandler struct {
	rides RideService
}

func NewRideHandler(svc RideService) *RideHandler {
	return &RideHandler{rides: svc}
}

type createRideReq struct {
	DriverID        string     `json:"driver_id"`
	Origin          *pointBody `json:"origin"`
	Destination     *pointBody `json:"destination"`
	OriginText      string     `json:"origin_text" binding:"max=255"`
	DestinationText string     `json:"destination_text" binding:"max=255"`
	PaymentMethod   string     `json:"payment_method" binding:"omitempty,oneof=cash mpesa"`
}

type updateRideReq struct {
	DriverID        *string    `json:"driver_id"`
	Destination     *pointBody `json:"destination"`
	DestinationText *string    `json:"destination_text" binding:"omitempty,max=255"`
	PaymentMethod   *string    `json:"payment_method" binding:"omitempty,oneof=cash mpesa"`
}

type ratingReq struct {
	Grade    int    `json:"grade" binding:"required,min=1,max=5"`
	Comments string `json:"comments" binding:"max=500"`
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	cmd := ride.CreateCommand{
		CustomerID:      types.ID(middleware.CallerUID(c)),
		Origin:          req.Origin.point(),
		Destination:     req.Destination.point(),
		OriginText:      req.OriginText,
		DestinationText: req.DestinationText,
		PaymentMethod:   ride.PaymentMethod(req.PaymentMethod),
	}
	if req.DriverID != "" {
		if !isValidID(req.DriverID) {
			writeError(c, http.StatusBadRequest, "invalid driver_id")
			return
		}
		id := types.ID(req.DriverID)
		cmd.DriverID = &id
	}
	r, err := h.rides.Create(c.Request.Context(), cmd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

func (h *RideHandler) Get(c *gin.Context) {
	r, ok := h.visibleRide(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	cmd := ride.UpdateCommand{
		RideID:          id,
		ActorID:         types.ID(middleware.CallerUID(c)),
		Admin:           middleware.IsAdmin(c),
		Destination:     req.Destination.point(),
		DestinationText: req.DestinationText,
	}
	if req.DriverID != nil {
		if !isValidID(*req.DriverID) {
			writeError(c, http.StatusBadRequest, "invalid driver_id")
			return
		}
		d := types.ID(*req.DriverID)
		cmd.DriverID = &d
	}
	if req.PaymentMethod != nil {
		m := ride.PaymentMethod(*req.PaymentMethod)
		cmd.PaymentMethod = &m
	}
	r, err := h.rides.Update(c.Request.Context(), cmd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

// Transition applies the :event path segment to the ride as the caller.
func (h *RideHandler) Transition(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.rides.Transition(c.Request.Context(), ride.TransitionCommand{
		RideID:  id,
		Event:   ride.Event(c.Param("event")),
		ActorID: types.ID(middleware.CallerUID(c)),
		Admin:   middleware.IsAdmin(c),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Rate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ratingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	r, err := h.rides.SubmitRating(c.Request.Context(), ride.RatingCommand{
		RideID:   id,
		RaterID:  types.ID(middleware.CallerUID(c)),
		Grade:    req.Grade,
		Comments: req.Comments,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Refresh(c *gin.Context) {
	r, ok := h.visibleRide(c)
	if !ok {
		return
	}
	r, err := h.rides.Refresh(c.Request.Context(), r.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Route(c *gin.Context) {
	r, ok := h.visibleRide(c)
	if !ok {
		return
	}
	points, err := h.rides.Route(c.Request.Context(), r.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if points == nil {
		points = []types.Point{}
	}
	writeJSON(c, http.StatusOK, gin.H{"ride_id": r.ID, "points": points})
}

// Events lists the transitions the ride's current state allows.
func (h *RideHandler) Events(c *gin.Context) {
	r, ok := h.visibleRide(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ride_id": r.ID, "state": r.State, "events": ride.AllowedEvents(r.State)})
}

func (h *RideHandler) Active(c *gin.Context) {
	r, err := h.rides.Active(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) RefreshActive(c *gin.Context) {
	r, err := h.rides.RefreshActive(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Recent(c *gin.Context) {
	rides, err := h.rides.Recent(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if rides == nil {
		rides = []*ride.Ride{}
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": rides})
}

// visibleRide loads the :id ride and checks that the caller takes part in it.
func (h *RideHandler) visibleRide(c *gin.Context) (*ride.Ride, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	r, err := h.rides.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return nil, false
	}
	if !middleware.IsAdmin(c) && !r.Participant(types.ID(middleware.CallerUID(c))) {
		writeError(c, http.StatusForbidden, ride.ErrForbidden.Error())
		return nil, false
	}
	return r, true
}
