// README: Account handlers: registration, profile, and rating.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"twende/internal/http/middleware"
	"twende/internal/modules/user"
	"twende/internal/types"
)

type AccountService interface {
	Register(ctx context.Context, cmd user.RegisterCommand) (*user.User, error)
	Get(ctx context.Context, id types.ID) (*user.User, error)
	UpdateProfile(ctx context.Context, cmd user.ProfileCommand) (*user.User, error)
	Rating(ctx context.Context, id types.ID) (float64, error)
}

type AccountHandler struct {
	users AccountService
}

func NewAccountHandler(svc AccountService) *AccountHandler {
	return &AccountHandler{users: svc}
}

type registerReq struct {
	Username      string `json:"username" binding:"required"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Phone         string `json:"phone" binding:"required"`
	IsDriver      bool   `json:"is_driver"`
	PushToken     string `json:"push_token"`
	LicenseNumber string `json:"license_number"`
}

type profileReq struct {
	FirstName     *string `json:"first_name"`
	LastName      *string `json:"last_name"`
	Phone         *string `json:"phone"`
	PushToken     *string `json:"push_token"`
	LicenseNumber *string `json:"license_number"`
}

// Register creates the account for the authenticated Firebase uid.
func (h *AccountHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	u, err := h.users.Register(c.Request.Context(), user.RegisterCommand{
		ID:            types.ID(middleware.CallerUID(c)),
		Username:      req.Username,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         req.Phone,
		IsDriver:      req.IsDriver,
		PushToken:     req.PushToken,
		LicenseNumber: req.LicenseNumber,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, u)
}

func (h *AccountHandler) Me(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, u)
}

func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	var req profileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	u, err := h.users.UpdateProfile(c.Request.Context(), user.ProfileCommand{
		UserID:        types.ID(middleware.CallerUID(c)),
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         req.Phone,
		PushToken:     req.PushToken,
		LicenseNumber: req.LicenseNumber,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, u)
}

func (h *AccountHandler) Rating(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rating, err := h.users.Rating(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"user_id": id, "rating": rating})
}
