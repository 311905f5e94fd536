// README: Free-text ride booking through the assistant.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"twende/internal/http/middleware"
	"twende/internal/modules/assist"
	"twende/internal/types"
)

type AssistService interface {
	Book(ctx context.Context, cmd assist.BookCommand) (*assist.Answer, error)
}

type AssistHandler struct {
	assist AssistService
}

func NewAssistHandler(svc AssistService) *AssistHandler {
	return &AssistHandler{assist: svc}
}

type assistBody struct {
	Message string `json:"message" binding:"required"`
}

func (h *AssistHandler) Book(c *gin.Context) {
	var body assistBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "message is required")
		return
	}

	ans, err := h.assist.Book(c.Request.Context(), assist.BookCommand{
		UserID:  types.ID(middleware.CallerUID(c)),
		Message: body.Message,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	status := http.StatusOK
	if ans.Ride != nil {
		status = http.StatusCreated
	}
	writeJSON(c, status, ans)
}
