// README: Message inbox and admin system/bulk sends.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"twende/internal/http/middleware"
	"twende/internal/modules/notify"
	"twende/internal/types"
)

type MessageService interface {
	Inbox(ctx context.Context, userID types.ID) ([]notify.Message, error)
	SendSystem(ctx context.Context, cmd notify.SystemCommand) (*notify.Message, error)
	SendBulk(ctx context.Context, cmd notify.BulkCommand) (*notify.BulkResult, error)
}

type MessageHandler struct {
	notify MessageService
}

func NewMessageHandler(svc MessageService) *MessageHandler {
	return &MessageHandler{notify: svc}
}

type systemMessageReq struct {
	ReceiverID string `json:"receiver_id" binding:"required"`
	Subject    string `json:"subject" binding:"required"`
	Message    string `json:"message" binding:"required"`
}

type bulkMessageReq struct {
	ReceiverIDs []string `json:"receiver_ids" binding:"required,min=1"`
	Subject     string   `json:"subject" binding:"required"`
	Message     string   `json:"message" binding:"required"`
}

func (h *MessageHandler) Inbox(c *gin.Context) {
	msgs, err := h.notify.Inbox(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if msgs == nil {
		msgs = []notify.Message{}
	}
	writeJSON(c, http.StatusOK, gin.H{"messages": msgs})
}

func (h *MessageHandler) SendSystem(c *gin.Context) {
	var req systemMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if !isValidID(req.ReceiverID) {
		writeError(c, http.StatusBadRequest, "invalid receiver_id")
		return
	}
	m, err := h.notify.SendSystem(c.Request.Context(), notify.SystemCommand{
		ReceiverID: types.ID(req.ReceiverID),
		Subject:    req.Subject,
		Message:    req.Message,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, m)
}

func (h *MessageHandler) SendBulk(c *gin.Context) {
	var req bulkMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	ids := make([]types.ID, len(req.ReceiverIDs))
	for i, v := range req.ReceiverIDs {
		if !isValidID(v) {
			writeError(c, http.StatusBadRequest, "invalid receiver_ids")
			return
		}
		ids[i] = types.ID(v)
	}
	res, err := h.notify.SendBulk(c.Request.Context(), notify.BulkCommand{
		ReceiverIDs: ids,
		Subject:     req.Subject,
		Message:     req.Message,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, res)
}
