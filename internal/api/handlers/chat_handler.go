package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/markdave123-py/docchat/internal/models"
	"github.com/markdave123-py/docchat/internal/services"
)

// Chatter is the part of services.ChatService the handler needs.
type Chatter interface {
	Send(ctx context.Context, threadID, message string) (*services.ChatReply, error)
	History(ctx context.Context, threadID string) ([]models.Message, error)
}

type ChatHandler struct {
	chat   Chatter
	logger *slog.Logger
}

func NewChatHandler(chat Chatter, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger}
}

type MessageRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

// PostMessage answers one user message within a thread.
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.chat.Send(r.Context(), req.ThreadID, req.Message)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reply)
	case errors.Is(err, services.ErrEmptyMessage), errors.Is(err, services.ErrMissingThread):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("chat failed", "thread_id", req.ThreadID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// History lists a thread's messages; thread_id comes from the query string.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	threadID := r.URL.Query().Get("thread_id")
	msgs, err := h.chat.History(r.Context(), threadID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, msgs)
	case errors.Is(err, services.ErrMissingThread):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("history failed", "thread_id", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
