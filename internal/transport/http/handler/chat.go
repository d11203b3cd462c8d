package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pagewise/internal/app"
	"pagewise/internal/pkg/apperr"
	"pagewise/internal/transport/http/middleware"
	"pagewise/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type SendMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, sessionID, ok := sessionRequest(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeMissingInput, "message is required")
		return
	}

	result, err := h.chatService.SendMessage(c.Request.Context(), app.SendMessageInput{
		UserID:    userID,
		SessionID: sessionID,
		Message:   req.Message,
	})
	if err != nil {
		response.Fail(c, err, "send message failed")
		return
	}
	response.OK(c, result)
}

// StreamMessage answers over server-sent events. Chunks arrive as data
// frames; the stored turn ends the stream as a "done" event. Requests that
// fail admission get a regular JSON error before any event is written.
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	userID, sessionID, ok := sessionRequest(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeMissingInput, "message is required")
		return
	}

	in := app.SendMessageInput{
		UserID:    userID,
		SessionID: sessionID,
		Message:   req.Message,
	}
	if err := h.chatService.Admit(c.Request.Context(), in); err != nil {
		response.Fail(c, err, "send message failed")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	result, err := h.chatService.StreamMessage(c.Request.Context(), in, func(chunk string) error {
		if _, writeErr := c.Writer.Write([]byte("data: " + sanitizeSSE(chunk) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		_ = c.Error(err)
		if _, writeErr := c.Writer.Write(streamErrorEvent(err)); writeErr == nil {
			flusher.Flush()
		}
		return
	}

	if _, writeErr := c.Writer.Write([]byte(fmt.Sprintf("event: done\ndata: {\"seq\":%d,\"turn_count\":%d}\n\n", result.Turn.Seq, result.TurnCount))); writeErr == nil {
		flusher.Flush()
	}
}

// streamErrorEvent renders a failure that happened after the stream opened.
func streamErrorEvent(err error) []byte {
	_, _, kind := response.Status(err)
	message := "send message failed"
	var e *apperr.Error
	if kind != apperr.KindInternal && errors.As(err, &e) {
		message = e.Message
	}
	payload, _ := json.Marshal(gin.H{"kind": kind, "message": message})
	return []byte("event: error\ndata: " + string(payload) + "\n\n")
}

func (h *ChatHandler) ListTurns(c *gin.Context) {
	userID, sessionID, ok := sessionRequest(c)
	if !ok {
		return
	}

	turns, err := h.chatService.ListTurns(c.Request.Context(), userID, sessionID)
	if err != nil {
		response.Fail(c, err, "list turns failed")
		return
	}
	response.OK(c, turns)
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
