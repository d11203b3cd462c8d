package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pagewise/internal/app"
	"pagewise/internal/transport/http/response"
)

type SessionHandler struct {
	ingestion      *app.IngestionService
	sessions       *app.SessionService
	maxUploadBytes int64
}

type CreateSessionRequest struct {
	PDFURL        string `json:"pdf_url" binding:"required"`
	Specification string `json:"specification"`
}

type UpdateSessionRequest struct {
	Name               *string `json:"name"`
	Specification      *string `json:"specification"`
	Reextract          bool    `json:"reextract"`
	RegenerateKeywords bool    `json:"regenerate_keywords"`
}

func NewSessionHandler(ingestion *app.IngestionService, sessions *app.SessionService, maxUploadMB int) *SessionHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 25
	}
	return &SessionHandler{
		ingestion:      ingestion,
		sessions:       sessions,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

// Create ingests a PDF already reachable at pdf_url.
func (h *SessionHandler) Create(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.ingestion.Ingest(c.Request.Context(), app.IngestInput{
		UserID:        userID,
		PDFURL:        req.PDFURL,
		Specification: req.Specification,
	})
	if err != nil {
		response.Fail(c, err, "ingestion failed")
		return
	}
	c.JSON(http.StatusCreated, response.APIResponse{Code: response.CodeOK, Message: "ok", Data: result})
}

// Upload ingests a PDF sent as the multipart "file" field.
func (h *SessionHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodeBadRequest, "upload too large")
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeMissingInput, "file is required")
		return
	}
	if header.Size > h.maxUploadBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeBadRequest, "upload too large")
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read upload failed")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read upload failed")
		return
	}

	result, err := h.ingestion.UploadAndIngest(c.Request.Context(), app.UploadInput{
		UserID:        userID,
		Filename:      header.Filename,
		ContentType:   header.Header.Get("Content-Type"),
		Data:          data,
		Specification: c.PostForm("specification"),
	})
	if err != nil {
		response.Fail(c, err, "ingestion failed")
		return
	}
	c.JSON(http.StatusCreated, response.APIResponse{Code: response.CodeOK, Message: "ok", Data: result})
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessions, err := h.sessions.List(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err, "list sessions failed")
		return
	}
	response.OK(c, sessions)
}

func (h *SessionHandler) Get(c *gin.Context) {
	userID, sessionID, ok := sessionRequest(c)
	if !ok {
		return
	}

	session, err := h.sessions.Get(c.Request.Context(), userID, sessionID)
	if err != nil {
		response.Fail(c, err, "get session failed")
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) Update(c *gin.Context) {
	userID, sessionID, ok := sessionRequest(c)
	if !ok {
		return
	}

	var req UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	session, err := h.sessions.Update(c.Request.Context(), app.UpdateSessionInput{
		UserID:             userID,
		SessionID:          sessionID,
		Name:               req.Name,
		Specification:      req.Specification,
		Reextract:          req.Reextract,
		RegenerateKeywords: req.RegenerateKeywords,
	})
	if err != nil {
		response.Fail(c, err, "update session failed")
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) Delete(c *gin.Context) {
	userID, sessionID, ok := sessionRequest(c)
	if !ok {
		return
	}

	if err := h.sessions.Delete(c.Request.Context(), userID, sessionID); err != nil {
		response.Fail(c, err, "delete session failed")
		return
	}
	response.OK(c, gin.H{"deleted_session_id": sessionID})
}

// sessionRequest reads the caller and the :id path parameter, writing the
// error response itself when either is unusable.
func sessionRequest(c *gin.Context) (uint, uint, bool) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return 0, 0, false
	}
	sessionID64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || sessionID64 == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return 0, 0, false
	}
	return userID, uint(sessionID64), true
}
