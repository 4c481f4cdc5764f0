// Package api exposes the HTTP surface: session lifecycle, uploads, chat
// turns over SSE, and artifact downloads.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AlexandrLebegue/thesis-llm/internal/auth"
	"github.com/AlexandrLebegue/thesis-llm/internal/config"
	"github.com/AlexandrLebegue/thesis-llm/internal/models"
	"github.com/AlexandrLebegue/thesis-llm/internal/scratch"
	"github.com/AlexandrLebegue/thesis-llm/internal/service/chat"
	"github.com/AlexandrLebegue/thesis-llm/internal/worker"
)

// turnDeadline bounds one chat turn end to end.
const turnDeadline = 2 * time.Minute

// WorkerManager is the slice of the worker manager the handlers use.
type WorkerManager interface {
	Submit(worker.TurnRequest) (*worker.TurnHandle, error)
	History(ctx context.Context, visitorID int64) ([]*models.Message, error)
	Invalidate(visitorID int64)
	StopVisitor(visitorID int64)
}

// Handler wires HTTP routes to the chat, scratch, and auth services.
type Handler struct {
	auth    *auth.Service
	chat    *chat.Service
	store   *scratch.Store
	workers WorkerManager
	cfg     *config.Config
}

// NewHandler constructs a Handler instance.
func NewHandler(authSvc *auth.Service, chatSvc *chat.Service, store *scratch.Store, workers WorkerManager, cfg *config.Config) *Handler {
	return &Handler{
		auth:    authSvc,
		chat:    chatSvc,
		store:   store,
		workers: workers,
		cfg:     cfg,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/session", h.openSession)

	authed := api.Group("")
	authed.Use(h.auth.Middleware(), h.auth.CSRFMiddleware())
	authed.POST("/session/close", h.closeSession)
	authed.POST("/chat", h.chatTurn)
	authed.POST("/uploads", h.filesUpload)
	authed.GET("/uploads", h.listUploads)
	authed.GET("/history", h.getHistory)
	authed.POST("/history/clear", h.clearHistory)
	authed.GET("/artifacts", h.listArtifacts)
	authed.GET("/artifacts/:name", h.downloadArtifact)
	authed.GET("/options", h.getOptions)
}

func (h *Handler) authorizedVisitorID(c *gin.Context) (int64, bool) {
	visitorID, ok := auth.VisitorIDFromContext(c)
	if !ok || visitorID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session required"})
		return 0, false
	}
	return visitorID, true
}

// session lifecycle

func (h *Handler) openSession(c *gin.Context) {
	visitorID, token, err := h.auth.OpenVisitor(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "open session failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "open session failed"})
		return
	}
	greeting, err := h.chat.EnsureGreeting(c.Request.Context(), visitorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.setAuthCookies(c, token, csrfToken)
	c.JSON(http.StatusCreated, gin.H{
		"token":      token,
		"csrf_token": csrfToken,
		"greeting":   greeting,
		"options":    h.optionsPayload(),
	})
}

func (h *Handler) closeSession(c *gin.Context) {
	visitorID, ok := h.authorizedVisitorID(c)
	if !ok {
		return
	}
	h.workers.StopVisitor(visitorID)
	if err := h.auth.CloseVisitor(c.Request.Context(), visitorID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.RemoveVisitor(visitorID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

// chat

type chatRequest struct {
	Content  string  `json:"content"`
	FileIDs  []int64 `json:"file_ids"`
	MaxSteps int     `json:"max_steps"`
}

func (h *Handler) chatTurn(c *gin.Context) {
	visitorID, ok := h.authorizedVisitorID(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Content) == "" && len(req.FileIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content or file_ids required"})
		return
	}

	turnCtx, cancel := context.WithTimeout(c.Request.Context(), turnDeadline)
	defer cancel()

	handle, err := h.workers.Submit(worker.TurnRequest{
		Context:   turnCtx,
		VisitorID: visitorID,
		Content:   strings.TrimSpace(req.Content),
		FileIDs:   req.FileIDs,
		MaxSteps:  h.cfg.ClampSteps(req.MaxSteps),
	})
	if err != nil {
		if errors.Is(err, worker.ErrBusy) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "a previous request is still being processed"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	// ack arrives once the user message is stored; a result without an ack
	// means the turn failed validation
	select {
	case userMsg := <-handle.Ack:
		if err := sendEvent("ack", gin.H{"message": userMsg}); err != nil {
			return
		}
	case outcome := <-handle.Result:
		_ = sendEvent("error", gin.H{"message": outcomeError(outcome)})
		return
	case <-turnCtx.Done():
		_ = sendEvent("error", gin.H{"message": "request timed out"})
		return
	}

	select {
	case outcome := <-handle.Result:
		if outcome.Err != nil {
			_ = sendEvent("error", gin.H{"message": outcomeError(outcome)})
			return
		}
		artifacts := outcome.Artifacts
		if artifacts == nil {
			artifacts = make([]models.Artifact, 0)
		}
		_ = sendEvent("result", gin.H{
			"message":   outcome.Reply,
			"artifacts": artifacts,
		})
	case <-turnCtx.Done():
		_ = sendEvent("error", gin.H{"message": "request timed out"})
	}
}

func outcomeError(outcome worker.TurnOutcome) string {
	if outcome.Err == nil {
		return "turn failed"
	}
	return outcome.Err.Error()
}

// uploads

func (h *Handler) filesUpload(c *gin.Context) {
	visitorID, ok := h.authorizedVisitorID(c)
	if !ok {
		return
	}
	maxBytes := h.cfg.BasicConfig.MaxUploadBytes
	if err := c.Request.ParseMultipartForm(maxBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	form := c.Request.MultipartForm
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one file is required"})
		return
	}

	usage, err := h.store.Usage(c.Request.Context(), visitorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "calculate usage failed"})
		return
	}
	quota := h.cfg.BasicConfig.VisitorQuotaBytes

	accepted := make([]*models.Upload, 0, len(files))
	rejected := make([]gin.H, 0)
	quotaHit := false

	for _, file := range files {
		if file.Size > maxBytes {
			rejected = append(rejected, gin.H{"file_name": file.Filename, "error": "file too large"})
			continue
		}
		if quota > 0 && usage+file.Size > quota {
			rejected = append(rejected, gin.H{"file_name": file.Filename, "error": "storage quota exceeded"})
			quotaHit = true
			continue
		}
		src, err := file.Open()
		if err != nil {
			rejected = append(rejected, gin.H{"file_name": file.Filename, "error": "open file failed"})
			continue
		}
		buf := make([]byte, 512)
		n, _ := src.Read(buf)
		contentType, ok := sniffUploadType(file.Filename, buf[:n])
		if !ok {
			src.Close()
			rejected = append(rejected, gin.H{"file_name": file.Filename, "error": "unsupported file type, only PDF and text documents are accepted"})
			continue
		}
		if _, err := src.Seek(0, 0); err != nil {
			src.Close()
			rejected = append(rejected, gin.H{"file_name": file.Filename, "error": "read file failed"})
			continue
		}
		upload, err := h.store.SaveUpload(c.Request.Context(), visitorID, file.Filename, contentType, src, file.Size)
		src.Close()
		if err != nil {
			rejected = append(rejected, gin.H{"file_name": file.Filename, "error": "save file failed"})
			continue
		}
		usage += upload.Size
		accepted = append(accepted, upload)
	}

	if len(accepted) > 0 {
		h.workers.Invalidate(visitorID)
	}

	status := http.StatusCreated
	if len(accepted) == 0 {
		status = http.StatusBadRequest
		if quotaHit {
			status = http.StatusTooManyRequests
		}
	}
	c.JSON(status, gin.H{
		"accepted": accepted,
		"rejected": rejected,
		"used":     usage,
		"limit":    quota,
	})
}

// sniffUploadType accepts PDFs by magic bytes and text/markdown documents
// by sniffed content, returning the MIME type to record.
func sniffUploadType(fileName string, head []byte) (string, bool) {
	detected := http.DetectContentType(head)
	switch {
	case strings.HasPrefix(detected, "application/pdf"):
		return "application/pdf", true
	case strings.HasPrefix(detected, "text/"):
		if strings.HasSuffix(strings.ToLower(fileName), ".md") {
			return "text/markdown", true
		}
		return "text/plain", true
	default:
		return "", false
	}
}

func (h *Handler) listUploads(c *gin.Context) {
	visitorID, ok := h.authorizedVisitorID(c)
	if !ok {
		return
	}
	uploads, err := h.store.ListUploads(c.Request.Context(), visitorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if uploads == nil {
		uploads = make([]*models.Upload, 0)
	}
	c.JSON(http.StatusOK, gin.H{"uploads": uploads})
}

// history

func (h *Handler) getHistory(c *gin.Context) {
	visitorID, ok := h.authorizedVisitorID(c)
	if !ok {
		return
	}
	history, err := h.workers.History(c.Request.Context(), visitorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if history == nil {
		history = make([]*models.Message, 0)
	}
	c.JSON(http.StatusOK, gin.H{"messages": history})
}

func (h *Handler) clearHistory(c *gin.Context) {
	visitorID, ok := h.authorizedVisitorID(c)
	if !ok {
		return
	}
	greeting, err := h.chat.ClearHistory(c.Request.Context(), visitorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.workers.Invalidate(visitorID)
	c.JSON(http.StatusOK, gin.H{"messages": []*models.Message{greeting}})
}

// artifacts

func (h *Handler) listArtifacts(c *gin.Context) {
	visitorID, ok := h.authorizedVisitorID(c)
	if !ok {
		return
	}
	artifacts, err := h.store.ListArtifacts(visitorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if artifacts == nil {
		artifacts = make([]models.Artifact, 0)
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": artifacts})
}

func (h *Handler) downloadArtifact(c *gin.Context) {
	visitorID, ok := h.authorizedVisitorID(c)
	if !ok {
		return
	}
	artifact, err := h.store.ArtifactPath(visitorID, c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.FileName))
	c.Header("Content-Type", artifact.MimeType)
	c.File(artifact.Path)
}

// options

func (h *Handler) getOptions(c *gin.Context) {
	c.JSON(http.StatusOK, h.optionsPayload())
}

func (h *Handler) optionsPayload() gin.H {
	providers := make([]gin.H, 0, len(h.cfg.Providers))
	for name, prov := range h.cfg.Providers {
		providers = append(providers, gin.H{
			"name":  name,
			"model": prov.Model,
		})
	}
	return gin.H{
		"provider":      h.cfg.Agent.Provider,
		"model":         h.cfg.Agent.Model,
		"providers":     providers,
		"min_steps":     config.MinAgentSteps,
		"max_steps":     config.MaxAgentSteps,
		"default_steps": config.DefaultAgentSteps,
	}
}

// cookies

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
