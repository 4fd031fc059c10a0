// Package handler provides the HTTP handlers for the chatbot service.
package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docschat/internal/chatbot/biz"
	"github.com/kart-io/docschat/internal/chatbot/metrics"
	"github.com/kart-io/docschat/internal/model"
	"github.com/kart-io/docschat/internal/pkg/errs"
	"github.com/kart-io/docschat/pkg/utils/httpclient"
	"github.com/kart-io/docschat/pkg/utils/json"
)

// maxUploadSize bounds file and URL ingestion payloads.
const maxUploadSize = 10 << 20

// ChatHandler handles chat, ingestion and introspection requests.
type ChatHandler struct {
	service       biz.Service
	defaultDomain string
	fetcher       *httpclient.Client
}

// NewChatHandler creates a ChatHandler. fetcher is used to download
// documents for URL ingestion.
func NewChatHandler(service biz.Service, defaultDomain string, fetcher *httpclient.Client) *ChatHandler {
	return &ChatHandler{
		service:       service,
		defaultDomain: defaultDomain,
		fetcher:       fetcher,
	}
}

// Chat answers one question as a server-sent-event stream: a metadata event
// with the sources known up front, one content event per fragment, then a
// done event with the reconciled source list. Mid-stream failures emit an
// error event; the stream never closes silently.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	domain := req.Domain
	if domain == "" {
		domain = h.defaultDomain
	}

	reply, err := h.service.Respond(c.Request.Context(), req.Message, domain)
	if err != nil {
		status, msg, details := mapPipelineError(err)
		c.JSON(status, gin.H{"error": msg, "details": details})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeEvent(c, &model.ChatEvent{Type: model.EventMetadata, Sources: reply.Sources})

	var answer strings.Builder
	for chunk := range reply.Fragments {
		if chunk.Err != nil {
			logger.Errorw("answer stream failed", "error", chunk.Err.Error())
			writeEvent(c, &model.ChatEvent{Type: model.EventError, Error: "generation failed, please try again"})
			return
		}
		answer.WriteString(chunk.Content)
		writeEvent(c, &model.ChatEvent{Type: model.EventContent, Content: chunk.Content})
	}

	writeEvent(c, &model.ChatEvent{Type: model.EventDone, Sources: reply.Finalize(answer.String())})
}

func writeEvent(c *gin.Context, event *model.ChatEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	_, _ = c.Writer.WriteString("data: " + string(data) + "\n\n")
	c.Writer.Flush()
}

// Ingest accepts a multipart form with any of files[], url, or text, plus an
// optional domain, chunks the content and stores it.
func (h *ChatHandler) Ingest(c *gin.Context) {
	domain := c.PostForm("domain")
	if domain == "" {
		domain = h.defaultDomain
	}

	totalChunks := 0
	documents := 0

	// Inline text
	if text := c.PostForm("text"); strings.TrimSpace(text) != "" {
		stored, err := h.service.Ingest(c.Request.Context(), domain, "manual", c.PostForm("title"), text)
		if err != nil {
			h.ingestError(c, err, totalChunks)
			return
		}
		totalChunks += stored
		documents++
	}

	// Remote URL
	if url := c.PostForm("url"); url != "" {
		content, err := h.fetchURL(c, url)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to fetch url: " + err.Error()})
			return
		}
		stored, err := h.service.Ingest(c.Request.Context(), domain, url, c.PostForm("title"), content)
		if err != nil {
			h.ingestError(c, err, totalChunks)
			return
		}
		totalChunks += stored
		documents++
	}

	// Uploaded files
	form, err := c.MultipartForm()
	if err == nil && form != nil {
		for _, fh := range form.File["files[]"] {
			if fh.Size > maxUploadSize {
				c.JSON(http.StatusBadRequest, gin.H{"error": "file too large: " + fh.Filename})
				return
			}
			f, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file: " + fh.Filename})
				return
			}
			content, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
			_ = f.Close()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file: " + fh.Filename})
				return
			}
			stored, err := h.service.Ingest(c.Request.Context(), domain, fh.Filename, fh.Filename, string(content))
			if err != nil {
				h.ingestError(c, err, totalChunks)
				return
			}
			totalChunks += stored
			documents++
		}
	}

	if documents == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide at least one of files[], url, or text"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"domain":  domain,
		"chunks":  totalChunks,
		"message": "ingestion complete",
	})
}

func (h *ChatHandler) fetchURL(c *gin.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := h.fetcher.DoRequest(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUploadSize))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (h *ChatHandler) ingestError(c *gin.Context, err error, chunksSoFar int) {
	var verr *errs.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
		return
	}

	var serr *errs.StorageError
	if errors.As(err, &serr) {
		// Report partial progress so the caller can resume.
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "ingestion aborted",
			"chunks": chunksSoFar + serr.Stored,
		})
		return
	}

	logger.Errorw("ingestion failed", "error", err.Error())
	c.JSON(http.StatusInternalServerError, gin.H{"error": "ingestion failed"})
}

// Stats returns service statistics.
func (h *ChatHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to collect stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Domains lists the active documentation domains.
func (h *ChatHandler) Domains(c *gin.Context) {
	domains, err := h.service.Domains(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list domains"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"domains": domains})
}

// Metrics exports metrics in Prometheus text format.
func (h *ChatHandler) Metrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4", []byte(metrics.GetChatMetrics().Export("docschat")))
}

// Healthz is the liveness probe.
func (h *ChatHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// mapPipelineError translates pipeline errors into an HTTP status and
// user-safe wording; raw provider errors never reach the client.
func mapPipelineError(err error) (int, string, string) {
	var verr *errs.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, "invalid request", verr.Error()
	}

	var derr *errs.DomainError
	if errors.As(err, &derr) {
		return http.StatusBadRequest, "unknown domain", derr.Error()
	}

	logger.Errorw("pipeline failed", "error", err.Error())
	return http.StatusInternalServerError, "failed to answer", "the assistant is temporarily unavailable, please try again"
}
