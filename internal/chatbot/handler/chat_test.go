package handler

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docschat/internal/chatbot/biz"
	"github.com/kart-io/docschat/internal/model"
	"github.com/kart-io/docschat/internal/pkg/errs"
	"github.com/kart-io/docschat/pkg/llm"
	"github.com/kart-io/docschat/pkg/utils/json"
)

type fakeService struct {
	reply      *biz.Reply
	respondErr error

	ingestStored int
	ingestErr    error

	stats   *model.StatsResponse
	domains []model.DomainInfo

	lastMessage string
	lastDomain  string
	lastSource  string
	lastContent string
}

func (s *fakeService) Respond(ctx context.Context, message, domain string) (*biz.Reply, error) {
	s.lastMessage = message
	s.lastDomain = domain
	return s.reply, s.respondErr
}

func (s *fakeService) Ingest(ctx context.Context, domain, source, title, content string) (int, error) {
	s.lastDomain = domain
	s.lastSource = source
	s.lastContent = content
	return s.ingestStored, s.ingestErr
}

func (s *fakeService) Stats(ctx context.Context) (*model.StatsResponse, error) {
	return s.stats, nil
}

func (s *fakeService) Domains(ctx context.Context) ([]model.DomainInfo, error) {
	return s.domains, nil
}

var _ biz.Service = (*fakeService)(nil)

func makeReply(sources []string, chunks ...llm.StreamChunk) *biz.Reply {
	ch := make(chan llm.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return &biz.Reply{
		Path:      model.PathGenerated,
		Sources:   sources,
		Fragments: ch,
	}
}

func newTestRouter(svc biz.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewChatHandler(svc, "docs", nil)

	engine := gin.New()
	engine.POST("/chat", h.Chat)
	engine.POST("/ingest", h.Ingest)
	engine.GET("/stats", h.Stats)
	engine.GET("/domains", h.Domains)
	engine.GET("/metrics", h.Metrics)
	engine.GET("/healthz", h.Healthz)
	return engine
}

func postJSON(t *testing.T, engine *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

// parseSSE splits an event-stream body into chat events.
func parseSSE(t *testing.T, body string) []model.ChatEvent {
	t.Helper()
	var events []model.ChatEvent
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		require.True(t, strings.HasPrefix(block, "data: "), "unexpected SSE block: %q", block)
		var ev model.ChatEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestChat_MissingMessage(t *testing.T) {
	engine := newTestRouter(&fakeService{})

	w := postJSON(t, engine, "/chat", map[string]string{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "message is required")
}

func TestChat_StreamSequence(t *testing.T) {
	sources := []string{"https://docs.example.com/docs/functions/steps"}
	svc := &fakeService{reply: makeReply(sources,
		llm.StreamChunk{Content: "Split the work "},
		llm.StreamChunk{Content: "into steps."},
	)}
	engine := newTestRouter(svc)

	w := postJSON(t, engine, "/chat", model.ChatRequest{Message: "how do I structure long work?", Domain: "docs"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))

	events := parseSSE(t, w.Body.String())
	require.Len(t, events, 4)

	assert.Equal(t, model.EventMetadata, events[0].Type)
	assert.Equal(t, sources, events[0].Sources)

	assert.Equal(t, model.EventContent, events[1].Type)
	assert.Equal(t, "Split the work ", events[1].Content)
	assert.Equal(t, model.EventContent, events[2].Type)
	assert.Equal(t, "into steps.", events[2].Content)

	assert.Equal(t, model.EventDone, events[3].Type)
	assert.Equal(t, sources, events[3].Sources)
}

func TestChat_MidStreamError(t *testing.T) {
	svc := &fakeService{reply: makeReply(nil,
		llm.StreamChunk{Content: "partial"},
		llm.StreamChunk{Err: errors.New("connection reset")},
	)}
	engine := newTestRouter(svc)

	w := postJSON(t, engine, "/chat", model.ChatRequest{Message: "a question"})
	events := parseSSE(t, w.Body.String())

	last := events[len(events)-1]
	assert.Equal(t, model.EventError, last.Type)
	assert.Equal(t, "generation failed, please try again", last.Error)
	// 错误事件之后不再有 done 事件
	for _, ev := range events {
		assert.NotEqual(t, model.EventDone, ev.Type)
	}
}

func TestChat_DefaultDomain(t *testing.T) {
	svc := &fakeService{reply: makeReply(nil, llm.StreamChunk{Content: "ok"})}
	engine := newTestRouter(svc)

	postJSON(t, engine, "/chat", model.ChatRequest{Message: "a question"})
	assert.Equal(t, "docs", svc.lastDomain)
}

func TestChat_UnknownDomain(t *testing.T) {
	svc := &fakeService{respondErr: &errs.DomainError{Domain: "nope"}}
	engine := newTestRouter(svc)

	w := postJSON(t, engine, "/chat", model.ChatRequest{Message: "q", Domain: "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown domain")
}

func TestChat_PipelineFailureHidesDetails(t *testing.T) {
	svc := &fakeService{respondErr: &errs.CompletionError{Provider: "openai", Err: errors.New("401 invalid api key sk-secret")}}
	engine := newTestRouter(svc)

	w := postJSON(t, engine, "/chat", model.ChatRequest{Message: "q"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// 供应商原始错误不能透给客户端
	assert.NotContains(t, w.Body.String(), "sk-secret")
	assert.Contains(t, w.Body.String(), "temporarily unavailable")
}

func postMultipart(t *testing.T, engine *gin.Engine, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/ingest", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestIngest_Text(t *testing.T) {
	svc := &fakeService{ingestStored: 4}
	engine := newTestRouter(svc)

	w := postMultipart(t, engine, map[string]string{
		"domain": "guides",
		"text":   "A paragraph with comfortably more than the minimum chunk size.",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "guides", resp["domain"])
	assert.EqualValues(t, 4, resp["chunks"])

	assert.Equal(t, "guides", svc.lastDomain)
	assert.Equal(t, "manual", svc.lastSource)
}

func TestIngest_File(t *testing.T) {
	svc := &fakeService{ingestStored: 2}
	engine := newTestRouter(svc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files[]", "guide.md")
	require.NoError(t, err)
	_, err = fw.Write([]byte("# Guide\n\nDocument body with enough text to chunk properly."))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/ingest", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "guide.md", svc.lastSource)
	assert.Contains(t, svc.lastContent, "Document body")
}

func TestIngest_NoInputs(t *testing.T) {
	engine := newTestRouter(&fakeService{})

	w := postMultipart(t, engine, map[string]string{"domain": "docs"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "files[], url, or text")
}

func TestIngest_ValidationError(t *testing.T) {
	svc := &fakeService{ingestErr: &errs.ValidationError{Field: "content", Hint: "content is shorter than the minimum chunk size of 100 characters"}}
	engine := newTestRouter(svc)

	w := postMultipart(t, engine, map[string]string{"text": "tiny"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "minimum chunk size")
}

func TestIngest_PartialStorageFailure(t *testing.T) {
	svc := &fakeService{ingestErr: &errs.StorageError{Op: "insert", Stored: 7, Err: errors.New("rate limited")}}
	engine := newTestRouter(svc)

	w := postMultipart(t, engine, map[string]string{"text": "long enough document body for ingestion"})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// 报告已持久化的数量，调用方可以据此续传
	assert.EqualValues(t, 7, resp["chunks"])
}

func TestStats(t *testing.T) {
	svc := &fakeService{stats: &model.StatsResponse{
		Uptime:  "1m0s",
		Metrics: map[string]any{"queries": map[string]any{"total": 3}},
		Domains: []model.DomainInfo{{Name: "docs", ChunkCount: 42}},
	}}
	engine := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"uptime":"1m0s"`)
	assert.Contains(t, w.Body.String(), `"chunk_count":42`)
}

func TestDomains(t *testing.T) {
	svc := &fakeService{domains: []model.DomainInfo{{Name: "docs", ChunkCount: 10}}}
	engine := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/domains", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"docs"`)
}

func TestMetricsEndpoint(t *testing.T) {
	engine := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Body.String(), "docschat_queries_total")
}

func TestHealthz(t *testing.T) {
	engine := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
