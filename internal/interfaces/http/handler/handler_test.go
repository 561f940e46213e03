package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proposal-ai-api/internal/application/cost"
	"proposal-ai-api/internal/application/generation"
	"proposal-ai-api/internal/application/quota"
	"proposal-ai-api/internal/domain/catalog"
	"proposal-ai-api/internal/domain/service"
	"proposal-ai-api/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGenerator struct {
	result    *generation.Result
	audit     *generation.AuditResult
	err       error
	events    []generation.StreamEvent
	streamErr error

	lastReq   generation.Request
	lastAudit generation.AuditRequest
	streamCtx context.Context
}

func (f *fakeGenerator) Generate(_ context.Context, req generation.Request) (*generation.Result, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeGenerator) Rewrite(_ context.Context, req generation.Request) (*generation.Result, error) {
	req.Mode = catalog.ModeRewrite
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, req generation.Request) (<-chan generation.StreamEvent, error) {
	f.lastReq = req
	f.streamCtx = ctx
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	ch := make(chan generation.StreamEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeGenerator) Audit(_ context.Context, req generation.AuditRequest) (*generation.AuditResult, error) {
	f.lastAudit = req
	return f.audit, f.err
}

func (f *fakeGenerator) EstimateCost(model string, in, out, cached int) cost.Breakdown {
	return cost.Estimate(model, in, out, cached)
}

func (f *fakeGenerator) ListModels() []catalog.ModelDescriptor   { return catalog.Models() }
func (f *fakeGenerator) ListStrategies() []catalog.LevelStrategy { return catalog.Strategies() }

func (f *fakeGenerator) RecommendLevel(chapterNumber, title string, depth int) catalog.SectionLevel {
	return catalog.RecommendLevel(chapterNumber, title, depth)
}

func aiEngine(gen Generator) *gin.Engine {
	h := NewAIHandler(gen)
	r := gin.New()
	r.Use(middleware.Auth(middleware.AuthConfig{}))
	ai := r.Group("/v1/ai")
	ai.POST("/generate", h.Generate)
	ai.POST("/generate/stream", h.GenerateStream)
	ai.POST("/rewrite", h.Rewrite)
	ai.POST("/audit", h.Audit)
	ai.POST("/estimate", h.Estimate)
	ai.GET("/models", h.ListModels)
	ai.GET("/strategies", h.ListStrategies)
	ai.POST("/recommend-level", h.RecommendLevel)
	return r
}

const testProjectID = "0b9f4c2e-8f1a-4d7a-9a61-3e2f5c7d1a10"

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// streamRecorder 为 c.Stream 补充 CloseNotify
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func postStream(r http.Handler, path string, body any) *streamRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	r.ServeHTTP(w, req)
	return w
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Data
}

func TestGenerate_Success(t *testing.T) {
	gen := &fakeGenerator{result: &generation.Result{
		Content:      "內容",
		ModelUsed:    "gemini-2.5-flash",
		InputTokens:  1000,
		OutputTokens: 500,
		Cost:         cost.Breakdown{TotalCost: 0.00155},
		SectionLevel: "L3",
		FallbackFrom: "claude-3.5-sonnet",
	}}
	w := postJSON(aiEngine(gen), "/v1/ai/generate", map[string]any{
		"project_id": testProjectID,
		"prompt":     "寫一段",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := decodeData(t, w)
	assert.Equal(t, true, data["success"])
	assert.Equal(t, "gemini-2.5-flash", data["model_used"])
	assert.Equal(t, 0.00155, data["cost_usd"])
	assert.Equal(t, "claude-3.5-sonnet", data["fallback_from"])

	assert.Equal(t, "anonymous", gen.lastReq.UserID)
	assert.Equal(t, "L3", gen.lastReq.Level)
	assert.Equal(t, catalog.ModeGenerate, gen.lastReq.Mode)
	assert.True(t, gen.lastReq.UseCache)
}

func TestGenerate_Validation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "missing prompt", body: map[string]any{"project_id": testProjectID}},
		{name: "missing project", body: map[string]any{"prompt": "x"}},
		{name: "unknown mode", body: map[string]any{"project_id": testProjectID, "prompt": "x", "mode": "poem"}},
		{name: "audit mode", body: map[string]any{"project_id": testProjectID, "prompt": "x", "mode": "audit"}},
		{name: "negative thinking", body: map[string]any{"project_id": testProjectID, "prompt": "x", "thinking_budget": -1}},
		{name: "project not a uuid", body: map[string]any{"project_id": "p1", "prompt": "x"}},
		{name: "section not a uuid", body: map[string]any{"project_id": testProjectID, "section_id": "intro-1", "prompt": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(aiEngine(&fakeGenerator{}), "/v1/ai/generate", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGenerate_ErrorMapping(t *testing.T) {
	status := service.BudgetStatus{Allowed: false, Used: 100, Limit: 100, UsagePercent: 100, Alert: true}
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "budget exhausted",
			err:    fmt.Errorf("gate: %w", &service.BudgetExhaustedError{ProjectID: "p1", Status: status}),
			status: http.StatusPaymentRequired,
			body:   `"usage_percent":100`,
		},
		{
			name:   "rate limited",
			err:    service.NewRateLimitError("anthropic", 429, "slow down", nil),
			status: http.StatusTooManyRequests,
		},
		{
			name:   "provider error",
			err:    service.NewProviderError("google", 500, "boom", nil),
			status: http.StatusBadGateway,
		},
		{
			name:   "unclassified",
			err:    errors.New("db exploded"),
			status: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(aiEngine(&fakeGenerator{err: tt.err}), "/v1/ai/generate", map[string]any{"project_id": testProjectID, "prompt": "x"})
			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Contains(t, w.Body.String(), tt.body)
			}
			assert.NotContains(t, w.Body.String(), "db exploded")
		})
	}
}

func TestRewrite_UsesRewriteMode(t *testing.T) {
	gen := &fakeGenerator{result: &generation.Result{Content: "ok"}}
	w := postJSON(aiEngine(gen), "/v1/ai/rewrite", map[string]any{"project_id": testProjectID, "prompt": "改寫", "section_level": "L4"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, catalog.ModeRewrite, gen.lastReq.Mode)
	assert.Equal(t, "L4", gen.lastReq.Level)
}

func TestGenerateStream_Events(t *testing.T) {
	gen := &fakeGenerator{events: []generation.StreamEvent{
		{Content: "A"},
		{Content: "B"},
		{Done: true, Result: &generation.Result{ModelUsed: "claude-3.5-sonnet", InputTokens: 10, OutputTokens: 5}},
	}}
	w := postStream(aiEngine(gen), "/v1/ai/generate/stream", map[string]any{"project_id": testProjectID, "prompt": "x"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event:message\ndata:{\"content\":\"A\"}")
	assert.Contains(t, body, "event:message\ndata:{\"content\":\"B\"}")
	assert.Contains(t, body, "event:done")
	assert.Contains(t, body, `"status":"complete"`)
	assert.Less(t, bytes.Index(w.Body.Bytes(), []byte(`"B"`)), bytes.Index(w.Body.Bytes(), []byte("event:done")))
}

func TestGenerateStream_TerminalError(t *testing.T) {
	gen := &fakeGenerator{events: []generation.StreamEvent{
		{Content: "A"},
		{Err: service.NewProviderError("anthropic", 500, "reset", nil)},
	}}
	w := postStream(aiEngine(gen), "/v1/ai/generate/stream", map[string]any{"project_id": testProjectID, "prompt": "x"})
	body := w.Body.String()
	assert.Contains(t, body, "event:error")
	assert.Contains(t, body, "LLM provider error")
	assert.NotContains(t, body, "event:done")
}

func TestGenerateStream_CancelsContextAfterTerminal(t *testing.T) {
	gen := &fakeGenerator{events: []generation.StreamEvent{
		{Err: service.NewProviderError("anthropic", 500, "reset", nil)},
		{Content: "unread"},
	}}
	w := postStream(aiEngine(gen), "/v1/ai/generate/stream", map[string]any{"project_id": testProjectID, "prompt": "x"})
	assert.NotContains(t, w.Body.String(), "unread")
	require.NotNil(t, gen.streamCtx)
	assert.ErrorIs(t, gen.streamCtx.Err(), context.Canceled)
}

func TestGenerateStream_GateRejectsBeforeStreaming(t *testing.T) {
	gen := &fakeGenerator{streamErr: &service.BudgetExhaustedError{ProjectID: "p1"}}
	w := postStream(aiEngine(gen), "/v1/ai/generate/stream", map[string]any{"project_id": testProjectID, "prompt": "x"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "Token 預算已用完")
}

func TestAudit_DefaultsStrict(t *testing.T) {
	gen := &fakeGenerator{audit: &generation.AuditResult{NeedsModification: false, ModelUsed: "claude-3.5-sonnet"}}
	w := postJSON(aiEngine(gen), "/v1/ai/audit", map[string]any{
		"project_id":          testProjectID,
		"template_content":    "範本",
		"requirement_content": "需求",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gen.lastAudit.Strict)
	data := decodeData(t, w)
	assert.Equal(t, false, data["needs_modification"])
	assert.Equal(t, true, data["success"])
}

func TestCatalogEndpoints(t *testing.T) {
	r := aiEngine(&fakeGenerator{})

	t.Run("models", func(t *testing.T) {
		data := decodeData(t, get(r, "/v1/ai/models"))
		assert.Len(t, data["models"], len(catalog.Models()))
	})

	t.Run("strategies", func(t *testing.T) {
		data := decodeData(t, get(r, "/v1/ai/strategies"))
		assert.Len(t, data["strategies"], 4)
		assert.Equal(t, string(catalog.DefaultLevel), data["default_level"])
	})

	t.Run("estimate", func(t *testing.T) {
		w := postJSON(r, "/v1/ai/estimate", map[string]any{"model": "claude-3.5-sonnet", "input_tokens": 1000, "output_tokens": 100})
		require.Equal(t, http.StatusOK, w.Code)
		data := decodeData(t, w)
		assert.Equal(t, "claude-3.5-sonnet", data["model"])
		assert.InDelta(t, 0.0045, data["total_cost"], 1e-9)
	})

	t.Run("recommend", func(t *testing.T) {
		w := postJSON(r, "/v1/ai/recommend-level", map[string]any{"title": "專案管理"})
		require.Equal(t, http.StatusOK, w.Code)
		data := decodeData(t, w)
		level := catalog.RecommendLevel("", "專案管理", 0)
		assert.Equal(t, string(level), data["level"])
		strategy, ok := data["strategy"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, string(level), strategy["level"])
	})
}

type fakeReporter struct {
	stats   *quota.UsageStats
	project *quota.ProjectUsage
	daily   []quota.DailyUsage
	err     error

	userID string
	admin  bool
	days   int
}

func (f *fakeReporter) Stats(_ context.Context, _ string, admin bool) (*quota.UsageStats, error) {
	f.admin = admin
	return f.stats, f.err
}

func (f *fakeReporter) Project(_ context.Context, _, userID string, admin bool) (*quota.ProjectUsage, error) {
	f.userID, f.admin = userID, admin
	return f.project, f.err
}

func (f *fakeReporter) Daily(_ context.Context, _, _ string, admin bool, days int) ([]quota.DailyUsage, error) {
	f.admin, f.days = admin, days
	return f.daily, f.err
}

func usageEngine(rep UsageReporter) *gin.Engine {
	h := NewUsageHandler(rep)
	r := gin.New()
	r.Use(middleware.Auth(middleware.AuthConfig{}))
	u := r.Group("/v1/usage")
	u.GET("/stats", h.Stats)
	u.GET("/projects/:pid", h.Project)
	u.GET("/daily", h.Daily)
	return r
}

func TestUsage(t *testing.T) {
	t.Run("stats", func(t *testing.T) {
		rep := &fakeReporter{stats: &quota.UsageStats{TotalRequests: 3, CacheSavingsUSD: 0.0027}}
		w := get(usageEngine(rep), "/v1/usage/stats")
		require.Equal(t, http.StatusOK, w.Code)
		data := decodeData(t, w)
		assert.EqualValues(t, 3, data["total_requests"])
		assert.False(t, rep.admin)
	})

	t.Run("project not found", func(t *testing.T) {
		w := get(usageEngine(&fakeReporter{err: quota.ErrProjectNotFound}), "/v1/usage/projects/missing")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("project of another user", func(t *testing.T) {
		rep := &fakeReporter{err: quota.ErrProjectForbidden}
		w := get(usageEngine(rep), "/v1/usage/projects/"+testProjectID)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "anonymous", rep.userID)
		assert.False(t, rep.admin)
	})

	t.Run("daily passes days", func(t *testing.T) {
		rep := &fakeReporter{daily: []quota.DailyUsage{{Date: "2026-10-14", RequestCount: 1}}}
		w := get(usageEngine(rep), "/v1/usage/daily?days=7&project_id="+testProjectID)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 7, rep.days)
		assert.Contains(t, w.Body.String(), "2026-10-14")
	})

	t.Run("daily rejects bad days", func(t *testing.T) {
		w := get(usageEngine(&fakeReporter{}), "/v1/usage/daily?days=abc")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

func TestReady(t *testing.T) {
	r := gin.New()
	ok := NewHealthHandler("1.0.0", fakeChecker{}, fakeChecker{})
	r.GET("/ready", ok.Ready)
	r.GET("/health", ok.Health)
	assert.Equal(t, http.StatusOK, get(r, "/ready").Code)
	assert.Contains(t, get(r, "/health").Body.String(), "1.0.0")

	down := gin.New()
	bad := NewHealthHandler("1.0.0", fakeChecker{}, fakeChecker{err: errors.New("connection refused")})
	down.GET("/ready", bad.Ready)
	w := get(down, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
