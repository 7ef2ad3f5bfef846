package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/recapd-ai/recapd/pkg/apierr"
	"github.com/recapd-ai/recapd/pkg/cache"
	"github.com/recapd-ai/recapd/pkg/config"
	"github.com/recapd-ai/recapd/pkg/jobs"
	"github.com/recapd-ai/recapd/pkg/ledger"
	"github.com/recapd-ai/recapd/pkg/models"
	"github.com/recapd-ai/recapd/pkg/settings"
)

type fakeTransport struct {
	mu      sync.Mutex
	catalog []models.ModelDescriptor
	chat    func(apiKey string, req models.ChatCompletionRequest) (*models.ChatCompletionResponse, *models.RateLimitSnapshot, error)
	calls   int
	lastKey string
}

func (f *fakeTransport) ListModels(ctx context.Context, apiKey string) ([]models.ModelDescriptor, error) {
	return f.catalog, nil
}

func (f *fakeTransport) GetModel(ctx context.Context, apiKey, id string) (*models.ModelDescriptor, error) {
	for _, m := range f.catalog {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, apierr.ErrModelNotFound
}

func (f *fakeTransport) ChatCompletion(ctx context.Context, apiKey string, req models.ChatCompletionRequest) (*models.ChatCompletionResponse, *models.RateLimitSnapshot, error) {
	f.mu.Lock()
	f.calls++
	f.lastKey = apiKey
	f.mu.Unlock()
	return f.chat(apiKey, req)
}

// ChatCompletionStream replays the scripted response as word-sized deltas.
func (f *fakeTransport) ChatCompletionStream(ctx context.Context, apiKey string, req models.ChatCompletionRequest, onDelta func(string)) (*models.ChatCompletionResponse, *models.RateLimitSnapshot, error) {
	resp, snap, err := f.ChatCompletion(ctx, apiKey, req)
	if err != nil {
		return resp, snap, err
	}
	if onDelta != nil {
		for _, word := range strings.SplitAfter(resp.Content(), " ") {
			onDelta(word)
		}
	}
	return resp, snap, nil
}

func okChat(apiKey string, req models.ChatCompletionRequest) (*models.ChatCompletionResponse, *models.RateLimitSnapshot, error) {
	return &models.ChatCompletionResponse{
		ID:    "cmpl-1",
		Model: req.Model,
		Choices: []models.Choice{
			{Message: models.ChatMessage{Role: "assistant", Content: "a summary"}, FinishReason: "stop"},
		},
		Usage: &models.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}, &models.RateLimitSnapshot{RequestsRemaining: 50, RequestsLimit: 100}, nil
}

type testEnv struct {
	svc       *Service
	transport *fakeTransport
	settings  *settings.SQLiteStore
	ledger    *ledger.SQLiteLedger
}

func newTestService(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Dispatch.BaseRetryDelay = time.Millisecond
	cfg.Dispatch.TickInterval = 5 * time.Millisecond
	cfg.Dispatch.InterRequestDelay = time.Millisecond

	dir := t.TempDir()
	st, err := settings.New(filepath.Join(dir, "recapd.db"), cfg.Cost, cfg.Selector.DefaultModel)
	if err != nil {
		t.Fatalf("settings.New() = %v", err)
	}
	lg, err := ledger.New(filepath.Join(dir, "recapd.db"))
	if err != nil {
		t.Fatalf("ledger.New() = %v", err)
	}
	c, err := cache.New(filepath.Join(dir, "recapd.db"), time.Hour)
	if err != nil {
		t.Fatalf("cache.New() = %v", err)
	}
	jobStore, err := jobs.NewStore(filepath.Join(dir, "recapd.db"))
	if err != nil {
		t.Fatalf("jobs.NewStore() = %v", err)
	}

	transport := &fakeTransport{
		catalog: []models.ModelDescriptor{
			{
				ID:            "test/model",
				ContextLength: 8000,
				Pricing:       models.ModelPricing{Prompt: 0.000001, Completion: 0.000002},
				Architecture:  models.ModelArchitecture{Modality: "text->text"},
			},
		},
		chat: okChat,
	}

	svc := New(cfg, transport, st, lg, c, jobStore, nil)

	t.Cleanup(func() {
		svc.Stop()
		jobStore.Close()
		c.Close()
		lg.Close()
		st.Close()
	})

	if err := st.SaveSettings(context.Background(), models.Settings{
		UserID:          "u1",
		APIKey:          "sk-u1",
		DefaultModel:    "test/model",
		FallbackEnabled: true,
	}); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	return &testEnv{svc: svc, transport: transport, settings: st, ledger: lg}
}

func TestCallExecutesThroughQueue(t *testing.T) {
	env := newTestService(t)

	resp, cost, err := env.svc.Call(context.Background(), "u1", models.ChatCompletionRequest{
		Model:    "test/model",
		Messages: []models.ChatMessage{{Role: "user", Content: "summarize this"}},
	})
	if err != nil {
		t.Fatalf("Call() = %v", err)
	}
	if resp.Content() != "a summary" {
		t.Errorf("content = %q", resp.Content())
	}
	if env.transport.lastKey != "sk-u1" {
		t.Errorf("upstream called with key %q", env.transport.lastKey)
	}

	// Actual cost comes from reported usage at catalog prices.
	want := 100*0.000001 + 50*0.000002
	if cost < want*0.99 || cost > want*1.01 {
		t.Errorf("cost = %v, want about %v", cost, want)
	}
}

func TestCallStreamDeliversDeltas(t *testing.T) {
	env := newTestService(t)

	var deltas []string
	resp, cost, err := env.svc.CallStream(context.Background(), "u1", models.ChatCompletionRequest{
		Model:    "test/model",
		Messages: []models.ChatMessage{{Role: "user", Content: "summarize this"}},
	}, func(d string) { deltas = append(deltas, d) })
	if err != nil {
		t.Fatalf("CallStream() = %v", err)
	}
	if resp.Content() != "a summary" {
		t.Errorf("content = %q", resp.Content())
	}
	if strings.Join(deltas, "") != "a summary" {
		t.Errorf("streamed deltas = %q, want the full content", strings.Join(deltas, ""))
	}
	if len(deltas) < 2 {
		t.Errorf("deltas = %d, want incremental delivery", len(deltas))
	}

	// Streamed calls pay the same way as plain ones.
	want := 100*0.000001 + 50*0.000002
	if cost < want*0.99 || cost > want*1.01 {
		t.Errorf("cost = %v, want about %v", cost, want)
	}
}

func TestCallStreamValidationFailsBeforeDispatch(t *testing.T) {
	env := newTestService(t)

	_, _, err := env.svc.CallStream(context.Background(), "u1", models.ChatCompletionRequest{Model: "test/model"}, nil)
	if !errors.Is(err, apierr.ErrInvalidRequest) {
		t.Fatalf("CallStream() = %v, want ErrInvalidRequest", err)
	}
	if env.transport.calls != 0 {
		t.Error("invalid request reached the upstream")
	}
}

func TestModelDetail(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	m, err := env.svc.ModelDetail(ctx, "u1", "test/model")
	if err != nil {
		t.Fatalf("ModelDetail() = %v", err)
	}
	if m.ID != "test/model" || m.ContextLength != 8000 {
		t.Errorf("descriptor = %+v", m)
	}

	if _, err := env.svc.ModelDetail(ctx, "u1", "missing/model"); !errors.Is(err, apierr.ErrModelNotFound) {
		t.Errorf("ModelDetail(missing) = %v, want ErrModelNotFound", err)
	}
	if _, err := env.svc.ModelDetail(ctx, "stranger", "test/model"); !errors.Is(err, apierr.ErrNoAPIKey) {
		t.Errorf("ModelDetail without credential = %v, want ErrNoAPIKey", err)
	}
}

func TestCallWithoutCredential(t *testing.T) {
	env := newTestService(t)

	_, _, err := env.svc.Call(context.Background(), "stranger", models.ChatCompletionRequest{
		Model:    "test/model",
		Messages: []models.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, apierr.ErrNoAPIKey) {
		t.Errorf("Call() = %v, want ErrNoAPIKey", err)
	}
}

func TestCallValidationFailsBeforeDispatch(t *testing.T) {
	env := newTestService(t)

	_, _, err := env.svc.Call(context.Background(), "u1", models.ChatCompletionRequest{Model: "test/model"})
	if !errors.Is(err, apierr.ErrInvalidRequest) {
		t.Fatalf("Call() = %v, want ErrInvalidRequest", err)
	}
	if env.transport.calls != 0 {
		t.Error("invalid request reached the upstream")
	}
}

func TestEmergencyStopAndResume(t *testing.T) {
	env := newTestService(t)

	env.svc.EmergencyStop("test drill")

	_, _, err := env.svc.Call(context.Background(), "u1", models.ChatCompletionRequest{
		Model:    "test/model",
		Messages: []models.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, apierr.ErrEmergencyStop) {
		t.Fatalf("Call() during stop = %v, want ErrEmergencyStop", err)
	}

	env.svc.Resume()
	if _, _, err := env.svc.Call(context.Background(), "u1", models.ChatCompletionRequest{
		Model:    "test/model",
		Messages: []models.ChatMessage{{Role: "user", Content: "hi"}},
	}); err != nil {
		t.Errorf("Call() after Resume = %v", err)
	}
}

func TestClearQueueUnknownUser(t *testing.T) {
	env := newTestService(t)

	if n := env.svc.ClearQueue("nobody"); n != 0 {
		t.Errorf("ClearQueue(unknown) = %d, want 0", n)
	}
}

func TestSummarizeEndToEnd(t *testing.T) {
	env := newTestService(t)

	resp, err := env.svc.Summarize(context.Background(), models.SummaryRequest{
		UserID: "u1",
		Articles: []models.Article{
			{ID: "a1", Content: "First article body."},
			{ID: "a2", Content: "Second article body."},
		},
	})
	if err != nil {
		t.Fatalf("Summarize() = %v", err)
	}
	if resp.BatchMetadata.SuccessfulSummaries != 2 {
		t.Errorf("successful = %d, want 2", resp.BatchMetadata.SuccessfulSummaries)
	}
	if resp.Model != "test/model" {
		t.Errorf("model = %s", resp.Model)
	}

	// Each successful call left exactly one usage record.
	stats, err := env.ledger.GetUsageStats(context.Background(), "u1", "daily")
	if err != nil {
		t.Fatalf("GetUsageStats() = %v", err)
	}
	if stats.TotalRequests != 2 {
		t.Errorf("ledger requests = %d, want 2", stats.TotalRequests)
	}
	if stats.TotalTokens != 300 {
		t.Errorf("ledger tokens = %d, want 300", stats.TotalTokens)
	}
}

func TestSummarizeStreamEndToEnd(t *testing.T) {
	env := newTestService(t)

	var mu sync.Mutex
	streamed := make(map[string]string)
	resp, err := env.svc.SummarizeStream(context.Background(), models.SummaryRequest{
		UserID: "u1",
		Articles: []models.Article{
			{ID: "a1", Content: "First article body."},
			{ID: "a2", Content: "Second article body."},
		},
	}, func(articleID, delta string) {
		mu.Lock()
		streamed[articleID] += delta
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("SummarizeStream() = %v", err)
	}
	if resp.BatchMetadata.SuccessfulSummaries != 2 {
		t.Errorf("successful = %d, want 2", resp.BatchMetadata.SuccessfulSummaries)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range []string{"a1", "a2"} {
		if streamed[id] != "a summary" {
			t.Errorf("streamed[%s] = %q, want the full summary", id, streamed[id])
		}
	}
}

func TestUsageStatsReadThroughCache(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	if err := env.ledger.RecordUsage(ctx, models.UsageRecord{
		UserID: "u1", Model: "test/model", TotalTokens: 100, Cost: 0.01, RequestType: "summarize",
	}); err != nil {
		t.Fatalf("RecordUsage() = %v", err)
	}

	first, err := env.svc.UsageStats(ctx, "u1", "daily")
	if err != nil {
		t.Fatalf("UsageStats() = %v", err)
	}
	if first.TotalRequests != 1 {
		t.Errorf("requests = %d, want 1", first.TotalRequests)
	}

	// New spend within the cache TTL is invisible until it expires.
	if err := env.ledger.RecordUsage(ctx, models.UsageRecord{
		UserID: "u1", Model: "test/model", TotalTokens: 100, Cost: 0.01, RequestType: "summarize",
	}); err != nil {
		t.Fatalf("RecordUsage() = %v", err)
	}
	second, err := env.svc.UsageStats(ctx, "u1", "daily")
	if err != nil {
		t.Fatalf("second UsageStats() = %v", err)
	}
	if second.TotalRequests != 1 {
		t.Errorf("cached requests = %d, want the cached 1", second.TotalRequests)
	}
}

func TestHealth(t *testing.T) {
	env := newTestService(t)

	// Spin up a dispatcher first.
	env.svc.Call(context.Background(), "u1", models.ChatCompletionRequest{
		Model:    "test/model",
		Messages: []models.ChatMessage{{Role: "user", Content: "hi"}},
	})

	h := env.svc.Health(context.Background())
	if !h.Healthy {
		t.Errorf("health = %+v", h)
	}
	if h.Database != "ok" || h.Cache != "ok" {
		t.Errorf("probes = db %q, cache %q", h.Database, h.Cache)
	}
	if len(h.Dispatchers) != 1 || h.Dispatchers[0].UserID != "u1" {
		t.Errorf("dispatchers = %+v", h.Dispatchers)
	}
	if h.Dispatchers[0].RateLimit == nil {
		t.Error("rate-limit snapshot not surfaced after a call")
	}
}

func TestCredentialChangeRebuildsDispatcher(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	if _, _, err := env.svc.Call(ctx, "u1", models.ChatCompletionRequest{
		Model:    "test/model",
		Messages: []models.ChatMessage{{Role: "user", Content: "hi"}},
	}); err != nil {
		t.Fatalf("Call() = %v", err)
	}

	// Rotate the key; the next call must use it.
	st, err := env.settings.GetSettings(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSettings() = %v", err)
	}
	st.APIKey = "sk-rotated"
	if err := env.settings.SaveSettings(ctx, *st); err != nil {
		t.Fatalf("SaveSettings() = %v", err)
	}

	if _, _, err := env.svc.Call(ctx, "u1", models.ChatCompletionRequest{
		Model:    "test/model",
		Messages: []models.ChatMessage{{Role: "user", Content: "hi"}},
	}); err != nil {
		t.Fatalf("Call() after rotation = %v", err)
	}
	if env.transport.lastKey != "sk-rotated" {
		t.Errorf("upstream called with %q, want rotated key", env.transport.lastKey)
	}
}
