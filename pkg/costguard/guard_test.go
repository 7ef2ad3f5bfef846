package costguard

import (
	"errors"
	"testing"

	"github.com/recapd-ai/recapd/pkg/apierr"
	"github.com/recapd-ai/recapd/pkg/models"
)

func fixedPricing(prompt, completion float64) PricingLookup {
	return func(model string) (models.ModelPricing, error) {
		return models.ModelPricing{Prompt: prompt, Completion: completion}, nil
	}
}

func failingPricing(model string) (models.ModelPricing, error) {
	return models.ModelPricing{}, errors.New("catalog unreachable")
}

func testRequest(content string) models.ChatCompletionRequest {
	return models.ChatCompletionRequest{
		Model:    "test/model",
		Messages: []models.ChatMessage{{Role: "user", Content: content}},
	}
}

func TestEstimatePromptTokens(t *testing.T) {
	// 35 characters at 3.5 chars per token is exactly 10 tokens.
	if got := EstimatePromptTokens(string(make([]byte, 35))); got != 10 {
		t.Errorf("EstimatePromptTokens(35 chars) = %d, want 10", got)
	}
	// 36 characters rounds up.
	if got := EstimatePromptTokens(string(make([]byte, 36))); got != 11 {
		t.Errorf("EstimatePromptTokens(36 chars) = %d, want 11", got)
	}
	if got := EstimatePromptTokens(""); got != 0 {
		t.Errorf("EstimatePromptTokens(empty) = %d, want 0", got)
	}
}

func TestEstimate(t *testing.T) {
	g := New(fixedPricing(0.00001, 0.00002), 0, 0)

	req := testRequest(string(make([]byte, 350))) // 100 prompt tokens
	est := g.Estimate(req)

	if est.PromptTokens != 100 {
		t.Errorf("PromptTokens = %d, want 100", est.PromptTokens)
	}
	if est.CompletionTokens != 1000 {
		t.Errorf("CompletionTokens = %d, want default 1000", est.CompletionTokens)
	}
	want := 100*0.00001 + 1000*0.00002
	if est.Cost != want {
		t.Errorf("Cost = %v, want %v", est.Cost, want)
	}

	// An explicit max_tokens bounds the completion estimate.
	req.MaxTokens = models.IntPtr(200)
	est = g.Estimate(req)
	if est.CompletionTokens != 200 {
		t.Errorf("CompletionTokens = %d, want 200", est.CompletionTokens)
	}
}

func TestEstimateFallbackOnLookupFailure(t *testing.T) {
	g := New(failingPricing, 0, 0)

	est := g.Estimate(testRequest("short"))
	if est.PromptTokens != 1000 || est.CompletionTokens != 1000 {
		t.Errorf("fallback tokens = %d/%d, want 1000/1000", est.PromptTokens, est.CompletionTokens)
	}
	if est.Cost <= 0 {
		t.Error("fallback estimate should carry a nonzero cost")
	}
}

func TestAuthorizeValidation(t *testing.T) {
	g := New(fixedPricing(0.000001, 0.000002), 0, 0)

	tests := []struct {
		name string
		req  models.ChatCompletionRequest
	}{
		{"missing model", models.ChatCompletionRequest{Messages: []models.ChatMessage{{Role: "user", Content: "x"}}}},
		{"missing messages", models.ChatCompletionRequest{Model: "test/model"}},
		{"max tokens over ceiling", func() models.ChatCompletionRequest {
			r := testRequest("x")
			r.MaxTokens = models.IntPtr(100001)
			return r
		}()},
		{"temperature too high", func() models.ChatCompletionRequest {
			r := testRequest("x")
			r.Temperature = models.Float64Ptr(2.5)
			return r
		}()},
		{"temperature negative", func() models.ChatCompletionRequest {
			r := testRequest("x")
			r.Temperature = models.Float64Ptr(-0.1)
			return r
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Authorize(tt.req)
			if !errors.Is(err, apierr.ErrInvalidRequest) {
				t.Errorf("Authorize() error = %v, want ErrInvalidRequest", err)
			}
			if !apierr.IsTerminal(err) {
				t.Error("validation failures must be terminal")
			}
		})
	}
}

func TestAuthorizeBoundaryTemperature(t *testing.T) {
	g := New(fixedPricing(0.000001, 0.000002), 0, 0)

	for _, temp := range []float64{0, 2} {
		req := testRequest("hello")
		req.Temperature = models.Float64Ptr(temp)
		if _, err := g.Authorize(req); err != nil {
			t.Errorf("Authorize(temperature=%v) = %v, want nil", temp, err)
		}
	}
}

func TestAuthorizePerRequestCeiling(t *testing.T) {
	// 1000 default completion tokens at $0.001/token is $1, over a $0.50 cap.
	g := New(fixedPricing(0.001, 0.001), 0.50, 0)

	_, err := g.Authorize(testRequest("hello"))
	if !errors.Is(err, apierr.ErrCostLimit) {
		t.Fatalf("Authorize() error = %v, want ErrCostLimit", err)
	}
	if !apierr.IsTerminal(err) {
		t.Error("cost limit failures must be terminal")
	}
}

func TestAuthorizeDailyCeiling(t *testing.T) {
	g := New(fixedPricing(0.000001, 0.000001), 0, 1.0)

	// Spend most of the day's budget, then the next estimate tips it over.
	g.AddSpend(0.9995)

	req := testRequest("hello")
	if _, err := g.Authorize(req); !errors.Is(err, apierr.ErrCostLimit) {
		t.Errorf("Authorize() after heavy spend = %v, want ErrCostLimit", err)
	}
}

func TestDailySpendAccumulates(t *testing.T) {
	g := New(fixedPricing(0.000001, 0.000001), 0, 0)

	g.AddSpend(0.25)
	g.AddSpend(0.50)
	if got := g.DailyUsed(); got != 0.75 {
		t.Errorf("DailyUsed() = %v, want 0.75", got)
	}
}

func TestDailyResetOnDateChange(t *testing.T) {
	g := New(fixedPricing(0.000001, 0.000001), 0, 0)
	g.AddSpend(5)

	// Pretend the last reset happened yesterday.
	g.mu.Lock()
	g.resetDate = "2001-01-01"
	g.mu.Unlock()

	if got := g.DailyUsed(); got != 0 {
		t.Errorf("DailyUsed() after date rollover = %v, want 0", got)
	}
}
