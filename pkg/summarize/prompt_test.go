package summarize

import (
	"strings"
	"testing"

	"github.com/recapd-ai/recapd/pkg/models"
)

func TestMaxTokensFor(t *testing.T) {
	tests := []struct {
		length models.SummaryLength
		want   int
	}{
		{models.LengthShort, 100},
		{models.LengthMedium, 200},
		{models.LengthLong, 300},
		{"", 200}, // unset defaults to medium
	}
	for _, tt := range tests {
		if got := maxTokensFor(tt.length); got != tt.want {
			t.Errorf("maxTokensFor(%q) = %d, want %d", tt.length, got, tt.want)
		}
	}
}

func TestSystemPromptDeterministic(t *testing.T) {
	opts := models.SummaryOptions{
		Length:           models.LengthShort,
		Style:            models.StyleBulletPoints,
		ExtractKeyPoints: true,
		AnalyzeSentiment: true,
		Language:         "German",
	}
	a := systemPrompt(opts)
	b := systemPrompt(opts)
	if a != b {
		t.Error("systemPrompt is not deterministic for equal options")
	}
	for _, want := range []string{"bullet points", "Key points:", "Sentiment:", "German"} {
		if !strings.Contains(a, want) {
			t.Errorf("systemPrompt missing %q:\n%s", want, a)
		}
	}
}

func TestBuildArticleRequest(t *testing.T) {
	article := models.Article{ID: "a1", Title: "Headline", Content: "Body text."}
	req := buildArticleRequest("test/model", article, models.SummaryOptions{Length: models.LengthLong})

	if req.Model != "test/model" {
		t.Errorf("model = %s", req.Model)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[1].Content, "Headline") || !strings.Contains(req.Messages[1].Content, "Body text.") {
		t.Errorf("user message missing article content: %s", req.Messages[1].Content)
	}
	if req.MaxTokens == nil || *req.MaxTokens != 300 {
		t.Errorf("max tokens = %v, want 300", req.MaxTokens)
	}
}

func TestBuildChunkRequestScalesBudget(t *testing.T) {
	chunk := []models.Article{
		{ID: "a1", Content: "one"},
		{ID: "a2", Content: "two"},
		{ID: "a3", Content: "three"},
	}
	req := buildChunkRequest("test/model", chunk, models.SummaryOptions{Length: models.LengthMedium})

	if req.MaxTokens == nil || *req.MaxTokens != 600 {
		t.Errorf("max tokens = %v, want 200 x 3 = 600", req.MaxTokens)
	}
	user := req.Messages[1].Content
	for _, marker := range []string{"=== ARTICLE 1 ===", "=== ARTICLE 2 ===", "=== ARTICLE 3 ==="} {
		if !strings.Contains(user, marker) {
			t.Errorf("chunk prompt missing marker %q", marker)
		}
	}
}

func TestParseChunkReply(t *testing.T) {
	reply := `=== ARTICLE 1 ===
First summary.

=== ARTICLE 2 ===
Second summary,
two lines.

=== ARTICLE 4 ===
Fourth summary.`

	parts := parseChunkReply(reply)
	if len(parts) != 3 {
		t.Fatalf("parsed %d parts, want 3: %v", len(parts), parts)
	}
	if parts[1] != "First summary." {
		t.Errorf("part 1 = %q", parts[1])
	}
	if !strings.Contains(parts[2], "two lines.") {
		t.Errorf("part 2 = %q", parts[2])
	}
	if _, ok := parts[3]; ok {
		t.Error("part 3 should be absent")
	}
	if parts[4] != "Fourth summary." {
		t.Errorf("part 4 = %q", parts[4])
	}
}

func TestParseChunkReplyTolerantFormatting(t *testing.T) {
	// Models are sloppy about whitespace around the markers.
	reply := "  ===  ARTICLE  1  ===  \nSummary one.\n=== ARTICLE TWO ===\nNot a real marker."

	parts := parseChunkReply(reply)
	if parts[1] == "" {
		t.Error("whitespace-padded marker not recognized")
	}
	if _, ok := parts[2]; ok {
		t.Error("non-numeric marker should not match")
	}
}

func TestParseChunkReplyEmpty(t *testing.T) {
	if parts := parseChunkReply("no markers at all"); len(parts) != 0 {
		t.Errorf("parsed %v from a reply without markers", parts)
	}
}
