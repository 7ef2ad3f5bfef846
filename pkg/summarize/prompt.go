package summarize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/recapd-ai/recapd/pkg/models"
)

// Completion token budgets per requested length. The batched strategy
// multiplies these by the chunk size.
const (
	tokensShort  = 100
	tokensMedium = 200
	tokensLong   = 300
)

// maxTokensFor returns the completion budget for one article.
func maxTokensFor(length models.SummaryLength) int {
	switch length {
	case models.LengthShort:
		return tokensShort
	case models.LengthLong:
		return tokensLong
	default:
		return tokensMedium
	}
}

func lengthInstruction(length models.SummaryLength) string {
	switch length {
	case models.LengthShort:
		return "Keep the summary to 2-3 sentences."
	case models.LengthLong:
		return "Write a detailed summary of 150-200 words."
	default:
		return "Write a summary of 50-100 words."
	}
}

func styleInstruction(style models.SummaryStyle) string {
	switch style {
	case models.StyleBulletPoints:
		return "Format the summary as concise bullet points."
	case models.StyleStructured:
		return "Structure the summary with short labeled sections."
	default:
		return "Write the summary as flowing paragraphs."
	}
}

// systemPrompt is deterministic given the options.
func systemPrompt(opts models.SummaryOptions) string {
	var b strings.Builder
	b.WriteString("You are an expert summarizer of news articles. ")
	b.WriteString(lengthInstruction(opts.Length))
	b.WriteString(" ")
	b.WriteString(styleInstruction(opts.Style))
	if opts.ExtractKeyPoints {
		b.WriteString(" After the summary, list the key points under a 'Key points:' heading.")
	}
	if opts.AnalyzeSentiment {
		b.WriteString(" End with a one-line sentiment assessment (positive, negative or neutral) under a 'Sentiment:' heading.")
	}
	if opts.Language != "" {
		b.WriteString(fmt.Sprintf(" Respond in %s.", opts.Language))
	}
	return b.String()
}

// buildArticleRequest constructs the chat request for one article.
func buildArticleRequest(model string, a models.Article, opts models.SummaryOptions) models.ChatCompletionRequest {
	var user strings.Builder
	if a.Title != "" {
		user.WriteString("Title: ")
		user.WriteString(a.Title)
		user.WriteString("\n\n")
	}
	user.WriteString(a.Content)

	return models.ChatCompletionRequest{
		Model: model,
		Messages: []models.ChatMessage{
			{Role: "system", Content: systemPrompt(opts)},
			{Role: "user", Content: user.String()},
		},
		MaxTokens: models.IntPtr(maxTokensFor(opts.Length)),
	}
}

// articleMarker delimits per-article summaries in a batched reply. Indexes
// are 1-based within the chunk.
func articleMarker(n int) string {
	return fmt.Sprintf("=== ARTICLE %d ===", n)
}

// buildChunkRequest constructs one combined request for a chunk of articles.
// The prompt instructs the model to open each summary with its marker so
// the reply can be split per article.
func buildChunkRequest(model string, chunk []models.Article, opts models.SummaryOptions) models.ChatCompletionRequest {
	var user strings.Builder
	fmt.Fprintf(&user, "Summarize each of the following %d articles separately. ", len(chunk))
	user.WriteString("Begin each summary with its marker line, exactly as given, e.g. ")
	user.WriteString(articleMarker(1))
	user.WriteString("\n\n")
	for i, a := range chunk {
		user.WriteString(articleMarker(i + 1))
		user.WriteString("\n")
		if a.Title != "" {
			user.WriteString("Title: ")
			user.WriteString(a.Title)
			user.WriteString("\n")
		}
		user.WriteString(a.Content)
		user.WriteString("\n\n")
	}

	return models.ChatCompletionRequest{
		Model: model,
		Messages: []models.ChatMessage{
			{Role: "system", Content: systemPrompt(opts)},
			{Role: "user", Content: user.String()},
		},
		MaxTokens: models.IntPtr(maxTokensFor(opts.Length) * len(chunk)),
	}
}

var markerRe = regexp.MustCompile(`(?m)^\s*===\s*ARTICLE\s+(\d+)\s*===\s*$`)

// parseChunkReply splits a combined reply into per-article summaries keyed
// by 1-based index. Articles whose marker is absent are simply missing from
// the map and count as failed.
func parseChunkReply(reply string) map[int]string {
	out := make(map[int]string)

	matches := markerRe.FindAllStringSubmatchIndex(reply, -1)
	for i, m := range matches {
		var idx int
		fmt.Sscanf(reply[m[2]:m[3]], "%d", &idx)
		if idx <= 0 {
			continue
		}
		start := m[1]
		end := len(reply)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		text := strings.TrimSpace(reply[start:end])
		if text != "" {
			out[idx] = text
		}
	}
	return out
}
