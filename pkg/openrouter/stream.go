package openrouter

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/recapd-ai/recapd/pkg/apierr"
	"github.com/recapd-ai/recapd/pkg/models"
)

// ChatCompletionStream sends a streaming chat completion and consumes the
// SSE frames incrementally. onDelta (optional) receives each content delta
// as it arrives. The fully assembled response is returned once the stream
// terminates with its [DONE] frame.
//
// Malformed or incomplete frames are skipped, not treated as errors.
func (c *Client) ChatCompletionStream(ctx context.Context, apiKey string, chatReq models.ChatCompletionRequest, onDelta func(string)) (*models.ChatCompletionResponse, *models.RateLimitSnapshot, error) {
	chatReq.Stream = true
	payload, err := json.Marshal(chatReq)
	if err != nil {
		return nil, nil, apierr.Newf(apierr.CategoryValidation, "marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/chat/completions", apiKey, payload)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, apierr.Newf(apierr.CategoryNetwork, "chat completion stream: %w", err)
	}
	defer resp.Body.Close()

	snap := parseRateLimit(resp.Header)

	if resp.StatusCode != http.StatusOK {
		body := make([]byte, 4096)
		n, _ := resp.Body.Read(body)
		return nil, snap, classifyStatus(resp.StatusCode, body[:n])
	}

	out := &models.ChatCompletionResponse{Object: "chat.completion"}
	var content strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk models.ChatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // partial or malformed frame
		}
		if chunk.ID != "" {
			out.ID = chunk.ID
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		if chunk.Usage != nil {
			out.Usage = chunk.Usage
		}
		for _, ch := range chunk.Choices {
			if ch.Delta.Content != "" {
				content.WriteString(ch.Delta.Content)
				if onDelta != nil {
					onDelta(ch.Delta.Content)
				}
			}
			if ch.FinishReason != nil && len(out.Choices) == 0 && *ch.FinishReason != "" {
				out.Choices = append(out.Choices, models.Choice{FinishReason: *ch.FinishReason})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, snap, apierr.Newf(apierr.CategoryNetwork, "reading stream: %w", err)
	}

	if len(out.Choices) == 0 {
		out.Choices = append(out.Choices, models.Choice{FinishReason: "stop"})
	}
	out.Choices[0].Message = models.ChatMessage{Role: "assistant", Content: content.String()}
	return out, snap, nil
}
