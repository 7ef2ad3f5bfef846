// Package summarize drives summarization calls: model selection, prompt
// construction, sequential and batched processing strategies, and usage
// recording.
package summarize

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/recapd-ai/recapd/pkg/apierr"
	"github.com/recapd-ai/recapd/pkg/costguard"
	"github.com/recapd-ai/recapd/pkg/ledger"
	"github.com/recapd-ai/recapd/pkg/models"
	"github.com/recapd-ai/recapd/pkg/selector"
	"github.com/recapd-ai/recapd/pkg/settings"
)

// chunkSize groups articles for the batched strategy.
const chunkSize = 5

// Caller executes one chat completion through the per-credential dispatch
// queue and returns the actual dollar cost alongside the response.
type Caller interface {
	Call(ctx context.Context, userID string, req models.ChatCompletionRequest) (*models.ChatCompletionResponse, float64, error)
}

// StreamCaller additionally streams one chat completion, delivering content
// deltas as the provider emits them.
type StreamCaller interface {
	Caller
	CallStream(ctx context.Context, userID string, req models.ChatCompletionRequest, onDelta func(string)) (*models.ChatCompletionResponse, float64, error)
}

// Orchestrator assembles summarization responses.
type Orchestrator struct {
	caller   Caller
	settings settings.Store
	ledger   ledger.Ledger
	selector *selector.Selector
	events   *models.Events
}

// New creates an Orchestrator.
func New(caller Caller, st settings.Store, lg ledger.Ledger, sel *selector.Selector, events *models.Events) *Orchestrator {
	return &Orchestrator{caller: caller, settings: st, ledger: lg, selector: sel, events: events}
}

// Summarize runs one summarization call: validate limits, select a model,
// process sequentially or in batches, assemble the response.
//
// A usage-limit violation or missing credential aborts before any model
// traffic. Per-article and per-chunk model failures are absorbed into
// failed counts and never abort the whole call.
func (o *Orchestrator) Summarize(ctx context.Context, req models.SummaryRequest) (*models.SummaryResponse, error) {
	return o.run(ctx, req, nil, nil)
}

// SummarizeWithProgress is Summarize with a per-item progress callback.
// progress (optional) receives cumulative processed and failed counts after
// every article or chunk.
func (o *Orchestrator) SummarizeWithProgress(ctx context.Context, req models.SummaryRequest, progress func(processed, failed int)) (*models.SummaryResponse, error) {
	return o.run(ctx, req, progress, nil)
}

// SummarizeStream is Summarize with incremental delivery: deltas receives
// each article's content fragments as the model emits them. Chunked replies
// cannot be split mid-stream, so the strategy is forced to sequential.
func (o *Orchestrator) SummarizeStream(ctx context.Context, req models.SummaryRequest, deltas func(articleID, delta string)) (*models.SummaryResponse, error) {
	req.Strategy = models.StrategySequential
	return o.run(ctx, req, nil, deltas)
}

func (o *Orchestrator) run(ctx context.Context, req models.SummaryRequest, progress func(processed, failed int), deltas func(articleID, delta string)) (*models.SummaryResponse, error) {
	if len(req.Articles) == 0 {
		return nil, apierr.Newf(apierr.CategoryValidation, "%w: no articles", apierr.ErrInvalidRequest)
	}

	st, err := o.settings.GetSettings(ctx, req.UserID)
	if err != nil {
		return nil, apierr.Newf(apierr.CategoryInfrastructure, "resolve settings: %w", err)
	}
	apiKey, err := o.settings.GetAPIKey(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	if err := o.ledger.CheckUsageLimits(ctx, req.UserID, st.DailyCostLimit, st.MonthlyCostLimit); err != nil {
		return nil, err
	}

	o.applyDefaults(&req, st)
	model, fallback := o.pickModel(ctx, apiKey, req, st)

	start := time.Now()
	resp := &models.SummaryResponse{Model: model}

	switch req.Strategy {
	case models.StrategyBatched:
		o.processBatched(ctx, req, model, resp, progress)
	default:
		o.processSequential(ctx, req, model, fallback, st.FallbackEnabled, resp, progress, deltas)
	}

	resp.BatchMetadata.DurationMs = time.Since(start).Milliseconds()
	return resp, nil
}

// applyDefaults fills request options from the user's stored preferences.
func (o *Orchestrator) applyDefaults(req *models.SummaryRequest, st *models.Settings) {
	if req.Options.Length == "" {
		if st.DefaultLength != "" {
			req.Options.Length = st.DefaultLength
		} else {
			req.Options.Length = models.LengthMedium
		}
	}
	if req.Options.Style == "" {
		if st.DefaultStyle != "" {
			req.Options.Style = st.DefaultStyle
		} else {
			req.Options.Style = models.StyleParagraph
		}
	}
	if req.Strategy == "" {
		req.Strategy = models.StrategySequential
	}
}

// pickModel resolves the primary and fallback models for this request.
func (o *Orchestrator) pickModel(ctx context.Context, apiKey string, req models.SummaryRequest, st *models.Settings) (model, fallback string) {
	fallback = st.FallbackModel

	if req.Model != "" {
		return req.Model, fallback
	}
	if st.DefaultModel != "" {
		return st.DefaultModel, fallback
	}

	var contentTokens int
	for _, a := range req.Articles {
		contentTokens += costguard.EstimatePromptTokens(a.Content)
	}
	rec, err := o.selector.Recommend(ctx, apiKey, selector.Criteria{
		ContentTokens: contentTokens,
		Task:          "summarization",
	})
	if err != nil || rec == nil {
		return o.selector.DefaultModel(), fallback
	}
	if fallback == "" && len(rec.FallbackModels) > 0 {
		fallback = rec.FallbackModels[0]
	}
	return rec.Model.ID, fallback
}

// processSequential summarizes each article on its own, retrying once with
// the fallback model when enabled. One failing article never aborts the rest.
func (o *Orchestrator) processSequential(ctx context.Context, req models.SummaryRequest, model, fallback string, fallbackEnabled bool, out *models.SummaryResponse, progress func(processed, failed int), deltas func(articleID, delta string)) {
	for i, article := range req.Articles {
		var onDelta func(string)
		if deltas != nil {
			id := article.ID
			onDelta = func(d string) { deltas(id, d) }
		}

		usedModel := model
		resp, cost, err := o.call(ctx, req.UserID, buildArticleRequest(model, article, req.Options), onDelta)
		if err != nil && fallbackEnabled && fallback != "" && fallback != model {
			log.Printf("summarize: article %s failed on %s, trying fallback %s: %v", article.ID, model, fallback, err)
			usedModel = fallback
			resp, cost, err = o.call(ctx, req.UserID, buildArticleRequest(fallback, article, req.Options), onDelta)
		}

		if err != nil {
			out.Summaries = append(out.Summaries, models.ArticleSummary{
				ArticleID: article.ID,
				Failed:    true,
				Error:     err.Error(),
			})
			out.BatchMetadata.FailedSummaries++
		} else {
			o.recordUsage(ctx, req.UserID, usedModel, resp, cost, "summarize", map[string]string{
				"article_id":    article.ID,
				"article_index": strconv.Itoa(i),
			})
			out.Summaries = append(out.Summaries, models.ArticleSummary{
				ArticleID: article.ID,
				Summary:   resp.Content(),
				Model:     usedModel,
			})
			out.BatchMetadata.SuccessfulSummaries++
			o.accumulate(out, resp, cost)
		}

		report(progress, out)
	}
}

// call routes one completion through the streaming path when a delta sink
// is attached and the caller supports it, else through the plain path.
func (o *Orchestrator) call(ctx context.Context, userID string, req models.ChatCompletionRequest, onDelta func(string)) (*models.ChatCompletionResponse, float64, error) {
	if onDelta != nil {
		if sc, ok := o.caller.(StreamCaller); ok {
			return sc.CallStream(ctx, userID, req, onDelta)
		}
	}
	return o.caller.Call(ctx, userID, req)
}

// report pushes cumulative counts to a progress callback, if any.
func report(progress func(processed, failed int), out *models.SummaryResponse) {
	if progress != nil {
		progress(out.BatchMetadata.SuccessfulSummaries+out.BatchMetadata.FailedSummaries, out.BatchMetadata.FailedSummaries)
	}
}

// processBatched summarizes fixed-size chunks with one combined prompt per
// chunk. A chunk failure counts every article in it as failed; the next
// chunk proceeds.
func (o *Orchestrator) processBatched(ctx context.Context, req models.SummaryRequest, model string, out *models.SummaryResponse, progress func(processed, failed int)) {
	for start := 0; start < len(req.Articles); start += chunkSize {
		end := start + chunkSize
		if end > len(req.Articles) {
			end = len(req.Articles)
		}
		chunk := req.Articles[start:end]

		resp, cost, err := o.caller.Call(ctx, req.UserID, buildChunkRequest(model, chunk, req.Options))
		if err != nil {
			log.Printf("summarize: chunk of %d failed: %v", len(chunk), err)
			for _, a := range chunk {
				out.Summaries = append(out.Summaries, models.ArticleSummary{
					ArticleID: a.ID,
					Failed:    true,
					Error:     err.Error(),
				})
				out.BatchMetadata.FailedSummaries++
			}
			report(progress, out)
			continue
		}

		o.recordUsage(ctx, req.UserID, model, resp, cost, "batch_summarize", map[string]string{
			"chunk_size": strconv.Itoa(len(chunk)),
		})
		o.accumulate(out, resp, cost)

		parts := parseChunkReply(resp.Content())
		for i, a := range chunk {
			text, ok := parts[i+1]
			if !ok {
				out.Summaries = append(out.Summaries, models.ArticleSummary{
					ArticleID: a.ID,
					Failed:    true,
					Error:     "summary missing from batched reply",
				})
				out.BatchMetadata.FailedSummaries++
				continue
			}
			out.Summaries = append(out.Summaries, models.ArticleSummary{
				ArticleID: a.ID,
				Summary:   text,
				Model:     model,
			})
			out.BatchMetadata.SuccessfulSummaries++
		}
		report(progress, out)
	}
}

// recordUsage appends exactly one usage record per successful model call,
// before the result is surfaced.
func (o *Orchestrator) recordUsage(ctx context.Context, userID, model string, resp *models.ChatCompletionResponse, cost float64, requestType string, meta map[string]string) {
	rec := models.UsageRecord{
		UserID:      userID,
		Model:       model,
		Cost:        cost,
		RequestType: requestType,
		Metadata:    meta,
		CreatedAt:   time.Now().UTC(),
	}
	if resp.Usage != nil {
		rec.PromptTokens = resp.Usage.PromptTokens
		rec.CompletionTokens = resp.Usage.CompletionTokens
		rec.TotalTokens = resp.Usage.TotalTokens
	}
	if err := o.ledger.RecordUsage(ctx, rec); err != nil {
		log.Printf("summarize: record usage: %v", err)
		o.events.EmitError(models.ErrorEvent{
			UserID:   userID,
			Category: string(apierr.CategoryInfrastructure),
			Message:  fmt.Sprintf("record usage: %v", err),
		})
	}
}

func (o *Orchestrator) accumulate(out *models.SummaryResponse, resp *models.ChatCompletionResponse, cost float64) {
	if resp.Usage != nil {
		out.BatchMetadata.TotalTokens += resp.Usage.TotalTokens
	}
	out.BatchMetadata.TotalCost += cost
}
