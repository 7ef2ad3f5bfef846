package models

// SummaryLength controls the requested summary size.
type SummaryLength string

const (
	LengthShort  SummaryLength = "short"  // 2-3 sentences
	LengthMedium SummaryLength = "medium" // 50-100 words
	LengthLong   SummaryLength = "long"   // 150-200 words
)

// SummaryStyle controls the requested output format.
type SummaryStyle string

const (
	StyleBulletPoints SummaryStyle = "bullet_points"
	StyleStructured   SummaryStyle = "structured"
	StyleParagraph    SummaryStyle = "paragraph"
)

// Strategy picks how a multi-article request is processed.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyBatched    Strategy = "batched"
)

// Article is one unit of input text to summarize.
type Article struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// SummaryOptions tunes prompt construction.
type SummaryOptions struct {
	Length           SummaryLength `json:"length,omitempty"`
	Style            SummaryStyle  `json:"style,omitempty"`
	ExtractKeyPoints bool          `json:"extract_key_points,omitempty"`
	AnalyzeSentiment bool          `json:"analyze_sentiment,omitempty"`
	Language         string        `json:"language,omitempty"`
}

// SummaryRequest asks for one or more articles to be summarized.
type SummaryRequest struct {
	UserID   string         `json:"user_id"`
	Articles []Article      `json:"articles"`
	Model    string         `json:"model,omitempty"`
	Strategy Strategy       `json:"strategy,omitempty"`
	Options  SummaryOptions `json:"options"`
}

// ArticleSummary is the per-article outcome.
type ArticleSummary struct {
	ArticleID string `json:"article_id"`
	Summary   string `json:"summary,omitempty"`
	Model     string `json:"model,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchMetadata accumulates cost and token outcomes across a request.
type BatchMetadata struct {
	SuccessfulSummaries int     `json:"successful_summaries"`
	FailedSummaries     int     `json:"failed_summaries"`
	TotalTokens         int     `json:"total_tokens"`
	TotalCost           float64 `json:"total_cost"`
	DurationMs          int64   `json:"duration_ms"`
}

// SummaryResponse is the assembled result of a summarization call.
type SummaryResponse struct {
	Summaries     []ArticleSummary `json:"summaries"`
	Model         string           `json:"model"`
	BatchMetadata BatchMetadata    `json:"batch_metadata"`
}
