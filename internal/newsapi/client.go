// Package newsapi implements the article-search provider client for an
// EventRegistry-style getArticles endpoint.
package newsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/adtechlab/newswire/internal/pipeline"
)

// Config controls the provider client.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	// RateRPS/RateBurst bound outgoing request volume to stay inside the
	// provider's plan limits. RateRPS <= 0 disables limiting.
	RateRPS   float64
	RateBurst int
}

// Client queries the provider over HTTP. It implements
// pipeline.ArticleSource.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// maxResponseBytes caps how much of a provider response is read; a page of
// 100 articles stays well below this.
const maxResponseBytes = 16 << 20

// NewClient constructs a Client with a bounded request timeout.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("newsapi.base_url is required")
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("newsapi.request_timeout must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Limit(cfg.RateRPS)
	if cfg.RateRPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}, nil
}

// searchRequest is the wire form of a getArticles query. The $and block
// expresses the category conjunction: an article must match every term.
type searchRequest struct {
	Query      searchQuery `json:"query"`
	ResultType string      `json:"resultType"`
	SortBy     string      `json:"articlesSortBy"`
	Count      int         `json:"articlesCount"`
	APIKey     string      `json:"apiKey"`
}

type searchQuery struct {
	And []map[string]string
}

func (q searchQuery) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"$query": map[string]any{"$and": q.And},
	})
}

// searchResponse mirrors the slice of the provider payload we consume.
type searchResponse struct {
	Articles struct {
		Results []providerItem `json:"results"`
	} `json:"articles"`
	Error string `json:"error"`
}

type providerItem struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Body     string `json:"body"`
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
	Source   struct {
		Title string `json:"title"`
		URI   string `json:"uri"`
	} `json:"source"`
}

// Search runs one provider query and returns the parsed items along with
// the raw payload for archival. Failures are returned to the caller; the
// fetch stage owns the fail-open policy.
func (c *Client) Search(ctx context.Context, q pipeline.Query) ([]pipeline.ProviderArticle, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(c.buildRequest(q))
	if err != nil {
		return nil, nil, fmt.Errorf("marshal provider query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read provider response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, nil, fmt.Errorf("decode provider response: %w", err)
	}
	if parsed.Error != "" {
		return nil, nil, fmt.Errorf("provider error: %s", parsed.Error)
	}

	items := make([]pipeline.ProviderArticle, 0, len(parsed.Articles.Results))
	for _, r := range parsed.Articles.Results {
		items = append(items, pipeline.ProviderArticle{
			Title:      r.Title,
			URL:        r.URL,
			Body:       r.Body,
			DateTime:   r.DateTime,
			Date:       r.Date,
			SourceName: r.Source.Title,
			SourceURI:  r.Source.URI,
		})
	}

	c.logger.Debug("provider query finished",
		zap.Int("results", len(items)),
		zap.Duration("dur", time.Since(start)),
	)
	return items, payload, nil
}

func (c *Client) buildRequest(q pipeline.Query) searchRequest {
	terms := make([]map[string]string, 0, len(q.Categories)+2)
	for _, cat := range q.Categories {
		terms = append(terms, map[string]string{"categoryUri": cat})
	}
	if q.Lang != "" {
		terms = append(terms, map[string]string{"lang": q.Lang})
	}
	if !q.DateStart.IsZero() {
		terms = append(terms, map[string]string{"dateStart": q.DateStart.UTC().Format("2006-01-02")})
	}
	return searchRequest{
		Query:      searchQuery{And: terms},
		ResultType: "articles",
		SortBy:     "rel",
		Count:      q.MaxItems,
		APIKey:     c.cfg.APIKey,
	}
}
