package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ilm/backend/internal/config"
)

const (
	maxErrorBodyBytes = 8 * 1024
	// fallbackContentResults is how many result bodies stand in for a missing answer.
	fallbackContentResults = 3
)

var ErrUnavailable = errors.New("tavily api key is not configured")

type APIError struct {
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("tavily returned %d: %s", e.StatusCode, e.Body)
}

type Result struct {
	Title   string
	URL     string
	Content string
	Score   float64
}

type Response struct {
	Query   string
	Content string
	Results []Result
}

type Client struct {
	apiKey      string
	baseURL     string
	searchDepth string
	maxResults  int
	httpClient  *http.Client
	limiter     *limiter
}

type searchAPIRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer string `json:"include_answer"`
}

type searchAPIResponse struct {
	Query   string `json:"query"`
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func NewClient(cfg config.Config, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	depth := strings.TrimSpace(cfg.TavilySearchDepth)
	if depth == "" {
		depth = "advanced"
	}
	return Client{
		apiKey:      strings.TrimSpace(cfg.TavilyAPIKey),
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.TavilyBaseURL), "/"),
		searchDepth: depth,
		maxResults:  cfg.TavilyMaxResults,
		httpClient:  httpClient,
		limiter:     newLimiter(cfg.TavilyMinInterval),
	}
}

// Available reports whether web search is configured.
func (c Client) Available() bool {
	return c.apiKey != ""
}

func (c Client) Search(ctx context.Context, query string, maxResults int) (Response, error) {
	if !c.Available() {
		return Response{}, ErrUnavailable
	}
	trimmedQuery := strings.TrimSpace(query)
	if trimmedQuery == "" {
		return Response{Query: query}, nil
	}
	if maxResults <= 0 {
		maxResults = c.maxResults
	}
	if maxResults <= 0 {
		maxResults = fallbackContentResults
	}

	if err := c.limiter.wait(ctx); err != nil {
		return Response{}, err
	}

	payload, err := json.Marshal(searchAPIRequest{
		APIKey:        c.apiKey,
		Query:         trimmedQuery,
		SearchDepth:   c.searchDepth,
		MaxResults:    maxResults,
		IncludeAnswer: "advanced",
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal tavily request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("build tavily request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request tavily: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return Response{}, APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var parsed searchAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Response{}, fmt.Errorf("decode tavily response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		results = append(results, Result{
			Title:   strings.TrimSpace(item.Title),
			URL:     strings.TrimSpace(item.URL),
			Content: item.Content,
			Score:   item.Score,
		})
	}

	content := parsed.Answer
	if content == "" && len(results) > 0 {
		top := results
		if len(top) > fallbackContentResults {
			top = top[:fallbackContentResults]
		}
		parts := make([]string, 0, len(top))
		for _, result := range top {
			parts = append(parts, result.Content)
		}
		content = strings.Join(parts, "\n")
	}

	return Response{Query: trimmedQuery, Content: content, Results: results}, nil
}
