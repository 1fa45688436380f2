package fanar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

var authenticSources = []string{
	"islamqa", "islamweb", "sunnah", "quran", "tafsir",
	"dorar", "shamela", "islamonline", "dar-alifta",
	"al-islam", "islamicity", "muslim",
}

type Reference struct {
	Ordinal   int
	Source    string
	Content   string
	Authentic bool
}

type Retrieval struct {
	Content    string
	References []Reference
}

type retrieveAPIRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type retrieveAPIResponse struct {
	Choices []struct {
		Message struct {
			Content    string                 `json:"content"`
			References []retrieveAPIReference `json:"references"`
		} `json:"message"`
	} `json:"choices"`
}

type retrieveAPIReference struct {
	Number  json.RawMessage `json:"number"`
	Source  string          `json:"source"`
	Content string          `json:"content"`
}

// Retrieve queries the RAG model. The references field is not part of the
// OpenAI schema, so the request is issued directly.
func (c Client) Retrieve(ctx context.Context, query string) (Retrieval, error) {
	if c.apiKey == "" {
		return Retrieval{}, ErrMissingAPIKey
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Retrieval{}, fmt.Errorf("retrieval query is required")
	}

	payload, err := json.Marshal(retrieveAPIRequest{
		Model:     c.ragModel,
		Messages:  []Message{{Role: RoleUser, Content: trimmed}},
		MaxTokens: c.maxTokensRAG,
	})
	if err != nil {
		return Retrieval{}, fmt.Errorf("marshal fanar rag request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Retrieval{}, fmt.Errorf("build fanar rag request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Retrieval{}, fmt.Errorf("request fanar rag: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return Retrieval{}, APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var parsed retrieveAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Retrieval{}, fmt.Errorf("decode fanar rag response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Retrieval{}, fmt.Errorf("fanar rag returned no choices")
	}

	message := parsed.Choices[0].Message
	references := make([]Reference, 0, len(message.References))
	for i, ref := range message.References {
		source := strings.TrimSpace(ref.Source)
		if source == "" {
			source = "Unknown source"
		}
		references = append(references, Reference{
			Ordinal:   parseOrdinal(ref.Number, i+1),
			Source:    source,
			Content:   ref.Content,
			Authentic: IsAuthenticSource(source),
		})
	}

	return Retrieval{Content: message.Content, References: references}, nil
}

// IsAuthenticSource reports whether source names a known-authentic origin.
// The flag is informational and never filters references.
func IsAuthenticSource(source string) bool {
	lowered := strings.ToLower(source)
	for _, known := range authenticSources {
		if strings.Contains(lowered, known) {
			return true
		}
	}
	return false
}

func parseOrdinal(raw json.RawMessage, fallback int) int {
	value := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if value == "" || value == "null" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
