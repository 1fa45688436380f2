package fanar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"ilm/backend/internal/config"
)

const maxErrorBodyBytes = 8 * 1024

const (
	RoleUser         = openai.ChatMessageRoleUser
	RoleThinkingUser = "thinking_user"
	RoleThinking     = "thinking"

	thinkEndTag = "</think>"
)

var ErrMissingAPIKey = errors.New("fanar api key is not configured")

type APIError struct {
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("fanar returned %d: %s", e.StatusCode, e.Body)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Client struct {
	apiKey          string
	baseURL         string
	chatModel       string
	ragModel        string
	maxTokens       int
	maxTokensStaged int
	maxTokensRAG    int
	httpClient      *http.Client
	chat            *openai.Client
}

func NewClient(cfg config.Config, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	apiKey := strings.TrimSpace(cfg.FanarAPIKey)
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.FanarBaseURL), "/")

	openaiCfg := openai.DefaultConfig(apiKey)
	openaiCfg.BaseURL = baseURL
	openaiCfg.HTTPClient = httpClient

	return Client{
		apiKey:          apiKey,
		baseURL:         baseURL,
		chatModel:       strings.TrimSpace(cfg.FanarChatModel),
		ragModel:        strings.TrimSpace(cfg.FanarRAGModel),
		maxTokens:       cfg.MaxTokensDefault,
		maxTokensStaged: cfg.MaxTokensStaged,
		maxTokensRAG:    cfg.MaxTokensRAG,
		httpClient:      httpClient,
		chat:            openai.NewClientWithConfig(openaiCfg),
	}
}

func (c Client) ChatModel() string {
	return c.chatModel
}

func (c Client) RAGModel() string {
	return c.ragModel
}

// Send runs a single direct-mode completion and returns the reply text.
// maxTokens <= 0 selects the configured default budget.
func (c Client) Send(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	content, _, err := c.complete(ctx, messages, maxTokens)
	return content, err
}

// SendStaged runs the two-round thinking exchange. Round one sends prompt
// under the thinking_user role. If the reply closes a think block or was cut
// off by the token budget, the round-one message is relabelled as a normal
// user turn, the partial reasoning is appended under the thinking role and a
// second round with the default budget produces the final text.
func (c Client) SendStaged(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.maxTokensStaged
	}

	messages := []Message{{Role: RoleThinkingUser, Content: prompt}}
	output, finishReason, err := c.complete(ctx, messages, maxTokens)
	if err != nil {
		return "", fmt.Errorf("staged round 1: %w", err)
	}

	closedThinking := strings.Contains(output, thinkEndTag)
	truncated := finishReason == string(openai.FinishReasonLength)
	if !closedThinking && !truncated {
		return output, nil
	}

	thinking := output
	if closedThinking {
		thinking = output[:strings.Index(output, thinkEndTag)]
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleThinkingUser {
			messages[i].Role = RoleUser
			break
		}
	}
	messages = append(messages, Message{Role: RoleThinking, Content: thinking})

	final, _, err := c.complete(ctx, messages, c.maxTokens)
	if err != nil {
		return "", fmt.Errorf("staged round 2: %w", err)
	}
	return final, nil
}

func (c Client) complete(ctx context.Context, messages []Message, maxTokens int) (string, string, error) {
	if c.apiKey == "" {
		return "", "", ErrMissingAPIKey
	}
	if c.chatModel == "" {
		return "", "", errors.New("chat model is required")
	}
	if len(messages) == 0 {
		return "", "", errors.New("messages are required")
	}

	req := openai.ChatCompletionRequest{
		Model:     c.chatModel,
		MaxTokens: maxTokens,
		Messages:  make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := c.chat.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", "", translateError(err)
	}
	if len(resp.Choices) == 0 {
		return "", "", errors.New("fanar returned no choices")
	}
	choice := resp.Choices[0]
	return choice.Message.Content, string(choice.FinishReason), nil
}

func translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return APIError{StatusCode: apiErr.HTTPStatusCode, Body: strings.TrimSpace(apiErr.Message)}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := string(reqErr.Body)
		if len(body) > maxErrorBodyBytes {
			body = body[:maxErrorBodyBytes]
		}
		return APIError{StatusCode: reqErr.HTTPStatusCode, Body: strings.TrimSpace(body)}
	}
	return fmt.Errorf("request fanar: %w", err)
}
