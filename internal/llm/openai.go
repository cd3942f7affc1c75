package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey  string
	Model   string        // default: gpt-4o
	BaseURL string        // default: https://api.openai.com
	Timeout time.Duration // default: 120s
}

// OpenAIClient implements TextGenerator and ChatGenerator using the OpenAI
// chat completions API. Images are attached as data-URI content parts.
type OpenAIClient struct {
	cfg            OpenAIConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// NewOpenAIClient creates a new OpenAI client with the given configuration.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OpenAIClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		circuitBreaker: NewCircuitBreaker(),
	}
}

// openAIChatRequest is the request body for POST /v1/chat/completions.
type openAIChatRequest struct {
	Model     string              `json:"model"`
	Messages  []openAIChatMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string, or []openAIContentPart for multimodal turns
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

// openAIChatResponse is the response body from POST /v1/chat/completions.
type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends a single-turn completion and returns the response text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	reply, err := c.Chat(ctx, Prompt{
		Messages:  []ChatMessage{{Role: "user", Text: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}

// Chat sends a multi-turn (optionally multimodal) chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, p Prompt) (*Reply, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.chat(ctx, p)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("openai circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.(*Reply), nil
}

func (c *OpenAIClient) chat(ctx context.Context, p Prompt) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var msgs []openAIChatMessage
	if p.System != "" {
		msgs = append(msgs, openAIChatMessage{Role: "system", Content: p.System})
	}
	for _, m := range p.Messages {
		if len(m.Images) == 0 {
			msgs = append(msgs, openAIChatMessage{Role: m.Role, Content: m.Text})
			continue
		}
		parts := []openAIContentPart{{Type: "text", Text: m.Text}}
		for _, img := range m.Images {
			parts = append(parts, openAIContentPart{
				Type: "image_url",
				ImageURL: &openAIImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
				},
			})
		}
		msgs = append(msgs, openAIChatMessage{Role: m.Role, Content: parts})
	}

	reqBody := openAIChatRequest{
		Model:     c.cfg.Model,
		Messages:  msgs,
		MaxTokens: p.MaxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(respData.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	choice := respData.Choices[0]
	reason := FinishNormal
	switch choice.FinishReason {
	case "stop", "length", "":
		reason = FinishNormal
	case "content_filter":
		reason = FinishSafety
	default:
		reason = FinishOther
	}

	return &Reply{Text: choice.Message.Content, FinishReason: reason}, nil
}

// GetModel returns the configured model name.
func (c *OpenAIClient) GetModel() string {
	return c.cfg.Model
}

// Compile-time assertions.
var _ TextGenerator = (*OpenAIClient)(nil)
var _ ChatGenerator = (*OpenAIClient)(nil)
