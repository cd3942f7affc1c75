package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// embeddingDim is the requested embedding width. Stored vectors assume it;
// changing it invalidates every fact already indexed.
const embeddingDim = 768

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey         string
	Model          string        // chat/completion model (default: gemini-2.0-flash)
	ImageModel     string        // image generation/edit model (default: gemini-2.0-flash-exp-image-generation)
	EmbeddingModel string        // default: gemini-embedding-001
	Timeout        time.Duration // default: 120s
}

// GeminiClient wraps the Google GenAI SDK. It implements TextGenerator,
// ChatGenerator, EmbeddingGenerator, and ImageGenerator, so a single client
// can back every external capability the assembler needs.
type GeminiClient struct {
	client         *genai.Client
	cfg            GeminiConfig
	circuitBreaker *CircuitBreaker
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "gemini-2.0-flash-exp-image-generation"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "gemini-embedding-001"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		client:         client,
		cfg:            cfg,
		circuitBreaker: NewCircuitBreaker(),
	}, nil
}

// Complete sends a single-turn completion and returns the response text.
func (c *GeminiClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	reply, err := c.Chat(ctx, Prompt{
		Messages:  []ChatMessage{{Role: "user", Text: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}

// Chat sends a multi-turn (optionally multimodal) generation request.
func (c *GeminiClient) Chat(ctx context.Context, p Prompt) (*Reply, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.chat(ctx, p)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("gemini circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.(*Reply), nil
}

func (c *GeminiClient) chat(ctx context.Context, p Prompt) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(p.Messages))
	for _, m := range p.Messages {
		var role genai.Role = genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		parts := []*genai.Part{genai.NewPartFromText(m.Text)}
		for _, img := range m.Images {
			parts = append(parts, genai.NewPartFromBytes(img, "image/png"))
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}

	config := &genai.GenerateContentConfig{}
	if p.MaxTokens > 0 {
		config.MaxOutputTokens = int32(p.MaxTokens)
	}
	if p.System != "" {
		config.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return &Reply{Text: "", FinishReason: FinishOther}, nil
	}

	cand := resp.Candidates[0]
	reason := FinishNormal
	switch cand.FinishReason {
	case genai.FinishReasonStop, genai.FinishReasonMaxTokens:
		reason = FinishNormal
	case genai.FinishReasonSafety:
		reason = FinishSafety
	default:
		reason = FinishOther
	}

	var text string
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			text += part.Text
		}
	}

	return &Reply{Text: text, FinishReason: reason}, nil
}

// Embed generates an embedding for the given text using the embedding model.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("gemini circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([]float32), nil
}

func (c *GeminiClient) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	dim := int32(embeddingDim)
	result, err := c.client.Models.EmbedContent(ctx,
		c.cfg.EmbeddingModel,
		contents,
		&genai.EmbedContentConfig{
			TaskType:             "SEMANTIC_SIMILARITY",
			OutputDimensionality: &dim,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini embed failed: %w", err)
	}

	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini returned empty embedding vector")
	}

	return result.Embeddings[0].Values, nil
}

// GenerateImage generates a new image from a text prompt and returns the
// raw image bytes of the first image part in the response.
func (c *GeminiClient) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(prompt)}, genai.RoleUser),
	}
	return c.generateImageContent(ctx, contents)
}

// EditImage edits the given image(s) according to the instruction prompt.
func (c *GeminiClient) EditImage(ctx context.Context, prompt string, images [][]byte) ([]byte, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("edit requires at least one source image")
	}
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img, "image/png"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	return c.generateImageContent(ctx, contents)
}

// generateImageContent issues an IMAGE-modality generation call and pulls
// out the first inline image blob. Safety categories are relaxed because
// the upstream persona routinely trips harassment filters on benign edits.
func (c *GeminiClient) generateImageContent(ctx context.Context, contents []*genai.Content) ([]byte, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		config := &genai.GenerateContentConfig{
			ResponseModalities: []string{"IMAGE"},
			SafetySettings: []*genai.SafetySetting{
				{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdOff},
				{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdOff},
				{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdOff},
				{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdOff},
			},
		}

		resp, err := c.client.Models.GenerateContent(ctx, c.cfg.ImageModel, contents, config)
		if err != nil {
			return nil, fmt.Errorf("gemini image call failed: %w", err)
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					return part.InlineData.Data, nil
				}
			}
		}
		return nil, fmt.Errorf("no image data in response")
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("gemini circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([]byte), nil
}

// GetModel returns the configured chat model name.
func (c *GeminiClient) GetModel() string {
	return c.cfg.Model
}

// Compile-time assertions.
var _ TextGenerator = (*GeminiClient)(nil)
var _ EmbeddingGenerator = (*GeminiClient)(nil)
var _ ChatGenerator = (*GeminiClient)(nil)
var _ ImageGenerator = (*GeminiClient)(nil)
