package aigen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// chatClient speaks the OpenAI-compatible chat completions API shared by
// both providers.
type chatClient struct {
	baseURL string
	apiKey  string
	model   string
	hc      *http.Client
}

func newChatClient(baseURL, apiKey, model string) chatClient {
	return chatClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c chatClient) complete(ctx context.Context, prompt string, opts GenOptions) (string, Usage, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", Usage{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", Usage{}, fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", Usage{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", Usage{}, fmt.Errorf("%w: empty completion", ErrInvalidResponse)
	}
	usage := Usage{PromptTokens: out.Usage.PromptTokens, CompletionTokens: out.Usage.CompletionTokens}
	return strings.TrimSpace(out.Choices[0].Message.Content), usage, nil
}

type OpenAI struct {
	client chatClient
}

func NewOpenAI(baseURL, apiKey, model string) *OpenAI {
	return &OpenAI{client: newChatClient(baseURL, apiKey, model)}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Generate(ctx context.Context, prompt string, opts GenOptions) (string, Usage, error) {
	return o.client.complete(ctx, prompt, opts)
}

type Kimi struct {
	client chatClient
}

func NewKimi(baseURL, apiKey, model string) *Kimi {
	return &Kimi{client: newChatClient(baseURL, apiKey, model)}
}

func (k *Kimi) Name() string { return "kimi" }

func (k *Kimi) Generate(ctx context.Context, prompt string, opts GenOptions) (string, Usage, error) {
	return k.client.complete(ctx, prompt, opts)
}
