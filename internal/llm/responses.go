package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of a failed upstream body is kept for diagnostics.
const maxErrorBody = 2048

// ResponsesClient talks to an OpenAI-compatible /responses endpoint over plain
// HTTP so that every body shape handled by ExtractText can be read.
type ResponsesClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewResponses(apiKey, baseURL, model string, httpClient *http.Client) *ResponsesClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ResponsesClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  httpClient,
	}
}

type responsesRequest struct {
	Model           string    `json:"model"`
	Input           []Message `json:"input"`
	MaxOutputTokens int       `json:"max_output_tokens,omitempty"`
	Temperature     float32   `json:"temperature,omitempty"`
}

func (c *ResponsesClient) Generate(ctx context.Context, messages []Message, opts Options) (Response, error) {
	if c.apiKey == "" {
		return Response{}, ErrMissingCredential
	}

	payload, err := json.Marshal(responsesRequest{
		Model:           c.model,
		Input:           messages,
		MaxOutputTokens: opts.MaxTokens,
		Temperature:     opts.Temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("call responses api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return Response{}, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	var gb generationBody
	if err := json.Unmarshal(body, &gb); err != nil {
		return Response{}, fmt.Errorf("decode llm response: %w", err)
	}
	text, ok := gb.text()
	if !ok {
		return Response{}, ErrNoText
	}

	out := Response{Content: text, Model: c.model}
	if gb.Model != "" {
		out.Model = gb.Model
	}
	out.PromptTokens = gb.Usage.InputTokens + gb.Usage.PromptTokens
	out.CompletionTokens = gb.Usage.OutputTokens + gb.Usage.CompletionTokens
	out.TotalTokens = gb.Usage.TotalTokens
	return out, nil
}
