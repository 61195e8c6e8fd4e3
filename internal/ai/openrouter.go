package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// ErrModelProvider marks failures reported by the upstream model host
// rather than by the gateway itself. These are worth retrying on a
// fallback model.
var ErrModelProvider = errors.New("model provider error")

// OpenRouterClient calls the OpenRouter chat completions API.
type OpenRouterClient struct {
	http    *resty.Client
	apiKey  string
	BaseURL string
}

func NewOpenRouterClient(apiKey string) *OpenRouterClient {
	return &OpenRouterClient{
		http:    resty.New().SetTimeout(120 * time.Second),
		apiKey:  apiKey,
		BaseURL: "https://openrouter.ai/api/v1",
	}
}

// Message is one chat turn. Content is either a plain string or a list
// of parts (text plus file attachments).
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// TextPart and FilePart are the multimodal content parts OpenRouter
// accepts for file-grounded prompts.
type TextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type FilePart struct {
	Type string   `json:"type"`
	File FileData `json:"file"`
}

type FileData struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

// Plugin configures gateway-side processing, such as the PDF parser.
type Plugin struct {
	ID  string     `json:"id"`
	PDF *PDFEngine `json:"pdf,omitempty"`
}

type PDFEngine struct {
	Engine string `json:"engine"`
}

// CompletionRequest carries one chat completion call.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Plugins     []Plugin  `json:"plugins,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Complete runs one chat completion and returns the assistant text.
// An empty answer is returned as ("", nil); callers decide whether
// empty output is an error for their prompt.
func (c *OpenRouterClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(c.BaseURL + "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("calling model %s: %w", req.Model, err)
	}

	body := resp.Body()
	if resp.IsError() {
		return "", classifyGatewayError(req.Model, resp.StatusCode(), body)
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding response from %s: %w", req.Model, err)
	}
	if parsed.Error != nil {
		return "", classifyProviderMessage(req.Model, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return decodeContent(parsed.Choices[0].Message.Content)
}

// CompleteWithFallback tries the primary model and, only when the
// failure came from the model provider itself, retries once on the
// fallback model.
func (c *OpenRouterClient) CompleteWithFallback(ctx context.Context, req CompletionRequest, fallbackModel string) (string, error) {
	text, err := c.Complete(ctx, req)
	if err == nil {
		return text, nil
	}
	if fallbackModel == "" || fallbackModel == req.Model || !errors.Is(err, ErrModelProvider) {
		return "", err
	}

	log.Printf("[AI] model %s failed (%v), retrying with %s", req.Model, err, fallbackModel)
	req.Model = fallbackModel
	return c.Complete(ctx, req)
}

// decodeContent handles the two content encodings OpenRouter emits:
// a plain string or a list of typed parts.
func decodeContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("unexpected content encoding: %s", truncate(string(raw), 200))
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

// providerErrorMarkers are the upstream failure messages that justify a
// fallback-model retry. Anything else is treated as a caller problem.
var providerErrorMarkers = []string{
	"Provider returned error",
	"unknown error in the model inference server",
}

func classifyGatewayError(model string, status int, body []byte) error {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = truncate(strings.TrimSpace(string(body)), 300)
	}
	return classifyProviderMessage(model, fmt.Sprintf("status %d: %s", status, msg))
}

func classifyProviderMessage(model, msg string) error {
	for _, marker := range providerErrorMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: model %s: %s", ErrModelProvider, model, msg)
		}
	}
	return fmt.Errorf("model %s: %s", model, msg)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
