package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDecodeContent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain string", raw: `"resposta simples"`, want: "resposta simples"},
		{name: "part list", raw: `[{"type":"text","text":"parte um "},{"type":"text","text":"parte dois"}]`, want: "parte um parte dois"},
		{name: "empty", raw: ``, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeContent(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("decodeContent: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompleteWithFallbackOnProviderError(t *testing.T) {
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		models = append(models, req.Model)

		if req.Model == "primary/model" {
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "Provider returned error", "code": 502},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok do fallback"}}},
		})
	}))
	defer srv.Close()

	client := NewOpenRouterClient("test-key")
	client.BaseURL = srv.URL

	text, err := client.CompleteWithFallback(context.Background(), CompletionRequest{
		Model:    "primary/model",
		Messages: []Message{{Role: "user", Content: "oi"}},
	}, "fallback/model")
	if err != nil {
		t.Fatalf("CompleteWithFallback: %v", err)
	}
	if text != "ok do fallback" {
		t.Errorf("text = %q", text)
	}
	if len(models) != 2 || models[0] != "primary/model" || models[1] != "fallback/model" {
		t.Errorf("models tried = %v", models)
	}
}

func TestCompleteWithFallbackSkipsNonProviderErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Invalid API key", "code": 401},
		})
	}))
	defer srv.Close()

	client := NewOpenRouterClient("bad-key")
	client.BaseURL = srv.URL

	_, err := client.CompleteWithFallback(context.Background(), CompletionRequest{
		Model:    "primary/model",
		Messages: []Message{{Role: "user", Content: "oi"}},
	}, "fallback/model")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrModelProvider) {
		t.Errorf("auth failure classified as provider error: %v", err)
	}
	if calls != 1 {
		t.Errorf("made %d calls, want 1 (no fallback retry)", calls)
	}
}

func TestClassifyProviderMessage(t *testing.T) {
	err := classifyProviderMessage("m", "unknown error in the model inference server")
	if !errors.Is(err, ErrModelProvider) {
		t.Errorf("inference-server failure not classified as provider error: %v", err)
	}
	err = classifyProviderMessage("m", "context length exceeded")
	if errors.Is(err, ErrModelProvider) {
		t.Errorf("caller error classified as provider error: %v", err)
	}
}
