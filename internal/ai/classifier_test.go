package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBuildFilterPrompt(t *testing.T) {
	prompt := BuildFilterPrompt([]string{"merenda escolar", "gêneros alimentícios"}, []string{"SP", "MG"}, TenderSummary{
		Objeto:    "Aquisição de gêneros alimentícios para a merenda escolar",
		Municipio: "Campinas",
		UF:        "SP",
	})

	for _, want := range []string{
		"merenda escolar, gêneros alimentícios",
		"Estados prioritários: SP, MG",
		"Aquisição de gêneros alimentícios",
		"90 a 100",
		"NUNCA é suficiente",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	empty := BuildFilterPrompt([]string{"merenda escolar"}, nil, TenderSummary{Objeto: "x"})
	if !strings.Contains(empty, "Estados prioritários: não definidos") {
		t.Error("prompt without states should say the states are undefined")
	}
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    *Classification
		wantErr bool
	}{
		{
			name: "fenced answer",
			text: "```json\n{\"score\": 92, \"justificativa\": \"Menciona merenda e alimentos\", \"relevante\": true}\n```",
			want: &Classification{Score: 92, Justificativa: "Menciona merenda e alimentos", Relevante: true},
		},
		{
			name: "raw answer with prose",
			text: `Aqui está: {"score": 15, "justificativa": "Objeto não menciona os termos", "relevante": false}`,
			want: &Classification{Score: 15, Justificativa: "Objeto não menciona os termos", Relevante: false},
		},
		{
			name:    "missing relevante field",
			text:    `{"score": 50, "justificativa": "talvez"}`,
			wantErr: true,
		},
		{
			name:    "score as string",
			text:    `{"score": "alto", "justificativa": "x", "relevante": true}`,
			wantErr: true,
		},
		{
			name:    "no json",
			text:    "Desculpe, não consigo avaliar.",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClassification(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidModelOutput) {
					t.Fatalf("err = %v, want ErrInvalidModelOutput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClassification: %v", err)
			}
			if got.Score != tt.want.Score || got.Relevante != tt.want.Relevante || got.Justificativa != tt.want.Justificativa {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestClassifyEmptyAnswerFallsBack(t *testing.T) {
	srv := completionServer(t, "")
	defer srv.Close()

	client := NewOpenRouterClient("test-key")
	client.BaseURL = srv.URL
	classifier := &Classifier{Client: client, Model: "test/model"}

	got, err := classifier.Classify(context.Background(), []string{"uniformes"}, nil, TenderSummary{Objeto: "Aquisição de uniformes"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Score != 0 || got.Relevante {
		t.Errorf("fallback = %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "fallback" || got.Tags[1] != "invalid_response" {
		t.Errorf("fallback tags = %v", got.Tags)
	}
}

func TestClassifyParsesAnswer(t *testing.T) {
	srv := completionServer(t, "```json\n{\"score\": 88, \"justificativa\": \"Objeto menciona uniformes\", \"relevante\": true}\n```")
	defer srv.Close()

	client := NewOpenRouterClient("test-key")
	client.BaseURL = srv.URL
	classifier := &Classifier{Client: client, Model: "test/model"}

	got, err := classifier.Classify(context.Background(), []string{"uniformes"}, []string{"SP"}, TenderSummary{Objeto: "Aquisição de uniformes escolares"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Score != 88 || !got.Relevante {
		t.Errorf("got %+v", got)
	}
}
