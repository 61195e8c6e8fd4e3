package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidModelOutput marks an answer that could not be parsed into
// the expected classification shape.
var ErrInvalidModelOutput = errors.New("invalid model output")

// Classification is the relevance verdict for one tender against a
// search profile.
type Classification struct {
	Score         float64  `json:"score"`
	Justificativa string   `json:"justificativa"`
	Relevante     bool     `json:"relevante"`
	Tags          []string `json:"tags,omitempty"`
}

// TenderSummary is the slice of a stored tender the classifier sees.
type TenderSummary struct {
	Objeto     string
	Modalidade string
	Orgao      string
	Unidade    string
	Municipio  string
	UF         string
	Valor      string
}

const classifierSystem = "Você é um analista de licitações públicas. Responda somente com JSON válido. " +
	"Nunca invente correspondências: se o objeto da licitação não menciona os termos buscados, diga isso na justificativa e dê score baixo."

// BuildFilterPrompt renders the relevance-scoring prompt for one
// tender. The score rules keep the model honest: matching only the
// state filter never makes a tender relevant.
func BuildFilterPrompt(keywords, states []string, t TenderSummary) string {
	var b strings.Builder
	b.WriteString("Avalie se a licitação abaixo é relevante para uma empresa que busca oportunidades com os seguintes termos: ")
	b.WriteString(strings.Join(keywords, ", "))
	b.WriteString(".\nEstados prioritários: ")
	if len(states) > 0 {
		b.WriteString(strings.Join(states, ", "))
	} else {
		b.WriteString("não definidos")
	}
	b.WriteString(".\n\n")
	b.WriteString("Licitação:\n")
	fmt.Fprintf(&b, "- Objeto: %s\n", t.Objeto)
	if t.Modalidade != "" {
		fmt.Fprintf(&b, "- Modalidade: %s\n", t.Modalidade)
	}
	if t.Orgao != "" {
		fmt.Fprintf(&b, "- Órgão: %s\n", t.Orgao)
	}
	if t.Unidade != "" {
		fmt.Fprintf(&b, "- Unidade: %s\n", t.Unidade)
	}
	if t.Municipio != "" || t.UF != "" {
		fmt.Fprintf(&b, "- Local: %s/%s\n", t.Municipio, t.UF)
	}
	if t.Valor != "" {
		fmt.Fprintf(&b, "- Valor estimado: %s\n", t.Valor)
	}
	b.WriteString("\nRegras de pontuação:\n")
	b.WriteString("- 90 a 100: o objeto menciona diretamente mais de um dos termos buscados.\n")
	b.WriteString("- 60 a 89: o objeto menciona diretamente um dos termos buscados.\n")
	b.WriteString("- 31 a 59: o objeto é do mesmo setor dos termos buscados, mas não os menciona.\n")
	b.WriteString("- 0 a 30: o objeto não menciona nenhum dos termos buscados.\n")
	b.WriteString("- Estados prioritários aumentam o score apenas se o objeto também for aderente aos termos buscados.\n")
	b.WriteString("- Coincidir apenas o estado (UF) NUNCA é suficiente para ser relevante.\n")
	b.WriteString("\nResponda somente com JSON neste formato:\n")
	b.WriteString(`{"score": <número de 0 a 100>, "justificativa": "<uma ou duas frases>", "relevante": <true ou false>, "tags": ["<opcional>"]}`)
	return b.String()
}

// ParseClassification validates the model answer. All three required
// fields must be present with the right types.
func ParseClassification(text string) (*Classification, error) {
	block := ExtractJSONBlock(text)
	if block == "" {
		return nil, fmt.Errorf("%w: no JSON in answer: %s", ErrInvalidModelOutput, truncate(text, 200))
	}

	var probe struct {
		Score         *float64 `json:"score"`
		Justificativa *string  `json:"justificativa"`
		Relevante     *bool    `json:"relevante"`
		Tags          []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(StripJSONComments(block)), &probe); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrInvalidModelOutput, err, truncate(block, 200))
	}
	if probe.Score == nil || probe.Justificativa == nil || probe.Relevante == nil {
		return nil, fmt.Errorf("%w: missing score, justificativa or relevante: %s", ErrInvalidModelOutput, truncate(block, 200))
	}

	return &Classification{
		Score:         *probe.Score,
		Justificativa: *probe.Justificativa,
		Relevante:     *probe.Relevante,
		Tags:          probe.Tags,
	}, nil
}

// FallbackClassification is persisted when the model answered with
// nothing usable. It lands the tender in the review queue instead of
// silently discarding it.
func FallbackClassification() *Classification {
	return &Classification{
		Score:         0,
		Justificativa: "Resposta do modelo vazia ou inválida; revisar manualmente.",
		Relevante:     false,
		Tags:          []string{"fallback", "invalid_response"},
	}
}

// Classifier scores tenders against profile keywords.
type Classifier struct {
	Client *OpenRouterClient
	Model  string
}

// Classify runs the relevance prompt for one tender. An empty model
// answer yields the fallback classification and no error; a malformed
// answer returns ErrInvalidModelOutput.
func (c *Classifier) Classify(ctx context.Context, keywords, states []string, t TenderSummary) (*Classification, error) {
	text, err := c.Client.Complete(ctx, CompletionRequest{
		Model: c.Model,
		Messages: []Message{
			{Role: "system", Content: classifierSystem},
			{Role: "user", Content: BuildFilterPrompt(keywords, states, t)},
		},
		Temperature: 0.2,
		MaxTokens:   512,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return FallbackClassification(), nil
	}
	return ParseClassification(text)
}
