package ai

import (
	"context"
	"fmt"
	"strings"
)

const chatSystem = "Você é um assistente que responde perguntas sobre um edital de licitação já analisado. " +
	"Responda em português, de forma direta, citando o trecho relevante do edital quando possível. " +
	"Se a informação não está no material fornecido, diga isso em vez de inventar."

// ChatTurn is one prior exchange in an edital conversation.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EditalChat answers follow-up questions about an analyzed edital. The
// stored analysis JSON is injected as grounding context; when a PDF
// attachment is provided the document itself goes along too.
type EditalChat struct {
	Client        *OpenRouterClient
	Model         string
	FallbackModel string
	PDFEngine     string
}

// Ask runs one conversational turn. analysisJSON is the persisted
// analysis for the tender; pdfDataURL may be empty.
func (c *EditalChat) Ask(ctx context.Context, analysisJSON string, history []ChatTurn, question, pdfDataURL string) (string, error) {
	messages := []Message{{Role: "system", Content: chatSystem}}

	if analysisJSON != "" {
		messages = append(messages, Message{
			Role:    "system",
			Content: "Análise estruturada do edital:\n" + analysisJSON,
		})
	}
	for _, turn := range history {
		role := turn.Role
		if role != "assistant" {
			role = "user"
		}
		messages = append(messages, Message{Role: role, Content: turn.Content})
	}

	req := CompletionRequest{
		Model:       c.Model,
		Temperature: 0.3,
		MaxTokens:   1200,
	}
	if pdfDataURL != "" {
		req.Plugins = []Plugin{{ID: "file-parser", PDF: &PDFEngine{Engine: c.PDFEngine}}}
		messages = append(messages, Message{
			Role: "user",
			Content: []any{
				TextPart{Type: "text", Text: question},
				FilePart{Type: "file", File: FileData{Filename: "edital.pdf", FileData: pdfDataURL}},
			},
		})
	} else {
		messages = append(messages, Message{Role: "user", Content: question})
	}
	req.Messages = messages

	answer, err := c.Client.CompleteWithFallback(ctx, req, c.FallbackModel)
	if err != nil {
		return "", fmt.Errorf("edital chat: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("edital chat: %w: empty answer", ErrInvalidModelOutput)
	}
	return answer, nil
}
