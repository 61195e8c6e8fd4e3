package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EditalResult is the structured outcome of a full edital document
// analysis.
type EditalResult struct {
	ResumoGeral               string   `json:"resumo_geral"`
	RequisitosObrigatorios    []string `json:"requisitos_obrigatorios"`
	DocumentosExigidos        []string `json:"documentos_exigidos"`
	Riscos                    []string `json:"riscos"`
	RecomendacaoParticipar    bool     `json:"recomendacao_participar"`
	JustificativaRecomendacao string   `json:"justificativa_recomendacao"`
	ScoreAdequacao            float64  `json:"score_adequacao"`
	PerguntasParaCliente      []string `json:"perguntas_para_cliente"`
}

const editalSystem = "Você é um consultor jurídico especializado em licitações brasileiras. " +
	"Leia o edital anexado e responda somente com JSON válido, sem comentários fora do JSON."

// BuildEditalPrompt renders the deep-analysis instruction sent along
// with the PDF attachment. detalhesJSON is the tender metadata offered
// outside the PDF; keywords come from the originating search profile.
func BuildEditalPrompt(detalhesJSON string, keywords []string) string {
	kw := strings.Join(keywords, ", ")
	if kw == "" {
		kw = "Não informadas"
	}

	var b strings.Builder
	b.WriteString("Analise o edital em PDF anexado e produza um diagnóstico completo da oportunidade, ")
	b.WriteString("sempre respondendo APENAS em JSON válido, sem comentários (não use // nem /* */) e sem nenhum texto antes ou depois do JSON.\n\n")
	if detalhesJSON != "" {
		b.WriteString("Dados da licitação (oferecidos fora do PDF):\n")
		b.WriteString(detalhesJSON)
		b.WriteString("\n\n")
	}
	b.WriteString("Palavras-chave do cliente: ")
	b.WriteString(kw)
	b.WriteString("\n\nSua resposta DEVE ser exclusivamente um JSON com o seguinte formato:\n")
	b.WriteString(`{
  "resumo_geral": string,
  "requisitos_obrigatorios": string[],
  "documentos_exigidos": string[],
  "riscos": string[],
  "recomendacao_participar": boolean,
  "justificativa_recomendacao": string,
  "score_adequacao": number (0 a 100),
  "perguntas_para_cliente": string[] opcional
}`)
	b.WriteString("\n\nInstruções importantes:\n")
	b.WriteString("- A recomendação deve refletir a aderência às palavras-chave do cliente, mas SEM inventar requisitos ou documentos que não estejam no edital.\n")
	b.WriteString("- Preencha SEMPRE os campos \"requisitos_obrigatorios\", \"documentos_exigidos\" e \"riscos\" como listas de itens curtos e objetivos.\n")
	b.WriteString("- Em \"requisitos_obrigatorios\", liste APENAS requisitos que apareçam de forma clara nas seções de habilitação; se não encontrar nada, deixe a lista vazia e explique isso na justificativa.\n")
	b.WriteString("- Em \"documentos_exigidos\", liste APENAS documentos explicitamente mencionados no edital, citando cláusulas ou anexos quando possível.\n")
	b.WriteString("- Em \"riscos\", liste de 3 a 10 riscos ou pontos de atenção práticos, deixando claro quando algo não está explicitamente escrito.\n")
	b.WriteString("- Se possível, preencha \"perguntas_para_cliente\" com 3 a 10 dúvidas que a equipe deve tirar internamente.\n")
	b.WriteString("- Se o PDF não trouxer uma informação, deixe o campo como lista vazia ou explique isso na justificativa (não invente dados).\n")
	b.WriteString("- O campo \"resumo_geral\" deve ter no máximo 900 caracteres.\n")
	b.WriteString("- Cada item das listas deve ter no máximo 250 caracteres.\n")
	b.WriteString("- Score 0 = totalmente inadequado; 100 = altamente alinhado.\n")
	return b.String()
}

// ParseEditalResult decodes the analysis answer, tolerating the JSON
// comments some models emit. The raw JSON block is returned alongside
// so it can be persisted verbatim.
func ParseEditalResult(text string) (*EditalResult, string, error) {
	block := ExtractJSONBlock(text)
	if block == "" {
		return nil, "", fmt.Errorf("%w: no JSON in answer: %s", ErrInvalidModelOutput, truncate(text, 300))
	}

	clean := StripJSONComments(block)
	var result EditalResult
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return nil, "", fmt.Errorf("%w: %v: %s", ErrInvalidModelOutput, err, truncate(clean, 300))
	}
	if result.ResumoGeral == "" && result.JustificativaRecomendacao == "" {
		return nil, "", fmt.Errorf("%w: answer carries no resumo_geral or justificativa: %s", ErrInvalidModelOutput, truncate(clean, 300))
	}
	return &result, clean, nil
}
