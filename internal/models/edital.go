package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AnalysisStatus tracks the lifecycle of one edital deep analysis.
// Transitions are monotonic per attempt (processing -> done|error);
// a retry overwrites the whole row.
type AnalysisStatus string

const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisDone       AnalysisStatus = "done"
	AnalysisError      AnalysisStatus = "error"
)

// EditalAnalysis is the stored result of the LLM deep analysis of a
// tender's edital PDF. At most one row exists per tender.
type EditalAnalysis struct {
	LicitacaoID            uuid.UUID       `json:"licitacao_encontrada_id"`
	EditalURL              string          `json:"edital_url"`
	Status                 AnalysisStatus  `json:"ia_status"`
	Resumo                 string          `json:"ia_resumo"`
	RequisitosObrigatorios []string        `json:"ia_requisitos_obrigatorios"`
	DocumentosExigidos     []string        `json:"ia_documentos_exigidos"`
	Riscos                 []string        `json:"ia_riscos"`
	RecomendacaoParticipar bool            `json:"ia_recomendacao_participar"`
	Justificativa          string          `json:"ia_justificativa"`
	ScoreAdequacao         float64         `json:"ia_score_adequacao"`
	PerguntasCliente       []string        `json:"ia_perguntas_para_cliente"`
	RawJSON                json.RawMessage `json:"ia_raw_json,omitempty"`
	Model                  string          `json:"ia_model"`
	ProcessingError        string          `json:"ia_processing_error,omitempty"`
	UpdatedAt              time.Time       `json:"ia_updated_at"`
}
