package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StatusInterno is the internal workflow status of a tracked tender.
// The empty value means "new" (never triaged by the user).
type StatusInterno string

const (
	StatusNenhum             StatusInterno = ""
	StatusEmAnalise          StatusInterno = "em_analise"
	StatusPreparandoProposta StatusInterno = "preparando_proposta"
	StatusEnviada            StatusInterno = "enviada"
	StatusResultado          StatusInterno = "resultado"
	StatusArquivada          StatusInterno = "arquivada"
	StatusLixeira            StatusInterno = "lixeira"
)

var allStatusInterno = map[StatusInterno]bool{
	StatusNenhum:             true,
	StatusEmAnalise:          true,
	StatusPreparandoProposta: true,
	StatusEnviada:            true,
	StatusResultado:          true,
	StatusArquivada:          true,
	StatusLixeira:            true,
}

// ParseStatusInterno validates a raw status string against the closed enum.
func ParseStatusInterno(raw string) (StatusInterno, error) {
	s := StatusInterno(raw)
	if !allStatusInterno[s] {
		return StatusNenhum, fmt.Errorf("invalid status_interno: %q", raw)
	}
	return s, nil
}

// ClearsParticipation reports whether transitioning to this status must
// also drop the "vai participar" flag. Trash and participation are
// mutually exclusive.
func (s StatusInterno) ClearsParticipation() bool {
	return s == StatusLixeira
}

// ChecklistItem is one entry of the user-managed preparation checklist.
type ChecklistItem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// Licitacao is a procurement opportunity found on the PNCP portal for a
// search profile. The external control number is the natural key and is
// never duplicated across ingestion runs.
type Licitacao struct {
	ID                       uuid.UUID              `json:"id"`
	SearchConfigID           *uuid.UUID             `json:"search_config_id"`
	NumeroControlePNCP       string                 `json:"numero_controle_pncp"`
	NumeroCompra             string                 `json:"numero_compra"`
	AnoCompra                *int                   `json:"ano_compra"`
	ObjetoCompra             string                 `json:"objeto_compra"`
	ModalidadeNome           string                 `json:"modalidade_nome"`
	Situacao                 string                 `json:"situacao"`
	ValorTotalEstimado       *float64               `json:"valor_total_estimado"`
	DataAberturaProposta     *time.Time             `json:"data_abertura_proposta"`
	DataEncerramentoProposta *time.Time             `json:"data_encerramento_proposta"`
	DataPublicacaoPNCP       *time.Time             `json:"data_publicacao_pncp"`
	OrgaoCNPJ                string                 `json:"orgao_cnpj"`
	OrgaoRazaoSocial         string                 `json:"orgao_razao_social"`
	UnidadeNome              string                 `json:"unidade_nome"`
	MunicipioNome            string                 `json:"municipio_nome"`
	UFSigla                  string                 `json:"uf_sigla"`
	LinkPNCP                 string                 `json:"link_pncp"`
	RawData                  map[string]interface{} `json:"raw_data,omitempty"`

	IsViewed          bool            `json:"is_viewed"`
	VaiParticipar     bool            `json:"vai_participar"`
	StatusInterno     StatusInterno   `json:"status_interno"`
	DataLimiteInterna *time.Time      `json:"data_limite_interna"`
	GestaoChecklist   []ChecklistItem `json:"gestao_checklist"`
	Anotacoes         string          `json:"anotacoes"`

	IAScore           *float64   `json:"ia_score"`
	IAJustificativa   string     `json:"ia_justificativa"`
	IAFiltrada        *bool      `json:"ia_filtrada"`
	IANeedsReview     bool       `json:"ia_needs_review"`
	IAProcessingError string     `json:"ia_processing_error"`
	IAReviewedAt      *time.Time `json:"ia_reviewed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentoPNCP is a portal document attached to a tender (fetched from
// the PNCP arquivos endpoint and cached locally).
type DocumentoPNCP struct {
	ID                uuid.UUID  `json:"id"`
	LicitacaoID       uuid.UUID  `json:"licitacao_encontrada_id"`
	Tipo              int        `json:"tipo"`
	TipoDocumentoNome string     `json:"tipo_documento_nome"`
	NomeArquivo       string     `json:"nome_arquivo"`
	URLPNCP           string     `json:"url_pncp"`
	DataInclusao      *time.Time `json:"data_inclusao"`
}
