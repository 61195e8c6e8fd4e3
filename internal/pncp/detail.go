package pncp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DetailClient talks to the PNCP "consulta" APIs that serve structured
// detail about a single compra: header data, itens, arquivos, historico.
type DetailClient struct {
	HTTPClient *http.Client
	// ConsultaBase serves the compra header (pncp.gov.br/pncp-consulta).
	ConsultaBase string
	// PortalAPIBase serves itens/arquivos/historico (pncp.gov.br/api/pncp).
	PortalAPIBase string
	// FileAPIBase serves direct arquivo downloads (pncp.gov.br/pncp-api).
	FileAPIBase string
}

func NewDetailClient() *DetailClient {
	return &DetailClient{
		HTTPClient:    &http.Client{Timeout: 60 * time.Second},
		ConsultaBase:  "https://pncp.gov.br/pncp-consulta/v1",
		PortalAPIBase: "https://pncp.gov.br/api/pncp/v1",
		FileAPIBase:   "https://pncp.gov.br/pncp-api/v1",
	}
}

// Compra is the header record of one contracting process.
type Compra struct {
	NumeroControlePNCP   string          `json:"numeroControlePNCP"`
	NumeroCompra         string          `json:"numeroCompra"`
	AnoCompra            int             `json:"anoCompra"`
	ObjetoCompra         string          `json:"objetoCompra"`
	InformacaoComplement string          `json:"informacaoComplementar"`
	ValorTotalEstimado   float64         `json:"valorTotalEstimado"`
	DataAberturaProposta string          `json:"dataAberturaProposta"`
	DataEncerramento     string          `json:"dataEncerramentoProposta"`
	ModalidadeNome       string          `json:"modalidadeNome"`
	SituacaoCompraNome   string          `json:"situacaoCompraNome"`
	Raw                  json.RawMessage `json:"-"`
}

// Item is one line item of a compra.
type Item struct {
	NumeroItem        int     `json:"numeroItem"`
	Descricao         string  `json:"descricao"`
	Quantidade        float64 `json:"quantidade"`
	UnidadeMedida     string  `json:"unidadeMedida"`
	ValorUnitarioEst  float64 `json:"valorUnitarioEstimado"`
	ValorTotal        float64 `json:"valorTotal"`
	MaterialOuServico string  `json:"materialOuServicoNome"`
}

// Arquivo is one attached document of a compra.
type Arquivo struct {
	SequencialDocumento int    `json:"sequencialDocumento"`
	Tipo                int    `json:"tipo"`
	TipoDocumentoNome   string `json:"tipoDocumentoNome"`
	Titulo              string `json:"titulo"`
	NomeArquivo         string `json:"nomeArquivo"`
	DataInclusao        string `json:"dataInclusao"`
	URLArquivo          string `json:"url"`
	URI                 string `json:"uri"`
}

// URL returns whichever download link the API populated.
func (a Arquivo) URL() string {
	if a.URLArquivo != "" {
		return a.URLArquivo
	}
	return a.URI
}

// Historico is one audit event of a compra.
type Historico struct {
	LogManutencaoDataInclusao string `json:"logManutencaoDataInclusao"`
	TipoLogManutencaoNome     string `json:"tipoLogManutencaoNome"`
	CategoriaLogManutNome     string `json:"categoriaLogManutencaoNome"`
	Justificativa             string `json:"justificativa"`
	UsuarioNome               string `json:"usuarioNome"`
}

type pagedResponse struct {
	Data json.RawMessage `json:"data"`
}

// FetchCompra loads the compra header. The search API returns sequencial
// numbers in inconsistent widths, so both the zero-padded and the plain
// form are tried before giving up.
func (c *DetailClient) FetchCompra(ctx context.Context, cnpj, ano, sequencial string) (*Compra, error) {
	trimmed := strings.TrimLeft(sequencial, "0")
	if trimmed == "" {
		trimmed = "0"
	}
	padded := trimmed
	for len(padded) < 6 {
		padded = "0" + padded
	}
	candidates := []string{padded, trimmed}

	var lastErr error
	for _, seq := range candidates {
		u := fmt.Sprintf("%s/orgaos/%s/compras/%s/%s", c.ConsultaBase, cnpj, ano, seq)
		body, err := c.get(ctx, u)
		if err != nil {
			lastErr = err
			continue
		}
		var compra Compra
		if err := json.Unmarshal(body, &compra); err != nil {
			lastErr = fmt.Errorf("decoding compra %s/%s/%s: %w", cnpj, ano, seq, err)
			continue
		}
		compra.Raw = body
		return &compra, nil
	}
	return nil, fmt.Errorf("fetching compra %s/%s/%s: %w", cnpj, ano, sequencial, lastErr)
}

// FetchItens loads the line items of a compra.
func (c *DetailClient) FetchItens(ctx context.Context, cnpj, ano, sequencial string) ([]Item, error) {
	var out []Item
	if err := c.getPortalList(ctx, cnpj, ano, sequencial, "itens", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchArquivos loads the attached documents of a compra.
func (c *DetailClient) FetchArquivos(ctx context.Context, cnpj, ano, sequencial string) ([]Arquivo, error) {
	var out []Arquivo
	if err := c.getPortalList(ctx, cnpj, ano, sequencial, "arquivos", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchHistorico loads the audit trail of a compra.
func (c *DetailClient) FetchHistorico(ctx context.Context, cnpj, ano, sequencial string) ([]Historico, error) {
	var out []Historico
	if err := c.getPortalList(ctx, cnpj, ano, sequencial, "historico", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProbeArquivoURLs returns candidate direct-download URLs for the first
// few arquivo slots of a compra. Most editais sit at slot 1.
func (c *DetailClient) ProbeArquivoURLs(cnpj, ano, sequencial string) []string {
	seq := strings.TrimLeft(sequencial, "0")
	if seq == "" {
		seq = "0"
	}
	urls := make([]string, 0, 5)
	for slot := 1; slot <= 5; slot++ {
		urls = append(urls, fmt.Sprintf("%s/orgaos/%s/compras/%s/%s/arquivos/%d", c.FileAPIBase, cnpj, ano, seq, slot))
	}
	return urls
}

func (c *DetailClient) getPortalList(ctx context.Context, cnpj, ano, sequencial, resource string, out any) error {
	seq := strings.TrimLeft(sequencial, "0")
	if seq == "" {
		seq = "0"
	}
	u := fmt.Sprintf("%s/orgaos/%s/compras/%s/%s/%s?pagina=1&tamanhoPagina=100", c.PortalAPIBase, cnpj, ano, seq, resource)
	body, err := c.get(ctx, u)
	if err != nil {
		return err
	}

	// Some portal endpoints wrap the list in {"data": [...]}, others
	// return the bare array.
	var wrapped pagedResponse
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Data) > 0 {
		body = wrapped.Data
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s for %s/%s/%s: %w", resource, cnpj, ano, sequencial, err)
	}
	return nil
}

func (c *DetailClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return []byte("[]"), nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d", u, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
