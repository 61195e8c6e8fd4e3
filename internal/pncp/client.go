package pncp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrSourceUnavailable marks a transport failure or non-2xx answer from
// the portal search API. It aborts the current keyword pass only.
var ErrSourceUnavailable = errors.New("pncp search unavailable")

const (
	// DefaultPageSize matches the page size the portal's own frontend uses.
	DefaultPageSize = 50

	// maxSearchPages bounds the pagination loop. The API's total and
	// page-size bookkeeping is the primary terminator; hitting this
	// bound means the source is misbehaving and is reported as unavailable.
	maxSearchPages = 200
)

// Client wraps the public search API of the PNCP portal
// (the same endpoint the portal frontend queries).
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

func NewClient() *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		BaseURL:    "https://pncp.gov.br/api/search/",
	}
}

// SearchQuery carries the filters for one search call sequence.
// UFs and Modalidades apply to every page of the sequence.
type SearchQuery struct {
	Keyword     string
	UFs         []string
	Modalidades []int
	Page        int
	PageSize    int
}

// SearchItem is the typed shape of one tender candidate as returned by
// the search API. Fields the portal omits arrive as zero values.
type SearchItem struct {
	NumeroControlePNCP      string  `json:"numero_controle_pncp"`
	NumeroSequencial        string  `json:"numero_sequencial"`
	Ano                     string  `json:"ano"`
	Title                   string  `json:"title"`
	Description             string  `json:"description"`
	ModalidadeLicitacaoNome string  `json:"modalidade_licitacao_nome"`
	SituacaoNome            string  `json:"situacao_nome"`
	ValorGlobal             float64 `json:"valor_global"`
	DataPublicacaoPNCP      string  `json:"data_publicacao_pncp"`
	OrgaoCNPJ               string  `json:"orgao_cnpj"`
	OrgaoNome               string  `json:"orgao_nome"`
	UnidadeNome             string  `json:"unidade_nome"`
	MunicipioNome           string  `json:"municipio_nome"`
	UF                      string  `json:"uf"`
	ItemURL                 string  `json:"item_url"`
}

type searchResponse struct {
	Items []SearchItem `json:"items"`
	Total int          `json:"total"`
}

// PortalURL builds the human-facing portal link for the item. The search
// API returns item_url paths under /compras/ while the portal serves the
// detail pages under /app/editais/.
func (it SearchItem) PortalURL() string {
	path := it.ItemURL
	if strings.HasPrefix(path, "/compras/") {
		path = strings.Replace(path, "/compras/", "/editais/", 1)
	}
	return "https://pncp.gov.br/app" + path
}

// SearchPage fetches one page of candidates plus the API-reported total.
func (c *Client) SearchPage(ctx context.Context, q SearchQuery) ([]SearchItem, int, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}

	params := url.Values{}
	params.Set("q", strings.TrimSpace(q.Keyword))
	params.Set("tipos_documento", "edital")
	params.Set("ordenacao", "-data")
	params.Set("pagina", strconv.Itoa(q.Page))
	params.Set("tam_pagina", strconv.Itoa(q.PageSize))
	params.Set("status", "recebendo_proposta")
	if len(q.UFs) > 0 {
		params.Set("ufs", strings.Join(q.UFs, ","))
	}
	if len(q.Modalidades) > 0 {
		codes := make([]string, 0, len(q.Modalidades))
		for _, m := range q.Modalidades {
			codes = append(codes, strconv.Itoa(m))
		}
		params.Set("modalidades", strings.Join(codes, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, 0, fmt.Errorf("%w: page %d returned %d: %s", ErrSourceUnavailable, q.Page, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("%w: decoding page %d: %v", ErrSourceUnavailable, q.Page, err)
	}

	return parsed.Items, parsed.Total, nil
}

// ForEachPage drives a full pagination sequence for one keyword, calling
// visit for every page. It starts at page 1 and stops when the page is
// empty, shorter than the requested size, or the running fetched count
// reaches the reported total. A visit error stops the walk.
func (c *Client) ForEachPage(ctx context.Context, q SearchQuery, visit func(items []SearchItem, total int) error) error {
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}

	fetched := 0
	for page := 1; ; page++ {
		if page > maxSearchPages {
			return fmt.Errorf("%w: pagination exceeded %d pages for keyword %q", ErrSourceUnavailable, maxSearchPages, q.Keyword)
		}

		q.Page = page
		items, total, err := c.SearchPage(ctx, q)
		if err != nil {
			return err
		}

		log.Printf("[PNCP] keyword=%q page=%d items=%d total=%d", q.Keyword, page, len(items), total)

		if len(items) == 0 {
			return nil
		}

		if err := visit(items, total); err != nil {
			return err
		}

		fetched += len(items)
		if len(items) < q.PageSize {
			return nil
		}
		if total > 0 && fetched >= total {
			return nil
		}
	}
}
