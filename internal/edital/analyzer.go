package edital

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rafaelq/licita-radar/internal/ai"
	"github.com/rafaelq/licita-radar/internal/models"
	"github.com/rafaelq/licita-radar/internal/pncp"
	"rsc.io/pdf"
)

var (
	// ErrDocumentNotFound means no edital document could be located for
	// the tender, neither cached nor on the portal.
	ErrDocumentNotFound = errors.New("edital document not found")

	// ErrNotAPdf means a candidate URL served something that is not a
	// PDF document.
	ErrNotAPdf = errors.New("document is not a pdf")
)

// Store is the slice of the database the analyzer needs.
type Store interface {
	GetLicitacao(ctx context.Context, id uuid.UUID) (*models.Licitacao, error)
	ListDocumentos(ctx context.Context, licitacaoID uuid.UUID) ([]models.DocumentoPNCP, error)
	UpsertDocumentos(ctx context.Context, licitacaoID uuid.UUID, docs []models.DocumentoPNCP) error
	MarkEditalProcessing(ctx context.Context, licitacaoID uuid.UUID, editalURL, model string) error
	SaveEditalResult(ctx context.Context, a *models.EditalAnalysis) error
	SetEditalError(ctx context.Context, licitacaoID uuid.UUID, editalURL, msg string) error
	GetEditalAnalysis(ctx context.Context, licitacaoID uuid.UUID) (*models.EditalAnalysis, error)
}

// Analyzer runs the full-document analysis of a tender's edital PDF.
type Analyzer struct {
	Store         Store
	AI            *ai.OpenRouterClient
	Detail        *pncp.DetailClient
	HTTPClient    *http.Client
	Model         string
	FallbackModel string
	PDFEngine     string

	// MaxPDFBytes bounds the download; editais above it are rejected
	// rather than shipped to the model.
	MaxPDFBytes int64
}

func NewAnalyzer(store Store, aiClient *ai.OpenRouterClient, detail *pncp.DetailClient, model, fallbackModel, pdfEngine string) *Analyzer {
	return &Analyzer{
		Store:         store,
		AI:            aiClient,
		Detail:        detail,
		HTTPClient:    &http.Client{Timeout: 120 * time.Second},
		Model:         model,
		FallbackModel: fallbackModel,
		PDFEngine:     pdfEngine,
		MaxPDFBytes:   40 << 20,
	}
}

// Analyze locates the edital for the tender, downloads and verifies it,
// and runs the deep-analysis prompt. overrideURL, when set, wins over
// cached documents and portal probing (used for user uploads).
// The analysis row moves processing -> done|error; a retry overwrites
// the previous outcome.
func (a *Analyzer) Analyze(ctx context.Context, licitacaoID uuid.UUID, keywords []string, overrideURL string) (*models.EditalAnalysis, error) {
	l, err := a.Store.GetLicitacao(ctx, licitacaoID)
	if err != nil {
		return nil, fmt.Errorf("loading tender: %w", err)
	}

	editalURL, err := a.resolveEditalURL(ctx, l, overrideURL)
	if err != nil {
		a.recordError(ctx, licitacaoID, "", err)
		return nil, err
	}

	if err := a.Store.MarkEditalProcessing(ctx, licitacaoID, editalURL, a.Model); err != nil {
		return nil, fmt.Errorf("marking analysis as processing: %w", err)
	}

	data, err := a.downloadPDF(ctx, editalURL)
	if err != nil {
		a.recordError(ctx, licitacaoID, editalURL, err)
		return nil, err
	}

	result, raw, model, err := a.runAnalysis(ctx, l, keywords, data)
	if err != nil {
		a.recordError(ctx, licitacaoID, editalURL, err)
		return nil, err
	}

	analysis := &models.EditalAnalysis{
		LicitacaoID:            licitacaoID,
		EditalURL:              editalURL,
		Status:                 models.AnalysisDone,
		Resumo:                 result.ResumoGeral,
		RequisitosObrigatorios: result.RequisitosObrigatorios,
		DocumentosExigidos:     result.DocumentosExigidos,
		Riscos:                 result.Riscos,
		PerguntasCliente:       result.PerguntasParaCliente,
		RecomendacaoParticipar: result.RecomendacaoParticipar,
		Justificativa:          result.JustificativaRecomendacao,
		ScoreAdequacao:         result.ScoreAdequacao,
		RawJSON:                []byte(raw),
		Model:                  model,
	}
	if err := a.Store.SaveEditalResult(ctx, analysis); err != nil {
		return nil, fmt.Errorf("saving analysis: %w", err)
	}
	return analysis, nil
}

func (a *Analyzer) recordError(ctx context.Context, licitacaoID uuid.UUID, editalURL string, cause error) {
	if err := a.Store.SetEditalError(ctx, licitacaoID, editalURL, cause.Error()); err != nil {
		log.Printf("[Edital] failed to record analysis error: %v", err)
	}
}

// resolveEditalURL finds the document to analyze: the explicit override
// first, then the cached portal documents, then direct portal probing.
func (a *Analyzer) resolveEditalURL(ctx context.Context, l *models.Licitacao, overrideURL string) (string, error) {
	if overrideURL != "" {
		if err := a.verifyPDFURL(ctx, overrideURL); err != nil {
			return "", err
		}
		return overrideURL, nil
	}

	docs, err := a.Store.ListDocumentos(ctx, l.ID)
	if err == nil && len(docs) == 0 {
		docs = a.fetchPortalDocs(ctx, l)
	}
	if candidate := ChooseEditalDoc(docs); candidate != "" {
		if err := a.verifyPDFURL(ctx, candidate); err == nil {
			return candidate, nil
		}
	}

	// Last resort: probe the direct arquivo slots.
	cnpj, ano, seq := controlParts(l)
	if cnpj != "" {
		for _, probe := range a.Detail.ProbeArquivoURLs(cnpj, ano, seq) {
			if err := a.verifyPDFURL(ctx, probe); err == nil {
				return probe, nil
			}
		}
	}

	return "", ErrDocumentNotFound
}

// fetchPortalDocs pulls the arquivo list from the portal and caches it.
func (a *Analyzer) fetchPortalDocs(ctx context.Context, l *models.Licitacao) []models.DocumentoPNCP {
	cnpj, ano, seq := controlParts(l)
	if cnpj == "" {
		return nil
	}

	arquivos, err := a.Detail.FetchArquivos(ctx, cnpj, ano, seq)
	if err != nil {
		log.Printf("[Edital] fetching arquivos for %s: %v", l.NumeroControlePNCP, err)
		return nil
	}

	docs := make([]models.DocumentoPNCP, 0, len(arquivos))
	for _, arq := range arquivos {
		doc := models.DocumentoPNCP{
			LicitacaoID:       l.ID,
			Tipo:              arq.Tipo,
			TipoDocumentoNome: arq.TipoDocumentoNome,
			NomeArquivo:       firstNonEmpty(arq.NomeArquivo, arq.Titulo),
			URLPNCP:           arq.URL(),
		}
		if ts := parsePortalTime(arq.DataInclusao); ts != nil {
			doc.DataInclusao = ts
		}
		docs = append(docs, doc)
	}

	if len(docs) > 0 {
		if err := a.Store.UpsertDocumentos(ctx, l.ID, docs); err != nil {
			log.Printf("[Edital] caching documentos for %s: %v", l.NumeroControlePNCP, err)
		}
	}
	return docs
}

var (
	editalNameRe  = regexp.MustCompile(`(?i)edital`)
	termoRefRe    = regexp.MustCompile(`(?i)termo|refer[êe]ncia`)
	pdfLookingURL = regexp.MustCompile(`(?i)\.pdf($|\?)|/arquivos/`)
)

// ChooseEditalDoc picks the most likely edital from a document list:
// PDF-looking URLs first, then by name (edital beats termo de
// referência beats anything), falling back to the first candidate.
func ChooseEditalDoc(docs []models.DocumentoPNCP) string {
	if len(docs) == 0 {
		return ""
	}

	candidates := make([]models.DocumentoPNCP, 0, len(docs))
	for _, d := range docs {
		if d.URLPNCP != "" && pdfLookingURL.MatchString(d.URLPNCP) {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		candidates = docs
	}

	for _, d := range candidates {
		if editalNameRe.MatchString(d.NomeArquivo) || editalNameRe.MatchString(d.TipoDocumentoNome) {
			return d.URLPNCP
		}
	}
	for _, d := range candidates {
		if termoRefRe.MatchString(d.NomeArquivo) || termoRefRe.MatchString(d.TipoDocumentoNome) {
			return d.URLPNCP
		}
	}
	return candidates[0].URLPNCP
}

// verifyPDFURL checks that the URL serves a PDF without downloading the
// body. Servers that reject HEAD get a GET instead.
func (a *Analyzer) verifyPDFURL(ctx context.Context, rawURL string) error {
	resp, err := a.headOrGet(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrDocumentNotFound, rawURL, resp.StatusCode)
	}
	if !looksLikePDF(resp, rawURL) {
		return fmt.Errorf("%w: %s", ErrNotAPdf, rawURL)
	}
	return nil
}

func (a *Analyzer) headOrGet(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := a.HTTPClient.Do(req)
	if err == nil && resp.StatusCode != http.StatusMethodNotAllowed && resp.StatusCode != http.StatusNotImplemented && resp.StatusCode < 500 {
		return resp, nil
	}
	if err == nil {
		resp.Body.Close()
	}

	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	getResp, err := a.HTTPClient.Do(getReq)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	return getResp, nil
}

// looksLikePDF accepts a response as a PDF by content type, attachment
// filename, or the URL itself.
func looksLikePDF(resp *http.Response, rawURL string) bool {
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(ct, "application/pdf") || strings.Contains(ct, "application/octet-stream") {
		return true
	}
	cd := strings.ToLower(resp.Header.Get("Content-Disposition"))
	if strings.Contains(cd, ".pdf") {
		return true
	}
	return strings.Contains(strings.ToLower(rawURL), ".pdf")
}

// downloadPDF fetches the document and verifies it structurally before
// shipping it to the model.
func (a *Analyzer) downloadPDF(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrDocumentNotFound, rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, a.MaxPDFBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if int64(len(data)) > a.MaxPDFBytes {
		return nil, fmt.Errorf("edital exceeds %d bytes", a.MaxPDFBytes)
	}

	if err := VerifyPDFBytes(data); err != nil {
		return nil, err
	}
	return data, nil
}

// VerifyPDFBytes rejects payloads that are not structurally a PDF
// (HTML error pages served with a 200 are the usual offender).
// The pdf package panics on some malformed files, hence the recover.
func VerifyPDFBytes(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrNotAPdf, r)
		}
	}()

	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return fmt.Errorf("%w: missing PDF header", ErrNotAPdf)
	}
	if _, err := pdf.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("%w: %v", ErrNotAPdf, err)
	}
	return nil
}

// FetchPDFDataURL verifies that the URL serves a PDF, downloads it,
// and returns it as a base64 data URL ready to attach to a model
// request.
func (a *Analyzer) FetchPDFDataURL(ctx context.Context, rawURL string) (string, error) {
	if err := a.verifyPDFURL(ctx, rawURL); err != nil {
		return "", err
	}
	data, err := a.downloadPDF(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return pdfDataURL(data), nil
}

func pdfDataURL(data []byte) string {
	return "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data)
}

// runAnalysis ships the PDF to the model as a base64 data URL and
// parses the structured answer. Returns the model that produced the
// accepted answer.
func (a *Analyzer) runAnalysis(ctx context.Context, l *models.Licitacao, keywords []string, data []byte) (*ai.EditalResult, string, string, error) {
	dataURL := pdfDataURL(data)

	detalhes, _ := json.MarshalIndent(map[string]interface{}{
		"numero_compra":        l.NumeroCompra,
		"ano_compra":           l.AnoCompra,
		"modalidade":           l.ModalidadeNome,
		"objeto":               l.ObjetoCompra,
		"orgao":                l.OrgaoRazaoSocial,
		"local":                tenderLocal(l),
		"valor_total_estimado": l.ValorTotalEstimado,
		"data_publicacao":      l.DataPublicacaoPNCP,
		"data_encerramento":    l.DataEncerramentoProposta,
	}, "", "  ")

	req := ai.CompletionRequest{
		Model: a.Model,
		Messages: []ai.Message{
			{Role: "user", Content: []any{
				ai.TextPart{Type: "text", Text: ai.BuildEditalPrompt(string(detalhes), keywords)},
				ai.FilePart{Type: "file", File: ai.FileData{Filename: "edital.pdf", FileData: dataURL}},
			}},
		},
		Temperature: 0.1,
		MaxTokens:   1800,
		Plugins:     []ai.Plugin{{ID: "file-parser", PDF: &ai.PDFEngine{Engine: a.PDFEngine}}},
	}

	model := a.Model
	text, err := a.AI.Complete(ctx, req)
	if err != nil && a.FallbackModel != "" && errors.Is(err, ai.ErrModelProvider) {
		log.Printf("[Edital] model %s failed (%v), retrying with %s", a.Model, err, a.FallbackModel)
		req.Model = a.FallbackModel
		model = a.FallbackModel
		text, err = a.AI.Complete(ctx, req)
	}
	if err != nil {
		return nil, "", "", err
	}

	result, raw, err := ai.ParseEditalResult(text)
	if err != nil {
		return nil, "", "", err
	}
	return result, raw, model, nil
}

func controlParts(l *models.Licitacao) (cnpj, ano, seq string) {
	// numero_controle_pncp: CNPJ-1-SEQUENCIAL/ANO
	parts := strings.Split(l.NumeroControlePNCP, "-")
	if len(parts) != 3 {
		return "", "", ""
	}
	cnpj = parts[0]
	seqAno := strings.Split(parts[2], "/")
	if len(seqAno) != 2 {
		return "", "", ""
	}
	return cnpj, seqAno[1], seqAno[0]
}

func parsePortalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return &ts
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func tenderLocal(l *models.Licitacao) string {
	if l.MunicipioNome != "" && l.UFSigla != "" {
		return l.MunicipioNome + "/" + l.UFSigla
	}
	return l.UFSigla
}
