package ingest

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rafaelq/licita-radar/internal/ai"
	"github.com/rafaelq/licita-radar/internal/models"
	"github.com/rafaelq/licita-radar/internal/pncp"
)

// Storage is the slice of the store the orchestrator needs.
type Storage interface {
	ListActiveProfiles(ctx context.Context) ([]models.SearchProfile, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*models.SearchProfile, error)
	InsertLicitacaoIfNew(ctx context.Context, l *models.Licitacao) (bool, error)
	InsertRunLog(ctx context.Context, rl *models.RunLog) error
	TouchLastSearch(ctx context.Context, id uuid.UUID) error
	ListPendingClassification(ctx context.Context, limit int, profileID *uuid.UUID) ([]models.Licitacao, error)
	SetClassification(ctx context.Context, id uuid.UUID, l *models.Licitacao) error
	SetClassificationError(ctx context.Context, id uuid.UUID, msg string) error
}

// Searcher abstracts the portal search client.
type Searcher interface {
	ForEachPage(ctx context.Context, q pncp.SearchQuery, visit func(items []pncp.SearchItem, total int) error) error
}

// RelevanceClassifier abstracts the model-backed relevance scorer.
type RelevanceClassifier interface {
	Classify(ctx context.Context, keywords, states []string, t ai.TenderSummary) (*ai.Classification, error)
}

// Runner drives one full search pass: every active profile, every
// keyword, every result page.
type Runner struct {
	Store      Storage
	Search     Searcher
	Classifier RelevanceClassifier
	BatchSize  int
}

func NewRunner(store Storage, search Searcher, classifier RelevanceClassifier, batchSize int) *Runner {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Runner{Store: store, Search: search, Classifier: classifier, BatchSize: batchSize}
}

// RunSummary reports one orchestrator pass.
type RunSummary struct {
	TotalProfiles  int `json:"total_profiles"`
	FailedProfiles int `json:"failed_profiles"`
	TotalInserted  int `json:"total_inserted"`
}

// RunAll executes the search pass for every active profile. A profile
// failure is logged and recorded but does not stop the other profiles.
func (r *Runner) RunAll(ctx context.Context) (*RunSummary, error) {
	profiles, err := r.Store.ListActiveProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active profiles: %w", err)
	}

	summary := &RunSummary{TotalProfiles: len(profiles)}
	for _, profile := range profiles {
		inserted, err := r.runProfile(ctx, profile)
		summary.TotalInserted += inserted
		if err != nil {
			summary.FailedProfiles++
			log.Printf("[Ingest] profile %q failed: %v", profile.Name, err)
			continue
		}
	}

	log.Printf("[Ingest] run complete: %d profiles, %d failed, %d new tenders",
		summary.TotalProfiles, summary.FailedProfiles, summary.TotalInserted)
	return summary, nil
}

// RunProfile executes the search pass for a single profile, active or
// not. Used by the one-off CLI.
func (r *Runner) RunProfile(ctx context.Context, id uuid.UUID) (int, error) {
	profile, err := r.Store.GetProfile(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("loading profile %s: %w", id, err)
	}
	return r.runProfile(ctx, *profile)
}

// runProfile searches every keyword of one profile and persists the
// tenders found. Exactly one run log row is written per call, success
// or error, and results_count counts inserted rows only.
func (r *Runner) runProfile(ctx context.Context, profile models.SearchProfile) (int, error) {
	modalidades := profile.Modalidades
	if len(modalidades) == 0 {
		modalidades = pncp.DefaultModalidades()
	}

	keywords := profile.Keywords
	if len(keywords) == 0 {
		keywords = []string{""}
	}

	runLog := &models.RunLog{
		SearchConfigID: profile.ID,
		Params: models.RunParams{
			Keywords:    profile.Keywords,
			States:      profile.States,
			Modalidades: modalidades,
		},
	}

	inserted := 0
	for _, keyword := range keywords {
		query := pncp.SearchQuery{
			Keyword:     keyword,
			UFs:         profile.States,
			Modalidades: modalidades,
		}

		err := r.Search.ForEachPage(ctx, query, func(items []pncp.SearchItem, total int) error {
			for _, item := range items {
				l := licitacaoFromSearchItem(profile.ID, item)
				isNew, err := r.Store.InsertLicitacaoIfNew(ctx, l)
				if err != nil {
					// One bad row must not sink the rest of the page.
					log.Printf("[Ingest] failed to store %s: %v", l.NumeroControlePNCP, err)
					continue
				}
				if isNew {
					inserted++
				}
			}
			return nil
		})
		if err != nil {
			runLog.Status = models.RunStatusError
			runLog.ResultsCount = inserted
			runLog.ErrorMessage = err.Error()
			if logErr := r.Store.InsertRunLog(ctx, runLog); logErr != nil {
				log.Printf("[Ingest] failed to record run log for %q: %v", profile.Name, logErr)
			}
			// The pass ran, even if it ended early.
			if touchErr := r.Store.TouchLastSearch(ctx, profile.ID); touchErr != nil {
				log.Printf("[Ingest] failed to touch last_search_date for %q: %v", profile.Name, touchErr)
			}
			return inserted, err
		}
	}

	runLog.Status = models.RunStatusSuccess
	runLog.ResultsCount = inserted
	if err := r.Store.InsertRunLog(ctx, runLog); err != nil {
		log.Printf("[Ingest] failed to record run log for %q: %v", profile.Name, err)
	}
	if err := r.Store.TouchLastSearch(ctx, profile.ID); err != nil {
		log.Printf("[Ingest] failed to touch last_search_date for %q: %v", profile.Name, err)
	}

	log.Printf("[Ingest] profile %q: %d new tenders", profile.Name, inserted)
	return inserted, nil
}

// licitacaoFromSearchItem maps one portal search hit to a stored
// tender. Text fields go through CleanText; the untouched item is kept
// in RawData for audit.
func licitacaoFromSearchItem(profileID uuid.UUID, item pncp.SearchItem) *models.Licitacao {
	l := &models.Licitacao{
		SearchConfigID:     &profileID,
		NumeroControlePNCP: item.NumeroControlePNCP,
		NumeroCompra:       item.NumeroSequencial,
		ObjetoCompra:       CleanText(firstNonEmpty(item.Description, item.Title)),
		ModalidadeNome:     CleanText(item.ModalidadeLicitacaoNome),
		Situacao:           CleanText(item.SituacaoNome),
		OrgaoCNPJ:          item.OrgaoCNPJ,
		OrgaoRazaoSocial:   CleanText(item.OrgaoNome),
		UnidadeNome:        CleanText(item.UnidadeNome),
		MunicipioNome:      CleanText(item.MunicipioNome),
		UFSigla:            item.UF,
		LinkPNCP:           item.PortalURL(),
		RawData: map[string]interface{}{
			"numero_controle_pncp":      item.NumeroControlePNCP,
			"numero_sequencial":         item.NumeroSequencial,
			"ano":                       item.Ano,
			"title":                     item.Title,
			"description":               item.Description,
			"modalidade_licitacao_nome": item.ModalidadeLicitacaoNome,
			"situacao_nome":             item.SituacaoNome,
			"valor_global":              item.ValorGlobal,
			"data_publicacao_pncp":      item.DataPublicacaoPNCP,
			"orgao_cnpj":                item.OrgaoCNPJ,
			"orgao_nome":                item.OrgaoNome,
			"unidade_nome":              item.UnidadeNome,
			"municipio_nome":            item.MunicipioNome,
			"uf":                        item.UF,
			"item_url":                  item.ItemURL,
		},
	}

	if ano, err := strconv.Atoi(item.Ano); err == nil {
		l.AnoCompra = &ano
	}
	if item.ValorGlobal > 0 {
		valor := item.ValorGlobal
		l.ValorTotalEstimado = &valor
	}
	if ts := parsePortalTime(item.DataPublicacaoPNCP); ts != nil {
		l.DataPublicacaoPNCP = ts
	}

	return l
}

// parsePortalTime accepts the timestamp shapes the portal emits.
func parsePortalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
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

// ClassifyOutcome reports one tender of a classification batch.
type ClassifyOutcome struct {
	LicitacaoID uuid.UUID `json:"licitacao_id"`
	Status      string    `json:"status"` // classified | error
	Score       float64   `json:"score,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// ClassifyPending scores one batch of unscored tenders, optionally
// scoped to one profile. A model failure flags the tender for review
// and moves on; the batch never aborts halfway.
func (r *Runner) ClassifyPending(ctx context.Context, profileID *uuid.UUID) ([]ClassifyOutcome, error) {
	pending, err := r.Store.ListPendingClassification(ctx, r.BatchSize, profileID)
	if err != nil {
		return nil, fmt.Errorf("listing pending tenders: %w", err)
	}

	outcomes := make([]ClassifyOutcome, 0, len(pending))
	for _, l := range pending {
		var keywords, states []string
		if l.SearchConfigID != nil {
			if profile, err := r.Store.GetProfile(ctx, *l.SearchConfigID); err == nil {
				keywords = profile.Keywords
				states = profile.States
			}
		}

		valor := ""
		if l.ValorTotalEstimado != nil {
			valor = strconv.FormatFloat(*l.ValorTotalEstimado, 'f', 2, 64)
		}
		verdict, err := r.Classifier.Classify(ctx, keywords, states, ai.TenderSummary{
			Objeto:     l.ObjetoCompra,
			Modalidade: l.ModalidadeNome,
			Orgao:      l.OrgaoRazaoSocial,
			Unidade:    l.UnidadeNome,
			Municipio:  l.MunicipioNome,
			UF:         l.UFSigla,
			Valor:      valor,
		})
		if err != nil {
			log.Printf("[Ingest] classification of %s failed: %v", l.NumeroControlePNCP, err)
			if storeErr := r.Store.SetClassificationError(ctx, l.ID, err.Error()); storeErr != nil {
				log.Printf("[Ingest] failed to record classification error: %v", storeErr)
			}
			outcomes = append(outcomes, ClassifyOutcome{LicitacaoID: l.ID, Status: "error", Error: err.Error()})
			continue
		}

		update := &models.Licitacao{
			IAScore:         &verdict.Score,
			IAJustificativa: verdict.Justificativa,
			IAFiltrada:      &verdict.Relevante,
		}
		if err := r.Store.SetClassification(ctx, l.ID, update); err != nil {
			outcomes = append(outcomes, ClassifyOutcome{LicitacaoID: l.ID, Status: "error", Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, ClassifyOutcome{LicitacaoID: l.ID, Status: "classified", Score: verdict.Score})
	}

	return outcomes, nil
}
