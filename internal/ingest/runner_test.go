package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rafaelq/licita-radar/internal/ai"
	"github.com/rafaelq/licita-radar/internal/models"
	"github.com/rafaelq/licita-radar/internal/pncp"
)

// fakeStore is an in-memory Storage for orchestrator tests.
type fakeStore struct {
	profiles   []models.SearchProfile
	byControle map[string]*models.Licitacao
	runLogs    []models.RunLog
	touched    []uuid.UUID
	classified map[uuid.UUID]*models.Licitacao
	classErrs  map[uuid.UUID]string
}

func newFakeStore(profiles ...models.SearchProfile) *fakeStore {
	return &fakeStore{
		profiles:   profiles,
		byControle: map[string]*models.Licitacao{},
		classified: map[uuid.UUID]*models.Licitacao{},
		classErrs:  map[uuid.UUID]string{},
	}
}

func (f *fakeStore) ListActiveProfiles(ctx context.Context) ([]models.SearchProfile, error) {
	active := []models.SearchProfile{}
	for _, p := range f.profiles {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active, nil
}

func (f *fakeStore) GetProfile(ctx context.Context, id uuid.UUID) (*models.SearchProfile, error) {
	for i := range f.profiles {
		if f.profiles[i].ID == id {
			return &f.profiles[i], nil
		}
	}
	return nil, fmt.Errorf("profile %s not found", id)
}

func (f *fakeStore) InsertLicitacaoIfNew(ctx context.Context, l *models.Licitacao) (bool, error) {
	if _, dup := f.byControle[l.NumeroControlePNCP]; dup {
		return false, nil
	}
	l.ID = uuid.New()
	f.byControle[l.NumeroControlePNCP] = l
	return true, nil
}

func (f *fakeStore) InsertRunLog(ctx context.Context, rl *models.RunLog) error {
	rl.ID = uuid.New()
	f.runLogs = append(f.runLogs, *rl)
	return nil
}

func (f *fakeStore) TouchLastSearch(ctx context.Context, id uuid.UUID) error {
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeStore) ListPendingClassification(ctx context.Context, limit int, profileID *uuid.UUID) ([]models.Licitacao, error) {
	pending := []models.Licitacao{}
	for _, l := range f.byControle {
		if profileID != nil && (l.SearchConfigID == nil || *l.SearchConfigID != *profileID) {
			continue
		}
		if l.IAScore == nil && !l.VaiParticipar && l.StatusInterno != models.StatusLixeira {
			pending = append(pending, *l)
		}
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (f *fakeStore) SetClassification(ctx context.Context, id uuid.UUID, l *models.Licitacao) error {
	f.classified[id] = l
	for _, stored := range f.byControle {
		if stored.ID == id {
			stored.IAScore = l.IAScore
			stored.IAFiltrada = l.IAFiltrada
			stored.IAJustificativa = l.IAJustificativa
		}
	}
	return nil
}

func (f *fakeStore) SetClassificationError(ctx context.Context, id uuid.UUID, msg string) error {
	f.classErrs[id] = msg
	return nil
}

func portalServer(t *testing.T, total int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := 1
		fmt.Sscanf(r.URL.Query().Get("pagina"), "%d", &page)
		size := pncp.DefaultPageSize
		fmt.Sscanf(r.URL.Query().Get("tam_pagina"), "%d", &size)

		start := (page - 1) * size
		count := total - start
		if count < 0 {
			count = 0
		}
		if count > size {
			count = size
		}

		items := make([]map[string]any, count)
		for i := range items {
			n := start + i + 1
			items[i] = map[string]any{
				"numero_controle_pncp": fmt.Sprintf("11222333000144-1-%06d/2025", n),
				"numero_sequencial":    fmt.Sprintf("%d", n),
				"ano":                  "2025",
				"title":                fmt.Sprintf("Pregão Eletrônico %d/2025", n),
				"description":          "Aquisi&ccedil;&atilde;o de <b>uniformes escolares</b>",
				"situacao_nome":        "Divulgada no PNCP",
				"valor_global":         1500.50,
				"data_publicacao_pncp": "2025-08-20T10:00:00",
				"uf":                   "SP",
				"item_url":             fmt.Sprintf("/compras/11222333000144/2025/%d", n),
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items, "total": total})
	}))
}

func activeProfile(keywords ...string) models.SearchProfile {
	return models.SearchProfile{
		ID:       uuid.New(),
		Name:     "perfil teste",
		Keywords: keywords,
		IsActive: true,
	}
}

func TestRunAllPaginatesAndRecordsRunLog(t *testing.T) {
	srv := portalServer(t, 73)
	defer srv.Close()

	store := newFakeStore(activeProfile("uniformes"))
	search := &pncp.Client{HTTPClient: srv.Client(), BaseURL: srv.URL}
	runner := NewRunner(store, search, nil, 0)

	summary, err := runner.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if summary.TotalInserted != 73 {
		t.Errorf("TotalInserted = %d, want 73", summary.TotalInserted)
	}
	if len(store.runLogs) != 1 {
		t.Fatalf("got %d run logs, want 1", len(store.runLogs))
	}
	rl := store.runLogs[0]
	if rl.Status != models.RunStatusSuccess || rl.ResultsCount != 73 {
		t.Errorf("run log = %+v", rl)
	}
	if len(store.touched) != 1 {
		t.Errorf("last_search_date touched %d times, want 1", len(store.touched))
	}
}

func TestRunAllSecondPassInsertsNothing(t *testing.T) {
	srv := portalServer(t, 60)
	defer srv.Close()

	store := newFakeStore(activeProfile("uniformes"))
	search := &pncp.Client{HTTPClient: srv.Client(), BaseURL: srv.URL}
	runner := NewRunner(store, search, nil, 0)

	if _, err := runner.RunAll(context.Background()); err != nil {
		t.Fatalf("first RunAll: %v", err)
	}
	summary, err := runner.RunAll(context.Background())
	if err != nil {
		t.Fatalf("second RunAll: %v", err)
	}

	if summary.TotalInserted != 0 {
		t.Errorf("second pass inserted %d, want 0", summary.TotalInserted)
	}
	// Both passes still record their run log.
	if len(store.runLogs) != 2 {
		t.Errorf("got %d run logs, want 2", len(store.runLogs))
	}
	if store.runLogs[1].ResultsCount != 0 {
		t.Errorf("second run log counts %d results, want 0", store.runLogs[1].ResultsCount)
	}
}

func TestRunAllDuplicateAcrossProfilesCountsOnce(t *testing.T) {
	srv := portalServer(t, 10)
	defer srv.Close()

	first := activeProfile("uniformes")
	second := activeProfile("vestuário")
	store := newFakeStore(first, second)
	search := &pncp.Client{HTTPClient: srv.Client(), BaseURL: srv.URL}
	runner := NewRunner(store, search, nil, 0)

	summary, err := runner.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if summary.TotalInserted != 10 {
		t.Errorf("TotalInserted = %d, want 10 (duplicates skipped)", summary.TotalInserted)
	}
	if len(store.byControle) != 10 {
		t.Errorf("stored %d tenders, want 10", len(store.byControle))
	}

	// First profile claimed every tender; the second found only duplicates.
	counts := map[uuid.UUID]int{}
	for _, rl := range store.runLogs {
		counts[rl.SearchConfigID] = rl.ResultsCount
	}
	if counts[first.ID] != 10 || counts[second.ID] != 0 {
		t.Errorf("run log counts = %v", counts)
	}
}

func TestRunAllProfileFailureIsIsolated(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("q") == "quebrado" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{{
				"numero_controle_pncp": "11222333000144-1-000001/2025",
				"title":                "Pregão 1",
				"item_url":             "/compras/11222333000144/2025/1",
			}},
			"total": 1,
		})
	}))
	defer srv.Close()

	broken := activeProfile("quebrado")
	healthy := activeProfile("uniformes")
	store := newFakeStore(broken, healthy)
	search := &pncp.Client{HTTPClient: srv.Client(), BaseURL: srv.URL}
	runner := NewRunner(store, search, nil, 0)

	summary, err := runner.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if summary.FailedProfiles != 1 {
		t.Errorf("FailedProfiles = %d, want 1", summary.FailedProfiles)
	}
	if summary.TotalInserted != 1 {
		t.Errorf("TotalInserted = %d, want 1 from the healthy profile", summary.TotalInserted)
	}

	var statuses []string
	for _, rl := range store.runLogs {
		statuses = append(statuses, rl.Status)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d run logs, want 2", len(statuses))
	}
	// The broken profile still ran, so its timestamp moves too.
	if len(store.touched) != 2 {
		t.Errorf("last_search_date touched %d times, want 2", len(store.touched))
	}
}

// flakyStore fails inserts for selected control numbers.
type flakyStore struct {
	*fakeStore
	failControles map[string]bool
}

func (f *flakyStore) InsertLicitacaoIfNew(ctx context.Context, l *models.Licitacao) (bool, error) {
	if f.failControles[l.NumeroControlePNCP] {
		return false, fmt.Errorf("storage blip")
	}
	return f.fakeStore.InsertLicitacaoIfNew(ctx, l)
}

func TestRunAllInsertFailureSkipsCandidate(t *testing.T) {
	srv := portalServer(t, 10)
	defer srv.Close()

	store := &flakyStore{
		fakeStore:     newFakeStore(activeProfile("uniformes")),
		failControles: map[string]bool{"11222333000144-1-000003/2025": true},
	}
	search := &pncp.Client{HTTPClient: srv.Client(), BaseURL: srv.URL}
	runner := NewRunner(store, search, nil, 0)

	summary, err := runner.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if summary.FailedProfiles != 0 {
		t.Errorf("FailedProfiles = %d, want 0 (one bad row is not a profile failure)", summary.FailedProfiles)
	}
	if summary.TotalInserted != 9 {
		t.Errorf("TotalInserted = %d, want 9", summary.TotalInserted)
	}
	if len(store.runLogs) != 1 {
		t.Fatalf("got %d run logs, want 1", len(store.runLogs))
	}
	rl := store.runLogs[0]
	if rl.Status != models.RunStatusSuccess || rl.ResultsCount != 9 {
		t.Errorf("run log = %+v, want success with 9 results", rl)
	}
	if len(store.touched) != 1 {
		t.Errorf("last_search_date touched %d times, want 1", len(store.touched))
	}
}

func TestLicitacaoFromSearchItemSanitizes(t *testing.T) {
	profileID := uuid.New()
	l := licitacaoFromSearchItem(profileID, pncp.SearchItem{
		NumeroControlePNCP: "11222333000144-1-000001/2025",
		Ano:                "2025",
		Description:        "Aquisi&ccedil;&atilde;o de <b>uniformes</b>   escolares",
		ValorGlobal:        1500.50,
		DataPublicacaoPNCP: "2025-08-20T10:00:00",
		ItemURL:            "/compras/11222333000144/2025/1",
	})

	if l.ObjetoCompra != "Aquisição de uniformes escolares" {
		t.Errorf("ObjetoCompra = %q", l.ObjetoCompra)
	}
	if l.AnoCompra == nil || *l.AnoCompra != 2025 {
		t.Errorf("AnoCompra = %v", l.AnoCompra)
	}
	if l.ValorTotalEstimado == nil || *l.ValorTotalEstimado != 1500.50 {
		t.Errorf("ValorTotalEstimado = %v", l.ValorTotalEstimado)
	}
	if l.DataPublicacaoPNCP == nil {
		t.Error("DataPublicacaoPNCP not parsed")
	}
	if l.LinkPNCP != "https://pncp.gov.br/app/editais/11222333000144/2025/1" {
		t.Errorf("LinkPNCP = %q", l.LinkPNCP)
	}
	if l.RawData["description"] != "Aquisi&ccedil;&atilde;o de <b>uniformes</b>   escolares" {
		t.Error("RawData should keep the original text untouched")
	}
}

// scriptedClassifier returns canned verdicts per objeto.
type scriptedClassifier struct {
	verdicts   map[string]*ai.Classification
	errs       map[string]error
	seenStates [][]string
}

func (s *scriptedClassifier) Classify(ctx context.Context, keywords, states []string, t ai.TenderSummary) (*ai.Classification, error) {
	s.seenStates = append(s.seenStates, states)
	if err, ok := s.errs[t.Objeto]; ok {
		return nil, err
	}
	if v, ok := s.verdicts[t.Objeto]; ok {
		return v, nil
	}
	return ai.FallbackClassification(), nil
}

func TestClassifyPendingRecordsVerdictsAndErrors(t *testing.T) {
	profile := activeProfile("uniformes")
	store := newFakeStore(profile)

	good := &models.Licitacao{NumeroControlePNCP: "a-1", ObjetoCompra: "uniformes escolares", SearchConfigID: &profile.ID}
	bad := &models.Licitacao{NumeroControlePNCP: "b-2", ObjetoCompra: "obra de pavimentação", SearchConfigID: &profile.ID}
	store.InsertLicitacaoIfNew(context.Background(), good)
	store.InsertLicitacaoIfNew(context.Background(), bad)

	classifier := &scriptedClassifier{
		verdicts: map[string]*ai.Classification{
			"uniformes escolares": {Score: 95, Justificativa: "menciona uniformes", Relevante: true},
		},
		errs: map[string]error{
			"obra de pavimentação": fmt.Errorf("model timeout"),
		},
	}
	runner := NewRunner(store, nil, classifier, 10)

	outcomes, err := runner.ClassifyPending(context.Background(), nil)
	if err != nil {
		t.Fatalf("ClassifyPending: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}

	if v, ok := store.classified[good.ID]; !ok || *v.IAScore != 95 || !*v.IAFiltrada {
		t.Errorf("good tender verdict not persisted: %+v", v)
	}
	if msg, ok := store.classErrs[bad.ID]; !ok || msg != "model timeout" {
		t.Errorf("bad tender error not persisted: %q", msg)
	}
}

func TestClassifyPendingForwardsProfileStates(t *testing.T) {
	profile := activeProfile("uniformes")
	profile.States = []string{"SP", "MG"}
	store := newFakeStore(profile)

	l := &models.Licitacao{NumeroControlePNCP: "a-1", ObjetoCompra: "uniformes escolares", SearchConfigID: &profile.ID}
	store.InsertLicitacaoIfNew(context.Background(), l)

	classifier := &scriptedClassifier{
		verdicts: map[string]*ai.Classification{
			"uniformes escolares": {Score: 90, Justificativa: "uniformes", Relevante: true},
		},
	}
	runner := NewRunner(store, nil, classifier, 10)

	if _, err := runner.ClassifyPending(context.Background(), nil); err != nil {
		t.Fatalf("ClassifyPending: %v", err)
	}
	if len(classifier.seenStates) != 1 {
		t.Fatalf("classifier called %d times, want 1", len(classifier.seenStates))
	}
	got := classifier.seenStates[0]
	if len(got) != 2 || got[0] != "SP" || got[1] != "MG" {
		t.Errorf("classifier saw states %v, want [SP MG]", got)
	}
}

func TestClassifyPendingScopedToProfile(t *testing.T) {
	uniformes := activeProfile("uniformes")
	merenda := activeProfile("merenda")
	store := newFakeStore(uniformes, merenda)

	mine := &models.Licitacao{NumeroControlePNCP: "a-1", ObjetoCompra: "uniformes escolares", SearchConfigID: &uniformes.ID}
	other := &models.Licitacao{NumeroControlePNCP: "b-2", ObjetoCompra: "merenda escolar", SearchConfigID: &merenda.ID}
	store.InsertLicitacaoIfNew(context.Background(), mine)
	store.InsertLicitacaoIfNew(context.Background(), other)

	classifier := &scriptedClassifier{
		verdicts: map[string]*ai.Classification{
			"uniformes escolares": {Score: 90, Justificativa: "uniformes", Relevante: true},
		},
	}
	runner := NewRunner(store, nil, classifier, 10)

	outcomes, err := runner.ClassifyPending(context.Background(), &uniformes.ID)
	if err != nil {
		t.Fatalf("ClassifyPending: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].LicitacaoID != mine.ID {
		t.Fatalf("scoped batch = %+v, want only the uniformes tender", outcomes)
	}
	if _, ok := store.classified[other.ID]; ok {
		t.Error("tender of the other profile was scored")
	}
}
