package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rafaelq/licita-radar/internal/models"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ---------------------------------------------------------------------------
// Search profiles

const profileCols = `id, user_id, name, keywords, states, modalidades, is_active, last_search_date, created_at, updated_at`

func scanProfile(scan func(dest ...interface{}) error) (models.SearchProfile, error) {
	var p models.SearchProfile
	err := scan(
		&p.ID, &p.UserID, &p.Name, &p.Keywords, &p.States, &p.Modalidades,
		&p.IsActive, &p.LastSearchDate, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (s *Store) CreateProfile(ctx context.Context, p *models.SearchProfile) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO search_configurations (user_id, name, keywords, states, modalidades, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, p.UserID, p.Name, p.Keywords, p.States, p.Modalidades, p.IsActive).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (s *Store) UpdateProfile(ctx context.Context, p *models.SearchProfile) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE search_configurations
		SET name = $2, keywords = $3, states = $4, modalidades = $5, is_active = $6, updated_at = NOW()
		WHERE id = $1
	`, p.ID, p.Name, p.Keywords, p.States, p.Modalidades, p.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM search_configurations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, id uuid.UUID) (*models.SearchProfile, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM search_configurations WHERE id = $1`, profileCols), id)
	p, err := scanProfile(row.Scan)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]models.SearchProfile, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM search_configurations ORDER BY created_at`, profileCols))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProfiles(rows)
}

// ListActiveProfiles returns the profiles a search run iterates over.
func (s *Store) ListActiveProfiles(ctx context.Context) ([]models.SearchProfile, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM search_configurations WHERE is_active = TRUE ORDER BY created_at`, profileCols))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProfiles(rows)
}

func collectProfiles(rows pgx.Rows) ([]models.SearchProfile, error) {
	profiles := []models.SearchProfile{}
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// TouchLastSearch stamps the profile after a completed search pass.
func (s *Store) TouchLastSearch(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE search_configurations SET last_search_date = NOW(), updated_at = NOW() WHERE id = $1`, id)
	return err
}

// ---------------------------------------------------------------------------
// Licitações

const licitacaoCols = `id, search_config_id, numero_controle_pncp, numero_compra, ano_compra,
	objeto_compra, modalidade_nome, situacao, valor_total_estimado,
	data_abertura_proposta, data_encerramento_proposta, data_publicacao_pncp,
	orgao_cnpj, orgao_razao_social, unidade_nome, municipio_nome, uf_sigla,
	link_pncp, raw_data, is_viewed, vai_participar, status_interno,
	data_limite_interna, gestao_checklist, anotacoes,
	ia_score, ia_justificativa, ia_filtrada, ia_needs_review, ia_processing_error, ia_reviewed_at,
	created_at, updated_at`

func scanLicitacao(scan func(dest ...interface{}) error) (models.Licitacao, error) {
	var l models.Licitacao
	var rawData, checklistRaw []byte
	var statusInterno string

	err := scan(
		&l.ID, &l.SearchConfigID, &l.NumeroControlePNCP, &l.NumeroCompra, &l.AnoCompra,
		&l.ObjetoCompra, &l.ModalidadeNome, &l.Situacao, &l.ValorTotalEstimado,
		&l.DataAberturaProposta, &l.DataEncerramentoProposta, &l.DataPublicacaoPNCP,
		&l.OrgaoCNPJ, &l.OrgaoRazaoSocial, &l.UnidadeNome, &l.MunicipioNome, &l.UFSigla,
		&l.LinkPNCP, &rawData, &l.IsViewed, &l.VaiParticipar, &statusInterno,
		&l.DataLimiteInterna, &checklistRaw, &l.Anotacoes,
		&l.IAScore, &l.IAJustificativa, &l.IAFiltrada, &l.IANeedsReview, &l.IAProcessingError, &l.IAReviewedAt,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return l, err
	}

	l.StatusInterno = models.StatusInterno(statusInterno)
	if len(rawData) > 0 {
		_ = json.Unmarshal(rawData, &l.RawData)
	}
	if len(checklistRaw) > 0 {
		_ = json.Unmarshal(checklistRaw, &l.GestaoChecklist)
	}
	return l, nil
}

// InsertLicitacaoIfNew persists a tender unless its numero_controle_pncp
// is already known. The insert and the duplicate check are a single
// statement, so concurrent runs cannot both claim the same tender.
// Returns true when the row was inserted.
func (s *Store) InsertLicitacaoIfNew(ctx context.Context, l *models.Licitacao) (bool, error) {
	rawData, err := json.Marshal(l.RawData)
	if err != nil {
		return false, fmt.Errorf("encoding raw_data: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO licitacoes_encontradas (
			search_config_id, numero_controle_pncp, numero_compra, ano_compra,
			objeto_compra, modalidade_nome, situacao, valor_total_estimado,
			data_abertura_proposta, data_encerramento_proposta, data_publicacao_pncp,
			orgao_cnpj, orgao_razao_social, unidade_nome, municipio_nome, uf_sigla,
			link_pncp, raw_data
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (numero_controle_pncp) DO NOTHING
		RETURNING id, created_at, updated_at
	`,
		l.SearchConfigID, l.NumeroControlePNCP, l.NumeroCompra, l.AnoCompra,
		l.ObjetoCompra, l.ModalidadeNome, l.Situacao, l.ValorTotalEstimado,
		l.DataAberturaProposta, l.DataEncerramentoProposta, l.DataPublicacaoPNCP,
		l.OrgaoCNPJ, l.OrgaoRazaoSocial, l.UnidadeNome, l.MunicipioNome, l.UFSigla,
		l.LinkPNCP, rawData,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inserting licitacao %s: %w", l.NumeroControlePNCP, err)
	}
	return true, nil
}

func (s *Store) GetLicitacao(ctx context.Context, id uuid.UUID) (*models.Licitacao, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM licitacoes_encontradas WHERE id = $1`, licitacaoCols), id)
	l, err := scanLicitacao(row.Scan)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) GetLicitacaoByControle(ctx context.Context, numeroControle string) (*models.Licitacao, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM licitacoes_encontradas WHERE numero_controle_pncp = $1`, licitacaoCols), numeroControle)
	l, err := scanLicitacao(row.Scan)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

type ListParams struct {
	Query          string
	UF             string
	StatusInterno  *models.StatusInterno
	VaiParticipar  *bool
	OnlyRelevant   bool
	NeedsReview    *bool
	MinScore       float64
	SearchConfigID *uuid.UUID
	IsViewed       *bool
	SortBy         string // "score", "encerramento", "newest" (default)
	Limit          int
	Offset         int
}

type ListResult struct {
	Licitacoes []models.Licitacao `json:"licitacoes"`
	Total      int                `json:"total"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

// buildListWhere renders the WHERE clause for ListLicitacoes. Split out
// so the clause assembly is testable without a database.
func buildListWhere(params ListParams) (string, []interface{}) {
	where := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if params.Query != "" {
		where += fmt.Sprintf(" AND (objeto_compra ILIKE '%%' || $%d || '%%' OR orgao_razao_social ILIKE '%%' || $%d || '%%')", argIdx, argIdx)
		args = append(args, params.Query)
		argIdx++
	}
	if params.UF != "" {
		where += fmt.Sprintf(" AND uf_sigla = $%d", argIdx)
		args = append(args, strings.ToUpper(params.UF))
		argIdx++
	}
	if params.StatusInterno != nil {
		where += fmt.Sprintf(" AND status_interno = $%d", argIdx)
		args = append(args, string(*params.StatusInterno))
		argIdx++
	} else {
		// The trash can is opt-in: listings hide it unless asked for.
		where += fmt.Sprintf(" AND status_interno <> $%d", argIdx)
		args = append(args, string(models.StatusLixeira))
		argIdx++
	}
	if params.VaiParticipar != nil {
		where += fmt.Sprintf(" AND vai_participar = $%d", argIdx)
		args = append(args, *params.VaiParticipar)
		argIdx++
	}
	if params.OnlyRelevant {
		where += " AND ia_filtrada = TRUE"
	}
	if params.NeedsReview != nil {
		where += fmt.Sprintf(" AND ia_needs_review = $%d", argIdx)
		args = append(args, *params.NeedsReview)
		argIdx++
	}
	if params.MinScore > 0 {
		where += fmt.Sprintf(" AND ia_score >= $%d", argIdx)
		args = append(args, params.MinScore)
		argIdx++
	}
	if params.SearchConfigID != nil {
		where += fmt.Sprintf(" AND search_config_id = $%d", argIdx)
		args = append(args, *params.SearchConfigID)
		argIdx++
	}
	if params.IsViewed != nil {
		where += fmt.Sprintf(" AND is_viewed = $%d", argIdx)
		args = append(args, *params.IsViewed)
		argIdx++
	}

	return where, args
}

func (s *Store) ListLicitacoes(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}

	where, args := buildListWhere(params)
	argIdx := len(args) + 1

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM licitacoes_encontradas "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	selectSQL := fmt.Sprintf("SELECT %s FROM licitacoes_encontradas %s", licitacaoCols, where)
	switch params.SortBy {
	case "score":
		selectSQL += " ORDER BY ia_score DESC NULLS LAST, created_at DESC"
	case "encerramento":
		selectSQL += " ORDER BY data_encerramento_proposta ASC NULLS LAST, created_at DESC"
	default:
		selectSQL += " ORDER BY created_at DESC"
	}
	selectSQL += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.pool.Query(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	licitacoes := []models.Licitacao{}
	for rows.Next() {
		l, err := scanLicitacao(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		licitacoes = append(licitacoes, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return &ListResult{
		Licitacoes: licitacoes,
		Total:      total,
		Limit:      params.Limit,
		Offset:     params.Offset,
	}, nil
}

// LicitacaoPatch carries the user-editable triage fields. Nil means
// "leave unchanged". StatusInterno goes through UpdateStatusInterno
// instead so the trash-can side effect stays in one place.
type LicitacaoPatch struct {
	IsViewed          *bool
	VaiParticipar     *bool
	DataLimiteInterna *string
	GestaoChecklist   []models.ChecklistItem
	HasChecklist      bool
	Anotacoes         *string
}

// buildPatchSet renders the SET clause for UpdateLicitacao. Split out
// for clause tests.
func buildPatchSet(patch LicitacaoPatch) (string, []interface{}, error) {
	sets := []string{"updated_at = NOW()"}
	var args []interface{}
	argIdx := 2 // $1 is the row id

	if patch.IsViewed != nil {
		sets = append(sets, fmt.Sprintf("is_viewed = $%d", argIdx))
		args = append(args, *patch.IsViewed)
		argIdx++
	}
	if patch.VaiParticipar != nil {
		sets = append(sets, fmt.Sprintf("vai_participar = $%d", argIdx))
		args = append(args, *patch.VaiParticipar)
		argIdx++
	}
	if patch.DataLimiteInterna != nil {
		if *patch.DataLimiteInterna == "" {
			sets = append(sets, "data_limite_interna = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("data_limite_interna = $%d", argIdx))
			args = append(args, *patch.DataLimiteInterna)
			argIdx++
		}
	}
	if patch.HasChecklist {
		raw, err := json.Marshal(patch.GestaoChecklist)
		if err != nil {
			return "", nil, fmt.Errorf("encoding gestao_checklist: %w", err)
		}
		sets = append(sets, fmt.Sprintf("gestao_checklist = $%d", argIdx))
		args = append(args, raw)
		argIdx++
	}
	if patch.Anotacoes != nil {
		sets = append(sets, fmt.Sprintf("anotacoes = $%d", argIdx))
		args = append(args, *patch.Anotacoes)
		argIdx++
	}

	return strings.Join(sets, ", "), args, nil
}

func (s *Store) UpdateLicitacao(ctx context.Context, id uuid.UUID, patch LicitacaoPatch) (*models.Licitacao, error) {
	setClause, args, err := buildPatchSet(patch)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`UPDATE licitacoes_encontradas SET %s WHERE id = $1 RETURNING %s`, setClause, licitacaoCols)
	row := s.pool.QueryRow(ctx, sql, append([]interface{}{id}, args...)...)
	l, err := scanLicitacao(row.Scan)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// UpdateStatusInterno is the only mutation path for the triage status.
// Moving a tender to the trash can always clears vai_participar.
func (s *Store) UpdateStatusInterno(ctx context.Context, id uuid.UUID, status models.StatusInterno) (*models.Licitacao, error) {
	sql := `UPDATE licitacoes_encontradas SET status_interno = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + licitacaoCols
	if status.ClearsParticipation() {
		sql = `UPDATE licitacoes_encontradas SET status_interno = $2, vai_participar = FALSE, updated_at = NOW() WHERE id = $1 RETURNING ` + licitacaoCols
	}

	row := s.pool.QueryRow(ctx, sql, id, string(status))
	l, err := scanLicitacao(row.Scan)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ---------------------------------------------------------------------------
// Relevance classification queue

// ListPendingClassification returns unscored tenders, oldest first,
// optionally scoped to one search profile. Tenders the user already
// committed to, and trashed ones, are skipped.
func (s *Store) ListPendingClassification(ctx context.Context, limit int, profileID *uuid.UUID) ([]models.Licitacao, error) {
	if limit <= 0 {
		limit = 50
	}
	where := "ia_score IS NULL AND vai_participar = FALSE AND status_interno <> $1"
	args := []interface{}{string(models.StatusLixeira)}
	if profileID != nil {
		where += fmt.Sprintf(" AND search_config_id = $%d", len(args)+1)
		args = append(args, *profileID)
	}
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM licitacoes_encontradas
		WHERE %s
		ORDER BY created_at ASC
		LIMIT $%d
	`, licitacaoCols, where, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pending := []models.Licitacao{}
	for rows.Next() {
		l, err := scanLicitacao(rows.Scan)
		if err != nil {
			return nil, err
		}
		pending = append(pending, l)
	}
	return pending, rows.Err()
}

// SetClassification persists a successful relevance verdict and clears
// any previous processing error.
func (s *Store) SetClassification(ctx context.Context, id uuid.UUID, c *models.Licitacao) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE licitacoes_encontradas
		SET ia_score = $2, ia_justificativa = $3, ia_filtrada = $4,
			ia_needs_review = FALSE, ia_processing_error = '', ia_reviewed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, c.IAScore, c.IAJustificativa, c.IAFiltrada)
	return err
}

// SetClassificationError flags a tender for manual review after a
// failed classification attempt. The score stays NULL so a later run
// retries it; ia_reviewed_at records when the attempt happened.
func (s *Store) SetClassificationError(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE licitacoes_encontradas
		SET ia_processing_error = $2, ia_needs_review = TRUE, ia_reviewed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, msg)
	return err
}

// ---------------------------------------------------------------------------
// Run logs

func (s *Store) InsertRunLog(ctx context.Context, rl *models.RunLog) error {
	params, err := json.Marshal(rl.Params)
	if err != nil {
		return fmt.Errorf("encoding run params: %w", err)
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO search_logs (search_config_id, params, status, results_count, error_message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, rl.SearchConfigID, params, rl.Status, rl.ResultsCount, rl.ErrorMessage).
		Scan(&rl.ID, &rl.CreatedAt)
}

func (s *Store) ListRunLogs(ctx context.Context, limit int) ([]models.RunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, search_config_id, params, status, results_count, error_message, created_at
		FROM search_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.RunLog{}
	for rows.Next() {
		var rl models.RunLog
		var paramsRaw []byte
		if err := rows.Scan(&rl.ID, &rl.SearchConfigID, &paramsRaw, &rl.Status, &rl.ResultsCount, &rl.ErrorMessage, &rl.CreatedAt); err != nil {
			return nil, err
		}
		if len(paramsRaw) > 0 {
			_ = json.Unmarshal(paramsRaw, &rl.Params)
		}
		logs = append(logs, rl)
	}
	return logs, rows.Err()
}

// ---------------------------------------------------------------------------
// Edital analyses

// MarkEditalProcessing upserts the analysis row into the processing
// state before the slow model call starts, so the UI can show progress.
func (s *Store) MarkEditalProcessing(ctx context.Context, licitacaoID uuid.UUID, editalURL, model string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO licitacao_edital_ia (licitacao_encontrada_id, edital_url, status, model, processing_error, updated_at)
		VALUES ($1, $2, $3, $4, '', NOW())
		ON CONFLICT (licitacao_encontrada_id) DO UPDATE
		SET edital_url = EXCLUDED.edital_url, status = EXCLUDED.status, model = EXCLUDED.model,
			processing_error = '', updated_at = NOW()
	`, licitacaoID, editalURL, string(models.AnalysisProcessing), model)
	return err
}

func (s *Store) SaveEditalResult(ctx context.Context, a *models.EditalAnalysis) error {
	requisitos, _ := json.Marshal(a.RequisitosObrigatorios)
	documentos, _ := json.Marshal(a.DocumentosExigidos)
	riscos, _ := json.Marshal(a.Riscos)
	perguntas, _ := json.Marshal(a.PerguntasCliente)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO licitacao_edital_ia (
			licitacao_encontrada_id, edital_url, status, resumo,
			requisitos_obrigatorios, documentos_exigidos, riscos, perguntas_para_cliente,
			recomendacao_participar, justificativa, score_adequacao, raw_json, model, processing_error, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, '', NOW())
		ON CONFLICT (licitacao_encontrada_id) DO UPDATE
		SET edital_url = EXCLUDED.edital_url, status = EXCLUDED.status, resumo = EXCLUDED.resumo,
			requisitos_obrigatorios = EXCLUDED.requisitos_obrigatorios,
			documentos_exigidos = EXCLUDED.documentos_exigidos,
			riscos = EXCLUDED.riscos, perguntas_para_cliente = EXCLUDED.perguntas_para_cliente,
			recomendacao_participar = EXCLUDED.recomendacao_participar,
			justificativa = EXCLUDED.justificativa, score_adequacao = EXCLUDED.score_adequacao,
			raw_json = EXCLUDED.raw_json, model = EXCLUDED.model,
			processing_error = '', updated_at = NOW()
	`, a.LicitacaoID, a.EditalURL, string(models.AnalysisDone), a.Resumo,
		requisitos, documentos, riscos, perguntas,
		a.RecomendacaoParticipar, a.Justificativa, a.ScoreAdequacao, a.RawJSON, a.Model)
	return err
}

func (s *Store) SetEditalError(ctx context.Context, licitacaoID uuid.UUID, editalURL, msg string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO licitacao_edital_ia (licitacao_encontrada_id, edital_url, status, processing_error, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (licitacao_encontrada_id) DO UPDATE
		SET edital_url = EXCLUDED.edital_url, status = EXCLUDED.status,
			processing_error = EXCLUDED.processing_error, updated_at = NOW()
	`, licitacaoID, editalURL, string(models.AnalysisError), msg)
	return err
}

func (s *Store) GetEditalAnalysis(ctx context.Context, licitacaoID uuid.UUID) (*models.EditalAnalysis, error) {
	var a models.EditalAnalysis
	var status string
	var requisitos, documentos, riscos, perguntas []byte

	err := s.pool.QueryRow(ctx, `
		SELECT licitacao_encontrada_id, edital_url, status, resumo,
			requisitos_obrigatorios, documentos_exigidos, riscos, perguntas_para_cliente,
			recomendacao_participar, justificativa, score_adequacao, raw_json, model, processing_error, updated_at
		FROM licitacao_edital_ia
		WHERE licitacao_encontrada_id = $1
	`, licitacaoID).Scan(
		&a.LicitacaoID, &a.EditalURL, &status, &a.Resumo,
		&requisitos, &documentos, &riscos, &perguntas,
		&a.RecomendacaoParticipar, &a.Justificativa, &a.ScoreAdequacao, &a.RawJSON, &a.Model, &a.ProcessingError, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = models.AnalysisStatus(status)
	_ = json.Unmarshal(requisitos, &a.RequisitosObrigatorios)
	_ = json.Unmarshal(documentos, &a.DocumentosExigidos)
	_ = json.Unmarshal(riscos, &a.Riscos)
	_ = json.Unmarshal(perguntas, &a.PerguntasCliente)
	return &a, nil
}

// ---------------------------------------------------------------------------
// Portal documents cache

func (s *Store) UpsertDocumentos(ctx context.Context, licitacaoID uuid.UUID, docs []models.DocumentoPNCP) error {
	for _, d := range docs {
		if d.URLPNCP == "" {
			continue
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO licitacao_documentos_pncp (licitacao_encontrada_id, tipo, tipo_documento_nome, nome_arquivo, url_pncp, data_inclusao)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (licitacao_encontrada_id, url_pncp) DO UPDATE
			SET tipo = EXCLUDED.tipo, tipo_documento_nome = EXCLUDED.tipo_documento_nome,
				nome_arquivo = EXCLUDED.nome_arquivo, data_inclusao = EXCLUDED.data_inclusao
		`, licitacaoID, d.Tipo, d.TipoDocumentoNome, d.NomeArquivo, d.URLPNCP, d.DataInclusao)
		if err != nil {
			return fmt.Errorf("upserting documento %s: %w", d.URLPNCP, err)
		}
	}
	return nil
}

func (s *Store) ListDocumentos(ctx context.Context, licitacaoID uuid.UUID) ([]models.DocumentoPNCP, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, licitacao_encontrada_id, tipo, tipo_documento_nome, nome_arquivo, url_pncp, data_inclusao
		FROM licitacao_documentos_pncp
		WHERE licitacao_encontrada_id = $1
		ORDER BY tipo, nome_arquivo
	`, licitacaoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []models.DocumentoPNCP{}
	for rows.Next() {
		var d models.DocumentoPNCP
		if err := rows.Scan(&d.ID, &d.LicitacaoID, &d.Tipo, &d.TipoDocumentoNome, &d.NomeArquivo, &d.URLPNCP, &d.DataInclusao); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
