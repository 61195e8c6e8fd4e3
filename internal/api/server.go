package api

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/rafaelq/licita-radar/internal/ai"
	"github.com/rafaelq/licita-radar/internal/auth"
	"github.com/rafaelq/licita-radar/internal/config"
	"github.com/rafaelq/licita-radar/internal/db"
	"github.com/rafaelq/licita-radar/internal/edital"
	"github.com/rafaelq/licita-radar/internal/ingest"
	"github.com/rafaelq/licita-radar/internal/models"
	"github.com/rafaelq/licita-radar/internal/pncp"
	"github.com/rafaelq/licita-radar/internal/storage"
)

type Server struct {
	Echo        *echo.Echo
	Store       *db.Store
	AuthService *auth.Service
	Runner      *ingest.Runner
	Analyzer    *edital.Analyzer
	Chat        *ai.EditalChat
	Detail      *pncp.DetailClient
	S3          *storage.S3Client
	Config      *config.Config

	adminSecret string
}

func NewServer(pool *pgxpool.Pool, cfg *config.Config) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	store := db.NewStore(pool)
	aiClient := ai.NewOpenRouterClient(cfg.OpenRouterAPIKey)
	detail := pncp.NewDetailClient()

	classifier := &ai.Classifier{Client: aiClient, Model: cfg.FilterModel}
	runner := ingest.NewRunner(store, pncp.NewClient(), classifier, cfg.IABatchSize)
	analyzer := edital.NewAnalyzer(store, aiClient, detail, cfg.AnalysisModel, cfg.FallbackModel, cfg.PDFEngine)
	chat := &ai.EditalChat{
		Client:        aiClient,
		Model:         cfg.ChatModel,
		FallbackModel: cfg.FallbackModel,
		PDFEngine:     cfg.PDFEngine,
	}

	s := &Server{
		Echo:        e,
		Store:       store,
		AuthService: auth.NewService(pool),
		Runner:      runner,
		Analyzer:    analyzer,
		Chat:        chat,
		Detail:      detail,
		Config:      cfg,
		adminSecret: resolveAdminSecret(cfg.AdminSecret),
	}

	s.routes()
	return s
}

func resolveAdminSecret(configured string) string {
	if secret := strings.TrimSpace(configured); secret != "" {
		return secret
	}
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("[API] failed to generate ADMIN_SECRET fallback: %v", err)
	}
	log.Print("[API] ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	return base64.RawURLEncoding.EncodeToString(buf)
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api/v1")

	// Auth
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	// Tenders
	api.GET("/licitacoes", s.handleListLicitacoes)
	api.GET("/licitacoes/:id", s.handleGetLicitacao)
	api.GET("/licitacoes/controle/:numero", s.handleGetLicitacaoByControle)
	api.GET("/licitacoes/:id/detalhes", s.handleGetDetalhes)
	api.GET("/licitacoes/:id/edital", s.handleGetEditalAnalysis)

	// Mutations require a logged-in user.
	authed := api.Group("", auth.Middleware)
	authed.GET("/auth/me", s.handleMe)
	authed.PATCH("/licitacoes/:id", s.handlePatchLicitacao)
	authed.POST("/profiles", s.handleCreateProfile)
	authed.PATCH("/profiles/:id", s.handleUpdateProfile)
	authed.DELETE("/profiles/:id", s.handleDeleteProfile)

	api.GET("/profiles", s.handleListProfiles)

	// Run history
	api.GET("/runs", s.handleListRuns)

	// Catalogue
	api.GET("/modalidades", s.handleListModalidades)

	// Operational endpoints behind the admin secret
	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/search/run", s.handleRunSearch)
	admin.POST("/ia/classify", s.handleClassifyPending)

	// Model-backed analysis of a specific edital
	api.POST("/ia/edital", s.handleAnalyzeEdital)
	api.POST("/ia/edital/chat", s.handleEditalChat)
	api.POST("/ia/edital/upload", s.handleEditalUpload)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// -- Auth --------------------------------------------------------------------

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.Email == "" || len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Email and a password of at least 8 characters are required"})
	}

	resp, err := s.AuthService.Signup(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCreds) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMe(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	user, err := s.AuthService.GetUser(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "User not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, user)
}

// -- Tenders -----------------------------------------------------------------

func (s *Server) handleListLicitacoes(c echo.Context) error {
	params := db.ListParams{
		Query:  c.QueryParam("q"),
		UF:     c.QueryParam("uf"),
		SortBy: c.QueryParam("sort"),
		Limit:  20,
	}

	if raw := c.QueryParam("status_interno"); raw != "" {
		status, err := models.ParseStatusInterno(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		params.StatusInterno = &status
	}
	if raw := c.QueryParam("vai_participar"); raw != "" {
		val := raw == "true"
		params.VaiParticipar = &val
	}
	if raw := c.QueryParam("needs_review"); raw != "" {
		val := raw == "true"
		params.NeedsReview = &val
	}
	if raw := c.QueryParam("is_viewed"); raw != "" {
		val := raw == "true"
		params.IsViewed = &val
	}
	if c.QueryParam("relevantes") == "true" {
		params.OnlyRelevant = true
	}
	if raw := c.QueryParam("min_score"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			params.MinScore = v
		}
	}
	if raw := c.QueryParam("profile_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid profile_id"})
		}
		params.SearchConfigID = &id
	}
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		params.Limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		params.Offset = o
	}

	result, err := s.Store.ListLicitacoes(c.Request().Context(), params)
	if err != nil {
		c.Logger().Errorf("Failed to list licitacoes: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetLicitacao(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}

	l, err := s.Store.GetLicitacao(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, l)
}

// handleGetLicitacaoByControle looks a tender up by its PNCP control
// number, the identifier users see on the portal itself.
func (s *Server) handleGetLicitacaoByControle(c echo.Context) error {
	numero := strings.TrimSpace(c.Param("numero"))
	if numero == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Control number is required"})
	}

	l, err := s.Store.GetLicitacaoByControle(c.Request().Context(), numero)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, l)
}

type patchLicitacaoRequest struct {
	IsViewed          *bool                   `json:"is_viewed"`
	VaiParticipar     *bool                   `json:"vai_participar"`
	StatusInterno     *string                 `json:"status_interno"`
	DataLimiteInterna *string                 `json:"data_limite_interna"`
	GestaoChecklist   *[]models.ChecklistItem `json:"gestao_checklist"`
	Anotacoes         *string                 `json:"anotacoes"`
}

func (s *Server) handlePatchLicitacao(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}

	var req patchLicitacaoRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	ctx := c.Request().Context()

	// The triage status mutates through its own path so the trash-can
	// side effect (clearing vai_participar) cannot be bypassed.
	if req.StatusInterno != nil {
		status, err := models.ParseStatusInterno(*req.StatusInterno)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		if _, err := s.Store.UpdateStatusInterno(ctx, id, status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
			}
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}

	patch := db.LicitacaoPatch{
		IsViewed:          req.IsViewed,
		VaiParticipar:     req.VaiParticipar,
		DataLimiteInterna: req.DataLimiteInterna,
		Anotacoes:         req.Anotacoes,
	}
	if req.GestaoChecklist != nil {
		patch.HasChecklist = true
		patch.GestaoChecklist = *req.GestaoChecklist
	}

	l, err := s.Store.UpdateLicitacao(ctx, id, patch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, l)
}

// handleGetDetalhes fetches the structured detail from the portal and
// caches the document list along the way.
func (s *Server) handleGetDetalhes(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}

	ctx := c.Request().Context()
	l, err := s.Store.GetLicitacao(ctx, id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}

	cnpj, ano, seq := controlPartsOf(l.NumeroControlePNCP)
	if cnpj == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "Tender has no parseable control number"})
	}

	compra, err := s.Detail.FetchCompra(ctx, cnpj, ano, seq)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": fmt.Sprintf("portal detail unavailable: %v", err)})
	}

	itens, err := s.Detail.FetchItens(ctx, cnpj, ano, seq)
	if err != nil {
		log.Printf("[API] itens for %s: %v", l.NumeroControlePNCP, err)
	}
	historico, err := s.Detail.FetchHistorico(ctx, cnpj, ano, seq)
	if err != nil {
		log.Printf("[API] historico for %s: %v", l.NumeroControlePNCP, err)
	}

	arquivos, err := s.Detail.FetchArquivos(ctx, cnpj, ano, seq)
	if err != nil {
		log.Printf("[API] arquivos for %s: %v", l.NumeroControlePNCP, err)
	}
	docs := make([]models.DocumentoPNCP, 0, len(arquivos))
	for _, arq := range arquivos {
		doc := models.DocumentoPNCP{
			LicitacaoID:       l.ID,
			Tipo:              arq.Tipo,
			TipoDocumentoNome: arq.TipoDocumentoNome,
			NomeArquivo:       arq.NomeArquivo,
			URLPNCP:           arq.URL(),
		}
		if doc.NomeArquivo == "" {
			doc.NomeArquivo = arq.Titulo
		}
		docs = append(docs, doc)
	}
	if len(docs) > 0 {
		if err := s.Store.UpsertDocumentos(ctx, l.ID, docs); err != nil {
			log.Printf("[API] caching documentos for %s: %v", l.NumeroControlePNCP, err)
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"licitacao": l,
		"compra":    compra,
		"itens":     itens,
		"arquivos":  docs,
		"historico": historico,
	})
}

func controlPartsOf(numeroControle string) (cnpj, ano, seq string) {
	parts := strings.Split(numeroControle, "-")
	if len(parts) != 3 {
		return "", "", ""
	}
	seqAno := strings.Split(parts[2], "/")
	if len(seqAno) != 2 {
		return "", "", ""
	}
	return parts[0], seqAno[1], seqAno[0]
}

// -- Profiles ----------------------------------------------------------------

type profileRequest struct {
	Name        string   `json:"name"`
	Keywords    []string `json:"keywords"`
	States      []string `json:"states"`
	Modalidades []int    `json:"modalidades"`
	IsActive    *bool    `json:"is_active"`
}

func (s *Server) handleListProfiles(c echo.Context) error {
	profiles, err := s.Store.ListProfiles(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, profiles)
}

func (s *Server) handleCreateProfile(c echo.Context) error {
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Name is required"})
	}

	profile := &models.SearchProfile{
		Name:        strings.TrimSpace(req.Name),
		Keywords:    cleanStrings(req.Keywords),
		States:      upperStrings(req.States),
		Modalidades: req.Modalidades,
		IsActive:    true,
	}
	if userID, err := auth.UserIDFromContext(c); err == nil {
		profile.UserID = &userID
	}
	if req.IsActive != nil {
		profile.IsActive = *req.IsActive
	}

	if err := s.Store.CreateProfile(c.Request().Context(), profile); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, profile)
}

func (s *Server) handleUpdateProfile(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}

	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	ctx := c.Request().Context()
	profile, err := s.Store.GetProfile(ctx, id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}

	if strings.TrimSpace(req.Name) != "" {
		profile.Name = strings.TrimSpace(req.Name)
	}
	if req.Keywords != nil {
		profile.Keywords = cleanStrings(req.Keywords)
	}
	if req.States != nil {
		profile.States = upperStrings(req.States)
	}
	if req.Modalidades != nil {
		profile.Modalidades = req.Modalidades
	}
	if req.IsActive != nil {
		profile.IsActive = *req.IsActive
	}

	if err := s.Store.UpdateProfile(ctx, profile); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) handleDeleteProfile(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}

	if err := s.Store.DeleteProfile(c.Request().Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func cleanStrings(values []string) []string {
	clean := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	return clean
}

func upperStrings(values []string) []string {
	clean := cleanStrings(values)
	for i, v := range clean {
		clean[i] = strings.ToUpper(v)
	}
	return clean
}

// -- Runs and catalogue ------------------------------------------------------

func (s *Server) handleListRuns(c echo.Context) error {
	limit := 50
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	logs, err := s.Store.ListRunLogs(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, logs)
}

func (s *Server) handleListModalidades(c echo.Context) error {
	modalidades, err := pncp.LoadModalidades()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, modalidades)
}

// -- Operational endpoints ---------------------------------------------------

func (s *Server) handleRunSearch(c echo.Context) error {
	ctx := c.Request().Context()
	summary, err := s.Runner.RunAll(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	// New tenders land unscored; drain the classification queue so a
	// run leaves everything scored, the way a manual run behaves.
	classified := 0
	for batch := 0; batch < maxClassifyBatchesPerRun; batch++ {
		outcomes, err := s.Runner.ClassifyPending(ctx, nil)
		if err != nil {
			log.Printf("[API] classification after run failed: %v", err)
			break
		}
		succeeded := 0
		for _, o := range outcomes {
			if o.Status == "classified" {
				succeeded++
			}
		}
		classified += succeeded
		// Failed rows keep a NULL score and would be re-selected next
		// batch; when nothing succeeded the queue cannot shrink, so a
		// model outage must not spin the loop.
		if succeeded == 0 {
			break
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":    "Search run complete",
		"summary":    summary,
		"classified": classified,
	})
}

const maxClassifyBatchesPerRun = 40

type classifyRequest struct {
	SearchConfigID string `json:"search_config_id"`
}

func (s *Server) handleClassifyPending(c echo.Context) error {
	var req classifyRequest
	_ = c.Bind(&req)

	var profileID *uuid.UUID
	if req.SearchConfigID != "" {
		id, err := uuid.Parse(req.SearchConfigID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid search_config_id"})
		}
		profileID = &id
	}

	outcomes, err := s.Runner.ClassifyPending(c.Request().Context(), profileID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":  "Classification batch complete",
		"outcomes": outcomes,
	})
}

// -- Edital analysis ---------------------------------------------------------

type analyzeEditalRequest struct {
	LicitacaoID string   `json:"licitacao_id"`
	UploadURL   string   `json:"upload_url"`
	Keywords    []string `json:"keywords"`
}

func (s *Server) handleAnalyzeEdital(c echo.Context) error {
	var req analyzeEditalRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	id, err := uuid.Parse(req.LicitacaoID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid licitacao_id"})
	}

	analysis, err := s.Analyzer.Analyze(c.Request().Context(), id, s.keywordsForTender(c, id, req.Keywords), req.UploadURL)
	if err != nil {
		switch {
		case errors.Is(err, edital.ErrDocumentNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.Is(err, edital.ErrNotAPdf):
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, analysis)
}

func (s *Server) handleGetEditalAnalysis(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}

	analysis, err := s.Store.GetEditalAnalysis(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "No analysis for this tender"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, analysis)
}

type editalChatRequest struct {
	LicitacaoID string        `json:"licitacao_id"`
	Question    string        `json:"question"`
	History     []ai.ChatTurn `json:"history"`
	PDFURL      string        `json:"pdf_url"`
}

func (s *Server) handleEditalChat(c echo.Context) error {
	var req editalChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if strings.TrimSpace(req.Question) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Question is required"})
	}
	id, err := uuid.Parse(req.LicitacaoID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid licitacao_id"})
	}

	ctx := c.Request().Context()
	analysisJSON := ""
	if analysis, err := s.Store.GetEditalAnalysis(ctx, id); err == nil && len(analysis.RawJSON) > 0 {
		analysisJSON = string(analysis.RawJSON)
	}

	// The attachment only goes to the model after it checked out as a
	// real PDF, encoded the same way the analysis pipeline encodes it.
	pdfDataURL := ""
	if strings.TrimSpace(req.PDFURL) != "" {
		pdfDataURL, err = s.Analyzer.FetchPDFDataURL(ctx, strings.TrimSpace(req.PDFURL))
		if err != nil {
			if errors.Is(err, edital.ErrNotAPdf) {
				return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			}
			return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
		}
	}

	answer, err := s.Chat.Ask(ctx, analysisJSON, req.History, req.Question, pdfDataURL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"answer": answer})
}

// handleEditalUpload accepts a PDF from the user, stores it, and runs
// the analysis against the uploaded copy.
func (s *Server) handleEditalUpload(c echo.Context) error {
	if s.S3 == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "File uploads are not configured"})
	}

	id, err := uuid.Parse(c.FormValue("licitacao_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid licitacao_id"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "A PDF file is required"})
	}
	f, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unable to read uploaded file"})
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.Analyzer.MaxPDFBytes+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unable to read uploaded file"})
	}
	if int64(len(data)) > s.Analyzer.MaxPDFBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "File too large"})
	}
	if err := edital.VerifyPDFBytes(data); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "Uploaded file is not a valid PDF"})
	}

	ctx := c.Request().Context()
	key := fmt.Sprintf("editais/%s/%d.pdf", id, time.Now().Unix())
	url, err := s.S3.UploadPDF(ctx, key, data)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	analysis, err := s.Analyzer.Analyze(ctx, id, s.keywordsForTender(c, id, nil), url)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"uploaded_url": url,
		"analysis":     analysis,
	})
}

// keywordsForTender resolves the keywords for prompts: the explicit
// ones when given, otherwise the originating profile's.
func (s *Server) keywordsForTender(c echo.Context, id uuid.UUID, explicit []string) []string {
	if len(explicit) > 0 {
		return cleanStrings(explicit)
	}
	ctx := c.Request().Context()
	l, err := s.Store.GetLicitacao(ctx, id)
	if err != nil || l.SearchConfigID == nil {
		return nil
	}
	profile, err := s.Store.GetProfile(ctx, *l.SearchConfigID)
	if err != nil {
		return nil
	}
	return profile.Keywords
}

// -- Admin gate --------------------------------------------------------------

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == s.adminSecret {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") && authHeader[7:] == s.adminSecret {
			return next(c)
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}
