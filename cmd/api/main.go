// Package main implements the Beacon API server: the HTTP surface in front
// of the Query Executor, Agent Runtime, Chat & Session Store, and Build Job
// Coordinator.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/beaconrag/beacon/engine/agent"
	"github.com/beaconrag/beacon/engine/build"
	"github.com/beaconrag/beacon/engine/chatstore"
	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/engine/embedding"
	"github.com/beaconrag/beacon/engine/llm"
	"github.com/beaconrag/beacon/engine/query"
	"github.com/beaconrag/beacon/engine/vectorstore"
	"github.com/beaconrag/beacon/pkg/authjwt"
	"github.com/beaconrag/beacon/pkg/cache"
	"github.com/beaconrag/beacon/pkg/mid"
	"github.com/beaconrag/beacon/pkg/metrics"
)

// Config holds all environment-based configuration, following cmd/api's
// envOr convention.
type Config struct {
	Port               string
	ProjectID          string
	DatabasePrefix     string
	APIBaseURL         string
	RedisHost          string
	PGHost             string
	PGPort             string
	PGDBName           string
	PGUser             string
	PGPassword         string
	DefaultVectorStore string
	CORSOrigin         string
	Neo4jURL           string
	Neo4jUser          string
	Neo4jPass          string
	QdrantAddr         string
	OllamaURL          string
	NatsURL            string
	JWTSecret          string
	AdminEmail         string
	AdminPasswordHash  string
	SpreadsheetBucket  string
}

func loadConfig() Config {
	origins := strings.Split(envOr("CORS_ALLOW_ORIGINS", "*"), ",")
	return Config{
		Port:               envOr("PORT", "8080"),
		ProjectID:          envOr("PROJECT_ID", "beacon-local"),
		DatabasePrefix:     envOr("DATABASE_PREFIX", "beacon"),
		APIBaseURL:         envOr("API_BASE_URL", "http://localhost:8080"),
		RedisHost:          envOr("REDIS_HOST", "localhost:6379"),
		PGHost:             envOr("PG_HOST", "localhost"),
		PGPort:             envOr("PG_PORT", "5432"),
		PGDBName:           envOr("PG_DBNAME", "beacon"),
		PGUser:             envOr("PG_USER", "beacon"),
		PGPassword:         envOr("PG_PASSWORD", ""),
		DefaultVectorStore: envOr("DEFAULT_VECTOR_STORE", string(domain.VectorStorePgVector)),
		CORSOrigin:         strings.TrimSpace(origins[0]),
		Neo4jURL:           envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:          envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:          envOr("NEO4J_PASS", "password"),
		QdrantAddr:         envOr("QDRANT_ADDR", "localhost:6334"),
		OllamaURL:          envOr("OLLAMA_URL", "http://localhost:11434"),
		NatsURL:            envOr("NATS_URL", nats.DefaultURL),
		JWTSecret:          envOr("JWT_SECRET", "dev-secret-change-me"),
		AdminEmail:         envOr("ADMIN_EMAIL", "admin@beaconrag.dev"),
		AdminPasswordHash:  envOr("ADMIN_PASSWORD_HASH", ""),
		SpreadsheetBucket:  envOr("SPREADSHEET_BUCKET", "beacon-dbquery-exports"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("api server exited with error", "err", err)
		os.Exit(1)
	}
}

// app bundles every wired dependency a handler closure needs.
type app struct {
	cfg         Config
	logger      *slog.Logger
	verifier    *authjwt.Verifier
	issuer      *authjwt.Issuer
	tokens      cache.Tokens
	engines     *chatstore.EngineStore
	jobs        *chatstore.JobStore
	chats       *chatstore.ChatStore
	plans       *chatstore.PlanStore
	nc          *nats.Conn
	executor    *query.Executor
	agents      *agent.Registry
	agentTags   map[string]agent.Tag
	metrics     *metrics.Registry
	buildCount  *metrics.Counter
	queryCount  *metrics.Counter
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(ctx)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisHost})
	defer rdb.Close()
	tokenCache := cache.New(rdb, cache.DefaultTTL)
	embedCache := cache.NewEmbeddings(tokenCache)
	tokens := cache.NewTokens(tokenCache)

	pgDSN := fmt.Sprintf("postgres://%s:%s@%s:%s/%s", cfg.PGUser, cfg.PGPassword, cfg.PGHost, cfg.PGPort, cfg.PGDBName)
	pgPool, err := pgxpool.New(ctx, pgDSN)
	if err != nil {
		return fmt.Errorf("pg pool: %w", err)
	}
	defer pgPool.Close()

	qdrantStore, err := vectorstore.NewQdrantStore(cfg.QdrantAddr)
	if err != nil {
		logger.Warn("qdrant unavailable, ann-backed engines will fail at build/query time", "err", err)
	}
	pgvectorStore := vectorstore.NewPgVectorStore(pgPool)
	storeRouter := vectorstore.NewRouter(qdrantStore, pgvectorStore)

	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		logger.Warn("nats unavailable, builds cannot be enqueued", "err", err)
	} else {
		defer nc.Close()
	}

	embedClient := embedding.NewOllamaClient(cfg.OllamaURL, map[string]int{
		"text-embedding-a": 768,
		"nomic-embed-text": 768,
	})
	batcher := embedding.NewBatcher(embedClient, embedding.DefaultBatcherConfig)
	chatClient := llm.NewOllamaChatClient(cfg.OllamaURL)

	engines := chatstore.NewEngineStore(neo4jDriver)
	jobs := chatstore.NewJobStore(neo4jDriver)
	chats := chatstore.NewChatStore(neo4jDriver)
	plans := chatstore.NewPlanStore(neo4jDriver)

	queryOpts := query.DefaultOptions()
	queryOpts.StoreFor = func(e domain.QueryEngine) vectorstore.Store { return storeRouter.For(e.VectorStore) }
	executor := query.New(batcher, pgvectorStore, chatClient, embedCache, queryOpts)

	var sheetWriter agent.SpreadsheetURLFunc
	if awsCfg, err := awsconfig.LoadDefaultConfig(ctx); err != nil {
		logger.Warn("aws config unavailable, dbquery agent will not export spreadsheets", "err", err)
	} else {
		sheetWriter = agent.NewS3SpreadsheetWriter(s3.NewFromConfig(awsCfg), cfg.SpreadsheetBucket)
	}

	agents, agentTags := buildAgentRegistry(chatClient, executor, engines, plans, pgPool, sheetWriter)

	verifier := authjwt.NewVerifier([]byte(cfg.JWTSecret), tokens, authjwt.Options{})
	issuer := authjwt.NewIssuer([]byte(cfg.JWTSecret))

	reg := metrics.New()
	buildCount := reg.Counter("beacon_builds_total", "total build jobs created")
	queryCount := reg.Counter("beacon_queries_total", "total engine queries served")

	a := &app{
		cfg:         cfg,
		logger:      logger,
		verifier:    verifier,
		issuer:      issuer,
		tokens:      tokens,
		engines:     engines,
		jobs:        jobs,
		chats:       chats,
		plans:       plans,
		nc:          nc,
		executor:    executor,
		agents:      agents,
		agentTags:   agentTags,
		metrics:     reg,
		buildCount:  buildCount,
		queryCount:  queryCount,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/sign-in/credentials", a.handleSignIn)
	mux.HandleFunc("POST /auth/token/refresh", a.handleTokenRefresh)
	mux.HandleFunc("GET /auth/validate", a.handleValidate)
	mux.HandleFunc("GET /engines", a.handleListEngines)
	mux.HandleFunc("POST /engines", a.handleBuildEngine)
	mux.HandleFunc("GET /jobs/{id}", a.handleJobStatus)
	mux.HandleFunc("POST /engines/{id}/query", a.handleQueryEngine)
	mux.HandleFunc("POST /chats", a.handleCreateChat)
	mux.HandleFunc("POST /chats/{id}/generate", a.handleContinueChat)
	mux.HandleFunc("POST /agents/{name}/run", a.handleRunAgent)
	mux.HandleFunc("GET /metrics", a.handleMetrics)

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("beacon-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("beacon api starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// buildAgentRegistry wires the five Agent Runtime variants per spec.md §4.7
// / §9: Routing dispatches by tag to Chat, Plan, DBQuery, and RAG, never by
// runtime type switch.
func buildAgentRegistry(chatClient llm.ChatClient, executor *query.Executor, engines *chatstore.EngineStore, plans *chatstore.PlanStore, pgPool *pgxpool.Pool, sheetWriter agent.SpreadsheetURLFunc) (*agent.Registry, map[string]agent.Tag) {
	registry := agent.NewRegistry()

	chatAgent := agent.NewChatAgent(chatClient, "llama3")
	registry.Register(agent.TagChat, chatAgent)

	tools := []domain.Tool{
		{Name: "gmail tool", Description: "send an email", InputSchema: `{"to":"string","subject":"string","body":"string"}`, OutputSchema: `{"sent":"bool"}`},
		{Name: "calendar tool", Description: "create a calendar reminder", InputSchema: `{"title":"string","when":"string"}`, OutputSchema: `{"event_id":"string"}`},
	}
	planAgent := agent.NewPlanAgent(chatClient, "llama3", tools, func(ctx context.Context, p domain.Plan) error {
		return plans.Save(ctx, p)
	})
	registry.Register(agent.TagPlan, planAgent)

	dbAgent := agent.NewDBQueryAgent(chatClient, "llama3", pgPool, "analytics", sheetWriter)
	registry.Register(agent.TagDBQuery, dbAgent)

	ragAgent := agent.NewRAGAgent(executor, func(ctx context.Context, id string) (domain.QueryEngine, error) {
		return engines.Get(ctx, id)
	}, "", query.DefaultOptions().TopK)
	registry.Register(agent.TagRAG, ragAgent)

	routingAgent := agent.NewRoutingAgent(registry, chatClient, "llama3")
	registry.Register("routing", routingAgent)

	tags := map[string]agent.Tag{
		"Router":   "", // dispatched straight to the "routing" registry entry, see runChatTurn/handleRunAgent
		"Chat":     agent.TagChat,
		"Planner":  agent.TagPlan,
		"DBAgent":  agent.TagDBQuery,
		"RAGAgent": agent.TagRAG,
	}
	return registry, tags
}

// --- Envelope ---

// envelope is the uniform response shape from spec.md §7:
// {success, message, data}.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "ok", Data: data})
}

func writeCreated(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "created", Data: data})
}

func writeErr(w http.ResponseWriter, err error) {
	appErr := domain.AsAppError(err)
	writeJSON(w, appErr.Code.HTTPStatus(), envelope{Success: false, Message: appErr.Message, Data: map[string]any{}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// --- Auth helpers ---

// bearerToken extracts the raw token from the Authorization header, the
// spec.md §6 identity contract every protected request must present.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// requireIdentity validates the bearer token on r, writing the uniform
// "Token not found" 400 spec.md §8 scenario 4 demands when none is present,
// and the taxonomy-mapped error otherwise.
func (a *app) requireIdentity(w http.ResponseWriter, r *http.Request) (cache.VerifiedIdentity, bool) {
	raw, ok := bearerToken(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Token not found", Data: map[string]any{}})
		return cache.VerifiedIdentity{}, false
	}
	identity, err := a.verifier.Verify(r.Context(), raw)
	if err != nil {
		writeErr(w, err)
		return cache.VerifiedIdentity{}, false
	}
	return identity, true
}

// --- Auth handlers ---

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *app) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, domain.New(domain.CodeValidation, "malformed request body"))
		return
	}
	if req.Email != a.cfg.AdminEmail || a.cfg.AdminPasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(a.cfg.AdminPasswordHash), []byte(req.Password)) != nil {
		writeErr(w, domain.New(domain.CodeAuthUnauthenticated, "invalid email or password"))
		return
	}
	identity := cache.VerifiedIdentity{UserID: uuid.NewString(), Email: req.Email, Status: "active", UserType: "admin"}
	tokens, err := a.issuer.Issue(identity)
	if err != nil {
		writeErr(w, domain.Wrap(domain.CodeInternal, err, "issuing tokens"))
		return
	}
	writeOK(w, tokens)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *app) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, domain.New(domain.CodeValidation, "malformed request body"))
		return
	}
	tokens, err := a.issuer.Refresh(req.RefreshToken)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, tokens)
}

func (a *app) handleValidate(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	writeOK(w, identity)
}

// --- Engine handlers ---

func (a *app) handleListEngines(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireIdentity(w, r); !ok {
		return
	}
	list, err := a.engines.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, list)
}

type buildEngineRequest struct {
	EngineName     string `json:"engine_name"`
	SourceURL      string `json:"source_url"`
	EmbeddingModel string `json:"embedding_model"`
	VectorStore    string `json:"vector_store"`
	Depth          int    `json:"depth"`
	Description    string `json:"description"`
	Multimodal     bool   `json:"multimodal"`
}

func (a *app) handleBuildEngine(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	var req buildEngineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, domain.New(domain.CodeValidation, "malformed request body"))
		return
	}
	vsKind := domain.VectorStoreKind(req.VectorStore)
	if vsKind == "" {
		vsKind = domain.VectorStoreKind(a.cfg.DefaultVectorStore)
	}
	breq := domain.BuildRequest{
		EngineName:     req.EngineName,
		SourceURL:      req.SourceURL,
		EmbeddingModel: req.EmbeddingModel,
		VectorStore:    vsKind,
		Depth:          req.Depth,
		Description:    req.Description,
		OwnerUserID:    identity.UserID,
		Multimodal:     req.Multimodal,
	}
	if err := domain.ValidateBuildRequest(breq); err != nil {
		writeErr(w, err)
		return
	}

	engine := domain.QueryEngine{
		ID:             uuid.NewString(),
		Name:           breq.EngineName,
		Description:    breq.Description,
		EmbeddingModel: breq.EmbeddingModel,
		VectorStore:    breq.VectorStore,
		Multimodal:     breq.Multimodal,
		OwnerUserID:    breq.OwnerUserID,
		State:          domain.EngineCreated,
		DepthLimit:     breq.Depth,
		SourceURL:      breq.SourceURL,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := domain.ValidateQueryEngine(engine); err != nil {
		writeErr(w, err)
		return
	}
	if _, err := a.engines.Create(r.Context(), engine); err != nil {
		writeErr(w, domain.Wrap(domain.CodeConflict, err, "creating query engine %s", engine.Name))
		return
	}

	job := domain.BuildJob{
		ID:            uuid.NewString(),
		QueryEngineID: engine.ID,
		Request:       breq,
		Status:        domain.JobPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if _, err := a.jobs.Create(r.Context(), job); err != nil {
		writeErr(w, domain.Wrap(domain.CodeInternal, err, "creating build job"))
		return
	}

	if err := domain.TransitionEngine(&engine, domain.EngineBuilding); err != nil {
		writeErr(w, err)
		return
	}
	_ = a.engines.Save(r.Context(), engine)
	if err := domain.TransitionJob(&job, domain.JobRunning); err != nil {
		writeErr(w, err)
		return
	}
	_ = a.jobs.Save(r.Context(), job)

	if a.nc == nil {
		writeErr(w, domain.New(domain.CodeVectorStoreUnavailable, "build queue unavailable"))
		return
	}
	if err := build.EnqueueBuild(r.Context(), a.nc, engine, job); err != nil {
		writeErr(w, domain.Wrap(domain.CodeInternal, err, "enqueueing build"))
		return
	}
	a.buildCount.Inc()
	writeCreated(w, job)
}

func (a *app) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireIdentity(w, r); !ok {
		return
	}
	id := r.PathValue("id")
	job, err := a.jobs.Get(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, job)
}

// --- Query handler ---

type queryRequest struct {
	Prompt string `json:"prompt"`
	// K is a pointer so an omitted field (use the executor's default TopK)
	// is distinguishable from an explicit "k": 0 (return no references).
	K       *int   `json:"k"`
	ChatID  string `json:"chat_id"`
	ModelID string `json:"model_id"`
}

type queryResponse struct {
	Response   string                   `json:"response"`
	References []domain.QueryReference `json:"references"`
}

func (a *app) handleQueryEngine(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireIdentity(w, r); !ok {
		return
	}
	engineID := r.PathValue("id")
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, domain.New(domain.CodeValidation, "malformed request body"))
		return
	}
	if err := domain.ValidatePrompt(req.Prompt); err != nil {
		writeErr(w, err)
		return
	}

	engine, err := a.engines.Get(r.Context(), engineID)
	if err != nil {
		writeErr(w, err)
		return
	}

	var history []query.HistoryEntry
	if req.ChatID != "" {
		entries, err := a.chats.GetHistory(r.Context(), req.ChatID)
		if err == nil {
			history = toHistory(entries)
		}
	}

	answer, err := a.executor.Query(r.Context(), engine, req.Prompt, req.K, history, req.ModelID)
	if err != nil {
		writeErr(w, err)
		return
	}
	a.queryCount.Inc()

	if req.ChatID != "" {
		a.appendQueryTurn(r.Context(), req.ChatID, req.Prompt, answer)
	}

	writeOK(w, queryResponse{Response: answer.Text, References: answer.References})
}

func (a *app) appendQueryTurn(ctx context.Context, chatID, prompt string, answer query.Answer) {
	now := time.Now()
	human, _ := json.Marshal(map[string]string{"text": prompt})
	_ = a.chats.AppendEntry(ctx, chatID, domain.ChatEntry{Kind: domain.EntryHumanText, Payload: human, Timestamp: now})

	ai, _ := json.Marshal(map[string]string{"text": answer.Text})
	_ = a.chats.AppendEntry(ctx, chatID, domain.ChatEntry{Kind: domain.EntryAIText, Payload: ai, Timestamp: now})

	refs, _ := json.Marshal(answer.References)
	_ = a.chats.AppendEntry(ctx, chatID, domain.ChatEntry{Kind: domain.EntryQueryRefs, Payload: refs, Timestamp: now})
}

func toHistory(entries []domain.ChatEntry) []query.HistoryEntry {
	var out []query.HistoryEntry
	for _, e := range entries {
		var payload struct {
			Text string `json:"text"`
		}
		switch e.Kind {
		case domain.EntryHumanText:
			if json.Unmarshal(e.Payload, &payload) == nil {
				out = append(out, query.HistoryEntry{Role: "human", Text: payload.Text})
			}
		case domain.EntryAIText:
			if json.Unmarshal(e.Payload, &payload) == nil {
				out = append(out, query.HistoryEntry{Role: "ai", Text: payload.Text})
			}
		}
	}
	return out
}

// --- Chat handlers ---

type createChatRequest struct {
	AgentName string `json:"agent_name"`
	Prompt    string `json:"prompt"`
}

func (a *app) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, domain.New(domain.CodeValidation, "malformed request body"))
		return
	}
	if req.AgentName == "" {
		req.AgentName = "Chat"
	}
	chat, err := a.chats.CreateChat(r.Context(), identity.UserID, req.AgentName)
	if err != nil {
		writeErr(w, err)
		return
	}
	if req.Prompt != "" {
		a.runChatTurn(r.Context(), &chat, req.AgentName, req.Prompt)
	}
	writeCreated(w, chat)
}

type continueChatRequest struct {
	Prompt  string `json:"prompt"`
	LLMType string `json:"llm_type"`
}

func (a *app) handleContinueChat(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireIdentity(w, r); !ok {
		return
	}
	chatID := r.PathValue("id")
	var req continueChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, domain.New(domain.CodeValidation, "malformed request body"))
		return
	}
	if err := domain.ValidatePrompt(req.Prompt); err != nil {
		writeErr(w, err)
		return
	}

	entries, err := a.chats.GetHistory(r.Context(), chatID)
	if err != nil {
		writeErr(w, err)
		return
	}
	before := len(entries)

	chat := domain.UserChat{ID: chatID, Entries: entries}
	a.runChatTurn(r.Context(), &chat, chat.AgentName, req.Prompt)

	after, err := a.chats.GetHistory(r.Context(), chatID)
	if err != nil {
		writeErr(w, err)
		return
	}
	appended := after
	if before <= len(after) {
		appended = after[before:]
	}
	writeOK(w, appended)
}

// runChatTurn dispatches prompt through the Agent Runtime variant named by
// agentName, appending the resulting HumanText/AIText pair to chat.ID.
func (a *app) runChatTurn(ctx context.Context, chat *domain.UserChat, agentName, prompt string) {
	tag, ok := a.agentTags[agentName]
	var ag agent.Agent
	var err error
	if ok && tag != "" {
		ag, err = a.agents.For(tag)
	} else {
		ag, err = a.agents.For("routing")
	}
	if err != nil {
		a.logger.Error("chat: no agent available", "agent_name", agentName, "err", err)
		return
	}

	history := toHistory(chat.Entries)
	runHistory := make([]agent.HistoryEntry, len(history))
	for i, h := range history {
		runHistory[i] = agent.HistoryEntry{Role: h.Role, Text: h.Text}
	}

	out, err := ag.Run(ctx, agent.Input{Prompt: prompt, ChatID: chat.ID, History: runHistory})
	now := time.Now()
	human, _ := json.Marshal(map[string]string{"text": prompt})
	_ = a.chats.AppendEntry(ctx, chat.ID, domain.ChatEntry{Kind: domain.EntryHumanText, Payload: human, Timestamp: now})
	if err != nil {
		a.logger.Error("chat: agent run failed", "chat_id", chat.ID, "err", err)
		return
	}
	ai, _ := json.Marshal(map[string]string{"text": out.Text})
	_ = a.chats.AppendEntry(ctx, chat.ID, domain.ChatEntry{Kind: domain.EntryAIText, Payload: ai, Timestamp: now})
	if out.PlanID != "" {
		planRef, _ := json.Marshal(map[string]string{"plan_id": out.PlanID})
		_ = a.chats.AppendEntry(ctx, chat.ID, domain.ChatEntry{Kind: domain.EntryPlanRef, Payload: planRef, Timestamp: now})
	}
}

// --- Agent handler ---

type runAgentRequest struct {
	Prompt string `json:"prompt"`
}

type runAgentResponse struct {
	Output string `json:"output"`
	PlanID string `json:"plan_id,omitempty"`
}

func (a *app) handleRunAgent(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	var req runAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, domain.New(domain.CodeValidation, "malformed request body"))
		return
	}
	if err := domain.ValidatePrompt(req.Prompt); err != nil {
		writeErr(w, err)
		return
	}

	tag, ok := a.agentTags[name]
	var ag agent.Agent
	var err error
	if ok && tag != "" {
		ag, err = a.agents.For(tag)
	} else if name == "Router" {
		ag, err = a.agents.For("routing")
	} else {
		writeErr(w, domain.New(domain.CodeNotFound, "no agent named %q", name))
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}

	out, err := ag.Run(r.Context(), agent.Input{Prompt: req.Prompt, UserID: identity.UserID})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, runAgentResponse{Output: out.Text, PlanID: out.PlanID})
}

// --- Metrics ---

func (a *app) handleMetrics(w http.ResponseWriter, r *http.Request) {
	a.metrics.Handler().ServeHTTP(w, r)
}
