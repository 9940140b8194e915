// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/store"
	"github.com/jeranaias/rigchat/internal/tools"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// MaxRequestBodySize caps request bodies to prevent abuse (4MB).
	MaxRequestBodySize = 4 * 1024 * 1024

	// MaxMessageCount caps the history length in a chat request.
	MaxMessageCount = 200

	// Version is the server version.
	Version = "1.0.0"
)

// =============================================================================
// SERVER STATS
// =============================================================================

// Stats tracks server usage counters.
type Stats struct {
	TotalRequests int64
	ChatRequests  int64
	TotalTokens   int64
	StartTime     time.Time
}

// NewStats creates a stats tracker anchored at now.
func NewStats() *Stats {
	return &Stats{StartTime: time.Now()}
}

// RecordChat records a completed chat chain.
func (s *Stats) RecordChat(tokens int64) {
	atomic.AddInt64(&s.ChatRequests, 1)
	atomic.AddInt64(&s.TotalTokens, tokens)
}

// RecordRequest records any API request.
func (s *Stats) RecordRequest() {
	atomic.AddInt64(&s.TotalRequests, 1)
}

// Uptime returns how long the server has been running.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// =============================================================================
// SERVER
// =============================================================================

// Server is the HTTP API behind the browser chat UI. It exposes the chat
// stream plus direct access to search, fetch, and the workspace files.
type Server struct {
	cfg    *config.Config
	router *http.ServeMux
	server *http.Server

	client   *ollama.Client
	executor *tools.Executor
	search   *tools.SearchClient
	fetcher  *tools.Fetcher
	files    *store.Store
	stats    *Stats

	mu sync.RWMutex
}

// New creates a server wired to its collaborators. search and fetcher may
// be nil when the corresponding tools are not registered.
func New(cfg *config.Config, client *ollama.Client, executor *tools.Executor, search *tools.SearchClient, fetcher *tools.Fetcher, files *store.Store) *Server {
	s := &Server{
		cfg:      cfg,
		router:   http.NewServeMux(),
		client:   client,
		executor: executor,
		search:   search,
		fetcher:  fetcher,
		files:    files,
		stats:    NewStats(),
	}
	s.setupRoutes()
	return s
}

// SetConfig swaps the active configuration (hot reload).
func (s *Server) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *Server) config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// =============================================================================
// ROUTES
// =============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("GET /api/search", s.handleSearch)
	s.router.HandleFunc("GET /api/fetch", s.handleFetch)

	s.router.HandleFunc("GET /api/files", s.handleListFiles)
	s.router.HandleFunc("GET /api/files/{path...}", s.handleReadFile)
	s.router.HandleFunc("PUT /api/files/{path...}", s.handleWriteFile)
	s.router.HandleFunc("DELETE /api/files/{path...}", s.handleDeleteFile)

	s.router.HandleFunc("GET /api/models", s.handleModels)
	s.router.HandleFunc("GET /api/health", s.handleHealth)
	s.router.HandleFunc("GET /api/stats", s.handleStats)

	s.router.HandleFunc("GET /api/config", s.handleGetConfig)
	s.router.HandleFunc("PUT /api/config", s.handleSetConfig)
}

// Handler returns the full handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	cfg := s.config()

	cors := DefaultCORSConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		cors.AllowedOrigins = cfg.Server.AllowedOrigins
	}

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(log.Default()),
		CORSMiddleware(cors),
	}
	if cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimitMiddleware(NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)))
	}

	return Chain(middlewares...)(s.router)
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// ChatRequest is the browser-facing chat request.
type ChatRequest struct {
	// History is the prior conversation, oldest first.
	History []model.Turn `json:"history,omitempty"`

	// Message is the new user message.
	Message string `json:"message"`

	// Model overrides the configured model when non-empty.
	Model string `json:"model,omitempty"`

	// ForceSearch overrides the configured web-search mode when set.
	ForceSearch *bool `json:"force_search,omitempty"`
}

// chatError is the terminal NDJSON line emitted when the chain fails after
// streaming has begun.
type chatError struct {
	Error string `json:"error"`
}

// handleChat runs one chat chain and streams updates as NDJSON: one JSON
// object per line, the last one carrying done=true.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordRequest()
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("CHAT_BAD_REQUEST | error=%v", err)
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if len(req.History) > MaxMessageCount {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("history exceeds %d turns", MaxMessageCount))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	orch := s.buildOrchestrator(req)
	enc := json.NewEncoder(w)

	var emitMu sync.Mutex
	turn, err := orch.Send(r.Context(), req.History, req.Message, func(update model.Update) {
		emitMu.Lock()
		defer emitMu.Unlock()
		if err := enc.Encode(update); err != nil {
			return
		}
		flusher.Flush()
	})
	if err != nil {
		// Headers are already sent; report the failure in-band.
		log.Printf("CHAT_ERROR | error=%v", err)
		emitMu.Lock()
		enc.Encode(chatError{Error: userFacingError(err)})
		flusher.Flush()
		emitMu.Unlock()
		return
	}

	s.stats.RecordChat(int64(turn.InputTokens + turn.OutputTokens))
}

// buildOrchestrator assembles a per-request orchestrator from the active
// configuration plus request overrides.
func (s *Server) buildOrchestrator(req ChatRequest) *chat.Orchestrator {
	cfg := s.config()

	chatCfg := chat.Config{
		Model:                cfg.Ollama.Model,
		SystemPrompt:         cfg.Chat.SystemPrompt,
		ForceSearch:          cfg.Chat.ForceSearch,
		ForceSearchThreshold: cfg.Chat.ForceSearchThreshold,
		MaxToolCalls:         cfg.Chat.MaxToolCalls,
		Options: &ollama.Options{
			Temperature: cfg.Ollama.Temperature,
			NumPredict:  cfg.Ollama.NumPredict,
			NumCtx:      cfg.Ollama.NumCtx,
		},
	}
	if req.Model != "" {
		chatCfg.Model = req.Model
	}
	if req.ForceSearch != nil {
		chatCfg.ForceSearch = *req.ForceSearch
	}
	if s.executor != nil {
		chatCfg.Tools = s.executor.Registry().Schemas()
	}

	return chat.New(s.client, s.executor, chatCfg)
}

// userFacingError maps backend failures to stable client messages.
func userFacingError(err error) string {
	switch {
	case ollama.IsNotRunning(err):
		return "Ollama is not running"
	case ollama.IsTimeout(err):
		return "request timed out"
	default:
		return err.Error()
	}
}

// =============================================================================
// SEARCH / FETCH HANDLERS
// =============================================================================

// handleSearch handles GET /api/search?q=...&n=...
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordRequest()

	if s.search == nil {
		s.writeError(w, http.StatusServiceUnavailable, "search not configured")
		return
	}

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		s.writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	n := 0
	fmt.Sscanf(r.URL.Query().Get("n"), "%d", &n)

	results, err := s.search.Search(r.Context(), query, n)
	if err != nil {
		log.Printf("SEARCH_ERROR | query=%q error=%v", query, err)
		s.writeError(w, http.StatusBadGateway, "search failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
	})
}

// handleFetch handles GET /api/fetch?url=...
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordRequest()

	if s.fetcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "fetch not configured")
		return
	}

	rawURL := r.URL.Query().Get("url")
	if strings.TrimSpace(rawURL) == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	result, err := s.fetcher.Fetch(r.Context(), rawURL)
	if err != nil {
		log.Printf("FETCH_ERROR | url=%q error=%v", rawURL, err)
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// FILE HANDLERS
// =============================================================================

// fileWriteRequest is the PUT /api/files/{path} body.
type fileWriteRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordRequest()

	if s.files == nil {
		s.writeError(w, http.StatusServiceUnavailable, "file store not configured")
		return
	}

	files, err := s.files.List(r.Context())
	if err != nil {
		log.Printf("FILES_LIST_ERROR | error=%v", err)
		s.writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	total, _ := s.files.TotalSize(r.Context())

	s.writeJSON(w, http.StatusOK, map[string]any{
		"files":       files,
		"total_bytes": total,
	})
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordRequest()

	if s.files == nil {
		s.writeError(w, http.StatusServiceUnavailable, "file store not configured")
		return
	}

	path := r.PathValue("path")
	content, err := s.files.Read(r.Context(), path)
	if err != nil {
		s.writeStoreError(w, path, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"path":    path,
		"content": content,
	})
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordRequest()

	if s.files == nil {
		s.writeError(w, http.StatusServiceUnavailable, "file store not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req fileWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	path := r.PathValue("path")
	if err := s.files.Write(r.Context(), path, req.Content); err != nil {
		s.writeStoreError(w, path, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"path": path,
		"size": len(req.Content),
	})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordRequest()

	if s.files == nil {
		s.writeError(w, http.StatusServiceUnavailable, "file store not configured")
		return
	}

	path := r.PathValue("path")
	if err := s.files.Delete(r.Context(), path); err != nil {
		s.writeStoreError(w, path, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"path": path, "status": "deleted"})
}

// writeStoreError maps store errors to HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, path string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("%s not found", path))
	case errors.Is(err, store.ErrInvalidPath):
		s.writeError(w, http.StatusBadRequest, "invalid path")
	case errors.Is(err, store.ErrQuotaExceeded):
		s.writeError(w, http.StatusRequestEntityTooLarge, "storage quota exceeded")
	default:
		log.Printf("FILES_ERROR | path=%q error=%v", path, err)
		s.writeError(w, http.StatusInternalServerError, "file operation failed")
	}
}

// =============================================================================
// MODELS / HEALTH / STATS HANDLERS
// =============================================================================

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordRequest()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	models, err := s.client.ListModels(ctx)
	if err != nil {
		log.Printf("MODELS_ERROR | error=%v", err)
		s.writeError(w, http.StatusBadGateway, userFacingError(err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"default": s.config().Ollama.Model,
		"models":  models,
	})
}

// HealthResponse is the GET /api/health body.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	OllamaStatus string `json:"ollama_status"`
	Model        string `json:"model"`
	ToolCount    int    `json:"tool_count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordRequest()

	health := HealthResponse{
		Status:  "ok",
		Version: Version,
		Model:   s.config().Ollama.Model,
	}
	if s.executor != nil {
		health.ToolCount = len(s.executor.Registry().Names())
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.client.CheckRunning(ctx); err == nil {
		health.OllamaStatus = "ok"
	} else {
		health.OllamaStatus = "unavailable"
		health.Status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, health)
}

// StatsResponse is the GET /api/stats body.
type StatsResponse struct {
	TotalRequests  int64                   `json:"total_requests"`
	ChatRequests   int64                   `json:"chat_requests"`
	TotalTokens    int64                   `json:"total_tokens"`
	UptimeSeconds  int64                   `json:"uptime_seconds"`
	ToolExecutions []tools.ExecutionRecord `json:"tool_executions,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordRequest()

	resp := StatsResponse{
		TotalRequests: atomic.LoadInt64(&s.stats.TotalRequests),
		ChatRequests:  atomic.LoadInt64(&s.stats.ChatRequests),
		TotalTokens:   atomic.LoadInt64(&s.stats.TotalTokens),
		UptimeSeconds: int64(s.stats.Uptime().Seconds()),
	}
	if s.executor != nil {
		resp.ToolExecutions = s.executor.History()
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// CONFIG HANDLERS
// =============================================================================

// configSetRequest is the PUT /api/config body.
type configSetRequest struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordRequest()
	s.writeJSON(w, http.StatusOK, s.config().Clone())
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordRequest()
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req configSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Key == "" {
		s.writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	// Apply to a clone first so a failed Set or Validate never leaves a
	// half-modified live config.
	next := s.config().Clone()
	if err := next.Set(req.Key, req.Value); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := next.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.SetConfig(next)
	config.SetGlobal(next)

	value, _ := next.Get(req.Key)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"key":   req.Key,
		"value": value,
	})
}

// =============================================================================
// SERVER LIFECYCLE
// =============================================================================

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	cfg := s.config()
	addr := cfg.Server.Addr()

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: chat chains stream for as long as the model
		// generates.
		IdleTimeout: 120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s", addr, Version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | draining connections")
	return s.server.Shutdown(ctx)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
