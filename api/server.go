// Package api provides the HTTP REST API server for newsbrief.
//
// It exposes the company analysis endpoint, a health check, and a
// WebSocket stream that announces completed analyses.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seenimoa/newsbrief/internal/config"
	"github.com/seenimoa/newsbrief/internal/pipeline"
)

// Server is the HTTP API server.
type Server struct {
	router chi.Router
	cfg    *config.Config
	orch   *pipeline.Orchestrator
	wsHub  *WSHub
}

// NewServer creates a configured API server with all routes and middleware.
// The orchestrator is assembled by the caller so transports and engines
// stay swappable.
func NewServer(cfg *config.Config, orch *pipeline.Orchestrator) *Server {
	srv := &Server{
		cfg:   cfg,
		orch:  orch,
		wsHub: NewWSHub(),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start WebSocket hub
	go s.wsHub.Run()

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health (also available at /health)
		r.Get("/health", s.handleHealth)

		// Analysis
		r.Post("/analyze", s.handleAnalyze)

		// WebSocket stream of completed analyses
		r.Get("/ws", s.handleWebSocket)
	})

	// Legacy path kept for clients of the original service.
	r.Post("/api/analyze", s.handleAnalyze)

	return r
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the JSON envelope for errors and service endpoints.
// The analyze success body is the report itself, not an envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// AnalyzeRequest is the body for POST /api/v1/analyze.
type AnalyzeRequest struct {
	Name string `json:"name"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":  "ok",
			"version": "dev",
			"clients": s.wsHub.ClientCount(),
		},
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(pipeline.CodeInvalidInput), "invalid request body")
		return
	}

	// RealIP middleware has already rewritten RemoteAddr from the
	// proxy headers, so it identifies the calling client.
	report, err := s.orch.Analyze(r.Context(), req.Name, clientID(r))
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	// Announce to WebSocket subscribers
	s.wsHub.Publish(AnalysisEvent{
		Company:  report.Company,
		Verdict:  report.Verdict,
		Articles: len(report.Articles),
	})

	// The report is the response body; no envelope on success.
	writeJSON(w, http.StatusOK, report)
}

// ============================================================
// Helpers
// ============================================================

// clientID identifies the caller for rate limiting. The port changes
// between connections from the same host, so only the address counts.
func clientID(r *http.Request) string {
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}

// errorStatus maps a pipeline error to an HTTP status and its stable code.
func errorStatus(err error) (int, string) {
	code, ok := pipeline.ErrorCode(err)
	if !ok {
		return http.StatusInternalServerError, ""
	}
	switch code {
	case pipeline.CodeInvalidInput:
		return http.StatusBadRequest, string(code)
	case pipeline.CodeRateLimited:
		return http.StatusTooManyRequests, string(code)
	case pipeline.CodeNoDataFound, pipeline.CodeInferenceFailed:
		return http.StatusBadGateway, string(code)
	default:
		return http.StatusInternalServerError, string(code)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
		Code:    code,
	})
}

// ============================================================
// WebSocket event hub
// ============================================================

// AnalysisEvent announces one completed analysis to stream subscribers.
type AnalysisEvent struct {
	Company  string `json:"company"`
	Verdict  string `json:"verdict"`
	Articles int    `json:"articles"`
}

// WSMessage is the wire frame exchanged with WebSocket clients.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// WSHub fans completed-analysis events out to WebSocket subscribers.
// A client that never subscribes receives every event; subscribing
// narrows its stream to the named companies.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*WSClient]bool
	events     chan AnalysisEvent
	register   chan *WSClient
	unregister chan *WSClient
}

// WSClient is one WebSocket subscriber and its company filter.
type WSClient struct {
	hub  *WSHub
	send chan WSMessage

	mu        sync.Mutex
	companies map[string]bool // lowercased; empty means every company
}

func newWSClient(hub *WSHub) *WSClient {
	return &WSClient{
		hub:       hub,
		send:      make(chan WSMessage, 256),
		companies: make(map[string]bool),
	}
}

// Subscribe narrows the client's stream to include company.
func (c *WSClient) Subscribe(company string) {
	name := strings.ToLower(strings.TrimSpace(company))
	if name == "" {
		return
	}
	c.mu.Lock()
	c.companies[name] = true
	c.mu.Unlock()
}

// wants reports whether the client's filter matches company.
func (c *WSClient) wants(company string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.companies) == 0 {
		return true
	}
	return c.companies[strings.ToLower(company)]
}

// NewWSHub creates a new WebSocket event hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		events:     make(chan AnalysisEvent, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
}

// Run starts the hub event loop.
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.drop(client)
		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

// deliver sends an event to every client whose filter matches its
// company. Clients whose buffers are full are disconnected.
func (h *WSHub) deliver(ev AnalysisEvent) {
	msg := WSMessage{Type: "analysis_complete", Data: ev}

	var slow []*WSClient
	h.mu.RLock()
	for client := range h.clients {
		if !client.wants(ev.Company) {
			continue
		}
		select {
		case client.send <- msg:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.drop(client)
	}
}

// drop removes a client and closes its send channel, once.
func (h *WSHub) drop(client *WSClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

// Publish queues an event for broadcast. Events are dropped rather
// than blocking the analysis path when the hub is saturated.
func (h *WSHub) Publish(ev AnalysisEvent) {
	select {
	case h.events <- ev:
	default:
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub.
func (h *WSHub) Register(client *WSClient) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *WSHub) Unregister(client *WSClient) {
	h.unregister <- client
}
