// Package server exposes the agent over HTTP: a small REST API for session
// state and a websocket endpoint for chat.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nstogner/overseer/pkg/agent"
	"github.com/nstogner/overseer/pkg/model"
	"github.com/nstogner/overseer/pkg/tool"
)

// Server serves the REST API and chat websocket for one agent session.
type Server struct {
	agent    *agent.Agent
	registry *tool.Registry
	provider model.Provider
	srv      *http.Server
}

// New creates a new Server.
func New(a *agent.Agent, registry *tool.Registry, provider model.Provider) *Server {
	return &Server{
		agent:    a,
		registry: registry,
		provider: provider,
	}
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/session", s.handleGetSession)
	mux.HandleFunc("GET /api/usage", s.handleGetUsage)
	mux.HandleFunc("GET /api/transcript", s.handleGetTranscript)
	mux.HandleFunc("GET /api/tools", s.handleListTools)
	mux.HandleFunc("GET /api/models", s.handleListModels)
	mux.HandleFunc("POST /api/cancel", s.handleCancel)

	// WebSocket
	mux.HandleFunc("/api/chat", s.handleChatWebSocket)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.corsMiddleware(mux),
	}

	slog.Info("Starting server", "addr", addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	slog.Error("API Error", "error", err)
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}
