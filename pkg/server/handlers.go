package server

import (
	"net/http"
)

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.agent.Session())
}

func (s *Server) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.agent.Usage())
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.agent.Conversation().Messages())
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.registry.Declarations())
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.provider.List(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, models)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.agent.Cancel()
	w.WriteHeader(http.StatusNoContent)
}
