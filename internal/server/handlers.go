package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"paper-rag/internal/llmservice"
	"paper-rag/internal/rag"

	"github.com/rs/zerolog/hlog"
)

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": "Research paper RAG API",
		"query":   "POST /query",
		"health":  "GET /health",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("health check failed")
			s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TopK <= 0 {
		req.TopK = s.topK
	}

	resp, err := s.querier.Query(r.Context(), req.Question, req.TopK)
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion):
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, llmservice.ErrUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Msg("query failed")
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
