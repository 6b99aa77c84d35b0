package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hyperjump/embedserve/internal/service"
	"go.uber.org/zap"
)

// ErrorKindHeader carries the error kind on failed scoring responses.
const ErrorKindHeader = "X-Error-Kind"

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	resp := s.scorer.HandleRequest(r.Context(), body)
	if resp.Failed() {
		w.Header().Set(ErrorKindHeader, string(resp.Kind))
		s.logger.Debug("score failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("kind", string(resp.Kind)),
			zap.String("error", resp.Error),
		)
	}
	s.respondJSON(w, statusFor(resp), resp)
}

// statusFor maps a response to an HTTP status. The body is the same either way.
func statusFor(resp service.Response) int {
	if !resp.Failed() {
		return http.StatusOK
	}
	switch resp.Kind {
	case service.KindParse, service.KindValidation:
		return http.StatusBadRequest
	case service.KindUninitialized:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	info := s.scorer.Info()
	if info.State != service.StateReady {
		s.respondJSON(w, http.StatusServiceUnavailable, info)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
