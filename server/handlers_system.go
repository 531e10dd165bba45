package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) HealthyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}

func (s *Server) MetricsHandler() http.HandlerFunc {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP
}

// PreflightHandler answers OPTIONS requests that CorsMiddleware did not handle.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}
