package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/charger-dashboard/apierror"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

type okResponse struct {
	OK       bool            `json:"ok"`
	Via      string          `json:"via,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("[writeJSON] failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeUpstreamError reports a failed upstream call through the error mapper.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := apierror.Map(err)
	if mapped.Status >= http.StatusInternalServerError {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("upstream call failed")
	} else {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("upstream call rejected")
	}
	writeError(w, mapped.Status, mapped.Message)
}

// passthrough wraps an upstream body so it is written verbatim.
func passthrough(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
