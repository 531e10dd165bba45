package server

import (
	"encoding/json"
	"net/http"
)

func (s *Server) ChargersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := s.sourceFor(sessionFrom(r.Context()))
		data, err := cached(s, cacheKeyChargers, s.config.GetChargersTTL(), func() (json.RawMessage, error) {
			return source.Chargers(r.Context())
		})
		if err != nil {
			writeUpstreamError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, passthrough(data))
	}
}

func (s *Server) StateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chargerID := r.URL.Query().Get("chargerId")
		if chargerID == "" {
			writeError(w, http.StatusBadRequest, "chargerId is required")
			return
		}

		source := s.sourceFor(sessionFrom(r.Context()))
		data, err := cached(s, cacheKeyState+chargerID, s.config.GetStateTTL(), func() (json.RawMessage, error) {
			return source.State(r.Context(), chargerID)
		})
		if err != nil {
			writeUpstreamError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, passthrough(data))
	}
}

// OngoingSessionHandler returns the charger's ongoing session, or null when there is none.
func (s *Server) OngoingSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chargerID := r.URL.Query().Get("chargerId")
		if chargerID == "" {
			writeError(w, http.StatusBadRequest, "chargerId is required")
			return
		}

		key := cacheKeySession + chargerID
		if v, ok := s.cache.Get(key); ok {
			if data, ok := v.(json.RawMessage); ok {
				writeJSON(w, http.StatusOK, data)
				return
			}
		}

		data, found, err := s.sourceFor(sessionFrom(r.Context())).ongoingSession(r.Context(), chargerID)
		if err != nil {
			writeUpstreamError(w, r, err)
			return
		}
		// "No session" is not cached so a new session shows up on the next poll
		if found {
			s.cache.Set(key, data, s.config.GetOngoingSessionTTL())
		}
		writeJSON(w, http.StatusOK, data)
	}
}
