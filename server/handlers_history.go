package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/charger-dashboard/history"
)

// Sessions24hHandler summarises the charging sessions of the last 24 hours.
func (s *Server) Sessions24hHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chargerID := r.URL.Query().Get("chargerId")
		if chargerID == "" {
			writeError(w, http.StatusBadRequest, "chargerId is required")
			return
		}

		source := s.sourceFor(sessionFrom(r.Context()))
		window, err := cached(s, cacheKeySessions24h+chargerID, s.config.GetHistoryTTL(), func() (history.Window, error) {
			from, to := history.LastDay(time.Now())
			return source.window(r.Context(), chargerID, from, to)
		})
		if err != nil {
			writeUpstreamError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, window)
	}
}

// SessionsRangeHandler summarises the charging sessions between the from and to query values.
func (s *Server) SessionsRangeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		chargerID := query.Get("chargerId")
		from, to := query.Get("from"), query.Get("to")
		if chargerID == "" {
			writeError(w, http.StatusBadRequest, "chargerId is required")
			return
		}

		fromTime, fromErr := history.ParseISO(from)
		toTime, toErr := history.ParseISO(to)
		if from == "" || to == "" || fromErr != nil || toErr != nil {
			writeError(w, http.StatusBadRequest, "from and to are required ISO timestamps")
			return
		}
		if fromTime.After(toTime) {
			writeError(w, http.StatusBadRequest, "from must not be after to")
			return
		}

		source := s.sourceFor(sessionFrom(r.Context()))
		key := cacheKeySessionsRange + chargerID + ":" + from + ":" + to
		window, err := cached(s, key, s.config.GetHistoryTTL(), func() (history.Window, error) {
			return source.window(r.Context(), chargerID, from, to)
		})
		if err != nil {
			writeUpstreamError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, window)
	}
}
