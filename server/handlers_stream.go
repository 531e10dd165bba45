package server

import (
	"net/http"
	"net/url"

	"github.com/jrsteele09/charger-dashboard/stream"
	"github.com/rs/zerolog/log"
)

func (s *Server) newPublisher(r *http.Request, chargerID string) *stream.Publisher {
	return stream.NewPublisher(s.sourceFor(sessionFrom(r.Context())), chargerID, stream.Options{
		Interval:   s.config.GetStreamInterval(),
		HistoryTTL: s.config.GetHistoryTTL(),
		Recorder:   s.metrics,
	})
}

// StreamHandler pushes live updates as Server-Sent Events until the client disconnects.
func (s *Server) StreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chargerID := r.URL.Query().Get("chargerId")
		if chargerID == "" {
			writeError(w, http.StatusBadRequest, "chargerId is required")
			return
		}

		publisher := s.newPublisher(r, chargerID)
		if err := publisher.Run(r.Context(), stream.NewSSESink(w)); err != nil {
			log.Debug().Err(err).Str("charger", chargerID).Msg("[StreamHandler] stream ended")
		}
	}
}

// StreamWebSocketHandler pushes the same events as StreamHandler over a WebSocket.
func (s *Server) StreamWebSocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chargerID := r.URL.Query().Get("chargerId")
		if chargerID == "" {
			writeError(w, http.StatusBadRequest, "chargerId is required")
			return
		}

		sink, ctx, err := stream.AcceptWebSocket(r.Context(), w, r, s.websocketOrigins())
		if err != nil {
			log.Debug().Err(err).Msg("[StreamWebSocketHandler] upgrade failed")
			return
		}
		defer sink.Close()

		publisher := s.newPublisher(r, chargerID)
		if err := publisher.Run(ctx, sink); err != nil {
			log.Debug().Err(err).Str("charger", chargerID).Msg("[StreamWebSocketHandler] stream ended")
		}
	}
}

// websocketOrigins turns the CORS origins into the host patterns the upgrader accepts.
func (s *Server) websocketOrigins() []string {
	var patterns []string
	for origin := range s.config.GetAllowedOrigins() {
		if origin == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
