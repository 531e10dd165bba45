package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/charger-dashboard/internal/errors"
	"github.com/jrsteele09/charger-dashboard/sessions"
	"github.com/jrsteele09/charger-dashboard/token"
	"github.com/rs/zerolog/log"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginHandler exchanges the user's Easee credentials for tokens and starts a new session.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || s.validate.Struct(req) != nil {
			writeError(w, http.StatusBadRequest, "username and password are required")
			return
		}

		creds, err := s.accounts.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			writeUpstreamError(w, r, err)
			return
		}
		if creds.AccessToken == "" {
			log.Warn().Err(errors.ErrNoAccessToken).Msg("[LoginHandler] login succeeded without tokens")
			writeError(w, http.StatusBadGateway, "No access token returned from Easee")
			return
		}

		_, err = s.sessions.Create(r.Context(), w, r, sessions.Tokens{
			AccessToken:  creds.AccessToken,
			RefreshToken: creds.RefreshToken,
			ExpiresAt:    token.ExpiresAt(creds, time.Now()),
		})
		if err != nil {
			log.Err(err).Msg("[LoginHandler] failed to start session")
			writeError(w, http.StatusInternalServerError, "Failed to start session")
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.Destroy(r.Context(), w, r); err != nil {
			log.Err(err).Msg("[LogoutHandler] failed to delete session")
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}
