package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/charger-dashboard/easee"
	"github.com/jrsteele09/charger-dashboard/token"
)

type chargerRequest struct {
	ChargerID string `json:"chargerId" validate:"required"`
}

type setCurrentRequest struct {
	ChargerID string   `json:"chargerId" validate:"required"`
	Current   *float64 `json:"current" validate:"required"`
}

// setCurrentStrategy is one upstream route for changing the charging current.
type setCurrentStrategy struct {
	via  string
	call func(c *easee.Client, ctx context.Context, chargerID string, current float64) (json.RawMessage, error)
}

// setCurrentStrategies are tried in order until one succeeds.
var setCurrentStrategies = []setCurrentStrategy{
	{via: "commands", call: (*easee.Client).SetChargerCurrent},
	{via: "settings", call: (*easee.Client).SetDynamicChargerCurrent},
}

func (s *Server) SetCurrentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setCurrentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || s.validate.Struct(req) != nil {
			writeError(w, http.StatusBadRequest, "chargerId and numeric current are required")
			return
		}

		session := sessionFrom(r.Context())
		var errs []error
		for _, strategy := range setCurrentStrategies {
			data, err := token.Do(r.Context(), s.tokens, session, func(ctx context.Context, client *easee.Client) (json.RawMessage, error) {
				return strategy.call(client, ctx, req.ChargerID, *req.Current)
			})
			if err == nil {
				writeJSON(w, http.StatusOK, okResponse{OK: true, Via: strategy.via, Response: passthrough(data)})
				return
			}
			errs = append(errs, err)
		}
		writeUpstreamError(w, r, reportedError(errs))
	}
}

// reportedError picks the error of the last strategy that got an upstream response, and
// the first error when none did.
func reportedError(errs []error) error {
	for i := len(errs) - 1; i >= 0; i-- {
		if easee.HasResponse(errs[i]) {
			return errs[i]
		}
	}
	return errs[0]
}

func (s *Server) PauseHandler() http.HandlerFunc {
	return s.chargerCommandHandler((*easee.Client).PauseCharging)
}

func (s *Server) ResumeHandler() http.HandlerFunc {
	return s.chargerCommandHandler((*easee.Client).ResumeCharging)
}

func (s *Server) chargerCommandHandler(command func(*easee.Client, context.Context, string) (json.RawMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chargerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || s.validate.Struct(req) != nil {
			writeError(w, http.StatusBadRequest, "chargerId is required")
			return
		}

		data, err := token.Do(r.Context(), s.tokens, sessionFrom(r.Context()), func(ctx context.Context, client *easee.Client) (json.RawMessage, error) {
			return command(client, ctx, req.ChargerID)
		})
		if err != nil {
			writeUpstreamError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true, Response: passthrough(data)})
	}
}
