package server_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/charger-dashboard/cache"
	"github.com/jrsteele09/charger-dashboard/easee"
	"github.com/jrsteele09/charger-dashboard/internal/config"
	"github.com/jrsteele09/charger-dashboard/internal/metrics"
	"github.com/jrsteele09/charger-dashboard/server"
	"github.com/jrsteele09/charger-dashboard/sessions"
	"github.com/jrsteele09/charger-dashboard/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// fakeEasee is a scripted stand-in for the upstream API.
type fakeEasee struct {
	mu            sync.Mutex
	validToken    string
	loginResponse string
	refreshToken  string // access token handed out on refresh, empty means refresh fails
	ongoingStatus int
	commandStatus int
	settingStatus int
	settingHangup bool // drop the connection without answering

	stateCalls    atomic.Int32
	ongoingCalls  atomic.Int32
	refreshCalls  atomic.Int32
	commandCalls  atomic.Int32
	settingsCalls atomic.Int32
}

func (f *fakeEasee) set(fn func(f *fakeEasee)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeEasee) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/accounts/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"title":"Unauthorized"}`))
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		_, _ = w.Write([]byte(f.loginResponse))
	})

	mux.HandleFunc("POST /api/accounts/refresh_token", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.refreshToken == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"accessToken": f.refreshToken, "expiresIn": 3600})
	})

	mux.HandleFunc("GET /api/chargers", f.authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"EH1","name":"Garage"}]`))
	}))

	mux.HandleFunc("GET /api/chargers/{id}/state", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.stateCalls.Add(1)
		_, _ = w.Write([]byte(`{"chargerId":"` + r.PathValue("id") + `","totalPower":7.2}`))
	}))

	mux.HandleFunc("GET /api/chargers/{id}/sessions/ongoing", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.ongoingCalls.Add(1)
		f.mu.Lock()
		status := f.ongoingStatus
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte(`{"sessionEnergy":4.2}`))
	}))

	mux.HandleFunc("GET /api/chargers/{id}/sessions", f.authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"kwh":1.1},{"kwh":2.2},{"kwh":3.3}]`))
	}))

	mux.HandleFunc("POST /api/chargers/{id}/commands/set_charger_current", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.commandCalls.Add(1)
		f.mu.Lock()
		status := f.commandStatus
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte(`{"commandId":1}`))
	}))

	mux.HandleFunc("POST /api/chargers/{id}/settings", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.settingsCalls.Add(1)
		f.mu.Lock()
		status, hangup := f.settingStatus, f.settingHangup
		f.mu.Unlock()
		if hangup {
			conn, _, err := http.NewResponseController(w).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte(`{"dynamicChargerCurrent":10}`))
	}))

	mux.HandleFunc("POST /api/chargers/{id}/commands/pause_charging", f.authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"commandId":2}`))
	}))

	mux.HandleFunc("POST /api/chargers/{id}/commands/resume_charging", f.authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"commandId":3}`))
	}))

	return mux
}

func (f *fakeEasee) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		valid := f.validToken
		f.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type testFixture struct {
	upstream *fakeEasee
	server   *httptest.Server
	client   *http.Client
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{upstream: &fakeEasee{
		validToken:    "a1",
		loginResponse: `{"accessToken":"a1","refreshToken":"r1","expiresIn":3600}`,
	}}
	upstream := httptest.NewServer(f.upstream.handler())
	t.Cleanup(upstream.Close)

	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<h1>Dashboard</h1>"), 0o644))

	t.Setenv("ENV", config.EnvProd)
	t.Setenv("ENABLE_CACHE", "true")
	t.Setenv("EASEE_API_BASE", upstream.URL)
	t.Setenv("STATIC_DIR", staticDir)
	t.Setenv("STREAM_INTERVAL", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := config.New()

	sessionManager, err := sessions.NewManager(sessions.NewInMemoryRepo(), "test-secret", cfg.GetSessionMaxAge())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	factory := easee.NewFactory(easee.Options{BaseURL: cfg.GetUpstreamBaseURL(), Timeout: 2 * time.Second, Recorder: m})
	tokens := token.NewManager(factory.Accounts(), factory, sessionManager, token.WithRecorder(m))

	srv, err := server.New(cfg, sessionManager, tokens, factory.Accounts(), cache.New(cfg.GetCacheEnabled(), m), server.WithMetrics(m, reg))
	require.NoError(t, err)

	f.server = httptest.NewServer(srv)
	t.Cleanup(f.server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	f.client = &http.Client{Jar: jar, Timeout: 5 * time.Second}
	return f
}

func (f *testFixture) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func (f *testFixture) login(t *testing.T) {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/api/login", `{"username":"jane@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"ok":true}`, body)
}

func TestLoginFlow(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("not authenticated", func(t *testing.T) {
		status, body := f.do(t, http.MethodGet, "/api/chargers", "")
		require.Equal(t, http.StatusUnauthorized, status)
		require.JSONEq(t, `{"error":"Not authenticated"}`, body)
	})

	t.Run("missing credentials", func(t *testing.T) {
		status, body := f.do(t, http.MethodPost, "/api/login", `{"username":"jane@example.com"}`)
		require.Equal(t, http.StatusBadRequest, status)
		require.JSONEq(t, `{"error":"username and password are required"}`, body)
	})

	t.Run("wrong password", func(t *testing.T) {
		status, body := f.do(t, http.MethodPost, "/api/login", `{"username":"jane@example.com","password":"nope"}`)
		require.Equal(t, http.StatusUnauthorized, status)
		require.JSONEq(t, `{"error":"Authentication failed. Please login again."}`, body)
	})

	t.Run("login then call without handling tokens", func(t *testing.T) {
		f.login(t)
		status, body := f.do(t, http.MethodGet, "/api/chargers", "")
		require.Equal(t, http.StatusOK, status)
		require.JSONEq(t, `[{"id":"EH1","name":"Garage"}]`, body)
	})

	t.Run("logout ends the session", func(t *testing.T) {
		status, body := f.do(t, http.MethodPost, "/api/logout", "")
		require.Equal(t, http.StatusOK, status)
		require.JSONEq(t, `{"ok":true}`, body)

		status, _ = f.do(t, http.MethodGet, "/api/state?chargerId=EH1", "")
		require.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestLoginWithoutAccessToken(t *testing.T) {
	f := setupTestFixture(t)
	f.upstream.set(func(u *fakeEasee) { u.loginResponse = `{"refreshToken":"r1"}` })

	status, body := f.do(t, http.MethodPost, "/api/login", `{"username":"jane@example.com","password":"pw"}`)
	require.Equal(t, http.StatusBadGateway, status)
	require.JSONEq(t, `{"error":"No access token returned from Easee"}`, body)
}

func TestStateRequiresChargerID(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	status, body := f.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusBadRequest, status)
	require.JSONEq(t, `{"error":"chargerId is required"}`, body)
	require.Zero(t, f.upstream.stateCalls.Load())
}

func TestStateIsCached(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	for i := 0; i < 2; i++ {
		status, body := f.do(t, http.MethodGet, "/api/state?chargerId=EH1", "")
		require.Equal(t, http.StatusOK, status)
		require.JSONEq(t, `{"chargerId":"EH1","totalPower":7.2}`, body)
	}
	require.Equal(t, int32(1), f.upstream.stateCalls.Load())

	status, _ := f.do(t, http.MethodGet, "/api/state?chargerId=EH2", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, int32(2), f.upstream.stateCalls.Load())
}

func TestOngoingSession(t *testing.T) {
	t.Run("no ongoing session is null and not cached", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.upstream.set(func(u *fakeEasee) { u.ongoingStatus = http.StatusNotFound })

		for i := 0; i < 2; i++ {
			status, body := f.do(t, http.MethodGet, "/api/session?chargerId=EH1", "")
			require.Equal(t, http.StatusOK, status)
			require.Equal(t, "null", strings.TrimSpace(body))
		}
		require.Equal(t, int32(2), f.upstream.ongoingCalls.Load())
	})

	t.Run("ongoing session is cached", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)

		for i := 0; i < 2; i++ {
			status, body := f.do(t, http.MethodGet, "/api/session?chargerId=EH1", "")
			require.Equal(t, http.StatusOK, status)
			require.JSONEq(t, `{"sessionEnergy":4.2}`, body)
		}
		require.Equal(t, int32(1), f.upstream.ongoingCalls.Load())
	})

	t.Run("other errors are mapped", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.upstream.set(func(u *fakeEasee) { u.ongoingStatus = http.StatusForbidden })

		status, body := f.do(t, http.MethodGet, "/api/session?chargerId=EH1", "")
		require.Equal(t, http.StatusForbidden, status)
		require.JSONEq(t, `{"error":"Access denied for this account/charger."}`, body)
	})
}

func TestSessionHistory(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	t.Run("last 24 hours", func(t *testing.T) {
		status, body := f.do(t, http.MethodGet, "/api/sessions-24h?chargerId=EH1", "")
		require.Equal(t, http.StatusOK, status)

		var window struct {
			From          string  `json:"from"`
			To            string  `json:"to"`
			SessionsCount int     `json:"sessionsCount"`
			TotalKwh      float64 `json:"totalKwh"`
			Sessions      []any   `json:"sessions"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &window))
		require.Equal(t, 3, window.SessionsCount)
		require.InDelta(t, 6.6, window.TotalKwh, 1e-3)
		require.Len(t, window.Sessions, 3)

		from, err := time.Parse(time.RFC3339, window.From)
		require.NoError(t, err)
		to, err := time.Parse(time.RFC3339, window.To)
		require.NoError(t, err)
		require.Equal(t, 24*time.Hour, to.Sub(from))
	})

	t.Run("range", func(t *testing.T) {
		status, body := f.do(t, http.MethodGet, "/api/sessions-range?chargerId=EH1&from=2025-03-01T00:00:00.000Z&to=2025-03-08T00:00:00.000Z", "")
		require.Equal(t, http.StatusOK, status)
		require.Contains(t, body, `"from":"2025-03-01T00:00:00.000Z"`)
		require.Contains(t, body, `"sessionsCount":3`)
	})

	t.Run("range accepts other ISO forms", func(t *testing.T) {
		for _, query := range []string{
			"from=2025-03-01&to=2025-03-08",
			"from=2025-03-01T00:00:00%2B0100&to=2025-03-08T00:00:00%2B0100",
		} {
			status, body := f.do(t, http.MethodGet, "/api/sessions-range?chargerId=EH1&"+query, "")
			require.Equal(t, http.StatusOK, status, query)
			require.Contains(t, body, `"sessionsCount":3`)
		}

		status, body := f.do(t, http.MethodGet, "/api/sessions-range?chargerId=EH1&from=2025-03-01&to=2025-03-08", "")
		require.Equal(t, http.StatusOK, status)
		require.Contains(t, body, `"from":"2025-03-01"`)
	})

	t.Run("range needs timestamps", func(t *testing.T) {
		status, body := f.do(t, http.MethodGet, "/api/sessions-range?chargerId=EH1&from=2025-03-01T00:00:00Z", "")
		require.Equal(t, http.StatusBadRequest, status)
		require.JSONEq(t, `{"error":"from and to are required ISO timestamps"}`, body)

		status, _ = f.do(t, http.MethodGet, "/api/sessions-range?chargerId=EH1&from=yesterday&to=today", "")
		require.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("range must be ordered", func(t *testing.T) {
		status, _ := f.do(t, http.MethodGet, "/api/sessions-range?chargerId=EH1&from=2025-03-08T00:00:00Z&to=2025-03-01T00:00:00Z", "")
		require.Equal(t, http.StatusBadRequest, status)
	})
}

func TestSetCurrent(t *testing.T) {
	t.Run("commands", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)

		status, body := f.do(t, http.MethodPost, "/api/set-current", `{"chargerId":"EH1","current":16}`)
		require.Equal(t, http.StatusOK, status)
		require.JSONEq(t, `{"ok":true,"via":"commands","response":{"commandId":1}}`, body)
		require.Zero(t, f.upstream.settingsCalls.Load())
	})

	t.Run("falls back to settings", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.upstream.set(func(u *fakeEasee) { u.commandStatus = http.StatusBadRequest })

		status, body := f.do(t, http.MethodPost, "/api/set-current", `{"chargerId":"EH1","current":10}`)
		require.Equal(t, http.StatusOK, status)
		require.JSONEq(t, `{"ok":true,"via":"settings","response":{"dynamicChargerCurrent":10}}`, body)
		require.Equal(t, int32(1), f.upstream.commandCalls.Load())
	})

	t.Run("both fail reports the second error", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.upstream.set(func(u *fakeEasee) {
			u.commandStatus = http.StatusConflict
			u.settingStatus = http.StatusUnprocessableEntity
		})

		status, body := f.do(t, http.MethodPost, "/api/set-current", `{"chargerId":"EH1","current":10}`)
		require.Equal(t, http.StatusUnprocessableEntity, status)
		require.JSONEq(t, `{"error":"Invalid parameters for Easee API."}`, body)
	})

	t.Run("settings without a response reports the commands error", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.upstream.set(func(u *fakeEasee) {
			u.commandStatus = http.StatusConflict
			u.settingHangup = true
		})

		status, body := f.do(t, http.MethodPost, "/api/set-current", `{"chargerId":"EH1","current":10}`)
		require.Equal(t, http.StatusConflict, status)
		require.JSONEq(t, `{"error":"Operation conflicted with charger state. Try again."}`, body)
		require.Equal(t, int32(1), f.upstream.settingsCalls.Load())
	})

	t.Run("current must be numeric", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)

		for _, payload := range []string{`{"chargerId":"EH1","current":"16"}`, `{"chargerId":"EH1"}`, `{"current":16}`} {
			status, body := f.do(t, http.MethodPost, "/api/set-current", payload)
			require.Equal(t, http.StatusBadRequest, status)
			require.JSONEq(t, `{"error":"chargerId and numeric current are required"}`, body)
		}
		require.Zero(t, f.upstream.commandCalls.Load())
	})
}

func TestPauseResume(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	status, body := f.do(t, http.MethodPost, "/api/pause", `{"chargerId":"EH1"}`)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"ok":true,"response":{"commandId":2}}`, body)

	status, body = f.do(t, http.MethodPost, "/api/resume", `{"chargerId":"EH1"}`)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"ok":true,"response":{"commandId":3}}`, body)

	status, body = f.do(t, http.MethodPost, "/api/pause", `{}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.JSONEq(t, `{"error":"chargerId is required"}`, body)
}

func TestAutoRefresh(t *testing.T) {
	t.Run("expired token is refreshed transparently", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.upstream.set(func(u *fakeEasee) {
			u.validToken = "a2"
			u.refreshToken = "a2"
		})

		status, body := f.do(t, http.MethodGet, "/api/state?chargerId=EH1", "")
		require.Equal(t, http.StatusOK, status)
		require.JSONEq(t, `{"chargerId":"EH1","totalPower":7.2}`, body)
		require.Equal(t, int32(1), f.upstream.refreshCalls.Load())

		// The refreshed token was stored with the session
		status, _ = f.do(t, http.MethodGet, "/api/chargers", "")
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, int32(1), f.upstream.refreshCalls.Load())
	})

	t.Run("failed refresh asks for a new login", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.upstream.set(func(u *fakeEasee) { u.validToken = "a2" })

		status, body := f.do(t, http.MethodGet, "/api/state?chargerId=EH1", "")
		require.Equal(t, http.StatusUnauthorized, status)
		require.JSONEq(t, `{"error":"Authentication failed. Please login again."}`, body)
		require.Equal(t, int32(1), f.upstream.refreshCalls.Load())
	})
}

func TestStream(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	t.Run("requires charger id", func(t *testing.T) {
		status, body := f.do(t, http.MethodGet, "/api/stream", "")
		require.Equal(t, http.StatusBadRequest, status)
		require.JSONEq(t, `{"error":"chargerId is required"}`, body)
	})

	t.Run("ping precedes data", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/api/stream?chargerId=EH1", nil)
		require.NoError(t, err)
		resp, err := f.client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		var events []string
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() && len(events) < 4 {
			if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
				events = append(events, name)
			}
		}
		require.Equal(t, []string{"ping", "state", "session", "history"}, events)
	})
}

func TestHealthyAndMetrics(t *testing.T) {
	f := setupTestFixture(t)

	status, body := f.do(t, http.MethodGet, "/api/healthy", "")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"ok":true}`, body)

	f.login(t)
	f.do(t, http.MethodGet, "/api/chargers", "")

	status, body = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "charger_dashboard_upstream_requests_total")
	require.Contains(t, body, "charger_dashboard_cache_lookups_total")
}

func TestStaticFiles(t *testing.T) {
	f := setupTestFixture(t)

	status, body := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "<h1>Dashboard</h1>", body)

	status, _ = f.do(t, http.MethodGet, "/missing.js", "")
	require.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodGet, "/../../etc/passwd", "")
	require.Equal(t, http.StatusNotFound, status)
}
