package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/charger-dashboard/cache"
	"github.com/jrsteele09/charger-dashboard/easee"
	"github.com/jrsteele09/charger-dashboard/internal/config"
	"github.com/jrsteele09/charger-dashboard/internal/metrics"
	"github.com/jrsteele09/charger-dashboard/internal/validate"
	"github.com/jrsteele09/charger-dashboard/sessions"
	"github.com/jrsteele09/charger-dashboard/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Authenticator exchanges user credentials for upstream tokens.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (easee.Credentials, error)
}

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	fileServer http.Handler
	config     config.Config
	sessions   *sessions.Manager
	tokens     *token.Manager
	accounts   Authenticator
	cache      *cache.Cache
	validate   *validate.Validator
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
}

type Option func(*Server)

// WithMetrics records request metrics into m and exposes gatherer on /metrics.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

func New(config config.Config, sessionManager *sessions.Manager, tokens *token.Manager, accounts Authenticator, responseCache *cache.Cache, opts ...Option) (*Server, error) {
	if sessionManager == nil || tokens == nil || accounts == nil || responseCache == nil {
		return nil, fmt.Errorf("[Server New] sessions, tokens, accounts and cache are required")
	}

	s := &Server{
		mux:      http.NewServeMux(),
		config:   config,
		sessions: sessionManager,
		tokens:   tokens,
		accounts: accounts,
		cache:    responseCache,
		validate: validate.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.env = config.GetEnv()
	s.fileServer = FileServerHandler(config.GetStaticDir())

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != config.EnvDev {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colourMethod(method), path)
}
