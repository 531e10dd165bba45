package server

func (s *Server) initRoutes() {
	// Auth
	s.RegisterRouteHandler("POST "+RouteAPILogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPILogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// Charger data
	s.RegisterRouteHandler("GET "+RouteAPIChargers, ChainMiddleware(s.ChargersHandler(), s.AuthenticatedAPIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPIState, ChainMiddleware(s.StateHandler(), s.AuthenticatedAPIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPISession, ChainMiddleware(s.OngoingSessionHandler(), s.AuthenticatedAPIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPISessions24h, ChainMiddleware(s.Sessions24hHandler(), s.AuthenticatedAPIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPISessionsRange, ChainMiddleware(s.SessionsRangeHandler(), s.AuthenticatedAPIMiddleware()...))

	// Charger commands
	s.RegisterRouteHandler("POST "+RouteAPISetCurrent, ChainMiddleware(s.SetCurrentHandler(), s.AuthenticatedAPIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIPause, ChainMiddleware(s.PauseHandler(), s.AuthenticatedAPIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIResume, ChainMiddleware(s.ResumeHandler(), s.AuthenticatedAPIMiddleware()...))

	// Live updates
	s.RegisterRouteHandler("GET "+RouteAPIStream, ChainMiddleware(s.StreamHandler(), s.AuthenticatedAPIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPIStreamWS, ChainMiddleware(s.StreamWebSocketHandler(), s.AuthenticatedAPIMiddleware()...))

	// System
	s.RegisterRouteHandler("GET "+RouteAPIHealthy, ChainMiddleware(s.HealthyHandler(), s.APIMiddleware()...))
	if s.gatherer != nil && s.config.GetMetricsEnabled() {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.MetricsHandler())
	}

	// CORS preflight for the API
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))

	// Dashboard files
	s.RegisterRouteHandler("GET /", ChainMiddleware(s.fileServer.ServeHTTP, s.StaticMiddleware()...))
}
