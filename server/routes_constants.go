package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes
	RouteAPILogin  = "/api/login"
	RouteAPILogout = "/api/logout"

	// Charger Routes
	RouteAPIChargers      = "/api/chargers"
	RouteAPIState         = "/api/state"
	RouteAPISession       = "/api/session"
	RouteAPISessions24h   = "/api/sessions-24h"
	RouteAPISessionsRange = "/api/sessions-range"

	// Command Routes
	RouteAPISetCurrent = "/api/set-current"
	RouteAPIPause      = "/api/pause"
	RouteAPIResume     = "/api/resume"

	// Live Update Routes
	RouteAPIStream   = "/api/stream"
	RouteAPIStreamWS = "/api/stream/ws"

	// System Routes
	RouteAPIHealthy = "/api/healthy"
	RouteMetrics    = "/metrics"
)

// Cache key prefixes
const (
	cacheKeyChargers      = "chargers:list"
	cacheKeyState         = "state:"
	cacheKeySession       = "session:"
	cacheKeySessions24h   = "sessions24h:"
	cacheKeySessionsRange = "sessionsRange:"
)
