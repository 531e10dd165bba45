package config

type Config interface {
	EnvConfig
	CorsConfig
	UpstreamConfig
	SessionConfig
	CacheConfig
	StreamConfig
	MetricsConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetStaticDir() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Upstream
	Session
	Cache
	Stream
	Metrics
}

func New() Config {
	return mainConfig{}
}
