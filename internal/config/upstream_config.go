package config

import "time"

type UpstreamConfig interface {
	GetUpstreamBaseURL() string
	GetUpstreamTimeout() time.Duration
	GetUpstreamRetryMax() int
}

type Upstream struct{}

var _ UpstreamConfig = Upstream{}

func (Upstream) GetUpstreamBaseURL() string {
	return GetEnv("EASEE_API_BASE", "https://api.easee.com")
}

func (Upstream) GetUpstreamTimeout() time.Duration {
	return GetEnvDuration("UPSTREAM_TIMEOUT", 15*time.Second)
}

// GetUpstreamRetryMax is the number of extra attempts for reads that failed without a response.
func (Upstream) GetUpstreamRetryMax() int {
	retries := GetEnvInt("UPSTREAM_RETRY_MAX", 1)
	if retries < 0 {
		return 0
	}
	return retries
}
