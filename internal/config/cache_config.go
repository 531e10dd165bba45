package config

import (
	"strings"
	"time"
)

type CacheConfig interface {
	GetCacheEnabled() bool
	GetStateTTL() time.Duration
	GetChargersTTL() time.Duration
	GetOngoingSessionTTL() time.Duration
	GetHistoryTTL() time.Duration
}

type Cache struct{}

var _ CacheConfig = Cache{}

// GetCacheEnabled is false when ENABLE_CACHE=false or when running under ENV=TEST.
func (Cache) GetCacheEnabled() bool {
	if strings.EqualFold(GetEnv(envVar, EnvDev), EnvTest) {
		return false
	}
	return GetEnvBool("ENABLE_CACHE", true)
}

func (Cache) GetStateTTL() time.Duration {
	return GetEnvDuration("CACHE_TTL_STATE", 3*time.Second)
}

func (Cache) GetChargersTTL() time.Duration {
	return GetEnvDuration("CACHE_TTL_CHARGERS", 30*time.Second)
}

func (Cache) GetOngoingSessionTTL() time.Duration {
	return GetEnvDuration("CACHE_TTL_SESSION", 3*time.Second)
}

func (Cache) GetHistoryTTL() time.Duration {
	return GetEnvDuration("CACHE_TTL_HISTORY", 60*time.Second)
}
