package config

import "time"

const (
	MinStreamInterval = 5 * time.Second
	MaxStreamInterval = 7 * time.Second
)

type StreamConfig interface {
	GetStreamInterval() time.Duration
}

type MetricsConfig interface {
	GetMetricsEnabled() bool
}

type Stream struct{}

var _ StreamConfig = Stream{}

// GetStreamInterval is clamped to [MinStreamInterval, MaxStreamInterval].
func (Stream) GetStreamInterval() time.Duration {
	interval := GetEnvDuration("STREAM_INTERVAL", MaxStreamInterval)
	if interval < MinStreamInterval {
		return MinStreamInterval
	}
	if interval > MaxStreamInterval {
		return MaxStreamInterval
	}
	return interval
}

type Metrics struct{}

var _ MetricsConfig = Metrics{}

func (Metrics) GetMetricsEnabled() bool {
	return GetEnvBool("METRICS_ENABLED", true)
}
