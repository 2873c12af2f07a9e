package metrics

import (
	"strings"
	"sync/atomic"

	"optionflow/config"
)

const (
	MetricTypeCounter = "counter"
	MetricTypeGauge   = "gauge"
)

var (
	prometheusEnabled  atomic.Bool
	channelSizeEnabled atomic.Bool
)

func init() {
	prometheusEnabled.Store(true)
	channelSizeEnabled.Store(true)
}

// Configure applies the metrics section of the configuration.
func Configure(cfg config.MetricsConfig) {
	prometheusEnabled.Store(cfg.Prometheus.Enabled)
	channelSizeEnabled.Store(cfg.ChannelSize)
}

// IsEnabled reports whether a metric may be emitted. Buffer occupancy
// gauges follow the channel_size switch; everything else is always on.
func IsEnabled(name string) bool {
	if strings.HasSuffix(name, "_buffer_length") {
		return channelSizeEnabled.Load()
	}
	return true
}

func PrometheusEnabled() bool {
	return prometheusEnabled.Load()
}
