package metrics

import "optionflow/logger"

// DropMetric names the counter emitted when a buffer is full.
type DropMetric string

const (
	DropMetricChainRaw    DropMetric = "chain_raw_dropped"
	DropMetricChainResult DropMetric = "chain_result_dropped"
)

// EmitDropMetric counts a single dropped message. Call it once per drop.
func EmitDropMetric(log *logger.Log, metric DropMetric, symbol, stage string) {
	fields := logger.Fields{}
	if symbol != "" {
		fields["symbol"] = symbol
	}
	if stage != "" {
		fields["stage"] = stage
	}

	withProm(func() {
		droppedTotal.WithLabelValues(string(metric)).Inc()
	})
	EmitMetric(log, "channel_drops", string(metric), 1, MetricTypeCounter, fields)
}
