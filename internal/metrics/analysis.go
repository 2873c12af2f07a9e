package metrics

import (
	"optionflow/internal/analytics"
	"optionflow/internal/channel"
	"optionflow/logger"
)

const (
	componentAnalyzer = "analyzer"
	componentReader   = "nse_reader"
)

// ObserveAnalysis publishes the headline numbers of one finished cycle.
func ObserveAnalysis(log *logger.Log, symbol string, res analytics.Result) {
	withProm(func() {
		pcrGauge.WithLabelValues(symbol).Set(res.PCR)
		maxPainGauge.WithLabelValues(symbol).Set(res.MaxPain)
		supportGauge.WithLabelValues(symbol).Set(res.Support)
		resistanceGauge.WithLabelValues(symbol).Set(res.Resistance)
		rowsGauge.WithLabelValues(symbol).Set(float64(len(res.Rows)))
		openInterest.WithLabelValues(symbol, "ce").Set(float64(res.TotalCEOI))
		openInterest.WithLabelValues(symbol, "pe").Set(float64(res.TotalPEOI))
	})

	fields := logger.Fields{"symbol": symbol}
	EmitMetric(log, componentAnalyzer, "pcr", res.PCR, MetricTypeGauge, logger.Fields{"symbol": symbol, "unit": "none"})
	EmitMetric(log, componentAnalyzer, "max_pain", res.MaxPain, MetricTypeGauge, fields)
	EmitMetric(log, componentAnalyzer, "support", res.Support, MetricTypeGauge, fields)
	EmitMetric(log, componentAnalyzer, "resistance", res.Resistance, MetricTypeGauge, fields)
	EmitMetric(log, componentAnalyzer, "chain_rows", len(res.Rows), MetricTypeGauge, fields)
}

// ObserveUnavailable counts a cycle that ended without data.
func ObserveUnavailable(log *logger.Log, symbol string) {
	withProm(func() {
		unavailableTotal.WithLabelValues(symbol).Inc()
	})
	EmitMetric(log, componentAnalyzer, "data_unavailable", 1, MetricTypeCounter, logger.Fields{"symbol": symbol})
}

// ObserveFetch counts one download attempt for symbol.
func ObserveFetch(log *logger.Log, symbol string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	withProm(func() {
		fetchTotal.WithLabelValues(symbol, status).Inc()
	})
	name := "chain_fetches"
	if !ok {
		name = "chain_fetch_errors"
	}
	EmitMetric(log, componentReader, name, 1, MetricTypeCounter, logger.Fields{"symbol": symbol})
}

// ObserveBuffers records the occupancy of both pipeline buffers.
func ObserveBuffers(log *logger.Log, ch *channel.Channels) {
	if ch == nil || !IsEnabled("raw_buffer_length") {
		return
	}
	rawLen, rawCap, resultLen, resultCap := ch.Sizes()
	withProm(func() {
		bufferLength.WithLabelValues("raw").Set(float64(rawLen))
		bufferLength.WithLabelValues("result").Set(float64(resultLen))
	})
	EmitMetric(log, "channel_buffers", "raw_buffer_length", rawLen, MetricTypeGauge, logger.Fields{"buffer": "raw", "capacity": rawCap})
	EmitMetric(log, "channel_buffers", "result_buffer_length", resultLen, MetricTypeGauge, logger.Fields{"buffer": "result", "capacity": resultCap})
}
