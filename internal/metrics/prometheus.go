package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	promOnce sync.Once
	registry *prometheus.Registry

	pcrGauge         *prometheus.GaugeVec
	maxPainGauge     *prometheus.GaugeVec
	supportGauge     *prometheus.GaugeVec
	resistanceGauge  *prometheus.GaugeVec
	rowsGauge        *prometheus.GaugeVec
	openInterest     *prometheus.GaugeVec
	bufferLength     *prometheus.GaugeVec
	fetchTotal       *prometheus.CounterVec
	unavailableTotal *prometheus.CounterVec
	droppedTotal     *prometheus.CounterVec
)

func initPrometheus() {
	promOnce.Do(func() {
		registry = prometheus.NewRegistry()

		gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
			g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: "optionflow", Name: name, Help: help}, labels)
			registry.MustRegister(g)
			return g
		}
		counter := func(name, help string, labels ...string) *prometheus.CounterVec {
			c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "optionflow", Name: name, Help: help}, labels)
			registry.MustRegister(c)
			return c
		}

		pcrGauge = gauge("pcr", "Put-call ratio of the latest analysis", "symbol")
		maxPainGauge = gauge("max_pain_strike", "Max pain strike of the latest analysis", "symbol")
		supportGauge = gauge("support_strike", "Strike with the largest put open interest", "symbol")
		resistanceGauge = gauge("resistance_strike", "Strike with the largest call open interest", "symbol")
		rowsGauge = gauge("chain_rows", "Strikes with both legs in the latest chain", "symbol")
		openInterest = gauge("open_interest", "Total open interest per side", "symbol", "side")
		bufferLength = gauge("buffer_length", "Messages waiting in a pipeline buffer", "buffer")
		fetchTotal = counter("fetch_total", "Option chain downloads by outcome", "symbol", "status")
		unavailableTotal = counter("data_unavailable_total", "Cycles that produced no analysis", "symbol")
		droppedTotal = counter("dropped_total", "Messages dropped on full buffers", "channel")

		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves the Prometheus exposition for the optionflow registry.
func Handler() http.Handler {
	initPrometheus()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Registry exposes the collectors, mainly for tests.
func Registry() *prometheus.Registry {
	initPrometheus()
	return registry
}

func withProm(fn func()) {
	if !PrometheusEnabled() {
		return
	}
	initPrometheus()
	fn()
}
