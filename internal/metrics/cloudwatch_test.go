package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"optionflow/logger"
)

func TestPublishMetricDatumThrottlesToInterval(t *testing.T) {
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{client: &cloudwatch.Client{}})
	t.Cleanup(func() { cwState.Store(prevState) })

	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	originalInterval := cloudWatchPublishInterval
	cloudWatchPublishInterval = 50 * time.Millisecond
	t.Cleanup(func() { cloudWatchPublishInterval = originalInterval })

	baseTime := time.Now()
	timeNow = func() time.Time { return baseTime }
	t.Cleanup(func() { timeNow = time.Now })

	batches := make([][]cwtypes.MetricDatum, 0)
	publishMetricsFunc = func(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
		copyData := make([]cwtypes.MetricDatum, len(data))
		copy(copyData, data)
		batches = append(batches, copyData)
	}
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })

	metric := Metric{Component: "analyzer", Name: "pcr", Timestamp: baseTime, Fields: logger.Fields{"unit": "count"}}
	publishMetricDatum(metric, 1)

	timeNow = func() time.Time { return baseTime.Add(25 * time.Millisecond) }
	metric.Timestamp = baseTime.Add(25 * time.Millisecond)
	publishMetricDatum(metric, 2)

	if len(batches) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(batches))
	}

	if len(batches[0]) != 1 {
		t.Fatalf("expected single metric in publish, got %d", len(batches[0]))
	}

	datum := batches[0][0]
	if datum.MetricName == nil || *datum.MetricName != "pcr" {
		t.Fatalf("unexpected metric name: %v", datum.MetricName)
	}
	if datum.Value == nil || *datum.Value != 1 {
		t.Fatalf("unexpected metric value: %v", datum.Value)
	}
}

func TestPublishMetricDatumAllowsAfterInterval(t *testing.T) {
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{client: &cloudwatch.Client{}})
	t.Cleanup(func() { cwState.Store(prevState) })

	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	originalInterval := cloudWatchPublishInterval
	cloudWatchPublishInterval = 50 * time.Millisecond
	t.Cleanup(func() { cloudWatchPublishInterval = originalInterval })

	baseTime := time.Now()
	timeNow = func() time.Time { return baseTime }
	t.Cleanup(func() { timeNow = time.Now })

	batches := make([][]cwtypes.MetricDatum, 0)
	publishMetricsFunc = func(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
		copyData := make([]cwtypes.MetricDatum, len(data))
		copy(copyData, data)
		batches = append(batches, copyData)
	}
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })

	metric := Metric{Component: "analyzer", Name: "pcr", Timestamp: baseTime, Fields: logger.Fields{"unit": "count"}}
	publishMetricDatum(metric, 1)

	timeNow = func() time.Time { return baseTime.Add(75 * time.Millisecond) }
	metric.Timestamp = baseTime.Add(75 * time.Millisecond)
	publishMetricDatum(metric, 2)

	if len(batches) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(batches))
	}

	second := batches[1]
	if len(second) != 1 {
		t.Fatalf("expected single metric in second publish, got %d", len(second))
	}

	datum := second[0]
	if datum.MetricName == nil || *datum.MetricName != "pcr" {
		t.Fatalf("unexpected metric name: %v", datum.MetricName)
	}
	if datum.Value == nil || *datum.Value != 2 {
		t.Fatalf("unexpected metric value: %v", datum.Value)
	}
}

func TestPublishMetricDatumSeparatesSeries(t *testing.T) {
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{client: &cloudwatch.Client{}})
	t.Cleanup(func() { cwState.Store(prevState) })

	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	published := 0
	publishMetricsFunc = func(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
		published += len(data)
	}
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })

	now := time.Now()
	publishMetricDatum(Metric{Component: "analyzer", Name: "pcr", Timestamp: now, Fields: logger.Fields{"symbol": "NIFTY"}}, 1)
	publishMetricDatum(Metric{Component: "analyzer", Name: "pcr", Timestamp: now, Fields: logger.Fields{"symbol": "BANKNIFTY"}}, 1)

	if published != 2 {
		t.Fatalf("expected one publish per symbol, got %d", published)
	}
}

func TestPublishMetricDatumWithoutClient(t *testing.T) {
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{})
	t.Cleanup(func() { cwState.Store(prevState) })

	called := false
	publishMetricsFunc = func(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
		called = true
	}
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })

	publishMetricDatum(Metric{Component: "analyzer", Name: "pcr", Timestamp: time.Now()}, 1)
	if called {
		t.Fatal("publish must be skipped without a client")
	}
}

func TestDimensionsSkipReservedAndNonString(t *testing.T) {
	dims := dimensions("analyzer", logger.Fields{
		"symbol":   "NIFTY",
		"unit":     "count",
		"capacity": 16,
		"stage":    "",
	})
	if len(dims) != 2 {
		t.Fatalf("expected component and symbol dimensions, got %d", len(dims))
	}
	if *dims[1].Name != "symbol" || *dims[1].Value != "NIFTY" {
		t.Fatalf("unexpected dimension: %s=%s", *dims[1].Name, *dims[1].Value)
	}
}

func TestRenderDashboard(t *testing.T) {
	body, err := renderDashboard("OptionflowTest", "eu-west-1")
	if err != nil {
		t.Fatalf("renderDashboard: %v", err)
	}
	if !strings.Contains(body, "\"OptionflowTest\"") || !strings.Contains(body, "\"eu-west-1\"") {
		t.Fatalf("substitution missing: %s", body)
	}
	if strings.Contains(body, "\"ap-south-1\"") {
		t.Fatal("default region left in dashboard")
	}
}

func TestMetricUnitFromString(t *testing.T) {
	cases := map[string]cwtypes.StandardUnit{
		"count":   cwtypes.StandardUnitCount,
		"Percent": cwtypes.StandardUnitPercent,
		"bytes":   cwtypes.StandardUnitBytes,
		"none":    cwtypes.StandardUnitNone,
	}
	for in, want := range cases {
		got, ok := metricUnitFromString(in)
		if !ok || got != want {
			t.Errorf("metricUnitFromString(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := metricUnitFromString("furlongs"); ok {
		t.Error("unknown unit should not be found")
	}
}
