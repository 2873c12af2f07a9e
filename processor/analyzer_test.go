package processor

import (
	"context"
	"testing"
	"time"

	appconfig "optionflow/config"
	"optionflow/internal/analytics"
	"optionflow/internal/channel"
	"optionflow/models"
)

const testChain = `{"records":{"data":[
 {"strikePrice":100,
  "CE":{"strikePrice":100,"openInterest":300,"changeinOpenInterest":50,"totalTradedVolume":1000},
  "PE":{"strikePrice":100,"openInterest":10,"changeinOpenInterest":-20,"totalTradedVolume":100}},
 {"strikePrice":200,
  "CE":{"strikePrice":200,"openInterest":100,"changeinOpenInterest":-30,"totalTradedVolume":200},
  "PE":{"strikePrice":200,"openInterest":30,"changeinOpenInterest":40,"totalTradedVolume":500}}]}}`

func minimalConfig() *appconfig.Config {
	return &appconfig.Config{
		Processor: appconfig.ProcessorConfig{MaxWorkers: 1},
	}
}

func TestLimitsDefaults(t *testing.T) {
	if got := Limits(appconfig.AnalysisConfig{}); got != analytics.DefaultLimits {
		t.Fatalf("zero config should keep defaults, got %+v", got)
	}
	got := Limits(appconfig.AnalysisConfig{TopBuyers: 5})
	if got.TopBuyers != 5 || got.TopWriters != analytics.DefaultLimits.TopWriters {
		t.Fatalf("unexpected limits: %+v", got)
	}
}

func TestProcessAnalysesChain(t *testing.T) {
	a := NewAnalyzer(minimalConfig(), channel.NewChannels(1, 1))

	fetched := time.Now().Add(-time.Second)
	msg := a.Process(models.RawChainMessage{Symbol: "NIFTY", Source: "nse", Data: []byte(testChain), Timestamp: fetched})

	if msg.Unavailable {
		t.Fatalf("unexpected unavailable: %s", msg.Reason)
	}
	if msg.CycleID == "" || msg.Symbol != "NIFTY" || !msg.FetchedAt.Equal(fetched) {
		t.Fatalf("metadata not stamped: %+v", msg)
	}
	if msg.Result.PCR != 0.8 || msg.Result.Trend != analytics.TrendNeutral {
		t.Fatalf("unexpected pcr/trend: %v %s", msg.Result.PCR, msg.Result.Trend)
	}
	if msg.Result.Resistance != 100 || msg.Result.Support != 200 {
		t.Fatalf("unexpected levels: support=%v resistance=%v", msg.Result.Support, msg.Result.Resistance)
	}
	if len(msg.Result.Rows) != 2 {
		t.Fatalf("unexpected rows: %d", len(msg.Result.Rows))
	}
	if stats := a.GetStats(); stats.Analyses != 1 {
		t.Fatalf("analysis not counted: %+v", stats)
	}
}

func TestProcessUnavailable(t *testing.T) {
	a := NewAnalyzer(minimalConfig(), channel.NewChannels(1, 1))

	cases := map[string]string{
		"empty data":    `{"records":{"data":[]}}`,
		"one sided":     `{"records":{"data":[{"strikePrice":100,"CE":{"openInterest":1}}]}}`,
		"no payload":    ``,
		"invalid json":  `{"records":`,
		"missing field": `{}`,
	}
	for name, doc := range cases {
		msg := a.Process(models.RawChainMessage{Symbol: "NIFTY", Data: []byte(doc)})
		if !msg.Unavailable || msg.Reason == "" {
			t.Errorf("%s: expected unavailable message, got %+v", name, msg)
		}
		if len(msg.Result.Rows) != 0 {
			t.Errorf("%s: unavailable result must be empty", name)
		}
	}
	if got := a.GetStats().Unavailable; got != int64(len(cases)) {
		t.Fatalf("unavailable count = %d", got)
	}
}

func TestAnalyzerPipeline(t *testing.T) {
	ch := channel.NewChannels(2, 2)
	a := NewAnalyzer(minimalConfig(), ch)

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}

	ch.Raw <- models.RawChainMessage{Symbol: "BANKNIFTY", Source: "nse", Data: []byte(testChain)}

	select {
	case msg := <-ch.Result:
		if msg.Symbol != "BANKNIFTY" || msg.Unavailable {
			t.Fatalf("unexpected result: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no analysis published")
	}

	cancel()
	a.Stop()

	if stats := a.GetStats(); stats.MessagesProcessed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
