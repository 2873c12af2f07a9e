package console

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"optionflow/internal/analytics"
	"optionflow/internal/channel"
)

func analysed(t *testing.T, rows []analytics.StrikeRow) channel.AnalysisMessage {
	t.Helper()
	res, err := analytics.AnalyzeRows(rows, analytics.DefaultLimits)
	if err != nil {
		t.Fatalf("AnalyzeRows: %v", err)
	}
	return channel.AnalysisMessage{Symbol: "NIFTY", AnalyzedAt: time.Now(), Result: res}
}

func TestRenderSections(t *testing.T) {
	msg := analysed(t, []analytics.StrikeRow{
		{Strike: 22000, CEVolume: 250000, CEOIChange: 1200, PEVolume: 1000, PEOIChange: -300},
		{Strike: 22100, CEVolume: 5000, CEOIChange: -800, PEVolume: 60000, PEOIChange: 900},
	})

	var buf bytes.Buffer
	NewRenderer(&buf).Render(msg)
	out := buf.String()

	for _, want := range []string{
		"MARKET SUMMARY",
		"TOP CE BUYERS",
		"TOP PE BUYERS",
		"HIGH PREMIUM BUYERS",
		"STRONG WRITERS ZONE",
		"Final Market Direction",
		"22,000 CE",
		"+1,200",
		analytics.ActivityStrongLongBuildUp.Display(),
		"Call Writing (Bearish)",
		"Put Writing (Bullish)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestRenderNoWriters(t *testing.T) {
	msg := analysed(t, []analytics.StrikeRow{
		{Strike: 100, CEVolume: 10, CEOIChange: 5, PEVolume: 10, PEOIChange: 5},
	})

	var buf bytes.Buffer
	NewRenderer(&buf).Render(msg)

	if !strings.Contains(buf.String(), noCEWriting) || !strings.Contains(buf.String(), noPEWriting) {
		t.Fatalf("empty writer notices missing:\n%s", buf.String())
	}
}

func TestRenderUnavailable(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf).Render(channel.AnalysisMessage{Symbol: "BANKNIFTY", Unavailable: true, Reason: "option chain data unavailable"})

	out := buf.String()
	if !strings.Contains(out, "BANKNIFTY: data unavailable") {
		t.Fatalf("unexpected output: %s", out)
	}
	if strings.Contains(out, "MARKET SUMMARY") {
		t.Fatal("unavailable cycle must not print tables")
	}
}

func TestSigned(t *testing.T) {
	cases := map[int64]string{1234: "+1,234", 0: "0", -50: "-50"}
	for in, want := range cases {
		if got := signed(in); got != want {
			t.Errorf("signed(%d) = %s, want %s", in, got, want)
		}
	}
}
