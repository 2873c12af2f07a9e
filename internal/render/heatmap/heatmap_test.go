package heatmap

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"optionflow/internal/analytics"
)

func scored(rows ...analytics.StrikeRow) []analytics.StrikeRow {
	return analytics.Score(rows)
}

func TestCellsDedupedByStrike(t *testing.T) {
	rows := analytics.DedupeByStrike(scored(
		analytics.StrikeRow{Strike: 100, CEVolume: 10},
		analytics.StrikeRow{Strike: 200, CEVolume: 20},
		analytics.StrikeRow{Strike: 100, CEVolume: 30},
	))

	strikes, data, peak := cells(rows)
	if len(strikes) != 2 || len(data) != 4 {
		t.Fatalf("expected 2 strikes and 4 cells, got %v / %d", strikes, len(data))
	}
	if peak != 18 {
		t.Fatalf("peak = %v, want 18 (0.6*30)", peak)
	}
}

func TestCellsLayout(t *testing.T) {
	_, data, _ := cells(scored(analytics.StrikeRow{Strike: 22050.5, CEVolume: 100, PEVolume: 50}))

	ce := data[0].Value.([3]interface{})
	pe := data[1].Value.([3]interface{})
	if ce[0] != 0 || ce[1] != 0 || ce[2] != 60.0 {
		t.Fatalf("unexpected CE cell: %v", ce)
	}
	if pe[1] != 1 || pe[2] != 30.0 {
		t.Fatalf("unexpected PE cell: %v", pe)
	}
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, "NIFTY", scored(
		analytics.StrikeRow{Strike: 22000, CEVolume: 1000, PEVolume: 500},
		analytics.StrikeRow{Strike: 22100, CEVolume: 300, PEVolume: 900},
	))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"<html", "Option Strength Heatmap", "22100", "CE Strength"} {
		if !strings.Contains(out, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestRenderEmpty(t *testing.T) {
	if err := Render(&bytes.Buffer{}, "NIFTY", nil); !errors.Is(err, analytics.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}
