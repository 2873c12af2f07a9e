package analytics

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"optionflow/models"
)

// StrikeRow is the canonical per-strike record. The first five fields come
// from the raw chain; the rest are filled in by Score.
type StrikeRow struct {
	Strike     float64 `json:"strike"`
	CEVolume   int64   `json:"ce_volume"`
	CEOIChange int64   `json:"ce_oi_change"`
	PEVolume   int64   `json:"pe_volume"`
	PEOIChange int64   `json:"pe_oi_change"`

	CEStrength       float64 `json:"ce_strength"`
	PEStrength       float64 `json:"pe_strength"`
	CEBuyPower       float64 `json:"ce_buy_power"`
	PEBuyPower       float64 `json:"pe_buy_power"`
	CEWriterStrength int64   `json:"ce_writer_strength"`
	PEWriterStrength int64   `json:"pe_writer_strength"`
	TotalOI          int64   `json:"total_oi"`
}

// NormalizeStats counts what Normalize did with the raw entries.
type NormalizeStats struct {
	Entries int `json:"entries"`
	Rows    int `json:"rows"`
	Skipped int `json:"skipped"`
}

// Normalize converts a raw chain into rows, in entry order. Entries missing
// either leg are skipped. Duplicate strikes are kept.
func Normalize(chain *models.RawChain) ([]StrikeRow, NormalizeStats) {
	var stats NormalizeStats
	if chain == nil {
		return nil, stats
	}

	entries := chain.Records.Data
	stats.Entries = len(entries)
	rows := make([]StrikeRow, 0, len(entries))
	for _, entry := range entries {
		if !entry.HasBothSides() {
			stats.Skipped++
			continue
		}
		ce, pe := entry.CE, entry.PE
		rows = append(rows, StrikeRow{
			Strike:     strikeOf(ce.StrikePrice),
			CEVolume:   volumeOf(ce.TotalTradedVolume),
			CEOIChange: Clean(ce.ChangeInOpenInterest),
			PEVolume:   volumeOf(pe.TotalTradedVolume),
			PEOIChange: Clean(pe.ChangeInOpenInterest),
		})
	}
	stats.Rows = len(rows)
	return rows, stats
}

// Clean coerces any value to an integer: thousands separators are stripped
// and anything that does not parse as a base-10 integer becomes 0.
func Clean(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 0
	case models.Value:
		text, ok := x.Text()
		if !ok {
			return 0
		}
		return cleanText(text)
	case *models.Value:
		if x == nil {
			return 0
		}
		return Clean(*x)
	case string:
		return cleanText(x)
	case json.Number:
		return cleanText(string(x))
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return cleanUnsigned(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return cleanUnsigned(x)
	case float32:
		return cleanFloat(float64(x))
	case float64:
		return cleanFloat(x)
	case fmt.Stringer:
		return cleanText(x.String())
	default:
		return 0
	}
}

func cleanText(s string) int64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func cleanUnsigned(u uint64) int64 {
	if u > math.MaxInt64 {
		return 0
	}
	return int64(u)
}

// whole floats only; 12.5 is not an integer
func cleanFloat(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

func volumeOf(v models.Value) int64 {
	n := Clean(v)
	if n < 0 {
		return 0
	}
	return n
}

// strikeOf reads the strike as sent, falling back to 0.
func strikeOf(v models.Value) float64 {
	text, ok := v.Text()
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// DedupeByStrike keeps only the last row seen for each strike. Surviving rows
// stay in their original relative order.
func DedupeByStrike(rows []StrikeRow) []StrikeRow {
	last := make(map[float64]int, len(rows))
	for i, r := range rows {
		last[r.Strike] = i
	}
	out := make([]StrikeRow, 0, len(last))
	for i, r := range rows {
		if last[r.Strike] == i {
			out = append(out, r)
		}
	}
	return out
}
