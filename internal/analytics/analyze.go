// Package analytics turns one option-chain snapshot into sentiment signals:
// per-strike buying and writing strength, put-call ratio, max pain,
// support/resistance and a coarse trend. Everything here is pure; the same
// chain always yields the same Result.
package analytics

import (
	"errors"
	"fmt"
	"math"

	"optionflow/models"
)

// ErrDataUnavailable reports that a snapshot held nothing to analyze, or
// produced numbers that cannot be compared.
var ErrDataUnavailable = errors.New("option chain data unavailable")

// Result is everything derived from one snapshot.
type Result struct {
	Rows []StrikeRow `json:"rows"`
	Aggregates
	Trend      Trend          `json:"trend"`
	Signals    Signals        `json:"signals"`
	FinalTrend Direction      `json:"final_trend"`
	Stats      NormalizeStats `json:"stats"`
}

// Analyze runs the full transform over a raw chain.
func Analyze(chain *models.RawChain, limits Limits) (Result, error) {
	rows, stats := Normalize(chain)
	res, err := AnalyzeRows(rows, limits)
	res.Stats = stats
	return res, err
}

// AnalyzeRows runs everything after normalization. rows are not modified.
func AnalyzeRows(rows []StrikeRow, limits Limits) (Result, error) {
	if len(rows) == 0 {
		return Result{}, ErrDataUnavailable
	}

	scored := Score(rows)
	agg, err := Aggregate(scored)
	if err != nil {
		return Result{}, err
	}
	if err := checkFinite(scored, agg); err != nil {
		return Result{}, err
	}

	signals := Select(scored, limits)
	res := Result{
		Rows:       scored,
		Aggregates: agg,
		Trend:      ClassifyPCR(agg.PCR),
		Signals:    signals,
		FinalTrend: finalTrend(signals),
		Stats:      NormalizeStats{Entries: len(rows), Rows: len(rows)},
	}
	return res, nil
}

func finalTrend(s Signals) Direction {
	if s.HighestCEBuyer == nil || s.HighestPEBuyer == nil || s.StrongestCEWriter == nil || s.StrongestPEWriter == nil {
		return DirectionSideways
	}
	return ClassifyDirection(
		s.HighestCEBuyer.CEBuyPower,
		s.HighestPEBuyer.PEBuyPower,
		s.StrongestCEWriter.CEWriterStrength,
		s.StrongestPEWriter.PEWriterStrength,
	)
}

func checkFinite(rows []StrikeRow, agg Aggregates) error {
	if !finite(agg.PCR) {
		return fmt.Errorf("%w: non-finite put-call ratio", ErrDataUnavailable)
	}
	for _, r := range rows {
		if !finite(r.CEStrength) || !finite(r.PEStrength) || !finite(r.CEBuyPower) || !finite(r.PEBuyPower) {
			return fmt.Errorf("%w: non-finite score at strike %v", ErrDataUnavailable, r.Strike)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
