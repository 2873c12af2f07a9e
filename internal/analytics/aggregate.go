package analytics

import (
	"strconv"
)

// Aggregates are the market-wide scalars reduced from a scored row set.
type Aggregates struct {
	TotalCEOI  int64   `json:"total_ce_oi"`
	TotalPEOI  int64   `json:"total_pe_oi"`
	PCR        float64 `json:"pcr"`
	MaxPain    float64 `json:"max_pain"`
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
}

// Aggregate reduces scored rows into market metrics. An empty row set has no
// meaningful argmax and yields ErrDataUnavailable.
func Aggregate(rows []StrikeRow) (Aggregates, error) {
	if len(rows) == 0 {
		return Aggregates{}, ErrDataUnavailable
	}

	var agg Aggregates
	for _, r := range rows {
		agg.TotalCEOI += building(r.CEOIChange)
		agg.TotalPEOI += building(r.PEOIChange)
	}
	agg.PCR = PutCallRatio(agg.TotalPEOI, agg.TotalCEOI)

	agg.MaxPain = rows[argmax(rows, func(r StrikeRow) int64 { return r.TotalOI })].Strike
	agg.Support = rows[argmax(rows, func(r StrikeRow) int64 { return r.PEOIChange })].Strike
	agg.Resistance = rows[argmax(rows, func(r StrikeRow) int64 { return r.CEOIChange })].Strike
	return agg, nil
}

// PutCallRatio divides put building by call building, flooring the
// denominator at 1, rounded to two decimals.
func PutCallRatio(totalPE, totalCE int64) float64 {
	den := totalCE
	if den < 1 {
		den = 1
	}
	return round2(float64(totalPE) / float64(den))
}

// round2 rounds half-to-even on the binary value, the same result as
// printing the number with two decimals.
func round2(v float64) float64 {
	out, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return out
}

// argmax returns the index of the first row holding the maximum key.
// rows must not be empty.
func argmax(rows []StrikeRow, key func(StrikeRow) int64) int {
	best := 0
	bestVal := key(rows[0])
	for i := 1; i < len(rows); i++ {
		if v := key(rows[i]); v > bestVal {
			best, bestVal = i, v
		}
	}
	return best
}
