package analytics

import "sort"

// Limits bounds the selector's list sizes.
type Limits struct {
	TopBuyers  int
	TopWriters int
}

// DefaultLimits are the sizes the dashboard has always shown.
var DefaultLimits = Limits{TopBuyers: 2, TopWriters: 3}

// Signals are the rows picked out for presentation.
type Signals struct {
	TopCEBuyers       []StrikeRow `json:"top_ce_buyers"`
	TopPEBuyers       []StrikeRow `json:"top_pe_buyers"`
	HighestCEBuyer    *StrikeRow  `json:"highest_ce_buyer"`
	HighestPEBuyer    *StrikeRow  `json:"highest_pe_buyer"`
	StrongestCEWriter *StrikeRow  `json:"strongest_ce_writer"`
	StrongestPEWriter *StrikeRow  `json:"strongest_pe_writer"`
	CEWriters         []StrikeRow `json:"ce_writers"`
	PEWriters         []StrikeRow `json:"pe_writers"`
}

// Select extracts the top rows per score. Ties keep input order. Writer
// lists only contain rows whose OI change is negative and may be empty.
func Select(rows []StrikeRow, limits Limits) Signals {
	if limits.TopBuyers <= 0 {
		limits.TopBuyers = DefaultLimits.TopBuyers
	}
	if limits.TopWriters <= 0 {
		limits.TopWriters = DefaultLimits.TopWriters
	}

	return Signals{
		TopCEBuyers:       topBy(rows, limits.TopBuyers, func(r StrikeRow) float64 { return r.CEStrength }),
		TopPEBuyers:       topBy(rows, limits.TopBuyers, func(r StrikeRow) float64 { return r.PEStrength }),
		HighestCEBuyer:    first(topBy(rows, 1, func(r StrikeRow) float64 { return r.CEBuyPower })),
		HighestPEBuyer:    first(topBy(rows, 1, func(r StrikeRow) float64 { return r.PEBuyPower })),
		StrongestCEWriter: first(topBy(rows, 1, func(r StrikeRow) float64 { return float64(r.CEWriterStrength) })),
		StrongestPEWriter: first(topBy(rows, 1, func(r StrikeRow) float64 { return float64(r.PEWriterStrength) })),
		CEWriters:         writers(rows, limits.TopWriters, func(r StrikeRow) int64 { return r.CEOIChange }),
		PEWriters:         writers(rows, limits.TopWriters, func(r StrikeRow) int64 { return r.PEOIChange }),
	}
}

// topBy returns up to n rows ordered by score, highest first.
func topBy(rows []StrikeRow, n int, score func(StrikeRow) float64) []StrikeRow {
	sorted := make([]StrikeRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return score(sorted[i]) > score(sorted[j])
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// writers returns up to n rows with a negative OI change, most negative first.
func writers(rows []StrikeRow, n int, oiChange func(StrikeRow) int64) []StrikeRow {
	out := make([]StrikeRow, 0, n)
	for _, r := range rows {
		if oiChange(r) < 0 {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return oiChange(out[i]) < oiChange(out[j])
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func first(rows []StrikeRow) *StrikeRow {
	if len(rows) == 0 {
		return nil
	}
	r := rows[0]
	return &r
}
