package analytics

const (
	strengthVolumeWeight = 0.6
	strengthOIWeight     = 0.4
	buyPowerVolumeWeight = 0.5
	buyPowerOIWeight     = 0.5
)

// Score returns a copy of rows with the derived fields filled in. Each row is
// scored on its own raw fields only.
func Score(rows []StrikeRow) []StrikeRow {
	out := make([]StrikeRow, len(rows))
	for i, r := range rows {
		out[i] = r.Scored()
	}
	return out
}

// Scored recomputes the derived fields of r from its raw fields.
func (r StrikeRow) Scored() StrikeRow {
	ceBuild, peBuild := building(r.CEOIChange), building(r.PEOIChange)

	r.CEStrength = float64(r.CEVolume)*strengthVolumeWeight + float64(ceBuild)*strengthOIWeight
	r.PEStrength = float64(r.PEVolume)*strengthVolumeWeight + float64(peBuild)*strengthOIWeight

	r.CEBuyPower = float64(r.CEVolume)*buyPowerVolumeWeight + float64(ceBuild)*buyPowerOIWeight
	r.PEBuyPower = float64(r.PEVolume)*buyPowerVolumeWeight + float64(peBuild)*buyPowerOIWeight

	r.CEWriterStrength = writing(r.CEOIChange)
	r.PEWriterStrength = writing(r.PEOIChange)

	r.TotalOI = ceBuild + peBuild
	return r
}

// building clamps an OI change to its position-building part.
func building(oiChange int64) int64 {
	if oiChange > 0 {
		return oiChange
	}
	return 0
}

// writing is the magnitude of an OI drop, zero otherwise.
func writing(oiChange int64) int64 {
	if oiChange < 0 {
		return -oiChange
	}
	return 0
}
