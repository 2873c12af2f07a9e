// Package heatmap draws CE/PE strength per strike as an ECharts heatmap.
package heatmap

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"optionflow/internal/analytics"
)

var sides = []string{"CE Strength", "PE Strength"}

// Build returns the chart for rows. Each strike appears once, holding the
// last row seen for it.
func Build(symbol string, rows []analytics.StrikeRow) (*charts.HeatMap, error) {
	rows = analytics.DedupeByStrike(rows)
	if len(rows) == 0 {
		return nil, analytics.ErrDataUnavailable
	}

	strikes, data, peak := cells(rows)

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: symbol + " option strength", Width: "1200px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Option Strength Heatmap", Subtitle: symbol}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "Strike", SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: sides, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(peak),
			InRange:    &opts.VisualMapInRange{Color: []string{"#f7fbff", "#6baed6", "#08306b"}},
		}),
	)
	hm.SetXAxis(strikes).AddSeries("strength", data)
	return hm, nil
}

// Render writes a standalone HTML page with the heatmap.
func Render(w io.Writer, symbol string, rows []analytics.StrikeRow) error {
	hm, err := Build(symbol, rows)
	if err != nil {
		return err
	}
	if err := hm.Render(w); err != nil {
		return fmt.Errorf("render heatmap: %w", err)
	}
	return nil
}

// cells lays rows out as (strike index, side index, rounded strength).
func cells(rows []analytics.StrikeRow) ([]string, []opts.HeatMapData, float64) {
	strikes := make([]string, len(rows))
	data := make([]opts.HeatMapData, 0, 2*len(rows))
	peak := 0.0
	for i, r := range rows {
		strikes[i] = strconv.FormatFloat(r.Strike, 'f', -1, 64)
		for y, v := range []float64{r.CEStrength, r.PEStrength} {
			v = math.Round(v)
			peak = math.Max(peak, v)
			data = append(data, opts.HeatMapData{Value: [3]interface{}{i, y, v}})
		}
	}
	return strikes, data, peak
}
