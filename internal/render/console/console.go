// Package console prints an analysis cycle as terminal tables.
package console

import (
	"fmt"
	"io"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"optionflow/internal/analytics"
	"optionflow/internal/channel"
)

const (
	noCEWriting = "No CE writing detected."
	noPEWriting = "No PE writing detected."
)

type side int

const (
	call side = iota
	put
)

func (s side) String() string {
	if s == call {
		return "CE"
	}
	return "PE"
}

// Renderer writes analysis messages to w.
type Renderer struct {
	w     io.Writer
	style table.Style
}

func NewRenderer(w io.Writer) *Renderer {
	style := table.StyleRounded
	style.Format.Header = text.FormatDefault
	return &Renderer{w: w, style: style}
}

// Render prints every section for msg. Unavailable cycles print a single
// notice instead.
func (r *Renderer) Render(msg channel.AnalysisMessage) {
	if msg.Unavailable {
		fmt.Fprintf(r.w, "\n%s: data unavailable (%s). Retrying next cycle.\n", msg.Symbol, msg.Reason)
		return
	}

	res := msg.Result
	fmt.Fprintf(r.w, "\nOPTION CHAIN %s  %s\n", msg.Symbol, msg.AnalyzedAt.Format("2006-01-02 15:04:05"))

	r.summary(res)
	r.buyers("TOP CE BUYERS", call, res.Signals.TopCEBuyers)
	r.buyers("TOP PE BUYERS", put, res.Signals.TopPEBuyers)
	r.premium(res.Signals)
	r.walls(res.Signals)
	fmt.Fprintf(r.w, "\nFinal Market Direction: %s\n", res.FinalTrend.Display())
	r.writers("TOP CE WRITERS", call, res.Signals.CEWriters)
	r.writers("TOP PE WRITERS", put, res.Signals.PEWriters)
}

func (r *Renderer) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.w)
	t.SetStyle(r.style)
	t.SetTitle(title)
	return t
}

func (r *Renderer) summary(res analytics.Result) {
	t := r.newTable("MARKET SUMMARY")
	t.AppendHeader(table.Row{"Trend", "PCR", "Max Pain", "Support", "Resistance"})
	t.AppendRow(table.Row{
		res.Trend.Display(),
		fmt.Sprintf("%.2f", res.PCR),
		strike(res.MaxPain),
		strike(res.Support),
		strike(res.Resistance),
	})
	t.Render()
}

func (r *Renderer) buyers(title string, s side, rows []analytics.StrikeRow) {
	t := r.newTable(title)
	t.AppendHeader(table.Row{"Strike", "Volume", "OI Change", "Strength", "Activity"})
	for _, row := range rows {
		vol, oi := legOf(row, s)
		strength := row.CEStrength
		if s == put {
			strength = row.PEStrength
		}
		t.AppendRow(table.Row{
			strike(row.Strike) + " " + s.String(),
			humanize.Comma(vol),
			signed(oi),
			humanize.Comma(int64(math.Round(strength))),
			analytics.Interpret(vol, oi).Display(),
		})
	}
	t.Render()
}

func (r *Renderer) premium(sig analytics.Signals) {
	t := r.newTable("HIGH PREMIUM BUYERS")
	t.AppendHeader(table.Row{"Side", "Strike", "Volume", "OI Change", "Buy Power", "Type"})
	if row := sig.HighestCEBuyer; row != nil {
		t.AppendRow(table.Row{"CE", strike(row.Strike), humanize.Comma(row.CEVolume), signed(row.CEOIChange), fmt.Sprintf("%.1f", row.CEBuyPower), "Aggressive Call Buying (Bullish)"})
	}
	if row := sig.HighestPEBuyer; row != nil {
		t.AppendRow(table.Row{"PE", strike(row.Strike), humanize.Comma(row.PEVolume), signed(row.PEOIChange), fmt.Sprintf("%.1f", row.PEBuyPower), "Aggressive Put Buying (Bearish)"})
	}
	t.Render()
}

func (r *Renderer) walls(sig analytics.Signals) {
	t := r.newTable("STRONG WRITERS ZONE")
	t.AppendHeader(table.Row{"Side", "Strike", "OI Drop (Writing)", "Meaning"})
	if row := sig.StrongestCEWriter; row != nil {
		t.AppendRow(table.Row{"CE", strike(row.Strike), humanize.Comma(row.CEOIChange), "Call Writing, Bearish Wall"})
	}
	if row := sig.StrongestPEWriter; row != nil {
		t.AppendRow(table.Row{"PE", strike(row.Strike), humanize.Comma(row.PEOIChange), "Put Writing, Bullish Wall"})
	}
	t.Render()
}

func (r *Renderer) writers(title string, s side, rows []analytics.StrikeRow) {
	if len(rows) == 0 {
		empty := noCEWriting
		if s == put {
			empty = noPEWriting
		}
		fmt.Fprintf(r.w, "\n%s\n%s\n", title, empty)
		return
	}

	kind := "Call Writing (Bearish)"
	if s == put {
		kind = "Put Writing (Bullish)"
	}

	t := r.newTable(title)
	t.AppendHeader(table.Row{"Strike", "Volume", "OI Change", "Type"})
	for _, row := range rows {
		vol, oi := legOf(row, s)
		t.AppendRow(table.Row{strike(row.Strike) + " " + s.String(), humanize.Comma(vol), humanize.Comma(oi), kind})
	}
	t.Render()
}

func legOf(row analytics.StrikeRow, s side) (volume, oiChange int64) {
	if s == call {
		return row.CEVolume, row.CEOIChange
	}
	return row.PEVolume, row.PEOIChange
}

func strike(v float64) string {
	return humanize.Commaf(v)
}

func signed(v int64) string {
	if v > 0 {
		return "+" + humanize.Comma(v)
	}
	return humanize.Comma(v)
}
