// Package render turns a normalized forecast Dataset into a stacked multi-panel PNG.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/google/uuid"
	"github.com/i474232898/forecast-panels/internal/weather"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	DefaultPanelWidth  = 1500
	DefaultPanelHeight = 300
)

// Renderer draws datasets with go-chart. A Renderer holds no per-run state and is safe
// to reuse; its output depends only on the dataset and the layout.
type Renderer struct {
	panelWidth  int
	panelHeight int
}

// Option customizes a Renderer.
type Option func(*Renderer)

// WithPanelSize sets the pixel size of each stacked panel.
func WithPanelSize(width, height int) Option {
	return func(r *Renderer) {
		if width > 0 {
			r.panelWidth = width
		}
		if height > 0 {
			r.panelHeight = height
		}
	}
}

func New(opts ...Option) *Renderer {
	r := &Renderer{
		panelWidth:  DefaultPanelWidth,
		panelHeight: DefaultPanelHeight,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render draws every panel of the layout over the dataset's shared time domain and
// stacks them under a header. It has no side effects; delivering the artifact
// anywhere is the caller's job.
func (r *Renderer) Render(ctx context.Context, ds *weather.Dataset, layout Layout) (*weather.Artifact, error) {
	if ds.Empty() {
		return nil, weather.ErrEmptyDataset
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	start, end := timeDomain(ds)
	panels := make([]image.Image, 0, len(layout.Panels))
	summaries := make([]weather.PanelSummary, 0, len(layout.Panels))

	for i, spec := range layout.Panels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		last := i == len(layout.Panels)-1
		img, summary, err := r.renderPanel(ds, spec, layout.Ticks, start, end, last)
		if err != nil {
			return nil, fmt.Errorf("panel %d: %w", i, err)
		}
		panels = append(panels, img)
		summaries = append(summaries, summary)
	}

	canvas := compose(header(ds), panels, r.panelWidth)
	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	bounds := canvas.Bounds()
	artifact := &weather.Artifact{
		ID:          uuid.NewString(),
		Image:       buf.Bytes(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		GeneratedAt: ds.GeneratedAt,
		Source: weather.SourceConfig{
			Latitude:  ds.Config.Latitude,
			Longitude: ds.Config.Longitude,
			Variables: append([]string(nil), ds.Config.Variables...),
			Model:     ds.Config.Model,
			Members:   ds.Config.Members,
		},
		Panels:   summaries,
		Coverage: copyCoverage(ds.Coverage),
	}
	return artifact, nil
}

func (r *Renderer) renderPanel(
	ds *weather.Dataset,
	spec PanelSpec,
	cadence TickCadence,
	start, end time.Time,
	labelled bool,
) (image.Image, weather.PanelSummary, error) {
	c, summary := r.panelChart(ds, spec, cadence, start, end, labelled)

	var buf bytes.Buffer
	if err := c.Render(chart.PNG, &buf); err != nil {
		return nil, summary, fmt.Errorf("render chart: %w", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		return nil, summary, fmt.Errorf("decode chart: %w", err)
	}
	return img, summary, nil
}

// panelChart builds the go-chart definition of one panel. Only the labelled
// panel shows the time axis. The others hide it and draw their vertical grid
// as series, since go-chart cannot lay out an axis whose tick labels are empty.
func (r *Renderer) panelChart(
	ds *weather.Dataset,
	spec PanelSpec,
	cadence TickCadence,
	start, end time.Time,
	labelled bool,
) (chart.Chart, weather.PanelSummary) {
	primary := buildAxis(ds, spec.Primary, chart.YAxisPrimary)
	primaryRange, primaryTicks := axisRange(primary.values)

	xTicks := timeTicks(cadence, start, end)
	series := []chart.Series{frameSeries(start, end, primaryRange)}

	c := chart.Chart{
		Width:  r.panelWidth,
		Height: r.panelHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 16, Left: 16, Right: 16, Bottom: 8},
		},
		XAxis: chart.XAxis{
			Range: &chart.ContinuousRange{Min: chart.TimeToFloat64(start), Max: chart.TimeToFloat64(end)},
		},
		YAxis: chart.YAxis{
			Name:           spec.Primary.Label,
			NameStyle:      axisNameStyle(spec.Primary),
			Range:          &chart.ContinuousRange{Min: primaryRange.Min, Max: primaryRange.Max},
			Ticks:          primaryTicks,
			GridMajorStyle: gridStyle,
			GridLines:      gridLines(primaryTicks),
		},
	}
	if labelled {
		c.XAxis.Ticks = xTicks
		c.XAxis.GridMajorStyle = gridStyle
		c.XAxis.GridLines = gridLines(xTicks)
	} else {
		c.XAxis.Style = chart.Hidden()
		series = append(series, timeGrid(xTicks, primaryRange)...)
	}
	series = append(series, primary.series...)

	if spec.Title != "" {
		c.Title = spec.Title
		c.TitleStyle = chart.Style{FontSize: 9, FontColor: chart.ColorAlternateGray}
	}

	summary := weather.PanelSummary{
		Title:       spec.Title,
		Series:      primary.lines,
		DomainStart: start,
		DomainEnd:   end,
		Primary:     primaryRange,
	}

	if spec.Secondary != nil {
		secondary := buildAxis(ds, *spec.Secondary, chart.YAxisSecondary)
		secondaryRange, secondaryTicks := axisRange(secondary.values)
		series = append(series, secondary.series...)
		c.YAxisSecondary = chart.YAxis{
			Name:      spec.Secondary.Label,
			NameStyle: axisNameStyle(*spec.Secondary),
			Range:     &chart.ContinuousRange{Min: secondaryRange.Min, Max: secondaryRange.Max},
			Ticks:     secondaryTicks,
		}
		summary.Series += secondary.lines
		summary.Secondary = &secondaryRange
	}

	if spec.NowMarker && !ds.GeneratedAt.Before(start) && !ds.GeneratedAt.After(end) {
		series = append(series, nowMarker(ds.GeneratedAt, primaryRange))
	}
	c.Series = series
	return c, summary
}

type axisSeries struct {
	series []chart.Series
	values []float64
	lines  int
}

// buildAxis converts every trace of an axis into go-chart series. Each member is
// split at null samples so gaps stay visible instead of being bridged.
func buildAxis(ds *weather.Dataset, axis AxisSpec, yAxis chart.YAxisType) axisSeries {
	var out axisSeries
	for _, tr := range axis.Traces {
		for _, member := range ds.Members(tr.Variable) {
			vs, _ := ds.Get(tr.Variable, member)
			out.lines++
			name := tr.Label
			if ds.Ensemble {
				name = fmt.Sprintf("%s #%d", tr.Variable, member)
			}
			for _, seg := range segments(vs.Samples) {
				out.values = append(out.values, seg.values...)
				out.series = append(out.series, chart.TimeSeries{
					Name:    name,
					Style:   traceStyle(tr, len(seg.times) == 1),
					YAxis:   yAxis,
					XValues: seg.times,
					YValues: seg.values,
				})
			}
		}
	}
	return out
}

type segment struct {
	times  []time.Time
	values []float64
}

func segments(samples []weather.Sample) []segment {
	var out []segment
	var cur segment
	for _, s := range samples {
		if s.Value == nil {
			if len(cur.times) > 0 {
				out = append(out, cur)
				cur = segment{}
			}
			continue
		}
		cur.times = append(cur.times, s.Time)
		cur.values = append(cur.values, *s.Value)
	}
	if len(cur.times) > 0 {
		out = append(out, cur)
	}
	return out
}

var gridStyle = chart.Style{
	StrokeColor: drawing.Color{R: 200, G: 200, B: 200, A: 255},
	StrokeWidth: 0.5,
}

func gridLines(ticks []chart.Tick) []chart.GridLine {
	lines := make([]chart.GridLine, 0, len(ticks))
	for _, t := range ticks {
		lines = append(lines, chart.GridLine{Value: t.Value})
	}
	return lines
}

func traceStyle(tr TraceSpec, single bool) chart.Style {
	stroke := tr.stroke()
	style := chart.Style{
		StrokeColor:     stroke,
		StrokeWidth:     tr.width(),
		StrokeDashArray: tr.Style.dashArray(),
	}
	if tr.Fill {
		style.FillColor = stroke.WithAlpha(stroke.A / 2)
	}
	if single {
		style.DotColor = stroke
		style.DotWidth = tr.width() + 1
	}
	return style
}

func axisNameStyle(axis AxisSpec) chart.Style {
	style := chart.Style{FontSize: 9}
	if len(axis.Traces) > 0 {
		style.FontColor = axis.Traces[0].stroke().WithAlpha(255)
	}
	return style
}

// frameSeries is an invisible diagonal across the panel. It keeps every panel
// drawable and pinned to the shared domain even when all of its traces are empty.
func frameSeries(start, end time.Time, r weather.AxisRange) chart.Series {
	return chart.TimeSeries{
		Name:    "frame",
		Style:   chart.Style{StrokeColor: drawing.Color{R: 255, G: 255, B: 255, A: 0}, StrokeWidth: 1},
		XValues: []time.Time{start, end},
		YValues: []float64{r.Min, r.Max},
	}
}

// timeGrid draws one vertical grid line per time tick across the primary range.
func timeGrid(ticks []chart.Tick, r weather.AxisRange) []chart.Series {
	out := make([]chart.Series, 0, len(ticks))
	for _, t := range ticks {
		at := chart.TimeFromFloat64(t.Value)
		out = append(out, chart.TimeSeries{
			Name:    "grid",
			Style:   gridStyle,
			XValues: []time.Time{at, at},
			YValues: []float64{r.Min, r.Max},
		})
	}
	return out
}

func nowMarker(at time.Time, r weather.AxisRange) chart.Series {
	return chart.TimeSeries{
		Name:    "now",
		Style:   chart.Style{StrokeColor: chart.ColorAlternateGray, StrokeWidth: 0.5},
		XValues: []time.Time{at, at},
		YValues: []float64{r.Min, r.Max},
	}
}

func copyCoverage(in map[string]weather.Coverage) map[string]weather.Coverage {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]weather.Coverage, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
