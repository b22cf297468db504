package render

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"testing"
	"time"

	"github.com/i474232898/forecast-panels/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wcharczuk/go-chart/v2"
)

var base = time.Date(2024, 12, 5, 0, 0, 0, 0, time.FixedZone("CET", 3600))

func val(v float64) *float64 { return &v }

func series(variable string, member int, values ...*float64) weather.VariableSeries {
	s := weather.VariableSeries{Variable: variable, Member: member}
	for i, v := range values {
		s.Samples = append(s.Samples, weather.Sample{Time: base.Add(time.Duration(i) * time.Hour), Value: v})
	}
	return s
}

func testDataset(n int) *weather.Dataset {
	ds := &weather.Dataset{
		Series:      map[weather.SeriesKey]weather.VariableSeries{},
		GeneratedAt: base.Add(2 * time.Hour),
		Config: weather.PipelineConfig{
			Latitude:  41.97,
			Longitude: 2.38,
			Variables: []string{"temperature_2m", "precipitation"},
		},
	}
	temps := make([]*float64, n)
	precip := make([]*float64, n)
	for i := 0; i < n; i++ {
		ds.Times = append(ds.Times, base.Add(time.Duration(i)*time.Hour))
		temps[i] = val(10 + float64(i%5))
		precip[i] = val(0)
	}
	if n > 3 {
		precip[3] = nil
	}
	ds.Series[weather.SeriesKey{Variable: "temperature_2m"}] = series("temperature_2m", 0, temps...)
	ds.Series[weather.SeriesKey{Variable: "precipitation"}] = series("precipitation", 0, precip...)
	return ds
}

func twoPanelLayout() Layout {
	return Layout{
		Name:  "test",
		Ticks: TicksSixHourly,
		Panels: []PanelSpec{
			{
				Primary:   AxisSpec{Label: "Temperature", Traces: []TraceSpec{{Variable: "temperature_2m", Color: "ff0000", Width: 2}}},
				Secondary: &AxisSpec{Label: "Precipitation", Traces: []TraceSpec{{Variable: "precipitation", Color: "0000ff", Alpha: 0.6, Fill: true}}},
				NowMarker: true,
			},
			{
				Primary: AxisSpec{Label: "Precipitation", Traces: []TraceSpec{{Variable: "precipitation", Color: "0000ff"}}},
			},
		},
	}
}

func TestRender_EmptyDataset(t *testing.T) {
	r := New()
	_, err := r.Render(context.Background(), &weather.Dataset{}, twoPanelLayout())
	assert.ErrorIs(t, err, weather.ErrEmptyDataset)

	_, err = r.Render(context.Background(), nil, twoPanelLayout())
	assert.ErrorIs(t, err, weather.ErrEmptyDataset)
}

func TestRender_InvalidLayout(t *testing.T) {
	_, err := New().Render(context.Background(), testDataset(4), Layout{Ticks: TicksSixHourly})
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

func TestRender_ArtifactShape(t *testing.T) {
	ds := testDataset(30)
	r := New(WithPanelSize(600, 200))

	a, err := r.Render(context.Background(), ds, twoPanelLayout())
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, ds.GeneratedAt, a.GeneratedAt)
	assert.Equal(t, 41.97, a.Source.Latitude)
	assert.Equal(t, []string{"temperature_2m", "precipitation"}, a.Source.Variables)

	img, err := png.Decode(bytes.NewReader(a.Image))
	require.NoError(t, err)
	assert.Equal(t, a.Width, img.Bounds().Dx())
	assert.Equal(t, a.Height, img.Bounds().Dy())
	assert.Equal(t, 600, a.Width)
	assert.Equal(t, headerPad*2+headerLineHeight+2*200, a.Height)

	require.Len(t, a.Panels, 2)
	assert.Equal(t, 2, a.Panels[0].Series)
	assert.NotNil(t, a.Panels[0].Secondary)
	assert.Equal(t, 1, a.Panels[1].Series)
	assert.Nil(t, a.Panels[1].Secondary)
}

func TestRender_SharedDomain(t *testing.T) {
	ds := testDataset(12)
	a, err := New(WithPanelSize(400, 150)).Render(context.Background(), ds, firstStandardPanel())
	require.NoError(t, err)

	start, end := ds.Domain()
	for _, p := range a.Panels {
		assert.True(t, p.DomainStart.Equal(start))
		assert.True(t, p.DomainEnd.Equal(end))
	}
}

func TestRender_Idempotent(t *testing.T) {
	ds := testDataset(24)
	r := New(WithPanelSize(500, 180))

	first, err := r.Render(context.Background(), ds, twoPanelLayout())
	require.NoError(t, err)
	second, err := r.Render(context.Background(), ds, twoPanelLayout())
	require.NoError(t, err)

	assert.Equal(t, first.Panels, second.Panels)
	assert.True(t, bytes.Equal(first.Image, second.Image), "images differ between identical renders")
	assert.Equal(t, first.Width, second.Width)
	assert.Equal(t, first.Height, second.Height)
	assert.NotEqual(t, first.ID, second.ID)
}

// renderWithin fails the test instead of hanging when a render does not return.
func renderWithin(t *testing.T, limit time.Duration, fn func() (*weather.Artifact, error)) *weather.Artifact {
	t.Helper()
	type result struct {
		artifact *weather.Artifact
		err      error
	}
	done := make(chan result, 1)
	go func() {
		a, err := fn()
		done <- result{a, err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		return res.artifact
	case <-time.After(limit):
		t.Fatalf("render did not finish within %s", limit)
		return nil
	}
}

// hourly builds n hourly values oscillating between lo and hi.
func hourly(n int, lo, hi float64) []*float64 {
	out := make([]*float64, n)
	for i := range out {
		out[i] = val(lo + (hi-lo)*float64(i%12)/11)
	}
	return out
}

func TestRender_StandardPreset(t *testing.T) {
	const n = 48
	ranges := map[string][2]float64{
		"temperature_2m":             {10, 14},
		"precipitation":              {0, 0},
		"relative_humidity_2m":       {60, 80},
		"wind_speed_10m":             {5, 12},
		"shortwave_radiation":        {0, 420},
		"cloud_cover":                {0, 100},
		"surface_pressure":           {1012, 1016},
		"et0_fao_evapotranspiration": {0, 0.3},
		"evapotranspiration":         {0, 0.2},
	}
	layout := StandardLayout()
	ds := &weather.Dataset{
		Series:      map[weather.SeriesKey]weather.VariableSeries{},
		GeneratedAt: base.Add(5 * time.Hour),
		Config:      weather.PipelineConfig{Latitude: 41.97, Longitude: 2.38, Variables: layout.Variables()},
	}
	for i := 0; i < n; i++ {
		ds.Times = append(ds.Times, base.Add(time.Duration(i)*time.Hour))
	}
	for _, v := range layout.Variables() {
		r := ranges[v]
		ds.Series[weather.SeriesKey{Variable: v}] = series(v, 0, hourly(n, r[0], r[1])...)
	}

	r := New(WithPanelSize(800, 220))
	first := renderWithin(t, 30*time.Second, func() (*weather.Artifact, error) {
		return r.Render(context.Background(), ds, layout)
	})
	second := renderWithin(t, 30*time.Second, func() (*weather.Artifact, error) {
		return r.Render(context.Background(), ds, layout)
	})

	require.Len(t, first.Panels, 4)
	assert.Equal(t, 3, first.Panels[3].Series)
	assert.Equal(t, headerPad*2+headerLineHeight+4*220, first.Height)
	assert.True(t, bytes.Equal(first.Image, second.Image))
}

func TestRender_EnsemblePreset(t *testing.T) {
	const n, members = 72, 5
	layout := EnsembleLayout()
	ds := &weather.Dataset{
		Series:      map[weather.SeriesKey]weather.VariableSeries{},
		Coverage:    map[string]weather.Coverage{},
		Ensemble:    true,
		GeneratedAt: base.Add(30 * time.Hour),
		Config: weather.PipelineConfig{
			Latitude: 41.97, Longitude: 2.38,
			Variables: layout.Variables(), Model: "gfs_seamless", Members: members,
		},
	}
	for i := 0; i < n; i++ {
		ds.Times = append(ds.Times, base.Add(time.Duration(i)*time.Hour))
	}
	for _, v := range layout.Variables() {
		for m := 0; m < members; m++ {
			ds.Series[weather.SeriesKey{Variable: v, Member: m}] = series(v, m, hourly(n, 10+float64(m)*0.3, 13+float64(m)*0.3)...)
		}
		ds.Coverage[v] = weather.Coverage{Expected: members, Populated: members}
	}

	a := renderWithin(t, 30*time.Second, func() (*weather.Artifact, error) {
		return New(WithPanelSize(800, 200)).Render(context.Background(), ds, layout)
	})
	require.Len(t, a.Panels, 4)
	for _, p := range a.Panels {
		assert.Equal(t, members, p.Series)
	}
}

func TestPanelChart_UpperPanelsHideTimeAxis(t *testing.T) {
	ds := testDataset(24)
	start, end := timeDomain(ds)
	spec := StandardLayout().Panels[0]
	r := New()

	bottom, _ := r.panelChart(ds, spec, TicksSixHourly, start, end, true)
	assert.False(t, bottom.XAxis.Style.Hidden)
	require.NotEmpty(t, bottom.XAxis.Ticks)
	for _, tick := range bottom.XAxis.Ticks {
		assert.NotEmpty(t, tick.Label)
	}

	upper, _ := r.panelChart(ds, spec, TicksSixHourly, start, end, false)
	assert.True(t, upper.XAxis.Style.Hidden)
	assert.Empty(t, upper.XAxis.Ticks)

	var grid []float64
	for _, s := range upper.Series {
		if s.GetName() == "grid" {
			ts := s.(chart.TimeSeries)
			grid = append(grid, chart.TimeToFloat64(ts.XValues[0]))
		}
	}
	require.Len(t, grid, len(bottom.XAxis.Ticks))
	for i, tick := range bottom.XAxis.Ticks {
		assert.InDelta(t, tick.Value, grid[i], 1e3)
	}
}

func TestRender_SingleSample(t *testing.T) {
	ds := testDataset(1)
	a, err := New(WithPanelSize(400, 150)).Render(context.Background(), ds, twoPanelLayout())
	require.NoError(t, err)
	assert.Equal(t, time.Hour, a.Panels[0].DomainEnd.Sub(a.Panels[0].DomainStart))
}

func TestRender_EnsembleSpaghetti(t *testing.T) {
	ds := &weather.Dataset{
		Series:      map[weather.SeriesKey]weather.VariableSeries{},
		Coverage:    map[string]weather.Coverage{"temperature_2m": {Expected: 4, Populated: 3}},
		Ensemble:    true,
		GeneratedAt: base.Add(time.Hour),
		Config:      weather.PipelineConfig{Variables: []string{"temperature_2m"}, Model: "gfs_seamless", Members: 4},
	}
	for i := 0; i < 48; i++ {
		ds.Times = append(ds.Times, base.Add(time.Duration(i)*time.Hour))
	}
	for _, m := range []int{0, 1, 3} {
		values := make([]*float64, len(ds.Times))
		for i := range values {
			values[i] = val(float64(m + i%7))
		}
		ds.Series[weather.SeriesKey{Variable: "temperature_2m", Member: m}] = series("temperature_2m", m, values...)
	}

	layout := Layout{Ticks: TicksDayBoundary, Panels: EnsembleLayout().Panels[:1]}
	a, err := New(WithPanelSize(500, 180)).Render(context.Background(), ds, layout)
	require.NoError(t, err)

	require.Len(t, a.Panels, 1)
	assert.Equal(t, 3, a.Panels[0].Series)
	assert.Equal(t, weather.Coverage{Expected: 4, Populated: 3}, a.Coverage["temperature_2m"])
	assert.Equal(t, headerPad*2+2*headerLineHeight+180, a.Height)
}

func TestRender_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(WithPanelSize(300, 120)).Render(ctx, testDataset(6), twoPanelLayout())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTimeTicks(t *testing.T) {
	start := base.Add(time.Hour)
	end := base.Add(36 * time.Hour)

	t.Run("six hourly", func(t *testing.T) {
		ticks := timeTicks(TicksSixHourly, start, end)
		labels := tickLabels(ticks)
		assert.Equal(t, []string{"12-05 06:00", "12-05 12:00", "12-05 18:00", "12-06 00:00", "12-06 06:00", "12-06 12:00"}, labels)
		assert.Equal(t, chart.TimeToFloat64(base.Add(6*time.Hour)), ticks[0].Value)
	})

	t.Run("day boundary", func(t *testing.T) {
		labels := tickLabels(timeTicks(TicksDayBoundary, start, end))
		assert.Equal(t, []string{"12:00", "6 Dec", "12:00"}, labels)
	})

	t.Run("cadence independent of dataset size", func(t *testing.T) {
		short := timeTicks(TicksSixHourly, base, base.Add(12*time.Hour))
		long := timeTicks(TicksSixHourly, base, base.Add(120*time.Hour))
		assert.Equal(t, 6*time.Hour, tickGap(short))
		assert.Equal(t, 6*time.Hour, tickGap(long))
	})
}

func tickLabels(ticks []chart.Tick) []string {
	out := make([]string, len(ticks))
	for i, t := range ticks {
		out[i] = t.Label
	}
	return out
}

func tickGap(ticks []chart.Tick) time.Duration {
	return time.Duration(ticks[1].Value - ticks[0].Value)
}

func TestAxisRange(t *testing.T) {
	r, ticks := axisRange(nil)
	assert.Equal(t, weather.AxisRange{Min: 0, Max: 1}, r)
	assert.NotEmpty(t, ticks)

	r, _ = axisRange([]float64{0, 0, 0})
	assert.Equal(t, weather.AxisRange{Min: 0, Max: 1}, r)

	r, _ = axisRange([]float64{3.2, 17.9, 8})
	assert.LessOrEqual(t, r.Min, 3.2)
	assert.GreaterOrEqual(t, r.Max, 17.9)

	r, _ = axisRange([]float64{1013, 1013})
	assert.Less(t, r.Min, 1013.0)
	assert.Greater(t, r.Max, 1013.0)
}

func TestSegments(t *testing.T) {
	s := series("precipitation", 0, val(1), val(2), nil, val(3), nil, nil, val(4), val(5))
	segs := segments(s.Samples)
	require.Len(t, segs, 3)
	assert.Equal(t, []float64{1, 2}, segs[0].values)
	assert.Equal(t, []float64{3}, segs[1].values)
	assert.Equal(t, []float64{4, 5}, segs[2].values)

	assert.Empty(t, segments(series("precipitation", 0, nil, nil).Samples))
}

func firstStandardPanel() Layout {
	l := StandardLayout()
	l.Panels = l.Panels[:1]
	return l
}
