package render

import (
	"fmt"
	"math"
	"time"

	"github.com/i474232898/forecast-panels/internal/weather"
	"github.com/wcharczuk/go-chart/v2"
)

// yTickCount is the number of y ticks each axis aims for.
const yTickCount = 5

// timeDomain is the shared x domain of every panel. A single-sample dataset
// gets a one-hour domain so the axis never collapses.
func timeDomain(ds *weather.Dataset) (time.Time, time.Time) {
	start, end := ds.Domain()
	if !end.After(start) {
		end = start.Add(time.Hour)
	}
	return start, end
}

// timeTicks returns the labelled ticks of the shared time axis.
func timeTicks(cadence TickCadence, start, end time.Time) []chart.Tick {
	loc := start.Location()
	t := time.Date(start.Year(), start.Month(), start.Day(), start.Hour(), 0, 0, 0, loc)
	if t.Before(start) {
		t = t.Add(time.Hour)
	}

	var ticks []chart.Tick
	for ; !t.After(end); t = t.Add(time.Hour) {
		label, ok := tickLabel(cadence, t)
		if !ok {
			continue
		}
		ticks = append(ticks, chart.Tick{Value: chart.TimeToFloat64(t), Label: label})
	}
	return ticks
}

func tickLabel(cadence TickCadence, t time.Time) (string, bool) {
	if t.Minute() != 0 {
		return "", false
	}
	switch cadence {
	case TicksDayBoundary:
		switch t.Hour() {
		case 0:
			return t.Format("2 Jan"), true
		case 12:
			return t.Format("15:04"), true
		}
		return "", false
	default:
		if t.Hour()%6 != 0 {
			return "", false
		}
		return t.Format("01-02 15:04"), true
	}
}

// axisRange computes the y domain of an axis from every drawn value and snaps it
// to nice tick boundaries. Flat and empty ranges are padded so the axis has height.
func axisRange(values []float64) (weather.AxisRange, []chart.Tick) {
	if len(values) == 0 {
		return weather.AxisRange{Min: 0, Max: 1}, niceTicks(0, 1, yTickCount)
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		if lo == 0 {
			hi = 1
		} else {
			pad := math.Abs(lo) * 0.1
			lo, hi = lo-pad, hi+pad
		}
	}

	ticks := niceTicks(lo, hi, yTickCount)
	if len(ticks) < 2 {
		return weather.AxisRange{Min: lo, Max: hi}, ticks
	}
	return weather.AxisRange{Min: ticks[0].Value, Max: ticks[len(ticks)-1].Value}, ticks
}

// niceTicks covers [min, max] with about n ticks on a 1/2/2.5/5 step.
func niceTicks(min, max float64, n int) []chart.Tick {
	if n < 2 || math.IsNaN(min) || math.IsNaN(max) {
		return nil
	}
	if max <= min {
		max = min + 1
	}
	span := max - min
	mag := math.Pow(10, math.Floor(math.Log10(span/float64(n-1))))
	bestStep := mag
	bestScore := math.MaxFloat64
	for _, c := range []float64{1, 2, 2.5, 5, 10} {
		step := c * mag
		count := math.Ceil(span / step)
		if count < 2 {
			count = 2
		}
		if score := math.Abs(count - float64(n)); score < bestScore {
			bestScore = score
			bestStep = step
		}
	}

	start := math.Floor(min/bestStep) * bestStep
	end := math.Ceil(max/bestStep) * bestStep
	steps := int(math.Round((end - start) / bestStep))
	ticks := make([]chart.Tick, 0, steps+1)
	for i := 0; i <= steps; i++ {
		v := start + float64(i)*bestStep
		ticks = append(ticks, chart.Tick{Value: v, Label: formatTick(v)})
	}
	return ticks
}

func formatTick(v float64) string {
	av := math.Abs(v)
	switch {
	case v == 0:
		return "0"
	case av >= 100:
		return fmt.Sprintf("%.0f", v)
	case av >= 10:
		return fmt.Sprintf("%.1f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}
