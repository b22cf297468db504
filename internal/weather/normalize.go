package weather

import (
	"fmt"
	"slices"
	"time"
)

// Step is the spacing of the shared time axis.
const Step = time.Hour

var timestampLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// Normalize turns a raw forecast payload into an aligned Dataset.
//
// In ensemble mode every member 0..cfg.Members-1 is resolved through MemberKey;
// members absent from the payload are left out of the dataset. A requested
// variable with no sequence at all is a *MissingVariableError. Sequences whose
// length differs from the time axis fail with ErrAlignment rather than being
// truncated, and so does a time axis that is not evenly spaced by Step. With cfg.FromNow the dataset starts at the first sample at or
// after now, and may end up empty.
func Normalize(raw *RawResponse, cfg PipelineConfig, now time.Time) (*Dataset, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: nil response", ErrMalformedResponse)
	}

	times, err := parseTimes(raw.Time, raw.Zone())
	if err != nil {
		return nil, err
	}

	// Check every sequence, not only the requested ones: a partial upstream
	// payload must never be silently cut to the shortest series.
	for key, values := range raw.Hourly {
		if len(values) != len(times) {
			return nil, fmt.Errorf("%w: %q has %d samples, time axis has %d",
				ErrAlignment, key, len(values), len(times))
		}
	}

	ds := &Dataset{
		Series:      make(map[SeriesKey]VariableSeries),
		Coverage:    make(map[string]Coverage),
		GeneratedAt: now,
		Ensemble:    cfg.Ensemble(),
		Config:      cfg,
	}

	for _, variable := range cfg.Variables {
		members := []int{0}
		if cfg.Ensemble() {
			members = memberRange(cfg.Members)
		}

		cov := Coverage{Expected: len(members)}
		for _, member := range members {
			key := variable
			if cfg.Ensemble() {
				key = MemberKey(variable, member)
			}
			values, ok := raw.Hourly[key]
			if !ok {
				continue
			}
			ds.Series[SeriesKey{Variable: variable, Member: member}] = VariableSeries{
				Variable: variable,
				Member:   member,
				Unit:     unitFor(raw, variable, key),
				Samples:  zipSamples(times, values),
			}
			cov.Populated++
		}

		if cov.Populated == 0 {
			return nil, &MissingVariableError{Variable: variable}
		}
		ds.Coverage[variable] = cov
	}

	ds.Times = times
	if cfg.FromNow {
		ds.truncateBefore(now)
	}
	return ds, nil
}

func parseTimes(raw []string, zone *time.Location) ([]time.Time, error) {
	times := make([]time.Time, len(raw))
	for i, s := range raw {
		t, err := parseTimestamp(s, zone)
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp %d: %v", ErrMalformedResponse, i, err)
		}
		if i > 0 && !t.After(times[i-1]) {
			return nil, fmt.Errorf("%w: timestamp %q does not follow %q",
				ErrAlignment, s, raw[i-1])
		}
		if i > 0 && t.Sub(times[i-1]) != Step {
			return nil, fmt.Errorf("%w: %q is %s after %q, want %s",
				ErrAlignment, s, t.Sub(times[i-1]), raw[i-1], Step)
		}
		times[i] = t
	}
	return times, nil
}

func parseTimestamp(s string, zone *time.Location) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, zone); err == nil {
			return t, nil
		}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(zone), nil
}

func memberRange(n int) []int {
	if n < 1 {
		n = 1
	}
	members := make([]int, n)
	for i := range members {
		members[i] = i
	}
	return members
}

func zipSamples(times []time.Time, values []*float64) []Sample {
	samples := make([]Sample, len(times))
	for i, t := range times {
		samples[i] = Sample{Time: t, Value: values[i]}
	}
	return samples
}

func unitFor(raw *RawResponse, variable, key string) string {
	if u, ok := raw.Units[key]; ok {
		return u
	}
	return raw.Units[variable]
}

// truncateBefore drops every sample earlier than cutoff from the time axis and all series.
func (d *Dataset) truncateBefore(cutoff time.Time) {
	start, _ := slices.BinarySearchFunc(d.Times, cutoff, func(t, target time.Time) int {
		return t.Compare(target)
	})

	d.Times = d.Times[start:]
	for key, s := range d.Series {
		s.Samples = s.Samples[start:]
		d.Series[key] = s
	}
}
