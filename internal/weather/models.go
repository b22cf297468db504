package weather

import (
	"slices"
	"time"
)

// PipelineConfig is the immutable input to one fetch -> normalize -> render run.
type PipelineConfig struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Variables []string `json:"variables"`

	// Model selects ensemble mode when non-empty (e.g. "gfs_seamless").
	Model   string `json:"model,omitempty"`
	Members int    `json:"members,omitempty"`

	// Timezone is passed through to the API: "auto" or an IANA zone name.
	Timezone string `json:"timezone"`

	// FromNow drops samples that lie before the normalization wall clock.
	FromNow bool `json:"fromNow"`
}

// Ensemble reports whether the run requests per-member series.
func (c PipelineConfig) Ensemble() bool {
	return c.Model != ""
}

// RawResponse is the decoded forecast API payload.
// Hourly holds every numeric sequence keyed exactly as the API names it;
// nil entries are JSON nulls.
type RawResponse struct {
	Latitude             float64
	Longitude            float64
	UTCOffsetSeconds     int
	Timezone             string
	TimezoneAbbreviation string

	Time   []string
	Hourly map[string][]*float64
	Units  map[string]string
}

// Zone returns the fixed zone the API used for the local timestamps.
func (r *RawResponse) Zone() *time.Location {
	name := r.TimezoneAbbreviation
	if name == "" {
		name = r.Timezone
	}
	if name == "" && r.UTCOffsetSeconds == 0 {
		return time.UTC
	}
	return time.FixedZone(name, r.UTCOffsetSeconds)
}

// Sample is one instant of a series. Value is nil when the API had no value.
type Sample struct {
	Time  time.Time `json:"time"`
	Value *float64  `json:"value"`
}

// VariableSeries is one physical quantity for one member, aligned to its dataset's timestamps.
type VariableSeries struct {
	Variable string   `json:"variable"`
	Member   int      `json:"member"`
	Unit     string   `json:"unit"`
	Samples  []Sample `json:"samples"`
}

// SeriesKey indexes a series inside a Dataset. Member is 0 outside ensemble mode.
type SeriesKey struct {
	Variable string
	Member   int
}

// Coverage counts expected versus populated ensemble members for a variable.
type Coverage struct {
	Expected  int `json:"expected"`
	Populated int `json:"populated"`
}

// Complete reports whether every expected member was present.
func (c Coverage) Complete() bool {
	return c.Populated >= c.Expected
}

// Dataset is the normalized, aligned result of one fetch.
// Every series has exactly len(Times) samples; a missing member has no key at all.
type Dataset struct {
	Times       []time.Time
	Series      map[SeriesKey]VariableSeries
	Coverage    map[string]Coverage
	GeneratedAt time.Time
	Ensemble    bool
	Config      PipelineConfig
}

// Empty reports whether the dataset has no timestamps.
func (d *Dataset) Empty() bool {
	return d == nil || len(d.Times) == 0
}

// Members returns the populated member indices of a variable in ascending order.
func (d *Dataset) Members(variable string) []int {
	var members []int
	for key := range d.Series {
		if key.Variable == variable {
			members = append(members, key.Member)
		}
	}
	slices.Sort(members)
	return members
}

// Get returns the series for a variable/member pair.
func (d *Dataset) Get(variable string, member int) (VariableSeries, bool) {
	s, ok := d.Series[SeriesKey{Variable: variable, Member: member}]
	return s, ok
}

// Domain returns the first and last timestamp of the dataset.
func (d *Dataset) Domain() (time.Time, time.Time) {
	if d.Empty() {
		return time.Time{}, time.Time{}
	}
	return d.Times[0], d.Times[len(d.Times)-1]
}

// SourceConfig records what produced an artifact.
type SourceConfig struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Variables []string `json:"variables"`
	Model     string   `json:"model,omitempty"`
	Members   int      `json:"members,omitempty"`
}

// AxisRange is the y domain drawn on one panel axis.
type AxisRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// PanelSummary describes what a rendered panel contains.
type PanelSummary struct {
	Title       string     `json:"title"`
	Series      int        `json:"series"`
	DomainStart time.Time  `json:"domainStart"`
	DomainEnd   time.Time  `json:"domainEnd"`
	Primary     AxisRange  `json:"primary"`
	Secondary   *AxisRange `json:"secondary,omitempty"`
}

// Artifact is a rendered chart plus the metadata needed to serve it.
// Artifacts are never mutated after creation.
type Artifact struct {
	ID          string              `json:"id"`
	Image       []byte              `json:"-"`
	Width       int                 `json:"width"`
	Height      int                 `json:"height"`
	GeneratedAt time.Time           `json:"generatedAt"`
	Source      SourceConfig        `json:"source"`
	Panels      []PanelSummary      `json:"panels"`
	Coverage    map[string]Coverage `json:"coverage,omitempty"`
}
