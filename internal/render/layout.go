package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// LineStyle is the stroke pattern of a trace.
type LineStyle string

const (
	LineSolid   LineStyle = "solid"
	LineDashed  LineStyle = "dashed"
	LineDashDot LineStyle = "dashdot"
	LineDotted  LineStyle = "dotted"
)

func (s LineStyle) dashArray() []float64 {
	switch s {
	case LineDashed:
		return []float64{6, 4}
	case LineDashDot:
		return []float64{6, 3, 2, 3}
	case LineDotted:
		return []float64{2, 3}
	default:
		return nil
	}
}

// TickCadence selects how the shared time axis is labelled.
type TickCadence string

const (
	// TicksSixHourly places a tick every 6 hours labelled "01-02 15:04".
	TicksSixHourly TickCadence = "six-hourly"
	// TicksDayBoundary places ticks at 00:00 ("2 Jan") and 12:00 ("12:00").
	TicksDayBoundary TickCadence = "day-boundary"
)

// TraceSpec is one variable drawn on an axis. In ensemble datasets every
// populated member of the variable is drawn with the same style.
type TraceSpec struct {
	Variable string    `koanf:"variable" json:"variable"`
	Label    string    `koanf:"label" json:"label"`
	Color    string    `koanf:"color" json:"color"`
	Style    LineStyle `koanf:"style" json:"style"`
	Alpha    float64   `koanf:"alpha" json:"alpha"`
	Width    float64   `koanf:"width" json:"width"`
	Fill     bool      `koanf:"fill" json:"fill"`
}

// AxisSpec is one y axis of a panel.
type AxisSpec struct {
	Label  string      `koanf:"label" json:"label"`
	Traces []TraceSpec `koanf:"traces" json:"traces"`
}

// PanelSpec is one stacked panel with a primary and an optional secondary y axis.
type PanelSpec struct {
	Title     string    `koanf:"title" json:"title"`
	Primary   AxisSpec  `koanf:"primary" json:"primary"`
	Secondary *AxisSpec `koanf:"secondary" json:"secondary,omitempty"`
	NowMarker bool      `koanf:"now_marker" json:"nowMarker"`
}

// Layout is the ordered list of panels making up one artifact.
type Layout struct {
	Name   string      `koanf:"name" json:"name"`
	Panels []PanelSpec `koanf:"panels" json:"panels"`
	Ticks  TickCadence `koanf:"ticks" json:"ticks"`
}

// Validate reports the first structural problem in the layout.
func (l Layout) Validate() error {
	if len(l.Panels) == 0 {
		return fmt.Errorf("%w: no panels", ErrInvalidLayout)
	}
	switch l.Ticks {
	case TicksSixHourly, TicksDayBoundary:
	default:
		return fmt.Errorf("%w: unknown tick cadence %q", ErrInvalidLayout, l.Ticks)
	}

	for i, p := range l.Panels {
		if len(p.Primary.Traces) == 0 {
			return fmt.Errorf("%w: panel %d has no primary traces", ErrInvalidLayout, i)
		}
		axes := []AxisSpec{p.Primary}
		if p.Secondary != nil {
			if len(p.Secondary.Traces) == 0 {
				return fmt.Errorf("%w: panel %d has an empty secondary axis", ErrInvalidLayout, i)
			}
			axes = append(axes, *p.Secondary)
		}
		for _, axis := range axes {
			for _, tr := range axis.Traces {
				if err := tr.validate(); err != nil {
					return fmt.Errorf("%w: panel %d: %v", ErrInvalidLayout, i, err)
				}
			}
		}
	}
	return nil
}

func (t TraceSpec) validate() error {
	if strings.TrimSpace(t.Variable) == "" {
		return fmt.Errorf("trace without variable")
	}
	if _, err := parseColor(t.Color); err != nil {
		return fmt.Errorf("trace %s: %v", t.Variable, err)
	}
	if t.Alpha < 0 || t.Alpha > 1 {
		return fmt.Errorf("trace %s: alpha %v out of [0,1]", t.Variable, t.Alpha)
	}
	if t.Width < 0 {
		return fmt.Errorf("trace %s: negative width", t.Variable)
	}
	switch t.Style {
	case "", LineSolid, LineDashed, LineDashDot, LineDotted:
	default:
		return fmt.Errorf("trace %s: unknown line style %q", t.Variable, t.Style)
	}
	return nil
}

// Variables lists every variable the layout draws, in first-use order.
func (l Layout) Variables() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(axis AxisSpec) {
		for _, tr := range axis.Traces {
			if _, ok := seen[tr.Variable]; ok {
				continue
			}
			seen[tr.Variable] = struct{}{}
			out = append(out, tr.Variable)
		}
	}
	for _, p := range l.Panels {
		add(p.Primary)
		if p.Secondary != nil {
			add(*p.Secondary)
		}
	}
	return out
}

// parseColor accepts "rrggbb" or "#rrggbb".
func parseColor(hex string) (drawing.Color, error) {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(s) != 6 {
		return drawing.Color{}, fmt.Errorf("color %q is not rrggbb", hex)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return drawing.Color{}, fmt.Errorf("color %q: %v", hex, err)
	}
	return drawing.Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

func (t TraceSpec) stroke() drawing.Color {
	c, _ := parseColor(t.Color)
	alpha := t.Alpha
	if alpha == 0 {
		alpha = 1
	}
	return c.WithAlpha(uint8(alpha * 255))
}

func (t TraceSpec) width() float64 {
	if t.Width == 0 {
		return 1
	}
	return t.Width
}
