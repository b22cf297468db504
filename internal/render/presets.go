package render

import (
	"fmt"
	"strings"
)

const (
	PresetStandard = "standard"
	PresetEnsemble = "ensemble"
)

// StandardLayout is the four dual-axis panels used for a single deterministic forecast.
func StandardLayout() Layout {
	return Layout{
		Name:  PresetStandard,
		Ticks: TicksSixHourly,
		Panels: []PanelSpec{
			{
				Title: "Temperature and Precipitation",
				Primary: AxisSpec{Label: "Temperature (°C)", Traces: []TraceSpec{
					{Variable: "temperature_2m", Label: "Temperature (°C)", Color: "ff0000", Width: 2},
				}},
				Secondary: &AxisSpec{Label: "Precipitation (mm)", Traces: []TraceSpec{
					{Variable: "precipitation", Label: "Precipitation (mm)", Color: "0000ff", Alpha: 0.6, Width: 1, Fill: true},
				}},
			},
			{
				Title: "Relative Humidity and Wind Speed",
				Primary: AxisSpec{Label: "Relative Humidity (%)", Traces: []TraceSpec{
					{Variable: "relative_humidity_2m", Label: "Relative Humidity (%)", Color: "800080", Width: 2},
				}},
				Secondary: &AxisSpec{Label: "Wind Speed (km/h)", Traces: []TraceSpec{
					{Variable: "wind_speed_10m", Label: "Wind Speed (km/h)", Color: "008000", Width: 2, Style: LineDashed},
				}},
			},
			{
				Title: "Solar Radiation and Cloud Cover",
				Primary: AxisSpec{Label: "Solar Radiation (W/m²)", Traces: []TraceSpec{
					{Variable: "shortwave_radiation", Label: "Solar Radiation (W/m²)", Color: "ffa500", Width: 2},
				}},
				Secondary: &AxisSpec{Label: "Cloud Cover (%)", Traces: []TraceSpec{
					{Variable: "cloud_cover", Label: "Cloud Cover (%)", Color: "808080", Width: 2, Style: LineDashed},
				}},
			},
			{
				Title: "Surface Pressure and Evaporation",
				Primary: AxisSpec{Label: "Surface Pressure (hPa)", Traces: []TraceSpec{
					{Variable: "surface_pressure", Label: "Surface Pressure (hPa)", Color: "a52a2a", Width: 2},
				}},
				Secondary: &AxisSpec{Label: "Evaporat./Pot.Evaporat. (mm)", Traces: []TraceSpec{
					{Variable: "et0_fao_evapotranspiration", Label: "Potential Evaporation (mm)", Color: "ff00ff", Width: 2, Style: LineDashDot},
					{Variable: "evapotranspiration", Label: "Evaporation (mm)", Color: "ffc0cb", Width: 2, Style: LineDashed},
				}},
			},
		},
	}
}

// EnsembleLayout draws one spaghetti panel per variable with a current-time marker.
func EnsembleLayout() Layout {
	member := func(variable, label, color string) PanelSpec {
		return PanelSpec{
			Primary: AxisSpec{Label: label, Traces: []TraceSpec{
				{Variable: variable, Label: label, Color: color, Width: 0.5, Alpha: 0.7},
			}},
			NowMarker: true,
		}
	}
	return Layout{
		Name:  PresetEnsemble,
		Ticks: TicksDayBoundary,
		Panels: []PanelSpec{
			member("temperature_2m", "Temperature (°C)", "000000"),
			member("precipitation", "Precipitation (mm)", "0000ff"),
			member("relative_humidity_2m", "Humidity (%)", "800080"),
			member("wind_speed_10m", "Wind Speed (km/h)", "008000"),
		},
	}
}

// Preset returns a built-in layout by name.
func Preset(name string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PresetStandard:
		return StandardLayout(), nil
	case PresetEnsemble:
		return EnsembleLayout(), nil
	default:
		return Layout{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
}
