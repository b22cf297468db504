package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sort"
	"strings"

	"github.com/i474232898/forecast-panels/internal/weather"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	headerLineHeight = 16
	headerPad        = 6
)

// header returns the text lines drawn above the panels. Everything in it comes
// from the dataset, so two renders of the same dataset draw the same header.
func header(ds *weather.Dataset) []string {
	cfg := ds.Config
	first := fmt.Sprintf("lat %.2f  lon %.2f", cfg.Latitude, cfg.Longitude)
	if cfg.Ensemble() {
		first += fmt.Sprintf("  model %s", cfg.Model)
	}
	first += "  generated " + ds.GeneratedAt.Format("2006-01-02 15:04 MST")

	lines := []string{first}
	if !ds.Ensemble || len(ds.Coverage) == 0 {
		return lines
	}

	vars := make([]string, 0, len(ds.Coverage))
	for v := range ds.Coverage {
		vars = append(vars, v)
	}
	sort.Strings(vars)

	parts := make([]string, 0, len(vars))
	for _, v := range vars {
		c := ds.Coverage[v]
		parts = append(parts, fmt.Sprintf("%s %d/%d", v, c.Populated, c.Expected))
	}
	return append(lines, "members: "+strings.Join(parts, "  "))
}

// compose stacks the panels vertically under the header text.
func compose(lines []string, panels []image.Image, width int) *image.RGBA {
	headerHeight := headerPad*2 + headerLineHeight*len(lines)
	height := headerHeight
	for _, p := range panels {
		height += p.Bounds().Dy()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	dr := &font.Drawer{Dst: canvas, Src: image.NewUniform(color.RGBA{R: 40, G: 40, B: 40, A: 255}), Face: face}
	for i, line := range lines {
		y := headerPad + headerLineHeight*i + face.Metrics().Ascent.Ceil()
		dr.Dot = fixed.Point26_6{X: fixed.I(16), Y: fixed.I(y)}
		dr.DrawString(line)
	}

	y := headerHeight
	for _, p := range panels {
		b := p.Bounds()
		dst := image.Rect(0, y, b.Dx(), y+b.Dy())
		draw.Draw(canvas, dst, p, b.Min, draw.Over)
		y += b.Dy()
	}
	return canvas
}
