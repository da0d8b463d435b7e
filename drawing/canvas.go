// Package drawing holds the sketch canvas and the user's drawing gallery.
package drawing

import (
	"errors"
	"slices"
	"strconv"
)

var (
	ErrUnknownColor = errors.New("drawing: color is not in the palette")
	ErrStrokeWidth  = errors.New("drawing: stroke width must be positive")
)

// Palette is the set of selectable stroke colors.
var Palette = []string{"#ffffff", "#ff5252", "#4fc3f7", "#9ccc65", "#ffb74d", "#ba68c8"}

// StrokeWidths are the widths offered by the picker. Any positive width is
// accepted.
var StrokeWidths = []float64{2, 5, 10, 15}

const (
	DefaultColor       = "#ffffff"
	DefaultStrokeWidth = 5
)

// Stroke is one continuous line in SVG path syntax.
type Stroke struct {
	Path        string  `json:"path" yaml:"path"`
	Color       string  `json:"color" yaml:"color"`
	StrokeWidth float64 `json:"strokeWidth" yaml:"stroke_width"`
}

// Canvas records touch input as strokes. It is not safe for concurrent use.
type Canvas struct {
	strokes []Stroke
	color   string
	width   float64
}

func NewCanvas() *Canvas {
	return &Canvas{color: DefaultColor, width: DefaultStrokeWidth}
}

// TouchStart begins a new stroke at (x, y) with the current color and width.
func (c *Canvas) TouchStart(x, y float64) {
	c.strokes = append(c.strokes, Stroke{
		Path:        "M " + coord(x) + " " + coord(y),
		Color:       c.color,
		StrokeWidth: c.width,
	})
}

// TouchMove extends the last stroke to (x, y). Without a stroke it does
// nothing.
func (c *Canvas) TouchMove(x, y float64) {
	if len(c.strokes) == 0 {
		return
	}
	last := &c.strokes[len(c.strokes)-1]
	last.Path += " L " + coord(x) + " " + coord(y)
}

func (c *Canvas) Clear() { c.strokes = nil }

func (c *Canvas) SetColor(color string) error {
	if !slices.Contains(Palette, color) {
		return ErrUnknownColor
	}
	c.color = color
	return nil
}

func (c *Canvas) SetStrokeWidth(width float64) error {
	if width <= 0 {
		return ErrStrokeWidth
	}
	c.width = width
	return nil
}

func (c *Canvas) Color() string { return c.color }

func (c *Canvas) StrokeWidth() float64 { return c.width }

func (c *Canvas) Empty() bool { return len(c.strokes) == 0 }

// Strokes returns a copy of the recorded strokes.
func (c *Canvas) Strokes() []Stroke {
	return slices.Clone(c.strokes)
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
