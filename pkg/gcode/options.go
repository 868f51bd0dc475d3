// Package gcode holds types and helpers shared by the SVG compiler and the
// transport: canvas placement options and the small set of formatting rules
// for emitted G-code (coordinate precision, dwell syntax, feed-rate syntax).
package gcode

import "fmt"

// ScaleMode controls how SVG-unit geometry is resized onto the machine
// canvas.
type ScaleMode string

const (
	// ScaleFit scales by the smaller of the two axis ratios, up or down.
	ScaleFit ScaleMode = "fit"
	// ScaleContain behaves like ScaleFit but never enlarges past 1x.
	ScaleContain ScaleMode = "contain"
	// ScaleNone assumes SVG units are already millimetres.
	ScaleNone ScaleMode = "none"
)

// AlignX controls horizontal placement within the available (margin-inset)
// area.
type AlignX string

// AlignY controls vertical placement within the available area.
type AlignY string

const (
	AlignLeft   AlignX = "left"
	AlignCenter AlignX = "center"
	AlignRight  AlignX = "right"

	AlignFront AlignY = "front"
	AlignMid   AlignY = "center"
	AlignBack  AlignY = "back"
)

// CanvasOptions is the recognized configuration for the SVG-to-G-code
// compiler.
type CanvasOptions struct {
	CanvasWidth  float64 `mapstructure:"canvasWidth"`
	CanvasHeight float64 `mapstructure:"canvasHeight"`
	Margin       float64 `mapstructure:"margin"`

	TravelSpeed float64 `mapstructure:"travelSpeed"`
	DrawSpeed   float64 `mapstructure:"drawSpeed"`

	PenDownDelay float64 `mapstructure:"penDownDelay"`
	PenUpDelay   float64 `mapstructure:"penUpDelay"`

	Optimize          bool    `mapstructure:"optimize"`
	Simplify          bool    `mapstructure:"simplify"`
	SimplifyTolerance float64 `mapstructure:"simplifyTolerance"`

	ScaleMode ScaleMode `mapstructure:"scaleMode"`
	AlignX    AlignX    `mapstructure:"alignX"`
	AlignY    AlignY    `mapstructure:"alignY"`
}

// DefaultCanvasOptions returns the option set a bare request falls back to.
func DefaultCanvasOptions() CanvasOptions {
	return CanvasOptions{
		CanvasWidth:  300,
		CanvasHeight: 300,
		Margin:       10,
		TravelSpeed:  6000,
		DrawSpeed:    3000,
		PenDownDelay: 150,
		PenUpDelay:   100,
		ScaleMode:    ScaleFit,
		AlignX:       AlignCenter,
		AlignY:       AlignMid,
	}
}

// FormatCoord renders a coordinate with the three decimal places the wire
// format requires.
func FormatCoord(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

// FormatFeed renders a feed rate as an integer F value.
func FormatFeed(v float64) string {
	return fmt.Sprintf("%d", int(v+0.5))
}

// Dwell renders a G4 dwell command for the given millisecond duration. A
// non-positive duration yields an empty string: no dwell is emitted.
func Dwell(ms float64) string {
	if ms <= 0 {
		return ""
	}
	return fmt.Sprintf("G4 P%d", int(ms+0.5))
}
