// Package controls builds the map control panel from the configured
// control descriptors.
package controls

import (
	"github.com/1F47E/porto-climate-map/pkg/canvas"
	"github.com/1F47E/porto-climate-map/pkg/settings"
)

// Kind is the descriptor type tag.
type Kind string

const (
	KindLayerToggle Kind = "layerToggle"
	KindDraw        Kind = "draw"
	KindMeasurement Kind = "measurement"
	KindFullscreen  Kind = "fullscreen"
	KindCustom      Kind = "custom"
)

// Control is one enabled control. Implementations are exactly the types in
// this file.
type Control interface {
	Kind() Kind
	isControl()
}

// LayerToggle shows one checkbox per toggleable layer.
type LayerToggle struct {
	Title    string
	Position canvas.Position
}

// Draw is a placeholder for drawing tools.
type Draw struct {
	Title    string
	Position canvas.Position
}

// Measurement is a placeholder for measurement tools.
type Measurement struct {
	Title    string
	Position canvas.Position
}

// Fullscreen toggles fullscreen display.
type Fullscreen struct {
	Title    string
	Position canvas.Position
}

// Custom is a button whose action is supplied by the host, identified by Name.
type Custom struct {
	Name     string
	Title    string
	Icon     string
	Position canvas.Position
}

func (LayerToggle) Kind() Kind { return KindLayerToggle }
func (Draw) Kind() Kind        { return KindDraw }
func (Measurement) Kind() Kind { return KindMeasurement }
func (Fullscreen) Kind() Kind  { return KindFullscreen }
func (Custom) Kind() Kind      { return KindCustom }

func (LayerToggle) isControl() {}
func (Draw) isControl()        {}
func (Measurement) isControl() {}
func (Fullscreen) isControl()  {}
func (Custom) isControl()      {}

const (
	iconDraw        = "✏️"
	iconMeasurement = "📏"
	iconFullscreen  = "⛶"
	iconCustom      = "★"
)

func resolvePosition(descriptor, panel string) canvas.Position {
	if p, ok := canvas.ParsePosition(descriptor); ok {
		return p
	}
	if p, ok := canvas.ParsePosition(panel); ok {
		return p
	}
	return canvas.TopRight
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func configString(cfg map[string]any, key string) string {
	s, _ := cfg[key].(string)
	return s
}

// Parse converts the enabled descriptors of mc, in order. Descriptors with
// an unknown type are left out and their type tags returned in unknown.
func Parse(mc settings.MapControls) (out []Control, unknown []string) {
	for _, d := range mc.Controls {
		if !d.Enabled {
			continue
		}
		pos := resolvePosition(d.Position, mc.Position)
		switch Kind(d.Type) {
		case KindLayerToggle:
			out = append(out, LayerToggle{Title: orDefault(d.Title, "Layers"), Position: pos})
		case KindDraw:
			out = append(out, Draw{Title: orDefault(d.Title, "Drawing Tools"), Position: pos})
		case KindMeasurement:
			out = append(out, Measurement{Title: orDefault(d.Title, "Measurement Tools"), Position: pos})
		case KindFullscreen:
			out = append(out, Fullscreen{Title: orDefault(d.Title, "Fullscreen"), Position: pos})
		case KindCustom:
			name := orDefault(configString(d.Config, "name"), d.Title)
			out = append(out, Custom{
				Name:     name,
				Title:    orDefault(d.Title, name),
				Icon:     orDefault(configString(d.Config, "icon"), iconCustom),
				Position: pos,
			})
		default:
			unknown = append(unknown, d.Type)
		}
	}
	return out, unknown
}
