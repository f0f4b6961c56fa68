// Package canvas is the map drawing surface: the base view, attached
// overlays, control widgets and the built-in zoom control. Everything
// attached is addressed through a Handle so that it can be released exactly
// once, whatever path the owner takes.
package canvas

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/1F47E/porto-climate-map/pkg/models"
)

// ErrNotAttached is returned when detaching something that is not on the canvas.
var ErrNotAttached = errors.New("canvas: not attached")

// Position is a screen corner.
type Position string

const (
	TopLeft     Position = "topleft"
	TopRight    Position = "topright"
	BottomLeft  Position = "bottomleft"
	BottomRight Position = "bottomright"
)

// ParsePosition accepts the four corner names.
func ParsePosition(s string) (Position, bool) {
	switch p := Position(s); p {
	case TopLeft, TopRight, BottomLeft, BottomRight:
		return p, true
	}
	return "", false
}

// View is the base map: initial center, zoom and tile source.
type View struct {
	Center      models.LatLng `json:"center"`
	Zoom        int           `json:"zoom"`
	TileURL     string        `json:"tileURL"`
	Attribution string        `json:"attribution"`
}

// OverlayKind tags an overlay.
type OverlayKind string

const (
	KindHeat     OverlayKind = "heatmap"
	KindPolygons OverlayKind = "polygons"
	KindMarkers  OverlayKind = "markers"
)

// Heat is a weighted density layer.
type Heat struct {
	Points  []models.HeatPoint `json:"points"`
	Radius  float64            `json:"radius"`
	Blur    float64            `json:"blur"`
	MaxZoom int                `json:"maxZoom"`
}

// Polygon is a filled area. Vertices are drawn in the given order and
// never closed implicitly.
type Polygon struct {
	Key         string          `json:"key"`
	Name        string          `json:"name"`
	Vertices    []models.LatLng `json:"vertices"`
	Stroke      string          `json:"stroke"`
	FillOpacity float64         `json:"fillOpacity"`
	Label       string          `json:"label,omitempty"`
}

// Marker is a point with popup lines.
type Marker struct {
	Key      string        `json:"key"`
	Name     string        `json:"name"`
	Position models.LatLng `json:"position"`
	Popup    []string      `json:"popup"`
}

// Overlay is one attached layer. Exactly one payload matches Kind.
type Overlay struct {
	ID       string      `json:"id"`
	Kind     OverlayKind `json:"kind"`
	Heat     *Heat       `json:"heat,omitempty"`
	Polygons []Polygon   `json:"polygons,omitempty"`
	Markers  []Marker    `json:"markers,omitempty"`
}

// Toggle is one checkbox of a layer toggle widget.
type Toggle struct {
	Key     models.LayerKey `json:"key"`
	Label   string          `json:"label"`
	Checked bool            `json:"checked"`
}

// Widget is an interactive control pinned to a corner.
type Widget struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Position Position `json:"position"`
	Title    string   `json:"title"`
	Icon     string   `json:"icon,omitempty"`
	Toggles  []Toggle `json:"toggles,omitempty"`
}

// Scene is a point-in-time copy of the canvas.
type Scene struct {
	View        View      `json:"view"`
	ZoomControl *Position `json:"zoomControl"`
	Fullscreen  bool      `json:"fullscreen"`
	Overlays    []Overlay `json:"overlays"`
	Widgets     []Widget  `json:"widgets"`
}

// Canvas is safe for concurrent use.
type Canvas struct {
	mu         sync.Mutex
	view       View
	overlays   []Overlay
	widgets    []Widget
	zoom       *Position
	fullscreen bool
}

// New returns a canvas showing view with the zoom control in its default
// top-left corner.
func New(view View) *Canvas {
	pos := TopLeft
	return &Canvas{view: view, zoom: &pos}
}

// AttachOverlay adds o on top of the current overlays.
func (c *Canvas) AttachOverlay(o Overlay) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	o.ID = uuid.NewString()
	c.overlays = append(c.overlays, o)
	return &Handle{id: o.ID, canvas: c}
}

// AttachWidget pins w to its corner.
func (c *Canvas) AttachWidget(w Widget) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	w.ID = uuid.NewString()
	c.widgets = append(c.widgets, w)
	return &Handle{id: w.ID, canvas: c}
}

// Detach removes the overlay or widget with the given id.
func (c *Canvas) Detach(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, o := range c.overlays {
		if o.ID == id {
			c.overlays = append(c.overlays[:i], c.overlays[i+1:]...)
			return nil
		}
	}
	for i, w := range c.widgets {
		if w.ID == id {
			c.widgets = append(c.widgets[:i], c.widgets[i+1:]...)
			return nil
		}
	}
	return ErrNotAttached
}

// SetZoomControl shows the zoom control at pos, restoring it if removed.
func (c *Canvas) SetZoomControl(pos Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zoom = &pos
}

// RemoveZoomControl hides the zoom control.
func (c *Canvas) RemoveZoomControl() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.zoom == nil {
		return ErrNotAttached
	}
	c.zoom = nil
	return nil
}

// ToggleFullscreen flips the fullscreen flag and returns the new state.
func (c *Canvas) ToggleFullscreen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fullscreen = !c.fullscreen
	return c.fullscreen
}

// Widget looks up an attached widget.
func (c *Canvas) Widget(id string) (Widget, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.widgets {
		if w.ID == id {
			return w, true
		}
	}
	return Widget{}, false
}

// Overlays returns the attached overlays of kind, bottom first.
func (c *Canvas) Overlays(kind OverlayKind) []Overlay {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Overlay
	for _, o := range c.overlays {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

// Snapshot copies the current state.
func (c *Canvas) Snapshot() Scene {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Scene{
		View:       c.view,
		Fullscreen: c.fullscreen,
		Overlays:   make([]Overlay, len(c.overlays)),
		Widgets:    make([]Widget, len(c.widgets)),
	}
	if c.zoom != nil {
		pos := *c.zoom
		s.ZoomControl = &pos
	}
	copy(s.Overlays, c.overlays)
	copy(s.Widgets, c.widgets)
	return s
}

// Handle owns one attached overlay or widget.
type Handle struct {
	id     string
	canvas *Canvas
	once   sync.Once
}

// ID of the attached item.
func (h *Handle) ID() string {
	return h.id
}

// Release detaches the item. Only the first call acts; an item that is
// already gone from the canvas is not an error.
func (h *Handle) Release() error {
	var err error
	h.once.Do(func() {
		err = h.canvas.Detach(h.id)
		if errors.Is(err, ErrNotAttached) {
			err = nil
		}
	})
	return err
}
