package controls

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/1F47E/porto-climate-map/pkg/canvas"
	"github.com/1F47E/porto-climate-map/pkg/metrics"
	"github.com/1F47E/porto-climate-map/pkg/models"
	"github.com/1F47E/porto-climate-map/pkg/settings"
)

var (
	ErrUnknownWidget = errors.New("controls: unknown widget")
	ErrUnknownToggle = errors.New("controls: layer not offered by this widget")
)

// Callbacks are the host actions behind the widgets. Any nil button
// callback falls back to the built-in stub.
type Callbacks struct {
	OnLayerToggle func(key models.LayerKey, visible bool) error
	OnDraw        func()
	OnMeasure     func()
	OnFullscreen  func()
	OnCustom      func(name string)
}

// Action is the user input sent to a widget. Layer and Checked are only
// read by layer toggles.
type Action struct {
	Layer   models.LayerKey `json:"layer,omitempty"`
	Checked bool            `json:"checked"`
}

// Result tells the page what happened.
type Result struct {
	Kind       Kind   `json:"kind"`
	Handled    bool   `json:"handled"`
	Alert      string `json:"alert,omitempty"`
	Fullscreen *bool  `json:"fullscreen,omitempty"`
}

// Panel attaches one widget per control to a canvas. Mount and Unmount
// may be called any number of times in any order.
type Panel struct {
	mu        sync.Mutex
	canvas    *canvas.Canvas
	cfg       *settings.Settings
	controls  []Control
	callbacks Callbacks
	log       *slog.Logger

	handles []*canvas.Handle
	widgets map[string]Control
}

// New parses the controls of cfg. Unknown control types are logged and skipped.
func New(c *canvas.Canvas, cfg *settings.Settings, cb Callbacks, log *slog.Logger) *Panel {
	if log == nil {
		log = slog.Default()
	}
	parsed, unknown := Parse(cfg.MapControls)
	for _, t := range unknown {
		log.Warn("control_unknown_type", "type", t)
	}
	return &Panel{
		canvas:    c,
		cfg:       cfg,
		controls:  parsed,
		callbacks: cb,
		log:       log,
		widgets:   map[string]Control{},
	}
}

// Controls returns the parsed controls in configuration order.
func (p *Panel) Controls() []Control {
	out := make([]Control, len(p.controls))
	copy(out, p.controls)
	return out
}

// Mount places the zoom control and attaches every widget, reflecting vis
// in the layer toggles. A mounted panel is unmounted first.
func (p *Panel) Mount(vis models.LayerVisibility) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.unmountLocked()

	mc := p.cfg.MapControls
	if mc.EnableZoomControls {
		p.canvas.SetZoomControl(resolvePosition("", mc.Position))
	} else if err := p.canvas.RemoveZoomControl(); err != nil {
		p.log.Debug("zoom_control_absent", "err", err)
	}

	for _, c := range p.controls {
		w := p.widgetFor(c, vis)
		h := p.canvas.AttachWidget(w)
		p.handles = append(p.handles, h)
		p.widgets[h.ID()] = c
	}
	p.log.Debug("controls_mounted", "widgets", len(p.handles))
}

// Unmount detaches every widget this panel attached. Widgets already gone
// from the canvas are ignored.
func (p *Panel) Unmount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unmountLocked()
}

// Remount reattaches the widgets for new inputs.
func (p *Panel) Remount(vis models.LayerVisibility) {
	p.Mount(vis)
}

// Mounted reports whether widgets are attached.
func (p *Panel) Mounted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles) > 0
}

func (p *Panel) unmountLocked() {
	for _, h := range p.handles {
		if err := h.Release(); err != nil {
			p.log.Debug("control_detach_failed", "widget", h.ID(), "err", err)
		}
	}
	p.handles = nil
	p.widgets = map[string]Control{}
}

func (p *Panel) toggles(vis models.LayerVisibility) []canvas.Toggle {
	labels := map[models.LayerKey]string{
		models.LayerHeatmap:    "Heatmap",
		models.LayerGreenZones: "Green Zones",
		models.LayerSensors:    "Sensors",
	}
	var out []canvas.Toggle
	for _, key := range models.LayerKeys {
		// the sensors toggle is always offered
		if key != models.LayerSensors && !p.cfg.Features.Enabled(key) {
			continue
		}
		checked, ok := vis[key]
		out = append(out, canvas.Toggle{Key: key, Label: labels[key], Checked: !ok || checked})
	}
	return out
}

func (p *Panel) widgetFor(c Control, vis models.LayerVisibility) canvas.Widget {
	w := canvas.Widget{Kind: string(c.Kind())}
	switch c := c.(type) {
	case LayerToggle:
		w.Title, w.Position = c.Title, c.Position
		w.Toggles = p.toggles(vis)
	case Draw:
		w.Title, w.Position, w.Icon = c.Title, c.Position, iconDraw
	case Measurement:
		w.Title, w.Position, w.Icon = c.Title, c.Position, iconMeasurement
	case Fullscreen:
		w.Title, w.Position, w.Icon = c.Title, c.Position, iconFullscreen
	case Custom:
		w.Title, w.Position, w.Icon = c.Title, c.Position, c.Icon
	}
	return w
}

// Invoke runs the action of the widget with the given id.
func (p *Panel) Invoke(widgetID string, a Action) (Result, error) {
	p.mu.Lock()
	c, ok := p.widgets[widgetID]
	p.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownWidget, widgetID)
	}
	metrics.ControlActionsTotal.WithLabelValues(string(c.Kind())).Inc()

	res := Result{Kind: c.Kind(), Handled: true}
	switch c := c.(type) {
	case LayerToggle:
		if !p.offers(widgetID, a.Layer) {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownToggle, a.Layer)
		}
		if p.callbacks.OnLayerToggle == nil {
			res.Handled = false
			return res, nil
		}
		if err := p.callbacks.OnLayerToggle(a.Layer, a.Checked); err != nil {
			return Result{}, err
		}
	case Draw:
		if p.callbacks.OnDraw != nil {
			p.callbacks.OnDraw()
		} else {
			res.Alert = "Drawing tools would be implemented here"
		}
	case Measurement:
		if p.callbacks.OnMeasure != nil {
			p.callbacks.OnMeasure()
		} else {
			res.Alert = "Measurement tools would be implemented here"
		}
	case Fullscreen:
		if p.callbacks.OnFullscreen != nil {
			p.callbacks.OnFullscreen()
		} else {
			on := p.canvas.ToggleFullscreen()
			res.Fullscreen = &on
		}
	case Custom:
		if p.callbacks.OnCustom != nil {
			p.callbacks.OnCustom(c.Name)
		} else {
			res.Alert = c.Title + " would be implemented here"
		}
	}
	return res, nil
}

func (p *Panel) offers(widgetID string, key models.LayerKey) bool {
	w, ok := p.canvas.Widget(widgetID)
	if !ok {
		return false
	}
	for _, t := range w.Toggles {
		if t.Key == key {
			return true
		}
	}
	return false
}
