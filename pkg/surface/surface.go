// Package surface owns the map state: the fetched entity lists, the layer
// visibility and everything attached to the canvas because of them.
package surface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/1F47E/porto-climate-map/pkg/canvas"
	"github.com/1F47E/porto-climate-map/pkg/controls"
	"github.com/1F47E/porto-climate-map/pkg/geo"
	"github.com/1F47E/porto-climate-map/pkg/metrics"
	"github.com/1F47E/porto-climate-map/pkg/models"
	"github.com/1F47E/porto-climate-map/pkg/overlay"
	"github.com/1F47E/porto-climate-map/pkg/settings"
)

var (
	ErrUnknownLayer = errors.New("surface: unknown layer")
	ErrClosed       = errors.New("surface: closed")
)

// Fetcher loads the two entity lists. *fetch.Client implements it.
type Fetcher interface {
	FetchSensors(ctx context.Context) ([]models.SensorRecord, error)
	FetchGreenZones(ctx context.Context) ([]models.GreenZoneRecord, error)
}

// Options are the optional parts of a Surface.
type Options struct {
	Logger *slog.Logger
	// Callbacks for the control buttons. OnLayerToggle is always replaced
	// by SetLayerVisible.
	Callbacks controls.Callbacks
}

// Surface is safe for concurrent use.
type Surface struct {
	mu      sync.Mutex
	cfg     *settings.Settings
	fetcher Fetcher
	canvas  *canvas.Canvas
	log     *slog.Logger

	sensors []models.SensorRecord
	zones   []models.GreenZoneRecord
	vis     models.LayerVisibility
	byID    map[string]int // sensor ID -> position in sensors

	heat    *overlay.Layer
	polys   *overlay.Layer
	markers *overlay.Layer
	panel   *controls.Panel
	index   *geo.Index
	tf      overlay.TimeFormat

	// gen counts fetch rounds; a list is only replaced by a round newer
	// than the one that last set it.
	gen        uint64
	sensorsGen uint64
	zonesGen   uint64

	active bool
	closed bool
}

// New builds a surface drawing on c. Nothing is attached until Activate.
func New(cfg *settings.Settings, fetcher Fetcher, c *canvas.Canvas, opts Options) *Surface {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Surface{
		cfg:     cfg,
		fetcher: fetcher,
		canvas:  c,
		log:     log,
		sensors: []models.SensorRecord{},
		zones:   []models.GreenZoneRecord{},
		vis:     models.DefaultVisibility(),
		heat:    overlay.NewLayer(c),
		polys:   overlay.NewLayer(c),
		markers: overlay.NewLayer(c),
		index:   geo.NewIndex(),
		tf:      overlay.TimeFormat{Layout: cfg.Map.TimestampLayout, Location: cfg.Location()},
	}
	cb := opts.Callbacks
	cb.OnLayerToggle = s.SetLayerVisible
	s.panel = controls.New(c, cfg, cb, log)
	return s
}

// NewCanvas returns a canvas showing the configured base map.
func NewCanvas(cfg *settings.Settings) *canvas.Canvas {
	return canvas.New(canvas.View{
		Center:      cfg.Map.DefaultCenter,
		Zoom:        cfg.Map.DefaultZoom,
		TileURL:     cfg.Map.TileURL,
		Attribution: cfg.Map.Attribution,
	})
}

// Activate mounts the surface and runs both fetchers concurrently. Each
// list is replaced as soon as its own fetch finishes. A failed fetch is
// logged and leaves an empty list. When rounds overlap, a result from an
// older round never overwrites one from a newer round.
func (s *Surface) Activate(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.active {
		s.active = true
		s.renderLocked()
		s.log.Info("surface_activated", "env", s.cfg.Env)
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		sensors, err := s.fetcher.FetchSensors(ctx)
		if err != nil {
			s.log.Error("fetch_sensors_failed", "err", err)
			sensors = nil
		}
		s.setSensors(gen, sensors)
		return nil
	})
	g.Go(func() error {
		zones, err := s.fetcher.FetchGreenZones(ctx)
		if err != nil {
			s.log.Error("fetch_greenzones_failed", "err", err)
			zones = nil
		}
		s.setGreenZones(gen, zones)
		return nil
	})
	return g.Wait()
}

// Refresh fetches both lists again.
func (s *Surface) Refresh(ctx context.Context) error {
	return s.Activate(ctx)
}

func (s *Surface) setSensors(gen uint64, sensors []models.SensorRecord) {
	if sensors == nil {
		sensors = []models.SensorRecord{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.Debug("fetch_result_discarded", "source", "sensors")
		return
	}
	if gen <= s.sensorsGen {
		s.log.Debug("fetch_result_stale", "source", "sensors", "gen", gen, "current", s.sensorsGen)
		return
	}
	s.sensorsGen = gen
	s.sensors = sensors
	metrics.EntityCount.WithLabelValues("sensors").Set(float64(len(sensors)))
	s.reindexLocked()
	s.renderLocked()
}

func (s *Surface) setGreenZones(gen uint64, zones []models.GreenZoneRecord) {
	if zones == nil {
		zones = []models.GreenZoneRecord{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.Debug("fetch_result_discarded", "source", "greenzones")
		return
	}
	if gen <= s.zonesGen {
		s.log.Debug("fetch_result_stale", "source", "greenzones", "gen", gen, "current", s.zonesGen)
		return
	}
	s.zonesGen = gen
	s.zones = zones
	metrics.EntityCount.WithLabelValues("greenzones").Set(float64(len(zones)))
	s.reindexLocked()
	s.renderLocked()
}

func (s *Surface) reindexLocked() {
	features := make([]geo.Feature, 0, len(s.sensors)+len(s.zones))
	s.byID = make(map[string]int, len(s.sensors))
	for i, sensor := range s.sensors {
		s.byID[sensor.ID] = i
		features = append(features, geo.PointFeature(sensor.ID, sensor.Coordinates))
	}
	for _, z := range s.zones {
		if f, ok := geo.PolygonFeature(z.ID, z.Polygon); ok {
			features = append(features, f)
		}
	}
	if err := s.index.Replace(features); err != nil {
		s.log.Warn("index_rebuild_failed", "err", err)
	}
}

// renderLocked brings the canvas in line with the current state. Each
// layer is released before it is attached again, so a layer is never on
// the canvas twice.
func (s *Surface) renderLocked() {
	if !s.active || s.closed {
		return
	}
	f := s.cfg.Features

	heat, ok := overlay.Heat(models.HeatPoints(s.sensors), overlay.HeatParams{
		Radius:  s.cfg.Heatmap.Radius,
		Blur:    s.cfg.Heatmap.Blur,
		MaxZoom: s.cfg.Heatmap.MaxZoom,
	})
	s.sync(s.heat, models.LayerHeatmap, overlay.Gate(f.EnableHeatmap, s.vis[models.LayerHeatmap]) && ok, heat)

	s.sync(s.polys, models.LayerGreenZones,
		overlay.Gate(f.EnableGreenZones, s.vis[models.LayerGreenZones]) && len(s.zones) > 0,
		overlay.Polygons(s.zones))

	s.sync(s.markers, models.LayerSensors,
		overlay.Gate(f.EnableSensors, s.vis[models.LayerSensors]) && len(s.sensors) > 0,
		overlay.Markers(s.sensors, s.tf))

	s.panel.Remount(s.vis)
}

func (s *Surface) sync(l *overlay.Layer, key models.LayerKey, show bool, o canvas.Overlay) {
	var err error
	if show {
		err = l.Show(o)
	} else {
		err = l.Hide()
	}
	if err != nil {
		s.log.Warn("overlay_sync_failed", "layer", key, "err", err)
	}
}

// Sensors returns the current sensor list, never nil.
func (s *Surface) Sensors() []models.SensorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SensorRecord, len(s.sensors))
	copy(out, s.sensors)
	return out
}

// GreenZones returns the current zone list, never nil.
func (s *Surface) GreenZones() []models.GreenZoneRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.GreenZoneRecord, len(s.zones))
	copy(out, s.zones)
	return out
}

// HeatPoints derives the heat samples from the current sensors.
func (s *Surface) HeatPoints() []models.HeatPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.HeatPoints(s.sensors)
}

// NearbySensor is a sensor and its distance from a query point.
type NearbySensor struct {
	models.SensorRecord
	DistanceMeters float64 `json:"distanceMeters"`
}

// NearestSensors returns up to n sensors closest to p, nearest first.
func (s *Surface) NearestSensors(p models.LatLng, n int) []NearbySensor {
	s.mu.Lock()
	defer s.mu.Unlock()

	isSensor := func(id string) bool {
		_, ok := s.byID[id]
		return ok
	}
	out := []NearbySensor{}
	for _, nb := range s.index.Nearest(p, n, isSensor) {
		out = append(out, NearbySensor{SensorRecord: s.sensors[s.byID[nb.ID]], DistanceMeters: nb.DistanceMeters})
	}
	return out
}

// SensorsWithin returns the sensors at most radius meters from p, nearest first.
func (s *Surface) SensorsWithin(p models.LatLng, radius float64) ([]NearbySensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := s.index.WithinRadius(p, radius)
	if err != nil {
		return nil, err
	}
	out := []NearbySensor{}
	for _, nb := range found {
		if i, ok := s.byID[nb.ID]; ok {
			out = append(out, NearbySensor{SensorRecord: s.sensors[i], DistanceMeters: nb.DistanceMeters})
		}
	}
	return out, nil
}

// Visibility returns a copy of the layer visibility.
func (s *Surface) Visibility() models.LayerVisibility {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vis.Clone()
}

// SetLayerVisible shows or hides one layer and re-renders.
func (s *Surface) SetLayerVisible(key models.LayerKey, visible bool) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownLayer, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.vis[key] == visible {
		return nil
	}
	s.vis[key] = visible
	metrics.LayerTogglesTotal.WithLabelValues(string(key), strconv.FormatBool(visible)).Inc()
	s.log.Info("layer_visibility_changed", "layer", key, "visible", visible)
	s.renderLocked()
	return nil
}

// InvokeControl runs the action of a control widget.
func (s *Surface) InvokeControl(widgetID string, a controls.Action) (controls.Result, error) {
	// the panel calls back into SetLayerVisible, so s.mu must not be held here
	return s.panel.Invoke(widgetID, a)
}

// Scene returns what the canvas currently shows. A non-nil box limits the
// scene to what lies inside it.
func (s *Surface) Scene(box *models.BoundingBox) (canvas.Scene, error) {
	scene := s.canvas.Snapshot()
	if box == nil {
		return scene, nil
	}
	keys, err := s.index.QueryBox(*box)
	if err != nil {
		return canvas.Scene{}, fmt.Errorf("query viewport: %w", err)
	}
	return scene.Clip(*box, keys), nil
}

// Close detaches every overlay and widget. Fetches still in flight are
// discarded when they finish. Calling Close again does nothing.
func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, l := range []*overlay.Layer{s.heat, s.polys, s.markers} {
		if err := l.Hide(); err != nil {
			s.log.Warn("overlay_release_failed", "err", err)
		}
	}
	s.panel.Unmount()
	s.log.Info("surface_closed")
}
