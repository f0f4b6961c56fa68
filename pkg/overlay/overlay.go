// Package overlay turns fetched records into canvas overlays and keeps each
// overlay kind attached at most once.
package overlay

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/1F47E/porto-climate-map/pkg/canvas"
	"github.com/1F47E/porto-climate-map/pkg/geo"
	"github.com/1F47E/porto-climate-map/pkg/models"
)

// Gate is the render rule shared by every overlay kind.
func Gate(featureEnabled, visible bool) bool {
	return featureEnabled && visible
}

// HeatParams tune the heat layer.
type HeatParams struct {
	Radius  float64
	Blur    float64
	MaxZoom int
}

// Heat builds the heat overlay. It reports false when there is nothing to
// draw, in which case no heat layer should be attached.
func Heat(points []models.HeatPoint, p HeatParams) (canvas.Overlay, bool) {
	if len(points) == 0 {
		return canvas.Overlay{}, false
	}
	cp := make([]models.HeatPoint, len(points))
	copy(cp, points)
	return canvas.Overlay{
		Kind: canvas.KindHeat,
		Heat: &canvas.Heat{Points: cp, Radius: p.Radius, Blur: p.Blur, MaxZoom: p.MaxZoom},
	}, true
}

const (
	zoneStroke      = "green"
	zoneFillOpacity = 0.3
)

// Polygons builds one filled polygon per zone, keyed by zone ID.
func Polygons(zones []models.GreenZoneRecord) canvas.Overlay {
	polys := make([]canvas.Polygon, 0, len(zones))
	for _, z := range zones {
		vertices := make([]models.LatLng, len(z.Polygon))
		copy(vertices, z.Polygon)
		polys = append(polys, canvas.Polygon{
			Key:         z.ID,
			Name:        z.Name,
			Vertices:    vertices,
			Stroke:      zoneStroke,
			FillOpacity: zoneFillOpacity,
			Label:       fmt.Sprintf("%s · %.1f ha", z.Name, geo.PolygonAreaHectares(z.Polygon)),
		})
	}
	return canvas.Overlay{Kind: canvas.KindPolygons, Polygons: polys}
}

// Missing is shown for a reading the sensor did not report.
const Missing = "—"

// TimeFormat renders the last-updated stamp of a popup.
type TimeFormat struct {
	Layout   string
	Location *time.Location
}

// Format parses an ISO-8601 stamp and renders it in f. A stamp that does
// not parse is returned as is.
func (f TimeFormat) Format(stamp string) string {
	ts, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return stamp
	}
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	layout := f.Layout
	if layout == "" {
		layout = time.DateTime
	}
	return ts.In(loc).Format(layout)
}

func reading(v *float64, unit string) string {
	if v == nil {
		return Missing + unit
	}
	return strconv.FormatFloat(*v, 'f', -1, 64) + unit
}

// Popup returns the popup lines for one sensor.
func Popup(s models.SensorRecord, tf TimeFormat) []string {
	return []string{
		s.Name,
		"Temp: " + reading(s.Data.Temperature, " °C"),
		"Humidity: " + reading(s.Data.Humidity, " %"),
		"AQI: " + reading(s.Data.AirQualityIndex, ""),
		"Noise: " + reading(s.Data.NoiseLevel, " dB"),
		"Updated: " + tf.Format(s.LastUpdated),
	}
}

// Markers builds one marker per sensor, keyed by sensor ID.
func Markers(sensors []models.SensorRecord, tf TimeFormat) canvas.Overlay {
	markers := make([]canvas.Marker, 0, len(sensors))
	for _, s := range sensors {
		markers = append(markers, canvas.Marker{
			Key:      s.ID,
			Name:     s.Name,
			Position: s.Coordinates,
			Popup:    Popup(s, tf),
		})
	}
	return canvas.Overlay{Kind: canvas.KindMarkers, Markers: markers}
}

// Layer keeps at most one overlay attached to a canvas.
type Layer struct {
	mu     sync.Mutex
	canvas *canvas.Canvas
	handle *canvas.Handle
}

// NewLayer returns a detached layer on c.
func NewLayer(c *canvas.Canvas) *Layer {
	return &Layer{canvas: c}
}

// Show replaces whatever the layer had attached with o.
func (l *Layer) Show(o canvas.Overlay) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.releaseLocked(); err != nil {
		return err
	}
	l.handle = l.canvas.AttachOverlay(o)
	return nil
}

// Hide detaches the current overlay, if any. Calling it on a hidden layer
// does nothing.
func (l *Layer) Hide() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releaseLocked()
}

// Attached reports whether the layer currently owns an overlay.
func (l *Layer) Attached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle != nil
}

func (l *Layer) releaseLocked() error {
	if l.handle == nil {
		return nil
	}
	h := l.handle
	l.handle = nil
	return h.Release()
}
