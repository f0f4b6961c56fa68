// Package models holds the records fetched from the data endpoints and the
// values derived from them for the map.
package models

// Location represents a geographic location with latitude and longitude
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundingBox represents a rectangular area defined by two corners
type BoundingBox struct {
	BottomLeft Location `json:"bottomLeft"`
	TopRight   Location `json:"topRight"`
}

// Contains reports whether loc lies inside the box, edges included.
func (b BoundingBox) Contains(loc Location) bool {
	return loc.Lat >= b.BottomLeft.Lat && loc.Lat <= b.TopRight.Lat &&
		loc.Lon >= b.BottomLeft.Lon && loc.Lon <= b.TopRight.Lon
}

// LatLng is a [lat, lng] pair as it appears on the wire.
type LatLng [2]float64

// Location converts the pair to a Location.
func (p LatLng) Location() Location {
	return Location{Lat: p[0], Lon: p[1]}
}

// Readings are the optional measurements reported by a sensor.
// A nil field means the sensor did not report it.
type Readings struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	Humidity        *float64 `json:"humidity,omitempty"`
	AirQualityIndex *float64 `json:"airQualityIndex,omitempty"`
	NoiseLevel      *float64 `json:"noiseLevel,omitempty"`
}

// SensorRecord is one environmental sensor as served by the sensors endpoint.
type SensorRecord struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Coordinates LatLng   `json:"coordinates"`
	Data        Readings `json:"data"`
	LastUpdated string   `json:"lastUpdated"` // ISO-8601
}

// GreenZoneRecord is a park or green area. Polygon is used as given:
// closing the ring is up to the data source.
type GreenZoneRecord struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Polygon []LatLng `json:"polygon"`
}

// HeatPoint is a weighted sample for the heat layer.
type HeatPoint struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Intensity float64 `json:"intensity"`
}

// HeatScaleCelsius maps a temperature to heat intensity 1.0.
const HeatScaleCelsius = 40.0

// HeatPoints derives heat samples from sensors that report a temperature.
// Intensity is temperature/HeatScaleCelsius and is deliberately not clamped.
func HeatPoints(sensors []SensorRecord) []HeatPoint {
	points := make([]HeatPoint, 0, len(sensors))
	for _, s := range sensors {
		if s.Data.Temperature == nil {
			continue
		}
		points = append(points, HeatPoint{
			Lat:       s.Coordinates[0],
			Lng:       s.Coordinates[1],
			Intensity: *s.Data.Temperature / HeatScaleCelsius,
		})
	}
	return points
}

// LayerKey names a toggleable overlay kind.
type LayerKey string

const (
	LayerHeatmap    LayerKey = "heatmap"
	LayerGreenZones LayerKey = "greenzones"
	LayerSensors    LayerKey = "sensors"
)

// LayerKeys lists every known layer in display order.
var LayerKeys = []LayerKey{LayerHeatmap, LayerGreenZones, LayerSensors}

// Valid reports whether k is one of the known layers.
func (k LayerKey) Valid() bool {
	for _, known := range LayerKeys {
		if k == known {
			return true
		}
	}
	return false
}

// LayerVisibility maps every known layer to whether it is shown.
type LayerVisibility map[LayerKey]bool

// DefaultVisibility returns a mapping with every layer visible.
func DefaultVisibility() LayerVisibility {
	v := make(LayerVisibility, len(LayerKeys))
	for _, k := range LayerKeys {
		v[k] = true
	}
	return v
}

// Clone returns an independent copy.
func (v LayerVisibility) Clone() LayerVisibility {
	out := make(LayerVisibility, len(v))
	for k, on := range v {
		out[k] = on
	}
	return out
}
