package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestHeatPoints(t *testing.T) {
	sensors := []SensorRecord{
		{ID: "a", Coordinates: LatLng{41.15, -8.61}, Data: Readings{Temperature: ptr(20)}},
		{ID: "b", Coordinates: LatLng{41.16, -8.62}, Data: Readings{Humidity: ptr(60)}},
		{ID: "c", Coordinates: LatLng{41.17, -8.63}, Data: Readings{Temperature: ptr(50)}},
		{ID: "d", Coordinates: LatLng{41.18, -8.64}, Data: Readings{Temperature: ptr(-4)}},
		{ID: "e", Coordinates: LatLng{41.19, -8.65}, Data: Readings{Temperature: ptr(0)}},
	}

	points := HeatPoints(sensors)
	require.Len(t, points, 4) // "b" has no temperature

	assert.Equal(t, HeatPoint{Lat: 41.15, Lng: -8.61, Intensity: 0.5}, points[0])
	assert.InDelta(t, 1.25, points[1].Intensity, 1e-9)
	assert.InDelta(t, -0.1, points[2].Intensity, 1e-9)
	assert.Equal(t, 0.0, points[3].Intensity)
}

func TestHeatPointsEmpty(t *testing.T) {
	points := HeatPoints(nil)
	assert.NotNil(t, points)
	assert.Empty(t, points)
}

func TestSensorRecordDecodesOptionalReadings(t *testing.T) {
	raw := `{"id":"s1","name":"Ribeira","coordinates":[41.14,-8.61],
		"data":{"temperature":18.5,"noiseLevel":62},"lastUpdated":"2025-05-01T10:00:00Z"}`

	var s SensorRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &s))

	assert.Equal(t, LatLng{41.14, -8.61}, s.Coordinates)
	require.NotNil(t, s.Data.Temperature)
	assert.Equal(t, 18.5, *s.Data.Temperature)
	assert.Nil(t, s.Data.Humidity)
	assert.Nil(t, s.Data.AirQualityIndex)
	require.NotNil(t, s.Data.NoiseLevel)
}

func TestDefaultVisibility(t *testing.T) {
	v := DefaultVisibility()
	assert.Len(t, v, 3)
	for _, k := range LayerKeys {
		assert.True(t, v[k], k)
	}

	c := v.Clone()
	c[LayerSensors] = false
	assert.True(t, v[LayerSensors], "clone must not alias")
}

func TestLayerKeyValid(t *testing.T) {
	assert.True(t, LayerHeatmap.Valid())
	assert.True(t, LayerKey("greenzones").Valid())
	assert.False(t, LayerKey("traffic").Valid())
}

func TestBoundingBoxContains(t *testing.T) {
	box := BoundingBox{
		BottomLeft: Location{Lat: 41.0, Lon: -8.7},
		TopRight:   Location{Lat: 41.2, Lon: -8.5},
	}
	assert.True(t, box.Contains(Location{Lat: 41.1, Lon: -8.6}))
	assert.True(t, box.Contains(Location{Lat: 41.0, Lon: -8.5}))
	assert.False(t, box.Contains(Location{Lat: 40.9, Lon: -8.6}))
}
