package geo

import (
	"github.com/golang/geo/s2"

	"github.com/1F47E/porto-climate-map/pkg/models"
)

// EarthRadiusMeters is the mean Earth radius.
const EarthRadiusMeters = 6371008.8

// Distance returns the great-circle distance in meters.
func Distance(a, b models.LatLng) float64 {
	p1 := s2.LatLngFromDegrees(a[0], a[1])
	p2 := s2.LatLngFromDegrees(b[0], b[1])
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// PolygonAreaHectares returns the area enclosed by vertices. A repeated
// closing vertex is ignored; fewer than three distinct vertices have no area.
// Winding order does not matter.
func PolygonAreaHectares(vertices []models.LatLng) float64 {
	n := len(vertices)
	if n > 1 && vertices[0] == vertices[n-1] {
		n--
	}
	if n < 3 {
		return 0
	}

	pts := make([]s2.Point, 0, n)
	for _, v := range vertices[:n] {
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(v[0], v[1])))
	}
	loop := s2.LoopFromPoints(pts)
	loop.Normalize()

	sqMeters := loop.Area() * EarthRadiusMeters * EarthRadiusMeters
	return sqMeters / 10_000
}
