// Package geo indexes what is drawn on the map so a viewport can be
// answered without scanning every record, and computes the few spherical
// measures the overlays display.
package geo

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dhconnelly/rtreego"

	"github.com/1F47E/porto-climate-map/pkg/models"
)

const (
	tolerance   = 0.0001 // degrees, ~11 m: minimum side of an indexed rect
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// Feature is one indexed record: a sensor position or a zone's bounds.
type Feature struct {
	ID     string
	Bounds models.BoundingBox
}

// spatialItem wraps a Feature for R-Tree indexing
type spatialItem struct {
	*Feature
	rect rtreego.Rect
}

func (si *spatialItem) Bounds() rtreego.Rect {
	return si.rect
}

// Index is a thread-safe R-Tree over map features.
type Index struct {
	tree      *rtreego.Rtree
	mu        sync.RWMutex
	itemCount atomic.Int64
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		tree: rtreego.NewTree(dimensions, minChildren, maxChildren),
	}
}

// PointFeature is the feature of a single coordinate.
func PointFeature(id string, p models.LatLng) Feature {
	loc := p.Location()
	return Feature{ID: id, Bounds: models.BoundingBox{BottomLeft: loc, TopRight: loc}}
}

// PolygonFeature is the feature covering every vertex of a polygon.
// It reports false for an empty polygon.
func PolygonFeature(id string, vertices []models.LatLng) (Feature, bool) {
	if len(vertices) == 0 {
		return Feature{}, false
	}
	box := models.BoundingBox{BottomLeft: vertices[0].Location(), TopRight: vertices[0].Location()}
	for _, v := range vertices[1:] {
		box.BottomLeft.Lat = min(box.BottomLeft.Lat, v[0])
		box.BottomLeft.Lon = min(box.BottomLeft.Lon, v[1])
		box.TopRight.Lat = max(box.TopRight.Lat, v[0])
		box.TopRight.Lon = max(box.TopRight.Lon, v[1])
	}
	return Feature{ID: id, Bounds: box}, true
}

func toRect(box models.BoundingBox) (rtreego.Rect, error) {
	return rtreego.NewRect(
		rtreego.Point{box.BottomLeft.Lat, box.BottomLeft.Lon},
		[]float64{
			max(box.TopRight.Lat-box.BottomLeft.Lat, tolerance),
			max(box.TopRight.Lon-box.BottomLeft.Lon, tolerance),
		},
	)
}

// Replace swaps the whole content of the index for features. The tree is
// bulk loaded off-lock and then swapped in.
func (g *Index) Replace(features []Feature) error {
	items := make([]rtreego.Spatial, 0, len(features))
	for i := range features {
		rect, err := toRect(features[i].Bounds)
		if err != nil {
			return fmt.Errorf("index feature %s: %w", features[i].ID, err)
		}
		items = append(items, &spatialItem{&features[i], rect})
	}
	tree := rtreego.NewTree(dimensions, minChildren, maxChildren, items...)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.tree = tree
	g.itemCount.Store(int64(len(items)))
	return nil
}

// QueryBox returns the IDs of features intersecting box.
func (g *Index) QueryBox(box models.BoundingBox) (map[string]bool, error) {
	if box.TopRight.Lat < box.BottomLeft.Lat || box.TopRight.Lon < box.BottomLeft.Lon {
		return nil, fmt.Errorf("invalid bounding box: top-right below bottom-left")
	}
	bounds, err := toRect(box)
	if err != nil {
		return nil, fmt.Errorf("invalid bounding box: %w", err)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	results := g.tree.SearchIntersect(bounds)
	ids := make(map[string]bool, len(results))
	for _, result := range results {
		item, ok := result.(*spatialItem)
		if !ok || item.Feature == nil {
			continue
		}
		ids[item.ID] = true
	}
	return ids, nil
}

// Size returns the number of indexed features.
func (g *Index) Size() int64 {
	return g.itemCount.Load()
}

// Neighbor is a feature found near a query point.
type Neighbor struct {
	ID             string  `json:"id"`
	DistanceMeters float64 `json:"distanceMeters"`
}

// closest returns the point of box nearest to p.
func closest(box models.BoundingBox, p models.LatLng) models.LatLng {
	return models.LatLng{
		min(max(p[0], box.BottomLeft.Lat), box.TopRight.Lat),
		min(max(p[1], box.BottomLeft.Lon), box.TopRight.Lon),
	}
}

// Nearest returns up to n features closest to center on the sphere,
// nearest first. When keep is not nil only the features it accepts are
// considered.
func (g *Index) Nearest(center models.LatLng, n int, keep func(id string) bool) []Neighbor {
	if n <= 0 {
		return nil
	}
	var filters []rtreego.Filter
	if keep != nil {
		filters = append(filters, func(_ []rtreego.Spatial, obj rtreego.Spatial) (bool, bool) {
			item, ok := obj.(*spatialItem)
			return !ok || !keep(item.ID), false
		})
	}

	// The tree ranks by planar degrees, where a degree of longitude counts
	// as much as a degree of latitude. Its answer only seeds a search
	// radius; the final ranking is by great-circle distance.
	g.mu.RLock()
	var results []rtreego.Spatial
	if g.tree.Size() > 0 {
		results = g.tree.NearestNeighbors(max(4*n, n+16), rtreego.Point{center[0], center[1]}, filters...)
	}
	g.mu.RUnlock()

	out := g.rank(center, results, keep)
	if len(out) <= n {
		// every accepted feature is already in
		return out
	}
	radius := out[n-1].DistanceMeters
	if radius > 0 {
		if within, err := g.within(center, radius, keep); err == nil {
			out = within
		}
	}
	return out[:min(n, len(out))]
}

// WithinRadius returns every feature within radius meters of center,
// nearest first.
func (g *Index) WithinRadius(center models.LatLng, radius float64) ([]Neighbor, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("radius must be positive, got %g", radius)
	}
	return g.within(center, radius, nil)
}

func (g *Index) within(center models.LatLng, radius float64, keep func(id string) bool) ([]Neighbor, error) {
	// Degrees of latitude per meter; longitude degrees shrink towards the
	// poles so the box is widened by 1/cos(lat).
	dLat := radius / EarthRadiusMeters * 180 / math.Pi
	dLon := dLat / max(math.Cos(center[0]*math.Pi/180), 0.01)
	bounds, err := toRect(models.BoundingBox{
		BottomLeft: models.Location{Lat: center[0] - dLat, Lon: center[1] - dLon},
		TopRight:   models.Location{Lat: center[0] + dLat, Lon: center[1] + dLon},
	})
	if err != nil {
		return nil, fmt.Errorf("radius query: %w", err)
	}

	g.mu.RLock()
	results := g.tree.SearchIntersect(bounds)
	g.mu.RUnlock()

	out := g.rank(center, results, keep)
	for i, nb := range out {
		if nb.DistanceMeters > radius {
			return out[:i], nil
		}
	}
	return out, nil
}

// rank measures every accepted result from center and sorts them, nearest first.
func (g *Index) rank(center models.LatLng, results []rtreego.Spatial, keep func(id string) bool) []Neighbor {
	out := make([]Neighbor, 0, len(results))
	for _, r := range results {
		item, ok := r.(*spatialItem)
		if !ok || item.Feature == nil {
			continue
		}
		if keep != nil && !keep(item.ID) {
			continue
		}
		out = append(out, Neighbor{
			ID:             item.ID,
			DistanceMeters: Distance(center, closest(item.Feature.Bounds, center)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].ID < out[j].ID
	})
	return out
}
