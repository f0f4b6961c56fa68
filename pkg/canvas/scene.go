package canvas

import "github.com/1F47E/porto-climate-map/pkg/models"

// Clip keeps only what falls inside box. Polygons are kept when their key is
// in keys (the caller's spatial index answer). Markers need their key in keys
// and their position inside box, since the index pads every point. Heat
// points are tested against box directly.
func (s Scene) Clip(box models.BoundingBox, keys map[string]bool) Scene {
	out := s
	out.Overlays = make([]Overlay, 0, len(s.Overlays))
	for _, o := range s.Overlays {
		switch o.Kind {
		case KindHeat:
			if o.Heat == nil {
				continue
			}
			heat := *o.Heat
			heat.Points = make([]models.HeatPoint, 0, len(o.Heat.Points))
			for _, p := range o.Heat.Points {
				if box.Contains(models.Location{Lat: p.Lat, Lon: p.Lng}) {
					heat.Points = append(heat.Points, p)
				}
			}
			o.Heat = &heat
		case KindPolygons:
			polys := make([]Polygon, 0, len(o.Polygons))
			for _, p := range o.Polygons {
				if keys[p.Key] {
					polys = append(polys, p)
				}
			}
			o.Polygons = polys
		case KindMarkers:
			markers := make([]Marker, 0, len(o.Markers))
			for _, m := range o.Markers {
				if keys[m.Key] && box.Contains(m.Position.Location()) {
					markers = append(markers, m)
				}
			}
			o.Markers = markers
		}
		out.Overlays = append(out.Overlays, o)
	}
	return out
}
