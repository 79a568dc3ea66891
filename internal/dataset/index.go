package dataset

import (
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

const (
	minChildren = 25
	maxChildren = 50
	// R-tree rectangles need non-zero sides (~11m at the equator).
	epsilon = 0.0001
)

// indexedFeature wraps a feature position for R-tree storage.
type indexedFeature struct {
	index int
	bound orb.Bound
}

// Bounds implements rtreego.Spatial.
func (f *indexedFeature) Bounds() rtreego.Rect {
	return rectFor(f.bound)
}

func rectFor(b orb.Bound) rtreego.Rect {
	lon := b.Max[0] - b.Min[0]
	lat := b.Max[1] - b.Min[1]
	if lon < epsilon {
		lon = epsilon
	}
	if lat < epsilon {
		lat = epsilon
	}
	rect, _ := rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, []float64{lon, lat})
	return rect
}

// Layer is a loaded feature collection with its spatial index.
type Layer struct {
	Name       string
	Collection *geojson.FeatureCollection
	tree       *rtreego.Rtree
}

func newLayer(name string, fc *geojson.FeatureCollection) *Layer {
	tree := rtreego.NewTree(2, minChildren, maxChildren)
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		tree.Insert(&indexedFeature{index: i, bound: f.Geometry.Bound()})
	}
	return &Layer{Name: name, Collection: fc, tree: tree}
}

// Hit is the result of a hit-test.
type Hit struct {
	Ref      FeatureRef
	Feature  *geojson.Feature
	Distance float64
}

// hitTest returns the nearest feature within tol of p. Ties go to the
// lower index so results do not depend on R-tree traversal order.
func (l *Layer) hitTest(p orb.Point, tol float64) (Hit, bool) {
	if tol < epsilon {
		tol = epsilon
	}
	query := orb.Bound{
		Min: orb.Point{p[0] - tol, p[1] - tol},
		Max: orb.Point{p[0] + tol, p[1] + tol},
	}

	best := Hit{Ref: FeatureRef{Layer: l.Name, Index: -1}}
	for _, s := range l.tree.SearchIntersect(rectFor(query)) {
		c := s.(*indexedFeature)
		f := l.Collection.Features[c.index]
		d := distanceTo(f.Geometry, p)
		if d > tol {
			continue
		}
		if best.Ref.Index < 0 || d < best.Distance || (d == best.Distance && c.index < best.Ref.Index) {
			best = Hit{Ref: FeatureRef{Layer: l.Name, Index: c.index}, Feature: f, Distance: d}
		}
	}
	return best, best.Ref.Index >= 0
}

// distanceTo is zero inside areas and the boundary distance elsewhere.
func distanceTo(g orb.Geometry, p orb.Point) float64 {
	switch geom := g.(type) {
	case orb.Polygon:
		if planar.PolygonContains(geom, p) {
			return 0
		}
	case orb.MultiPolygon:
		if planar.MultiPolygonContains(geom, p) {
			return 0
		}
	}
	return planar.DistanceFrom(g, p)
}
