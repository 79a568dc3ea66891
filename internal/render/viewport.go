package render

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// NewViewport returns a projector that places the Web-Mercator image of
// bound into a width x height pixel box, y growing downwards.
func NewViewport(bound orb.Bound, width, height int) Projector {
	lo := project.Point(bound.Min, project.WGS84.ToMercator)
	hi := project.Point(bound.Max, project.WGS84.ToMercator)
	dx, dy := hi[0]-lo[0], hi[1]-lo[1]

	return func(p orb.Point) orb.Point {
		if dx == 0 || dy == 0 {
			return orb.Point{}
		}
		m := project.Point(p, project.WGS84.ToMercator)
		return orb.Point{
			(m[0] - lo[0]) / dx * float64(width),
			(hi[1] - m[1]) / dy * float64(height),
		}
	}
}
