// Package vectortile encodes loaded GIS layers as Mapbox Vector Tiles on
// demand.
//
// Every tile is cut from the in-memory catalog: features are cloned, since
// clipping and projection mutate geometry in place, then clipped to the tile,
// simplified for the zoom, projected to tile space and gzipped.
package vectortile

import (
	"net/http"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/plat-map/internal/dataset"
	"github.com/joeblew999/plat-map/internal/metrics"
	"github.com/joeblew999/plat-map/internal/tilesource"
)

// MaxZoom is the deepest zoom tiles are cut for.
const MaxZoom = 14

// DefaultLayers are encoded in this order.
var DefaultLayers = []string{dataset.LayerBorder, dataset.LayerWaters, dataset.LayerWaterLines}

// Collections is the read side of the catalog.
type Collections interface {
	Collection(name string) (*geojson.FeatureCollection, bool)
}

// Encoder cuts tiles from a catalog.
type Encoder struct {
	src    Collections
	layers []string
}

// New creates an encoder for the named layers; nil means DefaultLayers.
func New(src Collections, layers []string) *Encoder {
	if layers == nil {
		layers = DefaultLayers
	}
	return &Encoder{src: src, layers: layers}
}

// Tile returns the gzipped MVT for t, or nil when no layer has features in it.
func (e *Encoder) Tile(t maptile.Tile) ([]byte, error) {
	var layers mvt.Layers
	for _, name := range e.layers {
		fc, ok := e.src.Collection(name)
		if !ok {
			continue
		}
		if l := cutLayer(name, fc, t); l != nil {
			layers = append(layers, l)
		}
	}
	if len(layers) == 0 {
		return nil, nil
	}
	return mvt.MarshalGzipped(layers)
}

func cutLayer(name string, fc *geojson.FeatureCollection, t maptile.Tile) *mvt.Layer {
	bound := t.Bound()
	clipped := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if f.Geometry == nil || !intersects(f.Geometry, bound) {
			continue
		}
		clone := geojson.NewFeature(orb.Clone(f.Geometry))
		for k, v := range f.Properties {
			clone.Properties[k] = v
		}
		clipped.Append(clone)
	}
	if len(clipped.Features) == 0 {
		return nil
	}

	layer := mvt.NewLayer(name, clipped)
	if eps := simplifyEpsilon(t.Z); eps > 0 {
		layer.Simplify(simplify.DouglasPeucker(eps))
	}
	layer.Clip(bound)
	layer.ProjectToTile(t)
	layer.RemoveEmpty(0.5, 0.5)
	if len(layer.Features) == 0 {
		return nil
	}
	return layer
}

// intersects reports whether g may have geometry inside b. Points are
// tested exactly; everything else is left to Clip.
func intersects(g orb.Geometry, b orb.Bound) bool {
	if p, ok := g.(orb.Point); ok {
		return b.Contains(p)
	}
	return g.Bound().Intersects(b)
}

// simplifyEpsilon is the Douglas-Peucker tolerance in degrees for a zoom.
func simplifyEpsilon(z maptile.Zoom) float64 {
	switch {
	case z >= 12:
		return 0
	case z >= 9:
		return 0.0001
	case z >= 6:
		return 0.001
	case z >= 4:
		return 0.005
	default:
		return 0.02
	}
}

// ServeHTTP handles GET /tiles/vector/{z}/{x}/{tile} where tile is "{y}.mvt".
func (e *Encoder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	y, ok := strings.CutSuffix(r.PathValue("tile"), ".mvt")
	if !ok {
		metrics.Tiles.WithLabelValues("vector", "not_found").Inc()
		http.NotFound(w, r)
		return
	}
	t, err := tilesource.ParseTile(r.PathValue("z"), r.PathValue("x"), y, MaxZoom)
	if err != nil {
		metrics.Tiles.WithLabelValues("vector", "invalid").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := e.Tile(t)
	if err != nil {
		metrics.Tiles.WithLabelValues("vector", "error").Inc()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if data == nil {
		metrics.Tiles.WithLabelValues("vector", "empty").Inc()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	metrics.Tiles.WithLabelValues("vector", "ok").Inc()
	w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
	w.Header().Set("Content-Encoding", "gzip")
	w.Write(data)
}
