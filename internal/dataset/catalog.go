package dataset

import (
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// hitOrder is the hover priority: lines on top, then areas.
var hitOrder = []string{LayerWaterLines, LayerWaters, LayerDistricts}

// Catalog holds the currently loaded datasets. Readers always see the
// latest successful load; a failed load never replaces data.
type Catalog struct {
	mu        sync.RWMutex
	layers    map[string]*Layer
	waters    []WaterFeature
	districts []District
	status    map[string]LayerStatus
	version   uint64
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		layers: make(map[string]*Layer),
		status: make(map[string]LayerStatus),
	}
}

// SetChart installs the boundary and water datasets together.
func (c *Catalog) SetChart(boundary, waters *geojson.FeatureCollection) {
	bl := newLayer(LayerBoundary, boundary)
	wl := newLayer(LayerWaters, waters)
	items := WaterFeatures(waters)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.layers[LayerBoundary] = bl
	c.layers[LayerWaters] = wl
	c.waters = items
	c.markLoaded(LayerBoundary, len(boundary.Features))
	c.markLoaded(LayerWaters, len(waters.Features))
	c.version++
}

// SetLayer installs a single GIS layer. The district layer also
// refreshes the search index.
func (c *Catalog) SetLayer(name string, fc *geojson.FeatureCollection) {
	l := newLayer(name, fc)
	var districts []District
	if name == LayerDistricts {
		districts = ParseDistricts(fc)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.layers[name] = l
	if name == LayerDistricts {
		c.districts = districts
	}
	c.markLoaded(name, len(fc.Features))
	c.version++
}

// MarkFailed records a load error without touching loaded data.
func (c *Catalog) MarkFailed(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status[name]
	st.Name = name
	st.Error = err.Error()
	c.status[name] = st
}

func (c *Catalog) markLoaded(name string, n int) {
	c.status[name] = LayerStatus{Name: name, Loaded: true, Features: n, LoadedAt: time.Now()}
}

// Collection returns a loaded layer's features.
func (c *Catalog) Collection(name string) (*geojson.FeatureCollection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.layers[name]
	if !ok {
		return nil, false
	}
	return l.Collection, true
}

// Waters returns the indexed water items.
func (c *Catalog) Waters() []WaterFeature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.waters
}

// Districts returns the top-level district index in dataset order.
func (c *Catalog) Districts() []District {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.districts
}

// Statuses lists every known layer, sorted by name.
func (c *Catalog) Statuses() []LayerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LayerStatus, 0, len(c.status))
	for _, st := range c.status {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Version increases on every successful install.
func (c *Catalog) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// HitTest finds the feature under p, walking layers in hover priority.
func (c *Catalog) HitTest(p orb.Point, tol float64) (Hit, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, name := range hitOrder {
		l, ok := c.layers[name]
		if !ok {
			continue
		}
		if h, ok := l.hitTest(p, tol); ok {
			return h, true
		}
	}
	return Hit{}, false
}
