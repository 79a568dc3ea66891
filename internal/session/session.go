// Package session implements the map session: the single owner of hover,
// highlight, label and overlay state for one viewer page.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-map/internal/dataset"
)

// Catalog is the read side of the loaded datasets.
type Catalog interface {
	HitTest(p orb.Point, tol float64) (dataset.Hit, bool)
	Districts() []dataset.District
}

// BoundaryFetcher fetches a district's detailed boundary.
type BoundaryFetcher interface {
	FetchBoundary(ctx context.Context, d dataset.District) (*geojson.FeatureCollection, error)
}

// State is the hover state.
type State int

const (
	Idle State = iota
	Hovering
)

func (s State) String() string {
	if s == Hovering {
		return "hovering"
	}
	return "idle"
}

// Label is the floating label overlay.
type Label struct {
	Visible  bool      `json:"visible"`
	Text     string    `json:"text"`
	Position orb.Point `json:"position"`
}

// Transition describes what a pointer event changed.
type Transition struct {
	From, To State
	// FeatureChanged is set when the highlight layer was replaced or cleared.
	FeatureChanged bool
	Ref            dataset.FeatureRef
}

// Kind names the transition for logs and metrics.
func (t Transition) Kind() string {
	switch {
	case t.From == Idle && t.To == Hovering:
		return "enter"
	case t.To == Idle && t.From == Hovering:
		return "leave"
	case t.FeatureChanged:
		return "switch"
	case t.To == Hovering:
		return "move"
	}
	return "none"
}

// Config tunes a session.
type Config struct {
	// SearchURL is the external search page; the feature name is appended
	// as the "search" query parameter.
	SearchURL string
	Logger    *slog.Logger
}

// DefaultSearchURL is the Chinese Wikipedia search page.
const DefaultSearchURL = "https://zh.wikipedia.org/wiki/Special:Search"

// MapSession owns the interactive state of one map page.
type MapSession struct {
	id      string
	catalog Catalog
	fetcher BoundaryFetcher
	cfg     Config

	mu        sync.Mutex
	state     State
	hovered   dataset.FeatureRef
	highlight *geojson.FeatureCollection
	label     Label
	overlay   *Overlay
	searchGen uint64
	created   time.Time
	lastSeen  time.Time
}

// New creates an idle session.
func New(id string, c Catalog, f BoundaryFetcher, cfg Config) *MapSession {
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	now := time.Now()
	return &MapSession{
		id:        id,
		catalog:   c,
		fetcher:   f,
		cfg:       cfg,
		highlight: geojson.NewFeatureCollection(),
		created:   now,
		lastSeen:  now,
	}
}

// ID returns the session id.
func (s *MapSession) ID() string { return s.id }

// Touch records activity.
func (s *MapSession) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen returns the time of the last activity.
func (s *MapSession) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// PointerMove hit-tests p and updates the hover state.
func (s *MapSession) PointerMove(p orb.Point, tol float64) Transition {
	hit, ok := s.catalog.HitTest(p, tol)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()

	if !ok {
		return s.clearLocked()
	}

	t := Transition{From: s.state, To: Hovering, Ref: hit.Ref}
	if s.state != Hovering || s.hovered != hit.Ref {
		s.setHighlightLocked(hit.Feature)
		name, _ := dataset.FeatureName(hit.Feature.Properties)
		s.label.Text = name
		s.hovered = hit.Ref
		t.FeatureChanged = true
	}
	s.state = Hovering
	s.label.Visible = true
	s.label.Position = p
	return t
}

// PointerOut returns the session to idle.
func (s *MapSession) PointerOut() Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	return s.clearLocked()
}

func (s *MapSession) clearLocked() Transition {
	t := Transition{From: s.state, To: Idle, FeatureChanged: s.state == Hovering}
	s.state = Idle
	s.hovered = dataset.FeatureRef{}
	s.highlight = geojson.NewFeatureCollection()
	s.label = Label{}
	return t
}

// setHighlightLocked replaces the highlight layer with a copy of f.
func (s *MapSession) setHighlightLocked(f *geojson.Feature) {
	clone := geojson.NewFeature(orb.Clone(f.Geometry))
	for k, v := range f.Properties {
		clone.Properties[k] = v
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(clone)
	s.highlight = fc
}

// State returns the current hover state and feature.
func (s *MapSession) State() (State, dataset.FeatureRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.hovered
}

// Highlight returns the highlight layer. The collection is replaced, never
// mutated, so callers may read it without holding the lock.
func (s *MapSession) Highlight() *geojson.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highlight
}

// Label returns the label overlay.
func (s *MapSession) Label() Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label
}

// HoveredIndex reports the hovered water index, for the chart layer.
func (s *MapSession) HoveredIndex() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Hovering || s.hovered.Layer != dataset.LayerWaters {
		return 0, false
	}
	return s.hovered.Index, true
}

// Click resolves the clicked feature to an external search URL.
// ok is false when nothing is hit or the feature has no name.
func (s *MapSession) Click(p orb.Point, tol float64) (link string, ok bool) {
	s.Touch()
	hit, found := s.catalog.HitTest(p, tol)
	if !found {
		return "", false
	}
	name, found := dataset.FeatureName(hit.Feature.Properties)
	if !found {
		return "", false
	}
	s.cfg.Logger.Info("feature_clicked", "session", s.id, "layer", hit.Ref.Layer, "name", name)
	return SearchLink(s.cfg.SearchURL, name), true
}

// SearchLink appends name as the search parameter of base.
func SearchLink(base, name string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?search=" + url.QueryEscape(name)
	}
	q := u.Query()
	q.Set("search", name)
	u.RawQuery = q.Encode()
	return u.String()
}

// ErrUnknownSession is returned by registries for missing ids.
var ErrUnknownSession = errors.New("unknown session")
