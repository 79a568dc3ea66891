package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-map/internal/dataset"
)

// Fixed view animation for search results.
const (
	FitPadding  = 50
	FitDuration = 1000 * time.Millisecond
)

var (
	ErrEmptyQuery    = errors.New("empty search query")
	ErrNoMatch       = errors.New("no matching district")
	ErrBoundaryFetch = errors.New("district boundary unavailable")
	// ErrSuperseded marks a result discarded because a newer search started.
	ErrSuperseded = errors.New("search superseded")
)

// Overlay is the active administrative boundary layer.
type Overlay struct {
	District   dataset.District
	Collection *geojson.FeatureCollection
	Extent     orb.Bound
}

// Fit is the viewport animation that frames an extent.
type Fit struct {
	Extent   [4]float64 `json:"extent"`
	Padding  [4]int     `json:"padding"`
	Duration int        `json:"duration"`
}

// NewFit frames b with the fixed padding and duration.
func NewFit(b orb.Bound) Fit {
	return Fit{
		Extent:   [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]},
		Padding:  [4]int{FitPadding, FitPadding, FitPadding, FitPadding},
		Duration: int(FitDuration / time.Millisecond),
	}
}

// Result is a completed search. Overlay is the boundary installed by this
// search, which may already be replaced by a newer one.
type Result struct {
	District dataset.District
	Overlay  *geojson.FeatureCollection
	Fit      Fit
}

// Search finds the first top-level district whose name contains query,
// fetches its boundary and makes it the active overlay. Every call starts
// a new generation; a response that arrives after a newer search started
// is dropped with ErrSuperseded and leaves state untouched.
func (s *MapSession) Search(ctx context.Context, query string) (Result, error) {
	s.mu.Lock()
	s.searchGen++
	gen := s.searchGen
	s.lastSeen = time.Now()
	s.mu.Unlock()

	q := strings.TrimSpace(query)
	if q == "" {
		return Result{}, ErrEmptyQuery
	}

	d, ok := dataset.FindDistrict(s.catalog.Districts(), q)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrNoMatch, q)
	}

	fc, err := s.fetcher.FetchBoundary(ctx, d)
	var extent orb.Bound
	if err == nil {
		var ok bool
		if extent, ok = collectionBound(fc); !ok {
			err = errors.New("empty boundary")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.searchGen {
		return Result{}, ErrSuperseded
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBoundaryFetch, err)
	}

	s.overlay = &Overlay{District: d, Collection: fc, Extent: extent}
	return Result{District: d, Overlay: fc, Fit: NewFit(extent)}, nil
}

// ActiveOverlay returns the active boundary overlay, if any.
func (s *MapSession) ActiveOverlay() (Overlay, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlay == nil {
		return Overlay{}, false
	}
	return *s.overlay, true
}

// ClearOverlay removes the active boundary overlay.
func (s *MapSession) ClearOverlay() {
	s.mu.Lock()
	s.overlay = nil
	s.mu.Unlock()
}

// collectionBound unions the bounds of every geometry; ok is false when
// there is none.
func collectionBound(fc *geojson.FeatureCollection) (b orb.Bound, ok bool) {
	if fc == nil {
		return b, false
	}
	first := true
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if first {
			b = f.Geometry.Bound()
			first = false
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, !first
}

// Message returns the user-facing (zh-CN) notification for err.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrEmptyQuery):
		return "请输入要搜索的行政区名称"
	case errors.Is(err, ErrNoMatch):
		return "未找到匹配的行政区"
	case errors.Is(err, ErrBoundaryFetch):
		return "行政区边界加载失败，请稍后重试"
	case errors.Is(err, ErrUnknownSession):
		return "会话已失效，请刷新页面"
	}
	return "地图数据加载失败"
}
