package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-map/internal/dataset"
)

func lineFeature(name string, ls orb.LineString) *geojson.Feature {
	f := geojson.NewFeature(ls)
	if name != "" {
		f.Properties["name"] = name
	}
	return f
}

func districtFeature(code int, name string, b orb.Bound) *geojson.Feature {
	f := geojson.NewFeature(b.ToPolygon())
	f.Properties["adcode"] = float64(code)
	f.Properties["name"] = name
	f.Properties["level"] = "province"
	return f
}

func testCatalog() *dataset.Catalog {
	lines := geojson.NewFeatureCollection()
	lines.Append(lineFeature("长江", orb.LineString{{100, 30}, {110, 30}}))
	lines.Append(lineFeature("黄河", orb.LineString{{100, 35}, {110, 35}}))
	lines.Append(lineFeature("", orb.LineString{{100, 40}, {110, 40}}))

	waters := geojson.NewFeatureCollection()
	waters.Append(lineFeature("太湖", orb.LineString{{120, 31}, {121, 31}}))

	districts := geojson.NewFeatureCollection()
	districts.Append(districtFeature(510000, "四川省", orb.Bound{Min: orb.Point{97, 26}, Max: orb.Point{108, 34}}))
	districts.Append(districtFeature(520000, "四川盆地", orb.Bound{Min: orb.Point{103, 28}, Max: orb.Point{107, 32}}))
	districts.Append(districtFeature(320000, "江苏省", orb.Bound{Min: orb.Point{116, 30}, Max: orb.Point{122, 35}}))

	c := dataset.NewCatalog()
	c.SetChart(geojson.NewFeatureCollection(), waters)
	c.SetLayer(dataset.LayerWaterLines, lines)
	c.SetLayer(dataset.LayerDistricts, districts)
	return c
}

type stubFetcher struct {
	mu    sync.Mutex
	calls []int
	fn    func(ctx context.Context, d dataset.District) (*geojson.FeatureCollection, error)
}

func (s *stubFetcher) FetchBoundary(ctx context.Context, d dataset.District) (*geojson.FeatureCollection, error) {
	s.mu.Lock()
	s.calls = append(s.calls, d.Adcode)
	fn := s.fn
	s.mu.Unlock()
	return fn(ctx, d)
}

func boundaryOf(b orb.Bound) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(b.ToPolygon()))
	return fc
}

func okFetcher() *stubFetcher {
	return &stubFetcher{fn: func(ctx context.Context, d dataset.District) (*geojson.FeatureCollection, error) {
		return boundaryOf(orb.Bound{Min: orb.Point{116, 30}, Max: orb.Point{122, 35}}), nil
	}}
}

func newSession(f BoundaryFetcher) *MapSession {
	return New("s1", testCatalog(), f, Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func TestPointerMoveEnter(t *testing.T) {
	s := newSession(okFetcher())

	tr := s.PointerMove(orb.Point{105, 30.01}, 0.05)
	assert.Equal(t, "enter", tr.Kind())
	assert.True(t, tr.FeatureChanged)

	st, ref := s.State()
	assert.Equal(t, Hovering, st)
	assert.Equal(t, dataset.FeatureRef{Layer: dataset.LayerWaterLines, Index: 0}, ref)

	label := s.Label()
	assert.True(t, label.Visible)
	assert.Equal(t, "长江", label.Text)
	assert.Equal(t, orb.Point{105, 30.01}, label.Position)
	require.Len(t, s.Highlight().Features, 1)
}

func TestPointerMoveSwitchKeepsExactlyOne(t *testing.T) {
	s := newSession(okFetcher())
	s.PointerMove(orb.Point{105, 30}, 0.05)

	tr := s.PointerMove(orb.Point{105, 35}, 0.05)
	assert.Equal(t, "switch", tr.Kind())

	hl := s.Highlight()
	require.Len(t, hl.Features, 1)
	assert.Equal(t, "黄河", hl.Features[0].Properties["name"])
	assert.Equal(t, orb.LineString{{100, 35}, {110, 35}}, hl.Features[0].Geometry)
	assert.Equal(t, "黄河", s.Label().Text)
}

func TestPointerMoveSameFeatureMovesLabel(t *testing.T) {
	s := newSession(okFetcher())
	s.PointerMove(orb.Point{101, 30}, 0.05)
	before := s.Highlight()

	tr := s.PointerMove(orb.Point{102, 30}, 0.05)
	assert.Equal(t, "move", tr.Kind())
	assert.False(t, tr.FeatureChanged)
	assert.Same(t, before, s.Highlight())
	assert.Equal(t, orb.Point{102, 30}, s.Label().Position)
}

func TestHighlightIsACopy(t *testing.T) {
	c := testCatalog()
	s := New("s", c, okFetcher(), Config{})
	s.PointerMove(orb.Point{105, 30}, 0.05)

	hl := s.Highlight().Features[0].Geometry.(orb.LineString)
	hl[0][0] = -1

	orig, _ := c.Collection(dataset.LayerWaterLines)
	assert.Equal(t, 100.0, orig.Features[0].Geometry.(orb.LineString)[0][0])
}

func TestPointerMoveEmptySpace(t *testing.T) {
	s := newSession(okFetcher())
	s.PointerMove(orb.Point{105, 30}, 0.05)

	tr := s.PointerMove(orb.Point{60, 0}, 0.05)
	assert.Equal(t, "leave", tr.Kind())
	assert.Empty(t, s.Highlight().Features)
	assert.False(t, s.Label().Visible)

	st, _ := s.State()
	assert.Equal(t, Idle, st)

	assert.Equal(t, "none", s.PointerOut().Kind())
}

func TestPointerOut(t *testing.T) {
	s := newSession(okFetcher())
	s.PointerMove(orb.Point{105, 35}, 0.05)
	assert.Equal(t, "leave", s.PointerOut().Kind())
	assert.Empty(t, s.Highlight().Features)
	assert.Equal(t, Label{}, s.Label())
}

func TestHoveredIndexOnlyForWaters(t *testing.T) {
	s := newSession(okFetcher())
	s.PointerMove(orb.Point{105, 30}, 0.05)
	_, ok := s.HoveredIndex()
	assert.False(t, ok)

	s.PointerMove(orb.Point{120.5, 31}, 0.05)
	i, ok := s.HoveredIndex()
	assert.True(t, ok)
	assert.Equal(t, 0, i)
}

func TestClick(t *testing.T) {
	s := newSession(okFetcher())

	link, ok := s.Click(orb.Point{105, 30}, 0.05)
	require.True(t, ok)
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "zh.wikipedia.org", u.Host)
	assert.Equal(t, "长江", u.Query().Get("search"))

	_, ok = s.Click(orb.Point{105, 40}, 0.05) // unnamed line
	assert.False(t, ok)
	_, ok = s.Click(orb.Point{60, 0}, 0.05)
	assert.False(t, ok)

	st, _ := s.State()
	assert.Equal(t, Idle, st, "click is stateless")
}

func TestSearchHit(t *testing.T) {
	f := okFetcher()
	s := newSession(f)

	res, err := s.Search(context.Background(), " 江苏 ")
	require.NoError(t, err)
	assert.Equal(t, 320000, res.District.Adcode)
	assert.Equal(t, [4]float64{116, 30, 122, 35}, res.Fit.Extent)
	assert.Equal(t, [4]int{50, 50, 50, 50}, res.Fit.Padding)
	assert.Equal(t, 1000, res.Fit.Duration)

	ov, ok := s.ActiveOverlay()
	require.True(t, ok)
	assert.Equal(t, 320000, ov.District.Adcode)
	assert.Same(t, ov.Collection, res.Overlay)
}

func TestSearchFirstMatchWins(t *testing.T) {
	f := okFetcher()
	s := newSession(f)

	res, err := s.Search(context.Background(), "四川")
	require.NoError(t, err)
	assert.Equal(t, "四川省", res.District.Name)
	assert.Equal(t, []int{510000}, f.calls)
}

func TestSearchMissLeavesOverlay(t *testing.T) {
	f := okFetcher()
	s := newSession(f)
	_, err := s.Search(context.Background(), "江苏")
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "西藏")
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.Equal(t, "未找到匹配的行政区", Message(err))

	ov, ok := s.ActiveOverlay()
	require.True(t, ok)
	assert.Equal(t, 320000, ov.District.Adcode)
	assert.Len(t, f.calls, 1)
}

func TestSearchCaseSensitive(t *testing.T) {
	c := dataset.NewCatalog()
	fc := geojson.NewFeatureCollection()
	fc.Append(districtFeature(1, "Sichuan", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}))
	c.SetLayer(dataset.LayerDistricts, fc)
	s := New("s", c, okFetcher(), Config{})

	_, err := s.Search(context.Background(), "sichuan")
	assert.ErrorIs(t, err, ErrNoMatch)
	_, err = s.Search(context.Background(), "Sich")
	assert.NoError(t, err)
}

func TestSearchEmpty(t *testing.T) {
	f := okFetcher()
	s := newSession(f)
	_, err := s.Search(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Empty(t, f.calls)
}

func TestSearchFetchFailure(t *testing.T) {
	f := &stubFetcher{fn: func(ctx context.Context, d dataset.District) (*geojson.FeatureCollection, error) {
		return nil, errors.New("502")
	}}
	s := newSession(f)

	_, err := s.Search(context.Background(), "江苏")
	assert.ErrorIs(t, err, ErrBoundaryFetch)
	_, ok := s.ActiveOverlay()
	assert.False(t, ok)

	f.fn = func(ctx context.Context, d dataset.District) (*geojson.FeatureCollection, error) {
		return geojson.NewFeatureCollection(), nil
	}
	_, err = s.Search(context.Background(), "江苏")
	assert.ErrorIs(t, err, ErrBoundaryFetch)
}

func TestSearchLatestWins(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	f := &stubFetcher{}
	f.fn = func(ctx context.Context, d dataset.District) (*geojson.FeatureCollection, error) {
		if d.Adcode == 510000 {
			close(started)
			<-release // slow response for the first search
		}
		return boundaryOf(orb.Bound{Min: orb.Point{float64(d.Adcode / 10000), 0}, Max: orb.Point{60, 1}}), nil
	}
	s := newSession(f)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Search(context.Background(), "四川")
		errc <- err
	}()
	<-started

	res, err := s.Search(context.Background(), "江苏")
	require.NoError(t, err)
	assert.Equal(t, 320000, res.District.Adcode)

	close(release)
	assert.ErrorIs(t, <-errc, ErrSuperseded)

	ov, ok := s.ActiveOverlay()
	require.True(t, ok)
	assert.Equal(t, 320000, ov.District.Adcode)
}

func TestSearchResultCarriesItsOwnOverlay(t *testing.T) {
	f := okFetcher()
	s := newSession(f)

	first, err := s.Search(context.Background(), "江苏")
	require.NoError(t, err)
	second, err := s.Search(context.Background(), "四川")
	require.NoError(t, err)

	// the older result keeps the boundary matching its fit
	require.NotNil(t, first.Overlay)
	b, ok := collectionBound(first.Overlay)
	require.True(t, ok)
	assert.Equal(t, first.Fit, NewFit(b))

	ov, _ := s.ActiveOverlay()
	assert.Same(t, ov.Collection, second.Overlay)
	assert.NotSame(t, first.Overlay, second.Overlay)
}

func TestClearOverlay(t *testing.T) {
	s := newSession(okFetcher())
	_, err := s.Search(context.Background(), "江苏")
	require.NoError(t, err)
	s.ClearOverlay()
	_, ok := s.ActiveOverlay()
	assert.False(t, ok)
}

func TestSearchLink(t *testing.T) {
	assert.Equal(t, "https://example.org/s?q=1&search=%E9%BB%84%E6%B2%B3", SearchLink("https://example.org/s?q=1", "黄河"))
}
