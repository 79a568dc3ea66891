package tilesource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTile(t *testing.T) {
	tile, err := ParseTile("3", "5", "2", MaxZoom)
	require.NoError(t, err)
	assert.Equal(t, maptile.New(5, 2, 3), tile)

	for _, tc := range [][3]string{
		{"3", "8", "0"},  // x out of range
		{"19", "0", "0"}, // too deep
		{"a", "0", "0"},
		{"2", "-1", "0"},
	} {
		_, err := ParseTile(tc[0], tc[1], tc[2], MaxZoom)
		assert.ErrorIs(t, err, ErrInvalidTile, "%v", tc)
	}
}

func TestExpand(t *testing.T) {
	src := DefaultSources()[0]
	u := src.Expand(maptile.New(3, 4, 5), "secret")
	assert.Contains(t, u, "https://t7.tianditu.gov.cn/vec_w/wmts")
	assert.Contains(t, u, "TILEMATRIX=5&TILEROW=4&TILECOL=3&tk=secret")

	plain := Source{Template: "http://example.org/{z}/{x}/{y}.png"}
	assert.Equal(t, "http://example.org/1/0/1.png", plain.Expand(maptile.New(0, 1, 1), ""))
}

func upstream(t *testing.T, hits *int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Query().Get("tk") != "tok" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProxyServeHTTP(t *testing.T) {
	var hits int32
	srv := upstream(t, &hits)
	p := NewProxy([]Source{{Name: LayerBase, Template: srv.URL + "/{z}/{x}/{y}?tk={token}"}}, "tok", 0, 0)

	mux := http.NewServeMux()
	mux.Handle("GET /tiles/raster/{layer}/{z}/{x}/{y}", p)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tiles/raster/base/2/1/3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "png:/2/1/3", rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tiles/raster/nope/2/1/3", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tiles/raster/base/2/9/3", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestProxyUpstreamErrorHidesToken(t *testing.T) {
	var hits int32
	srv := upstream(t, &hits)
	p := NewProxy([]Source{{Name: LayerBase, Template: srv.URL + "/{z}/{x}/{y}?tk={token}"}}, "wrong", 0, 0)

	_, err := p.Fetch(context.Background(), LayerBase, maptile.New(0, 0, 0))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "wrong")
	assert.Contains(t, err.Error(), "403")
}

func TestProxyNoToken(t *testing.T) {
	p := NewProxy(DefaultSources(), "", 0, 0)
	assert.False(t, p.HasToken())
	_, err := p.Fetch(context.Background(), LayerLabel, maptile.New(0, 0, 0))
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestSources(t *testing.T) {
	p := NewProxy(DefaultSources(), "tok", 0, 0)
	srcs := p.Sources()
	require.Len(t, srcs, 2)
	assert.Equal(t, LayerBase, srcs[0].Name)
	assert.Equal(t, "/tiles/raster/label/{z}/{x}/{y}", srcs[1].URL)
	assert.Equal(t, MaxZoom, srcs[1].MaxZoom)
}
