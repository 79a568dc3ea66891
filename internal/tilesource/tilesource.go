// Package tilesource proxies XYZ raster tiles from an upstream tile
// service. The access token is filled in server side.
package tilesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/maptile"
	"golang.org/x/time/rate"

	"github.com/joeblew999/plat-map/internal/metrics"
)

// MaxZoom is the deepest zoom the proxy forwards.
const MaxZoom = 18

// Layer names.
const (
	LayerBase  = "base"
	LayerLabel = "label"
)

var (
	ErrUnknownLayer = errors.New("unknown tile layer")
	ErrInvalidTile  = errors.New("invalid tile coordinates")
	ErrNoToken      = errors.New("tile token not configured")
)

// Source is an upstream tile template. Placeholders: {s} {z} {x} {y} {token}.
type Source struct {
	Name       string   `json:"name" doc:"Layer name" example:"base"`
	Template   string   `json:"-"`
	Subdomains []string `json:"subdomains,omitempty" doc:"Values for {s}"`
	MaxZoom    int      `json:"maxZoom" doc:"Deepest zoom served"`
	// URL is the path the page requests tiles from.
	URL string `json:"url" doc:"Proxy tile URL template" example:"/tiles/raster/base/{z}/{x}/{y}"`
}

const tiandituTemplate = "https://t{s}.tianditu.gov.cn/%s_w/wmts?SERVICE=WMTS&REQUEST=GetTile&VERSION=1.0.0" +
	"&LAYER=%s&STYLE=default&TILEMATRIXSET=w&FORMAT=tiles&TILEMATRIX={z}&TILEROW={y}&TILECOL={x}&tk={token}"

var tiandituSubdomains = []string{"0", "1", "2", "3", "4", "5", "6", "7"}

// DefaultSources are the Tianditu vector base map and its label layer.
func DefaultSources() []Source {
	return []Source{
		{Name: LayerBase, Template: fmt.Sprintf(tiandituTemplate, "vec", "vec"), Subdomains: tiandituSubdomains, MaxZoom: MaxZoom},
		{Name: LayerLabel, Template: fmt.Sprintf(tiandituTemplate, "cva", "cva"), Subdomains: tiandituSubdomains, MaxZoom: MaxZoom},
	}
}

// Expand fills the template for tile t.
func (s Source) Expand(t maptile.Tile, token string) string {
	sub := ""
	if len(s.Subdomains) > 0 {
		sub = s.Subdomains[int(t.X+t.Y)%len(s.Subdomains)]
	}
	r := strings.NewReplacer(
		"{s}", sub,
		"{z}", strconv.FormatUint(uint64(t.Z), 10),
		"{x}", strconv.FormatUint(uint64(t.X), 10),
		"{y}", strconv.FormatUint(uint64(t.Y), 10),
		"{token}", token,
	)
	return r.Replace(s.Template)
}

// ParseTile validates z/x/y path segments.
func ParseTile(z, x, y string, maxZoom int) (maptile.Tile, error) {
	zi, err1 := strconv.ParseUint(z, 10, 32)
	xi, err2 := strconv.ParseUint(x, 10, 32)
	yi, err3 := strconv.ParseUint(y, 10, 32)
	if err := errors.Join(err1, err2, err3); err != nil {
		return maptile.Tile{}, fmt.Errorf("%w: %v", ErrInvalidTile, err)
	}
	if int(zi) > maxZoom {
		return maptile.Tile{}, fmt.Errorf("%w: zoom %d above %d", ErrInvalidTile, zi, maxZoom)
	}
	t := maptile.New(uint32(xi), uint32(yi), maptile.Zoom(zi))
	if !t.Valid() {
		return maptile.Tile{}, fmt.Errorf("%w: %d/%d/%d", ErrInvalidTile, zi, xi, yi)
	}
	return t, nil
}

// Proxy fetches tiles from the configured sources.
type Proxy struct {
	sources map[string]Source
	order   []string
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewProxy creates a proxy. rps limits upstream requests; zero or less
// means unlimited.
func NewProxy(sources []Source, token string, timeout time.Duration, rps float64) *Proxy {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	p := &Proxy{
		sources: make(map[string]Source, len(sources)),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 16),
	}
	for _, s := range sources {
		if s.MaxZoom <= 0 || s.MaxZoom > MaxZoom {
			s.MaxZoom = MaxZoom
		}
		s.URL = "/tiles/raster/" + s.Name + "/{z}/{x}/{y}"
		p.sources[s.Name] = s
		p.order = append(p.order, s.Name)
	}
	return p
}

// Sources lists the layers in configuration order.
func (p *Proxy) Sources() []Source {
	out := make([]Source, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.sources[name])
	}
	return out
}

// HasToken reports whether an access token is configured.
func (p *Proxy) HasToken() bool { return p.token != "" }

// Tile is a fetched upstream tile.
type Tile struct {
	ContentType string
	Body        []byte
}

// Fetch returns the tile for layer at t.
func (p *Proxy) Fetch(ctx context.Context, layer string, t maptile.Tile) (Tile, error) {
	src, ok := p.sources[layer]
	if !ok {
		return Tile{}, fmt.Errorf("%w: %q", ErrUnknownLayer, layer)
	}
	if int(t.Z) > src.MaxZoom {
		return Tile{}, fmt.Errorf("%w: zoom %d above %d", ErrInvalidTile, t.Z, src.MaxZoom)
	}
	if strings.Contains(src.Template, "{token}") && p.token == "" {
		return Tile{}, ErrNoToken
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return Tile{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Expand(t, p.token), nil)
	if err != nil {
		return Tile{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		// the URL carries the token; do not leak it in errors
		return Tile{}, fmt.Errorf("fetching %s tile %d/%d/%d: request failed", layer, t.Z, t.X, t.Y)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Tile{}, fmt.Errorf("fetching %s tile %d/%d/%d: upstream status %d", layer, t.Z, t.X, t.Y, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Tile{}, err
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(body)
	}
	return Tile{ContentType: ct, Body: body}, nil
}

// ServeHTTP handles GET /tiles/raster/{layer}/{z}/{x}/{y}.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t, err := ParseTile(r.PathValue("z"), r.PathValue("x"), r.PathValue("y"), MaxZoom)
	if err != nil {
		metrics.Tiles.WithLabelValues("raster", "invalid").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tile, err := p.Fetch(r.Context(), r.PathValue("layer"), t)
	switch {
	case errors.Is(err, ErrUnknownLayer):
		metrics.Tiles.WithLabelValues("raster", "not_found").Inc()
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, ErrInvalidTile):
		metrics.Tiles.WithLabelValues("raster", "invalid").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ErrNoToken):
		metrics.Tiles.WithLabelValues("raster", "unavailable").Inc()
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		metrics.Tiles.WithLabelValues("raster", "upstream_error").Inc()
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	metrics.Tiles.WithLabelValues("raster", "ok").Inc()
	w.Header().Set("Content-Type", tile.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(tile.Body)
}
