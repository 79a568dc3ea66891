package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/time/rate"

	"github.com/joeblew999/plat-map/internal/metrics"
)

// maxBody caps a single dataset response.
const maxBody = 256 << 20

// Fetcher reads datasets from HTTP(S) URLs or from the data directory.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	dataDir string
}

// NewFetcher creates a fetcher. rps limits upstream requests; zero or
// less means unlimited.
func NewFetcher(dataDir string, timeout time.Duration, rps float64) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 4),
		dataDir: dataDir,
	}
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Fetch returns the raw bytes behind ref.
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, errors.New("empty dataset location")
	}
	if !isRemote(ref) {
		data, err := os.ReadFile(filepath.Join(f.dataDir, filepath.FromSlash(ref)))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", ref, err)
		}
		return data, nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.FetchDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", ref, err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching %s: status %d", ref, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ref, err)
	}
	return data, nil
}

// FetchCollection fetches and parses GeoJSON. A lone Feature is wrapped
// into a collection.
func (f *Fetcher) FetchCollection(ctx context.Context, ref string) (*geojson.FeatureCollection, error) {
	data, err := f.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	return ParseCollection(data)
}

// ParseCollection parses a FeatureCollection or a single Feature.
func ParseCollection(data []byte) (*geojson.FeatureCollection, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parsing geojson: %w", err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("parsing geojson: %w", err)
		}
		return fc, nil
	case "Feature":
		feat, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("parsing geojson: %w", err)
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(feat)
		return fc, nil
	}
	return nil, fmt.Errorf("parsing geojson: unsupported type %q", head.Type)
}
