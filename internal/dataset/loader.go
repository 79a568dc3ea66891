package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/plat-map/internal/metrics"
)

// Loader fetches datasets into a catalog.
type Loader struct {
	fetcher *Fetcher
	sources Sources
	catalog *Catalog
	log     *slog.Logger

	mu     sync.Mutex
	onLoad []func(layer string, err error)
}

// NewLoader creates a loader.
func NewLoader(f *Fetcher, src Sources, c *Catalog, log *slog.Logger) *Loader {
	return &Loader{fetcher: f, sources: src, catalog: c, log: log}
}

// OnLoad registers fn to run after every load attempt. err is nil when the
// layer was installed.
func (l *Loader) OnLoad(fn func(layer string, err error)) {
	l.mu.Lock()
	l.onLoad = append(l.onLoad, fn)
	l.mu.Unlock()
}

func (l *Loader) loaded(layer string) {
	metrics.DatasetLoads.WithLabelValues(layer, "ok").Inc()
	l.notify(layer, nil)
}

func (l *Loader) failed(layer string, err error) {
	metrics.DatasetLoads.WithLabelValues(layer, "error").Inc()
	l.catalog.MarkFailed(layer, err)
	l.log.Error("dataset_load_error", "layer", layer, "err", err)
	l.notify(layer, err)
}

func (l *Loader) notify(layer string, err error) {
	l.mu.Lock()
	hooks := append([]func(string, error){}, l.onLoad...)
	l.mu.Unlock()
	for _, fn := range hooks {
		fn(layer, err)
	}
}

// LoadChart fetches the boundary and water datasets concurrently and
// installs them only if both succeed.
func (l *Loader) LoadChart(ctx context.Context) error {
	var boundary, waters *geojson.FeatureCollection

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fc, err := l.fetcher.FetchCollection(gctx, l.sources.Boundary)
		if err != nil {
			return fmt.Errorf("%s: %w", LayerBoundary, err)
		}
		boundary = fc
		return nil
	})
	g.Go(func() error {
		fc, err := l.fetcher.FetchCollection(gctx, l.sources.Waters)
		if err != nil {
			return fmt.Errorf("%s: %w", LayerWaters, err)
		}
		waters = fc
		return nil
	})

	if err := g.Wait(); err != nil {
		l.failed(LayerBoundary, err)
		l.failed(LayerWaters, err)
		return err
	}

	l.catalog.SetChart(boundary, waters)
	l.log.Info("dataset_loaded", "layer", LayerBoundary, "features", len(boundary.Features))
	l.log.Info("dataset_loaded", "layer", LayerWaters, "features", len(waters.Features))
	l.loaded(LayerBoundary)
	l.loaded(LayerWaters)
	return nil
}

// LoadLayers fetches the border, water-line and district layers. Each is
// installed as soon as its own fetch succeeds; failures are joined.
func (l *Loader) LoadLayers(ctx context.Context) error {
	layers := []struct {
		name string
		ref  string
	}{
		{LayerBorder, l.sources.Border},
		{LayerWaterLines, l.sources.WaterLines},
		{LayerDistricts, l.sources.Districts},
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, ly := range layers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fc, err := l.fetcher.FetchCollection(ctx, ly.ref)
			if err != nil {
				l.failed(ly.name, err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", ly.name, err))
				mu.Unlock()
				return
			}
			l.catalog.SetLayer(ly.name, fc)
			l.log.Info("dataset_loaded", "layer", ly.name, "features", len(fc.Features))
			l.loaded(ly.name)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// LoadAll runs both loaders concurrently.
func (l *Loader) LoadAll(ctx context.Context) error {
	var chartErr, layersErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); chartErr = l.LoadChart(ctx) }()
	go func() { defer wg.Done(); layersErr = l.LoadLayers(ctx) }()
	wg.Wait()
	return errors.Join(chartErr, layersErr)
}

// BoundaryRef expands the district boundary template for d.
func (l *Loader) BoundaryRef(d District) string {
	level := d.Level
	if level == "" {
		level = "province"
	}
	return strings.NewReplacer(
		"{type}", level,
		"{code}", strconv.Itoa(d.Adcode),
	).Replace(l.sources.DistrictBoundary)
}

// FetchBoundary fetches the detailed boundary of a district.
func (l *Loader) FetchBoundary(ctx context.Context, d District) (*geojson.FeatureCollection, error) {
	fc, err := l.fetcher.FetchCollection(ctx, l.BoundaryRef(d))
	if err != nil {
		return nil, fmt.Errorf("boundary %d: %w", d.Adcode, err)
	}
	return fc, nil
}
