// Package server wires the map viewer: datasets, sessions, the Huma API,
// the Datastar viewer endpoints, tiles and static assets.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-map/internal/api"
	"github.com/joeblew999/plat-map/internal/api/viewer"
	"github.com/joeblew999/plat-map/internal/dataset"
	"github.com/joeblew999/plat-map/internal/db"
	"github.com/joeblew999/plat-map/internal/logger"
	"github.com/joeblew999/plat-map/internal/metrics"
	"github.com/joeblew999/plat-map/internal/service"
	"github.com/joeblew999/plat-map/internal/session"
	"github.com/joeblew999/plat-map/internal/templates"
	"github.com/joeblew999/plat-map/internal/tilesource"
	"github.com/joeblew999/plat-map/internal/vectortile"
	"github.com/joeblew999/plat-map/web"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string // base directory for dataset paths that are not URLs
	WebDir  string // serve templates and static files from disk instead of the embedded copy

	Sources      dataset.Sources
	FetchTimeout time.Duration
	FetchRate    float64 // upstream requests per second, 0 = unlimited

	TileSources []tilesource.Source // nil means Tianditu
	TileToken   string

	SearchURL   string
	IdleTimeout time.Duration
	DisableDB   bool

	Logger *slog.Logger
}

// Server is the map viewer HTTP server.
type Server struct {
	config   Config
	log      *slog.Logger
	mux      *http.ServeMux
	handler  http.Handler
	humaAPI  huma.API
	services *api.Services
	renderer *templates.Renderer
	webFS    fs.FS
}

// New creates a server. Datasets are not loaded until Load is called.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.L()
	}
	if cfg.TileSources == nil {
		cfg.TileSources = tilesource.DefaultSources()
	}

	webFS := fs.FS(web.FS)
	if cfg.WebDir != "" {
		webFS = os.DirFS(cfg.WebDir)
	}
	renderer, err := templates.New(webFS, web.Patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("plat-map API", api.Version)
	humaConfig.Info.Description = "China map viewer: boundary and water datasets, hover and click interaction, district search."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	catalog := dataset.NewCatalog()
	fetcher := dataset.NewFetcher(cfg.DataDir, cfg.FetchTimeout, cfg.FetchRate)
	loader := dataset.NewLoader(fetcher, cfg.Sources, catalog, cfg.Logger)
	bus := service.NewEventBus()
	sessions := service.NewSessionService(catalog, loader, session.Config{
		SearchURL: cfg.SearchURL,
		Logger:    cfg.Logger,
	}, bus)
	if cfg.IdleTimeout > 0 {
		sessions.SetIdleTimeout(cfg.IdleTimeout)
	}

	services := &api.Services{
		Catalog:  catalog,
		Loader:   loader,
		Sessions: sessions,
		Tiles:    tilesource.NewProxy(cfg.TileSources, cfg.TileToken, 0, 0),
		Bus:      bus,
	}

	if !cfg.DisableDB {
		if d, err := db.Open(context.Background()); err == nil {
			services.DB = d
		} else {
			cfg.Logger.Warn("duckdb_unavailable", "err", err)
		}
	}

	s := &Server{
		config:   cfg,
		log:      cfg.Logger,
		mux:      mux,
		humaAPI:  humaAPI,
		services: services,
		renderer: renderer,
		webFS:    webFS,
	}
	loader.OnLoad(s.onLoad)

	s.routes()
	s.handler = logger.AccessMiddleware(cfg.Logger)(mux)
	return s, nil
}

// onLoad fans a load result out to the viewer streams and the SQL mirror.
func (s *Server) onLoad(layer string, err error) {
	action := service.ActionLoaded
	if err != nil {
		action = service.ActionFailed
	}
	s.services.Bus.Publish(service.Event{Resource: service.ResourceDatasets, Action: action, ID: layer})
	if err != nil || s.services.DB == nil {
		return
	}

	ctx := context.Background()
	var syncErr error
	switch layer {
	case dataset.LayerDistricts:
		syncErr = s.services.DB.SyncDistricts(ctx, s.services.Catalog.Districts())
	case dataset.LayerWaters:
		syncErr = s.services.DB.SyncWaters(ctx, s.services.Catalog.Waters())
	}
	if syncErr != nil {
		s.log.Warn("duckdb_sync_error", "layer", layer, "err", syncErr)
	}
}

// Load fetches every dataset once. Failures are logged and reflected in
// the layer statuses; the server keeps running without those layers.
func (s *Server) Load(ctx context.Context) error {
	return s.services.Loader.LoadAll(ctx)
}

// Run loads the datasets in the background and prunes idle sessions until
// ctx is done. Requests are served while layers are still loading; the
// layer status reports them as pending.
func (s *Server) Run(ctx context.Context) {
	go func() {
		if err := s.Load(ctx); err != nil {
			s.log.Warn("datasets_partially_loaded", "err", err)
		}
	}()
	s.services.Sessions.RunPruner(ctx, time.Minute, s.log)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Close closes server resources.
func (s *Server) Close() error {
	if s.services.DB != nil {
		return s.services.DB.Close()
	}
	return nil
}

func (s *Server) routes() {
	// Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)

	// Viewer SSE routes using Huma + Datastar SDK
	viewer.NewHandler(s.services.Sessions, s.services.Catalog, s.services.Bus, s.renderer, s.log).
		RegisterRoutes(s.humaAPI)

	// Tiles
	s.mux.Handle("GET /tiles/raster/{layer}/{z}/{x}/{y}", s.services.Tiles)
	s.mux.Handle("GET /tiles/vector/{z}/{x}/{tile}", vectortile.New(s.services.Catalog, nil))

	// Static files and metrics
	if static, err := fs.Sub(s.webFS, "static"); err == nil {
		s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	}
	s.mux.Handle("GET /metrics", metrics.Handler())

	// Page routes
	s.mux.HandleFunc("GET /viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-map",
		"status":  "running",
		"viewer":  "/viewer",
	})
}

// viewerPage is the data of the viewer template.
type viewerPage struct {
	Signals   string
	Tiles     string
	VectorURL string
	Label     session.Label
	Notice    *viewer.Notice
	Layers    []dataset.LayerStatus
}

// handleViewer starts a session and renders the page bound to it.
func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	ms := s.services.Sessions.Create()

	signals, _ := json.Marshal(map[string]any{
		"sid": ms.ID(), "lon": 0, "lat": 0, "tol": 0,
		"query": "", "hovered": "", "error": "", "success": "",
	})
	tiles, _ := json.Marshal(s.services.Tiles.Sources())

	page := viewerPage{
		Signals:   string(signals),
		Tiles:     string(tiles),
		VectorURL: "/tiles/vector/{z}/{x}/{y}.mvt",
		Layers:    s.services.Catalog.Statuses(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.renderer.Execute(w, "viewer", page); err != nil {
		s.log.Error("viewer_render_error", "err", err)
	}
}
