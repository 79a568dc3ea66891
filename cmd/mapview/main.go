package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-map/internal/dataset"
	"github.com/joeblew999/plat-map/internal/logger"
	"github.com/joeblew999/plat-map/internal/server"
	"github.com/joeblew999/plat-map/internal/tilesource"
)

// Options defines all CLI flags and env vars for the map server.
// Flags: --host, --port, --data-dir, --tile-token, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_TILE_TOKEN, ...
type Options struct {
	Host    string `doc:"Host to bind to" default:"0.0.0.0"`
	Port    int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir string `doc:"Base directory for local dataset paths" default:"public"`
	WebDir  string `doc:"Serve templates and static files from this directory instead of the embedded copy"`

	BoundaryURL      string `doc:"National boundary dataset" default:"https://geo.datav.aliyun.com/areas_v3/bound/100000_full.json"`
	WatersURL        string `doc:"Water bodies dataset" default:"geojson/water/waters.geojson"`
	WaterLinesURL    string `doc:"Water lines dataset" default:"geojson/water/lines.geojson"`
	BorderURL        string `doc:"National border lines dataset" default:"geojson/border/china.geojson"`
	DistrictsURL     string `doc:"District index dataset" default:"geojson/district/index.geojson"`
	DistrictBoundary string `doc:"District boundary template with {type} and {code}" default:"geojson/district/{type}/{code}.json"`

	FetchTimeout int     `doc:"Dataset fetch timeout in seconds" default:"30"`
	FetchRate    float64 `doc:"Upstream dataset requests per second (0 = unlimited)" default:"0"`

	TileToken string `doc:"Access token for the raster tile service"`
	SearchURL string `doc:"External search page opened on click" default:"https://zh.wikipedia.org/wiki/Special:Search"`
	NoDB      bool   `doc:"Disable the in-memory DuckDB mirror"`
}

func newServer(opts *Options) *server.Server {
	srv, err := server.New(server.Config{
		Host:    opts.Host,
		Port:    fmt.Sprintf("%d", opts.Port),
		DataDir: opts.DataDir,
		WebDir:  opts.WebDir,
		Sources: dataset.Sources{
			Boundary:         opts.BoundaryURL,
			Waters:           opts.WatersURL,
			WaterLines:       opts.WaterLinesURL,
			Border:           opts.BorderURL,
			Districts:        opts.DistrictsURL,
			DistrictBoundary: opts.DistrictBoundary,
		},
		FetchTimeout: time.Duration(opts.FetchTimeout) * time.Second,
		FetchRate:    opts.FetchRate,
		TileSources:  tilesource.DefaultSources(),
		TileToken:    opts.TileToken,
		SearchURL:    opts.SearchURL,
		DisableDB:    opts.NoDB,
		Logger:       logger.L(),
	})
	if err != nil {
		log.Fatalf("Server setup error: %v", err)
	}
	return srv
}

func main() {
	// .env is optional
	_ = godotenv.Load()
	logger.Setup()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var (
			srv    *server.Server
			cancel context.CancelFunc
		)

		hooks.OnStart(func() {
			srv = newServer(opts)
			defer srv.Close()

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			defer cancel()

			go srv.Run(ctx)

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-map server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			if opts.TileToken == "" {
				fmt.Printf("  Tiles:   no token set, raster base map disabled\n")
			}
			fmt.Println()
			fmt.Printf("  Viewer:  %s/viewer\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			if err := http.ListenAndServe(addr, srv); err != nil {
				log.Fatalf("Server error: %v", err)
			}
		})

		hooks.OnStop(func() {
			if cancel != nil {
				cancel()
			}
		})
	})

	cli.Root().Use = "mapview"
	cli.Root().Short = "Interactive China map viewer"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.NoDB = true
			srv := newServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	cli.Run()
}
