// Package api defines the Huma API routes and handlers.
package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-map/internal/dataset"
	"github.com/joeblew999/plat-map/internal/db"
	"github.com/joeblew999/plat-map/internal/service"
	"github.com/joeblew999/plat-map/internal/tilesource"
)

// Version is the API version.
const Version = "0.1.0"

// Services holds the service dependencies for API handlers.
type Services struct {
	Catalog  *dataset.Catalog
	Loader   *dataset.Loader
	Sessions *service.SessionService
	Tiles    *tilesource.Proxy
	DB       *db.DB // nil when DuckDB is unavailable
	Bus      *service.EventBus
}

// RegisterRoutes registers every JSON endpoint.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// Types

type NameInput struct {
	Name string `path:"name" doc:"Layer name" example:"water-lines" enum:"boundary,waters,water-lines,border,districts"`
}

type SessionInput struct {
	SID string `query:"sid" doc:"Map session id; hover state is read from it when set"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
}

type LayersBody struct {
	Layers []dataset.LayerStatus `json:"layers" doc:"Load status per dataset"`
}

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type TilesBody struct {
	Raster   []tilesource.Source `json:"raster" doc:"Proxied raster layers"`
	Vector   string              `json:"vector" doc:"Vector tile URL template" example:"/tiles/vector/{z}/{x}/{y}.mvt"`
	HasToken bool                `json:"hasToken" doc:"Whether the upstream access token is configured"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

// RegisterLayers registers dataset routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{name}/geojson", h.GetLayerGeoJSON, huma.OperationTags("layers"))
}

// RegisterTiles registers tile listing routes.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/tiles", h.GetTiles, huma.OperationTags("tiles"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*struct{ Body LayersBody }, error) {
	return &struct{ Body LayersBody }{Body: LayersBody{Layers: h.svc.Catalog.Statuses()}}, nil
}

func (h *APIHandler) GetLayerGeoJSON(ctx context.Context, input *NameInput) (*GeoJSONOutput, error) {
	fc, ok := h.svc.Catalog.Collection(input.Name)
	if !ok {
		return nil, huma.Error404NotFound("layer not loaded")
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding layer", err)
	}
	return &GeoJSONOutput{ContentType: "application/geo+json", Body: data}, nil
}

func (h *APIHandler) GetTiles(ctx context.Context, input *struct{}) (*struct{ Body TilesBody }, error) {
	body := TilesBody{Raster: []tilesource.Source{}, Vector: "/tiles/vector/{z}/{x}/{y}.mvt"}
	if h.svc.Tiles != nil {
		body.Raster = h.svc.Tiles.Sources()
		body.HasToken = h.svc.Tiles.HasToken()
	}
	return &struct{ Body TilesBody }{Body: body}, nil
}
