package api

import (
	"context"
)

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DB       bool     `json:"db" doc:"Whether database is available"`
	Spatial  bool     `json:"spatial" doc:"Whether the DuckDB spatial extension loaded"`
	Sessions int      `json:"sessions" doc:"Live map sessions"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *APIHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Name:     "plat-map",
		Version:  Version,
		DB:       h.svc.DB != nil,
		Features: []string{"render-option", "hover", "district-search", "raster-proxy", "mvt"},
	}
	if h.svc.DB != nil {
		body.Spatial = h.svc.DB.Spatial()
		body.Features = append(body.Features, "duckdb")
	}
	if h.svc.Sessions != nil {
		body.Sessions = h.svc.Sessions.Len()
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
