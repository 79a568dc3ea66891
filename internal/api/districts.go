package api

import (
	"context"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-map/internal/dataset"
	"github.com/joeblew999/plat-map/internal/service"
)

// RegisterDistricts registers district lookup and dataset reload routes.
func (h *APIHandler) RegisterDistricts(api huma.API) {
	huma.Get(api, "/api/v1/districts/search", h.SearchDistrict, huma.OperationTags("districts"))
	huma.Post(api, "/api/v1/datasets/reload", h.ReloadDatasets, huma.OperationTags("layers"))
}

type SearchInput struct {
	Q string `query:"q" required:"true" minLength:"1" doc:"Substring of the district name" example:"四川"`
}

type DistrictBody struct {
	District dataset.District `json:"district"`
	Boundary string           `json:"boundary" doc:"Location of the detailed boundary"`
}

// SearchDistrict is the stateless lookup behind the viewer search box:
// the first top-level district whose name contains q.
func (h *APIHandler) SearchDistrict(ctx context.Context, input *SearchInput) (*struct{ Body DistrictBody }, error) {
	q := strings.TrimSpace(input.Q)
	if q == "" {
		return nil, huma.Error400BadRequest("empty search query")
	}
	d, ok := dataset.FindDistrict(h.svc.Catalog.Districts(), q)
	if !ok {
		return nil, huma.Error404NotFound("no matching district")
	}
	body := DistrictBody{District: d}
	if h.svc.Loader != nil {
		body.Boundary = h.svc.Loader.BoundaryRef(d)
	}
	return &struct{ Body DistrictBody }{Body: body}, nil
}

type ReloadBody struct {
	Layers []dataset.LayerStatus `json:"layers"`
	Errors []string              `json:"errors,omitempty" doc:"Load errors; layers that failed keep their previous data"`
}

// ReloadDatasets refetches every dataset. Failures are reported, never fatal.
func (h *APIHandler) ReloadDatasets(ctx context.Context, input *struct{}) (*struct{ Body ReloadBody }, error) {
	if h.svc.Loader == nil {
		return nil, huma.Error503ServiceUnavailable("loader not configured")
	}
	var body ReloadBody
	if err := h.svc.Loader.LoadAll(ctx); err != nil {
		body.Errors = strings.Split(err.Error(), "\n")
	}
	body.Layers = h.svc.Catalog.Statuses()
	if h.svc.Bus != nil {
		h.svc.Bus.Publish(service.Event{Resource: service.ResourceDatasets, Action: service.ActionReloaded})
	}
	return &struct{ Body ReloadBody }{Body: body}, nil
}
