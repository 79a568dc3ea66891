package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-map/internal/dataset"
	"github.com/joeblew999/plat-map/internal/render"
)

// chinaBound frames the scene when no boundary is loaded.
var chinaBound = orb.Bound{Min: orb.Point{73, 18}, Max: orb.Point{135, 54}}

// RegisterRender registers the chart render routes.
func (h *APIHandler) RegisterRender(api huma.API) {
	huma.Get(api, "/api/v1/render/option", h.GetRenderOption, huma.OperationTags("render"))
	huma.Get(api, "/api/v1/viewer/scene", h.GetScene, huma.OperationTags("render"))
}

type SceneInput struct {
	SessionInput
	Width  int `query:"width" minimum:"1" maximum:"8192" default:"1024" doc:"Viewport width in pixels"`
	Height int `query:"height" minimum:"1" maximum:"8192" default:"768" doc:"Viewport height in pixels"`
}

type SceneBody struct {
	Width  int            `json:"width"`
	Height int            `json:"height"`
	Items  []render.Group `json:"items" doc:"Draw callback output per water item, in dataset order"`
}

// hover resolves the session's hover state. An unknown sid is a 404; an
// empty one means nothing is hovered.
func (h *APIHandler) hover(sid string) (render.HoverState, error) {
	if sid == "" || h.svc.Sessions == nil {
		return nil, nil
	}
	ms, err := h.svc.Sessions.Get(sid)
	if err != nil {
		return nil, huma.Error404NotFound("unknown session")
	}
	return ms, nil
}

func (h *APIHandler) GetRenderOption(ctx context.Context, input *SessionInput) (*struct{ Body *render.Option }, error) {
	hs, err := h.hover(input.SID)
	if err != nil {
		return nil, err
	}
	return &struct{ Body *render.Option }{Body: render.Build(h.svc.Catalog.Waters(), hs)}, nil
}

func (h *APIHandler) GetScene(ctx context.Context, input *SceneInput) (*struct{ Body SceneBody }, error) {
	hs, err := h.hover(input.SID)
	if err != nil {
		return nil, err
	}
	bound := chinaBound
	if fc, ok := h.svc.Catalog.Collection(dataset.LayerBoundary); ok {
		first := true
		for _, f := range fc.Features {
			switch {
			case f.Geometry == nil:
			case first:
				bound, first = f.Geometry.Bound(), false
			default:
				bound = bound.Union(f.Geometry.Bound())
			}
		}
	}
	opt := render.Build(h.svc.Catalog.Waters(), hs)
	items := opt.Scene(render.NewViewport(bound, input.Width, input.Height))
	return &struct{ Body SceneBody }{Body: SceneBody{Width: input.Width, Height: input.Height, Items: items}}, nil
}
