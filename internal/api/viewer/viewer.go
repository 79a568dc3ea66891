// Package viewer contains the Datastar SSE handlers that drive one map
// session per page: pointer hover, click, district search and the
// per-page event stream.
package viewer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-map/internal/dataset"
	"github.com/joeblew999/plat-map/internal/humastar"
	"github.com/joeblew999/plat-map/internal/metrics"
	"github.com/joeblew999/plat-map/internal/service"
	"github.com/joeblew999/plat-map/internal/session"
	"github.com/joeblew999/plat-map/internal/templates"
)

// DefaultTolerance is the hit-test radius in degrees when the page sends none.
const DefaultTolerance = 0.02

// Page-side hooks defined in static/viewer.js.
const (
	jsHighlight = "platMap.setHighlight"
	jsOverlay   = "platMap.setOverlay"
	jsFit       = "platMap.fit"
	jsOpen      = "platMap.open"
)

// Notice is the content of the #notice fragment.
type Notice struct {
	Kind string // "error" or "success"
	Text string
}

// Handler serves the viewer SSE endpoints.
type Handler struct {
	humastar.Handler
	sessions *service.SessionService
	catalog  *dataset.Catalog
	bus      *service.EventBus
	log      *slog.Logger
}

// NewHandler creates a viewer handler.
func NewHandler(sessions *service.SessionService, catalog *dataset.Catalog, bus *service.EventBus, renderer *templates.Renderer, log *slog.Logger) *Handler {
	return &Handler{
		Handler:  humastar.Handler{Renderer: renderer},
		sessions: sessions,
		catalog:  catalog,
		bus:      bus,
		log:      log,
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Post(api, "/api/v1/viewer/hover", h.Hover, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/leave", h.Leave, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/click", h.Click, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/search", h.Search, huma.OperationTags("viewer"))
	huma.Get(api, "/api/v1/viewer/events", h.Events, huma.OperationTags("viewer"))
}

// pointer reads the pointer position and tolerance signals.
func pointer(s humastar.Signals) (orb.Point, float64) {
	tol := s.Float("tol")
	if tol <= 0 {
		tol = DefaultTolerance
	}
	return orb.Point{s.Float("lon"), s.Float("lat")}, tol
}

// withSession parses the signals and resolves the session. An unknown
// session is reported in the stream, not as an HTTP error, so the page can
// show it.
func (h *Handler) withSession(input *humastar.SignalsInput, fn func(sse humastar.SSE, ms *session.MapSession, s humastar.Signals)) (*huma.StreamResponse, error) {
	s, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	ms, err := h.sessions.Get(s.String("sid"))
	return h.Stream(func(sse humastar.SSE) {
		if err != nil {
			h.notify(sse, Notice{Kind: "error", Text: session.Message(err)})
			return
		}
		fn(sse, ms, s)
	}), nil
}

func (h *Handler) notify(sse humastar.SSE, n Notice) {
	sse.Patch(h.Fragment("notice", n), "#notice")
	if n.Kind == "error" {
		sse.Error(n.Text)
	} else {
		sse.Success(n.Text)
	}
}

// sendHover pushes the highlight layer when it changed, and always the label.
func (h *Handler) sendHover(sse humastar.SSE, ms *session.MapSession, t session.Transition) {
	if kind := t.Kind(); kind != "none" {
		metrics.PointerEvents.WithLabelValues(kind).Inc()
	}
	if t.FeatureChanged {
		if err := sse.Call(jsHighlight, ms.Highlight()); err != nil {
			h.log.Warn("highlight_encode_error", "session", ms.ID(), "err", err)
		}
	}
	label := ms.Label()
	sse.Patch(h.Fragment("hover-label", label), "#hover-label")
	sse.Signals(map[string]any{"hovered": label.Text})
}

func (h *Handler) Hover(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.withSession(input, func(sse humastar.SSE, ms *session.MapSession, s humastar.Signals) {
		p, tol := pointer(s)
		h.sendHover(sse, ms, ms.PointerMove(p, tol))
	})
}

func (h *Handler) Leave(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.withSession(input, func(sse humastar.SSE, ms *session.MapSession, s humastar.Signals) {
		h.sendHover(sse, ms, ms.PointerOut())
	})
}

func (h *Handler) Click(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.withSession(input, func(sse humastar.SSE, ms *session.MapSession, s humastar.Signals) {
		p, tol := pointer(s)
		link, ok := ms.Click(p, tol)
		if !ok {
			return
		}
		sse.Call(jsOpen, link)
	})
}

func (h *Handler) Search(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.withSession(input, func(sse humastar.SSE, ms *session.MapSession, s humastar.Signals) {
		query := s.String("query")
		res, err := ms.Search(ctx, query)
		metrics.Searches.WithLabelValues(searchOutcome(err)).Inc()
		switch {
		case errors.Is(err, session.ErrSuperseded):
			// a newer search owns the overlay
			return
		case err != nil:
			h.log.Info("district_search_failed", "session", ms.ID(), "query", query, "err", err)
			h.notify(sse, Notice{Kind: "error", Text: session.Message(err)})
			return
		}

		sse.Call(jsOverlay, overlayCollection(res.Overlay))
		sse.Call(jsFit, res.Fit)
		h.notify(sse, Notice{Kind: "success", Text: "已定位：" + res.District.Name})
	})
}

func overlayCollection(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	if fc == nil {
		return geojson.NewFeatureCollection()
	}
	return fc
}

func searchOutcome(err error) string {
	switch {
	case err == nil:
		return "hit"
	case errors.Is(err, session.ErrSuperseded):
		return "superseded"
	case errors.Is(err, session.ErrEmptyQuery):
		return "empty"
	case errors.Is(err, session.ErrNoMatch):
		return "miss"
	case errors.Is(err, session.ErrBoundaryFetch):
		return "fetch_error"
	}
	return "error"
}

type EventsInput struct {
	SID string `query:"sid" required:"true" doc:"Map session id"`
}

// Events is the page's long-lived stream. It pushes dataset status changes.
// The browser closes and reopens it (hidden tabs, network errors) with the
// same sid, so closing only touches the session; expiry is left to the
// idle pruner.
func (h *Handler) Events(ctx context.Context, input *EventsInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		ms, err := h.sessions.Get(input.SID)
		if err != nil {
			h.notify(sse, Notice{Kind: "error", Text: session.Message(err)})
			return
		}
		defer ms.Touch()

		ch := h.bus.Subscribe()
		defer h.bus.Unsubscribe(ch)

		sse.Patch(h.Fragment("layer-status", h.catalog.Statuses()), "#layer-status")
		for {
			select {
			case <-sse.Context().Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Resource != service.ResourceDatasets {
					continue
				}
				ms.Touch()
				sse.Patch(h.Fragment("layer-status", h.catalog.Statuses()), "#layer-status")
				sse.DispatchCustomEvent("dataset-changed", map[string]any{
					"action": ev.Action,
					"layer":  ev.ID,
				})
			}
		}
	}), nil
}
