// Package render builds the declarative chart description of the map:
// a choropleth base layer plus a custom water layer whose items are drawn
// by a callback that reads the live hover state.
package render

import (
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-map/internal/dataset"
)

// WaterSeriesName names the custom water layer.
const WaterSeriesName = "水系"

const (
	waterColor = "#0077be"

	hoverWidth   = 3
	plainWidth   = 1.5
	hoverOpacity = 1
	plainOpacity = 0.6
)

// Projector maps a geographic coordinate to a pixel coordinate.
type Projector func(orb.Point) orb.Point

// HoverState is read on every draw; implementations return the hovered
// index of the water layer, if any.
type HoverState interface {
	HoveredIndex() (int, bool)
}

// HoverFunc adapts a function to HoverState.
type HoverFunc func() (int, bool)

func (f HoverFunc) HoveredIndex() (int, bool) { return f() }

// Option is the render description handed to a chart renderer.
type Option struct {
	Geo    GeoLayer `json:"geo"`
	Series []Series `json:"series"`

	waters []dataset.WaterFeature
	hover  HoverState
}

type GeoLayer struct {
	Map       string    `json:"map"`
	Roam      bool      `json:"roam"`
	Label     Label     `json:"label"`
	ItemStyle ItemStyle `json:"itemStyle"`
	Emphasis  Emphasis  `json:"emphasis"`
}

type Label struct {
	Show     bool   `json:"show,omitempty"`
	Color    string `json:"color,omitempty"`
	FontSize int    `json:"fontSize,omitempty"`
}

type ItemStyle struct {
	AreaColor   string `json:"areaColor,omitempty"`
	BorderColor string `json:"borderColor,omitempty"`
}

type Emphasis struct {
	ItemStyle ItemStyle `json:"itemStyle"`
	Label     Label     `json:"label"`
}

type Series struct {
	Name             string       `json:"name,omitempty"`
	Type             string       `json:"type"`
	Map              string       `json:"map,omitempty"`
	GeoIndex         *int         `json:"geoIndex,omitempty"`
	CoordinateSystem string       `json:"coordinateSystem,omitempty"`
	Data             []SeriesItem `json:"data"`
	Z                int          `json:"z,omitempty"`
}

type SeriesItem struct {
	Name  string       `json:"name"`
	Type  string       `json:"type,omitempty"`
	Value orb.Geometry `json:"value,omitempty"`
}

// Build assembles the option for the given water items. hover may be nil.
func Build(waters []dataset.WaterFeature, hover HoverState) *Option {
	geoIndex := 0
	items := make([]SeriesItem, len(waters))
	for i, w := range waters {
		items[i] = SeriesItem{Name: w.Name, Type: w.Type, Value: w.Coordinates}
	}

	return &Option{
		Geo: GeoLayer{
			Map:       "China",
			Roam:      true,
			Label:     Label{Show: true, Color: "#333", FontSize: 8},
			ItemStyle: ItemStyle{AreaColor: "#f3f4f6", BorderColor: "#ccc"},
			Emphasis: Emphasis{
				ItemStyle: ItemStyle{AreaColor: "#e5e7eb"},
				Label:     Label{Color: "#000"},
			},
		},
		Series: []Series{
			{Type: "map", Map: "China", GeoIndex: &geoIndex, Data: []SeriesItem{}},
			{Name: WaterSeriesName, Type: "custom", CoordinateSystem: "geo", Data: items, Z: 100},
		},
		waters: waters,
		hover:  hover,
	}
}

func (o *Option) isHovered(index int) bool {
	if o.hover == nil {
		return false
	}
	i, ok := o.hover.HoveredIndex()
	return ok && i == index
}

// DrawItem renders the water item at index. It returns an empty group
// for unknown indexes, missing coordinates and non-line geometry.
func (o *Option) DrawItem(index int, project Projector) Group {
	if index < 0 || index >= len(o.waters) || project == nil {
		return emptyGroup()
	}
	item := o.waters[index]

	line, ok := item.Coordinates.(orb.LineString)
	if !ok || len(line) == 0 {
		return emptyGroup()
	}

	points := make([][2]float64, len(line))
	for i, c := range line {
		p := project(c)
		points[i] = [2]float64{p[0], p[1]}
	}

	hovered := o.isHovered(index)
	style := &Style{Stroke: waterColor, Fill: "none", LineWidth: plainWidth, Opacity: plainOpacity}
	if hovered {
		style.LineWidth = hoverWidth
		style.Opacity = hoverOpacity
	}

	g := Group{
		Type:     "group",
		Children: []Element{{Type: "polyline", Shape: &Shape{Points: points}, Style: style}},
		Cursor:   "pointer",
	}
	if hovered {
		mid := project(line[len(line)/2])
		g.Children = append(g.Children, Element{
			Type: "text",
			Style: &Style{
				Text:                item.Name,
				Font:                "bold 12px sans-serif",
				TextFill:            waterColor,
				TextAlign:           "center",
				TextVerticalAlign:   "middle",
				X:                   mid[0],
				Y:                   mid[1],
				TextBackgroundColor: "rgba(255, 255, 255, 0.8)",
				TextPadding:         []int{2, 4},
			},
		})
	}
	return g
}

// Scene draws every water item, keeping index alignment.
func (o *Option) Scene(project Projector) []Group {
	out := make([]Group, len(o.waters))
	for i := range o.waters {
		out[i] = o.DrawItem(i, project)
	}
	return out
}
