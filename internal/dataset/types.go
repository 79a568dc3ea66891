// Package dataset loads, holds and indexes the static map datasets:
// the national boundary, water bodies, water lines, the border overlay
// and the administrative district index.
package dataset

import (
	"time"

	"github.com/paulmach/orb"
)

// Layer names used by the catalog, the API and the vector tiles.
const (
	LayerBoundary   = "boundary"
	LayerWaters     = "waters"
	LayerWaterLines = "water-lines"
	LayerBorder     = "border"
	LayerDistricts  = "districts"
)

// Sources holds the location of every dataset. A value starting with
// http:// or https:// is fetched, anything else is read relative to the data dir.
type Sources struct {
	Boundary   string
	Waters     string
	WaterLines string
	Border     string
	Districts  string

	// DistrictBoundary is a template with {type} and {code} placeholders,
	// {type} being the district level and {code} its adcode.
	DistrictBoundary string
}

// DefaultSources returns the stock dataset locations.
func DefaultSources() Sources {
	return Sources{
		Boundary:         "https://geo.datav.aliyun.com/areas_v3/bound/100000_full.json",
		Waters:           "geojson/water/waters.geojson",
		WaterLines:       "geojson/water/lines.geojson",
		Border:           "geojson/border/china.geojson",
		Districts:        "geojson/district/index.geojson",
		DistrictBoundary: "geojson/district/{type}/{code}.json",
	}
}

// WaterFeature is one entry of the water dataset, addressed by its index.
type WaterFeature struct {
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	Coordinates orb.Geometry `json:"-"`
}

// District is a record of the administrative district index.
type District struct {
	Adcode       int    `json:"adcode" doc:"Administrative code" example:"510000"`
	Name         string `json:"name" doc:"Display name" example:"四川省"`
	ParentAdcode int    `json:"parentAdcode" doc:"Adcode of the parent district" example:"100000"`
	Level        string `json:"level" doc:"Nesting level" example:"province"`
}

// LayerStatus reports whether a dataset is loaded.
type LayerStatus struct {
	Name     string    `json:"name" doc:"Layer name" example:"waters"`
	Loaded   bool      `json:"loaded" doc:"Whether the layer holds data"`
	Features int       `json:"features" doc:"Number of features"`
	Error    string    `json:"error,omitempty" doc:"Last load error"`
	LoadedAt time.Time `json:"loadedAt,omitempty" doc:"Time of the last successful load"`
}

// FeatureRef identifies a feature by layer and position.
type FeatureRef struct {
	Layer string `json:"layer"`
	Index int    `json:"index"`
}
