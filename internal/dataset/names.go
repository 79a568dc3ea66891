package dataset

import (
	"encoding/json"
	"strconv"

	"github.com/paulmach/orb/geojson"
)

// nameKeys are tried in order; lookup is case-sensitive.
var nameKeys = []string{"name", "NAME", "Name"}

// FeatureName returns the first non-empty string among the name-like
// properties of a feature.
func FeatureName(props geojson.Properties) (string, bool) {
	for _, k := range nameKeys {
		if s, ok := props[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// WaterNameKey is the property the chart water items take their name from.
// Unlike hover labels there is no fallback to other spellings.
const WaterNameKey = "NAME"

// WaterFeatures converts the water collection into indexed items.
// Features without geometry keep their slot with nil coordinates.
func WaterFeatures(fc *geojson.FeatureCollection) []WaterFeature {
	if fc == nil {
		return nil
	}
	out := make([]WaterFeature, len(fc.Features))
	for i, f := range fc.Features {
		name, _ := f.Properties[WaterNameKey].(string)
		w := WaterFeature{Name: name}
		if f.Geometry != nil {
			w.Type = f.Geometry.GeoJSONType()
			w.Coordinates = f.Geometry
		}
		out[i] = w
	}
	return out
}

// ParseDistricts reads district records from feature properties.
// parent may be an object with an adcode member or a bare code.
func ParseDistricts(fc *geojson.FeatureCollection) []District {
	if fc == nil {
		return nil
	}
	out := make([]District, 0, len(fc.Features))
	for _, f := range fc.Features {
		name, ok := FeatureName(f.Properties)
		if !ok {
			continue
		}
		d := District{
			Adcode: toInt(f.Properties["adcode"]),
			Name:   name,
			Level:  f.Properties.MustString("level", ""),
		}
		switch p := f.Properties["parent"].(type) {
		case map[string]any:
			d.ParentAdcode = toInt(p["adcode"])
		default:
			d.ParentAdcode = toInt(p)
		}
		out = append(out, d)
	}
	return out
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
