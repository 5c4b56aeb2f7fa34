package geo

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// #region types

// FeetPerMeter converts metres returned by orb/geo into feet.
const FeetPerMeter = 3.280839895

// LngLat is a geographic point in WGS84 degrees.
type LngLat struct {
	Lng float64 `json:"lng" yaml:"lng"`
	Lat float64 `json:"lat" yaml:"lat"`
}

// Point converts to an orb.Point (lng, lat order).
func (p LngLat) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// FromPoint converts an orb.Point into a LngLat.
func FromPoint(p orb.Point) LngLat {
	return LngLat{Lng: p.Lon(), Lat: p.Lat()}
}

// Key renders the point rounded to 6 decimal places ("lng,lat").
func (p LngLat) Key() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lng, p.Lat)
}

// #endregion types

// #region distance

// DistanceFeet returns the great-circle (haversine) distance between a and b in feet.
func DistanceFeet(a, b LngLat) float64 {
	d := geo.DistanceHaversine(a.Point(), b.Point())
	if math.IsNaN(d) {
		return math.Inf(1)
	}
	return d * FeetPerMeter
}

// #endregion distance

// #region representative-point

// RepresentativePoint returns the point itself for Point geometries and the
// planar centroid for everything else. ok is false when the feature has no
// usable geometry.
func RepresentativePoint(f *geojson.Feature) (LngLat, bool) {
	if f == nil || f.Geometry == nil {
		return LngLat{}, false
	}
	if p, isPoint := f.Geometry.(orb.Point); isPoint {
		return FromPoint(p), true
	}
	c, _ := planar.CentroidArea(f.Geometry)
	if math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		return LngLat{}, false
	}
	return FromPoint(c), true
}

// #endregion representative-point

// #region feature-keys

// FeatureID returns the feature's top-level id, then properties.id, as a string.
// Empty when neither is set.
func FeatureID(f *geojson.Feature) string {
	if f == nil {
		return ""
	}
	if s := idString(f.ID); s != "" {
		return s
	}
	if f.Properties != nil {
		return idString(f.Properties["id"])
	}
	return ""
}

// FeatureKey is FeatureID with a coordinate fallback for point features.
func FeatureKey(f *geojson.Feature) string {
	if id := FeatureID(f); id != "" {
		return id
	}
	if f == nil {
		return ""
	}
	if p, ok := f.Geometry.(orb.Point); ok {
		return strings.Join([]string{fmtCoord(p.Lon()), fmtCoord(p.Lat())}, ",")
	}
	return ""
}

func idString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmtCoord(t)
	default:
		return fmt.Sprint(t)
	}
}

func fmtCoord(v float64) string {
	return fmt.Sprintf("%g", v)
}

// #endregion feature-keys
