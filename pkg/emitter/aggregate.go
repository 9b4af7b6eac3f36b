// Package emitter holds the location model kept for every radio emitter
// the service has ever observed: a bounding box over the ground-truth
// fixes, a signal-weighted centroid, and the envelope of signal strengths
// seen. The arithmetic here mirrors the SQL upsert expressions in
// pkg/database so an aggregate folded in memory and an aggregate folded
// by the store agree to floating-point rounding.
package emitter

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the WGS84 mean radius used by the equirectangular
// distance approximation.
const EarthRadiusMeters = 6371008.8

// Weight clamping bounds. Received power in dBm is logarithmic in signal
// power, so the linear weight below corresponds to linear power.
const (
	WeightRefDBm = -100.0
	WeightMin    = 1e-4
	WeightMax    = 1.0
)

// DefaultStrengthDBm substitutes for emitters reported without a strength
// measurement.
const DefaultStrengthDBm = -90.0

// Weight maps a received power in dBm to a positive linear weight,
// clamped into [WeightMin, WeightMax].
func Weight(strengthDBm float64) float64 {
	w := math.Pow(10, (strengthDBm-WeightRefDBm)/10)
	if w < WeightMin {
		return WeightMin
	}
	if w > WeightMax {
		return WeightMax
	}
	return w
}

// Aggregate is the per-emitter location model. TotalWeight > 0 for every
// aggregate built through New or Merge; the box always contains the
// centroid; MinStrength never exceeds MaxStrength.
type Aggregate struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64

	Lat float64
	Lon float64

	// Accuracy is the half-diagonal of the box in meters. Zero for a
	// single observation.
	Accuracy float64

	TotalWeight float64

	MinStrength float64
	MaxStrength float64
}

// New builds a point aggregate from a single ground-truth observation.
func New(lat, lon, strengthDBm float64) Aggregate {
	return Aggregate{
		MinLat:      lat,
		MinLon:      lon,
		MaxLat:      lat,
		MaxLon:      lon,
		Lat:         lat,
		Lon:         lon,
		Accuracy:    0,
		TotalWeight: Weight(strengthDBm),
		MinStrength: strengthDBm,
		MaxStrength: strengthDBm,
	}
}

// Merge folds another aggregate into a. The box becomes the union, the
// centroid the weighted mean of both centroids, the strength envelope the
// union, and the accuracy the half-diagonal of the merged box. Merging a
// point aggregate is the single-observation update.
func (a *Aggregate) Merge(b Aggregate) {
	a.MinLat = math.Min(a.MinLat, b.MinLat)
	a.MinLon = math.Min(a.MinLon, b.MinLon)
	a.MaxLat = math.Max(a.MaxLat, b.MaxLat)
	a.MaxLon = math.Max(a.MaxLon, b.MaxLon)

	total := a.TotalWeight + b.TotalWeight
	a.Lat = (a.Lat*a.TotalWeight + b.Lat*b.TotalWeight) / total
	a.Lon = (a.Lon*a.TotalWeight + b.Lon*b.TotalWeight) / total
	a.TotalWeight = total

	a.MinStrength = math.Min(a.MinStrength, b.MinStrength)
	a.MaxStrength = math.Max(a.MaxStrength, b.MaxStrength)

	a.Accuracy = HalfDiagonalMeters(a.MinLat, a.MinLon, a.MaxLat, a.MaxLon)
}

// Observe folds a single ground-truth fix into the aggregate.
func (a *Aggregate) Observe(lat, lon, strengthDBm float64) {
	a.Merge(New(lat, lon, strengthDBm))
}

// Check reports the first violated aggregate invariant, or nil. Callers
// treat a non-nil result as corruption and fail closed.
func (a Aggregate) Check() error {
	if a.TotalWeight <= 0 {
		return fmt.Errorf("aggregate invariant: total weight %g not positive", a.TotalWeight)
	}
	if a.Lat < a.MinLat || a.Lat > a.MaxLat || a.Lon < a.MinLon || a.Lon > a.MaxLon {
		return fmt.Errorf("aggregate invariant: centroid (%g, %g) outside box (%g, %g)..(%g, %g)",
			a.Lat, a.Lon, a.MinLat, a.MinLon, a.MaxLat, a.MaxLon)
	}
	if a.MinStrength > a.MaxStrength {
		return fmt.Errorf("aggregate invariant: strength envelope [%g, %g] inverted", a.MinStrength, a.MaxStrength)
	}
	return nil
}

// HalfDiagonalMeters returns half the diagonal of a lat/lon box in meters
// under the equirectangular approximation. Coarse on purpose; it only has
// to grow monotonically with the dispersion of observations.
func HalfDiagonalMeters(minLat, minLon, maxLat, maxLon float64) float64 {
	latMid := (minLat + maxLat) / 2
	dx := radians(maxLon-minLon) * math.Cos(radians(latMid)) * EarthRadiusMeters
	dy := radians(maxLat-minLat) * EarthRadiusMeters
	return math.Sqrt(dx*dx + dy*dy) / 2
}

// DistanceMeters approximates the ground distance between two points
// using the same equirectangular projection as HalfDiagonalMeters.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	latMid := (lat1 + lat2) / 2
	dx := radians(lon2-lon1) * math.Cos(radians(latMid)) * EarthRadiusMeters
	dy := radians(lat2-lat1) * EarthRadiusMeters
	return math.Sqrt(dx*dx + dy*dy)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
