// internal/predicate/geo.go
package predicate

import (
	"math"

	"github.com/tripwirehq/tripwire/internal/types"
)

/*
 * Geospatial proximity operator (_near).
 *
 * Operand shape:
 *   {_geometry: {type: "Point", coordinates: [lon, lat]},
 *    _minDistance?: meters, _maxDistance?: meters}
 *
 * Validation happens at compile time, each rule a distinct error:
 *   1. _geometry required
 *   2. _geometry.type required and must equal "Point"
 *   3. _geometry.coordinates must be [lon, lat] with lon in [-180,180]
 *      and lat in [-90,90]
 *   4. at least one of _minDistance/_maxDistance required; whichever is
 *      supplied must be numeric
 *
 * Match-time: the candidate value must itself be a valid [lon, lat] pair
 * or a PredicateMatchError is raised (the event data is wrong, not the
 * filter). Distance is the haversine great-circle distance in meters:
 * deterministic and symmetric. Match holds iff
 * min (default 0) <= distance <= max (default +Inf).
 */

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// nearOperand is a compiled _near operand.
type nearOperand struct {
	lon, lat float64
	min, max float64
	hasMin   bool
	hasMax   bool
}

// compileNear validates a raw _near operand.
func compileNear(operand any) (*nearOperand, error) {
	spec, ok := operand.(map[string]any)
	if !ok {
		return nil, types.NewPredicateError("_near requires a _geometry")
	}

	geometry, ok := spec["_geometry"].(map[string]any)
	if !ok {
		return nil, types.NewPredicateError("_near requires a _geometry")
	}

	geoType, ok := geometry["type"].(string)
	if !ok || geoType == "" {
		return nil, types.NewPredicateError("_geometry requires a type")
	}
	if geoType != "Point" {
		return nil, types.NewPredicateError("'%s' is not a supported geometry type, only 'Point' is supported", geoType)
	}

	lon, lat, ok := parseLonLat(geometry["coordinates"])
	if !ok {
		return nil, types.NewPredicateError("_geometry requires coordinates as [longitude, latitude] with longitude in [-180,180] and latitude in [-90,90]")
	}

	near := &nearOperand{lon: lon, lat: lat}

	if raw, present := spec["_minDistance"]; present {
		min, numeric := toFloat64(raw)
		if !numeric {
			return nil, types.NewPredicateError("_minDistance must be a number")
		}
		near.min = min
		near.hasMin = true
	}
	if raw, present := spec["_maxDistance"]; present {
		max, numeric := toFloat64(raw)
		if !numeric {
			return nil, types.NewPredicateError("_maxDistance must be a number")
		}
		near.max = max
		near.hasMax = true
	}
	if !near.hasMin && !near.hasMax {
		return nil, types.NewPredicateError("_near requires at least one of _minDistance or _maxDistance")
	}

	return near, nil
}

// match evaluates the compiled operand against a candidate value.
// The candidate must be a [lon, lat] pair within coordinate bounds.
func (n *nearOperand) match(candidate any) (bool, error) {
	lon, lat, ok := parseLonLat(candidate)
	if !ok {
		return false, types.NewPredicateMatchError("'%v' is not a valid [longitude, latitude] location", candidate)
	}

	distance := haversineMeters(n.lon, n.lat, lon, lat)

	min := 0.0
	if n.hasMin {
		min = n.min
	}
	max := math.Inf(1)
	if n.hasMax {
		max = n.max
	}
	return min <= distance && distance <= max, nil
}

// parseLonLat extracts a [lon, lat] pair from a JSON array value and
// checks coordinate bounds.
func parseLonLat(v any) (lon, lat float64, ok bool) {
	var pair []any
	switch t := v.(type) {
	case []any:
		pair = t
	case []float64:
		if len(t) != 2 {
			return 0, 0, false
		}
		pair = []any{t[0], t[1]}
	default:
		return 0, 0, false
	}
	if len(pair) != 2 {
		return 0, 0, false
	}

	lon, okLon := toFloat64(pair[0])
	lat, okLat := toFloat64(pair[1])
	if !okLon || !okLat {
		return 0, 0, false
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return 0, 0, false
	}
	return lon, lat, true
}

// haversineMeters computes the great-circle distance between two points
// on a sphere of Earth's mean radius. Symmetric and deterministic.
func haversineMeters(lon1, lat1, lon2, lat2 float64) float64 {
	const degToRad = math.Pi / 180

	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dPhi := (lat2 - lat1) * degToRad
	dLambda := (lon2 - lon1) * degToRad

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)

	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}
