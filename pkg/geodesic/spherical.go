package geodesic

import "math"

// MeanEarthRadius is the mean radius used by the spherical helpers, in meters.
const MeanEarthRadius = 6371008.8

// zeroLonNudge replaces an exactly zero longitude delta in Intersection.
const zeroLonNudge = 1e-9

// Destination returns the point reached by travelling the given distance in
// meters from p along a great circle with the given initial bearing.
func Destination(p Location, bearing, meters float64) Location {
	lat1 := toRadians(p.Lat)
	lon1 := toRadians(p.Lon)
	theta := toRadians(bearing)
	delta := meters / MeanEarthRadius

	sinLat1, cosLat1 := math.Sincos(lat1)
	sinDelta, cosDelta := math.Sincos(delta)

	lat2 := math.Asin(clamp(sinLat1*cosDelta + cosLat1*sinDelta*math.Cos(theta)))
	lon2 := lon1 + math.Atan2(math.Sin(theta)*sinDelta*cosLat1, cosDelta-sinLat1*math.Sin(lat2))

	return Location{Lat: toDegrees(lat2), Lon: normalizeLongitude(toDegrees(lon2))}
}

// CrossTrack returns the signed distance in meters from q to the great circle
// leaving p at the given bearing. Positive values lie to the right of the path.
func CrossTrack(p Location, bearing float64, q Location) float64 {
	delta13 := angularDistance(p, q)
	theta13 := sphericalBearing(p, q)
	theta12 := toRadians(bearing)
	return math.Asin(clamp(math.Sin(delta13)*math.Sin(theta13-theta12))) * MeanEarthRadius
}

// Intersection returns the point where the great circle leaving p1 at
// bearing1 meets the great circle leaving p2 at bearing2, solving the
// spherical triangle formed by the two points and the crossing.
//
// ok is false when the two points coincide, when the paths have infinitely
// many or ambiguous crossings, or when the solve produces NaN. An exactly
// zero longitude delta is nudged to avoid a degenerate triangle.
func Intersection(p1 Location, bearing1 float64, p2 Location, bearing2 float64) (Location, bool) {
	lat1 := toRadians(p1.Lat)
	lon1 := toRadians(p1.Lon)
	lat2 := toRadians(p2.Lat)
	lon2 := toRadians(p2.Lon)
	theta13 := toRadians(bearing1)
	theta23 := toRadians(bearing2)

	dLat := lat2 - lat1
	dLon := lon2 - lon1
	if dLat == 0 && dLon == 0 {
		return Location{}, false
	}
	if dLon == 0 {
		dLon = zeroLonNudge
	}

	sinHalfLat := math.Sin(dLat / 2)
	sinHalfLon := math.Sin(dLon / 2)
	delta12 := 2 * math.Asin(math.Sqrt(sinHalfLat*sinHalfLat+math.Cos(lat1)*math.Cos(lat2)*sinHalfLon*sinHalfLon))
	if delta12 == 0 {
		return Location{}, false
	}

	thetaA := math.Acos(clamp((math.Sin(lat2) - math.Sin(lat1)*math.Cos(delta12)) / (math.Sin(delta12) * math.Cos(lat1))))
	thetaB := math.Acos(clamp((math.Sin(lat1) - math.Sin(lat2)*math.Cos(delta12)) / (math.Sin(delta12) * math.Cos(lat2))))

	var theta12, theta21 float64
	if math.Sin(lon2-lon1) > 0 {
		theta12 = thetaA
		theta21 = 2*math.Pi - thetaB
	} else {
		theta12 = 2*math.Pi - thetaA
		theta21 = thetaB
	}

	alpha1 := math.Mod(theta13-theta12+math.Pi, 2*math.Pi) - math.Pi
	alpha2 := math.Mod(theta21-theta23+math.Pi, 2*math.Pi) - math.Pi

	sinAlpha1 := math.Sin(alpha1)
	sinAlpha2 := math.Sin(alpha2)
	if sinAlpha1 == 0 && sinAlpha2 == 0 {
		return Location{}, false // infinite intersections
	}
	if sinAlpha1*sinAlpha2 < 0 {
		return Location{}, false // ambiguous intersection
	}

	alpha3 := math.Acos(clamp(-math.Cos(alpha1)*math.Cos(alpha2) + sinAlpha1*sinAlpha2*math.Cos(delta12)))
	delta13 := math.Atan2(math.Sin(delta12)*sinAlpha1*sinAlpha2, math.Cos(alpha2)+math.Cos(alpha1)*math.Cos(alpha3))
	lat3 := math.Asin(clamp(math.Sin(lat1)*math.Cos(delta13) + math.Cos(lat1)*math.Sin(delta13)*math.Cos(theta13)))
	dLon13 := math.Atan2(math.Sin(theta13)*math.Sin(delta13)*math.Cos(lat1), math.Cos(delta13)-math.Sin(lat1)*math.Sin(lat3))
	lon3 := math.Mod(lon1+dLon13+3*math.Pi, 2*math.Pi) - math.Pi

	if math.IsNaN(lat3) || math.IsNaN(lon3) {
		return Location{}, false
	}
	return Location{Lat: toDegrees(lat3), Lon: toDegrees(lon3)}, true
}

func angularDistance(p, q Location) float64 {
	lat1 := toRadians(p.Lat)
	lat2 := toRadians(q.Lat)
	sinHalfLat := math.Sin((lat2 - lat1) / 2)
	sinHalfLon := math.Sin(toRadians(q.Lon-p.Lon) / 2)
	h := sinHalfLat*sinHalfLat + math.Cos(lat1)*math.Cos(lat2)*sinHalfLon*sinHalfLon
	return 2 * math.Asin(math.Sqrt(math.Min(1, h)))
}

func sphericalBearing(p, q Location) float64 {
	lat1 := toRadians(p.Lat)
	lat2 := toRadians(q.Lat)
	dLon := toRadians(q.Lon - p.Lon)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return math.Atan2(y, x)
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

func normalizeLongitude(lon float64) float64 {
	return math.Mod(lon+540, 360) - 180
}
