// Package geodesic provides bearing and distance math on the WGS84 ellipsoid,
// plus the spherical helpers used to project position fixes onto a route.
package geodesic

import (
	"fmt"
	"math"
)

// WGS84 ellipsoid axes in meters.
const (
	SemiMajorAxis = 6378137.0
	SemiMinorAxis = 6356752.3142
)

const (
	maxIterations = 20
	convergence   = 1e-12
)

// Location is an immutable geographic position with an optional bearing.
// Two locations are equal when all of their fields are equal.
type Location struct {
	Lat        float64
	Lon        float64
	Bearing    float64
	HasBearing bool
}

// NewLocation returns a location without a bearing.
func NewLocation(lat, lon float64) Location {
	return Location{Lat: lat, Lon: lon}
}

// WithBearing returns a copy of l carrying the given bearing normalized to [0, 360).
func (l Location) WithBearing(bearing float64) Location {
	l.Bearing = NormalizeBearing(bearing)
	l.HasBearing = true
	return l
}

// WithoutBearing returns a copy of l with the bearing cleared.
func (l Location) WithoutBearing() Location {
	l.Bearing = 0
	l.HasBearing = false
	return l
}

// SamePosition reports whether l and o share latitude and longitude, ignoring bearing.
func (l Location) SamePosition(o Location) bool {
	return l.Lat == o.Lat && l.Lon == o.Lon
}

// DistanceTo returns the ellipsoidal distance from l to o in meters.
func (l Location) DistanceTo(o Location) float64 {
	return Distance(l, o)
}

// BearingTo returns the initial bearing from l to o in degrees within [0, 360).
func (l Location) BearingTo(o Location) float64 {
	return Bearing(l, o)
}

// Valid reports whether the coordinates are inside the WGS84 range.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180 &&
		!math.IsNaN(l.Lat) && !math.IsNaN(l.Lon)
}

func (l Location) String() string {
	if l.HasBearing {
		return fmt.Sprintf("(%.6f, %.6f) %.1f°", l.Lat, l.Lon, l.Bearing)
	}
	return fmt.Sprintf("(%.6f, %.6f)", l.Lat, l.Lon)
}

// Result holds the outcome of one inverse geodesic evaluation.
type Result struct {
	Distance       float64 // meters
	InitialBearing float64 // degrees, [0, 360)
	FinalBearing   float64 // degrees, [0, 360)
	Iterations     int
}

// Inverse solves the inverse geodesic problem between p1 and p2 on the WGS84
// ellipsoid using Vincenty's iteration. The iteration stops once successive
// lambda estimates agree within 1e-12 or after 20 rounds; the last estimate
// is returned either way. Antipodal points may produce a degenerate result.
func Inverse(p1, p2 Location) Result {
	const (
		a = SemiMajorAxis
		b = SemiMinorAxis
		f = (a - b) / a
	)
	aSqMinusBSqOverBSq := (a*a - b*b) / (b * b)

	lat1 := toRadians(p1.Lat)
	lat2 := toRadians(p2.Lat)
	l := toRadians(p2.Lon) - toRadians(p1.Lon)

	u1 := math.Atan((1 - f) * math.Tan(lat1))
	u2 := math.Atan((1 - f) * math.Tan(lat2))
	sinU1, cosU1 := math.Sincos(u1)
	sinU2, cosU2 := math.Sincos(u2)
	cosU1cosU2 := cosU1 * cosU2
	sinU1sinU2 := sinU1 * sinU2

	var (
		bigA, sigma, deltaSigma float64
		sinSigma, cosSigma      float64
		cos2SM, cosSqAlpha      float64
		sinLambda, cosLambda    float64
		iterations              int
	)

	lambda := l
	for iterations = 1; iterations <= maxIterations; iterations++ {
		lambdaPrev := lambda
		sinLambda, cosLambda = math.Sincos(lambda)

		t1 := cosU2 * sinLambda
		t2 := cosU1*sinU2 - sinU1*cosU2*cosLambda
		sinSigma = math.Sqrt(t1*t1 + t2*t2)
		cosSigma = sinU1sinU2 + cosU1cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)

		sinAlpha := 0.0
		if sinSigma != 0 {
			sinAlpha = cosU1cosU2 * sinLambda / sinSigma
		}
		cosSqAlpha = 1 - sinAlpha*sinAlpha
		cos2SM = 0
		if cosSqAlpha != 0 {
			cos2SM = cosSigma - 2*sinU1sinU2/cosSqAlpha
		}

		uSq := cosSqAlpha * aSqMinusBSqOverBSq
		bigA = 1 + (uSq/16384)*(4096+uSq*(-768+uSq*(320-175*uSq)))
		bigB := (uSq / 1024) * (256 + uSq*(-128+uSq*(74-47*uSq)))
		c := (f / 16) * cosSqAlpha * (4 + f*(4-3*cosSqAlpha))
		cos2SMSq := cos2SM * cos2SM
		deltaSigma = bigB * sinSigma * (cos2SM + (bigB/4)*(cosSigma*(-1+2*cos2SMSq)-
			(bigB/6)*cos2SM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SMSq)))

		lambda = l + (1-c)*f*sinAlpha*(sigma+c*sinSigma*(cos2SM+c*cosSigma*(-1+2*cos2SM*cos2SM)))

		// 0/0 when both longitudes match; NaN never converges so all rounds run.
		if math.Abs((lambda-lambdaPrev)/lambda) < convergence {
			break
		}
	}
	if iterations > maxIterations {
		iterations = maxIterations
	}

	initial := math.Atan2(cosU2*sinLambda, cosU1*sinU2-sinU1*cosU2*cosLambda)
	final := math.Atan2(cosU1*sinLambda, -sinU1*cosU2+cosU1*sinU2*cosLambda)

	return Result{
		Distance:       b * bigA * (sigma - deltaSigma),
		InitialBearing: NormalizeBearing(toDegrees(initial)),
		FinalBearing:   NormalizeBearing(toDegrees(final)),
		Iterations:     iterations,
	}
}

// Distance returns the ellipsoidal distance between p1 and p2 in meters.
func Distance(p1, p2 Location) float64 {
	return Inverse(p1, p2).Distance
}

// Bearing returns the initial bearing from p1 to p2 in degrees within [0, 360).
func Bearing(p1, p2 Location) float64 {
	return Inverse(p1, p2).InitialBearing
}

// NormalizeBearing maps any angle in degrees into [0, 360).
func NormalizeBearing(deg float64) float64 {
	b := math.Mod(deg, 360)
	if b < 0 {
		b += 360
	}
	if b >= 360 {
		b = 0
	}
	return b
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }
