// Package polyline encodes and decodes the compact polyline format used by
// routing services for route shapes, on top of github.com/twpayne/go-polyline,
// and turns decoded shapes into route nodes.
package polyline

import (
	"errors"
	"fmt"

	gopolyline "github.com/twpayne/go-polyline"

	"github.com/breatheroute/navcore/pkg/geodesic"
)

// Scale factors. Each decoded integer unit is 1/precision of a degree.
const (
	// Precision5 is the Google and openrouteservice variant.
	Precision5 = 1e5
	// Precision6 is the Valhalla variant.
	Precision6 = 1e6
)

// ErrTruncated is returned when the input ends in the middle of a value or pair.
var ErrTruncated = errors.New("polyline: truncated input")

// ErrInvalidCharacter is returned for bytes outside the encoding alphabet.
var ErrInvalidCharacter = errors.New("polyline: invalid character")

// Coordinate represents a geographic point with latitude and longitude.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Location converts the coordinate to a geodesic location.
func (c Coordinate) Location() geodesic.Location {
	return geodesic.NewLocation(c.Lat, c.Lon)
}

// Decode decodes a polyline-encoded string at the given precision.
// Deltas are accumulated as integers so no rounding error builds up along the shape.
func Decode(encoded string, precision float64) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	codec := gopolyline.Codec{Dim: 2, Scale: precision}
	flat, _, err := codec.DecodeFlatCoords(nil, []byte(encoded))
	if err != nil {
		return nil, codecError(err)
	}
	if len(flat)%2 != 0 {
		return nil, ErrTruncated
	}

	coords := make([]Coordinate, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		coords = append(coords, Coordinate{Lat: flat[i], Lon: flat[i+1]})
	}
	return coords, nil
}

// codecError folds go-polyline errors into this package's two failure modes.
func codecError(err error) error {
	switch {
	case errors.Is(err, gopolyline.ErrEmpty), errors.Is(err, gopolyline.ErrUnterminatedSequence):
		return ErrTruncated
	case errors.Is(err, gopolyline.ErrInvalidByte), errors.Is(err, gopolyline.ErrOverflow):
		return ErrInvalidCharacter
	default:
		return fmt.Errorf("polyline: %w", err)
	}
}

// Encode encodes coordinates into a polyline string at the given precision.
func Encode(coords []Coordinate, precision float64) string {
	if len(coords) == 0 {
		return ""
	}

	flat := make([]float64, 0, 2*len(coords))
	for _, c := range coords {
		flat = append(flat, c.Lat, c.Lon)
	}
	codec := gopolyline.Codec{Dim: 2, Scale: precision}
	// The slice length is always a multiple of Dim.
	buf, _ := codec.EncodeFlatCoords(make([]byte, 0, len(coords)*6), flat)
	return string(buf)
}

// Length returns the ellipsoidal length of a polyline in meters.
func Length(coords []Coordinate) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += geodesic.Distance(coords[i-1].Location(), coords[i].Location())
	}
	return total
}

// Sample returns points spaced intervalMeters apart along the polyline,
// always including the first and last coordinate.
func Sample(coords []Coordinate, intervalMeters float64) []Coordinate {
	if len(coords) == 0 {
		return nil
	}
	if intervalMeters <= 0 {
		return coords
	}

	sampled := []Coordinate{coords[0]}
	carried := 0.0

	for i := 1; i < len(coords); i++ {
		from := coords[i-1].Location()
		res := geodesic.Inverse(from, coords[i].Location())

		offset := intervalMeters - carried
		for offset <= res.Distance {
			p := geodesic.Destination(from, res.InitialBearing, offset)
			sampled = append(sampled, Coordinate{Lat: p.Lat, Lon: p.Lon})
			offset += intervalMeters
		}
		carried = res.Distance - (offset - intervalMeters)
	}

	last := coords[len(coords)-1]
	if sampled[len(sampled)-1] != last {
		sampled = append(sampled, last)
	}
	return sampled
}
