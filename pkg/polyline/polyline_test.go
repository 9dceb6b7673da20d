package polyline

import (
	"errors"
	"math"
	"strings"
	"testing"
)

// berlinShape is an eight point route shape encoded at Precision6.
const berlinShape = "_ajccB_{zpX?ozD?ozD?_nD_|B?_|B??ohC?_|B"

func TestDecode_ValidPolyline(t *testing.T) {
	tests := []struct {
		name      string
		encoded   string
		precision float64
		expected  []Coordinate
	}{
		{
			name:      "single point",
			encoded:   "_p~iF~ps|U",
			precision: Precision5,
			expected: []Coordinate{
				{Lat: 38.5, Lon: -120.2},
			},
		},
		{
			name:      "three points - Google example",
			encoded:   "_p~iF~ps|U_ulLnnqC_mqNvxq`@",
			precision: Precision5,
			expected: []Coordinate{
				{Lat: 38.5, Lon: -120.2},
				{Lat: 40.7, Lon: -120.95},
				{Lat: 43.252, Lon: -126.453},
			},
		},
		{
			name:      "Amsterdam to Utrecht at 1e6",
			encoded:   "_ng{bBgiijHfy{OglgL",
			precision: Precision6,
			expected: []Coordinate{
				{Lat: 52.3676, Lon: 4.9041},
				{Lat: 52.0907, Lon: 5.1214},
			},
		},
		{
			name:      "first leg of the Berlin shape",
			encoded:   "_ajccB_{zpX?ozD",
			precision: Precision6,
			expected: []Coordinate{
				{Lat: 52.5, Lon: 13.4},
				{Lat: 52.5, Lon: 13.403},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Decode(tt.encoded, tt.precision)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d coordinates, got %d", len(tt.expected), len(result))
			}

			for i, coord := range result {
				if !coordsEqual(coord, tt.expected[i], 1e-9) {
					t.Errorf("coordinate %d: expected %+v, got %+v", i, tt.expected[i], coord)
				}
			}
		})
	}
}

func TestDecode_WrongPrecisionScalesResult(t *testing.T) {
	coords, err := Decode("_ajccB_{zpX", Precision5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !coordsEqual(coords[0], Coordinate{Lat: 525, Lon: 134}, 1e-9) {
		t.Errorf("expected 1e6 data read at 1e5 to be ten times larger, got %+v", coords[0])
	}
}

func TestDecode_EmptyString(t *testing.T) {
	result, err := Decode("", Precision6)
	if err != nil || result != nil {
		t.Errorf("expected nil result and no error, got %v, %v", result, err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
		want    error
	}{
		{"latitude without longitude", "_p~iF", ErrTruncated},
		{"value cut mid varint", "_p~iF~ps|", ErrTruncated},
		{"continuation at end", "_", ErrTruncated},
		{"character below alphabet", "_p~iF ps|U", ErrInvalidCharacter},
		{"character above alphabet", "_p~iF\x7fps|U", ErrInvalidCharacter},
		{"value wider than int", strings.Repeat("~", 13), ErrInvalidCharacter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.encoded, Precision5)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		coords    []Coordinate
		precision float64
	}{
		{
			name:      "Google example",
			coords:    []Coordinate{{Lat: 38.5, Lon: -120.2}, {Lat: 40.7, Lon: -120.95}, {Lat: 43.252, Lon: -126.453}},
			precision: Precision5,
		},
		{
			name:      "negative and positive hemispheres",
			coords:    []Coordinate{{Lat: -33.868820, Lon: 151.209296}, {Lat: 40.712776, Lon: -74.005974}},
			precision: Precision6,
		},
		{
			name:      "sub-meter steps",
			coords:    []Coordinate{{Lat: 52.374031, Lon: 4.889692}, {Lat: 52.374032, Lon: 4.889693}},
			precision: Precision6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := Encode(tt.coords, tt.precision)
			decoded, err := Decode(encoded, tt.precision)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(decoded) != len(tt.coords) {
				t.Fatalf("round-trip: expected %d coordinates, got %d", len(tt.coords), len(decoded))
			}
			for i, coord := range decoded {
				if !coordsEqual(coord, tt.coords[i], 1/tt.precision) {
					t.Errorf("round-trip coordinate %d: expected %+v, got %+v", i, tt.coords[i], coord)
				}
			}
		})
	}
}

func TestEncode_KnownOutput(t *testing.T) {
	got := Encode([]Coordinate{{Lat: 38.5, Lon: -120.2}, {Lat: 40.7, Lon: -120.95}, {Lat: 43.252, Lon: -126.453}}, Precision5)
	if got != "_p~iF~ps|U_ulLnnqC_mqNvxq`@" {
		t.Errorf("unexpected encoding %q", got)
	}
}

func TestEncode_EmptyCoordinates(t *testing.T) {
	if result := Encode(nil, Precision6); result != "" {
		t.Errorf("expected empty string for nil coordinates, got %q", result)
	}
}

func TestLength(t *testing.T) {
	coords, err := Decode(berlinShape, Precision6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Length(coords); math.Abs(got-1327.915) > 0.01 {
		t.Errorf("expected 1327.915m, got %.3fm", got)
	}
	if got := Length(coords[:1]); got != 0 {
		t.Errorf("expected zero length for a single point, got %f", got)
	}
}

func TestSample(t *testing.T) {
	coords := []Coordinate{
		{Lat: 52.0, Lon: 4.0},
		{Lat: 52.01, Lon: 4.0},
		{Lat: 52.02, Lon: 4.0},
		{Lat: 52.03, Lon: 4.0},
	}

	t.Run("sample every 500m", func(t *testing.T) {
		sampled := Sample(coords, 500)
		// ~3338m: samples at 0, 500, ..., 3000 plus the end point.
		if len(sampled) != 8 {
			t.Fatalf("expected 8 samples, got %d", len(sampled))
		}
		if sampled[0] != coords[0] || sampled[len(sampled)-1] != coords[len(coords)-1] {
			t.Errorf("expected samples to start and end on the shape end points")
		}
		for i := 1; i < len(sampled)-1; i++ {
			d := Length(sampled[i-1 : i+1])
			if math.Abs(d-500) > 3 {
				t.Errorf("sample %d: expected ~500m spacing, got %.1fm", i, d)
			}
		}
	})

	t.Run("interval longer than route", func(t *testing.T) {
		if sampled := Sample(coords, 10000); len(sampled) != 2 {
			t.Errorf("expected 2 samples (start and end), got %d", len(sampled))
		}
	})

	t.Run("empty coordinates", func(t *testing.T) {
		if sampled := Sample(nil, 500); sampled != nil {
			t.Errorf("expected nil for empty coordinates")
		}
	})

	t.Run("zero interval returns all", func(t *testing.T) {
		if sampled := Sample(coords, 0); len(sampled) != len(coords) {
			t.Errorf("expected all coordinates for zero interval")
		}
	})
}

func coordsEqual(a, b Coordinate, tolerance float64) bool {
	return math.Abs(a.Lat-b.Lat) <= tolerance && math.Abs(a.Lon-b.Lon) <= tolerance
}

func BenchmarkDecodeNodes(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = DecodeNodes(berlinShape, Precision6)
	}
}
