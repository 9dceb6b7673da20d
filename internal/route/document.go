package route

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/breatheroute/navcore/pkg/polyline"
)

// Status codes of a route document.
const (
	// StatusFound is the success sentinel reported by the routing service.
	StatusFound = 0
	// StatusMissing is reported when the document has no trip at all.
	StatusMissing = -1
)

// Document is a parsed route document in the shape of a Valhalla trip.
type Document struct {
	Trip *Trip `json:"trip,omitempty"`
}

// Trip carries the route summary, legs and via points.
type Trip struct {
	Status        int        `json:"status"`
	StatusMessage string     `json:"status_message,omitempty"`
	Units         Units      `json:"units"`
	Language      string     `json:"language,omitempty"`
	Summary       Summary    `json:"summary"`
	Locations     []Waypoint `json:"locations,omitempty"`
	Legs          []Leg      `json:"legs"`
}

// Summary totals. Length is expressed in the trip units, time in seconds.
type Summary struct {
	Length float64 `json:"length"`
	Time   float64 `json:"time"`
}

// Waypoint is one of the locations the trip was requested through.
type Waypoint struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Type string  `json:"type,omitempty"`
	Name string  `json:"name,omitempty"`
}

// Leg is one section of the trip. Shape holds the encoded polyline at
// Precision6; providers that already decoded their geometry fill Points instead.
type Leg struct {
	Shape     string                `json:"shape,omitempty"`
	Points    []polyline.Coordinate `json:"-"`
	Maneuvers []Maneuver            `json:"maneuvers"`
	Summary   Summary               `json:"summary"`
}

// Maneuver is a generic maneuver record as found in the parsed document.
type Maneuver map[string]any

// Maneuver record keys.
const (
	KeyType                  = "type"
	KeyInstruction           = "instruction"
	KeyStreetNames           = "street_names"
	KeyLength                = "length"
	KeyTime                  = "time"
	KeyBeginShapeIndex       = "begin_shape_index"
	KeyEndShapeIndex         = "end_shape_index"
	KeyTravelMode            = "travel_mode"
	KeyVerbalPreTransition   = "verbal_pre_transition_instruction"
	KeyVerbalTransitionAlert = "verbal_transition_alert_instruction"
	KeyVerbalPostTransition  = "verbal_post_transition_instruction"
)

// minManeuverFields is the smallest record a maneuver may be built from.
const minManeuverFields = 6

// ParseDocument decodes a JSON route document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding route document: %w", err)
	}
	return &doc, nil
}

// Status returns the document status, or StatusMissing without a trip.
func (d *Document) Status() int {
	if d == nil || d.Trip == nil {
		return StatusMissing
	}
	return d.Trip.Status
}

// Found reports whether the document describes a route.
func (d *Document) Found() bool {
	return d.Status() == StatusFound
}

func (m Maneuver) has(key string) bool {
	_, ok := m[key]
	return ok
}

func (m Maneuver) number(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func (m Maneuver) integer(key string) (int, bool) {
	f, ok := m.number(key)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func (m Maneuver) text(key string) string {
	s, _ := m[key].(string)
	return s
}

func (m Maneuver) strings(key string) []string {
	switch v := m[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
