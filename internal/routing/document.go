package routing

import (
	"github.com/breatheroute/navcore/internal/route"
	"github.com/breatheroute/navcore/pkg/polyline"
)

// Step is one provider maneuver, already mapped to a turn type and to
// indices into the route geometry.
type Step struct {
	Turn        route.TurnType
	Instruction string
	StreetNames []string
	Meters      float64
	Seconds     float64
	Begin       int
	End         int
}

// DocumentBuilder assembles a Valhalla shaped document for providers whose
// wire format is something else. Geometry is stored pre-decoded on the leg.
type DocumentBuilder struct {
	req       Request
	points    []polyline.Coordinate
	maneuvers []route.Maneuver
	meters    float64
	seconds   float64
}

// NewDocumentBuilder starts a document for req. The request defaults are applied.
func NewDocumentBuilder(req Request) *DocumentBuilder {
	return &DocumentBuilder{req: req.withDefaults()}
}

// AddPoints appends geometry. A point equal to the current last point is
// skipped so that concatenated step geometries do not repeat their joints.
// It returns the index of the last point.
func (b *DocumentBuilder) AddPoints(points []polyline.Coordinate) int {
	for _, p := range points {
		if n := len(b.points); n > 0 && b.points[n-1] == p {
			continue
		}
		b.points = append(b.points, p)
	}
	return len(b.points) - 1
}

// SetPoints replaces the geometry as given, for providers whose step indices
// refer to their own point sequence.
func (b *DocumentBuilder) SetPoints(points []polyline.Coordinate) {
	b.points = append([]polyline.Coordinate(nil), points...)
}

// PointCount returns the number of geometry points added so far.
func (b *DocumentBuilder) PointCount() int {
	return len(b.points)
}

// AddStep appends one maneuver.
func (b *DocumentBuilder) AddStep(s Step) {
	factor := b.req.Units.MetersPerUnit()
	streets := s.StreetNames
	if streets == nil {
		streets = []string{}
	}
	b.maneuvers = append(b.maneuvers, route.Maneuver{
		route.KeyType:            float64(s.Turn),
		route.KeyInstruction:     s.Instruction,
		route.KeyStreetNames:     streets,
		route.KeyLength:          s.Meters / factor,
		route.KeyTime:            s.Seconds,
		route.KeyBeginShapeIndex: float64(s.Begin),
		route.KeyEndShapeIndex:   float64(s.End),
		route.KeyTravelMode:      TravelMode(b.req.Costing),
	})
	b.meters += s.Meters
	b.seconds += s.Seconds
}

// SetTotals overrides the summed step totals with the provider's summary.
func (b *DocumentBuilder) SetTotals(meters, seconds float64) {
	b.meters, b.seconds = meters, seconds
}

// Document returns the assembled document.
func (b *DocumentBuilder) Document() *route.Document {
	factor := b.req.Units.MetersPerUnit()
	summary := route.Summary{Length: b.meters / factor, Time: b.seconds}

	waypoints := make([]route.Waypoint, 0, len(b.req.Locations))
	for i, loc := range b.req.Locations {
		kind := "through"
		if i == 0 || i == len(b.req.Locations)-1 {
			kind = "break"
		}
		waypoints = append(waypoints, route.Waypoint{Lat: loc.Lat, Lon: loc.Lon, Type: kind, Name: loc.Name})
	}

	return &route.Document{Trip: &route.Trip{
		Status:    route.StatusFound,
		Units:     b.req.Units,
		Language:  b.req.Language,
		Summary:   summary,
		Locations: waypoints,
		Legs: []route.Leg{{
			Points:    b.points,
			Maneuvers: b.maneuvers,
			Summary:   summary,
		}},
	}}
}

// NoRouteDocument is the document returned when the provider answered but
// found nothing.
func NoRouteDocument(message string) *route.Document {
	return &route.Document{Trip: &route.Trip{Status: StatusNoRoute, StatusMessage: message}}
}

// TravelMode is the Valhalla travel mode name of a costing.
func TravelMode(c Costing) string {
	switch c {
	case CostingPedestrian:
		return "pedestrian"
	case CostingBicycle:
		return "bicycle"
	case CostingMultimodal:
		return "transit"
	}
	return "drive"
}
