// Package route holds the navigation route model: decoded nodes, maneuver
// instructions, and the snapping algorithm that tracks progress along them.
//
// A Route is session state. SnapToRoute mutates it on every fix and nothing
// in this package locks; callers must deliver fixes for one route serially.
package route

import (
	"fmt"
	"math"
	"sort"

	"github.com/breatheroute/navcore/pkg/geodesic"
	"github.com/breatheroute/navcore/pkg/polyline"
)

// Route is a decoded route plus the cursor state of a traveler following it.
type Route struct {
	status        int
	units         Units
	totalDistance int
	totalTime     int
	language      string
	waypoints     []Waypoint

	nodes        []polyline.Node
	instructions []*Instruction

	currentLeg         int
	currentInstruction int
	travelled          float64
	lost               bool
	beginningThreshold float64
	seen               map[int]struct{}
}

// New builds a route from a parsed document. A document whose status is not
// StatusFound yields a route with no nodes or instructions.
func New(doc *Document) (*Route, error) {
	r := &Route{
		status:             doc.Status(),
		units:              Kilometers,
		beginningThreshold: Unset,
		seen:               make(map[int]struct{}),
	}
	if !r.FoundRoute() {
		return r, nil
	}

	trip := doc.Trip
	if len(trip.Legs) == 0 {
		return nil, &DataError{Maneuver: -1, Field: "legs", Reason: "trip has no legs"}
	}
	r.units = ParseUnits(string(trip.Units))
	r.totalDistance = int(math.Round(trip.Summary.Length * r.units.MetersPerUnit()))
	r.totalTime = int(math.Round(trip.Summary.Time))
	r.language = trip.Language
	r.waypoints = append([]Waypoint(nil), trip.Locations...)

	leg := trip.Legs[0]
	if leg.Points != nil {
		r.nodes = polyline.NodesFromCoordinates(leg.Points)
	} else {
		nodes, err := polyline.DecodeNodes(leg.Shape, polyline.Precision6)
		if err != nil {
			return nil, &DataError{Maneuver: -1, Field: "shape", Reason: "cannot decode", Err: err}
		}
		r.nodes = nodes
	}
	if len(r.nodes) == 0 {
		return nil, &DataError{Maneuver: -1, Field: "shape", Reason: "empty shape"}
	}
	if len(leg.Maneuvers) == 0 {
		return nil, &DataError{Maneuver: -1, Field: "maneuvers", Reason: "no maneuvers"}
	}

	r.instructions = make([]*Instruction, 0, len(leg.Maneuvers))
	for i, m := range leg.Maneuvers {
		in, err := newInstruction(i, m, r.units, len(r.nodes))
		if err != nil {
			return nil, err
		}
		in.Bearing = int(math.Ceil(r.nodes[in.BeginShapeIndex].Bearing))
		r.instructions = append(r.instructions, in)
	}

	return r, nil
}

// Parse decodes a JSON route document and builds the route.
func Parse(data []byte) (*Route, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, &DataError{Maneuver: -1, Reason: "invalid document", Err: err}
	}
	return New(doc)
}

// Status returns the routing service status code.
func (r *Route) Status() int { return r.status }

// FoundRoute reports whether the status is the success code.
func (r *Route) FoundRoute() bool { return r.status == StatusFound }

// Units returns the unit system the route was requested in.
func (r *Route) Units() Units { return r.units }

// Language returns the narrative language of the route, if declared.
func (r *Route) Language() string { return r.language }

// TotalDistance returns the route length in meters.
func (r *Route) TotalDistance() int { return r.totalDistance }

// TotalTime returns the expected travel time in seconds.
func (r *Route) TotalTime() int { return r.totalTime }

// Waypoints returns the locations the route was requested through.
func (r *Route) Waypoints() []Waypoint {
	return append([]Waypoint(nil), r.waypoints...)
}

// Nodes returns the decoded shape.
func (r *Route) Nodes() []polyline.Node {
	return append([]polyline.Node(nil), r.nodes...)
}

// Geometry returns the shape as locations.
func (r *Route) Geometry() []geodesic.Location {
	out := make([]geodesic.Location, len(r.nodes))
	for i, n := range r.nodes {
		out[i] = geodesic.NewLocation(n.Lat, n.Lon)
	}
	return out
}

// StartCoordinates returns the first shape point.
func (r *Route) StartCoordinates() (geodesic.Location, bool) {
	if len(r.nodes) == 0 {
		return geodesic.Location{}, false
	}
	return geodesic.NewLocation(r.nodes[0].Lat, r.nodes[0].Lon), true
}

// Destination returns the last shape point.
func (r *Route) Destination() (geodesic.Location, bool) {
	if len(r.nodes) == 0 {
		return geodesic.Location{}, false
	}
	last := r.nodes[len(r.nodes)-1]
	return geodesic.NewLocation(last.Lat, last.Lon), true
}

// Instructions returns the instructions, filling in each location from its
// shape node and seeding live distances as a running sum over the undriven
// route. Only fields still unset are filled, so values written by snapping
// survive repeated calls.
func (r *Route) Instructions() []*Instruction {
	if r.instructions == nil {
		return nil
	}
	accumulated := 0
	for _, in := range r.instructions {
		accumulated += in.Distance
		in.cumulative = accumulated
		in.Location = geodesic.NewLocation(r.nodes[in.BeginShapeIndex].Lat, r.nodes[in.BeginShapeIndex].Lon)
		if in.LiveDistanceToNext < 0 {
			in.LiveDistanceToNext = accumulated
		}
	}
	return r.instructions
}

// CurrentLeg returns the index of the node starting the leg being travelled.
func (r *Route) CurrentLeg() int { return r.currentLeg }

// CurrentInstructionIndex returns the index of the instruction being followed.
func (r *Route) CurrentInstructionIndex() int { return r.currentInstruction }

// CurrentInstruction returns the instruction being followed, or nil without instructions.
func (r *Route) CurrentInstruction() *Instruction {
	if len(r.instructions) == 0 {
		return nil
	}
	return r.instructions[r.currentInstruction]
}

// NextInstructionIndex returns the index of the upcoming maneuver.
func (r *Route) NextInstructionIndex() (int, bool) {
	next := r.currentInstruction + 1
	if next >= len(r.instructions) {
		return Unset, false
	}
	return next, true
}

// NextInstruction returns the upcoming maneuver, or nil past the last one.
func (r *Route) NextInstruction() *Instruction {
	next, ok := r.NextInstructionIndex()
	if !ok {
		return nil
	}
	return r.instructions[next]
}

// DistanceToNextInstruction returns the meters left until the next maneuver.
func (r *Route) DistanceToNextInstruction() int {
	current := r.CurrentInstruction()
	if current == nil {
		return 0
	}
	return current.LiveDistanceToNext
}

// RemainingDistanceToDestination returns the meters left on the route.
func (r *Route) RemainingDistanceToDestination() int {
	if len(r.instructions) == 0 {
		return 0
	}
	return r.instructions[len(r.instructions)-1].LiveDistanceToNext
}

// TotalDistanceTravelled returns the meters covered along the route.
func (r *Route) TotalDistanceTravelled() float64 { return r.travelled }

// IsLost reports whether the last fix could not be matched to the route.
func (r *Route) IsLost() bool { return r.lost }

// CurrentRotationBearing is the map rotation that puts the current leg up.
func (r *Route) CurrentRotationBearing() float64 {
	if len(r.nodes) == 0 {
		return 0
	}
	return 360 - r.nodes[r.currentLeg].Bearing
}

// AddSeenInstruction records that the instruction at index was shown.
func (r *Route) AddSeenInstruction(index int) {
	if index >= 0 && index < len(r.instructions) {
		r.seen[index] = struct{}{}
	}
}

// HasSeenInstruction reports whether the instruction at index was shown.
func (r *Route) HasSeenInstruction(index int) bool {
	_, ok := r.seen[index]
	return ok
}

// SeenInstructions returns the shown instruction indices in ascending order.
func (r *Route) SeenInstructions() []int {
	out := make([]int, 0, len(r.seen))
	for i := range r.seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Rewind moves the traveler back to the start of the route.
func (r *Route) Rewind() {
	r.currentLeg = 0
	r.currentInstruction = 0
	r.travelled = 0
	r.lost = false
	r.beginningThreshold = Unset
	for _, in := range r.instructions {
		in.LiveDistanceToNext = Unset
	}
	r.Instructions()
}

func (r *Route) String() string {
	return fmt.Sprintf("Route{status=%d nodes=%d instructions=%d distance=%dm leg=%d travelled=%.0fm lost=%t}",
		r.status, len(r.nodes), len(r.instructions), r.totalDistance, r.currentLeg, r.travelled, r.lost)
}
