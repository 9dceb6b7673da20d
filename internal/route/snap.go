package route

import (
	"math"

	"github.com/breatheroute/navcore/pkg/geodesic"
)

// Snapping thresholds, in meters unless noted.
const (
	// DestinationRadius is how close a fix must be to the last node to arrive.
	DestinationRadius = 30.0
	// NextLegThreshold advances to the next leg once the projection is this
	// close to the end of the current one.
	NextLegThreshold = 5.0
	// LostThreshold is the largest fix-to-route distance still considered on route.
	LostThreshold = 50.0
	// CorrectionThreshold bounds how far a projection may move the fix before
	// the reverse bearing is tried.
	CorrectionThreshold = 1000.0
	// ExactMatchDegrees is the per-axis tolerance for a fix sitting on a node.
	ExactMatchDegrees = 0.00001
	// onPathMeters is the cross-track distance under which a fix is taken as
	// lying on the leg itself.
	onPathMeters = 0.5
	// bearingVeto is the largest deviation, in degrees, a projection may have
	// from the leg bearing.
	bearingVeto = 10.0
)

// SnapToRoute matches a fix to the route, advancing the leg and instruction
// cursors and refreshing every live distance. It returns the corrected
// location and true when the fix is on route. A fix close to the start of the
// route before any progress is returned unchanged. Otherwise the route is
// marked lost and false is returned.
func (r *Route) SnapToRoute(fix geodesic.Location) (geodesic.Location, bool) {
	if len(r.nodes) == 0 {
		r.lost = true
		return geodesic.Location{}, false
	}
	r.Instructions()

	last := len(r.nodes) - 1
	if fix.DistanceTo(r.nodes[last].Location()) < DestinationRadius {
		r.currentLeg = last
		r.currentInstruction = len(r.instructions) - 1
		r.travelled = float64(r.totalDistance)
		r.lost = false
		r.updateAllInstructions()
		return r.nodes[last].Location(), true
	}

	var corrected geodesic.Location
	for {
		if r.currentLeg >= last {
			r.lost = true
			return geodesic.Location{}, false
		}
		node := r.nodes[r.currentLeg]
		if isExactMatch(node.Location(), fix) {
			corrected = node.Location()
		} else {
			corrected = r.project(r.currentLeg, fix)
		}
		if node.Location().DistanceTo(corrected) > node.LegDistance-NextLegThreshold {
			r.currentLeg++
			r.advanceInstruction()
			continue
		}
		break
	}

	node := r.nodes[r.currentLeg]
	if r.beginningThreshold < 0 {
		r.beginningThreshold = math.Trunc(fix.DistanceTo(r.nodes[0].Location())) + LostThreshold
	}

	offRoute := fix.DistanceTo(corrected)
	switch {
	case offRoute < LostThreshold:
		along := node.TotalDistance + node.Location().DistanceTo(corrected)
		r.travelled = math.Max(r.travelled, math.Ceil(along))
		r.updateAllInstructions()
		r.lost = false
		return corrected, true
	case r.travelled == 0 && r.currentLeg == 0 && offRoute < r.beginningThreshold:
		return fix, true
	default:
		r.lost = true
		return geodesic.Location{}, false
	}
}

// project drops the fix perpendicular onto the great circle through the node
// at the node's bearing. The node itself is returned when no usable
// projection exists or the projection points away from the leg.
func (r *Route) project(leg int, fix geodesic.Location) geodesic.Location {
	node := r.nodes[leg]
	origin := geodesic.NewLocation(node.Lat, node.Lon)
	bearing := node.Bearing

	var (
		corrected geodesic.Location
		ok        bool
	)
	if math.Abs(geodesic.CrossTrack(origin, bearing, fix)) < onPathMeters {
		corrected, ok = fix, true
	} else {
		corrected, ok = perpendicularFoot(origin, bearing, fix)
	}
	if ok && math.Round(corrected.DistanceTo(fix)) > CorrectionThreshold {
		corrected, ok = perpendicularFoot(origin, bearing-180, fix)
	}
	if !ok {
		return node.Location()
	}

	deviation := math.Abs(bearing - origin.BearingTo(corrected))
	if deviation > bearingVeto && deviation < 360-bearingVeto {
		return node.Location()
	}
	return geodesic.NewLocation(corrected.Lat, corrected.Lon).WithBearing(bearing)
}

func perpendicularFoot(origin geodesic.Location, bearing float64, fix geodesic.Location) (geodesic.Location, bool) {
	if p, ok := geodesic.Intersection(origin, bearing, fix, bearing+90); ok {
		return p, true
	}
	return geodesic.Intersection(origin, bearing, fix, bearing-90)
}

func isExactMatch(a, b geodesic.Location) bool {
	return math.Abs(a.Lat-b.Lat) <= ExactMatchDegrees && math.Abs(a.Lon-b.Lon) <= ExactMatchDegrees
}

// advanceInstruction moves to the next instruction once the current leg has
// reached the shape index where it begins.
func (r *Route) advanceInstruction() {
	next := r.NextInstruction()
	if next != nil && r.currentLeg >= next.BeginShapeIndex {
		r.currentInstruction++
	}
}

// updateAllInstructions sets each instruction's live distance to its
// cumulative distance minus the distance travelled, floored at zero.
func (r *Route) updateAllInstructions() {
	travelled := int(math.Ceil(r.travelled))
	for _, in := range r.instructions {
		in.LiveDistanceToNext = max(in.cumulative-travelled, 0)
	}
}
