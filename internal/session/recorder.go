package session

import (
	"github.com/breatheroute/navcore/internal/engine"
	"github.com/breatheroute/navcore/pkg/geodesic"
)

// maxTrail bounds the snapped positions kept per session.
const maxTrail = 2000

// recorder is the engine listener of a session. It buffers events until the
// next drain and keeps the snapped trail. Callers hold the navigator lock.
type recorder struct {
	events      []Event
	trail       []geodesic.Location
	recalculate *geodesic.Location
	completed   bool
}

var _ engine.Listener = (*recorder)(nil)

func intPtr(v int) *int { return &v }

func (r *recorder) add(e Event) {
	r.events = append(r.events, e)
}

func (r *recorder) OnRouteStart() {
	r.add(Event{Type: EventRouteStart})
}

func (r *recorder) OnRecalculate(fix geodesic.Location) {
	r.recalculate = &fix
	r.add(Event{Type: EventRecalculate, Fix: pointOf(fix)})
}

func (r *recorder) OnSnapLocation(original, snapped geodesic.Location) {
	if len(r.trail) >= maxTrail {
		r.trail = append(r.trail[:0], r.trail[len(r.trail)-maxTrail/2:]...)
	}
	r.trail = append(r.trail, snapped)
	r.add(Event{Type: EventSnap, Fix: pointOf(original), Snapped: pointOf(snapped)})
}

func (r *recorder) OnMilestoneReached(instruction int, milestone engine.Milestone) {
	r.add(Event{Type: EventMilestone, Instruction: intPtr(instruction), Milestone: milestone.String()})
}

func (r *recorder) OnApproachInstruction(instruction int) {
	r.add(Event{Type: EventApproach, Instruction: intPtr(instruction)})
}

func (r *recorder) OnInstructionComplete(instruction int) {
	r.add(Event{Type: EventInstructionComplete, Instruction: intPtr(instruction)})
}

func (r *recorder) OnUpdateDistance(toNext, toDestination int) {
	r.add(Event{Type: EventDistance, ToNext: intPtr(toNext), ToDestination: intPtr(toDestination)})
}

func (r *recorder) OnRouteComplete() {
	r.completed = true
	r.add(Event{Type: EventRouteComplete})
}

// drain returns the buffered events and clears the buffer.
func (r *recorder) drain() []Event {
	events := r.events
	r.events = nil
	if events == nil {
		events = []Event{}
	}
	return events
}

// takeRecalculate returns the fix of the last recalculate event since the
// previous call, if any.
func (r *recorder) takeRecalculate() (geodesic.Location, bool) {
	if r.recalculate == nil {
		return geodesic.Location{}, false
	}
	fix := *r.recalculate
	r.recalculate = nil
	return fix, true
}
