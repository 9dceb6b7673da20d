// Package engine drives a route through its navigation states as location
// fixes arrive, reporting progress to a Listener.
//
// An Engine is not safe for concurrent use. Fixes for one engine must be
// delivered serially; the session layer does this with a per-session lock.
package engine

import (
	"errors"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/breatheroute/navcore/internal/route"
	"github.com/breatheroute/navcore/pkg/geodesic"
)

// ErrInvalidState is returned when an operation's preconditions are not met,
// such as setting a route before a listener.
var ErrInvalidState = errors.New("engine: invalid state")

// State is the navigation state of an engine.
type State int

const (
	StateIdle State = iota
	StatePreInstruction
	StateInstruction
	StateLost
	StateComplete
)

func (s State) String() string {
	switch s {
	case StatePreInstruction:
		return "PRE_INSTRUCTION"
	case StateInstruction:
		return "INSTRUCTION"
	case StateLost:
		return "LOST"
	case StateComplete:
		return "COMPLETE"
	default:
		return "IDLE"
	}
}

// Milestone names an advance notice before a maneuver.
type Milestone int

const (
	MilestoneTwoMile Milestone = iota
	MilestoneOneMile
	MilestoneQuarterMile
)

func (m Milestone) String() string {
	switch m {
	case MilestoneTwoMile:
		return "TWO_MILE"
	case MilestoneOneMile:
		return "ONE_MILE"
	case MilestoneQuarterMile:
		return "QUARTER_MILE"
	default:
		return "UNKNOWN"
	}
}

// Mile is the length of a mile as used for milestone distances.
const Mile = 1609.0

// MilestoneDistance pairs a milestone with its distance before the maneuver.
type MilestoneDistance struct {
	Milestone Milestone
	Meters    float64
}

// Config holds engine radii and milestones.
type Config struct {
	// ApproachRadius is the tolerance around each milestone distance.
	ApproachRadius float64
	// AlertRadius is the distance to the next maneuver at which it is announced.
	AlertRadius float64
	// DestinationRadius is how close the snapped location must be to the
	// final instruction to complete the route.
	DestinationRadius float64
	Milestones        []MilestoneDistance
	Logger            zerolog.Logger
}

// DefaultConfig returns the standard radii and the two mile, one mile and
// quarter mile milestones.
func DefaultConfig() Config {
	return Config{
		ApproachRadius:    50,
		AlertRadius:       100,
		DestinationRadius: 30,
		Milestones: []MilestoneDistance{
			{Milestone: MilestoneTwoMile, Meters: Mile * 2},
			{Milestone: MilestoneOneMile, Meters: Mile},
			{Milestone: MilestoneQuarterMile, Meters: Mile / 4},
		},
		Logger: zerolog.Nop(),
	}
}

// Listener receives navigation events. Calls happen synchronously on the
// goroutine delivering the fix.
type Listener interface {
	OnRouteStart()
	OnRecalculate(fix geodesic.Location)
	OnSnapLocation(original, snapped geodesic.Location)
	OnMilestoneReached(instruction int, milestone Milestone)
	OnApproachInstruction(instruction int)
	OnInstructionComplete(instruction int)
	OnUpdateDistance(toNextInstruction, toDestination int)
	OnRouteComplete()
}

// NopListener ignores every event. Embed it to implement a subset of Listener.
type NopListener struct{}

func (NopListener) OnRouteStart() {}
func (NopListener) OnRecalculate(geodesic.Location) {}
func (NopListener) OnSnapLocation(_, _ geodesic.Location) {}
func (NopListener) OnMilestoneReached(int, Milestone) {}
func (NopListener) OnApproachInstruction(int) {}
func (NopListener) OnInstructionComplete(int) {}
func (NopListener) OnUpdateDistance(int, int) {}
func (NopListener) OnRouteComplete() {}

// Navigator is the route behavior the engine depends on. *route.Route
// implements it.
type Navigator interface {
	SnapToRoute(fix geodesic.Location) (geodesic.Location, bool)
	IsLost() bool
	Instructions() []*route.Instruction
	NextInstructionIndex() (int, bool)
	DistanceToNextInstruction() int
	RemainingDistanceToDestination() int
}

var _ Navigator = (*route.Route)(nil)

// Engine is the navigation state machine.
type Engine struct {
	cfg      Config
	log      zerolog.Logger
	listener Listener
	route    Navigator
	state    State
	resume   State
	tracked  int
	fired    map[Milestone]struct{}
}

// New creates an engine. Zero radii in cfg take their default values and a
// nil milestone list means the defaults; pass an empty non-nil slice to
// disable milestones.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.ApproachRadius <= 0 {
		cfg.ApproachRadius = def.ApproachRadius
	}
	if cfg.AlertRadius <= 0 {
		cfg.AlertRadius = def.AlertRadius
	}
	if cfg.DestinationRadius <= 0 {
		cfg.DestinationRadius = def.DestinationRadius
	}
	if cfg.Milestones == nil {
		cfg.Milestones = def.Milestones
	}
	milestones := append([]MilestoneDistance(nil), cfg.Milestones...)
	sort.SliceStable(milestones, func(i, j int) bool {
		return milestones[i].Meters > milestones[j].Meters
	})
	cfg.Milestones = milestones

	return &Engine{
		cfg:   cfg,
		log:   cfg.Logger.With().Str("component", "engine").Logger(),
		fired: make(map[Milestone]struct{}),
	}
}

// SetListener sets the event receiver. It must be called before SetRoute.
func (e *Engine) SetListener(l Listener) {
	e.listener = l
}

// SetRoute starts navigating r from its first instruction and fires
// OnRouteStart. It fails with ErrInvalidState when no listener is set.
func (e *Engine) SetRoute(r Navigator) error {
	if e.listener == nil {
		return ErrInvalidState
	}
	if r == nil {
		return errors.New("engine: nil route")
	}
	r.Instructions()
	e.route = r
	e.tracked = 0
	e.resetMilestones()
	e.listener.OnRouteStart()
	e.transition(StatePreInstruction)
	return nil
}

// State returns the current navigation state.
func (e *Engine) State() State { return e.state }

// Route returns the route being navigated, or nil before SetRoute.
func (e *Engine) Route() Navigator { return e.route }

// OnLocationChanged processes one fix. It fails with ErrInvalidState when no
// route has been set.
func (e *Engine) OnLocationChanged(fix geodesic.Location) error {
	if e.route == nil || e.listener == nil {
		return ErrInvalidState
	}
	if e.state == StateComplete {
		e.listener.OnUpdateDistance(0, 0)
		return nil
	}

	snapped, ok := e.route.SnapToRoute(fix)
	if !ok {
		if e.state != StateLost {
			e.resume = e.state
		}
		e.transition(StateLost)
		e.listener.OnRecalculate(fix)
		return nil
	}
	e.listener.OnSnapLocation(fix, snapped)
	if e.state == StateLost {
		// An instruction announced before getting lost stays announced. A
		// changed next instruction still drops back to PRE_INSTRUCTION below.
		e.transition(e.resume)
	}

	if e.arrived(snapped) {
		e.transition(StateComplete)
		e.listener.OnRouteComplete()
		e.listener.OnUpdateDistance(0, 0)
		return nil
	}

	toNext := e.route.DistanceToNextInstruction()
	e.listener.OnUpdateDistance(toNext, e.route.RemainingDistanceToDestination())

	next, hasNext := e.route.NextInstructionIndex()
	if e.state == StatePreInstruction && hasNext {
		e.checkMilestones(next, toNext)
		if float64(toNext) < e.cfg.AlertRadius {
			e.listener.OnApproachInstruction(next)
			e.transition(StateInstruction)
			e.resetMilestones()
		}
	}

	if !hasNext {
		next = route.Unset
	}
	if e.tracked != next {
		e.listener.OnInstructionComplete(e.tracked)
		e.transition(StatePreInstruction)
		e.resetMilestones()
	}
	e.tracked = next
	return nil
}

// checkMilestones fires the largest unfired milestone within the approach
// radius of toNext, at most one per fix.
func (e *Engine) checkMilestones(next, toNext int) {
	for _, m := range e.cfg.Milestones {
		if _, done := e.fired[m.Milestone]; done {
			continue
		}
		if math.Abs(float64(toNext)-m.Meters) < e.cfg.ApproachRadius {
			e.fired[m.Milestone] = struct{}{}
			e.listener.OnMilestoneReached(next, m.Milestone)
			return
		}
	}
}

func (e *Engine) arrived(snapped geodesic.Location) bool {
	instructions := e.route.Instructions()
	if len(instructions) == 0 {
		return false
	}
	last := instructions[len(instructions)-1]
	return snapped.DistanceTo(last.Location) < e.cfg.DestinationRadius
}

func (e *Engine) resetMilestones() {
	clear(e.fired)
}

func (e *Engine) transition(to State) {
	if e.state == to {
		return
	}
	e.log.Debug().Stringer("from", e.state).Stringer("to", to).Msg("state transition")
	e.state = to
}
