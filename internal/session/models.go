// Package session keeps live navigation sessions: one route and one engine
// per session, fed with position fixes by the API and the fix stream worker.
package session

import (
	"errors"
	"time"

	"github.com/breatheroute/navcore/internal/route"
	"github.com/breatheroute/navcore/internal/routing"
	"github.com/breatheroute/navcore/pkg/geodesic"
)

// Session errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrStaleFix        = errors.New("fix is older than the last accepted fix")
	ErrInvalidFix      = errors.New("fix coordinates are out of range")
	ErrTooManySessions = errors.New("too many active sessions")
	ErrNoFixes         = errors.New("no fixes given")

	ErrUnknownInstruction = errors.New("instruction index out of range")
)

// RouteError reports a failed route fetch with the status code the routing
// service assigned to it.
type RouteError struct {
	StatusCode int
}

func (e *RouteError) Error() string {
	switch e.StatusCode {
	case routing.StatusNoRoute:
		return "no route found between the given locations"
	case routing.StatusInvalidRequest:
		return "routing request rejected"
	case routing.StatusRateLimited:
		return "routing provider rate limit exceeded"
	case routing.StatusUnavailable:
		return "routing provider unavailable"
	case routing.StatusCancelled:
		return "routing request cancelled"
	}
	return "routing failed"
}

// Fix is one position report from a device.
type Fix struct {
	Lat       float64
	Lon       float64
	Bearing   *float64
	Timestamp time.Time
}

// Location converts the fix for the engine.
func (f Fix) Location() geodesic.Location {
	loc := geodesic.NewLocation(f.Lat, f.Lon)
	if f.Bearing != nil {
		loc = loc.WithBearing(*f.Bearing)
	}
	return loc
}

// Valid reports whether the fix has usable coordinates.
func (f Fix) Valid() bool {
	return f.Location().Valid()
}

// Session is the stored record of a navigation session. The record is
// copied in and out of repositories; the live route and engine sit behind
// the shared navigator pointer.
type Session struct {
	ID         string
	Owner      string
	Request    routing.Request
	CreatedAt  time.Time
	LastActive time.Time

	nav *navigator
}

// EventType names a navigation event.
type EventType string

const (
	EventRouteStart          EventType = "route_start"
	EventRecalculate         EventType = "recalculate"
	EventSnap                EventType = "snap"
	EventMilestone           EventType = "milestone"
	EventApproach            EventType = "approach_instruction"
	EventInstructionComplete EventType = "instruction_complete"
	EventDistance            EventType = "distance_update"
	EventRouteComplete       EventType = "route_complete"
	EventRerouted            EventType = "rerouted"
	EventRerouteFailed       EventType = "reroute_failed"
)

// Point is a plain coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func pointOf(l geodesic.Location) *Point {
	return &Point{Lat: l.Lat, Lon: l.Lon}
}

// Event is one recorded engine or session event. Only the fields relevant to
// the type are set.
type Event struct {
	Type          EventType `json:"type"`
	Instruction   *int      `json:"instruction,omitempty"`
	Milestone     string    `json:"milestone,omitempty"`
	ToNext        *int      `json:"to_next_instruction,omitempty"`
	ToDestination *int      `json:"to_destination,omitempty"`
	Fix           *Point    `json:"fix,omitempty"`
	Snapped       *Point    `json:"snapped,omitempty"`
	StatusCode    int       `json:"status_code,omitempty"`
}

// InstructionView is an instruction with its distances formatted for display.
type InstructionView struct {
	Index            int      `json:"index"`
	Turn             string   `json:"turn"`
	Text             string   `json:"text"`
	StreetNames      []string `json:"street_names"`
	Distance         int      `json:"distance_m"`
	DistanceText     string   `json:"distance_text"`
	LiveDistance     int      `json:"live_distance_m"`
	LiveDistanceText string   `json:"live_distance_text"`
	Bearing          int      `json:"bearing"`
	Location         Point    `json:"location"`
	Seen             bool     `json:"seen"`
}

// Status is a snapshot of a session's navigation progress.
type Status struct {
	SessionID             string           `json:"session_id"`
	State                 string           `json:"state"`
	Units                 route.Units      `json:"units"`
	CurrentLeg            int              `json:"current_leg"`
	CurrentInstruction    *InstructionView `json:"current_instruction,omitempty"`
	NextInstruction       *InstructionView `json:"next_instruction,omitempty"`
	DistanceToNext        int              `json:"distance_to_next_m"`
	DistanceToNextText    string           `json:"distance_to_next_text"`
	RemainingDistance     int              `json:"remaining_distance_m"`
	RemainingDistanceText string           `json:"remaining_distance_text"`
	TotalDistance         int              `json:"total_distance_m"`
	Travelled             float64          `json:"travelled_m"`
	Lost                  bool             `json:"lost"`
	RotationBearing       float64          `json:"rotation_bearing"`
	Rerouting             bool             `json:"rerouting"`
	Reroutes              int              `json:"reroutes"`
	CreatedAt             time.Time        `json:"created_at"`
	LastActive            time.Time        `json:"last_active"`
}

// FixResult is the outcome of pushing fixes into a session.
type FixResult struct {
	Events []Event `json:"events"`
	Status Status  `json:"status"`
}

// Track is what a session exposes for export: the route geometry, its
// instructions and the snapped positions so far.
type Track struct {
	Name         string
	Shape        []geodesic.Location
	Instructions []route.Instruction
	Trail        []geodesic.Location
}
