package route

import "strconv"

// TurnType is a maneuver type code as emitted by the routing service.
type TurnType int

// Valhalla maneuver types.
const (
	TurnNone TurnType = iota
	TurnStart
	TurnStartRight
	TurnStartLeft
	TurnDestination
	TurnDestinationRight
	TurnDestinationLeft
	TurnBecomes
	TurnContinue
	TurnSlightRight
	TurnRight
	TurnSharpRight
	TurnUTurnRight
	TurnUTurnLeft
	TurnSharpLeft
	TurnLeft
	TurnSlightLeft
	TurnRampStraight
	TurnRampRight
	TurnRampLeft
	TurnExitRight
	TurnExitLeft
	TurnStayStraight
	TurnStayRight
	TurnStayLeft
	TurnMerge
	TurnRoundaboutEnter
	TurnRoundaboutExit
	TurnFerryEnter
	TurnFerryExit
)

// TurnUnknown stands in for any code outside the table.
const TurnUnknown TurnType = -1

type turnInfo struct {
	name   string
	phrase string
}

var turnTable = map[TurnType]turnInfo{
	TurnNone:             {"NONE", "Continue"},
	TurnStart:            {"START", "Head"},
	TurnStartRight:       {"START_RIGHT", "Head right"},
	TurnStartLeft:        {"START_LEFT", "Head left"},
	TurnDestination:      {"DESTINATION", "Arrive at your destination"},
	TurnDestinationRight: {"DESTINATION_RIGHT", "Your destination is on the right"},
	TurnDestinationLeft:  {"DESTINATION_LEFT", "Your destination is on the left"},
	TurnBecomes:          {"BECOMES", "Continue as"},
	TurnContinue:         {"CONTINUE", "Continue"},
	TurnSlightRight:      {"SLIGHT_RIGHT", "Bear right"},
	TurnRight:            {"RIGHT", "Turn right"},
	TurnSharpRight:       {"SHARP_RIGHT", "Make a sharp right"},
	TurnUTurnRight:       {"U_TURN_RIGHT", "Make a right U-turn"},
	TurnUTurnLeft:        {"U_TURN_LEFT", "Make a left U-turn"},
	TurnSharpLeft:        {"SHARP_LEFT", "Make a sharp left"},
	TurnLeft:             {"LEFT", "Turn left"},
	TurnSlightLeft:       {"SLIGHT_LEFT", "Bear left"},
	TurnRampStraight:     {"RAMP_STRAIGHT", "Stay straight to take the ramp"},
	TurnRampRight:        {"RAMP_RIGHT", "Take the ramp on the right"},
	TurnRampLeft:         {"RAMP_LEFT", "Take the ramp on the left"},
	TurnExitRight:        {"EXIT_RIGHT", "Take the exit on the right"},
	TurnExitLeft:         {"EXIT_LEFT", "Take the exit on the left"},
	TurnStayStraight:     {"STAY_STRAIGHT", "Keep straight"},
	TurnStayRight:        {"STAY_RIGHT", "Keep right"},
	TurnStayLeft:         {"STAY_LEFT", "Keep left"},
	TurnMerge:            {"MERGE", "Merge"},
	TurnRoundaboutEnter:  {"ROUNDABOUT_ENTER", "Enter the roundabout"},
	TurnRoundaboutExit:   {"ROUNDABOUT_EXIT", "Exit the roundabout"},
	TurnFerryEnter:       {"FERRY_ENTER", "Take the ferry"},
	TurnFerryExit:        {"FERRY_EXIT", "Leave the ferry"},
	TurnUnknown:          {"UNKNOWN", "Continue"},
}

// ParseTurnType maps a raw code to a TurnType. Codes outside the table
// become TurnUnknown rather than failing.
func ParseTurnType(code int) TurnType {
	t := TurnType(code)
	if _, ok := turnTable[t]; !ok || t == TurnUnknown {
		return TurnUnknown
	}
	return t
}

// Known reports whether t is one of the documented codes.
func (t TurnType) Known() bool {
	_, ok := turnTable[t]
	return ok && t != TurnUnknown
}

func (t TurnType) String() string {
	if info, ok := turnTable[t]; ok {
		return info.name
	}
	return "TurnType(" + strconv.Itoa(int(t)) + ")"
}

// Phrase returns the human phrase for the maneuver.
func (t TurnType) Phrase() string {
	if info, ok := turnTable[t]; ok {
		return info.phrase
	}
	return turnTable[TurnUnknown].phrase
}

// IsDestination reports whether the maneuver is an arrival.
func (t TurnType) IsDestination() bool {
	return t == TurnDestination || t == TurnDestinationRight || t == TurnDestinationLeft
}
