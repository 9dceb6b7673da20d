package route

import (
	"fmt"
	"math"
	"strings"

	"github.com/breatheroute/navcore/pkg/geodesic"
)

// ArrivalName is the name given to every destination maneuver.
const ArrivalName = "You have arrived at your destination."

// Unset marks a live distance that has not been populated yet.
const Unset = -1

// Instruction is one maneuver of a route.
//
// Distance is the distance in meters to travel after this maneuver before the
// next one. LiveDistanceToNext is the remaining distance from current
// progress to the end of this instruction's stretch; it starts Unset and is
// recomputed by every successful snap.
type Instruction struct {
	Index              int
	Turn               TurnType
	RawType            int
	Text               string
	StreetNames        []string
	Distance           int
	Time               int
	BeginShapeIndex    int
	EndShapeIndex      int
	Bearing            int
	Location           geodesic.Location
	LiveDistanceToNext int

	VerbalPreTransition   string
	VerbalTransitionAlert string
	VerbalPostTransition  string

	cumulative int
}

func newInstruction(index int, m Maneuver, units Units, nodeCount int) (*Instruction, error) {
	if len(m) < minManeuverFields {
		return nil, &DataError{Maneuver: index, Reason: fmt.Sprintf("too few fields: %d", len(m))}
	}

	code, ok := m.integer(KeyType)
	if !ok {
		return nil, &DataError{Maneuver: index, Field: KeyType, Reason: "missing or not an integer"}
	}
	length, ok := m.number(KeyLength)
	if !ok || length < 0 {
		return nil, &DataError{Maneuver: index, Field: KeyLength, Reason: "missing or negative"}
	}
	begin, ok := m.integer(KeyBeginShapeIndex)
	if !ok {
		return nil, &DataError{Maneuver: index, Field: KeyBeginShapeIndex, Reason: "missing or not an integer"}
	}
	if begin < 0 || begin >= nodeCount {
		return nil, &DataError{
			Maneuver: index,
			Field:    KeyBeginShapeIndex,
			Reason:   fmt.Sprintf("index %d outside shape of %d nodes", begin, nodeCount),
		}
	}
	end := begin
	if m.has(KeyEndShapeIndex) {
		if end, ok = m.integer(KeyEndShapeIndex); !ok || end < begin || end >= nodeCount {
			return nil, &DataError{Maneuver: index, Field: KeyEndShapeIndex, Reason: "invalid shape index"}
		}
	}
	seconds, _ := m.number(KeyTime)

	return &Instruction{
		Index:                 index,
		Turn:                  ParseTurnType(code),
		RawType:               code,
		Text:                  m.text(KeyInstruction),
		StreetNames:           m.strings(KeyStreetNames),
		Distance:              int(math.Round(length * units.MetersPerUnit())),
		Time:                  int(math.Round(seconds)),
		BeginShapeIndex:       begin,
		EndShapeIndex:         end,
		LiveDistanceToNext:    Unset,
		VerbalPreTransition:   m.text(KeyVerbalPreTransition),
		VerbalTransitionAlert: m.text(KeyVerbalTransitionAlert),
		VerbalPostTransition:  m.text(KeyVerbalPostTransition),
	}, nil
}

// Name is the street the maneuver leads onto, or the arrival phrase.
func (i *Instruction) Name() string {
	if i.Turn.IsDestination() {
		return ArrivalName
	}
	if len(i.StreetNames) > 0 {
		return strings.Join(i.StreetNames, "/")
	}
	return i.Text
}

// Phrase returns the turn phrase for the maneuver type.
func (i *Instruction) Phrase() string {
	return i.Turn.Phrase()
}

// Skip reports whether the instruction has nothing to announce.
func (i *Instruction) Skip() bool {
	return len(i.StreetNames) == 0 && !i.Turn.IsDestination()
}

// DirectionAngle floors the bearing to the start of its 45 degree sector.
func (i *Instruction) DirectionAngle() float64 {
	b := int(geodesic.NormalizeBearing(float64(i.Bearing)))
	return float64(b / 45 * 45)
}

var compass = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Direction returns the compass sector of the bearing.
func (i *Instruction) Direction() string {
	return compass[int(i.DirectionAngle())/45]
}

// RotationBearing is the map rotation that puts the maneuver bearing up.
func (i *Instruction) RotationBearing() int {
	return 360 - i.Bearing
}

func (i *Instruction) String() string {
	return fmt.Sprintf("Instruction: (%.5f, %.5f) %s %s LiveDistanceTo: %d",
		i.Location.Lat, i.Location.Lon, i.Turn, i.Name(), i.LiveDistanceToNext)
}
