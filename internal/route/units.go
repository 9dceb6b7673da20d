package route

// Units is the distance unit system declared by a route document.
type Units string

const (
	Kilometers Units = "kilometers"
	Miles      Units = "miles"
)

// Meters per unit.
const (
	MetersPerKilometer = 1000.0
	MetersPerMile      = 1609.344
)

// ParseUnits maps a declared unit name to Units. Anything unrecognized is kilometers.
func ParseUnits(s string) Units {
	if Units(s) == Miles {
		return Miles
	}
	return Kilometers
}

// MetersPerUnit returns the conversion factor from the unit to meters.
func (u Units) MetersPerUnit() float64 {
	if u == Miles {
		return MetersPerMile
	}
	return MetersPerKilometer
}

// Imperial reports whether distances in these units are presented in feet and miles.
func (u Units) Imperial() bool {
	return u == Miles
}
