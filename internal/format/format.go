// Package format renders distances for display.
package format

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Conversion factors.
const (
	MetersPerMile = 1609.0
	MetersPerFoot = 0.3048
	FeetPerMile   = 5280.0
)

// System is a distance unit system.
type System int

const (
	Metric System = iota
	Imperial
)

func (s System) String() string {
	if s == Imperial {
		return "imperial"
	}
	return "metric"
}

// ParseSystem maps "imperial" or "miles" to Imperial and anything else to Metric.
func ParseSystem(s string) System {
	switch s {
	case "imperial", "miles", "mi":
		return Imperial
	}
	return Metric
}

var (
	regionUS = language.MustParseRegion("US")
	regionGB = language.MustParseRegion("GB")
)

// Formatter formats distances in one unit system using the number
// conventions of one locale. The zero value formats metric distances with
// English separators.
type Formatter struct {
	Tag    language.Tag
	System System
}

// ForLocale returns a formatter for tag, using miles for English in the
// United States and the United Kingdom and kilometers elsewhere.
func ForLocale(tag language.Tag) Formatter {
	return Formatter{Tag: tag, System: systemFor(tag)}
}

// ForAcceptLanguage picks the best tag from an Accept-Language header value.
// An empty or unparsable header yields American English.
func ForAcceptLanguage(header string) Formatter {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ForLocale(language.AmericanEnglish)
	}
	return ForLocale(tags[0])
}

// WithSystem returns a copy of f that formats in s.
func (f Formatter) WithSystem(s System) Formatter {
	f.System = s
	return f
}

func systemFor(tag language.Tag) System {
	base, _ := tag.Base()
	region, conf := tag.Region()
	if base.String() != "en" || conf != language.Exact {
		return Metric
	}
	if region == regionUS || region == regionGB {
		return Imperial
	}
	return Metric
}

// Format renders meters for display. In realTime mode distances too short
// to act on read "now". Zero renders as the empty string.
func (f Formatter) Format(meters int, realTime bool) string {
	if meters == 0 {
		return ""
	}
	if f.System == Imperial {
		return f.imperial(meters, realTime)
	}
	return f.metric(meters, realTime)
}

func (f Formatter) metric(meters int, realTime bool) string {
	switch {
	case meters >= 100:
		return f.decimal(float64(meters)/1000) + " km"
	case meters > 10:
		return fmt.Sprintf("%d m", meters)
	case realTime:
		return "now"
	default:
		return fmt.Sprintf("%d m", meters)
	}
}

func (f Formatter) imperial(meters int, realTime bool) string {
	feet := float64(meters) / MetersPerFoot
	switch {
	case feet < 10:
		if realTime {
			return "now"
		}
		return fmt.Sprintf("%d ft", int(math.Floor(feet)))
	case feet < FeetPerMile/10:
		return fmt.Sprintf("%d ft", int(math.Floor(feet/10))*10)
	default:
		return f.decimal(float64(meters)/MetersPerMile) + " mi"
	}
}

// decimal prints v with at most one fraction digit and no grouping.
func (f Formatter) decimal(v float64) string {
	tag := f.Tag
	if tag == language.Und {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	return p.Sprintf("%v", number.Decimal(v, number.MaxFractionDigits(1), number.NoSeparator()))
}

// Format is shorthand for ForLocale(tag).Format(meters, realTime).
func Format(meters int, realTime bool, tag language.Tag) string {
	return ForLocale(tag).Format(meters, realTime)
}
