// Package export renders routes and driven trails as KML for map viewers.
package export

import (
	"fmt"
	"image/color"
	"io"

	"github.com/twpayne/go-kml"

	"github.com/breatheroute/navcore/internal/route"
	"github.com/breatheroute/navcore/pkg/geodesic"
)

// ContentType is the media type of KML documents.
const ContentType = "application/vnd.google-earth.kml+xml"

const maneuverIcon = "http://maps.google.com/mapfiles/kml/shapes/arrow.png"
const destinationIcon = "http://maps.google.com/mapfiles/kml/paddle/red-circle.png"

// Route is the data rendered into a KML document.
type Route struct {
	Name         string
	Shape        []geodesic.Location
	Instructions []route.Instruction
	Trail        []geodesic.Location
}

var (
	routeStyle = kml.SharedStyle("route",
		kml.LineStyle(
			kml.Color(color.RGBA{R: 0x1a, G: 0x73, B: 0xe8, A: 0xff}),
			kml.Width(5),
		),
	)
	trailStyle = kml.SharedStyle("trail",
		kml.LineStyle(
			kml.Color(color.RGBA{R: 0xf2, G: 0x99, B: 0x00, A: 0xcc}),
			kml.Width(3),
		),
	)
	maneuverStyle = kml.SharedStyle("maneuver",
		kml.IconStyle(
			kml.Scale(0.8),
			kml.Icon(kml.Href(maneuverIcon)),
		),
	)
	destinationStyle = kml.SharedStyle("destination",
		kml.IconStyle(
			kml.Icon(kml.Href(destinationIcon)),
		),
	)
)

// KML builds the document for r: the route line, one placemark per
// maneuver and the driven trail when it has at least two points.
func KML(r Route) *kml.CompoundElement {
	doc := kml.Document(
		kml.Name(r.Name),
		kml.Open(true),
		routeStyle,
		trailStyle,
		maneuverStyle,
		destinationStyle,
		kml.Folder(
			kml.Name("Route"),
			kml.Placemark(
				kml.Name(r.Name),
				kml.StyleURL(routeStyle.URL()),
				lineString(r.Shape),
			),
		),
		maneuvers(r.Instructions),
	)

	if len(r.Trail) >= 2 {
		doc.Add(kml.Folder(
			kml.Name("Trail"),
			kml.Placemark(
				kml.Name("Snapped positions"),
				kml.StyleURL(trailStyle.URL()),
				lineString(r.Trail),
			),
		))
	}

	return kml.KML(doc)
}

// Write renders r as an indented KML document.
func Write(w io.Writer, r Route) error {
	return KML(r).WriteIndent(w, "", "  ")
}

func maneuvers(instructions []route.Instruction) *kml.CompoundElement {
	folder := kml.Folder(kml.Name("Maneuvers"))
	for _, in := range instructions {
		style := maneuverStyle.URL()
		if in.Turn.IsDestination() {
			style = destinationStyle.URL()
		}
		folder.Add(kml.Placemark(
			kml.Name(in.Name()),
			kml.Description(describe(in)),
			kml.StyleURL(style),
			kml.Point(kml.Coordinates(coordinate(in.Location))),
		))
	}
	return folder
}

func describe(in route.Instruction) string {
	text := in.Text
	if text == "" {
		text = in.Phrase()
	}
	return fmt.Sprintf("%d. %s (%d m, %s)", in.Index+1, text, in.Distance, in.Turn)
}

func lineString(points []geodesic.Location) *kml.CompoundElement {
	coords := make([]kml.Coordinate, 0, len(points))
	for _, p := range points {
		coords = append(coords, coordinate(p))
	}
	return kml.LineString(
		kml.Tessellate(true),
		kml.Coordinates(coords...),
	)
}

func coordinate(l geodesic.Location) kml.Coordinate {
	return kml.Coordinate{Lon: l.Lon, Lat: l.Lat}
}
