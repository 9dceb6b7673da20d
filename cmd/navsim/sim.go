package main

import (
	"fmt"
	"io"

	"github.com/breatheroute/navcore/internal/engine"
	"github.com/breatheroute/navcore/internal/format"
	"github.com/breatheroute/navcore/internal/route"
	"github.com/breatheroute/navcore/pkg/geodesic"
	"github.com/breatheroute/navcore/pkg/polyline"
)

// replay holds the options of one simulated drive.
type replay struct {
	Step      float64
	Offset    float64
	Formatter format.Formatter
	Engine    engine.Config
}

// outcome summarizes a replay.
type outcome struct {
	Fixes  int
	Events int
	State  engine.State
	Trail  []geodesic.Location
}

// fixes samples the route shape every step meters and shifts each sample
// offset meters to the right of the direction of travel.
func fixes(shape []geodesic.Location, step, offset float64) []geodesic.Location {
	coords := make([]polyline.Coordinate, 0, len(shape))
	for _, l := range shape {
		coords = append(coords, polyline.Coordinate{Lat: l.Lat, Lon: l.Lon})
	}
	samples := polyline.Sample(coords, step)

	out := make([]geodesic.Location, 0, len(samples))
	for i, c := range samples {
		p := c.Location()
		var bearing float64
		switch {
		case i+1 < len(samples):
			bearing = geodesic.Bearing(p, samples[i+1].Location())
		case i > 0:
			bearing = geodesic.Bearing(samples[i-1].Location(), p)
		}
		if offset != 0 {
			p = geodesic.Destination(p, bearing+90, offset)
		}
		out = append(out, p.WithBearing(bearing))
	}
	return out
}

// run drives an engine along r and prints every event to out.
func (o replay) run(r *route.Route, out io.Writer) (*outcome, error) {
	p := &printer{out: out, f: o.Formatter}

	e := engine.New(o.Engine)
	e.SetListener(p)
	if err := e.SetRoute(r); err != nil {
		return nil, err
	}

	res := &outcome{}
	for _, fix := range fixes(r.Geometry(), o.Step, o.Offset) {
		res.Fixes++
		p.fix = res.Fixes
		if err := e.OnLocationChanged(fix); err != nil {
			return nil, err
		}
		if e.State() == engine.StateComplete {
			break
		}
	}

	res.Events = p.events
	res.State = e.State()
	res.Trail = p.trail
	fmt.Fprintf(out, "%d fixes, %d events, final state %s\n", res.Fixes, res.Events, res.State)
	return res, nil
}

// printer writes one line per engine event.
type printer struct {
	out    io.Writer
	f      format.Formatter
	fix    int
	events int
	trail  []geodesic.Location
}

var _ engine.Listener = (*printer)(nil)

func (p *printer) printf(event, msg string, args ...interface{}) {
	p.events++
	fmt.Fprintf(p.out, "[%4d] %-22s "+msg+"\n", append([]interface{}{p.fix, event}, args...)...)
}

func (p *printer) OnRouteStart() {
	p.printf("route_start", "")
}

func (p *printer) OnRecalculate(fix geodesic.Location) {
	p.printf("recalculate", "lost at %.6f,%.6f", fix.Lat, fix.Lon)
}

func (p *printer) OnSnapLocation(original, snapped geodesic.Location) {
	p.trail = append(p.trail, snapped)
	p.printf("snap", "%.6f,%.6f -> %.6f,%.6f (%.1f m)",
		original.Lat, original.Lon, snapped.Lat, snapped.Lon, geodesic.Distance(original, snapped))
}

func (p *printer) OnMilestoneReached(instruction int, milestone engine.Milestone) {
	p.printf("milestone", "%s before instruction %d", milestone, instruction)
}

func (p *printer) OnApproachInstruction(instruction int) {
	p.printf("approach_instruction", "%d", instruction)
}

func (p *printer) OnInstructionComplete(instruction int) {
	p.printf("instruction_complete", "%d", instruction)
}

func (p *printer) OnUpdateDistance(toNext, toDestination int) {
	p.printf("distance_update", "next %s, destination %s",
		orDash(p.f.Format(toNext, true)), orDash(p.f.Format(toDestination, false)))
}

func (p *printer) OnRouteComplete() {
	p.printf("route_complete", "")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
