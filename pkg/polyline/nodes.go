package polyline

import "github.com/breatheroute/navcore/pkg/geodesic"

// Node is one decoded shape point of a route.
//
// TotalDistance is the cumulative distance from the first node in meters.
// Bearing and LegDistance describe the leg toward the next node and are only
// set once that node is known, so the last node leaves them unset.
type Node struct {
	Lat           float64
	Lon           float64
	TotalDistance float64
	Bearing       float64
	LegDistance   float64
	HasBearing    bool
}

// Location returns the node position, carrying its outgoing bearing when set.
func (n Node) Location() geodesic.Location {
	loc := geodesic.NewLocation(n.Lat, n.Lon)
	if n.HasBearing {
		loc = loc.WithBearing(n.Bearing)
	}
	return loc
}

// DecodeNodes decodes an encoded polyline straight into route nodes.
func DecodeNodes(encoded string, precision float64) ([]Node, error) {
	coords, err := Decode(encoded, precision)
	if err != nil {
		return nil, err
	}
	return NodesFromCoordinates(coords), nil
}

// NodesFromCoordinates builds nodes in a single forward pass, backfilling the
// bearing and leg distance of each node once its successor is known.
func NodesFromCoordinates(coords []Coordinate) []Node {
	if len(coords) == 0 {
		return nil
	}

	nodes := make([]Node, 0, len(coords))
	for _, c := range coords {
		node := Node{Lat: c.Lat, Lon: c.Lon}
		if len(nodes) > 0 {
			prev := &nodes[len(nodes)-1]
			res := geodesic.Inverse(prev.Location(), node.Location())
			node.TotalDistance = prev.TotalDistance + res.Distance
			prev.Bearing = res.InitialBearing
			prev.LegDistance = res.Distance
			prev.HasBearing = true
		}
		nodes = append(nodes, node)
	}
	return nodes
}
