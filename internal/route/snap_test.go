package route

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/navcore/pkg/geodesic"
)

type progress struct {
	leg         int
	instruction int
	travelled   float64
	toNext      int
	remaining   int
}

func assertProgress(t *testing.T, r *Route, want progress) {
	t.Helper()
	assert.Equal(t, want.leg, r.CurrentLeg(), "leg")
	assert.Equal(t, want.instruction, r.CurrentInstructionIndex(), "instruction")
	assert.Equal(t, want.travelled, r.TotalDistanceTravelled(), "travelled")
	assert.Equal(t, want.toNext, r.DistanceToNextInstruction(), "distance to next")
	assert.Equal(t, want.remaining, r.RemainingDistanceToDestination(), "remaining")
}

// along returns the point meters along the leg starting at node, pushed
// offset meters to the right of it.
func along(r *Route, node int, meters, offset float64) geodesic.Location {
	n := r.Nodes()[node]
	p := geodesic.Destination(geodesic.NewLocation(n.Lat, n.Lon), n.Bearing, meters)
	if offset != 0 {
		p = geodesic.Destination(p, n.Bearing+90, offset)
	}
	return p
}

func TestSnapToRoute_OnNodes(t *testing.T) {
	tests := []struct {
		name string
		node int
		want progress
	}{
		{"start", 0, progress{0, 0, 0, 598, 1328}},
		{"third node", 2, progress{2, 0, 408, 190, 920}},
		{"after first turn", 4, progress{4, 1, 821, 222, 507}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := loadBerlin(t)
			node := r.Nodes()[tt.node]

			got, ok := r.SnapToRoute(node.Location())
			require.True(t, ok)
			assert.InDelta(t, node.Lat, got.Lat, 1e-9)
			assert.InDelta(t, node.Lon, got.Lon, 1e-9)
			assert.False(t, r.IsLost())
			assertProgress(t, r, tt.want)
		})
	}
}

func TestSnapToRoute_Arrival(t *testing.T) {
	r := loadBerlin(t)
	dest, _ := r.Destination()

	got, ok := r.SnapToRoute(geodesic.Destination(dest, 180, 20))
	require.True(t, ok)
	assert.True(t, got.SamePosition(dest))
	assertProgress(t, r, progress{7, 3, 1328, 0, 0})
}

func TestSnapToRoute_BehindStart(t *testing.T) {
	r := loadBerlin(t)
	start, _ := r.StartCoordinates()

	got, ok := r.SnapToRoute(geodesic.Destination(start, 270, 20))
	require.True(t, ok)
	assert.True(t, got.SamePosition(start))
	assert.False(t, r.IsLost())
	assertProgress(t, r, progress{0, 0, 0, 598, 1328})
}

func TestSnapToRoute_BeginningAllowance(t *testing.T) {
	r := loadBerlin(t)
	start, _ := r.StartCoordinates()
	fix := geodesic.Destination(start, 180, 80)

	got, ok := r.SnapToRoute(fix)
	require.True(t, ok)
	assert.Equal(t, fix, got)
	assert.False(t, r.IsLost())
	assert.Equal(t, 130.0, r.beginningThreshold)
	assertProgress(t, r, progress{0, 0, 0, 598, 1328})
}

func TestSnapToRoute_ProjectsOffsetFix(t *testing.T) {
	r := loadBerlin(t)
	onLeg := along(r, 0, 100, 0)

	got, ok := r.SnapToRoute(along(r, 0, 100, 10))
	require.True(t, ok)
	assert.InDelta(t, 0, got.DistanceTo(onLeg), 0.5)
	assert.True(t, got.HasBearing)
	assert.InDelta(t, r.Nodes()[0].Bearing, got.Bearing, 1e-9)
	assertProgress(t, r, progress{0, 0, 101, 497, 1227})
}

func TestProject_FixBehindNode(t *testing.T) {
	tests := []struct {
		name string
		side float64
	}{
		{"left of the leg", -90},
		{"right of the leg", 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := loadBerlin(t)
			node := r.Nodes()[0]
			origin := geodesic.NewLocation(node.Lat, node.Lon)
			fix := geodesic.Destination(geodesic.Destination(origin, node.Bearing+180, 200), node.Bearing+tt.side, 30)

			// Solving along the leg bearing crosses on the far side of the earth.
			far, ok := perpendicularFoot(origin, node.Bearing, fix)
			require.True(t, ok)
			assert.Greater(t, far.DistanceTo(fix), 1000*CorrectionThreshold)

			// The reverse bearing finds the foot behind the node.
			reverse, ok := perpendicularFoot(origin, node.Bearing-180, fix)
			require.True(t, ok)
			assert.InDelta(t, 30, reverse.DistanceTo(fix), 0.5)
			assert.InDelta(t, 200, origin.DistanceTo(reverse), 1)
			assert.InDelta(t, 180, math.Abs(node.Bearing-origin.BearingTo(reverse)), 0.01)

			// It points away from the leg, so the node is used.
			assert.Equal(t, node.Location(), r.project(0, fix))
		})
	}
}

func TestSnapToRoute_FixBehindNodeAfterProgressIsLost(t *testing.T) {
	r := loadBerlin(t)
	_, ok := r.SnapToRoute(along(r, 0, 100, 0))
	require.True(t, ok)

	_, ok = r.SnapToRoute(along(r, 0, -200, -30))
	assert.False(t, ok)
	assert.True(t, r.IsLost())
	assert.Equal(t, 0, r.CurrentLeg())
	assert.Equal(t, 101.0, r.TotalDistanceTravelled())
}

func TestSnapToRoute_LostAndRecovered(t *testing.T) {
	r := loadBerlin(t)

	_, ok := r.SnapToRoute(along(r, 0, 100, 0))
	require.True(t, ok)
	assertProgress(t, r, progress{0, 0, 101, 497, 1227})

	far := geodesic.Destination(along(r, 0, 100, 0), 180, 300)
	_, ok = r.SnapToRoute(far)
	assert.False(t, ok)
	assert.True(t, r.IsLost())
	assert.Equal(t, 101.0, r.TotalDistanceTravelled())
	assert.Equal(t, 497, r.DistanceToNextInstruction())

	_, ok = r.SnapToRoute(along(r, 0, 150, 0))
	require.True(t, ok)
	assert.False(t, r.IsLost())
	assertProgress(t, r, progress{0, 0, 151, 447, 1177})
}

func TestSnapToRoute_NorthboundLeg(t *testing.T) {
	r := loadBerlin(t)

	got, ok := r.SnapToRoute(along(r, 3, 100, 3))
	require.True(t, ok)
	assert.InDelta(t, 13.4088, got.Lon, 1e-6)
	assertProgress(t, r, progress{3, 1, 698, 345, 630})
}

func TestSnapToRoute_Drive(t *testing.T) {
	for _, offset := range []float64{0, 2, -3} {
		r := loadBerlin(t)
		nodes := r.Nodes()

		var fixes []geodesic.Location
		for i := 0; i < len(nodes)-1; i++ {
			for d := 0.0; d < nodes[i].LegDistance; d += 20 {
				fixes = append(fixes, along(r, i, d, offset))
			}
		}
		dest, _ := r.Destination()
		fixes = append(fixes, dest)
		require.Len(t, fixes, 72)

		previous := 0.0
		for i, fix := range fixes {
			_, ok := r.SnapToRoute(fix)
			require.True(t, ok, "offset %.0f fix %d lost", offset, i)
			assert.GreaterOrEqual(t, r.TotalDistanceTravelled(), previous)
			assert.Equal(t, r.TotalDistance(), r.RemainingDistanceToDestination()+int(r.TotalDistanceTravelled()),
				"offset %.0f fix %d", offset, i)
			assert.GreaterOrEqual(t, r.DistanceToNextInstruction(), 0)
			previous = r.TotalDistanceTravelled()
		}
		assertProgress(t, r, progress{7, 3, 1328, 0, 0})
	}
}

func TestSnapToRoute_PastLastLegIsLost(t *testing.T) {
	r := loadBerlin(t)
	r.currentLeg = len(r.nodes) - 1

	_, ok := r.SnapToRoute(along(r, 0, 100, 0))
	assert.False(t, ok)
	assert.True(t, r.IsLost())
}

func TestRewind(t *testing.T) {
	r := loadBerlin(t)
	_, ok := r.SnapToRoute(r.Nodes()[4].Location())
	require.True(t, ok)

	r.Rewind()
	assert.False(t, r.IsLost())
	assertProgress(t, r, progress{0, 0, 0, 598, 1328})
	assert.Equal(t, 1043, r.Instructions()[1].LiveDistanceToNext)
}
