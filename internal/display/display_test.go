package display

import (
	"math/rand"
	"testing"

	"github.com/ChuLiYu/roadcrew/internal/machine"
	"github.com/ChuLiYu/roadcrew/internal/world"
	"github.com/ChuLiYu/roadcrew/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestWorld builds a flat 14x14 grid at height 1 with one hauler at (2,3)
func newTestWorld(t *testing.T) (*world.Grid, *machine.Fleet, *machine.Machine) {
	t.Helper()
	g := world.NewGrid(world.Options{Width: 14, Height: 14})
	g.Mesh().Fill(1)
	f := machine.NewFleet(g, rand.New(rand.NewSource(1)))
	m, err := f.Spawn(types.Hauler, 2, 3)
	require.NoError(t, err)
	m.SetFacing(types.North)
	return g, f, m
}

func TestProject(t *testing.T) {
	tests := []struct {
		name         string
		i, j, ox, oy int
		height       int
		wantX, wantY int
	}{
		{"origin", 0, 0, 0, 0, 0, 288, 144},
		{"step i", 1, 0, 0, 0, 0, 320, 160},
		{"step j", 0, 1, 0, 0, 0, 256, 160},
		{"raised", 0, 0, 0, 0, 2, 288, 112},
		{"scrolled", 3, 2, 3, 2, 0, 288, 144},
		{"corner of viewport", 9, 9, 0, 0, 1, 288, 416},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := Project(tt.i, tt.j, tt.ox, tt.oy, tt.height)
			assert.Equal(t, tt.wantX, x)
			assert.Equal(t, tt.wantY, y)
		})
	}
}

func TestScrollDelta(t *testing.T) {
	tests := []struct {
		name   string
		s      Scroll
		dx, dy int
	}{
		{"none", Scroll{}, 0, 0},
		{"up", Scroll{Up: true}, 0, -1},
		{"right", Scroll{Right: true}, 1, 0},
		{"down", Scroll{Down: true}, 0, 1},
		{"left", Scroll{Left: true}, -1, 0},
		{"up wins", Scroll{Up: true, Left: true, Down: true}, 0, -1},
		{"right before down", Scroll{Right: true, Down: true}, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dx, dy := tt.s.Delta()
			assert.Equal(t, tt.dx, dx)
			assert.Equal(t, tt.dy, dy)
		})
	}
}

func TestMachineLift(t *testing.T) {
	assert.Equal(t, 0, MachineLift(0))
	assert.Equal(t, 8, MachineLift(1))
	assert.Equal(t, 16, MachineLift(4))
	assert.Equal(t, 16, MachineLift(5))
	assert.Equal(t, 0, MachineLift(2|8))
}

// ============================================================================
// 選取
// ============================================================================

func TestPickerExactMatchStops(t *testing.T) {
	var p Picker
	// tile A drawn at (0,0): pointer (10,20) is a rough match only
	p.Consider(10, 20, 0, 0, 1, 1, 0, 0)
	require.True(t, p.Found())
	assert.False(t, p.Exact())
	assert.Equal(t, 1, p.I)

	// a second rough match does not replace the first
	p.Consider(10, 20, -20, 0, 2, 2, 0, 0)
	assert.Equal(t, 1, p.I)

	// tile drawn at (-10,-10): (10,20) is inside its inner box
	p.Consider(10, 20, -10, -10, 3, 3, 1, 4)
	assert.True(t, p.Exact())
	assert.Equal(t, 3, p.I)
	assert.Equal(t, 1, p.Height)
	assert.Equal(t, 4, p.Shape)

	// nothing replaces an exact match
	p.Consider(10, 20, -8, -8, 4, 4, 0, 0)
	assert.Equal(t, 3, p.I)

	p.Reset()
	assert.False(t, p.Found())
}

func TestPickerMisses(t *testing.T) {
	tests := []struct {
		name   string
		mx, my int
	}{
		{"left of tile", -1, 30},
		{"above diamond", 30, 15},
		{"right of tile", 64, 30},
		{"below tile", 30, 48},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Picker
			p.Consider(tt.mx, tt.my, 0, 0, 0, 0, 0, 0)
			assert.False(t, p.Found())
		})
	}
}

// ============================================================================
// 繪製
// ============================================================================

func TestDrawFrame(t *testing.T) {
	g, f, m := newTestWorld(t)
	r := NewRecorder()

	// pointer inside the inner box of tile (2,3)
	x, y := Project(2, 3, 0, 0, 1)
	pick := DrawFrame(r, g, f, x+32, y+32)

	require.True(t, pick.Exact())
	assert.Equal(t, 2, pick.I)
	assert.Equal(t, 3, pick.J)
	assert.Equal(t, 1, r.FullRedraws)
	assert.False(t, g.NeedsFullRedraw(), "flag is consumed by the frame")
	assert.Equal(t, 1, r.Frames)
	assert.Equal(t, "(2,3) height: 1", r.Status)

	assert.Equal(t, 100, r.Count(80, 96), "one grass tile per visible cell")
	assert.Equal(t, 1, r.Count(HighlightBase, HighlightBase+16))
	assert.Equal(t, 1, r.Count(0, 80), "one machine")

	last := r.Last[len(r.Last)-1]
	assert.Equal(t, Draw{Tile: m.Tile(), X: x, Y: y + 16}, last)

	// second frame without terrain changes does not request a full redraw
	DrawFrame(r, g, f, 0, 0)
	assert.Equal(t, 1, r.FullRedraws)
	assert.Equal(t, 100, r.Count(80, 96))
	assert.Equal(t, 0, r.Count(HighlightBase, HighlightBase+16))
}

func TestDrawFrameFollowsScroll(t *testing.T) {
	g, f, _ := newTestWorld(t)
	r := NewRecorder()
	DrawFrame(r, g, f, -1, -1)

	require.True(t, g.Scroll(2, 0))
	DrawFrame(r, g, f, -1, -1)
	assert.Equal(t, 2, r.FullRedraws)
	assert.Equal(t, 1, r.Count(0, 80), "hauler at i=2 is still visible")

	require.True(t, g.Scroll(1, 0))
	DrawFrame(r, g, f, -1, -1)
	assert.Equal(t, 0, r.Count(0, 80), "hauler at i=2 scrolled out")
}

func TestScriptedInput(t *testing.T) {
	var in ScriptedInput
	in.Click(40, 50)
	in.Press(Scroll{Down: true})

	assert.False(t, in.PrimaryClicked(), "nothing is visible before Poll")

	in.Poll()
	x, y := in.Pointer()
	assert.Equal(t, 40, x)
	assert.Equal(t, 50, y)
	assert.True(t, in.PrimaryClicked())
	assert.True(t, in.ScrollKeys().Down)

	in.Poll()
	assert.False(t, in.PrimaryClicked(), "clicks last one poll")
	assert.Equal(t, Scroll{}, in.ScrollKeys())
	x, _ = in.Pointer()
	assert.Equal(t, 40, x, "pointer stays")
}

func TestPickTileMatchesDrawFrame(t *testing.T) {
	g, f, _ := newTestWorld(t)
	g.Scroll(1, 2)

	for _, pt := range [][2]int{{300, 180}, {150, 260}, {420, 330}, {5, 5}} {
		drawn := DrawFrame(NewRecorder(), g, f, pt[0], pt[1])
		picked := PickTile(g, pt[0], pt[1])
		assert.Equal(t, drawn, picked, "pointer %v", pt)
	}
}
