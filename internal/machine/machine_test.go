package machine

// ============================================================================
// Machine 測試檔案
// 職責：驗證移動協定、五種機種的工作程序與任務鏈
// ============================================================================

import (
	"math/rand"
	"testing"

	"github.com/ChuLiYu/roadcrew/internal/world"
	"github.com/ChuLiYu/roadcrew/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// newTestFleet creates a flat (all corners 1) grass grid and an empty fleet
func newTestFleet(t *testing.T, w, h int) *Fleet {
	t.Helper()
	g := world.NewGrid(world.Options{Width: w, Height: h})
	g.Mesh().Fill(1)
	return NewFleet(g, rand.New(rand.NewSource(1)))
}

// spawn places a machine and fixes its heading
func spawn(t *testing.T, f *Fleet, kind types.Archetype, i, j int, facing types.Direction) *Machine {
	t.Helper()
	m, err := f.Spawn(kind, i, j)
	require.NoError(t, err)
	m.SetFacing(facing)
	return m
}

// runUntil ticks the fleet until done returns true, failing after limit ticks
func runUntil(t *testing.T, f *Fleet, limit int, done func() bool) int {
	t.Helper()
	for n := 1; n <= limit; n++ {
		f.Tick()
		if done() {
			return n
		}
	}
	t.Fatalf("condition not reached within %d ticks", limit)
	return limit
}

// settled reports whether the queue is empty and every machine is idle
func settled(f *Fleet) func() bool {
	return func() bool {
		if f.Grid().Jobs().Len() > 0 {
			return false
		}
		for _, m := range f.Machines() {
			if !m.Idle() {
				return false
			}
		}
		return true
	}
}

// recordingObserver counts job events per kind
type recordingObserver struct {
	claimed, completed, requeued, emitted []types.JobKind
}

func (r *recordingObserver) JobClaimed(_ *Machine, j *types.Job) {
	r.claimed = append(r.claimed, j.Kind)
}

func (r *recordingObserver) JobCompleted(_ *Machine, j *types.Job) {
	r.completed = append(r.completed, j.Kind)
}

func (r *recordingObserver) JobRequeued(_ *Machine, j *types.Job) {
	r.requeued = append(r.requeued, j.Kind)
}

func (r *recordingObserver) JobEmitted(_ *Machine, j *types.Job) {
	r.emitted = append(r.emitted, j.Kind)
}

// count returns how many times kind appears in kinds
func count(kinds []types.JobKind, kind types.JobKind) int {
	n := 0
	for _, k := range kinds {
		if k == kind {
			n++
		}
	}
	return n
}

// ============================================================================
// Movement
// ============================================================================

func TestMoveToStraightLine(t *testing.T) {
	f := newTestFleet(t, 5, 5)
	m := spawn(t, f, types.Grader, 0, 0, types.East)

	m.MoveTo(3, 0)
	require.True(t, m.Moving())

	ticks := 0
	for m.Moving() {
		m.Check()
		ticks++
		require.Less(t, ticks, 1000)
	}

	// 每格 10 tick 到邊緣 + 10 tick 回中心，最後一個 tick 判定抵達
	assert.Equal(t, 3*2*(100/MoveIncrement)+1, ticks)
	i, j := m.Pos()
	assert.Equal(t, [2]int{3, 0}, [2]int{i, j})
	assert.True(t, f.Grid().Cell(3, 0).Occupants().Contains(m.ID()))
	assert.False(t, f.Grid().Cell(0, 0).Occupants().Contains(m.ID()))
}

func TestMoveToDiagonalReachesTarget(t *testing.T) {
	f := newTestFleet(t, 6, 6)
	m := spawn(t, f, types.Hauler, 0, 0, types.North)

	m.MoveTo(2, 5)
	for n := 0; m.Moving(); n++ {
		require.Less(t, n, 2000)
		m.Check()
	}

	i, j := m.Pos()
	assert.Equal(t, [2]int{2, 5}, [2]int{i, j})
	assert.Equal(t, types.South, m.Facing(), "last leg is straight down")
}

func TestMoveToTrivialAndOutOfGrid(t *testing.T) {
	f := newTestFleet(t, 3, 3)
	m := spawn(t, f, types.Roller, 1, 1, types.North)

	m.MoveTo(1, 1)
	assert.False(t, m.Moving(), "already on target")

	m.MoveTo(-1, 1)
	assert.False(t, m.Moving(), "target outside the grid is refused")
}

func TestTurnTo(t *testing.T) {
	tests := []struct {
		name  string
		from  types.Direction
		to    types.Direction
		phase movePhase
		turns int
	}{
		{"one step clockwise", types.North, types.NorthEast, phaseTurnCW, 1},
		{"shorter way counter-clockwise", types.North, types.West, phaseTurnCCW, 2},
		{"tie goes clockwise", types.North, types.South, phaseTurnCW, 4},
		{"wrap around", types.NorthWest, types.NorthEast, phaseTurnCW, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFleet(t, 3, 3)
			m := spawn(t, f, types.Digger, 1, 1, tt.from)

			require.False(t, m.TurnTo(tt.to))
			assert.Equal(t, tt.phase, m.motion.phase)

			turns := 0
			for {
				for m.Moving() {
					m.Check()
				}
				turns++
				if m.TurnTo(tt.to) {
					break
				}
				require.Less(t, turns, 8)
			}
			assert.Equal(t, tt.to, m.Facing())
			assert.Equal(t, tt.turns, turns)
			assert.True(t, m.TurnTo(tt.to))
		})
	}
}

func TestOffset(t *testing.T) {
	tests := []struct {
		name   string
		mv     motion
		facing types.Direction
		dx, dy int
	}{
		{"idle", motion{}, types.NorthEast, 0, 16},
		{"edge half way north-east", motion{active: true, phase: phaseEdge, percent: 50}, types.NorthEast, 16, 16},
		{"edge full south-east", motion{active: true, phase: phaseEdge, percent: 100}, types.SouthEast, 0, 32},
		{"edge north", motion{active: true, phase: phaseEdge, percent: 100}, types.North, 16, 8},
		{"center start facing east", motion{active: true, phase: phaseCenter, percent: 0}, types.East, -16, 8},
		{"center done", motion{active: true, phase: phaseCenter, percent: 100}, types.West, 0, 16},
		{"turning stays centred", motion{active: true, phase: phaseTurnCW, percent: 50}, types.South, 0, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dx, dy := motionOffset(tt.mv, tt.facing)
			assert.Equal(t, tt.dx, dx)
			assert.Equal(t, tt.dy, dy)
		})
	}
}

// ============================================================================
// Fleet
// ============================================================================

func TestSpawnCrewLayout(t *testing.T) {
	g := world.NewGrid(world.Options{})
	f := NewFleet(g, rand.New(rand.NewSource(3)))
	require.NoError(t, f.SpawnCrew(DefaultCrew()))

	want := []struct {
		kind types.Archetype
		i    int
	}{
		{types.Digger, 1}, {types.Bulldozer, 2}, {types.Roller, 3}, {types.Grader, 4},
		{types.Hauler, 5}, {types.Hauler, 6}, {types.Hauler, 7}, {types.Hauler, 8},
	}
	machines := f.Machines()
	require.Len(t, machines, len(want))
	for n, w := range want {
		m := machines[n]
		i, j := m.Pos()
		assert.Equal(t, w.kind, m.Archetype())
		assert.Equal(t, [2]int{w.i, 0}, [2]int{i, j})
		assert.True(t, g.Cell(i, j).Occupants().Contains(m.ID()))
		assert.True(t, m.Facing().Valid())
	}
}

func TestSpawnErrors(t *testing.T) {
	f := newTestFleet(t, 2, 2)

	_, err := f.Spawn(types.Digger, 5, 5)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = f.Spawn(types.Archetype(99), 0, 0)
	assert.ErrorIs(t, err, ErrUnknownArchetype)

	assert.ErrorIs(t, f.SpawnCrew(Crew{Haulers: 10}), ErrOutOfBounds)
}

func TestHaulerMask(t *testing.T) {
	f := newTestFleet(t, 3, 3)
	m := spawn(t, f, types.Hauler, 0, 0, types.North)

	assert.Equal(t, types.JobPave|types.JobWait, m.Mask())
	m.SetCargo(types.CargoLoaded)
	assert.Equal(t, types.JobFill, m.Mask())
	m.SetCargo(types.CargoAsphalt)
	assert.Equal(t, types.JobKind(0), m.Mask())
}

func TestMachineTile(t *testing.T) {
	f := newTestFleet(t, 3, 3)
	m := spawn(t, f, types.Hauler, 0, 0, types.East)
	m.SetCargo(types.CargoAsphalt)
	assert.Equal(t, 40+3*8+int(types.East), m.Tile())
}

// ============================================================================
// Job procedures
// ============================================================================

func TestGraderClearsGrass(t *testing.T) {
	f := newTestFleet(t, 6, 6)
	obs := &recordingObserver{}
	f.SetObserver(obs)
	spawn(t, f, types.Grader, 1, 0, types.South)

	f.Grid().Jobs().Add(types.JobClear, 3, 3, types.NoParam)
	runUntil(t, f, 500, settled(f))

	assert.Equal(t, types.Dirt, f.Grid().Cell(3, 3).Variant())
	assert.Equal(t, []types.JobKind{types.JobClear}, obs.claimed)
	assert.Equal(t, []types.JobKind{types.JobClear}, obs.completed)
}

func TestMachinesIgnoreForeignJobs(t *testing.T) {
	f := newTestFleet(t, 4, 4)
	spawn(t, f, types.Roller, 1, 0, types.South)
	spawn(t, f, types.Grader, 2, 0, types.South)

	job := f.Grid().Jobs().Add(types.JobCut, 2, 2, types.NoParam)
	for n := 0; n < 50; n++ {
		f.Tick()
	}
	assert.True(t, f.Grid().Jobs().Contains(job), "no machine may claim CUT without a digger")
}

func TestPaveThenRoll(t *testing.T) {
	f := newTestFleet(t, 6, 6)
	f.Grid().Place(0, 0, types.Depot)
	f.Grid().Place(4, 4, types.Dirt)
	obs := &recordingObserver{}
	f.SetObserver(obs)

	hauler := spawn(t, f, types.Hauler, 1, 0, types.West)
	spawn(t, f, types.Roller, 2, 0, types.South)

	f.Grid().Jobs().Add(types.JobPave, 4, 4, types.NoParam)

	sawPile := false
	runUntil(t, f, 3000, func() bool {
		if f.Grid().Cell(4, 4).Variant() == types.AsphaltPile {
			sawPile = true
		}
		return settled(f)()
	})

	assert.True(t, sawPile, "hauler must leave an asphalt pile before the roller")
	assert.Equal(t, types.Road, f.Grid().Cell(4, 4).Variant())
	assert.Equal(t, types.CargoEmpty, hauler.Cargo())
	assert.Equal(t, []types.JobKind{types.JobRoll}, obs.emitted)
	assert.ElementsMatch(t, []types.JobKind{types.JobPave, types.JobRoll}, obs.completed)
}

func TestDiggerLoadsWaitingHauler(t *testing.T) {
	f := newTestFleet(t, 6, 6)
	g := f.Grid()
	g.SetElevation(3, 3, 2) // NW corner of (3,3)
	obs := &recordingObserver{}
	f.SetObserver(obs)

	digger := spawn(t, f, types.Digger, 1, 0, types.South)
	hauler := spawn(t, f, types.Hauler, 2, 0, types.South)

	g.Jobs().Add(types.JobCut, 3, 3, types.NoParam)
	runUntil(t, f, 3000, settled(f))

	assert.Equal(t, 1, g.Elevation(3, 3), "dug corner lowered")
	assert.Equal(t, types.Dirt, g.Cell(3, 3).Variant())
	assert.Equal(t, types.CargoLoaded, hauler.Cargo())
	assert.Equal(t, types.CargoEmpty, digger.Cargo())
	assert.Equal(t, types.NorthWest, digger.Facing())

	hi, hj := hauler.Pos()
	assert.Equal(t, [2]int{2, 2}, [2]int{hi, hj}, "hauler waits on the cell diagonal to the dug corner")
	assert.Equal(t, []types.JobKind{types.JobWait}, obs.emitted)
	assert.ElementsMatch(t, []types.JobKind{types.JobCut, types.JobWait}, obs.completed)
}

func TestDiggerCallReflectsAtEdge(t *testing.T) {
	f := newTestFleet(t, 4, 4)
	g := f.Grid()
	g.SetElevation(0, 0, 2) // NW corner of (0,0)
	spawn(t, f, types.Digger, 0, 0, types.NorthWest)

	g.Jobs().Add(types.JobCut, 0, 0, types.NoParam)
	f.Tick() // claim + move (already there)
	f.Tick() // corner NW is high: call a hauler

	wait := g.Jobs().FindFirst(types.JobWait, nil)
	require.NotNil(t, wait)
	assert.Equal(t, [2]int{1, 1}, [2]int{wait.I, wait.J})
}

func TestDiggersSharingCornerDigOnce(t *testing.T) {
	f := newTestFleet(t, 8, 8)
	g := f.Grid()
	g.SetElevation(3, 3, 2) // SE corner of (2,2), NW corner of (3,3)
	obs := &recordingObserver{}
	f.SetObserver(obs)

	spawn(t, f, types.Digger, 2, 2, types.South)
	spawn(t, f, types.Digger, 3, 3, types.South)
	h1 := spawn(t, f, types.Hauler, 0, 6, types.North)
	h2 := spawn(t, f, types.Hauler, 6, 6, types.North)

	g.Jobs().Add(types.JobCut, 2, 2, types.NoParam)
	g.Jobs().Add(types.JobCut, 3, 3, types.NoParam)
	runUntil(t, f, 3000, func() bool {
		require.LessOrEqual(t, g.Mesh().MaxAdjacentDelta(), 1)
		return count(obs.completed, types.JobCut) == 2
	})
	for n := 0; n < 300; n++ {
		f.Tick()
		require.LessOrEqual(t, g.Mesh().MaxAdjacentDelta(), 1)
	}

	assert.Equal(t, 1, g.Elevation(3, 3), "shared corner is dug exactly once")

	loaded := 0
	for _, h := range []*Machine{h1, h2} {
		if h.Cargo() == types.CargoLoaded {
			loaded++
		}
	}
	assert.Equal(t, 1, loaded, "only one hauler receives dirt")

	dirt := 0
	for _, c := range [][2]int{{2, 2}, {3, 3}} {
		if g.Cell(c[0], c[1]).Variant() == types.Dirt {
			dirt++
		}
	}
	assert.Equal(t, 1, dirt)
}

func TestFillThenLevel(t *testing.T) {
	f := newTestFleet(t, 6, 6)
	g := f.Grid()
	g.SetElevation(3, 3, 0) // NW corner of (3,3)
	g.Place(4, 2, types.Dirt)
	obs := &recordingObserver{}
	f.SetObserver(obs)

	hauler := spawn(t, f, types.Hauler, 1, 0, types.South)
	hauler.SetCargo(types.CargoLoaded)
	spawn(t, f, types.Bulldozer, 2, 0, types.South)

	g.Jobs().Add(types.JobFill, 3, 3, types.NoParam)

	var level *types.Job
	runUntil(t, f, 3000, func() bool {
		if level == nil {
			level = g.Jobs().FindFirst(types.JobLevel, nil)
		}
		return settled(f)()
	})

	require.NotNil(t, level, "hauler must emit a LEVEL job")
	assert.Equal(t, [2]int{4, 2}, [2]int{level.I, level.J})
	assert.Equal(t, int(types.SouthWest), level.Param)

	assert.Equal(t, 1, g.Elevation(3, 3), "low corner raised")
	assert.Equal(t, types.Dirt, g.Cell(3, 3).Variant())
	assert.Equal(t, types.Dirt, g.Cell(4, 2).Variant(), "pile pushed off the dump cell")
	assert.Equal(t, types.CargoEmpty, hauler.Cargo())
	assert.ElementsMatch(t, []types.JobKind{types.JobFill, types.JobLevel}, obs.completed)
}

func TestFillWithoutDumpSiteIsRequeued(t *testing.T) {
	f := newTestFleet(t, 5, 5)
	g := f.Grid()
	g.SetElevation(2, 2, 0)
	obs := &recordingObserver{}
	f.SetObserver(obs)

	hauler := spawn(t, f, types.Hauler, 0, 0, types.South)
	hauler.SetCargo(types.CargoLoaded)
	job := g.Jobs().Add(types.JobFill, 2, 2, types.NoParam)

	for n := 0; n < 5; n++ {
		f.Tick()
	}

	assert.Equal(t, 1, g.Jobs().Len())
	assert.True(t, g.Jobs().Contains(job), "the same job goes back on the queue")
	assert.Len(t, obs.requeued, 5)
	assert.Nil(t, hauler.Job())
	assert.Equal(t, types.CargoLoaded, hauler.Cargo())
}

func TestDescribe(t *testing.T) {
	f := newTestFleet(t, 4, 4)
	m := spawn(t, f, types.Grader, 1, 1, types.South)
	assert.Equal(t, "(1,1) height: 1", f.Describe(1, 1))
	assert.Empty(t, f.Describe(9, 9))

	f.Grid().Jobs().Add(types.JobClear, 3, 3, types.NoParam)
	f.Tick()
	require.NotNil(t, m.Job())
	assert.Contains(t, f.Describe(1, 1), "Grader CLEAR")
}
