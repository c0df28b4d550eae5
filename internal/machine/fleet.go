package machine

// ============================================================================
// Fleet - 機器的擁有者
// 職責：
// 1. 建立機器並放進所在格的 EntityList
// 2. 以 MachineID 查詢機器（EntityList 只存 ID）
// 3. Tick：依 Grid 的掃描順序呼叫每台機器的 Check
// 4. 任務事件回報給 Observer（metrics、journal）
// ============================================================================

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/ChuLiYu/roadcrew/internal/world"
	"github.com/ChuLiYu/roadcrew/pkg/types"
)

var log = slog.With("component", "machine")

var (
	// ErrOutOfBounds 生成位置不在地圖內
	ErrOutOfBounds = errors.New("position outside the grid")
	// ErrUnknownArchetype 未知的機種
	ErrUnknownArchetype = errors.New("unknown archetype")
)

// Observer 接收機器產生的任務事件
type Observer interface {
	JobClaimed(m *Machine, job *types.Job)
	JobCompleted(m *Machine, job *types.Job)
	JobRequeued(m *Machine, job *types.Job)
	JobEmitted(m *Machine, job *types.Job)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) JobClaimed(*Machine, *types.Job)   {}
func (NopObserver) JobCompleted(*Machine, *types.Job) {}
func (NopObserver) JobRequeued(*Machine, *types.Job)  {}
func (NopObserver) JobEmitted(*Machine, *types.Job)   {}

// Crew 各機種的數量
type Crew struct {
	Diggers    int `yaml:"diggers"`
	Bulldozers int `yaml:"bulldozers"`
	Rollers    int `yaml:"rollers"`
	Graders    int `yaml:"graders"`
	Haulers    int `yaml:"haulers"`
}

// DefaultCrew 一台挖土機、推土機、壓路機、平地機，加上四台卡車
func DefaultCrew() Crew {
	return Crew{Diggers: 1, Bulldozers: 1, Rollers: 1, Graders: 1, Haulers: 4}
}

// Count returns the number of machines of kind a.
func (c Crew) Count(a types.Archetype) int {
	switch a {
	case types.Digger:
		return c.Diggers
	case types.Bulldozer:
		return c.Bulldozers
	case types.Roller:
		return c.Rollers
	case types.Grader:
		return c.Graders
	case types.Hauler:
		return c.Haulers
	}
	return 0
}

// Total returns the crew size.
func (c Crew) Total() int {
	n := 0
	for _, a := range types.Archetypes() {
		n += c.Count(a)
	}
	return n
}

// Fleet 所有機器
type Fleet struct {
	grid     *world.Grid
	rng      *rand.Rand
	machines []*Machine
	byID     map[types.MachineID]*Machine
	nextID   types.MachineID
	observer Observer
}

// NewFleet 建立空的機隊；rng 用來決定初始朝向
func NewFleet(grid *world.Grid, rng *rand.Rand) *Fleet {
	return &Fleet{
		grid:     grid,
		rng:      rng,
		byID:     make(map[types.MachineID]*Machine),
		nextID:   1,
		observer: NopObserver{},
	}
}

// SetObserver replaces the event observer. nil restores the no-op one.
func (f *Fleet) SetObserver(o Observer) {
	if o == nil {
		o = NopObserver{}
	}
	f.observer = o
}

// Grid returns the grid the fleet works on.
func (f *Fleet) Grid() *world.Grid { return f.grid }

// Spawn 在 (i,j) 建立一台機器並加入該格
func (f *Fleet) Spawn(kind types.Archetype, i, j int) (*Machine, error) {
	if _, ok := procedures[kind]; !ok {
		return nil, fmt.Errorf("spawn %d: %w", int(kind), ErrUnknownArchetype)
	}
	cell := f.grid.Cell(i, j)
	if cell == nil {
		return nil, fmt.Errorf("spawn %s at (%d,%d): %w", kind, i, j, ErrOutOfBounds)
	}

	m := &Machine{
		id:     f.nextID,
		kind:   kind,
		i:      i,
		j:      j,
		facing: types.Direction(f.rng.Intn(8)),
		fleet:  f,
	}
	f.nextID++
	f.machines = append(f.machines, m)
	f.byID[m.id] = m
	cell.Occupants().Add(m.id)
	return m, nil
}

// SpawnCrew 依機種順序從 (1,0) 開始沿列優先排放整個機隊，跳過倉庫格
func (f *Fleet) SpawnCrew(c Crew) error {
	w, h := f.grid.Size()
	slot := 1
	for _, kind := range types.Archetypes() {
		for n := 0; n < c.Count(kind); n++ {
			if slot >= w*h {
				return fmt.Errorf("crew of %d does not fit a %dx%d grid: %w", c.Total(), w, h, ErrOutOfBounds)
			}
			if _, err := f.Spawn(kind, slot%w, slot/w); err != nil {
				return err
			}
			slot++
		}
	}
	return nil
}

// Lookup returns the machine with the given id, or nil.
func (f *Fleet) Lookup(id types.MachineID) *Machine {
	return f.byID[id]
}

// Machines returns the machines in spawn order.
func (f *Fleet) Machines() []*Machine {
	out := make([]*Machine, len(f.machines))
	copy(out, f.machines)
	return out
}

// Len returns the fleet size.
func (f *Fleet) Len() int { return len(f.machines) }

// Tick 推進所有機器一個 tick（列優先，格內依加入順序）
func (f *Fleet) Tick() {
	f.grid.Check(func(id types.MachineID) {
		if m := f.byID[id]; m != nil {
			m.Check()
		}
	})
}

// Busy counts machines holding a job.
func (f *Fleet) Busy() int {
	n := 0
	for _, m := range f.machines {
		if m.job != nil {
			n++
		}
	}
	return n
}

// Describe 狀態列用的描述：格子高度與上面第一台機器的任務
func (f *Fleet) Describe(i, j int) string {
	t := f.grid.Cell(i, j)
	if t == nil {
		return ""
	}
	s := fmt.Sprintf("(%d,%d) height: %d", i, j, f.grid.TileHeight(i, j))
	for _, id := range t.Occupants().IDs() {
		if m := f.byID[id]; m != nil && m.job != nil {
			return s + "  " + m.kind.String() + " " + m.job.String()
		}
	}
	return s
}

// claim 從佇列領取第一個符合 mask 的任務
func (f *Fleet) claim(m *Machine, mask types.JobKind) *types.Job {
	if mask == 0 {
		return nil
	}
	job := f.grid.Jobs().Claim(mask)
	if job != nil {
		log.Debug("job claimed", "machine", m.id, "archetype", m.kind.String(), "job", job.String())
		f.observer.JobClaimed(m, job)
	}
	return job
}
