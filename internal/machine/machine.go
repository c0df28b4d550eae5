// ============================================================================
// Roadcrew 機器 - 工地上的五種工程車
// ============================================================================
//
// Package: internal/machine
// 文件: machine.go
// 功能: 機器共用狀態、每 tick 的 Check 與依機種分派的工作程序
//
// 機器狀態:
//   閒置無工作 ──Claim()──► 閒置有工作 ──MoveTo/TurnTo──► 移動中
//        ▲                      │  ▲                         │
//        └──────release()───────┘  └──────動作結束───────────┘
//
// 工作程序:
//   每個機種一組 (mask, step)：mask 決定可領取的任務種類，
//   step 依 m.step 推進一步。程序表以機種為索引，不使用繼承。
//
// 所有權:
//   Fleet 擁有機器；地形格的 EntityList 只記錄 MachineID。
//   機器記錄自己所在的格子座標，需要時向 Grid 查詢 Terrain。
//
// ============================================================================

package machine

import (
	"fmt"

	"github.com/ChuLiYu/roadcrew/internal/world"
	"github.com/ChuLiYu/roadcrew/pkg/types"
)

// DumpTicks is how long a hauler's dump animation lasts.
const DumpTicks = 100 / MoveIncrement

// procedure 一個機種的工作程序
type procedure struct {
	mask func(m *Machine) types.JobKind
	step func(m *Machine)
}

var procedures = map[types.Archetype]procedure{
	types.Digger:    {mask: fixedMask(types.JobCut), step: stepDigger},
	types.Bulldozer: {mask: fixedMask(types.JobLevel), step: stepBulldozer},
	types.Roller:    {mask: fixedMask(types.JobRoll), step: stepRoller},
	types.Grader:    {mask: fixedMask(types.JobClear), step: stepGrader},
	types.Hauler:    {mask: haulerMask, step: stepHauler},
}

func fixedMask(k types.JobKind) func(*Machine) types.JobKind {
	return func(*Machine) types.JobKind { return k }
}

// 機種在圖庫中的起始 tile 編號；實際 tile = base + cargo*8 + facing
var tileBase = map[types.Archetype]int{
	types.Digger:    0,
	types.Bulldozer: 16,
	types.Roller:    24,
	types.Grader:    32,
	types.Hauler:    40,
}

// Machine 一台工程車
type Machine struct {
	id     types.MachineID
	kind   types.Archetype
	i, j   int
	facing types.Direction
	cargo  types.Cargo

	job     *types.Job // 目前持有的任務，nil 表示閒置
	step    int        // 工作程序進度
	counter int        // 動畫／卸貨計數（百分比）
	corner  int        // 挖土機正在挖的角點（TileCorners 索引）

	motion motion
	fleet  *Fleet
}

// ID returns the machine identifier.
func (m *Machine) ID() types.MachineID { return m.id }

// Archetype returns the machine kind.
func (m *Machine) Archetype() types.Archetype { return m.kind }

// Pos returns the cell the machine currently stands on.
func (m *Machine) Pos() (i, j int) { return m.i, m.j }

// Facing returns the machine heading.
func (m *Machine) Facing() types.Direction { return m.facing }

// SetFacing overrides the heading.
func (m *Machine) SetFacing(d types.Direction) { m.facing = d & 7 }

// Cargo returns the cargo / animation frame.
func (m *Machine) Cargo() types.Cargo { return m.cargo }

// SetCargo sets the cargo / animation frame.
func (m *Machine) SetCargo(c types.Cargo) { m.cargo = c }

// Job returns the job the machine holds, or nil.
func (m *Machine) Job() *types.Job { return m.job }

// Step returns the progress index within the current job.
func (m *Machine) Step() int { return m.step }

// Tile returns the opaque sprite id handed to the renderer.
func (m *Machine) Tile() int {
	return tileBase[m.kind] + int(m.cargo)*8 + int(m.facing)
}

// Mask returns the job kinds the machine would claim right now.
func (m *Machine) Mask() types.JobKind {
	return procedures[m.kind].mask(m)
}

// Idle reports whether the machine holds no job and is not moving.
func (m *Machine) Idle() bool {
	return m.job == nil && !m.motion.active
}

// Check 每個 tick 呼叫一次
//
// 移動中只推進移動；否則沒有工作時嘗試領取，有工作就推進一步。
// 領取成功的同一個 tick 立即執行第一步。
func (m *Machine) Check() {
	if m.motion.active {
		m.stepMotion()
		return
	}

	p := procedures[m.kind]
	if m.job == nil {
		m.step = 0
		if m.job = m.fleet.claim(m, p.mask(m)); m.job == nil {
			return
		}
	}
	p.step(m)
}

// String 狀態列顯示用
func (m *Machine) String() string {
	s := fmt.Sprintf("%s #%d (%d,%d) %s %s", m.kind, m.id, m.i, m.j, m.facing, m.cargo)
	if m.job != nil {
		s += fmt.Sprintf(" job=%s step=%d", m.job, m.step)
	}
	if m.motion.active {
		s += " " + m.motion.phase.String()
	}
	return s
}

// ============================================================================
// 工作程序共用的輔助函數
// ============================================================================

func (m *Machine) grid() *world.Grid { return m.fleet.grid }

func (m *Machine) here() *world.Terrain { return m.grid().Cell(m.i, m.j) }

// transformHere 把腳下的格子換成 v
func (m *Machine) transformHere(v types.Variant) {
	if t := m.here(); t != nil {
		t.Transform(v)
	}
}

// release 完成並丟棄目前任務
func (m *Machine) release() {
	job := m.job
	m.job = nil
	m.step = 0
	m.fleet.observer.JobCompleted(m, job)
}

// requeue 把目前任務原封不動放回佇列尾端
func (m *Machine) requeue() {
	job := m.job
	m.job = nil
	m.step = 0
	if err := m.grid().Jobs().Requeue(job); err != nil {
		log.Warn("requeue failed", "machine", m.id, "job", job.String(), "error", err)
		return
	}
	m.fleet.observer.JobRequeued(m, job)
}

// emit 產生新任務並加入佇列尾端
func (m *Machine) emit(kind types.JobKind, i, j, param int) {
	job := m.grid().Jobs().Add(kind, i, j, param)
	m.fleet.observer.JobEmitted(m, job)
}
