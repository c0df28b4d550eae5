package machine

// ============================================================================
// 挖土機 (Digger) - 處理 CUT
// 流程：
//   step 0      移到工地
//   step 1..4   依序檢查 NW, NE, SE, SW 角點，高度 2 就轉向該角點、呼叫卡車
//   step 5      等待空車停在自己或相鄰格，裝土後降低角點，回到 step 1
// 四個角點都不是 2 時完成任務。
// ============================================================================

import (
	"github.com/ChuLiYu/roadcrew/internal/world"
	"github.com/ChuLiYu/roadcrew/pkg/types"
)

const (
	digStepFirstCorner = 1
	digStepWait        = 5
)

// 角點索引對應的挖掘方向（NW, NE, SE, SW）
var cornerDirections = [4]types.Direction{
	types.NorthWest, types.NorthEast, types.SouthEast, types.SouthWest,
}

func stepDigger(m *Machine) {
	switch {
	case m.step == 0:
		m.MoveTo(m.job.I, m.job.J)
		m.step = digStepFirstCorner

	case m.step >= digStepFirstCorner && m.step < digStepWait:
		n := m.step - digStepFirstCorner
		c := world.TileCorners(m.i, m.j)[n]
		if m.grid().Elevation(c[0], c[1]) == world.MaxElevation {
			dir := cornerDirections[n]
			if !m.TurnTo(dir) {
				return
			}
			m.corner = n
			m.callHauler(dir)
			m.counter = 0
			m.step = digStepWait
			return
		}
		if n == len(cornerDirections)-1 {
			m.release()
			return
		}
		m.step++

	case m.step == digStepWait:
		m.loadHauler()
	}
}

// callHauler 在挖掘方向的對角格放一個 WAIT；超出地圖時往反方向反射
func (m *Machine) callHauler(dir types.Direction) {
	w, h := m.grid().Size()
	di, dj := dir.Step()
	m.emit(types.JobWait, reflectIndex(m.i+di, w), reflectIndex(m.j+dj, h), types.NoParam)
}

func reflectIndex(v, n int) int {
	switch {
	case v < 0:
		return v + 2
	case v >= n:
		return v - 2
	}
	return v
}

// loadHauler 找一台持有 WAIT 且已停下的卡車，找到就裝土。
// 角點可能已被共用它的另一台挖土機挖過，這時不裝土、回到 step 1 重新檢查。
func (m *Machine) loadHauler() {
	c := world.TileCorners(m.i, m.j)[m.corner]
	if m.grid().Elevation(c[0], c[1]) != world.MaxElevation {
		m.counter = 0
		m.cargo = types.CargoEmpty
		m.step = digStepFirstCorner
		return
	}

	hauler, di, dj := m.findWaitingHauler()
	if hauler == nil {
		// 挖土動畫
		m.counter += MoveIncrement
		if m.counter >= 100 {
			m.counter = 0
			m.cargo ^= types.CargoLoaded
		}
		return
	}

	dir := m.facing
	if di != 0 || dj != 0 {
		dir, _ = types.DirectionBetween(0, 0, di, dj)
	}
	if !m.TurnTo(dir) {
		return
	}

	m.cargo = types.CargoEmpty
	hauler.cargo = types.CargoLoaded

	m.grid().SetElevation(c[0], c[1], world.MaxElevation-1)
	m.transformHere(types.Dirt)
	m.step = digStepFirstCorner
}

// findWaitingHauler 掃描自己與 8 個相鄰格（dj 外層、di 內層）
func (m *Machine) findWaitingHauler() (*Machine, int, int) {
	for dj := -1; dj <= 1; dj++ {
		for di := -1; di <= 1; di++ {
			t := m.grid().Cell(m.i+di, m.j+dj)
			if t == nil {
				continue
			}
			id, ok := t.FindOccupant(func(id types.MachineID) bool {
				other := m.fleet.Lookup(id)
				return other != nil && other.waitingForLoad()
			})
			if ok {
				return m.fleet.Lookup(id), di, dj
			}
		}
	}
	return nil, 0, 0
}

// waitingForLoad 卡車持有 WAIT、已抵達且尚未裝土
func (m *Machine) waitingForLoad() bool {
	return m.kind == types.Hauler &&
		m.job != nil && m.job.Kind == types.JobWait &&
		!m.motion.active &&
		m.cargo == types.CargoEmpty
}
