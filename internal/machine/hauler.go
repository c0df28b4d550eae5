package machine

// ============================================================================
// 卡車 (Hauler)
// 空車領 PAVE 或 WAIT，載土時只領 FILL。
//
// PAVE:  倉庫 → 裝柏油 → 工地 → 卸貨 10 tick → AsphaltPile + ROLL
// WAIT:  到指定格等挖土機裝土
// FILL:  在目標周圍找平坦 Dirt 卸土 → DirtPile + LEVEL(朝目標)
//        找不到就把任務放回佇列
// ============================================================================

import "github.com/ChuLiYu/roadcrew/pkg/types"

// DepotI, DepotJ locate the asphalt depot.
const (
	DepotI = 0
	DepotJ = 0
)

func haulerMask(m *Machine) types.JobKind {
	switch m.cargo {
	case types.CargoEmpty:
		return types.JobPave | types.JobWait
	case types.CargoLoaded:
		return types.JobFill
	}
	return 0
}

func stepHauler(m *Machine) {
	switch m.job.Kind {
	case types.JobPave:
		haulAsphalt(m)
	case types.JobWait:
		waitForLoad(m)
	case types.JobFill:
		dumpDirt(m)
	default:
		log.Warn("hauler holding unexpected job", "machine", m.id, "job", m.job.String())
		m.release()
	}
}

func haulAsphalt(m *Machine) {
	switch m.step {
	case 0:
		m.MoveTo(DepotI, DepotJ)
		m.step++
	case 1:
		m.cargo = types.CargoAsphalt
		m.MoveTo(m.job.I, m.job.J)
		m.step++
	case 2:
		m.cargo = types.CargoDumpingAsphalt
		m.counter = 0
		m.step++
	case 3:
		if !m.dumpTick() {
			return
		}
		m.transformHere(types.AsphaltPile)
		m.emit(types.JobRoll, m.i, m.j, types.NoParam)
		m.cargo = types.CargoEmpty
		m.release()
	}
}

func waitForLoad(m *Machine) {
	switch m.step {
	case 0:
		m.MoveTo(m.job.I, m.job.J)
		m.step++
	case 1:
		if m.cargo == types.CargoLoaded {
			m.release()
		}
	}
}

func dumpDirt(m *Machine) {
	switch m.step {
	case 0:
		i, j, ok := m.findDumpSite(m.job.I, m.job.J)
		if !ok {
			m.requeue()
			return
		}
		m.MoveTo(i, j)
		m.step++
	case 1:
		m.cargo = types.CargoDumpingDirt
		m.counter = 0
		m.step++
	case 2:
		if !m.dumpTick() {
			return
		}
		m.transformHere(types.DirtPile)
		param := types.NoParam
		if dir, ok := types.DirectionBetween(m.i, m.j, m.job.I, m.job.J); ok {
			param = int(dir)
		}
		m.emit(types.JobLevel, m.i, m.j, param)
		m.cargo = types.CargoEmpty
		m.release()
	}
}

// findDumpSite 目標周圍第一個平坦的 Dirt 格（dj 外層、di 內層，跳過中心）
func (m *Machine) findDumpSite(ti, tj int) (int, int, bool) {
	for dj := -1; dj <= 1; dj++ {
		for di := -1; di <= 1; di++ {
			if di == 0 && dj == 0 {
				continue
			}
			t := m.grid().Cell(ti+di, tj+dj)
			if t != nil && t.Variant() == types.Dirt && t.IsFlat() {
				return ti + di, tj + dj, true
			}
		}
	}
	return 0, 0, false
}

// dumpTick 推進卸貨動畫，完成時回傳 true
func (m *Machine) dumpTick() bool {
	m.counter += MoveIncrement
	return m.counter >= 100
}
