package machine

// ============================================================================
// 移動協定
// 職責：
// 1. MoveTo 設定目標格，之後每個 tick 推進一步，抵達時結束
// 2. TurnTo 原地轉向，一次 45°
// 3. Offset 依階段與百分比計算繪製位移（純函數）
//
// 狀態機:
//   Decide ──(已在目標)──► 結束
//     │
//     ├─(面向不對)──► TurnCW / TurnCCW ──(100%)──► Decide
//     │
//     └─(面向正確)──► Edge ──(100%，換格)──► Center ──(100%)──► Decide
// ============================================================================

import "github.com/ChuLiYu/roadcrew/pkg/types"

// MoveIncrement is the percent added per tick to every phase.
const MoveIncrement = 10

type movePhase int

const (
	phaseDecide movePhase = iota
	phaseEdge
	phaseCenter
	phaseTurnCW
	phaseTurnCCW
)

func (p movePhase) String() string {
	switch p {
	case phaseDecide:
		return "decide"
	case phaseEdge:
		return "edge"
	case phaseCenter:
		return "center"
	case phaseTurnCW:
		return "turn-cw"
	case phaseTurnCCW:
		return "turn-ccw"
	}
	return "unknown"
}

// motion 一台機器的移動狀態
type motion struct {
	active  bool
	phase   movePhase
	percent int
	ti, tj  int // 目標格
}

// Moving reports whether a move or turn is in progress.
func (m *Machine) Moving() bool { return m.motion.active }

// MoveTo 開始移往 (i,j)
//
// 已在目標格時立即結束（不消耗 tick）；目標在地圖外時拒絕移動。
func (m *Machine) MoveTo(i, j int) {
	if (m.i == i && m.j == j) || !m.grid().InBounds(i, j) {
		m.motion.active = false
		return
	}
	m.motion = motion{active: true, phase: phaseDecide, ti: i, tj: j}
}

// TurnTo 面向 dir 時回傳 true；否則開始往較近方向轉 45° 並回傳 false。
// 轉完後回到 Decide，目標就是目前所在格，因此動作隨即結束。
func (m *Machine) TurnTo(dir types.Direction) bool {
	if m.facing == dir {
		return true
	}
	m.motion = motion{
		active: true,
		phase:  turnPhase(m.facing, dir),
		ti:     m.i,
		tj:     m.j,
	}
	return false
}

// ties go clockwise
func turnPhase(from, to types.Direction) movePhase {
	if from.TurnsCCW(to) < from.TurnsCW(to) {
		return phaseTurnCCW
	}
	return phaseTurnCW
}

// stepMotion 推進移動狀態一個 tick
func (m *Machine) stepMotion() {
	mv := &m.motion

	if mv.phase == phaseDecide {
		if m.i == mv.ti && m.j == mv.tj {
			mv.active = false
			return
		}
		mv.percent = 0
		want, _ := types.DirectionBetween(m.i, m.j, mv.ti, mv.tj)
		if m.facing != want {
			mv.phase = turnPhase(m.facing, want)
		} else {
			mv.phase = phaseEdge
		}
	}

	mv.percent += MoveIncrement
	if mv.percent < 100 {
		return
	}

	switch mv.phase {
	case phaseEdge:
		di, dj := m.facing.Step()
		if !m.relocate(m.i+di, m.j+dj) {
			// 地圖外：移動直接結束
			mv.active = false
			return
		}
		mv.phase = phaseCenter
		mv.percent = 0
	case phaseCenter:
		mv.phase = phaseDecide
	case phaseTurnCW:
		m.facing = m.facing.CW()
		mv.phase = phaseDecide
	case phaseTurnCCW:
		m.facing = m.facing.CCW()
		mv.phase = phaseDecide
	}
}

// relocate 把自己從目前格的 EntityList 移到 (i,j)
func (m *Machine) relocate(i, j int) bool {
	next := m.grid().Cell(i, j)
	if next == nil {
		return false
	}
	if cur := m.here(); cur != nil {
		cur.Occupants().Remove(m.id)
	}
	next.Occupants().Add(m.id)
	m.i, m.j = i, j
	return true
}

// Offset 繪製時相對於格子左上角的像素位移
//
// 規則：
//   - 基準 y = 16
//   - Edge：沿 facing 方向位移 percent%
//   - Center：沿反方向位移 (100-percent)%
//   - x：NE/SW ±32，N/E +16，S/W -16
//   - y：NW/SE ∓16，N/W -8，E/S +8
func (m *Machine) Offset() (dx, dy int) {
	return motionOffset(m.motion, m.facing)
}

func motionOffset(mv motion, facing types.Direction) (dx, dy int) {
	dy = 16
	if !mv.active {
		return 0, dy
	}

	amount, dir := 0, facing
	switch mv.phase {
	case phaseEdge:
		amount = mv.percent
	case phaseCenter:
		amount = 100 - mv.percent
		dir = dir.Opposite()
	}

	switch dir {
	case types.NorthEast:
		dx += 32 * amount / 100
	case types.SouthWest:
		dx -= 32 * amount / 100
	case types.North, types.East:
		dx += 16 * amount / 100
	case types.South, types.West:
		dx -= 16 * amount / 100
	}

	switch dir {
	case types.NorthWest:
		dy -= 16 * amount / 100
	case types.SouthEast:
		dy += 16 * amount / 100
	case types.North, types.West:
		dy -= 8 * amount / 100
	case types.East, types.South:
		dy += 8 * amount / 100
	}
	return dx, dy
}
