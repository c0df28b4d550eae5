package machine

import (
	"github.com/ChuLiYu/roadcrew/internal/world"
	"github.com/ChuLiYu/roadcrew/pkg/types"
)

// stepBulldozer pushes a dirt pile one cell in the job's direction and
// raises the first low corner of the cell it ends on.
func stepBulldozer(m *Machine) {
	dir := types.Direction(m.job.Param)

	switch m.step {
	case 0:
		m.MoveTo(m.job.I, m.job.J)
		m.step++

	case 1:
		if !dir.Valid() {
			log.Warn("LEVEL job without direction", "machine", m.id, "job", m.job.String())
			m.release()
			return
		}
		if !m.TurnTo(dir) {
			return
		}
		m.step++

	case 2:
		di, dj := dir.Step()
		m.transformHere(types.Dirt)
		m.MoveTo(m.i+di, m.j+dj)
		m.step++

	case 3:
		m.transformHere(types.Dirt)
		g := m.grid()
		for _, c := range world.TileCorners(m.i, m.j) {
			if g.Elevation(c[0], c[1]) < 1 {
				g.SetElevation(c[0], c[1], 1)
				break
			}
		}
		m.transformHere(types.Dirt)
		m.release()
	}
}
