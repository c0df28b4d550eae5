package machine

import "github.com/ChuLiYu/roadcrew/pkg/types"

// stepRoller: drive to the asphalt pile and roll it into road.
func stepRoller(m *Machine) {
	switch m.step {
	case 0:
		m.MoveTo(m.job.I, m.job.J)
		m.step++
	case 1:
		m.transformHere(types.Road)
		m.release()
	}
}
