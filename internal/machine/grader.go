package machine

import "github.com/ChuLiYu/roadcrew/pkg/types"

// stepGrader: drive to the site and scrape the grass off.
func stepGrader(m *Machine) {
	switch m.step {
	case 0:
		m.MoveTo(m.job.I, m.job.J)
		m.step++
	case 1:
		m.transformHere(types.Dirt)
		m.release()
	}
}
