package world

// ============================================================================
// 高度網格 (Elevation Mesh)
// 職責：
// 1. 以格子「角點」記錄地面高度，大小為 (W+1)×(H+1)
// 2. 越界讀取回傳 0、越界寫入忽略，邊界格的角點查詢因此一律安全
// 3. 隨機生成後平滑化，使相鄰角點高度差不超過 1
// ============================================================================

import "math/rand"

// MaxElevation is the highest corner height produced by Generate.
const MaxElevation = 2

// Mesh 角點高度網格
type Mesh struct {
	width, height int // 角點數 = 格子數 + 1
	points        []int
}

// NewMesh creates a flat (all zero) mesh for a tiles×tiles grid.
func NewMesh(tilesWide, tilesHigh int) *Mesh {
	w, h := tilesWide+1, tilesHigh+1
	return &Mesh{
		width:  w,
		height: h,
		points: make([]int, w*h),
	}
}

// Size returns the number of corner points on each axis.
func (m *Mesh) Size() (w, h int) {
	return m.width, m.height
}

func (m *Mesh) inBounds(ci, cj int) bool {
	return ci >= 0 && ci < m.width && cj >= 0 && cj < m.height
}

// Elevation 讀取角點高度，越界回傳 0
func (m *Mesh) Elevation(ci, cj int) int {
	if !m.inBounds(ci, cj) {
		return 0
	}
	return m.points[cj*m.width+ci]
}

// SetElevation 寫入角點高度，越界時不做任何事
func (m *Mesh) SetElevation(ci, cj, h int) {
	if !m.inBounds(ci, cj) {
		return
	}
	m.points[cj*m.width+ci] = h
}

// Fill sets every corner to h.
func (m *Mesh) Fill(h int) {
	for i := range m.points {
		m.points[i] = h
	}
}

// Generate 隨機生成角點高度並平滑化
//
// 分佈：20% 為 0（低窪）、40% 為 1（原地）、40% 為 2（隆起）。
// 倉庫格 (0,0) 與出口格 (W-1,H-1) 的四個角點固定為 1。
func (m *Mesh) Generate(rng *rand.Rand) {
	for cj := 0; cj < m.height; cj++ {
		for ci := 0; ci < m.width; ci++ {
			r := rng.Intn(5)
			switch {
			case r == 0:
				// 低窪
			case r >= 3:
				r = 2
			default:
				r = 1
			}
			m.SetElevation(ci, cj, r)
		}
	}

	for _, c := range [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		m.SetElevation(c[0], c[1], 1)
		m.SetElevation(m.width-1-c[0], m.height-1-c[1], 1)
	}

	m.Level()
}

// Level 三輪平滑化：第 p 輪把高度為 p 的角點周圍 8 鄰居中
// 高於 p+1 的點降為 p+1，直到整輪掃描沒有變化
func (m *Mesh) Level() {
	for pass := 0; pass <= MaxElevation; pass++ {
		for changed := true; changed; {
			changed = false
			for cj := 0; cj < m.height; cj++ {
				for ci := 0; ci < m.width; ci++ {
					if m.Elevation(ci, cj) != pass {
						continue
					}
					for dj := -1; dj <= 1; dj++ {
						for di := -1; di <= 1; di++ {
							if di == 0 && dj == 0 {
								continue
							}
							ni, nj := ci+di, cj+dj
							if m.inBounds(ni, nj) && m.Elevation(ni, nj)-pass > 1 {
								m.SetElevation(ni, nj, pass+1)
								changed = true
							}
						}
					}
				}
			}
		}
	}
}

// MaxAdjacentDelta returns the largest height difference between any two
// 8-adjacent corners. A well-formed mesh reports at most 1.
func (m *Mesh) MaxAdjacentDelta() int {
	worst := 0
	for cj := 0; cj < m.height; cj++ {
		for ci := 0; ci < m.width; ci++ {
			h := m.Elevation(ci, cj)
			// 只看右、下、右下、左下，避免重複比較
			for _, d := range [][2]int{{1, 0}, {0, 1}, {1, 1}, {-1, 1}} {
				ni, nj := ci+d[0], cj+d[1]
				if !m.inBounds(ni, nj) {
					continue
				}
				if delta := abs(h - m.Elevation(ni, nj)); delta > worst {
					worst = delta
				}
			}
		}
	}
	return worst
}

// Histogram counts corners per height.
func (m *Mesh) Histogram() map[int]int {
	counts := make(map[int]int)
	for _, h := range m.points {
		counts[h]++
	}
	return counts
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
