// ============================================================================
// Roadcrew Display - 渲染與輸入的邊界
// ============================================================================
//
// Package: internal/display
// 文件: display.go
// 功能: 核心只透過這裡的介面畫圖與讀取輸入
//
// 座標:
//   菱形投影，原點 (288,144)。i 每加一：x+32, y+16；j 每加一：x-32, y+16；
//   高度每加一：y-16。tile 圖塊 64x48，機器圖塊 64x32。
//
// Tile 編號 (核心不解讀，只傳遞):
//   0-79    機器 (archetype base + cargo*8 + facing)
//   80-115  地形 (variant base + 角點形狀)
//   116-131 選取框 (HighlightBase + 角點形狀)
//
// ============================================================================

package display

// Projection constants.
const (
	OriginX = 288
	OriginY = 144

	TileWidth   = 64
	TileHeight  = 48
	HalfWidth   = TileWidth / 2
	HalfHeight  = 16
	LevelHeight = 16 // 每單位高度的像素

	TerrainBase   = 80
	HighlightBase = 116
)

// Scroll 方向鍵狀態
type Scroll struct {
	Up, Down, Left, Right bool
}

// Delta 一個 tick 最多捲動一格，優先順序：上、右、下、左
func (s Scroll) Delta() (dx, dy int) {
	switch {
	case s.Up:
		return 0, -1
	case s.Right:
		return 1, 0
	case s.Down:
		return 0, 1
	case s.Left:
		return -1, 0
	}
	return 0, 0
}

// InputSource 每個 tick 在機器檢查前取樣一次
type InputSource interface {
	// Poll latches the input state seen since the previous Poll.
	Poll()
	Pointer() (x, y int)
	PrimaryClicked() bool
	ScrollKeys() Scroll
}

// Renderer 接收繪圖請求
type Renderer interface {
	DrawTile(tile, x, y int)
	RequestFullRedraw()
	ShowStatus(status string)
	// Present ends a frame.
	Present()
}

// Project 回傳格子 (i,j) 在視窗偏移 (ox,oy)、基準高度 height 時的左上角像素
func Project(i, j, ox, oy, height int) (x, y int) {
	vi, vj := i-ox, j-oy
	x = OriginX + HalfWidth*vi - HalfWidth*vj
	y = OriginY + HalfHeight*vi + HalfHeight*vj - LevelHeight*height
	return x, y
}

// MachineLift 斜坡上機器的額外上移：SE 角較高時 16，否則 NW 角較高時 8
func MachineLift(shape int) int {
	switch {
	case shape&4 != 0:
		return 16
	case shape&1 != 0:
		return 8
	}
	return 0
}

// ============================================================================
// 選取
// ============================================================================

// Picker 找出滑鼠下的格子
//
// 依繪製順序逐格呼叫 Consider：
//   - 滑鼠在 [x,x+64)×[y+16,y+48) 內是粗略符合，保留第一個
//   - 滑鼠在內框 [x+16,x+48)×[y+24,y+40) 內是精確符合，取代粗略結果並停止
type Picker struct {
	stage int // 0 無、1 粗略、2 精確

	I, J   int // 選到的格子
	X, Y   int // 該格的繪製位置
	Height int // 基準高度
	Shape  int // 角點形狀
}

// Reset clears the previous selection.
func (p *Picker) Reset() { *p = Picker{} }

// Found reports whether any tile matched.
func (p *Picker) Found() bool { return p.stage > 0 }

// Exact reports whether the match was inside the inner box.
func (p *Picker) Exact() bool { return p.stage == 2 }

// Consider 以滑鼠位置 (mx,my) 檢查畫在 (x,y) 的格子 (i,j)
func (p *Picker) Consider(mx, my, x, y, i, j, height, shape int) {
	if p.stage == 2 {
		return
	}
	if mx < x || my < y+16 || mx >= x+TileWidth || my >= y+TileHeight {
		return
	}
	if mx >= x+16 && my >= y+24 && mx < x+48 && my < y+40 {
		p.stage = 2
	} else {
		if p.stage == 1 {
			return
		}
		p.stage = 1
	}
	p.I, p.J = i, j
	p.X, p.Y = x, y
	p.Height = height
	p.Shape = shape
}
