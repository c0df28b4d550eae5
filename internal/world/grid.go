// ============================================================================
// Roadcrew 地圖 - 地形格、高度網格與任務佇列的擁有者
// ============================================================================
//
// Package: internal/world
// 文件: grid.go
// 功能: W×H 地形格陣列，附帶任務佇列與角點高度網格
//
// 擁有關係:
//   Grid ─┬─ cells[W*H] *Terrain ── EntityList (MachineID)
//         ├─ Mesh (W+1)×(H+1)
//         └─ jobqueue.Queue
//
// 座標:
//   (i, j) = (欄, 列)，j 往下增加。Cell/SetCell 越界時回傳 nil / 不做事，
//   幾何運算經常探查邊界外一格，因此越界不是錯誤。
//
// Tick 順序:
//   Check 以列優先 (row-major) 掃描每一格，格內依加入順序呼叫機器；
//   一台機器在同一個 tick 中最多被呼叫一次，即使它移入後面的格子。
//
// ============================================================================

package world

import (
	"math/rand"

	"github.com/ChuLiYu/roadcrew/internal/jobqueue"
	"github.com/ChuLiYu/roadcrew/pkg/types"
)

// Default dimensions.
const (
	DefaultWidth    = 21
	DefaultHeight   = 21
	DefaultViewport = 10
)

// Options 地圖尺寸設定
type Options struct {
	Width          int
	Height         int
	ViewportWidth  int
	ViewportHeight int
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.ViewportWidth <= 0 || o.ViewportWidth > o.Width {
		o.ViewportWidth = min(DefaultViewport, o.Width)
	}
	if o.ViewportHeight <= 0 || o.ViewportHeight > o.Height {
		o.ViewportHeight = min(DefaultViewport, o.Height)
	}
	return o
}

// TransformFunc observes terrain transformations.
type TransformFunc func(i, j int, from, to types.Variant)

// Grid 地圖
type Grid struct {
	opts  Options
	cells []*Terrain
	mesh  *Mesh
	jobs  *jobqueue.Queue

	offsetX, offsetY int  // 視窗左上角格子
	needsFullRedraw  bool // 捲動或地形改變時設定
	onTransform      TransformFunc
}

// NewGrid 建立全為 Grass、高度全為 0 的地圖
func NewGrid(opts Options) *Grid {
	opts = opts.withDefaults()
	g := &Grid{
		opts:            opts,
		cells:           make([]*Terrain, opts.Width*opts.Height),
		mesh:            NewMesh(opts.Width, opts.Height),
		jobs:            jobqueue.New(),
		needsFullRedraw: true,
	}
	for j := 0; j < opts.Height; j++ {
		for i := 0; i < opts.Width; i++ {
			g.cells[j*opts.Width+i] = newTerrain(g, types.Grass, i, j, nil)
		}
	}
	return g
}

// Populate 隨機生成高度，鋪上草地，放置倉庫 (0,0) 與出口道路 (W-1,H-1)
func (g *Grid) Populate(rng *rand.Rand) {
	g.mesh.Generate(rng)
	for j := 0; j < g.opts.Height; j++ {
		for i := 0; i < g.opts.Width; i++ {
			g.cells[j*g.opts.Width+i] = newTerrain(g, types.Grass, i, j, nil)
		}
	}
	g.Place(0, 0, types.Depot)
	g.Place(g.opts.Width-1, g.opts.Height-1, types.Road)
	g.needsFullRedraw = true
}

// Place sets a fresh cell of variant v at (i,j), keeping its occupants.
// Unlike Transform it is a setup operation and is not reported to observers.
func (g *Grid) Place(i, j int, v types.Variant) *Terrain {
	old := g.Cell(i, j)
	if old == nil {
		return nil
	}
	t := newTerrain(g, v, i, j, old.occupants)
	g.SetCell(i, j, t)
	return t
}

// Size returns the grid dimensions in tiles.
func (g *Grid) Size() (w, h int) { return g.opts.Width, g.opts.Height }

// Viewport returns the visible window size in tiles.
func (g *Grid) Viewport() (w, h int) { return g.opts.ViewportWidth, g.opts.ViewportHeight }

// Mesh returns the elevation mesh.
func (g *Grid) Mesh() *Mesh { return g.mesh }

// Jobs returns the shared work queue.
func (g *Grid) Jobs() *jobqueue.Queue { return g.jobs }

// InBounds reports whether (i,j) is a cell of the grid.
func (g *Grid) InBounds(i, j int) bool {
	return i >= 0 && i < g.opts.Width && j >= 0 && j < g.opts.Height
}

// Cell 取得地形格，越界回傳 nil
func (g *Grid) Cell(i, j int) *Terrain {
	if !g.InBounds(i, j) {
		return nil
	}
	return g.cells[j*g.opts.Width+i]
}

// SetCell 設定地形格，越界時不做事
func (g *Grid) SetCell(i, j int, t *Terrain) {
	if !g.InBounds(i, j) || t == nil {
		return
	}
	g.cells[j*g.opts.Width+i] = t
}

// Elevation is a shortcut for Mesh().Elevation.
func (g *Grid) Elevation(ci, cj int) int { return g.mesh.Elevation(ci, cj) }

// SetElevation is a shortcut for Mesh().SetElevation.
func (g *Grid) SetElevation(ci, cj, h int) { g.mesh.SetElevation(ci, cj, h) }

// OnTransform registers the observer called after every Transform.
func (g *Grid) OnTransform(fn TransformFunc) { g.onTransform = fn }

func (g *Grid) recordTransform(i, j int, from, to types.Variant) {
	if g.onTransform != nil {
		g.onTransform(i, j, from, to)
	}
}

// ============================================================================
// 重繪旗標與視窗
// ============================================================================

// NeedsFullRedraw reports whether the whole view must be redrawn.
func (g *Grid) NeedsFullRedraw() bool { return g.needsFullRedraw }

// MarkFullRedraw raises the full-redraw flag.
func (g *Grid) MarkFullRedraw() { g.needsFullRedraw = true }

// ClearFullRedraw lowers the flag once the redraw happened.
func (g *Grid) ClearFullRedraw() { g.needsFullRedraw = false }

// Offset returns the top-left visible cell.
func (g *Grid) Offset() (x, y int) { return g.offsetX, g.offsetY }

// Scroll 移動視窗，限制在 [0, W-VW] × [0, H-VH]
//
// 返回值：
//   - bool: 視窗是否真的移動（移動時要求完整重繪）
func (g *Grid) Scroll(dx, dy int) bool {
	x := clamp(g.offsetX+dx, 0, g.opts.Width-g.opts.ViewportWidth)
	y := clamp(g.offsetY+dy, 0, g.opts.Height-g.opts.ViewportHeight)
	if x == g.offsetX && y == g.offsetY {
		return false
	}
	g.offsetX, g.offsetY = x, y
	g.needsFullRedraw = true
	return true
}

// ============================================================================
// 地形查詢
// ============================================================================

// Classify 玩家點擊 (i,j) 時應產生的任務種類
//
// 規則：
//   - 四個角點皆為 1（平坦）：Grass → CLEAR，Dirt → PAVE，其他不產生任務
//   - 任一角點為 0：FILL
//   - 其他（有角點為 2）：CUT
func (g *Grid) Classify(i, j int) (types.JobKind, bool) {
	t := g.Cell(i, j)
	if t == nil {
		return 0, false
	}

	flat, low := true, false
	for _, c := range t.Corners() {
		e := g.Elevation(c[0], c[1])
		if e != 1 {
			flat = false
		}
		if e == 0 {
			low = true
		}
	}

	switch {
	case flat:
		switch t.Variant() {
		case types.Grass:
			return types.JobClear, true
		case types.Dirt:
			return types.JobPave, true
		}
		return 0, false
	case low:
		return types.JobFill, true
	default:
		return types.JobCut, true
	}
}

// TileHeight 格子的基準高度（渲染用）：從 NW 角點開始，
// 依序遇到較低的 NE、SE、SW 角點各減一
func (g *Grid) TileHeight(i, j int) int {
	h := g.Elevation(i, j)
	if g.Elevation(i+1, j) < h {
		h--
	}
	if g.Elevation(i+1, j+1) < h {
		h--
	}
	if g.Elevation(i, j+1) < h {
		h--
	}
	return h
}

// TileShape 高於基準高度的角點 bitmask：NW=1, NE=2, SE=4, SW=8
func (g *Grid) TileShape(i, j int) int {
	h := g.TileHeight(i, j)
	shape := 0
	for bit, c := range TileCorners(i, j) {
		if g.Elevation(c[0], c[1]) > h {
			shape |= 1 << bit
		}
	}
	return shape
}

// Tile returns the renderer tile id of cell (i,j), or -1 when out of range.
func (g *Grid) Tile(i, j int) int {
	t := g.Cell(i, j)
	if t == nil {
		return -1
	}
	return t.TileNum() + g.TileShape(i, j)
}

// CountVariants counts cells per variant.
func (g *Grid) CountVariants() map[types.Variant]int {
	counts := make(map[types.Variant]int, len(variantTable))
	for _, v := range types.Variants() {
		counts[v] = 0
	}
	for _, t := range g.cells {
		counts[t.Variant()]++
	}
	return counts
}

// ============================================================================
// Tick
// ============================================================================

// Check 以列優先順序呼叫每一格的 Check，每台機器每個 tick 最多一次
func (g *Grid) Check(visit func(types.MachineID)) {
	seen := make(map[types.MachineID]bool)
	for j := 0; j < g.opts.Height; j++ {
		for i := 0; i < g.opts.Width; i++ {
			// 透過 Cell 取得：前一台機器可能已經 Transform 這一格
			g.Cell(i, j).Check(func(id types.MachineID) {
				if seen[id] {
					return
				}
				seen[id] = true
				visit(id)
			})
		}
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
