package world

// ============================================================================
// 地形格 (Terrain)
// 職責：
// 1. 以封閉的種類標籤 (types.Variant) 取代子類別，每種類的資料放在 variantTable
// 2. Transform 產生同座標、共用同一份 EntityList 的新地形並放回 Grid
// 3. 平坦判斷（四個角點皆為 1）
// ============================================================================

import "github.com/ChuLiYu/roadcrew/pkg/types"

// variantInfo 每種地形的靜態資料
type variantInfo struct {
	tile int // 渲染用 tile 編號（核心不解讀）
}

var variantTable = map[types.Variant]variantInfo{
	types.Grass:       {tile: 80},
	types.Dirt:        {tile: 96},
	types.Road:        {tile: 112},
	types.AsphaltPile: {tile: 113},
	types.DirtPile:    {tile: 114},
	types.Depot:       {tile: 115},
}

// TileBase returns the renderer tile id for a variant.
func TileBase(v types.Variant) int {
	return variantTable[v].tile
}

// Terrain 一個地形格
type Terrain struct {
	variant   types.Variant
	i, j      int
	occupants *EntityList
	grid      *Grid // 非擁有的回指，用於高度查詢與 Transform
}

func newTerrain(g *Grid, v types.Variant, i, j int, occupants *EntityList) *Terrain {
	if occupants == nil {
		occupants = NewEntityList()
	}
	return &Terrain{
		variant:   v,
		i:         i,
		j:         j,
		occupants: occupants,
		grid:      g,
	}
}

// Variant returns the cell's type tag.
func (t *Terrain) Variant() types.Variant { return t.variant }

// Pos returns the cell coordinates.
func (t *Terrain) Pos() (i, j int) { return t.i, t.j }

// Occupants returns the machines on this cell.
func (t *Terrain) Occupants() *EntityList { return t.occupants }

// TileNum returns the opaque tile id handed to the renderer.
func (t *Terrain) TileNum() int { return TileBase(t.variant) }

// Transform 將此格轉換為另一種地形
//
// 新地形沿用相同座標與同一份 occupants（不重新建立、不重新進入），
// 立即放回 Grid 的同一格，並要求完整重繪。舊值之後不再可達。
func (t *Terrain) Transform(v types.Variant) *Terrain {
	next := newTerrain(t.grid, v, t.i, t.j, t.occupants)
	t.grid.SetCell(t.i, t.j, next)
	t.grid.MarkFullRedraw()
	t.grid.recordTransform(t.i, t.j, t.variant, v)
	return next
}

// IsFlat 四個角點高度皆為 1
func (t *Terrain) IsFlat() bool {
	m := t.grid.Mesh()
	for _, c := range t.Corners() {
		if m.Elevation(c[0], c[1]) != 1 {
			return false
		}
	}
	return true
}

// Corners returns the mesh coordinates of the tile's corners in the
// fixed scan order NW, NE, SE, SW.
func (t *Terrain) Corners() [4][2]int {
	return TileCorners(t.i, t.j)
}

// TileCorners returns the corners of tile (i,j) in NW, NE, SE, SW order.
func TileCorners(i, j int) [4][2]int {
	return [4][2]int{{i, j}, {i + 1, j}, {i + 1, j + 1}, {i, j + 1}}
}

// Check forwards one tick to every occupant in insertion order.
func (t *Terrain) Check(visit func(types.MachineID)) {
	for id, ok := t.occupants.First(); ok; id, ok = t.occupants.Next() {
		visit(id)
	}
}

// FindOccupant returns the first occupant accepted by match without
// disturbing a Check in progress on this cell.
func (t *Terrain) FindOccupant(match func(types.MachineID) bool) (types.MachineID, bool) {
	return t.occupants.Find(match)
}
