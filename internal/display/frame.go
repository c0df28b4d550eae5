package display

import (
	"github.com/ChuLiYu/roadcrew/internal/machine"
	"github.com/ChuLiYu/roadcrew/internal/world"
)

// DrawFrame 畫出視窗內的一幀，回傳滑鼠 (mx,my) 下的格子
//
// 順序：
//  1. Grid 要求全畫面重繪時先通知 Renderer，並清除旗標
//  2. 每個可見格畫一次地形，同時做選取
//  3. 選到的格子畫選取框，狀態列顯示高度與機器任務
//  4. 每台可見機器畫一次，加上移動偏移
func DrawFrame(r Renderer, g *world.Grid, f *machine.Fleet, mx, my int) Picker {
	var pick Picker

	if g.NeedsFullRedraw() {
		r.RequestFullRedraw()
		g.ClearFullRedraw()
	}

	ox, oy := g.Offset()
	vw, vh := g.Viewport()

	for vj := 0; vj < vh; vj++ {
		for vi := 0; vi < vw; vi++ {
			i, j := vi+ox, vj+oy
			if !g.InBounds(i, j) {
				continue
			}
			h := g.TileHeight(i, j)
			x, y := Project(i, j, ox, oy, h)
			r.DrawTile(g.Tile(i, j), x, y)
			pick.Consider(mx, my, x, y, i, j, h, g.TileShape(i, j))
		}
	}

	if pick.Found() {
		r.DrawTile(HighlightBase+pick.Shape, pick.X, pick.Y)
		r.ShowStatus(f.Describe(pick.I, pick.J))
	}

	for vj := 0; vj < vh; vj++ {
		for vi := 0; vi < vw; vi++ {
			i, j := vi+ox, vj+oy
			t := g.Cell(i, j)
			if t == nil || t.Occupants().Len() == 0 {
				continue
			}
			x, y := Project(i, j, ox, oy, g.TileHeight(i, j))
			y -= MachineLift(g.TileShape(i, j))
			for _, id := range t.Occupants().IDs() {
				m := f.Lookup(id)
				if m == nil {
					continue
				}
				dx, dy := m.Offset()
				r.DrawTile(m.Tile(), x+dx, y+dy)
			}
		}
	}

	r.Present()
	return pick
}

// PickTile 不繪圖，只找出滑鼠 (mx,my) 下的可見格子
func PickTile(g *world.Grid, mx, my int) Picker {
	var pick Picker
	ox, oy := g.Offset()
	vw, vh := g.Viewport()
	for vj := 0; vj < vh; vj++ {
		for vi := 0; vi < vw; vi++ {
			i, j := vi+ox, vj+oy
			if !g.InBounds(i, j) {
				continue
			}
			h := g.TileHeight(i, j)
			x, y := Project(i, j, ox, oy, h)
			pick.Consider(mx, my, x, y, i, j, h, g.TileShape(i, j))
		}
	}
	return pick
}
