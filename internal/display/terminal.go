package display

// ============================================================================
// Terminal - tcell 終端機外殼
// 職責：
// 1. 把像素座標的繪圖請求對應到終端機字元格
// 2. 背景 goroutine 讀取 tcell 事件，Poll 時一次交給模擬
// 3. q / Esc / Ctrl-C 結束
// ============================================================================

import (
	"fmt"
	"sync"

	"github.com/ChuLiYu/roadcrew/pkg/types"
	"github.com/gdamore/tcell"
)

// 一個字元格 8x16 像素；位移讓預設視窗從第 2 欄、第 0 列附近開始
const (
	cellWidth  = 8
	cellHeight = 16
	colShift   = 2
	rowShift   = 9

	// 機器圖塊比地形矮 16 像素，畫在 y+16
	machineDrop = 16
)

var (
	terrainGlyphs = map[types.Variant]rune{
		types.Grass:       '.',
		types.Dirt:        ':',
		types.Road:        '=',
		types.AsphaltPile: 'a',
		types.DirtPile:    'd',
		types.Depot:       'D',
	}
	machineGlyphs = [...]rune{'H', 'B', 'R', 'G', 'T'}

	terrainStyles = map[rune]tcell.Style{
		'.': tcell.StyleDefault.Foreground(tcell.ColorGreen),
		':': tcell.StyleDefault.Foreground(tcell.ColorOlive),
		'=': tcell.StyleDefault.Foreground(tcell.ColorSilver),
		'a': tcell.StyleDefault.Foreground(tcell.ColorGray),
		'd': tcell.StyleDefault.Foreground(tcell.ColorMaroon),
		'D': tcell.StyleDefault.Foreground(tcell.ColorTeal),
	}
	machineStyle = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	statusStyle  = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorNavy)
)

// terrainBases 依 tile 編號由大到小，用來反查地形種類
var terrainBases = []struct {
	base    int
	variant types.Variant
}{
	{115, types.Depot},
	{114, types.DirtPile},
	{113, types.AsphaltPile},
	{112, types.Road},
	{96, types.Dirt},
	{80, types.Grass},
}

// Glyph 回傳 tile 編號對應的字元；選取框與未知編號回傳 0
func Glyph(tile int) rune {
	switch {
	case tile < 0:
		return 0
	case tile < 16:
		return machineGlyphs[types.Digger]
	case tile < 24:
		return machineGlyphs[types.Bulldozer]
	case tile < 32:
		return machineGlyphs[types.Roller]
	case tile < 40:
		return machineGlyphs[types.Grader]
	case tile < TerrainBase:
		return machineGlyphs[types.Hauler]
	case tile < HighlightBase:
		for _, tb := range terrainBases {
			if tile >= tb.base {
				return terrainGlyphs[tb.variant]
			}
		}
	}
	return 0
}

// CellAt 像素座標 (圖塊左上角) 對應的字元格
func CellAt(x, y int) (col, row int) {
	return (x+HalfWidth)/cellWidth - colShift, (y+2*HalfHeight)/cellHeight - rowShift
}

// PixelAt 字元格對應到圖塊內框中的像素，CellAt 的反向
func PixelAt(col, row int) (x, y int) {
	return (col+colShift)*cellWidth + 4, (row + rowShift) * cellHeight
}

// Terminal 以 tcell.Screen 實作 Renderer 與 InputSource
type Terminal struct {
	screen tcell.Screen
	status string

	mu           sync.Mutex
	nextX, nextY int
	pressed      bool // 左鍵目前按著
	nextClick    bool
	nextScroll   Scroll

	x, y   int
	click  bool
	scroll Scroll

	done      chan struct{}
	closeOnce sync.Once
	finiOnce  sync.Once
	wg        sync.WaitGroup
}

// NewTerminal 初始化 screen 並開始讀取事件
func NewTerminal(screen tcell.Screen) (*Terminal, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("init terminal: %w", err)
	}
	screen.EnableMouse()
	screen.HideCursor()
	screen.Clear()

	t := &Terminal{
		screen: screen,
		done:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.eventLoop()
	return t, nil
}

// Done is closed when the player asks to quit.
func (t *Terminal) Done() <-chan struct{} { return t.done }

// Close 結束 screen 並等待事件 goroutine 退出；可以重複呼叫
func (t *Terminal) Close() {
	t.quit()
	t.finiOnce.Do(t.screen.Fini)
	t.wg.Wait()
}

func (t *Terminal) quit() {
	t.closeOnce.Do(func() { close(t.done) })
}

func (t *Terminal) eventLoop() {
	defer t.wg.Done()
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			return
		}
		t.handle(ev)
	}
}

func (t *Terminal) handle(ev tcell.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyUp:
			t.nextScroll.Up = true
		case tcell.KeyDown:
			t.nextScroll.Down = true
		case tcell.KeyLeft:
			t.nextScroll.Left = true
		case tcell.KeyRight:
			t.nextScroll.Right = true
		case tcell.KeyEscape, tcell.KeyCtrlC:
			t.quit()
		case tcell.KeyRune:
			if ev.Rune() == 'q' {
				t.quit()
			}
		}
	case *tcell.EventMouse:
		col, row := ev.Position()
		t.nextX, t.nextY = PixelAt(col, row)
		down := ev.Buttons()&tcell.Button1 != 0
		// 放開左鍵才算一次點擊
		if t.pressed && !down {
			t.nextClick = true
		}
		t.pressed = down
	case *tcell.EventResize:
		t.screen.Sync()
	}
}

// ============================================================================
// InputSource
// ============================================================================

func (t *Terminal) Poll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.x, t.y = t.nextX, t.nextY
	t.click, t.nextClick = t.nextClick, false
	t.scroll, t.nextScroll = t.nextScroll, Scroll{}
}

func (t *Terminal) Pointer() (x, y int) { return t.x, t.y }

func (t *Terminal) PrimaryClicked() bool { return t.click }

func (t *Terminal) ScrollKeys() Scroll { return t.scroll }

// ============================================================================
// Renderer
// ============================================================================

func (t *Terminal) DrawTile(tile, x, y int) {
	if tile >= 0 && tile < TerrainBase {
		y -= machineDrop
	}
	col, row := CellAt(x, y)
	if tile >= HighlightBase {
		mainc, combc, style, _ := t.screen.GetContent(col, row)
		t.screen.SetContent(col, row, mainc, combc, style.Reverse(true))
		return
	}
	g := Glyph(tile)
	if g == 0 {
		return
	}
	style, ok := terrainStyles[g]
	if !ok {
		style = machineStyle
	}
	t.screen.SetContent(col, row, g, nil, style)
}

func (t *Terminal) RequestFullRedraw() { t.screen.Clear() }

func (t *Terminal) ShowStatus(status string) { t.status = status }

func (t *Terminal) Present() {
	w, h := t.screen.Size()
	row := h - 1
	runes := []rune(t.status)
	for col := 0; col < w; col++ {
		r := ' '
		if col < len(runes) {
			r = runes[col]
		}
		t.screen.SetContent(col, row, r, nil, statusStyle)
	}
	t.screen.Show()
}
