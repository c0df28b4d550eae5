package display

// Draw is one recorded DrawTile call.
type Draw struct {
	Tile, X, Y int
}

// Recorder 記錄所有繪圖請求的 Renderer，用於 headless 執行與測試
type Recorder struct {
	Frames      int    // Present 次數
	FullRedraws int    // RequestFullRedraw 次數
	Status      string // 最後一次 ShowStatus
	Draws       []Draw // 目前這一幀的繪圖
	Last        []Draw // 上一個完整幀
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) DrawTile(tile, x, y int) {
	r.Draws = append(r.Draws, Draw{Tile: tile, X: x, Y: y})
}

func (r *Recorder) RequestFullRedraw() { r.FullRedraws++ }

func (r *Recorder) ShowStatus(status string) { r.Status = status }

func (r *Recorder) Present() {
	r.Frames++
	r.Last = r.Draws
	r.Draws = nil
}

// Count returns how many draws of the last frame used tile ids in [lo,hi).
func (r *Recorder) Count(lo, hi int) int {
	n := 0
	for _, d := range r.Last {
		if d.Tile >= lo && d.Tile < hi {
			n++
		}
	}
	return n
}

// ============================================================================
// 腳本輸入
// ============================================================================

// ScriptedInput 以程式排入的輸入，Poll 時生效一次
type ScriptedInput struct {
	x, y   int
	click  bool
	scroll Scroll

	nextX, nextY int
	nextClick    bool
	nextScroll   Scroll
}

// Move sets the pointer position seen after the next Poll.
func (s *ScriptedInput) Move(x, y int) {
	s.nextX, s.nextY = x, y
}

// Click moves the pointer and presses the primary button once.
func (s *ScriptedInput) Click(x, y int) {
	s.Move(x, y)
	s.nextClick = true
}

// Press queues one scroll step.
func (s *ScriptedInput) Press(sc Scroll) {
	s.nextScroll = sc
}

func (s *ScriptedInput) Poll() {
	s.x, s.y = s.nextX, s.nextY
	s.click, s.nextClick = s.nextClick, false
	s.scroll, s.nextScroll = s.nextScroll, Scroll{}
}

func (s *ScriptedInput) Pointer() (x, y int) { return s.x, s.y }

func (s *ScriptedInput) PrimaryClicked() bool { return s.click }

func (s *ScriptedInput) ScrollKeys() Scroll { return s.scroll }
