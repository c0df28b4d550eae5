// ============================================================================
// Roadcrew 控制器 - 模擬 tick 驅動
// ============================================================================
//
// Package: internal/controller
// 文件: controller.go
// 功能: 擁有 Grid 與 Fleet，依固定順序推進每一個 tick
//
// 每個 tick:
//   1. 輸入：取樣一次滑鼠與方向鍵，點擊轉成任務，方向鍵捲動視窗
//   2. 檢查：Grid 以列優先順序呼叫每一台機器
//   3. 重繪：有 Renderer 時畫一幀
//
// 旁路 (都可以是 nil):
//   - metrics.Collector: 任務與地形計數、tick 耗時
//   - journal.Journal: 任務事件日誌
//   - display.InputSource / display.Renderer: 終端機或測試替身
//
// 並發安全:
//   - 世界只在持有 mu 時被修改；Run 是唯一推進 tick 的 goroutine
//   - Stats / GetStatus / Report 在兩個 tick 之間讀取一致的狀態
//   - stopCh 用於優雅關閉 Run 循環
//
// ============================================================================

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChuLiYu/roadcrew/internal/display"
	"github.com/ChuLiYu/roadcrew/internal/journal"
	"github.com/ChuLiYu/roadcrew/internal/machine"
	"github.com/ChuLiYu/roadcrew/internal/metrics"
	"github.com/ChuLiYu/roadcrew/internal/report"
	"github.com/ChuLiYu/roadcrew/internal/world"
	"github.com/ChuLiYu/roadcrew/pkg/types"
)

var log = slog.Default()

// ErrStopped is returned by Run after Stop.
var ErrStopped = errors.New("simulation stopped")

// ============================================================================
// 資料結構定義
// ============================================================================

// Config 模擬配置
type Config struct {
	World        world.Options // 地圖大小與視窗
	Seed         int64         // 地形與機器朝向的亂數種子
	Crew         machine.Crew  // 各機種數量
	TickInterval time.Duration // Run 的 tick 間隔，0 表示不等待
	MaxTicks     uint64        // Run 最多執行的 tick 數，0 表示不限
}

// Deps 可選的外部協作者
type Deps struct {
	Metrics  *metrics.Collector
	Journal  *journal.Journal
	Input    display.InputSource
	Renderer display.Renderer
}

// Stats 兩個 tick 之間的世界摘要，也是 scenario 停止條件的環境
type Stats struct {
	Tick     int
	Pending  int // 佇列中的任務
	Busy     int // 持有任務的機器
	Machines int

	Issued     int // 玩家產生的任務
	Emitted    int // 機器產生的任務
	Claimed    int
	Completed  int
	Requeued   int
	Transforms int

	Grass       int
	Dirt        int
	Road        int
	AsphaltPile int
	DirtPile    int
	Depot       int
}

// Idle reports whether nothing is queued and no machine holds a job.
func (s Stats) Idle() bool { return s.Pending == 0 && s.Busy == 0 }

// Simulation 模擬控制器
type Simulation struct {
	mu       sync.Mutex // 保護世界與計數
	config   Config
	grid     *world.Grid
	fleet    *machine.Fleet
	metrics  *metrics.Collector
	journal  *journal.Journal
	session  string
	input    display.InputSource
	renderer display.Renderer

	tick    uint64
	counts  Stats // 只使用事件計數欄位
	pick    display.Picker
	stopCh  chan struct{}
	stopped bool
	running atomic.Bool
}

// ============================================================================
// 核心方法實作
// ============================================================================

// New 建立模擬：生成地形、放置機器並接上觀察者
//
// 參數：
//   - config: 模擬配置
//   - deps: 可選的 metrics、journal、輸入與渲染
//
// 返回值：
//   - *Simulation: 模擬實例
//   - error: 機器生成失敗的錯誤
func New(config Config, deps Deps) (*Simulation, error) {
	rng := rand.New(rand.NewSource(config.Seed))

	grid := world.NewGrid(config.World)
	grid.Populate(rng)

	fleet := machine.NewFleet(grid, rng)
	if err := fleet.SpawnCrew(config.Crew); err != nil {
		return nil, fmt.Errorf("failed to spawn crew: %w", err)
	}

	s := &Simulation{
		config:   config,
		grid:     grid,
		fleet:    fleet,
		metrics:  deps.Metrics,
		journal:  deps.Journal,
		input:    deps.Input,
		renderer: deps.Renderer,
		stopCh:   make(chan struct{}),
	}
	if s.journal != nil {
		s.session = s.journal.Session()
	}
	fleet.SetObserver(s)
	grid.OnTransform(s.onTransform)

	w, h := grid.Size()
	log.Info("Simulation created",
		"width", w,
		"height", h,
		"seed", config.Seed,
		"machines", fleet.Len())
	return s, nil
}

// Tick 推進一個 tick：輸入 → 機器檢查 → 重繪
func (s *Simulation) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.tick++

	s.applyInput()
	s.fleet.Tick()
	if s.renderer != nil {
		mx, my := -1, -1
		if s.input != nil {
			mx, my = s.input.Pointer()
		}
		s.pick = display.DrawFrame(s.renderer, s.grid, s.fleet, mx, my)
	}

	if s.metrics != nil {
		s.metrics.RecordTick(time.Since(start))
		s.metrics.UpdateWorldStats(s.grid.Jobs().Len(), s.fleet.Busy())
	}
}

// applyInput 取樣輸入；呼叫者持有 mu
func (s *Simulation) applyInput() {
	if s.input == nil {
		return
	}
	s.input.Poll()

	if s.input.PrimaryClicked() {
		x, y := s.input.Pointer()
		if pick := display.PickTile(s.grid, x, y); pick.Found() {
			s.issueLocked(pick.I, pick.J)
		}
	}
	if dx, dy := s.input.ScrollKeys().Delta(); dx != 0 || dy != 0 {
		s.grid.Scroll(dx, dy)
	}
}

// Run 以 TickInterval 推進 tick，直到 ctx 結束、Stop 或達到 MaxTicks
//
// 返回值：
//   - error: Stop 之後回傳 ErrStopped；ctx 結束或達到上限回傳 nil
func (s *Simulation) Run(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	log.Info("Simulation loop started",
		"interval", s.config.TickInterval,
		"max_ticks", s.config.MaxTicks)

	var tickC <-chan time.Time
	if s.config.TickInterval > 0 {
		ticker := time.NewTicker(s.config.TickInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		if tickC != nil {
			select {
			case <-ctx.Done():
				log.Info("Simulation loop stopped", "reason", ctx.Err())
				return nil
			case <-s.stopCh:
				return ErrStopped
			case <-tickC:
			}
		} else {
			select {
			case <-ctx.Done():
				log.Info("Simulation loop stopped", "reason", ctx.Err())
				return nil
			case <-s.stopCh:
				return ErrStopped
			default:
			}
		}

		s.Tick()
		if s.config.MaxTicks > 0 && s.Ticks() >= s.config.MaxTicks {
			log.Info("Simulation reached tick limit", "ticks", s.config.MaxTicks)
			return nil
		}
	}
}

// Running reports whether Run is currently looping.
func (s *Simulation) Running() bool { return s.running.Load() }

// Stop 停止 Run 並關閉日誌；重複呼叫無作用
func (s *Simulation) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		log.Info("Simulation already stopped")
		return
	}
	s.stopped = true
	close(s.stopCh)
	j := s.journal
	s.journal = nil
	s.mu.Unlock()

	if j != nil {
		if err := j.Close(); err != nil {
			log.Error("Failed to close journal", "error", err)
		}
	}
	log.Info("Simulation stopped")
}

// ============================================================================
// 玩家操作
// ============================================================================

// Issue 對格子 (i,j) 產生玩家任務（與點擊相同的規則）
//
// 返回值：
//   - types.JobKind: 產生的任務種類
//   - bool: 該格是否產生任務
func (s *Simulation) Issue(i, j int) (types.JobKind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(i, j)
}

func (s *Simulation) issueLocked(i, j int) (types.JobKind, bool) {
	kind, ok := s.grid.Classify(i, j)
	if !ok {
		return 0, false
	}
	job := s.grid.Jobs().Add(kind, i, j, types.NoParam)
	s.counts.Issued++

	log.Debug("Job issued", "job", job.String(), "tick", s.tick)
	if s.metrics != nil {
		s.metrics.RecordIssued(kind)
	}
	s.appendEvent(journal.Event{Type: journal.EventIssued, Job: journal.NewJobRef(job)})
	return kind, true
}

// Scroll 捲動視窗
func (s *Simulation) Scroll(dx, dy int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grid.Scroll(dx, dy)
}

// ============================================================================
// 觀察者：machine.Observer 與地形轉換；呼叫時 mu 已被 Tick 持有
// ============================================================================

func (s *Simulation) JobClaimed(m *machine.Machine, job *types.Job) {
	s.counts.Claimed++
	if s.metrics != nil {
		s.metrics.RecordClaimed(job.Kind)
	}
	s.appendJobEvent(journal.EventClaimed, m, job)
}

func (s *Simulation) JobCompleted(m *machine.Machine, job *types.Job) {
	s.counts.Completed++
	if s.metrics != nil {
		s.metrics.RecordCompleted(job.Kind)
	}
	s.appendJobEvent(journal.EventCompleted, m, job)
}

func (s *Simulation) JobRequeued(m *machine.Machine, job *types.Job) {
	s.counts.Requeued++
	if s.metrics != nil {
		s.metrics.RecordRequeued(job.Kind)
	}
	s.appendJobEvent(journal.EventRequeued, m, job)
}

func (s *Simulation) JobEmitted(m *machine.Machine, job *types.Job) {
	s.counts.Emitted++
	if s.metrics != nil {
		s.metrics.RecordEmitted(job.Kind)
	}
	s.appendJobEvent(journal.EventEmitted, m, job)
}

func (s *Simulation) onTransform(i, j int, from, to types.Variant) {
	s.counts.Transforms++
	if s.metrics != nil {
		s.metrics.RecordTransform(from, to)
	}
	s.appendEvent(journal.Event{
		Type: journal.EventTransform,
		Cell: &journal.CellRef{I: i, J: j, From: from.String(), To: to.String()},
	})
}

func (s *Simulation) appendJobEvent(t journal.EventType, m *machine.Machine, job *types.Job) {
	s.appendEvent(journal.Event{
		Type:      t,
		Machine:   int(m.ID()),
		Archetype: m.Archetype().String(),
		Job:       journal.NewJobRef(job),
	})
}

// appendEvent 寫入日誌；失敗只記錄，不中斷 tick
func (s *Simulation) appendEvent(e journal.Event) {
	if s.journal == nil {
		return
	}
	e.Tick = s.tick
	if err := s.journal.Append(e); err != nil {
		log.Error("Failed to append journal event", "type", e.Type, "error", err)
	}
}

// ============================================================================
// 查詢
// ============================================================================

// Ticks returns the number of ticks executed.
func (s *Simulation) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Stats 取得目前的世界摘要
func (s *Simulation) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.counts
	st.Tick = int(s.tick)
	st.Pending = s.grid.Jobs().Len()
	st.Busy = s.fleet.Busy()
	st.Machines = s.fleet.Len()

	v := s.grid.CountVariants()
	st.Grass = v[types.Grass]
	st.Dirt = v[types.Dirt]
	st.Road = v[types.Road]
	st.AsphaltPile = v[types.AsphaltPile]
	st.DirtPile = v[types.DirtPile]
	st.Depot = v[types.Depot]
	return st
}

// GetStatus 取得狀態（給 CLI 與健康檢查顯示）
func (s *Simulation) GetStatus() map[string]interface{} {
	st := s.Stats()
	return map[string]interface{}{
		"tick":      st.Tick,
		"running":   s.Running(),
		"machines":  st.Machines,
		"busy":      st.Busy,
		"pending":   st.Pending,
		"issued":    st.Issued,
		"completed": st.Completed,
		"roads":     st.Road,
	}
}

// Report 建立目前世界的報告
func (s *Simulation) Report() report.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return report.Build(s.grid, s.fleet, report.Meta{
		Session: s.session,
		Seed:    s.config.Seed,
		Ticks:   s.tick,
	})
}

// Describe returns the status line of cell (i,j).
func (s *Simulation) Describe(i, j int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fleet.Describe(i, j)
}

// Selection returns the tile under the pointer in the last frame.
func (s *Simulation) Selection() display.Picker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pick
}

// Grid returns the world grid. Callers must not mutate it while Run is active.
func (s *Simulation) Grid() *world.Grid { return s.grid }

// Fleet returns the machine fleet. Callers must not mutate it while Run is active.
func (s *Simulation) Fleet() *machine.Fleet { return s.fleet }
