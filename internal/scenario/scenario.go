package scenario

// ============================================================================
// Scenario - 腳本化的玩家輸入
// 職責：
// 1. 從 YAML 載入在指定 tick 發生的點擊與捲動
// 2. 以 expr-lang 編譯停止條件，環境為 controller.Stats
// 3. 驅動 Simulation 直到條件成立、達到上限或 ctx 結束
// ============================================================================

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/ChuLiYu/roadcrew/internal/controller"
	"github.com/ChuLiYu/roadcrew/pkg/types"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// DefaultMaxTicks bounds a scenario without max_ticks.
const DefaultMaxTicks = 20000

var (
	ErrInvalidScenario = errors.New("invalid scenario")
	ErrTickLimit       = errors.New("scenario reached its tick limit")
)

// Step 在 Tick 之前套用的一個輸入
type Step struct {
	Tick   int    `yaml:"tick"`
	Click  []int  `yaml:"click,omitempty"`  // [i, j]
	Area   []int  `yaml:"area,omitempty"`   // [i0, j0, i1, j1]，每一格各點擊一次
	Scroll []int  `yaml:"scroll,omitempty"` // [dx, dy]
	Note   string `yaml:"note,omitempty"`
}

// Scenario 腳本
type Scenario struct {
	Name     string `yaml:"name"`
	Seed     *int64 `yaml:"seed,omitempty"`
	MaxTicks int    `yaml:"max_ticks"`
	Until    string `yaml:"until"`
	Steps    []Step `yaml:"steps"`

	program *vm.Program
}

// Result 執行結果
type Result struct {
	Ticks   int
	Reached bool // 停止條件是否成立
	Issued  map[types.JobKind]int
	Stats   controller.Stats
}

// Load 讀取並編譯腳本檔
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse 解析 YAML 並編譯停止條件
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := sc.compile(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) compile() error {
	if sc.MaxTicks <= 0 {
		sc.MaxTicks = DefaultMaxTicks
	}
	for n, st := range sc.Steps {
		if st.Tick < 0 {
			return fmt.Errorf("%w: step %d has negative tick", ErrInvalidScenario, n)
		}
		if st.Click != nil && len(st.Click) != 2 {
			return fmt.Errorf("%w: step %d click wants [i, j]", ErrInvalidScenario, n)
		}
		if st.Area != nil && len(st.Area) != 4 {
			return fmt.Errorf("%w: step %d area wants [i0, j0, i1, j1]", ErrInvalidScenario, n)
		}
		if st.Scroll != nil && len(st.Scroll) != 2 {
			return fmt.Errorf("%w: step %d scroll wants [dx, dy]", ErrInvalidScenario, n)
		}
	}
	sort.SliceStable(sc.Steps, func(a, b int) bool { return sc.Steps[a].Tick < sc.Steps[b].Tick })

	if sc.Until == "" {
		return nil
	}
	prog, err := expr.Compile(sc.Until, expr.Env(controller.Stats{}), expr.AsBool())
	if err != nil {
		return fmt.Errorf("%w: compile until %q: %v", ErrInvalidScenario, sc.Until, err)
	}
	sc.program = prog
	return nil
}

// Done 以 stats 評估停止條件；沒有條件時永遠為 false
func (sc *Scenario) Done(stats controller.Stats) (bool, error) {
	if sc.program == nil {
		return false, nil
	}
	out, err := vm.Run(sc.program, stats)
	if err != nil {
		return false, fmt.Errorf("evaluate until: %w", err)
	}
	done, _ := out.(bool)
	return done, nil
}

// Driver is the part of the simulation a scenario drives.
type Driver interface {
	Tick()
	Issue(i, j int) (types.JobKind, bool)
	Scroll(dx, dy int) bool
	Stats() controller.Stats
}

// Run 驅動模擬
//
// 流程（每個 tick）：
//  1. 套用 tick 等於目前 tick 數的所有步驟
//  2. 推進一個 tick
//  3. 評估停止條件
//
// 返回值：
//   - Result: 執行結果
//   - error: 條件評估失敗、ctx 結束；有停止條件卻達到上限時回傳 ErrTickLimit
func (sc *Scenario) Run(ctx context.Context, d Driver) (Result, error) {
	res := Result{Issued: make(map[types.JobKind]int)}
	next := 0
	start := d.Stats().Tick

	for n := 0; n < sc.MaxTicks; n++ {
		if err := ctx.Err(); err != nil {
			res.Stats = d.Stats()
			return res, err
		}

		for next < len(sc.Steps) && sc.Steps[next].Tick <= n {
			sc.apply(d, sc.Steps[next], res.Issued)
			next++
		}

		d.Tick()
		res.Ticks++

		stats := d.Stats()
		done, err := sc.Done(stats)
		if err != nil {
			res.Stats = stats
			return res, err
		}
		if done {
			res.Reached = true
			res.Stats = stats
			slog.Info("Scenario condition reached",
				"scenario", sc.Name,
				"tick", stats.Tick-start,
				"until", sc.Until)
			return res, nil
		}
	}

	res.Stats = d.Stats()
	if sc.program != nil {
		return res, fmt.Errorf("%w: %d ticks without %q", ErrTickLimit, sc.MaxTicks, sc.Until)
	}
	return res, nil
}

func (sc *Scenario) apply(d Driver, st Step, issued map[types.JobKind]int) {
	click := func(i, j int) {
		if kind, ok := d.Issue(i, j); ok {
			issued[kind]++
		}
	}
	if st.Click != nil {
		click(st.Click[0], st.Click[1])
	}
	if st.Area != nil {
		i0, i1 := order(st.Area[0], st.Area[2])
		j0, j1 := order(st.Area[1], st.Area[3])
		for j := j0; j <= j1; j++ {
			for i := i0; i <= i1; i++ {
				click(i, j)
			}
		}
	}
	if st.Scroll != nil {
		d.Scroll(st.Scroll[0], st.Scroll[1])
	}
	if st.Note != "" {
		slog.Debug("Scenario step", "scenario", sc.Name, "tick", st.Tick, "note", st.Note)
	}
}

func order(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}
