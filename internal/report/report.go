package report

// ============================================================================
// 職責說明：
// 1. 將 headless 執行結束時的世界狀態整理成 Report
// 2. 使用原子性寫入（temp file + rename）防止損壞
// 3. 載入時驗證 schema 版本相容性（`roadcrew status --report`）
// ============================================================================

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ChuLiYu/roadcrew/internal/machine"
	"github.com/ChuLiYu/roadcrew/internal/world"
	"github.com/ChuLiYu/roadcrew/pkg/types"
)

// SchemaVersion is written into every report.
const SchemaVersion = 1

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrCorruptedReport     = errors.New("report file is corrupted")
	ErrIncompatibleVersion = errors.New("report schema version is incompatible")
	ErrReportNotFound      = errors.New("report file not found")
)

// ============================================================================
// 資料結構定義
// ============================================================================

// Report 一次執行結束時的世界摘要
type Report struct {
	SchemaVer   int            `json:"schema_version"`
	Session     string         `json:"session,omitempty"` // 與 journal 相同的 session id
	Seed        int64          `json:"seed"`
	Ticks       uint64         `json:"ticks"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Variants    map[string]int `json:"variants"` // 每種地形的格數
	Heights     map[int]int    `json:"heights"`  // 角點高度分佈
	Pending     []JobEntry     `json:"pending"`
	Machines    []MachineEntry `json:"machines"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// JobEntry is a queued job.
type JobEntry struct {
	Kind  string `json:"kind"`
	I     int    `json:"i"`
	J     int    `json:"j"`
	Param int    `json:"param"`
	Seq   uint64 `json:"seq"`
}

// MachineEntry is the final state of one machine.
type MachineEntry struct {
	ID        int    `json:"id"`
	Archetype string `json:"archetype"`
	I         int    `json:"i"`
	J         int    `json:"j"`
	Facing    string `json:"facing"`
	Cargo     string `json:"cargo"`
	Job       string `json:"job,omitempty"`
}

// Meta 不屬於世界本身、但需要寫入報告的資訊
type Meta struct {
	Session string
	Seed    int64
	Ticks   uint64
}

// Build 從 grid 與 fleet 建立報告；必須在兩次 tick 之間呼叫
func Build(g *world.Grid, f *machine.Fleet, meta Meta) Report {
	w, h := g.Size()
	r := Report{
		SchemaVer:   SchemaVersion,
		Session:     meta.Session,
		Seed:        meta.Seed,
		Ticks:       meta.Ticks,
		Width:       w,
		Height:      h,
		Variants:    make(map[string]int),
		Heights:     g.Mesh().Histogram(),
		Pending:     make([]JobEntry, 0, g.Jobs().Len()),
		Machines:    make([]MachineEntry, 0, f.Len()),
		GeneratedAt: time.Now().UTC(),
	}

	for v, n := range g.CountVariants() {
		r.Variants[v.String()] = n
	}
	for _, job := range g.Jobs().Jobs() {
		r.Pending = append(r.Pending, JobEntry{
			Kind: job.Kind.String(), I: job.I, J: job.J, Param: job.Param, Seq: job.Seq,
		})
	}
	for _, m := range f.Machines() {
		i, j := m.Pos()
		e := MachineEntry{
			ID:        int(m.ID()),
			Archetype: m.Archetype().String(),
			I:         i,
			J:         j,
			Facing:    m.Facing().String(),
			Cargo:     m.Cargo().String(),
		}
		if job := m.Job(); job != nil {
			e.Job = job.String()
		}
		r.Machines = append(r.Machines, e)
	}
	sort.Slice(r.Machines, func(a, b int) bool { return r.Machines[a].ID < r.Machines[b].ID })
	return r
}

// Count returns the number of cells of variant v.
func (r Report) Count(v types.Variant) int {
	return r.Variants[v.String()]
}

// ============================================================================
// 檔案操作
// ============================================================================

// Writer 報告檔案管理器
type Writer struct {
	path string     // 報告檔案路徑
	mu   sync.Mutex // 保護檔案操作
}

// NewWriter 建立報告管理器實例
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Write 原子性寫入報告
//
// 流程：
// 1. 寫入臨時檔案（.tmp）
// 2. 使用 os.Rename 原子性替換原始檔案
func (w *Writer) Write(r Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	r.SchemaVer = SchemaVersion

	// 帶縮排，方便人工閱讀
	jsonBytes, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	tmpPath := w.path + ".tmp"
	if err := os.WriteFile(tmpPath, jsonBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write temp report: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		// 重新命名失敗，清理臨時檔案
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename report: %w", err)
	}
	return nil
}

// Load 載入報告
//
// 行為：
//   - 檔案不存在時回傳 ErrReportNotFound
//   - 無法解析時回傳 ErrCorruptedReport
//   - 版本不符時回傳 ErrIncompatibleVersion
func (w *Writer) Load() (Report, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var r Report
	jsonBytes, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, fmt.Errorf("%w: %s", ErrReportNotFound, w.path)
		}
		return r, fmt.Errorf("failed to read report: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, &r); err != nil {
		return r, fmt.Errorf("%w: %v", ErrCorruptedReport, err)
	}
	if r.SchemaVer != SchemaVersion {
		return r, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, r.SchemaVer, SchemaVersion)
	}
	if r.Variants == nil {
		r.Variants = make(map[string]int)
	}
	return r, nil
}

// Exists 檢查報告檔案是否存在
func (w *Writer) Exists() bool {
	_, err := os.Stat(w.path)
	return err == nil
}

// Path returns the report file path.
func (w *Writer) Path() string {
	return w.path
}
