package worker

import (
	"time"

	"github.com/ChuLiYu/roadcrew/internal/controller"
	"github.com/ChuLiYu/roadcrew/internal/report"
	"github.com/ChuLiYu/roadcrew/internal/scenario"
)

// Task 代表一次獨立的模擬執行
type Task struct {
	ID       string             // 執行識別碼
	Config   controller.Config  // 地圖、種子與機器配置
	Scenario *scenario.Scenario // 要驅動的腳本
	Timeout  time.Duration      // 執行超時時間，0 表示不限
}

// Result 代表一次模擬的執行結果
type Result struct {
	ID       string
	Seed     int64
	Outcome  scenario.Result // 腳本執行結果
	Report   report.Report   // 結束時的世界報告
	Success  bool            // 執行是否成功
	Error    error           // 錯誤訊息（如果有）
	Duration time.Duration   // 實際執行時間
}
