// ============================================================================
// Roadcrew Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集並暴露模擬運行指標，支持 Prometheus 抓取
//
// 指標分類:
//
//   1. 任務計數器 (CounterVec, label: kind)：
//      - roadcrew_jobs_issued_total: 玩家點擊產生的任務
//      - roadcrew_jobs_emitted_total: 機器自己產生的任務（WAIT、ROLL、LEVEL）
//      - roadcrew_jobs_claimed_total: 被機器領取的任務
//      - roadcrew_jobs_completed_total: 完成的任務
//      - roadcrew_jobs_requeued_total: 放回佇列的任務
//
//   2. 地形 (CounterVec, labels: from, to)：
//      - roadcrew_terrain_transforms_total
//
//   3. Tick：
//      - roadcrew_ticks_total (Counter)
//      - roadcrew_tick_duration_seconds (Histogram)
//
//   4. 狀態 (Gauge)：
//      - roadcrew_jobs_pending: 佇列中的任務數
//      - roadcrew_machines_busy: 持有任務的機器數
//
// Prometheus 查詢示例:
//
//   # 每分鐘鋪好的道路
//   rate(roadcrew_terrain_transforms_total{to="Road"}[1m])
//
//   # 任務積壓
//   roadcrew_jobs_pending
//
// HTTP 端點:
//   /metrics，預設端口 9090
//
// ============================================================================

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ChuLiYu/roadcrew/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roadcrew"

// Collector Prometheus 指標收集器
type Collector struct {
	// 任務相關指標
	jobsIssued    *prometheus.CounterVec
	jobsEmitted   *prometheus.CounterVec
	jobsClaimed   *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobsRequeued  *prometheus.CounterVec

	// 地形
	transforms *prometheus.CounterVec

	// Tick
	ticks        prometheus.Counter
	tickDuration prometheus.Histogram

	// 狀態指標
	jobsPending  prometheus.Gauge
	machinesBusy prometheus.Gauge
}

func newJobCounter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, []string{"kind"})
}

// NewCollector 創建指標收集器並註冊到 reg
//
// 參數：
//   - reg: 註冊目標，nil 時使用 prometheus.DefaultRegisterer
//
// 同一個 Registerer 只能建立一個 Collector，重複註冊會 panic。
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		jobsIssued:    newJobCounter("jobs_issued_total", "Jobs created from player clicks"),
		jobsEmitted:   newJobCounter("jobs_emitted_total", "Jobs created by machines"),
		jobsClaimed:   newJobCounter("jobs_claimed_total", "Jobs claimed by machines"),
		jobsCompleted: newJobCounter("jobs_completed_total", "Jobs finished and released"),
		jobsRequeued:  newJobCounter("jobs_requeued_total", "Jobs put back on the queue"),
		transforms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terrain_transforms_total",
			Help:      "Terrain cell transformations",
		}, []string{"from", "to"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Simulation ticks executed",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent in one simulation tick",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		jobsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_pending",
			Help:      "Jobs waiting in the queue",
		}),
		machinesBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "machines_busy",
			Help:      "Machines currently holding a job",
		}),
	}

	// 註冊所有指標
	reg.MustRegister(
		c.jobsIssued,
		c.jobsEmitted,
		c.jobsClaimed,
		c.jobsCompleted,
		c.jobsRequeued,
		c.transforms,
		c.ticks,
		c.tickDuration,
		c.jobsPending,
		c.machinesBusy,
	)

	return c
}

// RecordIssued 記錄玩家產生的任務
func (c *Collector) RecordIssued(kind types.JobKind) {
	c.jobsIssued.WithLabelValues(kind.String()).Inc()
}

// RecordEmitted 記錄機器產生的任務
func (c *Collector) RecordEmitted(kind types.JobKind) {
	c.jobsEmitted.WithLabelValues(kind.String()).Inc()
}

// RecordClaimed 記錄任務被領取
func (c *Collector) RecordClaimed(kind types.JobKind) {
	c.jobsClaimed.WithLabelValues(kind.String()).Inc()
}

// RecordCompleted 記錄任務完成
func (c *Collector) RecordCompleted(kind types.JobKind) {
	c.jobsCompleted.WithLabelValues(kind.String()).Inc()
}

// RecordRequeued 記錄任務放回佇列
func (c *Collector) RecordRequeued(kind types.JobKind) {
	c.jobsRequeued.WithLabelValues(kind.String()).Inc()
}

// RecordTransform 記錄地形轉換
func (c *Collector) RecordTransform(from, to types.Variant) {
	c.transforms.WithLabelValues(from.String(), to.String()).Inc()
}

// RecordTick 記錄一個 tick 與其耗時
func (c *Collector) RecordTick(d time.Duration) {
	c.ticks.Inc()
	c.tickDuration.Observe(d.Seconds())
}

// UpdateWorldStats 更新佇列與機器狀態
func (c *Collector) UpdateWorldStats(pending, busy int) {
	c.jobsPending.Set(float64(pending))
	c.machinesBusy.Set(float64(busy))
}

// Serve 在 addr 上提供 /metrics，直到 ctx 結束
//
// 參數：
//   - ctx: 取消時關閉伺服器
//   - addr: 監聽位址，例如 ":9090"
//   - g: 指標來源，nil 時使用 prometheus.DefaultGatherer
//
// 返回值：
//   - error: 監聽失敗的錯誤；正常關閉回傳 nil
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	}
}

// Addr formats a listen address for port.
func Addr(port int) string {
	return fmt.Sprintf(":%d", port)
}
