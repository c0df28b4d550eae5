// ============================================================================
// Roadcrew CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides user-friendly command line interface based on Cobra framework
//
// Command Structure:
//   roadcrew                       # Root command
//   ├── run                        # Headless simulation
//   │   ├── --scenario, -s        # Drive the run with a scenario file
//   │   ├── --ticks               # Tick count when no scenario is given
//   │   └── --runs, --workers     # Batch of independent runs
//   ├── play                       # Interactive terminal session
//   ├── status                     # Config, last report and health
//   ├── journal                    # Summarize or dump the job journal
//   ├── --config, -c               # Config file (default: configs/default.yaml)
//   └── --log-level                # debug, info, warn, error
//
// Configuration Management:
//   Uses YAML format config file, keys left out keep DefaultConfig values:
//   - world: map size, viewport and seed
//   - crew: machines of each archetype
//   - sim: tick interval, tick limit, batch workers
//   - metrics / health: Prometheus and gRPC health endpoints
//   - journal / report: output files
//
// run Command:
//   1. Load config file (and scenario)
//   2. Start Metrics HTTP server and health server (if enabled)
//   3. Drive the simulation until the scenario ends or the tick limit
//   4. Write the report and print a summary
//
//   Examples:
//     ./roadcrew run --ticks 5000
//     ./roadcrew run -s configs/scenarios/first-road.yaml
//     ./roadcrew run --runs 8 --workers 4 --ticks 3000
//
// Signal Handling:
//   run and play capture SIGINT and SIGTERM, stop the tick loop and still
//   write the journal and report before exiting.
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ChuLiYu/roadcrew/internal/controller"
	"github.com/ChuLiYu/roadcrew/internal/display"
	"github.com/ChuLiYu/roadcrew/internal/health"
	"github.com/ChuLiYu/roadcrew/internal/journal"
	"github.com/ChuLiYu/roadcrew/internal/metrics"
	"github.com/ChuLiYu/roadcrew/internal/report"
	"github.com/ChuLiYu/roadcrew/internal/scenario"
	"github.com/ChuLiYu/roadcrew/internal/worker"
	"github.com/gdamore/tcell"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var configFile string

func BuildCLI() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "roadcrew",
		Short: "Roadcrew: a construction crew that builds roads on tile terrain",
		Long: `Roadcrew simulates earth-moving machines on an isometric tile map:
- click a tile to issue a job (clear, fill, cut, pave)
- diggers, bulldozers, rollers, graders and haulers claim and finish jobs
- headless runs are driven by scenario files
- job journal, end-of-run report, Prometheus metrics and gRPC health`,
		Version:      "0.1.0",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd.ErrOrStderr(), logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildPlayCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildJournalCommand())

	return rootCmd
}

func setupLogging(w io.Writer, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// commandContext returns a context canceled on SIGINT or SIGTERM
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// ============================================================================
// 背景服務（metrics、health）
// ============================================================================

// activity implements health.Prober for loops the controller does not own
type activity struct{ atomic.Bool }

func (a *activity) Running() bool { return a.Load() }

type services struct {
	metrics *metrics.Collector
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// startServices starts the endpoints enabled in cfg; p may be nil to skip health
func startServices(ctx context.Context, cfg *Config, p health.Prober) *services {
	ctx, cancel := context.WithCancel(ctx)
	s := &services{cancel: cancel}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		s.metrics = metrics.NewCollector(reg)
		addr := metrics.Addr(cfg.Metrics.Port)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := metrics.Serve(ctx, addr, reg); err != nil {
				slog.Error("Metrics server error", "error", err)
			}
		}()
		slog.Info("Metrics server started", "url", fmt.Sprintf("http://localhost:%d/metrics", cfg.Metrics.Port))
	}

	if cfg.Health.Enabled && p != nil {
		hs := health.NewServer(p, 0)
		addr := metrics.Addr(cfg.Health.Port)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := hs.Serve(ctx, addr); err != nil {
				slog.Error("Health server error", "error", err)
			}
		}()
	}
	return s
}

func (s *services) stop() {
	s.cancel()
	s.wg.Wait()
}

// openJournal returns nil when the config has no journal path
func openJournal(cfg *Config) (*journal.Journal, error) {
	if cfg.Journal.Path == "" {
		return nil, nil
	}
	j, err := journal.Open(cfg.Journal.Path, cfg.Journal.BufferSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return j, nil
}

func writeReport(path string, rep report.Report) error {
	if path == "" {
		return nil
	}
	if err := report.NewWriter(path).Write(rep); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	slog.Info("Report written", "path", path)
	return nil
}

// ============================================================================
// run
// ============================================================================

func buildRunCommand() *cobra.Command {
	var scenarioFile string
	var ticks uint64
	var runs int
	var workers int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a headless simulation",
		Long:  "Run the simulation without a terminal, driven by a scenario file or for a fixed number of ticks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("ticks") {
				cfg.Sim.MaxTicks = ticks
			}
			if cmd.Flags().Changed("workers") {
				cfg.Sim.Workers = workers
			}

			var sc *scenario.Scenario
			if scenarioFile != "" {
				if sc, err = scenario.Load(scenarioFile); err != nil {
					return err
				}
			}

			ctx, stop := commandContext(cmd)
			defer stop()

			if runs > 1 {
				return runBatch(ctx, cmd.OutOrStdout(), cfg, sc, runs)
			}
			return runSimulation(ctx, cmd.OutOrStdout(), cfg, sc)
		},
	}

	cmd.Flags().StringVarP(&scenarioFile, "scenario", "s", "", "scenario YAML file")
	cmd.Flags().Uint64Var(&ticks, "ticks", 0, "ticks to run without a scenario (overrides sim.max_ticks)")
	cmd.Flags().IntVar(&runs, "runs", 1, "independent runs with consecutive seeds")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (overrides sim.workers)")

	return cmd
}

func runSimulation(ctx context.Context, out io.Writer, cfg *Config, sc *scenario.Scenario) error {
	simCfg := cfg.simConfig()
	simCfg.TickInterval = 0
	if sc != nil && sc.Seed != nil {
		simCfg.Seed = *sc.Seed
	}

	var active activity
	svc := startServices(ctx, cfg, &active)
	defer svc.stop()

	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	sim, err := controller.New(simCfg, controller.Deps{Metrics: svc.metrics, Journal: j})
	if err != nil {
		if j != nil {
			j.Close()
		}
		return fmt.Errorf("failed to create simulation: %w", err)
	}

	slog.Info("Starting headless run", "seed", simCfg.Seed, "max_ticks", simCfg.MaxTicks)
	active.Store(true)
	var res *scenario.Result
	if sc != nil {
		r, runErr := sc.Run(ctx, sim)
		res, err = &r, runErr
	} else {
		err = sim.Run(ctx)
	}
	active.Store(false)

	rep := sim.Report()
	sim.Stop()

	if errors.Is(err, context.Canceled) {
		slog.Info("Received shutdown signal, run interrupted")
		err = nil
	}
	if werr := writeReport(cfg.Report.Path, rep); werr != nil {
		return werr
	}
	printRun(out, rep, res, cfg.Report.Path)
	return err
}

// runBatch runs independent simulations through the worker pool
func runBatch(ctx context.Context, out io.Writer, cfg *Config, sc *scenario.Scenario, runs int) error {
	base := cfg.World.Seed
	if sc != nil && sc.Seed != nil {
		base = *sc.Seed
	}
	if sc == nil {
		if cfg.Sim.MaxTicks == 0 {
			return errors.New("batch runs need a scenario or a tick limit")
		}
		sc = &scenario.Scenario{Name: "ticks", MaxTicks: int(cfg.Sim.MaxTicks)}
	}

	svc := startServices(ctx, cfg, nil)
	defer svc.stop()

	tasks := make([]worker.Task, runs)
	for k := range tasks {
		simCfg := cfg.simConfig()
		simCfg.Seed = base + int64(k)
		tasks[k] = worker.Task{
			ID:       fmt.Sprintf("run-%03d", k),
			Config:   simCfg,
			Scenario: sc,
		}
	}

	slog.Info("Starting batch", "runs", runs, "workers", cfg.Sim.Workers, "scenario", sc.Name)
	results, err := worker.RunAll(tasks, cfg.Sim.Workers, svc.metrics)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	var failed []error
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSEED\tTICKS\tREACHED\tROAD\tPENDING\tDURATION\tRESULT")
	for _, r := range results {
		status := "ok"
		if r.Error != nil {
			status = r.Error.Error()
			failed = append(failed, fmt.Errorf("%s: %w", r.ID, r.Error))
		}
		if r.Outcome.Ticks > 0 {
			if werr := writeReport(reportPath(cfg.Report.Path, r.ID), r.Report); werr != nil {
				failed = append(failed, werr)
			}
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%t\t%d\t%d\t%s\t%s\n",
			r.ID, r.Seed, r.Outcome.Ticks, r.Outcome.Reached,
			r.Outcome.Stats.Road, r.Outcome.Stats.Pending,
			r.Duration.Round(time.Millisecond), status)
	}
	tw.Flush()
	return errors.Join(failed...)
}

// ============================================================================
// play
// ============================================================================

func buildPlayCommand() *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Start an interactive terminal session",
		Long: `Draw the map in the terminal. Click a tile to issue a job,
arrow keys scroll the view, q or Esc quits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, stop := commandContext(cmd)
			defer stop()
			return playSimulation(ctx, cmd.OutOrStdout(), cfg, logFile)
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file while the terminal is in use")
	return cmd
}

// redirectLogs keeps log lines off the terminal; the returned func restores the previous logger
func redirectLogs(path string) (func(), error) {
	prev := slog.Default()
	var w io.Writer = io.Discard
	var f *os.File
	if path != "" {
		var err error
		if f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, nil)))
	return func() {
		slog.SetDefault(prev)
		if f != nil {
			f.Close()
		}
	}, nil
}

func playSimulation(ctx context.Context, out io.Writer, cfg *Config, logFile string) error {
	restore, err := redirectLogs(logFile)
	if err != nil {
		return err
	}
	defer restore()

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to open terminal: %w", err)
	}
	term, err := display.NewTerminal(screen)
	if err != nil {
		return err
	}
	defer term.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-term.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	simCfg := cfg.simConfig()
	simCfg.MaxTicks = 0

	var active activity
	svc := startServices(ctx, cfg, &active)
	defer svc.stop()

	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	sim, err := controller.New(simCfg, controller.Deps{
		Metrics:  svc.metrics,
		Journal:  j,
		Input:    term,
		Renderer: term,
	})
	if err != nil {
		if j != nil {
			j.Close()
		}
		return fmt.Errorf("failed to create simulation: %w", err)
	}

	active.Store(true)
	err = sim.Run(ctx)
	active.Store(false)
	rep := sim.Report()
	sim.Stop()
	term.Close()

	if werr := writeReport(cfg.Report.Path, rep); werr != nil {
		return werr
	}
	printRun(out, rep, nil, cfg.Report.Path)
	return err
}

// ============================================================================
// status
// ============================================================================

func buildStatusCommand() *cobra.Command {
	var addr string
	var reportFile string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		Long:  "Display configuration, the last run report and the health of a running simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.Context(), cmd.OutOrStdout(), addr, reportFile)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "health endpoint to query, e.g. localhost:50051")
	cmd.Flags().StringVar(&reportFile, "report", "", "report file (default: report.path from config)")
	return cmd
}

func showStatus(ctx context.Context, out io.Writer, addr, reportFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Fprintln(out, "\n╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║              Roadcrew Simulation Status                   ║")
	fmt.Fprintln(out, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "📋 Configuration:")
	fmt.Fprintf(out, "  ├─ Config File:   %s\n", configFile)
	fmt.Fprintf(out, "  ├─ World:         %dx%d (view %dx%d), seed %d\n",
		cfg.World.Width, cfg.World.Height, cfg.World.ViewportWidth, cfg.World.ViewportHeight, cfg.World.Seed)
	fmt.Fprintf(out, "  ├─ Crew:          %d diggers, %d bulldozers, %d rollers, %d graders, %d haulers\n",
		cfg.Crew.Diggers, cfg.Crew.Bulldozers, cfg.Crew.Rollers, cfg.Crew.Graders, cfg.Crew.Haulers)
	fmt.Fprintf(out, "  └─ Tick Interval: %s\n", cfg.Sim.TickInterval)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "💾 Storage:")
	fmt.Fprintf(out, "  ├─ Journal: %s\n", orNone(cfg.Journal.Path))
	fmt.Fprintf(out, "  └─ Report:  %s\n", orNone(cfg.Report.Path))
	fmt.Fprintln(out)

	if reportFile == "" {
		reportFile = cfg.Report.Path
	}
	fmt.Fprintln(out, "📊 Last Report:")
	if w := report.NewWriter(reportFile); reportFile != "" && w.Exists() {
		rep, err := w.Load()
		if err != nil {
			fmt.Fprintf(out, "  └─ ❌ %v\n", err)
		} else {
			printReport(out, rep)
		}
	} else {
		fmt.Fprintln(out, "  └─ No report yet (run 'roadcrew run' to create one)")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "📡 Metrics:")
	if cfg.Metrics.Enabled {
		fmt.Fprintf(out, "  └─ Status: ✅ Enabled on http://localhost:%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Fprintln(out, "  └─ Status: ⚠️  Disabled")
	}
	fmt.Fprintln(out)

	if addr == "" && cfg.Health.Enabled {
		addr = fmt.Sprintf("localhost:%d", cfg.Health.Port)
	}
	fmt.Fprintln(out, "💓 Health:")
	if addr == "" {
		fmt.Fprintln(out, "  └─ Status: ⚠️  Disabled")
	} else {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		resp, err := health.Check(checkCtx, addr, health.ServiceName)
		if err != nil {
			fmt.Fprintf(out, "  └─ %s: ❌ %v\n", addr, err)
		} else {
			text, _ := health.Format(resp)
			fmt.Fprintf(out, "  └─ %s: %s\n", addr, text)
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "═══════════════════════════════════════════════════════════")
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(disabled)"
	}
	return s
}

// ============================================================================
// journal
// ============================================================================

func buildJournalCommand() *cobra.Command {
	var file string
	var dump bool
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Summarize the job journal",
		Long:  "Replay the journal, verify every checksum and print a summary or the raw events",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				cfg, err := loadConfig(configFile)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				path = cfg.Journal.Path
			}
			if path == "" {
				return errors.New("no journal path (use --file or set journal.path)")
			}
			if dump {
				return journal.Dump(path, cmd.OutOrStdout(), limit)
			}
			return showJournal(cmd.OutOrStdout(), path)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "journal file (default: journal.path from config)")
	cmd.Flags().BoolVar(&dump, "dump", false, "print every event instead of a summary")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop the dump after this many events")
	return cmd
}

func showJournal(out io.Writer, path string) error {
	s, err := journal.Summarize(path)
	if errors.Is(err, os.ErrNotExist) {
		return err
	}

	types := make(map[string]int, len(s.ByType))
	for t, n := range s.ByType {
		types[string(t)] = n
	}

	fmt.Fprintf(out, "📒 Journal: %s\n", path)
	fmt.Fprintf(out, "  ├─ Events:     %d (last seq %d)\n", s.Events, s.LastSeq)
	fmt.Fprintf(out, "  ├─ Sessions:   %d\n", len(s.Sessions))
	fmt.Fprintf(out, "  ├─ Last Tick:  %d\n", s.LastTick)
	fmt.Fprintf(out, "  ├─ By Type:    %s\n", formatCounts(types))
	fmt.Fprintf(out, "  ├─ Completed:  %s\n", formatCounts(s.Completed))
	fmt.Fprintf(out, "  └─ Transforms: %s\n", formatCounts(s.Transforms))
	if err != nil {
		fmt.Fprintf(out, "❌ %v\n", err)
	}
	return err
}

// ============================================================================
// 輸出
// ============================================================================

func formatCounts(m map[string]int) string {
	if len(m) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(m))
	for _, k := range journal.SortedKeys(m) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}

func printReport(out io.Writer, rep report.Report) {
	busy := 0
	for _, m := range rep.Machines {
		if m.Job != "" {
			busy++
		}
	}
	heights := make([]int, 0, len(rep.Heights))
	for h := range rep.Heights {
		heights = append(heights, h)
	}
	sort.Ints(heights)
	levels := make([]string, 0, len(heights))
	for _, h := range heights {
		levels = append(levels, fmt.Sprintf("%d:%d", h, rep.Heights[h]))
	}

	fmt.Fprintf(out, "  ├─ Session:  %s\n", orNone(rep.Session))
	fmt.Fprintf(out, "  ├─ Seed:     %d\n", rep.Seed)
	fmt.Fprintf(out, "  ├─ Ticks:    %d\n", rep.Ticks)
	fmt.Fprintf(out, "  ├─ World:    %dx%d\n", rep.Width, rep.Height)
	fmt.Fprintf(out, "  ├─ Terrain:  %s\n", formatCounts(rep.Variants))
	fmt.Fprintf(out, "  ├─ Heights:  %s\n", strings.Join(levels, " "))
	fmt.Fprintf(out, "  ├─ Machines: %d (%d busy)\n", len(rep.Machines), busy)
	fmt.Fprintf(out, "  └─ Pending:  %d jobs\n", len(rep.Pending))
}

func printRun(out io.Writer, rep report.Report, res *scenario.Result, path string) {
	fmt.Fprintln(out, "🚧 Run finished:")
	printReport(out, rep)
	if res != nil {
		issued := make(map[string]int, len(res.Issued))
		for k, n := range res.Issued {
			issued[k.String()] = n
		}
		fmt.Fprintf(out, "🎬 Scenario: %d ticks, condition reached: %t, issued: %s\n",
			res.Ticks, res.Reached, formatCounts(issued))
	}
	if path != "" {
		fmt.Fprintf(out, "📄 Report: %s\n", path)
	}
}
