package cli

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ChuLiYu/roadcrew/internal/health"
	"github.com/ChuLiYu/roadcrew/internal/machine"
	"github.com/ChuLiYu/roadcrew/internal/report"
	"github.com/ChuLiYu/roadcrew/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a config whose outputs live in a temp dir
func writeTestConfig(t *testing.T) (configPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")
	content := `
world:
  width: 12
  height: 12
  seed: 7
sim:
  max_ticks: 40
  workers: 2
journal:
  path: "` + filepath.Join(dir, "journal.jsonl") + `"
  buffer_size: 8
report:
  path: "` + filepath.Join(dir, "report.json") + `"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath, dir
}

// execute runs the CLI with args and returns stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := BuildCLI()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "roadcrew", cmd.Use, "Root command should be 'roadcrew'")
	assert.Equal(t, "0.1.0", cmd.Version)

	// 檢查子命令
	commands := cmd.Commands()
	assert.Len(t, commands, 4, "Should have 4 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Use] = true
	}
	for _, name := range []string{"run", "play", "status", "journal"} {
		assert.True(t, commandNames[name], "Should have '%s' command", name)
	}

	// 檢查持久化標誌
	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue, "Default config path should be configs/default.yaml")
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()

	assert.Equal(t, "run", cmd.Use, "Command should be 'run'")
	assert.Contains(t, cmd.Short, "Start", "Short description should mention 'Start'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")

	scenarioFlag := cmd.Flags().Lookup("scenario")
	require.NotNil(t, scenarioFlag)
	assert.Equal(t, "s", scenarioFlag.Shorthand)
	for _, name := range []string{"ticks", "runs", "workers"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "Should have --%s flag", name)
	}
}

func TestBuildStatusCommand(t *testing.T) {
	cmd := buildStatusCommand()

	assert.Equal(t, "status", cmd.Use, "Command should be 'status'")
	assert.Contains(t, cmd.Short, "status", "Short description should mention 'status'")
	assert.NotNil(t, cmd.Flags().Lookup("addr"))
	assert.NotNil(t, cmd.Flags().Lookup("report"))
}

func TestBuildJournalCommand(t *testing.T) {
	cmd := buildJournalCommand()

	assert.Equal(t, "journal", cmd.Use)
	fileFlag := cmd.Flags().Lookup("file")
	require.NotNil(t, fileFlag, "Should have --file flag")
	assert.Equal(t, "f", fileFlag.Shorthand, "Should have -f shorthand")
}

// ============================================================================
// 配置
// ============================================================================

func TestLoadConfig_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.yaml")

	configContent := `
world:
  width: 30
  height: 25
  viewport_width: 8
  viewport_height: 6
  seed: 99

crew:
  diggers: 2
  bulldozers: 1
  rollers: 0
  graders: 1
  haulers: 6

sim:
  tick_interval: 20ms
  max_ticks: 500
  workers: 3

metrics:
  enabled: true
  port: 8080

journal:
  path: "./test_journal.jsonl"
  buffer_size: 16

report:
  path: "./test_report.json"

health:
  enabled: true
  port: 50052
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := loadConfig(configPath)
	require.NoError(t, err, "loadConfig should not return an error")

	assert.Equal(t, 30, cfg.World.Width)
	assert.Equal(t, 25, cfg.World.Height)
	assert.Equal(t, 8, cfg.World.ViewportWidth)
	assert.Equal(t, 6, cfg.World.ViewportHeight)
	assert.Equal(t, int64(99), cfg.World.Seed)
	assert.Equal(t, machine.Crew{Diggers: 2, Bulldozers: 1, Graders: 1, Haulers: 6}, cfg.Crew)
	assert.Equal(t, 20*time.Millisecond, cfg.Sim.TickInterval)
	assert.Equal(t, uint64(500), cfg.Sim.MaxTicks)
	assert.Equal(t, 3, cfg.Sim.Workers)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 8080, cfg.Metrics.Port)
	assert.Equal(t, "./test_journal.jsonl", cfg.Journal.Path)
	assert.Equal(t, 16, cfg.Journal.BufferSize)
	assert.Equal(t, "./test_report.json", cfg.Report.Path)
	assert.True(t, cfg.Health.Enabled)
	assert.Equal(t, 50052, cfg.Health.Port)

	simCfg := cfg.simConfig()
	assert.Equal(t, world.Options{Width: 30, Height: 25, ViewportWidth: 8, ViewportHeight: 6}, simCfg.World)
	assert.Equal(t, int64(99), simCfg.Seed)
	assert.Equal(t, cfg.Crew, simCfg.Crew)
	assert.Equal(t, uint64(500), simCfg.MaxTicks)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := loadConfig("/nonexistent/config.yaml")

	assert.Error(t, err)
	assert.Nil(t, cfg, "Config should be nil on error")
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	invalidYAML := `
world:
  width: "not a number"
  invalid yaml structure
    broken indentation
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	cfg, err := loadConfig(configPath)
	assert.Error(t, err)
	assert.Nil(t, cfg, "Config should be nil on parse error")
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoadConfig_EmptyFileKeepsDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(""), 0644))

	cfg, err := loadConfig(configPath)
	require.NoError(t, err, "Empty YAML file should parse without error")
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_PartialConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("crew:\n  haulers: 2\n"), 0644))

	cfg, err := loadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, machine.Crew{Diggers: 1, Bulldozers: 1, Rollers: 1, Graders: 1, Haulers: 2}, cfg.Crew,
		"keys missing from the crew section keep the default crew")
	assert.Equal(t, world.DefaultWidth, cfg.World.Width, "Unset fields keep defaults")
	assert.Equal(t, "data/journal.jsonl", cfg.Journal.Path)
}

func TestLoadConfig_InvalidWorld(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("world:\n  width: -1\n"), 0644))

	_, err := loadConfig(configPath)
	assert.ErrorContains(t, err, "invalid world size")
}

func TestReportPath(t *testing.T) {
	tests := []struct {
		base, id, want string
	}{
		{"data/report.json", "", "data/report.json"},
		{"data/report.json", "run-001", "data/report-run-001.json"},
		{"report", "run-002", "report-run-002"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reportPath(tt.base, tt.id))
	}
}

func TestInvalidLogLevel(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	_, err := execute(t, "status", "-c", configPath, "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid log level")
}

// ============================================================================
// 命令執行
// ============================================================================

func TestRunCommandWritesReportAndJournal(t *testing.T) {
	configPath, dir := writeTestConfig(t)

	out, err := execute(t, "run", "-c", configPath, "--ticks", "25")
	require.NoError(t, err)
	assert.Contains(t, out, "Run finished")
	assert.Contains(t, out, "Ticks:    25")

	rep, err := report.NewWriter(filepath.Join(dir, "report.json")).Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(25), rep.Ticks)
	assert.Equal(t, int64(7), rep.Seed)
	assert.Equal(t, 12, rep.Width)
	assert.NotEmpty(t, rep.Session, "report carries the journal session")

	out, err = execute(t, "journal", "-c", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Sessions:   1")
	assert.Contains(t, out, "SESSION=1")

	out, err = execute(t, "journal", "-f", filepath.Join(dir, "journal.jsonl"), "--dump", "--limit", "1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "#1 tick=0 SESSION "+rep.Session))
}

func TestRunCommandWithScenario(t *testing.T) {
	configPath, dir := writeTestConfig(t)
	scenarioPath := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte(`
name: short
seed: 3
max_ticks: 15
steps:
  - tick: 0
    scroll: [1, 1]
`), 0644))

	out, err := execute(t, "run", "-c", configPath, "-s", scenarioPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Scenario: 15 ticks, condition reached: false")

	rep, err := report.NewWriter(filepath.Join(dir, "report.json")).Load()
	require.NoError(t, err)
	assert.Equal(t, int64(3), rep.Seed, "scenario seed overrides the config seed")
}

func TestRunCommandBadScenario(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	_, err := execute(t, "run", "-c", configPath, "-s", "/nonexistent/scenario.yaml")
	assert.Error(t, err)
}

func TestRunCommandBatch(t *testing.T) {
	configPath, dir := writeTestConfig(t)

	out, err := execute(t, "run", "-c", configPath, "--runs", "3", "--ticks", "10")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4, "header plus one line per run")
	assert.True(t, strings.HasPrefix(lines[0], "RUN"))
	for k, seed := range []string{"7", "8", "9"} {
		fields := strings.Fields(lines[k+1])
		assert.Equal(t, seed, fields[1])
		assert.Equal(t, "10", fields[2])
		assert.Equal(t, "ok", fields[len(fields)-1])
	}

	for _, id := range []string{"run-000", "run-001", "run-002"} {
		assert.FileExists(t, filepath.Join(dir, "report-"+id+".json"))
	}
}

func TestJournalCommandMissingFile(t *testing.T) {
	_, err := execute(t, "journal", "-f", filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type stubProber struct{ running atomic.Bool }

func (p *stubProber) Running() bool { return p.running.Load() }

func TestStatusCommand(t *testing.T) {
	configPath, dir := writeTestConfig(t)

	out, err := execute(t, "status", "-c", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "World:         12x12")
	assert.Contains(t, out, "No report yet")

	_, err = execute(t, "run", "-c", configPath, "--ticks", "5")
	require.NoError(t, err)

	// 啟動健康檢查伺服器
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := &stubProber{}
	p.running.Store(true)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		health.NewServer(p, 10*time.Millisecond).ServeListener(ctx, lis)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	out, err = execute(t, "status", "-c", configPath, "--addr", lis.Addr().String(),
		"--report", filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "Ticks:    5")
	assert.Contains(t, out, "SERVING")
}
