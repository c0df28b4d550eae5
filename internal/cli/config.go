package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChuLiYu/roadcrew/internal/controller"
	"github.com/ChuLiYu/roadcrew/internal/machine"
	"github.com/ChuLiYu/roadcrew/internal/world"
	"gopkg.in/yaml.v3"
)

// Config represents the complete system configuration structure
// Maps config file fields through YAML tags
type Config struct {
	World struct {
		Width          int   `yaml:"width"`
		Height         int   `yaml:"height"`
		ViewportWidth  int   `yaml:"viewport_width"`
		ViewportHeight int   `yaml:"viewport_height"`
		Seed           int64 `yaml:"seed"`
	} `yaml:"world"`

	Crew machine.Crew `yaml:"crew"`

	Sim struct {
		TickInterval time.Duration `yaml:"tick_interval"` // play 模式的 tick 間隔
		MaxTicks     uint64        `yaml:"max_ticks"`     // run 模式沒有腳本時的 tick 數
		Workers      int           `yaml:"workers"`       // 批次執行的 Worker 數量
	} `yaml:"sim"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Journal struct {
		Path       string `yaml:"path"` // 空字串表示不寫日誌
		BufferSize int    `yaml:"buffer_size"`
	} `yaml:"journal"`

	Report struct {
		Path string `yaml:"path"` // 空字串表示不寫報告
	} `yaml:"report"`

	Health struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"health"`
}

// DefaultConfig returns the values used for keys a config file leaves out.
func DefaultConfig() *Config {
	cfg := &Config{Crew: machine.DefaultCrew()}
	cfg.World.Width = world.DefaultWidth
	cfg.World.Height = world.DefaultHeight
	cfg.World.ViewportWidth = world.DefaultViewport
	cfg.World.ViewportHeight = world.DefaultViewport
	cfg.Sim.TickInterval = 50 * time.Millisecond
	cfg.Sim.MaxTicks = 2000
	cfg.Sim.Workers = 4
	cfg.Metrics.Port = 9090
	cfg.Journal.Path = "data/journal.jsonl"
	cfg.Journal.BufferSize = 64
	cfg.Report.Path = "data/report.json"
	cfg.Health.Port = 50051
	return cfg
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if cfg.World.Width <= 0 || cfg.World.Height <= 0 {
		return nil, fmt.Errorf("invalid world size %dx%d", cfg.World.Width, cfg.World.Height)
	}
	return cfg, nil
}

// simConfig converts the file layout into a controller.Config
func (c *Config) simConfig() controller.Config {
	return controller.Config{
		World: world.Options{
			Width:          c.World.Width,
			Height:         c.World.Height,
			ViewportWidth:  c.World.ViewportWidth,
			ViewportHeight: c.World.ViewportHeight,
		},
		Seed:         c.World.Seed,
		Crew:         c.Crew,
		TickInterval: c.Sim.TickInterval,
		MaxTicks:     c.Sim.MaxTicks,
	}
}

// reportPath inserts id before the extension of base: data/report.json -> data/report-run-001.json
func reportPath(base, id string) string {
	if id == "" {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + id + ext
}
