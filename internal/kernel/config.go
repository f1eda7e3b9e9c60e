package kernel

import (
	"errors"
	"fmt"
	"os"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors config.yml
type Config struct {
	TickMS         int          `yaml:"tick_ms"`         // 5 (by default), realtime clock period
	Reload         uint32       `yaml:"reload"`          // 64 (by default), ticks per preemption
	Clock          string       `yaml:"clock"`           // "sim" or "realtime"
	UnitUS         int          `yaml:"unit_us"`         // 100 (by default), realtime busy-wait unit
	Capacity       int          `yaml:"capacity"`        // 5 (by default)
	MaxSteps       uint64       `yaml:"max_steps"`       // 0 = until interrupted
	DispatchBanner bool         `yaml:"dispatch_banner"` // "OS: Activate next task" lines
	LogLevel       string       `yaml:"log_level"`
	CSV            string       `yaml:"csv"`
	Mute           []string     `yaml:"mute"` // event kinds not printed, e.g. [Yield]
	Diag           DiagConfig   `yaml:"diag"`
	Tasks          []TaskConfig `yaml:"tasks"`
}

// DiagConfig selects the diagnostic channel backend.
type DiagConfig struct {
	Backend string `yaml:"backend"` // stdout, serial or tty
	Device  string `yaml:"device"`
	Baud    int    `yaml:"baud"`
}

// TaskConfig describes one task created at boot.
type TaskConfig struct {
	Name     string `yaml:"name"`
	Priority uint32 `yaml:"priority"`
	Program  string `yaml:"program"`
	Peer     string `yaml:"peer"`
	Units    int    `yaml:"units"` // busy-wait units per loop
}

const (
	ClockSim      = "sim"
	ClockRealtime = "realtime"
)

// If the config file is not found, we use default values. The task set is
// the one the board image boots with.
func DefaultConfig() Config {
	return Config{
		TickMS:         5,
		Reload:         DefaultReload,
		Clock:          ClockSim,
		UnitUS:         100,
		Capacity:       5,
		DispatchBanner: true,
		LogLevel:       "info",
		Diag:           DiagConfig{Backend: "stdout", Baud: 115200},
		Tasks: []TaskConfig{
			{Name: "task_name_0", Priority: 2, Program: "resume-peer", Peer: "task_name_1", Units: 1000},
			{Name: "task_name_1", Priority: 12, Program: "suspend-self", Units: 1000},
		},
	}
}

// Load reads YAML and overrides defaults; empty path or missing file =
// defaults only.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	// sanity clamps
	if cfg.TickMS <= 0 {
		cfg.TickMS = 5
	}
	if cfg.Reload == 0 {
		cfg.Reload = DefaultReload
	}
	if cfg.UnitUS <= 0 {
		cfg.UnitUS = 100
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 5
	}
	if cfg.Clock == "" {
		cfg.Clock = ClockSim
	}
	if cfg.Diag.Backend == "" {
		cfg.Diag.Backend = "stdout"
	}
	if cfg.Diag.Baud <= 0 {
		cfg.Diag.Baud = 115200
	}
	for i := range cfg.Tasks {
		if cfg.Tasks[i].Units <= 0 {
			cfg.Tasks[i].Units = 1000
		}
	}

	return cfg, nil
}

// Validate reports configuration errors that must stop the system before
// the scheduler starts.
func (c Config) Validate() error {
	if len(c.Tasks) == 0 {
		return ErrNoTasks
	}
	if len(c.Tasks) > c.Capacity {
		return fmt.Errorf("%w: %d tasks configured, capacity %d", ErrTableFull, len(c.Tasks), c.Capacity)
	}
	if c.Clock != ClockSim && c.Clock != ClockRealtime {
		return fmt.Errorf("unknown clock %q", c.Clock)
	}

	names := make(map[string]bool, len(c.Tasks))
	for _, t := range c.Tasks {
		if t.Name == "" {
			return errors.New("task with empty name")
		}
		if names[t.Name] {
			return fmt.Errorf("duplicate task name %q", t.Name)
		}
		names[t.Name] = true
	}
	for _, m := range c.Mute {
		if _, err := ParseEventKind(m); err != nil {
			return fmt.Errorf("mute: %w", err)
		}
	}
	for _, t := range c.Tasks {
		if t.Peer != "" && !names[t.Peer] {
			return fmt.Errorf("task %q: unknown peer %q", t.Name, t.Peer)
		}
	}
	return nil
}
