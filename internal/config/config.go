// Package config loads the kernel host configuration.
//
// Configuration comes from a single YAML file named by the --config flag or
// the HWKERN_CONFIG environment variable. Without either, Default is used.
// Command line flags override individual values after loading.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted by Load.
const EnvVar = "HWKERN_CONFIG"

// Config is the host configuration.
type Config struct {
	// CPUs is the number of kernel CPUs, each run by its own goroutine.
	CPUs int `yaml:"cpus"`

	// TimeSliceTicks is the round-robin quota within a priority level.
	TimeSliceTicks uint32 `yaml:"time_slice_ticks"`

	// MaxPriority is the highest thread priority.
	MaxPriority uint8 `yaml:"max_priority"`

	Limits LimitsConfig `yaml:"limits"`
	IRQ    IRQConfig    `yaml:"irq"`
	Trace  TraceConfig  `yaml:"trace"`
	Log    LogConfig    `yaml:"log"`

	// Demo starts the demo userland.
	Demo bool `yaml:"demo"`
}

// LimitsConfig bounds the objects of each kind.
type LimitsConfig struct {
	Threads         int `yaml:"threads"`
	Vms             int `yaml:"vms"`
	Pds             int `yaml:"pds"`
	SignalReceivers int `yaml:"signal_receivers"`
	SignalContexts  int `yaml:"signal_contexts"`
	Irqs            int `yaml:"irqs"`
	Capabilities    int `yaml:"capabilities"`
}

// IRQConfig configures the interrupt controller.
type IRQConfig struct {
	Lines int `yaml:"lines"`

	// Modes maps a line to "edge" or "level". Unlisted lines are edge
	// triggered.
	Modes map[int]string `yaml:"modes"`

	// RTCPeriod is the period of the real-time clock line.
	RTCPeriod time.Duration `yaml:"rtc_period"`
}

// TraceConfig configures the kernel event trace.
type TraceConfig struct {
	// Path is the trace file. Empty disables the file; events are still
	// kept in memory.
	Path string `yaml:"path"`

	// Compression is none, zstd or lz4.
	Compression string `yaml:"compression"`

	// Capacity is the number of events kept in memory.
	Capacity int `yaml:"capacity"`
}

// LogConfig configures kernel logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	return &Config{
		CPUs:           2,
		TimeSliceTicks: 10,
		MaxPriority:    7,
		Limits: LimitsConfig{
			Threads:         64,
			Vms:             8,
			Pds:             16,
			SignalReceivers: 64,
			SignalContexts:  128,
			Irqs:            32,
			Capabilities:    512,
		},
		IRQ: IRQConfig{
			Lines:     32,
			Modes:     map[int]string{},
			RTCPeriod: time.Second,
		},
		Trace: TraceConfig{
			Compression: "zstd",
			Capacity:    4096,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the file named by path or, if path is empty, by HWKERN_CONFIG.
// With neither it returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if cfg.IRQ.Modes == nil {
		cfg.IRQ.Modes = map[int]string{}
	}
	return cfg, nil
}

// Validate reports every invalid value.
func (c *Config) Validate() error {
	var errs []error

	if c.CPUs < 1 || c.CPUs > 64 {
		errs = append(errs, fmt.Errorf("cpus must be in 1..64, got %d", c.CPUs))
	}
	if c.TimeSliceTicks == 0 {
		errs = append(errs, fmt.Errorf("time_slice_ticks must be positive"))
	}
	if c.MaxPriority == 0 {
		errs = append(errs, fmt.Errorf("max_priority must be positive"))
	}

	limits := []struct {
		name string
		v    int
	}{
		{"threads", c.Limits.Threads},
		{"vms", c.Limits.Vms},
		{"pds", c.Limits.Pds},
		{"signal_receivers", c.Limits.SignalReceivers},
		{"signal_contexts", c.Limits.SignalContexts},
		{"irqs", c.Limits.Irqs},
		{"capabilities", c.Limits.Capabilities},
	}
	for _, l := range limits {
		if l.v <= 0 {
			errs = append(errs, fmt.Errorf("limits.%s must be positive, got %d", l.name, l.v))
		}
	}

	if c.IRQ.Lines <= 0 {
		errs = append(errs, fmt.Errorf("irq.lines must be positive, got %d", c.IRQ.Lines))
	}
	for line, mode := range c.IRQ.Modes {
		if line < 0 || line >= c.IRQ.Lines {
			errs = append(errs, fmt.Errorf("irq.modes: line %d out of range", line))
		}
		if mode != "edge" && mode != "level" {
			errs = append(errs, fmt.Errorf("irq.modes: line %d: mode must be edge or level, got %q", line, mode))
		}
	}
	if c.IRQ.RTCPeriod <= 0 {
		errs = append(errs, fmt.Errorf("irq.rtc_period must be positive"))
	}

	switch c.Trace.Compression {
	case "none", "zstd", "lz4":
	default:
		errs = append(errs, fmt.Errorf("trace.compression must be one of none, zstd, lz4, got %q", c.Trace.Compression))
	}
	if c.Trace.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("trace.capacity must be positive, got %d", c.Trace.Capacity))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// LevelLines returns the level triggered lines in ascending order.
func (c *Config) LevelLines() []int {
	var lines []int
	for line, mode := range c.IRQ.Modes {
		if mode == "level" {
			lines = append(lines, line)
		}
	}
	sort.Ints(lines)
	return lines
}
