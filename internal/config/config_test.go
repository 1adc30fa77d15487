package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Limits.Threads != 64 {
		t.Errorf("expected limits.threads=64, got %d", cfg.Limits.Threads)
	}
	if cfg.IRQ.RTCPeriod != time.Second {
		t.Errorf("expected irq.rtc_period=1s, got %s", cfg.IRQ.RTCPeriod)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv(EnvVar, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.CPUs != Default().CPUs {
		t.Errorf("expected default cpus, got %d", cfg.CPUs)
	}
}

func TestLoadFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwkern.yaml")
	content := `
cpus: 4
time_slice_ticks: 5
limits:
  threads: 8
irq:
  lines: 16
  modes:
    1: level
  rtc_period: 250ms
trace:
  path: /tmp/k.trace
  compression: lz4
demo: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv(EnvVar, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if cfg.CPUs != 4 || cfg.TimeSliceTicks != 5 || !cfg.Demo {
		t.Errorf("top level = %d/%d/%v, want 4/5/true", cfg.CPUs, cfg.TimeSliceTicks, cfg.Demo)
	}
	if cfg.Limits.Threads != 8 {
		t.Errorf("expected limits.threads=8, got %d", cfg.Limits.Threads)
	}
	if cfg.Limits.Capabilities != 512 {
		t.Errorf("unset limit lost its default: capabilities=%d", cfg.Limits.Capabilities)
	}
	if cfg.IRQ.RTCPeriod != 250*time.Millisecond {
		t.Errorf("expected irq.rtc_period=250ms, got %s", cfg.IRQ.RTCPeriod)
	}
	if lines := cfg.LevelLines(); len(lines) != 1 || lines[0] != 1 {
		t.Errorf("LevelLines() = %v, want [1]", lines)
	}
	if cfg.Trace.Compression != "lz4" || cfg.Trace.Path != "/tmp/k.trace" {
		t.Errorf("trace = %+v", cfg.Trace)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("cpu: 2\n")); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) = %v", err)
	}
	if cfg.Limits.Pds != Default().Limits.Pds {
		t.Errorf("expected defaults, got %+v", cfg.Limits)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.CPUs = 0
	cfg.Limits.Irqs = 0
	cfg.IRQ.Modes[40] = "pulse"
	cfg.Log.Level = "loud"
	cfg.Trace.Compression = "gzip"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"cpus", "limits.irqs", "line 40 out of range", "edge or level", "log.level", "trace.compression"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
