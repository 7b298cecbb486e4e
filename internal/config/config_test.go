package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"traffic-analytics/internal/stream"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Frequency != 5*time.Minute || cfg.AlphabetSize != 5 || cfg.GapFill != "backward" {
		t.Errorf("cfg=%+v, want defaults", cfg)
	}
	if len(cfg.ExcludedFeatures) != len(stream.DefaultExcluded()) {
		t.Errorf("excluded=%v, want defaults", cfg.ExcludedFeatures)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := writeConfig(t, `
frequency: 10m
gap_fill: forward
alphabet_size: 7
stats_ttl: 30s
excluded_features: [TIMESTAMP, status]
`)
	t.Setenv("PORT", "9090")
	t.Setenv("ALPHABET_SIZE", "4")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.AlphabetSize != 4 {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if cfg.Frequency != 10*time.Minute || cfg.StatsTTL != 30*time.Second {
		t.Errorf("durations=%s/%s, want 10m/30s", cfg.Frequency, cfg.StatsTTL)
	}

	opts := cfg.StreamOptions()
	if opts.GapFill != stream.ForwardPropagate || len(opts.Excluded) != 2 {
		t.Errorf("options=%+v", opts)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"bad policy":   "gap_fill: nearest\n",
		"bad alphabet": "alphabet_size: 1\n",
		"bad yaml":     "frequency: [\n",
	} {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	t.Setenv("STREAM_FREQUENCY", "often")
	if _, err := Load(""); err == nil {
		t.Error("bad STREAM_FREQUENCY: expected error")
	}
}
