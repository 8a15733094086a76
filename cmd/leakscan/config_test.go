//go:build linux

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_EmptyPathReturnsZeroValue(t *testing.T) {
	fc, err := loadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.ContentLength != 0 || fc.Limit != 0 || fc.LeakThreshold != 0 || len(fc.Rates) != 0 {
		t.Fatalf("expected zero value, got %+v", fc)
	}
}

func TestLoadConfig_ParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leakscan.toml")
	contents := `
content_length = 256
limit = 10
continuation_timeout = "5s"
min_free_memory = 1048576
leak_threshold = 3

[rates]
"1s" = 1
"1m" = 10
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fc, err := loadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.ContentLength != 256 || fc.Limit != 10 || fc.LeakThreshold != 3 {
		t.Fatalf("unexpected scalar fields: %+v", fc)
	}
	if time.Duration(fc.ContinuationTimeout) != 5*time.Second {
		t.Fatalf("expected 5s continuation timeout, got %v", time.Duration(fc.ContinuationTimeout))
	}
	if fc.MinFreeMemory != 1048576 {
		t.Fatalf("unexpected min free memory: %d", fc.MinFreeMemory)
	}
	if fc.Rates["1s"] != 1 || fc.Rates["1m"] != 10 {
		t.Fatalf("unexpected rates: %+v", fc.Rates)
	}
}

func TestLoadConfig_MissingFileErrors(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}

func TestFileConfig_ScanConfigTranslatesRates(t *testing.T) {
	fc := fileConfig{Rates: map[string]int{"1s": 2, "bogus": 99}}
	sc := fc.scanConfig()
	if sc.Rates[time.Second] != 2 {
		t.Fatalf("expected 1s rate to translate, got %+v", sc.Rates)
	}
	if len(sc.Rates) != 1 {
		t.Fatalf("expected the unparseable rate key to be skipped, got %+v", sc.Rates)
	}
}
