//go:build linux

package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/joeycumines/go-unreachable"
)

// fileConfig is the TOML shape read from -config; it mirrors
// unreachable.ScanConfig's tunables plus the CLI's own threshold.
type fileConfig struct {
	ContentLength       int            `toml:"content_length"`
	Limit               int            `toml:"limit"`
	ContinuationTimeout duration       `toml:"continuation_timeout"`
	Rates               map[string]int `toml:"rates"`
	MinFreeMemory       uint64         `toml:"min_free_memory"`
	LeakThreshold       int            `toml:"leak_threshold"`
}

// duration lets the TOML file spell out durations as strings ("5s",
// "1m") instead of raw nanosecond integers.
type duration time.Duration

func (d *duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("leakscan: parse duration %q: %w", b, err)
	}
	*d = duration(parsed)
	return nil
}

func loadConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fc, fmt.Errorf("leakscan: decode config %q: %w", path, err)
	}
	return fc, nil
}

func (fc fileConfig) scanConfig() unreachable.ScanConfig {
	var rates map[time.Duration]int
	if len(fc.Rates) > 0 {
		rates = make(map[time.Duration]int, len(fc.Rates))
		for k, v := range fc.Rates {
			d, err := time.ParseDuration(k)
			if err != nil {
				continue
			}
			rates[d] = v
		}
	}
	return unreachable.ScanConfig{
		ContentLength:       fc.ContentLength,
		Limit:               fc.Limit,
		ContinuationTimeout: time.Duration(fc.ContinuationTimeout),
		Rates:               rates,
		MinFreeMemory:       fc.MinFreeMemory,
	}
}
