//go:build linux

// Command leakscan runs an unreachable-memory scan against a running
// process and reports what it finds, suitable for ad-hoc diagnosis or
// as a CI gate (exit non-zero once leaks exceed a threshold).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joeycumines/go-unreachable"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("leakscan", flag.ContinueOnError)
	pid := fs.Int("pid", os.Getpid(), "pid to scan (default: self)")
	limit := fs.Int("limit", 0, "cap on leaks returned, 0 means unlimited")
	configPath := fs.String("config", "", "path to a TOML config file")
	threshold := fs.Int("threshold", 0, "exit non-zero if the leak count exceeds this")
	timeout := fs.Duration("timeout", 30*time.Second, "overall deadline for the scan")
	contents := fs.Bool("contents", false, "log leak contents (hex dump + escaped field)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	fc, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg := fc.scanConfig()
	if *limit > 0 {
		cfg.Limit = *limit
	}
	cfg.LogWriter = os.Stderr

	leakThreshold := fc.LeakThreshold
	if *threshold > 0 {
		leakThreshold = *threshold
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	info, err := unreachable.GetUnreachableMemory(ctx, *pid, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "leakscan:", err)
		return 1
	}

	unreachable.LogResult(os.Stderr, *pid, info, *contents, cfg)

	if leakThreshold > 0 && int(info.NumLeaks) > leakThreshold {
		fmt.Fprintf(os.Stderr, "leakscan: %d leaks exceeds threshold %d\n", info.NumLeaks, leakThreshold)
		return 1
	}

	return 0
}
