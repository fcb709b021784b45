package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/migr8"
	"github.com/jward/migr8/internal/config"
)

var (
	flagFormat    string
	flagConfig    string
	flagCacheDir  string
	flagNoCache   bool
	flagBlacklist []string
	flagWorkers   int
	flagBatchSize int
	flagTimeout   int
	flagMemoryMB  int
	flagSerial    bool
	flagVerbose   bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "migr8",
	Short:         "Project-graph driven JSX component migration",
	Long:          "migr8 indexes a JS/TS codebase with tree-sitter, builds an import/JSX usage graph with incremental caching, and rewrites component usages from declarative rule files.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
	// No Run — prints help by default.
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagFormat, "format", "text", "output format: json|text")
	pf.StringVar(&flagConfig, "config", "", "config file path (default: .migr8.toml at the project root)")
	pf.StringVar(&flagCacheDir, "cache-dir", "", "snapshot cache directory (default: .migr8 relative to root)")
	pf.BoolVar(&flagNoCache, "no-cache", false, "disable the snapshot cache entirely")
	pf.StringSliceVar(&flagBlacklist, "blacklist", nil, "additional directory names to skip")
	pf.IntVar(&flagWorkers, "workers", 0, "extraction workers (0 = number of CPUs)")
	pf.IntVar(&flagBatchSize, "batch-size", 0, "files per extraction batch (0 = config default)")
	pf.IntVar(&flagTimeout, "timeout", 0, "wall-clock budget in seconds (0 = none)")
	pf.IntVar(&flagMemoryMB, "memory-limit", 0, "soft heap limit in MB for adaptive batching (0 = config default)")
	pf.BoolVar(&flagSerial, "serial", false, "disable parallel extraction")
	pf.BoolVar(&flagVerbose, "verbose", false, "debug logging")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}

// newEngine builds an Engine for the target root with flag overrides
// layered on top of the config file.
func newEngine(root string, extra ...migr8.Option) (*migr8.Engine, error) {
	cfgPath := flagConfig
	if cfgPath == "" {
		cfgPath = filepath.Join(root, config.DefaultFileName)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if flagWorkers > 0 {
		cfg.Performance.Workers = flagWorkers
	}
	if flagBatchSize > 0 {
		cfg.Discovery.BatchSize = flagBatchSize
	}
	if flagTimeout > 0 {
		cfg.Performance.TimeoutSec = flagTimeout
	}
	if flagMemoryMB > 0 {
		cfg.Performance.MaxMemoryMB = flagMemoryMB
	}
	if flagSerial {
		cfg.Performance.Parallel = false
	}

	opts := []migr8.Option{
		migr8.WithConfig(cfg),
		migr8.WithLogger(slog.Default()),
	}
	if len(flagBlacklist) > 0 {
		opts = append(opts, migr8.WithBlacklist(flagBlacklist...))
	}
	if flagCacheDir != "" {
		opts = append(opts, migr8.WithCacheDir(flagCacheDir))
	}
	if flagNoCache {
		opts = append(opts, migr8.WithoutCache())
	}
	if flagWorkers > 0 {
		opts = append(opts, migr8.WithWorkers(flagWorkers))
	}
	if flagTimeout > 0 {
		opts = append(opts, migr8.WithTimeout(time.Duration(flagTimeout)*time.Second))
	}
	if flagSerial {
		opts = append(opts, migr8.WithParallel(false))
	}
	opts = append(opts, extra...)
	return migr8.New(root, opts...)
}

// resolveTargetDir returns the absolute path of the directory to operate on.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}
