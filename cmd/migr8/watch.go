package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/jward/migr8/internal/config"
	"github.com/jward/migr8/internal/discovery"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Rebuild the graph as files change",
	Long:  "Watches the project tree and re-runs an (incremental where possible) build after each settled burst of file events. Stops on interrupt.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("watch", err)
	}

	cfgPath := flagConfig
	if cfgPath == "" {
		cfgPath = filepath.Join(root, config.DefaultFileName)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return outputError("watch", err)
	}
	debounce := time.Duration(cfg.Performance.WatchDebounce) * time.Millisecond
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	engine, err := newEngine(root)
	if err != nil {
		return outputError("watch", err)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return outputError("watch", err)
	}
	defer watcher.Close()

	excluded := excludeSet(cfg)
	if err := addDirsRecursive(watcher, root, excluded); err != nil {
		return outputError("watch", err)
	}

	// Initial build so the first change event patches a warm snapshot.
	if res, err := engine.Build(ctx); err != nil {
		return outputError("watch", err)
	} else if err := outputResult(CLIResult{Command: "watch", Results: buildStatsToCLI(res)}); err != nil {
		return err
	}

	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(ev, excluded) {
				continue
			}
			// Watch newly created directories too.
			if ev.Op.Has(fsnotify.Create) {
				if info, serr := os.Stat(ev.Name); serr == nil && info.IsDir() {
					_ = addDirsRecursive(watcher, ev.Name, excluded)
				}
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, func() { pending <- struct{}{} })
			} else {
				timer.Reset(debounce)
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "err", werr)
		case <-pending:
			timer = nil
			res, berr := engine.Build(ctx)
			if berr != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Error("rebuild failed", "err", berr)
				continue
			}
			if err := outputResult(CLIResult{Command: "watch", Results: buildStatsToCLI(res)}); err != nil {
				return err
			}
		}
	}
}

func excludeSet(cfg config.Config) map[string]struct{} {
	set := make(map[string]struct{})
	for _, d := range discovery.DefaultExcludeDirs {
		set[d] = struct{}{}
	}
	for _, d := range cfg.Discovery.ExcludeDirs {
		set[d] = struct{}{}
	}
	for _, d := range flagBlacklist {
		set[d] = struct{}{}
	}
	// Never watch our own cache directory.
	set[filepath.Base(cfg.Cache.Dir)] = struct{}{}
	return set
}

func addDirsRecursive(watcher *fsnotify.Watcher, root string, excluded map[string]struct{}) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root {
			if _, skip := excluded[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
		}
		if werr := watcher.Add(path); werr != nil {
			return fmt.Errorf("watching %s: %w", path, werr)
		}
		return nil
	})
}

// relevantEvent drops chmod-only noise and anything inside excluded or
// hidden directories.
func relevantEvent(ev fsnotify.Event, excluded map[string]struct{}) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(ev.Name), "/") {
		if part == "" {
			continue
		}
		if _, skip := excluded[part]; skip {
			return false
		}
	}
	return true
}
