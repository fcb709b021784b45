package migr8

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jward/migr8/internal/discovery"
	"github.com/jward/migr8/internal/extract"
	"github.com/jward/migr8/internal/jstree"
)

// commitFunc receives one extracted file on the merge goroutine. Exactly one
// of (er, ft) and ferr is set.
type commitFunc func(path string, er *extract.Result, ft *jstree.FileTree, ferr *FileError)

// extractAll runs extraction over every processable candidate and feeds the
// results, in candidate priority order, to commit. Parallel mode fans
// batches out to a worker pool; commit always runs on the calling goroutine
// so graph mutation needs no locking.
func (e *Engine) extractAll(ctx context.Context, processable []*discovery.Candidate, contents map[string][]byte, clock *buildClock, commit commitFunc) error {
	if !e.useParallel {
		return e.extractSerial(ctx, processable, contents, clock, commit)
	}

	workers := e.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := e.cfg.Discovery.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	done := 0
	for _, batch := range discovery.Batch(processable, batchSize) {
		// Under memory pressure the batch is split further so fewer trees
		// are in flight at once.
		subs := [][]*discovery.Candidate{batch}
		if n := e.adaptiveBatchSize(batchSize); n < len(batch) {
			subs = discovery.Batch(batch, n)
		}
		for _, sub := range subs {
			if err := clock.check(done); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.extractBatch(ctx, sub, contents, workers, commit); err != nil {
				return err
			}
			done += len(sub)
		}
	}
	return nil
}

// extractBatch fans one batch out to the worker pool and merges its results
// serially in batch order.
func (e *Engine) extractBatch(ctx context.Context, batch []*discovery.Candidate, contents map[string][]byte, workers int, commit commitFunc) error {
	type slot struct {
		er   *extract.Result
		ft   *jstree.FileTree
		ferr *FileError
	}
	slots := make([]slot, len(batch))

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(workers)
	for i, c := range batch {
		i, c := i, c
		data, ok := contents[c.Path]
		if !ok {
			// Read failed earlier; already reported.
			continue
		}
		grp.Go(func() error {
			er, ft, ferr := e.extractOne(gctx, c.Path, data)
			slots[i] = slot{er: er, ft: ft, ferr: ferr}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}

	for i, c := range batch {
		s := slots[i]
		if s.er == nil && s.ferr == nil {
			continue
		}
		commit(c.Path, s.er, s.ft, s.ferr)
	}
	return nil
}

func (e *Engine) extractSerial(ctx context.Context, processable []*discovery.Candidate, contents map[string][]byte, clock *buildClock, commit commitFunc) error {
	for i, c := range processable {
		if err := clock.check(i); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		data, ok := contents[c.Path]
		if !ok {
			continue
		}
		er, ft, ferr := e.extractOne(ctx, c.Path, data)
		commit(c.Path, er, ft, ferr)
	}
	return nil
}

// adaptiveBatchSize shrinks the next batch when heap usage approaches the
// configured memory limit, and forces a collection once usage crosses 90%
// of it. Parsed trees are retained for rewriting, so this only slows
// growth rather than capping it, but it keeps large repos from spiking.
func (e *Engine) adaptiveBatchSize(base int) int {
	limitMB := e.cfg.Performance.MaxMemoryMB
	if limitMB <= 0 {
		return base
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	usedMB := int(mem.HeapAlloc / (1 << 20))

	switch {
	case usedMB >= limitMB*9/10:
		runtime.GC()
		return max(base/4, 1)
	case usedMB >= limitMB*7/10:
		return max(base/2, 1)
	default:
		return base
	}
}
