// Package snapshot keeps the project graph fresh across runs. It captures
// immutable point-in-time snapshots of the graph keyed by per-file content
// hashes, decides whether a re-run may patch the previous graph
// incrementally or must rebuild from scratch, and persists everything to a
// JSON cache file that is never required for correctness: a corrupt or
// deleted cache simply means a cold start.
package snapshot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/jward/migr8/internal/extract"
	"github.com/jward/migr8/internal/graph"
)

// IncrementalThreshold is the fraction of changed+added+deleted candidate
// files above which incremental patching is refused. Above it the
// bookkeeping overhead of patching exceeds the cost of a fresh pass.
const IncrementalThreshold = 0.30

// RetentionWindow is how long a snapshot stays loadable before periodic
// cleanup drops it entirely.
const RetentionWindow = 30 * 24 * time.Hour

// cleanupInterval gates how often maybeCleanup does real work.
const cleanupInterval = time.Hour

// Meta records processing statistics captured with a snapshot.
type Meta struct {
	FileCount   int           `json:"fileCount"`
	Duration    time.Duration `json:"duration"`
	MemoryBytes uint64        `json:"memoryBytes"`
}

// Snapshot is an immutable capture of the graph at a point in time. The
// held graph is a private clone; callers get their own clone back and can
// never mutate a snapshot in place.
type Snapshot struct {
	ID         string
	Timestamp  time.Time
	FileHashes map[string]string
	Meta       Meta

	graph *graph.Graph
}

// Graph returns a fresh clone of the snapshot's graph.
func (s *Snapshot) Graph() *graph.Graph {
	return s.graph.Clone()
}

// UpdateRecord is one entry in the bounded incremental-update log.
type UpdateRecord struct {
	SnapshotID string    `json:"snapshotId"`
	Timestamp  time.Time `json:"timestamp"`
	Changed    []string  `json:"changed,omitempty"`
	Added      []string  `json:"added,omitempty"`
	Deleted    []string  `json:"deleted,omitempty"`
}

// Decision is the outcome of comparing current file hashes against the
// last snapshot.
type Decision struct {
	CanUse  bool
	Changed []string
	Added   []string
	Deleted []string
	Reason  string
}

// Delta returns the total number of differing files.
func (d Decision) Delta() int {
	return len(d.Changed) + len(d.Added) + len(d.Deleted)
}

// Manager owns the current snapshot, the update log, and their on-disk
// form. It is not safe for concurrent use by multiple processes against
// the same cache directory.
type Manager struct {
	dir         string
	maxUpdates  int
	retention   time.Duration
	logger      *slog.Logger
	current     *Snapshot
	updates     []UpdateRecord
	lastCleanup time.Time
}

// NewManager creates a Manager over cache directory dir and loads any
// previously persisted snapshot. Load failures degrade to a cold start.
func NewManager(dir string, maxUpdates int, logger *slog.Logger) *Manager {
	if maxUpdates <= 0 {
		maxUpdates = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		dir:        dir,
		maxUpdates: maxUpdates,
		retention:  RetentionWindow,
		logger:     logger,
	}
	m.load()
	return m
}

// Current returns the active snapshot, or nil when starting cold.
func (m *Manager) Current() *Snapshot {
	return m.current
}

// Updates returns the incremental update log accumulated since the current
// snapshot was created, oldest first.
func (m *Manager) Updates() []UpdateRecord {
	out := make([]UpdateRecord, len(m.updates))
	copy(out, m.updates)
	return out
}

// HashBytes returns the 16-hex-char content digest used for change
// detection.
func HashBytes(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

// HashFile hashes a file's content from disk.
func HashFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("snapshot: hash %s: %w", path, err)
	}
	return HashBytes(b), nil
}

// CanUseIncremental compares the current candidate hashes against the last
// snapshot and decides whether an incremental patch is worthwhile. The
// decision is refused when no snapshot exists or when the delta meets the
// 30% threshold, with a human-readable reason either way.
func (m *Manager) CanUseIncremental(current map[string]string) Decision {
	m.maybeCleanup()

	if m.current == nil {
		return Decision{Reason: "no snapshot available"}
	}

	var d Decision
	for path, hash := range current {
		prev, ok := m.current.FileHashes[path]
		switch {
		case !ok:
			d.Added = append(d.Added, path)
		case prev != hash:
			d.Changed = append(d.Changed, path)
		}
	}
	for path := range m.current.FileHashes {
		if _, ok := current[path]; !ok {
			d.Deleted = append(d.Deleted, path)
		}
	}

	total := len(current)
	if total == 0 {
		d.Reason = "no candidate files"
		return d
	}
	ratio := float64(d.Delta()) / float64(total)
	if ratio >= IncrementalThreshold {
		d.Reason = fmt.Sprintf("%d of %d files differ (%.0f%%, threshold %.0f%%); a full rebuild is cheaper",
			d.Delta(), total, ratio*100, IncrementalThreshold*100)
		return d
	}
	d.CanUse = true
	return d
}

// ExtractFunc re-extracts one file and returns its extraction result.
// Returning an error wrapping ErrUpdateAborted stops the whole update
// instead of being recorded as a per-file issue.
type ExtractFunc func(path string) (*extract.Result, error)

// ErrUpdateAborted cancels an in-flight incremental update: no graph is
// returned and the update log does not advance.
var ErrUpdateAborted = errors.New("incremental update aborted")

// FileIssue is one recovered per-file re-extraction failure.
type FileIssue struct {
	Path string
	Err  error
}

// ApplyIncrementalUpdate produces a new graph by patching a clone of the
// snapshot's graph: deleted files are removed, changed files are removed
// then re-added fresh alongside added files, counters are recomputed and a
// new build timestamp is stamped. The snapshot itself is never mutated.
// Per-file re-extraction failures are returned alongside the patched graph;
// only an ErrUpdateAborted from reextract fails the update as a whole.
func (m *Manager) ApplyIncrementalUpdate(d Decision, reextract ExtractFunc) (*graph.Graph, []FileIssue, error) {
	if m.current == nil {
		return nil, nil, fmt.Errorf("snapshot: no snapshot to update")
	}
	g := m.current.Graph()

	for _, path := range d.Deleted {
		g.RemoveFile(path)
	}
	for _, path := range d.Changed {
		g.RemoveFile(path)
	}

	var issues []FileIssue
	for _, path := range append(append([]string{}, d.Changed...), d.Added...) {
		res, err := reextract(path)
		if err != nil {
			if errors.Is(err, ErrUpdateAborted) {
				return nil, nil, err
			}
			issues = append(issues, FileIssue{Path: path, Err: err})
			continue
		}
		g.AddFile(path, res)
	}

	g.Recount()
	g.BuiltAt = time.Now()

	m.updates = append(m.updates, UpdateRecord{
		SnapshotID: m.current.ID,
		Timestamp:  time.Now(),
		Changed:    d.Changed,
		Added:      d.Added,
		Deleted:    d.Deleted,
	})
	if len(m.updates) > m.maxUpdates {
		m.updates = m.updates[len(m.updates)-m.maxUpdates:]
	}
	m.persist()

	return g, issues, nil
}

// CreateSnapshot captures g under a new snapshot id. The new snapshot fully
// replaces the previous one and clears the pending update log; there is no
// multi-generation delta chain.
func (m *Manager) CreateSnapshot(g *graph.Graph, hashes map[string]string, meta Meta) string {
	hashCopy := make(map[string]string, len(hashes))
	for k, v := range hashes {
		hashCopy[k] = v
	}
	s := &Snapshot{
		ID:         fmt.Sprintf("snap_%d", time.Now().UnixNano()),
		Timestamp:  time.Now(),
		FileHashes: hashCopy,
		Meta:       meta,
		graph:      g.Clone(),
	}
	m.current = s
	m.updates = nil
	m.persist()
	return s.ID
}

// maybeCleanup runs the time-gated maintenance pass: truncate the update
// log and drop a snapshot older than the retention window.
func (m *Manager) maybeCleanup() {
	if time.Since(m.lastCleanup) < cleanupInterval {
		return
	}
	m.lastCleanup = time.Now()

	changed := false
	if len(m.updates) > m.maxUpdates {
		m.updates = m.updates[len(m.updates)-m.maxUpdates:]
		changed = true
	}
	if m.current != nil && time.Since(m.current.Timestamp) > m.retention {
		m.logger.Info("dropping expired snapshot",
			"id", m.current.ID, "age", time.Since(m.current.Timestamp))
		m.current = nil
		m.updates = nil
		changed = true
	}
	if changed {
		m.persist()
	}
}
