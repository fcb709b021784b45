package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jward/migr8/internal/graph"
)

// CacheFileName is the on-disk cache file inside the cache directory.
const CacheFileName = "graph-cache.json"

// persistedSnapshot is the JSON-safe form of a Snapshot: the hash map
// flattens to an array of [path, hash] pairs and the graph to its
// array-of-pairs serialized form.
type persistedSnapshot struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	FileHashes [][2]string       `json:"fileHashes"`
	Meta       Meta              `json:"meta"`
	Graph      *graph.Serialized `json:"graph"`
}

type cacheFile struct {
	CurrentSnapshot *persistedSnapshot `json:"currentSnapshot,omitempty"`
	Updates         []UpdateRecord     `json:"updates"`
}

func (m *Manager) cachePath() string {
	return filepath.Join(m.dir, CacheFileName)
}

// load reads the cache file if one exists. Any read, parse, or rebuild
// failure degrades to "no snapshot available" — the cache is never required
// for correctness.
func (m *Manager) load() {
	data, err := os.ReadFile(m.cachePath())
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("cache unreadable, starting cold", "path", m.cachePath(), "error", err)
		}
		return
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		m.logger.Warn("cache corrupted, starting cold", "path", m.cachePath(), "error", err)
		return
	}
	m.updates = cf.Updates
	if cf.CurrentSnapshot == nil {
		return
	}

	g, err := graph.Deserialize(cf.CurrentSnapshot.Graph)
	if err != nil {
		m.logger.Warn("cached graph invalid, starting cold", "path", m.cachePath(), "error", err)
		m.updates = nil
		return
	}

	hashes := make(map[string]string, len(cf.CurrentSnapshot.FileHashes))
	for _, pair := range cf.CurrentSnapshot.FileHashes {
		hashes[pair[0]] = pair[1]
	}
	m.current = &Snapshot{
		ID:         cf.CurrentSnapshot.ID,
		Timestamp:  cf.CurrentSnapshot.Timestamp,
		FileHashes: hashes,
		Meta:       cf.CurrentSnapshot.Meta,
		graph:      g,
	}
}

// persist writes the current snapshot and update log. Persistence failures
// are logged, not raised: the next run falls back to a full build.
func (m *Manager) persist() {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		m.logger.Warn("cache dir not writable", "dir", m.dir, "error", err)
		return
	}

	cf := cacheFile{Updates: m.updates}
	if m.current != nil {
		pairs := make([][2]string, 0, len(m.current.FileHashes))
		for path, hash := range m.current.FileHashes {
			pairs = append(pairs, [2]string{path, hash})
		}
		sortPairs(pairs)
		cf.CurrentSnapshot = &persistedSnapshot{
			ID:         m.current.ID,
			Timestamp:  m.current.Timestamp,
			FileHashes: pairs,
			Meta:       m.current.Meta,
			Graph:      m.current.graph.Serialize(),
		}
	}

	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		m.logger.Warn("cache encode failed", "error", err)
		return
	}
	tmp := m.cachePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		m.logger.Warn("cache write failed", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, m.cachePath()); err != nil {
		m.logger.Warn("cache rename failed", "path", m.cachePath(), "error", err)
	}
}

func sortPairs(pairs [][2]string) {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
}
