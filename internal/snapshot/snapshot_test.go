package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/migr8/internal/extract"
	"github.com/jward/migr8/internal/graph"
)

func testGraph(files ...string) *graph.Graph {
	g := graph.New()
	for _, f := range files {
		b := &extract.ImportBinding{
			Package: "@ui/kit", File: f, ImportedName: "Button",
			ImportKind: extract.ImportNamed, LocalName: "Button",
		}
		g.AddFile(f, &extract.Result{
			Imports: []*extract.ImportBinding{b},
			JSX: []*extract.JSXUsage{{
				File: f, ComponentName: "Button", Import: b,
				Props: map[string]extract.PropValue{}, SelfClosing: true,
			}},
		})
	}
	return g
}

func hashesFor(files ...string) map[string]string {
	h := make(map[string]string, len(files))
	for _, f := range files {
		h[f] = HashBytes([]byte(f))
	}
	return h
}

func TestHashBytes_Format(t *testing.T) {
	h := HashBytes([]byte("const a = 1;"))
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), h)
	assert.Equal(t, h, HashBytes([]byte("const a = 1;")))
	assert.NotEqual(t, h, HashBytes([]byte("const a = 2;")))
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.tsx")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	h, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashBytes([]byte("hello")), h)

	_, err = HashFile(filepath.Join(t.TempDir(), "missing.tsx"))
	require.Error(t, err)
}

func TestCanUseIncremental_NoSnapshot(t *testing.T) {
	m := NewManager(t.TempDir(), 0, nil)
	d := m.CanUseIncremental(hashesFor("a.tsx"))
	assert.False(t, d.CanUse)
	assert.Equal(t, "no snapshot available", d.Reason)
}

func TestCanUseIncremental_UnderThreshold(t *testing.T) {
	m := NewManager(t.TempDir(), 0, nil)
	files := make([]string, 10)
	for i := range files {
		files[i] = fmt.Sprintf("f%d.tsx", i)
	}
	m.CreateSnapshot(testGraph(files...), hashesFor(files...), Meta{FileCount: 10})

	current := hashesFor(files...)
	current["f0.tsx"] = HashBytes([]byte("edited"))
	current["f1.tsx"] = HashBytes([]byte("edited too"))

	d := m.CanUseIncremental(current)
	assert.True(t, d.CanUse)
	assert.ElementsMatch(t, []string{"f0.tsx", "f1.tsx"}, d.Changed)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Deleted)
}

func TestCanUseIncremental_ThresholdRefuses(t *testing.T) {
	m := NewManager(t.TempDir(), 0, nil)
	files := make([]string, 10)
	for i := range files {
		files[i] = fmt.Sprintf("f%d.tsx", i)
	}
	m.CreateSnapshot(testGraph(files...), hashesFor(files...), Meta{})

	// 3 of 10 changed: exactly at the 30% threshold, which refuses.
	current := hashesFor(files...)
	for i := 0; i < 3; i++ {
		current[fmt.Sprintf("f%d.tsx", i)] = HashBytes([]byte("edited"))
	}
	d := m.CanUseIncremental(current)
	assert.False(t, d.CanUse)
	assert.Contains(t, d.Reason, "full rebuild is cheaper")
	assert.Equal(t, 3, d.Delta())
}

func TestCanUseIncremental_DetectsAddAndDelete(t *testing.T) {
	m := NewManager(t.TempDir(), 0, nil)
	files := make([]string, 20)
	for i := range files {
		files[i] = fmt.Sprintf("f%d.tsx", i)
	}
	m.CreateSnapshot(testGraph(files...), hashesFor(files...), Meta{})

	current := hashesFor(files...)
	delete(current, "f0.tsx")
	current["new.tsx"] = HashBytes([]byte("new"))

	d := m.CanUseIncremental(current)
	assert.True(t, d.CanUse)
	assert.Equal(t, []string{"new.tsx"}, d.Added)
	assert.Equal(t, []string{"f0.tsx"}, d.Deleted)
}

func TestApplyIncrementalUpdate(t *testing.T) {
	m := NewManager(t.TempDir(), 0, nil)
	m.CreateSnapshot(testGraph("a.tsx", "b.tsx", "c.tsx", "d.tsx", "e.tsx", "f.tsx", "g.tsx", "h.tsx", "i.tsx", "j.tsx"),
		hashesFor("a.tsx", "b.tsx", "c.tsx", "d.tsx", "e.tsx", "f.tsx", "g.tsx", "h.tsx", "i.tsx", "j.tsx"), Meta{})

	d := Decision{CanUse: true, Changed: []string{"a.tsx"}, Deleted: []string{"b.tsx"}, Added: []string{"k.tsx"}}
	var reextracted []string
	g, issues, err := m.ApplyIncrementalUpdate(d, func(path string) (*extract.Result, error) {
		reextracted = append(reextracted, path)
		b := &extract.ImportBinding{
			Package: "@ui/next", File: path, ImportedName: "Button",
			ImportKind: extract.ImportNamed, LocalName: "Button",
		}
		return &extract.Result{Imports: []*extract.ImportBinding{b}}, nil
	})
	require.NoError(t, err)
	require.Empty(t, issues)
	assert.ElementsMatch(t, []string{"a.tsx", "k.tsx"}, reextracted)

	// b.tsx gone, a.tsx rebuilt against the new package, k.tsx added.
	assert.NotContains(t, g.Files(), "b.tsx")
	assert.Contains(t, g.Files(), "k.tsx")
	assert.Contains(t, g.Packages(), "@ui/next")
	assert.Empty(t, g.UsageIDsByFile("a.tsx"))

	// The snapshot graph itself is untouched.
	assert.Contains(t, m.Current().Graph().Files(), "b.tsx")

	// The update log advanced.
	require.Len(t, m.Updates(), 1)
	assert.Equal(t, []string{"a.tsx"}, m.Updates()[0].Changed)
}

func TestApplyIncrementalUpdate_ReextractErrors(t *testing.T) {
	m := NewManager(t.TempDir(), 0, nil)
	m.CreateSnapshot(testGraph("a.tsx"), hashesFor("a.tsx"), Meta{})

	d := Decision{CanUse: true, Changed: []string{"a.tsx"}}
	g, issues, err := m.ApplyIncrementalUpdate(d, func(path string) (*extract.Result, error) {
		return nil, fmt.Errorf("boom")
	})
	require.NoError(t, err)
	require.NotNil(t, g)
	require.Len(t, issues, 1)
	assert.Equal(t, "a.tsx", issues[0].Path)
	assert.Contains(t, issues[0].Err.Error(), "boom")
	// Failed file contributes nothing to the patched graph.
	assert.Empty(t, g.Files())
}

func TestApplyIncrementalUpdate_Aborts(t *testing.T) {
	m := NewManager(t.TempDir(), 0, nil)
	m.CreateSnapshot(testGraph("a.tsx", "b.tsx", "c.tsx", "d.tsx", "e.tsx"),
		hashesFor("a.tsx", "b.tsx", "c.tsx", "d.tsx", "e.tsx"), Meta{})

	d := Decision{CanUse: true, Changed: []string{"a.tsx", "b.tsx"}}
	calls := 0
	g, issues, err := m.ApplyIncrementalUpdate(d, func(path string) (*extract.Result, error) {
		calls++
		return nil, fmt.Errorf("%w: out of time", ErrUpdateAborted)
	})
	require.ErrorIs(t, err, ErrUpdateAborted)
	assert.Nil(t, g)
	assert.Empty(t, issues)
	assert.Equal(t, 1, calls)
	// An aborted update leaves no trace in the log.
	assert.Empty(t, m.Updates())
}

func TestCreateSnapshot_ReplacesAndClearsUpdates(t *testing.T) {
	m := NewManager(t.TempDir(), 0, nil)
	id1 := m.CreateSnapshot(testGraph("a.tsx", "b.tsx", "c.tsx", "d.tsx"), hashesFor("a.tsx", "b.tsx", "c.tsx", "d.tsx"), Meta{})

	d := Decision{CanUse: true, Changed: []string{"a.tsx"}}
	_, issues, err := m.ApplyIncrementalUpdate(d, func(path string) (*extract.Result, error) {
		return &extract.Result{}, nil
	})
	require.NoError(t, err)
	require.Empty(t, issues)
	require.Len(t, m.Updates(), 1)

	id2 := m.CreateSnapshot(testGraph("a.tsx"), hashesFor("a.tsx"), Meta{})
	assert.NotEqual(t, id1, id2)
	assert.Empty(t, m.Updates())
	assert.Equal(t, id2, m.Current().ID)
}

func TestManager_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, 0, nil)
	id := m.CreateSnapshot(testGraph("a.tsx"), hashesFor("a.tsx"), Meta{FileCount: 1})

	m2 := NewManager(dir, 0, nil)
	require.NotNil(t, m2.Current())
	assert.Equal(t, id, m2.Current().ID)
	assert.Equal(t, 1, m2.Current().Meta.FileCount)
	assert.Equal(t, []string{"a.tsx"}, m2.Current().Graph().Files())
	assert.Equal(t, hashesFor("a.tsx"), m2.Current().FileHashes)
}

func TestManager_CorruptCacheStartsCold(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CacheFileName), []byte("{not json"), 0o644))

	m := NewManager(dir, 0, nil)
	assert.Nil(t, m.Current())
	d := m.CanUseIncremental(hashesFor("a.tsx"))
	assert.False(t, d.CanUse)
}

func TestManager_InvalidGraphStartsCold(t *testing.T) {
	dir := t.TempDir()
	// Structurally valid JSON whose graph violates referential integrity.
	blob := `{"currentSnapshot":{"id":"snap_1","graph":{"imports":[],"jsx":[{"id":"jsx_1","file":"a.tsx","componentName":"B","importId":"imp_9"}]}},"updates":[]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, CacheFileName), []byte(blob), 0o644))

	m := NewManager(dir, 0, nil)
	assert.Nil(t, m.Current())
}

func TestSnapshotGraph_ReturnsClone(t *testing.T) {
	m := NewManager(t.TempDir(), 0, nil)
	m.CreateSnapshot(testGraph("a.tsx"), hashesFor("a.tsx"), Meta{})

	g := m.Current().Graph()
	g.RemoveFile("a.tsx")
	assert.Equal(t, []string{"a.tsx"}, m.Current().Graph().Files())
}

func TestUpdateLogTruncation(t *testing.T) {
	m := NewManager(t.TempDir(), 2, nil)
	m.CreateSnapshot(testGraph("a.tsx", "b.tsx", "c.tsx", "d.tsx", "e.tsx"), hashesFor("a.tsx", "b.tsx", "c.tsx", "d.tsx", "e.tsx"), Meta{})

	for i := 0; i < 4; i++ {
		d := Decision{CanUse: true, Changed: []string{fmt.Sprintf("f%d", i)}}
		_, _, err := m.ApplyIncrementalUpdate(d, func(path string) (*extract.Result, error) {
			return &extract.Result{}, nil
		})
		require.NoError(t, err)
	}
	ups := m.Updates()
	require.Len(t, ups, 2)
	assert.Equal(t, []string{"f2"}, ups[0].Changed)
	assert.Equal(t, []string{"f3"}, ups[1].Changed)
}
