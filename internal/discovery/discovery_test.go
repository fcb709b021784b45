package discovery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const componentSrc = `import { Button } from "@ui/kit";

export const App = () => <Button size="large" />;
`

func newTestScanner(opts Options) *Scanner {
	return NewScanner(opts, nil)
}

func discover(t *testing.T, s *Scanner, root string) []*Candidate {
	t.Helper()
	cands, err := s.Discover(context.Background(), root)
	require.NoError(t, err)
	return cands
}

func byPath(cands []*Candidate) map[string]*Candidate {
	m := make(map[string]*Candidate, len(cands))
	for _, c := range cands {
		m[filepath.Base(c.Path)] = c
	}
	return m
}

func TestDiscover_IncludesLanguageFamily(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.tsx", componentSrc)
	writeFile(t, root, "b.js", `import x from "y";`)
	writeFile(t, root, "notes.md", "# readme")
	writeFile(t, root, "style.css", "a {}")

	cands := discover(t, newTestScanner(Options{}), root)
	require.Len(t, cands, 2)
}

func TestDiscover_SkipsExcludedAndHiddenDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.tsx", componentSrc)
	writeFile(t, root, "node_modules/pkg/index.js", componentSrc)
	writeFile(t, root, "dist/bundle.js", componentSrc)
	writeFile(t, root, ".hidden/b.tsx", componentSrc)
	writeFile(t, root, "vendor/c.tsx", componentSrc)

	s := newTestScanner(Options{ExcludeDirs: []string{"vendor"}})
	cands := discover(t, s, root)
	require.Len(t, cands, 1)
	assert.True(t, strings.HasSuffix(cands[0].Path, filepath.Join("src", "a.tsx")))
}

func TestDiscover_SkipReasons(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "fine.tsx", componentSrc)
	writeFile(t, root, "empty.ts", "const a = 1;\n")
	writeFile(t, root, "app.test.tsx", componentSrc)
	writeFile(t, root, "app.stories.tsx", componentSrc)
	writeFile(t, root, "vite.config.ts", `import { defineConfig } from "vite";`)
	writeFile(t, root, "api.generated.ts", `import x from "y";`)
	writeFile(t, root, "marked.ts", "// @generated by codegen\nimport x from \"y\";\n")
	writeFile(t, root, "bundle.min.js", componentSrc)

	cands := byPath(discover(t, newTestScanner(Options{SkipTestFiles: true, SkipConfigFiles: true}), root))

	assert.True(t, cands["fine.tsx"].ShouldProcess)
	assert.Empty(t, cands["fine.tsx"].SkipReason)

	assert.False(t, cands["empty.ts"].ShouldProcess)
	assert.Equal(t, "no imports or jsx", cands["empty.ts"].SkipReason)

	assert.Equal(t, "test/story file", cands["app.test.tsx"].SkipReason)
	assert.Equal(t, "test/story file", cands["app.stories.tsx"].SkipReason)
	assert.Equal(t, "config file", cands["vite.config.ts"].SkipReason)
	assert.Equal(t, "generated file", cands["api.generated.ts"].SkipReason)
	assert.Equal(t, "generated file", cands["marked.ts"].SkipReason)
	assert.Equal(t, "generated file", cands["bundle.min.js"].SkipReason)
}

func TestDiscover_TestDirSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "__tests__/helper.tsx", componentSrc)

	cands := byPath(discover(t, newTestScanner(Options{SkipTestFiles: true}), root))
	assert.Equal(t, "test/story file", cands["helper.tsx"].SkipReason)
}

func TestDiscover_SizeLimitBeforeRead(t *testing.T) {
	root := t.TempDir()
	big := strings.Repeat("const filler = 1;\n", 200)
	writeFile(t, root, "big.ts", big)

	cands := byPath(discover(t, newTestScanner(Options{MaxFileKB: 1}), root))
	require.Contains(t, cands, "big.ts")
	assert.False(t, cands["big.ts"].ShouldProcess)
	assert.Contains(t, cands["big.ts"].SkipReason, "larger than 1 KB")
	// The line count stays zero: content was never scanned.
	assert.Zero(t, cands["big.ts"].LineCount)
}

func TestDiscover_LineLimit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "long.ts", `import x from "y";`+"\n"+strings.Repeat("x;\n", 50))

	cands := byPath(discover(t, newTestScanner(Options{MaxLines: 10}), root))
	assert.Contains(t, cands["long.ts"].SkipReason, "more than 10 lines")
}

func TestLooksMinified(t *testing.T) {
	// Few lines, large size.
	assert.True(t, contentScan{lines: 2}.looksMinified(10*1024))
	// Dense trailing punctuation across two categories.
	assert.True(t, contentScan{lines: 10, semiEnds: 5, commaEnds: 5}.looksMinified(100))
	// One dense category is normal code.
	assert.False(t, contentScan{lines: 10, semiEnds: 9}.looksMinified(100))
	assert.False(t, contentScan{}.looksMinified(10*1024))
}

func TestPriority_ComponentFilesFirst(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "page.tsx", componentSrc+strings.Repeat("export const X = () => <Button />;\n", 5))
	writeFile(t, root, "util.ts", `import { clamp } from "./math";`+"\n")

	cands := discover(t, newTestScanner(Options{}), root)
	require.Len(t, cands, 2)
	assert.True(t, strings.HasSuffix(cands[0].Path, "page.tsx"))
	assert.Greater(t, cands[0].Priority, cands[1].Priority)
}

func TestPriority_RecencyBonus(t *testing.T) {
	s := newTestScanner(Options{})
	now := time.Now()
	s.nowFunc = func() time.Time { return now }

	fresh := &Candidate{Path: "a.ts", ImportHits: 1, ModTime: now.Add(-time.Hour)}
	stale := &Candidate{Path: "b.ts", ImportHits: 1, ModTime: now.Add(-30 * 24 * time.Hour)}
	assert.Equal(t, s.priority(fresh)-5, s.priority(stale))
}

func TestSortByPriority_Deterministic(t *testing.T) {
	cands := []*Candidate{
		{Path: "b.tsx", Priority: 10},
		{Path: "a.tsx", Priority: 10},
		{Path: "c.tsx", Priority: 20},
	}
	SortByPriority(cands)
	assert.Equal(t, "c.tsx", cands[0].Path)
	assert.Equal(t, "a.tsx", cands[1].Path)
	assert.Equal(t, "b.tsx", cands[2].Path)
}

func TestBatch(t *testing.T) {
	cands := []*Candidate{
		{Path: "a", ShouldProcess: true},
		{Path: "b", ShouldProcess: false},
		{Path: "c", ShouldProcess: true},
		{Path: "d", ShouldProcess: true},
	}
	batches := Batch(cands, 2)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)
	assert.Equal(t, "a", batches[0][0].Path)
	assert.Equal(t, "c", batches[0][1].Path)
	assert.Equal(t, "d", batches[1][0].Path)
}

func TestDiscover_ScanCacheReused(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "a.tsx", componentSrc)
	s := newTestScanner(Options{})

	first := discover(t, s, root)
	require.Len(t, first, 1)

	// Rewrite the file; the cached verdict is served until the TTL expires.
	require.NoError(t, os.WriteFile(path, []byte("const nothing = 1;\n"), 0o644))
	second := discover(t, s, root)
	require.Len(t, second, 1)
	assert.True(t, second[0].ShouldProcess)
	assert.Equal(t, first[0].ImportHits, second[0].ImportHits)
}
