package migr8

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/migr8/internal/remap"
)

const migrationRules = `{
  "lookup": {
    "packages": ["@ui/kit"],
    "components": ["Button"]
  },
  "migr8rules": [
    {
      "package": "@ui/kit",
      "importType": "named",
      "component": "Button",
      "importTo": {
        "importStm": "@ui/next",
        "component": "NextButton",
        "importType": "named"
      },
      "rules": [
        {
          "order": 1,
          "match": [{"size": "large"}],
          "set": {"variant": "headingLarge"},
          "remove": ["size"]
        },
        {
          "order": 2,
          "match": []
        }
      ]
    }
  ]
}`

func writeRuleFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMigrate_DryRun(t *testing.T) {
	root := writeTree(t, fixtureFiles)
	e := newTestEngine(t, root, WithoutCache())

	res, err := e.Migrate(context.Background(), writeRuleFile(t, migrationRules), MigrateOptions{})
	require.NoError(t, err)

	// Both Button usages migrate: App.tsx via the size=large rule, Page.tsx
	// via the catch-all. The Card usage has no migration and is untouched.
	assert.Equal(t, 2, res.Patched)
	assert.Zero(t, res.Replaced)
	assert.Zero(t, res.Skipped)
	require.Len(t, res.Files, 2)
	require.Len(t, res.Manifest, 2)
	for _, entry := range res.Manifest {
		assert.Equal(t, "Button", entry.Component)
		assert.Equal(t, remap.StatusPatched, entry.Status)
	}

	byPath := map[string]*FileChange{}
	for _, fc := range res.Files {
		assert.False(t, fc.Written)
		byPath[filepath.Base(fc.Path)] = fc
	}

	app := byPath["App.tsx"]
	require.NotNil(t, app)
	assert.Equal(t, `import { NextButton } from "@ui/next";

export const App = () => <NextButton variant="headingLarge">Go</NextButton>;
`, string(app.Output))

	page := byPath["Page.tsx"]
	require.NotNil(t, page)
	assert.Contains(t, string(page.Output), `import { NextButton } from "@ui/next";`)
	assert.Contains(t, string(page.Output), `<NextButton size="small" disabled />`)
	assert.NotContains(t, string(page.Output), "@ui/kit")
	assert.Contains(t, string(page.Output), `import Card from "@ui/cards";`)

	// Dry run: nothing on disk changed.
	data, err := os.ReadFile(filepath.Join(root, "src", "App.tsx"))
	require.NoError(t, err)
	assert.Equal(t, fixtureFiles["src/App.tsx"], string(data))
}

func TestMigrate_Write(t *testing.T) {
	root := writeTree(t, fixtureFiles)
	e := newTestEngine(t, root, WithoutCache())

	res, err := e.Migrate(context.Background(), writeRuleFile(t, migrationRules), MigrateOptions{Write: true})
	require.NoError(t, err)
	require.Len(t, res.Files, 2)

	for _, fc := range res.Files {
		assert.True(t, fc.Written)
		data, rerr := os.ReadFile(fc.Path)
		require.NoError(t, rerr)
		assert.Equal(t, string(fc.Output), string(data))
	}
}

func TestMigrate_WritePreservesFileMode(t *testing.T) {
	root := writeTree(t, fixtureFiles)
	app := filepath.Join(root, "src", "App.tsx")
	require.NoError(t, os.Chmod(app, 0o600))

	e := newTestEngine(t, root, WithoutCache())
	_, err := e.Migrate(context.Background(), writeRuleFile(t, migrationRules), MigrateOptions{Write: true})
	require.NoError(t, err)

	info, err := os.Stat(app)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestMigrate_NoMatchingUsages(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/Page.tsx": `import Card from "@ui/cards";
export const Page = () => <Card />;
`,
	})
	e := newTestEngine(t, root, WithoutCache())

	res, err := e.Migrate(context.Background(), writeRuleFile(t, migrationRules), MigrateOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Files)
	assert.Empty(t, res.Manifest)
}

func TestMigrate_BadRuleFile(t *testing.T) {
	root := writeTree(t, fixtureFiles)
	e := newTestEngine(t, root, WithoutCache())

	_, err := e.Migrate(context.Background(), writeRuleFile(t, "{broken"), MigrateOptions{})
	require.Error(t, err)
}

func TestMigrate_ManifestLineNumbers(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/One.tsx": `import { Button } from "@ui/kit";


export const One = () => <Button size="large" />;
`,
	})
	e := newTestEngine(t, root, WithoutCache())

	res, err := e.Migrate(context.Background(), writeRuleFile(t, migrationRules), MigrateOptions{})
	require.NoError(t, err)
	require.Len(t, res.Manifest, 1)
	assert.Equal(t, uint32(4), res.Manifest[0].Line)
}

const sameModuleRules = `{
  "migr8rules": [
    {
      "package": "@ui/kit",
      "importType": "named",
      "component": "Button",
      "importTo": {
        "importStm": "@ui/kit",
        "component": "NewButton",
        "importType": "named"
      },
      "rules": [
        {"order": 1, "match": [{"size": "large"}]}
      ]
    }
  ]
}`

func TestMigrate_SameModuleRename(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/App.tsx": `import { Button } from "@ui/kit";

export const C = () => <Button size="large" />;
`,
	})
	e := newTestEngine(t, root, WithoutCache())

	res, err := e.Migrate(context.Background(), writeRuleFile(t, sameModuleRules), MigrateOptions{})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)

	// The specifier is renamed in place: one declaration, one binding, no
	// prune-plus-splice pair that could cancel out.
	assert.Equal(t, `import { NewButton } from "@ui/kit";

export const C = () => <NewButton size="large" />;
`, string(res.Files[0].Output))
}

func TestMigrate_SameModulePartialMove(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/App.tsx": `import { Button } from "@ui/kit";

export const A = () => <Button size="large" />;
export const B = () => <Button />;
`,
	})
	e := newTestEngine(t, root, WithoutCache())

	res, err := e.Migrate(context.Background(), writeRuleFile(t, sameModuleRules), MigrateOptions{})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, 1, res.Patched)
	assert.Equal(t, 1, res.Skipped)

	// One usage stays on the old name, so the old specifier survives and
	// the new one is spliced in beside it.
	out := string(res.Files[0].Output)
	assert.Contains(t, out, `import { Button, NewButton } from "@ui/kit";`)
	assert.Contains(t, out, `<NewButton size="large" />`)
	assert.Contains(t, out, `<Button />`)
}
