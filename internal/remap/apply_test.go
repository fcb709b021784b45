package remap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/migr8/internal/extract"
	"github.com/jward/migr8/internal/jstree"
)

// fixture parses src as TSX and returns the tree plus the single extracted
// usage of component.
func fixture(t *testing.T, src, component string) (*jstree.FileTree, *extract.JSXUsage) {
	t.Helper()
	ft, err := jstree.Parse(context.Background(), "app.tsx", []byte(src))
	require.NoError(t, err)
	t.Cleanup(ft.Close)

	res := extract.Extract(ft)
	var found *extract.JSXUsage
	for _, u := range res.JSX {
		if u.ComponentName == component {
			require.Nil(t, found, "fixture expects exactly one %s usage", component)
			found = u
		}
	}
	require.NotNil(t, found, "no %s usage in fixture", component)
	return ft, found
}

func rewrite(t *testing.T, ft *jstree.FileTree, out Outcome) string {
	t.Helper()
	result, dropped := jstree.ApplyEdits(ft.Source, out.Edits)
	require.Empty(t, dropped)
	return string(result)
}

func TestApply_NoRuleMatched(t *testing.T) {
	ft, u := fixture(t, `import { Button } from "@ui/kit";
const x = <Button size="small" />;
`, "Button")

	mig := &Migration{Package: "@ui/kit", Component: "Button", Rules: []Rule{
		{Order: 1, Match: []map[string]any{{"size": "large"}}},
	}}
	out := NewApplier(nil).Apply(ft, u, mig)
	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, "no rule matched", out.Reason)
	assert.Empty(t, out.Edits)
}

func TestApply_SetOverwritesExisting(t *testing.T) {
	ft, u := fixture(t, `import { Btn } from "@ui/kit";
const x = <Btn size="large" />;
`, "Btn")

	mig := &Migration{Package: "@ui/kit", Component: "Btn", Rules: []Rule{
		{Order: 1, Match: []map[string]any{{"size": "large"}}, Set: map[string]any{"size": "headingLarge"}},
	}}
	out := NewApplier(nil).Apply(ft, u, mig)
	require.Equal(t, StatusPatched, out.Status)
	assert.Equal(t, `import { Btn } from "@ui/kit";
const x = <Btn size="headingLarge" />;
`, rewrite(t, ft, out))
}

func TestApply_RemoveRenameSet(t *testing.T) {
	ft, u := fixture(t, `import { Btn } from "@ui/kit";
const x = <Btn size="large" colour="red" data-id={3} />;
`, "Btn")

	mig := &Migration{Package: "@ui/kit", Component: "Btn", Rules: []Rule{
		{
			Order:  1,
			Match:  []map[string]any{{"size": "large"}},
			Remove: []string{"size"},
			Rename: map[string]string{"colour": "color"},
			Set:    map[string]any{"variant": "headingLarge"},
		},
	}}
	out := NewApplier(nil).Apply(ft, u, mig)
	require.Equal(t, StatusPatched, out.Status)
	assert.Equal(t, `import { Btn } from "@ui/kit";
const x = <Btn color="red" data-id={3} variant="headingLarge" />;
`, rewrite(t, ft, out))
}

func TestApply_RenameIntoSetConsumesValue(t *testing.T) {
	// colour is renamed to color, and set also carries color: the set
	// value wins over the original bytes.
	ft, u := fixture(t, `import { Btn } from "@ui/kit";
const x = <Btn colour="red" />;
`, "Btn")

	mig := &Migration{Package: "@ui/kit", Component: "Btn", Rules: []Rule{
		{Order: 1, Rename: map[string]string{"colour": "color"}, Set: map[string]any{"color": "blue"}},
	}}
	out := NewApplier(nil).Apply(ft, u, mig)
	require.Equal(t, StatusPatched, out.Status)
	assert.Equal(t, `import { Btn } from "@ui/kit";
const x = <Btn color="blue" />;
`, rewrite(t, ft, out))
}

func TestApply_SetLiteralRendering(t *testing.T) {
	ft, u := fixture(t, `import { Btn } from "@ui/kit";
const x = <Btn />;
`, "Btn")

	mig := &Migration{Package: "@ui/kit", Component: "Btn", Rules: []Rule{
		{Order: 1, Set: map[string]any{
			"label": "Save",
			"count": 3.0,
			"live":  true,
			"extra": nil,
		}},
	}}
	out := NewApplier(nil).Apply(ft, u, mig)
	require.Equal(t, StatusPatched, out.Status)
	// Inserted attributes come in sorted key order after the tag name.
	assert.Equal(t, `import { Btn } from "@ui/kit";
const x = <Btn count={3} extra={null} label="Save" live={true} />;
`, rewrite(t, ft, out))
}

func TestRenderAttr(t *testing.T) {
	assert.Equal(t, `a="x"`, renderAttr("a", "x"))
	assert.Equal(t, `a='say "hi"'`, renderAttr("a", `say "hi"`))
	assert.Equal(t, `a="it's"`, renderAttr("a", "it's"))
	assert.Equal(t, `a={true}`, renderAttr("a", true))
	assert.Equal(t, `a={false}`, renderAttr("a", false))
	assert.Equal(t, `a={3}`, renderAttr("a", 3.0))
	assert.Equal(t, `a={2.5}`, renderAttr("a", 2.5))
	assert.Equal(t, `a={null}`, renderAttr("a", nil))
}

func TestApply_PatchPreservesExprValueBytes(t *testing.T) {
	ft, u := fixture(t, `import { Btn } from "@ui/kit";
const x = <Btn onClick={() => save(1, 2)} colour="red" />;
`, "Btn")

	mig := &Migration{Package: "@ui/kit", Component: "Btn", Rules: []Rule{
		{Order: 1, Rename: map[string]string{"colour": "color"}},
	}}
	out := NewApplier(nil).Apply(ft, u, mig)
	assert.Equal(t, `import { Btn } from "@ui/kit";
const x = <Btn onClick={() => save(1, 2)} color="red" />;
`, rewrite(t, ft, out))
}

func TestApply_Replace(t *testing.T) {
	ft, u := fixture(t, `import { Btn } from "@ui/kit";
const x = <Btn size="large" onClick={handler}>Save</Btn>;
`, "Btn")

	mig := &Migration{Package: "@ui/kit", Component: "Btn", Rules: []Rule{
		{
			Order:  1,
			Remove: []string{"size"},
			Set:    map[string]any{"variant": "heading"},
			ReplaceWith: &Replacement{
				Code: `<NewButton {...OUTER_PROPS}>{CHILDREN}</NewButton>`,
			},
		},
	}}
	out := NewApplier(nil).Apply(ft, u, mig)
	require.Equal(t, StatusReplaced, out.Status)
	assert.Equal(t, `import { Btn } from "@ui/kit";
const x = <NewButton onClick={handler} variant="heading">Save</NewButton>;
`, rewrite(t, ft, out))
}

func TestApply_ReplaceInnerProps(t *testing.T) {
	ft, u := fixture(t, `import { Field } from "@ui/kit";
const x = <Field label="Name" size="s" />;
`, "Field")

	mig := &Migration{Package: "@ui/kit", Component: "Field", Rules: []Rule{
		{
			Order: 1,
			ReplaceWith: &Replacement{
				Code:       `<FormRow {...OUTER_PROPS}><Input {...INNER_PROPS} /></FormRow>`,
				InnerProps: []string{"size"},
			},
		},
	}}
	out := NewApplier(nil).Apply(ft, u, mig)
	require.Equal(t, StatusReplaced, out.Status)
	assert.Equal(t, `import { Field } from "@ui/kit";
const x = <FormRow label="Name"><Input size="s" /></FormRow>;
`, rewrite(t, ft, out))
}

func TestApply_ReplaceBadTemplateSkips(t *testing.T) {
	ft, u := fixture(t, `import { Btn } from "@ui/kit";
const x = <Btn />;
`, "Btn")

	mig := &Migration{Package: "@ui/kit", Component: "Btn", Rules: []Rule{
		{Order: 1, ReplaceWith: &Replacement{Code: `<A /><B />`}},
	}}
	out := NewApplier(nil).Apply(ft, u, mig)
	assert.Equal(t, StatusSkipped, out.Status)
	assert.NotNil(t, out.Rule)
	assert.Contains(t, out.Reason, "one JSX element")
	assert.Empty(t, out.Edits)
}

func TestApply_ImportTargetRenamesTags(t *testing.T) {
	ft, u := fixture(t, `import { Btn } from "@ui/kit";
const x = <Btn size="large">Save</Btn>;
`, "Btn")

	mig := &Migration{
		Package:   "@ui/kit",
		Component: "Btn",
		ImportTo:  &ImportTo{ImportStm: "@ui/next", Component: "NextButton", ImportType: "named"},
		Rules:     []Rule{{Order: 1, Set: map[string]any{"variant": "heading"}}},
	}
	out := NewApplier(nil).Apply(ft, u, mig)
	require.Equal(t, StatusPatched, out.Status)

	require.NotNil(t, out.EnsureImport)
	assert.Equal(t, "NextButton", out.EnsureImport.LocalName)
	assert.Equal(t, "@ui/next", out.EnsureImport.Source)
	assert.Equal(t, extract.ImportNamed, out.EnsureImport.Kind)
	assert.True(t, out.PruneOld)

	assert.Equal(t, `import { Btn } from "@ui/kit";
const x = <NextButton size="large" variant="heading">Save</NextButton>;
`, rewrite(t, ft, out))
}

func TestApply_ImportTargetSameSpecifierNoPrune(t *testing.T) {
	ft, u := fixture(t, `import { Btn } from "@ui/kit";
const x = <Btn />;
`, "Btn")

	mig := &Migration{
		Package:   "@ui/kit",
		Component: "Btn",
		ImportTo:  &ImportTo{ImportStm: "@ui/kit", Component: "Btn"},
		Rules:     []Rule{{Order: 1, Set: map[string]any{"a": "b"}}},
	}
	out := NewApplier(nil).Apply(ft, u, mig)
	require.Equal(t, StatusPatched, out.Status)
	assert.False(t, out.PruneOld)
	require.NotNil(t, out.EnsureImport)
	assert.Equal(t, "Btn", out.EnsureImport.LocalName)
}

func TestApplier_TemplateCache(t *testing.T) {
	a := NewApplier(nil)
	t1, err := a.template(`<New {...OUTER_PROPS} />`)
	require.NoError(t, err)
	t2, err := a.template(`<New {...OUTER_PROPS} />`)
	require.NoError(t, err)
	assert.Same(t, t1, t2)
}

func TestDescribeOutcome(t *testing.T) {
	r := &Rule{Order: 2}
	assert.Equal(t, "patched (rule order 2)", DescribeOutcome(Outcome{Status: StatusPatched, Rule: r}))
	assert.Equal(t, "skipped: no rule matched", DescribeOutcome(Outcome{Status: StatusSkipped, Reason: "no rule matched"}))
}
