// Package jstree wraps tree-sitter parsing for the JavaScript language
// family and provides the primitives the rest of migr8 builds on: a
// FileTree that owns one file's source and syntax tree, a generic walker
// with subtree pruning, and byte-range edits that splice new text into the
// original source without re-rendering untouched bytes.
package jstree

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	tsx "github.com/smacker/go-tree-sitter/typescript/tsx"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// extToLanguage maps file extensions to canonical language names.
var extToLanguage = map[string]string{
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
	".ts":  "typescript",
	".tsx": "tsx",
}

// langToGrammar maps language names to tree-sitter Language objects.
// Lazily initialized on first call via sync.Once.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"javascript": javascript.GetLanguage(),
			"typescript": ts.GetLanguage(),
			"tsx":        tsx.GetLanguage(),
		}
	})
}

// LanguageForFile returns the canonical language name for a file path based
// on its extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extToLanguage[ext]
	return lang, ok
}

// Grammar returns the tree-sitter Language for a canonical language name.
func Grammar(lang string) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[lang]
	return l, ok
}

// FileTree owns one file's source bytes and its parsed syntax tree. Every
// *sitter.Node handed out by extraction or remapping points into this tree
// and is invalidated when the tree is closed or the file is re-parsed; the
// project graph holds such handles as non-owning references only.
type FileTree struct {
	Path     string
	Language string
	Source   []byte
	Tree     *sitter.Tree
}

// Parse parses src as the language implied by path's extension.
func Parse(ctx context.Context, path string, src []byte) (*FileTree, error) {
	lang, ok := LanguageForFile(path)
	if !ok {
		return nil, fmt.Errorf("jstree: unsupported file type %q", filepath.Ext(path))
	}
	return ParseAs(ctx, path, src, lang)
}

// ParseAs parses src with an explicit language grammar.
func ParseAs(ctx context.Context, path string, src []byte, lang string) (*FileTree, error) {
	grammar, ok := Grammar(lang)
	if !ok {
		return nil, fmt.Errorf("jstree: unknown language %q", lang)
	}
	parser := sitter.NewParser()
	parser.SetLanguage(grammar)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("jstree: parse %s: %w", path, err)
	}
	return &FileTree{Path: path, Language: lang, Source: src, Tree: tree}, nil
}

// Root returns the tree's root node.
func (ft *FileTree) Root() *sitter.Node {
	return ft.Tree.RootNode()
}

// Text returns the source text covered by node.
func (ft *FileTree) Text(node *sitter.Node) string {
	return node.Content(ft.Source)
}

// Close releases the underlying tree. All node handles into it become
// invalid.
func (ft *FileTree) Close() {
	if ft.Tree != nil {
		ft.Tree.Close()
		ft.Tree = nil
	}
}
