// Package parsers extracts indexable entities (functions, methods, types,
// classes, sections) from source files.
//
// The extractors use line-oriented pattern matching with brace or indent
// tracking rather than full AST parsing: they are pure over file content,
// never touch the filesystem, and degrade gracefully on files they cannot
// fully understand. Precision lives in the embedding, not the parse.
package parsers

import (
	"path/filepath"
	"sort"
	"strings"
)

// Entity kinds produced by the built-in extractors.
const (
	KindFunction = "function"
	KindMethod   = "method"
	KindType     = "type"
	KindClass    = "class"
	KindSection  = "section"
	KindFile     = "file"
)

// Entity is one extracted unit of a source file.
type Entity struct {
	// Name is the identifier, with methods qualified by their receiver or
	// class ("Server.Start", "Database.connect").
	Name      string
	Kind      string
	Language  string
	StartLine int
	EndLine   int
	// Text is the entity's source text, used for hashing and embedding.
	Text string
}

// Parser extracts entities from a single file's content.
type Parser interface {
	Language() string
	Parse(path string, content []byte) ([]Entity, error)
}

// Registry maps file extensions to parsers.
type Registry struct {
	byExt map[string]Parser
}

// NewRegistry returns a registry with the built-in extractors registered.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Parser)}
	r.Register(&GoParser{}, ".go")
	r.Register(&PythonParser{}, ".py")
	r.Register(&JavaScriptParser{}, ".js", ".jsx", ".mjs", ".ts", ".tsx")
	r.Register(&MarkdownParser{}, ".md", ".markdown")
	return r
}

// Register maps the given extensions (including the leading dot) to p.
func (r *Registry) Register(p Parser, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = p
	}
}

// ForPath returns the parser responsible for the file's extension.
func (r *Registry) ForPath(path string) (Parser, bool) {
	p, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return p, ok
}

// Languages returns the distinct languages the registry can parse, sorted.
func (r *Registry) Languages() []string {
	seen := make(map[string]bool)
	for _, p := range r.byExt {
		seen[p.Language()] = true
	}
	langs := make([]string, 0, len(seen))
	for l := range seen {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// WholeFile wraps an entire file as a single entity. Used when no parser
// claims the file or a parse yields nothing extractable.
func WholeFile(path string, content []byte, language string) Entity {
	text := string(content)
	return Entity{
		Name:      filepath.Base(path),
		Kind:      KindFile,
		Language:  language,
		StartLine: 1,
		EndLine:   1 + strings.Count(text, "\n"),
		Text:      text,
	}
}

// splitLines splits content preserving the convention that line numbers are
// 1-based.
func splitLines(content []byte) []string {
	return strings.Split(string(content), "\n")
}
