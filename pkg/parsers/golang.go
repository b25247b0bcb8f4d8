package parsers

import (
	"regexp"
	"strings"
)

// GoParser extracts functions, methods and type declarations from Go source
// using brace counting. Nested function literals stay part of their
// enclosing declaration.
type GoParser struct{}

var (
	goFuncRe   = regexp.MustCompile(`^func\s+([A-Za-z_][A-Za-z0-9_]*)\s*[\[(]`)
	goMethodRe = regexp.MustCompile(`^func\s+\(\s*[A-Za-z_][A-Za-z0-9_]*\s+\*?([A-Za-z_][A-Za-z0-9_]*)[^)]*\)\s+([A-Za-z_][A-Za-z0-9_]*)\s*[\[(]`)
	goTypeRe   = regexp.MustCompile(`^type\s+([A-Za-z_][A-Za-z0-9_]*)(?:\[[^\]]*\])?\s+(struct|interface)\s*\{`)
)

func (p *GoParser) Language() string { return "go" }

func (p *GoParser) Parse(path string, content []byte) ([]Entity, error) {
	lines := splitLines(content)
	var entities []Entity

	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])

		var name, kind string
		switch {
		case strings.HasPrefix(trimmed, "func ("):
			if m := goMethodRe.FindStringSubmatch(trimmed); m != nil {
				name = m[1] + "." + m[2]
				kind = KindMethod
			}
		case strings.HasPrefix(trimmed, "func "):
			if m := goFuncRe.FindStringSubmatch(trimmed); m != nil {
				name = m[1]
				kind = KindFunction
			}
		case strings.HasPrefix(trimmed, "type "):
			if m := goTypeRe.FindStringSubmatch(trimmed); m != nil {
				name = m[1]
				kind = KindType
			}
		}

		if name == "" {
			i++
			continue
		}

		end := scanBraceBlock(lines, i)
		entities = append(entities, Entity{
			Name:      name,
			Kind:      kind,
			Language:  "go",
			StartLine: i + 1,
			EndLine:   end + 1,
			Text:      strings.Join(lines[i:end+1], "\n"),
		})
		i = end + 1
	}

	return entities, nil
}

// scanBraceBlock returns the index of the line closing the brace block that
// opens at or after lines[start]. Braces inside strings are counted too; the
// occasional miscount costs a slightly wrong span, not a failed parse.
func scanBraceBlock(lines []string, start int) int {
	depth := 0
	opened := false
	for i := start; i < len(lines); i++ {
		depth += strings.Count(lines[i], "{") - strings.Count(lines[i], "}")
		if strings.Contains(lines[i], "{") {
			opened = true
		}
		if opened && depth <= 0 {
			return i
		}
	}
	return len(lines) - 1
}
