package parsers

import (
	"regexp"
	"strings"
)

// PythonParser extracts functions, methods and classes using indentation
// spans. Methods are qualified with their class name; decorators and
// docstrings stay inside the entity they annotate.
type PythonParser struct{}

var (
	pyDefRe   = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	pyClassRe = regexp.MustCompile(`^(\s*)class\s+([A-Za-z_][A-Za-z0-9_]*)\s*[(:]`)
)

// classScope tracks an enclosing class while scanning, so methods get
// qualified names.
type classScope struct {
	name   string
	indent int
}

func (p *PythonParser) Language() string { return "python" }

func (p *PythonParser) Parse(path string, content []byte) ([]Entity, error) {
	lines := splitLines(content)
	var entities []Entity
	var classes []classScope

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if m := pyClassRe.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			classes = popScopes(classes, indent)
			end := scanIndentBlock(lines, i, indent)
			entities = append(entities, Entity{
				Name:      m[2],
				Kind:      KindClass,
				Language:  "python",
				StartLine: i + 1,
				EndLine:   end + 1,
				Text:      strings.Join(lines[i:end+1], "\n"),
			})
			classes = append(classes, classScope{name: m[2], indent: indent})
			continue
		}

		if m := pyDefRe.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			classes = popScopes(classes, indent)

			name := m[2]
			kind := KindFunction
			if len(classes) > 0 && indent > classes[len(classes)-1].indent {
				name = classes[len(classes)-1].name + "." + name
				kind = KindMethod
			}

			end := scanIndentBlock(lines, i, indent)
			entities = append(entities, Entity{
				Name:      name,
				Kind:      kind,
				Language:  "python",
				StartLine: i + 1,
				EndLine:   end + 1,
				Text:      strings.Join(lines[i:end+1], "\n"),
			})
			// Skip past nested defs; they belong to this entity's text.
			i = end
		}
	}

	return entities, nil
}

// popScopes drops class scopes ended by a declaration at the given indent.
func popScopes(scopes []classScope, indent int) []classScope {
	for len(scopes) > 0 && scopes[len(scopes)-1].indent >= indent {
		scopes = scopes[:len(scopes)-1]
	}
	return scopes
}

// scanIndentBlock returns the index of the last line belonging to the block
// declared at lines[start] with the given indent. Blank lines never end a
// block; the block ends at the first non-blank line indented at or shallower
// than the declaration.
func scanIndentBlock(lines []string, start, indent int) int {
	end := start
	for i := start + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if indentOf(lines[i]) <= indent {
			break
		}
		end = i
	}
	return end
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 8
		default:
			return n
		}
	}
	return n
}
