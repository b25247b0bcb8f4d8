package parsers

import (
	"regexp"
	"strings"
)

// JavaScriptParser extracts function declarations, arrow-function consts and
// classes from JavaScript and TypeScript source. TypeScript type annotations
// ride along inside the matched spans; no attempt is made to understand them.
type JavaScriptParser struct{}

var (
	jsFuncRe  = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`)
	jsArrowRe = regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:\([^)]*\)|[A-Za-z_$][A-Za-z0-9_$]*)\s*(?::[^=>]+)?=>`)
	jsClassRe = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][A-Za-z0-9_$]*)`)
)

func (p *JavaScriptParser) Language() string { return "javascript" }

func (p *JavaScriptParser) Parse(path string, content []byte) ([]Entity, error) {
	lines := splitLines(content)
	var entities []Entity

	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])

		var name, kind string
		if m := jsClassRe.FindStringSubmatch(trimmed); m != nil {
			name, kind = m[1], KindClass
		} else if m := jsFuncRe.FindStringSubmatch(trimmed); m != nil {
			name, kind = m[1], KindFunction
		} else if m := jsArrowRe.FindStringSubmatch(trimmed); m != nil {
			name, kind = m[1], KindFunction
		}

		if name == "" {
			i++
			continue
		}

		end := i
		if strings.Contains(trimmed, "{") || kind == KindClass {
			end = scanBraceBlock(lines, i)
		}
		entities = append(entities, Entity{
			Name:      name,
			Kind:      kind,
			Language:  "javascript",
			StartLine: i + 1,
			EndLine:   end + 1,
			Text:      strings.Join(lines[i:end+1], "\n"),
		})
		i = end + 1
	}

	return entities, nil
}
