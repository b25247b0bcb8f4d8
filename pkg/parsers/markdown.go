package parsers

import (
	"regexp"
	"strings"
)

// MarkdownParser splits documents into heading-delimited sections. A section
// runs from its heading to the next heading of equal or higher level, so
// nested subsections stay inside their parent's text.
type MarkdownParser struct{}

var mdHeadingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

func (p *MarkdownParser) Language() string { return "markdown" }

func (p *MarkdownParser) Parse(path string, content []byte) ([]Entity, error) {
	lines := splitLines(content)
	var entities []Entity

	inFence := false
	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		m := mdHeadingRe.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		level := len(m[1])
		end := scanSection(lines, i, level)
		entities = append(entities, Entity{
			Name:      m[2],
			Kind:      KindSection,
			Language:  "markdown",
			StartLine: i + 1,
			EndLine:   end + 1,
			Text:      strings.Join(lines[i:end+1], "\n"),
		})
	}

	return entities, nil
}

// scanSection returns the index of the last line before the next heading of
// equal or higher level, skipping fenced code blocks.
func scanSection(lines []string, start, level int) int {
	inFence := false
	for i := start + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if m := mdHeadingRe.FindStringSubmatch(lines[i]); m != nil && len(m[1]) <= level {
			return i - 1
		}
	}
	return len(lines) - 1
}
