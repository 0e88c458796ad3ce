package retrieval

import (
	"sort"
	"strings"
)

const passageSeparator = "\n---\n"

// SourceSet holds citation labels of the form "{source} ({category})".
type SourceSet map[string]struct{}

func (s SourceSet) Add(label string) {
	s[label] = struct{}{}
}

func (s SourceSet) Len() int {
	return len(s)
}

// List returns the labels sorted, never nil.
func (s SourceSet) List() []string {
	out := make([]string, 0, len(s))
	for label := range s {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// BuildContext renders passages in rank order and collects their citations.
// Missing metadata renders as source "Unknown" and category "general".
func BuildContext(passages []Passage) (string, SourceSet) {
	sources := make(SourceSet, len(passages))
	if len(passages) == 0 {
		return "", sources
	}

	blocks := make([]string, 0, len(passages))
	for _, p := range passages {
		src := p.Metadata.SourceOrDefault()
		cat := p.Metadata.CategoryOrDefault()

		var sb strings.Builder
		sb.Grow(len(src) + len(cat) + len(p.Text) + 32)
		sb.WriteString("[Source: ")
		sb.WriteString(src)
		sb.WriteString(" | Category: ")
		sb.WriteString(cat)
		sb.WriteString("]\n")
		sb.WriteString(p.Text)
		sb.WriteString("\n")
		blocks = append(blocks, sb.String())

		sources.Add(p.Metadata.SourceLabel())
	}
	return strings.Join(blocks, passageSeparator), sources
}
