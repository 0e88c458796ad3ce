package retrieval

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// defaultSeparators are tried in order; "" splits into single runes.
var defaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", " ", ""}

// Span is a chunk together with its byte offsets in the source text.
type Span struct {
	Text  string
	Start int
	End   int
}

// Chunker splits text into overlapping chunks of at most size runes.
// Separators stay attached to the piece they end, so spans always cover the input.
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	return &Chunker{size: size, overlap: overlap, separators: defaultSeparators}
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the chunk texts. Empty or whitespace-only input yields nil.
func (c *Chunker) Split(text string) []string {
	spans := c.SplitSpans(text)
	if len(spans) == 0 {
		return nil
	}
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out
}

// SplitSpans is Split with offsets. Consecutive spans either touch or overlap.
func (c *Chunker) SplitSpans(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= c.size {
		return []Span{{Text: text, Start: 0, End: len(text)}}
	}
	return c.split(text, 0, c.separators)
}

func (c *Chunker) split(text string, base int, seps []string) []Span {
	sep := ""
	var rest []string
	for i, s := range seps {
		if s == "" {
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = seps[i+1:]
			break
		}
	}

	var (
		out  []Span
		good []Span
	)
	for _, p := range splitKeep(text, base, sep) {
		if utf8.RuneCountInString(p.Text) <= c.size {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
			continue
		}
		out = append(out, c.split(p.Text, p.Start, rest)...)
	}
	if len(good) > 0 {
		out = append(out, c.merge(good)...)
	}
	return out
}

// merge packs contiguous pieces greedily, carrying up to overlap runes of trailing pieces forward.
func (c *Chunker) merge(pieces []Span) []Span {
	var (
		out   []Span
		cur   []Span
		total int
	)
	for _, p := range pieces {
		l := utf8.RuneCountInString(p.Text)
		if total+l > c.size && len(cur) > 0 {
			out = append(out, joinSpans(cur))
			for len(cur) > 0 && (total > c.overlap || total+l > c.size) {
				total -= utf8.RuneCountInString(cur[0].Text)
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += l
	}
	if len(cur) > 0 {
		out = append(out, joinSpans(cur))
	}
	return out
}

func joinSpans(spans []Span) Span {
	var sb strings.Builder
	for _, s := range spans {
		sb.WriteString(s.Text)
	}
	return Span{Text: sb.String(), Start: spans[0].Start, End: spans[len(spans)-1].End}
}

// splitKeep cuts text after every occurrence of sep. An empty sep yields single runes.
func splitKeep(text string, base int, sep string) []Span {
	var out []Span
	if sep == "" {
		for i := 0; i < len(text); {
			_, n := utf8.DecodeRuneInString(text[i:])
			out = append(out, Span{Text: text[i : i+n], Start: base + i, End: base + i + n})
			i += n
		}
		return out
	}
	start := 0
	for {
		idx := strings.Index(text[start:], sep)
		if idx < 0 {
			break
		}
		end := start + idx + len(sep)
		out = append(out, Span{Text: text[start:end], Start: base + start, End: base + end})
		start = end
	}
	if start < len(text) {
		out = append(out, Span{Text: text[start:], Start: base + start, End: base + len(text)})
	}
	return out
}
