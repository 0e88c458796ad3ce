package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kb-rag-api/internal/domain/entity"
)

func TestBuildContextFormat(t *testing.T) {
	passages := []Passage{
		{Text: "First body.", Metadata: entity.ChunkMetadata{Source: "a.md", Category: "setup"}},
		{Text: "Second body.", Metadata: entity.ChunkMetadata{}},
	}

	ctx, sources := BuildContext(passages)
	want := "[Source: a.md | Category: setup]\nFirst body.\n" +
		"\n---\n" +
		"[Source: Unknown | Category: general]\nSecond body.\n"
	assert.Equal(t, want, ctx)
	assert.Equal(t, []string{"Unknown (general)", "a.md (setup)"}, sources.List())
}

func TestBuildContextDeduplicatesSources(t *testing.T) {
	md := entity.ChunkMetadata{Source: "handbook.pdf", Category: "hr"}
	a := Passage{Text: "one", Metadata: md}
	b := Passage{Text: "two", Metadata: md}

	_, s1 := BuildContext([]Passage{a, b})
	_, s2 := BuildContext([]Passage{b, a})
	assert.Equal(t, 1, s1.Len())
	assert.Equal(t, s1.List(), s2.List())
	assert.Equal(t, []string{"handbook.pdf (hr)"}, s1.List())
}

func TestBuildContextEmpty(t *testing.T) {
	ctx, sources := BuildContext(nil)
	assert.Empty(t, ctx)
	assert.NotNil(t, sources.List())
	assert.Zero(t, sources.Len())
}
