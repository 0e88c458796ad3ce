package entity

import (
	"fmt"
	"strings"
)

const (
	DefaultCategory = "general"
	UnknownSource   = "Unknown"
)

// Chunk is a contiguous span of a source document, immutable once produced.
type Chunk struct {
	Text        string
	Index       int
	SourceID    string
	Category    string
	TotalChunks int
}

// ChunkMetadata is stored alongside every vector.
type ChunkMetadata struct {
	Source      string `json:"source"`
	Category    string `json:"category"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

// SourceLabel renders "{source} ({category})" with defaults for missing fields.
func (m ChunkMetadata) SourceLabel() string {
	return fmt.Sprintf("%s (%s)", m.SourceOrDefault(), m.CategoryOrDefault())
}

func (m ChunkMetadata) SourceOrDefault() string {
	if strings.TrimSpace(m.Source) == "" {
		return UnknownSource
	}
	return m.Source
}

func (m ChunkMetadata) CategoryOrDefault() string {
	if strings.TrimSpace(m.Category) == "" {
		return DefaultCategory
	}
	return m.Category
}

// VectorRecord is the unit written to a vector store.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Document  string
	Metadata  ChunkMetadata
}

// ChunkID is deterministic so re-ingesting a document overwrites its previous chunks.
// Underscores inside source and category are escaped, so distinct pairs never share ids.
func ChunkID(source, category string, index int) string {
	return fmt.Sprintf("%s_%s_%d", idEscaper.Replace(source), idEscaper.Replace(category), index)
}

var idEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

// NewVectorRecord builds the record for c with its embedding.
func NewVectorRecord(c Chunk, embedding []float32) VectorRecord {
	return VectorRecord{
		ID:        ChunkID(c.SourceID, c.Category, c.Index),
		Embedding: embedding,
		Document:  c.Text,
		Metadata: ChunkMetadata{
			Source:      c.SourceID,
			Category:    c.Category,
			ChunkIndex:  c.Index,
			TotalChunks: c.TotalChunks,
		},
	}
}
