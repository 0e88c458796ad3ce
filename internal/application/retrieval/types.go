package retrieval

import "kb-rag-api/internal/domain/entity"

// Status tells an empty result apart from a failed one.
type Status string

const (
	StatusOK     Status = "ok"
	StatusEmpty  Status = "empty"
	StatusFailed Status = "failed"
)

const (
	DefaultTopK = 5
	MaxTopK     = 50
)

// Passage is one retrieved chunk. Distance is cosine distance; Score is 1 - Distance.
type Passage struct {
	ID       string
	Text     string
	Metadata entity.ChunkMetadata
	Distance float64
	Score    float64
}

// Result is what Retrieve returns in place of an error.
type Result struct {
	Passages []Passage
	Status   Status
	// Reason explains StatusFailed.
	Reason string
}

// Empty reports whether there is nothing to build a context from, whatever the cause.
func (r Result) Empty() bool {
	return len(r.Passages) == 0
}

type IngestRequest struct {
	Text     string
	Source   string
	Category string
}

type IngestResult struct {
	ChunksCreated int    `json:"chunks_created"`
	Source        string `json:"source"`
	Category      string `json:"category"`
}

// IngestOutcome is one entry of a batch ingestion report.
type IngestOutcome struct {
	Source string
	Result *IngestResult
	Err    error
}

// Stats describes the indexed collection.
type Stats struct {
	TotalChunks int    `json:"total_chunks"`
	Collection  string `json:"collection_name"`
	Backend     string `json:"backend"`
	Embedder    string `json:"embedder"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}
