package retrieval

import "errors"

var (
	// ErrVectorDisabled means no embedder or vector store is configured.
	ErrVectorDisabled = errors.New("vector retrieval is disabled")

	ErrEmptyDocument = errors.New("no text content extracted from document")
	ErrNoChunks      = errors.New("no chunks created from document text")
	ErrEmptyQuery    = errors.New("query is empty")
)
