package ports

import (
	"context"
	"io"

	"github.com/feiyangfan/search-hub/internal/core/domain"
)

// LexicalSearcher runs tenant-scoped full-text search with stable ranking
// and an offset/limit window. This is the always-available baseline; its
// errors propagate to the caller.
type LexicalSearcher interface {
	SearchLexical(ctx context.Context, tenantID, query string, limit, offset int) (*domain.LexicalResult, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Reranker scores candidate documents against a query. Scores are returned
// with the index of the candidate they refer to, best first.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]domain.RerankedDocument, error)
}

// ChunkIndex stores chunk vectors and serves tenant-scoped nearest-neighbor
// lookups by cosine distance.
type ChunkIndex interface {
	IndexChunks(ctx context.Context, doc *domain.Document, chunks []string, vectors [][]float32) error
	NearestNeighbors(ctx context.Context, tenantID string, vector []float32, k int) ([]domain.Candidate, error)
}

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Document, error)
	GetForIndexing(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	FetchMetadata(ctx context.Context, tenantID string, ids []string) ([]domain.DocumentMetadata, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes document-ingested events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Chunker splits text into indexable chunks.
type Chunker interface {
	Split(text string) []string
}
