package ports

import (
	"context"
	"io"

	"github.com/feiyangfan/search-hub/internal/core/domain"
)

// SearchService is the inbound contract for hybrid document search.
type SearchService interface {
	HybridSearch(ctx context.Context, query domain.HybridSearchQuery) (*domain.SearchResponse, error)
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, tenantID, title, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Document, error)
}

// DocumentIndexer is the inbound contract for asynchronous chunk indexing.
type DocumentIndexer interface {
	IndexByID(ctx context.Context, documentID string) error
}
