package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/feiyangfan/search-hub/internal/core/domain"
	"github.com/feiyangfan/search-hub/internal/core/ports"
)

// IndexDocumentUseCase is the worker-side pipeline: extract text, chunk,
// embed, index vectors, flip document status.
type IndexDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	chunks    ports.ChunkIndex
}

func NewIndexDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	chunks ports.ChunkIndex,
) *IndexDocumentUseCase {
	return &IndexDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		chunks:    chunks,
	}
}

func (uc *IndexDocumentUseCase) IndexByID(ctx context.Context, documentID string) error {
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusIndexing, ""); err != nil {
		return fmt.Errorf("set status=indexing: %w", err)
	}

	if err := uc.indexPipeline(ctx, documentID); err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, documentID, domain.StatusFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *IndexDocumentUseCase) indexPipeline(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetForIndexing(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}

	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	// The chunk index persists the extracted content alongside the
	// vectors so lexical search and metadata backfill see it too.
	doc.Content = text

	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}

	vectors, err := uc.embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}

	if err := uc.chunks.IndexChunks(ctx, doc, chunks, vectors); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	return nil
}
