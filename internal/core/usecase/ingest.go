package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feiyangfan/search-hub/internal/core/domain"
	"github.com/feiyangfan/search-hub/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	tenantID, title, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, domain.WrapError(domain.ErrTenantRequired, "upload document", errors.New("empty tenant id"))
	}
	if strings.TrimSpace(title) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("empty title"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s/%s_%s", tenantID, id, sanitizeTitle(title))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		TenantID:    tenantID,
		Title:       title,
		MimeType:    mimeType,
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	return doc, nil
}

func sanitizeTitle(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		return "document.bin"
	}
	return name
}
